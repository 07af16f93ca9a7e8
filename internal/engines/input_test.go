package engines

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\n0000000000000000")

func TestFetchInputDecodesDataURL(t *testing.T) {
	raw := "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngBytes)
	data, mt, err := FetchInput(context.Background(), raw)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if mt != "image/png" || string(data) != string(pngBytes) {
		t.Fatalf("unexpected %q %q", mt, data)
	}

	if _, _, err := FetchInput(context.Background(), "data:text/plain;base64,aGk="); err == nil {
		t.Fatalf("expected non-image data url to be rejected")
	}
	if _, _, err := FetchInput(context.Background(), "data:image/png;base64,!!!"); err == nil {
		t.Fatalf("expected bad base64 to be rejected")
	}
}

func TestFetchInputRefusesInternalAddresses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("internal server should not be reached")
		_, _ = w.Write(pngBytes)
	}))
	defer srv.Close()

	for _, u := range []string{
		srv.URL + "/i.png",
		"http://169.254.169.254/latest/meta-data/",
		"http://10.0.0.1/i.png",
		"http://[::1]:1/i.png",
	} {
		if _, _, err := FetchInput(context.Background(), u); !errors.Is(err, ErrBlockedAddress) {
			t.Fatalf("%s: expected ErrBlockedAddress, got %v", u, err)
		}
	}
	if _, _, err := FetchInput(context.Background(), "file:///etc/passwd"); err == nil {
		t.Fatalf("expected file scheme to be rejected")
	}
}

func TestPublicIP(t *testing.T) {
	tests := map[string]bool{
		"8.8.8.8":         true,
		"127.0.0.1":       false,
		"10.1.2.3":        false,
		"172.16.0.1":      false,
		"192.168.1.1":     false,
		"169.254.169.254": false,
		"100.64.0.1":      false,
		"0.0.0.0":         false,
		"::1":             false,
		"fe80::1":         false,
		"fd00::1":         false,
		"2606:4700::1111": true,
	}
	for addr, want := range tests {
		if got := publicIP(net.ParseIP(addr)); got != want {
			t.Fatalf("publicIP(%s) = %v, want %v", addr, got, want)
		}
	}
}

func TestGeminiImageSendsDataURLInline(t *testing.T) {
	out := base64.StdEncoding.EncodeToString(pngBytes)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, ":generateContent") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var body struct {
			Contents []struct {
				Parts []struct {
					Text       string `json:"text"`
					InlineData *struct {
						MIMEType string `json:"mimeType"`
						Data     string `json:"data"`
					} `json:"inlineData"`
				} `json:"parts"`
			} `json:"contents"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode: %v", err)
		}
		var inline int
		for _, c := range body.Contents {
			for _, p := range c.Parts {
				if p.InlineData != nil && p.InlineData.MIMEType == "image/png" && p.InlineData.Data == out {
					inline++
				}
			}
		}
		if inline != 1 {
			t.Errorf("expected the reference image as one inline part, got %d", inline)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"finishReason":"STOP","content":{"role":"model","parts":[{"inlineData":{"mimeType":"image/png","data":"` + out + `"}}]}}]}`))
	}))
	defer srv.Close()

	g := NewGeminiImage(Options{APIKey: "gk", BaseURL: srv.URL, HTTPClient: srv.Client()})
	res, err := g.Generate(context.Background(), Request{
		Prompt:   "make it blue",
		ImageURL: "data:image/png;base64," + out,
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if res.MIMEType != "image/png" || len(res.Data) != len(pngBytes) {
		t.Fatalf("unexpected result %q %d", res.MIMEType, len(res.Data))
	}
}
