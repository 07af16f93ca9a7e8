package engines

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
)

const (
	maxErrorBody = 64 << 10
	// MaxMediaBytes caps downloaded media.
	MaxMediaBytes = 512 << 20
)

// vendorClient issues JSON calls against one vendor.
type vendorClient struct {
	engine  string
	baseURL string
	http    *http.Client
	// authorize sets credentials on each outgoing request.
	authorize func(*http.Request) error
}

func newVendorClient(engine, baseURL string, client *http.Client, authorize func(*http.Request) error) *vendorClient {
	return &vendorClient{
		engine:    engine,
		baseURL:   strings.TrimRight(baseURL, "/"),
		http:      client,
		authorize: authorize,
	}
}

func (c *vendorClient) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reqBody io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("%s: marshal request: %w", c.engine, err)
		}
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", c.engine, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.authorize != nil {
		if err := c.authorize(req); err != nil {
			return nil, err
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %s %s: %w", c.engine, method, path, err)
	}
	return resp, nil
}

// parseResponse decodes a 2xx body into T, or turns anything else into an *APIError.
func parseResponse[T any](engine string, resp *http.Response) (T, error) {
	var out T
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return out, readAPIError(engine, resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return out, fmt.Errorf("%s: decode response: %w", engine, err)
	}
	return out, nil
}

// readBytes returns a 2xx body verbatim with its media type.
func readBytes(engine string, resp *http.Response) ([]byte, string, error) {
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", readAPIError(engine, resp)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxMediaBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("%s: read body: %w", engine, err)
	}
	if len(data) > MaxMediaBytes {
		return nil, "", fmt.Errorf("%s: media exceeds %d bytes", engine, MaxMediaBytes)
	}
	if len(data) == 0 {
		return nil, "", fmt.Errorf("%s: %w", engine, ErrNoMedia)
	}
	return data, mediaType(resp.Header.Get("Content-Type"), data), nil
}

func readAPIError(engine string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &APIError{Engine: engine, Status: resp.StatusCode, Message: ErrorMessage(raw)}
}

// ErrorMessage pulls a human-readable message out of a vendor error body.
func ErrorMessage(raw []byte) string {
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return strings.TrimSpace(string(raw))
	}
	for _, path := range [][]string{
		{"error", "message"},
		{"error"},
		{"message"},
		{"detail", "message"},
		{"detail"},
		{"errorMessage"},
		{"errors", "0", "message"},
		{"msg"},
	} {
		if v, ok := lookup(decoded, path); ok {
			if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
	}
	return strings.TrimSpace(string(raw))
}

func mediaType(header string, data []byte) string {
	if header != "" {
		if mt, _, err := mime.ParseMediaType(header); err == nil && mt != "application/octet-stream" {
			return mt
		}
	}
	return http.DetectContentType(data)
}

func bearer(key string) func(*http.Request) error {
	return func(r *http.Request) error {
		r.Header.Set("Authorization", "Bearer "+key)
		return nil
	}
}

// Download fetches a finished media URL.
func Download(ctx context.Context, client *http.Client, url string) ([]byte, string, error) {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("download: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download: %w", err)
	}
	return readBytes("download", resp)
}
