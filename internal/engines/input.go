package engines

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"
)

// MaxInputBytes caps user-supplied reference images.
const MaxInputBytes = 20 << 20

// ErrBlockedAddress is returned when an input URL points at a non-public address.
var ErrBlockedAddress = errors.New("input url resolves to a non-public address")

// inputHTTP fetches user-supplied URLs. Every dialed address is checked, so
// redirects and DNS answers cannot reach internal hosts. Proxies are disabled
// for the same reason.
var inputHTTP = &http.Client{
	Timeout: 60 * time.Second,
	Transport: &http.Transport{
		Proxy: nil,
		DialContext: (&net.Dialer{
			Timeout: 10 * time.Second,
			Control: guardDial,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
	},
	CheckRedirect: func(req *http.Request, via []*http.Request) error {
		if len(via) >= 5 {
			return errors.New("too many redirects")
		}
		return nil
	},
}

func guardDial(_, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return err
	}
	ip := net.ParseIP(host)
	if ip == nil || !publicIP(ip) {
		return fmt.Errorf("%w: %s", ErrBlockedAddress, host)
	}
	return nil
}

func publicIP(ip net.IP) bool {
	if ip4 := ip.To4(); ip4 != nil {
		ip = ip4
		// 100.64.0.0/10 carrier-grade NAT
		if ip[0] == 100 && ip[1]&0xc0 == 64 {
			return false
		}
		if ip[0] == 0 {
			return false
		}
	}
	return !(ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() ||
		ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() ||
		ip.IsInterfaceLocalMulticast() || ip.IsMulticast())
}

// FetchInput loads a reference image supplied by a user. data: URLs are
// decoded in place; http(s) URLs are downloaded from public addresses only.
func FetchInput(ctx context.Context, rawURL string) ([]byte, string, error) {
	if isDataURL(rawURL) {
		return decodeDataURL(rawURL)
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, "", fmt.Errorf("input url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, "", fmt.Errorf("input url: unsupported scheme %q", u.Scheme)
	}
	data, mt, err := Download(ctx, inputHTTP, rawURL)
	if err != nil {
		return nil, "", err
	}
	if len(data) > MaxInputBytes {
		return nil, "", fmt.Errorf("input image exceeds %d bytes", MaxInputBytes)
	}
	return data, mt, nil
}

func isDataURL(raw string) bool {
	return len(raw) > 5 && strings.EqualFold(raw[:5], "data:")
}

// dataURLHeader splits a data URL into its media type, base64 flag and payload.
func dataURLHeader(raw string) (mediaType string, isBase64 bool, payload string, err error) {
	if !isDataURL(raw) {
		return "", false, "", errors.New("not a data url")
	}
	meta, payload, ok := strings.Cut(raw[5:], ",")
	if !ok {
		return "", false, "", errors.New("data url: missing comma")
	}
	params := strings.Split(meta, ";")
	mediaType = strings.ToLower(strings.TrimSpace(params[0]))
	if mediaType == "" {
		mediaType = "text/plain"
	}
	for _, p := range params[1:] {
		if strings.EqualFold(strings.TrimSpace(p), "base64") {
			isBase64 = true
		}
	}
	return mediaType, isBase64, payload, nil
}

func decodeDataURL(raw string) ([]byte, string, error) {
	mediaType, isBase64, payload, err := dataURLHeader(raw)
	if err != nil {
		return nil, "", err
	}
	if !strings.HasPrefix(mediaType, "image/") {
		return nil, "", fmt.Errorf("data url: media type %q is not an image", mediaType)
	}
	var data []byte
	if isBase64 {
		payload = strings.Map(func(r rune) rune {
			if r == ' ' || r == '\n' || r == '\r' || r == '\t' {
				return -1
			}
			return r
		}, payload)
		if base64.StdEncoding.DecodedLen(len(payload)) > MaxInputBytes {
			return nil, "", fmt.Errorf("input image exceeds %d bytes", MaxInputBytes)
		}
		data, err = base64.StdEncoding.DecodeString(payload)
		if err != nil {
			data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
		}
		if err != nil {
			return nil, "", fmt.Errorf("data url: %w", err)
		}
	} else {
		s, err := url.PathUnescape(payload)
		if err != nil {
			return nil, "", fmt.Errorf("data url: %w", err)
		}
		data = []byte(s)
	}
	if len(data) == 0 {
		return nil, "", errors.New("data url: empty payload")
	}
	return data, mediaType, nil
}
