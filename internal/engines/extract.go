package engines

import (
	"encoding/json"
	"strconv"
	"strings"
)

// mediaURLPaths lists the places vendors put a finished media URL, most
// specific first.
var mediaURLPaths = [][]string{
	{"content", "video_url"},
	{"video_url"},
	{"data", "video_url"},
	{"output", "video_url"},
	{"result", "video_url"},
	{"videos", "0", "url"},
	{"data", "task_result", "videos", "0", "url"},
	{"data", "task_result", "images", "0", "url"},
	{"data", "0", "url"},
	{"data", "0", "imageURL"},
	{"data", "0", "videoURL"},
	{"data", "0", "audioURL"},
	{"data", "result_url"},
	{"images", "0", "url"},
	{"result_url"},
	{"url"},
	{"output", "0"},
	{"output"},
}

// ExtractMediaURL searches a decoded JSON payload for a media URL. Raw JSON
// ([]byte, json.RawMessage or string) is decoded first.
func ExtractMediaURL(payload any) (string, bool) {
	switch raw := payload.(type) {
	case []byte:
		return extractFromJSON(raw)
	case json.RawMessage:
		return extractFromJSON(raw)
	case string:
		return extractFromJSON([]byte(raw))
	}
	for _, p := range mediaURLPaths {
		if v, ok := lookup(payload, p); ok {
			if s, ok := v.(string); ok && isMediaURL(s) {
				return s, true
			}
		}
	}
	return "", false
}

func extractFromJSON(raw []byte) (string, bool) {
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", false
	}
	return ExtractMediaURL(decoded)
}

func lookup(node any, path []string) (any, bool) {
	cur := node
	for _, seg := range path {
		switch v := cur.(type) {
		case map[string]any:
			next, ok := v[seg]
			if !ok {
				return nil, false
			}
			cur = next
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(v) {
				return nil, false
			}
			cur = v[idx]
		default:
			return nil, false
		}
	}
	return cur, true
}

func isMediaURL(s string) bool {
	s = strings.TrimSpace(s)
	return strings.HasPrefix(s, "https://") || strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "data:")
}
