package util

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// UserPrefix is the storage folder for a user's media. The raw id never
// appears in object keys.
func UserPrefix(userID string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(userID)))
	return "u" + hex.EncodeToString(sum[:12])
}

// DownloadName builds the file name offered for a generation's media,
// e.g. "sora-01J9ZK.mp4".
func DownloadName(engine, generationID, mimeType string) string {
	parts := make([]string, 0, 2)
	for _, p := range []string{engine, generationID} {
		if s := nameSegment(p); s != "" {
			parts = append(parts, s)
		}
	}
	if len(parts) == 0 {
		parts = append(parts, "generation")
	}
	return strings.Join(parts, "-") + MediaExtension(mimeType, "")
}

// nameSegment keeps ASCII letters, digits, dash and underscore.
func nameSegment(s string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return strings.Trim(b.String(), "_")
}
