package util

import (
	"path"
	"strings"
)

var mediaExtensions = map[string]string{
	"image/png":       ".png",
	"image/jpeg":      ".jpg",
	"image/webp":      ".webp",
	"image/gif":       ".gif",
	"video/mp4":       ".mp4",
	"video/webm":      ".webm",
	"video/quicktime": ".mov",
	"audio/mpeg":      ".mp3",
	"audio/wav":       ".wav",
	"audio/x-wav":     ".wav",
	"audio/L16":       ".pcm",
	"audio/ogg":       ".ogg",
}

// MediaExtension maps a MIME type to a file extension, falling back to the
// extension of name and finally to ".bin".
func MediaExtension(mimeType, name string) string {
	base := strings.TrimSpace(strings.SplitN(mimeType, ";", 2)[0])
	if ext, ok := mediaExtensions[base]; ok {
		return ext
	}
	if ext := path.Ext(name); ext != "" && len(ext) <= 6 {
		return strings.ToLower(ext)
	}
	return ".bin"
}

// Truncate shortens s to at most n runes.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
