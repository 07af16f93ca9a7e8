package engines

import (
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"
)

const MaxPromptRunes = 4000

var aspectRatios = map[string]struct{}{
	"1:1": {}, "16:9": {}, "9:16": {}, "4:3": {}, "3:4": {}, "21:9": {}, "3:2": {}, "2:3": {},
}

// ValidateRequest checks a request against an engine's constraints.
func ValidateRequest(info Info, req Request) error {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return &ValidationError{Field: "prompt", Message: "is required"}
	}
	if utf8.RuneCountInString(prompt) > MaxPromptRunes {
		return &ValidationError{Field: "prompt", Message: fmt.Sprintf("must be at most %d characters", MaxPromptRunes)}
	}

	if req.ImageURL != "" {
		if !info.SupportsImageInput {
			return &ValidationError{Field: "imageUrl", Message: "not supported by " + info.ID}
		}
		u, err := url.Parse(req.ImageURL)
		if err != nil || (u.Scheme != "https" && u.Scheme != "http" && u.Scheme != "data") {
			return &ValidationError{Field: "imageUrl", Message: "must be an http(s) or data URL"}
		}
		if u.Scheme == "data" {
			mediaType, isBase64, _, err := dataURLHeader(req.ImageURL)
			if err != nil || !isBase64 || !strings.HasPrefix(mediaType, "image/") {
				return &ValidationError{Field: "imageUrl", Message: "data URL must be a base64 image"}
			}
		}
	} else if info.RequiresImageInput {
		return &ValidationError{Field: "imageUrl", Message: "is required for " + info.ID}
	}

	if req.DurationSeconds != 0 {
		if info.Kind != KindVideo {
			return &ValidationError{Field: "durationSeconds", Message: "only applies to video engines"}
		}
		if info.MinDurationSeconds > 0 && req.DurationSeconds < info.MinDurationSeconds {
			return &ValidationError{Field: "durationSeconds", Message: fmt.Sprintf("must be at least %d", info.MinDurationSeconds)}
		}
		if info.MaxDurationSeconds > 0 && req.DurationSeconds > info.MaxDurationSeconds {
			return &ValidationError{Field: "durationSeconds", Message: fmt.Sprintf("must be at most %d", info.MaxDurationSeconds)}
		}
	}

	if req.AspectRatio != "" {
		if _, ok := aspectRatios[req.AspectRatio]; !ok {
			return &ValidationError{Field: "aspectRatio", Message: "unsupported aspect ratio"}
		}
	}
	if req.Width < 0 || req.Height < 0 || req.Width > 4096 || req.Height > 4096 {
		return &ValidationError{Field: "width", Message: "dimensions must be between 0 and 4096"}
	}
	return nil
}
