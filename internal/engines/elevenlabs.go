package engines

import (
	"context"
	"net/http"
	"net/url"
)

const (
	ElevenLabsID           = "elevenlabs"
	elevenLabsDefaultVoice = "21m00Tcm4TlvDq8ikWAM"
	elevenLabsDefaultModel = "eleven_multilingual_v2"
)

// ElevenLabs synthesizes speech and returns the audio bytes.
type ElevenLabs struct {
	base
	opts   Options
	client *vendorClient
}

func NewElevenLabs(opts Options) *ElevenLabs {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.elevenlabs.io"
	}
	key := opts.APIKey
	return &ElevenLabs{
		base: base{info: Info{
			ID:           ElevenLabsID,
			Kind:         KindAudio,
			Label:        "ElevenLabs",
			Vendor:       "ElevenLabs",
			Configured:   key != "",
			DefaultModel: elevenLabsDefaultModel,
		}},
		opts: opts,
		client: newVendorClient(ElevenLabsID, opts.BaseURL, opts.httpClient(), func(r *http.Request) error {
			r.Header.Set("xi-api-key", key)
			r.Header.Set("Accept", "audio/mpeg")
			return nil
		}),
	}
}

func (e *ElevenLabs) Generate(ctx context.Context, req Request) (Result, error) {
	if e.opts.APIKey == "" {
		return Result{}, missingKey(ElevenLabsID)
	}
	voice := req.Voice
	if voice == "" {
		voice = elevenLabsDefaultVoice
	}
	model := req.Model
	if model == "" {
		model = elevenLabsDefaultModel
	}

	path := "/v1/text-to-speech/" + url.PathEscape(voice) + "?output_format=mp3_44100_128"
	resp, err := e.client.do(ctx, http.MethodPost, path, map[string]any{
		"text":     req.Prompt,
		"model_id": model,
		"voice_settings": map[string]float64{
			"stability":        0.5,
			"similarity_boost": 0.75,
		},
	})
	if err != nil {
		return Result{}, err
	}
	data, mt, err := readBytes(ElevenLabsID, resp)
	if err != nil {
		return Result{}, err
	}
	return Result{Data: data, MIMEType: mt}, nil
}
