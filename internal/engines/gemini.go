package engines

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"sync"

	"google.golang.org/genai"
)

const (
	GeminiImageID = "gemini-image"
	GeminiTTSID   = "gemini-tts"

	geminiImageModel   = "gemini-2.5-flash-image"
	geminiTTSModel     = "gemini-2.5-flash-preview-tts"
	geminiDefaultVoice = "Kore"

	ttsSampleRate = 24000
)

// geminiClient creates the genai client on first use.
type geminiClient struct {
	opts Options

	mu     sync.Mutex
	client *genai.Client
}

func (g *geminiClient) get(ctx context.Context) (*genai.Client, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.client != nil {
		return g.client, nil
	}
	cfg := &genai.ClientConfig{
		APIKey:     g.opts.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: g.opts.httpClient(),
	}
	if g.opts.BaseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: g.opts.BaseURL}
	}
	c, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	g.client = c
	return c, nil
}

// GeminiImage generates images with the Gemini image model.
type GeminiImage struct {
	base
	gc *geminiClient
}

func NewGeminiImage(opts Options) *GeminiImage {
	return &GeminiImage{
		base: base{info: Info{
			ID:                 GeminiImageID,
			Kind:               KindImage,
			Label:              "Gemini Image",
			Vendor:             "Google",
			Configured:         opts.APIKey != "",
			SupportsImageInput: true,
			DefaultModel:       geminiImageModel,
		}},
		gc: &geminiClient{opts: opts},
	}
}

func (g *GeminiImage) Generate(ctx context.Context, req Request) (Result, error) {
	if g.gc.opts.APIKey == "" {
		return Result{}, missingKey(GeminiImageID)
	}
	client, err := g.gc.get(ctx)
	if err != nil {
		return Result{}, err
	}

	prompt := req.Prompt
	if req.AspectRatio != "" {
		prompt += "\nAspect ratio: " + req.AspectRatio
	}
	parts := []*genai.Part{genai.NewPartFromText(prompt)}
	if req.ImageURL != "" {
		data, mt, err := FetchInput(ctx, req.ImageURL)
		if err != nil {
			return Result{}, fmt.Errorf("%s: reference image: %w", GeminiImageID, err)
		}
		parts = append(parts, genai.NewPartFromBytes(data, mt))
	}
	model := req.Model
	if model == "" {
		model = geminiImageModel
	}

	resp, err := client.Models.GenerateContent(ctx, model,
		[]*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)},
		&genai.GenerateContentConfig{ResponseModalities: []string{"IMAGE", "TEXT"}},
	)
	if err != nil {
		return Result{}, geminiError(GeminiImageID, err)
	}
	data, mt, err := inlineMedia(GeminiImageID, resp)
	if err != nil {
		return Result{}, err
	}
	return Result{Data: data, MIMEType: mt}, nil
}

// GeminiTTS synthesizes speech and wraps the returned PCM in a WAV container.
type GeminiTTS struct {
	base
	gc *geminiClient
}

func NewGeminiTTS(opts Options) *GeminiTTS {
	return &GeminiTTS{
		base: base{info: Info{
			ID:           GeminiTTSID,
			Kind:         KindAudio,
			Label:        "Gemini TTS",
			Vendor:       "Google",
			Configured:   opts.APIKey != "",
			DefaultModel: geminiTTSModel,
		}},
		gc: &geminiClient{opts: opts},
	}
}

func (g *GeminiTTS) Generate(ctx context.Context, req Request) (Result, error) {
	if g.gc.opts.APIKey == "" {
		return Result{}, missingKey(GeminiTTSID)
	}
	client, err := g.gc.get(ctx)
	if err != nil {
		return Result{}, err
	}
	voice := req.Voice
	if voice == "" {
		voice = geminiDefaultVoice
	}
	model := req.Model
	if model == "" {
		model = geminiTTSModel
	}

	resp, err := client.Models.GenerateContent(ctx, model, genai.Text(req.Prompt), &genai.GenerateContentConfig{
		ResponseModalities: []string{"AUDIO"},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: voice},
			},
		},
	})
	if err != nil {
		return Result{}, geminiError(GeminiTTSID, err)
	}
	pcm, mt, err := inlineMedia(GeminiTTSID, resp)
	if err != nil {
		return Result{}, err
	}
	if strings.HasPrefix(mt, "audio/wav") || strings.HasPrefix(mt, "audio/x-wav") {
		return Result{Data: pcm, MIMEType: "audio/wav"}, nil
	}
	return Result{Data: WAV(pcm, ttsSampleRate, 1, 16), MIMEType: "audio/wav"}, nil
}

// inlineMedia returns the first inline blob of a response, or the reason there is none.
func inlineMedia(engine string, resp *genai.GenerateContentResponse) ([]byte, string, error) {
	if resp == nil {
		return nil, "", fmt.Errorf("%s: %w", engine, ErrNoMedia)
	}
	if fb := resp.PromptFeedback; fb != nil && fb.BlockReason != "" && fb.BlockReason != genai.BlockedReasonUnspecified {
		return nil, "", safetyFiltered(engine, string(fb.BlockReason))
	}
	for _, cand := range resp.Candidates {
		if cand == nil {
			continue
		}
		if blockedFinish(string(cand.FinishReason)) {
			return nil, "", safetyFiltered(engine, string(cand.FinishReason))
		}
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part != nil && part.InlineData != nil && len(part.InlineData.Data) > 0 {
				return part.InlineData.Data, part.InlineData.MIMEType, nil
			}
		}
	}
	return nil, "", fmt.Errorf("%s: %w", engine, ErrNoMedia)
}

func blockedFinish(reason string) bool {
	switch reason {
	case "SAFETY", "PROHIBITED_CONTENT", "BLOCKLIST", "SPII", "IMAGE_SAFETY", "IMAGE_PROHIBITED_CONTENT":
		return true
	}
	return false
}

func geminiError(engine string, err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &APIError{Engine: engine, Status: apiErr.Code, Message: apiErr.Message}
	}
	return fmt.Errorf("%s: %w", engine, err)
}

// WAV wraps raw little-endian PCM in a RIFF header.
func WAV(pcm []byte, sampleRate, channels, bitsPerSample int) []byte {
	blockAlign := channels * bitsPerSample / 8
	var buf bytes.Buffer
	buf.Grow(44 + len(pcm))
	buf.WriteString("RIFF")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVEfmt ")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(channels))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(sampleRate*blockAlign))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(blockAlign))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(bitsPerSample))
	buf.WriteString("data")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)
	return buf.Bytes()
}
