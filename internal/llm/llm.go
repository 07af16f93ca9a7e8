package llm

import (
	"context"
	"errors"
)

// Enhancer rewrites a short user prompt into a richer generation prompt.
type Enhancer interface {
	Enhance(ctx context.Context, input EnhanceInput) (EnhanceOutput, error)
}

// EnhanceInput captures what the enhancer needs to know about the target.
type EnhanceInput struct {
	Prompt string
	// Kind is image, video or audio.
	Kind   string
	Style  string
	Engine string
}

// EnhanceOutput is the rewritten prompt.
type EnhanceOutput struct {
	Prompt string `json:"prompt"`
	Model  string `json:"model"`
}

// ErrNotConfigured is returned when no provider key is set.
var ErrNotConfigured = errors.New("prompt enhancement not configured")

// PlaceholderClient is used when OPENAI_API_KEY is empty.
type PlaceholderClient struct{}

// Enhance returns ErrNotConfigured.
func (PlaceholderClient) Enhance(ctx context.Context, input EnhanceInput) (EnhanceOutput, error) {
	_ = ctx
	_ = input
	return EnhanceOutput{}, ErrNotConfigured
}
