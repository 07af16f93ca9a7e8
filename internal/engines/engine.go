// Package engines holds the generation providers behind a common interface.
package engines

import (
	"context"
	"net/http"
	"time"

	"studio-backend/internal/taskpoll"
)

// Kind is the media type an engine produces.
type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
	KindAudio Kind = "audio"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindImage, KindVideo, KindAudio:
		return true
	default:
		return false
	}
}

// Request is the provider-neutral generation input.
type Request struct {
	Prompt          string `json:"prompt"`
	NegativePrompt  string `json:"negativePrompt,omitempty"`
	ImageURL        string `json:"imageUrl,omitempty"`
	AspectRatio     string `json:"aspectRatio,omitempty"`
	DurationSeconds int    `json:"durationSeconds,omitempty"`
	Width           int    `json:"width,omitempty"`
	Height          int    `json:"height,omitempty"`
	Model           string `json:"model,omitempty"`
	Voice           string `json:"voice,omitempty"`
	Seed            int64  `json:"seed,omitempty"`
}

// Result is what an engine hands back. Exactly one of URL or Data is set.
type Result struct {
	URL      string
	Data     []byte
	MIMEType string
	TaskID   string
	// RevisedPrompt is set by vendors that rewrite prompts.
	RevisedPrompt string
}

// Info describes an engine for listings and validation.
type Info struct {
	ID                 string `json:"id"`
	Kind               Kind   `json:"kind"`
	Label              string `json:"label"`
	Vendor             string `json:"vendor"`
	Configured         bool   `json:"configured"`
	Async              bool   `json:"async"`
	SupportsImageInput bool   `json:"supportsImageInput"`
	RequiresImageInput bool   `json:"requiresImageInput"`
	MinDurationSeconds int    `json:"minDurationSeconds,omitempty"`
	MaxDurationSeconds int    `json:"maxDurationSeconds,omitempty"`
	DefaultModel       string `json:"defaultModel,omitempty"`
}

// Engine generates media through one vendor.
type Engine interface {
	ID() string
	Kind() Kind
	Info() Info
	Generate(ctx context.Context, req Request) (Result, error)
}

// Options are shared by every engine constructor.
type Options struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
	Poll       taskpoll.Options
	// OnPoll observes every status check of async engines.
	OnPoll func(engine string, attempt int, state string)
}

func (o Options) httpClient() *http.Client {
	if o.HTTPClient != nil {
		return o.HTTPClient
	}
	return &http.Client{Timeout: 120 * time.Second}
}

func (o Options) pollOptions(engine string) taskpoll.Options {
	opts := o.Poll
	if o.OnPoll != nil {
		opts.OnAttempt = func(attempt int, st taskpoll.Status, _ error) {
			o.OnPoll(engine, attempt, st.State)
		}
	}
	return opts
}

// base carries the static description every engine embeds.
type base struct {
	info Info
}

func (b base) ID() string { return b.info.ID }
func (b base) Kind() Kind { return b.info.Kind }
func (b base) Info() Info { return b.info }
