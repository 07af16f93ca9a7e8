package engines

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

const DalleID = "dalle3"

// Dalle generates images through the OpenAI images endpoint.
type Dalle struct {
	base
	opts   Options
	client *vendorClient
}

func NewDalle(opts Options) *Dalle {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.openai.com"
	}
	return &Dalle{
		base: base{info: Info{
			ID:           DalleID,
			Kind:         KindImage,
			Label:        "DALL·E 3",
			Vendor:       "OpenAI",
			Configured:   opts.APIKey != "",
			DefaultModel: "dall-e-3",
		}},
		opts:   opts,
		client: newVendorClient(DalleID, opts.BaseURL, opts.httpClient(), bearer(opts.APIKey)),
	}
}

type dalleResponse struct {
	Data []struct {
		URL           string `json:"url"`
		RevisedPrompt string `json:"revised_prompt"`
	} `json:"data"`
}

func (d *Dalle) Generate(ctx context.Context, req Request) (Result, error) {
	if d.opts.APIKey == "" {
		return Result{}, missingKey(DalleID)
	}
	model := req.Model
	if model == "" {
		model = "dall-e-3"
	}
	resp, err := d.client.do(ctx, http.MethodPost, "/v1/images/generations", map[string]any{
		"model":           model,
		"prompt":          req.Prompt,
		"n":               1,
		"size":            dalleSize(req.AspectRatio),
		"response_format": "url",
	})
	if err != nil {
		return Result{}, err
	}
	out, err := parseResponse[dalleResponse](DalleID, resp)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusBadRequest &&
			(strings.Contains(apiErr.Message, "safety system") || strings.Contains(apiErr.Message, "content_policy")) {
			return Result{}, safetyFiltered(DalleID, apiErr.Message)
		}
		return Result{}, err
	}
	if len(out.Data) == 0 || out.Data[0].URL == "" {
		return Result{}, fmt.Errorf("%s: %w", DalleID, ErrNoMedia)
	}
	return Result{URL: out.Data[0].URL, MIMEType: "image/png", RevisedPrompt: out.Data[0].RevisedPrompt}, nil
}

func dalleSize(aspect string) string {
	switch aspect {
	case "16:9", "21:9", "3:2", "4:3":
		return "1792x1024"
	case "9:16", "2:3", "3:4":
		return "1024x1792"
	default:
		return "1024x1024"
	}
}
