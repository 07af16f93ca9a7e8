package engines

import (
	"context"
	"fmt"
	"net/http"

	"studio-backend/internal/taskpoll"
)

const (
	DeAPIID           = "deapi"
	deapiDefaultModel = "Flux1schnell"
)

// DeAPI queues a txt2img request and polls its request status.
type DeAPI struct {
	base
	opts   Options
	client *vendorClient
}

func NewDeAPI(opts Options) *DeAPI {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.deapi.ai"
	}
	return &DeAPI{
		base: base{info: Info{
			ID:           DeAPIID,
			Kind:         KindImage,
			Label:        "DeAPI",
			Vendor:       "DeAPI",
			Configured:   opts.APIKey != "",
			Async:        true,
			DefaultModel: deapiDefaultModel,
		}},
		opts:   opts,
		client: newVendorClient(DeAPIID, opts.BaseURL, opts.httpClient(), bearer(opts.APIKey)),
	}
}

type deapiRequest struct {
	Prompt         string `json:"prompt"`
	NegativePrompt string `json:"negative_prompt,omitempty"`
	Model          string `json:"model"`
	Width          int    `json:"width"`
	Height         int    `json:"height"`
	Steps          int    `json:"steps"`
	Seed           int64  `json:"seed"`
}

type deapiQueued struct {
	Data struct {
		RequestID string `json:"request_id"`
	} `json:"data"`
}

type deapiStatus struct {
	Data struct {
		Status    string  `json:"status"`
		Progress  float64 `json:"progress"`
		ResultURL string  `json:"result_url"`
		Error     string  `json:"error"`
	} `json:"data"`
}

func (d *DeAPI) Generate(ctx context.Context, req Request) (Result, error) {
	if d.opts.APIKey == "" {
		return Result{}, missingKey(DeAPIID)
	}
	model := req.Model
	if model == "" {
		model = deapiDefaultModel
	}
	width, height := dimensions(req, 768)
	seed := req.Seed
	if seed == 0 {
		seed = -1
	}

	resp, err := d.client.do(ctx, http.MethodPost, "/api/v1/client/txt2img", deapiRequest{
		Prompt:         req.Prompt,
		NegativePrompt: req.NegativePrompt,
		Model:          model,
		Width:          width,
		Height:         height,
		Steps:          4,
		Seed:           seed,
	})
	if err != nil {
		return Result{}, err
	}
	queued, err := parseResponse[deapiQueued](DeAPIID, resp)
	if err != nil {
		return Result{}, err
	}
	requestID := queued.Data.RequestID
	if requestID == "" {
		return Result{}, fmt.Errorf("%s: response missing request id", DeAPIID)
	}

	st, err := taskpoll.Poll(ctx, d.opts.pollOptions(DeAPIID), func(ctx context.Context, _ int) (taskpoll.Status, error) {
		resp, err := d.client.do(ctx, http.MethodGet, "/api/v1/client/request-status/"+requestID, nil)
		if err != nil {
			return taskpoll.Status{}, pollError(ctx, err)
		}
		cur, err := parseResponse[deapiStatus](DeAPIID, resp)
		if err != nil {
			return taskpoll.Status{}, pollError(ctx, err)
		}
		switch cur.Data.Status {
		case "done":
			if cur.Data.ResultURL == "" {
				return taskpoll.Status{State: cur.Data.Status, Err: fmt.Errorf("%s: %w", DeAPIID, ErrNoMedia)}, nil
			}
			return taskpoll.Status{Done: true, URL: cur.Data.ResultURL, State: cur.Data.Status}, nil
		case "error", "failed":
			return taskpoll.Status{State: cur.Data.Status, Err: fmt.Errorf("%s: request failed: %s", DeAPIID, cur.Data.Error)}, nil
		default:
			return taskpoll.Status{State: cur.Data.Status}, nil
		}
	})
	if err != nil {
		return Result{}, err
	}
	return Result{URL: st.URL, MIMEType: "image/png", TaskID: requestID}, nil
}
