package engines

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"

	"studio-backend/internal/taskpoll"
)

const (
	SoraID           = "sora"
	soraDefaultModel = "sora-2"
)

var soraSeconds = []int{4, 8, 12}

// Sora generates video through the OpenAI videos API.
type Sora struct {
	base
	opts   Options
	client *vendorClient
}

func NewSora(opts Options) *Sora {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.openai.com"
	}
	return &Sora{
		base: base{info: Info{
			ID:                 SoraID,
			Kind:               KindVideo,
			Label:              "Sora",
			Vendor:             "OpenAI",
			Configured:         opts.APIKey != "",
			Async:              true,
			SupportsImageInput: true,
			MinDurationSeconds: 4,
			MaxDurationSeconds: 12,
			DefaultModel:       soraDefaultModel,
		}},
		opts:   opts,
		client: newVendorClient(SoraID, opts.BaseURL, opts.httpClient(), bearer(opts.APIKey)),
	}
}

type soraJob struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	Progress int    `json:"progress"`
	Error    *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (s *Sora) Generate(ctx context.Context, req Request) (Result, error) {
	if s.opts.APIKey == "" {
		return Result{}, missingKey(SoraID)
	}

	job, err := s.submit(ctx, req)
	if err != nil {
		return Result{}, err
	}

	_, err = taskpoll.Poll(ctx, s.opts.pollOptions(SoraID), func(ctx context.Context, _ int) (taskpoll.Status, error) {
		resp, err := s.client.do(ctx, http.MethodGet, "/v1/videos/"+job.ID, nil)
		if err != nil {
			return taskpoll.Status{}, pollError(ctx, err)
		}
		cur, err := parseResponse[soraJob](SoraID, resp)
		if err != nil {
			return taskpoll.Status{}, pollError(ctx, err)
		}
		switch cur.Status {
		case "completed":
			return taskpoll.Status{Done: true, State: cur.Status}, nil
		case "failed", "cancelled":
			return taskpoll.Status{State: cur.Status, Err: soraFailure(cur)}, nil
		default:
			return taskpoll.Status{State: cur.Status}, nil
		}
	})
	if err != nil {
		return Result{}, err
	}

	resp, err := s.client.do(ctx, http.MethodGet, "/v1/videos/"+job.ID+"/content", nil)
	if err != nil {
		return Result{}, err
	}
	data, mt, err := readBytes(SoraID, resp)
	if err != nil {
		return Result{}, err
	}
	return Result{Data: data, MIMEType: mt, TaskID: job.ID}, nil
}

func (s *Sora) submit(ctx context.Context, req Request) (soraJob, error) {
	model := req.Model
	if model == "" {
		model = soraDefaultModel
	}
	fields := map[string]string{
		"model":   model,
		"prompt":  req.Prompt,
		"seconds": strconv.Itoa(soraDuration(req.DurationSeconds)),
		"size":    soraSize(req.AspectRatio),
	}

	if req.ImageURL == "" {
		resp, err := s.client.do(ctx, http.MethodPost, "/v1/videos", fields)
		if err != nil {
			return soraJob{}, err
		}
		return parseResponse[soraJob](SoraID, resp)
	}

	// Image-to-video uploads the first frame as input_reference.
	image, mt, err := FetchInput(ctx, req.ImageURL)
	if err != nil {
		return soraJob{}, fmt.Errorf("%s: fetch input image: %w", SoraID, err)
	}
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return soraJob{}, err
		}
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="input_reference"; filename="reference"`)
	h.Set("Content-Type", mt)
	part, err := mw.CreatePart(h)
	if err != nil {
		return soraJob{}, err
	}
	if _, err := part.Write(image); err != nil {
		return soraJob{}, err
	}
	if err := mw.Close(); err != nil {
		return soraJob{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.client.baseURL+"/v1/videos", &buf)
	if err != nil {
		return soraJob{}, err
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())
	httpReq.Header.Set("Authorization", "Bearer "+s.opts.APIKey)
	resp, err := s.client.http.Do(httpReq)
	if err != nil {
		return soraJob{}, fmt.Errorf("%s: POST /v1/videos: %w", SoraID, err)
	}
	return parseResponse[soraJob](SoraID, resp)
}

func soraFailure(job soraJob) error {
	if job.Error == nil {
		return fmt.Errorf("%s: video %s %s", SoraID, job.ID, job.Status)
	}
	if strings.Contains(job.Error.Code, "moderation") || strings.Contains(job.Error.Code, "policy") {
		return safetyFiltered(SoraID, job.Error.Message)
	}
	return errors.New(SoraID + ": " + job.Error.Message)
}

func soraDuration(requested int) int {
	if requested <= 0 {
		return soraSeconds[0]
	}
	for _, s := range soraSeconds {
		if requested <= s {
			return s
		}
	}
	return soraSeconds[len(soraSeconds)-1]
}

func soraSize(aspect string) string {
	switch aspect {
	case "9:16", "3:4", "2:3":
		return "720x1280"
	default:
		return "1280x720"
	}
}
