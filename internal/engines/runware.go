package engines

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"
)

const (
	RunwareID           = "runware"
	runwareDefaultModel = "runware:101@1"
)

// Runware generates images with a single imageInference task.
type Runware struct {
	base
	opts   Options
	client *vendorClient
}

func NewRunware(opts Options) *Runware {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.runware.ai"
	}
	return &Runware{
		base: base{info: Info{
			ID:                 RunwareID,
			Kind:               KindImage,
			Label:              "Runware",
			Vendor:             "Runware",
			Configured:         opts.APIKey != "",
			SupportsImageInput: true,
			DefaultModel:       runwareDefaultModel,
		}},
		opts:   opts,
		client: newVendorClient(RunwareID, opts.BaseURL, opts.httpClient(), bearer(opts.APIKey)),
	}
}

type runwareTask struct {
	TaskType       string `json:"taskType"`
	TaskUUID       string `json:"taskUUID"`
	PositivePrompt string `json:"positivePrompt"`
	NegativePrompt string `json:"negativePrompt,omitempty"`
	SeedImage      string `json:"seedImage,omitempty"`
	Model          string `json:"model"`
	Width          int    `json:"width"`
	Height         int    `json:"height"`
	NumberResults  int    `json:"numberResults"`
	OutputType     string `json:"outputType"`
	OutputFormat   string `json:"outputFormat"`
	CheckNSFW      bool   `json:"checkNSFW"`
	Seed           int64  `json:"seed,omitempty"`
}

type runwareResponse struct {
	Data []struct {
		TaskType    string `json:"taskType"`
		TaskUUID    string `json:"taskUUID"`
		ImageURL    string `json:"imageURL"`
		NSFWContent bool   `json:"NSFWContent"`
	} `json:"data"`
	Errors []struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

func (r *Runware) Generate(ctx context.Context, req Request) (Result, error) {
	if r.opts.APIKey == "" {
		return Result{}, missingKey(RunwareID)
	}
	model := req.Model
	if model == "" {
		model = runwareDefaultModel
	}
	width, height := dimensions(req, 1024)
	task := runwareTask{
		TaskType:       "imageInference",
		TaskUUID:       uuid.NewString(),
		PositivePrompt: req.Prompt,
		NegativePrompt: req.NegativePrompt,
		SeedImage:      req.ImageURL,
		Model:          model,
		Width:          width,
		Height:         height,
		NumberResults:  1,
		OutputType:     "URL",
		OutputFormat:   "PNG",
		CheckNSFW:      true,
		Seed:           req.Seed,
	}

	resp, err := r.client.do(ctx, http.MethodPost, "/v1", []runwareTask{task})
	if err != nil {
		return Result{}, err
	}
	out, err := parseResponse[runwareResponse](RunwareID, resp)
	if err != nil {
		return Result{}, err
	}
	if len(out.Errors) > 0 {
		return Result{}, fmt.Errorf("%s: %s", RunwareID, out.Errors[0].Message)
	}
	for _, item := range out.Data {
		if item.TaskUUID != task.TaskUUID {
			continue
		}
		if item.NSFWContent {
			return Result{}, safetyFiltered(RunwareID, "nsfw content detected")
		}
		if item.ImageURL != "" {
			return Result{URL: item.ImageURL, MIMEType: "image/png", TaskID: item.TaskUUID}, nil
		}
	}
	return Result{}, fmt.Errorf("%s: %w", RunwareID, ErrNoMedia)
}

// dimensions resolves width/height from explicit values or the aspect ratio,
// rounded to multiples of 64.
func dimensions(req Request, long int) (int, int) {
	if req.Width > 0 && req.Height > 0 {
		return round64(req.Width), round64(req.Height)
	}
	switch req.AspectRatio {
	case "16:9":
		return long, round64(long * 9 / 16)
	case "9:16":
		return round64(long * 9 / 16), long
	case "4:3":
		return long, round64(long * 3 / 4)
	case "3:4":
		return round64(long * 3 / 4), long
	case "3:2":
		return long, round64(long * 2 / 3)
	case "2:3":
		return round64(long * 2 / 3), long
	case "21:9":
		return long, round64(long * 9 / 21)
	default:
		return long, long
	}
}

func round64(v int) int {
	if v < 64 {
		return 64
	}
	return (v + 32) / 64 * 64
}
