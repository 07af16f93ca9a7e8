package engines

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"studio-backend/internal/taskpoll"
)

const (
	KlingAIID           = "klingai"
	klingDefaultModel   = "kling-v1-6"
	klingTokenLifetime  = 30 * time.Minute
	klingTokenClockSkew = 5 * time.Second
)

// KlingAI generates video through the Kling open API. Requests are signed
// with a short-lived HS256 token built from the access and secret keys.
type KlingAI struct {
	base
	opts      Options
	accessKey string
	secretKey string
	client    *vendorClient
	now       func() time.Time
}

func NewKlingAI(accessKey, secretKey string, opts Options) *KlingAI {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api-singapore.klingai.com"
	}
	k := &KlingAI{
		base: base{info: Info{
			ID:                 KlingAIID,
			Kind:               KindVideo,
			Label:              "Kling AI",
			Vendor:             "Kuaishou",
			Configured:         accessKey != "" && secretKey != "",
			Async:              true,
			SupportsImageInput: true,
			MinDurationSeconds: 5,
			MaxDurationSeconds: 10,
			DefaultModel:       klingDefaultModel,
		}},
		opts:      opts,
		accessKey: accessKey,
		secretKey: secretKey,
		now:       time.Now,
	}
	k.client = newVendorClient(KlingAIID, opts.BaseURL, opts.httpClient(), func(r *http.Request) error {
		token, err := k.Token()
		if err != nil {
			return err
		}
		r.Header.Set("Authorization", "Bearer "+token)
		return nil
	})
	return k
}

// Token signs an API token valid for thirty minutes.
func (k *KlingAI) Token() (string, error) {
	if k.accessKey == "" || k.secretKey == "" {
		return "", missingKey(KlingAIID)
	}
	now := k.now()
	claims := jwt.RegisteredClaims{
		Issuer:    k.accessKey,
		ExpiresAt: jwt.NewNumericDate(now.Add(klingTokenLifetime)),
		NotBefore: jwt.NewNumericDate(now.Add(-klingTokenClockSkew)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(k.secretKey))
	if err != nil {
		return "", fmt.Errorf("%s: sign token: %w", KlingAIID, err)
	}
	return signed, nil
}

type klingEnvelope struct {
	Code      int    `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
	Data      struct {
		TaskID        string `json:"task_id"`
		TaskStatus    string `json:"task_status"`
		TaskStatusMsg string `json:"task_status_msg"`
		TaskResult    struct {
			Videos []struct {
				ID       string `json:"id"`
				URL      string `json:"url"`
				Duration string `json:"duration"`
			} `json:"videos"`
		} `json:"task_result"`
	} `json:"data"`
}

type klingRequest struct {
	ModelName      string `json:"model_name"`
	Prompt         string `json:"prompt"`
	NegativePrompt string `json:"negative_prompt,omitempty"`
	Image          string `json:"image,omitempty"`
	Duration       string `json:"duration"`
	AspectRatio    string `json:"aspect_ratio,omitempty"`
	Mode           string `json:"mode"`
}

func (k *KlingAI) Generate(ctx context.Context, req Request) (Result, error) {
	if !k.info.Configured {
		return Result{}, missingKey(KlingAIID)
	}

	endpoint := "/v1/videos/text2video"
	if req.ImageURL != "" {
		endpoint = "/v1/videos/image2video"
	}
	model := req.Model
	if model == "" {
		model = klingDefaultModel
	}
	duration := 5
	if req.DurationSeconds > 5 {
		duration = 10
	}
	body := klingRequest{
		ModelName:      model,
		Prompt:         req.Prompt,
		NegativePrompt: req.NegativePrompt,
		Image:          req.ImageURL,
		Duration:       strconv.Itoa(duration),
		AspectRatio:    req.AspectRatio,
		Mode:           "std",
	}
	if req.ImageURL != "" {
		body.AspectRatio = ""
	}

	resp, err := k.client.do(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return Result{}, err
	}
	created, err := parseResponse[klingEnvelope](KlingAIID, resp)
	if err != nil {
		return Result{}, err
	}
	if created.Code != 0 {
		return Result{}, klingError(created)
	}
	taskID := created.Data.TaskID

	st, err := taskpoll.Poll(ctx, k.opts.pollOptions(KlingAIID), func(ctx context.Context, _ int) (taskpoll.Status, error) {
		resp, err := k.client.do(ctx, http.MethodGet, endpoint+"/"+taskID, nil)
		if err != nil {
			return taskpoll.Status{}, pollError(ctx, err)
		}
		cur, err := parseResponse[klingEnvelope](KlingAIID, resp)
		if err != nil {
			return taskpoll.Status{}, pollError(ctx, err)
		}
		if cur.Code != 0 {
			return taskpoll.Status{}, klingError(cur)
		}
		switch cur.Data.TaskStatus {
		case "succeed":
			if len(cur.Data.TaskResult.Videos) == 0 {
				return taskpoll.Status{State: cur.Data.TaskStatus, Err: fmt.Errorf("%s: %w", KlingAIID, ErrNoMedia)}, nil
			}
			return taskpoll.Status{Done: true, URL: cur.Data.TaskResult.Videos[0].URL, State: cur.Data.TaskStatus}, nil
		case "failed":
			return taskpoll.Status{State: cur.Data.TaskStatus, Err: fmt.Errorf("%s: task failed: %s", KlingAIID, cur.Data.TaskStatusMsg)}, nil
		default:
			return taskpoll.Status{State: cur.Data.TaskStatus}, nil
		}
	})
	if err != nil {
		return Result{}, err
	}
	return Result{URL: st.URL, MIMEType: "video/mp4", TaskID: taskID}, nil
}

// klingError maps business codes; 1301 is the content-security rejection.
func klingError(env klingEnvelope) error {
	if env.Code == 1301 {
		return safetyFiltered(KlingAIID, env.Message)
	}
	return fmt.Errorf("%s: code %d: %s", KlingAIID, env.Code, env.Message)
}
