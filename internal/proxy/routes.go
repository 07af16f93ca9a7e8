package proxy

import (
	"encoding/json"
	"net/http"
	"strings"

	"studio-backend/internal/engines"
	"studio-backend/internal/shared/config"
)

const (
	arkTasksPath     = "/api/v3/contents/generations/tasks"
	geminiTTSModel   = "gemini-2.5-flash-preview-tts"
	klingText2Video  = "/v1/videos/text2video"
	klingImage2Video = "/v1/videos/image2video"
)

// Route is one pass-through endpoint.
type Route struct {
	// Name labels logs and metrics.
	Name string
	// Path is mounted under /api; it may end in /:taskId.
	Path       string
	Method     string
	Upstream   string
	Credential Credential
	// Target returns the upstream path for a request body and task id.
	Target func(body []byte, taskID string) string
}

func fixed(path string) func([]byte, string) string {
	return func([]byte, string) string { return path }
}

func task(prefix string) func([]byte, string) string {
	return func(_ []byte, taskID string) string { return prefix + "/" + taskID }
}

// klingTarget picks image2video when the payload carries an image.
func klingTarget(body []byte, _ string) string {
	var payload struct {
		Image string `json:"image"`
	}
	if json.Unmarshal(body, &payload) == nil && strings.TrimSpace(payload.Image) != "" {
		return klingImage2Video
	}
	return klingText2Video
}

// DefaultRoutes builds the route table from vendor configuration.
func DefaultRoutes(v config.Vendors, kling *engines.KlingAI) []Route {
	openAI := Bearer(v.OpenAIAPIKey)
	ark := Bearer(v.ArkAPIKey)
	klingCred := SignedToken(false, nil)
	if kling != nil {
		klingCred = SignedToken(kling.Info().Configured, kling.Token)
	}

	return []Route{
		{Name: "sora", Path: "/sora", Method: http.MethodPost, Upstream: v.OpenAIBaseURL, Credential: openAI, Target: fixed("/v1/videos")},
		{Name: "klingai", Path: "/klingai", Method: http.MethodPost, Upstream: v.KlingBaseURL, Credential: klingCred, Target: klingTarget},
		{Name: "seedance", Path: "/seedance", Method: http.MethodPost, Upstream: v.ArkBaseURL, Credential: ark, Target: fixed(arkTasksPath)},
		{Name: "seedance_task", Path: "/seedance/:taskId", Method: http.MethodGet, Upstream: v.ArkBaseURL, Credential: ark, Target: task(arkTasksPath)},
		{Name: "seedream", Path: "/seedream", Method: http.MethodPost, Upstream: v.ArkBaseURL, Credential: ark, Target: fixed("/api/v3/images/generations")},
		{Name: "seedream_task", Path: "/seedream/:taskId", Method: http.MethodGet, Upstream: v.ArkBaseURL, Credential: ark, Target: task(arkTasksPath)},
		{Name: "runware", Path: "/runware", Method: http.MethodPost, Upstream: v.RunwareBaseURL, Credential: Bearer(v.RunwareAPIKey), Target: fixed("/v1")},
		{Name: "deapi", Path: "/deapi", Method: http.MethodPost, Upstream: v.DeAPIBaseURL, Credential: Bearer(v.DeAPIKey), Target: fixed("/api/v1/client/txt2img")},
		{Name: "dalle3", Path: "/dalle3", Method: http.MethodPost, Upstream: v.OpenAIBaseURL, Credential: openAI, Target: fixed("/v1/images/generations")},
		{Name: "chatgpt", Path: "/chatgpt", Method: http.MethodPost, Upstream: v.OpenAIBaseURL, Credential: openAI, Target: fixed("/v1/chat/completions")},
		{Name: "tts_gemini", Path: "/tts-gemini", Method: http.MethodPost, Upstream: v.GeminiBaseURL, Credential: HeaderKey("x-goog-api-key", v.GeminiAPIKey), Target: fixed("/v1beta/models/" + geminiTTSModel + ":generateContent")},
	}
}
