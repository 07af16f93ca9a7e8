package engines

import (
	"net/http"

	"studio-backend/internal/shared/config"
	"studio-backend/internal/taskpoll"
)

// NewRegistryFromConfig registers every supported engine. Engines without
// credentials are still listed with Configured=false and fail with
// ErrMissingAPIKey when called.
func NewRegistryFromConfig(v config.Vendors, p config.Polling, client *http.Client, onPoll func(engine string, attempt int, state string)) *Registry {
	poll := taskpoll.Options{Interval: p.Interval, MaxAttempts: p.MaxAttempts}
	opts := func(key, baseURL string) Options {
		return Options{APIKey: key, BaseURL: baseURL, HTTPClient: client, Poll: poll, OnPoll: onPoll}
	}
	return NewRegistry(
		NewSora(opts(v.OpenAIAPIKey, v.OpenAIBaseURL)),
		NewDalle(opts(v.OpenAIAPIKey, v.OpenAIBaseURL)),
		NewKlingAI(v.KlingAccessKey, v.KlingSecretKey, opts("", v.KlingBaseURL)),
		NewSeedance(opts(v.ArkAPIKey, v.ArkBaseURL)),
		NewSeedream(opts(v.ArkAPIKey, v.ArkBaseURL)),
		NewRunware(opts(v.RunwareAPIKey, v.RunwareBaseURL)),
		NewDeAPI(opts(v.DeAPIKey, v.DeAPIBaseURL)),
		NewGeminiImage(opts(v.GeminiAPIKey, v.GeminiBaseURL)),
		NewGeminiTTS(opts(v.GeminiAPIKey, v.GeminiBaseURL)),
		NewElevenLabs(opts(v.ElevenLabsAPIKey, v.ElevenLabsURL)),
	)
}
