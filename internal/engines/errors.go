package engines

import (
	"errors"
	"fmt"
	"net/http"

	"studio-backend/internal/taskpoll"
)

var (
	ErrUnknownEngine  = errors.New("unknown engine")
	ErrMissingAPIKey  = errors.New("api key not configured")
	ErrSafetyFiltered = errors.New("content blocked by provider safety filter")
	ErrNoMedia        = errors.New("provider response contained no media")
	ErrInvalidRequest = errors.New("invalid generation request")
)

// APIError is a non-2xx vendor response.
type APIError struct {
	Engine  string
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: upstream status %d", e.Engine, e.Status)
	}
	return fmt.Sprintf("%s: upstream status %d: %s", e.Engine, e.Status, e.Message)
}

// Temporary reports whether retrying the same call may succeed.
func (e *APIError) Temporary() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// ValidationError names the offending field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidRequest }

func missingKey(engine string) error {
	return fmt.Errorf("%s: %w", engine, ErrMissingAPIKey)
}

func safetyFiltered(engine, detail string) error {
	if detail == "" {
		return fmt.Errorf("%s: %w", engine, ErrSafetyFiltered)
	}
	return fmt.Errorf("%s: %w: %s", engine, ErrSafetyFiltered, detail)
}

// ErrorCode maps an engine error to a stable machine-readable code.
func ErrorCode(err error) string {
	var apiErr *APIError
	var vErr *ValidationError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &vErr), errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, ErrMissingAPIKey):
		return "missing_api_key"
	case errors.Is(err, ErrSafetyFiltered):
		return "safety_filtered"
	case errors.Is(err, ErrNoMedia):
		return "no_media"
	case errors.Is(err, ErrUnknownEngine):
		return "unknown_engine"
	case errors.Is(err, taskpoll.ErrTimeout):
		return "timeout"
	case errors.As(err, &apiErr):
		return "upstream_error"
	default:
		return "generation_failed"
	}
}
