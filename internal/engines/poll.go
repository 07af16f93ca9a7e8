package engines

import (
	"context"
	"errors"

	"studio-backend/internal/taskpoll"
)

// pollError classifies a status-check failure: throttling, 5xx and transport
// errors stay inside the attempt budget, everything else ends polling.
func pollError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.Temporary() {
			return taskpoll.Transient(err)
		}
		return err
	}
	return taskpoll.Transient(err)
}
