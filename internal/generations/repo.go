package generations

import (
	"context"
	"time"
)

// Repo defines persistence operations for generations.
type Repo interface {
	Create(ctx context.Context, g Generation) error
	// Get returns a user's live generation.
	Get(ctx context.Context, userID, id string) (Generation, error)
	// GetByID ignores ownership; used by workers.
	GetByID(ctx context.Context, id string) (Generation, error)
	List(ctx context.Context, userID string, filter ListFilter) ([]Generation, error)
	// Claim moves a queued generation, or a processing one last touched
	// before staleBefore, to processing.
	Claim(ctx context.Context, id string, staleBefore time.Time) (Generation, error)
	Complete(ctx context.Context, id string, c Completion) error
	Fail(ctx context.Context, id, code, message string) error
	SoftDelete(ctx context.Context, userID, id string) error
}
