package inbox

import (
	"context"
	"time"
)

// Repo defines persistence operations for support messages.
type Repo interface {
	Create(ctx context.Context, msg Message) error
	Get(ctx context.Context, id string) (Message, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]Message, error)
	// List returns live messages for admins, optionally by status.
	List(ctx context.Context, status string, limit, offset int) ([]Message, error)
	MarkRead(ctx context.Context, id string, at time.Time) error
	Reply(ctx context.Context, id, reply, repliedBy string, at time.Time) error
	SoftDelete(ctx context.Context, id string, at time.Time) error
}
