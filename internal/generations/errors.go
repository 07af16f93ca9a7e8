package generations

import "errors"

var (
	ErrNotFound = errors.New("not found")
	// ErrNotClaimable means the generation is finished, deleted or held by another worker.
	ErrNotClaimable = errors.New("generation not claimable")
	ErrNoContent    = errors.New("generation has no stored content")
)

const (
	ErrorCodeStorage  = "storage_error"
	ErrorCodeQueue    = "queue_error"
	ErrorCodeInternal = "internal_error"
)
