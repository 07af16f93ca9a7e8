package generations

import (
	"time"

	"studio-backend/internal/engines"
)

const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Generation is one media generation request and its outcome.
type Generation struct {
	ID           string          `json:"id"`
	UserID       string          `json:"-"`
	Engine       string          `json:"engine"`
	Kind         engines.Kind    `json:"kind"`
	Prompt       string          `json:"prompt"`
	Params       engines.Request `json:"params"`
	Status       string          `json:"status"`
	ResultURL    string          `json:"resultUrl,omitempty"`
	StorageKey   string          `json:"-"`
	MIMEType     string          `json:"mimeType,omitempty"`
	TaskID       string          `json:"taskId,omitempty"`
	Cost         int             `json:"cost"`
	ErrorCode    string          `json:"errorCode,omitempty"`
	ErrorMessage string          `json:"errorMessage,omitempty"`
	RequestID    string          `json:"-"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
	CompletedAt  *time.Time      `json:"completedAt,omitempty"`
	DeletedAt    *time.Time      `json:"-"`
}

// HasContent reports whether the media was copied to the object store.
func (g Generation) HasContent() bool {
	return g.StorageKey != ""
}

// Terminal reports whether the generation reached a final state.
func (g Generation) Terminal() bool {
	return g.Status == StatusCompleted || g.Status == StatusFailed
}

// Completion holds the fields written when a generation succeeds.
type Completion struct {
	ResultURL   string
	StorageKey  string
	MIMEType    string
	TaskID      string
	Cost        int
	CompletedAt time.Time
}

// ListFilter narrows a user's generation history.
type ListFilter struct {
	Kind   engines.Kind
	Limit  int
	Offset int
}
