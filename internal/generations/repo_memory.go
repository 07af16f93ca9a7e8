package generations

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo stores generations in memory and is safe for concurrent use.
type MemoryRepo struct {
	mu   sync.RWMutex
	byID map[string]Generation
	now  func() time.Time
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		byID: make(map[string]Generation),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Create stores the generation.
func (r *MemoryRepo) Create(ctx context.Context, g Generation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if g.UpdatedAt.IsZero() {
		g.UpdatedAt = g.CreatedAt
	}
	r.byID[g.ID] = g
	return nil
}

// Get returns a live generation owned by userID.
func (r *MemoryRepo) Get(ctx context.Context, userID, id string) (Generation, error) {
	g, err := r.GetByID(ctx, id)
	if err != nil {
		return Generation{}, err
	}
	if g.UserID != userID {
		return Generation{}, ErrNotFound
	}
	return g, nil
}

// GetByID returns a live generation by id.
func (r *MemoryRepo) GetByID(ctx context.Context, id string) (Generation, error) {
	if err := ctx.Err(); err != nil {
		return Generation{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.byID[id]
	if !ok || g.DeletedAt != nil {
		return Generation{}, ErrNotFound
	}
	return g, nil
}

// List returns the user's live generations, newest first.
func (r *MemoryRepo) List(ctx context.Context, userID string, filter ListFilter) ([]Generation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	var out []Generation
	for _, g := range r.byID {
		if g.UserID != userID || g.DeletedAt != nil {
			continue
		}
		if filter.Kind != "" && g.Kind != filter.Kind {
			continue
		}
		out = append(out, g)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if filter.Offset >= len(out) {
		return []Generation{}, nil
	}
	out = out[filter.Offset:]
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out, nil
}

// Claim marks the generation as processing.
func (r *MemoryRepo) Claim(ctx context.Context, id string, staleBefore time.Time) (Generation, error) {
	if err := ctx.Err(); err != nil {
		return Generation{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.byID[id]
	if !ok || g.DeletedAt != nil {
		return Generation{}, ErrNotClaimable
	}
	switch {
	case g.Status == StatusQueued:
	case g.Status == StatusProcessing && g.UpdatedAt.Before(staleBefore):
	default:
		return Generation{}, ErrNotClaimable
	}
	g.Status = StatusProcessing
	g.UpdatedAt = r.now()
	r.byID[id] = g
	return g, nil
}

// Complete records a successful outcome.
func (r *MemoryRepo) Complete(ctx context.Context, id string, c Completion) error {
	return r.update(ctx, id, func(g *Generation) {
		g.Status = StatusCompleted
		g.ResultURL = c.ResultURL
		g.StorageKey = c.StorageKey
		g.MIMEType = c.MIMEType
		g.TaskID = c.TaskID
		g.Cost = c.Cost
		g.ErrorCode = ""
		g.ErrorMessage = ""
		completedAt := c.CompletedAt
		g.CompletedAt = &completedAt
	})
}

// Fail records a failed outcome.
func (r *MemoryRepo) Fail(ctx context.Context, id, code, message string) error {
	return r.update(ctx, id, func(g *Generation) {
		g.Status = StatusFailed
		g.ErrorCode = code
		g.ErrorMessage = message
		g.Cost = 0
		now := r.now()
		g.CompletedAt = &now
	})
}

// SoftDelete hides a user's generation.
func (r *MemoryRepo) SoftDelete(ctx context.Context, userID, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.byID[id]
	if !ok || g.UserID != userID || g.DeletedAt != nil {
		return ErrNotFound
	}
	now := r.now()
	g.DeletedAt = &now
	g.UpdatedAt = now
	r.byID[id] = g
	return nil
}

func (r *MemoryRepo) update(ctx context.Context, id string, fn func(*Generation)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.byID[id]
	if !ok {
		return ErrNotFound
	}
	fn(&g)
	g.UpdatedAt = r.now()
	r.byID[id] = g
	return nil
}
