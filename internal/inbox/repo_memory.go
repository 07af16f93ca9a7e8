package inbox

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo stores messages in memory and is safe for concurrent use.
type MemoryRepo struct {
	mu   sync.RWMutex
	byID map[string]Message
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{byID: make(map[string]Message)}
}

func (r *MemoryRepo) Create(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[msg.ID] = msg
	return nil
}

func (r *MemoryRepo) Get(ctx context.Context, id string) (Message, error) {
	if err := ctx.Err(); err != nil {
		return Message{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	msg, ok := r.byID[id]
	if !ok || msg.DeletedAt != nil {
		return Message{}, ErrNotFound
	}
	return msg, nil
}

func (r *MemoryRepo) ListByUser(ctx context.Context, userID string, limit int) ([]Message, error) {
	return r.filter(ctx, func(m Message) bool { return m.UserID == userID }, limit, 0)
}

func (r *MemoryRepo) List(ctx context.Context, status string, limit, offset int) ([]Message, error) {
	return r.filter(ctx, func(m Message) bool { return status == "" || m.Status == status }, limit, offset)
}

func (r *MemoryRepo) filter(ctx context.Context, keep func(Message) bool, limit, offset int) ([]Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	out := []Message{}
	for _, m := range r.byID {
		if m.DeletedAt == nil && keep(m) {
			out = append(out, m)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if offset >= len(out) {
		return []Message{}, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepo) MarkRead(ctx context.Context, id string, at time.Time) error {
	return r.update(ctx, id, func(m *Message) {
		if m.ReadAt == nil {
			m.ReadAt = &at
		}
		if m.Status == StatusOpen {
			m.Status = StatusRead
		}
	})
}

func (r *MemoryRepo) Reply(ctx context.Context, id, reply, repliedBy string, at time.Time) error {
	return r.update(ctx, id, func(m *Message) {
		m.Reply = reply
		m.RepliedBy = repliedBy
		m.RepliedAt = &at
		if m.ReadAt == nil {
			m.ReadAt = &at
		}
		m.Status = StatusReplied
	})
}

func (r *MemoryRepo) SoftDelete(ctx context.Context, id string, at time.Time) error {
	return r.update(ctx, id, func(m *Message) { m.DeletedAt = &at })
}

func (r *MemoryRepo) update(ctx context.Context, id string, fn func(*Message)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	msg, ok := r.byID[id]
	if !ok || msg.DeletedAt != nil {
		return ErrNotFound
	}
	fn(&msg)
	r.byID[id] = msg
	return nil
}
