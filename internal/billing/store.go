package billing

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"
)

const (
	SessionPending   = "pending"
	SessionFulfilled = "fulfilled"
)

// ErrSessionNotFound is returned for unknown checkout sessions.
var ErrSessionNotFound = errors.New("checkout session not found")

// Session records a checkout session we created.
type Session struct {
	ID          string
	UserID      string
	PackID      string
	Credits     int
	Status      string
	CreatedAt   time.Time
	FulfilledAt *time.Time
}

// SessionStore persists checkout sessions.
type SessionStore interface {
	Create(ctx context.Context, s Session) error
	Get(ctx context.Context, id string) (Session, error)
	MarkFulfilled(ctx context.Context, id string, at time.Time) error
}

// MemoryStore keeps sessions in memory.
type MemoryStore struct {
	mu   sync.Mutex
	byID map[string]Session
}

// NewMemoryStore constructs a MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[string]Session)}
}

func (m *MemoryStore) Create(ctx context.Context, s Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[s.ID] = s
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (Session, error) {
	if err := ctx.Err(); err != nil {
		return Session{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byID[id]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	return s, nil
}

func (m *MemoryStore) MarkFulfilled(ctx context.Context, id string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byID[id]
	if !ok {
		return ErrSessionNotFound
	}
	if s.FulfilledAt == nil {
		s.FulfilledAt = &at
	}
	s.Status = SessionFulfilled
	m.byID[id] = s
	return nil
}

// PGStore persists sessions in billing_sessions.
type PGStore struct {
	DB *sql.DB
}

func (p *PGStore) Create(ctx context.Context, s Session) error {
	const query = `
INSERT INTO billing_sessions (session_id, user_id, pack_id, credits, status, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (session_id) DO NOTHING`
	_, err := p.DB.ExecContext(ctx, query, s.ID, s.UserID, s.PackID, s.Credits, s.Status, s.CreatedAt)
	return err
}

func (p *PGStore) Get(ctx context.Context, id string) (Session, error) {
	const query = `
SELECT session_id, user_id, pack_id, credits, status, created_at, fulfilled_at
FROM billing_sessions
WHERE session_id = $1`
	var s Session
	var fulfilledAt sql.NullTime
	err := p.DB.QueryRowContext(ctx, query, id).Scan(&s.ID, &s.UserID, &s.PackID, &s.Credits, &s.Status, &s.CreatedAt, &fulfilledAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, ErrSessionNotFound
		}
		return Session{}, err
	}
	if fulfilledAt.Valid {
		t := fulfilledAt.Time
		s.FulfilledAt = &t
	}
	return s, nil
}

func (p *PGStore) MarkFulfilled(ctx context.Context, id string, at time.Time) error {
	const query = `
UPDATE billing_sessions
SET status = 'fulfilled', fulfilled_at = COALESCE(fulfilled_at, $2)
WHERE session_id = $1`
	res, err := p.DB.ExecContext(ctx, query, id, at)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrSessionNotFound
	}
	return nil
}
