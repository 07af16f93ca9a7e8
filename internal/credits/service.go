package credits

import (
	"context"
	"strings"
)

type store interface {
	Get(ctx context.Context, userID string) (Account, error)
	Apply(ctx context.Context, userID string, delta int, reason, reference string) (Account, error)
	History(ctx context.Context, userID string, limit int) ([]Entry, error)
}

// Service manages credit balances via an underlying store.
type Service struct {
	store store
}

// NewService constructs a Service with an in-memory store. New accounts start
// with signupCredits.
func NewService(signupCredits int) *Service {
	return &Service{store: newMemoryStore(signupCredits)}
}

// NewPostgresService constructs a Service backed by Postgres.
func NewPostgresService(pgStore store) *Service {
	return &Service{store: pgStore}
}

// Get returns the account, opening it with the signup grant if absent.
func (s *Service) Get(ctx context.Context, userID string) (Account, error) {
	return s.store.Get(ctx, userID)
}

// CanConsume reports whether the user can spend n credits.
func (s *Service) CanConsume(ctx context.Context, userID string, n int) (bool, Account, error) {
	acct, err := s.store.Get(ctx, userID)
	if err != nil {
		return false, Account{}, err
	}
	if n <= 0 {
		return true, acct, nil
	}
	return acct.Balance >= n, acct, nil
}

// Consume atomically deducts n credits. reference makes the charge
// idempotent: a repeat returns ErrAlreadyApplied.
func (s *Service) Consume(ctx context.Context, userID string, n int, reference string) (Account, error) {
	if n <= 0 {
		return s.store.Get(ctx, userID)
	}
	return s.store.Apply(ctx, userID, -n, ReasonGeneration, strings.TrimSpace(reference))
}

// Refund returns n credits reserved under reference. Like Consume it is
// idempotent per reference.
func (s *Service) Refund(ctx context.Context, userID string, n int, reference string) (Account, error) {
	if n <= 0 {
		return s.store.Get(ctx, userID)
	}
	return s.store.Apply(ctx, userID, n, ReasonRefund, strings.TrimSpace(reference))
}

// Grant adds n credits.
func (s *Service) Grant(ctx context.Context, userID string, n int, reason, reference string) (Account, error) {
	if n <= 0 {
		return Account{}, ErrInvalidAmount
	}
	if reason == "" {
		reason = ReasonAdminGrant
	}
	return s.store.Apply(ctx, userID, n, reason, strings.TrimSpace(reference))
}

// History returns the most recent ledger entries, newest first.
func (s *Service) History(ctx context.Context, userID string, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.store.History(ctx, userID, limit)
}
