package credits

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryStore struct {
	mu       sync.RWMutex
	signup   int
	accounts map[string]Account
	entries  map[string][]Entry
}

func newMemoryStore(signup int) *memoryStore {
	return &memoryStore{
		signup:   signup,
		accounts: make(map[string]Account),
		entries:  make(map[string][]Entry),
	}
}

func (s *memoryStore) Get(ctx context.Context, userID string) (Account, error) {
	if err := ctx.Err(); err != nil {
		return Account{}, err
	}
	s.mu.RLock()
	acct, ok := s.accounts[userID]
	s.mu.RUnlock()
	if ok {
		return acct, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensureLocked(userID), nil
}

func (s *memoryStore) ensureLocked(userID string) Account {
	if acct, ok := s.accounts[userID]; ok {
		return acct
	}
	now := time.Now().UTC()
	acct := Account{UserID: userID, Plan: defaultPlan, Balance: s.signup, UpdatedAt: now}
	s.accounts[userID] = acct
	if s.signup > 0 {
		s.entries[userID] = append(s.entries[userID], Entry{
			ID:           uuid.NewString(),
			UserID:       userID,
			Delta:        s.signup,
			BalanceAfter: s.signup,
			Reason:       ReasonSignup,
			CreatedAt:    now,
		})
	}
	return acct
}

func (s *memoryStore) Apply(ctx context.Context, userID string, delta int, reason, reference string) (Account, error) {
	if err := ctx.Err(); err != nil {
		return Account{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	acct := s.ensureLocked(userID)
	if reference != "" {
		for _, e := range s.entries[userID] {
			if e.Reason == reason && e.Reference == reference {
				return acct, ErrAlreadyApplied
			}
		}
	}
	if acct.Balance+delta < 0 {
		return acct, ErrInsufficientCredits
	}
	now := time.Now().UTC()
	acct.Balance += delta
	acct.UpdatedAt = now
	s.accounts[userID] = acct
	s.entries[userID] = append(s.entries[userID], Entry{
		ID:           uuid.NewString(),
		UserID:       userID,
		Delta:        delta,
		BalanceAfter: acct.Balance,
		Reason:       reason,
		Reference:    reference,
		CreatedAt:    now,
	})
	return acct, nil
}

func (s *memoryStore) History(ctx context.Context, userID string, limit int) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.entries[userID]
	out := make([]Entry, 0, limit)
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, all[i])
	}
	return out, nil
}
