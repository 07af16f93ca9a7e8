package credits

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

type pgStore struct {
	DB     *sql.DB
	signup int
}

// NewPGStore constructs a Postgres-backed credit store.
func NewPGStore(db *sql.DB, signupCredits int) *pgStore {
	return &pgStore{DB: db, signup: signupCredits}
}

func (s *pgStore) Get(ctx context.Context, userID string) (acct Account, err error) {
	row := s.DB.QueryRowContext(ctx, `
SELECT user_id, plan, balance, updated_at FROM credit_accounts WHERE user_id = $1`, userID)
	err = row.Scan(&acct.UserID, &acct.Plan, &acct.Balance, &acct.UpdatedAt)
	if err == nil {
		return acct, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Account{}, err
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return Account{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()
	acct, err = s.lockAndEnsure(ctx, tx, userID)
	if err != nil {
		return Account{}, err
	}
	if err = tx.Commit(); err != nil {
		return Account{}, err
	}
	return acct, nil
}

func (s *pgStore) Apply(ctx context.Context, userID string, delta int, reason, reference string) (acct Account, err error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return Account{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	acct, err = s.lockAndEnsure(ctx, tx, userID)
	if err != nil {
		return Account{}, err
	}

	if reference != "" {
		var exists bool
		if err = tx.QueryRowContext(ctx, `
SELECT EXISTS (SELECT 1 FROM credit_entries WHERE user_id = $1 AND reason = $2 AND reference = $3)`,
			userID, reason, reference).Scan(&exists); err != nil {
			return Account{}, err
		}
		if exists {
			err = ErrAlreadyApplied
			return acct, err
		}
	}
	if acct.Balance+delta < 0 {
		err = ErrInsufficientCredits
		return acct, err
	}

	now := time.Now().UTC()
	acct.Balance += delta
	acct.UpdatedAt = now
	if _, err = tx.ExecContext(ctx, `
UPDATE credit_accounts SET balance = $1, updated_at = $2 WHERE user_id = $3`, acct.Balance, now, userID); err != nil {
		return Account{}, err
	}
	if err = insertEntry(ctx, tx, Entry{
		ID:           uuid.NewString(),
		UserID:       userID,
		Delta:        delta,
		BalanceAfter: acct.Balance,
		Reason:       reason,
		Reference:    reference,
		CreatedAt:    now,
	}); err != nil {
		return Account{}, err
	}
	if err = tx.Commit(); err != nil {
		return Account{}, err
	}
	return acct, nil
}

func (s *pgStore) History(ctx context.Context, userID string, limit int) ([]Entry, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT id, user_id, delta, balance_after, reason, COALESCE(reference, ''), created_at
FROM credit_entries WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Delta, &e.BalanceAfter, &e.Reason, &e.Reference, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *pgStore) lockAndEnsure(ctx context.Context, tx *sql.Tx, userID string) (Account, error) {
	acct := Account{UserID: userID}
	row := tx.QueryRowContext(ctx, `
SELECT plan, balance, updated_at FROM credit_accounts WHERE user_id = $1 FOR UPDATE`, userID)
	err := row.Scan(&acct.Plan, &acct.Balance, &acct.UpdatedAt)
	if err == nil {
		return acct, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Account{}, err
	}

	now := time.Now().UTC()
	acct = Account{UserID: userID, Plan: defaultPlan, Balance: s.signup, UpdatedAt: now}
	// A concurrent first request may have opened the account already.
	res, err := tx.ExecContext(ctx, `
INSERT INTO credit_accounts (user_id, plan, balance, created_at, updated_at)
VALUES ($1, $2, $3, $4, $4) ON CONFLICT (user_id) DO NOTHING`, userID, acct.Plan, acct.Balance, now)
	if err != nil {
		return Account{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		row := tx.QueryRowContext(ctx, `
SELECT plan, balance, updated_at FROM credit_accounts WHERE user_id = $1 FOR UPDATE`, userID)
		if err := row.Scan(&acct.Plan, &acct.Balance, &acct.UpdatedAt); err != nil {
			return Account{}, err
		}
		return acct, nil
	}
	if s.signup > 0 {
		if err := insertEntry(ctx, tx, Entry{
			ID:           uuid.NewString(),
			UserID:       userID,
			Delta:        s.signup,
			BalanceAfter: s.signup,
			Reason:       ReasonSignup,
			CreatedAt:    now,
		}); err != nil {
			return Account{}, err
		}
	}
	return acct, nil
}

func insertEntry(ctx context.Context, tx *sql.Tx, e Entry) error {
	var ref any
	if e.Reference != "" {
		ref = e.Reference
	}
	_, err := tx.ExecContext(ctx, `
INSERT INTO credit_entries (id, user_id, delta, balance_after, reason, reference, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`, e.ID, e.UserID, e.Delta, e.BalanceAfter, e.Reason, ref, e.CreatedAt)
	return err
}
