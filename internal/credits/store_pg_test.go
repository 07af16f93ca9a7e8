package credits

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestPGStoreApplyConsumes(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	store := NewPGStore(db, 20)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT plan, balance, updated_at FROM credit_accounts WHERE user_id = \\$1 FOR UPDATE").
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"plan", "balance", "updated_at"}).AddRow("free", 12, now))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("user-1", ReasonGeneration, "gen-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec("UPDATE credit_accounts SET balance").
		WithArgs(6, sqlmock.AnyArg(), "user-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO credit_entries").
		WithArgs(sqlmock.AnyArg(), "user-1", -6, 6, ReasonGeneration, "gen-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	acct, err := store.Apply(context.Background(), "user-1", -6, ReasonGeneration, "gen-1")
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if acct.Balance != 6 {
		t.Fatalf("balance = %d", acct.Balance)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGStoreApplyInsufficientRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	store := NewPGStore(db, 20)
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT plan, balance, updated_at FROM credit_accounts").
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"plan", "balance", "updated_at"}).AddRow("free", 3, time.Now()))
	mock.ExpectRollback()

	_, err = store.Apply(context.Background(), "user-1", -8, ReasonGeneration, "")
	if !errors.Is(err, ErrInsufficientCredits) {
		t.Fatalf("expected ErrInsufficientCredits, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGStoreGetOpensAccount(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	store := NewPGStore(db, 20)
	mock.ExpectQuery("SELECT user_id, plan, balance, updated_at FROM credit_accounts").
		WithArgs("user-2").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "plan", "balance", "updated_at"}))
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT plan, balance, updated_at FROM credit_accounts").
		WithArgs("user-2").
		WillReturnRows(sqlmock.NewRows([]string{"plan", "balance", "updated_at"}))
	mock.ExpectExec("INSERT INTO credit_accounts").
		WithArgs("user-2", "free", 20, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO credit_entries").
		WithArgs(sqlmock.AnyArg(), "user-2", 20, 20, ReasonSignup, nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	acct, err := store.Get(context.Background(), "user-2")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if acct.Balance != 20 || acct.Plan != "free" {
		t.Fatalf("unexpected account %+v", acct)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}
