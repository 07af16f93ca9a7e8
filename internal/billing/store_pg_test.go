package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestPGStoreGet(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	now := time.Now().UTC()
	mock.ExpectQuery("FROM billing_sessions").
		WithArgs("cs_1").
		WillReturnRows(sqlmock.NewRows([]string{"session_id", "user_id", "pack_id", "credits", "status", "created_at", "fulfilled_at"}).
			AddRow("cs_1", "google:1", "starter", 50, "pending", now, nil))

	store := &PGStore{DB: db}
	sess, err := store.Get(context.Background(), "cs_1")
	if err != nil || sess.Credits != 50 || sess.FulfilledAt != nil {
		t.Fatalf("Get = %+v, %v", sess, err)
	}
}

func TestPGStoreMarkFulfilledMissing(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	at := time.Now().UTC()
	mock.ExpectExec("UPDATE billing_sessions").
		WithArgs("cs_missing", at).
		WillReturnResult(sqlmock.NewResult(0, 0))

	store := &PGStore{DB: db}
	if err := store.MarkFulfilled(context.Background(), "cs_missing", at); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}
