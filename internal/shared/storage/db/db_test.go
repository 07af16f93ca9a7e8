package db

import (
	"context"
	"database/sql"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

// withMockOpen routes openDB to sqlmock and returns the mocks it created.
func withMockOpen(t *testing.T, monitorPings bool) *[]sqlmock.Sqlmock {
	t.Helper()
	var mocks []sqlmock.Sqlmock
	prev := openDB
	openDB = func(name, dsn string) (*sql.DB, error) {
		db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(monitorPings))
		if err != nil {
			return nil, err
		}
		mocks = append(mocks, mock)
		return db, nil
	}
	t.Cleanup(func() { openDB = prev })
	return &mocks
}

func resetSingleton() {
	singletonMu.Lock()
	singletonDB = nil
	singletonInFly = false
	singletonMu.Unlock()
}

func TestPingNilDatabaseIsHealthy(t *testing.T) {
	if err := Ping(context.Background(), nil); err != nil {
		t.Fatalf("nil database should be healthy, got %v", err)
	}
}

func TestPingReportsDatabaseState(t *testing.T) {
	database, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer database.Close()

	mock.ExpectPing()
	mock.ExpectPing().WillReturnError(errors.New("connection refused"))

	if err := Ping(context.Background(), database); err != nil {
		t.Fatalf("first ping: %v", err)
	}
	if err := Ping(context.Background(), database); err == nil {
		t.Fatalf("expected ping failure to surface")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestConnectRejectsEmptyURL(t *testing.T) {
	if _, err := Connect(context.Background(), "  ", DefaultServerOptions()); err == nil {
		t.Fatalf("expected error for empty DATABASE_URL")
	}
}

func TestConnectClosesPoolWhenPingFails(t *testing.T) {
	mocks := withMockOpen(t, true)
	prev := openDB
	openDB = func(name, dsn string) (*sql.DB, error) {
		db, err := prev(name, dsn)
		if err == nil {
			m := (*mocks)[len(*mocks)-1]
			m.ExpectPing().WillReturnError(errors.New("no route to host"))
			m.ExpectClose()
		}
		return db, err
	}

	if _, err := Connect(context.Background(), "postgres://studio", DefaultMigrateOptions()); err == nil {
		t.Fatalf("expected ping failure")
	}
	if err := (*mocks)[0].ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestOptionsFromEnvAppliesOverrides(t *testing.T) {
	withMockOpen(t, false)

	t.Setenv("DB_MAX_OPEN_CONNS", "7")
	t.Setenv("DB_MAX_IDLE_CONNS", "3")
	t.Setenv("DB_CONN_MAX_LIFETIME", "20m")
	t.Setenv("DB_CONN_MAX_IDLE_TIME", "45s")
	t.Setenv("DB_PING_TIMEOUT", "1s")

	opts := OptionsFromEnv(DefaultServerOptions())
	db, err := Connect(context.Background(), "postgres://studio", opts)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer db.Close()

	if got := db.Stats().MaxOpenConnections; got != 7 {
		t.Fatalf("MaxOpenConnections = %d, want 7", got)
	}
	want := Options{MaxOpenConns: 7, MaxIdleConns: 3, ConnMaxLifetime: 20 * time.Minute, ConnMaxIdleTime: 45 * time.Second, PingTimeout: time.Second}
	if opts != want {
		t.Fatalf("options = %+v, want %+v", opts, want)
	}
}

func TestOptionsFromEnvIgnoresInvalidValues(t *testing.T) {
	t.Setenv("DB_MAX_OPEN_CONNS", "many")
	t.Setenv("DB_PING_TIMEOUT", "soon")

	defaults := DefaultLambdaOptions()
	if got := OptionsFromEnv(defaults); got != defaults {
		t.Fatalf("options = %+v, want defaults %+v", got, defaults)
	}
}

func TestGetSingletonReusesPool(t *testing.T) {
	mocks := withMockOpen(t, false)
	resetSingleton()
	t.Cleanup(resetSingleton)

	db1, err := GetSingleton(context.Background(), "postgres://studio", DefaultLambdaOptions())
	if err != nil {
		t.Fatalf("GetSingleton first: %v", err)
	}
	db2, err := GetSingleton(context.Background(), "postgres://studio", DefaultLambdaOptions())
	if err != nil {
		t.Fatalf("GetSingleton second: %v", err)
	}
	if db1 != db2 || len(*mocks) != 1 {
		t.Fatalf("expected one shared pool, opened %d", len(*mocks))
	}
}

func TestGetSingletonRetriesAfterFailure(t *testing.T) {
	withMockOpen(t, false)
	var calls int32
	next := openDB
	openDB = func(name, dsn string) (*sql.DB, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return nil, errors.New("dns lookup failed")
		}
		return next(name, dsn)
	}
	resetSingleton()
	t.Cleanup(resetSingleton)

	if _, err := GetSingleton(context.Background(), "postgres://studio", DefaultLambdaOptions()); err == nil {
		t.Fatalf("expected first call to fail")
	}
	db, err := GetSingleton(context.Background(), "postgres://studio", DefaultLambdaOptions())
	if err != nil || db == nil {
		t.Fatalf("expected retry to succeed: %v", err)
	}
}
