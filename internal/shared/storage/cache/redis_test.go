package cache

import (
	"context"
	"testing"
)

func TestConnectRejectsBadURL(t *testing.T) {
	if _, err := Connect(context.Background(), "not-a-redis-url"); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestConnectFailsWhenUnreachable(t *testing.T) {
	if _, err := Connect(context.Background(), "redis://127.0.0.1:1/0"); err == nil {
		t.Fatalf("expected ping error")
	}
}
