package generations

import (
	"context"
	"errors"
	"sync"
	"testing"

	"studio-backend/internal/credits"
	"studio-backend/internal/engines"
	"studio-backend/internal/queue"
	"studio-backend/internal/shared/storage/object/local"
)

type fakeEngine struct {
	info engines.Info

	mu    sync.Mutex
	calls int
	fn    func(req engines.Request) (engines.Result, error)
}

func newFakeEngine(id string, kind engines.Kind, fn func(engines.Request) (engines.Result, error)) *fakeEngine {
	return &fakeEngine{
		info: engines.Info{ID: id, Kind: kind, Configured: true, SupportsImageInput: true},
		fn:   fn,
	}
}

func (f *fakeEngine) ID() string         { return f.info.ID }
func (f *fakeEngine) Kind() engines.Kind { return f.info.Kind }
func (f *fakeEngine) Info() engines.Info { return f.info }

func (f *fakeEngine) Generate(ctx context.Context, req engines.Request) (engines.Result, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.fn(req)
}

func (f *fakeEngine) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeQueue struct {
	mu   sync.Mutex
	msgs []queue.Message
	err  error
}

func (q *fakeQueue) Send(ctx context.Context, msg queue.Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.msgs = append(q.msgs, msg)
	return nil
}

type fixture struct {
	svc     *Service
	repo    *MemoryRepo
	credits *credits.Service
}

func newFixture(t *testing.T, signup int, list ...engines.Engine) fixture {
	t.Helper()
	repo := NewMemoryRepo()
	creditSvc := credits.NewService(signup)
	svc := NewService(repo, engines.NewRegistry(list...), creditSvc, local.New(t.TempDir()))
	return fixture{svc: svc, repo: repo, credits: creditSvc}
}

func (f fixture) balance(t *testing.T, userID string) int {
	t.Helper()
	acct, err := f.credits.Get(context.Background(), userID)
	if err != nil {
		t.Fatalf("credits.Get: %v", err)
	}
	return acct.Balance
}

func videoBytes(engines.Request) (engines.Result, error) {
	return engines.Result{Data: []byte("fake-mp4"), MIMEType: "video/mp4", TaskID: "task-1"}, nil
}

func failing(err error) func(engines.Request) (engines.Result, error) {
	return func(engines.Request) (engines.Result, error) { return engines.Result{}, err }
}

var errBoom = errors.New("boom")
