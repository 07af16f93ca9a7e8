package generations

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"studio-backend/internal/credits"
	"studio-backend/internal/engines"
	"studio-backend/internal/queue"
	"studio-backend/internal/shared/metrics"
	"studio-backend/internal/shared/storage/object"
	"studio-backend/internal/shared/telemetry"
	"studio-backend/internal/shared/util"
)

const (
	defaultListLimit      = 20
	maxListLimit          = 100
	defaultStaleAfter     = 20 * time.Minute
	defaultProcessTimeout = 15 * time.Minute
	maxErrorMessage       = 500
)

// CreditSpender is the slice of the credits service generations depend on.
// Both calls are idempotent per reference, which is the generation id.
type CreditSpender interface {
	Consume(ctx context.Context, userID string, n int, reference string) (credits.Account, error)
	Refund(ctx context.Context, userID string, n int, reference string) (credits.Account, error)
}

// InsufficientCreditsError reports the balance a rejected generation saw.
type InsufficientCreditsError struct {
	Balance int
	Cost    int
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient credits: balance %d, cost %d", e.Balance, e.Cost)
}

func (e *InsufficientCreditsError) Unwrap() error { return credits.ErrInsufficientCredits }

// ErrLoginRequired rejects guest identities.
var ErrLoginRequired = errors.New("login required")

// CreateInput is a generation request as received from a client.
type CreateInput struct {
	Engine         string
	Request        engines.Request
	RequestID      string
	IdempotencyKey string
}

// EngineListing is an engine description with its credit price.
type EngineListing struct {
	engines.Info
	Credits int `json:"credits"`
}

// Service contains business logic for generations.
type Service struct {
	Repo    Repo
	Engines *engines.Registry
	Credits CreditSpender
	Store   object.ObjectStore
	// Queue dispatches work to cmd/worker. Nil runs generations in-process.
	Queue          queue.Client
	HTTPClient     *http.Client
	StaleAfter     time.Duration
	ProcessTimeout time.Duration
	PresignTTL     time.Duration

	idem     *idempotencyCache
	inflight sync.WaitGroup
	now      func() time.Time
}

// NewService constructs a Service. Optional collaborators are set on the
// returned value.
func NewService(repo Repo, registry *engines.Registry, creditSvc CreditSpender, store object.ObjectStore) *Service {
	return &Service{
		Repo:    repo,
		Engines: registry,
		Credits: creditSvc,
		Store:   store,
		idem:    newIdempotencyCache(0),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Create validates the request, reserves its cost, stores a queued
// generation and dispatches it. The bool reports an idempotent replay.
func (s *Service) Create(ctx context.Context, userID string, in CreateInput) (Generation, bool, error) {
	if userID == "" || strings.HasPrefix(userID, "guest:") {
		return Generation{}, false, ErrLoginRequired
	}
	if strings.TrimSpace(in.IdempotencyKey) == "" {
		g, err := s.create(ctx, userID, in)
		return g, false, err
	}

	var created Generation
	id, replayed, err := s.idem.do(userID, in.IdempotencyKey, func() (string, error) {
		g, err := s.create(ctx, userID, in)
		if err != nil {
			return "", err
		}
		created = g
		return g.ID, nil
	})
	if err != nil {
		return Generation{}, false, err
	}
	if !replayed {
		return created, false, nil
	}
	g, err := s.Repo.Get(ctx, userID, id)
	if errors.Is(err, ErrNotFound) {
		// Deleted since; the key may be used again.
		s.idem.forget(userID, in.IdempotencyKey)
		return s.Create(ctx, userID, in)
	}
	return g, true, err
}

func (s *Service) create(ctx context.Context, userID string, in CreateInput) (Generation, error) {
	engine, err := s.Engines.Get(strings.TrimSpace(in.Engine))
	if err != nil {
		return Generation{}, err
	}
	info := engine.Info()

	req := in.Request
	req.Prompt = strings.TrimSpace(req.Prompt)
	if err := engines.ValidateRequest(info, req); err != nil {
		return Generation{}, err
	}
	if !info.Configured {
		return Generation{}, fmt.Errorf("%s: %w", info.ID, engines.ErrMissingAPIKey)
	}

	cost := credits.Cost(info.ID)
	id := ulid.Make().String()
	// The cost is reserved up front and refunded if the generation fails.
	if s.Credits != nil && cost > 0 {
		acct, err := s.Credits.Consume(ctx, userID, cost, id)
		if errors.Is(err, credits.ErrInsufficientCredits) {
			return Generation{}, &InsufficientCreditsError{Balance: acct.Balance, Cost: cost}
		}
		if err != nil {
			return Generation{}, fmt.Errorf("reserve credits: %w", err)
		}
	}

	now := s.now()
	g := Generation{
		ID:        id,
		UserID:    userID,
		Engine:    info.ID,
		Kind:      info.Kind,
		Prompt:    req.Prompt,
		Params:    req,
		Status:    StatusQueued,
		Cost:      cost,
		RequestID: in.RequestID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.Repo.Create(ctx, g); err != nil {
		s.refund(ctx, g)
		return Generation{}, fmt.Errorf("store generation: %w", err)
	}
	telemetry.Info("generation.status", map[string]any{
		"request_id":    g.RequestID,
		"user_id":       g.UserID,
		"generation_id": g.ID,
		"engine":        g.Engine,
		"status":        StatusQueued,
		"cost":          cost,
	})

	if err := s.dispatch(ctx, g); err != nil {
		return Generation{}, err
	}
	return g, nil
}

func (s *Service) dispatch(ctx context.Context, g Generation) error {
	if s.Queue == nil {
		s.inflight.Add(1)
		go func() {
			defer s.inflight.Done()
			s.processAsync(g.ID)
		}()
		return nil
	}

	if err := s.Queue.Send(ctx, queue.NewMessage(g.ID, g.RequestID, s.now())); err != nil {
		if failErr := s.Repo.Fail(context.WithoutCancel(ctx), g.ID, ErrorCodeQueue, "generation could not be queued"); failErr != nil {
			telemetry.Error("generation.fail_update", map[string]any{
				"generation_id": g.ID,
				"error":         failErr.Error(),
			})
		}
		s.refund(ctx, g)
		return fmt.Errorf("enqueue generation: %w", err)
	}
	return nil
}

func (s *Service) processAsync(id string) {
	timeout := s.ProcessTimeout
	if timeout <= 0 {
		timeout = defaultProcessTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := s.Process(ctx, id); err != nil {
		telemetry.Error("generation.process_error", map[string]any{
			"generation_id": id,
			"error":         err.Error(),
		})
	}
}

// Wait blocks until in-process generations started by Create finish.
func (s *Service) Wait() {
	s.inflight.Wait()
}

// Process runs a queued generation to a terminal state. It returns nil once
// the generation is completed or failed, or when there is nothing to do, and
// an error when the job should be retried.
func (s *Service) Process(ctx context.Context, id string) (err error) {
	startedAt := s.now()
	staleAfter := s.StaleAfter
	if staleAfter <= 0 {
		staleAfter = defaultStaleAfter
	}

	g, err := s.Repo.Claim(ctx, id, startedAt.Add(-staleAfter))
	if errors.Is(err, ErrNotClaimable) {
		telemetry.Info("generation.skip", map[string]any{
			"generation_id": id,
			"reason":        "not_claimable",
		})
		return nil
	}
	if err != nil {
		return fmt.Errorf("claim generation %s: %w", id, err)
	}

	defer func() {
		if r := recover(); r != nil {
			err = s.fail(ctx, g, startedAt, ErrorCodeInternal, fmt.Errorf("panic: %v", r))
		}
	}()

	metrics.IncGenerationStarted(g.Engine)
	telemetry.Info("generation.status", map[string]any{
		"request_id":        g.RequestID,
		"user_id":           g.UserID,
		"generation_id":     g.ID,
		"engine":            g.Engine,
		"status":            StatusProcessing,
		"status_transition": "queued->processing",
	})

	engine, err := s.Engines.Get(g.Engine)
	if err != nil {
		return s.fail(ctx, g, startedAt, engines.ErrorCode(err), err)
	}
	result, err := engine.Generate(ctx, g.Params)
	if err != nil {
		return s.fail(ctx, g, startedAt, engines.ErrorCode(err), err)
	}

	completion, err := s.persist(ctx, g, result)
	if err != nil {
		code := ErrorCodeStorage
		if errors.Is(err, engines.ErrNoMedia) {
			code = engines.ErrorCode(err)
		}
		return s.fail(ctx, g, startedAt, code, err)
	}
	completion.Cost = g.Cost

	if err := s.Repo.Complete(ctx, g.ID, completion); err != nil {
		return fmt.Errorf("complete generation %s: %w", g.ID, err)
	}

	duration := durationMs(startedAt, completion.CompletedAt)
	metrics.IncGenerationCompleted(g.Engine)
	if completion.Cost > 0 {
		metrics.AddCreditsConsumed(completion.Cost)
	}
	metrics.ObserveGenerationDurationMs(g.Engine, duration)
	telemetry.Info("generation.status", map[string]any{
		"request_id":        g.RequestID,
		"user_id":           g.UserID,
		"generation_id":     g.ID,
		"engine":            g.Engine,
		"status":            StatusCompleted,
		"status_transition": "processing->completed",
		"duration_ms":       duration,
		"cost":              completion.Cost,
		"stored":            completion.StorageKey != "",
	})
	return nil
}

// refund returns a failed generation's reserved credits.
func (s *Service) refund(ctx context.Context, g Generation) {
	if s.Credits == nil || g.Cost <= 0 {
		return
	}
	_, err := s.Credits.Refund(context.WithoutCancel(ctx), g.UserID, g.Cost, g.ID)
	if err == nil || errors.Is(err, credits.ErrAlreadyApplied) {
		return
	}
	telemetry.Error("generation.refund_failed", map[string]any{
		"request_id":    g.RequestID,
		"user_id":       g.UserID,
		"generation_id": g.ID,
		"cost":          g.Cost,
		"error":         err.Error(),
	})
}

// persist copies the engine output into the object store. A URL that cannot
// be downloaded is kept as the vendor link.
func (s *Service) persist(ctx context.Context, g Generation, res engines.Result) (Completion, error) {
	c := Completion{
		ResultURL:   res.URL,
		MIMEType:    res.MIMEType,
		TaskID:      res.TaskID,
		CompletedAt: s.now(),
	}

	data := res.Data
	if len(data) == 0 && res.URL != "" && s.Store != nil {
		body, mimeType, err := engines.Download(ctx, s.httpClient(), res.URL)
		if err != nil {
			telemetry.Warn("generation.download_failed", map[string]any{
				"generation_id": g.ID,
				"engine":        g.Engine,
				"error":         err.Error(),
			})
			return c, nil
		}
		data = body
		if c.MIMEType == "" {
			c.MIMEType = mimeType
		}
	}
	if len(data) == 0 {
		if c.ResultURL == "" {
			return c, fmt.Errorf("%s: %w", g.Engine, engines.ErrNoMedia)
		}
		return c, nil
	}
	if s.Store == nil {
		return c, errors.New("object store not configured")
	}

	obj, err := s.Store.Put(ctx, g.UserID, g.ID, c.MIMEType, bytes.NewReader(data))
	if err != nil {
		return c, fmt.Errorf("store media: %w", err)
	}
	c.StorageKey = obj.Key
	if c.MIMEType == "" {
		c.MIMEType = obj.MIMEType
	}
	return c, nil
}

func (s *Service) fail(ctx context.Context, g Generation, startedAt time.Time, code string, cause error) error {
	msg := sanitizeError(cause)
	if err := s.Repo.Fail(context.WithoutCancel(ctx), g.ID, code, msg); err != nil {
		telemetry.Error("generation.fail_update", map[string]any{
			"generation_id": g.ID,
			"error":         err.Error(),
			"cause":         msg,
		})
		return fmt.Errorf("mark generation %s failed: %w", g.ID, err)
	}
	s.refund(ctx, g)

	duration := durationMs(startedAt, s.now())
	metrics.IncGenerationFailed(g.Engine, code)
	metrics.ObserveGenerationDurationMs(g.Engine, duration)
	telemetry.Info("generation.status", map[string]any{
		"request_id":        g.RequestID,
		"user_id":           g.UserID,
		"generation_id":     g.ID,
		"engine":            g.Engine,
		"status":            StatusFailed,
		"status_transition": "processing->failed",
		"error_code":        code,
		"error":             msg,
		"duration_ms":       duration,
	})
	return nil
}

// Get returns one of the user's generations.
func (s *Service) Get(ctx context.Context, userID, id string) (Generation, error) {
	return s.Repo.Get(ctx, userID, id)
}

// List returns the user's generations, newest first.
func (s *Service) List(ctx context.Context, userID string, filter ListFilter) ([]Generation, error) {
	if filter.Kind != "" && !filter.Kind.Valid() {
		return nil, &engines.ValidationError{Field: "kind", Message: "must be image, video or audio"}
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return s.Repo.List(ctx, userID, filter)
}

// Delete soft-deletes one of the user's generations. Stored media is kept.
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	return s.Repo.SoftDelete(ctx, userID, id)
}

// Open returns the stored media of a completed generation.
func (s *Service) Open(ctx context.Context, userID, id string) (io.ReadCloser, Generation, error) {
	g, err := s.Repo.Get(ctx, userID, id)
	if err != nil {
		return nil, Generation{}, err
	}
	if !g.HasContent() || s.Store == nil {
		return nil, g, ErrNoContent
	}
	rc, err := s.Store.Open(ctx, g.StorageKey)
	if err != nil {
		return nil, g, fmt.Errorf("open media: %w", err)
	}
	return rc, g, nil
}

// DownloadURL returns a short-lived direct link when the store supports it.
func (s *Service) DownloadURL(ctx context.Context, g Generation) (string, bool, error) {
	presigner, ok := s.Store.(object.Presigner)
	if !ok || s.PresignTTL <= 0 || !g.HasContent() {
		return "", false, nil
	}
	url, err := presigner.PresignGet(ctx, g.StorageKey, s.PresignTTL)
	if err != nil {
		return "", false, err
	}
	return url, true, nil
}

// EngineList lists registered engines with their price, optionally by kind.
func (s *Service) EngineList(kind engines.Kind) []EngineListing {
	var infos []engines.Info
	if kind == "" {
		infos = s.Engines.List()
	} else {
		infos = s.Engines.ListKind(kind)
	}
	out := make([]EngineListing, 0, len(infos))
	for _, info := range infos {
		out = append(out, EngineListing{Info: info, Credits: credits.Cost(info.ID)})
	}
	return out
}

func (s *Service) httpClient() *http.Client {
	if s.HTTPClient != nil {
		return s.HTTPClient
	}
	return &http.Client{Timeout: 5 * time.Minute}
}

func durationMs(startedAt, completedAt time.Time) float64 {
	return float64(completedAt.Sub(startedAt).Microseconds()) / 1000.0
}

func sanitizeError(err error) string {
	if err == nil {
		return ""
	}
	msg := strings.ReplaceAll(err.Error(), "\n", " ")
	msg = strings.ReplaceAll(msg, "\r", " ")
	return util.Truncate(strings.TrimSpace(msg), maxErrorMessage)
}
