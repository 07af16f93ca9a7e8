package billing

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/webhook"

	"studio-backend/internal/credits"
)

const testSecret = "whsec_test"

type fakeCheckout struct {
	calls  int
	params *stripe.CheckoutSessionParams
	err    error
}

func (f *fakeCheckout) create(p *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	f.calls++
	f.params = p
	if f.err != nil {
		return nil, f.err
	}
	return &stripe.CheckoutSession{ID: fmt.Sprintf("cs_test_%d", f.calls), URL: "https://checkout.stripe.test/pay"}, nil
}

func newTestService(t *testing.T) (*Service, *MemoryStore, *credits.Service, *fakeCheckout) {
	t.Helper()
	store := NewMemoryStore()
	creditSvc := credits.NewService(0)
	svc := NewService(Config{
		SecretKey:     "sk_test_123",
		WebhookSecret: testSecret,
		SuccessURL:    "https://app.test/credits?checkout=success",
		CancelURL:     "https://app.test/credits?checkout=cancel",
	}, store, creditSvc)
	fake := &fakeCheckout{}
	svc.newSession = fake.create
	return svc, store, creditSvc, fake
}

func completedEvent(sessionID, paymentStatus string, metadata string) []byte {
	return []byte(fmt.Sprintf(`{
  "id": "evt_1",
  "object": "event",
  "type": "checkout.session.completed",
  "data": {"object": {"id": %q, "object": "checkout.session", "payment_status": %q, "client_reference_id": "user-1", "metadata": %s}}
}`, sessionID, paymentStatus, metadata))
}

func sign(payload []byte) string {
	return webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{Payload: payload, Secret: testSecret}).Header
}

func TestCheckoutRecordsPendingSession(t *testing.T) {
	svc, store, _, fake := newTestService(t)

	url, err := svc.Checkout(context.Background(), "user-1", "u@example.com", "creator")
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if url != "https://checkout.stripe.test/pay" {
		t.Fatalf("unexpected url %q", url)
	}
	p := fake.params
	if *p.ClientReferenceID != "user-1" || p.Metadata["pack_id"] != "creator" || p.Metadata["credits"] != "150" {
		t.Fatalf("unexpected params: %+v", p)
	}
	if !strings.HasSuffix(*p.SuccessURL, "&session_id={CHECKOUT_SESSION_ID}") {
		t.Fatalf("unexpected success url %q", *p.SuccessURL)
	}
	if *p.LineItems[0].PriceData.UnitAmount != 1200 {
		t.Fatalf("unexpected amount %d", *p.LineItems[0].PriceData.UnitAmount)
	}

	sess, err := store.Get(context.Background(), "cs_test_1")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if sess.Status != SessionPending || sess.Credits != 150 || sess.UserID != "user-1" {
		t.Fatalf("unexpected session: %+v", sess)
	}
}

func TestCheckoutRejectsUnknownPack(t *testing.T) {
	svc, _, _, fake := newTestService(t)
	if _, err := svc.Checkout(context.Background(), "user-1", "", "mega"); !errors.Is(err, ErrUnknownPack) {
		t.Fatalf("expected ErrUnknownPack, got %v", err)
	}
	if fake.calls != 0 {
		t.Fatalf("stripe should not be called")
	}
}

func TestCheckoutNotConfigured(t *testing.T) {
	svc := NewService(Config{}, NewMemoryStore(), credits.NewService(0))
	if _, err := svc.Checkout(context.Background(), "user-1", "", "starter"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestWebhookGrantsOnce(t *testing.T) {
	svc, store, creditSvc, _ := newTestService(t)
	ctx := context.Background()
	if _, err := svc.Checkout(ctx, "user-1", "", "starter"); err != nil {
		t.Fatalf("checkout: %v", err)
	}

	payload := completedEvent("cs_test_1", "paid", `{}`)
	for i := 0; i < 2; i++ {
		if err := svc.HandleWebhook(ctx, payload, sign(payload)); err != nil {
			t.Fatalf("delivery %d: %v", i, err)
		}
	}

	acct, err := creditSvc.Get(ctx, "user-1")
	if err != nil {
		t.Fatalf("get credits: %v", err)
	}
	if acct.Balance != 50 {
		t.Fatalf("expected balance 50, got %d", acct.Balance)
	}
	sess, _ := store.Get(ctx, "cs_test_1")
	if sess.Status != SessionFulfilled || sess.FulfilledAt == nil {
		t.Fatalf("session not fulfilled: %+v", sess)
	}
}

func TestWebhookFallsBackToMetadata(t *testing.T) {
	svc, _, creditSvc, _ := newTestService(t)
	ctx := context.Background()

	payload := completedEvent("cs_unknown", "paid", `{"user_id":"user-9","pack_id":"studio","credits":"500"}`)
	if err := svc.HandleWebhook(ctx, payload, sign(payload)); err != nil {
		t.Fatalf("webhook: %v", err)
	}
	acct, _ := creditSvc.Get(ctx, "user-9")
	if acct.Balance != 500 {
		t.Fatalf("expected balance 500, got %d", acct.Balance)
	}
}

func TestWebhookIgnoresUnpaid(t *testing.T) {
	svc, _, creditSvc, _ := newTestService(t)
	ctx := context.Background()
	if _, err := svc.Checkout(ctx, "user-1", "", "starter"); err != nil {
		t.Fatalf("checkout: %v", err)
	}

	payload := completedEvent("cs_test_1", "unpaid", `{}`)
	if err := svc.HandleWebhook(ctx, payload, sign(payload)); err != nil {
		t.Fatalf("webhook: %v", err)
	}
	acct, _ := creditSvc.Get(ctx, "user-1")
	if acct.Balance != 0 {
		t.Fatalf("expected no grant, got %d", acct.Balance)
	}
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	payload := completedEvent("cs_test_1", "paid", `{}`)
	if err := svc.HandleWebhook(context.Background(), payload, "t=1,v1=deadbeef"); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("expected ErrBadSignature, got %v", err)
	}
}

func TestWebhookHandlerStatusCodes(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandler(svc).RegisterWebhook(r.Group("/api/v1"))

	payload := completedEvent("cs_unknown", "paid", `{"user_id":"user-2","credits":"50"}`)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/billing/webhook", strings.NewReader(string(payload)))
	req.Header.Set("Stripe-Signature", "bogus")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad signature, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/billing/webhook", strings.NewReader(string(payload)))
	req.Header.Set("Stripe-Signature", sign(payload))
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestCheckoutHandlerRequiresUser(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userId", "guest:abc")
		c.Set("isGuest", true)
		c.Next()
	})
	NewHandler(svc).RegisterRoutes(r.Group("/api/v1"))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/billing/checkout", strings.NewReader(`{"packId":"starter"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/billing/packs", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"starter"`) {
		t.Fatalf("unexpected packs response %d: %s", w.Code, w.Body.String())
	}
}
