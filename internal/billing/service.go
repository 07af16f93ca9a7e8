// Package billing sells credit packs through Stripe Checkout.
package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v81"
	checkoutsession "github.com/stripe/stripe-go/v81/checkout/session"
	"github.com/stripe/stripe-go/v81/webhook"

	"studio-backend/internal/credits"
	"studio-backend/internal/shared/telemetry"
)

var (
	ErrNotConfigured  = errors.New("billing not configured")
	ErrUnknownPack    = errors.New("unknown credit pack")
	ErrBadSignature   = errors.New("invalid webhook signature")
	ErrMalformedEvent = errors.New("malformed webhook event")
)

// Granter adds purchased credits.
type Granter interface {
	Grant(ctx context.Context, userID string, n int, reason, reference string) (credits.Account, error)
}

// Config holds Stripe credentials and redirect targets.
type Config struct {
	SecretKey     string
	WebhookSecret string
	SuccessURL    string
	CancelURL     string
}

// Service creates checkout sessions and fulfils them from webhooks.
type Service struct {
	cfg     Config
	store   SessionStore
	credits Granter
	// newSession is checkoutsession.New outside tests.
	newSession func(*stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	now        func() time.Time
}

// NewService constructs a Service and sets the Stripe API key.
func NewService(cfg Config, store SessionStore, granter Granter) *Service {
	if cfg.SecretKey != "" {
		stripe.Key = cfg.SecretKey
	}
	return &Service{
		cfg:        cfg,
		store:      store,
		credits:    granter,
		newSession: checkoutsession.New,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Configured reports whether checkout can be used.
func (s *Service) Configured() bool {
	return s.cfg.SecretKey != ""
}

// Checkout starts a Stripe Checkout session and returns its URL.
func (s *Service) Checkout(ctx context.Context, userID, email, packID string) (string, error) {
	if !s.Configured() {
		return "", ErrNotConfigured
	}
	pack, ok := FindPack(packID)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownPack, packID)
	}

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(withSessionID(s.cfg.SuccessURL)),
		CancelURL:         stripe.String(s.cfg.CancelURL),
		ClientReferenceID: stripe.String(userID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(pack.Currency),
					UnitAmount: stripe.Int64(pack.AmountCents),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(fmt.Sprintf("%s pack (%d credits)", pack.Name, pack.Credits)),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		Metadata: map[string]string{
			"user_id": userID,
			"pack_id": pack.ID,
			"credits": strconv.Itoa(pack.Credits),
		},
	}
	params.Context = ctx
	if email != "" {
		params.CustomerEmail = stripe.String(email)
	}

	sess, err := s.newSession(params)
	if err != nil {
		return "", fmt.Errorf("create checkout session: %w", err)
	}
	if err := s.store.Create(ctx, Session{
		ID:        sess.ID,
		UserID:    userID,
		PackID:    pack.ID,
		Credits:   pack.Credits,
		Status:    SessionPending,
		CreatedAt: s.now(),
	}); err != nil {
		return "", fmt.Errorf("record checkout session: %w", err)
	}

	telemetry.Info("billing.checkout_created", map[string]any{
		"user_id":    userID,
		"pack_id":    pack.ID,
		"session_id": sess.ID,
	})
	return sess.URL, nil
}

type completedSession struct {
	ID                string            `json:"id"`
	ClientReferenceID string            `json:"client_reference_id"`
	PaymentStatus     string            `json:"payment_status"`
	Metadata          map[string]string `json:"metadata"`
}

// HandleWebhook verifies and applies a Stripe event. Completed checkouts
// grant credits once per session id.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	if s.cfg.WebhookSecret == "" {
		return ErrNotConfigured
	}
	event, err := webhook.ConstructEventWithOptions(payload, signature, s.cfg.WebhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}

	telemetry.Info("billing.webhook_received", map[string]any{"event_type": string(event.Type), "event_id": event.ID})
	switch event.Type {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded":
		var cs completedSession
		if err := json.Unmarshal(event.Data.Raw, &cs); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		return s.fulfil(ctx, cs)
	default:
		return nil
	}
}

func (s *Service) fulfil(ctx context.Context, cs completedSession) error {
	if cs.PaymentStatus != "paid" && cs.PaymentStatus != "no_payment_required" {
		telemetry.Info("billing.awaiting_payment", map[string]any{"session_id": cs.ID, "payment_status": cs.PaymentStatus})
		return nil
	}

	sess, err := s.store.Get(ctx, cs.ID)
	switch {
	case errors.Is(err, ErrSessionNotFound):
		// Fall back to the metadata we attached at checkout.
		sess, err = sessionFromMetadata(cs)
		if err != nil {
			return err
		}
	case err != nil:
		return fmt.Errorf("load checkout session: %w", err)
	}

	acct, err := s.credits.Grant(ctx, sess.UserID, sess.Credits, credits.ReasonPurchase, sess.ID)
	switch {
	case errors.Is(err, credits.ErrAlreadyApplied):
		telemetry.Info("billing.already_fulfilled", map[string]any{"session_id": sess.ID})
	case err != nil:
		return fmt.Errorf("grant credits: %w", err)
	default:
		telemetry.Info("billing.fulfilled", map[string]any{
			"session_id": sess.ID,
			"user_id":    sess.UserID,
			"credits":    sess.Credits,
			"balance":    acct.Balance,
		})
	}

	if err := s.store.MarkFulfilled(ctx, sess.ID, s.now()); err != nil && !errors.Is(err, ErrSessionNotFound) {
		return fmt.Errorf("mark session fulfilled: %w", err)
	}
	return nil
}

func sessionFromMetadata(cs completedSession) (Session, error) {
	userID := cs.Metadata["user_id"]
	if userID == "" {
		userID = cs.ClientReferenceID
	}
	n, _ := strconv.Atoi(cs.Metadata["credits"])
	if userID == "" || n <= 0 || cs.ID == "" {
		return Session{}, fmt.Errorf("%w: session %q lacks user or credits", ErrMalformedEvent, cs.ID)
	}
	return Session{ID: cs.ID, UserID: userID, PackID: cs.Metadata["pack_id"], Credits: n}, nil
}

// withSessionID asks Stripe to append the checkout session id on redirect.
func withSessionID(u string) string {
	sep := "?"
	if strings.Contains(u, "?") {
		sep = "&"
	}
	return u + sep + "session_id={CHECKOUT_SESSION_ID}"
}
