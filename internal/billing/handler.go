package billing

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"studio-backend/internal/shared/server/middleware"
	"studio-backend/internal/shared/server/respond"
	"studio-backend/internal/shared/telemetry"
)

const maxWebhookBytes = 1 << 16

// Handler exposes billing endpoints.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches billing routes. The webhook is authenticated by
// its Stripe signature, not by the session.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/billing/packs", h.packs)
	rg.POST("/billing/checkout", middleware.RequireUser(), h.checkout)
}

// RegisterWebhook attaches the Stripe webhook outside the auth chain.
func (h *Handler) RegisterWebhook(rg *gin.RouterGroup) {
	rg.POST("/billing/webhook", h.webhook)
}

func (h *Handler) packs(c *gin.Context) {
	respond.OK(c, gin.H{"packs": Packs(), "enabled": h.Svc.Configured()})
}

type checkoutRequest struct {
	PackID string `json:"packId"`
}

func (h *Handler) checkout(c *gin.Context) {
	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid JSON body", nil)
		return
	}
	url, err := h.Svc.Checkout(c.Request.Context(), middleware.UserIDFromContext(c), middleware.UserEmailFromContext(c), req.PackID)
	switch {
	case errors.Is(err, ErrUnknownPack):
		respond.Error(c, http.StatusBadRequest, "validation_error", "unknown pack", gin.H{"packId": req.PackID})
	case errors.Is(err, ErrNotConfigured):
		respond.Error(c, http.StatusServiceUnavailable, "billing_disabled", "billing is not configured", nil)
	case err != nil:
		respond.Error(c, http.StatusBadGateway, "upstream_error", "could not start checkout", nil)
	default:
		respond.OK(c, gin.H{"url": url})
	}
}

func (h *Handler) webhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBytes))
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "could not read body", nil)
		return
	}
	err = h.Svc.HandleWebhook(c.Request.Context(), payload, c.GetHeader("Stripe-Signature"))
	switch {
	case errors.Is(err, ErrBadSignature):
		respond.Error(c, http.StatusBadRequest, "invalid_signature", "invalid signature", nil)
	case errors.Is(err, ErrMalformedEvent):
		respond.Error(c, http.StatusBadRequest, "validation_error", "malformed event", nil)
	case errors.Is(err, ErrNotConfigured):
		respond.Error(c, http.StatusServiceUnavailable, "billing_disabled", "billing is not configured", nil)
	case err != nil:
		telemetry.Error("billing.webhook_failed", map[string]any{"error": err.Error()})
		respond.Error(c, http.StatusInternalServerError, "internal_error", "webhook processing failed", nil)
	default:
		respond.OK(c, gin.H{"received": true})
	}
}
