package credits

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"studio-backend/internal/shared/server/middleware"
	"studio-backend/internal/shared/server/respond"
	"studio-backend/internal/shared/telemetry"
)

// Handler exposes credit endpoints.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches credit routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/credits/pricing", h.pricing)
	user := rg.Group("/credits", middleware.RequireUser())
	user.GET("", h.getCredits)
	user.GET("/history", h.history)
}

// RegisterAdminRoutes attaches admin-only credit routes.
func (h *Handler) RegisterAdminRoutes(rg *gin.RouterGroup) {
	rg.POST("/credits/grant", h.grant)
}

func (h *Handler) pricing(c *gin.Context) {
	respond.OK(c, gin.H{"prices": PriceList(), "defaultCost": DefaultCost})
}

func (h *Handler) getCredits(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	acct, err := h.Svc.Get(c.Request.Context(), userID)
	if err != nil {
		writeStoreError(c, err, "failed to fetch credits")
		return
	}
	respond.OK(c, acct)
}

func (h *Handler) history(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	limit, _ := strconv.Atoi(c.Query("limit"))
	entries, err := h.Svc.History(c.Request.Context(), userID, limit)
	if err != nil {
		writeStoreError(c, err, "failed to fetch credit history")
		return
	}
	if entries == nil {
		entries = []Entry{}
	}
	respond.OK(c, gin.H{"entries": entries})
}

type grantRequest struct {
	UserID    string `json:"userId"`
	Credits   int    `json:"credits"`
	Reason    string `json:"reason"`
	Reference string `json:"reference"`
}

func (h *Handler) grant(c *gin.Context) {
	var req grantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid JSON body", nil)
		return
	}
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" || strings.HasPrefix(req.UserID, "guest:") {
		respond.Error(c, http.StatusBadRequest, "validation_error", "userId is required", nil)
		return
	}
	reason := ReasonAdminGrant
	if req.Reason != "" && req.Reason != ReasonAdminGrant {
		respond.Error(c, http.StatusBadRequest, "validation_error", "unsupported reason", gin.H{"reason": req.Reason})
		return
	}

	acct, err := h.Svc.Grant(c.Request.Context(), req.UserID, req.Credits, reason, req.Reference)
	switch {
	case errors.Is(err, ErrInvalidAmount):
		respond.Error(c, http.StatusBadRequest, "validation_error", "credits must be positive", nil)
		return
	case errors.Is(err, ErrAlreadyApplied):
		respond.Error(c, http.StatusConflict, "already_applied", "a grant with this reference already exists", nil)
		return
	case err != nil:
		writeStoreError(c, err, "failed to grant credits")
		return
	}

	telemetry.Info("credits.granted", map[string]any{
		"user_id":    req.UserID,
		"credits":    req.Credits,
		"granted_by": middleware.UserEmailFromContext(c),
		"request_id": c.GetString("requestId"),
	})
	respond.OK(c, acct)
}

func writeStoreError(c *gin.Context, err error, msg string) {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		respond.Error(c, http.StatusRequestTimeout, "timeout", "request canceled", nil)
	default:
		respond.Error(c, http.StatusInternalServerError, "internal_error", msg, nil)
	}
}
