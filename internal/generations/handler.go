package generations

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"studio-backend/internal/credits"
	"studio-backend/internal/engines"
	"studio-backend/internal/shared/server/middleware"
	"studio-backend/internal/shared/server/respond"
	"studio-backend/internal/shared/telemetry"
	"studio-backend/internal/shared/util"
)

// Handler wires HTTP handlers to the generations service.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches generation routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/engines", h.listEngines)

	user := rg.Group("/generations", middleware.RequireUser())
	user.POST("", h.create)
	user.GET("", h.list)
	user.GET("/:id", h.get)
	user.GET("/:id/content", h.content)
	user.DELETE("/:id", h.delete)
}

type createRequest struct {
	Engine string `json:"engine"`
	engines.Request
}

func (h *Handler) create(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid JSON body", nil)
		return
	}
	if req.Engine == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "engine is required", []map[string]string{
			{"field": "engine", "issue": "required"},
		})
		return
	}

	g, replayed, err := h.Svc.Create(c.Request.Context(), middleware.UserIDFromContext(c), CreateInput{
		Engine:         req.Engine,
		Request:        req.Request,
		RequestID:      c.GetString("requestId"),
		IdempotencyKey: c.GetHeader("Idempotency-Key"),
	})
	if err != nil {
		writeCreateError(c, req.Engine, err)
		return
	}
	if replayed {
		c.Header("Idempotent-Replayed", "true")
	}
	respond.JSON(c, http.StatusAccepted, gin.H{
		"generationId": g.ID,
		"status":       g.Status,
		"cost":         g.Cost,
	})
}

func writeCreateError(c *gin.Context, engine string, err error) {
	var vErr *engines.ValidationError
	var creditErr *InsufficientCreditsError
	switch {
	case errors.Is(err, ErrLoginRequired):
		respond.Error(c, http.StatusUnauthorized, "login_required", "Sign in to generate", nil)
	case errors.Is(err, engines.ErrUnknownEngine):
		respond.Error(c, http.StatusBadRequest, "unknown_engine", "unknown engine", gin.H{"engine": engine})
	case errors.As(err, &vErr):
		respond.Error(c, http.StatusBadRequest, "validation_error", vErr.Error(), []map[string]string{
			{"field": vErr.Field, "issue": vErr.Message},
		})
	case errors.Is(err, engines.ErrMissingAPIKey):
		respond.Error(c, http.StatusServiceUnavailable, "missing_api_key", "this engine is not configured", gin.H{"engine": engine})
	case errors.As(err, &creditErr):
		respond.Error(c, http.StatusPaymentRequired, "insufficient_credits", "Not enough credits for this generation", gin.H{
			"balance": creditErr.Balance,
			"cost":    creditErr.Cost,
		})
	case errors.Is(err, credits.ErrInsufficientCredits):
		respond.Error(c, http.StatusPaymentRequired, "insufficient_credits", "Not enough credits for this generation", nil)
	default:
		writeStoreError(c, err, "failed to start generation")
	}
}

func (h *Handler) list(c *gin.Context) {
	filter := ListFilter{Kind: engines.Kind(c.Query("kind"))}
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			filter.Limit = parsed
		}
	}
	if v := c.Query("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			filter.Offset = parsed
		}
	}

	items, err := h.Svc.List(c.Request.Context(), middleware.UserIDFromContext(c), filter)
	if err != nil {
		var vErr *engines.ValidationError
		if errors.As(err, &vErr) {
			respond.Error(c, http.StatusBadRequest, "validation_error", vErr.Error(), nil)
			return
		}
		writeStoreError(c, err, "failed to list generations")
		return
	}

	resp := make([]gin.H, 0, len(items))
	for _, g := range items {
		resp = append(resp, view(g))
	}
	respond.OK(c, gin.H{"items": resp})
}

func (h *Handler) get(c *gin.Context) {
	g, err := h.Svc.Get(c.Request.Context(), middleware.UserIDFromContext(c), c.Param("id"))
	if err != nil {
		writeLookupError(c, err, "failed to fetch generation")
		return
	}
	respond.OK(c, view(g))
}

func (h *Handler) content(c *gin.Context) {
	ctx := c.Request.Context()
	userID := middleware.UserIDFromContext(c)

	g, err := h.Svc.Get(ctx, userID, c.Param("id"))
	if err != nil {
		writeLookupError(c, err, "failed to fetch generation")
		return
	}
	if url, ok, err := h.Svc.DownloadURL(ctx, g); err != nil {
		telemetry.Warn("generation.presign_failed", map[string]any{
			"generation_id": g.ID,
			"error":         err.Error(),
		})
	} else if ok {
		c.Redirect(http.StatusFound, url)
		return
	}

	rc, g, err := h.Svc.Open(ctx, userID, g.ID)
	if err != nil {
		if errors.Is(err, ErrNoContent) {
			if g.ResultURL != "" {
				c.Redirect(http.StatusFound, g.ResultURL)
				return
			}
			respond.Error(c, http.StatusConflict, "not_ready", "generation has no content yet", gin.H{"status": g.Status})
			return
		}
		writeLookupError(c, err, "failed to open content")
		return
	}
	defer rc.Close()

	contentType := g.MIMEType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Content-Type", contentType)
	c.Header("Content-Disposition", `inline; filename="`+util.DownloadName(g.Engine, g.ID, contentType)+`"`)
	c.Header("Cache-Control", "private, max-age=3600")
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, rc); err != nil {
		telemetry.Warn("generation.content_copy_failed", map[string]any{
			"generation_id": g.ID,
			"error":         err.Error(),
		})
	}
}

func (h *Handler) delete(c *gin.Context) {
	if err := h.Svc.Delete(c.Request.Context(), middleware.UserIDFromContext(c), c.Param("id")); err != nil {
		writeLookupError(c, err, "failed to delete generation")
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) listEngines(c *gin.Context) {
	kind := engines.Kind(c.Query("kind"))
	if kind != "" && !kind.Valid() {
		respond.Error(c, http.StatusBadRequest, "validation_error", "kind must be image, video or audio", nil)
		return
	}
	respond.OK(c, gin.H{"engines": h.Svc.EngineList(kind)})
}

func view(g Generation) gin.H {
	resp := gin.H{
		"id":        g.ID,
		"engine":    g.Engine,
		"kind":      g.Kind,
		"prompt":    g.Prompt,
		"params":    g.Params,
		"status":    g.Status,
		"cost":      g.Cost,
		"createdAt": g.CreatedAt,
		"updatedAt": g.UpdatedAt,
	}
	if g.Status == StatusCompleted {
		if g.HasContent() {
			resp["contentUrl"] = "/api/v1/generations/" + g.ID + "/content"
		}
		if g.ResultURL != "" {
			resp["resultUrl"] = g.ResultURL
		}
		resp["mimeType"] = g.MIMEType
		resp["completedAt"] = g.CompletedAt
	}
	if g.Status == StatusFailed {
		resp["error"] = gin.H{"code": g.ErrorCode, "message": g.ErrorMessage}
	}
	return resp
}

func writeLookupError(c *gin.Context, err error, msg string) {
	if errors.Is(err, ErrNotFound) {
		respond.Error(c, http.StatusNotFound, "not_found", "generation not found", nil)
		return
	}
	writeStoreError(c, err, msg)
}

func writeStoreError(c *gin.Context, err error, msg string) {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		respond.Error(c, http.StatusRequestTimeout, "timeout", "request canceled", nil)
	default:
		respond.Error(c, http.StatusInternalServerError, "internal_error", msg, nil)
	}
}
