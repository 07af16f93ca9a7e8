// Package prompts serves prompt enhancement.
package prompts

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"

	"studio-backend/internal/engines"
	"studio-backend/internal/llm"
	"studio-backend/internal/shared/server/middleware"
	"studio-backend/internal/shared/server/respond"
	"studio-backend/internal/shared/telemetry"
)

const enhanceTimeout = 30 * time.Second

// Handler exposes the enhance endpoint.
type Handler struct {
	Enhancer llm.Enhancer
	Timeout  time.Duration
}

// NewHandler constructs a Handler.
func NewHandler(enhancer llm.Enhancer) *Handler {
	return &Handler{Enhancer: enhancer, Timeout: enhanceTimeout}
}

// RegisterRoutes attaches prompt routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/prompts/enhance", h.enhance)
}

type enhanceRequest struct {
	Prompt string `json:"prompt"`
	Kind   string `json:"kind"`
	Style  string `json:"style"`
	Engine string `json:"engine"`
}

func (h *Handler) enhance(c *gin.Context) {
	var req enhanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid JSON body", nil)
		return
	}
	req.Prompt = strings.TrimSpace(req.Prompt)
	if req.Prompt == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "prompt is required", []map[string]string{
			{"field": "prompt", "issue": "required"},
		})
		return
	}
	if utf8.RuneCountInString(req.Prompt) > engines.MaxPromptRunes {
		respond.Error(c, http.StatusBadRequest, "validation_error", "prompt is too long", []map[string]string{
			{"field": "prompt", "issue": "too_long"},
		})
		return
	}
	if req.Kind == "" {
		req.Kind = string(engines.KindImage)
	}
	if !engines.Kind(req.Kind).Valid() {
		respond.Error(c, http.StatusBadRequest, "validation_error", "kind must be image, video or audio", nil)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.Timeout)
	defer cancel()
	out, err := h.Enhancer.Enhance(ctx, llm.EnhanceInput{
		Prompt: req.Prompt,
		Kind:   req.Kind,
		Style:  strings.TrimSpace(req.Style),
		Engine: strings.TrimSpace(req.Engine),
	})
	if err != nil {
		if errors.Is(err, llm.ErrNotConfigured) {
			respond.Error(c, http.StatusServiceUnavailable, "missing_api_key", "prompt enhancement is not configured", nil)
			return
		}
		telemetry.Warn("prompts.enhance_failed", map[string]any{
			"request_id": c.GetString("requestId"),
			"user_id":    middleware.UserIDFromContext(c),
			"error":      err.Error(),
		})
		respond.Error(c, http.StatusBadGateway, "upstream_error", "prompt enhancement failed", nil)
		return
	}

	respond.OK(c, gin.H{
		"original": req.Prompt,
		"prompt":   out.Prompt,
		"model":    out.Model,
	})
}
