package inbox

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"studio-backend/internal/shared/server/middleware"
	"studio-backend/internal/shared/server/respond"
)

// Handler exposes support inbox endpoints.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches the user-facing support routes.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	user := rg.Group("/support", middleware.RequireUser())
	user.POST("/messages", h.submit)
	user.GET("/messages", h.mine)
}

// RegisterAdminRoutes attaches the admin inbox routes.
func (h *Handler) RegisterAdminRoutes(rg *gin.RouterGroup) {
	rg.GET("/inbox", h.list)
	rg.POST("/inbox/:id/read", h.markRead)
	rg.POST("/inbox/:id/reply", h.reply)
	rg.DELETE("/inbox/:id", h.delete)
}

type submitRequest struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
	Email   string `json:"email"`
}

func (h *Handler) submit(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid JSON body", nil)
		return
	}
	email := middleware.UserEmailFromContext(c)
	if email == "" {
		email = req.Email
	}
	msg, err := h.Svc.Submit(c.Request.Context(), middleware.UserIDFromContext(c), email, req.Subject, req.Body)
	if err != nil {
		writeError(c, err, "failed to send message")
		return
	}
	respond.JSON(c, http.StatusCreated, msg)
}

func (h *Handler) mine(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	msgs, err := h.Svc.Mine(c.Request.Context(), middleware.UserIDFromContext(c), limit)
	if err != nil {
		writeError(c, err, "failed to list messages")
		return
	}
	respond.OK(c, gin.H{"items": msgs})
}

func (h *Handler) list(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	offset, _ := strconv.Atoi(c.Query("offset"))
	msgs, err := h.Svc.List(c.Request.Context(), strings.TrimSpace(c.Query("status")), limit, offset)
	if err != nil {
		writeError(c, err, "failed to list inbox")
		return
	}
	respond.OK(c, gin.H{"items": msgs})
}

func (h *Handler) markRead(c *gin.Context) {
	msg, err := h.Svc.MarkRead(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err, "failed to update message")
		return
	}
	respond.OK(c, msg)
}

type replyRequest struct {
	Reply string `json:"reply"`
}

func (h *Handler) reply(c *gin.Context) {
	var req replyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid JSON body", nil)
		return
	}
	msg, err := h.Svc.Reply(c.Request.Context(), c.Param("id"), req.Reply, middleware.UserEmailFromContext(c))
	if err != nil {
		writeError(c, err, "failed to reply")
		return
	}
	respond.OK(c, msg)
}

func (h *Handler) delete(c *gin.Context) {
	if err := h.Svc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err, "failed to delete message")
		return
	}
	c.Status(http.StatusNoContent)
}

func writeError(c *gin.Context, err error, msg string) {
	switch {
	case errors.Is(err, ErrInvalid):
		respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
	case errors.Is(err, ErrNotFound):
		respond.Error(c, http.StatusNotFound, "not_found", "message not found", nil)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		respond.Error(c, http.StatusRequestTimeout, "timeout", "request canceled", nil)
	default:
		respond.Error(c, http.StatusInternalServerError, "internal_error", msg, nil)
	}
}
