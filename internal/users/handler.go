package users

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"studio-backend/internal/credits"
	"studio-backend/internal/shared/server/middleware"
	"studio-backend/internal/shared/server/respond"
	"studio-backend/internal/shared/telemetry"
)

// CreditReader is the slice of the credit service /me needs.
type CreditReader interface {
	Get(ctx context.Context, userID string) (credits.Account, error)
}

type Handler struct {
	Svc     *Service
	Credits CreditReader
}

func NewHandler(svc *Service, creditSvc CreditReader) *Handler {
	return &Handler{Svc: svc, Credits: creditSvc}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/me", h.me)
}

func (h *Handler) me(c *gin.Context) {
	if h.Svc == nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "service unavailable", nil)
		return
	}
	userID := middleware.UserIDFromContext(c)
	if middleware.IsGuest(c) {
		respond.JSON(c, http.StatusOK, gin.H{
			"id":      userID,
			"isGuest": true,
			"isAdmin": false,
		})
		return
	}

	user, err := h.Svc.GetByID(c.Request.Context(), userID)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to load user", nil)
			return
		}
		// Token is valid but the profile row is gone; fall back to token claims.
		user = User{
			ID:         userID,
			Email:      middleware.UserEmailFromContext(c),
			FullName:   middleware.UserNameFromContext(c),
			PictureURL: middleware.UserPictureFromContext(c),
		}
	}

	response := gin.H{
		"id":         user.ID,
		"email":      user.Email,
		"fullName":   user.FullName,
		"pictureUrl": user.PictureURL,
		"isGuest":    false,
		"isAdmin":    middleware.IsAdmin(c),
	}
	if h.Credits != nil {
		acct, err := h.Credits.Get(c.Request.Context(), userID)
		if err != nil {
			telemetry.Warn("me.credits_failed", map[string]any{"user_id": userID, "error": err.Error()})
		} else {
			response["credits"] = acct.Balance
			response["plan"] = acct.Plan
		}
	}
	respond.JSON(c, http.StatusOK, response)
}
