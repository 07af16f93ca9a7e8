// Package proxy forwards browser requests to vendor APIs with server-held
// credentials attached. Upstream status and body are relayed verbatim.
package proxy

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"studio-backend/internal/shared/metrics"
	"studio-backend/internal/shared/server/respond"
	"studio-backend/internal/shared/telemetry"
)

// MaxBodyBytes caps forwarded request bodies.
const MaxBodyBytes = 10 << 20

// Handler serves the proxy routes.
type Handler struct {
	Routes []Route
	Client *http.Client
}

// NewHandler constructs a Handler.
func NewHandler(routes []Route, client *http.Client) *Handler {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Minute}
	}
	return &Handler{Routes: routes, Client: client}
}

// RegisterRoutes mounts every route on rg.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	for _, route := range h.Routes {
		rg.Handle(route.Method, route.Path, h.forward(route))
	}
}

func (h *Handler) forward(route Route) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		var body []byte
		if route.Method != http.MethodGet {
			var err error
			body, err = io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, MaxBodyBytes))
			if err != nil {
				var tooLarge *http.MaxBytesError
				if errors.As(err, &tooLarge) {
					h.reject(c, route, http.StatusRequestEntityTooLarge, "payload_too_large", "request body exceeds 10 MiB")
					return
				}
				h.reject(c, route, http.StatusBadRequest, "validation_error", "could not read request body")
				return
			}
		}

		taskID := strings.TrimSpace(c.Param("taskId"))
		if strings.Contains(route.Path, ":taskId") && taskID == "" {
			h.reject(c, route, http.StatusBadRequest, "validation_error", "task id is required")
			return
		}

		target := strings.TrimRight(route.Upstream, "/") + route.Target(body, url.PathEscape(taskID))
		req, err := http.NewRequestWithContext(c.Request.Context(), route.Method, target, bytes.NewReader(body))
		if err != nil {
			h.reject(c, route, http.StatusInternalServerError, "internal_error", "could not build upstream request")
			return
		}
		if route.Method != http.MethodGet {
			contentType := c.GetHeader("Content-Type")
			if contentType == "" {
				contentType = "application/json"
			}
			req.Header.Set("Content-Type", contentType)
		}
		if accept := c.GetHeader("Accept"); accept != "" {
			req.Header.Set("Accept", accept)
		}

		if err := route.Credential(req); err != nil {
			if errors.Is(err, ErrMissingCredential) {
				h.reject(c, route, http.StatusInternalServerError, "missing_api_key", "API key for "+route.Name+" is not configured")
				return
			}
			h.reject(c, route, http.StatusInternalServerError, "internal_error", "could not sign upstream request")
			return
		}

		resp, err := h.Client.Do(req)
		if err != nil {
			telemetry.Warn("proxy.upstream_error", map[string]any{
				"route":      route.Name,
				"request_id": c.GetString("requestId"),
				"error":      err.Error(),
			})
			h.reject(c, route, http.StatusBadGateway, "upstream_unreachable", "upstream request failed")
			return
		}
		defer resp.Body.Close()

		contentType := resp.Header.Get("Content-Type")
		if contentType == "" {
			contentType = "application/json"
		}
		c.Header("Content-Type", contentType)
		c.Status(resp.StatusCode)
		written, copyErr := io.Copy(c.Writer, resp.Body)

		metrics.IncProxyRequest(route.Name, resp.StatusCode)
		fields := map[string]any{
			"route":       route.Name,
			"request_id":  c.GetString("requestId"),
			"user_id":     c.GetString("userId"),
			"status":      resp.StatusCode,
			"bytes":       written,
			"duration_ms": time.Since(start).Milliseconds(),
		}
		if copyErr != nil {
			fields["error"] = copyErr.Error()
			telemetry.Warn("proxy.forward", fields)
			return
		}
		telemetry.Info("proxy.forward", fields)
	}
}

func (h *Handler) reject(c *gin.Context, route Route, status int, code, msg string) {
	metrics.IncProxyRequest(route.Name, status)
	respond.Error(c, status, code, msg, gin.H{"route": route.Name})
}
