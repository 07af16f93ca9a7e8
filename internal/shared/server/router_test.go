package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"studio-backend/internal/credits"
	"studio-backend/internal/proxy"
	"studio-backend/internal/shared/auth"
	"studio-backend/internal/shared/config"
)

func TestHealthzWithoutDatabase(t *testing.T) {
	r := NewRouter(RouterDeps{Config: config.Config{Env: "dev"}})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestMetricsIsPublic(t *testing.T) {
	r := NewRouter(RouterDeps{Config: config.Config{Env: "dev"}})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	r := NewRouter(RouterDeps{
		Config:         config.Config{Env: "dev"},
		CreditsHandler: credits.NewHandler(credits.NewService(10)),
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/credits/grant", strings.NewReader(`{"userId":"u","amount":5}`))
	req.Header.Set("X-Guest-Id", "guest-1")
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", w.Code, w.Body.String())
	}
}

func TestProxyRoutesRequireSignedInUser(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("ENV", "dev")
	var hits atomic.Int32
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"video_1"}`))
	}))
	defer upstream.Close()

	vendors := config.Vendors{OpenAIAPIKey: "sk-test", OpenAIBaseURL: upstream.URL}
	r := NewRouter(RouterDeps{
		Config:       config.Config{Env: "dev"},
		ProxyHandler: proxy.NewHandler(proxy.DefaultRoutes(vendors, nil), upstream.Client()),
	})

	for _, guest := range []string{"guest-1", "guest-2"} {
		req := httptest.NewRequest(http.MethodPost, "/api/sora", strings.NewReader(`{"prompt":"x"}`))
		req.Header.Set("X-Guest-Id", guest)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != http.StatusUnauthorized || !strings.Contains(w.Body.String(), "login_required") {
			t.Fatalf("guest %s: expected 401 login_required, got %d: %s", guest, w.Code, w.Body.String())
		}
	}
	if n := hits.Load(); n != 0 {
		t.Fatalf("guest requests reached upstream %d times", n)
	}

	token, err := auth.SignJWT(auth.Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "google:1"}})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/sora", strings.NewReader(`{"prompt":"x"}`))
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK || hits.Load() != 1 {
		t.Fatalf("signed-in request: got %d, upstream hits %d: %s", w.Code, hits.Load(), w.Body.String())
	}
}

func TestUnknownRouteEnvelope(t *testing.T) {
	r := NewRouter(RouterDeps{Config: config.Config{Env: "dev"}})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/nope", nil)
	req.Header.Set("X-Guest-Id", "guest-1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound || !strings.Contains(w.Body.String(), `"not_found"`) {
		t.Fatalf("unexpected response %d: %s", w.Code, w.Body.String())
	}
}

func TestRateLimitGroup(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		method, route, path, want string
	}{
		{http.MethodGet, "/api/v1/generations/:id", "/api/v1/generations/g1", GroupPolling},
		{http.MethodPost, "/api/v1/generations", "/api/v1/generations", GroupGenerate},
		{http.MethodPost, "/api/v1/prompts/enhance", "/api/v1/prompts/enhance", GroupPrompts},
		{http.MethodPost, "/api/sora", "/api/sora", GroupProxy},
		{http.MethodPost, "/api/v1/billing/webhook", "/api/v1/billing/webhook", GroupWebhook},
		{http.MethodGet, "/api/v1/credits", "/api/v1/credits", GroupDefault},
	}
	for _, tc := range cases {
		r := gin.New()
		var got string
		r.Handle(tc.method, tc.route, func(c *gin.Context) { got = RateLimitGroup(c) })
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(tc.method, tc.path, nil))
		if got != tc.want {
			t.Fatalf("%s %s: got %q, want %q", tc.method, tc.path, got, tc.want)
		}
	}
}
