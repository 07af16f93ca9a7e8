package generations

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"studio-backend/internal/engines"
)

func newTestRouter(h *Handler, userID string, guest bool) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("requestId", "req-test")
		if userID != "" {
			c.Set("userId", userID)
		}
		c.Set("isGuest", guest)
		c.Next()
	})
	h.RegisterRoutes(r.Group("/api/v1"))
	return r
}

func postJSON(r http.Handler, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

type errorBody struct {
	Error struct {
		Code    string          `json:"code"`
		Message string          `json:"message"`
		Details json.RawMessage `json:"details"`
	} `json:"error"`
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body %q: %v", w.Body.String(), err)
	}
	return body
}

func TestCreateGenerationAccepted(t *testing.T) {
	f := newFixture(t, 20, newFakeEngine("dalle3", engines.KindImage, videoBytes))
	q := &fakeQueue{}
	f.svc.Queue = q
	r := newTestRouter(NewHandler(f.svc), "user-1", false)

	w := postJSON(r, "/api/v1/generations", map[string]any{
		"engine":      "dalle3",
		"prompt":      "a lighthouse",
		"aspectRatio": "16:9",
	}, map[string]string{"Idempotency-Key": "abc"})
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	var resp struct {
		GenerationID string `json:"generationId"`
		Status       string `json:"status"`
		Cost         int    `json:"cost"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.GenerationID == "" || resp.Status != StatusQueued || resp.Cost != 2 {
		t.Fatalf("unexpected response %+v", resp)
	}
	if len(q.msgs) != 1 || q.msgs[0].RequestID != "req-test" {
		t.Fatalf("unexpected messages %+v", q.msgs)
	}

	replay := postJSON(r, "/api/v1/generations", map[string]any{"engine": "dalle3", "prompt": "a lighthouse"}, map[string]string{"Idempotency-Key": "abc"})
	if replay.Code != http.StatusAccepted || replay.Header().Get("Idempotent-Replayed") != "true" {
		t.Fatalf("expected replay, got %d %v", replay.Code, replay.Header())
	}

	g, err := f.svc.Get(t.Context(), "user-1", resp.GenerationID)
	if err != nil || g.Params.AspectRatio != "16:9" {
		t.Fatalf("stored generation %+v err=%v", g, err)
	}
}

func TestCreateGenerationErrors(t *testing.T) {
	unconfigured := newFakeEngine("klingai", engines.KindVideo, videoBytes)
	unconfigured.info.Configured = false
	f := newFixture(t, 3,
		newFakeEngine("dalle3", engines.KindImage, videoBytes),
		newFakeEngine("sora", engines.KindVideo, videoBytes),
		unconfigured,
	)
	f.svc.Queue = &fakeQueue{}
	r := newTestRouter(NewHandler(f.svc), "user-1", false)

	cases := []struct {
		name   string
		body   map[string]any
		status int
		code   string
	}{
		{"missing engine", map[string]any{"prompt": "x"}, http.StatusBadRequest, "validation_error"},
		{"unknown engine", map[string]any{"engine": "midjourney", "prompt": "x"}, http.StatusBadRequest, "unknown_engine"},
		{"empty prompt", map[string]any{"engine": "dalle3", "prompt": ""}, http.StatusBadRequest, "validation_error"},
		{"unconfigured", map[string]any{"engine": "klingai", "prompt": "x"}, http.StatusServiceUnavailable, "missing_api_key"},
		{"insufficient", map[string]any{"engine": "sora", "prompt": "x"}, http.StatusPaymentRequired, "insufficient_credits"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := postJSON(r, "/api/v1/generations", tc.body, nil)
			if w.Code != tc.status {
				t.Fatalf("status = %d want %d body=%s", w.Code, tc.status, w.Body.String())
			}
			if got := decodeError(t, w).Error.Code; got != tc.code {
				t.Fatalf("code = %q want %q", got, tc.code)
			}
		})
	}
}

func TestGuestCannotGenerate(t *testing.T) {
	f := newFixture(t, 20, newFakeEngine("dalle3", engines.KindImage, videoBytes))
	r := newTestRouter(NewHandler(f.svc), "guest:abc", true)

	w := postJSON(r, "/api/v1/generations", map[string]any{"engine": "dalle3", "prompt": "x"}, nil)
	if w.Code != http.StatusUnauthorized || decodeError(t, w).Error.Code != "login_required" {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/engines", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("engines should be public, got %d", w.Code)
	}
}

func TestGetContentAndDelete(t *testing.T) {
	f := newFixture(t, 20, newFakeEngine("sora", engines.KindVideo, videoBytes))
	r := newTestRouter(NewHandler(f.svc), "user-1", false)

	w := postJSON(r, "/api/v1/generations", map[string]any{"engine": "sora", "prompt": "waves"}, nil)
	if w.Code != http.StatusAccepted {
		t.Fatalf("create status = %d body=%s", w.Code, w.Body.String())
	}
	var created struct {
		GenerationID string `json:"generationId"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &created)
	f.svc.Wait()

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/generations/"+created.GenerationID, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	var got map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &got)
	if got["status"] != StatusCompleted || got["contentUrl"] != "/api/v1/generations/"+created.GenerationID+"/content" {
		t.Fatalf("unexpected body %v", got)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/generations/"+created.GenerationID+"/content", nil))
	if w.Code != http.StatusOK || w.Body.String() != "fake-mp4" || w.Header().Get("Content-Type") != "video/mp4" {
		t.Fatalf("content = %d %q %q", w.Code, w.Body.String(), w.Header().Get("Content-Type"))
	}
	if want := `inline; filename="sora-` + created.GenerationID + `.mp4"`; w.Header().Get("Content-Disposition") != want {
		t.Fatalf("Content-Disposition = %q, want %q", w.Header().Get("Content-Disposition"), want)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/generations?kind=video", nil))
	var list struct {
		Items []map[string]any `json:"items"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &list)
	if w.Code != http.StatusOK || len(list.Items) != 1 {
		t.Fatalf("list = %d %s", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/v1/generations/"+created.GenerationID, nil))
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/generations/"+created.GenerationID, nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", w.Code)
	}
}

func TestContentNotReady(t *testing.T) {
	f := newFixture(t, 20, newFakeEngine("dalle3", engines.KindImage, videoBytes))
	f.svc.Queue = &fakeQueue{}
	r := newTestRouter(NewHandler(f.svc), "user-1", false)

	w := postJSON(r, "/api/v1/generations", map[string]any{"engine": "dalle3", "prompt": "x"}, nil)
	var created struct {
		GenerationID string `json:"generationId"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &created)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/generations/"+created.GenerationID+"/content", nil))
	if w.Code != http.StatusConflict || decodeError(t, w).Error.Code != "not_ready" {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
}
