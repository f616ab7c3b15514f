package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/powerpulse/pulsedesk/internal/api"
	mw "github.com/powerpulse/pulsedesk/internal/api/middleware"
)

// --- stub cache backing the rate limiter ---

type stubCache struct{ count int64 }

func (s *stubCache) Set(_ context.Context, _ string, _ []byte, _ time.Duration) error { return nil }
func (s *stubCache) Get(_ context.Context, _ string) ([]byte, bool, error)            { return nil, false, nil }
func (s *stubCache) Delete(_ context.Context, _ string) error                         { return nil }
func (s *stubCache) Ping(_ context.Context) error                                     { return nil }

func (s *stubCache) SetUploadStatus(_ context.Context, _ uuid.UUID, _ string, _ time.Duration) error {
	return nil
}

func (s *stubCache) GetUploadStatus(_ context.Context, _ uuid.UUID) (string, bool, error) {
	return "", false, nil
}

func (s *stubCache) IncrWithExpiry(_ context.Context, _ string, _ time.Duration) (int64, error) {
	s.count++
	return s.count, nil
}

func okHandler(marker string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(marker))
	}
}

func newTestRouter() http.Handler {
	return api.NewRouter(api.Dependencies{
		RateLimit:                mw.NewRateLimit(&stubCache{}, 100),
		HealthHandler:            okHandler("health"),
		UploadHandler:            okHandler("upload"),
		ActiveUploadsHandler:     okHandler("uploads"),
		ProgressHandler:          okHandler("progress"),
		MetricsHandler:           okHandler("metrics"),
		HistoricalMetricsHandler: okHandler("history"),
		ListConversations:        okHandler("conversations"),
	})
}

func TestRouter_RoutesAreWired(t *testing.T) {
	router := newTestRouter()

	cases := []struct {
		method string
		path   string
		marker string
	}{
		{http.MethodGet, "/api/v1/health", "health"},
		{http.MethodPost, "/api/v1/uploads", "upload"},
		{http.MethodGet, "/api/v1/uploads", "uploads"},
		{http.MethodGet, "/api/v1/uploads/" + uuid.NewString() + "/progress", "progress"},
		{http.MethodGet, "/api/v1/metrics", "metrics"},
		{http.MethodGet, "/api/v1/metrics/history", "history"},
		{http.MethodGet, "/api/v1/conversations", "conversations"},
	}

	for _, tc := range cases {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(tc.method, tc.path, nil)
		r.RemoteAddr = "203.0.113.1:1000"
		router.ServeHTTP(w, r)

		require.Equal(t, http.StatusOK, w.Code, "%s %s", tc.method, tc.path)
		assert.Equal(t, tc.marker, w.Body.String(), "%s %s", tc.method, tc.path)
	}
}

func TestRouter_UnknownRouteIs404(t *testing.T) {
	router := newTestRouter()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/nope", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_MissingHandlerIs501(t *testing.T) {
	router := api.NewRouter(api.Dependencies{
		RateLimit: mw.NewRateLimit(&stubCache{}, 100),
	})

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/v1/metrics", nil)
	r.RemoteAddr = "203.0.113.1:1000"
	router.ServeHTTP(w, r)

	assert.Equal(t, http.StatusNotImplemented, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "NOT_IMPLEMENTED", body["error"].(map[string]any)["code"])
}

func TestRouter_HealthSkipsRateLimit(t *testing.T) {
	c := &stubCache{}
	router := api.NewRouter(api.Dependencies{
		RateLimit:     mw.NewRateLimit(c, 100),
		HealthHandler: okHandler("health"),
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Zero(t, c.count)
}

func TestRouter_RateLimitHeadersPresent(t *testing.T) {
	router := newTestRouter()

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/v1/metrics", nil)
	r.RemoteAddr = "203.0.113.1:1000"
	router.ServeHTTP(w, r)

	assert.Equal(t, "100", w.Header().Get("X-RateLimit-Limit"))
	assert.NotEmpty(t, w.Header().Get("X-RateLimit-Remaining"))
}
