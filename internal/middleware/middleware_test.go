package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/bryanwahyu/geoanalysis/internal/domain/operations"
)

func echoUser() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(UserFrom(r.Context())))
	})
}

func TestAPIKeyAuth(t *testing.T) {
	h := APIKeyAuth(map[string]string{"k-1": "alice", "k-2": "bob"})(echoUser())

	cases := []struct {
		name   string
		path   string
		header map[string]string
		code   int
		user   string
	}{
		{"bearer", "/v1/analyses/recent", map[string]string{"Authorization": "Bearer k-2"}, 200, "bob"},
		{"bare key", "/v1/analyses/recent", map[string]string{"Authorization": "k-1"}, 200, "alice"},
		{"x-api-key", "/v1/datasets", map[string]string{"X-API-Key": "k-1"}, 200, "alice"},
		{"missing", "/v1/datasets", nil, 401, ""},
		{"wrong", "/v1/datasets", map[string]string{"Authorization": "Bearer nope"}, 401, ""},
		{"public", "/healthz", nil, 200, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			for k, v := range tc.header {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tc.code, rec.Code)
			if tc.code == 200 {
				assert.Equal(t, tc.user, rec.Body.String())
			}
		})
	}
}

func TestAPIKeyAuthDisabled(t *testing.T) {
	rec := httptest.NewRecorder()
	APIKeyAuth(nil)(echoUser()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/datasets", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestRateLimiterRefills(t *testing.T) {
	now := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(2, 1)
	rl.now = func() time.Time { return now }

	ok, _ := rl.Allow("u1")
	assert.True(t, ok)
	ok, _ = rl.Allow("u1")
	assert.True(t, ok)
	ok, wait := rl.Allow("u1")
	assert.False(t, ok)
	assert.Equal(t, time.Second, wait)

	// other clients have their own bucket
	ok, _ = rl.Allow("u2")
	assert.True(t, ok)

	now = now.Add(500 * time.Millisecond)
	ok, _ = rl.Allow("u1")
	assert.False(t, ok)
	now = now.Add(500 * time.Millisecond)
	ok, _ = rl.Allow("u1")
	assert.True(t, ok)
}

func TestRateLimitMiddleware(t *testing.T) {
	rl := NewRateLimiter(1, 0.5)
	h := RateLimitMiddleware(rl)(echoUser())

	call := func(path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.RemoteAddr = "10.1.2.3:5555"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}
	assert.Equal(t, http.StatusOK, call("/v1/datasets").Code)
	rec := call("/v1/datasets")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("Retry-After"))
	assert.Equal(t, http.StatusOK, call("/health").Code)
}

func TestParseBBox(t *testing.T) {
	b, err := ParseBBox("106.7, -6.4,107.0,-6.1")
	require.NoError(t, err)
	assert.Equal(t, 106.7, b.Min[0])
	assert.Equal(t, -6.1, b.Max[1])

	b, err = ParseBBox("")
	require.NoError(t, err)
	assert.Nil(t, b)

	for _, raw := range []string{"1,2,3", "a,b,c,d", "10,0,5,1", "0,0,190,1"} {
		_, err := ParseBBox(raw)
		assert.ErrorIs(t, err, operations.ErrInvalidParameter, raw)
	}
}

func TestParseLimit(t *testing.T) {
	n, err := ParseLimit("", 20, 100)
	require.NoError(t, err)
	assert.Equal(t, 20, n)
	n, err = ParseLimit("500", 20, 100)
	require.NoError(t, err)
	assert.Equal(t, 100, n)
	n, err = ParseLimit("7", 20, 100)
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	_, err = ParseLimit("-1", 20, 100)
	assert.ErrorIs(t, err, operations.ErrInvalidParameter)
}

func TestValidateID(t *testing.T) {
	assert.NoError(t, ValidateID("2c1f7a0e-9c1b-4d0e-8d55-5b7f1f0a9e11"))
	assert.NoError(t, ValidateID("1"))
	assert.Error(t, ValidateID(""))
	assert.Error(t, ValidateID("../etc/passwd"))
}

func TestSanitizeString(t *testing.T) {
	assert.Equal(t, "jalan raya", SanitizeString("  jalan\x00 raya\x07 "))
}

func TestHealthHandler(t *testing.T) {
	h := HealthHandler(map[string]HealthChecker{
		"redis": CheckFunc(func(context.Context) error { return nil }),
		"minio": CheckFunc(func(context.Context) error { return errors.New("bucket missing") }),
	})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body HealthStatus
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "unhealthy", body.Status)
	assert.Equal(t, "healthy", body.Checks["redis"].Status)
	assert.Equal(t, "bucket missing", body.Checks["minio"].Message)
}

type seenRequest struct {
	method, route string
	code          int
}

type fakeObserver struct {
	started int
	seen    []seenRequest
}

func (o *fakeObserver) RequestStarted() { o.started++ }

func (o *fakeObserver) ObserveRequest(method, route string, code int, _ time.Duration) {
	o.seen = append(o.seen, seenRequest{method, route, code})
}

func TestMetricsMiddlewareUsesRoutePattern(t *testing.T) {
	obs := &fakeObserver{}
	r := chi.NewRouter()
	r.Use(MetricsMiddleware(obs))
	r.Get("/v1/analyses/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/analyses/abc", nil))
	assert.Equal(t, 1, obs.started)
	assert.Equal(t, []seenRequest{{"GET", "/v1/analyses/{id}", 404}}, obs.seen)
}

func TestRequestLogger(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	h := RequestLogger(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	req := httptest.NewRequest(http.MethodPost, "/v1/analyses", nil)
	h.ServeHTTP(httptest.NewRecorder(), req.WithContext(WithUser(req.Context(), "alice")))

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.ErrorLevel, entry.Level)
	assert.Equal(t, int64(500), entry.ContextMap()["status"])
	assert.Equal(t, "alice", entry.ContextMap()["user_id"])
}
