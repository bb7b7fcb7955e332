package web

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/patrickspencer/storewatch/internal/web/api"
)

func testHandler() http.Handler {
	return Handler(&api.API{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRequestIDAssignedAndEchoed(t *testing.T) {
	t.Parallel()
	h := testHandler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
	assert.Len(t, rec.Header().Get("X-Request-ID"), 36)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))
}

func TestCORSPreflight(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	testHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/v1/trigger_report", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRootAndUnknownPaths(t *testing.T) {
	t.Parallel()
	h := testHandler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	testHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestRouteLabel(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"/api/v1/reports/01HABC":      "/api/v1/reports/{id}",
		"/api/v1/reports":             "/api/v1/reports",
		"/api/v1/debug/stores/s1":     "/api/v1/debug/stores/{id}",
		"/api/v1/get_report":          "/api/v1/get_report",
		"/wp-admin/install.php":       "other",
		"/metrics":                    "/metrics",
		"/api/v1/debug/status_counts": "/api/v1/debug/status_counts",
	}
	for in, want := range cases {
		assert.Equal(t, want, routeLabel(in), in)
	}
}
