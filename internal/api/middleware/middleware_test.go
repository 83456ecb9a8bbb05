package middleware_test

import (
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zatekoja/triage-dispatch/backend/internal/api/middleware"
)

func okHandler(body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	})
}

func TestETag(t *testing.T) {
	handler := middleware.ETag(okHandler(`{"activeCount":3}`))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/analytics/dashboard", nil))
	require.Equal(t, http.StatusOK, w.Code)
	etag := w.Header().Get("ETag")
	require.NotEmpty(t, etag)
	assert.Equal(t, `{"activeCount":3}`, w.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/api/analytics/dashboard", nil)
	req.Header.Set("If-None-Match", etag)
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotModified, w.Code)
	assert.Empty(t, w.Body.String())
}

func TestCompression(t *testing.T) {
	handler := middleware.Compression(okHandler(`{"ok":true}`))

	req := httptest.NewRequest(http.MethodGet, "/api/visits", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, "gzip", w.Header().Get("Content-Encoding"))
	reader, err := gzip.NewReader(w.Body)
	require.NoError(t, err)
	body, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, string(body))
}

func TestCORSMiddleware(t *testing.T) {
	preflight := func(handler http.Handler, origin string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodOptions, "/api/dispatch/next", nil)
		req.Header.Set("Origin", origin)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w
	}

	t.Run("wildcard admits every origin", func(t *testing.T) {
		handler := middleware.CORSMiddleware([]string{"*"})(okHandler(`{}`))

		w := preflight(handler, "http://dashboard.local")
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "X-Session-ID")
		assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "PATCH")
	})

	t.Run("configured origins are echoed", func(t *testing.T) {
		handler := middleware.CORSMiddleware([]string{"https://ward.example"})(okHandler(`{}`))

		req := httptest.NewRequest(http.MethodGet, "/api/dispatch/queue", nil)
		req.Header.Set("Origin", "https://ward.example")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "https://ward.example", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "Origin", w.Header().Get("Vary"))
	})

	t.Run("other origins get no grant", func(t *testing.T) {
		handler := middleware.CORSMiddleware([]string{"https://ward.example"})(okHandler(`{}`))

		w := preflight(handler, "https://elsewhere.example")
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))

		req := httptest.NewRequest(http.MethodGet, "/api/dispatch/queue", nil)
		req.Header.Set("Origin", "https://elsewhere.example")
		w = httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	})
}

func TestOriginAllowed(t *testing.T) {
	assert.True(t, middleware.OriginAllowed("https://ward.example", []string{"https://ward.example"}))
	assert.True(t, middleware.OriginAllowed("https://anything.example", []string{"https://ward.example", "*"}))
	assert.False(t, middleware.OriginAllowed("https://elsewhere.example", []string{"https://ward.example"}))
	assert.False(t, middleware.OriginAllowed("https://ward.example", nil))
}

func TestLoggingAndObservabilityKeepStatus(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	handler := middleware.LoggingMiddleware(middleware.ObservabilityMiddleware(nil)(inner))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusTeapot, w.Code)
}
