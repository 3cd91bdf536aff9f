package api

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
)

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	h := middleware.RequestID(requestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/boom" {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		w.Write([]byte("ok"))
	})))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/fine", nil))
	line := buf.String()
	assert.Contains(t, line, "level=DEBUG")
	assert.Contains(t, line, "status=200")
	assert.Contains(t, line, "bytes=2")
	assert.Contains(t, line, "request_id=")
	assert.NotContains(t, line, `request_id=""`)

	buf.Reset()
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/boom", nil))
	line = buf.String()
	assert.Contains(t, line, "level=WARN")
	assert.Contains(t, line, "status=500")
	assert.Contains(t, line, "path=/boom")
}

func TestNewAppHandler_RecoversPanics(t *testing.T) {
	deps := newTestAppDeps(t, testToken)
	deps.Store = nil // every store-backed handler now panics

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	req.Header.Set("Authorization", "Bearer "+testToken)
	NewAppHandler(deps).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
