package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/kalambet/keydocs/internal/docs"
)

const maxRequestBodySize = 1 << 20 // 1MB

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

// storeError maps store sentinel errors onto HTTP status codes.
func storeError(w http.ResponseWriter, err error, action string) {
	switch {
	case errors.Is(err, docs.ErrNotFound):
		httpError(w, http.StatusNotFound, "not_found", "%s: %v", action, err)
	case errors.Is(err, docs.ErrInvalidInput):
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%s: %v", action, err)
	default:
		httpError(w, http.StatusInternalServerError, "api_error", "%s: %v", action, err)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// decodeBody reads a size-limited JSON body into v, writing a 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, limit int64, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return false
	}
	return true
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
