package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"invoice-reconciler/internal/app"
	"invoice-reconciler/internal/core"
)

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

// writeError writes a structured JSON error response.
func writeError(w http.ResponseWriter, r *http.Request, message, code string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	resp := errorResponse{
		Error:     message,
		Code:      code,
		RequestID: requestIDFromContext(r.Context()),
	}
	_ = json.NewEncoder(w).Encode(resp)
}

// writeServiceError maps application errors onto HTTP statuses. Unknown errors
// are logged and reported as 500 without their message.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, app.ErrInvalidRequest):
		writeError(w, r, err.Error(), "BAD_REQUEST", http.StatusBadRequest)
	case errors.Is(err, core.ErrOrderNotFound):
		writeError(w, r, err.Error(), "ORDER_NOT_FOUND", http.StatusNotFound)
	case errors.Is(err, core.ErrAPRecordNotFound):
		writeError(w, r, err.Error(), "NOT_FOUND", http.StatusNotFound)
	case errors.Is(err, app.ErrMailboxNotConfigured):
		writeError(w, r, err.Error(), "UNAVAILABLE", http.StatusServiceUnavailable)
	default:
		log := requestLogger(r)
		log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, r, "internal server error", "INTERNAL_ERROR", http.StatusInternalServerError)
	}
}

// reportStatus is 200 for a built record, 409 for a duplicate and 422 for any
// other build failure. The body always carries the report with its breakdown.
func reportStatus(f *app.Failure) int {
	switch {
	case f == nil:
		return http.StatusOK
	case f.Reason == core.FailureDuplicate:
		return http.StatusConflict
	default:
		return http.StatusUnprocessableEntity
	}
}

// writeJSON writes a JSON response with status 200.
func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
