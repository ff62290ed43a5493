package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/izukowska/10xcards/internal/llm"
)

// errorBody is the JSON shape of every non-2xx response.
type errorBody struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Details   any    `json:"details,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

// writeJSON is a small helper to send JSON responses consistently.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, body errorBody) {
	writeJSON(w, status, body)
}

var kindStatus = map[llm.Kind]int{
	llm.KindConfig:     http.StatusInternalServerError,
	llm.KindAuth:       http.StatusUnauthorized,
	llm.KindRateLimit:  http.StatusTooManyRequests,
	llm.KindServer:     http.StatusServiceUnavailable,
	llm.KindNetwork:    http.StatusServiceUnavailable,
	llm.KindValidation: http.StatusBadRequest,
	llm.KindParse:      http.StatusInternalServerError,
	llm.KindTimeout:    http.StatusGatewayTimeout,
	llm.KindUnknown:    http.StatusInternalServerError,
}

// statusForKind maps a gateway error kind to the HTTP status returned to
// callers. Unknown kinds map to 500.
func statusForKind(kind llm.Kind) int {
	if status, ok := kindStatus[kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// writeGatewayError reports err as a gateway error when it is one, and as
// a generic 500 otherwise. It returns false for non-gateway errors.
func writeGatewayError(w http.ResponseWriter, err error) bool {
	var gerr *llm.Error
	if !errors.As(err, &gerr) {
		writeError(w, http.StatusInternalServerError, errorBody{
			Error:   "Internal Server Error",
			Message: "An unexpected error occurred",
		})
		return false
	}

	writeError(w, statusForKind(gerr.Kind), errorBody{
		Error:     string(gerr.Kind),
		Message:   gerr.Message,
		RequestID: gerr.RequestID,
	})
	return true
}
