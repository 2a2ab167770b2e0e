package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// APIError is the JSON body of every error response.
type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"requestId,omitempty"`
}

// Error codes
const (
	ErrCodeBadRequest     = "BAD_REQUEST"
	ErrCodeNotFound       = "NOT_FOUND"
	ErrCodeBadGateway     = "BAD_GATEWAY"
	ErrCodeGatewayTimeout = "GATEWAY_TIMEOUT"
	ErrCodeInternalError  = "INTERNAL_ERROR"
)

func writeError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, APIError{
		Code:      code,
		Message:   message,
		RequestID: w.Header().Get(requestIDHeader),
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Warn("Failed to encode JSON response", "status", status, "error", err)
	}
}
