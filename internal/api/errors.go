package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/vault-scanner/internal/types"
)

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error types.ServiceError `json:"error"`
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, statusCode int, code, message string, details map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := ErrorResponse{
		Error: types.ServiceError{
			Code:    code,
			Message: message,
			Details: details,
		},
	}

	json.NewEncoder(w).Encode(response)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondMissingParam reports a missing query parameter on a read endpoint.
// These respond 200 with an error body rather than a 4xx status; dashboard
// clients built against the original API key off the body, not the status.
func respondMissingParam(w http.ResponseWriter, param string) {
	respondJSON(w, http.StatusOK, map[string]string{
		"error": fmt.Sprintf("%s is required in the query params", param),
	})
}

// Common error codes
const (
	ErrCodeUnauthorized  = "UNAUTHORIZED"
	ErrCodeInternalError = "INTERNAL_ERROR"
)
