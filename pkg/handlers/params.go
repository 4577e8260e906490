package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// maxBodyBytes caps request bodies. Prompts with prior turns and result
// rows are the largest payloads.
const maxBodyBytes = 1 << 20

// DecodeJSON reads the request body into dst.
// Returns false after writing a 400 response when the body is unusable.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any, logger *zap.Logger) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		message := "Invalid request body"
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			message = "Request body too large"
		}
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", message); err != nil {
			logger.Error("Failed to write error response", zap.Error(err))
		}
		return false
	}
	return true
}

// ParseTenantQuery extracts and validates the tenant ID from the query string.
// Expects query parameter: tenant
func ParseTenantQuery(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	return parseUUID(w, r.URL.Query().Get("tenant"), "invalid_tenant_id", "Invalid tenant ID format", logger)
}

// parseUUID writes a 400 response and returns false when raw is not a UUID.
func parseUUID(w http.ResponseWriter, raw, errorCode, errorMessage string, logger *zap.Logger) (uuid.UUID, bool) {
	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		if err := ErrorResponse(w, http.StatusBadRequest, errorCode, errorMessage); err != nil {
			logger.Error("Failed to write error response", zap.Error(err))
		}
		return uuid.Nil, false
	}
	return id, true
}
