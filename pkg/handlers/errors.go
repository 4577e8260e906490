package handlers

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/datagenie/pkg/apperrors"
	"github.com/ekaya-inc/datagenie/pkg/logging"
)

// User-facing messages for errors whose cause stays server-side.
const (
	MessageBlockedQuery     = "This query modifies the database and is not allowed."
	MessageGenerationFailed = "The language model did not respond. Try again."
)

// serviceError is the HTTP rendering of a service failure.
type serviceError struct {
	status  int
	code    string
	message string
}

// classifyError maps service errors onto status codes. It is the only place
// that knows about the apperrors sentinels.
func classifyError(err error) serviceError {
	var execErr *apperrors.ExecutionError

	switch {
	case errors.Is(err, apperrors.ErrInvalidRequest):
		return serviceError{http.StatusBadRequest, "invalid_request", err.Error()}
	case errors.Is(err, apperrors.ErrTenantNotFound):
		return serviceError{http.StatusNotFound, "tenant_not_found", err.Error()}
	case errors.Is(err, apperrors.ErrBlockedQuery):
		return serviceError{http.StatusForbidden, "blocked_query", MessageBlockedQuery}
	case errors.Is(err, apperrors.ErrConnection):
		return serviceError{http.StatusBadGateway, "connection_error", "Could not connect to the tenant database."}
	case errors.Is(err, apperrors.ErrGenerationFailed):
		return serviceError{http.StatusBadGateway, "generation_failed", MessageGenerationFailed}
	case errors.Is(err, apperrors.ErrTransientWriteConflict):
		return serviceError{http.StatusServiceUnavailable, "write_conflict", "The schema is being updated concurrently. Retry the request."}
	case errors.As(err, &execErr):
		return serviceError{http.StatusUnprocessableEntity, "execution_failed", execErr.Message}
	case errors.Is(err, apperrors.ErrExecution):
		return serviceError{http.StatusUnprocessableEntity, "execution_failed", logging.SanitizeError(err)}
	default:
		return serviceError{http.StatusInternalServerError, "internal_error", "Internal server error."}
	}
}

// WriteServiceError renders err and logs it. Server-side failures log at
// ERROR, caller mistakes at DEBUG.
func WriteServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	se := classifyError(err)

	if se.status >= http.StatusInternalServerError {
		logger.Error("Request failed",
			zap.Int("status", se.status),
			zap.String("error", logging.SanitizeError(err)))
	} else {
		logger.Debug("Request rejected",
			zap.Int("status", se.status),
			zap.String("code", se.code),
			zap.String("error", logging.SanitizeError(err)))
	}

	if err := ErrorResponse(w, se.status, se.code, se.message); err != nil {
		logger.Error("Failed to write error response", zap.Error(err))
	}
}

// writeData writes a successful envelope around data.
func writeData(w http.ResponseWriter, data any, logger *zap.Logger) {
	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: data}); err != nil {
		logger.Error("Failed to write response", zap.Error(err))
	}
}
