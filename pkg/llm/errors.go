package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// ErrorType classifies a provider failure.
type ErrorType string

const (
	ErrorTypeEndpoint  ErrorType = "endpoint"
	ErrorTypeAuth      ErrorType = "auth"
	ErrorTypeModel     ErrorType = "model"
	ErrorTypeTimeout   ErrorType = "timeout"
	ErrorTypeRateLimit ErrorType = "rate_limit"
	ErrorTypeResponse  ErrorType = "response"
	ErrorTypeUnknown   ErrorType = "unknown"
)

// Error is a classified provider error.
type Error struct {
	Type       ErrorType
	Message    string
	Retryable  bool
	Cause      error
	StatusCode int
}

func (e *Error) Error() string {
	parts := []string{string(e.Type)}
	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("HTTP %d", e.StatusCode))
	}
	parts = append(parts, e.Message)

	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", strings.Join(parts, " "), e.Cause)
	}
	return strings.Join(parts, " ")
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a classified error.
func NewError(errType ErrorType, message string, retryable bool, cause error) *Error {
	return &Error{
		Type:      errType,
		Message:   message,
		Retryable: retryable,
		Cause:     cause,
	}
}

// ClassifyError maps a provider or transport error to an *Error.
// Structured OpenAI errors are classified by status code; anything else falls
// back to matching the message text.
func ClassifyError(err error) *Error {
	if err == nil {
		return nil
	}

	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return NewError(ErrorTypeTimeout, "request timeout", true, err)
	}
	if errors.Is(err, context.Canceled) {
		return NewError(ErrorTypeTimeout, "request canceled", false, err)
	}

	if status := statusCode(err); status > 0 {
		classified := classifyStatus(status, err)
		classified.StatusCode = status
		return classified
	}

	lower := strings.ToLower(err.Error())
	switch {
	case strings.Contains(lower, "unauthorized") || strings.Contains(lower, "invalid api key") ||
		strings.Contains(lower, "authentication"):
		return NewError(ErrorTypeAuth, "authentication failed", false, err)
	case strings.Contains(lower, "model") && (strings.Contains(lower, "not found") || strings.Contains(lower, "does not exist")):
		return NewError(ErrorTypeModel, "model not found", false, err)
	case strings.Contains(lower, "rate limit") || strings.Contains(lower, "rate_limit") || strings.Contains(lower, "overloaded"):
		return NewError(ErrorTypeRateLimit, "rate limited", true, err)
	case strings.Contains(lower, "connection refused") || strings.Contains(lower, "no such host"):
		return NewError(ErrorTypeEndpoint, "connection failed", true, err)
	case strings.Contains(lower, "timeout"):
		return NewError(ErrorTypeTimeout, "request timeout", true, err)
	}

	return NewError(ErrorTypeUnknown, "llm error", false, err)
}

func statusCode(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}

func classifyStatus(status int, err error) *Error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return NewError(ErrorTypeAuth, "authentication failed", false, err)
	case status == http.StatusNotFound:
		if strings.Contains(strings.ToLower(err.Error()), "model") {
			return NewError(ErrorTypeModel, "model not found", false, err)
		}
		return NewError(ErrorTypeEndpoint, "endpoint not found", false, err)
	case status == http.StatusTooManyRequests:
		return NewError(ErrorTypeRateLimit, "rate limited", true, err)
	case status >= 500:
		return NewError(ErrorTypeEndpoint, "server error", true, err)
	default:
		return NewError(ErrorTypeUnknown, "llm error", false, err)
	}
}

// IsRetryable reports whether err is a retryable classified error.
func IsRetryable(err error) bool {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Retryable
	}
	return false
}

// GetErrorType returns the classification of err, or ErrorTypeUnknown.
func GetErrorType(err error) ErrorType {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Type
	}
	return ErrorTypeUnknown
}
