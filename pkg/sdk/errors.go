package catalograg

import (
	"errors"
	"fmt"

	"github.com/kailas-cloud/catalograg/internal/domain"
)

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrSessionNotFound     = domain.ErrSessionNotFound
	ErrInvalidInput        = domain.ErrInvalidInput
	ErrTokenBudgetExceeded = domain.ErrTokenBudgetExceeded
	ErrUnauthorized        = errors.New("unauthorized")
)

// Error codes sent by the server.
const (
	CodeBadRequest          = "BAD_REQUEST"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeValidationFailed    = "VALIDATION_FAILED"
	CodeSessionNotFound     = "SESSION_NOT_FOUND"
	CodeTokenBudgetExceeded = "TOKEN_BUDGET_EXCEEDED"
	CodeInternalError       = "INTERNAL_ERROR"
)

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("catalograg: HTTP %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("catalograg: %s (HTTP %d): %s", e.Code, e.StatusCode, e.Message)
}

// Unwrap maps the error code to a sentinel, nil when there is none.
func (e *APIError) Unwrap() error {
	switch e.Code {
	case CodeSessionNotFound:
		return ErrSessionNotFound
	case CodeBadRequest, CodeValidationFailed:
		return ErrInvalidInput
	case CodeTokenBudgetExceeded:
		return ErrTokenBudgetExceeded
	case CodeUnauthorized:
		return ErrUnauthorized
	}
	return nil
}
