package tmdb

import (
	"fmt"
	"net/http"
)

// ErrorClass classifies a failed upstream lookup.
type ErrorClass string

const (
	// ErrorClassNotFound represents a 404 response; the document does not
	// exist and the lookup must never be retried.
	ErrorClassNotFound ErrorClass = "not_found"

	// ErrorClassRateLimit represents a 429 response; the lookup may be
	// retried per the backoff schedule.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassTransport represents network failures and all other HTTP
	// error statuses; treated as a permanently absent document.
	ErrorClassTransport ErrorClass = "transport"
)

// APIError represents a failed TMDB lookup with its classification.
type APIError struct {
	StatusCode int
	Class      ErrorClass
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("TMDB %s error (status %d): %s: %v",
			e.Class, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("TMDB %s error (status %d): %s",
		e.Class, e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *APIError) Unwrap() error {
	return e.Err
}

// classifyStatus maps a non-200 HTTP status to its error class.
func classifyStatus(status int) ErrorClass {
	switch status {
	case http.StatusNotFound:
		return ErrorClassNotFound
	case http.StatusTooManyRequests:
		return ErrorClassRateLimit
	default:
		return ErrorClassTransport
	}
}

// shouldRetry reports whether a lookup with this classification may be
// retried. Only rate limiting is transient; everything else is permanent.
func shouldRetry(class ErrorClass) bool {
	return class == ErrorClassRateLimit
}
