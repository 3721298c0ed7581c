package tmdb

import (
	"errors"
	"net/http"
	"strings"
	"testing"
)

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		expected ErrorClass
	}{
		{
			name:     "404 is not found",
			status:   http.StatusNotFound,
			expected: ErrorClassNotFound,
		},
		{
			name:     "429 is rate limit",
			status:   http.StatusTooManyRequests,
			expected: ErrorClassRateLimit,
		},
		{
			name:     "500 is transport",
			status:   http.StatusInternalServerError,
			expected: ErrorClassTransport,
		},
		{
			name:     "401 is transport",
			status:   http.StatusUnauthorized,
			expected: ErrorClassTransport,
		},
		{
			name:     "502 is transport",
			status:   http.StatusBadGateway,
			expected: ErrorClassTransport,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := classifyStatus(tt.status)
			if result != tt.expected {
				t.Errorf("classifyStatus(%d) = %v, want %v", tt.status, result, tt.expected)
			}
		})
	}
}

func TestShouldRetry(t *testing.T) {
	tests := []struct {
		class    ErrorClass
		expected bool
	}{
		{ErrorClassNotFound, false},
		{ErrorClassRateLimit, true},
		{ErrorClassTransport, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.class), func(t *testing.T) {
			if got := shouldRetry(tt.class); got != tt.expected {
				t.Errorf("shouldRetry(%v) = %v, want %v", tt.class, got, tt.expected)
			}
		})
	}
}

func TestAPIError_Error(t *testing.T) {
	err := &APIError{
		StatusCode: 429,
		Class:      ErrorClassRateLimit,
		Message:    "429 Too Many Requests",
	}

	msg := err.Error()
	if !strings.Contains(msg, "rate_limit") {
		t.Errorf("Error() = %q, want it to contain the error class", msg)
	}
	if !strings.Contains(msg, "429") {
		t.Errorf("Error() = %q, want it to contain the status code", msg)
	}
}

func TestAPIError_Unwrap(t *testing.T) {
	inner := errors.New("connection refused")
	err := &APIError{
		Class: ErrorClassTransport,
		Err:   inner,
	}

	if !errors.Is(err, inner) {
		t.Error("errors.Is should find the wrapped error")
	}
}
