package llm

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType classifies LLM failures for logging and retry decisions.
type ErrorType string

const (
	ErrorTypeAuth     ErrorType = "auth"     // Bad or missing credentials
	ErrorTypeModel    ErrorType = "model"    // Model not found or not served
	ErrorTypeEndpoint ErrorType = "endpoint" // Connectivity, timeout, server error
	ErrorTypeUnknown  ErrorType = "unknown"
)

// Error represents a structured LLM error with classification.
type Error struct {
	Type       ErrorType
	Message    string
	Retryable  bool
	Cause      error
	StatusCode int // HTTP status code if applicable
}

// Error implements the error interface.
func (e *Error) Error() string {
	var parts []string
	parts = append(parts, string(e.Type))
	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("HTTP %d", e.StatusCode))
	}
	parts = append(parts, e.Message)

	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", strings.Join(parts, " "), e.Cause)
	}
	return strings.Join(parts, " ")
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// IsRetryable implements the retry.RetryableError interface so the retry
// package can check retryability without importing llm.
func (e *Error) IsRetryable() bool {
	return e.Retryable
}

// NewError creates a new structured LLM error.
func NewError(errType ErrorType, message string, retryable bool, cause error) *Error {
	return &Error{
		Type:      errType,
		Message:   message,
		Retryable: retryable,
		Cause:     cause,
	}
}

// ClassifyError categorizes an error into a structured Error so callers get
// consistent retryability decisions regardless of provider.
func ClassifyError(err error) *Error {
	if err == nil {
		return nil
	}

	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr
	}

	errStr := err.Error()
	lower := strings.ToLower(errStr)

	statusCode := 0
	for _, code := range []int{400, 401, 403, 404, 429, 500, 502, 503, 504} {
		if strings.Contains(errStr, fmt.Sprintf("%d", code)) {
			statusCode = code
			break
		}
	}

	classify := func(t ErrorType, msg string, retryable bool) *Error {
		e := NewError(t, msg, retryable, err)
		e.StatusCode = statusCode
		return e
	}

	switch {
	case strings.Contains(errStr, "401") || strings.Contains(lower, "unauthorized") ||
		strings.Contains(lower, "invalid api key"):
		return classify(ErrorTypeAuth, "authentication failed", false)

	case strings.Contains(lower, "model") && (strings.Contains(lower, "not found") ||
		strings.Contains(lower, "does not exist")):
		return classify(ErrorTypeModel, "model not found", false)

	case strings.Contains(errStr, "404"):
		return classify(ErrorTypeEndpoint, "endpoint not found", false)

	case strings.Contains(lower, "connection refused") || strings.Contains(lower, "no such host"):
		return classify(ErrorTypeEndpoint, "connection failed", true)

	case strings.Contains(lower, "timeout") || strings.Contains(lower, "deadline exceeded") ||
		strings.Contains(lower, "context canceled"):
		return classify(ErrorTypeEndpoint, "request timeout", true)

	case strings.Contains(errStr, "429") || strings.Contains(lower, "rate limit") ||
		strings.Contains(lower, "overloaded"):
		return classify(ErrorTypeUnknown, "rate limited", true)

	case strings.Contains(errStr, "500") || strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") || strings.Contains(errStr, "504"):
		return classify(ErrorTypeEndpoint, "server error", true)
	}

	return classify(ErrorTypeUnknown, "llm error", false)
}

// IsRetryable returns true if the error is retryable.
func IsRetryable(err error) bool {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Retryable
	}
	return false
}
