// Package llmerrors classifies provider failures so the retry and fallback layers can
// decide between retrying, moving on to the next provider, or giving up.
package llmerrors

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"net"
	"strings"
)

// ErrorType represents different categories of LLM errors for retry logic.
type ErrorType int8

const (
	// Retryable error types.

	// ErrorTypeRateLimit represents rate limiting errors (429, quota exceeded).
	ErrorTypeRateLimit ErrorType = iota
	// ErrorTypeTransient represents transient errors (5xx, EOF, connection reset, timeout).
	ErrorTypeTransient
	// ErrorTypeEmptyResponse represents a successful call that produced no text.
	ErrorTypeEmptyResponse

	// Non-retryable error types.

	// ErrorTypeAuth represents authentication errors (401/403, bad API key).
	ErrorTypeAuth
	// ErrorTypeBadPrompt represents malformed request errors (too long, unknown model, policy).
	ErrorTypeBadPrompt
	// ErrorTypeUnknown represents default for unclassified errors. Retried.
	ErrorTypeUnknown

	// ErrorTypeServiceUnavailable is emitted once retries on one provider are exhausted.
	ErrorTypeServiceUnavailable
)

// String returns the string representation of the error type.
func (et ErrorType) String() string {
	switch et {
	case ErrorTypeRateLimit:
		return "rate_limit"
	case ErrorTypeTransient:
		return "transient"
	case ErrorTypeEmptyResponse:
		return "empty_response"
	case ErrorTypeAuth:
		return "auth"
	case ErrorTypeBadPrompt:
		return "bad_prompt"
	case ErrorTypeUnknown:
		return "unknown"
	case ErrorTypeServiceUnavailable:
		return "service_unavailable"
	default:
		return "invalid"
	}
}

// ErrThrottled marks failures raised by local rate limiting rather than by a provider.
var ErrThrottled = errors.New("throttled locally")

// Error represents a classified LLM error.
type Error struct {
	Err        error     // Wrapped underlying error
	Message    string    // Human-readable error message
	BodyStub   string    // First portion of response body
	Type       ErrorType // Classified error type
	StatusCode int       // HTTP status code if applicable
	Attempts   int       // Attempts made, set on ServiceUnavailable
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("LLM error (%s): %s", e.Type.String(), e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("LLM error (%s): %v", e.Type.String(), e.Err)
	}
	return fmt.Sprintf("LLM error (%s): status %d", e.Type.String(), e.StatusCode)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether this error type should be retried.
// Everything is retryable unless explicitly fatal.
func (e *Error) IsRetryable() bool {
	switch e.Type {
	case ErrorTypeAuth, ErrorTypeBadPrompt, ErrorTypeServiceUnavailable:
		return false
	default:
		return true
	}
}

// IsFatal reports whether the failure must not be retried nor routed to a fallback.
func (e *Error) IsFatal() bool {
	return e.Type == ErrorTypeAuth || e.Type == ErrorTypeBadPrompt
}

// Is checks if an error is of a specific type.
func Is(err error, errorType ErrorType) bool {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Type == errorType
	}
	return false
}

// TypeOf returns the error type of an error, or ErrorTypeUnknown if not classified.
func TypeOf(err error) ErrorType {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Type
	}
	return ErrorTypeUnknown
}

// IsFatal reports whether err carries a fatal classification.
func IsFatal(err error) bool {
	var llmErr *Error
	return errors.As(err, &llmErr) && llmErr.IsFatal()
}

// IsRetryable reports whether err may be retried. Cancellation never is.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.IsRetryable()
	}
	return true
}

// NewError creates a new classified LLM error.
func NewError(errorType ErrorType, message string) *Error {
	return &Error{Type: errorType, Message: message}
}

// NewErrorWithStatus creates a new classified LLM error with HTTP status.
func NewErrorWithStatus(errorType ErrorType, statusCode int, message string) *Error {
	return &Error{Type: errorType, StatusCode: statusCode, Message: message}
}

// NewErrorWithCause creates a new classified LLM error wrapping another error.
func NewErrorWithCause(errorType ErrorType, cause error, message string) *Error {
	return &Error{Type: errorType, Err: cause, Message: message}
}

// NewServiceUnavailableError records that a provider kept failing for attempts tries.
func NewServiceUnavailableError(cause error, attempts int) *Error {
	return &Error{
		Type:     ErrorTypeServiceUnavailable,
		Err:      cause,
		Attempts: attempts,
		Message:  fmt.Sprintf("service unavailable after %d attempts", attempts),
	}
}

// IsServiceUnavailable checks if the error indicates persistent unavailability.
func IsServiceUnavailable(err error) bool {
	return Is(err, ErrorTypeServiceUnavailable)
}

// ClassifyStatus maps an HTTP status code to an error type.
func ClassifyStatus(status int) (ErrorType, bool) {
	switch {
	case status == 401 || status == 403:
		return ErrorTypeAuth, true
	case status == 429:
		return ErrorTypeRateLimit, true
	case status == 400 || status == 404 || status == 413 || status == 422:
		return ErrorTypeBadPrompt, true
	case status == 408:
		return ErrorTypeTransient, true
	case status >= 500 && status < 600:
		return ErrorTypeTransient, true
	default:
		return ErrorTypeUnknown, false
	}
}

// ClassifyMessage classifies an error by the patterns found in its text.
// Providers use it when the SDK gives no structured status.
func ClassifyMessage(err error) ErrorType {
	if err == nil {
		return ErrorTypeUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorTypeTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return ErrorTypeTransient
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "401", "403", "unauthorized", "forbidden", "invalid api key", "invalid x-api-key", "authentication", "permission denied"):
		return ErrorTypeAuth
	case containsAny(msg, "429", "rate limit", "rate_limit", "too many requests", "quota", "resource_exhausted", "overloaded"):
		return ErrorTypeRateLimit
	case containsAny(msg, "500", "502", "503", "504", "529", "connection refused", "connection reset", "eof", "timeout", "deadline exceeded", "no such host", "unavailable", "internal server error", "bad gateway"):
		return ErrorTypeTransient
	case containsAny(msg, "400", "bad request", "invalid_request", "invalid argument", "invalid_argument", "context length", "too long", "not found"):
		return ErrorTypeBadPrompt
	default:
		return ErrorTypeUnknown
	}
}

func containsAny(s string, patterns ...string) bool {
	for _, p := range patterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

// SanitizePrompt creates a safe representation of a prompt for logging.
// Long prompts are shown as first/last portions plus a hash of the full content.
// Truncation is rune-aware so multi-byte text stays valid UTF-8.
func SanitizePrompt(prompt string, maxChars int) string {
	runes := []rune(prompt)
	if len(runes) <= maxChars {
		return prompt
	}

	halfMax := maxChars / 2
	if halfMax < 1 {
		halfMax = 1
	}
	if 2*halfMax >= len(runes) {
		return prompt
	}

	first := string(runes[:halfMax])
	last := string(runes[len(runes)-halfMax:])

	hash := sha256.Sum256([]byte(prompt))
	hashStr := fmt.Sprintf("%x", hash)[:16]

	return fmt.Sprintf("%s...[%d chars, hash:%s]...%s", first, len(runes), hashStr, last)
}
