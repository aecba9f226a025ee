package llm

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Common sentinel errors for gateway operations
var (
	// ErrNoResponse indicates the provider returned zero choices. Treated
	// as transient and retried.
	ErrNoResponse = errors.New("provider returned no choices")

	// ErrServiceNotFound indicates no LLM is registered under the
	// requested service id.
	ErrServiceNotFound = errors.New("llm service not found")

	// ErrServiceExists indicates a registration collision on a service id.
	ErrServiceExists = errors.New("llm service already registered")
)

// contextWindowPatterns are provider error-message fragments that signal
// the request exceeded the model's context window. Matching is
// case-insensitive on the raw provider message.
var contextWindowPatterns = []string{
	"contextwindowexceedederror",
	"prompt is too long",
	"input length and `max_tokens` exceed context limit",
	"please reduce the length of either one",
	"context length exceeded",
	"maximum context length",
	"context_length_exceeded",
	"too many total text bytes",
}

// IsContextWindowMessage reports whether a raw provider error message
// matches a known context-window-exceeded pattern.
func IsContextWindowMessage(msg string) bool {
	lower := strings.ToLower(msg)
	for _, p := range contextWindowPatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// ContextWindowExceededError indicates the conversation no longer fits in
// the model's context window. Not retryable; the runtime reacts by
// requesting condensation when a condenser is configured.
type ContextWindowExceededError struct {
	Model string
	Cause error
}

func (e *ContextWindowExceededError) Error() string {
	return fmt.Sprintf("context window exceeded for %s: %v", e.Model, e.Cause)
}

func (e *ContextWindowExceededError) Unwrap() error { return e.Cause }

// AuthError indicates the provider rejected the configured credentials.
// Never retried.
type AuthError struct {
	Model string
	Cause error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed for %s: %v", e.Model, e.Cause)
}

func (e *AuthError) Unwrap() error { return e.Cause }

// UnsupportedOptionError indicates a requested option is incompatible
// with the configured model (for example extended thinking on a model
// that has no thinking support). Detected at configuration time.
type UnsupportedOptionError struct {
	Model  string
	Option string
}

func (e *UnsupportedOptionError) Error() string {
	return fmt.Sprintf("model %s does not support %s", e.Model, e.Option)
}

// ProviderError wraps a failure from the underlying completion API with
// enough classification for the retry loop.
type ProviderError struct {
	// Model is the model the request targeted.
	Model string

	// StatusCode is the HTTP status from the provider, 0 when unknown.
	StatusCode int

	// Recoverable marks errors worth retrying: rate limits, timeouts,
	// connection failures, 5xx responses.
	Recoverable bool

	// RetryAfter is the provider-suggested wait before retrying, when the
	// response exposed one. Zero means no suggestion.
	RetryAfter time.Duration

	// Cause is the underlying error.
	Cause error
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("provider error for %s (status %d): %v", e.Model, e.StatusCode, e.Cause)
	}
	return fmt.Sprintf("provider error for %s: %v", e.Model, e.Cause)
}

func (e *ProviderError) Unwrap() error { return e.Cause }

// IsRetryable reports whether an error from a completion attempt should
// be retried. Transient provider failures and empty responses retry;
// auth, context-window, and option errors do not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNoResponse) {
		return true
	}
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return false
	}
	var ctxErr *ContextWindowExceededError
	if errors.As(err, &ctxErr) {
		return false
	}
	var provErr *ProviderError
	if errors.As(err, &provErr) {
		return provErr.Recoverable
	}
	return false
}

// ClassifyStatus maps an HTTP status code from a provider to a
// recoverable flag. 429 and 5xx retry; request timeouts (408) retry;
// other 4xx do not.
func ClassifyStatus(status int) bool {
	switch {
	case status == 408, status == 429:
		return true
	case status >= 500:
		return true
	default:
		return false
	}
}
