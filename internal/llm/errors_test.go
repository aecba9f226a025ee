package llm

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"no response", ErrNoResponse, true},
		{"wrapped no response", fmt.Errorf("call failed: %w", ErrNoResponse), true},
		{"auth", &AuthError{Model: "m", Cause: errors.New("bad key")}, false},
		{"context window", &ContextWindowExceededError{Model: "m", Cause: errors.New("too long")}, false},
		{"recoverable provider", &ProviderError{Model: "m", StatusCode: 429, Recoverable: true}, true},
		{"unrecoverable provider", &ProviderError{Model: "m", StatusCode: 400}, false},
		{"plain error", errors.New("unknown"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status int
		want   bool
	}{
		{400, false},
		{401, false},
		{404, false},
		{408, true},
		{422, false},
		{429, true},
		{500, true},
		{502, true},
		{503, true},
	}
	for _, tt := range tests {
		if got := ClassifyStatus(tt.status); got != tt.want {
			t.Errorf("ClassifyStatus(%d) = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestIsContextWindowMessage(t *testing.T) {
	tests := []struct {
		msg  string
		want bool
	}{
		{"Prompt is too long: 210000 tokens > 200000 maximum", true},
		{"This model's maximum context length is 128000 tokens", true},
		{"error code: context_length_exceeded", true},
		{"input length and `max_tokens` exceed context limit", true},
		{"rate limit exceeded", false},
		{"invalid api key", false},
	}
	for _, tt := range tests {
		if got := IsContextWindowMessage(tt.msg); got != tt.want {
			t.Errorf("IsContextWindowMessage(%q) = %v, want %v", tt.msg, got, tt.want)
		}
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("root")
	for _, err := range []error{
		&AuthError{Model: "m", Cause: cause},
		&ContextWindowExceededError{Model: "m", Cause: cause},
		&ProviderError{Model: "m", Cause: cause},
	} {
		if !errors.Is(err, cause) {
			t.Errorf("%T does not unwrap to its cause", err)
		}
	}
}
