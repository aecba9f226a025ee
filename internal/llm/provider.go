package llm

import (
	"context"
	"encoding/json"

	"github.com/jamiechicago312/agent-sdk/pkg/models"
)

// ToolSchema describes a tool to the model: a name, a human-readable
// description, and a JSON Schema for its arguments.
type ToolSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// Request is a normalized, provider-independent completion request. The
// gateway builds it from the conversation view and per-model options;
// providers translate it to their SDK types.
type Request struct {
	Model    string
	Messages []models.Message
	Tools    []ToolSchema

	MaxOutputTokens int
	Temperature     *float64
	TopP            *float64

	// ReasoningEffort is set for reasoning-capable OpenAI models
	// ("low", "medium", "high").
	ReasoningEffort string

	// ThinkingBudgetTokens, when > 0, enables Anthropic extended thinking
	// with the given budget.
	ThinkingBudgetTokens int

	// CacheEnabled turns on explicit prompt-cache breakpoints for
	// providers that support them.
	CacheEnabled bool
}

// Response is a normalized completion response.
type Response struct {
	// ID is the provider's response id, recorded on action events.
	ID string

	// Message is the assistant turn, including any native tool calls.
	Message models.Message

	// Usage reports token counts for this single call.
	Usage models.TokenUsage

	// Cost is the provider-reported cost for this call in USD, 0 when
	// the provider does not report cost.
	Cost float64
}

// Provider is a single LLM backend. Implementations translate the
// normalized request to their SDK, issue one non-streaming completion,
// and normalize the result. Providers do not retry; the gateway owns
// the retry loop.
type Provider interface {
	// Name identifies the provider ("anthropic", "openai").
	Name() string

	// Complete issues one completion call.
	Complete(ctx context.Context, req Request) (*Response, error)
}
