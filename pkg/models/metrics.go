package models

// TokenUsage accumulates token counts reported by the provider.
type TokenUsage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	CacheReadTokens  int64 `json:"cache_read_tokens"`
	CacheWriteTokens int64 `json:"cache_write_tokens"`
}

// Add returns the element-wise sum of two usages.
func (u TokenUsage) Add(other TokenUsage) TokenUsage {
	return TokenUsage{
		PromptTokens:     u.PromptTokens + other.PromptTokens,
		CompletionTokens: u.CompletionTokens + other.CompletionTokens,
		CacheReadTokens:  u.CacheReadTokens + other.CacheReadTokens,
		CacheWriteTokens: u.CacheWriteTokens + other.CacheWriteTokens,
	}
}

// MetricsSnapshot is an immutable copy of a conversation's accumulated
// LLM spend. Cost and token counts are monotonically non-decreasing over
// the life of a conversation.
type MetricsSnapshot struct {
	ModelName             string     `json:"model_name"`
	AccumulatedCost       float64    `json:"accumulated_cost"`
	AccumulatedTokenUsage TokenUsage `json:"accumulated_token_usage"`
	MaxBudget             float64    `json:"max_budget,omitempty"`
}
