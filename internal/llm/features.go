package llm

import "strings"

// ModelFeatures describes what a model supports. The gateway uses these
// flags to rewrite request options per provider and to decide between
// native and prompt-mocked function calling.
type ModelFeatures struct {
	SupportsFunctionCalling  bool
	SupportsReasoningEffort  bool
	SupportsExtendedThinking bool
	SupportsPromptCache      bool
	SupportsVision           bool
}

// featurePattern matches a model name by substring. Model names arrive
// with arbitrary provider prefixes ("openrouter/anthropic/claude-...", so
// substring matching on the base name is the reliable discriminator.
type featurePattern struct {
	match    string
	features ModelFeatures
}

// featureTable is ordered; the first matching entry wins.
var featureTable = []featurePattern{
	// Anthropic Claude: native tools, prompt cache, extended thinking on 3.7+.
	{"claude-sonnet-4", ModelFeatures{SupportsFunctionCalling: true, SupportsExtendedThinking: true, SupportsPromptCache: true, SupportsVision: true}},
	{"claude-opus-4", ModelFeatures{SupportsFunctionCalling: true, SupportsExtendedThinking: true, SupportsPromptCache: true, SupportsVision: true}},
	{"claude-3-7-sonnet", ModelFeatures{SupportsFunctionCalling: true, SupportsExtendedThinking: true, SupportsPromptCache: true, SupportsVision: true}},
	{"claude-3-5-sonnet", ModelFeatures{SupportsFunctionCalling: true, SupportsPromptCache: true, SupportsVision: true}},
	{"claude-3-5-haiku", ModelFeatures{SupportsFunctionCalling: true, SupportsPromptCache: true}},
	{"claude", ModelFeatures{SupportsFunctionCalling: true, SupportsPromptCache: true, SupportsVision: true}},

	// OpenAI reasoning models: no temperature/top_p, reasoning_effort knob.
	{"o1-mini", ModelFeatures{SupportsFunctionCalling: false, SupportsReasoningEffort: true}},
	{"o1", ModelFeatures{SupportsFunctionCalling: true, SupportsReasoningEffort: true, SupportsVision: true}},
	{"o3-mini", ModelFeatures{SupportsFunctionCalling: true, SupportsReasoningEffort: true}},
	{"o3", ModelFeatures{SupportsFunctionCalling: true, SupportsReasoningEffort: true, SupportsVision: true}},
	{"o4-mini", ModelFeatures{SupportsFunctionCalling: true, SupportsReasoningEffort: true, SupportsVision: true}},
	{"gpt-5", ModelFeatures{SupportsFunctionCalling: true, SupportsReasoningEffort: true, SupportsVision: true}},
	{"gpt-4o", ModelFeatures{SupportsFunctionCalling: true, SupportsVision: true}},
	{"gpt-4.1", ModelFeatures{SupportsFunctionCalling: true, SupportsVision: true}},
	{"gpt-4-turbo", ModelFeatures{SupportsFunctionCalling: true, SupportsVision: true}},
	{"gpt-4", ModelFeatures{SupportsFunctionCalling: true}},

	// Gemini: native tools, reasoning effort on 2.5.
	{"gemini-2.5", ModelFeatures{SupportsFunctionCalling: true, SupportsReasoningEffort: true, SupportsVision: true}},
	{"gemini", ModelFeatures{SupportsFunctionCalling: true, SupportsVision: true}},

	// Open-weight models commonly served without native tool calling.
	{"deepseek-r1", ModelFeatures{}},
	{"deepseek", ModelFeatures{SupportsFunctionCalling: true}},
	{"kimi-k2", ModelFeatures{SupportsFunctionCalling: true}},
	{"llama", ModelFeatures{}},
	{"mistral", ModelFeatures{SupportsFunctionCalling: true}},
	{"mixtral", ModelFeatures{}},
	{"qwen", ModelFeatures{SupportsFunctionCalling: true}},
}

// GetFeatures looks up capability flags for a model name. Unknown models
// get conservative defaults: no native function calling, no cache, no
// vision, so the gateway falls back to prompt-mocked tool calling.
func GetFeatures(model string) ModelFeatures {
	normalized := strings.ToLower(baseModelName(model))
	for _, entry := range featureTable {
		if strings.Contains(normalized, entry.match) {
			return entry.features
		}
	}
	return ModelFeatures{}
}

// baseModelName strips provider prefixes: "openrouter/anthropic/claude-x"
// and "litellm_proxy/claude-x" both reduce to "claude-x".
func baseModelName(model string) string {
	if idx := strings.LastIndex(model, "/"); idx >= 0 {
		return model[idx+1:]
	}
	return model
}

// providerPrefix returns the leading provider segment of a model name,
// or "" when the name has no prefix.
func providerPrefix(model string) string {
	if idx := strings.Index(model, "/"); idx >= 0 {
		return model[:idx]
	}
	return ""
}

// AzureModel reports whether the model routes through an Azure
// deployment ("azure/o3-mini"). Azure's chat API keeps the classic
// max_tokens field where OpenAI reasoning models take
// max_completion_tokens.
func AzureModel(model string) bool {
	return strings.EqualFold(providerPrefix(model), "azure")
}
