package providers

import (
	"fmt"
	"strings"

	"github.com/jamiechicago312/agent-sdk/internal/llm"
)

// New builds the provider adapter for a gateway config. Provider
// selection uses the explicit Provider field when set, otherwise the
// model name: a provider prefix ("anthropic/...") or a recognizable
// model family. Anything unrecognized goes through the OpenAI adapter,
// which covers the long tail of compatible endpoints.
func New(config llm.Config) (llm.Provider, error) {
	name := config.Provider
	if name == "" {
		name = inferProvider(config.Model)
	}

	switch name {
	case "anthropic":
		return NewAnthropicProvider(AnthropicConfig{
			APIKey:  config.APIKey.Value(),
			BaseURL: config.BaseURL,
		})
	case "openai":
		return NewOpenAIProvider(OpenAIConfig{
			APIKey:  config.APIKey.Value(),
			BaseURL: config.BaseURL,
		})
	default:
		return nil, fmt.Errorf("unknown provider %q for model %s", name, config.Model)
	}
}

func inferProvider(model string) string {
	lower := strings.ToLower(model)
	if idx := strings.Index(lower, "/"); idx >= 0 {
		prefix := lower[:idx]
		switch prefix {
		case "anthropic":
			return "anthropic"
		case "openai":
			return "openai"
		}
	}
	if strings.Contains(lower, "claude") {
		return "anthropic"
	}
	return "openai"
}
