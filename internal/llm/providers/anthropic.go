// Package providers implements the llm.Provider interface for concrete
// LLM backends. Each adapter translates the gateway's normalized request
// into its SDK's types, issues one non-streaming completion, and
// normalizes the response, usage, and errors back. Retries are the
// gateway's job, not the adapter's.
package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/jamiechicago312/agent-sdk/internal/llm"
	"github.com/jamiechicago312/agent-sdk/pkg/models"
)

// interleavedThinkingBeta enables thinking blocks between tool calls.
const interleavedThinkingBeta = "interleaved-thinking-2025-05-14"

// AnthropicProvider adapts Anthropic's Messages API to the gateway.
// Safe for concurrent use.
type AnthropicProvider struct {
	client anthropic.Client
}

// AnthropicConfig holds connection settings for the Anthropic adapter.
type AnthropicConfig struct {
	// APIKey authenticates against the Anthropic API (required).
	APIKey string

	// BaseURL overrides the default endpoint, for proxies.
	BaseURL string
}

// NewAnthropicProvider creates an Anthropic adapter.
func NewAnthropicProvider(config AnthropicConfig) (*AnthropicProvider, error) {
	if config.APIKey == "" {
		return nil, errors.New("anthropic: API key is required")
	}
	options := []option.RequestOption{option.WithAPIKey(config.APIKey)}
	if strings.TrimSpace(config.BaseURL) != "" {
		options = append(options, option.WithBaseURL(config.BaseURL))
	}
	return &AnthropicProvider{client: anthropic.NewClient(options...)}, nil
}

// Name implements llm.Provider.
func (p *AnthropicProvider) Name() string { return "anthropic" }

// Complete implements llm.Provider with a single non-streaming call.
func (p *AnthropicProvider) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	params, requestOptions, err := p.buildParams(req)
	if err != nil {
		return nil, err
	}

	message, err := p.client.Messages.New(ctx, params, requestOptions...)
	if err != nil {
		return nil, p.wrapError(err, req.Model)
	}
	if len(message.Content) == 0 {
		return nil, llm.ErrNoResponse
	}

	return p.convertResponse(message), nil
}

func (p *AnthropicProvider) buildParams(req llm.Request) (anthropic.MessageNewParams, []option.RequestOption, error) {
	messages, err := p.convertMessages(req.Messages)
	if err != nil {
		return anthropic.MessageNewParams{}, nil, fmt.Errorf("anthropic: failed to convert messages: %w", err)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(baseModel(req.Model)),
		Messages:  messages,
		MaxTokens: int64(req.MaxOutputTokens),
	}

	// System prompt is separate from messages in the Anthropic API.
	if system := systemBlocks(req.Messages); len(system) > 0 {
		params.System = system
	}

	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}
	if req.TopP != nil {
		params.TopP = anthropic.Float(*req.TopP)
	}

	if len(req.Tools) > 0 {
		tools, err := p.convertTools(req.Tools)
		if err != nil {
			return anthropic.MessageNewParams{}, nil, err
		}
		params.Tools = tools
	}

	var requestOptions []option.RequestOption
	if req.ThinkingBudgetTokens > 0 {
		budget := int64(req.ThinkingBudgetTokens)
		if budget < 1024 {
			budget = 1024
		}
		params.Thinking = anthropic.ThinkingConfigParamOfEnabled(budget)
		requestOptions = append(requestOptions, option.WithHeader("anthropic-beta", interleavedThinkingBeta))
	}

	return params, requestOptions, nil
}

// systemBlocks collects system messages into Anthropic's system field,
// carrying cache markers through.
func systemBlocks(messages []models.Message) []anthropic.TextBlockParam {
	var blocks []anthropic.TextBlockParam
	for _, msg := range messages {
		if msg.Role != models.RoleSystem {
			continue
		}
		for _, part := range msg.Content {
			if part.Type != models.ContentText {
				continue
			}
			block := anthropic.TextBlockParam{Type: "text", Text: part.Text}
			if part.CachePrompt {
				block.CacheControl = anthropic.NewCacheControlEphemeralParam()
			}
			blocks = append(blocks, block)
		}
	}
	return blocks
}

func (p *AnthropicProvider) convertMessages(messages []models.Message) ([]anthropic.MessageParam, error) {
	var result []anthropic.MessageParam

	for _, msg := range messages {
		// System messages are handled separately in params.System.
		if msg.Role == models.RoleSystem {
			continue
		}

		var content []anthropic.ContentBlockParamUnion

		if msg.Role == models.RoleTool {
			// Tool results map to user messages with tool_result blocks.
			block := anthropic.NewToolResultBlock(msg.ToolCallID, msg.Text(), false)
			content = append(content, block)
			result = append(result, anthropic.NewUserMessage(content...))
			continue
		}

		for _, part := range msg.Content {
			switch part.Type {
			case models.ContentText:
				block := anthropic.NewTextBlock(part.Text)
				if part.CachePrompt && block.OfText != nil {
					block.OfText.CacheControl = anthropic.NewCacheControlEphemeralParam()
				}
				content = append(content, block)
			case models.ContentImage:
				if !msg.VisionEnabled {
					continue
				}
				for _, url := range part.ImageURLs {
					block, err := imageBlock(url)
					if err != nil {
						return nil, err
					}
					content = append(content, block)
				}
			}
		}

		for _, call := range msg.ToolCalls {
			var input map[string]any
			if err := json.Unmarshal(call.Arguments, &input); err != nil {
				return nil, fmt.Errorf("invalid tool call arguments for %s: %w", call.Name, err)
			}
			content = append(content, anthropic.NewToolUseBlock(call.ID, input, call.Name))
		}

		if len(content) == 0 {
			continue
		}

		if msg.Role == models.RoleAssistant {
			result = append(result, anthropic.NewAssistantMessage(content...))
		} else {
			result = append(result, anthropic.NewUserMessage(content...))
		}
	}

	return result, nil
}

// imageBlock builds an image content block from a URL or data URI.
func imageBlock(url string) (anthropic.ContentBlockParamUnion, error) {
	if strings.HasPrefix(url, "data:") {
		rest := strings.TrimPrefix(url, "data:")
		idx := strings.Index(rest, ";base64,")
		if idx < 0 {
			return anthropic.ContentBlockParamUnion{}, fmt.Errorf("unsupported data URI encoding")
		}
		mediaType := rest[:idx]
		data := rest[idx+len(";base64,"):]
		return anthropic.NewImageBlockBase64(mediaType, data), nil
	}
	return anthropic.NewImageBlock(anthropic.URLImageSourceParam{URL: url}), nil
}

func (p *AnthropicProvider) convertTools(tools []llm.ToolSchema) ([]anthropic.ToolUnionParam, error) {
	var result []anthropic.ToolUnionParam

	for _, tool := range tools {
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(tool.Parameters, &schema); err != nil {
			return nil, fmt.Errorf("invalid tool schema for %s: %w", tool.Name, err)
		}

		toolParam := anthropic.ToolUnionParamOfTool(schema, tool.Name)
		if toolParam.OfTool == nil {
			return nil, fmt.Errorf("invalid tool schema for %s: missing tool definition", tool.Name)
		}
		toolParam.OfTool.Description = anthropic.String(tool.Description)

		result = append(result, toolParam)
	}

	return result, nil
}

func (p *AnthropicProvider) convertResponse(message *anthropic.Message) *llm.Response {
	out := models.Message{Role: models.RoleAssistant}

	for _, block := range message.Content {
		switch block.Type {
		case "text":
			out.Content = append(out.Content, models.TextContent(block.Text))
		case "thinking":
			out.ReasoningText += block.Thinking
		case "tool_use":
			out.ToolCalls = append(out.ToolCalls, models.ToolCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: json.RawMessage(block.Input),
			})
		}
	}

	return &llm.Response{
		ID:      message.ID,
		Message: out,
		Usage: models.TokenUsage{
			PromptTokens:     message.Usage.InputTokens,
			CompletionTokens: message.Usage.OutputTokens,
			CacheReadTokens:  message.Usage.CacheReadInputTokens,
			CacheWriteTokens: message.Usage.CacheCreationInputTokens,
		},
	}
}

// wrapError classifies SDK errors into the gateway taxonomy.
func (p *AnthropicProvider) wrapError(err error, model string) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		message := apiErr.Error()
		if raw := apiErr.RawJSON(); raw != "" {
			var payload struct {
				Error struct {
					Type    string `json:"type"`
					Message string `json:"message"`
				} `json:"error"`
			}
			if json.Unmarshal([]byte(raw), &payload) == nil && payload.Error.Message != "" {
				message = payload.Error.Message
			}
		}

		if llm.IsContextWindowMessage(message) {
			return &llm.ContextWindowExceededError{Model: model, Cause: err}
		}
		if apiErr.StatusCode == 401 || apiErr.StatusCode == 403 {
			return &llm.AuthError{Model: model, Cause: err}
		}
		return &llm.ProviderError{
			Model:       model,
			StatusCode:  apiErr.StatusCode,
			Recoverable: llm.ClassifyStatus(apiErr.StatusCode),
			Cause:       err,
		}
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &llm.ProviderError{Model: model, Recoverable: true, Cause: err}
}

// baseModel strips a provider prefix from a model name:
// "anthropic/claude-sonnet-4" reduces to "claude-sonnet-4".
func baseModel(model string) string {
	if idx := strings.LastIndex(model, "/"); idx >= 0 {
		return model[idx+1:]
	}
	return model
}
