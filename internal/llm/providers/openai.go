package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/jamiechicago312/agent-sdk/internal/llm"
	"github.com/jamiechicago312/agent-sdk/pkg/models"
)

// OpenAIProvider adapts OpenAI's Chat Completions API to the gateway.
// With a BaseURL override it also serves OpenAI-compatible endpoints
// (proxies, open-weight model servers). Safe for concurrent use.
type OpenAIProvider struct {
	client *openai.Client
}

// OpenAIConfig holds connection settings for the OpenAI adapter.
type OpenAIConfig struct {
	// APIKey authenticates against the API (required).
	APIKey string

	// BaseURL overrides the default endpoint for compatible servers.
	BaseURL string
}

// NewOpenAIProvider creates an OpenAI adapter.
func NewOpenAIProvider(config OpenAIConfig) (*OpenAIProvider, error) {
	if config.APIKey == "" {
		return nil, errors.New("openai: API key is required")
	}
	clientConfig := openai.DefaultConfig(config.APIKey)
	if strings.TrimSpace(config.BaseURL) != "" {
		clientConfig.BaseURL = config.BaseURL
	}
	return &OpenAIProvider{client: openai.NewClientWithConfig(clientConfig)}, nil
}

// Name implements llm.Provider.
func (p *OpenAIProvider) Name() string { return "openai" }

// Complete implements llm.Provider with a single non-streaming call.
func (p *OpenAIProvider) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	chatReq, err := p.buildRequest(req)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, p.wrapError(err, req.Model)
	}
	if len(resp.Choices) == 0 {
		return nil, llm.ErrNoResponse
	}

	return p.convertResponse(&resp), nil
}

func (p *OpenAIProvider) buildRequest(req llm.Request) (openai.ChatCompletionRequest, error) {
	messages, err := p.convertMessages(req.Messages)
	if err != nil {
		return openai.ChatCompletionRequest{}, fmt.Errorf("openai: failed to convert messages: %w", err)
	}

	chatReq := openai.ChatCompletionRequest{
		Model:    baseModel(req.Model),
		Messages: messages,
	}

	// Reasoning models take max_completion_tokens and reasoning_effort
	// instead of the classic knobs. Azure deployments keep max_tokens.
	if req.ReasoningEffort != "" {
		if llm.AzureModel(req.Model) {
			chatReq.MaxTokens = req.MaxOutputTokens
		} else {
			chatReq.MaxCompletionTokens = req.MaxOutputTokens
		}
		chatReq.ReasoningEffort = req.ReasoningEffort
	} else {
		chatReq.MaxTokens = req.MaxOutputTokens
		if req.Temperature != nil {
			chatReq.Temperature = float32(*req.Temperature)
		}
		if req.TopP != nil {
			chatReq.TopP = float32(*req.TopP)
		}
	}

	if len(req.Tools) > 0 {
		tools, err := p.convertTools(req.Tools)
		if err != nil {
			return openai.ChatCompletionRequest{}, err
		}
		chatReq.Tools = tools
	}

	return chatReq, nil
}

func (p *OpenAIProvider) convertMessages(messages []models.Message) ([]openai.ChatCompletionMessage, error) {
	result := make([]openai.ChatCompletionMessage, 0, len(messages))

	for _, msg := range messages {
		switch msg.Role {
		case models.RoleSystem:
			result = append(result, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleSystem,
				Content: msg.Text(),
			})

		case models.RoleTool:
			// OpenAI requires one tool-role message per result.
			result = append(result, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    msg.Text(),
				ToolCallID: msg.ToolCallID,
			})

		case models.RoleAssistant:
			oaiMsg := openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: msg.Text(),
			}
			for _, call := range msg.ToolCalls {
				oaiMsg.ToolCalls = append(oaiMsg.ToolCalls, openai.ToolCall{
					ID:   call.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      call.Name,
						Arguments: string(call.Arguments),
					},
				})
			}
			result = append(result, oaiMsg)

		case models.RoleUser:
			result = append(result, p.convertUserMessage(msg))
		}
	}

	return result, nil
}

// convertUserMessage uses the multi-part content format only when the
// message carries images and vision is enabled; plain text otherwise.
func (p *OpenAIProvider) convertUserMessage(msg models.Message) openai.ChatCompletionMessage {
	hasImages := false
	if msg.VisionEnabled {
		for _, part := range msg.Content {
			if part.Type == models.ContentImage && len(part.ImageURLs) > 0 {
				hasImages = true
				break
			}
		}
	}

	if !hasImages {
		return openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleUser,
			Content: msg.Text(),
		}
	}

	var parts []openai.ChatMessagePart
	for _, part := range msg.Content {
		switch part.Type {
		case models.ContentText:
			if part.Text != "" {
				parts = append(parts, openai.ChatMessagePart{
					Type: openai.ChatMessagePartTypeText,
					Text: part.Text,
				})
			}
		case models.ContentImage:
			for _, url := range part.ImageURLs {
				parts = append(parts, openai.ChatMessagePart{
					Type: openai.ChatMessagePartTypeImageURL,
					ImageURL: &openai.ChatMessageImageURL{
						URL:    url,
						Detail: openai.ImageURLDetailAuto,
					},
				})
			}
		}
	}

	return openai.ChatCompletionMessage{
		Role:         openai.ChatMessageRoleUser,
		MultiContent: parts,
	}
}

func (p *OpenAIProvider) convertTools(tools []llm.ToolSchema) ([]openai.Tool, error) {
	result := make([]openai.Tool, len(tools))

	for i, tool := range tools {
		var schemaMap map[string]any
		if len(tool.Parameters) > 0 {
			if err := json.Unmarshal(tool.Parameters, &schemaMap); err != nil {
				return nil, fmt.Errorf("invalid tool schema for %s: %w", tool.Name, err)
			}
		} else {
			schemaMap = map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			}
		}

		result[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  schemaMap,
			},
		}
	}

	return result, nil
}

func (p *OpenAIProvider) convertResponse(resp *openai.ChatCompletionResponse) *llm.Response {
	choice := resp.Choices[0]

	out := models.Message{Role: models.RoleAssistant}
	if choice.Message.Content != "" {
		out.Content = []models.Content{models.TextContent(choice.Message.Content)}
	}
	out.ReasoningText = choice.Message.ReasoningContent

	for _, call := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, models.ToolCall{
			ID:        call.ID,
			Name:      call.Function.Name,
			Arguments: json.RawMessage(call.Function.Arguments),
		})
	}

	usage := models.TokenUsage{
		PromptTokens:     int64(resp.Usage.PromptTokens),
		CompletionTokens: int64(resp.Usage.CompletionTokens),
	}
	if resp.Usage.PromptTokensDetails != nil {
		usage.CacheReadTokens = int64(resp.Usage.PromptTokensDetails.CachedTokens)
	}

	return &llm.Response{
		ID:      resp.ID,
		Message: out,
		Usage:   usage,
	}
}

// wrapError classifies SDK errors into the gateway taxonomy.
func (p *OpenAIProvider) wrapError(err error, model string) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		message := apiErr.Message
		if llm.IsContextWindowMessage(message) || apiErr.Code == "context_length_exceeded" {
			return &llm.ContextWindowExceededError{Model: model, Cause: err}
		}
		if apiErr.HTTPStatusCode == 401 || apiErr.HTTPStatusCode == 403 {
			return &llm.AuthError{Model: model, Cause: err}
		}
		return &llm.ProviderError{
			Model:       model,
			StatusCode:  apiErr.HTTPStatusCode,
			Recoverable: llm.ClassifyStatus(apiErr.HTTPStatusCode),
			Cause:       err,
		}
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &llm.ProviderError{Model: model, Recoverable: true, Cause: err}
}
