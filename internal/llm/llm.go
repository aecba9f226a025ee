// Package llm is the gateway between the agent runtime and LLM
// providers. It normalizes requests per model capabilities, retries
// transient provider failures with exponential backoff, accounts token
// usage and cost, and mocks function calling in-prompt for models
// without native tool support.
package llm

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jamiechicago312/agent-sdk/internal/backoff"
	"github.com/jamiechicago312/agent-sdk/pkg/models"
	"github.com/jamiechicago312/agent-sdk/pkg/secrets"
)

// tracer emits gateway spans. Without a configured trace provider this
// is a no-op.
var tracer = otel.Tracer("github.com/jamiechicago312/agent-sdk/internal/llm")

// Config holds per-model gateway settings. Secrets redact themselves on
// serialization; a persisted config round-trips with credentials blanked.
type Config struct {
	// ServiceID names this LLM for registry lookup and event attribution.
	ServiceID string `json:"service_id" yaml:"service_id"`

	// Model is the provider-qualified model name
	// ("anthropic/claude-sonnet-4-20250514", "gpt-4o").
	Model string `json:"model" yaml:"model"`

	// Provider overrides provider selection when the model name alone is
	// ambiguous ("anthropic", "openai"). Inferred from Model when empty.
	Provider string `json:"provider,omitempty" yaml:"provider,omitempty"`

	// BaseURL overrides the provider endpoint, for proxies and
	// OpenAI-compatible servers.
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`

	APIKey             secrets.Secret `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	AWSAccessKeyID     secrets.Secret `json:"aws_access_key_id,omitempty" yaml:"aws_access_key_id,omitempty"`
	AWSSecretAccessKey secrets.Secret `json:"aws_secret_access_key,omitempty" yaml:"aws_secret_access_key,omitempty"`

	// NumRetries is the maximum number of completion attempts for
	// transient failures. Defaults to 5.
	NumRetries int `json:"num_retries,omitempty" yaml:"num_retries,omitempty"`

	// RetryMultiplier scales the exponential backoff term. Defaults to 8.
	RetryMultiplier float64 `json:"retry_multiplier,omitempty" yaml:"retry_multiplier,omitempty"`

	// RetryMinWait / RetryMaxWait clamp the backoff wait. Default 8s/64s.
	RetryMinWait time.Duration `json:"retry_min_wait,omitempty" yaml:"retry_min_wait,omitempty"`
	RetryMaxWait time.Duration `json:"retry_max_wait,omitempty" yaml:"retry_max_wait,omitempty"`

	// MaxOutputTokens bounds completion length. Defaults to 4096.
	MaxOutputTokens int `json:"max_output_tokens,omitempty" yaml:"max_output_tokens,omitempty"`

	// MaxInputTokens, when set, is the context budget used by the
	// condensation trigger.
	MaxInputTokens int `json:"max_input_tokens,omitempty" yaml:"max_input_tokens,omitempty"`

	Temperature *float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	TopP        *float64 `json:"top_p,omitempty" yaml:"top_p,omitempty"`

	// ReasoningEffort applies to reasoning-capable OpenAI models.
	ReasoningEffort string `json:"reasoning_effort,omitempty" yaml:"reasoning_effort,omitempty"`

	// ExtendedThinkingBudget enables Anthropic extended thinking with the
	// given token budget when > 0.
	ExtendedThinkingBudget int `json:"extended_thinking_budget,omitempty" yaml:"extended_thinking_budget,omitempty"`

	// NativeToolCalling forces native (true) or prompt-mocked (false)
	// function calling. Nil defers to the model capability table.
	NativeToolCalling *bool `json:"native_tool_calling,omitempty" yaml:"native_tool_calling,omitempty"`

	// DisablePromptCache turns off cache breakpoints on cache-capable
	// models.
	DisablePromptCache bool `json:"disable_prompt_cache,omitempty" yaml:"disable_prompt_cache,omitempty"`

	// InputCostPerToken / OutputCostPerToken compute cost locally when the
	// provider does not report it.
	InputCostPerToken  float64 `json:"input_cost_per_token,omitempty" yaml:"input_cost_per_token,omitempty"`
	OutputCostPerToken float64 `json:"output_cost_per_token,omitempty" yaml:"output_cost_per_token,omitempty"`

	// Timeout bounds a single completion attempt. Defaults to 5 minutes.
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// WithDefaults returns a copy with unset fields filled in.
func (c Config) WithDefaults() Config {
	if c.NumRetries == 0 {
		c.NumRetries = 5
	}
	if c.RetryMultiplier == 0 {
		c.RetryMultiplier = 8
	}
	if c.RetryMinWait == 0 {
		c.RetryMinWait = 8 * time.Second
	}
	if c.RetryMaxWait == 0 {
		c.RetryMaxWait = 64 * time.Second
	}
	if c.MaxOutputTokens == 0 {
		c.MaxOutputTokens = 4096
	}
	if c.Timeout == 0 {
		c.Timeout = 5 * time.Minute
	}
	return c
}

// Validate checks the config for option/model mismatches.
func (c Config) Validate() error {
	if c.Model == "" {
		return errors.New("llm config: model is required")
	}
	features := GetFeatures(c.Model)
	if c.ExtendedThinkingBudget > 0 && !features.SupportsExtendedThinking {
		return &UnsupportedOptionError{Model: c.Model, Option: "extended thinking"}
	}
	if c.ReasoningEffort != "" && !features.SupportsReasoningEffort {
		return &UnsupportedOptionError{Model: c.Model, Option: "reasoning effort"}
	}
	if c.NativeToolCalling != nil && *c.NativeToolCalling && !features.SupportsFunctionCalling {
		return &UnsupportedOptionError{Model: c.Model, Option: "native tool calling"}
	}
	return nil
}

// RetryListener observes retry attempts, receiving the attempt number
// just failed and the configured maximum.
type RetryListener func(attempt, maxAttempts int)

// LLM is a configured gateway to one model. Safe for concurrent use;
// metrics accumulate across all calls.
type LLM struct {
	config   Config
	features ModelFeatures
	provider Provider
	metrics  *Metrics
	counter  *TokenCounter
	logger   *slog.Logger

	retryListener RetryListener

	// sleep is swapped in tests to avoid real waits.
	sleep func(ctx context.Context, d time.Duration) error
}

// New builds an LLM from a validated config and a provider.
func New(config Config, provider Provider, logger *slog.Logger) (*LLM, error) {
	config = config.WithDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LLM{
		config:   config,
		features: GetFeatures(config.Model),
		provider: provider,
		metrics:  NewMetrics(config.Model),
		counter:  NewTokenCounter(config.Model),
		logger:   logger.With("component", "llm", "model", config.Model),
		sleep:    sleepContext,
	}, nil
}

// Config returns the gateway's configuration.
func (l *LLM) Config() Config { return l.config }

// Features returns the model's capability flags.
func (l *LLM) Features() ModelFeatures { return l.features }

// Metrics returns the accumulated spend for this LLM.
func (l *LLM) Metrics() *Metrics { return l.metrics }

// TokenCounter returns the counter used for context budgeting.
func (l *LLM) TokenCounter() *TokenCounter { return l.counter }

// SetRetryListener registers a callback invoked after each failed
// attempt that will be retried.
func (l *LLM) SetRetryListener(fn RetryListener) { l.retryListener = fn }

// UsesNativeToolCalling reports whether tool calls go through the
// provider's native API rather than the in-context grammar.
func (l *LLM) UsesNativeToolCalling() bool {
	if l.config.NativeToolCalling != nil {
		return *l.config.NativeToolCalling
	}
	return l.features.SupportsFunctionCalling
}

// Complete runs one logical completion: normalize, retry transient
// failures with exponential backoff, account usage and cost. The
// returned message contains parsed tool calls regardless of whether the
// model used native or prompt-mocked function calling.
func (l *LLM) Complete(ctx context.Context, messages []models.Message, tools []ToolSchema) (*Response, error) {
	ctx, span := tracer.Start(ctx, "llm.complete", trace.WithAttributes(
		attribute.String("llm.service_id", l.config.ServiceID),
		attribute.String("llm.model", l.config.Model),
	))
	defer span.End()

	req, err := l.prepareRequest(messages, tools)
	if err != nil {
		return nil, err
	}

	policy := backoff.Policy{
		Multiplier: l.config.RetryMultiplier,
		MinWait:    l.config.RetryMinWait,
		MaxWait:    l.config.RetryMaxWait,
		Jitter:     0.1,
	}

	var lastErr error
	for attempt := 1; attempt <= l.config.NumRetries; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, l.config.Timeout)
		resp, err := l.provider.Complete(attemptCtx, req)
		cancel()

		if err == nil {
			span.SetAttributes(
				attribute.Int64("llm.prompt_tokens", resp.Usage.PromptTokens),
				attribute.Int64("llm.completion_tokens", resp.Usage.CompletionTokens),
				attribute.Int("llm.attempts", attempt),
			)
			return l.finishResponse(req, resp, tools)
		}
		lastErr = l.classify(err)

		if !IsRetryable(lastErr) || attempt == l.config.NumRetries {
			break
		}

		wait := backoff.Compute(policy, attempt)
		var provErr *ProviderError
		if errors.As(lastErr, &provErr) && provErr.RetryAfter > 0 {
			wait = provErr.RetryAfter
			if wait > l.config.RetryMaxWait {
				wait = l.config.RetryMaxWait
			}
		}

		l.logger.Warn("completion attempt failed, retrying",
			"attempt", attempt,
			"max_attempts", l.config.NumRetries,
			"wait", wait,
			"error", lastErr)
		if l.retryListener != nil {
			l.retryListener(attempt, l.config.NumRetries)
		}
		if err := l.sleep(ctx, wait); err != nil {
			return nil, err
		}
	}
	span.RecordError(lastErr)
	span.SetStatus(codes.Error, "completion failed")
	return nil, lastErr
}

// prepareRequest normalizes messages and options for the target model.
func (l *LLM) prepareRequest(messages []models.Message, tools []ToolSchema) (Request, error) {
	native := l.UsesNativeToolCalling()
	forceString := l.forceStringSerializer()

	prepared := make([]models.Message, len(messages))
	for i, msg := range messages {
		msg.VisionEnabled = l.features.SupportsVision
		msg.CacheEnabled = l.features.SupportsPromptCache && !l.config.DisablePromptCache
		msg.FunctionCallingEnabled = native
		msg.ForceStringSerializer = forceString
		prepared[i] = msg
	}

	req := Request{
		Model:           l.config.Model,
		Messages:        prepared,
		Tools:           tools,
		MaxOutputTokens: l.config.MaxOutputTokens,
		Temperature:     l.config.Temperature,
		TopP:            l.config.TopP,
		CacheEnabled:    l.features.SupportsPromptCache && !l.config.DisablePromptCache,
	}

	// Reasoning models take no sampling knobs.
	if l.features.SupportsReasoningEffort {
		req.Temperature = nil
		req.TopP = nil
		req.ReasoningEffort = l.config.ReasoningEffort
	}
	if l.features.SupportsExtendedThinking && l.config.ExtendedThinkingBudget > 0 {
		req.ThinkingBudgetTokens = l.config.ExtendedThinkingBudget
		// Sampling knobs conflict with thinking.
		req.Temperature = nil
		req.TopP = nil
	}

	if req.CacheEnabled {
		markCacheBreakpoints(req.Messages)
	}

	if !native && len(tools) > 0 {
		return applyPromptMock(req)
	}
	return req, nil
}

// finishResponse parses prompt-mocked tool calls and accounts metrics.
func (l *LLM) finishResponse(req Request, resp *Response, tools []ToolSchema) (*Response, error) {
	if !l.UsesNativeToolCalling() && len(tools) > 0 {
		text, calls, err := ParseToolCalls(resp.Message.Text(), tools)
		if err != nil {
			return nil, err
		}
		if len(calls) > 0 {
			resp.Message.Content = []models.Content{models.TextContent(text)}
			resp.Message.ToolCalls = calls
		}
	}

	l.metrics.AddUsage(resp.Usage)
	cost := resp.Cost
	if cost == 0 {
		cost = float64(resp.Usage.PromptTokens)*l.config.InputCostPerToken +
			float64(resp.Usage.CompletionTokens)*l.config.OutputCostPerToken
		resp.Cost = cost
	}
	l.metrics.AddCost(cost)

	l.logger.Debug("completion finished",
		"response_id", resp.ID,
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
		"cache_read_tokens", resp.Usage.CacheReadTokens,
		"tool_calls", len(resp.Message.ToolCalls))
	return resp, nil
}

// classify wraps raw provider errors into the gateway taxonomy. Provider
// adapters already return typed errors; this is the fallback for
// anything that slipped through, keyed on the message text.
func (l *LLM) classify(err error) error {
	var provErr *ProviderError
	var authErr *AuthError
	var ctxErr *ContextWindowExceededError
	if errors.As(err, &provErr) || errors.As(err, &authErr) || errors.As(err, &ctxErr) {
		return err
	}
	if errors.Is(err, ErrNoResponse) {
		return &ProviderError{Model: l.config.Model, Recoverable: true, Cause: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &ProviderError{Model: l.config.Model, Recoverable: true, Cause: err}
	}
	if IsContextWindowMessage(err.Error()) {
		return &ContextWindowExceededError{Model: l.config.Model, Cause: err}
	}
	return &ProviderError{Model: l.config.Model, Cause: err}
}

// forceStringSerializer reports whether tool arguments must serialize as
// JSON strings. Some open-weight deployments reject structured
// arguments in replayed assistant turns.
func (l *LLM) forceStringSerializer() bool {
	base := strings.ToLower(baseModelName(l.config.Model))
	prefix := strings.ToLower(providerPrefix(l.config.Model))
	if strings.Contains(base, "deepseek") {
		return true
	}
	if strings.Contains(base, "kimi-k2") && prefix == "groq" {
		return true
	}
	return false
}

// markCacheBreakpoints sets cache markers on the last system content
// part and on the final content part of the most recent user or tool
// message, so the stable prefix of the conversation is cached.
func markCacheBreakpoints(messages []models.Message) {
	for i := range messages {
		if messages[i].Role == models.RoleSystem && len(messages[i].Content) > 0 {
			markLastPart(&messages[i])
			break
		}
	}
	for i := len(messages) - 1; i >= 0; i-- {
		role := messages[i].Role
		if (role == models.RoleUser || role == models.RoleTool) && len(messages[i].Content) > 0 {
			markLastPart(&messages[i])
			break
		}
	}
}

// markLastPart clones the content slice before setting the marker so the
// caller's messages stay untouched.
func markLastPart(msg *models.Message) {
	content := append([]models.Content{}, msg.Content...)
	content[len(content)-1].CachePrompt = true
	msg.Content = content
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
