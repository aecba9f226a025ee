package llm

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jamiechicago312/agent-sdk/pkg/models"
)

// scriptedProvider returns canned results in order, recording requests.
type scriptedProvider struct {
	results []scriptedResult
	calls   int
	lastReq Request
}

type scriptedResult struct {
	resp *Response
	err  error
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Complete(_ context.Context, req Request) (*Response, error) {
	p.lastReq = req
	if p.calls >= len(p.results) {
		return nil, errors.New("scripted provider exhausted")
	}
	r := p.results[p.calls]
	p.calls++
	return r.resp, r.err
}

func textResponse(id, text string) *Response {
	return &Response{
		ID:      id,
		Message: models.AssistantMessage(text),
		Usage:   models.TokenUsage{PromptTokens: 100, CompletionTokens: 20},
	}
}

func newTestLLM(t *testing.T, config Config, provider Provider) *LLM {
	t.Helper()
	l, err := New(config, provider, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	l.sleep = func(context.Context, time.Duration) error { return nil }
	return l
}

func TestCompleteRetriesTransientErrors(t *testing.T) {
	provider := &scriptedProvider{results: []scriptedResult{
		{err: &ProviderError{Model: "gpt-4o", StatusCode: 429, Recoverable: true}},
		{err: &ProviderError{Model: "gpt-4o", StatusCode: 503, Recoverable: true}},
		{resp: textResponse("resp_1", "done")},
	}}

	var retries [][2]int
	l := newTestLLM(t, Config{ServiceID: "main", Model: "gpt-4o"}, provider)
	l.SetRetryListener(func(attempt, max int) {
		retries = append(retries, [2]int{attempt, max})
	})

	resp, err := l.Complete(context.Background(), []models.Message{models.UserMessage("hi")}, nil)
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if resp.Message.Text() != "done" {
		t.Errorf("text = %q", resp.Message.Text())
	}
	if provider.calls != 3 {
		t.Errorf("provider calls = %d, want 3", provider.calls)
	}
	if len(retries) != 2 || retries[0] != [2]int{1, 5} || retries[1] != [2]int{2, 5} {
		t.Errorf("retry notifications = %v", retries)
	}
}

func TestCompleteDoesNotRetryAuthErrors(t *testing.T) {
	provider := &scriptedProvider{results: []scriptedResult{
		{err: &AuthError{Model: "gpt-4o", Cause: errors.New("invalid api key")}},
	}}
	l := newTestLLM(t, Config{ServiceID: "main", Model: "gpt-4o"}, provider)

	_, err := l.Complete(context.Background(), []models.Message{models.UserMessage("hi")}, nil)
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("error = %v, want AuthError", err)
	}
	if provider.calls != 1 {
		t.Errorf("provider calls = %d, want 1", provider.calls)
	}
}

func TestCompleteDoesNotRetryContextWindowErrors(t *testing.T) {
	provider := &scriptedProvider{results: []scriptedResult{
		{err: &ContextWindowExceededError{Model: "gpt-4o", Cause: errors.New("maximum context length exceeded")}},
	}}
	l := newTestLLM(t, Config{ServiceID: "main", Model: "gpt-4o"}, provider)

	_, err := l.Complete(context.Background(), []models.Message{models.UserMessage("hi")}, nil)
	var ctxErr *ContextWindowExceededError
	if !errors.As(err, &ctxErr) {
		t.Fatalf("error = %v, want ContextWindowExceededError", err)
	}
	if provider.calls != 1 {
		t.Errorf("provider calls = %d, want 1", provider.calls)
	}
}

func TestCompleteGivesUpAfterMaxAttempts(t *testing.T) {
	transient := scriptedResult{err: &ProviderError{Model: "gpt-4o", Recoverable: true, Cause: errors.New("boom")}}
	provider := &scriptedProvider{results: []scriptedResult{transient, transient, transient}}
	l := newTestLLM(t, Config{ServiceID: "main", Model: "gpt-4o", NumRetries: 3}, provider)

	_, err := l.Complete(context.Background(), []models.Message{models.UserMessage("hi")}, nil)
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if provider.calls != 3 {
		t.Errorf("provider calls = %d, want 3", provider.calls)
	}
}

func TestCompleteRetriesEmptyResponse(t *testing.T) {
	provider := &scriptedProvider{results: []scriptedResult{
		{err: ErrNoResponse},
		{resp: textResponse("resp_1", "recovered")},
	}}
	l := newTestLLM(t, Config{ServiceID: "main", Model: "gpt-4o"}, provider)

	resp, err := l.Complete(context.Background(), []models.Message{models.UserMessage("hi")}, nil)
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if resp.Message.Text() != "recovered" {
		t.Errorf("text = %q", resp.Message.Text())
	}
}

func TestCompleteAccumulatesMetrics(t *testing.T) {
	provider := &scriptedProvider{results: []scriptedResult{
		{resp: textResponse("r1", "one")},
		{resp: textResponse("r2", "two")},
	}}
	l := newTestLLM(t, Config{
		ServiceID:          "main",
		Model:              "gpt-4o",
		InputCostPerToken:  0.00001,
		OutputCostPerToken: 0.00002,
	}, provider)

	for range 2 {
		if _, err := l.Complete(context.Background(), []models.Message{models.UserMessage("hi")}, nil); err != nil {
			t.Fatal(err)
		}
	}

	snap := l.Metrics().Snapshot()
	if snap.AccumulatedTokenUsage.PromptTokens != 200 {
		t.Errorf("prompt tokens = %d, want 200", snap.AccumulatedTokenUsage.PromptTokens)
	}
	if snap.AccumulatedTokenUsage.CompletionTokens != 40 {
		t.Errorf("completion tokens = %d, want 40", snap.AccumulatedTokenUsage.CompletionTokens)
	}
	// 2 * (100*0.00001 + 20*0.00002) = 0.0028
	want := 0.0028
	if diff := snap.AccumulatedCost - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("cost = %v, want %v", snap.AccumulatedCost, want)
	}
}

func TestCompletePromptMocksFunctionCalling(t *testing.T) {
	raw := "Running it now.\n\n<function=execute_bash>\n<parameter=command>ls</parameter>\n</function>"
	provider := &scriptedProvider{results: []scriptedResult{
		{resp: textResponse("r1", raw)},
	}}
	// deepseek-r1 has no native function calling.
	l := newTestLLM(t, Config{ServiceID: "main", Model: "deepseek-r1"}, provider)

	resp, err := l.Complete(context.Background(),
		[]models.Message{models.SystemMessage("agent"), models.UserMessage("list files")},
		[]ToolSchema{execSchema})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	if provider.lastReq.Tools != nil {
		t.Error("tools should not reach the provider when prompt-mocked")
	}
	if !strings.Contains(provider.lastReq.Messages[0].Text(), "<function=") {
		t.Error("system prompt missing tool grammar")
	}

	if len(resp.Message.ToolCalls) != 1 {
		t.Fatalf("tool calls = %d, want 1", len(resp.Message.ToolCalls))
	}
	if resp.Message.ToolCalls[0].Name != "execute_bash" {
		t.Errorf("tool name = %q", resp.Message.ToolCalls[0].Name)
	}
	var args map[string]any
	if err := json.Unmarshal(resp.Message.ToolCalls[0].Arguments, &args); err != nil {
		t.Fatal(err)
	}
	if args["command"] != "ls" {
		t.Errorf("command = %v", args["command"])
	}
	if resp.Message.Text() != "Running it now." {
		t.Errorf("text = %q", resp.Message.Text())
	}
}

func TestCompleteMarksCacheBreakpoints(t *testing.T) {
	provider := &scriptedProvider{results: []scriptedResult{
		{resp: textResponse("r1", "ok")},
	}}
	l := newTestLLM(t, Config{ServiceID: "main", Model: "claude-sonnet-4-20250514"}, provider)

	input := []models.Message{
		models.SystemMessage("agent"),
		models.UserMessage("first"),
		models.AssistantMessage("reply"),
		models.UserMessage("second"),
	}
	if _, err := l.Complete(context.Background(), input, nil); err != nil {
		t.Fatal(err)
	}

	sent := provider.lastReq.Messages
	if !sent[0].Content[len(sent[0].Content)-1].CachePrompt {
		t.Error("system message missing cache marker")
	}
	if !sent[3].Content[len(sent[3].Content)-1].CachePrompt {
		t.Error("most recent user message missing cache marker")
	}
	if sent[1].Content[0].CachePrompt {
		t.Error("older user message should not carry a cache marker")
	}
	// Caller's messages stay untouched.
	if input[0].Content[0].CachePrompt || input[3].Content[0].CachePrompt {
		t.Error("cache markers leaked into caller's messages")
	}
}

func TestCompleteHonorsRetryAfter(t *testing.T) {
	provider := &scriptedProvider{results: []scriptedResult{
		{err: &ProviderError{Model: "gpt-4o", StatusCode: 429, Recoverable: true, RetryAfter: 2 * time.Second}},
		{resp: textResponse("r1", "ok")},
	}}
	l := newTestLLM(t, Config{ServiceID: "main", Model: "gpt-4o"}, provider)

	var waited time.Duration
	l.sleep = func(_ context.Context, d time.Duration) error {
		waited = d
		return nil
	}

	if _, err := l.Complete(context.Background(), []models.Message{models.UserMessage("hi")}, nil); err != nil {
		t.Fatal(err)
	}
	if waited != 2*time.Second {
		t.Errorf("waited %v, want provider-suggested 2s", waited)
	}
}

func TestCompleteReasoningModelDropsSampling(t *testing.T) {
	temp := 0.7
	topP := 0.9
	provider := &scriptedProvider{results: []scriptedResult{
		{resp: textResponse("r1", "ok")},
	}}
	l := newTestLLM(t, Config{
		ServiceID:       "main",
		Model:           "o3-mini",
		Temperature:     &temp,
		TopP:            &topP,
		ReasoningEffort: "high",
	}, provider)

	if _, err := l.Complete(context.Background(), []models.Message{models.UserMessage("hi")}, nil); err != nil {
		t.Fatal(err)
	}
	req := provider.lastReq
	if req.Temperature != nil || req.TopP != nil {
		t.Error("sampling knobs should be dropped for reasoning models")
	}
	if req.ReasoningEffort != "high" {
		t.Errorf("reasoning effort = %q", req.ReasoningEffort)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"valid", Config{Model: "gpt-4o"}, false},
		{"missing model", Config{}, true},
		{"thinking on non-thinking model", Config{Model: "gpt-4o", ExtendedThinkingBudget: 4096}, true},
		{"thinking on claude", Config{Model: "claude-sonnet-4-20250514", ExtendedThinkingBudget: 4096}, false},
		{"reasoning effort on claude", Config{Model: "claude-sonnet-4-20250514", ReasoningEffort: "high"}, true},
		{"forced native tools on bare model", Config{Model: "deepseek-r1", NativeToolCalling: boolPtr(true)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.WithDefaults().Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func boolPtr(b bool) *bool { return &b }

func TestForceStringSerializer(t *testing.T) {
	tests := []struct {
		model string
		want  bool
	}{
		{"deepseek-chat", true},
		{"groq/kimi-k2-instruct", true},
		{"openrouter/kimi-k2-instruct", false},
		{"gpt-4o", false},
	}
	for _, tt := range tests {
		provider := &scriptedProvider{}
		l := newTestLLM(t, Config{ServiceID: "x", Model: tt.model}, provider)
		if got := l.forceStringSerializer(); got != tt.want {
			t.Errorf("forceStringSerializer(%q) = %v, want %v", tt.model, got, tt.want)
		}
	}
}
