// Package tools defines the tool model for the agent runtime: tool
// definitions with JSON Schema arguments, executors that run them, and
// a registry mapping tool names to factories.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jamiechicago312/agent-sdk/pkg/models"
)

var tracer = otel.Tracer("github.com/jamiechicago312/agent-sdk/internal/tools")

// Common sentinel errors for tool operations
var (
	// ErrToolNotFound indicates a requested tool doesn't exist.
	ErrToolNotFound = errors.New("tool not found")

	// ErrNoExecutor indicates a tool definition has no executor attached.
	ErrNoExecutor = errors.New("tool has no executor")
)

// Annotations carry behavior hints about a tool, following the MCP
// annotation vocabulary. The confirmation policy uses them to decide
// which actions need user approval.
type Annotations struct {
	// ReadOnlyHint marks tools that do not modify their environment.
	ReadOnlyHint bool `json:"readOnlyHint,omitempty"`

	// DestructiveHint marks tools that may perform destructive updates.
	DestructiveHint bool `json:"destructiveHint,omitempty"`

	// IdempotentHint marks tools where repeated calls with the same
	// arguments have no additional effect.
	IdempotentHint bool `json:"idempotentHint,omitempty"`

	// OpenWorldHint marks tools that interact with outside entities.
	OpenWorldHint bool `json:"openWorldHint,omitempty"`
}

// Result is the outcome of one tool execution. Execution failures the
// agent should observe and recover from are expressed as IsError=true,
// not as Go errors.
type Result struct {
	Content []models.Content
	IsError bool
}

// TextResult builds a plain text result.
func TextResult(text string) *Result {
	return &Result{Content: []models.Content{models.TextContent(text)}}
}

// ErrorResult builds an error result the model can observe.
func ErrorResult(text string) *Result {
	return &Result{Content: []models.Content{models.TextContent(text)}, IsError: true}
}

// Executor runs tool calls. Implementations must be safe for concurrent
// use; the runtime may execute tools from multiple conversations.
type Executor interface {
	// Execute runs one call with validated arguments.
	Execute(ctx context.Context, args json.RawMessage) (*Result, error)

	// Close releases executor resources. Idempotent.
	Close() error
}

// ExecutorFunc adapts a function to the Executor interface, for local
// in-process tools.
type ExecutorFunc func(ctx context.Context, args json.RawMessage) (*Result, error)

// Execute implements Executor.
func (f ExecutorFunc) Execute(ctx context.Context, args json.RawMessage) (*Result, error) {
	return f(ctx, args)
}

// Close implements Executor.
func (f ExecutorFunc) Close() error { return nil }

// Tool couples a definition the LLM sees with the executor that runs it.
type Tool struct {
	// Name uniquely identifies the tool within an agent.
	Name string

	// Description tells the model what the tool does.
	Description string

	// Schema is the JSON Schema for the tool's arguments.
	Schema json.RawMessage

	// Annotations carry behavior hints for confirmation policies.
	Annotations Annotations

	// Executor runs calls to this tool.
	Executor Executor
}

// Validate checks arguments against the tool's schema. A nil schema
// accepts anything.
func (t *Tool) Validate(args json.RawMessage) error {
	if len(t.Schema) == 0 {
		return nil
	}
	return validateAgainstSchema(t.Name, t.Schema, args)
}

// Call validates the arguments and executes the tool.
func (t *Tool) Call(ctx context.Context, args json.RawMessage) (*Result, error) {
	if t.Executor == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoExecutor, t.Name)
	}
	if err := t.Validate(args); err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "tool.execute", trace.WithAttributes(
		attribute.String("tool.name", t.Name),
	))
	defer span.End()

	result, err := t.Executor.Execute(ctx, args)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "tool execution failed")
		return nil, err
	}
	span.SetAttributes(attribute.Bool("tool.is_error", result.IsError))
	return result, nil
}
