// Package agent implements the step engine: one step is one LLM turn,
// projected from the conversation view and emitted back as events. The
// agent never executes tools or mutates conversation state; the
// conversation runtime owns both.
package agent

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jamiechicago312/agent-sdk/internal/llm"
	"github.com/jamiechicago312/agent-sdk/internal/tools"
	"github.com/jamiechicago312/agent-sdk/internal/view"
	"github.com/jamiechicago312/agent-sdk/pkg/events"
)

// DefaultSystemPrompt is used when no system prompt is configured.
const DefaultSystemPrompt = `You are a helpful autonomous agent. Work on the user's task step by step, using the available tools to act and observe. Think before acting. When the task is complete, call the finish tool with a short summary of what was done; if no tool fits, reply with a plain message instead.`

// Agent binds an LLM gateway to a fixed tool set and a system prompt.
type Agent struct {
	llm          *llm.LLM
	tools        map[string]*tools.Tool
	schemas      []llm.ToolSchema
	systemPrompt string
	logger       *slog.Logger
}

// New builds an agent. Tool names must be unique; an empty system prompt
// falls back to DefaultSystemPrompt.
func New(gateway *llm.LLM, toolset []*tools.Tool, systemPrompt string, logger *slog.Logger) (*Agent, error) {
	if gateway == nil {
		return nil, fmt.Errorf("agent requires an llm")
	}
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}
	if logger == nil {
		logger = slog.Default()
	}

	byName := make(map[string]*tools.Tool, len(toolset))
	schemas := make([]llm.ToolSchema, 0, len(toolset))
	for _, t := range toolset {
		if _, ok := byName[t.Name]; ok {
			return nil, fmt.Errorf("duplicate tool name %q", t.Name)
		}
		byName[t.Name] = t
		schemas = append(schemas, llm.ToolSchema{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.Schema,
		})
	}

	return &Agent{
		llm:          gateway,
		tools:        byName,
		schemas:      schemas,
		systemPrompt: systemPrompt,
		logger:       logger.With("component", "agent"),
	}, nil
}

// SystemPrompt returns the prompt recorded at conversation start.
func (a *Agent) SystemPrompt() string { return a.systemPrompt }

// LLM returns the gateway, whose metrics the conversation reads for
// budget enforcement.
func (a *Agent) LLM() *llm.LLM { return a.llm }

// Tool looks up a tool by name.
func (a *Agent) Tool(name string) (*tools.Tool, bool) {
	t, ok := a.tools[name]
	return t, ok
}

// Tools returns the agent's tool set in no particular order.
func (a *Agent) Tools() []*tools.Tool {
	out := make([]*tools.Tool, 0, len(a.tools))
	for _, t := range a.tools {
		out = append(out, t)
	}
	return out
}

// Step runs one LLM turn over the view and returns the resulting events.
//
// A response with tool calls becomes one action event per call, with the
// assistant's text carried as the first action's thought. Calls whose
// arguments fail schema validation additionally get an error observation,
// so the executor is never invoked for them and the model sees the
// validation failure next turn. A response with no tool calls becomes a
// single agent message event, which ends the agent's turn.
//
// A call naming a tool outside the agent's tool set fails the whole step
// with an error wrapping tools.ErrToolNotFound.
func (a *Agent) Step(ctx context.Context, v view.View) ([]events.Event, error) {
	resp, err := a.llm.Complete(ctx, v.Messages(), a.schemas)
	if err != nil {
		return nil, err
	}

	msg := resp.Message
	if len(msg.ToolCalls) == 0 {
		a.logger.Debug("step produced a message", "response_id", resp.ID)
		return []events.Event{events.NewMessageEvent(events.SourceAgent, msg)}, nil
	}

	out := make([]events.Event, 0, len(msg.ToolCalls))
	for i, call := range msg.ToolCalls {
		tool, ok := a.tools[call.Name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", tools.ErrToolNotFound, call.Name)
		}

		action := events.ActionPayload{
			ToolName:      call.Name,
			ToolCallID:    call.ID,
			Arguments:     call.Arguments,
			LLMResponseID: resp.ID,
		}
		if i == 0 {
			action.Thought = msg.Text()
			action.ReasoningText = msg.ReasoningText
		}
		out = append(out, events.NewActionEvent(action))

		if err := tool.Validate(call.Arguments); err != nil {
			a.logger.Warn("tool arguments rejected",
				"tool", call.Name, "tool_call_id", call.ID, "error", err)
			out = append(out, events.NewErrorObservation(call.ID, call.Name,
				fmt.Sprintf("arguments failed to validate: %v", err)))
		}
	}

	a.logger.Debug("step produced actions",
		"response_id", resp.ID, "actions", len(msg.ToolCalls))
	return out, nil
}
