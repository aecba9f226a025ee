package tools

import (
	"context"
	"encoding/json"
)

// FinishToolName is the built-in tool the agent calls to end its task.
const FinishToolName = "finish"

// ThinkToolName is the built-in no-op tool for recording reasoning.
const ThinkToolName = "think"

type finishArgs struct {
	Message string `json:"message"`
}

// NewFinishTool builds the built-in finish tool. Calling it marks the
// task complete; the runtime transitions to the finished state.
func NewFinishTool() *Tool {
	return &Tool{
		Name: FinishToolName,
		Description: "Signal that the task is complete. Use this when you have " +
			"fully addressed the user's request. The message is shown to the user " +
			"as the final summary of what was done.",
		Schema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"message": {
					"type": "string",
					"description": "Final summary of the completed work"
				}
			},
			"required": ["message"]
		}`),
		Annotations: Annotations{ReadOnlyHint: true, IdempotentHint: true},
		Executor: ExecutorFunc(func(_ context.Context, args json.RawMessage) (*Result, error) {
			var parsed finishArgs
			if err := json.Unmarshal(args, &parsed); err != nil {
				return nil, err
			}
			return TextResult(parsed.Message), nil
		}),
	}
}

type thinkArgs struct {
	Thought string `json:"thought"`
}

// NewThinkTool builds the built-in think tool. It does nothing except
// record the thought, giving models without native reasoning a place to
// plan between actions.
func NewThinkTool() *Tool {
	return &Tool{
		Name: ThinkToolName,
		Description: "Record a thought without taking any action. Use this to " +
			"reason about complex problems before acting.",
		Schema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"thought": {
					"type": "string",
					"description": "The thought to record"
				}
			},
			"required": ["thought"]
		}`),
		Annotations: Annotations{ReadOnlyHint: true, IdempotentHint: true},
		Executor: ExecutorFunc(func(_ context.Context, _ json.RawMessage) (*Result, error) {
			return TextResult("Your thought has been logged."), nil
		}),
	}
}
