package view

import (
	"github.com/jamiechicago312/agent-sdk/pkg/events"
	"github.com/jamiechicago312/agent-sdk/pkg/models"
)

// Messages converts the view into the message list sent to the LLM.
// Pause, finished, and error events carry runtime state, not
// conversation content, and are skipped.
func (v View) Messages() []models.Message {
	out := make([]models.Message, 0, len(v.Events))
	for _, e := range v.Events {
		switch e.Kind {
		case events.KindSystemPrompt:
			out = append(out, models.SystemMessage(e.SystemPrompt))

		case events.KindMessage:
			if e.Message != nil {
				out = append(out, *e.Message)
			}

		case events.KindAction:
			if e.Action == nil {
				continue
			}
			msg := models.Message{
				Role:          models.RoleAssistant,
				ReasoningText: e.Action.ReasoningText,
				ToolCalls: []models.ToolCall{{
					ID:        e.Action.ToolCallID,
					Name:      e.Action.ToolName,
					Arguments: e.Action.Arguments,
				}},
			}
			if e.Action.Thought != "" {
				msg.Content = []models.Content{models.TextContent(e.Action.Thought)}
			}
			out = append(out, msg)

		case events.KindObservation:
			if e.Observation == nil {
				continue
			}
			out = append(out, models.Message{
				Role:       models.RoleTool,
				ToolCallID: e.Observation.ToolCallID,
				Content:    e.Observation.Content,
			})
		}
	}
	return out
}
