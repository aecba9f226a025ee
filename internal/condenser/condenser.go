// Package condenser shrinks long conversation histories. A condenser
// watches the projected view and, when it grows past its limits,
// produces a condensation event that forgets a middle slice of history
// and replaces it with an LLM-written summary.
package condenser

import (
	"context"
	"fmt"
	"strings"

	"github.com/jamiechicago312/agent-sdk/internal/llm"
	"github.com/jamiechicago312/agent-sdk/internal/view"
	"github.com/jamiechicago312/agent-sdk/pkg/events"
	"github.com/jamiechicago312/agent-sdk/pkg/models"
)

// Condenser decides when and how to condense a conversation view.
type Condenser interface {
	// ShouldCondense reports whether the view has outgrown its limits.
	ShouldCondense(v view.View) bool

	// Condense produces the condensation event for the view.
	Condense(ctx context.Context, v view.View) (events.Event, error)
}

// SummarizingCondenser forgets the middle of the conversation and
// replaces it with an LLM-generated summary. The head of the
// conversation (system prompt, initial user task) is always kept.
type SummarizingCondenser struct {
	llm *llm.LLM

	// MaxSize is the view event count that triggers condensation.
	MaxSize int

	// KeepFirst is how many leading events survive every condensation.
	KeepFirst int
}

// NewSummarizingCondenser builds a condenser backed by the given LLM.
// Defaults: MaxSize 120, KeepFirst 4.
func NewSummarizingCondenser(gateway *llm.LLM, maxSize, keepFirst int) (*SummarizingCondenser, error) {
	if maxSize <= 0 {
		maxSize = 120
	}
	if keepFirst < 0 {
		keepFirst = 4
	}
	if keepFirst >= maxSize/2 {
		return nil, fmt.Errorf("keep_first %d must be smaller than half of max_size %d", keepFirst, maxSize)
	}
	return &SummarizingCondenser{llm: gateway, MaxSize: maxSize, KeepFirst: keepFirst}, nil
}

// ShouldCondense implements Condenser.
func (c *SummarizingCondenser) ShouldCondense(v view.View) bool {
	return len(v.Events) > c.MaxSize
}

// Condense implements Condenser. It keeps the first KeepFirst events
// and the most recent half of the budget, forgets everything between,
// and summarizes the forgotten slice (folding in any earlier summary).
func (c *SummarizingCondenser) Condense(ctx context.Context, v view.View) (events.Event, error) {
	head := v.Events[:min(c.KeepFirst, len(v.Events))]
	targetSize := c.MaxSize / 2
	tailLen := max(targetSize-len(head), 1)
	if tailLen >= len(v.Events)-len(head) {
		// Nothing in the middle to forget.
		return events.Event{}, fmt.Errorf("view too small to condense: %d events", len(v.Events))
	}

	forgotten := v.Events[len(head) : len(v.Events)-tailLen]

	var previousSummary string
	ids := make([]string, 0, len(forgotten))
	for _, e := range forgotten {
		ids = append(ids, e.ID)
		if strings.HasPrefix(e.ID, "summary-") && e.Message != nil {
			previousSummary = e.Message.Text()
		}
	}

	summary, err := c.summarize(ctx, previousSummary, forgotten)
	if err != nil {
		return events.Event{}, err
	}

	offset := len(head)
	return events.NewCondensationEvent(events.CondensationPayload{
		ForgottenEventIDs: ids,
		Summary:           &summary,
		SummaryOffset:     &offset,
	}), nil
}

const summaryPrompt = `You are maintaining a running summary of an agent conversation that is being truncated to fit the context window. Combine the previous summary (if any) with the events below into a single updated summary.

Track: the user's task and constraints, what the agent has done so far, key file paths and their state, commands run and their outcomes, errors encountered and how they were resolved, and what remains to be done. Be specific; the agent will rely on this summary in place of the original history.`

func (c *SummarizingCondenser) summarize(ctx context.Context, previousSummary string, forgotten []events.Event) (string, error) {
	var b strings.Builder
	if previousSummary != "" {
		b.WriteString("PREVIOUS SUMMARY:\n")
		b.WriteString(previousSummary)
		b.WriteString("\n\n")
	}
	b.WriteString("EVENTS TO FOLD IN:\n")
	for _, e := range forgotten {
		b.WriteString(renderEvent(e))
		b.WriteString("\n")
	}

	messages := []models.Message{
		models.SystemMessage(summaryPrompt),
		models.UserMessage(b.String()),
	}
	resp, err := c.llm.Complete(ctx, messages, nil)
	if err != nil {
		return "", fmt.Errorf("summarize history: %w", err)
	}
	return resp.Message.Text(), nil
}

// renderEvent produces a compact one-line description for the summary
// prompt.
func renderEvent(e events.Event) string {
	switch e.Kind {
	case events.KindMessage:
		if e.Message == nil {
			return ""
		}
		return fmt.Sprintf("[%s message] %s", e.Source, truncate(e.Message.Text(), 2000))
	case events.KindAction:
		if e.Action == nil {
			return ""
		}
		return fmt.Sprintf("[action] %s(%s)", e.Action.ToolName, truncate(string(e.Action.Arguments), 1000))
	case events.KindObservation:
		if e.Observation == nil {
			return ""
		}
		status := "ok"
		if e.Observation.IsError {
			status = "error"
		}
		return fmt.Sprintf("[observation %s] %s: %s", status, e.Observation.ToolName, truncate(e.Observation.Text(), 2000))
	case events.KindSystemPrompt:
		return "[system prompt]"
	default:
		return fmt.Sprintf("[%s]", e.Kind)
	}
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
