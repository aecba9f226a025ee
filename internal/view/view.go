// Package view projects a raw conversation event log into the working
// view the agent reasons over. Projection is a pure function of the
// log: it applies condensation (hiding forgotten events, inserting the
// summary), drops tool calls with no matching result, and converts the
// survivors into LLM messages.
package view

import (
	"github.com/jamiechicago312/agent-sdk/pkg/events"
	"github.com/jamiechicago312/agent-sdk/pkg/models"
)

// View is the agent-visible slice of a conversation.
type View struct {
	// Events are the visible events in order, with any condensation
	// summary inserted as a synthetic message event.
	Events []events.Event

	// UnhandledCondensationRequest is true when the log ends with a
	// condensation request that no condensation has answered yet. The
	// runtime routes the next step to the condenser instead of the agent.
	UnhandledCondensationRequest bool
}

// Project builds the view for an event log.
func Project(log []events.Event) View {
	forgotten := map[string]bool{}
	var lastCondensation *events.Event
	for i := range log {
		if log[i].Kind == events.KindCondensation && log[i].Condensation != nil {
			for _, id := range log[i].Condensation.ForgottenEventIDs {
				forgotten[id] = true
			}
			lastCondensation = &log[i]
		}
	}

	visible := make([]events.Event, 0, len(log))
	unhandledRequest := false
	for _, e := range log {
		switch e.Kind {
		case events.KindCondensation:
			continue
		case events.KindCondensationRequest:
			// A request is handled by any condensation that follows it.
			unhandledRequest = !handledBy(log, e.ID)
			continue
		}
		if forgotten[e.ID] {
			continue
		}
		visible = append(visible, e)
	}

	visible = filterUnmatchedToolCalls(visible)

	// The summary offset indexes the filtered sequence. A summary with
	// no offset is ignored.
	if lastCondensation != nil &&
		lastCondensation.Condensation.Summary != nil &&
		lastCondensation.Condensation.SummaryOffset != nil {
		visible = insertSummary(visible, lastCondensation)
	}

	return View{
		Events:                       visible,
		UnhandledCondensationRequest: unhandledRequest,
	}
}

// handledBy reports whether a condensation event appears after the
// request with the given id.
func handledBy(log []events.Event, requestID string) bool {
	seen := false
	for _, e := range log {
		if e.ID == requestID {
			seen = true
			continue
		}
		if seen && e.Kind == events.KindCondensation {
			return true
		}
	}
	return false
}

// insertSummary places the condensation summary into the surviving
// sequence as a synthetic message event. Offsets clamp to the bounds of
// the sequence.
func insertSummary(visible []events.Event, condensation *events.Event) []events.Event {
	offset := *condensation.Condensation.SummaryOffset
	if offset < 0 {
		offset = 0
	}
	if offset > len(visible) {
		offset = len(visible)
	}

	summary := events.Event{
		ID:        "summary-" + condensation.ID,
		Timestamp: condensation.Timestamp,
		Source:    events.SourceSystem,
		Kind:      events.KindMessage,
		Message: &models.Message{
			Role: models.RoleUser,
			Content: []models.Content{models.TextContent(
				"Conversation history has been condensed. Summary of earlier events:\n" +
					*condensation.Condensation.Summary)},
		},
	}

	out := make([]events.Event, 0, len(visible)+1)
	out = append(out, visible[:offset]...)
	out = append(out, summary)
	out = append(out, visible[offset:]...)
	return out
}

// filterUnmatchedToolCalls drops actions with no observation and
// observations with no action, so the LLM never sees a dangling tool
// call or an orphaned result. An empty tool call id never matches
// anything.
func filterUnmatchedToolCalls(visible []events.Event) []events.Event {
	actions := map[string]bool{}
	observations := map[string]bool{}
	for _, e := range visible {
		switch e.Kind {
		case events.KindAction:
			if e.Action != nil && e.Action.ToolCallID != "" {
				actions[e.Action.ToolCallID] = true
			}
		case events.KindObservation:
			if e.Observation != nil && e.Observation.ToolCallID != "" {
				observations[e.Observation.ToolCallID] = true
			}
		}
	}

	out := make([]events.Event, 0, len(visible))
	for _, e := range visible {
		switch e.Kind {
		case events.KindAction:
			if e.Action == nil || e.Action.ToolCallID == "" || !observations[e.Action.ToolCallID] {
				continue
			}
		case events.KindObservation:
			if e.Observation == nil || e.Observation.ToolCallID == "" || !actions[e.Observation.ToolCallID] {
				continue
			}
		}
		out = append(out, e)
	}
	return out
}
