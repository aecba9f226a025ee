package view

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/jamiechicago312/agent-sdk/pkg/events"
	"github.com/jamiechicago312/agent-sdk/pkg/models"
)

func actionWithObservation(toolCallID string) (events.Event, events.Event) {
	action := events.NewActionEvent(events.ActionPayload{
		ToolName:   "execute_bash",
		ToolCallID: toolCallID,
		Arguments:  json.RawMessage(`{"command":"ls"}`),
	})
	obs := events.NewObservationEvent(events.ObservationPayload{
		ToolCallID: toolCallID,
		ToolName:   "execute_bash",
		Content:    []models.Content{models.TextContent("ok")},
	})
	return action, obs
}

func TestProjectPassesThroughSimpleLog(t *testing.T) {
	action, obs := actionWithObservation("c1")
	log := []events.Event{
		events.NewSystemPromptEvent("be helpful"),
		events.NewMessageEvent(events.SourceUser, models.UserMessage("hi")),
		action,
		obs,
	}

	v := Project(log)
	if len(v.Events) != 4 {
		t.Fatalf("visible events = %d, want 4", len(v.Events))
	}
	if v.UnhandledCondensationRequest {
		t.Error("unexpected unhandled condensation request")
	}
}

func TestProjectHidesForgottenEvents(t *testing.T) {
	userMsg := events.NewMessageEvent(events.SourceUser, models.UserMessage("old question"))
	action, obs := actionWithObservation("c1")
	summary := "agent listed files"
	offset := 1
	condensation := events.NewCondensationEvent(events.CondensationPayload{
		ForgottenEventIDs: []string{action.ID, obs.ID},
		Summary:           &summary,
		SummaryOffset:     &offset,
	})
	log := []events.Event{
		events.NewSystemPromptEvent("be helpful"),
		userMsg,
		action,
		obs,
		condensation,
		events.NewMessageEvent(events.SourceUser, models.UserMessage("next question")),
	}

	v := Project(log)

	for _, e := range v.Events {
		if e.ID == action.ID || e.ID == obs.ID {
			t.Errorf("forgotten event %s still visible", e.ID)
		}
		if e.Kind == events.KindCondensation {
			t.Error("condensation event leaked into the view")
		}
	}

	// system_prompt, summary at offset 1, user, user
	if len(v.Events) != 4 {
		t.Fatalf("visible events = %d, want 4", len(v.Events))
	}
	if v.Events[1].Message == nil || !strings.Contains(v.Events[1].Message.Text(), summary) {
		t.Errorf("summary not inserted at offset 1: %+v", v.Events[1])
	}
}

func TestProjectClampsSummaryOffset(t *testing.T) {
	summary := "everything so far"
	offset := 99
	condensation := events.NewCondensationEvent(events.CondensationPayload{
		Summary:       &summary,
		SummaryOffset: &offset,
	})
	log := []events.Event{
		events.NewMessageEvent(events.SourceUser, models.UserMessage("hi")),
		condensation,
	}

	v := Project(log)
	if len(v.Events) != 2 {
		t.Fatalf("visible events = %d, want 2", len(v.Events))
	}
	last := v.Events[len(v.Events)-1]
	if last.Message == nil || !strings.Contains(last.Message.Text(), summary) {
		t.Error("summary should clamp to the end of the sequence")
	}
}

func TestProjectIgnoresSummaryWithoutOffset(t *testing.T) {
	summary := "dropped context"
	condensation := events.NewCondensationEvent(events.CondensationPayload{
		Summary: &summary,
	})
	log := []events.Event{
		events.NewMessageEvent(events.SourceUser, models.UserMessage("hi")),
		condensation,
	}

	v := Project(log)
	if len(v.Events) != 1 {
		t.Fatalf("visible events = %d, want 1", len(v.Events))
	}
	if strings.Contains(v.Events[0].Message.Text(), summary) {
		t.Error("summary without an offset should not be inserted")
	}
}

func TestProjectSummaryOffsetIndexesFilteredSequence(t *testing.T) {
	// A dangling action before the offset is filtered out first; the
	// offset indexes the filtered sequence, not the raw one.
	dangling := events.NewActionEvent(events.ActionPayload{
		ToolName:   "execute_bash",
		ToolCallID: "unanswered",
	})
	first := events.NewMessageEvent(events.SourceUser, models.UserMessage("first"))
	second := events.NewMessageEvent(events.SourceUser, models.UserMessage("second"))
	summary := "what came before"
	offset := 1
	condensation := events.NewCondensationEvent(events.CondensationPayload{
		Summary:       &summary,
		SummaryOffset: &offset,
	})
	log := []events.Event{dangling, first, second, condensation}

	v := Project(log)
	if len(v.Events) != 3 {
		t.Fatalf("visible events = %d, want 3", len(v.Events))
	}
	if v.Events[0].ID != first.ID {
		t.Errorf("first event = %s, want the first user message", v.Events[0].ID)
	}
	if v.Events[1].Message == nil || !strings.Contains(v.Events[1].Message.Text(), summary) {
		t.Errorf("summary not at offset 1 of the filtered sequence: %+v", v.Events[1])
	}
	if v.Events[2].ID != second.ID {
		t.Errorf("last event = %s, want the second user message", v.Events[2].ID)
	}
}

func TestProjectUnhandledCondensationRequest(t *testing.T) {
	log := []events.Event{
		events.NewMessageEvent(events.SourceUser, models.UserMessage("hi")),
		events.NewCondensationRequestEvent(),
	}
	v := Project(log)
	if !v.UnhandledCondensationRequest {
		t.Error("pending request not flagged")
	}

	// Once answered, the flag clears.
	log = append(log, events.NewCondensationEvent(events.CondensationPayload{}))
	v = Project(log)
	if v.UnhandledCondensationRequest {
		t.Error("handled request still flagged")
	}
}

func TestProjectFiltersUnmatchedToolCalls(t *testing.T) {
	matchedAction, matchedObs := actionWithObservation("c1")
	danglingAction := events.NewActionEvent(events.ActionPayload{
		ToolName:   "execute_bash",
		ToolCallID: "c2",
	})
	orphanObs := events.NewObservationEvent(events.ObservationPayload{
		ToolCallID: "c3",
		ToolName:   "execute_bash",
	})
	log := []events.Event{matchedAction, matchedObs, danglingAction, orphanObs}

	v := Project(log)
	if len(v.Events) != 2 {
		t.Fatalf("visible events = %d, want 2", len(v.Events))
	}
	if v.Events[0].ID != matchedAction.ID || v.Events[1].ID != matchedObs.ID {
		t.Error("matched pair should survive filtering")
	}
}

func TestProjectDropsEmptyToolCallIDs(t *testing.T) {
	emptyAction := events.NewActionEvent(events.ActionPayload{
		ToolName: "execute_bash",
	})
	emptyObs := events.NewObservationEvent(events.ObservationPayload{
		ToolName: "execute_bash",
	})
	keep := events.NewMessageEvent(events.SourceUser, models.UserMessage("hi"))
	log := []events.Event{emptyAction, emptyObs, keep}

	v := Project(log)
	if len(v.Events) != 1 || v.Events[0].ID != keep.ID {
		t.Fatalf("empty tool call ids must not match each other: %+v", v.Events)
	}
}

func TestMessages(t *testing.T) {
	action := events.NewActionEvent(events.ActionPayload{
		ToolName:   "execute_bash",
		ToolCallID: "c1",
		Arguments:  json.RawMessage(`{"command":"ls"}`),
		Thought:    "let me check the files",
	})
	obs := events.NewObservationEvent(events.ObservationPayload{
		ToolCallID: "c1",
		ToolName:   "execute_bash",
		Content:    []models.Content{models.TextContent("a.txt")},
	})
	log := []events.Event{
		events.NewSystemPromptEvent("be helpful"),
		events.NewMessageEvent(events.SourceUser, models.UserMessage("list files")),
		action,
		obs,
		events.NewPauseEvent(),
		events.NewFinishedEvent(),
	}

	msgs := Project(log).Messages()
	if len(msgs) != 4 {
		t.Fatalf("messages = %d, want 4 (pause/finished skipped)", len(msgs))
	}

	if msgs[0].Role != models.RoleSystem || msgs[0].Text() != "be helpful" {
		t.Errorf("system message = %+v", msgs[0])
	}
	if msgs[1].Role != models.RoleUser {
		t.Errorf("user message role = %q", msgs[1].Role)
	}

	assistant := msgs[2]
	if assistant.Role != models.RoleAssistant {
		t.Errorf("assistant role = %q", assistant.Role)
	}
	if len(assistant.ToolCalls) != 1 || assistant.ToolCalls[0].ID != "c1" {
		t.Errorf("tool calls = %+v", assistant.ToolCalls)
	}
	if assistant.Text() != "let me check the files" {
		t.Errorf("thought = %q", assistant.Text())
	}

	tool := msgs[3]
	if tool.Role != models.RoleTool || tool.ToolCallID != "c1" {
		t.Errorf("tool message = %+v", tool)
	}
	if tool.Text() != "a.txt" {
		t.Errorf("tool content = %q", tool.Text())
	}
}
