// Package events defines the append-only event model for agent
// conversations. Every step of a conversation — user input, agent tool
// calls, tool results, condensation, errors — is recorded as an Event.
//
// Design principles:
//   - Events are immutable once appended; condensation hides but never
//     deletes history, so the audit trail is always complete.
//   - Single Kind discriminator with optional payload pointers; exactly
//     one payload is non-nil for a given Kind.
//   - Serialization is stable: marshal → unmarshal → marshal is
//     byte-identical for any event.
package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/jamiechicago312/agent-sdk/pkg/models"
)

// Source identifies who produced an event.
type Source string

const (
	SourceUser        Source = "user"
	SourceAgent       Source = "agent"
	SourceEnvironment Source = "environment"
	SourceSystem      Source = "system"
)

// Kind identifies the event variant.
type Kind string

const (
	// KindMessage is a user or assistant message with no tool call.
	KindMessage Kind = "message"
	// KindAction records the agent choosing to invoke a tool.
	KindAction Kind = "action"
	// KindObservation records the result of executing a tool call.
	KindObservation Kind = "observation"
	// KindSystemPrompt is emitted once at conversation start.
	KindSystemPrompt Kind = "system_prompt"
	// KindCondensationRequest signals that history is too long.
	KindCondensationRequest Kind = "condensation_request"
	// KindCondensation forgets events and optionally inserts a summary.
	KindCondensation Kind = "condensation"
	// KindError records a terminal or recoverable runtime error.
	KindError Kind = "error"
	// KindPause records a user pause request taking effect.
	KindPause Kind = "pause"
	// KindFinished records the agent completing its task.
	KindFinished Kind = "finished"
)

// ErrorKind categorizes error events.
type ErrorKind string

const (
	ErrorKindStuck          ErrorKind = "STUCK"
	ErrorKindBudgetExceeded ErrorKind = "BUDGET_EXCEEDED"
	ErrorKindIterationLimit ErrorKind = "ITERATION_LIMIT_EXCEEDED"
	ErrorKindProvider       ErrorKind = "PROVIDER"
	ErrorKindContextWindow  ErrorKind = "CONTEXT_WINDOW_EXCEEDED"
	ErrorKindToolMissing    ErrorKind = "TOOL_MISSING"
	ErrorKindPersistence    ErrorKind = "PERSISTENCE"
	ErrorKindInternal       ErrorKind = "INTERNAL"
)

// ActionPayload is the payload of a KindAction event.
type ActionPayload struct {
	ToolName      string          `json:"tool_name"`
	ToolCallID    string          `json:"tool_call_id"`
	Arguments     json.RawMessage `json:"arguments"`
	Thought       string          `json:"thought,omitempty"`
	ReasoningText string          `json:"reasoning_text,omitempty"`
	LLMResponseID string          `json:"llm_response_id,omitempty"`
}

// ObservationPayload is the payload of a KindObservation event.
type ObservationPayload struct {
	ToolCallID string           `json:"tool_call_id"`
	ToolName   string           `json:"tool_name"`
	Content    []models.Content `json:"content"`
	IsError    bool             `json:"is_error,omitempty"`
}

// Text returns the concatenated text parts of the observation.
func (p *ObservationPayload) Text() string {
	var out string
	for _, c := range p.Content {
		if c.Type == models.ContentText {
			out += c.Text
		}
	}
	return out
}

// CondensationPayload forgets events and optionally substitutes a summary.
type CondensationPayload struct {
	// ForgottenEventIDs lists event ids the view must hide.
	ForgottenEventIDs []string `json:"forgotten_event_ids"`
	// Summary, when non-nil, is inserted into the view at SummaryOffset.
	Summary *string `json:"summary,omitempty"`
	// SummaryOffset is the index in the surviving sequence at which the
	// summary is inserted. Clamped to the end if past it.
	SummaryOffset *int `json:"summary_offset,omitempty"`
}

// ErrorPayload is the payload of a KindError event.
type ErrorPayload struct {
	Kind   ErrorKind `json:"kind"`
	Detail string    `json:"detail,omitempty"`
}

// Event is an immutable record of something that happened in a
// conversation. Exactly one payload field is non-nil, selected by Kind
// (KindPause and KindFinished carry no payload).
type Event struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Source    Source    `json:"source"`
	Kind      Kind      `json:"kind"`

	Message      *models.Message      `json:"message,omitempty"`
	Action       *ActionPayload       `json:"action,omitempty"`
	Observation  *ObservationPayload  `json:"observation,omitempty"`
	SystemPrompt string               `json:"system_prompt,omitempty"`
	Condensation *CondensationPayload `json:"condensation,omitempty"`
	Error        *ErrorPayload        `json:"error,omitempty"`
}

func newEvent(source Source, kind Kind) Event {
	return Event{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Source:    source,
		Kind:      kind,
	}
}

// NewMessageEvent records a user or assistant message.
func NewMessageEvent(source Source, msg models.Message) Event {
	e := newEvent(source, KindMessage)
	e.Message = &msg
	return e
}

// NewActionEvent records the agent invoking a tool.
func NewActionEvent(p ActionPayload) Event {
	e := newEvent(SourceAgent, KindAction)
	e.Action = &p
	return e
}

// NewObservationEvent records a tool result.
func NewObservationEvent(p ObservationPayload) Event {
	e := newEvent(SourceEnvironment, KindObservation)
	e.Observation = &p
	return e
}

// NewErrorObservation builds an error observation for a tool call from a
// plain text detail, without invoking any executor.
func NewErrorObservation(toolCallID, toolName, detail string) Event {
	return NewObservationEvent(ObservationPayload{
		ToolCallID: toolCallID,
		ToolName:   toolName,
		Content:    []models.Content{models.TextContent(detail)},
		IsError:    true,
	})
}

// NewSystemPromptEvent records the system prompt at conversation start.
func NewSystemPromptEvent(text string) Event {
	e := newEvent(SourceAgent, KindSystemPrompt)
	e.SystemPrompt = text
	return e
}

// NewCondensationRequestEvent signals that history should be summarized.
func NewCondensationRequestEvent() Event {
	return newEvent(SourceSystem, KindCondensationRequest)
}

// NewCondensationEvent records forgotten events and an optional summary.
func NewCondensationEvent(p CondensationPayload) Event {
	e := newEvent(SourceSystem, KindCondensation)
	e.Condensation = &p
	return e
}

// NewErrorEvent records a runtime error.
func NewErrorEvent(kind ErrorKind, detail string) Event {
	e := newEvent(SourceSystem, KindError)
	e.Error = &ErrorPayload{Kind: kind, Detail: detail}
	return e
}

// NewPauseEvent records a pause taking effect.
func NewPauseEvent() Event {
	return newEvent(SourceUser, KindPause)
}

// NewFinishedEvent records the agent completing its task.
func NewFinishedEvent() Event {
	return newEvent(SourceAgent, KindFinished)
}

// ToolCallID returns the tool call id carried by an action or observation
// event, or "" for other kinds.
func (e Event) ToolCallID() string {
	switch e.Kind {
	case KindAction:
		if e.Action != nil {
			return e.Action.ToolCallID
		}
	case KindObservation:
		if e.Observation != nil {
			return e.Observation.ToolCallID
		}
	}
	return ""
}

// Marshal serializes the event as a single JSON line (no trailing newline).
func (e Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// Unmarshal parses an event from its JSON encoding.
func Unmarshal(data []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return Event{}, err
	}
	return e, nil
}
