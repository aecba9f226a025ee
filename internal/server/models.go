package server

import (
	"github.com/jamiechicago312/agent-sdk/internal/conversation"
	"github.com/jamiechicago312/agent-sdk/pkg/events"
	"github.com/jamiechicago312/agent-sdk/pkg/models"
)

// StartConversationRequest is the body of POST /conversations.
type StartConversationRequest struct {
	// Agent selects a configured agent profile. Empty means the default.
	Agent string `json:"agent,omitempty"`

	// Workspace overrides the server's workspace directory.
	Workspace string `json:"workspace,omitempty"`

	// ConfirmationPolicy is one of never, always, risky.
	ConfirmationPolicy string `json:"confirmation_policy,omitempty"`

	// InitialMessage, when set, is sent before the response returns.
	InitialMessage string `json:"initial_message,omitempty"`

	// MaxIterations caps LLM turns. Zero means the server default (500).
	MaxIterations int `json:"max_iterations,omitempty"`

	// StuckDetection defaults to true when nil.
	StuckDetection *bool `json:"stuck_detection,omitempty"`

	// MaxBudget stops the conversation at the given accumulated cost.
	MaxBudget float64 `json:"max_budget,omitempty"`
}

// ConversationResponse carries a conversation id and its state snapshot.
type ConversationResponse struct {
	ConversationID string                      `json:"conversation_id"`
	State          conversation.PersistedState `json:"state"`
}

// SendMessageRequest is the body of POST /conversations/{id}/messages.
type SendMessageRequest struct {
	Content   string   `json:"content"`
	ImageURLs []string `json:"image_urls,omitempty"`
}

// Message converts the request into a user message.
func (r SendMessageRequest) Message() models.Message {
	msg := models.UserMessage(r.Content)
	if len(r.ImageURLs) > 0 {
		msg.Content = append(msg.Content, models.ImageContent(r.ImageURLs...))
	}
	return msg
}

// ConfirmationResponseRequest is the body of POST /conversations/{id}/confirm.
type ConfirmationResponseRequest struct {
	Accept bool   `json:"accept"`
	Reason string `json:"reason,omitempty"`
}

// SetConfirmationPolicyRequest is the body of PUT
// /conversations/{id}/confirmation-policy.
type SetConfirmationPolicyRequest struct {
	Policy string `json:"policy"`
}

// Event ordering for GET /conversations/{id}/events.
const (
	OrderTimestamp     = "TIMESTAMP"
	OrderTimestampDesc = "TIMESTAMP_DESC"
)

// EventPage is one page of a conversation's event log.
type EventPage struct {
	Events []events.Event `json:"events"`
	From   int            `json:"from"`
	Limit  int            `json:"limit"`
	Total  int            `json:"total"`
}

// Conversation sort orders for GET /conversations.
const (
	SortCreatedAt     = "CREATED_AT"
	SortCreatedAtDesc = "CREATED_AT_DESC"
	SortUpdatedAt     = "UPDATED_AT"
	SortUpdatedAtDesc = "UPDATED_AT_DESC"
)

// ConversationPage is one page of conversation state snapshots.
type ConversationPage struct {
	Conversations []conversation.PersistedState `json:"conversations"`
	Page          int                           `json:"page"`
	PageSize      int                           `json:"page_size"`
	Total         int                           `json:"total"`
}
