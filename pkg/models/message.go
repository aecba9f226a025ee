package models

import (
	"encoding/json"
	"strings"
)

// Role indicates the message author type.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ContentType discriminates content part variants.
type ContentType string

const (
	ContentText  ContentType = "text"
	ContentImage ContentType = "image"
)

// Content is a single part of a message body. Parts are a tagged union:
// Type selects which of the payload fields is meaningful.
type Content struct {
	Type ContentType `json:"type"`

	// Text is set when Type == ContentText.
	Text string `json:"text,omitempty"`

	// ImageURLs is set when Type == ContentImage. URLs may be data URIs.
	ImageURLs []string `json:"image_urls,omitempty"`

	// CachePrompt marks this part as a prompt-cache breakpoint for
	// providers that support explicit cache control (Anthropic).
	CachePrompt bool `json:"cache_prompt,omitempty"`
}

// TextContent builds a text content part.
func TextContent(text string) Content {
	return Content{Type: ContentText, Text: text}
}

// ImageContent builds an image content part.
func ImageContent(urls ...string) Content {
	return Content{Type: ContentImage, ImageURLs: urls}
}

// ToolCall represents an LLM's request to execute a tool.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolResult represents the output of a tool execution. Errors are
// communicated via IsError=true so the LLM can observe and recover from
// tool failures instead of the run aborting.
type ToolResult struct {
	ToolCallID string    `json:"tool_call_id"`
	Content    []Content `json:"content"`
	IsError    bool      `json:"is_error,omitempty"`
}

// Text returns the concatenated text parts of the result.
func (r ToolResult) Text() string {
	var b strings.Builder
	for _, c := range r.Content {
		if c.Type == ContentText {
			b.WriteString(c.Text)
		}
	}
	return b.String()
}

// Message is a single LLM-facing message. Messages are immutable once
// constructed; the runtime builds new messages rather than mutating.
type Message struct {
	Role    Role      `json:"role"`
	Content []Content `json:"content"`

	// ToolCallID links a tool-role message back to the assistant tool call
	// it answers.
	ToolCallID string `json:"tool_call_id,omitempty"`

	// ToolCalls carries tool invocation requests on assistant messages.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ReasoningText carries provider reasoning/thinking output, when the
	// model exposes it.
	ReasoningText string `json:"reasoning_text,omitempty"`

	// Serialization flags, set by the gateway per call. Not persisted.
	VisionEnabled          bool `json:"-"`
	CacheEnabled           bool `json:"-"`
	FunctionCallingEnabled bool `json:"-"`
	ForceStringSerializer  bool `json:"-"`
}

// UserMessage builds a plain text user message.
func UserMessage(text string) Message {
	return Message{Role: RoleUser, Content: []Content{TextContent(text)}}
}

// SystemMessage builds a plain text system message.
func SystemMessage(text string) Message {
	return Message{Role: RoleSystem, Content: []Content{TextContent(text)}}
}

// AssistantMessage builds a plain text assistant message.
func AssistantMessage(text string) Message {
	return Message{Role: RoleAssistant, Content: []Content{TextContent(text)}}
}

// Text returns the concatenated text parts of the message.
func (m Message) Text() string {
	var b strings.Builder
	for _, c := range m.Content {
		if c.Type == ContentText {
			b.WriteString(c.Text)
		}
	}
	return b.String()
}
