package models

import (
	"encoding/json"
	"testing"
)

func TestMessageText(t *testing.T) {
	msg := Message{Role: RoleUser, Content: []Content{
		TextContent("part one, "),
		ImageContent("https://example.com/x.png"),
		TextContent("part two"),
	}}
	if got := msg.Text(); got != "part one, part two" {
		t.Errorf("Text() = %q", got)
	}
}

func TestConstructors(t *testing.T) {
	if m := UserMessage("hi"); m.Role != RoleUser || m.Text() != "hi" {
		t.Errorf("UserMessage = %+v", m)
	}
	if m := SystemMessage("rules"); m.Role != RoleSystem || m.Text() != "rules" {
		t.Errorf("SystemMessage = %+v", m)
	}
	if m := AssistantMessage("sure"); m.Role != RoleAssistant || m.Text() != "sure" {
		t.Errorf("AssistantMessage = %+v", m)
	}
}

func TestSerializationFlagsNotPersisted(t *testing.T) {
	m := UserMessage("hi")
	m.VisionEnabled = true
	m.CacheEnabled = true
	m.ForceStringSerializer = true

	data, err := json.Marshal(m)
	if err != nil {
		t.Fatal(err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"VisionEnabled", "vision_enabled", "cache_enabled", "force_string_serializer"} {
		if _, ok := raw[key]; ok {
			t.Errorf("serialization flag %q leaked into JSON", key)
		}
	}
}

func TestToolResultText(t *testing.T) {
	r := ToolResult{Content: []Content{TextContent("out"), TextContent("put")}}
	if got := r.Text(); got != "output" {
		t.Errorf("Text() = %q", got)
	}
}

func TestTokenUsageAdd(t *testing.T) {
	a := TokenUsage{PromptTokens: 10, CompletionTokens: 5, CacheReadTokens: 2}
	b := TokenUsage{PromptTokens: 1, CompletionTokens: 1, CacheWriteTokens: 7}
	got := a.Add(b)
	want := TokenUsage{PromptTokens: 11, CompletionTokens: 6, CacheReadTokens: 2, CacheWriteTokens: 7}
	if got != want {
		t.Errorf("Add() = %+v, want %+v", got, want)
	}
}
