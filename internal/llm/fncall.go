package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/jamiechicago312/agent-sdk/pkg/models"
)

// Prompt-mocked function calling. For models without native tool-call
// support the gateway describes tools inline in the system prompt and
// parses tool invocations back out of the assistant text. Round-trip
// property: a message with tool calls converted to text and parsed back
// yields the same calls.

const fnCallPromptPrefix = `You have access to the following functions:

`

const fnCallPromptSuffix = `
If you choose to call a function ONLY reply in the following format with NO suffix:

<function=example_function_name>
<parameter=example_parameter_1>value_1</parameter>
<parameter=example_parameter_2>
This is the value for the second parameter
that can span
multiple lines
</parameter>
</function>

Reminder:
- Function calls MUST follow the specified format, start with <function= and end with </function>
- Required parameters MUST be specified
- Only call one function at a time
- Always provide reasoning for your function call in natural language BEFORE the function call
`

var (
	fnCallPattern  = regexp.MustCompile(`(?s)<function=([^>]+)>(.*?)</function>`)
	fnParamPattern = regexp.MustCompile(`(?s)<parameter=([^>]+)>(.*?)</parameter>`)
)

// RenderToolPrompt produces the in-context tool description appended to
// the system prompt when function calling is prompt-mocked.
func RenderToolPrompt(tools []ToolSchema) string {
	var b strings.Builder
	b.WriteString(fnCallPromptPrefix)
	for i, tool := range tools {
		fmt.Fprintf(&b, "---- BEGIN FUNCTION #%d: %s ----\n", i+1, tool.Name)
		fmt.Fprintf(&b, "Description: %s\n", tool.Description)
		if len(tool.Parameters) > 0 {
			b.WriteString("Parameters (JSON Schema):\n")
			b.Write(tool.Parameters)
			b.WriteString("\n")
		} else {
			b.WriteString("No parameters are required for this function.\n")
		}
		fmt.Fprintf(&b, "---- END FUNCTION #%d ----\n\n", i+1)
	}
	b.WriteString(fnCallPromptSuffix)
	return b.String()
}

// RenderToolCall serializes a tool call into the in-context grammar.
// Used when replaying prior assistant turns to a prompt-mocked model.
func RenderToolCall(call models.ToolCall) (string, error) {
	var args map[string]any
	if len(call.Arguments) > 0 {
		if err := json.Unmarshal(call.Arguments, &args); err != nil {
			return "", fmt.Errorf("tool call %s has non-object arguments: %w", call.Name, err)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "<function=%s>\n", call.Name)
	for key, value := range args {
		text, ok := value.(string)
		if !ok {
			encoded, err := json.Marshal(value)
			if err != nil {
				return "", err
			}
			text = string(encoded)
		}
		fmt.Fprintf(&b, "<parameter=%s>%s</parameter>\n", key, text)
	}
	b.WriteString("</function>")
	return b.String(), nil
}

// ParseToolCalls extracts a tool invocation from assistant text produced
// under the in-context grammar. Returns the text with the invocation
// removed, and the parsed calls (at most one; the grammar allows one
// call per turn). The schemas drive type coercion of parameter values.
func ParseToolCalls(text string, tools []ToolSchema) (string, []models.ToolCall, error) {
	matches := fnCallPattern.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return text, nil, nil
	}
	if len(matches) > 1 {
		return text, nil, fmt.Errorf("expected at most one function call per message, got %d", len(matches))
	}

	m := matches[0]
	name := text[m[2]:m[3]]
	body := text[m[4]:m[5]]
	remaining := strings.TrimSpace(text[:m[0]] + text[m[1]:])

	schema := findToolSchema(tools, name)
	args := map[string]any{}
	for _, pm := range fnParamPattern.FindAllStringSubmatch(body, -1) {
		key := pm[1]
		value := strings.Trim(pm[2], "\n")
		args[key] = coerceParameter(schema, key, value)
	}

	encoded, err := json.Marshal(args)
	if err != nil {
		return text, nil, err
	}

	call := models.ToolCall{
		ID:        "call_" + uuid.NewString(),
		Name:      name,
		Arguments: encoded,
	}
	return remaining, []models.ToolCall{call}, nil
}

func findToolSchema(tools []ToolSchema, name string) *ToolSchema {
	for i := range tools {
		if tools[i].Name == name {
			return &tools[i]
		}
	}
	return nil
}

// coerceParameter converts a raw string value to the type the tool's
// schema declares for the property. Unknown properties stay strings.
func coerceParameter(schema *ToolSchema, key, value string) any {
	if schema == nil || len(schema.Parameters) == 0 {
		return value
	}

	var params struct {
		Properties map[string]struct {
			Type string `json:"type"`
		} `json:"properties"`
	}
	if err := json.Unmarshal(schema.Parameters, &params); err != nil {
		return value
	}
	prop, ok := params.Properties[key]
	if !ok {
		return value
	}

	switch prop.Type {
	case "integer":
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			return n
		}
	case "number":
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	case "boolean":
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	case "array", "object":
		var v any
		if err := json.Unmarshal([]byte(value), &v); err == nil {
			return v
		}
	}
	return value
}

// applyPromptMock rewrites a request for a model without native function
// calling: tools move into the system prompt, prior assistant tool calls
// are rendered as text, and tool results become user messages.
func applyPromptMock(req Request) (Request, error) {
	if len(req.Tools) == 0 {
		return req, nil
	}

	out := req
	out.Messages = make([]models.Message, 0, len(req.Messages))

	injected := false
	for _, msg := range req.Messages {
		switch {
		case msg.Role == models.RoleSystem && !injected:
			converted := msg
			converted.Content = append([]models.Content{}, msg.Content...)
			converted.Content = append(converted.Content, models.TextContent(RenderToolPrompt(req.Tools)))
			out.Messages = append(out.Messages, converted)
			injected = true

		case msg.Role == models.RoleAssistant && len(msg.ToolCalls) > 0:
			text := msg.Text()
			for _, call := range msg.ToolCalls {
				rendered, err := RenderToolCall(call)
				if err != nil {
					return Request{}, err
				}
				if text != "" {
					text += "\n\n"
				}
				text += rendered
			}
			out.Messages = append(out.Messages, models.AssistantMessage(text))

		case msg.Role == models.RoleTool:
			converted := models.Message{Role: models.RoleUser, Content: []models.Content{
				models.TextContent("EXECUTION RESULT of [" + toolNameForResult(req.Messages, msg.ToolCallID) + "]:\n" + msg.Text()),
			}}
			out.Messages = append(out.Messages, converted)

		default:
			out.Messages = append(out.Messages, msg)
		}
	}

	if !injected {
		system := models.SystemMessage(RenderToolPrompt(req.Tools))
		out.Messages = append([]models.Message{system}, out.Messages...)
	}

	out.Tools = nil
	return out, nil
}

func toolNameForResult(messages []models.Message, toolCallID string) string {
	for _, msg := range messages {
		for _, call := range msg.ToolCalls {
			if call.ID == toolCallID {
				return call.Name
			}
		}
	}
	return "function"
}
