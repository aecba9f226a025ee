package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jamiechicago312/agent-sdk/internal/tools"
	"github.com/jamiechicago312/agent-sdk/pkg/models"
)

// Bridge exposes a connected MCP server's tools as agent tools. The
// bridge owns the client connection; closing the bridge disconnects the
// server and invalidates its executors.
type Bridge struct {
	client *Client
}

// NewBridge connects to the server and builds the bridge.
func NewBridge(ctx context.Context, cfg *ServerConfig) (*Bridge, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	client := NewClient(cfg, nil)
	if err := client.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect to MCP server %s: %w", cfg.ID, err)
	}
	return &Bridge{client: client}, nil
}

// Tools returns the server's tools wrapped as agent tools.
func (b *Bridge) Tools() []*tools.Tool {
	infos := b.client.Tools()
	out := make([]*tools.Tool, 0, len(infos))
	for _, info := range infos {
		out = append(out, &tools.Tool{
			Name:        info.Name,
			Description: info.Description,
			Schema:      info.InputSchema,
			Annotations: parseAnnotations(info.Annotations),
			Executor:    &remoteExecutor{client: b.client, toolName: info.Name},
		})
	}
	return out
}

// Close disconnects from the server.
func (b *Bridge) Close() error {
	return b.client.Close()
}

func parseAnnotations(raw json.RawMessage) tools.Annotations {
	if len(raw) == 0 {
		return tools.Annotations{}
	}
	var a tools.Annotations
	if err := json.Unmarshal(raw, &a); err != nil {
		return tools.Annotations{}
	}
	return a
}

// remoteExecutor runs tool calls against the MCP server. The bridge
// owns the connection, so Close here is a no-op.
type remoteExecutor struct {
	client   *Client
	toolName string
}

func (e *remoteExecutor) Execute(ctx context.Context, args json.RawMessage) (*tools.Result, error) {
	result, err := e.client.CallTool(ctx, e.toolName, args)
	if err != nil {
		return nil, err
	}

	out := &tools.Result{IsError: result.IsError}
	for _, part := range result.Content {
		switch part.Type {
		case "text":
			out.Content = append(out.Content, models.TextContent(part.Text))
		case "image":
			uri := fmt.Sprintf("data:%s;base64,%s", part.MimeType, part.Data)
			out.Content = append(out.Content, models.ImageContent(uri))
		}
	}
	if len(out.Content) == 0 {
		out.Content = []models.Content{models.TextContent("")}
	}
	return out, nil
}

func (e *remoteExecutor) Close() error { return nil }
