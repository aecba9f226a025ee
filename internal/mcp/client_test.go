package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeTransport scripts JSON-RPC responses per method.
type fakeTransport struct {
	results   map[string]json.RawMessage
	errs      map[string]error
	calls     []string
	notifies  []string
	connected bool
}

func (t *fakeTransport) Connect(context.Context) error {
	t.connected = true
	return nil
}

func (t *fakeTransport) Close() error {
	t.connected = false
	return nil
}

func (t *fakeTransport) Call(_ context.Context, method string, _ any) (json.RawMessage, error) {
	t.calls = append(t.calls, method)
	if err, ok := t.errs[method]; ok {
		return nil, err
	}
	if result, ok := t.results[method]; ok {
		return result, nil
	}
	return nil, fmt.Errorf("unexpected method %s", method)
}

func (t *fakeTransport) Notify(_ context.Context, method string, _ any) error {
	t.notifies = append(t.notifies, method)
	return nil
}

func (t *fakeTransport) Connected() bool { return t.connected }

func newFakeClient(transport *fakeTransport) *Client {
	return &Client{
		config:    &ServerConfig{ID: "test"},
		transport: transport,
		logger:    discardLogger(),
	}
}

func TestClientConnect(t *testing.T) {
	transport := &fakeTransport{
		results: map[string]json.RawMessage{
			"initialize": json.RawMessage(`{
				"protocolVersion": "2024-11-05",
				"serverInfo": {"name": "files", "version": "0.3.1"}
			}`),
			"tools/list": json.RawMessage(`{
				"tools": [
					{"name": "read_file", "description": "Read a file", "inputSchema": {"type":"object"}},
					{"name": "write_file", "description": "Write a file", "inputSchema": {"type":"object"}}
				]
			}`),
		},
	}
	client := newFakeClient(transport)

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	if client.ServerInfo().Name != "files" {
		t.Errorf("server name = %q", client.ServerInfo().Name)
	}
	if len(transport.notifies) != 1 || transport.notifies[0] != "notifications/initialized" {
		t.Errorf("notifications = %v", transport.notifies)
	}
	if tools := client.Tools(); len(tools) != 2 || tools[0].Name != "read_file" {
		t.Errorf("tools = %+v", tools)
	}
}

func TestClientConnectInitializeFailureClosesTransport(t *testing.T) {
	transport := &fakeTransport{
		errs: map[string]error{"initialize": fmt.Errorf("server rejected handshake")},
	}
	client := newFakeClient(transport)

	if err := client.Connect(context.Background()); err == nil {
		t.Fatal("expected connect error")
	}
	if transport.connected {
		t.Error("transport left open after failed handshake")
	}
}

func TestClientCallTool(t *testing.T) {
	transport := &fakeTransport{
		connected: true,
		results: map[string]json.RawMessage{
			"tools/call": json.RawMessage(`{
				"content": [{"type": "text", "text": "file contents"}],
				"isError": false
			}`),
		},
	}
	client := newFakeClient(transport)

	result, err := client.CallTool(context.Background(), "read_file", json.RawMessage(`{"path":"/tmp/x"}`))
	if err != nil {
		t.Fatalf("CallTool() error = %v", err)
	}
	if result.IsError {
		t.Error("result marked as error")
	}
	if result.Content[0].Text != "file contents" {
		t.Errorf("content = %+v", result.Content)
	}
}

func TestClientCallToolRPCError(t *testing.T) {
	transport := &fakeTransport{
		connected: true,
		errs: map[string]error{
			"tools/call": &RPCError{Code: -32602, Message: "unknown tool"},
		},
	}
	client := newFakeClient(transport)

	_, err := client.CallTool(context.Background(), "nope", nil)
	if err == nil {
		t.Fatal("expected RPC error")
	}
}

func TestBridgeTools(t *testing.T) {
	transport := &fakeTransport{
		connected: true,
		results: map[string]json.RawMessage{
			"tools/call": json.RawMessage(`{
				"content": [{"type": "text", "text": "done"}]
			}`),
		},
	}
	client := newFakeClient(transport)
	client.tools = []*ToolInfo{
		{
			Name:        "fetch",
			Description: "Fetch a URL",
			InputSchema: json.RawMessage(`{"type":"object","properties":{"url":{"type":"string"}},"required":["url"]}`),
			Annotations: json.RawMessage(`{"readOnlyHint": true, "openWorldHint": true}`),
		},
	}
	bridge := &Bridge{client: client}

	bridged := bridge.Tools()
	if len(bridged) != 1 {
		t.Fatalf("got %d tools, want 1", len(bridged))
	}
	tool := bridged[0]
	if tool.Name != "fetch" {
		t.Errorf("name = %q", tool.Name)
	}
	if !tool.Annotations.ReadOnlyHint || !tool.Annotations.OpenWorldHint {
		t.Errorf("annotations = %+v", tool.Annotations)
	}

	result, err := tool.Call(context.Background(), json.RawMessage(`{"url":"https://example.com"}`))
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if result.Content[0].Text != "done" {
		t.Errorf("result = %+v", result)
	}

	// Schema validation applies to bridged tools too.
	if _, err := tool.Call(context.Background(), json.RawMessage(`{}`)); err == nil {
		t.Error("missing required argument should fail validation")
	}
}

func TestServerConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  ServerConfig
		wantErr bool
	}{
		{"valid stdio", ServerConfig{ID: "fs", Transport: TransportStdio, Command: "mcp-fs"}, false},
		{"default transport is stdio", ServerConfig{ID: "fs", Command: "mcp-fs"}, false},
		{"stdio missing command", ServerConfig{ID: "fs", Transport: TransportStdio}, true},
		{"stdio path traversal", ServerConfig{ID: "fs", Transport: TransportStdio, Command: "../../bin/sh"}, true},
		{"valid http", ServerConfig{ID: "web", Transport: TransportHTTP, URL: "https://mcp.example.com"}, false},
		{"http missing url", ServerConfig{ID: "web", Transport: TransportHTTP}, true},
		{"http bad scheme", ServerConfig{ID: "web", Transport: TransportHTTP, URL: "ftp://x"}, true},
		{"missing id", ServerConfig{Transport: TransportStdio, Command: "x"}, true},
		{"unknown transport", ServerConfig{ID: "x", Transport: "websocket"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
