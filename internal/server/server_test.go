package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/jamiechicago312/agent-sdk/internal/agent"
	"github.com/jamiechicago312/agent-sdk/internal/conversation"
	"github.com/jamiechicago312/agent-sdk/internal/llm"
	"github.com/jamiechicago312/agent-sdk/internal/tools"
	"github.com/jamiechicago312/agent-sdk/pkg/events"
	"github.com/jamiechicago312/agent-sdk/pkg/models"
)

type scriptedProvider struct {
	mu        sync.Mutex
	responses []*llm.Response
	calls     int
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Complete(_ context.Context, _ llm.Request) (*llm.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	i := p.calls
	p.calls++
	if i >= len(p.responses) {
		i = len(p.responses) - 1
	}
	return p.responses[i], nil
}

func echoScript() []*llm.Response {
	return []*llm.Response{
		{
			ID: "resp-1",
			Message: models.Message{
				Role: models.RoleAssistant,
				ToolCalls: []models.ToolCall{{
					ID:        "call_1",
					Name:      "echo",
					Arguments: json.RawMessage(`{"text":"hi"}`),
				}},
			},
		},
		{ID: "resp-2", Message: models.AssistantMessage("done")},
	}
}

func echoTool() *tools.Tool {
	return &tools.Tool{
		Name:        "echo",
		Description: "Echo text back.",
		Schema: json.RawMessage(`{
			"type": "object",
			"properties": {"text": {"type": "string"}},
			"required": ["text"]
		}`),
		Executor: tools.ExecutorFunc(func(_ context.Context, args json.RawMessage) (*tools.Result, error) {
			var in struct {
				Text string `json:"text"`
			}
			if err := json.Unmarshal(args, &in); err != nil {
				return nil, err
			}
			return tools.TextResult(in.Text), nil
		}),
	}
}

// newTestServer builds a server whose factory creates conversations
// driven by a fresh scripted gateway per conversation.
func newTestServer(t *testing.T) *Server {
	t.Helper()
	factory := func(ctx context.Context, req StartConversationRequest) (*conversation.Conversation, error) {
		gateway, err := llm.New(llm.Config{ServiceID: "test", Model: "gpt-4o"},
			&scriptedProvider{responses: echoScript()}, nil)
		if err != nil {
			return nil, err
		}
		a, err := agent.New(gateway, []*tools.Tool{echoTool(), tools.NewFinishTool()}, "", nil)
		if err != nil {
			return nil, err
		}
		policy, err := conversation.PolicyByName(req.ConfirmationPolicy)
		if err != nil {
			return nil, err
		}
		stuck := true
		if req.StuckDetection != nil {
			stuck = *req.StuckDetection
		}
		return conversation.New(ctx, conversation.Config{
			Agent:                 a,
			ConfirmationPolicy:    policy,
			MaxIterations:         req.MaxIterations,
			MaxBudget:             req.MaxBudget,
			DisableStuckDetection: !stuck,
		})
	}
	s := New(factory, nil, nil)
	t.Cleanup(func() { s.Shutdown(context.Background()) })
	return s
}

// newWorkspaceServer builds a server whose conversations persist under
// workspace and whose lookup falls back to resuming from disk.
func newWorkspaceServer(t *testing.T, workspace string) *Server {
	t.Helper()
	newAgent := func() (*agent.Agent, error) {
		gateway, err := llm.New(llm.Config{ServiceID: "test", Model: "gpt-4o"},
			&scriptedProvider{responses: echoScript()}, nil)
		if err != nil {
			return nil, err
		}
		return agent.New(gateway, []*tools.Tool{echoTool(), tools.NewFinishTool()}, "", nil)
	}
	factory := func(ctx context.Context, req StartConversationRequest) (*conversation.Conversation, error) {
		a, err := newAgent()
		if err != nil {
			return nil, err
		}
		return conversation.New(ctx, conversation.Config{Agent: a, Workspace: workspace})
	}
	resumer := func(ctx context.Context, id string) (*conversation.Conversation, error) {
		a, err := newAgent()
		if err != nil {
			return nil, err
		}
		return conversation.Resume(ctx, conversation.Config{Agent: a, Workspace: workspace}, id)
	}
	s := New(factory, resumer, nil)
	t.Cleanup(func() { s.Shutdown(context.Background()) })
	return s
}

func do(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestConversationLifecycle(t *testing.T) {
	s := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/conversations", StartConversationRequest{
		InitialMessage: "call echo with hi",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("start = %d: %s", rec.Code, rec.Body.String())
	}
	started := decode[ConversationResponse](t, rec)
	if started.ConversationID == "" {
		t.Fatal("no conversation id")
	}
	id := started.ConversationID

	rec = do(t, s, http.MethodPost, "/conversations/"+id+"/run", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("run = %d: %s", rec.Code, rec.Body.String())
	}
	ran := decode[ConversationResponse](t, rec)
	if ran.State.Status != conversation.StatusFinished {
		t.Errorf("status after run = %s, want finished", ran.State.Status)
	}

	rec = do(t, s, http.MethodGet, "/conversations/"+id+"/events", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("events = %d", rec.Code)
	}
	page := decode[EventPage](t, rec)
	if page.Total != 6 || len(page.Events) != 6 {
		t.Fatalf("events total = %d (%d returned), want 6", page.Total, len(page.Events))
	}
	if page.Events[0].Kind != events.KindSystemPrompt {
		t.Errorf("first event = %s", page.Events[0].Kind)
	}

	// Descending order with pagination.
	rec = do(t, s, http.MethodGet, "/conversations/"+id+"/events?order=TIMESTAMP_DESC&limit=2", nil)
	page = decode[EventPage](t, rec)
	if len(page.Events) != 2 || page.Events[0].Kind != events.KindFinished {
		t.Errorf("desc page = %+v", page.Events)
	}

	rec = do(t, s, http.MethodDelete, "/conversations/"+id, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete = %d", rec.Code)
	}
	if rec = do(t, s, http.MethodGet, "/conversations/"+id, nil); rec.Code != http.StatusNotFound {
		t.Errorf("get after delete = %d, want 404", rec.Code)
	}
}

func TestConfirmationFlow(t *testing.T) {
	s := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/conversations", StartConversationRequest{
		InitialMessage:     "do it",
		ConfirmationPolicy: "always",
	})
	id := decode[ConversationResponse](t, rec).ConversationID

	rec = do(t, s, http.MethodPost, "/conversations/"+id+"/run", nil)
	state := decode[ConversationResponse](t, rec).State
	if state.Status != conversation.StatusWaitingForConfirmation {
		t.Fatalf("status = %s, want waiting_for_confirmation", state.Status)
	}

	rec = do(t, s, http.MethodPost, "/conversations/"+id+"/confirm",
		ConfirmationResponseRequest{Accept: false, Reason: "not today"})
	if rec.Code != http.StatusOK {
		t.Fatalf("confirm = %d: %s", rec.Code, rec.Body.String())
	}

	// A second confirmation has nothing to resolve.
	rec = do(t, s, http.MethodPost, "/conversations/"+id+"/confirm",
		ConfirmationResponseRequest{Accept: true})
	if rec.Code != http.StatusConflict {
		t.Errorf("double confirm = %d, want 409", rec.Code)
	}
}

func TestStartRejectsUnknownPolicy(t *testing.T) {
	s := newTestServer(t)
	rec := do(t, s, http.MethodPost, "/conversations", StartConversationRequest{
		ConfirmationPolicy: "sometimes",
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("start = %d, want 422", rec.Code)
	}
}

func TestSendMessageValidation(t *testing.T) {
	s := newTestServer(t)
	rec := do(t, s, http.MethodPost, "/conversations", StartConversationRequest{})
	id := decode[ConversationResponse](t, rec).ConversationID

	rec = do(t, s, http.MethodPost, "/conversations/"+id+"/messages", SendMessageRequest{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty message = %d, want 400", rec.Code)
	}
	rec = do(t, s, http.MethodPost, "/conversations/"+id+"/messages",
		SendMessageRequest{Content: "hello"})
	if rec.Code != http.StatusOK {
		t.Errorf("send = %d: %s", rec.Code, rec.Body.String())
	}
}

func TestSetConfirmationPolicy(t *testing.T) {
	s := newTestServer(t)
	rec := do(t, s, http.MethodPost, "/conversations", StartConversationRequest{})
	id := decode[ConversationResponse](t, rec).ConversationID

	rec = do(t, s, http.MethodPut, "/conversations/"+id+"/confirmation-policy",
		SetConfirmationPolicyRequest{Policy: "risky"})
	if rec.Code != http.StatusOK {
		t.Fatalf("set policy = %d", rec.Code)
	}
	state := decode[ConversationResponse](t, rec).State
	if state.ConfirmationPolicy != "risky" {
		t.Errorf("policy = %q", state.ConfirmationPolicy)
	}

	rec = do(t, s, http.MethodPut, "/conversations/"+id+"/confirmation-policy",
		SetConfirmationPolicyRequest{Policy: "sometimes"})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("bad policy = %d, want 422", rec.Code)
	}
}

func TestUpdateSecrets(t *testing.T) {
	s := newTestServer(t)
	rec := do(t, s, http.MethodPost, "/conversations", StartConversationRequest{})
	id := decode[ConversationResponse](t, rec).ConversationID

	rec = do(t, s, http.MethodPut, "/conversations/"+id+"/secrets",
		map[string]string{"GITHUB_TOKEN": "ghp_secret"})
	if rec.Code != http.StatusOK {
		t.Fatalf("secrets = %d: %s", rec.Code, rec.Body.String())
	}
	if got := rec.Body.String(); bytes.Contains([]byte(got), []byte("ghp_secret")) {
		t.Error("secret value leaked into the response")
	}
}

func TestListConversations(t *testing.T) {
	s := newTestServer(t)
	for i := range 3 {
		rec := do(t, s, http.MethodPost, "/conversations", StartConversationRequest{
			InitialMessage: fmt.Sprintf("task %d", i),
		})
		if rec.Code != http.StatusCreated {
			t.Fatalf("start %d = %d", i, rec.Code)
		}
	}

	rec := do(t, s, http.MethodGet, "/conversations?sort=CREATED_AT_DESC&page=1&page_size=2", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list = %d", rec.Code)
	}
	page := decode[ConversationPage](t, rec)
	if page.Total != 3 || len(page.Conversations) != 2 {
		t.Errorf("page = total %d, %d returned", page.Total, len(page.Conversations))
	}

	if rec = do(t, s, http.MethodGet, "/conversations?sort=WRONG", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("bad sort = %d, want 400", rec.Code)
	}
}

func TestResumeAcrossRestart(t *testing.T) {
	workspace := t.TempDir()

	s1 := newWorkspaceServer(t, workspace)
	rec := do(t, s1, http.MethodPost, "/conversations", StartConversationRequest{
		InitialMessage: "call echo with hi",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("start = %d: %s", rec.Code, rec.Body.String())
	}
	id := decode[ConversationResponse](t, rec).ConversationID

	rec = do(t, s1, http.MethodPost, "/conversations/"+id+"/run", nil)
	if decode[ConversationResponse](t, rec).State.Status != conversation.StatusFinished {
		t.Fatalf("status after run: %s", rec.Body.String())
	}
	if err := s1.Shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}

	// A fresh server has nothing in memory; lookup resumes from disk.
	s2 := newWorkspaceServer(t, workspace)
	rec = do(t, s2, http.MethodGet, "/conversations/"+id, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get after restart = %d: %s", rec.Code, rec.Body.String())
	}
	state := decode[ConversationResponse](t, rec).State
	if state.Status != conversation.StatusFinished {
		t.Errorf("resumed status = %s, want finished", state.Status)
	}
	if state.ID != id {
		t.Errorf("resumed id = %q, want %q", state.ID, id)
	}

	rec = do(t, s2, http.MethodGet, "/conversations/"+id+"/events", nil)
	page := decode[EventPage](t, rec)
	if page.Total == 0 {
		t.Error("resumed conversation has no events")
	}

	if rec = do(t, s2, http.MethodGet, "/conversations/no-such-id", nil); rec.Code != http.StatusNotFound {
		t.Errorf("unknown id = %d, want 404", rec.Code)
	}
}

func TestPauseEndpoint(t *testing.T) {
	s := newTestServer(t)
	rec := do(t, s, http.MethodPost, "/conversations", StartConversationRequest{
		InitialMessage: "hello",
	})
	id := decode[ConversationResponse](t, rec).ConversationID

	if rec = do(t, s, http.MethodPost, "/conversations/"+id+"/pause", nil); rec.Code != http.StatusOK {
		t.Fatalf("pause = %d", rec.Code)
	}

	// The pause lands at the run loop's first checkpoint.
	rec = do(t, s, http.MethodPost, "/conversations/"+id+"/run", nil)
	state := decode[ConversationResponse](t, rec).State
	if state.Status != conversation.StatusPaused {
		t.Errorf("status = %s, want paused", state.Status)
	}
}
