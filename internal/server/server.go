// Package server exposes conversations over HTTP. It owns the set of
// live conversations; building a new one (agent, tools, LLM) is
// delegated to a Factory wired in by the caller.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"

	echo "github.com/labstack/echo/v5"

	"github.com/jamiechicago312/agent-sdk/internal/conversation"
	"github.com/jamiechicago312/agent-sdk/pkg/secrets"
)

// Factory builds a conversation for a start request.
type Factory func(ctx context.Context, req StartConversationRequest) (*conversation.Conversation, error)

// Resumer reopens a persisted conversation that is not in memory. The
// server maps any resume failure to a 404.
type Resumer func(ctx context.Context, id string) (*conversation.Conversation, error)

// Server is the agent HTTP API.
type Server struct {
	echo    *echo.Echo
	factory Factory
	resumer Resumer
	logger  *slog.Logger
	http    *http.Server

	mu            sync.RWMutex
	conversations map[string]*conversation.Conversation
	secrets       map[string]map[string]secrets.Secret
}

// New creates a server and registers its routes. resumer may be nil,
// in which case unknown conversation ids are plain 404s.
func New(factory Factory, resumer Resumer, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		echo:          echo.New(),
		factory:       factory,
		resumer:       resumer,
		logger:        logger.With("component", "server"),
		conversations: map[string]*conversation.Conversation{},
		secrets:       map[string]map[string]secrets.Secret{},
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	e := s.echo
	e.GET("/health", s.handleHealth)

	e.POST("/conversations", s.handleStartConversation)
	e.GET("/conversations", s.handleListConversations)
	e.GET("/conversations/:id", s.handleGetConversation)
	e.DELETE("/conversations/:id", s.handleCloseConversation)

	e.POST("/conversations/:id/messages", s.handleSendMessage)
	e.POST("/conversations/:id/run", s.handleRun)
	e.POST("/conversations/:id/confirm", s.handleConfirm)
	e.POST("/conversations/:id/pause", s.handlePause)
	e.GET("/conversations/:id/events", s.handleListEvents)

	e.PUT("/conversations/:id/secrets", s.handleUpdateSecrets)
	e.PUT("/conversations/:id/confirmation-policy", s.handleSetConfirmationPolicy)
}

// Handler exposes the routing tree, mainly for tests.
func (s *Server) Handler() http.Handler { return s.echo }

// Start serves HTTP on addr until Shutdown.
func (s *Server) Start(addr string) error {
	s.http = &http.Server{Addr: addr, Handler: s.echo}
	s.logger.Info("http server listening", "addr", addr)
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown stops the listener and closes every conversation.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	if s.http != nil {
		err = s.http.Shutdown(ctx)
	}

	s.mu.Lock()
	convs := make([]*conversation.Conversation, 0, len(s.conversations))
	for _, c := range s.conversations {
		convs = append(convs, c)
	}
	s.mu.Unlock()

	for _, c := range convs {
		if cerr := c.Close(); cerr != nil {
			s.logger.Warn("closing conversation", "conversation_id", c.ID(), "error", cerr)
		}
	}
	return err
}

// lookup finds a live conversation, falling back to resuming it from
// disk when a resumer is configured. Unknown ids are 404s.
func (s *Server) lookup(ctx context.Context, id string) (*conversation.Conversation, error) {
	s.mu.RLock()
	c, ok := s.conversations[id]
	s.mu.RUnlock()
	if ok {
		return c, nil
	}
	if s.resumer == nil {
		return nil, echo.NewHTTPError(http.StatusNotFound, "conversation not found")
	}

	resumed, err := s.resumer(ctx, id)
	if err != nil {
		s.logger.Debug("resume failed", "conversation_id", id, "error", err)
		return nil, echo.NewHTTPError(http.StatusNotFound, "conversation not found")
	}

	s.mu.Lock()
	if existing, ok := s.conversations[id]; ok {
		// Another request resumed it first; keep that one.
		s.mu.Unlock()
		if cerr := resumed.Close(); cerr != nil {
			s.logger.Warn("closing duplicate resume", "conversation_id", id, "error", cerr)
		}
		return existing, nil
	}
	s.conversations[id] = resumed
	s.mu.Unlock()

	s.logger.Info("conversation resumed", "conversation_id", id)
	return resumed, nil
}

// snapshots returns the states of all live conversations, sorted.
func (s *Server) snapshots(order string) []conversation.PersistedState {
	s.mu.RLock()
	states := make([]conversation.PersistedState, 0, len(s.conversations))
	for _, c := range s.conversations {
		states = append(states, c.Snapshot())
	}
	s.mu.RUnlock()

	sort.Slice(states, func(i, j int) bool {
		switch order {
		case SortCreatedAtDesc:
			return states[i].CreatedAt.After(states[j].CreatedAt)
		case SortUpdatedAt:
			return states[i].UpdatedAt.Before(states[j].UpdatedAt)
		case SortUpdatedAtDesc:
			return states[i].UpdatedAt.After(states[j].UpdatedAt)
		default:
			return states[i].CreatedAt.Before(states[j].CreatedAt)
		}
	})
	return states
}
