// Package conversation implements the outer runtime loop: it drives the
// agent step engine, executes tool calls, enforces confirmation
// policies, budgets and iteration limits, detects stuck loops, and owns
// the conversation's event log and state.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/jamiechicago312/agent-sdk/internal/agent"
	"github.com/jamiechicago312/agent-sdk/internal/condenser"
	"github.com/jamiechicago312/agent-sdk/internal/eventstore"
	"github.com/jamiechicago312/agent-sdk/internal/llm"
	"github.com/jamiechicago312/agent-sdk/internal/tools"
	"github.com/jamiechicago312/agent-sdk/internal/view"
	"github.com/jamiechicago312/agent-sdk/pkg/events"
	"github.com/jamiechicago312/agent-sdk/pkg/models"
)

var (
	// ErrAlreadyRunning indicates a concurrent Run on the same conversation.
	ErrAlreadyRunning = errors.New("conversation already running")

	// ErrNotWaitingForConfirmation indicates a confirmation response with
	// no pending confirmation.
	ErrNotWaitingForConfirmation = errors.New("conversation is not waiting for confirmation")

	// ErrClosed indicates an operation on a closed conversation.
	ErrClosed = errors.New("conversation closed")
)

// Status is the conversation's execution status.
type Status string

const (
	StatusIdle                   Status = "idle"
	StatusRunning                Status = "running"
	StatusPaused                 Status = "paused"
	StatusWaitingForConfirmation Status = "waiting_for_confirmation"
	StatusFinished               Status = "finished"
	StatusErrored                Status = "errored"
)

// Event log backends.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// DefaultMaxIterations caps run loop turns when the config leaves it zero.
const DefaultMaxIterations = 500

// DefaultRejectReason is recorded when an action is rejected without one.
const DefaultRejectReason = "User rejected the action."

// Config assembles a conversation. Agent is required; everything else
// has a usable default.
type Config struct {
	// Agent is the step engine driving this conversation.
	Agent *agent.Agent

	// Store overrides the event log backend. Defaults to an in-memory
	// store, or a filesystem store when Workspace is set.
	Store eventstore.Store

	// Backend selects the event log backend when Store is nil: "memory",
	// "file", or "sqlite". Empty means file when Workspace is set,
	// memory otherwise.
	Backend string

	// Condenser shrinks long histories. Nil disables condensation; a
	// context window overflow is then terminal.
	Condenser condenser.Condenser

	// ConfirmationPolicy gates tool execution. Defaults to NeverConfirm.
	ConfirmationPolicy ConfirmationPolicy

	// MaxIterations caps LLM turns per conversation. Zero means
	// DefaultMaxIterations.
	MaxIterations int

	// MaxBudget stops the conversation once accumulated cost reaches it.
	// Zero means unlimited.
	MaxBudget float64

	// DisableStuckDetection turns off loop detection.
	DisableStuckDetection bool

	// Workspace, when set, persists events and state under
	// <workspace>/.conversations/<id>/.
	Workspace string

	Logger *slog.Logger
}

// Conversation is a single agent conversation. One Run executes at a
// time; state queries and event subscriptions are safe from other
// goroutines.
type Conversation struct {
	id        string
	agent     *agent.Agent
	store     *eventstore.PublishingStore
	bus       *eventstore.Bus
	condenser condenser.Condenser
	detector  *StuckDetector
	logger    *slog.Logger

	maxIterations  int
	maxBudget      float64
	stuckDetection bool
	stateDir       string
	backend        string

	mu        sync.Mutex
	status    Status
	iteration int
	policy    ConfirmationPolicy
	approved  map[string]bool
	createdAt time.Time
	updatedAt time.Time
	closed    bool

	running        atomic.Bool
	pauseRequested atomic.Bool

	closeOnce sync.Once
	closeErr  error
}

// New creates a conversation and records its system prompt as the first
// event.
func New(ctx context.Context, cfg Config) (*Conversation, error) {
	if cfg.Agent == nil {
		return nil, fmt.Errorf("conversation requires an agent")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	if cfg.ConfirmationPolicy == nil {
		cfg.ConfirmationPolicy = NeverConfirm()
	}

	id := uuid.NewString()
	backend := cfg.Backend
	if backend == "" {
		if cfg.Workspace != "" {
			backend = BackendFile
		} else {
			backend = BackendMemory
		}
	}
	stateDir := ""
	store := cfg.Store
	if store == nil {
		switch backend {
		case BackendMemory:
			store = eventstore.NewMemoryStore()
		case BackendFile, BackendSQLite:
			if cfg.Workspace == "" {
				return nil, fmt.Errorf("%s backend requires a workspace", backend)
			}
			stateDir = filepath.Join(cfg.Workspace, ".conversations", id)
			var err error
			if store, err = openBackendStore(backend, stateDir, id); err != nil {
				return nil, fmt.Errorf("open event log: %w", err)
			}
		default:
			return nil, fmt.Errorf("unknown persistence backend %q", backend)
		}
	}

	now := time.Now().UTC()
	c := &Conversation{
		id:             id,
		agent:          cfg.Agent,
		bus:            eventstore.NewBus(),
		condenser:      cfg.Condenser,
		detector:       NewStuckDetector(),
		logger:         logger.With("component", "conversation", "conversation_id", id),
		maxIterations:  cfg.MaxIterations,
		maxBudget:      cfg.MaxBudget,
		stuckDetection: !cfg.DisableStuckDetection,
		stateDir:       stateDir,
		backend:        backend,
		status:         StatusIdle,
		policy:         cfg.ConfirmationPolicy,
		approved:       map[string]bool{},
		createdAt:      now,
		updatedAt:      now,
	}
	c.store = eventstore.WithBus(store, c.bus)
	if cfg.MaxBudget > 0 {
		cfg.Agent.LLM().Metrics().SetMaxBudget(cfg.MaxBudget)
	}

	if err := c.append(ctx, events.NewSystemPromptEvent(cfg.Agent.SystemPrompt())); err != nil {
		store.Close()
		return nil, err
	}
	c.persistState()
	return c, nil
}

// ID returns the conversation's UUID.
func (c *Conversation) ID() string { return c.id }

// Status returns the current execution status.
func (c *Conversation) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Metrics returns the conversation's accumulated LLM spend.
func (c *Conversation) Metrics() models.MetricsSnapshot {
	return c.agent.LLM().Metrics().Snapshot()
}

// Events returns the full event log in append order.
func (c *Conversation) Events(ctx context.Context) ([]events.Event, error) {
	return c.store.All(ctx)
}

// Subscribe registers a callback invoked synchronously for every event
// appended after the call. It returns an unsubscribe function.
func (c *Conversation) Subscribe(fn eventstore.Callback) func() {
	return c.bus.Subscribe(fn)
}

// SetConfirmationPolicy replaces the confirmation policy.
func (c *Conversation) SetConfirmationPolicy(p ConfirmationPolicy) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.policy = p
	c.touchLocked()
}

// SendMessage appends a user message. Sending to a finished or errored
// conversation reopens it.
func (c *Conversation) SendMessage(ctx context.Context, msg models.Message) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.status == StatusFinished || c.status == StatusErrored {
		c.setStatusLocked(StatusIdle)
	}
	c.mu.Unlock()

	return c.append(ctx, events.NewMessageEvent(events.SourceUser, msg))
}

// Pause requests a pause. It takes effect at the next checkpoint; it
// never interrupts an in-flight LLM call or tool execution.
func (c *Conversation) Pause() {
	c.pauseRequested.Store(true)
}

// RespondToConfirmation resolves a pending confirmation. On accept the
// pending actions run at the next Run; on reject each pending action
// gets an error observation carrying the reason and the conversation
// returns to running.
func (c *Conversation) RespondToConfirmation(ctx context.Context, accept bool, reason string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.status != StatusWaitingForConfirmation {
		c.mu.Unlock()
		return ErrNotWaitingForConfirmation
	}
	c.setStatusLocked(StatusIdle)
	c.mu.Unlock()

	log, err := c.store.All(ctx)
	if err != nil {
		return err
	}
	pending := unmatchedActions(log)

	if accept {
		c.mu.Lock()
		for _, action := range pending {
			c.approved[action.ToolCallID] = true
		}
		c.mu.Unlock()
		return nil
	}

	if reason == "" {
		reason = DefaultRejectReason
	}
	for _, action := range pending {
		obs := events.NewErrorObservation(action.ToolCallID, action.ToolName,
			"User rejected: "+reason)
		if err := c.append(ctx, obs); err != nil {
			return err
		}
	}
	return nil
}

// Run executes the conversation loop until the agent finishes, a limit
// trips, a pause or confirmation suspends it, or a terminal error is
// recorded. Tool and LLM failures never escape as errors; they become
// events. Only ErrAlreadyRunning, ErrClosed, and persistence failures
// are returned.
func (c *Conversation) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer c.running.Store(false)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	switch c.status {
	case StatusWaitingForConfirmation, StatusFinished, StatusErrored:
		c.mu.Unlock()
		return nil
	}
	c.setStatusLocked(StatusRunning)
	c.mu.Unlock()

	for {
		if c.honorPause(ctx) {
			return nil
		}
		if c.maxBudget > 0 && c.agent.LLM().Metrics().Cost() >= c.maxBudget {
			return c.terminate(ctx, events.ErrorKindBudgetExceeded,
				fmt.Sprintf("accumulated cost %.4f reached budget %.4f",
					c.agent.LLM().Metrics().Cost(), c.maxBudget))
		}
		c.mu.Lock()
		iteration := c.iteration
		c.mu.Unlock()
		if iteration >= c.maxIterations {
			return c.terminate(ctx, events.ErrorKindIterationLimit,
				fmt.Sprintf("reached max_iterations %d", c.maxIterations))
		}

		log, err := c.store.All(ctx)
		if err != nil {
			return c.persistenceFailure(ctx, err)
		}

		// Actions left pending by an earlier pause or an accepted
		// confirmation run before the next LLM turn.
		if pending := unmatchedActions(log); len(pending) > 0 {
			if c.requiresConfirmation(pending) {
				c.setStatus(StatusWaitingForConfirmation)
				return nil
			}
			finished, err := c.executeActions(ctx, pending)
			if err != nil {
				return err
			}
			if finished {
				return c.finish(ctx)
			}
			if c.paused() {
				return nil
			}
			continue
		}

		v := view.Project(log)
		if c.condenser != nil && (v.UnhandledCondensationRequest || c.condenser.ShouldCondense(v)) {
			condensed, err := c.condenser.Condense(ctx, v)
			if err != nil {
				return c.terminate(ctx, events.ErrorKindProvider,
					fmt.Sprintf("condensation failed: %v", err))
			}
			if err := c.append(ctx, condensed); err != nil {
				return c.persistenceFailure(ctx, err)
			}
			continue
		}

		stepEvents, err := c.agent.Step(ctx, v)
		if err != nil {
			var cwErr *llm.ContextWindowExceededError
			if errors.As(err, &cwErr) && c.condenser != nil {
				c.logger.Warn("context window exceeded, requesting condensation", "error", err)
				if aerr := c.append(ctx, events.NewCondensationRequestEvent()); aerr != nil {
					return c.persistenceFailure(ctx, aerr)
				}
				continue
			}
			kind := events.ErrorKindProvider
			switch {
			case errors.As(err, &cwErr):
				kind = events.ErrorKindContextWindow
			case errors.Is(err, tools.ErrToolNotFound):
				kind = events.ErrorKindToolMissing
			}
			return c.terminate(ctx, kind, err.Error())
		}
		for _, e := range stepEvents {
			if err := c.append(ctx, e); err != nil {
				return c.persistenceFailure(ctx, err)
			}
		}
		c.bumpIteration()

		pending := unmatchedActionsIn(stepEvents)
		if len(pending) == 0 {
			// A plain assistant message ends the turn.
			return c.finish(ctx)
		}
		if c.requiresConfirmation(pending) {
			c.setStatus(StatusWaitingForConfirmation)
			return nil
		}
		finished, err := c.executeActions(ctx, pending)
		if err != nil {
			return err
		}
		if finished {
			return c.finish(ctx)
		}
		if c.paused() {
			return nil
		}

		if c.stuckDetection {
			log, err := c.store.All(ctx)
			if err != nil {
				return c.persistenceFailure(ctx, err)
			}
			if c.detector.IsStuck(log) {
				return c.terminate(ctx, events.ErrorKindStuck,
					"agent appears to be stuck in a loop")
			}
		}
	}
}

// Close releases the agent's tool executors and the event store.
// Idempotent; executor errors are logged and swallowed.
func (c *Conversation) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()

		for _, t := range c.agent.Tools() {
			if t.Executor == nil {
				continue
			}
			if err := t.Executor.Close(); err != nil {
				c.logger.Warn("closing tool executor", "tool", t.Name, "error", err)
			}
		}
		c.closeErr = c.store.Close()
		c.persistState()
	})
	return c.closeErr
}

// executeActions runs pending actions in order, honoring pause between
// tools. It reports whether the finish tool ran. Executor failures
// become error observations, never returned errors.
func (c *Conversation) executeActions(ctx context.Context, pending []events.ActionPayload) (finished bool, err error) {
	for i, action := range pending {
		// Pause between tools, never mid-call.
		if i > 0 && c.honorPause(ctx) {
			return false, nil
		}

		tool, ok := c.agent.Tool(action.ToolName)
		if !ok {
			// The step engine already vetted tool names; an unknown name
			// here means the tool set changed mid-conversation.
			return false, c.terminate(ctx, events.ErrorKindToolMissing,
				fmt.Sprintf("tool %q not available", action.ToolName))
		}

		obs := c.invoke(ctx, tool, action)
		if err := c.append(ctx, obs); err != nil {
			return false, c.persistenceFailure(ctx, err)
		}
		if tool.Name == tools.FinishToolName && !obs.Observation.IsError {
			return true, nil
		}
	}
	return false, nil
}

// invoke runs one tool call and converts the outcome to an observation.
func (c *Conversation) invoke(ctx context.Context, tool *tools.Tool, action events.ActionPayload) events.Event {
	start := time.Now()
	result, err := tool.Call(ctx, action.Arguments)
	if err != nil {
		c.logger.Warn("tool execution failed",
			"tool", tool.Name, "tool_call_id", action.ToolCallID, "error", err)
		return events.NewErrorObservation(action.ToolCallID, tool.Name, err.Error())
	}
	c.logger.Debug("tool executed",
		"tool", tool.Name, "tool_call_id", action.ToolCallID,
		"duration", time.Since(start), "is_error", result.IsError)
	return events.NewObservationEvent(events.ObservationPayload{
		ToolCallID: action.ToolCallID,
		ToolName:   tool.Name,
		Content:    result.Content,
		IsError:    result.IsError,
	})
}

func (c *Conversation) requiresConfirmation(pending []events.ActionPayload) bool {
	c.mu.Lock()
	policy := c.policy
	approved := c.approved
	c.mu.Unlock()
	for _, action := range pending {
		if approved[action.ToolCallID] {
			continue
		}
		tool, _ := c.agent.Tool(action.ToolName)
		if policy.RequiresConfirmation(action, tool) {
			return true
		}
	}
	return false
}

// honorPause applies a requested pause: it records a pause event and
// moves to StatusPaused. Reports whether the run should stop.
func (c *Conversation) honorPause(ctx context.Context) bool {
	if !c.pauseRequested.CompareAndSwap(true, false) {
		return false
	}
	if err := c.append(ctx, events.NewPauseEvent()); err != nil {
		c.logger.Warn("recording pause", "error", err)
	}
	c.setStatus(StatusPaused)
	return true
}

func (c *Conversation) paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status == StatusPaused
}

func (c *Conversation) finish(ctx context.Context) error {
	if err := c.append(ctx, events.NewFinishedEvent()); err != nil {
		return c.persistenceFailure(ctx, err)
	}
	c.setStatus(StatusFinished)
	return nil
}

// terminate records a terminal error event and moves to StatusErrored.
// It returns nil: terminal conditions are data, not Run errors.
func (c *Conversation) terminate(ctx context.Context, kind events.ErrorKind, detail string) error {
	c.logger.Error("conversation terminated", "kind", string(kind), "detail", detail)
	if err := c.append(ctx, events.NewErrorEvent(kind, detail)); err != nil {
		c.logger.Warn("recording terminal error", "error", err)
	}
	c.setStatus(StatusErrored)
	return nil
}

// persistenceFailure is the one terminal path that also returns the
// error: the store is unreliable, so the error event append is
// best-effort.
func (c *Conversation) persistenceFailure(ctx context.Context, err error) error {
	c.logger.Error("event store failure", "error", err)
	if aerr := c.append(ctx, events.NewErrorEvent(events.ErrorKindPersistence, err.Error())); aerr == nil {
		c.setStatus(StatusErrored)
		return err
	}
	c.setStatus(StatusErrored)
	return err
}

func (c *Conversation) append(ctx context.Context, e events.Event) error {
	return c.store.Append(ctx, e)
}

func (c *Conversation) setStatus(s Status) {
	c.mu.Lock()
	c.setStatusLocked(s)
	c.mu.Unlock()
	c.persistState()
}

func (c *Conversation) setStatusLocked(s Status) {
	if c.status == s {
		return
	}
	c.status = s
	c.touchLocked()
}

func (c *Conversation) touchLocked() {
	c.updatedAt = time.Now().UTC()
}

func (c *Conversation) bumpIteration() {
	c.mu.Lock()
	c.iteration++
	c.touchLocked()
	c.mu.Unlock()
	c.persistState()
}

// unmatchedActions returns actions with no observation, in log order.
func unmatchedActions(log []events.Event) []events.ActionPayload {
	observed := map[string]bool{}
	for _, e := range log {
		if e.Kind == events.KindObservation && e.Observation != nil {
			observed[e.Observation.ToolCallID] = true
		}
	}
	var pending []events.ActionPayload
	for _, e := range log {
		if e.Kind == events.KindAction && e.Action != nil && !observed[e.Action.ToolCallID] {
			pending = append(pending, *e.Action)
		}
	}
	return pending
}

func unmatchedActionsIn(stepEvents []events.Event) []events.ActionPayload {
	return unmatchedActions(stepEvents)
}
