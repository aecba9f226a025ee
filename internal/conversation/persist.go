package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/jamiechicago312/agent-sdk/internal/config"
	"github.com/jamiechicago312/agent-sdk/internal/eventstore"
	"github.com/jamiechicago312/agent-sdk/internal/llm"
	"github.com/jamiechicago312/agent-sdk/pkg/models"
)

// stateFileName is the per-conversation state snapshot next to the
// event log.
const stateFileName = "state.json"

// PersistedState is the conversation state snapshot written to
// state.json after every status or iteration change.
type PersistedState struct {
	ID                 string                 `json:"id"`
	Status             Status                 `json:"status"`
	Iteration          int                    `json:"iteration"`
	MaxIterations      int                    `json:"max_iterations"`
	ConfirmationPolicy string                 `json:"confirmation_policy"`
	StuckDetection     bool                   `json:"stuck_detection"`
	Backend            string                 `json:"backend,omitempty"`
	LLM                llm.Config             `json:"llm"`
	Metrics            models.MetricsSnapshot `json:"metrics"`
	CreatedAt          time.Time              `json:"created_at"`
	UpdatedAt          time.Time              `json:"updated_at"`
}

// Snapshot captures the current state for persistence or the API.
func (c *Conversation) Snapshot() PersistedState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return PersistedState{
		ID:                 c.id,
		Status:             c.status,
		Iteration:          c.iteration,
		MaxIterations:      c.maxIterations,
		ConfirmationPolicy: c.policy.Name(),
		StuckDetection:     c.stuckDetection,
		Backend:            c.backend,
		LLM:                c.agent.LLM().Config(),
		Metrics:            c.agent.LLM().Metrics().Snapshot(),
		CreatedAt:          c.createdAt,
		UpdatedAt:          c.updatedAt,
	}
}

// persistState writes state.json. Best effort: persistence of the state
// snapshot never fails a run (the event log is the source of truth).
func (c *Conversation) persistState() {
	if c.stateDir == "" {
		return
	}
	state := c.Snapshot()
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		c.logger.Warn("encoding state snapshot", "error", err)
		return
	}
	path := filepath.Join(c.stateDir, stateFileName)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		c.logger.Warn("writing state snapshot", "error", err)
		return
	}
	if err := os.Rename(tmp, path); err != nil {
		c.logger.Warn("replacing state snapshot", "error", err)
	}
}

// LoadState reads a persisted conversation state from a workspace.
func LoadState(workspace, id string) (PersistedState, error) {
	var state PersistedState
	path := filepath.Join(workspace, ".conversations", id, stateFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return state, fmt.Errorf("read conversation state: %w", err)
	}
	if err := json.Unmarshal(data, &state); err != nil {
		return state, fmt.Errorf("decode conversation state %s: %w", path, err)
	}
	return state, nil
}

// ListPersisted returns the ids of conversations stored in a workspace.
func ListPersisted(workspace string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(workspace, ".conversations"))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	return ids, nil
}

// Resume reopens a persisted conversation. The runtime config must
// agree with the persisted non-secret fields; a mismatch is a load-time
// error. In-flight statuses (running) downgrade to idle; paused,
// waiting_for_confirmation, and terminal statuses are kept.
func Resume(ctx context.Context, cfg Config, id string) (*Conversation, error) {
	if cfg.Agent == nil {
		return nil, fmt.Errorf("conversation requires an agent")
	}
	if cfg.Workspace == "" {
		return nil, fmt.Errorf("resume requires a workspace")
	}

	persisted, err := LoadState(cfg.Workspace, id)
	if err != nil {
		return nil, err
	}
	if persisted.ID != id {
		return nil, fmt.Errorf("persisted state id %q does not match %q", persisted.ID, id)
	}
	if cfg.MaxIterations != 0 && cfg.MaxIterations != persisted.MaxIterations {
		return nil, fmt.Errorf("max_iterations mismatch: persisted %d, runtime %d",
			persisted.MaxIterations, cfg.MaxIterations)
	}
	policy := cfg.ConfirmationPolicy
	if policy == nil {
		if policy, err = PolicyByName(persisted.ConfirmationPolicy); err != nil {
			return nil, err
		}
	} else if policy.Name() != persisted.ConfirmationPolicy {
		return nil, fmt.Errorf("confirmation policy mismatch: persisted %q, runtime %q",
			persisted.ConfirmationPolicy, policy.Name())
	}

	// The persisted LLM config never carries secrets; non-secret drift
	// against the gateway driving this resume is a load-time error.
	if _, err := config.ReconcileLLM(persisted.LLM, cfg.Agent.LLM().Config()); err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	backend := persisted.Backend
	if backend == "" {
		backend = BackendFile
	}
	stateDir := filepath.Join(cfg.Workspace, ".conversations", id)
	store, err := openBackendStore(backend, stateDir, id)
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}

	status := persisted.Status
	if status == StatusRunning {
		status = StatusIdle
	}

	c := &Conversation{
		id:             id,
		agent:          cfg.Agent,
		bus:            eventstore.NewBus(),
		condenser:      cfg.Condenser,
		detector:       NewStuckDetector(),
		logger:         logger.With("component", "conversation", "conversation_id", id),
		maxIterations:  persisted.MaxIterations,
		maxBudget:      cfg.MaxBudget,
		stuckDetection: persisted.StuckDetection,
		stateDir:       stateDir,
		backend:        backend,
		status:         status,
		iteration:      persisted.Iteration,
		policy:         policy,
		approved:       map[string]bool{},
		createdAt:      persisted.CreatedAt,
		updatedAt:      persisted.UpdatedAt,
	}
	c.store = eventstore.WithBus(store, c.bus)
	if cfg.MaxBudget > 0 {
		cfg.Agent.LLM().Metrics().SetMaxBudget(cfg.MaxBudget)
	}
	return c, nil
}

// openBackendStore opens the persistent event log for one conversation.
func openBackendStore(backend, stateDir, id string) (eventstore.Store, error) {
	switch backend {
	case BackendSQLite:
		if err := os.MkdirAll(stateDir, 0o755); err != nil {
			return nil, fmt.Errorf("create conversation directory: %w", err)
		}
		return eventstore.OpenSQLiteStore(filepath.Join(stateDir, "events.db"), id)
	case BackendFile:
		return eventstore.OpenFileStore(filepath.Join(stateDir, "events.ndjson"))
	default:
		return nil, fmt.Errorf("unknown persistence backend %q", backend)
	}
}
