// Package main provides the CLI entry point for agentd, the agent SDK
// HTTP server.
//
// # Basic Usage
//
// Start the server:
//
//	agentd serve --config agentd.yaml
//
// # Environment Variables
//
// Values in the config file may reference environment variables with
// ${VAR} syntax. A .env file in the working directory is loaded before
// the config is parsed:
//
//   - ANTHROPIC_API_KEY: Anthropic API key for Claude models
//   - OPENAI_API_KEY: OpenAI API key for GPT models
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/jamiechicago312/agent-sdk/internal/agent"
	"github.com/jamiechicago312/agent-sdk/internal/condenser"
	"github.com/jamiechicago312/agent-sdk/internal/config"
	"github.com/jamiechicago312/agent-sdk/internal/conversation"
	"github.com/jamiechicago312/agent-sdk/internal/llm"
	"github.com/jamiechicago312/agent-sdk/internal/llm/providers"
	"github.com/jamiechicago312/agent-sdk/internal/mcp"
	"github.com/jamiechicago312/agent-sdk/internal/server"
	"github.com/jamiechicago312/agent-sdk/internal/tools"
)

// Build information - populated by ldflags during build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "agentd",
		Short: "Agent SDK server",
		Long:  "agentd runs autonomous LLM agent conversations behind an HTTP API.",
	}
	rootCmd.AddCommand(
		buildServeCmd(),
		buildVersionCmd(),
	)
	return rootCmd
}

func buildVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("agentd %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}

func buildServeCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the agent HTTP server",
		Long: `Start the agent server with the configured LLMs and tools.

The server will:
1. Load configuration from the specified file (or agentd.yaml)
2. Initialize LLM gateways for every configured service
3. Connect configured MCP servers and bridge their tools
4. Serve the conversation API over HTTP

Graceful shutdown is handled on SIGINT/SIGTERM signals.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath, debug)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "agentd.yaml",
		"Path to YAML configuration file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false,
		"Enable debug logging (verbose output)")

	return cmd
}

func runServe(ctx context.Context, configPath string, debug bool) error {
	// Optional .env bootstrap; missing file is fine.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("loading .env", "error", err)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := buildLogger(cfg.Logging, debug)
	slog.SetDefault(logger)
	logger.Info("starting agentd",
		"version", version,
		"config", configPath,
		"llm_services", len(cfg.LLMs),
		"workspace", cfg.Workspace,
	)

	// Validate every configured LLM by constructing its gateway once.
	registry := llm.NewRegistry()
	for id, llmCfg := range cfg.LLMs {
		gateway, err := buildGateway(llmCfg, logger)
		if err != nil {
			return fmt.Errorf("llm %q: %w", id, err)
		}
		if err := registry.Register(gateway); err != nil {
			return err
		}
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Connect MCP servers once; their tools are shared by every
	// conversation.
	var bridges []*mcp.Bridge
	var mcpTools []*tools.Tool
	for i := range cfg.MCPServers {
		bridge, err := mcp.NewBridge(ctx, &cfg.MCPServers[i])
		if err != nil {
			return fmt.Errorf("mcp server %q: %w", cfg.MCPServers[i].ID, err)
		}
		bridges = append(bridges, bridge)
		mcpTools = append(mcpTools, bridge.Tools()...)
	}
	defer func() {
		for _, b := range bridges {
			if err := b.Close(); err != nil {
				logger.Warn("closing mcp bridge", "error", err)
			}
		}
	}()

	toolRegistry := tools.NewRegistry()
	if err := toolRegistry.Register("builtin", func(map[string]any) ([]*tools.Tool, error) {
		return []*tools.Tool{tools.NewFinishTool(), tools.NewThinkTool()}, nil
	}); err != nil {
		return err
	}

	factory := conversationFactory(cfg, toolRegistry, mcpTools, logger)
	resumer := conversationResumer(cfg, toolRegistry, mcpTools, logger)
	srv := server.New(factory, resumer, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port))
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutdown signal received, initiating graceful shutdown")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	return srv.Shutdown(shutdownCtx)
}

// buildLogger translates the logging config into a slog logger. The
// --debug flag forces the debug level regardless of config.
func buildLogger(cfg config.LoggingConfig, debug bool) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if debug {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

// buildGateway constructs an LLM gateway with its provider backend.
func buildGateway(llmCfg llm.Config, logger *slog.Logger) (*llm.LLM, error) {
	provider, err := providers.New(llmCfg)
	if err != nil {
		return nil, err
	}
	return llm.New(llmCfg, provider, logger)
}

// conversationFactory builds one conversation per start request. Each
// conversation gets fresh gateways so cost and budgets accumulate per
// conversation, not per process.
func conversationFactory(cfg *config.Config, toolRegistry *tools.Registry, mcpTools []*tools.Tool, logger *slog.Logger) server.Factory {
	return func(ctx context.Context, req server.StartConversationRequest) (*conversation.Conversation, error) {
		serviceID := req.Agent
		if serviceID == "" {
			serviceID = cfg.DefaultLLM
		}
		llmCfg, ok := cfg.LLMs[serviceID]
		if !ok {
			return nil, fmt.Errorf("unknown llm service %q", serviceID)
		}
		gateway, err := buildGateway(llmCfg, logger)
		if err != nil {
			return nil, err
		}

		toolset, err := buildToolset(cfg, toolRegistry, mcpTools)
		if err != nil {
			return nil, err
		}
		ag, err := agent.New(gateway, toolset, cfg.Agent.SystemPrompt, logger)
		if err != nil {
			return nil, err
		}

		var cond condenser.Condenser
		if cfg.Condenser.Enabled {
			condGateway, err := buildGateway(cfg.LLMs[cfg.Condenser.LLM], logger)
			if err != nil {
				return nil, err
			}
			sc, err := condenser.NewSummarizingCondenser(condGateway,
				cfg.Condenser.MaxSize, cfg.Condenser.KeepFirst)
			if err != nil {
				return nil, err
			}
			cond = sc
		}

		policyName := req.ConfirmationPolicy
		if policyName == "" {
			policyName = cfg.Conversation.ConfirmationPolicy
		}
		policy, err := conversation.PolicyByName(policyName)
		if err != nil {
			return nil, err
		}

		maxIterations := req.MaxIterations
		if maxIterations == 0 {
			maxIterations = cfg.Conversation.MaxIterations
		}
		maxBudget := req.MaxBudget
		if maxBudget == 0 {
			maxBudget = cfg.Conversation.MaxBudget
		}
		stuckDisabled := cfg.Conversation.DisableStuckDetection
		if req.StuckDetection != nil {
			stuckDisabled = !*req.StuckDetection
		}
		workspace := req.Workspace
		if workspace == "" {
			workspace = cfg.Workspace
		}

		return conversation.New(ctx, conversation.Config{
			Agent:                 ag,
			Condenser:             cond,
			ConfirmationPolicy:    policy,
			MaxIterations:         maxIterations,
			MaxBudget:             maxBudget,
			DisableStuckDetection: stuckDisabled,
			Workspace:             workspace,
			Backend:               cfg.Persistence.Backend,
			Logger:                logger,
		})
	}
}

// conversationResumer reopens a persisted conversation when the server
// gets a request for an id that is not in memory. The gateway is
// rebuilt from the configured service named in the persisted state; its
// non-secret fields must still match what was persisted.
func conversationResumer(cfg *config.Config, toolRegistry *tools.Registry, mcpTools []*tools.Tool, logger *slog.Logger) server.Resumer {
	return func(ctx context.Context, id string) (*conversation.Conversation, error) {
		state, err := conversation.LoadState(cfg.Workspace, id)
		if err != nil {
			return nil, err
		}
		llmCfg, ok := cfg.LLMs[state.LLM.ServiceID]
		if !ok {
			return nil, fmt.Errorf("conversation %s uses llm service %q which is no longer configured",
				id, state.LLM.ServiceID)
		}
		reconciled, err := config.ReconcileLLM(state.LLM, llmCfg.WithDefaults())
		if err != nil {
			return nil, err
		}
		gateway, err := buildGateway(reconciled, logger)
		if err != nil {
			return nil, err
		}

		toolset, err := buildToolset(cfg, toolRegistry, mcpTools)
		if err != nil {
			return nil, err
		}
		ag, err := agent.New(gateway, toolset, cfg.Agent.SystemPrompt, logger)
		if err != nil {
			return nil, err
		}

		var cond condenser.Condenser
		if cfg.Condenser.Enabled {
			condGateway, err := buildGateway(cfg.LLMs[cfg.Condenser.LLM], logger)
			if err != nil {
				return nil, err
			}
			sc, err := condenser.NewSummarizingCondenser(condGateway,
				cfg.Condenser.MaxSize, cfg.Condenser.KeepFirst)
			if err != nil {
				return nil, err
			}
			cond = sc
		}

		return conversation.Resume(ctx, conversation.Config{
			Agent:     ag,
			Condenser: cond,
			MaxBudget: cfg.Conversation.MaxBudget,
			Workspace: cfg.Workspace,
			Logger:    logger,
		}, id)
	}
}

// buildToolset resolves configured tool specs, appends MCP-bridged
// tools, and guarantees the built-in finish and think tools.
func buildToolset(cfg *config.Config, registry *tools.Registry, mcpTools []*tools.Tool) ([]*tools.Tool, error) {
	toolset, err := registry.Resolve(cfg.Tools)
	if err != nil {
		return nil, err
	}
	toolset = append(toolset, mcpTools...)

	names := map[string]bool{}
	for _, t := range toolset {
		names[t.Name] = true
	}
	if !names[tools.FinishToolName] {
		toolset = append(toolset, tools.NewFinishTool())
	}
	if !names[tools.ThinkToolName] {
		toolset = append(toolset, tools.NewThinkTool())
	}
	return toolset, nil
}
