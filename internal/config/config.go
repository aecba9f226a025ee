// Package config loads the agentd configuration file. Values support
// ${ENV} expansion; secrets never round-trip through serialization and
// are re-injected from the runtime config on load.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jamiechicago312/agent-sdk/internal/llm"
	"github.com/jamiechicago312/agent-sdk/internal/mcp"
	"github.com/jamiechicago312/agent-sdk/internal/tools"
)

// Config is the root configuration for agentd.
type Config struct {
	Server       ServerConfig          `yaml:"server"`
	Workspace    string                `yaml:"workspace"`
	Logging      LoggingConfig         `yaml:"logging"`
	Persistence  PersistenceConfig     `yaml:"persistence"`
	LLMs         map[string]llm.Config `yaml:"llms"`
	DefaultLLM   string                `yaml:"default_llm"`
	Agent        AgentConfig           `yaml:"agent"`
	Conversation ConversationConfig    `yaml:"conversation"`
	Condenser    CondenserConfig       `yaml:"condenser"`
	MCPServers   []mcp.ServerConfig    `yaml:"mcp_servers"`
	Tools        []tools.Spec          `yaml:"tools"`
}

type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type PersistenceConfig struct {
	// Backend selects the event log backend: memory, file, or sqlite.
	// Defaults to file.
	Backend string `yaml:"backend"`
}

type AgentConfig struct {
	SystemPrompt string `yaml:"system_prompt"`
}

type ConversationConfig struct {
	MaxIterations         int     `yaml:"max_iterations"`
	MaxBudget             float64 `yaml:"max_budget"`
	ConfirmationPolicy    string  `yaml:"confirmation_policy"`
	DisableStuckDetection bool    `yaml:"disable_stuck_detection"`
}

type CondenserConfig struct {
	Enabled bool `yaml:"enabled"`
	// LLM is the service id used for summarization. Defaults to the
	// conversation's default LLM.
	LLM       string `yaml:"llm"`
	MaxSize   int    `yaml:"max_size"`
	KeepFirst int    `yaml:"keep_first"`
}

// Load reads and parses the configuration file, expanding ${ENV}
// references before parsing.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Workspace == "" {
		cfg.Workspace = "."
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Persistence.Backend == "" {
		cfg.Persistence.Backend = "file"
	}
	if cfg.DefaultLLM == "" && len(cfg.LLMs) == 1 {
		for id := range cfg.LLMs {
			cfg.DefaultLLM = id
		}
	}

	// Service ids come from the map keys.
	for id, llmCfg := range cfg.LLMs {
		if llmCfg.ServiceID == "" {
			llmCfg.ServiceID = id
			cfg.LLMs[id] = llmCfg
		}
	}
	if cfg.Condenser.LLM == "" {
		cfg.Condenser.LLM = cfg.DefaultLLM
	}
}

// Validate checks cross-field consistency and delegates to component
// configs.
func (c *Config) Validate() error {
	if len(c.LLMs) == 0 {
		return fmt.Errorf("config: at least one llm is required")
	}
	if _, ok := c.LLMs[c.DefaultLLM]; !ok {
		return fmt.Errorf("config: default_llm %q is not defined under llms", c.DefaultLLM)
	}
	for id, llmCfg := range c.LLMs {
		if err := llmCfg.Validate(); err != nil {
			return fmt.Errorf("config: llm %q: %w", id, err)
		}
	}
	if c.Condenser.Enabled {
		if _, ok := c.LLMs[c.Condenser.LLM]; !ok {
			return fmt.Errorf("config: condenser llm %q is not defined under llms", c.Condenser.LLM)
		}
	}
	for i := range c.MCPServers {
		if err := c.MCPServers[i].Validate(); err != nil {
			return fmt.Errorf("config: mcp server %d: %w", i, err)
		}
	}
	if _, err := parsePolicy(c.Conversation.ConfirmationPolicy); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	switch c.Persistence.Backend {
	case "", "memory", "file", "sqlite":
	default:
		return fmt.Errorf("config: unknown persistence backend %q", c.Persistence.Backend)
	}
	return nil
}

// parsePolicy only checks the name; the conversation package owns the
// actual policies.
func parsePolicy(name string) (string, error) {
	switch name {
	case "", "never", "always", "risky":
		return name, nil
	default:
		return "", fmt.Errorf("unknown confirmation policy %q", name)
	}
}
