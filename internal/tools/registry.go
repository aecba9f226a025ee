package tools

import (
	"fmt"
	"sort"
	"sync"
)

// Factory instantiates tools for one conversation. A single factory may
// yield several tools (an MCP server exposes its whole tool list under
// one registration).
type Factory func(params map[string]any) ([]*Tool, error)

// Spec names a registered factory and its instantiation parameters, as
// carried in agent configuration.
type Spec struct {
	Name   string         `json:"name" yaml:"name"`
	Params map[string]any `json:"params,omitempty" yaml:"params,omitempty"`
}

// Registry maps tool names to factories. Registration happens at
// startup; resolution happens per conversation. Safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory under a name. Registration is write-once: a
// second registration under the same name is rejected.
func (r *Registry) Register(name string, factory Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("tool factory %q is already registered", name)
	}
	r.factories[name] = factory
	return nil
}

// RegisterTool registers a fixed tool under its own name.
func (r *Registry) RegisterTool(tool *Tool) error {
	return r.Register(tool.Name, func(map[string]any) ([]*Tool, error) {
		return []*Tool{tool}, nil
	})
}

// Resolve instantiates the tool set for a conversation from specs.
// Duplicate tool names across factories are an error; the agent needs
// an unambiguous name → tool mapping.
func (r *Registry) Resolve(specs []Spec) ([]*Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var resolved []*Tool
	seen := map[string]bool{}
	for _, spec := range specs {
		factory, ok := r.factories[spec.Name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrToolNotFound, spec.Name)
		}
		instances, err := factory(spec.Params)
		if err != nil {
			return nil, fmt.Errorf("instantiate tool %s: %w", spec.Name, err)
		}
		for _, tool := range instances {
			if seen[tool.Name] {
				return nil, fmt.Errorf("duplicate tool name %q", tool.Name)
			}
			seen[tool.Name] = true
			resolved = append(resolved, tool)
		}
	}
	return resolved, nil
}

// Names returns the registered factory names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
