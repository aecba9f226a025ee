package llm

import (
	"fmt"
	"sync"
)

// Registry maps service ids to configured LLM instances. A conversation
// refers to its models by service id so metrics and events attribute to
// a stable name rather than a raw model string. Safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	services map[string]*LLM
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{services: make(map[string]*LLM)}
}

// Register adds an LLM under its service id. Registering a duplicate id
// is an error.
func (r *Registry) Register(llm *LLM) error {
	id := llm.Config().ServiceID
	if id == "" {
		return fmt.Errorf("llm registry: empty service id for model %s", llm.Config().Model)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.services[id]; exists {
		return fmt.Errorf("%w: %s", ErrServiceExists, id)
	}
	r.services[id] = llm
	return nil
}

// Get returns the LLM registered under the service id.
func (r *Registry) Get(serviceID string) (*LLM, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	llm, ok := r.services[serviceID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrServiceNotFound, serviceID)
	}
	return llm, nil
}

// List returns the registered service ids in unspecified order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.services))
	for id := range r.services {
		ids = append(ids, id)
	}
	return ids
}
