package llm

import (
	"sync"

	"github.com/jamiechicago312/agent-sdk/pkg/models"
)

// Metrics accumulates cost and token usage across every completion call
// an LLM instance makes. Accumulation is monotonic: counts and cost only
// grow. Safe for concurrent use.
type Metrics struct {
	mu sync.Mutex

	modelName string
	cost      float64
	usage     models.TokenUsage
	maxBudget float64
}

// NewMetrics creates a metrics accumulator for the named model.
func NewMetrics(modelName string) *Metrics {
	return &Metrics{modelName: modelName}
}

// AddCost records spend from one completion call. Negative deltas are
// ignored so accumulation stays monotonic.
func (m *Metrics) AddCost(delta float64) {
	if delta <= 0 {
		return
	}
	m.mu.Lock()
	m.cost += delta
	m.mu.Unlock()
}

// AddUsage records token counts from one completion call.
func (m *Metrics) AddUsage(usage models.TokenUsage) {
	m.mu.Lock()
	m.usage = m.usage.Add(usage)
	m.mu.Unlock()
}

// SetMaxBudget records the budget ceiling for reporting. Zero means
// unlimited.
func (m *Metrics) SetMaxBudget(budget float64) {
	m.mu.Lock()
	m.maxBudget = budget
	m.mu.Unlock()
}

// Cost returns the accumulated spend in USD.
func (m *Metrics) Cost() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cost
}

// Snapshot returns an immutable copy of the accumulated metrics.
func (m *Metrics) Snapshot() models.MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return models.MetricsSnapshot{
		ModelName:             m.modelName,
		AccumulatedCost:       m.cost,
		AccumulatedTokenUsage: m.usage,
		MaxBudget:             m.maxBudget,
	}
}
