package models

import (
	"sync"

	"github.com/google/uuid"
)

// ExecutionContext is the shared store for one run: vertex outputs keyed by
// vertex id, plus two read-only parameter maps supplied at construction.
// Each vertex writes only its own slot, but worker goroutines write
// concurrently, so the output map is guarded by an RWMutex.
type ExecutionContext struct {
	ID         string
	EnvParams  map[string]any
	UserParams map[string]any

	mu      sync.RWMutex
	outputs map[string]any
}

func NewExecutionContext(envParams, userParams map[string]any) *ExecutionContext {
	return &ExecutionContext{
		ID:         "run-" + uuid.New().String()[:8],
		EnvParams:  envParams,
		UserParams: userParams,
		outputs:    make(map[string]any),
	}
}

// SetOutput stores a vertex's output. Outputs are write-once per run.
func (c *ExecutionContext) SetOutput(vertexID string, output any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.outputs[vertexID] = output
}

func (c *ExecutionContext) Output(vertexID string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	output, ok := c.outputs[vertexID]

	return output, ok
}

// Outputs returns a shallow copy of the output map.
func (c *ExecutionContext) Outputs() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()

	outputs := make(map[string]any, len(c.outputs))
	for id, output := range c.outputs {
		outputs[id] = output
	}

	return outputs
}
