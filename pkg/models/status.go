package models

import "time"

// VertexStatus records the outcome of one vertex execution within a run.
type VertexStatus struct {
	Name         string        `json:"name"`
	Success      bool          `json:"success"`
	Elapsed      time.Duration `json:"elapsed"`
	ErrorMessage string        `json:"error_message,omitempty"`
	Trace        string        `json:"trace,omitempty"`
}

// SubgraphContext is per-subgraph-execution scratch state, rebuilt every
// time the owning group vertex executes.
type SubgraphContext struct {
	InternalOutputs  map[string]any
	ExposedVariables map[string]any
}

func NewSubgraphContext() *SubgraphContext {
	return &SubgraphContext{
		InternalOutputs:  make(map[string]any),
		ExposedVariables: make(map[string]any),
	}
}
