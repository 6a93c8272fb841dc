package models

import "errors"

// EdgeKind distinguishes edges that are always followed from edges gated by
// a branch vertex's winning case.
type EdgeKind string

const (
	EdgeAlways      EdgeKind = "always"
	EdgeConditional EdgeKind = "conditional"
)

var (
	ErrEdgeMissingEndpoint = errors.New("edge requires both source and target vertex ids")
	ErrEdgeSelfLoop        = errors.New("edge cannot connect a vertex to itself")
	ErrEdgeMissingCaseID   = errors.New("conditional edge requires a case id")
)

// Edge is a directed link between two vertices. Identity is value-based:
// the whole struct is comparable so a graph can keep edges in a set and
// treat re-adding a structurally identical edge as a no-op.
type Edge struct {
	Source string   `json:"source"`
	Target string   `json:"target"`
	Kind   EdgeKind `json:"kind"`
	CaseID string   `json:"case_id,omitempty"`
}

// AlwaysEdge builds an unconditional edge from source to target.
func AlwaysEdge(source, target string) Edge {
	return Edge{Source: source, Target: target, Kind: EdgeAlways}
}

// ConditionalEdge builds an edge followed only when caseID matches the
// winning case of the source branch vertex.
func ConditionalEdge(source, target, caseID string) Edge {
	return Edge{Source: source, Target: target, Kind: EdgeConditional, CaseID: caseID}
}

func (e Edge) IsConditional() bool {
	return e.Kind == EdgeConditional
}

func (e Edge) Validate() error {
	if e.Source == "" || e.Target == "" {
		return ErrEdgeMissingEndpoint
	}

	if e.Source == e.Target {
		return ErrEdgeSelfLoop
	}

	if e.Kind == EdgeConditional && e.CaseID == "" {
		return ErrEdgeMissingCaseID
	}

	return nil
}
