package workflow

import (
	"context"
	"fmt"

	"github.com/loomwork/loom/pkg/models"
)

// NoCaseMatched is the winning-case key stored when no branch case holds.
const NoCaseMatched = "false"

// NewBranch builds an if/else vertex. Cases are evaluated in declared order
// and the first case whose conditions hold wins; the vertex's output is
// {winning-case-id: true}, or {"false": true} when nothing matches.
func NewBranch(id string, cases []models.IfCase, opts ...VertexOption) *Vertex {
	v := newVertex(id, KindBranch, opts...)
	v.runner = &branchRunner{cases: cases}

	return v
}

type branchRunner struct {
	cases []models.IfCase
}

func (r *branchRunner) run(ctx context.Context, env execEnv, v *Vertex, _ map[string]any) (any, error) {
	resolve := func(sel models.Selector) (any, error) {
		return resolveSelectorValue(sel, env)
	}

	for _, ifCase := range r.cases {
		matched, err := ifCase.Evaluate(resolve)
		if err != nil {
			return nil, fmt.Errorf("branch %q: %w", v.ID, err)
		}

		if matched {
			env.logger.Debug("branch case matched", "vertex_id", v.ID, "case_id", ifCase.ID)

			return map[string]any{ifCase.ID: true}, nil
		}
	}

	return map[string]any{NoCaseMatched: true}, nil
}

func (r *branchRunner) hasCase(caseID string) bool {
	for _, ifCase := range r.cases {
		if ifCase.ID == caseID {
			return true
		}
	}

	return false
}
