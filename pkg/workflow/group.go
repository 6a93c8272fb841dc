package workflow

import (
	"context"
	"fmt"

	"github.com/loomwork/loom/pkg/models"
)

// NewGroup wraps an entire nested workflow as a single vertex of the parent
// graph. The group's own selectors (WithSelectors) resolve against the
// parent context and become the nested graph's external inputs. With an
// expose list the group's output is a flat map of exactly those values;
// without one it is a nested map from every nested-vertex id to that
// vertex's raw output.
func NewGroup(id string, nested *Workflow, expose []models.Selector, opts ...VertexOption) (*Vertex, error) {
	runner, err := newGroupRunner(id, nested, expose)
	if err != nil {
		return nil, err
	}

	v := newVertex(id, KindGroup, opts...)
	v.runner = runner

	return v, nil
}

type groupRunner struct {
	nested *Workflow
	expose []models.Selector
}

func newGroupRunner(id string, nested *Workflow, expose []models.Selector) (*groupRunner, error) {
	if nested == nil {
		return nil, fmt.Errorf("group %q: %w", id, ErrNilSubgraph)
	}

	if nested.buildErr != nil {
		return nil, fmt.Errorf("group %q: %w", id, nested.buildErr)
	}

	for _, sel := range expose {
		if sel.IsExternal() {
			return nil, fmt.Errorf("group %q: expose selector %q must name a nested vertex", id, sel.LocalVar)
		}

		if _, ok := nested.vertices[sel.SourceScope]; !ok {
			return nil, fmt.Errorf("group %q: expose selector %q names unknown nested vertex %q",
				id, sel.LocalVar, sel.SourceScope)
		}
	}

	for _, vertexID := range nested.order {
		for _, sel := range nested.vertices[vertexID].Selectors {
			if sel.IsExternal() {
				continue
			}

			if _, ok := nested.vertices[sel.SourceScope]; !ok {
				return nil, fmt.Errorf("group %q: vertex %q selector %q names unknown nested vertex %q",
					id, vertexID, sel.LocalVar, sel.SourceScope)
			}
		}
	}

	return &groupRunner{nested: nested, expose: expose}, nil
}

// run executes the nested graph once. The inputs are the group's resolved
// selectors against the parent context; nested vertices see them as their
// external inputs. Nested outputs land in a fresh subgraph scratch store,
// never in the parent execution context.
func (r *groupRunner) run(ctx context.Context, env execEnv, v *Vertex, inputs map[string]any) (any, error) {
	if len(r.nested.vertices) == 0 {
		return map[string]any{
			"executed":       []any{},
			"total_vertices": 0,
			"success":        true,
		}, nil
	}

	order, err := r.nested.topologicalSort()
	if err != nil {
		return nil, fmt.Errorf("group %q: %w", v.ID, err)
	}

	sub := models.NewSubgraphContext()
	nestedEnv := execEnv{
		external: inputs,
		ec:       env.ec,
		sub:      sub,
		logger:   env.logger.With("group_id", v.ID),
	}

	for _, vertexID := range order {
		nested := r.nested.vertices[vertexID]

		nestedInputs, err := resolveInputs(nested, nestedEnv)
		if err != nil {
			return nil, fmt.Errorf("group %q: %w", v.ID, err)
		}

		output, err := nested.execute(ctx, nestedEnv, nestedInputs)
		if err != nil {
			return nil, fmt.Errorf("group %q: vertex %q: %w", v.ID, vertexID, err)
		}

		sub.InternalOutputs[vertexID] = output
	}

	if len(r.expose) == 0 {
		outputs := make(map[string]any, len(order))
		for _, vertexID := range order {
			outputs[vertexID] = sub.InternalOutputs[vertexID]
		}

		return outputs, nil
	}

	exposed := make(map[string]any, len(r.expose))

	for _, sel := range r.expose {
		value, err := sel.ExtractVar(sub.InternalOutputs[sel.SourceScope])
		if err != nil {
			return nil, fmt.Errorf("group %q: %w", v.ID, err)
		}

		exposed[sel.LocalVar] = value
	}

	sub.ExposedVariables = exposed

	return exposed, nil
}
