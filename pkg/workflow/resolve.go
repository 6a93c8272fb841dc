package workflow

import (
	"fmt"

	"github.com/loomwork/loom/pkg/models"
)

// resolveSelectorValue resolves a selector's source: the run's external
// inputs for the external sentinel scope, otherwise the named vertex's
// stored output. Inside a group the subgraph scratch store is consulted
// first, falling back to the parent context only when no sibling output
// exists yet.
func resolveSelectorValue(sel models.Selector, env execEnv) (any, error) {
	if sel.IsExternal() {
		if sel.SourceVar == "" {
			return copyMap(env.external), nil
		}

		value, ok := env.external[sel.SourceVar]
		if !ok {
			return nil, fmt.Errorf("selector %q: required external input %q not supplied", sel.LocalVar, sel.SourceVar)
		}

		return value, nil
	}

	if env.sub != nil {
		if output, ok := env.sub.InternalOutputs[sel.SourceScope]; ok {
			return sel.ExtractVar(output)
		}
	}

	output, ok := env.ec.Output(sel.SourceScope)
	if !ok {
		return nil, fmt.Errorf("selector %q: no output stored for vertex %q", sel.LocalVar, sel.SourceScope)
	}

	return sel.ExtractVar(output)
}

// resolveInputs builds a vertex's full input map: the union of its
// selectors' resolutions, or, without selectors, the external inputs for a
// source and the merged direct-dependency outputs for everything else.
func resolveInputs(v *Vertex, env execEnv) (map[string]any, error) {
	if len(v.Selectors) > 0 {
		inputs := make(map[string]any, len(v.Selectors))

		for _, sel := range v.Selectors {
			value, err := resolveSelectorValue(sel, env)
			if err != nil {
				return nil, fmt.Errorf("vertex %q: %w", v.ID, err)
			}

			inputs[sel.LocalVar] = value
		}

		return inputs, nil
	}

	if v.Kind == KindSource {
		return copyMap(env.external), nil
	}

	inputs := make(map[string]any)

	for _, dep := range v.depOrder {
		output, ok := lookupOutput(dep, env)
		if !ok {
			continue
		}

		if fields, isMap := output.(map[string]any); isMap {
			for key, value := range fields {
				inputs[key] = value
			}
		} else {
			inputs[dep] = output
		}
	}

	return inputs, nil
}

func lookupOutput(vertexID string, env execEnv) (any, bool) {
	if env.sub != nil {
		if output, ok := env.sub.InternalOutputs[vertexID]; ok {
			return output, true
		}
	}

	return env.ec.Output(vertexID)
}
