package workflow

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"github.com/loomwork/loom/pkg/models"
)

// IterationInputKey is the input key under which a looped group injects the
// 0-based iteration index into every subgraph run.
const IterationInputKey = "iteration"

// LoopGroup is a group vertex whose nested graph is re-executed under a
// loop condition, the condition evaluated against whatever the subgraph
// most recently produced.
type LoopGroup struct {
	*Vertex

	runner *loopGroupRunner
}

// NewLoopGroup combines a bounded while loop with subgraph composition:
// the loop body is one full execution of the nested graph.
func NewLoopGroup(id string, nested *Workflow, expose []models.Selector, opts ...LoopOption) (*LoopGroup, error) {
	group, err := newGroupRunner(id, nested, expose)
	if err != nil {
		return nil, err
	}

	cfg := &loopConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("looped group %q: %w", id, err)
	}

	runner := &loopGroupRunner{group: group, config: cfg}

	v := newVertex(id, KindLoopGroup)
	v.runner = runner

	return &LoopGroup{Vertex: v, runner: runner}, nil
}

// IterationCount reports how many times the subgraph ran.
func (lg *LoopGroup) IterationCount() int {
	lg.runner.mu.Lock()
	defer lg.runner.mu.Unlock()

	return lg.runner.iterationCount
}

// LoopResults returns the ordered outputs of each subgraph run.
func (lg *LoopGroup) LoopResults() []any {
	lg.runner.mu.Lock()
	defer lg.runner.mu.Unlock()

	results := make([]any, len(lg.runner.results))
	copy(results, lg.runner.results)

	return results
}

type loopGroupRunner struct {
	group  *groupRunner
	config *loopConfig

	mu             sync.Mutex
	iterationCount int
	results        []any
}

func (r *loopGroupRunner) run(ctx context.Context, env execEnv, v *Vertex, inputs map[string]any) (any, error) {
	state := copyMap(inputs)
	results := make([]any, 0)
	iteration := 0

	for {
		if r.config.maxIterations > 0 && iteration >= r.config.maxIterations {
			env.logger.Debug("looped group hit iteration cap", "vertex_id", v.ID, "iterations", iteration)

			break
		}

		proceed, err := r.config.evaluate(state)
		if err != nil {
			return nil, fmt.Errorf("looped group %q condition: %w", v.ID, err)
		}

		if !proceed {
			break
		}

		iterationInputs := copyMap(state)
		iterationInputs[IterationInputKey] = iteration

		output, err := r.group.run(ctx, env, v, iterationInputs)
		if err != nil {
			return nil, fmt.Errorf("looped group %q iteration %d: %w", v.ID, iteration, err)
		}

		if merged, ok := output.(map[string]any); ok {
			maps.Copy(state, merged)
		}

		results = append(results, output)
		iteration++
	}

	r.mu.Lock()
	r.iterationCount = iteration
	r.results = results
	r.mu.Unlock()

	return map[string]any{
		LoopResultsKey:        results,
		LoopIterationCountKey: iteration,
		LoopFinalInputsKey:    state,
	}, nil
}
