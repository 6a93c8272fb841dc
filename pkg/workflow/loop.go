package workflow

import (
	"context"
	"fmt"
	"maps"

	"github.com/loomwork/loom/pkg/models"
)

// Keys of a loop vertex's output map.
const (
	LoopResultsKey        = "results"
	LoopIterationCountKey = "iteration_count"
	LoopFinalInputsKey    = "final_inputs"
)

// LoopBody runs one iteration against the carried-forward state. The
// iteration index is 0-based.
type LoopBody func(state map[string]any, iteration int) (any, error)

// LoopConditionFunc decides loop continuation from the carried state.
type LoopConditionFunc func(state map[string]any) (bool, error)

type loopConfig struct {
	conditionFunc LoopConditionFunc
	conditions    []models.WhileCondition
	maxIterations int
}

type LoopOption func(*loopConfig)

// WithWhileConditions gates the loop on declarative conditions evaluated
// against the carried state. Mutually exclusive with WithLoopCondition.
func WithWhileConditions(conds ...models.WhileCondition) LoopOption {
	return func(c *loopConfig) {
		c.conditions = append(c.conditions, conds...)
	}
}

// WithLoopCondition gates the loop on a custom condition func. Mutually
// exclusive with WithWhileConditions.
func WithLoopCondition(fn LoopConditionFunc) LoopOption {
	return func(c *loopConfig) {
		c.conditionFunc = fn
	}
}

// WithMaxIterations caps the loop regardless of its condition.
func WithMaxIterations(n int) LoopOption {
	return func(c *loopConfig) {
		c.maxIterations = n
	}
}

func (c *loopConfig) validate() error {
	if (c.conditionFunc == nil) == (len(c.conditions) == 0) {
		return ErrLoopConditionConfig
	}

	return nil
}

// evaluate checks the continuation condition against the carried state.
// Loop conditions read their variable from the state by SourceVar (falling
// back to LocalVar); a missing variable resolves to nil, which the numeric
// operators then degrade to false.
func (c *loopConfig) evaluate(state map[string]any) (bool, error) {
	if c.conditionFunc != nil {
		return c.conditionFunc(state)
	}

	return models.EvaluateWhileConditions(c.conditions, func(sel models.Selector) (any, error) {
		name := sel.SourceVar
		if name == "" {
			name = sel.LocalVar
		}

		return state[name], nil
	})
}

// NewLoop builds a bounded-while vertex. Exactly one of a custom condition
// func or a WhileCondition list must be configured; violating that fails
// fast here, not at run time.
func NewLoop(id string, body LoopBody, opts ...LoopOption) (*Vertex, error) {
	if body == nil {
		return nil, fmt.Errorf("loop %q: %w", id, ErrMissingBody)
	}

	cfg := &loopConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("loop %q: %w", id, err)
	}

	v := newVertex(id, KindLoop)
	v.runner = &loopRunner{config: cfg, body: body}

	return v, nil
}

type loopRunner struct {
	config *loopConfig
	body   LoopBody
}

// run implements the classic while-do shape: cap check, condition check,
// body, shallow merge of map results into the carried state.
func (r *loopRunner) run(ctx context.Context, env execEnv, v *Vertex, inputs map[string]any) (any, error) {
	state := copyMap(inputs)
	results := make([]any, 0)
	iteration := 0

	for {
		if r.config.maxIterations > 0 && iteration >= r.config.maxIterations {
			env.logger.Debug("loop hit iteration cap", "vertex_id", v.ID, "iterations", iteration)

			break
		}

		proceed, err := r.config.evaluate(state)
		if err != nil {
			return nil, fmt.Errorf("loop %q condition: %w", v.ID, err)
		}

		if !proceed {
			break
		}

		output, err := r.body(state, iteration)
		if err != nil {
			return nil, fmt.Errorf("loop %q iteration %d: %w", v.ID, iteration, err)
		}

		if merged, ok := output.(map[string]any); ok {
			maps.Copy(state, merged)
		}

		results = append(results, output)
		iteration++
	}

	return map[string]any{
		LoopResultsKey:        results,
		LoopIterationCountKey: iteration,
		LoopFinalInputsKey:    state,
	}, nil
}
