// Package workflow implements the computation-graph engine: typed vertices
// wired by edges, structural validation, a dependency-ordered concurrent
// scheduler, branch pruning, bounded loops and subgraph composition.
package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"maps"

	"github.com/loomwork/loom/pkg/models"
)

// Kind tags the behavioral variant of a vertex.
type Kind string

const (
	KindSource    Kind = "source"
	KindSink      Kind = "sink"
	KindFunction  Kind = "function"
	KindBranch    Kind = "branch"
	KindLoop      Kind = "loop"
	KindGroup     Kind = "group"
	KindLoopGroup Kind = "loop_group"
)

// Body is a plain vertex body.
type Body func(inputs map[string]any) (any, error)

// BodyWithContext is the tagged alternative for bodies that also need the
// run's execution context. The variant is chosen once at construction, not
// probed per call.
type BodyWithContext func(ctx context.Context, inputs map[string]any, ec *models.ExecutionContext) (any, error)

// execEnv carries the per-run surroundings a vertex resolves against: the
// run's external inputs, the shared execution context and, inside a group,
// the subgraph scratch store.
type execEnv struct {
	external map[string]any
	ec       *models.ExecutionContext
	sub      *models.SubgraphContext
	logger   *slog.Logger
}

// runner is the single-method behavior hook for the composite vertex kinds
// (branch, loop, group). Plain bodies skip it.
type runner interface {
	run(ctx context.Context, env execEnv, v *Vertex, inputs map[string]any) (any, error)
}

// Vertex is one unit of work in a workflow graph. Its output and executed
// flag are write-once per run, mutated only by the scheduler.
type Vertex struct {
	ID        string `validate:"required"`
	Kind      Kind
	Params    map[string]any
	Selectors []models.Selector `validate:"dive"`

	// Lifecycle hooks, invoked for every vertex that actually ran.
	OnFinished func(v *Vertex, output any)
	OnFailed   func(v *Vertex, err error)

	body    Body
	bodyCtx BodyWithContext
	runner  runner

	graph     *Workflow
	deps      map[string]struct{}
	depOrder  []string
	inDegree  int
	outDegree int

	executed bool
	output   any
}

type VertexOption func(*Vertex)

func WithSelectors(selectors ...models.Selector) VertexOption {
	return func(v *Vertex) {
		v.Selectors = append(v.Selectors, selectors...)
	}
}

func WithParams(params map[string]any) VertexOption {
	return func(v *Vertex) {
		v.Params = params
	}
}

func WithBody(body Body) VertexOption {
	return func(v *Vertex) {
		v.body = body
	}
}

// WithContextBody installs a body that receives the execution context.
func WithContextBody(body BodyWithContext) VertexOption {
	return func(v *Vertex) {
		v.bodyCtx = body
	}
}

func WithOnFinished(hook func(v *Vertex, output any)) VertexOption {
	return func(v *Vertex) {
		v.OnFinished = hook
	}
}

func WithOnFailed(hook func(v *Vertex, err error)) VertexOption {
	return func(v *Vertex) {
		v.OnFailed = hook
	}
}

func newVertex(id string, kind Kind, opts ...VertexOption) *Vertex {
	v := &Vertex{
		ID:   id,
		Kind: kind,
		deps: make(map[string]struct{}),
	}

	for _, opt := range opts {
		opt(v)
	}

	return v
}

// NewSource builds a source vertex. Without a body or selectors its output
// is the run's external inputs.
func NewSource(id string, opts ...VertexOption) *Vertex {
	return newVertex(id, KindSource, opts...)
}

// NewSink builds a terminal vertex. Without a body it assembles and returns
// its resolved input map.
func NewSink(id string, opts ...VertexOption) *Vertex {
	return newVertex(id, KindSink, opts...)
}

// NewFunction builds a generic single-input/single-output vertex. The body
// may be nil when WithContextBody is supplied instead.
func NewFunction(id string, body Body, opts ...VertexOption) *Vertex {
	v := newVertex(id, KindFunction, opts...)
	if body != nil {
		v.body = body
	}

	return v
}

// Output returns the value stored by the last (only) run.
func (v *Vertex) Output() any {
	return v.output
}

// Executed reports whether the vertex ran during the graph's run.
func (v *Vertex) Executed() bool {
	return v.executed
}

// Dependencies returns the ids of the vertex's direct predecessors.
func (v *Vertex) Dependencies() []string {
	deps := make([]string, len(v.depOrder))
	copy(deps, v.depOrder)

	return deps
}

// To wires an always-edge from v to target and returns target so calls can
// chain. Wiring errors are deferred to Validate/Run.
func (v *Vertex) To(target *Vertex) *Vertex {
	v.wire(models.AlwaysEdge(v.ID, target.ID))

	return target
}

// ToCase wires a conditional edge carrying caseID from v to target.
func (v *Vertex) ToCase(target *Vertex, caseID string) *Vertex {
	v.wire(models.ConditionalEdge(v.ID, target.ID, caseID))

	return target
}

func (v *Vertex) wire(edge models.Edge) {
	if v.graph == nil {
		return
	}

	if err := v.graph.AddEdge(edge); err != nil && v.graph.buildErr == nil {
		v.graph.buildErr = fmt.Errorf("wiring %s -> %s: %w", edge.Source, edge.Target, err)
	}
}

// execute dispatches to the vertex's behavior: composite kinds go through
// their runner, plain kinds run the tagged body variant.
func (v *Vertex) execute(ctx context.Context, env execEnv, inputs map[string]any) (any, error) {
	if v.runner != nil {
		return v.runner.run(ctx, env, v, inputs)
	}

	switch {
	case v.bodyCtx != nil:
		return v.bodyCtx(ctx, inputs, env.ec)
	case v.body != nil:
		return v.body(inputs)
	case v.Kind == KindSource || v.Kind == KindSink:
		// Selector-only sources and sinks assemble and return the resolved map.
		return inputs, nil
	default:
		return nil, fmt.Errorf("vertex %q: %w", v.ID, ErrMissingBody)
	}
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	maps.Copy(out, m)

	return out
}
