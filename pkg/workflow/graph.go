package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/loomwork/loom/pkg/eventbus"
	"github.com/loomwork/loom/pkg/events"
	"github.com/loomwork/loom/pkg/models"
	"go.opentelemetry.io/otel/trace"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Workflow owns all vertices and edges for one run. It validates structural
// invariants, computes a topological execution plan and schedules vertices
// onto a bounded worker pool. A workflow is spent after one successful Run.
type Workflow struct {
	id         string
	logger     *slog.Logger
	bus        eventbus.EventBus
	tracer     trace.Tracer
	maxWorkers int
	envParams  map[string]any
	userParams map[string]any

	vertices  map[string]*Vertex
	order     []string
	edges     map[models.Edge]struct{}
	edgeOrder []models.Edge
	incoming  map[string][]models.Edge
	outgoing  map[string][]models.Edge

	ec       *models.ExecutionContext
	topo     []string
	pruned   map[string]struct{}
	ran      atomic.Bool
	running  sync.Mutex
	buildErr error

	statusMu sync.Mutex
	statuses []models.VertexStatus

	// Graph-wide lifecycle hooks.
	OnWorkflowFinished func(result map[string]any)
	OnWorkflowFailed   func(err error)
}

type Option func(*Workflow)

func WithLogger(logger *slog.Logger) Option {
	return func(w *Workflow) {
		w.logger = logger
	}
}

func WithEventBus(bus eventbus.EventBus) Option {
	return func(w *Workflow) {
		w.bus = bus
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(w *Workflow) {
		w.tracer = tracer
	}
}

// WithMaxWorkers bounds the worker pool. Defaults to the number of CPUs.
func WithMaxWorkers(n int) Option {
	return func(w *Workflow) {
		if n > 0 {
			w.maxWorkers = n
		}
	}
}

// WithEnvParams supplies the environment-scoped read-only parameter map.
func WithEnvParams(params map[string]any) Option {
	return func(w *Workflow) {
		w.envParams = params
	}
}

// WithUserParams supplies the user-scoped read-only parameter map.
func WithUserParams(params map[string]any) Option {
	return func(w *Workflow) {
		w.userParams = params
	}
}

func New(id string, opts ...Option) *Workflow {
	w := &Workflow{
		id:         id,
		logger:     slog.Default().With("module", "workflow", "workflow_id", id),
		maxWorkers: runtime.NumCPU(),
		vertices:   make(map[string]*Vertex),
		edges:      make(map[models.Edge]struct{}),
		incoming:   make(map[string][]models.Edge),
		outgoing:   make(map[string][]models.Edge),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

func (w *Workflow) ID() string {
	return w.id
}

// AddVertex registers a vertex and hands it back for fluent wiring.
func (w *Workflow) AddVertex(v *Vertex) (*Vertex, error) {
	if v == nil {
		return nil, ErrNilVertex
	}

	if err := validate.Struct(v); err != nil {
		return nil, fmt.Errorf("invalid vertex: %w", err)
	}

	if _, exists := w.vertices[v.ID]; exists {
		return nil, fmt.Errorf("vertex %q: %w", v.ID, ErrDuplicateVertex)
	}

	v.graph = w
	w.vertices[v.ID] = v
	w.order = append(w.order, v.ID)

	return v, nil
}

// AddEdge links two registered vertices. Adding a structurally identical
// edge twice is a no-op. A conditional edge must leave a branch vertex and
// carry one of its case ids.
func (w *Workflow) AddEdge(edge models.Edge) error {
	if err := edge.Validate(); err != nil {
		return err
	}

	source, ok := w.vertices[edge.Source]
	if !ok {
		return fmt.Errorf("edge source %q: %w", edge.Source, ErrUnknownVertex)
	}

	target, ok := w.vertices[edge.Target]
	if !ok {
		return fmt.Errorf("edge target %q: %w", edge.Target, ErrUnknownVertex)
	}

	if edge.IsConditional() {
		branch, isBranch := source.runner.(*branchRunner)
		if !isBranch {
			return fmt.Errorf("edge %s -> %s: %w", edge.Source, edge.Target, ErrNotBranchSource)
		}

		if !branch.hasCase(edge.CaseID) {
			return fmt.Errorf("edge %s -> %s case %q: %w", edge.Source, edge.Target, edge.CaseID, ErrUnknownCaseID)
		}
	}

	if _, exists := w.edges[edge]; exists {
		return nil
	}

	w.edges[edge] = struct{}{}
	w.edgeOrder = append(w.edgeOrder, edge)
	w.incoming[edge.Target] = append(w.incoming[edge.Target], edge)
	w.outgoing[edge.Source] = append(w.outgoing[edge.Source], edge)

	source.outDegree++
	target.inDegree++

	if _, known := target.deps[edge.Source]; !known {
		target.deps[edge.Source] = struct{}{}
		target.depOrder = append(target.depOrder, edge.Source)
	}

	return nil
}

// EdgeCount reports the number of distinct edges.
func (w *Workflow) EdgeCount() int {
	return len(w.edges)
}

// Validate checks the structural invariants: at least one source and one
// sink, no unreachable or dead-end intermediate vertices, no cycles.
func (w *Workflow) Validate() error {
	if w.buildErr != nil {
		return w.buildErr
	}

	var hasSource, hasSink bool

	for _, id := range w.order {
		v := w.vertices[id]

		switch v.Kind {
		case KindSource:
			hasSource = true

			if v.inDegree > 0 {
				return fmt.Errorf("source vertex %q cannot have incoming edges", id)
			}
		case KindSink:
			hasSink = true

			if v.outDegree > 0 {
				return fmt.Errorf("sink vertex %q cannot have outgoing edges", id)
			}
		default:
			if v.inDegree == 0 {
				return fmt.Errorf("vertex %q: %w", id, ErrUnreachableVertex)
			}

			if v.outDegree == 0 {
				return fmt.Errorf("vertex %q: %w", id, ErrDeadEndVertex)
			}
		}
	}

	if !hasSource {
		return ErrNoSourceVertex
	}

	if !hasSink {
		return ErrNoSinkVertex
	}

	topo, err := w.topologicalSort()
	if err != nil {
		return err
	}

	w.topo = topo

	return nil
}

// topologicalSort runs Kahn's algorithm with insertion-order tie-breaking.
// A sorted count below the vertex count means the graph has a cycle.
func (w *Workflow) topologicalSort() ([]string, error) {
	indegree := make(map[string]int, len(w.vertices))
	for _, id := range w.order {
		indegree[id] = len(w.vertices[id].deps)
	}

	var queue []string

	for _, id := range w.order {
		if indegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	sorted := make([]string, 0, len(w.vertices))

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		sorted = append(sorted, id)

		for _, succ := range w.successors(id) {
			indegree[succ]--

			if indegree[succ] == 0 {
				queue = append(queue, succ)
			}
		}
	}

	if len(sorted) < len(w.vertices) {
		return nil, ErrCyclicGraph
	}

	return sorted, nil
}

// successors returns the distinct direct successors of a vertex, in edge
// registration order.
func (w *Workflow) successors(id string) []string {
	seen := make(map[string]struct{})

	var succ []string

	for _, edge := range w.outgoing[id] {
		if _, ok := seen[edge.Target]; ok {
			continue
		}

		seen[edge.Target] = struct{}{}
		succ = append(succ, edge.Target)
	}

	return succ
}

// RunOption tweaks a single run.
type RunOption func(*runConfig)

type runConfig struct {
	stream bool
}

// WithStreaming publishes each vertex's value-produced event as soon as its
// future resolves instead of batching them until the run finishes.
func WithStreaming() RunOption {
	return func(c *runConfig) {
		c.stream = true
	}
}

// Run validates the graph and executes it to completion. A workflow runs at
// most once; a second call fails fast.
func (w *Workflow) Run(ctx context.Context, inputs map[string]any, opts ...RunOption) error {
	w.running.Lock()
	defer w.running.Unlock()

	if w.ran.Load() {
		return ErrAlreadyRan
	}

	cfg := runConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	if err := w.Validate(); err != nil {
		return fmt.Errorf("workflow %q validation failed: %w", w.id, err)
	}

	if inputs == nil {
		inputs = map[string]any{}
	}

	w.ec = models.NewExecutionContext(w.envParams, w.userParams)
	logger := w.logger.With("execution_id", w.ec.ID)

	logger.Info("starting workflow run", "vertices", len(w.vertices), "edges", len(w.edges), "stream", cfg.stream)
	w.publish(events.WorkflowStarted{
		BaseEvent: events.NewBaseEvent(events.WorkflowStartedEvent, w.id),
		Inputs:    inputs,
	})

	start := time.Now()

	if err := w.runScheduler(ctx, inputs, cfg.stream, logger); err != nil {
		logger.Error("workflow run failed", "error", err, "elapsed", time.Since(start))

		if w.OnWorkflowFailed != nil {
			w.OnWorkflowFailed(err)
		}

		w.publish(events.WorkflowFailed{
			BaseEvent: events.NewBaseEvent(events.WorkflowFailedEvent, w.id),
			Error:     err.Error(),
			Duration:  time.Since(start),
		})

		return fmt.Errorf("workflow %q: %w", w.id, err)
	}

	w.ran.Store(true)
	result := w.Result()

	logger.Info("workflow run finished", "elapsed", time.Since(start), "sinks", len(result))

	if w.OnWorkflowFinished != nil {
		w.OnWorkflowFinished(result)
	}

	w.publish(events.WorkflowFinished{
		BaseEvent: events.NewBaseEvent(events.WorkflowFinishedEvent, w.id),
		Result:    result,
		Duration:  time.Since(start),
	})

	return nil
}

// Result maps sink-vertex id to output, for sinks that actually ran.
// Pruned sinks are absent.
func (w *Workflow) Result() map[string]any {
	result := make(map[string]any)

	for _, id := range w.order {
		v := w.vertices[id]
		if v.Kind == KindSink && v.executed {
			result[id] = v.output
		}
	}

	return result
}

// Status reports the recorded outcome of every vertex that ran.
func (w *Workflow) Status() []models.VertexStatus {
	w.statusMu.Lock()
	defer w.statusMu.Unlock()

	statuses := make([]models.VertexStatus, len(w.statuses))
	copy(statuses, w.statuses)

	return statuses
}

// Context returns the run's execution context, nil before the first run.
func (w *Workflow) Context() *models.ExecutionContext {
	return w.ec
}

func (w *Workflow) appendStatus(status models.VertexStatus) {
	w.statusMu.Lock()
	defer w.statusMu.Unlock()

	w.statuses = append(w.statuses, status)
}

func (w *Workflow) publish(event events.Event) {
	if w.bus == nil {
		return
	}

	// Deliberately not the run context: terminal events must still go out
	// when the run's context is already cancelled.
	if err := w.bus.Publish(context.Background(), event); err != nil {
		w.logger.Warn("failed to publish event", "event_type", string(event.GetType()), "error", err)
	}
}
