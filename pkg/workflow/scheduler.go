package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/loomwork/loom/pkg/events"
	"github.com/loomwork/loom/pkg/models"
	"github.com/loomwork/loom/pkg/otelhelper"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// future tracks one vertex's completion. The scheduler closes done exactly
// once, after err is set, so waiters observe a consistent result.
type future struct {
	done chan struct{}
	err  error
}

// runScheduler walks the topological order once. For each vertex it waits
// on the futures of that vertex's direct predecessors only, applies branch
// pruning, then hands the vertex to the bounded worker pool and moves on.
// Independent vertices elsewhere in the order keep running concurrently.
func (w *Workflow) runScheduler(ctx context.Context, external map[string]any, stream bool, logger *slog.Logger) error {
	env := execEnv{external: external, ec: w.ec, logger: logger}

	futures := make(map[string]*future, len(w.topo))
	for _, id := range w.topo {
		futures[id] = &future{done: make(chan struct{})}
	}

	w.pruned = make(map[string]struct{})

	sem := make(chan struct{}, w.maxWorkers)

	var wg sync.WaitGroup

	var producedMu sync.Mutex

	var produced []events.VertexValueProduced

	var abortErr error

dispatch:
	for _, id := range w.topo {
		v := w.vertices[id]
		fut := futures[id]

		for _, dep := range v.depOrder {
			depFut := futures[dep]
			<-depFut.done

			if depFut.err != nil {
				// First execution error aborts the run; in-flight work
				// drains below before the failure propagates.
				abortErr = depFut.err

				close(fut.done)

				break dispatch
			}
		}

		if _, skip := w.pruned[id]; skip {
			close(fut.done)

			continue
		}

		if w.gatedByUntakenCase(v) {
			w.pruneForward(id, logger)
			close(fut.done)

			continue
		}

		wg.Add(1)

		go func(v *Vertex, fut *future) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			output, err := w.executeVertex(ctx, env, v)
			if err != nil {
				fut.err = err
			} else {
				event := events.VertexValueProduced{
					BaseEvent: events.NewBaseEvent(events.VertexValueProducedEvent, w.id),
					VertexID:  v.ID,
					Output:    output,
				}

				if stream {
					w.publish(event)
				} else {
					producedMu.Lock()
					produced = append(produced, event)
					producedMu.Unlock()
				}
			}

			close(fut.done)
		}(v, fut)
	}

	wg.Wait()

	if abortErr == nil {
		for _, id := range w.topo {
			if err := futures[id].err; err != nil {
				abortErr = err

				break
			}
		}
	}

	if abortErr != nil {
		return abortErr
	}

	if !stream {
		for _, event := range produced {
			w.publish(event)
		}
	}

	return nil
}

// gatedByUntakenCase reports whether the vertex hangs off a conditional
// edge whose case the branch did not take. The check applies only when
// exactly one direct predecessor is a branch vertex; a vertex gated by two
// independent branches is left alone (undefined by design contract).
func (w *Workflow) gatedByUntakenCase(v *Vertex) bool {
	var gate models.Edge

	branchGates := 0

	for _, edge := range w.incoming[v.ID] {
		source := w.vertices[edge.Source]
		if source.Kind == KindBranch && edge.IsConditional() {
			branchGates++
			gate = edge
		}
	}

	if branchGates != 1 {
		return false
	}

	output, ok := w.ec.Output(gate.Source)
	if !ok {
		return false
	}

	winning, ok := output.(map[string]any)
	if !ok {
		return false
	}

	taken, _ := winning[gate.CaseID].(bool)

	return !taken
}

// pruneForward excludes the vertex and its full forward-reachable closure
// from the run. Pruning is normal control flow, not an error: no output is
// stored and no lifecycle hooks fire for pruned vertices.
func (w *Workflow) pruneForward(id string, logger *slog.Logger) {
	queue := []string{id}
	w.pruned[id] = struct{}{}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, edge := range w.outgoing[current] {
			if _, seen := w.pruned[edge.Target]; seen {
				continue
			}

			w.pruned[edge.Target] = struct{}{}
			queue = append(queue, edge.Target)
		}
	}

	logger.Debug("pruned untaken branch path", "vertex_id", id, "pruned_total", len(w.pruned))
}

// executeVertex resolves inputs, runs the vertex and records its status.
// Panics in vertex bodies are recovered into errors.
func (w *Workflow) executeVertex(ctx context.Context, env execEnv, v *Vertex) (output any, err error) {
	logger := env.logger.With("vertex_id", v.ID, "vertex_kind", string(v.Kind))
	start := time.Now()

	if w.tracer != nil {
		var span trace.Span

		ctx, span = w.tracer.Start(ctx, "vertex.execute", trace.WithAttributes(
			attribute.String(otelhelper.WorkflowIDKey, w.id),
			attribute.String(otelhelper.VertexIDKey, v.ID),
			attribute.String(otelhelper.VertexKindKey, string(v.Kind)),
		))

		defer func() {
			if err != nil {
				otelhelper.RecordError(span, err)
			}

			span.End()
		}()
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("vertex %q panicked: %v", v.ID, r)
			output = nil

			w.recordFailure(v, start, err, string(debug.Stack()), logger)
		}
	}()

	inputs, err := resolveInputs(v, env)
	if err != nil {
		w.recordFailure(v, start, err, string(debug.Stack()), logger)

		return nil, err
	}

	output, err = v.execute(ctx, env, inputs)
	if err != nil {
		err = fmt.Errorf("vertex %q: %w", v.ID, err)
		w.recordFailure(v, start, err, string(debug.Stack()), logger)

		return nil, err
	}

	v.output = output
	v.executed = true
	w.ec.SetOutput(v.ID, output)

	w.appendStatus(models.VertexStatus{
		Name:    v.ID,
		Success: true,
		Elapsed: time.Since(start),
	})

	if v.OnFinished != nil {
		v.OnFinished(v, output)
	}

	logger.Debug("vertex executed", "elapsed", time.Since(start))

	return output, nil
}

func (w *Workflow) recordFailure(v *Vertex, start time.Time, err error, trace string, logger *slog.Logger) {
	w.appendStatus(models.VertexStatus{
		Name:         v.ID,
		Success:      false,
		Elapsed:      time.Since(start),
		ErrorMessage: err.Error(),
		Trace:        trace,
	})

	w.publish(events.VertexStatusChanged{
		BaseEvent:    events.NewBaseEvent(events.VertexStatusChangedEvent, w.id),
		VertexID:     v.ID,
		Status:       "failed",
		ErrorMessage: err.Error(),
	})

	if v.OnFailed != nil {
		v.OnFailed(v, err)
	}

	logger.Error("vertex execution failed", "error", err, "elapsed", time.Since(start))
}
