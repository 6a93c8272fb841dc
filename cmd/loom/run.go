package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/loomwork/loom/pkg/bodies/httprequest"
	logbody "github.com/loomwork/loom/pkg/bodies/log"
	"github.com/loomwork/loom/pkg/bodies/transform"
	"github.com/loomwork/loom/pkg/cmd"
	"github.com/loomwork/loom/pkg/events"
	"github.com/loomwork/loom/pkg/models"
	"github.com/loomwork/loom/pkg/otelhelper"
	"github.com/loomwork/loom/pkg/registry"
	"github.com/loomwork/loom/pkg/workflow"
)

type demoConfig struct {
	workers  int
	stream   bool
	eventBus string
	tracing  bool
}

// runDemo assembles a small graph exercising the engine end to end: a
// source feeding two parallel functions, a branch that routes on the
// doubled value, a bounded loop on the taken path and a sink that merges
// what survived.
func runDemo(ctx context.Context, logger *slog.Logger, cfg demoConfig) error {
	bus := cmd.NewEventBus(cfg.eventBus, logger)
	defer func() {
		if err := bus.Close(); err != nil {
			logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
		}
	}()

	opts := []workflow.Option{
		workflow.WithLogger(logger),
		workflow.WithEventBus(bus),
		workflow.WithMaxWorkers(cfg.workers),
	}

	if cfg.tracing {
		tracer, err := otelhelper.NewTracer(ctx, "loom")
		if err != nil {
			return fmt.Errorf("failed to initialize tracing: %w", err)
		}

		opts = append(opts, workflow.WithTracer(tracer))
	}

	flow := workflow.New("demo", opts...)

	if cfg.stream {
		if err := bus.Subscribe(ctx, events.VertexValueProducedEvent, func(_ context.Context, event events.Event) error {
			produced, ok := event.(events.VertexValueProduced)
			if !ok {
				return nil
			}

			logger.Info("vertex produced value", "vertex_id", produced.VertexID, "output", produced.Output)

			return nil
		}); err != nil {
			return fmt.Errorf("failed to subscribe to value events: %w", err)
		}
	}

	source, err := flow.AddVertex(workflow.NewSource("numbers"))
	if err != nil {
		return err
	}

	double, err := flow.AddVertex(workflow.NewFunction("double", func(inputs map[string]any) (any, error) {
		n, _ := inputs["x"].(int)

		return map[string]any{"doubled": n * 2}, nil
	}))
	if err != nil {
		return err
	}

	branch, err := flow.AddVertex(workflow.NewBranch("gate", []models.IfCase{
		{
			ID: "big",
			Conditions: []models.Condition{
				{Selector: models.NewSelector("double", "doubled", "doubled"), Operator: models.OperatorGreaterThan, Value: 5},
			},
		},
	}))
	if err != nil {
		return err
	}

	countUp, err := workflow.NewLoop("count_up",
		func(state map[string]any, _ int) (any, error) {
			count, _ := state["count"].(int)

			return map[string]any{"count": count + 1}, nil
		},
		workflow.WithWhileConditions(models.WhileCondition{
			Condition: models.Condition{
				Selector: models.NewSelector("", "count", "count"),
				Operator: models.OperatorLessThan,
				Value:    3,
			},
		}),
		workflow.WithMaxIterations(10),
	)
	if err != nil {
		return err
	}

	countUp.Selectors = append(countUp.Selectors, models.ExternalSelector("count", "count"))

	if _, err := flow.AddVertex(countUp); err != nil {
		return err
	}

	// The built-in bodies come out of the registry, the way a config-driven
	// caller would build them.
	reg := registry.NewRegistry(logger)
	reg.RegisterBody(logbody.NewFactory(logger))
	reg.RegisterBody(httprequest.NewFactory(logger))
	reg.RegisterBody(transform.NewFactory())

	traceBody, err := reg.CreateBody("log", map[string]any{
		"message": "loop path completed",
		"level":   "info",
	})
	if err != nil {
		return err
	}

	trace, err := flow.AddVertex(workflow.NewFunction("trace", traceBody))
	if err != nil {
		return err
	}

	sink, err := flow.AddVertex(workflow.NewSink("report"))
	if err != nil {
		return err
	}

	source.To(double).To(branch)
	branch.ToCase(countUp, "big")
	countUp.To(trace).To(sink)

	runOpts := []workflow.RunOption{}
	if cfg.stream {
		runOpts = append(runOpts, workflow.WithStreaming())
	}

	if err := flow.Run(ctx, map[string]any{"x": 4, "count": 0}, runOpts...); err != nil {
		return err
	}

	for sinkID, output := range flow.Result() {
		fmt.Printf("%s: %v\n", sinkID, output)
	}

	for _, status := range flow.Status() {
		logger.Info("vertex status", "name", status.Name, "success", status.Success, "elapsed", status.Elapsed)
	}

	return nil
}
