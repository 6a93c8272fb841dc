package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/loomwork/loom/pkg/channels/gochannel"
	"github.com/loomwork/loom/pkg/eventbus"
	"github.com/loomwork/loom/pkg/events"
	"github.com/loomwork/loom/pkg/mocks"
	"github.com/loomwork/loom/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// buildDiamond wires source -> {a, b} -> sink.
func buildDiamond(t *testing.T) *Workflow {
	t.Helper()

	w := New("diamond")

	source := mustAdd(t, w, NewSource("source"))
	a := mustAdd(t, w, NewFunction("a", func(inputs map[string]any) (any, error) {
		x, _ := inputs["x"].(int)

		return map[string]any{"a": x * 2}, nil
	}))
	b := mustAdd(t, w, NewFunction("b", func(inputs map[string]any) (any, error) {
		x, _ := inputs["x"].(int)

		return map[string]any{"b": x + 1}, nil
	}))
	sink := mustAdd(t, w, NewSink("sink"))

	source.To(a).To(sink)
	source.To(b).To(sink)

	return w
}

func TestRun_DiamondMergesParallelResults(t *testing.T) {
	w := buildDiamond(t)

	require.NoError(t, w.Run(context.Background(), map[string]any{"x": 5}))

	result := w.Result()
	require.Contains(t, result, "sink")
	assert.Equal(t, map[string]any{"a": 10, "b": 6}, result["sink"])
}

func TestRun_SecondCallFailsFast(t *testing.T) {
	w := buildDiamond(t)

	require.NoError(t, w.Run(context.Background(), map[string]any{"x": 5}))

	err := w.Run(context.Background(), map[string]any{"x": 5})
	assert.ErrorIs(t, err, ErrAlreadyRan)
}

func TestRun_InvalidGraphFailsBeforeAnyVertexRuns(t *testing.T) {
	w := New("invalid")

	executed := false

	mustAdd(t, w, NewSource("in", WithBody(func(map[string]any) (any, error) {
		executed = true

		return nil, nil
	})))

	err := w.Run(context.Background(), nil)

	assert.ErrorIs(t, err, ErrNoSinkVertex)
	assert.False(t, executed)
}

func TestRun_SelectorResolution(t *testing.T) {
	w := New("selectors")

	source := mustAdd(t, w, NewSource("config", WithSelectors(
		models.ExternalSelector("name", "name"),
	)))
	greet := mustAdd(t, w, NewFunction("greet", func(inputs map[string]any) (any, error) {
		name, _ := inputs["who"].(string)

		return map[string]any{"greeting": "hello " + name}, nil
	}, WithSelectors(models.NewSelector("config", "name", "who"))))
	sink := mustAdd(t, w, NewSink("out", WithSelectors(
		models.NewSelector("greet", "greeting", "message"),
	)))

	source.To(greet).To(sink)

	require.NoError(t, w.Run(context.Background(), map[string]any{"name": "loom"}))

	assert.Equal(t, map[string]any{"message": "hello loom"}, w.Result()["out"])
}

func TestRun_MissingRequiredExternalInputFails(t *testing.T) {
	w := New("missing-input")

	source := mustAdd(t, w, NewSource("config", WithSelectors(
		models.ExternalSelector("name", "name"),
	)))
	sink := mustAdd(t, w, NewSink("out"))
	source.To(sink)

	err := w.Run(context.Background(), map[string]any{})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "required external input")
}

func TestRun_BodyErrorAbortsRun(t *testing.T) {
	w := New("failing")

	bodyErr := errors.New("boom")

	source := mustAdd(t, w, NewSource("in"))
	bad := mustAdd(t, w, NewFunction("bad", func(map[string]any) (any, error) {
		return nil, bodyErr
	}))
	sink := mustAdd(t, w, NewSink("out"))
	source.To(bad).To(sink)

	var failedVertex string

	bad.OnFailed = func(v *Vertex, _ error) {
		failedVertex = v.ID
	}

	var workflowErr error

	w.OnWorkflowFailed = func(err error) {
		workflowErr = err
	}

	err := w.Run(context.Background(), nil)

	require.ErrorIs(t, err, bodyErr)
	assert.Equal(t, "bad", failedVertex)
	assert.ErrorIs(t, workflowErr, bodyErr)
	assert.Empty(t, w.Result())

	statuses := w.Status()
	require.Len(t, statuses, 2)
	assert.True(t, statuses[0].Success)

	failure := statuses[1]
	assert.Equal(t, "bad", failure.Name)
	assert.False(t, failure.Success)
	assert.Contains(t, failure.ErrorMessage, "boom")
	assert.NotEmpty(t, failure.Trace)
}

func TestRun_PanicInBodyIsRecovered(t *testing.T) {
	w := New("panicking")

	source := mustAdd(t, w, NewSource("in"))
	bad := mustAdd(t, w, NewFunction("bad", func(map[string]any) (any, error) {
		panic("kaboom")
	}))
	sink := mustAdd(t, w, NewSink("out"))
	source.To(bad).To(sink)

	err := w.Run(context.Background(), nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked")
}

func TestRun_LifecycleHooks(t *testing.T) {
	w := buildDiamond(t)

	var mu sync.Mutex

	finished := map[string]bool{}

	for _, id := range []string{"source", "a", "b", "sink"} {
		w.vertices[id].OnFinished = func(v *Vertex, _ any) {
			mu.Lock()
			finished[v.ID] = true
			mu.Unlock()
		}
	}

	var workflowResult map[string]any

	w.OnWorkflowFinished = func(result map[string]any) {
		workflowResult = result
	}

	require.NoError(t, w.Run(context.Background(), map[string]any{"x": 5}))

	assert.Len(t, finished, 4)
	require.NotNil(t, workflowResult)
	assert.Contains(t, workflowResult, "sink")
}

func TestRun_ContextBodyReceivesExecutionContext(t *testing.T) {
	w := New("context-body", WithEnvParams(map[string]any{"region": "eu"}))

	source := mustAdd(t, w, NewSource("in"))
	fn := mustAdd(t, w, NewFunction("fn", nil, WithContextBody(
		func(_ context.Context, _ map[string]any, ec *models.ExecutionContext) (any, error) {
			return map[string]any{"region": ec.EnvParams["region"]}, nil
		},
	)))
	sink := mustAdd(t, w, NewSink("out"))
	source.To(fn).To(sink)

	require.NoError(t, w.Run(context.Background(), nil))

	assert.Equal(t, map[string]any{"region": "eu"}, w.Result()["out"])
}

func TestRun_StreamingPublishesValueEventsEagerly(t *testing.T) {
	pub, sub := gochannel.CreateChannel(watermill.NopLogger{})
	bus := eventbus.NewWatermillEventBus(pub, sub)

	t.Cleanup(func() { _ = bus.Close() })

	var mu sync.Mutex

	var produced []string

	require.NoError(t, bus.Subscribe(context.Background(), events.VertexValueProducedEvent,
		func(_ context.Context, event events.Event) error {
			value, ok := event.(events.VertexValueProduced)
			if !ok {
				return nil
			}

			mu.Lock()
			produced = append(produced, value.VertexID)
			mu.Unlock()

			return nil
		}))

	w := New("streaming", WithEventBus(bus))

	source := mustAdd(t, w, NewSource("in"))
	sink := mustAdd(t, w, NewSink("out"))
	source.To(sink)

	require.NoError(t, w.Run(context.Background(), map[string]any{"x": 1}, WithStreaming()))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()

		return len(produced) == 2
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []string{"in", "out"}, produced)
}

func TestRun_PublishesLifecycleEvents(t *testing.T) {
	bus := &mocks.MockEventBus{}
	bus.On("Publish", mock.Anything, mock.AnythingOfType("events.WorkflowStarted")).Return(nil).Once()
	bus.On("Publish", mock.Anything, mock.AnythingOfType("events.VertexValueProduced")).Return(nil).Times(2)
	bus.On("Publish", mock.Anything, mock.AnythingOfType("events.WorkflowFinished")).Return(nil).Once()

	w := New("evented", WithEventBus(bus))

	source := mustAdd(t, w, NewSource("in"))
	sink := mustAdd(t, w, NewSink("out"))
	source.To(sink)

	require.NoError(t, w.Run(context.Background(), map[string]any{"x": 1}))

	bus.AssertExpectations(t)
}

func TestRun_PublishesFailureEvents(t *testing.T) {
	bus := &mocks.MockEventBus{}
	bus.On("Publish", mock.Anything, mock.AnythingOfType("events.WorkflowStarted")).Return(nil).Once()
	bus.On("Publish", mock.Anything, mock.AnythingOfType("events.VertexValueProduced")).Return(nil).Maybe()
	bus.On("Publish", mock.Anything, mock.AnythingOfType("events.VertexStatusChanged")).Return(nil).Once()
	bus.On("Publish", mock.Anything, mock.AnythingOfType("events.WorkflowFailed")).Return(nil).Once()

	w := New("evented-failure", WithEventBus(bus))

	source := mustAdd(t, w, NewSource("in"))
	bad := mustAdd(t, w, NewFunction("bad", func(map[string]any) (any, error) {
		return nil, errors.New("boom")
	}))
	sink := mustAdd(t, w, NewSink("out"))
	source.To(bad).To(sink)

	require.Error(t, w.Run(context.Background(), nil))

	bus.AssertExpectations(t)
}

func TestRun_BoundedWorkerPool(t *testing.T) {
	w := New("bounded", WithMaxWorkers(1))

	var mu sync.Mutex

	running := 0
	peak := 0

	body := func(map[string]any) (any, error) {
		mu.Lock()
		running++

		if running > peak {
			peak = running
		}
		mu.Unlock()

		time.Sleep(10 * time.Millisecond)

		mu.Lock()
		running--
		mu.Unlock()

		return map[string]any{}, nil
	}

	source := mustAdd(t, w, NewSource("in"))
	a := mustAdd(t, w, NewFunction("a", body))
	b := mustAdd(t, w, NewFunction("b", body))
	c := mustAdd(t, w, NewFunction("c", body))
	sink := mustAdd(t, w, NewSink("out"))

	source.To(a).To(sink)
	source.To(b).To(sink)
	source.To(c).To(sink)

	require.NoError(t, w.Run(context.Background(), nil))

	assert.Equal(t, 1, peak)
}
