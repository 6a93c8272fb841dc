package eventbus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/loomwork/loom/pkg/channels/gochannel"
	"github.com/loomwork/loom/pkg/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBus(t *testing.T) *WatermillEventBus {
	t.Helper()

	pub, sub := gochannel.CreateTestChannel(watermill.NopLogger{})
	bus := NewWatermillEventBus(pub, sub)

	t.Cleanup(func() { _ = bus.Close() })

	return bus
}

func TestPublishSubscribeRoundtrip(t *testing.T) {
	bus := newTestBus(t)
	ctx := context.Background()

	var mu sync.Mutex

	var received []events.WorkflowStarted

	require.NoError(t, bus.Subscribe(ctx, events.WorkflowStartedEvent,
		func(_ context.Context, event events.Event) error {
			started, ok := event.(events.WorkflowStarted)
			if !ok {
				return nil
			}

			mu.Lock()
			received = append(received, started)
			mu.Unlock()

			return nil
		}))

	require.NoError(t, bus.Publish(ctx, events.WorkflowStarted{
		BaseEvent: events.NewBaseEvent(events.WorkflowStartedEvent, "wf-1"),
		Inputs:    map[string]any{"name": "roundtrip"},
	}))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()

		return len(received) == 1
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()

	assert.Equal(t, "wf-1", received[0].WorkflowID)
	assert.Equal(t, map[string]any{"name": "roundtrip"}, received[0].Inputs)
	assert.NotEmpty(t, received[0].ID)
}

func TestSubscribeIsScopedToEventType(t *testing.T) {
	bus := newTestBus(t)
	ctx := context.Background()

	var mu sync.Mutex

	startedCount := 0

	require.NoError(t, bus.Subscribe(ctx, events.WorkflowStartedEvent,
		func(context.Context, events.Event) error {
			mu.Lock()
			startedCount++
			mu.Unlock()

			return nil
		}))

	require.NoError(t, bus.Publish(ctx, events.WorkflowFinished{
		BaseEvent: events.NewBaseEvent(events.WorkflowFinishedEvent, "wf-1"),
	}))
	require.NoError(t, bus.Publish(ctx, events.WorkflowStarted{
		BaseEvent: events.NewBaseEvent(events.WorkflowStartedEvent, "wf-1"),
	}))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()

		return startedCount == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStreamDeliversEventsInOrder(t *testing.T) {
	// The ack-blocking test channel would deadlock a publish-then-read
	// sequence, so this test uses the buffered production channel.
	pub, sub := gochannel.CreateChannel(watermill.NopLogger{})
	bus := NewWatermillEventBus(pub, sub)

	t.Cleanup(func() { _ = bus.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, err := bus.Stream(ctx, events.VertexValueProducedEvent)
	require.NoError(t, err)

	for _, vertexID := range []string{"first", "second"} {
		require.NoError(t, bus.Publish(ctx, events.VertexValueProduced{
			BaseEvent: events.NewBaseEvent(events.VertexValueProducedEvent, "wf-1"),
			VertexID:  vertexID,
		}))
	}

	var got []string

	for len(got) < 2 {
		select {
		case event := <-stream:
			produced, ok := event.(events.VertexValueProduced)
			require.True(t, ok)

			got = append(got, produced.VertexID)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for stream events, got %v", got)
		}
	}

	assert.Equal(t, []string{"first", "second"}, got)
}

func TestGenerateID(t *testing.T) {
	bus := newTestBus(t)

	first := bus.GenerateID()
	second := bus.GenerateID()

	assert.NotEmpty(t, first)
	assert.NotEqual(t, first, second)
}
