package eventbus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/loomwork/loom/pkg/events"
)

type WatermillEventBus struct {
	publisher  message.Publisher
	subscriber message.Subscriber
}

func NewWatermillEventBus(pub message.Publisher, sub message.Subscriber) *WatermillEventBus {
	return &WatermillEventBus{
		publisher:  pub,
		subscriber: sub,
	}
}

func (eb *WatermillEventBus) GenerateID() string {
	return watermill.NewULID()
}

func (eb *WatermillEventBus) Publish(ctx context.Context, event events.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", event.GetType(), err)
	}

	msg := message.NewMessage("msg-"+eb.GenerateID(), payload)
	msg.SetContext(ctx)

	return eb.publisher.Publish(events.Topic(event.GetType()), msg)
}

// Subscribe registers a callback for one event type. The handler runs on a
// dedicated goroutine; a handler error nacks the message.
func (eb *WatermillEventBus) Subscribe(ctx context.Context, eventType events.EventType, handler EventHandler) error {
	messages, err := eb.subscriber.Subscribe(ctx, events.Topic(eventType))
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			event, err := decodeEvent(eventType, msg.Payload)
			if err != nil {
				msg.Nack()

				continue
			}

			if err := handler(ctx, event); err != nil {
				msg.Nack()

				continue
			}

			msg.Ack()
		}
	}()

	return nil
}

// Stream exposes one event type as a lazy pull-based channel. The channel
// is unbounded in duration: it closes only when the subscription ends,
// which happens when the bus closes or the context is cancelled.
func (eb *WatermillEventBus) Stream(ctx context.Context, eventType events.EventType) (<-chan events.Event, error) {
	messages, err := eb.subscriber.Subscribe(ctx, events.Topic(eventType))
	if err != nil {
		return nil, err
	}

	stream := make(chan events.Event)

	go func() {
		defer close(stream)

		for msg := range messages {
			event, err := decodeEvent(eventType, msg.Payload)
			if err != nil {
				msg.Nack()

				continue
			}

			select {
			case stream <- event:
				msg.Ack()
			case <-ctx.Done():
				msg.Nack()

				return
			}
		}
	}()

	return stream, nil
}

func (eb *WatermillEventBus) Close() error {
	if err := eb.publisher.Close(); err != nil {
		return err
	}

	return eb.subscriber.Close()
}

func decodeEvent(eventType events.EventType, payload []byte) (events.Event, error) {
	var event events.Event

	switch eventType {
	case events.VertexValueProducedEvent:
		event = &events.VertexValueProduced{}
	case events.VertexStatusChangedEvent:
		event = &events.VertexStatusChanged{}
	case events.WorkflowStartedEvent:
		event = &events.WorkflowStarted{}
	case events.WorkflowFinishedEvent:
		event = &events.WorkflowFinished{}
	case events.WorkflowFailedEvent:
		event = &events.WorkflowFailed{}
	default:
		return nil, fmt.Errorf("unknown event type %q", eventType)
	}

	if err := json.Unmarshal(payload, event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s event: %w", eventType, err)
	}

	return deref(event), nil
}

func deref(event events.Event) events.Event {
	switch e := event.(type) {
	case *events.VertexValueProduced:
		return *e
	case *events.VertexStatusChanged:
		return *e
	case *events.WorkflowStarted:
		return *e
	case *events.WorkflowFinished:
		return *e
	case *events.WorkflowFailed:
		return *e
	default:
		return event
	}
}
