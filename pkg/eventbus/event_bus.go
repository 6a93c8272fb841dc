// Package eventbus connects the graph engine to a watermill-backed
// publish/subscribe transport.
package eventbus

import (
	"context"

	"github.com/loomwork/loom/pkg/events"
)

type EventHandler func(ctx context.Context, event events.Event) error

// EventBus is the engine's notification surface: callback subscriptions per
// event type, plus a lazy pull-based stream over one event type.
type EventBus interface {
	Publish(ctx context.Context, event events.Event) error
	Subscribe(ctx context.Context, eventType events.EventType, handler EventHandler) error
	Stream(ctx context.Context, eventType events.EventType) (<-chan events.Event, error)
	Close() error
	GenerateID() string
}
