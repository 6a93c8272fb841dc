// Package mocks provides testify mocks for the engine's interfaces.
package mocks

import (
	"context"

	"github.com/loomwork/loom/pkg/eventbus"
	"github.com/loomwork/loom/pkg/events"
	"github.com/stretchr/testify/mock"
)

// MockEventBus is a mock implementation of eventbus.EventBus.
type MockEventBus struct {
	mock.Mock
}

func (m *MockEventBus) Publish(ctx context.Context, event events.Event) error {
	args := m.Called(ctx, event)

	return args.Error(0)
}

func (m *MockEventBus) Subscribe(ctx context.Context, eventType events.EventType, handler eventbus.EventHandler) error {
	args := m.Called(ctx, eventType, handler)

	return args.Error(0)
}

func (m *MockEventBus) Stream(ctx context.Context, eventType events.EventType) (<-chan events.Event, error) {
	args := m.Called(ctx, eventType)

	stream, _ := args.Get(0).(<-chan events.Event)

	return stream, args.Error(1)
}

func (m *MockEventBus) Close() error {
	args := m.Called()

	return args.Error(0)
}

func (m *MockEventBus) GenerateID() string {
	args := m.Called()

	return args.String(0)
}

var _ eventbus.EventBus = (*MockEventBus)(nil)
