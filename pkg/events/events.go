// Package events defines event types and structures for graph-run
// lifecycle notifications.
package events

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

// TopicPrefix namespaces one watermill topic per event type.
const TopicPrefix = "loom.events."

const (
	// Per-vertex events.
	VertexValueProducedEvent EventType = "vertex.value.produced"
	VertexStatusChangedEvent EventType = "vertex.status.changed"

	// Run lifecycle events.
	WorkflowStartedEvent  EventType = "workflow.started"
	WorkflowFinishedEvent EventType = "workflow.finished"
	WorkflowFailedEvent   EventType = "workflow.failed"
)

// Topic returns the watermill topic carrying the given event type.
func Topic(eventType EventType) string {
	return TopicPrefix + string(eventType)
}

type Event interface {
	GetType() EventType
}

type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	WorkflowID string         `json:"workflow_id"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

func NewBaseEvent(eventType EventType, workflowID string) BaseEvent {
	return BaseEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		WorkflowID: workflowID,
	}
}

// VertexValueProduced fires when a vertex stores its output. In streaming
// mode it is published as soon as the vertex's future resolves.
type VertexValueProduced struct {
	BaseEvent

	VertexID string `json:"vertex_id"`
	Output   any    `json:"output,omitempty"`
}

func (e VertexValueProduced) GetType() EventType {
	return VertexValueProducedEvent
}

// VertexStatusChanged fires when a vertex execution fails.
type VertexStatusChanged struct {
	BaseEvent

	VertexID     string `json:"vertex_id"`
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message,omitempty"`
}

func (e VertexStatusChanged) GetType() EventType {
	return VertexStatusChangedEvent
}

type WorkflowStarted struct {
	BaseEvent

	Inputs map[string]any `json:"inputs,omitempty"`
}

func (e WorkflowStarted) GetType() EventType {
	return WorkflowStartedEvent
}

type WorkflowFinished struct {
	BaseEvent

	Result   map[string]any `json:"result,omitempty"`
	Duration time.Duration  `json:"duration"`
}

func (e WorkflowFinished) GetType() EventType {
	return WorkflowFinishedEvent
}

type WorkflowFailed struct {
	BaseEvent

	Error    string        `json:"error"`
	Duration time.Duration `json:"duration"`
}

func (e WorkflowFailed) GetType() EventType {
	return WorkflowFailedEvent
}
