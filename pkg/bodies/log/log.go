// Package log provides a built-in vertex body that logs its resolved inputs
// and passes them through unchanged.
package log

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/loomwork/loom/pkg/registry"
	"github.com/loomwork/loom/pkg/workflow"
)

const schema = `{
	"type": "object",
	"properties": {
		"message": {
			"type": "string",
			"description": "Message logged once per execution."
		},
		"level": {
			"type": "string",
			"description": "Log level for the message",
			"default": "info",
			"enum": ["debug", "info", "warn", "error"]
		}
	},
	"required": ["message"]
}`

type Factory struct {
	Logger *slog.Logger
}

func NewFactory(logger *slog.Logger) Factory {
	return Factory{Logger: logger}
}

func (Factory) ID() string {
	return "log"
}

func (Factory) Schema() string {
	return schema
}

// Create builds a passthrough body that logs the configured message together
// with the vertex's resolved inputs.
func (f Factory) Create(params map[string]any) (workflow.Body, error) {
	message, ok := params["message"].(string)
	if !ok {
		return nil, fmt.Errorf("log body: message must be a string, got %T", params["message"])
	}

	level := slog.LevelInfo

	if name, ok := params["level"].(string); ok {
		if err := level.UnmarshalText([]byte(name)); err != nil {
			return nil, fmt.Errorf("log body: %w", err)
		}
	}

	logger := f.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return func(inputs map[string]any) (any, error) {
		logger.Log(context.Background(), level, message, "inputs", inputs)

		return inputs, nil
	}, nil
}

var _ registry.BodyFactory = Factory{}
