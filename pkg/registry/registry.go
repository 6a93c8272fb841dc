// Package registry maps body type names to factories so callers can build
// vertex bodies from static parameters, validated against a JSON schema.
package registry

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/loomwork/loom/pkg/workflow"
	"github.com/xeipuuv/gojsonschema"
)

// BodyFactory builds vertex bodies of one type. Schema returns the JSON
// schema its static parameters must satisfy; an empty schema skips
// validation.
type BodyFactory interface {
	ID() string
	Schema() string
	Create(params map[string]any) (workflow.Body, error)
}

type Registry struct {
	logger    *slog.Logger
	factories map[string]BodyFactory
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:    logger,
		factories: make(map[string]BodyFactory),
	}
}

func (r *Registry) RegisterBody(factory BodyFactory) {
	r.factories[factory.ID()] = factory
	r.logger.Debug("registered body factory", "type", factory.ID())
}

// CreateBody validates params against the factory's schema and builds the
// body.
func (r *Registry) CreateBody(bodyType string, params map[string]any) (workflow.Body, error) {
	factory, ok := r.factories[bodyType]
	if !ok {
		return nil, fmt.Errorf("body type %q not registered", bodyType)
	}

	if schema := factory.Schema(); schema != "" {
		if err := validateParams(schema, params); err != nil {
			return nil, fmt.Errorf("body type %q: %w", bodyType, err)
		}
	}

	return factory.Create(params)
}

// BodyTypes lists the registered body type names.
func (r *Registry) BodyTypes() []string {
	types := make([]string, 0, len(r.factories))
	for bodyType := range r.factories {
		types = append(types, bodyType)
	}

	return types
}

func validateParams(schema string, params map[string]any) error {
	if params == nil {
		params = map[string]any{}
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(schema),
		gojsonschema.NewGoLoader(params),
	)
	if err != nil {
		return fmt.Errorf("schema validation: %w", err)
	}

	if result.Valid() {
		return nil
	}

	problems := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		problems = append(problems, desc.String())
	}

	return fmt.Errorf("invalid parameters: %s", strings.Join(problems, "; "))
}

// FuncFactory adapts a plain function into a BodyFactory.
type FuncFactory struct {
	TypeID       string
	ParamsSchema string
	Build        func(params map[string]any) (workflow.Body, error)
}

func (f FuncFactory) ID() string {
	return f.TypeID
}

func (f FuncFactory) Schema() string {
	return f.ParamsSchema
}

func (f FuncFactory) Create(params map[string]any) (workflow.Body, error) {
	return f.Build(params)
}
