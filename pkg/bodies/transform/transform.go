// Package transform provides a built-in vertex body that reshapes its
// resolved inputs through template expressions.
package transform

import (
	"fmt"

	"github.com/loomwork/loom/pkg/registry"
	"github.com/loomwork/loom/pkg/template"
	"github.com/loomwork/loom/pkg/workflow"
)

const schema = `{
	"type": "object",
	"properties": {
		"expressions": {
			"type": "object",
			"description": "Output key to template expression. Expressions see the vertex inputs as .inputs.",
			"additionalProperties": {"type": "string"}
		}
	},
	"required": ["expressions"]
}`

type Factory struct{}

func NewFactory() Factory {
	return Factory{}
}

func (Factory) ID() string {
	return "transform"
}

func (Factory) Schema() string {
	return schema
}

// Create builds a body that renders every configured expression against the
// vertex's resolved inputs and returns the rendered map.
func (Factory) Create(params map[string]any) (workflow.Body, error) {
	raw, ok := params["expressions"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("transform body: expressions must be an object, got %T", params["expressions"])
	}

	expressions := make(map[string]string, len(raw))

	for key, value := range raw {
		expression, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("transform body: expression %q must be a string, got %T", key, value)
		}

		expressions[key] = expression
	}

	return func(inputs map[string]any) (any, error) {
		output := make(map[string]any, len(expressions))

		for key, expression := range expressions {
			value, err := template.RenderWithInputs(expression, inputs)
			if err != nil {
				return nil, fmt.Errorf("transform body: output %q: %w", key, err)
			}

			output[key] = value
		}

		return output, nil
	}, nil
}

var _ registry.BodyFactory = Factory{}
