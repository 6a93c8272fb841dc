// Package models defines the core data model for computation graphs:
// variable selectors, branch and loop conditions, edges and per-run state.
package models

import (
	"fmt"
)

// ExternalScope is the canonical sentinel for "this value comes from the
// run's external inputs, not from a sibling vertex". An empty SourceScope is
// normalized to it when a selector is built through NewSelector.
const ExternalScope = "external"

// Selector declares a cross-vertex data dependency: pull SourceVar out of
// the output of the vertex named by SourceScope (or out of the run's
// external inputs) and bind it under LocalVar for the consuming vertex.
// An empty SourceVar selects the whole output value.
type Selector struct {
	SourceScope string `json:"source_scope"`
	SourceVar   string `json:"source_var,omitempty"`
	LocalVar    string `json:"local_var"                validate:"required"`
}

func NewSelector(sourceScope, sourceVar, localVar string) Selector {
	if sourceScope == "" {
		sourceScope = ExternalScope
	}

	return Selector{
		SourceScope: sourceScope,
		SourceVar:   sourceVar,
		LocalVar:    localVar,
	}
}

// ExternalSelector builds a selector against the run's external inputs.
func ExternalSelector(sourceVar, localVar string) Selector {
	return NewSelector(ExternalScope, sourceVar, localVar)
}

func (s Selector) IsExternal() bool {
	return s.SourceScope == ExternalScope || s.SourceScope == ""
}

// ExtractVar applies the SourceVar part of the selector to a source value.
// With an empty SourceVar the whole value is returned; otherwise the value
// must be a map carrying the named field.
func (s Selector) ExtractVar(value any) (any, error) {
	if s.SourceVar == "" {
		return value, nil
	}

	fields, ok := value.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("selector %q: source %q output is %T, not a map, cannot extract field %q",
			s.LocalVar, s.SourceScope, value, s.SourceVar)
	}

	field, ok := fields[s.SourceVar]
	if !ok {
		return nil, fmt.Errorf("selector %q: field %q not found in output of %q",
			s.LocalVar, s.SourceVar, s.SourceScope)
	}

	return field, nil
}
