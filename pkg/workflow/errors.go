package workflow

import "errors"

// Structural errors, all raised before any vertex executes.
var (
	ErrAlreadyRan          = errors.New("workflow has already run")
	ErrNilVertex           = errors.New("vertex is nil")
	ErrDuplicateVertex     = errors.New("vertex id already registered")
	ErrUnknownVertex       = errors.New("vertex not registered in workflow")
	ErrNoSourceVertex      = errors.New("workflow has no source vertex")
	ErrNoSinkVertex        = errors.New("workflow has no sink vertex")
	ErrUnreachableVertex   = errors.New("non-source vertex has no incoming edges")
	ErrDeadEndVertex       = errors.New("non-sink vertex has no outgoing edges")
	ErrCyclicGraph         = errors.New("workflow graph contains a cycle")
	ErrUnknownCaseID       = errors.New("conditional edge case id does not match any case of the source branch vertex")
	ErrNotBranchSource     = errors.New("conditional edge source is not a branch vertex")
	ErrMissingBody         = errors.New("vertex requires a body")
	ErrLoopConditionConfig = errors.New("loop requires exactly one of a condition func or while conditions")
	ErrNilSubgraph         = errors.New("group requires a nested workflow")
)
