package dag

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel kinds carried by *GraphError; match with errors.Is.
var (
	ErrInvalidGraph = errors.New("invalid task graph")
	ErrCycleFound   = errors.New("cycle detected")
)

// GraphError is returned by NewTaskGraph when the tasks and edges do
// not form a valid DAG.
type GraphError struct {
	Kind   error
	Detail string
}

func (e *GraphError) Error() string {
	switch {
	case e == nil:
		return ""
	case e.Detail == "":
		return e.Kind.Error()
	default:
		return e.Kind.Error() + ": " + e.Detail
	}
}

func (e *GraphError) Unwrap() error { return e.Kind }

func invalidf(format string, args ...any) error {
	return &GraphError{Kind: ErrInvalidGraph, Detail: fmt.Sprintf(format, args...)}
}

func cycleError(path []string) error {
	if len(path) == 0 {
		return &GraphError{Kind: ErrCycleFound}
	}
	return &GraphError{Kind: ErrCycleFound, Detail: strings.Join(path, " -> ")}
}

// TaskError names the task whose processor failed.
type TaskError struct {
	Task string
	Err  error
}

func (e *TaskError) Error() string {
	if e.Err == nil {
		return "task " + e.Task + " failed"
	}
	return fmt.Sprintf("task %s failed: %v", e.Task, e.Err)
}

func (e *TaskError) Unwrap() error { return e.Err }
