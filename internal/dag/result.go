package dag

import (
	"errors"
	"sort"
	"time"

	"assetweaver/internal/core"
)

// NodeResult is what a TaskRunner reports for one finished task.
type NodeResult struct {
	// Written lists output-root-relative paths the task wrote, sorted.
	Written []string

	// Recovered is a failure the runner isolated instead of returning.
	Recovered error

	Duration time.Duration
}

// GraphResult is the deterministic summary of a graph execution attempt.
//
// It includes:
//   - Final per-node states
//   - The observed execution order (useful for determinism proofs/tests)
//   - Per-node results and failures
type GraphResult struct {
	GraphHash GraphHash

	// FinalState is the terminal state of each node by name.
	FinalState ExecutionState

	// ExecutionOrder is the ordered list of tasks that were started (transitioned to RUNNING).
	ExecutionOrder []string

	// Results holds the runner result of every task that ran to completion.
	Results map[string]*NodeResult

	// Errors holds the failure of every FAILED task.
	Errors map[string]error

	// OutputHash identifies the output tree after the run. The executor
	// leaves it empty; callers owning the tree fill it in.
	OutputHash core.TreeHash
}

// Failed returns the names of FAILED tasks, sorted.
func (r *GraphResult) Failed() []string {
	return r.namesIn(TaskFailed)
}

// Skipped returns the names of SKIPPED tasks, sorted.
func (r *GraphResult) Skipped() []string {
	return r.namesIn(TaskSkipped)
}

func (r *GraphResult) namesIn(st TaskState) []string {
	var out []string
	for name, s := range r.FinalState {
		if s == st {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Err joins the failures of all FAILED tasks as *TaskError values, ordered
// by task name. It returns nil when every task succeeded or was skipped by a
// recovered failure.
func (r *GraphResult) Err() error {
	failed := r.Failed()
	if len(failed) == 0 {
		return nil
	}
	errs := make([]error, 0, len(failed))
	for _, name := range failed {
		errs = append(errs, &TaskError{Task: name, Err: r.Errors[name]})
	}
	return errors.Join(errs...)
}
