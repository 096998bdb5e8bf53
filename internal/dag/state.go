package dag

import "fmt"

// TaskState is the runtime state of one task during a pipeline run. The
// TaskGraph itself never changes; states live in an ExecutionState.
type TaskState string

const (
	TaskPending   TaskState = "PENDING"
	TaskRunning   TaskState = "RUNNING"
	TaskCompleted TaskState = "COMPLETED"
	TaskFailed    TaskState = "FAILED"
	TaskSkipped   TaskState = "SKIPPED"
)

// ExecutionState maps task name to its current state.
type ExecutionState map[string]TaskState

// allowed lists the legal successors of each non-terminal state.
var allowed = map[TaskState][]TaskState{
	TaskPending: {TaskRunning, TaskSkipped},
	TaskRunning: {TaskCompleted, TaskFailed},
}

// IsTerminal reports whether a task in state s has finished.
func IsTerminal(s TaskState) bool {
	return s == TaskCompleted || s == TaskFailed || s == TaskSkipped
}

// IsSuccessful reports whether s lets dependents run.
func IsSuccessful(s TaskState) bool { return s == TaskCompleted }

// Transition moves taskName from "from" to "to". The expected prior state
// makes lost updates visible; state is left untouched on error.
func Transition(state ExecutionState, taskName string, from, to TaskState) error {
	cur, ok := state[taskName]
	if !ok {
		return fmt.Errorf("unknown task in state: %q", taskName)
	}
	if cur != from {
		return fmt.Errorf("invalid transition for %q: expected %s, got %s", taskName, from, cur)
	}
	for _, next := range allowed[from] {
		if next == to {
			state[taskName] = to
			return nil
		}
	}
	return fmt.Errorf("disallowed transition for %q: %s -> %s", taskName, from, to)
}

// FailAndPropagate marks taskName FAILED and every pending transitive
// dependent SKIPPED. A dependent that is already RUNNING means the executor
// started it too early; that is reported and no state changes.
func FailAndPropagate(g *TaskGraph, state ExecutionState, taskName string) error {
	if g == nil {
		return fmt.Errorf("nil graph")
	}
	node, ok := g.nodesByName[taskName]
	if !ok {
		return fmt.Errorf("unknown task: %q", taskName)
	}
	cur, ok := state[taskName]
	if !ok {
		return fmt.Errorf("unknown task in state: %q", taskName)
	}
	if cur != TaskRunning && cur != TaskFailed {
		return fmt.Errorf("cannot fail %q from state %s", taskName, cur)
	}

	var downstream []string
	for idx, reached := range g.reach[node.canonicalIndex] {
		if !reached {
			continue
		}
		name := g.nodes[idx].Name
		st, ok := state[name]
		if !ok {
			return fmt.Errorf("missing state for %q", name)
		}
		if st == TaskRunning {
			return fmt.Errorf("downstream task %q of failed %q is already RUNNING", name, taskName)
		}
		if st == TaskPending {
			downstream = append(downstream, name)
		}
	}

	state[taskName] = TaskFailed
	for _, name := range downstream {
		state[name] = TaskSkipped
	}
	return nil
}
