package dag

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"assetweaver/internal/core"
)

// TaskRunner executes a single task.
//
// A non-nil error marks the task FAILED and skips its dependents. When the
// error arrives after the execution context was cancelled the whole graph
// run is aborted instead.
type TaskRunner interface {
	Run(ctx context.Context, task core.Task) (*NodeResult, error)
}

// TaskRunnerFunc adapts a function to the TaskRunner interface.
type TaskRunnerFunc func(ctx context.Context, task core.Task) (*NodeResult, error)

// Run implements TaskRunner.
func (f TaskRunnerFunc) Run(ctx context.Context, task core.Task) (*NodeResult, error) {
	return f(ctx, task)
}

// Executor executes a TaskGraph deterministically.
//
// Serial and parallel dispatch share the same state and scheduling logic.
type Executor struct {
	Graph  *TaskGraph
	Runner TaskRunner

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	mu    sync.Mutex
	state ExecutionState
}

// NewExecutor creates an executor with all nodes initialized to PENDING.
func NewExecutor(g *TaskGraph, runner TaskRunner) (*Executor, error) {
	if g == nil {
		return nil, fmt.Errorf("nil graph")
	}
	if runner == nil {
		return nil, fmt.Errorf("nil runner")
	}

	state := make(ExecutionState, len(g.nodes))
	for _, n := range g.nodes {
		state[n.Name] = TaskPending
	}

	return &Executor{Graph: g, Runner: runner, state: state}, nil
}

// StateSnapshot returns a copy of the current execution state.
func (e *Executor) StateSnapshot() ExecutionState {
	e.mu.Lock()
	defer e.mu.Unlock()

	cp := make(ExecutionState, len(e.state))
	for k, v := range e.state {
		cp[k] = v
	}
	return cp
}

func (e *Executor) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

// collector accumulates per-node outcomes. Callers hold e.mu.
type collector struct {
	order   []string
	results map[string]*NodeResult
	errs    map[string]error
}

func newCollector(n int) *collector {
	return &collector{
		order:   make([]string, 0, n),
		results: make(map[string]*NodeResult, n),
		errs:    make(map[string]error),
	}
}

// finish records the outcome of a RUNNING task and advances its state.
func (e *Executor) finish(c *collector, name string, res *NodeResult, runErr error) error {
	if runErr != nil {
		c.errs[name] = runErr
		if err := FailAndPropagate(e.Graph, e.state, name); err != nil {
			return err
		}
		e.logger().Error("task failed", "task", name, "error", runErr)
		return nil
	}
	if res == nil {
		res = &NodeResult{}
	}
	c.results[name] = res
	return Transition(e.state, name, TaskRunning, TaskCompleted)
}

func (e *Executor) result(c *collector) *GraphResult {
	return &GraphResult{
		GraphHash:      e.Graph.Hash(),
		FinalState:     e.StateSnapshot(),
		ExecutionOrder: c.order,
		Results:        c.results,
		Errors:         c.errs,
	}
}

// RunSerial executes the graph in serial mode.
//
// Determinism:
//   - All state mutations are guarded by a single mutex.
//   - The scheduler is polled deterministically.
//   - The next task chosen is always the first element of the scheduler's ordered list.
func (e *Executor) RunSerial(ctx context.Context) (*GraphResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	c := newCollector(len(e.Graph.nodes))

	for {
		// 1) Lock state + 2) poll scheduler
		e.mu.Lock()
		ready := GetReadyTasks(e.Graph, e.state)

		if len(ready) == 0 {
			// No runnable tasks: either we are finished, or deadlocked due to inconsistent state.
			allTerminal := true
			for _, st := range e.state {
				if !IsTerminal(st) {
					allTerminal = false
					break
				}
			}
			e.mu.Unlock()

			if allTerminal {
				return e.result(c), nil
			}
			return nil, fmt.Errorf("no ready tasks but graph not finished")
		}

		next := ready[0]
		task := e.Graph.nodesByName[next].Task

		if err := Transition(e.state, next, TaskPending, TaskRunning); err != nil {
			e.mu.Unlock()
			return nil, err
		}
		c.order = append(c.order, next)
		e.mu.Unlock()

		// 3) execute task (outside lock)
		e.logger().Debug("task started", "task", next, "kind", task.Kind())
		runRes, runErr := e.Runner.Run(ctx, task)
		if runErr != nil && ctx.Err() != nil {
			return nil, fmt.Errorf("execution cancelled: %w", ctx.Err())
		}

		// 4) update state (under lock)
		e.mu.Lock()
		err := e.finish(c, next, runRes, runErr)
		e.mu.Unlock()
		if err != nil {
			return nil, err
		}
	}
}

type workItem struct {
	name string
	task core.Task
}

type workResult struct {
	name   string
	result *NodeResult
	err    error
}

// RunParallel executes the graph using up to `concurrency` workers.
//
// Determinism strategy:
//   - Depth-staged dispatch: tasks are dispatched in increasing topological depth.
//   - Within the same depth: lexical order by task name.
//
// A stage starts only after every task of the previous stage has finished,
// so files written by one stage are in place before the next one reads them.
//
// All state reads/writes are synchronized by e.mu. Task execution happens outside the lock.
func (e *Executor) RunParallel(ctx context.Context, concurrency int) (*GraphResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if concurrency <= 0 {
		return nil, fmt.Errorf("concurrency must be > 0")
	}

	maxDepth := 0
	for _, d := range e.Graph.depth {
		if d > maxDepth {
			maxDepth = d
		}
	}

	byDepth := make([][]string, maxDepth+1)
	for _, n := range e.Graph.nodes {
		byDepth[e.Graph.depth[n.canonicalIndex]] = append(byDepth[e.Graph.depth[n.canonicalIndex]], n.Name)
	}
	for d := range byDepth {
		sort.Strings(byDepth[d])
	}

	workCh := make(chan workItem, concurrency)
	doneCh := make(chan workResult, concurrency)

	var wg sync.WaitGroup
	var stopOnce sync.Once
	stopWorkers := func() {
		stopOnce.Do(func() {
			close(workCh)
			wg.Wait()
		})
	}
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for w := range workCh {
				e.logger().Debug("task started", "task", w.name, "kind", w.task.Kind())
				res, err := e.Runner.Run(ctx, w.task)
				doneCh <- workResult{name: w.name, result: res, err: err}
			}
		}()
	}

	c := newCollector(len(e.Graph.nodes))
	inFlight := 0

	// Coordinator loop: stage by depth.
	for depth := 0; depth <= maxDepth; depth++ {
		names := byDepth[depth]
		nextToStart := 0

		for {
			// Dispatch as many tasks as possible for this depth.
			e.mu.Lock()
			for inFlight < concurrency && nextToStart < len(names) {
				name := names[nextToStart]
				node := e.Graph.nodesByName[name]
				st := e.state[name]

				// Already terminal (e.g., skipped by earlier failure) => never execute.
				if IsTerminal(st) {
					nextToStart++
					continue
				}
				if st != TaskPending {
					e.mu.Unlock()
					stopWorkers()
					return nil, fmt.Errorf("unexpected non-pending state for %q: %s", name, st)
				}
				if !e.Graph.dependenciesDone(node.canonicalIndex, e.state) {
					e.mu.Unlock()
					stopWorkers()
					return nil, fmt.Errorf("task %q at depth %d is pending but dependencies are not successful", name, depth)
				}

				if err := Transition(e.state, name, TaskPending, TaskRunning); err != nil {
					e.mu.Unlock()
					stopWorkers()
					return nil, err
				}
				c.order = append(c.order, name)
				inFlight++
				nextToStart++
				workCh <- workItem{name: name, task: node.Task}
			}

			// Are we done with this depth stage?
			stageDone := (nextToStart >= len(names) && inFlight == 0)
			e.mu.Unlock()
			if stageDone {
				break
			}

			// Wait for at least one completion or context cancellation.
			select {
			case <-ctx.Done():
				stopWorkers()
				return nil, fmt.Errorf("execution cancelled: %w", ctx.Err())
			case r := <-doneCh:
				if r.err != nil && ctx.Err() != nil {
					stopWorkers()
					return nil, fmt.Errorf("execution cancelled: %w", ctx.Err())
				}

				e.mu.Lock()
				cur := e.state[r.name]
				if cur != TaskRunning {
					e.mu.Unlock()
					stopWorkers()
					return nil, fmt.Errorf("completion for %q but state is %s", r.name, cur)
				}
				if err := e.finish(c, r.name, r.result, r.err); err != nil {
					e.mu.Unlock()
					stopWorkers()
					return nil, err
				}
				inFlight--
				e.mu.Unlock()
			}
		}
	}

	stopWorkers()

	return e.result(c), nil
}
