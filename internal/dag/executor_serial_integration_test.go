package dag

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"

	"assetweaver/internal/core"
)

type fakeRunner struct {
	fail map[string]error
}

func (r *fakeRunner) Run(_ context.Context, task core.Task) (*NodeResult, error) {
	if task.Name == "" {
		return nil, fmt.Errorf("missing task name")
	}
	if err, ok := r.fail[task.Name]; ok {
		return nil, err
	}
	return &NodeResult{Written: []string{task.Output + "/" + task.Name}}, nil
}

func TestExecutorSerial_RespectsSchedulerOrderOnComplexGraph(t *testing.T) {
	// Graph:
	//   A -> C
	//   B -> D
	//   E (independent)
	//
	// Initially ready (depth 0): A, B, E => lexical A,B,E.
	// After A completes: C becomes ready (depth 1), but B and E (depth 0) must run first.
	// After B completes: D becomes ready (depth 1).
	// After E completes: C and D both depth 1 => lexical C then D.
	g, err := NewTaskGraph(
		[]core.Task{
			{Name: "A", Inputs: []string{"a"}, Output: "out-a"},
			{Name: "B", Inputs: []string{"b"}, Output: "out-b"},
			{Name: "C", Inputs: []string{"c"}, Output: "out-c"},
			{Name: "D", Inputs: []string{"d"}, Output: "out-d"},
			{Name: "E", Inputs: []string{"e"}, Output: "out-e"},
		},
		[]Edge{{From: "A", To: "C"}, {From: "B", To: "D"}},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	exec, err := NewExecutor(g, &fakeRunner{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	res, err := exec.RunSerial(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantOrder := []string{"A", "B", "E", "C", "D"}
	if !reflect.DeepEqual(res.ExecutionOrder, wantOrder) {
		t.Fatalf("execution order mismatch: got %v want %v", res.ExecutionOrder, wantOrder)
	}

	for _, name := range []string{"A", "B", "C", "D", "E"} {
		if res.FinalState[name] != TaskCompleted {
			t.Fatalf("expected %s COMPLETED, got %s", name, res.FinalState[name])
		}
	}
}

func TestExecutorSerial_FailurePropagatesAndContinuesIndependentWork(t *testing.T) {
	// Graph:
	//   A -> B -> C
	//   D (independent)
	//
	// A fails; B and C become SKIPPED; D still runs.
	g, err := NewTaskGraph(
		[]core.Task{
			{Name: "A", Inputs: []string{"a"}, Output: "out-a"},
			{Name: "B", Inputs: []string{"b"}, Output: "out-b"},
			{Name: "C", Inputs: []string{"c"}, Output: "out-c"},
			{Name: "D", Inputs: []string{"d"}, Output: "out-d"},
		},
		[]Edge{{From: "A", To: "B"}, {From: "B", To: "C"}},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	boom := errors.New("stylesheet syntax error")
	exec, err := NewExecutor(g, &fakeRunner{fail: map[string]error{"A": boom}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	res, err := exec.RunSerial(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Depth 0 nodes are A and D => lexical A then D.
	if !reflect.DeepEqual(res.ExecutionOrder, []string{"A", "D"}) {
		t.Fatalf("unexpected execution order: %v", res.ExecutionOrder)
	}

	if res.FinalState["A"] != TaskFailed {
		t.Fatalf("expected A failed, got %s", res.FinalState["A"])
	}
	if res.FinalState["B"] != TaskSkipped {
		t.Fatalf("expected B skipped, got %s", res.FinalState["B"])
	}
	if res.FinalState["C"] != TaskSkipped {
		t.Fatalf("expected C skipped, got %s", res.FinalState["C"])
	}
	if res.FinalState["D"] != TaskCompleted {
		t.Fatalf("expected D completed, got %s", res.FinalState["D"])
	}

	if !errors.Is(res.Errors["A"], boom) {
		t.Fatalf("expected A's error recorded, got %v", res.Errors["A"])
	}
	if !reflect.DeepEqual(res.Failed(), []string{"A"}) || !reflect.DeepEqual(res.Skipped(), []string{"B", "C"}) {
		t.Fatalf("unexpected failed=%v skipped=%v", res.Failed(), res.Skipped())
	}
	var te *TaskError
	if err := res.Err(); !errors.As(err, &te) || te.Task != "A" || !errors.Is(err, boom) {
		t.Fatalf("expected joined task error for A, got %v", err)
	}
	if res.Results["D"] == nil || !reflect.DeepEqual(res.Results["D"].Written, []string{"out-d/D"}) {
		t.Fatalf("expected D's result, got %+v", res.Results["D"])
	}
}

func TestExecutorSerial_CancellationAborts(t *testing.T) {
	g, err := NewTaskGraph(
		[]core.Task{
			{Name: "A", Inputs: []string{"a"}, Output: "out-a"},
			{Name: "B", Inputs: []string{"b"}, Output: "out-b"},
		},
		[]Edge{{From: "A", To: "B"}},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	runner := TaskRunnerFunc(func(ctx context.Context, task core.Task) (*NodeResult, error) {
		cancel()
		<-ctx.Done()
		return nil, ctx.Err()
	})

	exec, err := NewExecutor(g, runner)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := exec.RunSerial(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
}

func TestCoreRunner_RecoveredFailureCompletesNode(t *testing.T) {
	boom := errors.New("unclosed block")
	styles := core.Task{
		Name:     "styles",
		Output:   "css",
		Isolated: true,
		Processor: core.ProcessorFunc{Name: "styles", Fn: func(context.Context, *core.InputSet, core.OutputWriter) error {
			return boom
		}},
	}
	html := core.Task{Name: "html", Output: "."}

	g, err := NewTaskGraph([]core.Task{styles, html}, []Edge{{From: "styles", To: "html"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	r := core.NewRunner(t.TempDir(), nil)
	r.Isolate = true
	cr, err := NewCoreRunner(r, core.RunOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	exec, err := NewExecutor(g, cr)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	res, err := exec.RunSerial(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.FinalState["styles"] != TaskCompleted || res.FinalState["html"] != TaskCompleted {
		t.Fatalf("isolated failure must not block the pipeline: %v", res.FinalState)
	}
	if !errors.Is(res.Results["styles"].Recovered, boom) {
		t.Fatalf("expected recovered error, got %v", res.Results["styles"].Recovered)
	}
	if res.Err() != nil {
		t.Fatalf("expected no graph error, got %v", res.Err())
	}
}
