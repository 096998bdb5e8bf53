package core

import (
	"context"
	"errors"
	"os"
	"path"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"sync"
	"testing"
)

type memOutputs struct {
	mu    sync.Mutex
	files map[string][]byte
}

func (m *memOutputs) Writer(_, dir string) OutputWriter {
	return writerFunc(func(rel string, data []byte) error {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.files == nil {
			m.files = map[string][]byte{}
		}
		m.files[path.Join(dir, rel)] = data
		return nil
	})
}

type writerFunc func(rel string, data []byte) error

func (f writerFunc) WriteFile(rel string, data []byte) error { return f(rel, data) }

type recordingNotifier struct {
	injected [][]string
}

func (n *recordingNotifier) Inject(paths []string) { n.injected = append(n.injected, paths) }

var upper = ProcessorFunc{Name: "upper", Fn: func(_ context.Context, in *InputSet, out OutputWriter) error {
	for _, f := range in.Inputs {
		if err := out.WriteFile(f.Rel, []byte(strings.ToUpper(string(f.Content)))); err != nil {
			return err
		}
	}
	return nil
}}

func TestRunner_WritesUnderTaskOutput(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{"js/a.js": "a", "js/b.js": "b"})
	outs := &memOutputs{}

	res, err := NewRunner(src, outs).Run(context.Background(), &Task{
		Name: "scripts", Inputs: []string{"js/*.js"}, Output: "js", Processor: upper,
	}, RunOptions{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if !reflect.DeepEqual(res.Written, []string{"js/a.js", "js/b.js"}) {
		t.Fatalf("written: %v", res.Written)
	}
	if res.Inputs != 2 {
		t.Fatalf("inputs: %d", res.Inputs)
	}
	if string(outs.files["js/a.js"]) != "A" {
		t.Fatalf("unexpected content %q", outs.files["js/a.js"])
	}
}

func TestRunner_OnlyLimitsPerFileTasks(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{"img/a.png": "a", "img/b.png": "b"})

	res, err := NewRunner(src, &memOutputs{}).Run(context.Background(), &Task{
		Name: "images", Inputs: []string{"img/*.png"}, Output: "img", Processor: upper,
	}, RunOptions{Only: []string{"img/b.png"}})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !reflect.DeepEqual(res.Written, []string{"img/b.png"}) {
		t.Fatalf("written: %v", res.Written)
	}
}

// deriving writes "<name>" and "<name>.map" and can name both.
type deriving struct{}

func (deriving) Kind() string { return "deriving" }

func (deriving) Process(_ context.Context, in *InputSet, out OutputWriter) error {
	for _, f := range in.Inputs {
		for _, name := range (deriving{}).Derived(f.Rel) {
			if err := out.WriteFile(name, f.Content); err != nil {
				return err
			}
		}
	}
	return nil
}

func (deriving) Derived(rel string) []string { return []string{rel, rel + ".map"} }

// removableOutputs is memOutputs with OutputRemover writers.
type removableOutputs struct{ memOutputs }

type removableWriter struct {
	OutputWriter
	m   *memOutputs
	dir string
}

func (w removableWriter) RemoveFile(rel string) error {
	w.m.mu.Lock()
	defer w.m.mu.Unlock()
	delete(w.m.files, path.Join(w.dir, rel))
	return nil
}

func (o *removableOutputs) Writer(task, dir string) OutputWriter {
	return removableWriter{OutputWriter: o.memOutputs.Writer(task, dir), m: &o.memOutputs, dir: dir}
}

func TestRunner_DeletedInputRemovesDerivedOutputs(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{"js/a.js": "a", "js/b.js": "b"})
	outs := &removableOutputs{}
	runner := NewRunner(src, outs)
	task := &Task{Name: "scripts", Inputs: []string{"js/*.js"}, Output: "js", Processor: deriving{}}

	if _, err := runner.Run(context.Background(), task, RunOptions{}); err != nil {
		t.Fatalf("initial run: %v", err)
	}
	if err := os.Remove(filepath.Join(src, "js", "a.js")); err != nil {
		t.Fatal(err)
	}

	res, err := runner.Run(context.Background(), task, RunOptions{Only: []string{"js/a.js"}})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !reflect.DeepEqual(res.Removed, []string{"js/a.js", "js/a.js.map"}) {
		t.Fatalf("removed: %v", res.Removed)
	}
	if len(res.Written) != 0 {
		t.Fatalf("nothing should be written, got %v", res.Written)
	}
	var left []string
	for p := range outs.files {
		left = append(left, p)
	}
	sort.Strings(left)
	if !reflect.DeepEqual(left, []string{"js/b.js", "js/b.js.map"}) {
		t.Fatalf("outputs left: %v", left)
	}
}

func TestRunner_DeletedInputIgnoredWithoutDeriver(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{"js/b.js": "b"})
	outs := &removableOutputs{}

	res, err := NewRunner(src, outs).Run(context.Background(), &Task{
		Name: "scripts", Inputs: []string{"js/*.js"}, Output: "js", Processor: upper,
	}, RunOptions{Only: []string{"js/a.js"}})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(res.Removed) != 0 || len(res.Written) != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestRunner_AggregateTasksIgnoreOnly(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{"img/a.svg": "a", "img/b.svg": "b"})

	var seen int
	agg := ProcessorFunc{Name: "sprite", Fn: func(_ context.Context, in *InputSet, out OutputWriter) error {
		seen = in.Len()
		return out.WriteFile("sprite.svg", []byte("x"))
	}}

	_, err := NewRunner(src, &memOutputs{}).Run(context.Background(), &Task{
		Name: "makeSprite", Inputs: []string{"img/*.svg"}, Output: "img", Processor: agg, Aggregate: true,
	}, RunOptions{Only: []string{"img/a.svg"}})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if seen != 2 {
		t.Fatalf("aggregate task must see the full input set, saw %d", seen)
	}
}

func TestRunner_FailurePropagates(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{"less/style.less": "@@"})
	boom := errors.New("syntax error")
	failing := ProcessorFunc{Name: "styles", Fn: func(context.Context, *InputSet, OutputWriter) error { return boom }}

	_, err := NewRunner(src, &memOutputs{}).Run(context.Background(), &Task{
		Name: "styles", Inputs: []string{"less/style.less"}, Processor: failing, Isolated: true,
	}, RunOptions{})
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped processor error, got %v", err)
	}
}

func TestRunner_IsolatedFailureRecoveredWhenIsolating(t *testing.T) {
	src := t.TempDir()
	boom := errors.New("syntax error")
	failing := ProcessorFunc{Name: "styles", Fn: func(context.Context, *InputSet, OutputWriter) error { return boom }}

	r := NewRunner(src, &memOutputs{})
	r.Isolate = true
	res, err := r.Run(context.Background(), &Task{Name: "styles", Processor: failing, Isolated: true}, RunOptions{})
	if err != nil {
		t.Fatalf("isolated failure must not propagate: %v", err)
	}
	if !errors.Is(res.Recovered, boom) {
		t.Fatalf("expected recovered error, got %v", res.Recovered)
	}

	// Non-isolated tasks still fail in isolating mode.
	if _, err := r.Run(context.Background(), &Task{Name: "html", Processor: failing}, RunOptions{}); err == nil {
		t.Fatalf("expected failure for non-isolated task")
	}
}

func TestRunner_StreamingTasksNotify(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{"css/style.css": "a"})
	n := &recordingNotifier{}

	r := NewRunner(src, &memOutputs{})
	r.Notifier = n
	_, err := r.Run(context.Background(), &Task{
		Name: "styles", Inputs: []string{"css/style.css"}, Output: "css", Processor: upper, Stream: true,
	}, RunOptions{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(n.injected) != 1 || !reflect.DeepEqual(n.injected[0], []string{"css/style.css"}) {
		t.Fatalf("unexpected injections: %v", n.injected)
	}
}

func TestRunner_ValidatesTask(t *testing.T) {
	r := NewRunner(t.TempDir(), &memOutputs{})
	if _, err := r.Run(context.Background(), nil, RunOptions{}); err == nil {
		t.Fatalf("expected error for nil task")
	}
	if _, err := r.Run(context.Background(), &Task{}, RunOptions{}); err == nil {
		t.Fatalf("expected error for unnamed task")
	}
}
