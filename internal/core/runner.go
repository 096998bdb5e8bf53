package core

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"sync"
	"time"
)

// Runner orchestrates one task run:
//  1. Resolve inputs (all of them, or only changed files for per-file tasks)
//  2. Hand them to the task's Processor with a writer scoped to its output dir
//  3. Push written files to the Notifier for streaming tasks
//
// Isolated tasks have their failures logged and swallowed when Isolate is
// set, so a long-running dev loop survives a broken stylesheet.
type Runner struct {
	// SourceDir is the source root.
	SourceDir string

	// Resolver expands input patterns to files.
	Resolver *InputResolver

	// Outputs hands out per-task writers into the output tree.
	Outputs OutputFactory

	// Notifier receives files written by streaming tasks (optional).
	Notifier Notifier

	// Isolate enables error isolation for tasks marked Isolated.
	Isolate bool

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// NewRunner creates a Runner reading from sourceDir and writing through outputs.
func NewRunner(sourceDir string, outputs OutputFactory) *Runner {
	return &Runner{
		SourceDir: sourceDir,
		Resolver:  NewInputResolver(sourceDir),
		Outputs:   outputs,
	}
}

// RunOptions narrows a run.
type RunOptions struct {
	// Only lists changed source-relative paths. Per-file tasks process just
	// these; aggregate tasks ignore it and re-run in full. Nil means all.
	Only []string
}

// RunResult contains the result of running a task.
type RunResult struct {
	Task string

	// Inputs is the number of resolved input files.
	Inputs int

	// Written lists output-root-relative paths, sorted.
	Written []string

	// Removed lists outputs deleted because their source file is gone.
	Removed []string

	// Recovered is the isolated failure that was logged instead of returned.
	Recovered error

	Duration time.Duration
}

// Run executes task once.
func (r *Runner) Run(ctx context.Context, task *Task, opts RunOptions) (*RunResult, error) {
	if err := r.validateTask(task); err != nil {
		return nil, err
	}

	start := time.Now()
	res := &RunResult{Task: task.Name}
	err := r.run(ctx, task, opts, res)
	res.Duration = time.Since(start)

	log := r.logger().With("task", task.Name)
	if err != nil {
		if task.Isolated && r.Isolate {
			log.Error("task failed, continuing", "error", err, "duration", res.Duration)
			res.Recovered = err
			return res, nil
		}
		return res, err
	}

	log.Debug("task finished", "files", res.Inputs, "written", len(res.Written), "duration", res.Duration)
	if task.Stream && r.Notifier != nil && len(res.Written) > 0 {
		r.Notifier.Inject(res.Written)
	}
	return res, nil
}

func (r *Runner) run(ctx context.Context, task *Task, opts RunOptions, res *RunResult) error {
	var (
		in  *InputSet
		err error
	)
	if opts.Only != nil && !task.Aggregate {
		in, err = r.Resolver.ResolveOnly(task.Inputs, task.Base, opts.Only)
	} else {
		in, err = r.Resolver.Resolve(task.Inputs, task.Base)
	}
	if err != nil {
		return fmt.Errorf("resolving inputs: %w", err)
	}
	res.Inputs = in.Len()

	if task.Processor == nil {
		return nil
	}
	rec := &recordingWriter{dir: task.Output}
	if r.Outputs != nil {
		rec.inner = r.Outputs.Writer(task.Name, task.Output)
	}
	if opts.Only != nil && !task.Aggregate {
		if err := r.removeDerived(task, opts.Only, rec); err != nil {
			return err
		}
		res.Removed = rec.removedPaths()
		if in.Len() == 0 {
			return nil
		}
	}

	err = task.Processor.Process(ctx, in, rec)
	res.Written = rec.paths()
	if err != nil {
		return fmt.Errorf("%s: %w", task.Processor.Kind(), err)
	}
	return nil
}

// removeDerived deletes the outputs of changed files that no longer exist.
func (r *Runner) removeDerived(task *Task, only []string, w *recordingWriter) error {
	d, ok := task.Processor.(Deriver)
	if !ok || w.inner == nil {
		return nil
	}
	gone, err := r.Resolver.Missing(task.Inputs, task.Base, only)
	if err != nil {
		return fmt.Errorf("resolving removed inputs: %w", err)
	}
	for _, rel := range gone {
		for _, out := range d.Derived(rel) {
			if err := w.RemoveFile(out); err != nil {
				return err
			}
		}
	}
	return nil
}

// validateTask ensures the task is valid before execution.
func (r *Runner) validateTask(task *Task) error {
	if task == nil {
		return fmt.Errorf("task is nil")
	}
	if task.Name == "" {
		return fmt.Errorf("task name is required")
	}
	return nil
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

// recordingWriter remembers every path written through it.
type recordingWriter struct {
	inner OutputWriter
	dir   string

	mu      sync.Mutex
	written []string
	removed []string
}

func (w *recordingWriter) WriteFile(rel string, data []byte) error {
	if w.inner == nil {
		return fmt.Errorf("task has no output directory")
	}
	if err := w.inner.WriteFile(rel, data); err != nil {
		return err
	}
	w.mu.Lock()
	w.written = append(w.written, path.Join(w.dir, rel))
	w.mu.Unlock()
	return nil
}

// RemoveFile implements OutputRemover when the inner writer does.
func (w *recordingWriter) RemoveFile(rel string) error {
	rm, ok := w.inner.(OutputRemover)
	if !ok {
		return nil
	}
	if err := rm.RemoveFile(rel); err != nil {
		return err
	}
	w.mu.Lock()
	w.removed = append(w.removed, path.Join(w.dir, rel))
	w.mu.Unlock()
	return nil
}

func (w *recordingWriter) removedPaths() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.removed) == 0 {
		return nil
	}
	out := make([]string, len(w.removed))
	copy(out, w.removed)
	sort.Strings(out)
	return out
}

func (w *recordingWriter) paths() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, len(w.written))
	copy(out, w.written)
	sort.Strings(out)
	return out
}
