package core

import "context"

// Task is a declarative definition of one asset transformation.
//
// Inputs are glob patterns relative to the source root. A pattern prefixed
// with "!" excludes matching files from the set. Patterns support "*", "?",
// character classes, "{a,b}" alternation and "**" for any number of
// directories.
type Task struct {
	// Name is the logical identifier of the task inside a pipeline.
	Name string `json:"name" yaml:"name"`

	// Inputs selects the source files handed to the processor.
	Inputs []string `json:"inputs,omitempty" yaml:"inputs,omitempty"`

	// Base, when set, is the source-relative directory that output paths are
	// computed against. When empty each file keeps its path relative to the
	// static prefix of the pattern that matched it.
	Base string `json:"base,omitempty" yaml:"base,omitempty"`

	// Output is the directory, relative to the output root, the processor
	// writes into. Empty means the output root itself.
	Output string `json:"output,omitempty" yaml:"output,omitempty"`

	// Processor performs the transformation. It never sees the source or
	// output roots directly.
	Processor Processor `json:"-" yaml:"-"`

	// Aggregate marks processors that combine all inputs into one document.
	// They are always re-run against the full input set.
	Aggregate bool `json:"aggregate,omitempty" yaml:"aggregate,omitempty"`

	// Isolated marks tasks whose failures are logged instead of propagated
	// when the runner runs in isolating mode (the long-running dev loop).
	Isolated bool `json:"isolated,omitempty" yaml:"isolated,omitempty"`

	// Stream marks tasks whose written files are pushed to connected
	// browsers without a full page reload.
	Stream bool `json:"stream,omitempty" yaml:"stream,omitempty"`
}

// Kind returns the processor kind, or "noop" for tasks without a processor.
func (t Task) Kind() string {
	if t.Processor == nil {
		return "noop"
	}
	return t.Processor.Kind()
}

// Processor transforms a resolved input set into output files.
type Processor interface {
	// Kind is a stable identifier used in plans, traces and task identity.
	Kind() string

	// Process writes every derived file through out. It must return an error
	// instead of writing partial results for an input it cannot handle.
	Process(ctx context.Context, in *InputSet, out OutputWriter) error
}

// ProcessorFunc adapts a function to the Processor interface.
type ProcessorFunc struct {
	Name string
	Fn   func(ctx context.Context, in *InputSet, out OutputWriter) error
}

// Kind implements Processor.
func (p ProcessorFunc) Kind() string { return p.Name }

// Process implements Processor.
func (p ProcessorFunc) Process(ctx context.Context, in *InputSet, out OutputWriter) error {
	if p.Fn == nil {
		return nil
	}
	return p.Fn(ctx, in, out)
}

// OutputWriter writes files below a task's output directory.
type OutputWriter interface {
	// WriteFile atomically writes data to rel, a slash-separated path
	// relative to the task's output directory.
	WriteFile(rel string, data []byte) error
}

// OutputRemover is implemented by writers that can delete an earlier
// output. Removing a path that does not exist is not an error.
type OutputRemover interface {
	RemoveFile(rel string) error
}

// Deriver is implemented by per-file processors that can name the outputs
// a single input produces, so they can be removed once the input is gone.
// rel is base-relative, like Input.Rel; results are relative to the task's
// output directory.
type Deriver interface {
	Derived(rel string) []string
}

// OutputFactory hands out writers scoped to one task and one directory.
type OutputFactory interface {
	Writer(task, dir string) OutputWriter
}

// Notifier receives the output-relative paths written by streaming tasks.
type Notifier interface {
	Inject(paths []string)
}
