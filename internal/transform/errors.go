// Package transform provides the processors behind the build's file
// transform tasks. Each processor is a pure function of its input set: it
// reads file contents handed to it and writes derived files through the
// task's output writer.
package transform

import (
	"errors"
	"fmt"
)

// ErrProcessor is matched by every ProcessError.
var ErrProcessor = errors.New("processor failed")

// ProcessError reports a processor failure for one input file.
type ProcessError struct {
	// Processor is the processor kind, e.g. "styles".
	Processor string

	// Path is the source-relative file that failed, if known.
	Path string

	// Line and Column locate the failure inside Path when the underlying
	// tool reports them (1-based; zero when unknown).
	Line   int
	Column int

	Err error
}

func (e *ProcessError) Error() string {
	loc := e.Path
	if loc != "" && e.Line > 0 {
		loc = fmt.Sprintf("%s:%d:%d", loc, e.Line, e.Column)
	}
	if loc == "" {
		return fmt.Sprintf("%s: %v", e.Processor, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Processor, loc, e.Err)
}

func (e *ProcessError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrProcessor) hold for every ProcessError.
func (e *ProcessError) Is(target error) bool { return target == ErrProcessor }

func processErr(kind, path string, err error) error {
	return &ProcessError{Processor: kind, Path: path, Err: err}
}
