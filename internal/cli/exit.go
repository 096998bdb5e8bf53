package cli

import (
	"context"
	"errors"
	"fmt"

	"assetweaver/internal/config"
	"assetweaver/internal/dag"
)

// Process exit codes.
const (
	ExitSuccess           = 0
	ExitTaskFailure       = 1
	ExitInvalidInvocation = 2
	ExitConfigError       = 3
	ExitInternalError     = 4
)

// InvocationError reports unusable command-line input.
type InvocationError struct {
	ExitCode int
	Message  string
}

func (e *InvocationError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

func invalidInvocationf(format string, args ...any) error {
	return &InvocationError{ExitCode: ExitInvalidInvocation, Message: fmt.Sprintf(format, args...)}
}

// ExitCode maps an error returned by a command to a process exit code.
// Unknown errors are internal errors.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var invErr *InvocationError
	if errors.As(err, &invErr) && invErr != nil {
		if invErr.ExitCode != 0 {
			return invErr.ExitCode
		}
		return ExitInvalidInvocation
	}
	var cfgErr *config.Error
	if errors.As(err, &cfgErr) {
		return ExitConfigError
	}
	var taskErr *dag.TaskError
	if errors.As(err, &taskErr) {
		return ExitTaskFailure
	}
	// An interrupted build did not produce a complete tree.
	if errors.Is(err, context.Canceled) {
		return ExitTaskFailure
	}
	return ExitInternalError
}
