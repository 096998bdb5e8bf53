package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"syscall"
)

// Command is an external processor invocation.
type Command struct {
	// Args is the argv of the process; Args[0] is looked up in the declared PATH.
	Args []string

	// Stdin is written to the process's standard input.
	Stdin []byte

	// Env holds the only environment variables visible to the process.
	Env map[string]string
}

// ExecutionResult contains the results of an external command.
type ExecutionResult struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// Executor runs external processors (e.g. a LESS compiler) in a controlled
// environment.
//
// Environment isolation: the environment starts empty and only variables in
// Command.Env and Executor.Env are added.
type Executor struct {
	// WorkingDir is the directory commands run in.
	WorkingDir string

	// Env is merged under every Command.Env.
	Env map[string]string
}

// NewExecutor creates a new Executor with the given working directory.
func NewExecutor(workingDir string) *Executor {
	return &Executor{WorkingDir: workingDir}
}

// Execute runs cmd and waits for it to finish or for ctx to be cancelled.
//
// A non-zero exit status is reported through ExecutionResult.ExitCode, not
// as an error; an error means the process could not be run at all.
func (e *Executor) Execute(ctx context.Context, cmd Command) (*ExecutionResult, error) {
	if len(cmd.Args) == 0 {
		return nil, fmt.Errorf("command is empty")
	}

	env := make(map[string]string, len(e.Env)+len(cmd.Env))
	for k, v := range e.Env {
		env[k] = v
	}
	for k, v := range cmd.Env {
		env[k] = v
	}

	name := cmd.Args[0]
	if p, ok := env["PATH"]; ok {
		if resolved, err := lookPath(name, p); err == nil {
			name = resolved
		}
	}

	proc := exec.Command(name, cmd.Args[1:]...)
	proc.Dir = e.WorkingDir
	proc.Env = buildIsolatedEnv(env)
	// Own process group so cancellation kills the whole tree.
	proc.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if cmd.Stdin != nil {
		proc.Stdin = bytes.NewReader(cmd.Stdin)
	}

	var stdout, stderr bytes.Buffer
	proc.Stdout = &stdout
	proc.Stderr = &stderr

	if err := proc.Start(); err != nil {
		return nil, fmt.Errorf("failed to start command: %w", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- proc.Wait()
	}()

	var err error
	select {
	case <-ctx.Done():
		if proc.Process != nil {
			_ = syscall.Kill(-proc.Process.Pid, syscall.SIGKILL)
		}
		<-done
		return nil, fmt.Errorf("execution cancelled: %w", ctx.Err())
	case err = <-done:
	}

	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("failed to execute command: %w", err)
		}
		exitCode = exitErr.ExitCode()
	}

	return &ExecutionResult{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		ExitCode: exitCode,
	}, nil
}

// buildIsolatedEnv constructs the process environment from the allowlist,
// sorted by key.
func buildIsolatedEnv(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	result := make([]string, 0, len(keys))
	for _, k := range keys {
		result = append(result, k+"="+env[k])
	}
	return result
}
