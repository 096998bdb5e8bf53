package core

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"
)

func shellExecutor(t *testing.T) *Executor {
	t.Helper()
	e := NewExecutor(t.TempDir())
	e.Env = map[string]string{"PATH": "/usr/bin:/bin"}
	return e
}

func TestExecute_UndeclaredEnvVarsInvisible(t *testing.T) {
	t.Setenv("SECRET_HOST_VAR", "should_not_see_this")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	result, err := shellExecutor(t).Execute(ctx, Command{
		Args: []string{"sh", "-c", `echo "VAR=${SECRET_HOST_VAR:-unset}"`},
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	stdout := string(result.Stdout)
	if strings.Contains(stdout, "should_not_see_this") {
		t.Errorf("command observed undeclared host variable: %s", stdout)
	}
	if !strings.Contains(stdout, "VAR=unset") {
		t.Errorf("expected VAR=unset, got: %s", stdout)
	}
}

func TestExecute_CommandEnvOverridesExecutorEnv(t *testing.T) {
	ctx := context.Background()
	e := shellExecutor(t)
	e.Env["MODE"] = "base"

	result, err := e.Execute(ctx, Command{
		Args: []string{"sh", "-c", `echo "$MODE"`},
		Env:  map[string]string{"MODE": "override"},
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if got := strings.TrimSpace(string(result.Stdout)); got != "override" {
		t.Fatalf("got %q", got)
	}
}

func TestExecute_PipesStdin(t *testing.T) {
	result, err := shellExecutor(t).Execute(context.Background(), Command{
		Args:  []string{"cat"},
		Stdin: []byte("a{b:c}"),
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if string(result.Stdout) != "a{b:c}" {
		t.Fatalf("got %q", result.Stdout)
	}
}

func TestExecute_CapturesNonZeroExitCode(t *testing.T) {
	result, err := shellExecutor(t).Execute(context.Background(), Command{
		Args: []string{"sh", "-c", "echo broken >&2; exit 3"},
	})
	if err != nil {
		t.Fatalf("non-zero exit must not be an error: %v", err)
	}
	if result.ExitCode != 3 {
		t.Fatalf("expected exit code 3, got %d", result.ExitCode)
	}
	if strings.TrimSpace(string(result.Stderr)) != "broken" {
		t.Fatalf("stderr not captured: %q", result.Stderr)
	}
}

func TestExecute_UsesWorkingDir(t *testing.T) {
	e := shellExecutor(t)
	result, err := e.Execute(context.Background(), Command{Args: []string{"pwd"}})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	got := strings.TrimSpace(string(result.Stdout))
	want, _ := os.Stat(e.WorkingDir)
	have, _ := os.Stat(got)
	if want == nil || have == nil || !os.SameFile(want, have) {
		t.Fatalf("expected working dir %q, got %q", e.WorkingDir, got)
	}
}

func TestExecute_EmptyCommandFails(t *testing.T) {
	if _, err := shellExecutor(t).Execute(context.Background(), Command{}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestExecute_MissingBinaryFails(t *testing.T) {
	_, err := shellExecutor(t).Execute(context.Background(), Command{Args: []string{"/nonexistent/lessc"}})
	if err == nil {
		t.Fatalf("expected start error")
	}
}

func TestExecute_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := shellExecutor(t).Execute(ctx, Command{Args: []string{"sleep", "10"}})
	if err == nil {
		t.Fatalf("expected cancellation error")
	}
	if time.Since(start) > 5*time.Second {
		t.Fatalf("cancellation did not kill the process promptly")
	}
}

func TestBuildIsolatedEnv_SortedAndFormatted(t *testing.T) {
	got := buildIsolatedEnv(map[string]string{"B": "2", "A": "1"})
	if len(got) != 2 || got[0] != "A=1" || got[1] != "B=2" {
		t.Fatalf("got %v", got)
	}
	if got := buildIsolatedEnv(nil); got == nil || len(got) != 0 {
		t.Fatalf("nil env must produce an empty, non-nil environment")
	}
}
