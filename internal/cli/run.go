package cli

import (
	"context"
	"fmt"
	"io"
)

// Run executes the command line args (without argv[0]) and returns the
// process exit code. Errors are printed to stderr.
func Run(ctx context.Context, args []string, stdout, stderr io.Writer) (code int) {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(stderr, "assetweaver: panic: %v\n", r)
			code = ExitInternalError
		}
	}()

	cmd := NewRootCommand(stdout, stderr)
	cmd.SetArgs(args)
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "assetweaver: %v\n", err)
		return ExitCode(err)
	}
	return ExitSuccess
}
