package dag

import (
	"context"
	"fmt"

	"assetweaver/internal/core"
)

// CoreRunner adapts core.Runner to the DAG TaskRunner interface.
type CoreRunner struct {
	runner *core.Runner
	opts   core.RunOptions
}

// NewCoreRunner wraps r. Every task of the graph runs with opts.
func NewCoreRunner(r *core.Runner, opts core.RunOptions) (*CoreRunner, error) {
	if r == nil {
		return nil, fmt.Errorf("nil core runner")
	}
	return &CoreRunner{runner: r, opts: opts}, nil
}

// Run implements TaskRunner.
func (c *CoreRunner) Run(ctx context.Context, task core.Task) (*NodeResult, error) {
	res, err := c.runner.Run(ctx, &task, c.opts)
	if err != nil {
		return nil, err
	}
	return &NodeResult{
		Written:   res.Written,
		Recovered: res.Recovered,
		Duration:  res.Duration,
	}, nil
}
