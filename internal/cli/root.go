// Package cli implements the assetweaver command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"assetweaver/internal/compose"
	"assetweaver/internal/config"
	"assetweaver/internal/trace"
)

// options holds the global flags.
type options struct {
	configPath  string
	source      string
	output      string
	addr        string
	concurrency int
	logLevel    string
	logFormat   string
	tracePath   string

	stdout io.Writer
	stderr io.Writer
}

// NewRootCommand returns the command tree. Running it without a subcommand
// runs the default pipeline until ctx is cancelled.
func NewRootCommand(stdout, stderr io.Writer) *cobra.Command {
	opts := &options{stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:           "assetweaver",
		Short:         "Build, serve and watch a static site's assets",
		Args:          noArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.runPipeline(cmd.Context(), compose.DefaultPipeline)
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return invalidInvocationf("%v", err)
	})

	f := root.PersistentFlags()
	f.StringVar(&opts.configPath, "config", "", "TOML config file (default "+config.DefaultFile+" if present)")
	f.StringVar(&opts.source, "source", "", "source directory (overrides paths.source)")
	f.StringVar(&opts.output, "output", "", "output directory (overrides paths.output)")
	f.StringVar(&opts.addr, "addr", "", "dev server listen address (overrides server.addr)")
	f.IntVar(&opts.concurrency, "concurrency", 0, "parallel tasks per stage (default NumCPU)")
	f.StringVar(&opts.logLevel, "log-level", "info", "debug|info|warn|error")
	f.StringVar(&opts.logFormat, "log-format", "text", "text|json")
	f.StringVar(&opts.tracePath, "trace", "", "write the canonical execution trace to this file")

	root.AddCommand(
		&cobra.Command{
			Use:   "build",
			Short: "Clean the output tree and run the production pipeline",
			Args:  noArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return opts.runPipeline(cmd.Context(), compose.BuildPipeline)
			},
		},
		&cobra.Command{
			Use:   "plan [build|default]",
			Short: "Print a pipeline's compiled task graph as YAML",
			Args: func(_ *cobra.Command, args []string) error {
				if len(args) > 1 {
					return invalidInvocationf("plan takes at most one pipeline name, got %d", len(args))
				}
				return nil
			},
			RunE: func(_ *cobra.Command, args []string) error {
				name := compose.DefaultPipeline
				if len(args) == 1 {
					name = args[0]
				}
				return opts.plan(name)
			},
		},
		&cobra.Command{
			Use:   "clean",
			Short: "Remove the output tree",
			Args:  noArgs,
			RunE: func(_ *cobra.Command, _ []string) error {
				p, _, err := opts.project()
				if err != nil {
					return err
				}
				return p.Tree.Clean()
			},
		},
	)
	return root
}

func noArgs(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		return invalidInvocationf("%s: unexpected arguments: %q", cmd.CommandPath(), args)
	}
	return nil
}

// loadConfig reads --config, or DefaultFile from the working directory when
// present, and applies flag overrides. Flag paths are relative to the
// working directory.
func (o *options) loadConfig() (*config.Config, error) {
	path := o.configPath
	if path == "" {
		if _, err := os.Stat(config.DefaultFile); err == nil {
			path = config.DefaultFile
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if o.source != "" {
		abs, err := filepath.Abs(o.source)
		if err != nil {
			return nil, invalidInvocationf("--source: %v", err)
		}
		cfg.Paths.Source = abs
	}
	if o.output != "" {
		abs, err := filepath.Abs(o.output)
		if err != nil {
			return nil, invalidInvocationf("--output: %v", err)
		}
		cfg.Paths.Output = abs
	}
	if o.addr != "" {
		cfg.Server.Addr = o.addr
	}
	if o.concurrency < 0 {
		return nil, invalidInvocationf("--concurrency must not be negative")
	}
	if o.concurrency > 0 {
		cfg.Concurrency = o.concurrency
	}
	return cfg, nil
}

func (o *options) project() (*compose.Project, *slog.Logger, error) {
	logger, err := newLogger(o.stderr, o.logLevel, o.logFormat)
	if err != nil {
		return nil, nil, err
	}
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	logger = logger.With("run", uuid.NewString())
	p, err := compose.NewProject(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return p, logger, nil
}

func (o *options) plan(name string) error {
	p, _, err := o.project()
	if err != nil {
		return err
	}
	plan, err := p.Plan(name)
	if errors.Is(err, compose.ErrUnknownPipeline) {
		return invalidInvocationf("%v (expected build|default)", err)
	}
	if err != nil {
		return err
	}
	return plan.WriteYAML(o.stdout)
}

func (o *options) runPipeline(ctx context.Context, name string) error {
	p, logger, err := o.project()
	if err != nil {
		return err
	}
	pl, err := p.Pipeline(name)
	if err != nil {
		return err
	}

	res, err := p.Run(ctx, pl)
	if name == compose.DefaultPipeline && ctx.Err() != nil {
		// The dev loop ends on a signal; let the server drain first.
		if done := p.Server.Done(); done != nil {
			<-done
		}
		if err == nil || errors.Is(err, context.Canceled) {
			logger.Info("stopped")
			return nil
		}
	}
	if err != nil {
		return err
	}

	if o.tracePath != "" {
		g, cerr := pl.Compile()
		if cerr != nil {
			return cerr
		}
		if err := trace.FromResult(pl.Name, g, res).WriteFile(o.tracePath); err != nil {
			return err
		}
	}
	if err := res.Err(); err != nil {
		return fmt.Errorf("pipeline %s failed: %w", pl.Name, err)
	}
	return nil
}
