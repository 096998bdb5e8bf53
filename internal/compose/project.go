package compose

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"assetweaver/internal/config"
	"assetweaver/internal/core"
	"assetweaver/internal/dag"
	"assetweaver/internal/devserver"
	"assetweaver/internal/outtree"
	"assetweaver/internal/watch"
)

// Built-in pipeline names.
const (
	BuildPipeline   = "build"
	DefaultPipeline = "default"
)

// ErrUnknownPipeline is returned by Project.Pipeline for an unknown name.
var ErrUnknownPipeline = errors.New("unknown pipeline")

// Project wires a configuration to the output tree, the dev server and the
// task catalog, and runs pipelines over them.
type Project struct {
	Config  *config.Config
	Catalog *Catalog
	Tree    *outtree.Tree
	Server  *devserver.Server

	// Concurrency bounds parallel groups; zero means runtime.NumCPU().
	Concurrency int

	Logger *slog.Logger

	mu     sync.Mutex
	runner *core.Runner
}

// NewProject validates cfg and builds the catalog.
func NewProject(cfg *config.Config, logger *slog.Logger) (*Project, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	catalog, err := NewCatalog(cfg)
	if err != nil {
		return nil, &config.Error{Err: err}
	}
	tree, err := outtree.New(cfg.OutputDir(), cfg.SourceDir())
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	tree.Logger = logger

	srv := devserver.New(tree.Root, cfg.Server.Addr)
	srv.CORS = cfg.Server.CORS
	srv.Logger = logger
	srv.Hub.Logger = logger

	return &Project{
		Config:      cfg,
		Catalog:     catalog,
		Tree:        tree,
		Server:      srv,
		Concurrency: cfg.Concurrency,
		Logger:      logger,
	}, nil
}

// CleanTask removes the output tree.
func (p *Project) CleanTask() core.Task {
	return core.Task{
		Name: "clean",
		Processor: core.ProcessorFunc{Name: "clean", Fn: func(context.Context, *core.InputSet, core.OutputWriter) error {
			return p.Tree.Clean()
		}},
	}
}

// ServerTask starts the dev server. It finishes once the listener is bound;
// the server stops with the pipeline's context.
func (p *Project) ServerTask() core.Task {
	return core.Task{
		Name: "server",
		Processor: core.ProcessorFunc{Name: "serve", Fn: func(ctx context.Context, _ *core.InputSet, _ core.OutputWriter) error {
			return p.Server.Start(ctx)
		}},
	}
}

// WatcherTask watches the source tree until the pipeline's context is
// cancelled, re-running tasks through the pipeline's runner.
func (p *Project) WatcherTask() core.Task {
	return core.Task{
		Name: "watcher",
		Processor: core.ProcessorFunc{Name: "watch", Fn: func(ctx context.Context, _ *core.InputSet, _ core.OutputWriter) error {
			runner := p.activeRunner()
			if runner == nil {
				return errors.New("watcher started outside a pipeline run")
			}
			w, err := watch.New(p.Config.SourceDir(), runner, p.Catalog.Bindings(p.Catalog.CopyImages)...)
			if err != nil {
				return err
			}
			w.Reloader = p.Server.Hub
			w.Debounce = p.Config.Watch.Debounce.Duration
			w.RetryAttempts = p.Config.Watch.RetryAttempts
			w.Logger = p.Logger
			return w.Run(ctx)
		}},
	}
}

// Build is the production pipeline.
func (p *Project) Build() Pipeline {
	c := p.Catalog
	return Pipeline{
		Name: BuildPipeline,
		Root: Series(
			Task(p.CleanTask()),
			Task(c.Copy),
			Task(c.OptimizeImages),
			Parallel(p.assets()...),
		),
	}
}

// Default is the dev loop: build with plain image copies, then serve and
// watch. Isolated task failures are logged instead of failing the run.
func (p *Project) Default() Pipeline {
	c := p.Catalog
	return Pipeline{
		Name: DefaultPipeline,
		Root: Series(
			Task(p.CleanTask()),
			Task(c.Copy),
			Task(c.CopyImages),
			Parallel(p.assets()...),
			Series(Task(p.ServerTask()), Task(p.WatcherTask())),
		),
		Isolate: true,
	}
}

func (p *Project) assets() []Step {
	c := p.Catalog
	return []Step{
		Task(c.Styles),
		Task(c.HTML),
		Task(c.Scripts),
		Task(c.MakeSvgo),
		Task(c.MakeStackLogo),
		Task(c.MakeSprite),
		Task(c.MakeStack),
		Task(c.CreateWebpIndex),
	}
}

// Pipeline returns the built-in pipeline called name.
func (p *Project) Pipeline(name string) (Pipeline, error) {
	switch name {
	case BuildPipeline:
		return p.Build(), nil
	case DefaultPipeline, "":
		return p.Default(), nil
	default:
		return Pipeline{}, fmt.Errorf("%w %q", ErrUnknownPipeline, name)
	}
}

// Run compiles pl and executes it. The returned error reports graph or
// executor failures (including cancellation); task failures are reported in
// the result.
func (p *Project) Run(ctx context.Context, pl Pipeline) (*dag.GraphResult, error) {
	g, err := pl.Compile()
	if err != nil {
		return nil, fmt.Errorf("compiling pipeline %q: %w", pl.Name, err)
	}

	runner := core.NewRunner(p.Config.SourceDir(), p.Tree.NewSession(g.Ordered))
	runner.Isolate = pl.Isolate
	runner.Logger = p.Logger
	if pl.Isolate {
		runner.Notifier = p.Server.Hub
	}
	p.setRunner(runner)
	defer p.setRunner(nil)

	cr, err := dag.NewCoreRunner(runner, core.RunOptions{})
	if err != nil {
		return nil, err
	}
	exec, err := dag.NewExecutor(g, cr)
	if err != nil {
		return nil, err
	}
	exec.Logger = p.Logger

	concurrency := p.Concurrency
	if concurrency <= 0 {
		concurrency = runtime.NumCPU()
	}

	p.Logger.Info("pipeline started", "pipeline", pl.Name, "tasks", len(g.Nodes()), "graph", g.Hash().String(), "concurrency", concurrency)
	var res *dag.GraphResult
	if concurrency == 1 {
		res, err = exec.RunSerial(ctx)
	} else {
		res, err = exec.RunParallel(ctx, concurrency)
	}
	if err != nil {
		return nil, err
	}

	res.OutputHash, err = core.HashTree(p.Tree.Root)
	if err != nil {
		return nil, fmt.Errorf("hashing output tree: %w", err)
	}
	if failed := res.Failed(); len(failed) > 0 {
		p.Logger.Error("pipeline failed", "pipeline", pl.Name, "failed", failed, "skipped", res.Skipped(), "output", res.OutputHash.String())
	} else {
		p.Logger.Info("pipeline finished", "pipeline", pl.Name, "output", res.OutputHash.String())
	}
	return res, nil
}

func (p *Project) setRunner(r *core.Runner) {
	p.mu.Lock()
	p.runner = r
	p.mu.Unlock()
}

func (p *Project) activeRunner() *core.Runner {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.runner
}
