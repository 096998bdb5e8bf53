// Package watch re-runs build tasks when their source files change.
//
// Each Binding maps source patterns to the tasks they feed. A change to a
// matching file is debounced per path and then dispatched: the bound tasks
// run for that file (aggregate tasks run in full), and the binding's
// follow-up is applied once they succeed.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/errgroup"

	"assetweaver/internal/core"
)

// FollowUp is what happens after a binding's tasks succeed.
type FollowUp string

const (
	// FollowUpNone relies on the task itself (e.g. streamed CSS).
	FollowUpNone FollowUp = "none"

	// FollowUpReload asks every browser to reload.
	FollowUpReload FollowUp = "reload"
)

// Binding ties source patterns to the tasks they trigger.
type Binding struct {
	Name     string      `yaml:"name"`
	Patterns []string    `yaml:"patterns"`
	Tasks    []core.Task `yaml:"tasks"`
	FollowUp FollowUp    `yaml:"follow_up"`

	sel *core.Selector
}

// Reloader receives full-page reload requests.
type Reloader interface {
	Reload()
}

// Watcher observes the source tree and dispatches bindings.
type Watcher struct {
	// SourceDir is the absolute source root.
	SourceDir string

	Bindings []*Binding

	// Runner runs bound tasks. Its Isolate flag decides whether isolated
	// task failures are swallowed.
	Runner *core.Runner

	// Reloader is optional.
	Reloader Reloader

	// Debounce is the per-path quiet period before dispatch.
	Debounce time.Duration

	// RetryAttempts bounds retries of transient filesystem failures.
	RetryAttempts int

	Logger *slog.Logger

	// runs tracks in-flight dispatches so Run can wait for them.
	runs sync.WaitGroup
}

// New returns a watcher with compiled bindings.
func New(sourceDir string, runner *core.Runner, bindings ...*Binding) (*Watcher, error) {
	if runner == nil {
		return nil, errors.New("nil runner")
	}
	for _, b := range bindings {
		if err := b.compile(); err != nil {
			return nil, err
		}
	}
	return &Watcher{
		SourceDir:     sourceDir,
		Bindings:      bindings,
		Runner:        runner,
		Debounce:      100 * time.Millisecond,
		RetryAttempts: 3,
	}, nil
}

func (b *Binding) compile() error {
	if b.sel != nil {
		return nil
	}
	if b.Name == "" {
		return errors.New("binding name is required")
	}
	if len(b.Tasks) == 0 {
		return fmt.Errorf("binding %q has no tasks", b.Name)
	}
	sel, err := core.CompileSelector(b.Patterns)
	if err != nil {
		return fmt.Errorf("binding %q: %w", b.Name, err)
	}
	b.sel = sel
	return nil
}

// Matches reports whether the source-relative path rel triggers b.
func (b *Binding) Matches(rel string) bool {
	if b.compile() != nil {
		return false
	}
	return b.sel.Match(rel)
}

func (w *Watcher) logger() *slog.Logger {
	if w.Logger != nil {
		return w.Logger
	}
	return slog.Default()
}

// Run watches until ctx is cancelled, then waits for in-flight runs and
// returns nil. Failed runs are logged; they never stop the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := newFSWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer fw.close()

	if err := w.register(fw); err != nil {
		return err
	}
	w.logger().Info("watching for changes", "bindings", len(w.Bindings), "dirs", fw.watched())

	deb := newDebouncer(w.Debounce, func(key string) {
		name, rel, _ := strings.Cut(key, "\x00")
		b := w.binding(name)
		if b == nil {
			return
		}
		w.runs.Add(1)
		go func() {
			defer w.runs.Done()
			_ = w.Dispatch(ctx, b, rel)
		}()
	})
	defer w.runs.Wait()
	defer deb.stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.w.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Create) {
				fw.created(ev.Name)
			}
			if ev.Op == fsnotify.Chmod {
				continue
			}
			rel, ok := w.relative(ev.Name)
			if !ok {
				continue
			}
			for _, b := range w.Bindings {
				if b.Matches(rel) {
					deb.trigger(b.Name + "\x00" + rel)
				}
			}
		case err, ok := <-fw.w.Errors:
			if !ok {
				return nil
			}
			w.logger().Warn("watch error", "error", err)
		}
	}
}

func (w *Watcher) register(fw *fsWatcher) error {
	for _, b := range w.Bindings {
		if err := b.compile(); err != nil {
			return err
		}
		for _, prefix := range b.sel.Prefixes() {
			dir := filepath.Join(w.SourceDir, filepath.FromSlash(prefix))
			var err error
			if prefix == "" {
				err = fw.watch(dir)
			} else {
				err = fw.watchRecursive(dir)
			}
			if err != nil {
				return fmt.Errorf("watching %s: %w", dir, err)
			}
		}
	}
	return nil
}

func (w *Watcher) binding(name string) *Binding {
	for _, b := range w.Bindings {
		if b.Name == name {
			return b
		}
	}
	return nil
}

// relative converts an event path to a source-relative slash path.
func (w *Watcher) relative(p string) (string, bool) {
	if ignored(filepath.Base(p)) {
		return "", false
	}
	rel, err := filepath.Rel(w.SourceDir, p)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

// Dispatch runs b's tasks for the changed file rel, then applies the
// follow-up. Tasks of one binding run concurrently; a failure is logged and
// returned, and skips the follow-up.
func (w *Watcher) Dispatch(ctx context.Context, b *Binding, rel string) error {
	log := w.logger().With("binding", b.Name, "file", rel)
	log.Info("change detected")
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	for i := range b.Tasks {
		task := b.Tasks[i]
		g.Go(func() error {
			return w.runWithRetry(gctx, &task, rel)
		})
	}
	if err := g.Wait(); err != nil {
		if ctx.Err() == nil {
			log.Error("watch run failed", "error", err, "duration", time.Since(start))
		}
		return err
	}

	if b.FollowUp == FollowUpReload && w.Reloader != nil {
		w.Reloader.Reload()
	}
	log.Debug("watch run finished", "duration", time.Since(start))
	return nil
}

func (w *Watcher) runWithRetry(ctx context.Context, task *core.Task, rel string) error {
	attempts := w.RetryAttempts
	if attempts < 0 {
		attempts = 0
	}
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 50 * time.Millisecond
	policy.MaxInterval = time.Second

	op := func() error {
		_, err := w.Runner.Run(ctx, task, core.RunOptions{Only: []string{rel}})
		if err == nil {
			return nil
		}
		if errors.Is(err, fs.ErrNotExist) && ctx.Err() == nil {
			w.logger().Debug("transient failure, retrying", "task", task.Name, "error", err)
			return err
		}
		return backoff.Permanent(err)
	}
	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(policy, uint64(attempts)), ctx))
}
