// Package outtree owns the build's output directory: cleaning it, and
// writing task results into it with per-run ownership tracking.
package outtree

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"assetweaver/internal/core"
)

var (
	// ErrOutputConflict is returned when two tasks that are not ordered by
	// the graph write the same output path in one run.
	ErrOutputConflict = errors.New("output conflict")

	// ErrUnsafeClean is returned when the output root is the filesystem
	// root or contains the source root.
	ErrUnsafeClean = errors.New("refusing to clean output root")
)

// Tree is the output directory of a build.
type Tree struct {
	// Root is the absolute output directory.
	Root string

	// SourceRoot is the absolute source directory Clean must never touch.
	SourceRoot string

	Logger *slog.Logger
}

// New returns a Tree for root, guarding sourceRoot.
func New(root, sourceRoot string) (*Tree, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("output root is required")
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving output root: %w", err)
	}
	t := &Tree{Root: absRoot}
	if sourceRoot != "" {
		absSource, err := filepath.Abs(sourceRoot)
		if err != nil {
			return nil, fmt.Errorf("resolving source root: %w", err)
		}
		t.SourceRoot = absSource
	}
	return t, nil
}

func (t *Tree) logger() *slog.Logger {
	if t.Logger != nil {
		return t.Logger
	}
	return slog.Default()
}

// Clean recursively deletes the output tree. An absent tree is a no-op.
func (t *Tree) Clean() error {
	if err := t.checkCleanable(); err != nil {
		return err
	}
	if _, err := os.Lstat(t.Root); errors.Is(err, os.ErrNotExist) {
		t.logger().Debug("output tree absent, nothing to clean", "root", t.Root)
		return nil
	}
	if err := os.RemoveAll(t.Root); err != nil {
		return fmt.Errorf("cleaning output tree: %w", err)
	}
	t.logger().Info("output tree cleaned", "root", t.Root)
	return nil
}

func (t *Tree) checkCleanable() error {
	root := filepath.Clean(t.Root)
	if filepath.Dir(root) == root {
		return fmt.Errorf("%w: %s is a filesystem root", ErrUnsafeClean, root)
	}
	if t.SourceRoot == "" {
		return nil
	}
	rel, err := filepath.Rel(root, filepath.Clean(t.SourceRoot))
	if err != nil {
		return nil
	}
	if rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))) {
		return fmt.Errorf("%w: %s contains the source root %s", ErrUnsafeClean, root, t.SourceRoot)
	}
	return nil
}

// OrderFunc reports whether two tasks are sequenced relative to each other.
type OrderFunc func(a, b string) bool

// Session tracks which task wrote each output path during one run.
//
// A path may be rewritten by a task that is ordered after its previous
// writer; a write by an unordered task fails with ErrOutputConflict.
type Session struct {
	tree    *Tree
	ordered OrderFunc

	mu     sync.Mutex
	owners map[string]string
}

// NewSession starts a run. A nil ordered treats every pair of distinct tasks
// as unordered.
func (t *Tree) NewSession(ordered OrderFunc) *Session {
	return &Session{tree: t, ordered: ordered, owners: make(map[string]string)}
}

// Writer implements core.OutputFactory.
func (s *Session) Writer(task, dir string) core.OutputWriter {
	return &taskWriter{session: s, task: task, dir: dir}
}

// Owner returns the task that last wrote rel (slash-separated, relative to
// the output root).
func (s *Session) Owner(rel string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	owner, ok := s.owners[rel]
	return owner, ok
}

// Paths returns every path written during the session, sorted.
func (s *Session) Paths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.owners))
	for p := range s.owners {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func (s *Session) claim(task, rel string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.owners[rel]; ok && prev != task {
		if s.ordered == nil || !s.ordered(prev, task) {
			return fmt.Errorf("%w: %s written by both %q and %q", ErrOutputConflict, rel, prev, task)
		}
	}
	s.owners[rel] = task
	return nil
}

func (s *Session) release(rel string) {
	s.mu.Lock()
	delete(s.owners, rel)
	s.mu.Unlock()
}

type taskWriter struct {
	session *Session
	task    string
	dir     string
}

func (w *taskWriter) WriteFile(rel string, data []byte) error {
	target, err := outputPath(w.dir, rel)
	if err != nil {
		return err
	}
	if err := w.session.claim(w.task, target); err != nil {
		return err
	}
	full := filepath.Join(w.session.tree.Root, filepath.FromSlash(target))
	if err := WriteFileAtomic(full, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", target, err)
	}
	return nil
}

// RemoveFile deletes an earlier output and forgets its owner.
func (w *taskWriter) RemoveFile(rel string) error {
	target, err := outputPath(w.dir, rel)
	if err != nil {
		return err
	}
	w.session.release(target)
	full := filepath.Join(w.session.tree.Root, filepath.FromSlash(target))
	if err := os.Remove(full); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing %s: %w", target, err)
	}
	w.session.tree.logger().Debug("output removed", "task", w.task, "path", target)
	return nil
}

// outputPath joins dir and rel and rejects results outside the output root.
func outputPath(dir, rel string) (string, error) {
	if rel == "" || path.IsAbs(rel) {
		return "", fmt.Errorf("invalid output path %q", rel)
	}
	p := path.Join(dir, rel)
	if p == "." || p == ".." || strings.HasPrefix(p, "../") {
		return "", fmt.Errorf("output path %q escapes the output root", path.Join(dir, rel))
	}
	return p, nil
}
