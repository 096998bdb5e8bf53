package transform

import (
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"assetweaver/internal/core"
)

type memWriter struct {
	mu    sync.Mutex
	files map[string][]byte
}

func newMemWriter() *memWriter { return &memWriter{files: map[string][]byte{}} }

func (w *memWriter) WriteFile(rel string, data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.files[rel] = append([]byte(nil), data...)
	return nil
}

func (w *memWriter) names() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.files))
	for k := range w.files {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// inputs builds an in-memory input set keyed by relative path.
func inputs(files map[string]string) *core.InputSet {
	rels := make([]string, 0, len(files))
	for rel := range files {
		rels = append(rels, rel)
	}
	sort.Strings(rels)
	set := &core.InputSet{}
	for _, rel := range rels {
		set.Inputs = append(set.Inputs, core.Input{Path: "/src/" + rel, Rel: rel, Content: []byte(files[rel])})
	}
	return set
}

// diskInputs writes files under a temp dir and resolves pattern against it.
func diskInputs(t *testing.T, files map[string]string, patterns ...string) *core.InputSet {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	set, err := core.NewInputResolver(root).Resolve(patterns, "")
	require.NoError(t, err)
	return set
}
