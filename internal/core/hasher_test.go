package core

import (
	"os"
	"path/filepath"
	"testing"
)

func TestHashTree_IdenticalTreesProduceSameHash(t *testing.T) {
	a, b := t.TempDir(), t.TempDir()
	files := map[string]string{"css/style.min.css": "body{}", "index.html": "<p>x</p>"}
	writeTree(t, a, files)
	writeTree(t, b, files)

	ha, err := HashTree(a)
	if err != nil {
		t.Fatalf("HashTree failed: %v", err)
	}
	hb, err := HashTree(b)
	if err != nil {
		t.Fatalf("HashTree failed: %v", err)
	}
	if ha != hb {
		t.Fatalf("hash mismatch: %s vs %s", ha, hb)
	}
	if len(ha.String()) != 64 {
		t.Fatalf("expected sha256 hex, got %q", ha)
	}
}

func TestHashTree_ContentChangeChangesHash(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{"index.html": "one"})
	before, _ := HashTree(dir)

	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("two"), 0o644); err != nil {
		t.Fatal(err)
	}
	after, _ := HashTree(dir)
	if before == after {
		t.Fatalf("expected hash to change")
	}
}

func TestComputeTreeHash_PathsAreUnambiguous(t *testing.T) {
	h1 := ComputeTreeHash(&ArtifactSet{Artifacts: []Artifact{{Path: "ab", Content: []byte("c")}}})
	h2 := ComputeTreeHash(&ArtifactSet{Artifacts: []Artifact{{Path: "a", Content: []byte("bc")}}})
	if h1 == h2 {
		t.Fatalf("length prefixing must separate path and content")
	}
	if ComputeTreeHash(nil) != ComputeTreeHash(&ArtifactSet{}) {
		t.Fatalf("nil and empty sets must hash identically")
	}
}
