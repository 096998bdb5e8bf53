package core

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// Harvester collects the files of an output tree.
//
// Only the requested paths are collected; a directory is collected
// recursively. Paths are sorted so two harvests of identical trees are
// identical.
type Harvester struct {
	// BaseDir is the output root harvested paths are relative to.
	BaseDir string
}

// NewHarvester creates a new Harvester with the given base directory.
func NewHarvester(baseDir string) *Harvester {
	return &Harvester{BaseDir: baseDir}
}

// HarvestAll collects every file below BaseDir. A missing BaseDir yields an
// empty set.
func (h *Harvester) HarvestAll() (*ArtifactSet, error) {
	if _, err := os.Stat(h.BaseDir); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &ArtifactSet{Artifacts: []Artifact{}}, nil
		}
		return nil, fmt.Errorf("stat output root: %w", err)
	}
	return h.Harvest([]string{"."})
}

// Harvest collects artifacts from the given paths relative to BaseDir.
//
// Returns an error if a path does not exist or a file cannot be read.
func (h *Harvester) Harvest(paths []string) (*ArtifactSet, error) {
	if len(paths) == 0 {
		return &ArtifactSet{Artifacts: []Artifact{}}, nil
	}

	var allPaths []string
	for _, p := range paths {
		fullPath := p
		if !filepath.IsAbs(p) {
			fullPath = filepath.Join(h.BaseDir, p)
		}

		info, err := os.Stat(fullPath)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("output does not exist: %s", p)
			}
			return nil, fmt.Errorf("stat output %q: %w", p, err)
		}

		if info.IsDir() {
			files, err := h.collectFilesFromDir(fullPath)
			if err != nil {
				return nil, fmt.Errorf("collecting files from %q: %w", p, err)
			}
			allPaths = append(allPaths, files...)
		} else {
			allPaths = append(allPaths, fullPath)
		}
	}

	sort.Strings(allPaths)
	allPaths = deduplicateSorted(allPaths)

	artifacts := make([]Artifact, 0, len(allPaths))
	for _, p := range allPaths {
		content, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("reading artifact %q: %w", p, err)
		}
		rel, err := filepath.Rel(h.BaseDir, p)
		if err != nil {
			return nil, err
		}
		artifacts = append(artifacts, Artifact{
			Path:    filepath.ToSlash(rel),
			Content: content,
		})
	}

	return &ArtifactSet{Artifacts: artifacts}, nil
}

// collectFilesFromDir recursively collects all regular files in a directory.
func (h *Harvester) collectFilesFromDir(dir string) ([]string, error) {
	var files []string

	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(files)
	return files, nil
}

// deduplicateSorted removes duplicates from a sorted slice.
func deduplicateSorted(sorted []string) []string {
	if len(sorted) == 0 {
		return sorted
	}

	result := make([]string, 0, len(sorted))
	result = append(result, sorted[0])

	for i := 1; i < len(sorted); i++ {
		if sorted[i] != sorted[i-1] {
			result = append(result, sorted[i])
		}
	}

	return result
}
