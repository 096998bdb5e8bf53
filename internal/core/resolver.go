package core

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gobwas/glob"
)

// InputResolver resolves declared input patterns to a deterministic InputSet.
//
// Expansion is strictly sorted and de-duplicated so processors observe the
// same order on every run regardless of directory listing order.
type InputResolver struct {
	// BaseDir is the source root all patterns are relative to.
	BaseDir string
}

// NewInputResolver creates a new InputResolver rooted at baseDir.
func NewInputResolver(baseDir string) *InputResolver {
	return &InputResolver{BaseDir: baseDir}
}

// Resolve expands all input patterns below BaseDir.
//
// A pattern matching nothing is not an error. Directories are never
// returned. base has the meaning of Task.Base.
func (r *InputResolver) Resolve(patterns []string, base string) (*InputSet, error) {
	sel, err := CompileSelector(patterns)
	if err != nil {
		return nil, err
	}

	matched := make(map[string]*Pattern)
	for _, p := range sel.include {
		if err := r.walk(p, sel, matched); err != nil {
			return nil, fmt.Errorf("expanding pattern %q: %w", p.raw, err)
		}
	}
	return r.read(matched, base)
}

// ResolveOnly resolves the subset of only (source-relative, slash-separated
// paths) selected by patterns. Paths that no longer exist are dropped.
func (r *InputResolver) ResolveOnly(patterns []string, base string, only []string) (*InputSet, error) {
	sel, err := CompileSelector(patterns)
	if err != nil {
		return nil, err
	}

	matched := make(map[string]*Pattern)
	for _, rel := range only {
		rel = path.Clean(filepath.ToSlash(rel))
		p := sel.match(rel)
		if p == nil {
			continue
		}
		info, err := os.Stat(filepath.Join(r.BaseDir, filepath.FromSlash(rel)))
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("stat %q: %w", rel, err)
		}
		if info.IsDir() {
			continue
		}
		matched[rel] = p
	}
	return r.read(matched, base)
}

// Missing returns the base-relative names of the paths in only that
// patterns select but that are absent from the source tree.
func (r *InputResolver) Missing(patterns []string, base string, only []string) ([]string, error) {
	sel, err := CompileSelector(patterns)
	if err != nil {
		return nil, err
	}
	var gone []string
	for _, rel := range only {
		rel = path.Clean(filepath.ToSlash(rel))
		p := sel.match(rel)
		if p == nil {
			continue
		}
		_, err := os.Stat(filepath.Join(r.BaseDir, filepath.FromSlash(rel)))
		if err == nil {
			continue
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("stat %q: %w", rel, err)
		}
		outRel, err := relativeTo(rel, base, p.prefix)
		if err != nil {
			return nil, err
		}
		gone = append(gone, outRel)
	}
	sort.Strings(gone)
	return gone, nil
}

func (r *InputResolver) walk(p *Pattern, sel *Selector, matched map[string]*Pattern) error {
	if p.literal {
		full := filepath.Join(r.BaseDir, filepath.FromSlash(p.raw))
		info, err := os.Stat(full)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !info.IsDir() && !sel.excluded(p.raw) {
			if _, seen := matched[p.raw]; !seen {
				matched[p.raw] = p
			}
		}
		return nil
	}

	root := filepath.Join(r.BaseDir, filepath.FromSlash(p.prefix))
	if _, err := os.Stat(root); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}

	return filepath.WalkDir(root, func(full string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(r.BaseDir, full)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			if full != root && !p.deep && segments(rel) >= p.depth {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if !p.Match(rel) || sel.excluded(rel) {
			return nil
		}
		if _, seen := matched[rel]; !seen {
			matched[rel] = p
		}
		return nil
	})
}

func (r *InputResolver) read(matched map[string]*Pattern, base string) (*InputSet, error) {
	// CRITICAL: sort explicitly, never rely on directory listing order.
	rels := make([]string, 0, len(matched))
	for rel := range matched {
		rels = append(rels, rel)
	}
	sort.Strings(rels)

	inputs := make([]Input, 0, len(rels))
	for _, rel := range rels {
		full := filepath.Join(r.BaseDir, filepath.FromSlash(rel))
		content, err := os.ReadFile(full)
		if err != nil {
			return nil, fmt.Errorf("reading input %q: %w", rel, err)
		}

		outRel, err := relativeTo(rel, base, matched[rel].prefix)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, Input{
			Path:    filepath.ToSlash(full),
			Rel:     outRel,
			Content: content,
		})
	}
	return &InputSet{Inputs: inputs}, nil
}

func relativeTo(rel, base, prefix string) (string, error) {
	anchor := prefix
	if base != "" {
		anchor = path.Clean(filepath.ToSlash(base))
		if anchor == "." {
			anchor = ""
		}
	}
	if anchor == "" {
		return rel, nil
	}
	if !strings.HasPrefix(rel, anchor+"/") {
		return "", fmt.Errorf("input %q is outside base %q", rel, anchor)
	}
	return strings.TrimPrefix(rel, anchor+"/"), nil
}

// Selector is a compiled set of include and "!" exclude patterns.
type Selector struct {
	include []*Pattern
	exclude []*Pattern
}

// Pattern is one compiled glob pattern.
type Pattern struct {
	raw     string
	prefix  string
	literal bool
	deep    bool
	depth   int
	globs   []glob.Glob
}

// Prefix returns the static directory prefix of the pattern ("" for the root).
func (p *Pattern) Prefix() string { return p.prefix }

// Match reports whether the source-relative slash path matches the pattern.
func (p *Pattern) Match(rel string) bool {
	if p.literal {
		return rel == p.raw
	}
	for _, g := range p.globs {
		if g.Match(rel) {
			return true
		}
	}
	return false
}

// CompileSelector compiles include patterns and "!"-prefixed excludes.
func CompileSelector(patterns []string) (*Selector, error) {
	sel := &Selector{}
	for _, raw := range patterns {
		exclude := strings.HasPrefix(raw, "!")
		p, err := compilePattern(strings.TrimPrefix(raw, "!"))
		if err != nil {
			return nil, fmt.Errorf("invalid glob pattern %q: %w", raw, err)
		}
		if exclude {
			sel.exclude = append(sel.exclude, p)
		} else {
			sel.include = append(sel.include, p)
		}
	}
	return sel, nil
}

// Match reports whether rel is selected: it matches an include pattern and
// no exclude pattern.
func (s *Selector) Match(rel string) bool {
	return s.match(path.Clean(filepath.ToSlash(rel))) != nil
}

// Prefixes returns the distinct static prefixes of the include patterns.
func (s *Selector) Prefixes() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, p := range s.include {
		dir := p.prefix
		if p.literal {
			dir = path.Dir(p.raw)
			if dir == "." {
				dir = ""
			}
		}
		if _, ok := seen[dir]; ok {
			continue
		}
		seen[dir] = struct{}{}
		out = append(out, dir)
	}
	sort.Strings(out)
	return out
}

func (s *Selector) match(rel string) *Pattern {
	if s.excluded(rel) {
		return nil
	}
	for _, p := range s.include {
		if p.Match(rel) {
			return p
		}
	}
	return nil
}

func (s *Selector) excluded(rel string) bool {
	for _, p := range s.exclude {
		if p.Match(rel) {
			return true
		}
	}
	return false
}

func compilePattern(raw string) (*Pattern, error) {
	clean := strings.TrimPrefix(path.Clean(filepath.ToSlash(raw)), "./")
	if clean == "" || clean == "." || strings.HasPrefix(clean, "../") || path.IsAbs(clean) {
		return nil, fmt.Errorf("pattern must be relative to the source root")
	}

	segs := strings.Split(clean, "/")
	p := &Pattern{raw: clean, depth: len(segs)}

	static := 0
	for static < len(segs) && !containsGlobChar(segs[static]) {
		static++
	}
	if static == len(segs) {
		p.literal = true
		p.prefix = path.Dir(clean)
		if p.prefix == "." {
			p.prefix = ""
		}
		return p, nil
	}
	p.prefix = strings.Join(segs[:static], "/")
	p.deep = strings.Contains(clean, "**")

	for _, variant := range globstarVariants(clean) {
		g, err := glob.Compile(variant, '/')
		if err != nil {
			return nil, err
		}
		p.globs = append(p.globs, g)
	}
	return p, nil
}

// globstarVariants lets "**/" match zero directories as well as many.
func globstarVariants(p string) []string {
	i := strings.Index(p, "**/")
	if i < 0 {
		return []string{p}
	}
	head, tail := p[:i], p[i+3:]
	var out []string
	for _, t := range globstarVariants(tail) {
		out = append(out, head+"**/"+t, head+t)
	}
	return out
}

func segments(rel string) int {
	if rel == "" || rel == "." {
		return 0
	}
	return strings.Count(rel, "/") + 1
}

// containsGlobChar returns true if the pattern contains glob special characters.
func containsGlobChar(pattern string) bool {
	for _, c := range pattern {
		switch c {
		case '*', '?', '[', ']', '{', '}':
			return true
		}
	}
	return false
}
