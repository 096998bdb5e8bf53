package transform

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/evanw/esbuild/pkg/api"

	"assetweaver/internal/core"
)

// DefaultStyleOutput is the compiled stylesheet's file name.
const DefaultStyleOutput = "style.min.css"

// assetExternals leaves url() references to binary assets untouched.
var assetExternals = []string{
	"*.png", "*.jpg", "*.jpeg", "*.gif", "*.webp", "*.avif", "*.svg", "*.ico",
	"*.woff", "*.woff2", "*.ttf", "*.eot", "*.otf",
}

// cssSyntaxIDs are esbuild message IDs that it reports as warnings but
// that leave the stylesheet unusable.
var cssSyntaxIDs = map[string]bool{
	"css-syntax-error":        true,
	"invalid-@charset":        true,
	"invalid-@import":         true,
	"invalid-@layer":          true,
	"unsupported-css-nesting": true,
	"js-comment-in-css":       true,
}

func cssSyntaxOverrides() map[string]api.LogLevel {
	o := make(map[string]api.LogLevel, len(cssSyntaxIDs))
	for id := range cssSyntaxIDs {
		o[id] = api.LogLevelError
	}
	return o
}

// syntaxWarnings returns the warnings that must fail the compile.
func syntaxWarnings(msgs []api.Message) []api.Message {
	var out []api.Message
	for _, m := range msgs {
		if cssSyntaxIDs[m.ID] {
			out = append(out, m)
		}
	}
	return out
}

// Styles compiles the stylesheet entry to one minified, vendor-prefixed CSS
// file with an external source map.
//
// A ".less" entry is first compiled by the external Compiler command, which
// receives the entry's absolute path as its last argument and prints CSS to
// stdout. Plain CSS entries go straight to esbuild, which inlines @import.
// For a ".less" entry the source map points into the compiler's CSS
// output, recorded as "<entry>.css", not into the LESS sources.
type Styles struct {
	// Compiler is the LESS compiler argv, e.g. ["lessc"].
	Compiler []string

	// Executor runs Compiler. Required for ".less" entries.
	Executor *core.Executor

	// Engines drive syntax lowering and vendor prefixes.
	Engines []api.Engine

	// SourceMap enables the external "<output>.map" file.
	SourceMap bool

	// Output is the stylesheet name; defaults to DefaultStyleOutput.
	Output string
}

// Kind implements core.Processor.
func (s *Styles) Kind() string { return "styles" }

// Process implements core.Processor.
func (s *Styles) Process(ctx context.Context, in *core.InputSet, out core.OutputWriter) error {
	if in.Len() == 0 {
		return nil
	}
	if in.Len() > 1 {
		return processErr(s.Kind(), "", fmt.Errorf("expected one stylesheet entry, got %d", in.Len()))
	}
	entry := in.Inputs[0]

	source := entry.Content
	sourcefile := path.Base(entry.Path)
	if ext := path.Ext(sourcefile); strings.EqualFold(ext, ".less") {
		css, err := s.compileLess(ctx, entry)
		if err != nil {
			return err
		}
		source = css
		sourcefile = strings.TrimSuffix(sourcefile, ext) + ".css"
	}

	outName := s.Output
	if outName == "" {
		outName = DefaultStyleOutput
	}
	sourcemap := api.SourceMapNone
	if s.SourceMap {
		sourcemap = api.SourceMapLinked
	}

	resolveDir := filepath.Dir(filepath.FromSlash(entry.Path))
	result := api.Build(api.BuildOptions{
		Stdin: &api.StdinOptions{
			Contents:   string(source),
			ResolveDir: resolveDir,
			Sourcefile: sourcefile,
			Loader:     api.LoaderCSS,
		},
		AbsWorkingDir:     resolveDir,
		Outfile:           filepath.Join(resolveDir, outName),
		Bundle:            true,
		Write:             false,
		External:          assetExternals,
		Engines:           s.Engines,
		MinifyWhitespace:  true,
		MinifySyntax:      true,
		MinifyIdentifiers: true,
		Sourcemap:         sourcemap,
		LogLevel:          api.LogLevelSilent,
		LogOverride:       cssSyntaxOverrides(),
	})
	if err := firstError(s.Kind(), entry.Rel, result.Errors); err != nil {
		return err
	}
	if err := firstError(s.Kind(), entry.Rel, syntaxWarnings(result.Warnings)); err != nil {
		return err
	}

	for _, f := range result.OutputFiles {
		name := filepath.Base(f.Path)
		if name != outName && name != outName+".map" {
			continue
		}
		if err := out.WriteFile(name, f.Contents); err != nil {
			return err
		}
	}
	return nil
}

func (s *Styles) compileLess(ctx context.Context, entry core.Input) ([]byte, error) {
	if len(s.Compiler) == 0 || s.Executor == nil {
		return nil, processErr(s.Kind(), entry.Rel, errors.New("no LESS compiler configured"))
	}
	args := append(append([]string{}, s.Compiler...), filepath.FromSlash(entry.Path))
	res, err := s.Executor.Execute(ctx, core.Command{
		Args: args,
		Env:  map[string]string{"PATH": os.Getenv("PATH"), "HOME": os.Getenv("HOME")},
	})
	if err != nil {
		return nil, processErr(s.Kind(), entry.Rel, fmt.Errorf("running %s: %w", s.Compiler[0], err))
	}
	if res.ExitCode != 0 {
		msg := strings.TrimSpace(string(res.Stderr))
		if msg == "" {
			msg = fmt.Sprintf("exit status %d", res.ExitCode)
		}
		return nil, processErr(s.Kind(), entry.Rel, errors.New(msg))
	}
	return res.Stdout, nil
}
