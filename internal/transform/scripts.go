package transform

import (
	"context"

	"github.com/evanw/esbuild/pkg/api"

	"assetweaver/internal/core"
)

// Scripts minifies each JavaScript file independently, keeping its name.
type Scripts struct {
	Engines []api.Engine
}

// Kind implements core.Processor.
func (s *Scripts) Kind() string { return "scripts" }

// Process implements core.Processor.
func (s *Scripts) Process(ctx context.Context, in *core.InputSet, out core.OutputWriter) error {
	for _, f := range in.Inputs {
		if err := ctx.Err(); err != nil {
			return err
		}
		result := api.Transform(string(f.Content), api.TransformOptions{
			Loader:            api.LoaderJS,
			Sourcefile:        f.Rel,
			Engines:           s.Engines,
			MinifyWhitespace:  true,
			MinifySyntax:      true,
			MinifyIdentifiers: true,
			LogLevel:          api.LogLevelSilent,
		})
		if err := firstError(s.Kind(), f.Rel, result.Errors); err != nil {
			return err
		}
		if err := out.WriteFile(f.Rel, result.Code); err != nil {
			return err
		}
	}
	return nil
}

// Derived implements core.Deriver.
func (s *Scripts) Derived(rel string) []string { return []string{rel} }
