package transform

import (
	"context"

	"github.com/tdewolff/minify/v2"

	"assetweaver/internal/core"
)

// HTML collapses whitespace in HTML documents. Inline <style> and <script>
// blocks are minified as well.
type HTML struct {
	m *minify.M
}

// NewHTML returns an HTML processor.
func NewHTML() *HTML {
	return &HTML{m: newMinifier()}
}

// Kind implements core.Processor.
func (h *HTML) Kind() string { return "html" }

// Process implements core.Processor.
func (h *HTML) Process(ctx context.Context, in *core.InputSet, out core.OutputWriter) error {
	for _, f := range in.Inputs {
		if err := ctx.Err(); err != nil {
			return err
		}
		b, err := h.m.Bytes(mediaHTML, f.Content)
		if err != nil {
			return processErr(h.Kind(), f.Rel, err)
		}
		if err := out.WriteFile(f.Rel, b); err != nil {
			return err
		}
	}
	return nil
}

// Derived implements core.Deriver.
func (h *HTML) Derived(rel string) []string { return []string{rel} }
