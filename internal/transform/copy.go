package transform

import (
	"context"

	"assetweaver/internal/core"
)

// Copy writes every input byte-for-byte under its relative path.
type Copy struct {
	// Name distinguishes copy tasks in plans and traces; defaults to "copy".
	Name string
}

// Kind implements core.Processor.
func (c *Copy) Kind() string {
	if c.Name != "" {
		return c.Name
	}
	return "copy"
}

// Process implements core.Processor.
func (c *Copy) Process(ctx context.Context, in *core.InputSet, out core.OutputWriter) error {
	for _, f := range in.Inputs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := out.WriteFile(f.Rel, f.Content); err != nil {
			return err
		}
	}
	return nil
}

// Derived implements core.Deriver.
func (c *Copy) Derived(rel string) []string { return []string{rel} }
