package transform

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/beevik/etree"
	"github.com/tdewolff/minify/v2"

	"assetweaver/internal/core"
)

const svgNS = "http://www.w3.org/2000/svg"

// stackStyle shows only the :target icon of a stack document.
const stackStyle = ":root{visibility:hidden}:target{visibility:visible}"

// DefaultStackOutput is the stack document's file name.
const DefaultStackOutput = "stak.svg"

// DefaultSpriteOutput is the sprite document's file name.
const DefaultSpriteOutput = "sprite.svg"

// cleanSVG parses data as an SVG document and returns its minified form.
func cleanSVG(m *minify.M, data []byte) ([]byte, error) {
	if _, err := parseSVG(data); err != nil {
		return nil, err
	}
	return m.Bytes(mediaSVG, data)
}

func parseSVG(data []byte) (*etree.Element, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, err
	}
	root := doc.Root()
	if root == nil {
		return nil, errors.New("empty document")
	}
	if root.Tag != "svg" {
		return nil, fmt.Errorf("root element is <%s>, not <svg>", root.FullTag())
	}
	return root, nil
}

// SVGO cleans every SVG in memory. Parse failures fail the task; cleaned
// bytes are discarded and nothing is written.
type SVGO struct {
	m *minify.M
}

// NewSVGO returns an SVGO processor.
func NewSVGO() *SVGO { return &SVGO{m: newMinifier()} }

// Kind implements core.Processor.
func (s *SVGO) Kind() string { return "svgo" }

// Process implements core.Processor.
func (s *SVGO) Process(ctx context.Context, in *core.InputSet, _ core.OutputWriter) error {
	for _, f := range in.Inputs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := cleanSVG(s.m, f.Content); err != nil {
			return processErr(s.Kind(), f.Rel, err)
		}
	}
	return nil
}

// Stack cleans each icon and nests them as <svg id="name"> children of one
// document, showing the icon addressed by the URL fragment.
type Stack struct {
	// Output defaults to DefaultStackOutput.
	Output string

	m *minify.M
}

// NewStack returns a Stack processor writing output.
func NewStack(output string) *Stack {
	return &Stack{Output: output, m: newMinifier()}
}

// Kind implements core.Processor.
func (s *Stack) Kind() string { return "stack" }

// Process implements core.Processor.
func (s *Stack) Process(ctx context.Context, in *core.InputSet, out core.OutputWriter) error {
	if in.Len() == 0 {
		return nil
	}
	doc, root := newSVGDocument()
	root.CreateElement("style").SetText(stackStyle)

	ids := make(map[string]string, in.Len())
	for _, f := range in.Inputs {
		if err := ctx.Err(); err != nil {
			return err
		}
		id, err := symbolID(ids, f.Rel)
		if err != nil {
			return processErr(s.Kind(), f.Rel, err)
		}
		cleaned, err := cleanSVG(s.m, f.Content)
		if err != nil {
			return processErr(s.Kind(), f.Rel, err)
		}
		src, err := parseSVG(cleaned)
		if err != nil {
			return processErr(s.Kind(), f.Rel, err)
		}

		icon := root.CreateElement("svg")
		icon.CreateAttr("id", id)
		copyAttrs(icon, src, "viewBox", "preserveAspectRatio", "fill", "stroke")
		adoptChildren(root, icon, src)
	}

	return writeDocument(doc, s.Kind(), nameOr(s.Output, DefaultStackOutput), out)
}

// Sprite combines SVGs into one inline document of <symbol id="name">
// elements, for use with <use href="#name">.
type Sprite struct {
	// Output defaults to DefaultSpriteOutput.
	Output string
}

// Kind implements core.Processor.
func (s *Sprite) Kind() string { return "sprite" }

// Process implements core.Processor.
func (s *Sprite) Process(ctx context.Context, in *core.InputSet, out core.OutputWriter) error {
	if in.Len() == 0 {
		return nil
	}
	doc, root := newSVGDocument()

	ids := make(map[string]string, in.Len())
	for _, f := range in.Inputs {
		if err := ctx.Err(); err != nil {
			return err
		}
		id, err := symbolID(ids, f.Rel)
		if err != nil {
			return processErr(s.Kind(), f.Rel, err)
		}
		src, err := parseSVG(f.Content)
		if err != nil {
			return processErr(s.Kind(), f.Rel, err)
		}

		sym := root.CreateElement("symbol")
		sym.CreateAttr("id", id)
		copyAttrs(sym, src, "viewBox", "preserveAspectRatio")
		adoptChildren(root, sym, src)
	}

	return writeDocument(doc, s.Kind(), nameOr(s.Output, DefaultSpriteOutput), out)
}

func newSVGDocument() (*etree.Document, *etree.Element) {
	doc := etree.NewDocument()
	root := doc.CreateElement("svg")
	root.CreateAttr("xmlns", svgNS)
	return doc, root
}

// symbolID derives a unique id from the file name.
func symbolID(seen map[string]string, rel string) (string, error) {
	id := strings.TrimSuffix(path.Base(rel), path.Ext(rel))
	if prev, ok := seen[id]; ok {
		return "", fmt.Errorf("duplicate id %q (also from %s)", id, prev)
	}
	seen[id] = rel
	return id, nil
}

func copyAttrs(dst, src *etree.Element, keys ...string) {
	for _, k := range keys {
		if a := src.SelectAttr(k); a != nil {
			dst.CreateAttr(k, a.Value)
		}
	}
}

// adoptChildren deep-copies the element children of src into dst and lifts
// src's namespace declarations onto the document root.
func adoptChildren(root, dst, src *etree.Element) {
	for _, a := range src.Attr {
		if a.Space == "xmlns" && root.SelectAttr(a.FullKey()) == nil {
			root.CreateAttr(a.FullKey(), a.Value)
		}
	}
	for _, c := range src.ChildElements() {
		dst.AddChild(c.Copy())
	}
}

func writeDocument(doc *etree.Document, kind, name string, out core.OutputWriter) error {
	b, err := doc.WriteToBytes()
	if err != nil {
		return processErr(kind, name, err)
	}
	return out.WriteFile(name, b)
}

func nameOr(name, def string) string {
	if name == "" {
		return def
	}
	return name
}
