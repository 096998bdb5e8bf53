package transform

import (
	"regexp"

	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/css"
	"github.com/tdewolff/minify/v2/html"
	"github.com/tdewolff/minify/v2/js"
	"github.com/tdewolff/minify/v2/svg"
)

const (
	mediaHTML = "text/html"
	mediaSVG  = "image/svg+xml"
)

// newMinifier returns a minifier for markup documents. Inline styles and
// scripts embedded in HTML or SVG are minified too.
func newMinifier() *minify.M {
	m := minify.New()
	m.Add(mediaHTML, &html.Minifier{
		KeepDocumentTags:    true,
		KeepEndTags:         true,
		KeepQuotes:          true,
		KeepDefaultAttrVals: true,
	})
	m.Add(mediaSVG, &svg.Minifier{})
	m.AddFunc("text/css", css.Minify)
	m.AddFuncRegexp(regexp.MustCompile("^(application|text)/(x-)?(java|ecma)script$"), js.Minify)
	return m
}
