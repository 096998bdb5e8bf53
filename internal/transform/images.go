package transform

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"path"
	"runtime"
	"strings"

	"github.com/HugoSmits86/nativewebp"
	"github.com/disintegration/imaging"
	"golang.org/x/sync/errgroup"

	"assetweaver/internal/core"
)

// OptimizeImages re-encodes JPEG and PNG files in their own format and keeps
// whichever of the original and re-encoded bytes is smaller.
type OptimizeImages struct {
	// JPEGQuality is 1-100; zero means 80.
	JPEGQuality int

	// PNGCompression is the zlib effort used for PNG output.
	PNGCompression png.CompressionLevel

	// Workers bounds concurrent encodes; zero means GOMAXPROCS.
	Workers int
}

// Kind implements core.Processor.
func (o *OptimizeImages) Kind() string { return "optimizeImages" }

// Process implements core.Processor.
func (o *OptimizeImages) Process(ctx context.Context, in *core.InputSet, out core.OutputWriter) error {
	quality := o.JPEGQuality
	if quality <= 0 {
		quality = 80
	}
	return forEachImage(ctx, in, o.Workers, func(f core.Input) error {
		format, err := imaging.FormatFromFilename(f.Rel)
		if err != nil {
			return processErr(o.Kind(), f.Rel, err)
		}
		img, err := imaging.Decode(bytes.NewReader(f.Content))
		if err != nil {
			return processErr(o.Kind(), f.Rel, err)
		}

		var buf bytes.Buffer
		err = imaging.Encode(&buf, img, format,
			imaging.JPEGQuality(quality),
			imaging.PNGCompressionLevel(o.PNGCompression))
		if err != nil {
			return processErr(o.Kind(), f.Rel, err)
		}

		data := f.Content
		if buf.Len() < len(data) {
			data = buf.Bytes()
		}
		return out.WriteFile(f.Rel, data)
	})
}

// WebP writes a lossless WebP derivative "<name>.webp" next to where each
// raster input would land.
type WebP struct {
	// Name distinguishes WebP tasks in plans and traces; defaults to "webp".
	Name string

	// Workers bounds concurrent encodes; zero means GOMAXPROCS.
	Workers int
}

// Kind implements core.Processor.
func (w *WebP) Kind() string {
	if w.Name != "" {
		return w.Name
	}
	return "webp"
}

// Process implements core.Processor.
func (w *WebP) Process(ctx context.Context, in *core.InputSet, out core.OutputWriter) error {
	return forEachImage(ctx, in, w.Workers, func(f core.Input) error {
		img, err := imaging.Decode(bytes.NewReader(f.Content))
		if err != nil {
			return processErr(w.Kind(), f.Rel, err)
		}
		var buf bytes.Buffer
		if err := nativewebp.Encode(&buf, img, &nativewebp.Options{}); err != nil {
			return processErr(w.Kind(), f.Rel, fmt.Errorf("encoding webp: %w", err))
		}
		return out.WriteFile(WebPName(f.Rel), buf.Bytes())
	})
}

// Derived implements core.Deriver.
func (o *OptimizeImages) Derived(rel string) []string { return []string{rel} }

// Derived implements core.Deriver.
func (w *WebP) Derived(rel string) []string { return []string{WebPName(rel)} }

// WebPName replaces the extension of rel with ".webp".
func WebPName(rel string) string {
	return strings.TrimSuffix(rel, path.Ext(rel)) + ".webp"
}

func forEachImage(ctx context.Context, in *core.InputSet, workers int, fn func(core.Input) error) error {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, f := range in.Inputs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return fn(f)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
