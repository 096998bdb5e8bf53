package transform

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"assetweaver/internal/core"
)

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x * 8), G: uint8(y * 8), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.NoCompression}
	require.NoError(t, enc.Encode(&buf, img))
	return buf.Bytes()
}

func encodeJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := imaging.New(w, h, color.NRGBA{R: 200, G: 50, B: 50, A: 255})
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(100)))
	return buf.Bytes()
}

func rasterInputs(t *testing.T) *core.InputSet {
	return inputs(map[string]string{
		"hero.png":         string(encodePNG(t, 32, 32)),
		"catalog/lamp.jpg": string(encodeJPEG(t, 24, 24)),
	})
}

func TestOptimizeImages_NeverGrowsAndStaysDecodable(t *testing.T) {
	in := rasterInputs(t)
	out := newMemWriter()

	require.NoError(t, (&OptimizeImages{PNGCompression: png.BestCompression}).Process(context.Background(), in, out))

	require.Equal(t, []string{"catalog/lamp.jpg", "hero.png"}, out.names())
	for _, f := range in.Inputs {
		got := out.files[f.Rel]
		assert.LessOrEqual(t, len(got), len(f.Content), f.Rel)
		_, err := imaging.Decode(bytes.NewReader(got))
		assert.NoError(t, err, f.Rel)
	}
	assert.Less(t, len(out.files["hero.png"]), len(in.Inputs[1].Content), "uncompressed PNG must shrink")
}

func TestOptimizeImages_CorruptImageFails(t *testing.T) {
	in := inputs(map[string]string{"broken.png": "not a png"})
	err := (&OptimizeImages{}).Process(context.Background(), in, newMemWriter())
	assert.ErrorIs(t, err, ErrProcessor)
}

func TestWebP_WritesDerivativeAlongside(t *testing.T) {
	in := rasterInputs(t)
	out := newMemWriter()

	require.NoError(t, (&WebP{Name: "createWebpIndex", Workers: 1}).Process(context.Background(), in, out))

	assert.Equal(t, []string{"catalog/lamp.webp", "hero.webp"}, out.names())
	for _, name := range out.names() {
		data := out.files[name]
		require.Greater(t, len(data), 12)
		assert.Equal(t, "RIFF", string(data[:4]))
		assert.Equal(t, "WEBP", string(data[8:12]))
	}
}

func TestWebPName(t *testing.T) {
	assert.Equal(t, "a/b.webp", WebPName("a/b.png"))
	assert.Equal(t, "photo.webp", WebPName("photo.jpg"))
}
