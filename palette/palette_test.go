package palette

import (
	"image/color"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/argonlabs/imageload/cache"
	"github.com/argonlabs/imageload/config"
	"github.com/argonlabs/imageload/core"
)

func solidBitmap(w, h int, c color.NRGBA) *core.Bitmap {
	pix := make([]byte, w*h*4)
	for i := 0; i < w*h; i++ {
		pix[i*4+0] = c.R
		pix[i*4+1] = c.G
		pix[i*4+2] = c.B
		pix[i*4+3] = c.A
	}
	return &core.Bitmap{Pix: pix, Stride: w * 4, Width: w, Height: h, Format: config.PixelFormatNRGBA}
}

func splitBitmap(w, h int, left, right color.NRGBA) *core.Bitmap {
	bm := solidBitmap(w, h, left)
	for y := 0; y < h; y++ {
		for x := w / 2; x < w; x++ {
			o := y*bm.Stride + x*4
			bm.Pix[o+0] = right.R
			bm.Pix[o+1] = right.G
			bm.Pix[o+2] = right.B
			bm.Pix[o+3] = right.A
		}
	}
	return bm
}

func TestExtractDominantColor(t *testing.T) {
	t.Parallel()

	e := NewExtractor(nil, 8, 64)
	pal := e.Extract(1, solidBitmap(32, 32, color.NRGBA{R: 230, G: 20, B: 20, A: 255}))

	require.NotEmpty(t, pal.Swatches)
	dom, ok := pal.Dominant()
	require.True(t, ok)
	assert.Equal(t, core.SwatchDominant, dom.Kind)
	assert.Greater(t, int(dom.Color.R), 200)
	assert.Less(t, int(dom.Color.G), 60)
	assert.InDelta(t, 1.0, dom.Proportion, 0.01)
	assert.False(t, pal.ExtractedAt.IsZero())
}

func TestExtractTwoColorImage(t *testing.T) {
	t.Parallel()

	e := NewExtractor(nil, 8, 64)
	pal := e.Extract(1, splitBitmap(64, 32,
		color.NRGBA{R: 240, G: 10, B: 10, A: 255},
		color.NRGBA{R: 10, G: 10, B: 240, A: 255},
	))

	require.GreaterOrEqual(t, len(pal.Swatches), 2)
	// Both halves carry roughly half the pixels.
	assert.InDelta(t, 0.5, pal.Swatches[0].Proportion, 0.1)
	assert.InDelta(t, 0.5, pal.Swatches[1].Proportion, 0.1)
}

func TestExtractSkipsTransparentPixels(t *testing.T) {
	t.Parallel()

	bm := splitBitmap(64, 32,
		color.NRGBA{R: 240, G: 10, B: 10, A: 255},
		color.NRGBA{R: 10, G: 240, B: 10, A: 0}, // fully transparent
	)
	e := NewExtractor(nil, 8, 64)
	pal := e.Extract(1, bm)

	dom, ok := pal.Dominant()
	require.True(t, ok)
	assert.Greater(t, int(dom.Color.R), 200, "transparent half must not contribute")
}

func TestExtractRespectsMaxColors(t *testing.T) {
	t.Parallel()

	// A noisy gradient touches many quantisation buckets.
	bm := solidBitmap(64, 64, color.NRGBA{A: 255})
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			o := y*bm.Stride + x*4
			bm.Pix[o+0] = uint8(x * 4)
			bm.Pix[o+1] = uint8(y * 4)
			bm.Pix[o+2] = uint8((x + y) * 2)
		}
	}
	e := NewExtractor(nil, 3, 64)
	pal := e.Extract(1, bm)
	assert.LessOrEqual(t, len(pal.Swatches), 3)
}

func TestExtractMemoizesThroughCache(t *testing.T) {
	t.Parallel()

	pc := cache.NewPaletteCache(4)
	e := NewExtractor(pc, 8, 64)
	bm := solidBitmap(16, 16, color.NRGBA{R: 10, G: 200, B: 10, A: 255})

	first := e.Extract(9, bm)
	second := e.Extract(9, bm)
	assert.Equal(t, first.ExtractedAt, second.ExtractedAt, "second call must come from cache")

	got, ok := e.Cached(9)
	require.True(t, ok)
	assert.Equal(t, first.ExtractedAt, got.ExtractedAt)
}

func TestCachedWithoutCache(t *testing.T) {
	t.Parallel()

	e := NewExtractor(nil, 8, 64)
	_, ok := e.Cached(1)
	assert.False(t, ok)
}

func TestExtractConcurrentSameKey(t *testing.T) {
	t.Parallel()

	pc := cache.NewPaletteCache(4)
	e := NewExtractor(pc, 8, 64)
	bm := solidBitmap(48, 48, color.NRGBA{R: 120, G: 40, B: 200, A: 255})

	var wg sync.WaitGroup
	results := make([]core.Palette, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = e.Extract(11, bm)
		}(i)
	}
	wg.Wait()

	for _, pal := range results {
		require.NotEmpty(t, pal.Swatches)
		assert.Equal(t, results[0].Swatches[0].Color, pal.Swatches[0].Color)
	}
}

func TestClassify(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		c    color.NRGBA
		want core.SwatchKind
	}{
		{"near black", color.NRGBA{R: 20, G: 20, B: 20, A: 255}, core.SwatchDark},
		{"near white", color.NRGBA{R: 245, G: 245, B: 245, A: 255}, core.SwatchLight},
		{"saturated red", color.NRGBA{R: 230, G: 30, B: 30, A: 255}, core.SwatchVibrant},
		{"washed blue", color.NRGBA{R: 140, G: 150, B: 180, A: 255}, core.SwatchMuted},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, classify(tc.c), tc.name)
	}
}

func TestExtractEmptyBitmap(t *testing.T) {
	t.Parallel()

	e := NewExtractor(nil, 8, 64)
	pal := e.Extract(1, &core.Bitmap{Format: config.PixelFormatNRGBA})
	assert.Empty(t, pal.Swatches)
}
