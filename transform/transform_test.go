package transform

import (
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/argonlabs/imageload/config"
	"github.com/argonlabs/imageload/core"
	apperrors "github.com/argonlabs/imageload/errors"
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

func pixelAt(bm *core.Bitmap, x, y int) color.NRGBA {
	o := y*bm.Stride + x*4
	return color.NRGBA{R: bm.Pix[o], G: bm.Pix[o+1], B: bm.Pix[o+2], A: bm.Pix[o+3]}
}

// ── blur ──────────────────────────────────────────────────────────────────────

func TestBlurSmoothsEdges(t *testing.T) {
	t.Parallel()

	// Black left half, white right half: blur must produce grey at the seam.
	bm := solidBitmap(32, 32, color.NRGBA{A: 255})
	for y := 0; y < 32; y++ {
		for x := 16; x < 32; x++ {
			o := y*bm.Stride + x*4
			bm.Pix[o], bm.Pix[o+1], bm.Pix[o+2] = 255, 255, 255
		}
	}

	out, err := Blur(bm, 4)
	require.NoError(t, err)
	require.Equal(t, bm.Width, out.Width)
	require.Equal(t, bm.Height, out.Height)

	seam := pixelAt(out, 16, 16)
	assert.Greater(t, int(seam.R), 40)
	assert.Less(t, int(seam.R), 215)
}

func TestBlurDoesNotMutateInput(t *testing.T) {
	t.Parallel()

	bm := solidBitmap(8, 8, color.NRGBA{R: 100, G: 150, B: 200, A: 255})
	before := append([]byte(nil), bm.Pix...)

	_, err := Blur(bm, 3)
	require.NoError(t, err)
	assert.Equal(t, before, bm.Pix)
}

func TestBlurSmallRadiusReturnsCopy(t *testing.T) {
	t.Parallel()

	bm := solidBitmap(8, 8, color.NRGBA{R: 10, G: 20, B: 30, A: 255})
	out, err := Blur(bm, 0.5)
	require.NoError(t, err)
	assert.NotSame(t, bm, out)
	assert.Equal(t, bm.Pix, out.Pix)
}

func TestBlurNilInput(t *testing.T) {
	t.Parallel()

	_, err := Blur(nil, 3)
	require.Error(t, err)
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryInput))
}

// ── crossfade ─────────────────────────────────────────────────────────────────

func TestCrossfadeEndpoints(t *testing.T) {
	t.Parallel()

	a := solidBitmap(4, 4, color.NRGBA{R: 255, A: 255})
	b := solidBitmap(4, 4, color.NRGBA{B: 255, A: 255})

	out, err := Crossfade(a, b, 0)
	require.NoError(t, err)
	assert.Equal(t, color.NRGBA{R: 255, A: 255}, pixelAt(out, 1, 1))

	out, err = Crossfade(a, b, 1)
	require.NoError(t, err)
	assert.Equal(t, color.NRGBA{B: 255, A: 255}, pixelAt(out, 1, 1))
}

func TestCrossfadeMidpoint(t *testing.T) {
	t.Parallel()

	a := solidBitmap(4, 4, color.NRGBA{A: 255})
	b := solidBitmap(4, 4, color.NRGBA{R: 255, G: 255, B: 255, A: 255})

	out, err := Crossfade(a, b, 0.5)
	require.NoError(t, err)
	px := pixelAt(out, 2, 2)
	assert.InDelta(t, 128, int(px.R), 2)
	assert.InDelta(t, 128, int(px.G), 2)
	assert.EqualValues(t, 255, px.A)
}

func TestCrossfadeClampsT(t *testing.T) {
	t.Parallel()

	a := solidBitmap(2, 2, color.NRGBA{R: 255, A: 255})
	b := solidBitmap(2, 2, color.NRGBA{B: 255, A: 255})

	out, err := Crossfade(a, b, -3)
	require.NoError(t, err)
	assert.Equal(t, color.NRGBA{R: 255, A: 255}, pixelAt(out, 0, 0))

	out, err = Crossfade(a, b, 7)
	require.NoError(t, err)
	assert.Equal(t, color.NRGBA{B: 255, A: 255}, pixelAt(out, 0, 0))
}

func TestCrossfadeMismatchedSizes(t *testing.T) {
	t.Parallel()

	a := solidBitmap(2, 2, color.NRGBA{R: 255, A: 255})
	b := solidBitmap(8, 6, color.NRGBA{B: 255, A: 255})

	out, err := Crossfade(a, b, 0.5)
	require.NoError(t, err)
	assert.Equal(t, 8, out.Width)
	assert.Equal(t, 6, out.Height)
}

func TestCrossfadeNilInputs(t *testing.T) {
	t.Parallel()

	b := solidBitmap(4, 4, color.NRGBA{G: 255, A: 255})

	// nil source fades in from transparency.
	out, err := Crossfade(nil, b, 0.5)
	require.NoError(t, err)
	px := pixelAt(out, 0, 0)
	assert.InDelta(t, 128, int(px.A), 2)

	_, err = Crossfade(nil, nil, 0.5)
	require.Error(t, err)
}

// ── colour matrix ─────────────────────────────────────────────────────────────

func TestGrayscaleMatrix(t *testing.T) {
	t.Parallel()

	bm := solidBitmap(4, 4, color.NRGBA{R: 200, G: 100, B: 50, A: 255})
	out, err := ApplyColorMatrix(bm, GrayscaleMatrix())
	require.NoError(t, err)

	px := pixelAt(out, 1, 1)
	assert.Equal(t, px.R, px.G)
	assert.Equal(t, px.G, px.B)
	// 0.299*200 + 0.587*100 + 0.114*50 = 124.2
	assert.InDelta(t, 124, int(px.R), 2)
	assert.EqualValues(t, 255, px.A)
}

func TestTintMatrix(t *testing.T) {
	t.Parallel()

	bm := solidBitmap(2, 2, color.NRGBA{R: 200, G: 200, B: 200, A: 255})
	out, err := ApplyColorMatrix(bm, TintMatrix(1, 0.5, 0))
	require.NoError(t, err)

	px := pixelAt(out, 0, 0)
	assert.InDelta(t, 200, int(px.R), 2)
	assert.InDelta(t, 100, int(px.G), 2)
	assert.EqualValues(t, 0, px.B)
}

func TestApplyColorMatrixClamps(t *testing.T) {
	t.Parallel()

	bm := solidBitmap(2, 2, color.NRGBA{R: 200, G: 200, B: 200, A: 255})
	out, err := ApplyColorMatrix(bm, TintMatrix(5, -5, 1))
	require.NoError(t, err)

	px := pixelAt(out, 0, 0)
	assert.EqualValues(t, 255, px.R)
	assert.EqualValues(t, 0, px.G)
}

func TestApplyColorMatrixNilInput(t *testing.T) {
	t.Parallel()

	_, err := ApplyColorMatrix(nil, GrayscaleMatrix())
	require.Error(t, err)
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryInput))
}
