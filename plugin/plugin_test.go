package plugin

import (
	"image/color"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/argonlabs/imageload/cache"
	"github.com/argonlabs/imageload/config"
	"github.com/argonlabs/imageload/core"
	"github.com/argonlabs/imageload/palette"
	"github.com/argonlabs/imageload/preview"
)

// ── helpers ───────────────────────────────────────────────────────────────────

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

func successState(bm *core.Bitmap, fromCache bool) core.Success {
	return core.Success{
		Result:    &core.DecodeResult{Bitmap: bm, Width: bm.Width, Height: bm.Height},
		FromCache: fromCache,
		At:        time.Now(),
	}
}

// recorder implements every capability and records the order it was invoked in.
type recorder struct {
	name  string
	calls *[]string
}

func (r *recorder) PluginName() string { return r.name }

func (r *recorder) ComposeLoading(RenderOptions, core.Loading, uint64) *Visual {
	*r.calls = append(*r.calls, r.name+":loading")
	return &Visual{Description: r.name}
}

func (r *recorder) ComposeSuccess(RenderOptions, core.Success, uint64) *Visual {
	*r.calls = append(*r.calls, r.name+":success")
	return &Visual{Description: r.name}
}

func (r *recorder) ComposeFailure(RenderOptions, core.Failure, error, uint64) *Visual {
	*r.calls = append(*r.calls, r.name+":failure")
	return &Visual{Description: r.name}
}

// loadingOnly implements just the Loading capability.
type loadingOnly struct{ hits int }

func (l *loadingOnly) PluginName() string { return "loading-only" }
func (l *loadingOnly) ComposeLoading(RenderOptions, core.Loading, uint64) *Visual {
	l.hits++
	return nil
}

// ── composition ───────────────────────────────────────────────────────────────

func TestCompositionRegistrationOrder(t *testing.T) {
	t.Parallel()

	var calls []string
	comp := NewComposition(
		&recorder{name: "first", calls: &calls},
		&recorder{name: "second", calls: &calls},
	)

	comp.Compose(core.Loading{StartedAt: time.Now()}, RenderOptions{}, 1)
	comp.Compose(successState(solidBitmap(2, 2, color.NRGBA{A: 255}), false), RenderOptions{}, 1)
	comp.Compose(core.Failure{Err: assert.AnError, At: time.Now()}, RenderOptions{}, 1)

	assert.Equal(t, []string{
		"first:loading", "second:loading",
		"first:success", "second:success",
		"first:failure", "second:failure",
	}, calls)
}

func TestCompositionDispatchesByCapability(t *testing.T) {
	t.Parallel()

	lo := &loadingOnly{}
	comp := NewComposition(lo)

	comp.Compose(core.Loading{StartedAt: time.Now()}, RenderOptions{}, 1)
	assert.Equal(t, 1, lo.hits)

	// States the plugin has no capability for never reach it.
	comp.Compose(successState(solidBitmap(2, 2, color.NRGBA{A: 255}), false), RenderOptions{}, 1)
	comp.Compose(core.Failure{Err: assert.AnError, At: time.Now()}, RenderOptions{}, 1)
	assert.Equal(t, 1, lo.hits)
}

func TestCompositionNilVisualsAreSkipped(t *testing.T) {
	t.Parallel()

	comp := NewComposition(&loadingOnly{}, &Placeholder{})
	visuals := comp.Compose(core.Loading{StartedAt: time.Now()}, RenderOptions{}, 1)
	assert.Empty(t, visuals)
}

func TestCompositionAddPreservesOrder(t *testing.T) {
	t.Parallel()

	var calls []string
	comp := NewComposition(&recorder{name: "a", calls: &calls})
	comp.Add(&recorder{name: "b", calls: &calls})

	comp.Compose(core.Loading{StartedAt: time.Now()}, RenderOptions{}, 1)
	assert.Equal(t, []string{"a:loading", "b:loading"}, calls)
	assert.Len(t, comp.Plugins(), 2)
}

func TestCompositionPaintersRunAfterSuccessPlugins(t *testing.T) {
	t.Parallel()

	var calls []string
	comp := NewComposition(
		&BlurPainter{Radius: 2},
		&recorder{name: "state", calls: &calls},
	)

	visuals := comp.Compose(successState(solidBitmap(4, 4, color.NRGBA{R: 255, A: 255}), false), RenderOptions{}, 1)
	require.Len(t, visuals, 2)
	assert.Equal(t, "state", visuals[0].Description)
	assert.Equal(t, "blur", visuals[1].Description)
}

// ── crossfade ─────────────────────────────────────────────────────────────────

func TestCrossfadeRampsAlpha(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	cf := NewCrossfade(200 * time.Millisecond)
	st := successState(solidBitmap(2, 2, color.NRGBA{A: 255}), false)
	st.At = base

	for _, tc := range []struct {
		elapsed time.Duration
		alpha   float64
	}{
		{0, 0},
		{50 * time.Millisecond, 0.25},
		{100 * time.Millisecond, 0.5},
		{200 * time.Millisecond, 1},
		{500 * time.Millisecond, 1},
	} {
		cf.now = func() time.Time { return base.Add(tc.elapsed) }
		v := cf.ComposeSuccess(RenderOptions{}, st, 1)
		require.NotNil(t, v)
		assert.InDelta(t, tc.alpha, v.Alpha, 1e-9, "elapsed %v", tc.elapsed)
	}
}

func TestCrossfadeSkipsCacheHits(t *testing.T) {
	t.Parallel()

	cf := NewCrossfade(200 * time.Millisecond)
	cf.now = func() time.Time { return time.Now() }

	st := successState(solidBitmap(2, 2, color.NRGBA{A: 255}), true)
	v := cf.ComposeSuccess(RenderOptions{}, st, 1)
	require.NotNil(t, v)
	assert.Equal(t, 1.0, v.Alpha)
	assert.Equal(t, "crossfade:skip", v.Description)
}

func TestCrossfadeNilResult(t *testing.T) {
	t.Parallel()

	cf := NewCrossfade(0)
	assert.Nil(t, cf.ComposeSuccess(RenderOptions{}, core.Success{At: time.Now()}, 1))
}

// ── placeholder ───────────────────────────────────────────────────────────────

func TestPlaceholder(t *testing.T) {
	t.Parallel()

	loading := solidBitmap(2, 2, color.NRGBA{B: 255, A: 255})
	failure := solidBitmap(2, 2, color.NRGBA{R: 255, A: 255})
	p := &Placeholder{Loading: loading, Failure: failure}

	v := p.ComposeLoading(RenderOptions{}, core.Loading{StartedAt: time.Now()}, 1)
	require.NotNil(t, v)
	assert.Same(t, loading, v.Bitmap)

	v = p.ComposeFailure(RenderOptions{}, core.Failure{At: time.Now()}, assert.AnError, 1)
	require.NotNil(t, v)
	assert.Same(t, failure, v.Bitmap)

	empty := &Placeholder{}
	assert.Nil(t, empty.ComposeLoading(RenderOptions{}, core.Loading{}, 1))
	assert.Nil(t, empty.ComposeFailure(RenderOptions{}, core.Failure{}, assert.AnError, 1))
}

// ── thumbhash ─────────────────────────────────────────────────────────────────

func TestThumbhashRendersRegisteredHash(t *testing.T) {
	t.Parallel()

	hash := preview.Encode(solidBitmap(64, 48, color.NRGBA{R: 30, G: 90, B: 200, A: 255}))
	require.NotEmpty(t, hash)

	th := NewThumbhash(config.PixelFormatNRGBA)
	th.SetHash(7, hash)

	v := th.ComposeLoading(RenderOptions{}, core.Loading{StartedAt: time.Now()}, 7)
	require.NotNil(t, v)
	require.NotNil(t, v.Bitmap)
	assert.Greater(t, v.Bitmap.Width, 0)
	assert.Greater(t, v.Bitmap.Height, 0)

	// Unregistered keys produce no visual.
	assert.Nil(t, th.ComposeLoading(RenderOptions{}, core.Loading{}, 8))
}

// ── palette ───────────────────────────────────────────────────────────────────

func TestPalettePluginNotifiesAsynchronously(t *testing.T) {
	t.Parallel()

	ext := palette.NewExtractor(cache.NewPaletteCache(4), 4, 32)
	got := make(chan core.Palette, 1)
	p := &Palette{Extractor: ext, Notify: func(_ uint64, pal core.Palette) { got <- pal }}

	bm := solidBitmap(16, 16, color.NRGBA{R: 220, G: 30, B: 30, A: 255})
	v := p.ComposeSuccess(RenderOptions{}, successState(bm, false), 3)
	assert.Nil(t, v, "palette plugin never replaces rendering")

	select {
	case pal := <-got:
		require.NotEmpty(t, pal.Swatches)
		dom, ok := pal.Dominant()
		require.True(t, ok)
		assert.Greater(t, int(dom.Color.R), 200)
	case <-time.After(2 * time.Second):
		t.Fatal("palette never delivered")
	}

	// Second composition hits the cache and notifies synchronously.
	p.ComposeSuccess(RenderOptions{}, successState(bm, true), 3)
	select {
	case <-got:
	default:
		t.Fatal("cached palette must notify on composition")
	}
}
