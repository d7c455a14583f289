package plugin

import (
	"time"

	"github.com/argonlabs/imageload/config"
	"github.com/argonlabs/imageload/core"
	"github.com/argonlabs/imageload/palette"
	"github.com/argonlabs/imageload/preview"
	"github.com/argonlabs/imageload/transform"
)

// ── Crossfade ─────────────────────────────────────────────────────────────────

// Crossfade ramps the alpha of a freshly decoded bitmap over Duration, so
// the image fades in instead of popping.  Cache hits skip the fade: the
// bitmap was already on screen recently and re-fading it looks broken.
type Crossfade struct {
	Duration time.Duration

	// now is swapped in tests.
	now func() time.Time
}

// NewCrossfade returns a crossfade plugin with the given ramp duration.
func NewCrossfade(d time.Duration) *Crossfade {
	if d <= 0 {
		d = 350 * time.Millisecond
	}
	return &Crossfade{Duration: d, now: time.Now}
}

func (c *Crossfade) PluginName() string { return "crossfade" }

func (c *Crossfade) ComposeSuccess(opts RenderOptions, st core.Success, _ uint64) *Visual {
	if st.Result == nil || st.Result.Bitmap == nil {
		return nil
	}
	if st.FromCache {
		return &Visual{Bitmap: st.Result.Bitmap, Alpha: 1, Description: "crossfade:skip"}
	}
	elapsed := c.now().Sub(st.At)
	t := float64(elapsed) / float64(c.Duration)
	if t < 0 {
		t = 0
	}
	if t > 1 {
		t = 1
	}
	return &Visual{Bitmap: st.Result.Bitmap, Alpha: t, Description: "crossfade"}
}

var _ SuccessPlugin = (*Crossfade)(nil)

// ── Placeholder ───────────────────────────────────────────────────────────────

// Placeholder shows a static bitmap while Loading and an optional error
// bitmap on Failure.
type Placeholder struct {
	Loading *core.Bitmap
	Failure *core.Bitmap
}

func (p *Placeholder) PluginName() string { return "placeholder" }

func (p *Placeholder) ComposeLoading(opts RenderOptions, _ core.Loading, _ uint64) *Visual {
	if p.Loading == nil {
		return nil
	}
	return &Visual{Bitmap: p.Loading, Alpha: 1, Description: "placeholder:loading"}
}

func (p *Placeholder) ComposeFailure(opts RenderOptions, _ core.Failure, _ error, _ uint64) *Visual {
	if p.Failure == nil {
		return nil
	}
	return &Visual{Bitmap: p.Failure, Alpha: 1, Description: "placeholder:failure"}
}

var (
	_ LoadingPlugin = (*Placeholder)(nil)
	_ FailurePlugin = (*Placeholder)(nil)
)

// ── Thumbhash preview ─────────────────────────────────────────────────────────

// Thumbhash renders a pre-computed ThumbHash as a blurry preview while the
// full image is Loading.  Hashes are registered per decode key, typically
// shipped alongside the image reference by the backend.
type Thumbhash struct {
	PixelFormat config.PixelFormat

	hashes map[uint64][]byte
}

// NewThumbhash returns an empty thumbhash registry plugin.
func NewThumbhash(pf config.PixelFormat) *Thumbhash {
	return &Thumbhash{PixelFormat: pf, hashes: make(map[uint64][]byte)}
}

// SetHash registers the ThumbHash bytes for a decode key.  Not safe for
// concurrent use with composition; register hashes before issuing requests.
func (t *Thumbhash) SetHash(key uint64, hash []byte) {
	t.hashes[key] = hash
}

func (t *Thumbhash) PluginName() string { return "thumbhash" }

func (t *Thumbhash) ComposeLoading(opts RenderOptions, _ core.Loading, key uint64) *Visual {
	hash, ok := t.hashes[key]
	if !ok {
		return nil
	}
	bm, err := preview.Render(hash, t.PixelFormat)
	if err != nil {
		return nil
	}
	return &Visual{Bitmap: bm, Alpha: 1, Description: "thumbhash"}
}

var _ LoadingPlugin = (*Thumbhash)(nil)

// ── Blur painter ──────────────────────────────────────────────────────────────

// BlurPainter blurs the decoded bitmap of every successful load.
type BlurPainter struct {
	Radius float64
}

func (b *BlurPainter) PluginName() string { return "blur" }

func (b *BlurPainter) Paint(opts RenderOptions, bm *core.Bitmap) *Visual {
	out, err := transform.Blur(bm, b.Radius)
	if err != nil {
		return nil
	}
	return &Visual{Bitmap: out, Alpha: 1, Description: "blur"}
}

var _ PainterPlugin = (*BlurPainter)(nil)

// ── Palette ───────────────────────────────────────────────────────────────────

// PaletteNotify receives the palette extracted for a successful load.
type PaletteNotify func(key uint64, p core.Palette)

// Palette extracts colour swatches from successful loads.  Composition must
// not block, so a cache miss only schedules extraction on a background
// goroutine and reports through the callback; the cached palette is used
// directly on subsequent compositions.
type Palette struct {
	Extractor *palette.Extractor
	Notify    PaletteNotify
}

func (p *Palette) PluginName() string { return "palette" }

func (p *Palette) ComposeSuccess(opts RenderOptions, st core.Success, key uint64) *Visual {
	if st.Result == nil || st.Result.Bitmap == nil || p.Extractor == nil {
		return nil
	}
	if pal, ok := p.Extractor.Cached(key); ok {
		p.notify(key, pal)
		return nil
	}
	bm := st.Result.Bitmap
	go func() {
		pal := p.Extractor.Extract(key, bm)
		p.notify(key, pal)
	}()
	return nil
}

func (p *Palette) notify(key uint64, pal core.Palette) {
	if p.Notify != nil {
		p.Notify(key, pal)
	}
}

var _ SuccessPlugin = (*Palette)(nil)
