// Package imageload is an image-loading façade for declarative UIs: it turns
// a remote or local image reference into a displayable bitmap, exposes load
// progress as an observable state machine, de-duplicates concurrent decodes,
// and recycles memory through a weak-reference bitmap cache.
//
// The rendering layer and the concrete network/disk loaders stay external:
// bytes arrive through a Fetcher, and decoded states leave through the
// plugin composition as visual descriptions.
package imageload

import (
	"context"
	"image"

	"golang.org/x/sync/errgroup"

	"github.com/argonlabs/imageload/adapters/decoder"
	"github.com/argonlabs/imageload/cache"
	"github.com/argonlabs/imageload/config"
	"github.com/argonlabs/imageload/core"
	"github.com/argonlabs/imageload/fetch"
	"github.com/argonlabs/imageload/hooks"
	"github.com/argonlabs/imageload/palette"
	"github.com/argonlabs/imageload/plugin"
)

// Re-export Format constants for convenience.
const (
	JPEG = core.FormatJPEG
	PNG  = core.FormatPNG
	WebP = core.FormatWebP
	QOI  = core.FormatQOI
)

// DefaultConfig returns a sensible production configuration.
func DefaultConfig() config.Config { return config.Default() }

// ImageLoader is the primary entry point.
type ImageLoader struct {
	cfg      config.Config
	inner    *core.Loader
	reg      *core.DefaultRegistry
	bitmaps  *cache.BitmapCache
	palettes *cache.PaletteCache
	extract  *palette.Extractor
	comp     *plugin.Composition
}

// New creates a fully wired ImageLoader with the built-in JPEG, PNG, WebP,
// and QOI decoders registered.  fetcher produces the raw bytes for each
// source reference; with SourceCacheBytes set it is wrapped in the compressed
// byte cache.  Call Start() before loading; Stop() when done.
func New(cfg config.Config, fetcher core.Fetcher) (*ImageLoader, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	reg := core.NewRegistry()
	reg.RegisterDecoder(core.FormatJPEG, decoder.NewJPEG())
	reg.RegisterDecoder(core.FormatPNG, decoder.NewPNG())
	reg.RegisterDecoder(core.FormatWebP, decoder.NewWebP())
	reg.RegisterDecoder(core.FormatQOI, decoder.NewQOI())

	if cfg.SourceCacheBytes > 0 {
		cached, err := fetch.NewCaching(fetcher, cfg.SourceCacheBytes)
		if err != nil {
			return nil, err
		}
		fetcher = cached
	}

	bitmaps := cache.NewBitmapCache()
	palettes := cache.NewPaletteCache(cfg.PaletteCacheSize)

	var bc core.BitmapCache
	if cfg.UseBitmapCache {
		bc = bitmaps
	}

	inner := core.NewLoader(cfg, reg, fetcher, bc)
	inner.SetLogger(hooks.NewDefaultLogger(cfg.LogLevel))

	return &ImageLoader{
		cfg:      cfg,
		inner:    inner,
		reg:      reg,
		bitmaps:  bitmaps,
		palettes: palettes,
		extract:  palette.NewExtractor(palettes, cfg.PaletteMaxColors, cfg.PaletteSample),
		comp:     plugin.NewComposition(),
	}, nil
}

// SetLogger attaches a structured logger.
func (l *ImageLoader) SetLogger(lg core.Logger) { l.inner.SetLogger(lg) }

// SetMetrics attaches a metrics collector.
func (l *ImageLoader) SetMetrics(m core.MetricsCollector) { l.inner.SetMetrics(m) }

// AddHook registers a load lifecycle observer.
func (l *ImageLoader) AddHook(h core.Hook) { l.inner.AddHook(h) }

// RegisterDecoder registers a custom decoder for the given format.
func (l *ImageLoader) RegisterDecoder(f core.Format, d core.Decoder) { l.reg.RegisterDecoder(f, d) }

// SetRegionFactory installs a region-decode capability, typically the
// libvips adapter.  Deployments without one fall back to full decodes.
func (l *ImageLoader) SetRegionFactory(f core.RegionDecoderFactory) { l.reg.SetRegionFactory(f) }

// AddPlugin appends plugins to the composition in order.
func (l *ImageLoader) AddPlugin(plugins ...plugin.Plugin) { l.comp.Add(plugins...) }

// EnableCrossfade adds a crossfade plugin with the configured ramp duration.
func (l *ImageLoader) EnableCrossfade() {
	l.comp.Add(plugin.NewCrossfade(l.cfg.CrossfadeDuration))
}

// Composition returns the plugin composition for direct use by the renderer.
func (l *ImageLoader) Composition() *plugin.Composition { return l.comp }

// PaletteExtractor returns the shared, cache-backed palette extractor.
func (l *ImageLoader) PaletteExtractor() *palette.Extractor { return l.extract }

// BitmapCache exposes the weak bitmap cache (e.g., for explicit Remove).
func (l *ImageLoader) BitmapCache() *cache.BitmapCache { return l.bitmaps }

// Start launches the decode worker pool.  It is idempotent.
func (l *ImageLoader) Start() { l.inner.Start() }

// Stop shuts down the worker pool.
func (l *ImageLoader) Stop() { l.inner.Stop() }

// LoadOption customises a single load.
type LoadOption func(*core.DecodeOptions)

// WithTargetSize hints the decoder to downsample toward w x h.  Zero means
// unconstrained on that axis; sources are never upsampled.
func WithTargetSize(w, h int) LoadOption {
	return func(o *core.DecodeOptions) {
		o.TargetWidth = w
		o.TargetHeight = h
	}
}

// WithPixelFormat selects the output pixel layout for this load.
func WithPixelFormat(pf config.PixelFormat) LoadOption {
	return func(o *core.DecodeOptions) { o.PixelFormat = pf }
}

// WithoutCache bypasses the bitmap cache for this load.
func WithoutCache() LoadOption {
	return func(o *core.DecodeOptions) { o.UseCache = false }
}

// WithRegion requests decode of a sub-rectangle at the given sample size.
// When no region capability is installed, the loader falls back to a full
// decode at a downsized target.
func WithRegion(rect image.Rectangle, sampleSize int) LoadOption {
	return func(o *core.DecodeOptions) {
		r := rect
		o.Region = &r
		o.SampleSize = sampleSize
	}
}

// Request builds the immutable DecodeRequest for a source without starting a
// load.  Useful for pre-registering thumbhashes or probing caches by key.
func (l *ImageLoader) Request(source, mimeHint string, opts ...LoadOption) core.DecodeRequest {
	o := core.DecodeOptions{
		PixelFormat: l.cfg.DefaultPixelFormat,
		UseCache:    l.cfg.UseBitmapCache,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return core.NewDecodeRequest(source, mimeHint, o)
}

// Load starts a load for source and returns its state-machine instance.
// Concurrent loads for the same source and options attach to one decode.
// Cancelling ctx abandons this request cooperatively.
func (l *ImageLoader) Load(ctx context.Context, source string, opts ...LoadOption) (*core.Request, error) {
	return l.inner.Load(ctx, l.Request(source, "", opts...))
}

// LoadWithHint is Load with an explicit MIME hint from the caller.
func (l *ImageLoader) LoadWithHint(ctx context.Context, source, mimeHint string, opts ...LoadOption) (*core.Request, error) {
	return l.inner.Load(ctx, l.Request(source, mimeHint, opts...))
}

// Observe attaches the plugin composition to a request: each transition is
// composed under opts and delivered to sink on the transitioning goroutine.
func (l *ImageLoader) Observe(req *core.Request, opts plugin.RenderOptions, sink func(core.State, []plugin.Visual)) {
	l.comp.Observe(req, opts, sink)
}

// Preload warms the caches for a batch of sources.  All loads run to
// completion regardless of individual failures; the first error observed is
// returned after the batch settles.
func (l *ImageLoader) Preload(ctx context.Context, sources []string, opts ...LoadOption) error {
	var g errgroup.Group
	for _, source := range sources {
		g.Go(func() error {
			req, err := l.Load(ctx, source, opts...)
			if err != nil {
				return err
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-req.Done():
			}
			return req.Err()
		})
	}
	return g.Wait()
}
