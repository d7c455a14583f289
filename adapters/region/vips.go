//go:build cgo

// Package region provides a libvips-backed RegionDecoder.  libvips decodes
// sub-rectangles of large sources without materializing the full-resolution
// buffer, which is exactly the capability the loader negotiates for.
//
// Deployments without libvips simply never install this factory; the loader
// then treats region requests as a negotiated absence and falls back to a
// downsized full decode.
package region

import (
	"context"
	"image"
	"runtime"

	govips "github.com/davidbyttow/govips/v2/vips"

	"github.com/argonlabs/imageload/config"
	"github.com/argonlabs/imageload/core"
	apperrors "github.com/argonlabs/imageload/errors"
)

// FactoryConfig configures the libvips backend.
type FactoryConfig struct {
	MaxCacheSize int
	MaxWorkers   int
	ReportLeaks  bool
}

// Factory creates libvips region decoders.  Safe for concurrent use.
type Factory struct {
	cfg FactoryConfig
}

// NewFactory initialises libvips and returns a ready Factory.
// Call Shutdown() when the process exits.
func NewFactory(cfg FactoryConfig) *Factory {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = runtime.NumCPU()
	}
	govips.Startup(&govips.Config{
		ConcurrencyLevel: cfg.MaxWorkers,
		MaxCacheSize:     cfg.MaxCacheSize,
		ReportLeaks:      cfg.ReportLeaks,
	})
	return &Factory{cfg: cfg}
}

// Shutdown releases all libvips resources.  Call once at process exit.
func (f *Factory) Shutdown() {
	govips.Shutdown()
}

// NewRegionDecoder opens data with libvips.  Formats libvips cannot open are
// reported as a capability-negotiation result so callers fall back to a full
// decode instead of failing the load.
func (f *Factory) NewRegionDecoder(ctx context.Context, data []byte) (core.RegionDecoder, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, "region.open", err)
	}
	ref, err := govips.NewImageFromBuffer(data)
	if err != nil {
		return nil, apperrors.New(apperrors.CategoryDecode, "region.open", apperrors.ErrCapabilityUnavailable)
	}
	return &regionDecoder{ref: ref, data: data}, nil
}

type regionDecoder struct {
	ref *govips.ImageRef
	// Retained until Close: libvips reads from the buffer lazily.
	data []byte
}

func (d *regionDecoder) Bounds() image.Rectangle {
	return image.Rect(0, 0, d.ref.Width(), d.ref.Height())
}

func (d *regionDecoder) Close() error {
	d.ref.Close()
	d.data = nil
	return nil
}

// DecodeRegion extracts rect at 1/sampleSize scale.  Each call works on a
// cheap copy of the source ref, so a decoder can serve multiple regions.
func (d *regionDecoder) DecodeRegion(ctx context.Context, rect image.Rectangle, sampleSize int, opts core.DecodeOptions) (*core.DecodeResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, "region.decode", err)
	}
	rect = rect.Intersect(d.Bounds())
	if rect.Empty() {
		return nil, apperrors.New(apperrors.CategoryInput, "region.decode", apperrors.ErrInvalidDimensions)
	}
	if sampleSize < 1 {
		sampleSize = 1
	}

	cp, err := d.ref.Copy()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, "region.copy", err)
	}
	defer cp.Close()

	if err := cp.ExtractArea(rect.Min.X, rect.Min.Y, rect.Dx(), rect.Dy()); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, "region.extract", err)
	}
	if sampleSize > 1 {
		if err := cp.Resize(1/float64(sampleSize), govips.KernelLinear); err != nil {
			return nil, apperrors.Wrap(apperrors.CategoryDecode, "region.resize", err)
		}
	}

	img, err := exportNRGBA(cp)
	if err != nil {
		return nil, err
	}

	pf := opts.PixelFormat
	if pf == "" {
		pf = config.PixelFormatNRGBA
	}
	bm := core.BitmapFromImage(img, pf)
	return &core.DecodeResult{
		Bitmap: bm,
		Width:  bm.Width,
		Height: bm.Height,
		ColorInfo: core.ColorInfo{
			ColorSpace: core.ColorSpaceRGBA,
			HasAlpha:   cp.HasAlpha(),
		},
	}, nil
}

// exportNRGBA renders a vips ref into an NRGBA image via its raw band data.
func exportNRGBA(ref *govips.ImageRef) (*image.NRGBA, error) {
	if !ref.HasAlpha() {
		if err := ref.AddAlpha(); err != nil {
			return nil, apperrors.Wrap(apperrors.CategoryDecode, "region.alpha", err)
		}
	}
	raw, err := ref.ToBytes()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, "region.export", err)
	}
	w, h := ref.Width(), ref.Height()
	if len(raw) < w*h*4 {
		return nil, apperrors.New(apperrors.CategoryDecode, "region.export", apperrors.ErrInvalidDimensions)
	}
	return &image.NRGBA{Pix: raw[:w*h*4], Stride: w * 4, Rect: image.Rect(0, 0, w, h)}, nil
}

var _ core.RegionDecoderFactory = (*Factory)(nil)
