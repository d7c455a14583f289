package core

import (
	"context"
	"image"
	"time"
)

// Decoder converts raw encoded bytes into a DecodeResult.
// Implementations live in adapters/decoder/.
type Decoder interface {
	// Decode turns data into a pixel buffer.  Target dimensions in opts are
	// downsample hints; implementations must not upsample beyond the source.
	// Malformed input yields an error classified as decode/unsupported-format,
	// never a panic.  Implementations must not retain data after returning.
	Decode(ctx context.Context, data []byte, opts DecodeOptions) (*DecodeResult, error)
	// CanDecode reports whether this decoder handles the given format hint.
	CanDecode(format Format) bool
}

// RegionDecoder incrementally decodes sub-rectangles of a large source
// without materializing the full-resolution buffer.
type RegionDecoder interface {
	// DecodeRegion decodes rect at the given sample size (1 = full resolution,
	// n = 1/n in each dimension).
	DecodeRegion(ctx context.Context, rect image.Rectangle, sampleSize int, opts DecodeOptions) (*DecodeResult, error)
	// Bounds returns the full-resolution pixel rectangle of the source.
	Bounds() image.Rectangle
	// Close releases decoder resources.
	Close() error
}

// RegionDecoderFactory negotiates region-decode support for a byte source.
// Platforms without native support return errors.ErrCapabilityUnavailable,
// which callers must treat as a fallback signal, not a failure.
type RegionDecoderFactory interface {
	NewRegionDecoder(ctx context.Context, data []byte) (RegionDecoder, error)
}

// Fetcher produces raw bytes for an opaque source reference.  Network and
// disk specifics live behind this contract; the core never sees them.
type Fetcher interface {
	Fetch(ctx context.Context, source string) ([]byte, error)
}

// BitmapCache maps decode keys to previously decoded bitmaps.  Get returns
// false both on a true miss and when the backing memory was already
// reclaimed; callers treat both as "decode again".
type BitmapCache interface {
	Get(key uint64) (*Bitmap, bool)
	Put(key uint64, bm *Bitmap)
	Remove(key uint64)
}

// PaletteCache maps decode keys to extracted colour summaries with bounded
// capacity and LRU eviction.
type PaletteCache interface {
	Get(key uint64) (Palette, bool)
	Put(key uint64, p Palette)
}

// Logger is a minimal structured logging interface.
type Logger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
}

// MetricsCollector receives performance observations from the loader.
type MetricsCollector interface {
	RecordDecodeTime(format string, d time.Duration)
	RecordCacheHit()
	RecordCacheMiss()
	RecordBitmapBytes(bytes int64)
	RecordError(op string, category string)
}

// Hook is an optional observer invoked around each load.
type Hook interface {
	BeforeLoad(ctx context.Context, req DecodeRequest)
	AfterLoad(ctx context.Context, req DecodeRequest, st State, d time.Duration, err error)
}

// Registry maps Format values to Decoder implementations and holds the
// optional region-decode factory for the deployment.
type Registry interface {
	DecoderFor(format Format) (Decoder, bool)
	RegisterDecoder(format Format, d Decoder)
	RegionFactory() (RegionDecoderFactory, bool)
	SetRegionFactory(f RegionDecoderFactory)
}
