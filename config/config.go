// Package config holds the top-level configuration for the image loader.
package config

import (
	"errors"
	"time"
)

// PixelFormat selects the canonical in-memory pixel layout for decoded bitmaps.
type PixelFormat string

const (
	// PixelFormatNRGBA is 8-bit non-premultiplied RGBA, 4 bytes per pixel.
	PixelFormatNRGBA PixelFormat = "nrgba"
	// PixelFormatRGB565 is 16-bit packed RGB, 2 bytes per pixel.
	PixelFormatRGB565 PixelFormat = "rgb565"
	// PixelFormatGray is 8-bit grayscale, 1 byte per pixel.
	PixelFormatGray PixelFormat = "gray"
)

// Config is the top-level configuration struct.  All fields have safe defaults
// so callers can start with Config{} and override only what they need.
type Config struct {
	// Worker pool controls.
	WorkerCount int // default: runtime.NumCPU()
	QueueSize   int // max queued decode jobs before backpressure; default: 256
	LoadTimeout time.Duration

	// Retry for transient fetch failures.
	MaxRetries int
	RetryDelay time.Duration

	// Decode defaults.
	DefaultPixelFormat PixelFormat // default PixelFormatNRGBA
	MaxImageBytes      int64       // reject sources larger than this; 0 = no limit

	// Caching.
	UseBitmapCache   bool // default true; per-request override via DecodeOptions
	PaletteCacheSize int  // LRU capacity; default 20
	SourceCacheBytes int64 // compressed source-byte cache budget; 0 disables

	// Palette extraction.
	PaletteMaxColors int // swatches per palette; default 8
	PaletteSample    int // pre-scale edge length for extraction; default 64

	// Crossfade composition.
	CrossfadeDuration time.Duration // default 350ms

	// Logging.
	LogLevel string // "debug", "info", "warn", "error"
}

// Default returns a Config populated with sensible production defaults.
func Default() Config {
	return Config{
		WorkerCount:        0, // resolved at runtime to NumCPU
		QueueSize:          256,
		LoadTimeout:        30 * time.Second,
		MaxRetries:         3,
		RetryDelay:         200 * time.Millisecond,
		DefaultPixelFormat: PixelFormatNRGBA,
		UseBitmapCache:     true,
		PaletteCacheSize:   20,
		PaletteMaxColors:   8,
		PaletteSample:      64,
		CrossfadeDuration:  350 * time.Millisecond,
		LogLevel:           "info",
	}
}

// Validate returns an error if the configuration is inconsistent.
func Validate(c Config) error {
	switch c.DefaultPixelFormat {
	case "", PixelFormatNRGBA, PixelFormatRGB565, PixelFormatGray:
	default:
		return errors.New("config: unknown DefaultPixelFormat")
	}
	if c.PaletteCacheSize < 0 {
		return errors.New("config: PaletteCacheSize must be non-negative")
	}
	if c.PaletteMaxColors < 1 {
		return errors.New("config: PaletteMaxColors must be at least 1")
	}
	if c.PaletteSample < 1 {
		return errors.New("config: PaletteSample must be at least 1")
	}
	if c.MaxRetries < 0 {
		return errors.New("config: MaxRetries must be non-negative")
	}
	if c.CrossfadeDuration < 0 {
		return errors.New("config: CrossfadeDuration must be non-negative")
	}
	return nil
}
