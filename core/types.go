package core

import (
	"encoding/binary"
	"image"
	"image/color"
	"image/draw"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/argonlabs/imageload/config"
)

// Format identifies an image codec.
type Format string

const (
	FormatJPEG    Format = "jpeg"
	FormatPNG     Format = "png"
	FormatWebP    Format = "webp"
	FormatQOI     Format = "qoi"
	FormatUnknown Format = "unknown"
)

// ColorSpace represents the colour model of a decoded bitmap.
type ColorSpace string

const (
	ColorSpaceRGB  ColorSpace = "rgb"
	ColorSpaceRGBA ColorSpace = "rgba"
	ColorSpaceGray ColorSpace = "gray"
)

// ColorInfo carries colour metadata extracted during decode.
type ColorInfo struct {
	ColorSpace ColorSpace
	HasAlpha   bool
}

// Bitmap is an owned pixel buffer in the canonical layout selected at decode
// time.  A Bitmap is never mutated after creation; ownership transfers from
// decoder to cache to consumer in a single-owner chain.
type Bitmap struct {
	Pix    []byte
	Stride int
	Width  int
	Height int
	Format config.PixelFormat
}

// SizeBytes returns the byte size of the backing pixel buffer.
func (b *Bitmap) SizeBytes() int64 { return int64(len(b.Pix)) }

// Bounds returns the pixel rectangle of the bitmap.
func (b *Bitmap) Bounds() image.Rectangle {
	return image.Rect(0, 0, b.Width, b.Height)
}

// Image exposes the bitmap as an image.Image.  For PixelFormatNRGBA the
// returned image aliases the pixel buffer; other formats are converted.
func (b *Bitmap) Image() image.Image {
	switch b.Format {
	case config.PixelFormatGray:
		return &image.Gray{Pix: b.Pix, Stride: b.Stride, Rect: b.Bounds()}
	case config.PixelFormatRGB565:
		img := image.NewNRGBA(b.Bounds())
		for y := 0; y < b.Height; y++ {
			row := b.Pix[y*b.Stride:]
			for x := 0; x < b.Width; x++ {
				v := uint16(row[2*x]) | uint16(row[2*x+1])<<8
				o := img.PixOffset(x, y)
				img.Pix[o+0] = uint8((v >> 11 & 0x1F) << 3)
				img.Pix[o+1] = uint8((v >> 5 & 0x3F) << 2)
				img.Pix[o+2] = uint8((v & 0x1F) << 3)
				img.Pix[o+3] = 0xFF
			}
		}
		return img
	default:
		return &image.NRGBA{Pix: b.Pix, Stride: b.Stride, Rect: b.Bounds()}
	}
}

// BitmapFromImage converts src into a Bitmap with the given pixel format.
// The pixel data is copied; src is not retained.
func BitmapFromImage(src image.Image, pf config.PixelFormat) *Bitmap {
	if pf == "" {
		pf = config.PixelFormatNRGBA
	}
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	switch pf {
	case config.PixelFormatGray:
		dst := image.NewGray(image.Rect(0, 0, w, h))
		draw.Draw(dst, dst.Bounds(), src, bounds.Min, draw.Src)
		return &Bitmap{Pix: dst.Pix, Stride: dst.Stride, Width: w, Height: h, Format: pf}
	case config.PixelFormatRGB565:
		pix := make([]byte, w*h*2)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				r, g, b, _ := src.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
				v := uint16(r>>11)<<11 | uint16(g>>10)<<5 | uint16(b>>11)
				binary.LittleEndian.PutUint16(pix[(y*w+x)*2:], v)
			}
		}
		return &Bitmap{Pix: pix, Stride: w * 2, Width: w, Height: h, Format: pf}
	default:
		dst := image.NewNRGBA(image.Rect(0, 0, w, h))
		draw.Draw(dst, dst.Bounds(), src, bounds.Min, draw.Src)
		return &Bitmap{Pix: dst.Pix, Stride: dst.Stride, Width: w, Height: h, Format: config.PixelFormatNRGBA}
	}
}

// DecodeOptions are the request-time options recognised by decode.  Target
// dimensions are hints: decoders may downsample when the hint is smaller than
// the source but never upsample beyond it.
type DecodeOptions struct {
	TargetWidth  int
	TargetHeight int
	PixelFormat  config.PixelFormat
	UseCache     bool

	// Region decode.  Nil means full decode.  SampleSize n returns a buffer
	// downscaled by 1/n in each dimension; values < 1 are treated as 1.
	Region     *image.Rectangle
	SampleSize int
}

// DecodeRequest identifies a single load: an opaque source reference plus the
// decode options in force when the request was issued.  Immutable once built.
type DecodeRequest struct {
	Source   string
	MIMEHint string
	Options  DecodeOptions

	key uint64
}

// NewDecodeRequest derives the content key and returns an immutable request.
func NewDecodeRequest(source, mimeHint string, opts DecodeOptions) DecodeRequest {
	h := xxhash.New()
	_, _ = h.WriteString(source)
	_, _ = h.WriteString("\x00")
	_, _ = h.WriteString(mimeHint)
	_, _ = h.WriteString("\x00")
	_, _ = h.WriteString(string(opts.PixelFormat))

	var buf [8]byte
	writeInt := func(v int) {
		binary.LittleEndian.PutUint64(buf[:], uint64(int64(v)))
		_, _ = h.Write(buf[:])
	}
	writeInt(opts.TargetWidth)
	writeInt(opts.TargetHeight)
	writeInt(opts.SampleSize)
	if opts.Region != nil {
		writeInt(opts.Region.Min.X)
		writeInt(opts.Region.Min.Y)
		writeInt(opts.Region.Max.X)
		writeInt(opts.Region.Max.Y)
	}

	return DecodeRequest{Source: source, MIMEHint: mimeHint, Options: opts, key: h.Sum64()}
}

// Key returns the content key used for cache indexing and de-duplication.
// Requests with equal sources and equal decode-relevant options share a key;
// UseCache does not participate.
func (r DecodeRequest) Key() uint64 { return r.key }

// DecodeResult is the successful outcome of a decode: an owned pixel buffer
// plus metadata.  Failures travel as errors, classified by the errors package.
// A DecodeResult is never mutated after creation.
type DecodeResult struct {
	Bitmap    *Bitmap
	Width     int
	Height    int
	ColorInfo ColorInfo
}

// SwatchKind classifies an extracted palette swatch.
type SwatchKind string

const (
	SwatchDominant SwatchKind = "dominant"
	SwatchVibrant  SwatchKind = "vibrant"
	SwatchMuted    SwatchKind = "muted"
	SwatchDark     SwatchKind = "dark"
	SwatchLight    SwatchKind = "light"
)

// Swatch is one extracted colour with its pixel population.
type Swatch struct {
	Color      color.NRGBA
	Kind       SwatchKind
	Population int
	Proportion float64
}

// Palette is the colour summary extracted from a decoded bitmap.
type Palette struct {
	Swatches    []Swatch
	ExtractedAt time.Time
}

// Dominant returns the highest-population swatch, or false when empty.
func (p Palette) Dominant() (Swatch, bool) {
	if len(p.Swatches) == 0 {
		return Swatch{}, false
	}
	best := p.Swatches[0]
	for _, s := range p.Swatches[1:] {
		if s.Population > best.Population {
			best = s
		}
	}
	return best, true
}
