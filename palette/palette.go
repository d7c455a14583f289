// Package palette extracts colour summaries from decoded bitmaps.
//
// Extraction quantises a downsampled copy of the bitmap into coarse RGB
// buckets, ranks buckets by pixel population, and classifies the leading
// swatches (vibrant, muted, dark, light) in HSV space.  Results are memoised
// in the bounded palette cache keyed by the decode key; concurrent
// extractions for the same key collapse into one via singleflight.
package palette

import (
	"image"
	"image/color"
	"sort"
	"strconv"
	"time"

	"github.com/disintegration/imaging"
	colorful "github.com/lucasb-eyer/go-colorful"
	"golang.org/x/sync/singleflight"

	"github.com/argonlabs/imageload/core"
)

// bucketBits controls quantisation granularity: 4 bits per channel keeps the
// histogram at 4096 buckets, small enough to walk on every extraction.
const bucketBits = 4

// Extractor computes palettes from bitmaps.  Safe for concurrent use.
type Extractor struct {
	cache     core.PaletteCache // may be nil
	maxColors int
	sample    int
	group     singleflight.Group
}

// NewExtractor returns an Extractor producing up to maxColors swatches from
// a pre-scaled copy no larger than sample pixels on the long edge.
func NewExtractor(cache core.PaletteCache, maxColors, sample int) *Extractor {
	if maxColors < 1 {
		maxColors = 8
	}
	if sample < 1 {
		sample = 64
	}
	return &Extractor{cache: cache, maxColors: maxColors, sample: sample}
}

// Extract returns the palette for bm, computing and caching it on miss.
// key is the decode key of the bitmap's request.
func (e *Extractor) Extract(key uint64, bm *core.Bitmap) core.Palette {
	if e.cache != nil {
		if p, ok := e.cache.Get(key); ok {
			return p
		}
	}

	v, _, _ := e.group.Do(strconv.FormatUint(key, 16), func() (interface{}, error) {
		p := e.compute(bm)
		if e.cache != nil {
			e.cache.Put(key, p)
		}
		return p, nil
	})
	return v.(core.Palette)
}

// Cached returns the palette for key without computing on miss.
func (e *Extractor) Cached(key uint64) (core.Palette, bool) {
	if e.cache == nil {
		return core.Palette{}, false
	}
	return e.cache.Get(key)
}

func (e *Extractor) compute(bm *core.Bitmap) core.Palette {
	img := e.prescale(bm)
	bounds := img.Bounds()
	total := bounds.Dx() * bounds.Dy()
	if total == 0 {
		return core.Palette{ExtractedAt: time.Now()}
	}

	type bucket struct {
		count   int
		r, g, b uint64 // running sums for the bucket mean
	}
	hist := make(map[uint32]*bucket)
	shift := 8 - bucketBits

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, a := img.At(x, y).RGBA()
			if a>>8 < 16 {
				// Nearly transparent pixels say nothing about the image.
				continue
			}
			r8, g8, b8 := uint8(r>>8), uint8(g>>8), uint8(b>>8)
			id := uint32(r8>>shift)<<(2*bucketBits) | uint32(g8>>shift)<<bucketBits | uint32(b8>>shift)
			bk := hist[id]
			if bk == nil {
				bk = &bucket{}
				hist[id] = bk
			}
			bk.count++
			bk.r += uint64(r8)
			bk.g += uint64(g8)
			bk.b += uint64(b8)
		}
	}

	buckets := make([]*bucket, 0, len(hist))
	for _, bk := range hist {
		buckets = append(buckets, bk)
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].count > buckets[j].count })
	if len(buckets) > e.maxColors {
		buckets = buckets[:e.maxColors]
	}

	swatches := make([]core.Swatch, 0, len(buckets))
	for i, bk := range buckets {
		n := uint64(bk.count)
		c := color.NRGBA{
			R: uint8(bk.r / n),
			G: uint8(bk.g / n),
			B: uint8(bk.b / n),
			A: 0xFF,
		}
		kind := classify(c)
		if i == 0 {
			kind = core.SwatchDominant
		}
		swatches = append(swatches, core.Swatch{
			Color:      c,
			Kind:       kind,
			Population: bk.count,
			Proportion: float64(bk.count) / float64(total),
		})
	}
	return core.Palette{Swatches: swatches, ExtractedAt: time.Now()}
}

// prescale shrinks the bitmap so extraction cost is independent of source
// size.  Box sampling is plenty for a histogram.
func (e *Extractor) prescale(bm *core.Bitmap) image.Image {
	img := bm.Image()
	if bm.Width <= e.sample && bm.Height <= e.sample {
		return img
	}
	if bm.Width >= bm.Height {
		return imaging.Resize(img, e.sample, 0, imaging.Box)
	}
	return imaging.Resize(img, 0, e.sample, imaging.Box)
}

// classify maps a swatch colour to its perceptual bucket in HSV space.
func classify(c color.NRGBA) core.SwatchKind {
	cf := colorful.Color{R: float64(c.R) / 255, G: float64(c.G) / 255, B: float64(c.B) / 255}
	_, s, v := cf.Hsv()
	switch {
	case v < 0.25:
		return core.SwatchDark
	case v > 0.85 && s < 0.25:
		return core.SwatchLight
	case s >= 0.5:
		return core.SwatchVibrant
	default:
		return core.SwatchMuted
	}
}
