// Package transform provides post-processing effects applied to decoded
// bitmaps: Gaussian blur, crossfade blending, and colour-matrix transforms.
// Transforms never mutate their inputs; each returns a freshly owned bitmap.
package transform

import (
	"image"

	"github.com/anthonynsimon/bild/blur"

	"github.com/argonlabs/imageload/core"
	apperrors "github.com/argonlabs/imageload/errors"
)

// Blur returns a Gaussian-blurred copy of bm.  radius is in pixels; a radius
// below one returns an unmodified copy.
func Blur(bm *core.Bitmap, radius float64) (*core.Bitmap, error) {
	if bm == nil {
		return nil, apperrors.New(apperrors.CategoryInput, "transform.blur", apperrors.ErrEmptyInput)
	}
	if radius < 1 {
		return core.BitmapFromImage(bm.Image(), bm.Format), nil
	}
	out := blur.Gaussian(bm.Image(), radius)
	return core.BitmapFromImage(out, bm.Format), nil
}

// Crossfade blends from a into b by t in [0, 1]: 0 yields a, 1 yields b.
// The inputs may differ in size; the output takes b's dimensions and a is
// sampled with clamping.  Either input may be nil, which fades from or to
// transparency.
func Crossfade(a, b *core.Bitmap, t float64) (*core.Bitmap, error) {
	if a == nil && b == nil {
		return nil, apperrors.New(apperrors.CategoryInput, "transform.crossfade", apperrors.ErrEmptyInput)
	}
	if t < 0 {
		t = 0
	}
	if t > 1 {
		t = 1
	}

	ref := b
	if ref == nil {
		ref = a
	}
	w, h := ref.Width, ref.Height
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))

	var imgA, imgB image.Image
	if a != nil {
		imgA = a.Image()
	}
	if b != nil {
		imgB = b.Image()
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var ar, ag, ab, aa, br, bg, bb, ba float64
			if imgA != nil {
				r, g, bl, al := sampleClamped(imgA, x, y)
				ar, ag, ab, aa = r, g, bl, al
			}
			if imgB != nil {
				r, g, bl, al := sampleClamped(imgB, x, y)
				br, bg, bb, ba = r, g, bl, al
			}
			o := dst.PixOffset(x, y)
			dst.Pix[o+0] = lerpByte(ar, br, t)
			dst.Pix[o+1] = lerpByte(ag, bg, t)
			dst.Pix[o+2] = lerpByte(ab, bb, t)
			dst.Pix[o+3] = lerpByte(aa, ba, t)
		}
	}
	return core.BitmapFromImage(dst, ref.Format), nil
}

// ColorMatrix is a 4x5 matrix applied to [r g b a 1] vectors, rows R, G, B, A.
type ColorMatrix [20]float64

// GrayscaleMatrix converts to luminance using Rec. 601 weights.
func GrayscaleMatrix() ColorMatrix {
	return ColorMatrix{
		0.299, 0.587, 0.114, 0, 0,
		0.299, 0.587, 0.114, 0, 0,
		0.299, 0.587, 0.114, 0, 0,
		0, 0, 0, 1, 0,
	}
}

// TintMatrix scales each channel; useful for colour filters.
func TintMatrix(r, g, b float64) ColorMatrix {
	return ColorMatrix{
		r, 0, 0, 0, 0,
		0, g, 0, 0, 0,
		0, 0, b, 0, 0,
		0, 0, 0, 1, 0,
	}
}

// ApplyColorMatrix returns a copy of bm with m applied per pixel.
func ApplyColorMatrix(bm *core.Bitmap, m ColorMatrix) (*core.Bitmap, error) {
	if bm == nil {
		return nil, apperrors.New(apperrors.CategoryInput, "transform.colormatrix", apperrors.ErrEmptyInput)
	}
	src := bm.Image()
	bounds := src.Bounds()
	dst := image.NewNRGBA(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r16, g16, b16, a16 := src.At(x, y).RGBA()
			r := float64(r16) / 65535
			g := float64(g16) / 65535
			b := float64(b16) / 65535
			a := float64(a16) / 65535

			o := dst.PixOffset(x, y)
			dst.Pix[o+0] = clamp01Byte(m[0]*r + m[1]*g + m[2]*b + m[3]*a + m[4])
			dst.Pix[o+1] = clamp01Byte(m[5]*r + m[6]*g + m[7]*b + m[8]*a + m[9])
			dst.Pix[o+2] = clamp01Byte(m[10]*r + m[11]*g + m[12]*b + m[13]*a + m[14])
			dst.Pix[o+3] = clamp01Byte(m[15]*r + m[16]*g + m[17]*b + m[18]*a + m[19])
		}
	}
	return core.BitmapFromImage(dst, bm.Format), nil
}

func sampleClamped(img image.Image, x, y int) (r, g, b, a float64) {
	bounds := img.Bounds()
	px := bounds.Min.X + x
	py := bounds.Min.Y + y
	if px >= bounds.Max.X {
		px = bounds.Max.X - 1
	}
	if py >= bounds.Max.Y {
		py = bounds.Max.Y - 1
	}
	r16, g16, b16, a16 := img.At(px, py).RGBA()
	return float64(r16 >> 8), float64(g16 >> 8), float64(b16 >> 8), float64(a16 >> 8)
}

func lerpByte(a, b, t float64) byte {
	v := a + (b-a)*t
	if v < 0 {
		v = 0
	}
	if v > 255 {
		v = 255
	}
	return byte(v + 0.5)
}

func clamp01Byte(f float64) byte {
	if f < 0 {
		f = 0
	}
	if f > 1 {
		f = 1
	}
	return byte(f*255 + 0.5)
}
