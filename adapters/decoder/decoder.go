// Package decoder provides format-specific image decoders.
package decoder

import (
	"fmt"
	"image"

	xdraw "golang.org/x/image/draw"

	"github.com/argonlabs/imageload/core"
	apperrors "github.com/argonlabs/imageload/errors"
	"github.com/argonlabs/imageload/utils"
)

// finish converts a decoded image.Image into a DecodeResult, downsampling to
// the target hint when the hint is smaller than the source.  Sources are
// never upsampled: hints larger than the source leave it untouched.
func finish(src image.Image, opts core.DecodeOptions) *core.DecodeResult {
	bounds := src.Bounds()
	srcW, srcH := bounds.Dx(), bounds.Dy()

	w, h := utils.FitDimensions(srcW, srcH, opts.TargetWidth, opts.TargetHeight)
	if w != srcW || h != srcH {
		dst := image.NewNRGBA(image.Rect(0, 0, w, h))
		xdraw.BiLinear.Scale(dst, dst.Bounds(), src, bounds, xdraw.Src, nil)
		src = dst
	}

	bm := core.BitmapFromImage(src, opts.PixelFormat)
	return &core.DecodeResult{
		Bitmap: bm,
		Width:  bm.Width,
		Height: bm.Height,
		ColorInfo: core.ColorInfo{
			ColorSpace: colorSpace(src),
			HasAlpha:   hasAlpha(src),
		},
	}
}

// unsupported classifies a codec error as a decode failure carrying the
// unsupported-format sentinel, so malformed bytes never escape as faults.
func unsupported(op string, err error) error {
	return apperrors.New(apperrors.CategoryDecode, op,
		fmt.Errorf("%w: %v", apperrors.ErrUnsupportedFormat, err))
}

// colorSpace returns the colour space of an image.Image.
func colorSpace(img image.Image) core.ColorSpace {
	switch img.(type) {
	case *image.Gray, *image.Gray16:
		return core.ColorSpaceGray
	case *image.RGBA, *image.NRGBA, *image.RGBA64, *image.NRGBA64:
		return core.ColorSpaceRGBA
	}
	return core.ColorSpaceRGB
}

func hasAlpha(img image.Image) bool {
	switch img.(type) {
	case *image.RGBA, *image.NRGBA, *image.RGBA64, *image.NRGBA64:
		return true
	}
	return false
}
