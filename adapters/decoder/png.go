package decoder

import (
	"context"
	"image/png"

	"github.com/argonlabs/imageload/core"
	apperrors "github.com/argonlabs/imageload/errors"
	"github.com/argonlabs/imageload/utils"
)

// PNG decodes PNG images using the standard library.
type PNG struct{}

// NewPNG returns an initialised PNG decoder.
func NewPNG() *PNG { return &PNG{} }

func (p *PNG) CanDecode(format core.Format) bool {
	return format == core.FormatPNG
}

func (p *PNG) Decode(ctx context.Context, data []byte, opts core.DecodeOptions) (*core.DecodeResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, "png.decode", err)
	}
	if len(data) == 0 {
		return nil, apperrors.New(apperrors.CategoryDecode, "png.decode", apperrors.ErrEmptyInput)
	}

	img, err := png.Decode(utils.BytesReader(data))
	if err != nil {
		return nil, unsupported("png.decode", err)
	}
	return finish(img, opts), nil
}
