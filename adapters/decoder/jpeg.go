package decoder

import (
	"context"
	"image/jpeg"

	"github.com/argonlabs/imageload/core"
	apperrors "github.com/argonlabs/imageload/errors"
	"github.com/argonlabs/imageload/utils"
)

// JPEG decodes JPEG images using the standard library.
type JPEG struct{}

// NewJPEG returns an initialised JPEG decoder.
func NewJPEG() *JPEG { return &JPEG{} }

func (j *JPEG) CanDecode(format core.Format) bool {
	return format == core.FormatJPEG || format == core.FormatUnknown
}

func (j *JPEG) Decode(ctx context.Context, data []byte, opts core.DecodeOptions) (*core.DecodeResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, "jpeg.decode", err)
	}
	if len(data) == 0 {
		return nil, apperrors.New(apperrors.CategoryDecode, "jpeg.decode", apperrors.ErrEmptyInput)
	}

	img, err := jpeg.Decode(utils.BytesReader(data))
	if err != nil {
		return nil, unsupported("jpeg.decode", err)
	}
	return finish(img, opts), nil
}
