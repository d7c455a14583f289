package decoder

import (
	"context"

	"github.com/xfmoulet/qoi"

	"github.com/argonlabs/imageload/core"
	apperrors "github.com/argonlabs/imageload/errors"
	"github.com/argonlabs/imageload/utils"
)

// QOI decodes Quite OK Image files.
type QOI struct{}

// NewQOI returns an initialised QOI decoder.
func NewQOI() *QOI { return &QOI{} }

func (q *QOI) CanDecode(format core.Format) bool {
	return format == core.FormatQOI
}

func (q *QOI) Decode(ctx context.Context, data []byte, opts core.DecodeOptions) (*core.DecodeResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, "qoi.decode", err)
	}
	if len(data) == 0 {
		return nil, apperrors.New(apperrors.CategoryDecode, "qoi.decode", apperrors.ErrEmptyInput)
	}

	img, err := qoi.Decode(utils.BytesReader(data))
	if err != nil {
		return nil, unsupported("qoi.decode", err)
	}
	return finish(img, opts), nil
}
