package decoder

import (
	"context"

	"golang.org/x/image/webp"

	"github.com/argonlabs/imageload/core"
	apperrors "github.com/argonlabs/imageload/errors"
	"github.com/argonlabs/imageload/utils"
)

// WebP decodes WebP images using golang.org/x/image/webp.
// Animated WebP is not supported; register a libvips-backed decoder for that.
type WebP struct{}

// NewWebP returns an initialised WebP decoder.
func NewWebP() *WebP { return &WebP{} }

func (w *WebP) CanDecode(format core.Format) bool {
	return format == core.FormatWebP
}

func (w *WebP) Decode(ctx context.Context, data []byte, opts core.DecodeOptions) (*core.DecodeResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, "webp.decode", err)
	}
	if len(data) == 0 {
		return nil, apperrors.New(apperrors.CategoryDecode, "webp.decode", apperrors.ErrEmptyInput)
	}

	img, err := webp.Decode(utils.BytesReader(data))
	if err != nil {
		return nil, unsupported("webp.decode", err)
	}
	return finish(img, opts), nil
}
