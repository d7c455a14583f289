// Package preview implements the ThumbHash algorithm for compact image
// placeholders: Encode condenses a bitmap into a 20-35 byte hash, Render
// reconstructs a small blurry preview bitmap from a hash.  Both directions
// are deterministic.
package preview

import (
	"math"

	"github.com/argonlabs/imageload/config"
	"github.com/argonlabs/imageload/core"
	apperrors "github.com/argonlabs/imageload/errors"
)

// maxInputDim bounds the working copy used for encoding.
const maxInputDim = 100

// renderBaseDim is the long edge of rendered previews.
const renderBaseDim = 32

// Encode produces a ThumbHash for bm.  The output is 20-35 bytes depending
// on aspect ratio and alpha presence.
func Encode(bm *core.Bitmap) []byte {
	w, h, rgba := sampleRGBA(bm)

	// Alpha-weighted average colour decides the alpha channel's presence.
	var avgR, avgG, avgB, avgA float64
	for i := 0; i < w*h; i++ {
		a := float64(rgba[i*4+3]) / 255
		avgR += a / 255 * float64(rgba[i*4])
		avgG += a / 255 * float64(rgba[i*4+1])
		avgB += a / 255 * float64(rgba[i*4+2])
		avgA += a
	}
	if avgA > 0 {
		avgR /= avgA
		avgG /= avgA
		avgB /= avgA
	}
	hasAlpha := avgA < float64(w*h)

	lLimit := 7
	if hasAlpha {
		lLimit = 5
	}
	maxDim := w
	if h > maxDim {
		maxDim = h
	}
	lx := maxInt(1, int(math.Round(float64(lLimit*w)/float64(maxDim))))
	ly := maxInt(1, int(math.Round(float64(lLimit*h)/float64(maxDim))))

	// Convert to the LPQA colour space: luminance, yellow-blue axis,
	// red-green axis, alpha.  Transparent pixels blend toward the average so
	// edges do not ring.
	l := make([]float64, w*h)
	p := make([]float64, w*h)
	q := make([]float64, w*h)
	al := make([]float64, w*h)
	for i := 0; i < w*h; i++ {
		a := float64(rgba[i*4+3]) / 255
		r := avgR*(1-a) + a/255*float64(rgba[i*4])
		g := avgG*(1-a) + a/255*float64(rgba[i*4+1])
		b := avgB*(1-a) + a/255*float64(rgba[i*4+2])
		l[i] = (r + g + b) / 3
		p[i] = (r+g)/2 - b
		q[i] = r - g
		al[i] = a
	}

	lDC, lAC, lScale := encodeChannel(l, maxInt(3, lx), maxInt(3, ly), w, h)
	pDC, pAC, pScale := encodeChannel(p, 3, 3, w, h)
	qDC, qAC, qScale := encodeChannel(q, 3, 3, w, h)
	aDC, aAC, aScale := 1.0, []float64(nil), 0.0
	if hasAlpha {
		aDC, aAC, aScale = encodeChannel(al, 5, 5, w, h)
	}

	isLandscape := w > h
	header24 := uint32(math.Round(63*lDC)) |
		uint32(math.Round(31.5+31.5*pDC))<<6 |
		uint32(math.Round(31.5+31.5*qDC))<<12 |
		uint32(math.Round(31*lScale))<<18
	if hasAlpha {
		header24 |= 1 << 23
	}
	lCount := lx
	if isLandscape {
		lCount = ly
	}
	header16 := uint16(lCount) |
		uint16(math.Round(63*pScale))<<3 |
		uint16(math.Round(63*qScale))<<9
	if isLandscape {
		header16 |= 1 << 15
	}

	hash := make([]byte, 0, 25)
	hash = append(hash,
		byte(header24), byte(header24>>8), byte(header24>>16),
		byte(header16), byte(header16>>8))
	if hasAlpha {
		hash = append(hash, byte(math.Round(15*aDC))|byte(math.Round(15*aScale))<<4)
	}

	// Pack AC coefficients two nibbles per byte, l then p then q then a.
	acIndex := 0
	for _, ac := range [][]float64{lAC, pAC, qAC, aAC} {
		for _, f := range ac {
			nib := byte(math.Round(15 * f))
			if acIndex&1 == 0 {
				hash = append(hash, nib)
			} else {
				hash[len(hash)-1] |= nib << 4
			}
			acIndex++
		}
	}
	return hash
}

// Render reconstructs a preview bitmap from hash.  The long edge of the
// result is renderBaseDim pixels; aspect ratio approximates the source's.
func Render(hash []byte, pf config.PixelFormat) (*core.Bitmap, error) {
	if len(hash) < 5 {
		return nil, apperrors.New(apperrors.CategoryInput, "preview.render", apperrors.ErrEmptyInput)
	}

	header24 := uint32(hash[0]) | uint32(hash[1])<<8 | uint32(hash[2])<<16
	header16 := uint16(hash[3]) | uint16(hash[4])<<8
	lDC := float64(header24&63) / 63
	pDC := float64(header24>>6&63)/31.5 - 1
	qDC := float64(header24>>12&63)/31.5 - 1
	lScale := float64(header24>>18&31) / 31
	hasAlpha := header24>>23 != 0
	pScale := float64(header16>>3&63) / 63
	qScale := float64(header16>>9&63) / 63
	isLandscape := header16>>15 != 0

	lMax := 7
	if hasAlpha {
		lMax = 5
	}
	lx := maxInt(3, lMax)
	ly := maxInt(3, int(header16&7))
	if !isLandscape {
		lx, ly = maxInt(3, int(header16&7)), maxInt(3, lMax)
	}

	aDC, aScale := 1.0, 0.0
	acStart := 5
	if hasAlpha {
		if len(hash) < 6 {
			return nil, apperrors.New(apperrors.CategoryInput, "preview.render", apperrors.ErrEmptyInput)
		}
		aDC = float64(hash[5]&15) / 15
		aScale = float64(hash[5]>>4) / 15
		acStart = 6
	}

	acIndex := 0
	readChannel := func(nx, ny int, scale float64) ([]float64, error) {
		var ac []float64
		for cy := 0; cy < ny; cy++ {
			cx := 0
			if cy == 0 {
				cx = 1
			}
			for ; cx*ny < nx*(ny-cy); cx++ {
				pos := acStart + acIndex/2
				if pos >= len(hash) {
					return nil, apperrors.New(apperrors.CategoryInput, "preview.render", apperrors.ErrEmptyInput)
				}
				nib := hash[pos] >> ((acIndex & 1) * 4) & 15
				ac = append(ac, (float64(nib)/7.5-1)*scale)
				acIndex++
			}
		}
		return ac, nil
	}

	lAC, err := readChannel(lx, ly, lScale)
	if err != nil {
		return nil, err
	}
	pAC, err := readChannel(3, 3, pScale*1.25)
	if err != nil {
		return nil, err
	}
	qAC, err := readChannel(3, 3, qScale*1.25)
	if err != nil {
		return nil, err
	}
	var aAC []float64
	if hasAlpha {
		if aAC, err = readChannel(5, 5, aScale); err != nil {
			return nil, err
		}
	}

	ratio := aspectRatio(lx, ly)
	var w, h int
	if ratio > 1 {
		w, h = renderBaseDim, int(math.Round(renderBaseDim/ratio))
	} else {
		w, h = int(math.Round(renderBaseDim*ratio)), renderBaseDim
	}
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}

	rgba := make([]byte, w*h*4)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			fl := evalChannel(lDC, lAC, lx, ly, x, y, w, h)
			fp := evalChannel(pDC, pAC, 3, 3, x, y, w, h)
			fq := evalChannel(qDC, qAC, 3, 3, x, y, w, h)
			fa := aDC
			if hasAlpha {
				fa = evalChannel(aDC, aAC, 5, 5, x, y, w, h)
			}

			// LPQA back to RGB.
			b := fl - 2.0/3.0*fp
			r := (3*fl - b + fq) / 2
			g := r - fq

			o := (y*w + x) * 4
			rgba[o+0] = clampByte(r)
			rgba[o+1] = clampByte(g)
			rgba[o+2] = clampByte(b)
			rgba[o+3] = clampByte(fa)
		}
	}

	bm := &core.Bitmap{Pix: rgba, Stride: w * 4, Width: w, Height: h, Format: config.PixelFormatNRGBA}
	if pf != "" && pf != config.PixelFormatNRGBA {
		bm = core.BitmapFromImage(bm.Image(), pf)
	}
	return bm, nil
}

// AspectRatio returns the approximate width/height ratio stored in hash.
func AspectRatio(hash []byte) float64 {
	if len(hash) < 5 {
		return 1
	}
	header24 := uint32(hash[0]) | uint32(hash[1])<<8 | uint32(hash[2])<<16
	header16 := uint16(hash[3]) | uint16(hash[4])<<8
	hasAlpha := header24>>23 != 0
	isLandscape := header16>>15 != 0
	lMax := 7
	if hasAlpha {
		lMax = 5
	}
	lx, ly := lMax, int(header16&7)
	if !isLandscape {
		lx, ly = int(header16&7), lMax
	}
	return aspectRatio(maxInt(3, lx), maxInt(3, ly))
}

// ── internals ─────────────────────────────────────────────────────────────────

// encodeChannel runs a DCT over the triangular coefficient set and returns
// the DC term, the normalised AC terms, and the AC scale.
func encodeChannel(channel []float64, nx, ny, w, h int) (dc float64, ac []float64, scale float64) {
	fx := make([]float64, w)
	for cy := 0; cy < ny; cy++ {
		cx := 0
		if cy == 0 {
			cx = 1
			// DC term.
			dc = dctTerm(channel, 0, 0, w, h, fx)
		}
		for ; cx*ny < nx*(ny-cy); cx++ {
			f := dctTerm(channel, cx, cy, w, h, fx)
			ac = append(ac, f)
			scale = math.Max(scale, math.Abs(f))
		}
	}
	if scale > 0 {
		for i := range ac {
			ac[i] = 0.5 + 0.5/scale*ac[i]
		}
	}
	return dc, ac, scale
}

func dctTerm(channel []float64, cx, cy, w, h int, fx []float64) float64 {
	for x := 0; x < w; x++ {
		fx[x] = math.Cos(math.Pi / float64(w) * float64(cx) * (float64(x) + 0.5))
	}
	var f float64
	for y := 0; y < h; y++ {
		fy := math.Cos(math.Pi / float64(h) * float64(cy) * (float64(y) + 0.5))
		for x := 0; x < w; x++ {
			f += channel[y*w+x] * fx[x] * fy
		}
	}
	return f / float64(w*h)
}

// evalChannel reconstructs one channel value at pixel (x, y) from the DC and
// AC coefficients, walking the same triangular set the encoder produced.
func evalChannel(dc float64, ac []float64, nx, ny, x, y, w, h int) float64 {
	f := dc
	i := 0
	for cy := 0; cy < ny; cy++ {
		cx := 0
		if cy == 0 {
			cx = 1
		}
		fy := math.Cos(math.Pi / float64(h) * (float64(y) + 0.5) * float64(cy))
		for ; cx*ny < nx*(ny-cy) && i < len(ac); cx++ {
			fxv := math.Cos(math.Pi / float64(w) * (float64(x) + 0.5) * float64(cx))
			f += ac[i] * 2 * fxv * fy
			i++
		}
	}
	return f
}

func aspectRatio(lx, ly int) float64 {
	return float64(lx) / float64(ly)
}

// sampleRGBA returns a working copy of bm no larger than maxInputDim on
// either edge, as tightly packed RGBA bytes in the 0-255 range.
func sampleRGBA(bm *core.Bitmap) (int, int, []byte) {
	w, h := bm.Width, bm.Height
	stepX, stepY := 1, 1
	for w/stepX > maxInputDim {
		stepX++
	}
	for h/stepY > maxInputDim {
		stepY++
	}
	outW, outH := w/stepX, h/stepY
	if outW < 1 {
		outW = 1
	}
	if outH < 1 {
		outH = 1
	}

	img := bm.Image()
	out := make([]byte, outW*outH*4)
	for oy := 0; oy < outH; oy++ {
		for ox := 0; ox < outW; ox++ {
			r, g, b, a := img.At(ox*stepX, oy*stepY).RGBA()
			o := (oy*outW + ox) * 4
			out[o+0] = byte(r >> 8)
			out[o+1] = byte(g >> 8)
			out[o+2] = byte(b >> 8)
			out[o+3] = byte(a >> 8)
		}
	}
	return outW, outH, out
}

func clampByte(f float64) byte {
	v := int(math.Round(f * 255))
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
