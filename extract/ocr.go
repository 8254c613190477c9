package extract

import (
	"math"
	"strings"

	"github.com/wudi/regionedit/coords"
	"github.com/wudi/regionedit/ocr"
	"github.com/wudi/regionedit/viewport"
)

// OCRLevel selects which layout level of an OCR result becomes regions.
type OCRLevel int

const (
	OCRLines OCRLevel = iota
	OCRWords
	OCRBlocks
)

// OCROptions control FromOCR.
type OCROptions struct {
	Level OCRLevel
	// MinConfidence drops entries below it, in [0, 1].
	MinConfidence float64
}

// ocrBaseline and ocrFontScale place replacement text inside a recognized
// box: the baseline sits above the bottom edge by the descender share and
// the font size leaves room for ascenders.
const (
	ocrBaseline  = 0.2
	ocrFontScale = 0.8
)

// FromOCR maps OCR output for a rendered page into derived regions. Pixel
// boxes (top-left origin) are converted with the raster's viewport.
func FromOCR(res ocr.Result, pageIndex int, raster viewport.Viewport, opts OCROptions) []TextRegion {
	if raster.Validate() != nil {
		return nil
	}
	var spans []ocr.Span
	switch opts.Level {
	case OCRBlocks:
		spans = res.BlockSpans()
	case OCRWords:
		spans = res.WordSpans()
	default:
		spans = res.LineSpans()
	}

	// text direction in page space for the raster's rotation
	p0 := viewport.ToPageSpace(coords.Point{}, raster)
	px := viewport.ToPageSpace(coords.Point{X: 1}, raster)
	py := viewport.ToPageSpace(coords.Point{Y: -1}, raster)
	dir := coords.Matrix{px.X - p0.X, px.Y - p0.Y, py.X - p0.X, py.Y - p0.Y, 0, 0}
	if s := dir.XScale(); s > 0 {
		dir = coords.Matrix{dir[0] / s, dir[1] / s, dir[2] / s, dir[3] / s, 0, 0}
	}

	ids := newIDAssigner()
	out := make([]TextRegion, 0, len(spans))
	for _, sp := range spans {
		text := strings.TrimSpace(sp.Text)
		if text == "" || sp.Bounds.IsEmpty() || sp.Confidence < opts.MinConfidence {
			continue
		}
		x1, y1 := sp.Bounds.Max()
		box := coords.Bounds(
			viewport.ToPageSpace(coords.Point{X: sp.Bounds.X, Y: sp.Bounds.Y}, raster),
			viewport.ToPageSpace(coords.Point{X: x1, Y: y1}, raster),
		)
		if box.Empty() || !box.Finite() {
			continue
		}
		// line height runs along the text's up vector
		height := math.Abs(dir[2]*box.Width) + math.Abs(dir[3]*box.Height)
		left := coords.Point{X: box.X, Y: box.Y}
		switch {
		case dir[0] < -0.5:
			left = coords.Point{X: box.MaxX(), Y: box.MaxY()}
		case dir[1] > 0.5:
			left = coords.Point{X: box.MaxX(), Y: box.Y}
		case dir[1] < -0.5:
			left = coords.Point{X: box.X, Y: box.MaxY()}
		}
		base := coords.Point{X: left.X + dir[2]*ocrBaseline*height, Y: left.Y + dir[3]*ocrBaseline*height}
		r := TextRegion{
			PageIndex:    pageIndex,
			OriginalText: text,
			BoundingBox:  box,
			FontSizePt:   height * ocrFontScale,
			Origin:       OriginDerived,
			Baseline:     base,
			Orientation:  dir,
			Confidence:   sp.Confidence,
			Order:        len(out),
		}
		ids.assign(&r)
		out = append(out, r)
	}
	return out
}

// Merge appends derived regions after native ones, renumbering their order
// so later regions stay on top for hit testing.
func Merge(native, derived []TextRegion) []TextRegion {
	out := make([]TextRegion, 0, len(native)+len(derived))
	out = append(out, native...)
	for _, r := range derived {
		r.Order = len(out)
		out = append(out, r)
	}
	return out
}
