// Package extract turns per-page text layout data into addressable text
// regions in page user space.
package extract

import (
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/wudi/regionedit/coords"
)

// Origin tells where a region came from.
type Origin int

const (
	// OriginNative regions come from the document's own text layer.
	OriginNative Origin = iota
	// OriginDerived regions come from OCR and have no source font.
	OriginDerived
)

func (o Origin) String() string {
	switch o {
	case OriginNative:
		return "native"
	case OriginDerived:
		return "derived"
	}
	return fmt.Sprintf("Origin(%d)", int(o))
}

// TextRegion is one clickable, editable unit of text on a page.
type TextRegion struct {
	ID           string
	PageIndex    int
	OriginalText string
	// BoundingBox is in page user space, bottom-left origin.
	BoundingBox coords.Rect
	FontName    string
	FontSizePt  float64
	Origin      Origin

	// Baseline is the start of the text run in page space.
	Baseline coords.Point
	// Orientation is the text direction at unit font size, without
	// translation.
	Orientation coords.Matrix
	// FontResource is the page resource key of the font; native only.
	FontResource string
	// Confidence is 1 for native regions.
	Confidence float64
	// Order is the position in extraction order.
	Order int
}

// Contains reports whether the page-space point lies inside the region,
// edges included.
func (r TextRegion) Contains(p coords.Point) bool { return r.BoundingBox.Contains(p) }

// RawTextItem is the strict record the extractor accepts from a text source.
// Width, Height and Descent are in Transform units: the local box of the run
// is (0, Descent)-(Width, Height).
type RawTextItem struct {
	Text         string
	Transform    [6]float64
	Width        float64
	Height       float64
	Descent      float64
	FontName     string
	FontResource string
}

var regionSpace = uuid.MustParse("9f0c6a52-3b1e-5d7a-8c44-61e2f0b7d913")

// idQuantum is the bounding box precision folded into region ids.
const idQuantum = 0.01

type idKey struct {
	page       int
	origin     Origin
	text       string
	x, y, w, h int64
}

// idAssigner derives deterministic ids. Identical regions on a page are
// told apart by their ordinal.
type idAssigner struct {
	seen map[idKey]int
}

func newIDAssigner() *idAssigner { return &idAssigner{seen: make(map[idKey]int)} }

func (a *idAssigner) assign(r *TextRegion) {
	k := idKey{
		page:   r.PageIndex,
		origin: r.Origin,
		text:   r.OriginalText,
		x:      quantize(r.BoundingBox.X),
		y:      quantize(r.BoundingBox.Y),
		w:      quantize(r.BoundingBox.Width),
		h:      quantize(r.BoundingBox.Height),
	}
	ordinal := a.seen[k]
	a.seen[k] = ordinal + 1
	name := fmt.Sprintf("%d|%s|%d,%d,%d,%d|%d|%s", k.page, k.origin, k.x, k.y, k.w, k.h, ordinal, k.text)
	r.ID = uuid.NewSHA1(regionSpace, []byte(name)).String()
}

func quantize(v float64) int64 { return int64(math.Round(v / idQuantum)) }
