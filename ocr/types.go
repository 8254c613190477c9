package ocr

import (
	"context"
	"image"
	"math"
)

// Engine turns one page raster into positioned text.
type Engine interface {
	Name() string
	Recognize(ctx context.Context, input Input) (Result, error)
}

// BatchEngine is implemented by engines that amortise setup across rasters.
type BatchEngine interface {
	Engine
	RecognizeBatch(ctx context.Context, inputs []Input) ([]Result, error)
}

// ImageFormat is the MIME type of Input.Image.
type ImageFormat string

const (
	ImageFormatPNG  ImageFormat = "image/png"
	ImageFormatJPEG ImageFormat = "image/jpeg"
	ImageFormatTIFF ImageFormat = "image/tiff"
)

// Input is a rendered page handed to an engine.
type Input struct {
	ID        string
	PageIndex int
	Image     []byte
	Format    ImageFormat
	// DPI the page was rendered at; zero if unknown.
	DPI int
	// Languages are trained-data names, "eng", "deu" and so on.
	Languages []string
	// Region limits recognition to a sub-rectangle of the raster.
	Region *Region
	// Metadata carries engine variables verbatim.
	Metadata map[string]string
}

// Region is a pixel box in the raster, measured from its top-left corner.
type Region struct {
	X, Y          float64
	Width, Height float64
}

// IsEmpty reports whether r covers no pixels.
func (r Region) IsEmpty() bool { return r.Width <= 0 || r.Height <= 0 }

// Max returns the bottom-right corner.
func (r Region) Max() (x, y float64) { return r.X + r.Width, r.Y + r.Height }

// Pixels rounds r to whole pixels.
func (r Region) Pixels() image.Rectangle {
	x1, y1 := r.Max()
	return image.Rect(
		int(math.Round(r.X)), int(math.Round(r.Y)),
		int(math.Round(x1)), int(math.Round(y1)),
	)
}

// Result is the layout recognised in one Input. Bounds are in pixels of the
// full raster and confidences in [0, 1].
type Result struct {
	InputID   string
	Language  string
	PlainText string
	Blocks    []TextBlock
	// Raster size, when the engine could read it.
	Width, Height int
}

// TextBlock is a paragraph-like group of lines.
type TextBlock struct {
	Text       string
	Bounds     Region
	Confidence float64
	Lines      []TextLine
}

// TextLine is a run of words on one baseline.
type TextLine struct {
	Text       string
	Bounds     Region
	Confidence float64
	Words      []TextWord
}

// TextWord is a single recognised token.
type TextWord struct {
	Text       string
	Bounds     Region
	Confidence float64
}

// Span is a flattened entry of any layout level.
type Span struct {
	Text       string
	Bounds     Region
	Confidence float64
}

// BlockSpans lists every block in reading order.
func (r Result) BlockSpans() []Span {
	out := make([]Span, 0, len(r.Blocks))
	for _, b := range r.Blocks {
		out = append(out, Span{b.Text, b.Bounds, b.Confidence})
	}
	return out
}

// LineSpans lists every line in reading order.
func (r Result) LineSpans() []Span {
	var out []Span
	for _, b := range r.Blocks {
		for _, l := range b.Lines {
			out = append(out, Span{l.Text, l.Bounds, l.Confidence})
		}
	}
	return out
}

// WordSpans lists every word in reading order.
func (r Result) WordSpans() []Span {
	var out []Span
	for _, b := range r.Blocks {
		for _, l := range b.Lines {
			for _, w := range l.Words {
				out = append(out, Span{w.Text, w.Bounds, w.Confidence})
			}
		}
	}
	return out
}
