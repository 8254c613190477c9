package editor

import (
	"time"

	"github.com/wudi/regionedit/extract"
	"github.com/wudi/regionedit/fonts"
	"github.com/wudi/regionedit/observability"
	"github.com/wudi/regionedit/reader"
)

// Anchor is the page-space baseline point of an edit.
type Anchor struct {
	X, Y       float64
	FontSizePt float64
}

// EditOperation replaces the text of one region.
type EditOperation struct {
	TargetRegionID string
	PageIndex      int
	NewText        string
	Anchor         Anchor
	Timestamp      time.Time
	// Region carries the region as the caller saw it. It is required for
	// derived regions, which cannot be found in the text layer.
	Region *extract.TextRegion
}

// NewEditOperation builds the operation that replaces region's text.
func NewEditOperation(region extract.TextRegion, newText string) EditOperation {
	r := region
	return EditOperation{
		TargetRegionID: region.ID,
		PageIndex:      region.PageIndex,
		NewText:        newText,
		Anchor:         Anchor{X: region.Baseline.X, Y: region.Baseline.Y, FontSizePt: region.FontSizePt},
		Timestamp:      time.Now(),
		Region:         &r,
	}
}

// Color is an RGB colour with components in [0, 1].
type Color struct{ R, G, B float64 }

// White is the default background.
var White = Color{1, 1, 1}

// Options configure an Applier. The zero value paints white overlays,
// falls back to Helvetica and Go Regular and logs nothing.
type Options struct {
	// Background fills the occluding rectangle; nil means white.
	Background *Color
	// FallbackFont is the standard family for regions without a usable
	// font name.
	FallbackFont string
	// UnicodeFont is embedded when no standard font can encode the text.
	UnicodeFont *fonts.TrueType
	// Compress Flate-encodes the overlay content streams.
	Compress bool
	// AnchorTolerance is how far, in points, a rendered run may sit from
	// an edit's anchor and still count as that edit applied. Zero means 0.5.
	AnchorTolerance float64
	Reader          reader.Config
	Logger          observability.Logger
	Tracer          observability.Tracer
}

func (o Options) withDefaults() Options {
	if o.Background == nil {
		c := White
		o.Background = &c
	}
	if o.FallbackFont == "" {
		o.FallbackFont = "Helvetica"
	}
	if o.AnchorTolerance <= 0 {
		o.AnchorTolerance = 0.5
	}
	o.Logger = observability.OrNop(o.Logger)
	o.Tracer = observability.TracerOrNop(o.Tracer)
	if o.Reader.Logger == nil {
		o.Reader.Logger = o.Logger
	}
	return o
}
