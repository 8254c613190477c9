package extract

import (
	"context"
	"math"
	"strings"
	"unicode"

	"github.com/wudi/regionedit/coords"
	"github.com/wudi/regionedit/observability"
	"github.com/wudi/regionedit/reader"
)

// Options configure page extraction. The zero value logs nothing.
type Options struct {
	Logger observability.Logger
	Tracer observability.Tracer
}

// Extract converts the text items of one page into regions, in item order.
// Items with blank text or unusable geometry are skipped.
func Extract(items []RawTextItem, pageIndex int) []TextRegion {
	ids := newIDAssigner()
	out := make([]TextRegion, 0, len(items))
	for _, it := range items {
		r, ok := regionFromItem(it, pageIndex)
		if !ok {
			continue
		}
		r.Order = len(out)
		ids.assign(&r)
		out = append(out, r)
	}
	return out
}

func regionFromItem(it RawTextItem, pageIndex int) (TextRegion, bool) {
	if strings.TrimFunc(it.Text, unicode.IsSpace) == "" {
		return TextRegion{}, false
	}
	m := coords.Matrix(it.Transform)
	if !m.Finite() || m.Det() == 0 {
		return TextRegion{}, false
	}
	if !finite(it.Width) || !finite(it.Height) || !finite(it.Descent) || it.Width <= 0 {
		return TextRegion{}, false
	}
	descent := math.Min(it.Descent, 0)
	if it.Height <= descent {
		return TextRegion{}, false
	}
	box := coords.TransformRect(m, coords.RectFromCorners(0, descent, it.Width, it.Height))
	if box.Empty() || !box.Finite() {
		return TextRegion{}, false
	}
	size := m.YScale()
	orient := coords.Identity()
	if sx, sy := m.XScale(), size; sx > 0 && sy > 0 {
		orient = coords.Matrix{m[0] / sx, m[1] / sx, m[2] / sy, m[3] / sy, 0, 0}
	}
	return TextRegion{
		PageIndex:    pageIndex,
		OriginalText: it.Text,
		BoundingBox:  box,
		FontName:     it.FontName,
		FontSizePt:   size,
		Origin:       OriginNative,
		Baseline:     coords.Point{X: m[4], Y: m[5]},
		Orientation:  orient,
		FontResource: it.FontResource,
		Confidence:   1,
	}, true
}

// FromReader converts reader text items into the extractor's record.
func FromReader(items []reader.TextItem) []RawTextItem {
	out := make([]RawTextItem, len(items))
	for i, it := range items {
		out[i] = RawTextItem{
			Text:         it.Str,
			Transform:    it.Transform,
			Width:        it.Width,
			Height:       it.Height,
			Descent:      it.Descent,
			FontName:     it.FontName,
			FontResource: it.FontResource,
		}
	}
	return out
}

// ExtractPage extracts the regions of one page of an opened document. It
// never fails: a page that cannot be read yields no regions and a warning.
func ExtractPage(ctx context.Context, doc *reader.Document, pageIndex int, opts Options) []TextRegion {
	log := observability.OrNop(opts.Logger)
	ctx, span := observability.TracerOrNop(opts.Tracer).StartSpan(ctx, observability.SpanExtractPage)
	defer span.Finish()
	span.SetTag("page", pageIndex)

	page, err := doc.Page(pageIndex)
	if err != nil {
		span.SetError(err)
		log.Warn("page unavailable for extraction", observability.Int("page", pageIndex), observability.Error("err", err))
		return nil
	}
	items, err := page.TextItems(ctx)
	if err != nil {
		span.SetError(err)
		log.Warn("text layout unavailable", observability.Int("page", pageIndex), observability.Error("err", err))
		return nil
	}
	regions := Extract(FromReader(items), pageIndex)
	if skipped := len(items) - len(regions); skipped > 0 {
		log.Debug("text items skipped", observability.Int("page", pageIndex), observability.Int("skipped", skipped))
	}
	span.SetTag(observability.MetricRegionCount, len(regions))
	return regions
}

// ExtractBytes opens data and extracts one page. An unreadable document
// yields no regions.
func ExtractBytes(ctx context.Context, data []byte, pageIndex int, opts Options) []TextRegion {
	doc, err := reader.OpenWithConfig(ctx, data, reader.Config{Logger: opts.Logger, Tracer: opts.Tracer})
	if err != nil {
		observability.OrNop(opts.Logger).Warn("document unreadable", observability.Error("err", err))
		return nil
	}
	return ExtractPage(ctx, doc, pageIndex, opts)
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
