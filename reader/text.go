package reader

import (
	"context"

	"github.com/wudi/regionedit/contentstream"
	"github.com/wudi/regionedit/coords"
	"github.com/wudi/regionedit/fonts"
	"github.com/wudi/regionedit/ir/raw"
	"github.com/wudi/regionedit/observability"
)

// TextItem is one rendered text run, in the shape a viewer's text layer
// reports it.
type TextItem struct {
	Str string
	// Transform maps the run's em square to page user space.
	Transform [6]float64
	// Width, Height and Descent are in Transform units: Width is the
	// advance, Height the ascent above the baseline, Descent is negative.
	Width   float64
	Height  float64
	Descent float64
	// FontName is the base font; FontResource the page resource key.
	FontName     string
	FontResource string
}

// opaqueAlpha and coverRatio decide when a later fill hides text.
const (
	opaqueAlpha = 0.999
	coverRatio  = 0.9
)

// TextItems returns the visible text runs of the page in drawing order.
// A run is hidden when a later opaque rectangle covers most of it, which
// is how an overlay edit masks the text it replaces.
func (p *Page) TextItems(ctx context.Context) ([]TextItem, error) {
	c, err := p.collect(ctx)
	if err != nil {
		return nil, err
	}
	return c.filter(false), nil
}

// HiddenTextItems returns the runs TextItems leaves out because a later
// opaque fill covers them.
func (p *Page) HiddenTextItems(ctx context.Context) ([]TextItem, error) {
	c, err := p.collect(ctx)
	if err != nil {
		return nil, err
	}
	return c.filter(true), nil
}

func (p *Page) collect(ctx context.Context) (*collector, error) {
	ops, err := contentstream.ParseWithConfig(p.Content(ctx), p.doc.cfg.Scanner)
	if err != nil {
		p.doc.cfg.Logger.Warn("content stream truncated",
			observability.Int("page", p.index),
			observability.Error("err", err))
	}
	c := &collector{}
	w := &walker{ctx: ctx, doc: p.doc, res: &resources{ctx: ctx, doc: p.doc, dict: p.Resources}, out: c}
	if err := contentstream.NewTracer(w.res, w).Trace(ctx, ops, coords.Identity()); err != nil {
		return nil, err
	}
	return c, nil
}

type tracedItem struct {
	item TextItem
	box  coords.Rect
	seq  int
}

type tracedFill struct {
	box coords.Rect
	seq int
}

type collector struct {
	items []tracedItem
	fills []tracedFill
	seq   int
}

func (c *collector) filter(hidden bool) []TextItem {
	out := make([]TextItem, 0, len(c.items))
	for _, it := range c.items {
		if c.occluded(it) == hidden {
			out = append(out, it.item)
		}
	}
	return out
}

func (c *collector) occluded(it tracedItem) bool {
	area := it.box.Area()
	if area <= 0 {
		return false
	}
	for _, f := range c.fills {
		if f.seq < it.seq {
			continue
		}
		if f.box.Intersect(it.box).Area() >= coverRatio*area {
			return true
		}
	}
	return false
}

// walker receives tracer events for one content stream; Form XObjects get a
// nested walker sharing the collector.
type walker struct {
	ctx   context.Context
	doc   *Document
	res   *resources
	out   *collector
	depth int
}

func (w *walker) Text(run contentstream.TextRun) {
	w.out.seq++
	font := run.Font
	ascent, descent := float64(fonts.DefaultAscent), float64(fonts.DefaultDescent)
	name := ""
	if font != nil {
		ascent, descent, name = font.Ascent, font.Descent, font.BaseFont
	}
	item := TextItem{
		Str:          run.Text,
		Transform:    run.Matrix,
		Width:        run.Width,
		Height:       ascent / 1000,
		Descent:      descent / 1000,
		FontName:     name,
		FontResource: run.FontResource,
	}
	local := coords.RectFromCorners(0, item.Descent, item.Width, item.Height)
	w.out.items = append(w.out.items, tracedItem{
		item: item,
		box:  coords.TransformRect(run.Matrix, local),
		seq:  w.out.seq,
	})
}

func (w *walker) Fill(rect coords.Rect, alpha float64) {
	w.out.seq++
	if alpha < opaqueAlpha {
		return
	}
	w.out.fills = append(w.out.fills, tracedFill{box: rect, seq: w.out.seq})
}

func (w *walker) XObject(name string, ctm coords.Matrix) {
	if w.depth >= w.doc.cfg.MaxFormDepth {
		return
	}
	xobjs, ok := w.res.category("XObject")
	if !ok {
		return
	}
	st, ok := w.doc.raw.Stream(xobjs.Lookup(name))
	if !ok {
		return
	}
	if sub, _ := w.doc.raw.Name(st.Dict.Lookup("Subtype")); sub != "Form" {
		return
	}
	data, err := w.doc.pipeline.DecodeStream(w.ctx, st)
	if err != nil {
		w.doc.cfg.Logger.Warn("form xobject skipped", observability.String("name", name), observability.Error("err", err))
		return
	}
	ops, _ := contentstream.ParseWithConfig(data, w.doc.cfg.Scanner)

	m := coords.Identity()
	if arr, ok := w.doc.raw.Array(st.Dict.Lookup("Matrix")); ok && len(arr.Items) == 6 {
		for i, item := range arr.Items {
			m[i], _ = w.doc.raw.Number(item)
		}
	}
	res := w.res
	if d, ok := w.doc.raw.Dict(st.Dict.Lookup("Resources")); ok {
		res = &resources{ctx: w.ctx, doc: w.doc, dict: d}
	}
	nested := &walker{ctx: w.ctx, doc: w.doc, res: res, out: w.out, depth: w.depth + 1}
	_ = contentstream.NewTracer(res, nested).Trace(w.ctx, ops, m.Multiply(ctm))
}

var _ contentstream.Resources = (*resources)(nil)
var _ contentstream.Resources = (*Page)(nil)

// FontFor returns the decoded font behind a resource key of the page.
func (p *Page) FontFor(ctx context.Context, name string) (*fonts.Font, raw.Object, bool) {
	obj, ok := p.FontObject(name)
	if !ok {
		return nil, nil, false
	}
	return p.doc.font(ctx, obj), obj, true
}
