package contentstream

import (
	"context"
	"strings"

	"github.com/wudi/regionedit/coords"
	"github.com/wudi/regionedit/fonts"
	"github.com/wudi/regionedit/ir/raw"
)

// Resources resolves the named page resources a content stream refers to.
type Resources interface {
	// Font returns the font for a /Font resource key, or nil.
	Font(name string) *fonts.Font
	// FillAlpha returns the /ca of an /ExtGState resource.
	FillAlpha(name string) (float64, bool)
}

// Handler receives what the tracer finds, in drawing order.
type Handler interface {
	Text(run TextRun)
	// Fill reports an axis-aligned rectangle painted by a fill operator,
	// in user space.
	Fill(rect coords.Rect, alpha float64)
	// XObject reports a Do operator; ctm is the matrix in effect.
	XObject(name string, ctm coords.Matrix)
}

// TextRun is the output of one text showing operator.
type TextRun struct {
	Text         string
	Glyphs       []fonts.Glyph
	FontResource string
	Font         *fonts.Font
	// Matrix is the text rendering matrix at the start of the run; it maps
	// the unit em square to user space.
	Matrix coords.Matrix
	// Width is the advance of the run in em units along Matrix's x axis.
	Width  float64
	Render TextRenderMode
}

// gapSpace is the TJ displacement, in 1/1000 em, treated as a word break.
const gapSpace = 250

// Tracer interprets operations and reports text runs and opaque fills.
type Tracer struct {
	res Resources
	h   Handler

	gs      *GraphicsState
	tm, tlm coords.Matrix
	rects   []coords.Rect
	complex bool
}

// NewTracer returns a tracer reporting to h.
func NewTracer(res Resources, h Handler) *Tracer {
	return &Tracer{res: res, h: h}
}

// Trace runs ops under the initial ctm. An unbalanced Q is ignored.
func (t *Tracer) Trace(ctx context.Context, ops []Operation, ctm coords.Matrix) error {
	t.gs = NewGraphicsState(ctm)
	t.tm, t.tlm = coords.Identity(), coords.Identity()
	t.rects, t.complex = nil, false

	for i, op := range ops {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		t.step(op)
	}
	return nil
}

func (t *Tracer) step(op Operation) {
	gs := t.gs
	ts := &gs.Text
	args := op.Operands
	switch op.Operator {
	case "q":
		gs.Save()
	case "Q":
		_ = gs.Restore()
	case "cm":
		if m, ok := matrixOperands(args); ok {
			gs.CTM = m.Multiply(gs.CTM)
		}
	case "gs":
		if name, ok := nameOperand(args, 0); ok {
			if a, ok := t.res.FillAlpha(name); ok {
				gs.FillAlpha = a
			}
		}

	case "BT":
		t.tm, t.tlm = coords.Identity(), coords.Identity()
	case "Tf":
		if name, ok := nameOperand(args, 0); ok {
			ts.FontName = name
			ts.Font = t.res.Font(name)
		}
		ts.FontSize = number(args, 1, ts.FontSize)
	case "Tc":
		ts.CharSpacing = number(args, 0, ts.CharSpacing)
	case "Tw":
		ts.WordSpacing = number(args, 0, ts.WordSpacing)
	case "Tz":
		ts.HScale = number(args, 0, ts.HScale*100) / 100
	case "TL":
		ts.Leading = number(args, 0, ts.Leading)
	case "Ts":
		ts.Rise = number(args, 0, ts.Rise)
	case "Tr":
		ts.Render = TextRenderMode(number(args, 0, float64(ts.Render)))
	case "Td":
		t.moveLine(number(args, 0, 0), number(args, 1, 0))
	case "TD":
		ty := number(args, 1, 0)
		ts.Leading = -ty
		t.moveLine(number(args, 0, 0), ty)
	case "Tm":
		if m, ok := matrixOperands(args); ok {
			t.tm, t.tlm = m, m
		}
	case "T*":
		t.moveLine(0, -ts.Leading)
	case "Tj":
		if len(args) == 1 {
			t.show(args)
		}
	case "'":
		t.moveLine(0, -ts.Leading)
		if len(args) == 1 {
			t.show(args)
		}
	case "\"":
		if len(args) == 3 {
			ts.WordSpacing = number(args, 0, ts.WordSpacing)
			ts.CharSpacing = number(args, 1, ts.CharSpacing)
			t.moveLine(0, -ts.Leading)
			t.show(args[2:])
		}
	case "TJ":
		if len(args) == 1 {
			if arr, ok := args[0].(*raw.ArrayObj); ok {
				t.show(arr.Items)
			}
		}

	case "re":
		if len(args) == 4 {
			r := coords.Rect{X: number(args, 0, 0), Y: number(args, 1, 0), Width: number(args, 2, 0), Height: number(args, 3, 0)}
			r = coords.RectFromCorners(r.X, r.Y, r.X+r.Width, r.Y+r.Height)
			if !gs.CTM.AxisAligned() {
				t.complex = true
			}
			t.rects = append(t.rects, coords.TransformRect(gs.CTM, r))
		}
	case "m", "l", "c", "v", "y":
		t.complex = true
	case "f", "F", "f*", "B", "B*", "b", "b*":
		if !t.complex {
			for _, r := range t.rects {
				t.h.Fill(r, gs.FillAlpha)
			}
		}
		t.rects, t.complex = nil, false
	case "S", "s", "n":
		t.rects, t.complex = nil, false

	case "Do":
		if name, ok := nameOperand(args, 0); ok {
			t.h.XObject(name, gs.CTM)
		}
	}
}

func (t *Tracer) moveLine(tx, ty float64) {
	t.tlm = coords.Translate(tx, ty).Multiply(t.tlm)
	t.tm = t.tlm
}

// show lays out string and displacement operands, advancing the text
// matrix, and reports one run.
func (t *Tracer) show(items []raw.Object) {
	ts := &t.gs.Text
	run := TextRun{
		FontResource: ts.FontName,
		Font:         ts.Font,
		Render:       ts.Render,
		Matrix:       coords.Matrix{ts.FontSize * ts.HScale, 0, 0, ts.FontSize, 0, ts.Rise}.Multiply(t.tm).Multiply(t.gs.CTM),
	}
	var text strings.Builder
	var advance float64 // text space units, before horizontal scaling
	for _, item := range items {
		switch v := item.(type) {
		case raw.String:
			if ts.Font == nil {
				continue
			}
			for _, g := range ts.Font.Decode(v.Value()) {
				tx := g.Width/1000*ts.FontSize + ts.CharSpacing
				if g.Space {
					tx += ts.WordSpacing
				}
				advance += tx
				text.WriteString(g.Text)
				run.Glyphs = append(run.Glyphs, g)
			}
		case raw.Number:
			adj := v.Float()
			advance -= adj / 1000 * ts.FontSize
			if adj <= -gapSpace && text.Len() > 0 && !strings.HasSuffix(text.String(), " ") {
				text.WriteByte(' ')
			}
		}
	}
	if ts.FontSize != 0 {
		run.Width = advance / ts.FontSize
	}
	run.Text = text.String()
	t.tm = coords.Translate(advance*ts.HScale, 0).Multiply(t.tm)
	if len(run.Glyphs) > 0 {
		t.h.Text(run)
	}
}

func number(args []raw.Object, i int, def float64) float64 {
	if i >= len(args) {
		return def
	}
	if n, ok := args[i].(raw.Number); ok {
		return n.Float()
	}
	return def
}

func nameOperand(args []raw.Object, i int) (string, bool) {
	if i >= len(args) {
		return "", false
	}
	n, ok := args[i].(raw.Name)
	if !ok {
		return "", false
	}
	return n.Value(), true
}

func matrixOperands(args []raw.Object) (coords.Matrix, bool) {
	if len(args) != 6 {
		return coords.Matrix{}, false
	}
	var m coords.Matrix
	for i := range m {
		n, ok := args[i].(raw.Number)
		if !ok {
			return coords.Matrix{}, false
		}
		m[i] = n.Float()
	}
	return m, true
}
