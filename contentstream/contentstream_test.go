package contentstream

import (
	"bytes"
	"context"
	"math"
	"testing"

	"github.com/wudi/regionedit/coords"
	"github.com/wudi/regionedit/fonts"
	"github.com/wudi/regionedit/ir/raw"
)

func TestParseOperations(t *testing.T) {
	src := []byte(`q 1 0 0 1 10 20 cm
BT /F1 12 Tf [(Hel) -120 (lo)] TJ ET
/P <</MCID 3>> BDC EMC
BI /W 2 /H 1 /BPC 8 /CS /G ID ab
EI Q`)
	ops, err := Parse(src)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := []string{"q", "cm", "BT", "Tf", "TJ", "ET", "BDC", "EMC", "BI", "Q"}
	if len(ops) != len(want) {
		t.Fatalf("expected %d ops, got %d: %+v", len(want), len(ops), ops)
	}
	for i, op := range ops {
		if op.Operator != want[i] {
			t.Fatalf("op %d = %s, want %s", i, op.Operator, want[i])
		}
	}
	arr, ok := ops[4].Operands[0].(*raw.ArrayObj)
	if !ok || arr.Len() != 3 {
		t.Fatalf("TJ operand not parsed as array: %+v", ops[4].Operands)
	}
	props, ok := ops[6].Operands[1].(*raw.DictObj)
	if !ok || props.Lookup("MCID") == nil {
		t.Fatalf("BDC properties not parsed: %+v", ops[6].Operands)
	}
	img := ops[8]
	if string(img.InlineData) != "ab" {
		t.Fatalf("inline data = %q", img.InlineData)
	}
	if d := img.Operands[0].(*raw.DictObj); d.Lookup("W") == nil || d.Lookup("CS") == nil {
		t.Fatalf("inline image dictionary incomplete: %+v", d.KV)
	}
}

func TestSerializeRoundTrip(t *testing.T) {
	var b Builder
	b.Save().FillRGB(1, 1, 1).Rect(coords.Rect{X: 10, Y: 20.5, Width: 100, Height: 12}).Fill().
		BeginText().Font("F1", 12).TextMatrix(coords.Matrix{1, 0, 0, 1, 10, 22}).
		ShowText([]byte("a(b)"), false).ShowText([]byte{0, 7}, true).EndText().Restore()
	out := b.Bytes()
	if !bytes.Contains(out, []byte("10 20.5 100 12 re")) {
		t.Fatalf("rect not serialized: %s", out)
	}
	if !bytes.Contains(out, []byte(`(a\(b\)) Tj`)) || !bytes.Contains(out, []byte("<0007> Tj")) {
		t.Fatalf("strings not escaped: %s", out)
	}
	ops, err := Parse(out)
	if err != nil {
		t.Fatalf("reparse: %v", err)
	}
	if len(ops) != len(b.Operations()) {
		t.Fatalf("round trip changed op count: %d vs %d", len(ops), len(b.Operations()))
	}
}

type stubResources struct {
	font  *fonts.Font
	alpha map[string]float64
}

func (r stubResources) Font(string) *fonts.Font { return r.font }
func (r stubResources) FillAlpha(name string) (float64, bool) {
	a, ok := r.alpha[name]
	return a, ok
}

type recorder struct {
	runs  []TextRun
	fills []coords.Rect
	alpha []float64
	xobjs []string
}

func (r *recorder) Text(run TextRun) { r.runs = append(r.runs, run) }
func (r *recorder) Fill(rect coords.Rect, alpha float64) {
	r.fills = append(r.fills, rect)
	r.alpha = append(r.alpha, alpha)
}
func (r *recorder) XObject(name string, _ coords.Matrix) { r.xobjs = append(r.xobjs, name) }

func courier(t *testing.T) *fonts.Font {
	t.Helper()
	d := raw.Dict()
	d.SetKey("Subtype", raw.NameLiteral("Type1"))
	d.SetKey("BaseFont", raw.NameLiteral("Courier"))
	doc := &raw.Document{Objects: map[raw.ObjectRef]raw.Object{}}
	return fonts.Load(context.Background(), doc, d, nil)
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestTracerTextPositions(t *testing.T) {
	src := []byte(`BT /F1 10 Tf 2 Tc 100 700 Td (ab) Tj (c) Tj 14 TL T* [(d) -500 (e)] TJ ET`)
	ops, err := Parse(src)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	rec := &recorder{}
	if err := NewTracer(stubResources{font: courier(t)}, rec).Trace(context.Background(), ops, coords.Identity()); err != nil {
		t.Fatalf("trace: %v", err)
	}
	if len(rec.runs) != 3 {
		t.Fatalf("expected 3 runs, got %d", len(rec.runs))
	}
	first := rec.runs[0]
	if first.Text != "ab" || first.Matrix != (coords.Matrix{10, 0, 0, 10, 100, 700}) {
		t.Fatalf("first run = %q %v", first.Text, first.Matrix)
	}
	// two glyphs of 600 plus 2pt character spacing each, in em
	if !near(first.Width, 2*(0.6+0.2)) {
		t.Fatalf("first width = %v", first.Width)
	}
	if second := rec.runs[1]; !near(second.Matrix[4], 116) {
		t.Fatalf("second run should start after the first, got x=%v", second.Matrix[4])
	}
	third := rec.runs[2]
	if third.Text != "d e" || !near(third.Matrix[5], 686) || !near(third.Matrix[4], 100) {
		t.Fatalf("third run = %q %v", third.Text, third.Matrix)
	}
	if !near(third.Width, 0.8+0.5+0.8) {
		t.Fatalf("third width = %v", third.Width)
	}
}

func TestTracerFillsAndState(t *testing.T) {
	src := []byte(`q 2 0 0 2 0 0 cm 10 10 5 5 re f Q
/GS1 gs 0 0 1 1 re f
0 0 m 5 5 l 0 0 1 1 re f
1 0 0 1 0 0 cm 0 0 1 1 re W n /Im1 Do`)
	ops, _ := Parse(src)
	rec := &recorder{}
	res := stubResources{alpha: map[string]float64{"GS1": 0.5}}
	if err := NewTracer(res, rec).Trace(context.Background(), ops, coords.Identity()); err != nil {
		t.Fatalf("trace: %v", err)
	}
	if len(rec.fills) != 2 {
		t.Fatalf("expected 2 rectangle fills, got %v", rec.fills)
	}
	if rec.fills[0] != (coords.Rect{X: 20, Y: 20, Width: 10, Height: 10}) || rec.alpha[0] != 1 {
		t.Fatalf("scaled fill = %v alpha %v", rec.fills[0], rec.alpha[0])
	}
	if rec.alpha[1] != 0.5 {
		t.Fatalf("ExtGState alpha not applied: %v", rec.alpha[1])
	}
	if len(rec.xobjs) != 1 || rec.xobjs[0] != "Im1" {
		t.Fatalf("xobjects = %v", rec.xobjs)
	}
}

func TestGraphicsStateRestore(t *testing.T) {
	gs := NewGraphicsState(coords.Identity())
	gs.Text.FontSize = 9
	gs.Save()
	gs.Text.FontSize = 20
	gs.CTM = coords.Scale(2, 2)
	if err := gs.Restore(); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if gs.Text.FontSize != 9 || gs.CTM != coords.Identity() {
		t.Fatalf("state not restored: %+v", gs)
	}
	if err := gs.Restore(); err != ErrStateStack {
		t.Fatalf("expected ErrStateStack, got %v", err)
	}
}
