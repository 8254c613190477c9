package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"testing"

	"github.com/wudi/regionedit/coords"
	"github.com/wudi/regionedit/editor"
	"github.com/wudi/regionedit/extract"
	"github.com/wudi/regionedit/gate"
	"github.com/wudi/regionedit/history"
	"github.com/wudi/regionedit/hittest"
	"github.com/wudi/regionedit/observability"
	"github.com/wudi/regionedit/ocr"
	"github.com/wudi/regionedit/pdftest"
	"github.com/wudi/regionedit/reader"
	"github.com/wudi/regionedit/viewport"
)

// stubEngine returns a fixed layout for every image.
type stubEngine struct {
	blocks []ocr.TextBlock
	inputs []ocr.Input
}

func (e *stubEngine) Name() string { return "stub" }

func (e *stubEngine) Recognize(_ context.Context, in ocr.Input) (ocr.Result, error) {
	e.inputs = append(e.inputs, in)
	return ocr.Result{InputID: in.ID, Blocks: e.blocks}, nil
}

func line(text string, x, y, w, h float64) ocr.TextLine {
	b := ocr.Region{X: x, Y: y, Width: w, Height: h}
	return ocr.TextLine{Text: text, Bounds: b, Confidence: 0.9,
		Words: []ocr.TextWord{{Text: text, Bounds: b, Confidence: 0.9}}}
}

func open(t *testing.T, data []byte, cfg Config) *Session {
	t.Helper()
	s, err := Open(context.Background(), data, cfg)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close(context.Background()) })
	return s
}

func letter() viewport.Viewport {
	return viewport.ForPage(coords.Rect{Width: 612, Height: 792}, 1)
}

func TestOpenUnreadable(t *testing.T) {
	_, err := Open(context.Background(), []byte("not a pdf"), Config{})
	if !errors.Is(err, reader.ErrUnreadable) {
		t.Fatalf("open = %v", err)
	}
}

func TestEditUndoRedo(t *testing.T) {
	ctx := context.Background()
	original := pdftest.Invoice()
	s := open(t, original, Config{})

	region, ok := s.HitTest(ctx, 0, coords.Point{X: 103, Y: 88}, letter())
	if !ok || region.OriginalText != "Invoice #1" {
		t.Fatalf("hit = %+v %v", region, ok)
	}
	out, err := s.ApplyEdit(ctx, region, "Invoice #2")
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if !bytes.Equal(out, s.Bytes()) || s.Current().Generation() != 1 {
		t.Fatalf("edit result is not current (generation %d)", s.Current().Generation())
	}
	if rs := s.Regions(ctx, 0); len(rs) != 1 || rs[0].OriginalText != "Invoice #2" {
		t.Fatalf("regions after edit = %+v", rs)
	}

	back, err := s.Undo(ctx)
	if err != nil || !bytes.Equal(back, original) {
		t.Fatalf("undo = %v", err)
	}
	if _, err := s.Undo(ctx); !errors.Is(err, history.ErrNothingToUndo) {
		t.Fatalf("second undo = %v", err)
	}
	again, err := s.Redo(ctx)
	if err != nil || !bytes.Equal(again, out) {
		t.Fatalf("redo = %v", err)
	}
	if s.History().Len() != 2 || s.History().Index() != 1 {
		t.Fatalf("history len %d index %d", s.History().Len(), s.History().Index())
	}
}

func TestRejectedEditKeepsCurrent(t *testing.T) {
	ctx := context.Background()
	s := open(t, pdftest.Invoice(), Config{})
	op := editor.EditOperation{
		TargetRegionID: "missing",
		NewText:        "x",
		Anchor:         editor.Anchor{X: 400, Y: 400, FontSizePt: 12},
	}
	if _, err := s.ApplyEdits(ctx, []editor.EditOperation{op}); !errors.Is(err, editor.ErrInvalidRegion) {
		t.Fatalf("edit = %v", err)
	}
	if s.Current().Generation() != 0 || s.History().Len() != 1 {
		t.Fatalf("failed edit changed the history")
	}
}

func TestEmptyBatchAddsNoHistory(t *testing.T) {
	ctx := context.Background()
	original := pdftest.Invoice()
	s := open(t, original, Config{})
	out, err := s.ApplyEdits(ctx, nil)
	if err != nil || !bytes.Equal(out, original) {
		t.Fatalf("empty batch = %v", err)
	}
	ticket, err := s.SubmitEdits(ctx, []editor.EditOperation{})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := ticket.Wait(ctx); err != nil {
		t.Fatalf("empty ticket: %v", err)
	}
	if s.History().Len() != 1 || s.Current().Generation() != 0 || s.History().CanUndo() {
		t.Fatalf("empty batches changed the history: len %d", s.History().Len())
	}
}

func TestSubmitEdits(t *testing.T) {
	ctx := context.Background()
	s := open(t, pdftest.Hello(), Config{})
	region := s.Regions(ctx, 0)[0]

	first, err := s.SubmitEdits(ctx, []editor.EditOperation{editor.NewEditOperation(region, "Goodbye")})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	// The region no longer exists once the first edit lands.
	second, err := s.SubmitEdits(ctx, []editor.EditOperation{editor.NewEditOperation(region, "Farewell")})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := first.Wait(ctx); err != nil {
		t.Fatalf("first: %v", err)
	}
	if err := second.Wait(ctx); !errors.Is(err, editor.ErrInvalidRegion) {
		t.Fatalf("second = %v", err)
	}
	if rs := s.Regions(ctx, 0); len(rs) != 1 || rs[0].OriginalText != "Goodbye" {
		t.Fatalf("regions = %+v", rs)
	}
}

func TestFailureMemo(t *testing.T) {
	ctx := context.Background()
	log := observability.NewMemoryLogger()
	s := open(t, pdftest.Build([]pdftest.Page{{
		Content: "BT /F1 12 Tf 100 700 Td (Secret) Tj ET",
		Fonts:   map[string]pdftest.Font{"F1": {BaseFont: "Helvetica"}},
	}}, pdftest.Options{Encrypt: true}), Config{Logger: log})
	region := s.Regions(ctx, 0)[0]

	for i := 0; i < 2; i++ {
		if _, err := s.ApplyEdit(ctx, region, "Public"); !errors.Is(err, editor.ErrSerialization) {
			t.Fatalf("attempt %d = %v", i, err)
		}
	}
	memo := 0
	for _, e := range log.Entries() {
		if e.Message == "edit answered from failure memo" {
			memo++
		}
	}
	if memo != 1 {
		t.Fatalf("memo hits = %d", memo)
	}
}

func TestRecognizePageAttachesRegions(t *testing.T) {
	ctx := context.Background()
	engine := &stubEngine{blocks: []ocr.TextBlock{{
		Text:  "Stamp",
		Lines: []ocr.TextLine{line("Stamp", 300, 392, 60, 14)},
	}}}
	s := open(t, pdftest.Invoice(), Config{OCR: OCRConfig{Engine: engine, Languages: []string{"eng"}}})

	derived, err := s.RecognizePage(ctx, 0, image.NewGray(image.Rect(0, 0, 1224, 1584)))
	if err != nil {
		t.Fatalf("recognize: %v", err)
	}
	if len(derived) != 1 || derived[0].Origin != extract.OriginDerived {
		t.Fatalf("derived = %+v", derived)
	}
	if in := engine.inputs[0]; in.DPI != 144 || in.Languages[0] != "eng" {
		t.Fatalf("input dpi %d languages %v", in.DPI, in.Languages)
	}
	// 1224px wide raster of a letter page is zoom 2.
	box := derived[0].BoundingBox
	if box.X != 150 || box.Width != 30 {
		t.Fatalf("derived box = %+v", box)
	}
	if rs := s.Regions(ctx, 0); len(rs) != 2 {
		t.Fatalf("regions = %+v", rs)
	}
	hit, ok := s.HitTest(ctx, 0, coords.Point{X: 160, Y: 200}, letter())
	if !ok || hit.OriginalText != "Stamp" {
		t.Fatalf("hit = %+v %v", hit, ok)
	}

	if _, err := s.ApplyEdit(ctx, hit, "Approved"); err != nil {
		t.Fatalf("edit derived: %v", err)
	}
	if d := s.Current().Derived(); len(d) != 0 {
		t.Fatalf("edited derived region carried over: %+v", d)
	}
	texts := map[string]bool{}
	for _, r := range s.Regions(ctx, 0) {
		texts[r.OriginalText] = true
	}
	if !texts["Approved"] || !texts["Invoice #1"] {
		t.Fatalf("regions after edit = %v", texts)
	}
}

func TestDerivedRegionsSurviveOtherEdits(t *testing.T) {
	ctx := context.Background()
	s := open(t, pdftest.Invoice(), Config{})
	res := ocr.Result{Blocks: []ocr.TextBlock{{Lines: []ocr.TextLine{line("Note", 300, 392, 40, 14)}}}}
	if _, err := s.AttachOCR(ctx, 0, res, letter()); err != nil {
		t.Fatalf("attach: %v", err)
	}
	var native extract.TextRegion
	for _, r := range s.Regions(ctx, 0) {
		if r.Origin == extract.OriginNative {
			native = r
		}
	}
	if _, err := s.ApplyEdit(ctx, native, "Invoice #9"); err != nil {
		t.Fatalf("edit: %v", err)
	}
	if d := s.Current().Derived()[0]; len(d) != 1 || d[0].OriginalText != "Note" {
		t.Fatalf("derived after edit = %+v", d)
	}
}

func TestDensePageUsesIndex(t *testing.T) {
	ctx := context.Background()
	s := open(t, pdftest.Invoice(), Config{OCR: OCRConfig{Level: extract.OCRWords}})
	var lines []ocr.TextLine
	for i := 0; i < 300; i++ {
		x := 10 + float64(i%20)*30
		y := 200 + float64(i/20)*20
		lines = append(lines, line(fmt.Sprintf("w%d", i), x, y, 20, 10))
	}
	regions, err := s.AttachOCR(ctx, 0, ocr.Result{Blocks: []ocr.TextBlock{{Lines: lines}}}, letter())
	if err != nil || len(regions) != 300 {
		t.Fatalf("attach: %d regions, %v", len(regions), err)
	}
	all := s.Regions(ctx, 0)
	if len(all) <= hittest.IndexThreshold {
		t.Fatalf("only %d regions", len(all))
	}

	p := coords.Point{X: 10 + 7*30 + 5, Y: 200 + 4*20 + 5}
	got, ok := s.HitTest(ctx, 0, p, letter())
	want, wantOK := hittest.HitTest(p, all, letter())
	if !ok || !wantOK || got.ID != want.ID || got.OriginalText != "w87" {
		t.Fatalf("index hit %+v, linear hit %+v", got, want)
	}
	if _, ok := s.HitTest(ctx, 0, coords.Point{X: 600, Y: 700}, letter()); ok {
		t.Fatalf("hit in empty space")
	}
}

func TestClosedSessionRejectsEdits(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, pdftest.Hello(), Config{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	region := s.Regions(ctx, 0)[0]
	if err := s.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := s.ApplyEdit(ctx, region, "x"); !errors.Is(err, gate.ErrClosed) {
		t.Fatalf("edit after close = %v", err)
	}
	if rs := s.Regions(ctx, 0); len(rs) != 1 {
		t.Fatalf("reads after close = %+v", rs)
	}
}
