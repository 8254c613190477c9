package reader

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/wudi/regionedit/observability"
	"github.com/wudi/regionedit/pdftest"
)

func near(a, b float64) bool { return math.Abs(a-b) < 1e-6 }

func helvetica() map[string]pdftest.Font {
	return map[string]pdftest.Font{"F1": {BaseFont: "Helvetica"}}
}

func open(t *testing.T, data []byte) *Document {
	t.Helper()
	doc, err := Open(context.Background(), data)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return doc
}

func items(t *testing.T, doc *Document, page int) []TextItem {
	t.Helper()
	p, err := doc.Page(page)
	if err != nil {
		t.Fatalf("page %d: %v", page, err)
	}
	out, err := p.TextItems(context.Background())
	if err != nil {
		t.Fatalf("text items: %v", err)
	}
	return out
}

func TestOpenInvoice(t *testing.T) {
	doc := open(t, pdftest.Invoice())
	if doc.NumPages() != 1 {
		t.Fatalf("expected 1 page, got %d", doc.NumPages())
	}
	p, _ := doc.Page(0)
	if w, h := p.Size(); w != 612 || h != 792 {
		t.Fatalf("page size = %vx%v", w, h)
	}
	got := items(t, doc, 0)
	if len(got) != 1 {
		t.Fatalf("expected 1 item, got %+v", got)
	}
	it := got[0]
	if it.Str != "Invoice #1" {
		t.Fatalf("text = %q", it.Str)
	}
	if it.Transform != [6]float64{12, 0, 0, 12, 100, 700} {
		t.Fatalf("transform = %v", it.Transform)
	}
	if !near(it.Width, 4.558) || !near(it.Height, 0.718) || !near(it.Descent, -0.207) {
		t.Fatalf("metrics = w %v h %v d %v", it.Width, it.Height, it.Descent)
	}
	if it.FontName != "Helvetica" || it.FontResource != "F1" {
		t.Fatalf("font = %q/%q", it.FontName, it.FontResource)
	}
}

func TestPageRange(t *testing.T) {
	doc := open(t, pdftest.Invoice())
	if _, err := doc.Page(3); !errors.Is(err, ErrPageRange) {
		t.Fatalf("expected ErrPageRange, got %v", err)
	}
	if _, err := doc.Page(-1); !errors.Is(err, ErrPageRange) {
		t.Fatalf("expected ErrPageRange, got %v", err)
	}
}

func TestUnreadable(t *testing.T) {
	for name, data := range map[string][]byte{
		"garbage": []byte("this is not a pdf"),
		"empty":   nil,
		"nopages": []byte("%PDF-1.7\n1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n2 0 obj\n<< /Type /Pages /Kids [] /Count 0 >>\nendobj\n"),
	} {
		if _, err := Open(context.Background(), data); !errors.Is(err, ErrUnreadable) {
			t.Fatalf("%s: expected ErrUnreadable, got %v", name, err)
		}
	}
}

func TestInheritedAttributes(t *testing.T) {
	data := pdftest.Build([]pdftest.Page{
		{Content: "BT /F1 10 Tf 1 0 0 1 50 50 Tm (one) Tj ET", Fonts: helvetica(), Rotate: -90},
		{Width: 300, Height: 400, Content: "BT /F1 10 Tf 1 0 0 1 50 50 Tm (two) Tj ET"},
	}, pdftest.Options{InheritResources: true})
	doc := open(t, data)
	if doc.NumPages() != 2 {
		t.Fatalf("expected 2 pages, got %d", doc.NumPages())
	}
	first, _ := doc.Page(0)
	if first.Rotate != 270 {
		t.Fatalf("rotation not normalised: %d", first.Rotate)
	}
	second, _ := doc.Page(1)
	if w, h := second.Size(); w != 300 || h != 400 {
		t.Fatalf("second page size = %vx%v", w, h)
	}
	got := items(t, doc, 1)
	if len(got) != 1 || got[0].Str != "two" || got[0].FontName != "Helvetica" {
		t.Fatalf("inherited font not applied: %+v", got)
	}
}

func TestObjectStreams(t *testing.T) {
	data := pdftest.Build([]pdftest.Page{{
		Content: "BT /F1 12 Tf 1 0 0 1 72 720 Tm (Packed) Tj ET",
		Fonts:   helvetica(),
	}}, pdftest.Options{ObjectStreams: true, Compress: true})
	doc := open(t, data)
	got := items(t, doc, 0)
	if len(got) != 1 || got[0].Str != "Packed" {
		t.Fatalf("items = %+v", got)
	}
	if got[0].Transform[4] != 72 || got[0].Transform[5] != 720 {
		t.Fatalf("transform = %v", got[0].Transform)
	}
}

func TestSplitContent(t *testing.T) {
	data := pdftest.Build([]pdftest.Page{{
		Content: "BT /F1 12 Tf\n1 0 0 1 72 720 Tm (Split) Tj ET",
		Fonts:   helvetica(),
	}}, pdftest.Options{SplitContent: true})
	doc := open(t, data)
	p, _ := doc.Page(0)
	if n := len(p.ContentObjects()); n != 2 {
		t.Fatalf("expected 2 content streams, got %d", n)
	}
	if got := items(t, doc, 0); len(got) != 1 || got[0].Str != "Split" {
		t.Fatalf("items = %+v", got)
	}
}

func TestOcclusion(t *testing.T) {
	cases := []struct {
		name    string
		content string
		alpha   map[string]float64
		visible bool
	}{
		{"covered", "BT /F1 12 Tf 1 0 0 1 100 700 Tm (Hello) Tj ET 1 1 1 rg 90 690 200 30 re f", nil, false},
		{"fill before text", "1 1 1 rg 90 690 200 30 re f BT /F1 12 Tf 1 0 0 1 100 700 Tm (Hello) Tj ET", nil, true},
		{"translucent", "BT /F1 12 Tf 1 0 0 1 100 700 Tm (Hello) Tj ET /GS1 gs 90 690 200 30 re f", map[string]float64{"GS1": 0.5}, true},
		{"partial", "BT /F1 12 Tf 1 0 0 1 100 700 Tm (Hello) Tj ET 90 690 15 30 re f", nil, true},
		{"stroked", "BT /F1 12 Tf 1 0 0 1 100 700 Tm (Hello) Tj ET 90 690 200 30 re S", nil, true},
	}
	for _, tc := range cases {
		data := pdftest.Build([]pdftest.Page{{Content: tc.content, Fonts: helvetica(), ExtGState: tc.alpha}}, pdftest.Options{})
		doc := open(t, data)
		got := items(t, doc, 0)
		if (len(got) == 1) != tc.visible {
			t.Fatalf("%s: visible=%v, items %+v", tc.name, tc.visible, got)
		}
		page, _ := doc.Page(0)
		hidden, err := page.HiddenTextItems(context.Background())
		if err != nil {
			t.Fatalf("%s: hidden items: %v", tc.name, err)
		}
		if (len(hidden) == 1) == tc.visible {
			t.Fatalf("%s: hidden items %+v", tc.name, hidden)
		}
		if len(hidden) == 1 && (hidden[0].Str != "Hello" || hidden[0].Transform[4] != 100) {
			t.Fatalf("%s: hidden run = %+v", tc.name, hidden[0])
		}
	}
}

func TestFormXObject(t *testing.T) {
	data := pdftest.Build([]pdftest.Page{{
		Content: "q 1 0 0 1 50 50 cm /Fm1 Do Q",
		Forms: map[string]pdftest.Form{"Fm1": {
			Content: "BT /F1 10 Tf 1 0 0 1 10 20 Tm (Nested) Tj ET",
			Matrix:  &[6]float64{1, 0, 0, 1, 5, 5},
			Fonts:   map[string]pdftest.Font{"F1": {BaseFont: "Courier"}},
		}},
	}}, pdftest.Options{})
	got := items(t, open(t, data), 0)
	if len(got) != 1 || got[0].Str != "Nested" {
		t.Fatalf("items = %+v", got)
	}
	if got[0].Transform != [6]float64{10, 0, 0, 10, 65, 75} {
		t.Fatalf("form transform = %v", got[0].Transform)
	}
	if got[0].FontName != "Courier" || !near(got[0].Width, 3.6) {
		t.Fatalf("form font = %q width %v", got[0].FontName, got[0].Width)
	}
}

func TestUnicodeFont(t *testing.T) {
	data := pdftest.Build([]pdftest.Page{{
		Content: "BT /F2 14 Tf 1 0 0 1 72 600 Tm " + pdftest.Glyphs("Привет") + " Tj ET",
		Fonts:   map[string]pdftest.Font{"F2": {Unicode: true}},
	}}, pdftest.Options{Compress: true})
	got := items(t, open(t, data), 0)
	if len(got) != 1 || got[0].Str != "Привет" {
		t.Fatalf("items = %+v", got)
	}
	if got[0].Width <= 0 {
		t.Fatalf("expected widths from /W, got %v", got[0].Width)
	}
}

func TestOpenLogsToConfiguredLogger(t *testing.T) {
	log := observability.NewMemoryLogger()
	doc, err := OpenWithConfig(context.Background(), pdftest.Invoice(), Config{Logger: log})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if doc.Logger() != observability.Logger(log) {
		t.Fatalf("logger not retained")
	}
	if log.Count("debug") == 0 {
		t.Fatalf("expected a debug entry, got %+v", log.Entries())
	}
}

func TestOpenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Open(ctx, pdftest.Invoice()); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
