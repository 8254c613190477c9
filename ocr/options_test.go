package ocr

import (
	"image"
	"testing"
)

func TestTesseractVariables(t *testing.T) {
	var in Input
	for _, opt := range []InputOption{WithTesseractPSM(11), WithTesseractWhitelist("0123456789#")} {
		opt(&in)
	}
	if in.Metadata[VarPageSegMode] != "11" || in.Metadata[VarWhitelist] != "0123456789#" {
		t.Fatalf("metadata = %v", in.Metadata)
	}
}

func TestSpans(t *testing.T) {
	word := func(s string, x float64) TextWord {
		return TextWord{Text: s, Bounds: Region{X: x, Y: 10, Width: 20, Height: 8}, Confidence: 0.5}
	}
	res := Result{Blocks: []TextBlock{
		{Text: "Total 42", Lines: []TextLine{{Text: "Total 42", Words: []TextWord{word("Total", 0), word("42", 30)}}}},
		{Text: "Paid", Lines: []TextLine{{Text: "Paid", Words: []TextWord{word("Paid", 0)}}}},
	}}
	if got := res.BlockSpans(); len(got) != 2 || got[1].Text != "Paid" {
		t.Fatalf("blocks = %+v", got)
	}
	if got := res.LineSpans(); len(got) != 2 || got[0].Text != "Total 42" {
		t.Fatalf("lines = %+v", got)
	}
	words := res.WordSpans()
	if len(words) != 3 || words[1].Text != "42" || words[1].Bounds.X != 30 {
		t.Fatalf("words = %+v", words)
	}
}

func TestRegionPixels(t *testing.T) {
	r := Region{X: 10.4, Y: 19.6, Width: 5.2, Height: 0.3}
	if got := r.Pixels(); got != image.Rect(10, 20, 16, 20) {
		t.Fatalf("pixels = %v", got)
	}
	if !r.Pixels().Empty() || r.IsEmpty() {
		t.Fatalf("a sliver region rounds to no pixels but is not empty")
	}
}
