package hittest

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/wudi/regionedit/coords"
	"github.com/wudi/regionedit/extract"
	"github.com/wudi/regionedit/viewport"
)

var letter = coords.Rect{Width: 612, Height: 792}

func region(order int, x, y, w, h float64) extract.TextRegion {
	return extract.TextRegion{Order: order, OriginalText: "r", BoundingBox: coords.Rect{X: x, Y: y, Width: w, Height: h}}
}

func TestInvoiceClick(t *testing.T) {
	regions := extract.Extract([]extract.RawTextItem{{
		Text: "Invoice #1", Transform: [6]float64{12, 0, 0, 12, 100, 700}, Width: 4.558, Height: 0.718, Descent: -0.207,
	}}, 0)
	vp := viewport.ForPage(letter, 1)
	// the glyph at the start of the run, in screen pixels
	click := viewport.ToDeviceSpace(coords.Point{X: 103, Y: 704}, vp)
	if click.X != 103 || click.Y != 88 {
		t.Fatalf("device point = %v", click)
	}
	got, ok := HitTest(click, regions, vp)
	if !ok || got.OriginalText != "Invoice #1" {
		t.Fatalf("hit = %+v %v", got, ok)
	}
	if _, ok := HitTest(coords.Point{X: 5, Y: 5}, regions, vp); ok {
		t.Fatalf("expected a miss in the page corner")
	}
}

func TestTieBreak(t *testing.T) {
	regions := []extract.TextRegion{
		region(0, 0, 0, 100, 100),
		region(1, 10, 10, 20, 20),
		region(2, 10, 10, 20, 20),
		region(3, 0, 0, 200, 200),
	}
	got, ok := At(coords.Point{X: 15, Y: 15}, regions)
	if !ok || got.Order != 2 {
		t.Fatalf("expected the later of the two smallest regions, got %+v", got)
	}
	got, _ = At(coords.Point{X: 50, Y: 50}, regions)
	if got.Order != 0 {
		t.Fatalf("expected the smaller enclosing region, got %+v", got)
	}
	got, _ = At(coords.Point{X: 30, Y: 30}, regions)
	if got.Order != 2 {
		t.Fatalf("edges are inclusive, got %+v", got)
	}
}

func TestInvalidInputMisses(t *testing.T) {
	regions := []extract.TextRegion{region(0, 0, 0, 612, 792)}
	if _, ok := HitTest(coords.Point{X: math.NaN(), Y: 1}, regions, viewport.ForPage(letter, 1)); ok {
		t.Fatalf("NaN point should miss")
	}
	if _, ok := HitTest(coords.Point{X: 1, Y: 1}, regions, viewport.ForPage(letter, 0)); ok {
		t.Fatalf("zero zoom should miss")
	}
}

func TestContainmentUnderRotation(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	regions := make([]extract.TextRegion, 200)
	for i := range regions {
		regions[i] = region(i, rng.Float64()*500, rng.Float64()*700, 5+rng.Float64()*100, 5+rng.Float64()*40)
	}
	ix := NewIndex(regions, letter)
	for _, rot := range []int{0, 90, 180, 270} {
		vp := viewport.Viewport{Zoom: 1.5, Rotation: rot, PageWidth: 612, PageHeight: 792, Origin: coords.Point{X: 20, Y: 30}}
		for _, r := range regions {
			p := r.BoundingBox.Center()
			d := viewport.ToDeviceSpace(p, vp)
			got, ok := HitTest(d, regions, vp)
			if !ok || !got.BoundingBox.Contains(p) {
				t.Fatalf("rotation %d: hit for %v = %+v %v", rot, p, got.BoundingBox, ok)
			}
			indexed, ok := ix.HitTest(d, vp)
			if !ok || indexed.Order != got.Order {
				t.Fatalf("rotation %d: index disagrees: %d vs %d", rot, indexed.Order, got.Order)
			}
		}
	}
}

func TestIndexOverflow(t *testing.T) {
	regions := []extract.TextRegion{
		region(0, 600, 780, 50, 50), // sticks out of the page
		region(1, 10, 10, 10, 10),
	}
	ix := NewIndex(regions, letter)
	if got, ok := ix.At(coords.Point{X: 640, Y: 800}); !ok || got.Order != 0 {
		t.Fatalf("overflow region not found: %+v %v", got, ok)
	}
	if got, ok := ix.At(coords.Point{X: 15, Y: 15}); !ok || got.Order != 1 {
		t.Fatalf("indexed region not found: %+v %v", got, ok)
	}
	if ix.Len() != 2 {
		t.Fatalf("len = %d", ix.Len())
	}
}

func TestTenThousandRegions(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	regions := make([]extract.TextRegion, 10000)
	for i := range regions {
		regions[i] = region(i, rng.Float64()*600, rng.Float64()*780, 1+rng.Float64()*30, 1+rng.Float64()*12)
	}
	vp := viewport.ForPage(letter, 2)

	start := time.Now()
	ix := NewIndex(regions, letter)
	for i := 0; i < 100; i++ {
		d := coords.Point{X: rng.Float64() * 1224, Y: rng.Float64() * 1584}
		want, wantOK := HitTest(d, regions, vp)
		got, ok := ix.HitTest(d, vp)
		if ok != wantOK || got.Order != want.Order {
			t.Fatalf("index result %d/%v, linear %d/%v", got.Order, ok, want.Order, wantOK)
		}
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("100 hit tests over 10k regions took %v", elapsed)
	}

	single := time.Now()
	HitTest(coords.Point{X: 600, Y: 800}, regions, vp)
	if elapsed := time.Since(single); elapsed > 100*time.Millisecond {
		t.Fatalf("linear hit test took %v", elapsed)
	}
}

func BenchmarkIndexHitTest(b *testing.B) {
	rng := rand.New(rand.NewSource(1))
	regions := make([]extract.TextRegion, 10000)
	for i := range regions {
		regions[i] = region(i, rng.Float64()*600, rng.Float64()*780, 1+rng.Float64()*30, 1+rng.Float64()*12)
	}
	ix := NewIndex(regions, letter)
	vp := viewport.ForPage(letter, 1)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ix.HitTest(coords.Point{X: float64(i % 612), Y: float64(i % 792)}, vp)
	}
}
