package snapshot

import (
	"bytes"
	"context"
	"crypto/sha256"
	"sync"
	"testing"

	"github.com/wudi/regionedit/coords"
	"github.com/wudi/regionedit/extract"
	"github.com/wudi/regionedit/pdftest"
)

func TestBytesAreCopied(t *testing.T) {
	data := pdftest.Invoice()
	s := New(data, 3, Options{})
	data[0] = 'X'
	out := s.Bytes()
	if out[0] != '%' {
		t.Fatalf("snapshot shares the caller's buffer")
	}
	out[1] = 'X'
	if s.Bytes()[1] != 'P' {
		t.Fatalf("Bytes exposes the snapshot's buffer")
	}
	if s.Generation() != 3 || s.Digest() != sha256.Sum256(s.Bytes()) || len(s.Hash()) != 64 {
		t.Fatalf("metadata: gen %d hash %s", s.Generation(), s.Hash())
	}
	if s.Created().IsZero() {
		t.Fatalf("creation time not set")
	}
}

func TestRegionsCached(t *testing.T) {
	ctx := context.Background()
	s := New(pdftest.Invoice(), 0, Options{})
	if len(s.CachedPages()) != 0 {
		t.Fatalf("cache should start empty")
	}
	first := s.Regions(ctx, 0)
	if len(first) != 1 || first[0].OriginalText != "Invoice #1" {
		t.Fatalf("regions = %+v", first)
	}
	first[0].OriginalText = "mutated"
	if s.Regions(ctx, 0)[0].OriginalText != "Invoice #1" {
		t.Fatalf("callers can mutate the cache")
	}
	if pages := s.CachedPages(); len(pages) != 1 || pages[0] != 0 {
		t.Fatalf("cached pages = %v", pages)
	}
	if s.NumPages(ctx) != 1 {
		t.Fatalf("pages = %d", s.NumPages(ctx))
	}
}

func TestIndex(t *testing.T) {
	ctx := context.Background()
	s := New(pdftest.Invoice(), 0, Options{})
	ix := s.Index(ctx, 0)
	if ix != s.Index(ctx, 0) {
		t.Fatalf("index rebuilt")
	}
	if r, ok := ix.At(coords.Point{X: 103, Y: 704}); !ok || r.OriginalText != "Invoice #1" {
		t.Fatalf("index lookup = %+v %v", r, ok)
	}
}

func TestAttachDerived(t *testing.T) {
	ctx := context.Background()
	s := New(pdftest.Invoice(), 0, Options{})
	before := s.Index(ctx, 0)
	s.AttachDerived(0, []extract.TextRegion{{
		ID: "ocr", OriginalText: "Stamp", Origin: extract.OriginDerived,
		BoundingBox: coords.Rect{X: 300, Y: 300, Width: 40, Height: 12},
	}})
	rs := s.Regions(ctx, 0)
	if len(rs) != 2 || rs[1].ID != "ocr" || rs[1].Order != 1 {
		t.Fatalf("merged regions = %+v", rs)
	}
	if s.Index(ctx, 0) == before {
		t.Fatalf("index not rebuilt after attaching regions")
	}
	if len(s.Derived()[0]) != 1 {
		t.Fatalf("derived = %+v", s.Derived())
	}
}

func TestUnreadableSnapshotDegrades(t *testing.T) {
	ctx := context.Background()
	s := New([]byte("garbage"), 0, Options{})
	if _, err := s.Document(ctx); err == nil {
		t.Fatalf("expected a parse error")
	}
	if rs := s.Regions(ctx, 0); len(rs) != 0 {
		t.Fatalf("regions = %+v", rs)
	}
	if _, ok := s.PageBounds(ctx, 0); ok {
		t.Fatalf("bounds of an unreadable document")
	}
}

func TestCancelledParseIsRetried(t *testing.T) {
	s := New(pdftest.Invoice(), 0, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Document(ctx); err == nil {
		t.Fatalf("expected cancellation")
	}
	if _, err := s.Document(context.Background()); err != nil {
		t.Fatalf("parse after cancellation: %v", err)
	}
}

func TestConcurrentReaders(t *testing.T) {
	ctx := context.Background()
	s := New(pdftest.Hello(), 0, Options{})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if rs := s.Regions(ctx, 0); len(rs) != 1 {
				t.Errorf("regions = %d", len(rs))
			}
			s.Index(ctx, 0)
		}()
	}
	wg.Wait()
	if !bytes.Contains(s.Bytes(), []byte("Hello")) {
		t.Fatalf("fixture changed")
	}
}

func TestIndexTracksConcurrentAttach(t *testing.T) {
	ctx := context.Background()
	s := New(pdftest.Invoice(), 0, Options{})
	stamp := func(i int) []extract.TextRegion {
		return []extract.TextRegion{{
			ID: "ocr", OriginalText: "Stamp", Origin: extract.OriginDerived,
			BoundingBox: coords.Rect{X: 300 + float64(i), Y: 300, Width: 40, Height: 12},
		}}
	}
	stop := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					s.Index(ctx, 0)
				}
			}
		}()
	}
	for i := 0; i < 50; i++ {
		s.AttachDerived(0, stamp(i))
	}
	close(stop)
	wg.Wait()

	// the last attach put the stamp at x 349..389
	ix := s.Index(ctx, 0)
	if r, ok := ix.At(coords.Point{X: 385, Y: 305}); !ok || r.OriginalText != "Stamp" {
		t.Fatalf("index misses the latest derived region: %+v %v", r, ok)
	}
	if _, ok := ix.At(coords.Point{X: 302, Y: 305}); ok {
		t.Fatalf("index still holds an earlier derived region")
	}
}
