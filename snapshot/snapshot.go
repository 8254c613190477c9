// Package snapshot holds immutable document versions together with the
// parse and region caches derived from them.
package snapshot

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"sync"
	"time"

	"github.com/wudi/regionedit/coords"
	"github.com/wudi/regionedit/extract"
	"github.com/wudi/regionedit/hittest"
	"github.com/wudi/regionedit/observability"
	"github.com/wudi/regionedit/reader"
)

// Options configure how a snapshot parses and extracts.
type Options struct {
	Reader reader.Config
	Logger observability.Logger
	Tracer observability.Tracer
}

// Snapshot is one version of a document. Its bytes never change; caches
// are filled on first use and safe for concurrent readers.
type Snapshot struct {
	data       []byte
	generation uint64
	digest     [sha256.Size]byte
	created    time.Time
	opts       Options

	docMu  sync.Mutex
	doc    *reader.Document
	docErr error

	mu      sync.Mutex
	regions map[int][]extract.TextRegion
	indexes map[int]*hittest.Index
	derived map[int][]extract.TextRegion
	// attaches counts AttachDerived calls; an index built across one is
	// not cached.
	attaches uint64
}

// New copies data into a snapshot.
func New(data []byte, generation uint64, opts Options) *Snapshot {
	opts.Logger = observability.OrNop(opts.Logger)
	opts.Tracer = observability.TracerOrNop(opts.Tracer)
	if opts.Reader.Logger == nil {
		opts.Reader.Logger = opts.Logger
	}
	if opts.Reader.Tracer == nil {
		opts.Reader.Tracer = opts.Tracer
	}
	buf := append([]byte(nil), data...)
	return &Snapshot{
		data:       buf,
		generation: generation,
		digest:     sha256.Sum256(buf),
		created:    time.Now(),
		opts:       opts,
		regions:    make(map[int][]extract.TextRegion),
		indexes:    make(map[int]*hittest.Index),
		derived:    make(map[int][]extract.TextRegion),
	}
}

// Bytes returns a copy of the document bytes.
func (s *Snapshot) Bytes() []byte { return append([]byte(nil), s.data...) }

// Len returns the document size in bytes.
func (s *Snapshot) Len() int { return len(s.data) }

// Generation counts the mutations that led to this snapshot.
func (s *Snapshot) Generation() uint64 { return s.generation }

// Digest is the SHA-256 of the bytes.
func (s *Snapshot) Digest() [sha256.Size]byte { return s.digest }

// Hash is the hex form of Digest.
func (s *Snapshot) Hash() string { return hex.EncodeToString(s.digest[:]) }

// Created returns when the snapshot was taken.
func (s *Snapshot) Created() time.Time { return s.created }

// Document parses the bytes once and returns the result of that parse to
// every caller. A parse cut short by ctx is not remembered.
func (s *Snapshot) Document(ctx context.Context) (*reader.Document, error) {
	s.docMu.Lock()
	defer s.docMu.Unlock()
	if s.doc != nil || s.docErr != nil {
		return s.doc, s.docErr
	}
	doc, err := reader.OpenWithConfig(ctx, s.data, s.opts.Reader)
	if err != nil && ctx.Err() != nil {
		return nil, err
	}
	s.doc, s.docErr = doc, err
	return doc, err
}

// NumPages returns the page count, or 0 when the bytes do not parse.
func (s *Snapshot) NumPages(ctx context.Context) int {
	doc, err := s.Document(ctx)
	if err != nil {
		return 0
	}
	return doc.NumPages()
}

// PageBounds returns the MediaBox of a page.
func (s *Snapshot) PageBounds(ctx context.Context, pageIndex int) (coords.Rect, bool) {
	doc, err := s.Document(ctx)
	if err != nil {
		return coords.Rect{}, false
	}
	page, err := doc.Page(pageIndex)
	if err != nil {
		return coords.Rect{}, false
	}
	return page.MediaBox, true
}

// Regions returns the native regions of a page followed by any attached
// derived regions. The returned slice is the caller's.
func (s *Snapshot) Regions(ctx context.Context, pageIndex int) []extract.TextRegion {
	return append([]extract.TextRegion(nil), s.pageRegions(ctx, pageIndex)...)
}

func (s *Snapshot) pageRegions(ctx context.Context, pageIndex int) []extract.TextRegion {
	s.mu.Lock()
	cached, ok := s.regions[pageIndex]
	s.mu.Unlock()
	if ok {
		return cached
	}

	var native []extract.TextRegion
	if doc, err := s.Document(ctx); err == nil {
		native = extract.ExtractPage(ctx, doc, pageIndex, extract.Options{Logger: s.opts.Logger, Tracer: s.opts.Tracer})
	} else {
		s.opts.Logger.Warn("snapshot unreadable", observability.Int("page", pageIndex), observability.Error("err", err))
	}
	if ctx.Err() != nil {
		// a cancelled extraction is incomplete; leave it uncached
		return native
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if cached, ok := s.regions[pageIndex]; ok {
		return cached
	}
	merged := extract.Merge(native, s.derived[pageIndex])
	s.regions[pageIndex] = merged
	return merged
}

// Index returns the hit-test index of a page, building it on first use.
func (s *Snapshot) Index(ctx context.Context, pageIndex int) *hittest.Index {
	for {
		s.mu.Lock()
		if ix, ok := s.indexes[pageIndex]; ok {
			s.mu.Unlock()
			return ix
		}
		seen := s.attaches
		s.mu.Unlock()

		regions := s.pageRegions(ctx, pageIndex)
		bounds, ok := s.PageBounds(ctx, pageIndex)
		if !ok {
			bounds = coords.Rect{}
		}
		ix := hittest.NewIndex(regions, bounds)
		if ctx.Err() != nil {
			return ix
		}

		s.mu.Lock()
		if cached, ok := s.indexes[pageIndex]; ok {
			s.mu.Unlock()
			return cached
		}
		if s.attaches != seen {
			// derived regions changed while building; start over
			s.mu.Unlock()
			continue
		}
		s.indexes[pageIndex] = ix
		s.mu.Unlock()
		return ix
	}
}

// AttachDerived sets the derived regions of a page, replacing earlier ones,
// and drops that page's cached regions and index.
func (s *Snapshot) AttachDerived(pageIndex int, regions []extract.TextRegion) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.derived[pageIndex] = append([]extract.TextRegion(nil), regions...)
	s.attaches++
	delete(s.regions, pageIndex)
	delete(s.indexes, pageIndex)
}

// Derived returns the attached derived regions by page.
func (s *Snapshot) Derived() map[int][]extract.TextRegion {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int][]extract.TextRegion, len(s.derived))
	for page, rs := range s.derived {
		out[page] = append([]extract.TextRegion(nil), rs...)
	}
	return out
}

// CachedPages lists the pages whose regions are cached.
func (s *Snapshot) CachedPages() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	pages := make([]int, 0, len(s.regions))
	for p := range s.regions {
		pages = append(pages, p)
	}
	sort.Ints(pages)
	return pages
}
