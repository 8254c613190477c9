// Package session owns one open document: its current snapshot, the undo
// history and the gate every mutation passes through.
package session

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/google/uuid"

	"github.com/wudi/regionedit/coords"
	"github.com/wudi/regionedit/editor"
	"github.com/wudi/regionedit/extract"
	"github.com/wudi/regionedit/gate"
	"github.com/wudi/regionedit/history"
	"github.com/wudi/regionedit/hittest"
	"github.com/wudi/regionedit/observability"
	"github.com/wudi/regionedit/ocr"
	"github.com/wudi/regionedit/reader"
	"github.com/wudi/regionedit/snapshot"
	"github.com/wudi/regionedit/viewport"
)

// OCRConfig controls recognition of rendered pages.
type OCRConfig struct {
	Languages     []string
	// DPI is the resolution pages should be rendered at for recognition.
	DPI           int
	MinConfidence float64
	// PSM is the Tesseract page segmentation mode; zero leaves the engine's.
	PSM           int
	Level         extract.OCRLevel
	// Engine defaults to ocr.DefaultEngine().
	Engine        ocr.Engine
}

// Config configures a Session. The zero value is usable.
type Config struct {
	// HistoryCapacity bounds the undo history; see history.New.
	HistoryCapacity int
	Edit            editor.Options
	Reader          reader.Config
	OCR             OCRConfig
	Logger          observability.Logger
	Tracer          observability.Tracer
}

// Session is safe for concurrent use. Reads work on the current snapshot;
// edits, undo, redo and OCR attachment run one at a time in submission
// order.
type Session struct {
	log      observability.Logger
	cfg      Config
	snapOpts snapshot.Options
	applier  *editor.Applier
	hist     *history.History
	gate     *gate.Gate

	memoMu   sync.Mutex
	failures map[memoKey]error
}

type memoKey struct {
	snapshot string
	edits    uuid.UUID
}

// Open reads data and starts a session on it. Unreadable input fails with
// an error wrapping reader.ErrUnreadable.
func Open(ctx context.Context, data []byte, cfg Config) (*Session, error) {
	log := observability.OrNop(cfg.Logger)
	cfg.Logger = log
	cfg.Tracer = observability.TracerOrNop(cfg.Tracer)
	if cfg.Edit.Logger == nil {
		cfg.Edit.Logger = log
	}
	if cfg.Edit.Tracer == nil {
		cfg.Edit.Tracer = cfg.Tracer
	}
	if cfg.Reader.Logger == nil {
		cfg.Reader.Logger = log
	}
	cfg.Edit.Reader = cfg.Reader

	s := &Session{
		log:      log,
		cfg:      cfg,
		snapOpts: snapshot.Options{Reader: cfg.Reader, Logger: log, Tracer: cfg.Tracer},
		failures: make(map[memoKey]error),
	}
	first := snapshot.New(data, 0, s.snapOpts)
	doc, err := first.Document(ctx)
	if err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}
	if doc.Encrypted() {
		log.Warn("document is encrypted; edits will be rejected")
	}
	s.applier = editor.New(cfg.Edit)
	s.hist = history.New(first, cfg.HistoryCapacity)
	s.gate = gate.New(gate.Options{Logger: log})
	log.Info("session opened",
		observability.Int("pages", doc.NumPages()),
		observability.Int("bytes", len(data)),
		observability.Int("history", s.hist.Capacity()))
	return s, nil
}

// Current returns the current snapshot.
func (s *Session) Current() *snapshot.Snapshot { return s.hist.Current() }

// Bytes returns the current document.
func (s *Session) Bytes() []byte { return s.hist.Current().Bytes() }

// NumPages returns the page count of the current document.
func (s *Session) NumPages(ctx context.Context) int { return s.hist.Current().NumPages(ctx) }

// History exposes the undo history for inspection.
func (s *Session) History() *history.History { return s.hist }

// Regions returns the regions of a page in the current document. A page
// that cannot be read has none.
func (s *Session) Regions(ctx context.Context, pageIndex int) []extract.TextRegion {
	return s.hist.Current().Regions(ctx, pageIndex)
}

// HitTest resolves a device point on a page to a region. Pages with more
// than hittest.IndexThreshold regions are answered from the page index.
func (s *Session) HitTest(ctx context.Context, pageIndex int, device coords.Point, vp viewport.Viewport) (extract.TextRegion, bool) {
	cur := s.hist.Current()
	regions := cur.Regions(ctx, pageIndex)
	if len(regions) > hittest.IndexThreshold {
		return cur.Index(ctx, pageIndex).HitTest(device, vp)
	}
	return hittest.HitTest(device, regions, vp)
}

// ApplyEdit replaces the text of region and returns the new document.
func (s *Session) ApplyEdit(ctx context.Context, region extract.TextRegion, newText string) ([]byte, error) {
	return s.ApplyEdits(ctx, []editor.EditOperation{editor.NewEditOperation(region, newText)})
}

// ApplyEdits applies ops as one mutation: all of them or none. On success
// the result becomes current and is returned; no ops returns the current
// bytes without a history step.
func (s *Session) ApplyEdits(ctx context.Context, ops []editor.EditOperation) ([]byte, error) {
	var out []byte
	err := s.gate.Do(ctx, func(ctx context.Context) error {
		next, err := s.edit(ctx, ops)
		if err != nil {
			return err
		}
		out = next.Bytes()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SubmitEdits queues ops without waiting. The ticket reports the outcome;
// the result is then the current snapshot.
func (s *Session) SubmitEdits(ctx context.Context, ops []editor.EditOperation) (*gate.Ticket, error) {
	ops = append([]editor.EditOperation(nil), ops...)
	return s.gate.Submit(ctx, func(ctx context.Context) error {
		_, err := s.edit(ctx, ops)
		return err
	})
}

// edit runs on the gate worker. An empty batch leaves the history alone.
func (s *Session) edit(ctx context.Context, ops []editor.EditOperation) (*snapshot.Snapshot, error) {
	cur := s.hist.Current()
	if len(ops) == 0 {
		return cur, nil
	}
	key := memoKey{snapshot: cur.Hash(), edits: fingerprint(ops)}
	if err := s.remembered(key); err != nil {
		s.log.Debug("edit answered from failure memo", observability.Int64("generation", int64(cur.Generation())))
		return nil, err
	}

	out, err := s.applier.ApplyEdits(ctx, cur.Bytes(), ops)
	if err != nil {
		if errors.Is(err, editor.ErrSerialization) {
			s.remember(key, err)
		}
		s.log.Warn("edit rejected", observability.Int("edits", len(ops)), observability.Error("err", err))
		return nil, err
	}

	next := snapshot.New(out, cur.Generation()+1, s.snapOpts)
	edited := make(map[string]bool, len(ops))
	for _, op := range ops {
		edited[op.TargetRegionID] = true
	}
	for page, derived := range cur.Derived() {
		kept := derived[:0]
		for _, r := range derived {
			if !edited[r.ID] {
				kept = append(kept, r)
			}
		}
		if len(kept) > 0 {
			next.AttachDerived(page, kept)
		}
	}
	s.hist.Push(next)
	s.log.Info("edit applied",
		observability.Int("edits", len(ops)),
		observability.Int64("generation", int64(next.Generation())),
		observability.Int(observability.MetricHistoryDepth, s.hist.Len()))
	return next, nil
}

// fingerprint identifies an edit batch independently of timestamps.
func fingerprint(ops []editor.EditOperation) uuid.UUID {
	var desc []byte
	for _, op := range ops {
		desc = fmt.Appendf(desc, "%s|%d|%q|%g,%g,%g", op.TargetRegionID, op.PageIndex, op.NewText, op.Anchor.X, op.Anchor.Y, op.Anchor.FontSizePt)
		if op.Region != nil {
			desc = fmt.Appendf(desc, "|%s|%v", op.Region.Origin, op.Region.BoundingBox)
		}
		desc = append(desc, '\n')
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, desc)
}

func (s *Session) remembered(k memoKey) error {
	s.memoMu.Lock()
	defer s.memoMu.Unlock()
	return s.failures[k]
}

func (s *Session) remember(k memoKey, err error) {
	s.memoMu.Lock()
	defer s.memoMu.Unlock()
	s.failures[k] = err
}

// Undo makes the previous snapshot current and returns its bytes.
func (s *Session) Undo(ctx context.Context) ([]byte, error) {
	return s.move(ctx, s.hist.Undo, "undo")
}

// Redo makes the next snapshot current and returns its bytes.
func (s *Session) Redo(ctx context.Context) ([]byte, error) {
	return s.move(ctx, s.hist.Redo, "redo")
}

func (s *Session) move(ctx context.Context, step func() (*snapshot.Snapshot, error), name string) ([]byte, error) {
	var out []byte
	err := s.gate.Do(ctx, func(context.Context) error {
		snap, err := step()
		if err != nil {
			return err
		}
		out = snap.Bytes()
		s.log.Debug(name, observability.Int64("generation", int64(snap.Generation())), observability.Int("index", s.hist.Index()))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// AttachOCR turns an OCR result for a page raster into derived regions on
// the current snapshot, replacing earlier ones for that page.
func (s *Session) AttachOCR(ctx context.Context, pageIndex int, res ocr.Result, raster viewport.Viewport) ([]extract.TextRegion, error) {
	var regions []extract.TextRegion
	err := s.gate.Do(ctx, func(context.Context) error {
		regions = extract.FromOCR(res, pageIndex, raster, extract.OCROptions{
			Level:         s.cfg.OCR.Level,
			MinConfidence: s.cfg.OCR.MinConfidence,
		})
		s.hist.Current().AttachDerived(pageIndex, regions)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Debug("ocr regions attached", observability.Int("page", pageIndex), observability.Int(observability.MetricRegionCount, len(regions)))
	return regions, nil
}

// RecognizePage runs OCR over img, a raster of the whole page with its
// /Rotate applied, and attaches the result.
func (s *Session) RecognizePage(ctx context.Context, pageIndex int, img image.Image) ([]extract.TextRegion, error) {
	raster, err := s.RasterViewport(ctx, pageIndex, img.Bounds().Dx())
	if err != nil {
		return nil, err
	}
	engine := s.cfg.OCR.Engine
	if engine == nil {
		engine = ocr.DefaultEngine()
	}
	opts := []ocr.InputOption{ocr.WithDPI(int(raster.Zoom*72 + 0.5))}
	if len(s.cfg.OCR.Languages) > 0 {
		opts = append(opts, ocr.WithLanguages(s.cfg.OCR.Languages...))
	}
	if s.cfg.OCR.PSM > 0 {
		opts = append(opts, ocr.WithTesseractPSM(s.cfg.OCR.PSM))
	}
	res, err := ocr.RecognizePage(ctx, engine, pageIndex, img, s.cfg.Tracer, opts...)
	if err != nil {
		return nil, err
	}
	return s.AttachOCR(ctx, pageIndex, res, raster)
}

// RenderZoom is the zoom hosts should rasterise pages at before calling
// RecognizePage, from the configured OCR resolution.
func (s *Session) RenderZoom() float64 {
	if s.cfg.OCR.DPI <= 0 {
		return 2
	}
	return float64(s.cfg.OCR.DPI) / 72
}

// RasterViewport is the viewport of a page rendered widthPx pixels wide
// with its /Rotate applied.
func (s *Session) RasterViewport(ctx context.Context, pageIndex int, widthPx int) (viewport.Viewport, error) {
	doc, err := s.hist.Current().Document(ctx)
	if err != nil {
		return viewport.Viewport{}, err
	}
	page, err := doc.Page(pageIndex)
	if err != nil {
		return viewport.Viewport{}, err
	}
	vp := viewport.ForPage(page.MediaBox, 1)
	vp.Rotation = page.Rotate
	w, _ := vp.DeviceSize()
	if w <= 0 || widthPx <= 0 {
		return viewport.Viewport{}, fmt.Errorf("raster of page %d: %w", pageIndex, viewport.ErrInvalid)
	}
	vp.Zoom = float64(widthPx) / w
	return vp, nil
}

// Close waits for queued mutations and stops the session.
func (s *Session) Close(ctx context.Context) error {
	err := s.gate.Close(ctx)
	s.log.Info("session closed", observability.Int64("generation", int64(s.hist.Current().Generation())))
	return err
}
