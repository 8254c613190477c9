// Package reader opens PDF bytes and exposes the pages, their geometry and
// the text items a viewer would render on them.
package reader

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/wudi/regionedit/filters"
	"github.com/wudi/regionedit/fonts"
	"github.com/wudi/regionedit/ir/raw"
	"github.com/wudi/regionedit/observability"
	"github.com/wudi/regionedit/recovery"
	"github.com/wudi/regionedit/scanner"
)

var (
	// ErrUnreadable is returned when the bytes do not hold a usable PDF.
	ErrUnreadable = errors.New("document unreadable")
	// ErrPageRange is returned for a page index outside the document.
	ErrPageRange = errors.New("page index out of range")
)

// Config tunes parsing. The zero value is usable.
type Config struct {
	Scanner scanner.Config
	Limits  filters.Limits
	// Strict fails on malformed syntax instead of recovering.
	Strict bool
	// MaxFormDepth bounds Form XObject nesting; 0 means 8.
	MaxFormDepth int
	Logger       observability.Logger
	Tracer       observability.Tracer
}

func (c Config) withDefaults() Config {
	if c.Limits.MaxDecompressedSize == 0 {
		c.Limits.MaxDecompressedSize = 256 << 20
	}
	if c.Limits.MaxDecodeTime == 0 {
		c.Limits.MaxDecodeTime = 10 * time.Second
	}
	if c.Scanner.MaxArrayDepth == 0 {
		c.Scanner.MaxArrayDepth = 128
	}
	if c.Scanner.MaxDictDepth == 0 {
		c.Scanner.MaxDictDepth = 128
	}
	if c.Scanner.Recovery == nil {
		if c.Strict {
			c.Scanner.Recovery = recovery.StrictStrategy{}
		} else {
			c.Scanner.Recovery = &recovery.LenientStrategy{}
		}
	}
	if c.MaxFormDepth == 0 {
		c.MaxFormDepth = 8
	}
	c.Logger = observability.OrNop(c.Logger)
	c.Tracer = observability.TracerOrNop(c.Tracer)
	return c
}

// Document is an opened PDF. It is safe for concurrent use.
type Document struct {
	raw      *raw.Document
	pages    []*Page
	cfg      Config
	pipeline *filters.Pipeline
	root     raw.ObjectRef

	mu    sync.Mutex
	fonts map[raw.ObjectRef]*fonts.Font
}

// Open parses data with the default configuration.
func Open(ctx context.Context, data []byte) (*Document, error) {
	return OpenWithConfig(ctx, data, Config{})
}

// OpenWithConfig parses data and walks its page tree. Failures wrap
// ErrUnreadable.
func OpenWithConfig(ctx context.Context, data []byte, cfg Config) (doc *Document, err error) {
	cfg = cfg.withDefaults()
	ctx, span := cfg.Tracer.StartSpan(ctx, observability.SpanOpen)
	defer func() {
		if err != nil {
			span.SetError(err)
		}
		span.Finish()
	}()

	start := time.Now()
	rd, err := raw.Parse(ctx, data, raw.ParserConfig{Scanner: cfg.Scanner})
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	doc = &Document{
		raw:      rd,
		cfg:      cfg,
		pipeline: filters.DefaultPipeline(cfg.Limits),
		fonts:    make(map[raw.ObjectRef]*fonts.Font),
	}
	doc.inflateObjectStreams(ctx)

	root, ok := rd.Trailer.Lookup("Root").(raw.RefObj)
	if !ok || rd.Objects[root.Ref()] == nil {
		ref, found := latestOfType(rd, "Catalog")
		if !found {
			return nil, fmt.Errorf("%w: no document catalog", ErrUnreadable)
		}
		rd.Trailer.SetKey("Root", raw.RefObj{R: ref})
		root = raw.RefObj{R: ref}
	}
	doc.root = root.Ref()
	if err := doc.loadPages(); err != nil {
		return nil, err
	}

	if lenient, ok := cfg.Scanner.Recovery.(*recovery.LenientStrategy); ok {
		if issues := lenient.Issues(); len(issues) > 0 {
			cfg.Logger.Warn("recovered from malformed input",
				observability.Int("issues", len(issues)),
				observability.Error("first", issues[0].Err))
		}
	}
	span.SetTag(observability.MetricPageCount, len(doc.pages))
	span.SetTag(observability.MetricObjectCount, len(rd.Objects))
	cfg.Logger.Debug("document opened",
		observability.Int("pages", len(doc.pages)),
		observability.Int("objects", len(rd.Objects)),
		observability.Int64("parse_ms", time.Since(start).Milliseconds()))
	return doc, nil
}

// inflateObjectStreams adds the members of every /Type /ObjStm stream.
// A member replaces an existing definition only when its container comes
// later in the file.
func (d *Document) inflateObjectStreams(ctx context.Context) {
	type container struct {
		ref raw.ObjectRef
		st  *raw.StreamObj
		off int64
	}
	var list []container
	for ref, obj := range d.raw.Objects {
		st, ok := obj.(*raw.StreamObj)
		if !ok {
			continue
		}
		if t, _ := d.raw.Name(st.Dict.Lookup("Type")); t == "ObjStm" {
			list = append(list, container{ref: ref, st: st, off: d.raw.Offsets[ref]})
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].off < list[j].off })

	for _, c := range list {
		members, err := d.objectStreamMembers(ctx, c.st)
		if err != nil {
			d.cfg.Logger.Warn("object stream skipped",
				observability.String("ref", c.ref.String()),
				observability.Error("err", err))
			continue
		}
		for num, obj := range members {
			ref := raw.ObjectRef{Num: num}
			if existing, ok := d.raw.Offsets[ref]; ok && existing > c.off {
				continue
			}
			d.raw.Objects[ref] = obj
			d.raw.Offsets[ref] = c.off
		}
	}
}

func (d *Document) objectStreamMembers(ctx context.Context, st *raw.StreamObj) (map[int]raw.Object, error) {
	n, _ := d.raw.Number(st.Dict.Lookup("N"))
	first, _ := d.raw.Number(st.Dict.Lookup("First"))
	data, err := d.pipeline.DecodeStream(ctx, st)
	if err != nil {
		return nil, err
	}
	if first <= 0 || int(first) > len(data) {
		return nil, errors.New("object stream First out of range")
	}
	header, err := raw.ParseObjects(data[:int(first)], d.cfg.Scanner)
	if err != nil {
		return nil, err
	}
	type entry struct{ num, off int }
	var entries []entry
	for i := 0; i+1 < len(header) && len(entries) < int(n); i += 2 {
		num, ok1 := header[i].(raw.NumberObj)
		off, ok2 := header[i+1].(raw.NumberObj)
		if !ok1 || !ok2 {
			break
		}
		entries = append(entries, entry{int(num.Int()), int(off.Int())})
	}
	body := data[int(first):]
	out := make(map[int]raw.Object, len(entries))
	for i, e := range entries {
		end := len(body)
		if i+1 < len(entries) && entries[i+1].off > e.off && entries[i+1].off <= len(body) {
			end = entries[i+1].off
		}
		if e.off < 0 || e.off >= end {
			continue
		}
		objs, err := raw.ParseObjects(body[e.off:end], d.cfg.Scanner)
		if err != nil || len(objs) == 0 {
			continue
		}
		out[e.num] = objs[0]
	}
	return out, nil
}

func latestOfType(rd *raw.Document, typ string) (raw.ObjectRef, bool) {
	var best raw.ObjectRef
	var bestOff int64 = -1
	for ref, obj := range rd.Objects {
		d, ok := obj.(*raw.DictObj)
		if !ok {
			continue
		}
		if t, _ := rd.Name(d.Lookup("Type")); t == typ && rd.Offsets[ref] > bestOff {
			best, bestOff = ref, rd.Offsets[ref]
		}
	}
	return best, bestOff >= 0
}

// NumPages returns the page count.
func (d *Document) NumPages() int { return len(d.pages) }

// Page returns the page at a zero-based index.
func (d *Document) Page(i int) (*Page, error) {
	if i < 0 || i >= len(d.pages) {
		return nil, fmt.Errorf("%w: %d of %d", ErrPageRange, i, len(d.pages))
	}
	return d.pages[i], nil
}

// Pages returns every page in document order.
func (d *Document) Pages() []*Page { return append([]*Page(nil), d.pages...) }

// Raw exposes the parsed object graph.
func (d *Document) Raw() *raw.Document { return d.raw }

// Trailer returns the merged trailer dictionary.
func (d *Document) Trailer() *raw.DictObj { return d.raw.Trailer }

// Root returns the catalog reference.
func (d *Document) Root() raw.ObjectRef { return d.root }

// Encrypted reports whether the trailer names an /Encrypt dictionary.
func (d *Document) Encrypted() bool { return d.raw.Encrypted }

// Pipeline returns the stream decoder configured for the document.
func (d *Document) Pipeline() *filters.Pipeline { return d.pipeline }

// Logger returns the configured logger.
func (d *Document) Logger() observability.Logger { return d.cfg.Logger }

// font loads and caches a font dictionary.
func (d *Document) font(ctx context.Context, obj raw.Object) *fonts.Font {
	ref, isRef := obj.(raw.RefObj)
	if isRef {
		d.mu.Lock()
		f, ok := d.fonts[ref.Ref()]
		d.mu.Unlock()
		if ok {
			return f
		}
	}
	f := fonts.Load(ctx, d.raw, obj, d.pipeline)
	if isRef {
		d.mu.Lock()
		d.fonts[ref.Ref()] = f
		d.mu.Unlock()
	}
	return f
}
