package reader

import (
	"bytes"
	"context"
	"fmt"

	"github.com/wudi/regionedit/coords"
	"github.com/wudi/regionedit/fonts"
	"github.com/wudi/regionedit/ir/raw"
	"github.com/wudi/regionedit/observability"
)

// Page is one leaf of the page tree with inherited attributes applied.
type Page struct {
	doc   *Document
	index int

	// Ref is the page object; Dict its dictionary as stored.
	Ref  raw.ObjectRef
	Dict *raw.DictObj
	// MediaBox in default user space, normalised to positive extent.
	MediaBox coords.Rect
	// Rotate is 0, 90, 180 or 270.
	Rotate int
	// Resources is the effective resource dictionary, inherited from an
	// ancestor when the page has none. Never nil.
	Resources *raw.DictObj
}

type inheritedPageProps struct {
	MediaBox  *coords.Rect
	Rotate    *int
	Resources raw.Object
}

// letter is the MediaBox assumed when none is declared.
var letter = coords.Rect{Width: 612, Height: 792}

const maxTreeDepth = 64

func (d *Document) loadPages() error {
	cat, ok := d.raw.Dict(raw.RefObj{R: d.root})
	if !ok {
		return fmt.Errorf("%w: catalog is not a dictionary", ErrUnreadable)
	}
	seen := make(map[raw.ObjectRef]bool)
	d.walkPages(cat.Lookup("Pages"), inheritedPageProps{}, seen, 0)
	if len(d.pages) == 0 {
		d.cfg.Logger.Warn("page tree empty, scanning for page objects")
		d.scanPages()
	}
	if len(d.pages) == 0 {
		return fmt.Errorf("%w: no pages", ErrUnreadable)
	}
	return nil
}

func (d *Document) walkPages(obj raw.Object, inherited inheritedPageProps, seen map[raw.ObjectRef]bool, depth int) {
	if depth > maxTreeDepth {
		return
	}
	if ref, ok := obj.(raw.RefObj); ok {
		if seen[ref.Ref()] {
			return
		}
		seen[ref.Ref()] = true
	}
	dict, ok := d.raw.Dict(obj)
	if !ok {
		return
	}

	next := inherited
	if mb, ok := d.rect(dict.Lookup("MediaBox")); ok {
		next.MediaBox = &mb
	}
	if v, ok := d.raw.Number(dict.Lookup("Rotate")); ok {
		r := int(v)
		next.Rotate = &r
	}
	if res := dict.Lookup("Resources"); res != nil {
		next.Resources = res
	}

	typ, _ := d.raw.Name(dict.Lookup("Type"))
	kids, hasKids := d.raw.Array(dict.Lookup("Kids"))
	if typ == "Page" || (!hasKids && typ != "Pages") {
		ref, _ := obj.(raw.RefObj)
		d.addPage(ref.Ref(), dict, next)
		return
	}
	if !hasKids {
		return
	}
	for _, kid := range kids.Items {
		d.walkPages(kid, next, seen, depth+1)
	}
}

// scanPages recovers pages from a broken tree by collecting every
// /Type /Page dictionary in file order.
func (d *Document) scanPages() {
	var refs []raw.ObjectRef
	for ref, obj := range d.raw.Objects {
		if dict, ok := obj.(*raw.DictObj); ok {
			if t, _ := d.raw.Name(dict.Lookup("Type")); t == "Page" {
				refs = append(refs, ref)
			}
		}
	}
	sortByOffset(refs, d.raw.Offsets)
	for _, ref := range refs {
		dict := d.raw.Objects[ref].(*raw.DictObj)
		d.addPage(ref, dict, inheritedPageProps{Resources: dict.Lookup("Resources")})
	}
}

func sortByOffset(refs []raw.ObjectRef, offsets map[raw.ObjectRef]int64) {
	for i := 1; i < len(refs); i++ {
		for j := i; j > 0 && offsets[refs[j]] < offsets[refs[j-1]]; j-- {
			refs[j], refs[j-1] = refs[j-1], refs[j]
		}
	}
}

func (d *Document) addPage(ref raw.ObjectRef, dict *raw.DictObj, props inheritedPageProps) {
	p := &Page{doc: d, index: len(d.pages), Ref: ref, Dict: dict, MediaBox: letter}
	if props.MediaBox != nil {
		p.MediaBox = *props.MediaBox
	}
	if props.Rotate != nil {
		p.Rotate = normalizeRotation(*props.Rotate)
	}
	if res, ok := d.raw.Dict(props.Resources); ok {
		p.Resources = res
	} else {
		p.Resources = raw.Dict()
	}
	d.pages = append(d.pages, p)
}

func (d *Document) rect(obj raw.Object) (coords.Rect, bool) {
	arr, ok := d.raw.Array(obj)
	if !ok || len(arr.Items) != 4 {
		return coords.Rect{}, false
	}
	var v [4]float64
	for i, item := range arr.Items {
		n, ok := d.raw.Number(item)
		if !ok {
			return coords.Rect{}, false
		}
		v[i] = n
	}
	r := coords.RectFromCorners(v[0], v[1], v[2], v[3])
	if r.Empty() || !r.Finite() {
		return coords.Rect{}, false
	}
	return r, true
}

func normalizeRotation(rot int) int {
	rot %= 360
	if rot < 0 {
		rot += 360
	}
	if rot%90 != 0 {
		return 0
	}
	return rot
}

// Index returns the zero-based page number.
func (p *Page) Index() int { return p.index }

// Document returns the owning document.
func (p *Page) Document() *Document { return p.doc }

// Size returns the MediaBox extent in points, before rotation.
func (p *Page) Size() (width, height float64) { return p.MediaBox.Width, p.MediaBox.Height }

// Font implements contentstream.Resources for the page resources.
func (p *Page) Font(name string) *fonts.Font {
	return p.resources().Font(name)
}

// FillAlpha implements contentstream.Resources for the page resources.
func (p *Page) FillAlpha(name string) (float64, bool) {
	return p.resources().FillAlpha(name)
}

// FontObject returns the font dictionary for a resource key.
func (p *Page) FontObject(name string) (raw.Object, bool) {
	fontsDict, ok := p.doc.raw.Dict(p.Resources.Lookup("Font"))
	if !ok {
		return nil, false
	}
	obj := fontsDict.Lookup(name)
	if _, ok := p.doc.raw.Dict(obj); !ok {
		return nil, false
	}
	return obj, true
}

// ContentObjects returns the /Contents entries as stored: references or
// direct streams.
func (p *Page) ContentObjects() []raw.Object {
	c := p.Dict.Lookup("Contents")
	if arr, ok := p.doc.raw.Resolve(c).(*raw.ArrayObj); ok {
		return append([]raw.Object(nil), arr.Items...)
	}
	if c == nil {
		return nil
	}
	return []raw.Object{c}
}

// Content returns the decoded page content. Streams that fail to decode
// are skipped and logged.
func (p *Page) Content(ctx context.Context) []byte {
	var buf bytes.Buffer
	for _, obj := range p.ContentObjects() {
		st, ok := p.doc.raw.Stream(obj)
		if !ok {
			continue
		}
		data, err := p.doc.pipeline.DecodeStream(ctx, st)
		if err != nil {
			p.doc.cfg.Logger.Warn("content stream skipped",
				observability.Int("page", p.index),
				observability.Error("err", err))
			continue
		}
		buf.Write(data)
		// streams are concatenated at token boundaries
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

func (p *Page) resources() *resources {
	return &resources{ctx: context.Background(), doc: p.doc, dict: p.Resources}
}

// resources resolves named resources for the tracer.
type resources struct {
	ctx  context.Context
	doc  *Document
	dict *raw.DictObj
}

func (r *resources) category(name string) (*raw.DictObj, bool) {
	if r.dict == nil {
		return nil, false
	}
	return r.doc.raw.Dict(r.dict.Lookup(name))
}

// Font returns the font for a resource key. A missing resource yields the
// default font so the text still gets positioned.
func (r *resources) Font(name string) *fonts.Font {
	var obj raw.Object
	if fd, ok := r.category("Font"); ok {
		obj = fd.Lookup(name)
	}
	return r.doc.font(r.ctx, obj)
}

func (r *resources) FillAlpha(name string) (float64, bool) {
	gs, ok := r.category("ExtGState")
	if !ok {
		return 0, false
	}
	d, ok := r.doc.raw.Dict(gs.Lookup(name))
	if !ok {
		return 0, false
	}
	return r.doc.raw.Number(d.Lookup("ca"))
}
