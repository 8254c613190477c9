// Package editor replaces the text of regions by appending opaque overlays
// to a document as incremental updates.
package editor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/wudi/regionedit/contentstream"
	"github.com/wudi/regionedit/coords"
	"github.com/wudi/regionedit/extract"
	"github.com/wudi/regionedit/filters"
	"github.com/wudi/regionedit/fonts"
	"github.com/wudi/regionedit/ir/raw"
	"github.com/wudi/regionedit/observability"
	"github.com/wudi/regionedit/reader"
	"github.com/wudi/regionedit/writer"
)

// Applier applies edit operations to document bytes. It holds no document
// state and is safe for concurrent use.
type Applier struct {
	opts       Options
	unicode    *fonts.TrueType
	unicodeErr error
}

// New returns an Applier for opts.
func New(opts Options) *Applier {
	a := &Applier{opts: opts.withDefaults()}
	a.unicode = a.opts.UnicodeFont
	if a.unicode == nil {
		a.unicode, a.unicodeErr = fonts.DefaultUnicodeFont()
	}
	return a
}

// ApplyEdit replaces the text of region in data and returns the updated
// document.
func (a *Applier) ApplyEdit(ctx context.Context, data []byte, region extract.TextRegion, newText string) ([]byte, error) {
	return a.Apply(ctx, data, NewEditOperation(region, newText))
}

// ApplyEdits applies ops in order, each against the result of the previous
// one. Either every operation applies or the first failure is returned with
// no bytes.
func (a *Applier) ApplyEdits(ctx context.Context, data []byte, ops []EditOperation) ([]byte, error) {
	ctx, span := a.opts.Tracer.StartSpan(ctx, observability.SpanApplyEdits)
	defer span.Finish()
	span.SetTag("edits", len(ops))
	start := time.Now()

	cur := data
	for i, op := range ops {
		next, err := a.Apply(ctx, cur, op)
		if err != nil {
			span.SetError(err)
			a.opts.Logger.Warn("edit batch rejected",
				observability.Int("failed", i),
				observability.Int("edits", len(ops)),
				observability.Error("err", err))
			return nil, err
		}
		cur = next
	}
	span.SetTag(observability.MetricEditTime, time.Since(start).Seconds())
	return cur, nil
}

// Apply applies one operation to data.
func (a *Applier) Apply(ctx context.Context, data []byte, op EditOperation) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	doc, err := reader.OpenWithConfig(ctx, data, a.opts.Reader)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, failure(op, ErrSerialization, err)
	}
	if doc.Encrypted() {
		return nil, failure(op, ErrSerialization, writer.ErrEncrypted)
	}
	if err := validate(op, doc.NumPages()); err != nil {
		return nil, failure(op, ErrInvalidGeometry, err)
	}
	page, err := doc.Page(op.PageIndex)
	if err != nil {
		return nil, failure(op, ErrInvalidGeometry, err)
	}
	if page.Ref.Num == 0 {
		return nil, failure(op, ErrSerialization, errors.New("page is not an indirect object"))
	}

	text := norm.NFC.String(op.NewText)
	region, err := a.resolve(ctx, doc, op, text)
	if err != nil {
		return nil, err
	}
	box := region.BoundingBox.Intersect(page.MediaBox)
	if box.Empty() || !box.Finite() {
		return nil, failure(op, ErrInvalidGeometry, fmt.Errorf("region %v lies outside the page", region.BoundingBox))
	}

	u := writer.NewUpdate(data, doc.Raw())
	var choice *fontChoice
	if text != "" {
		c, err := a.chooseFont(ctx, page, u, region, text)
		if err != nil {
			return nil, failure(op, ErrSerialization, err)
		}
		choice = &c
	}

	newPage, fontKey := a.materialise(page, choice)
	prefix, err := a.stream(contentstream.Serialize([]contentstream.Operation{{Operator: "q"}}))
	if err != nil {
		return nil, failure(op, ErrSerialization, err)
	}
	overlay, err := a.stream(a.overlay(op, region, box, fontKey, choice))
	if err != nil {
		return nil, failure(op, ErrSerialization, err)
	}
	contents := raw.NewArray(u.Add(prefix))
	for _, c := range page.ContentObjects() {
		contents.Append(c)
	}
	contents.Append(u.Add(overlay))
	newPage.SetKey("Contents", contents)
	u.Set(page.Ref, newPage)

	out, err := u.Bytes()
	if err != nil {
		return nil, failure(op, ErrSerialization, err)
	}
	fields := []observability.Field{
		observability.Int("page", op.PageIndex),
		observability.String("region", region.ID),
		observability.Int("objects", u.Len()),
	}
	if choice != nil {
		fields = append(fields, observability.String("font", string(choice.kind)))
	}
	a.opts.Logger.Debug("edit applied", fields...)
	return out, nil
}

func validate(op EditOperation, pages int) error {
	if op.PageIndex < 0 || op.PageIndex >= pages {
		return fmt.Errorf("page %d of %d: %w", op.PageIndex, pages, reader.ErrPageRange)
	}
	if !finite(op.Anchor.X) || !finite(op.Anchor.Y) || !finite(op.Anchor.FontSizePt) {
		return errors.New("anchor is not finite")
	}
	if op.Anchor.FontSizePt <= 0 {
		return fmt.Errorf("font size %g", op.Anchor.FontSizePt)
	}
	if op.Region != nil && (!op.Region.BoundingBox.Finite() || !op.Region.Orientation.Finite()) {
		return errors.New("region geometry is not finite")
	}
	return nil
}

// resolve finds the region the operation replaces in the current text layer.
func (a *Applier) resolve(ctx context.Context, doc *reader.Document, op EditOperation, text string) (extract.TextRegion, error) {
	if op.Region != nil && op.Region.Origin == extract.OriginDerived {
		if op.Region.PageIndex != op.PageIndex {
			return extract.TextRegion{}, failure(op, ErrInvalidRegion, fmt.Errorf("region is on page %d", op.Region.PageIndex))
		}
		return *op.Region, nil
	}
	regions := extract.ExtractPage(ctx, doc, op.PageIndex, extract.Options{Logger: a.opts.Logger, Tracer: a.opts.Tracer})
	for _, r := range regions {
		if r.ID == op.TargetRegionID {
			return r, nil
		}
	}
	anchor := coords.Point{X: op.Anchor.X, Y: op.Anchor.Y}
	atAnchor := false
	for _, r := range regions {
		if r.Baseline.Dist(anchor) > a.opts.AnchorTolerance {
			continue
		}
		atAnchor = true
		if text != "" && norm.NFC.String(r.OriginalText) == text {
			// already applied; drawing it again changes nothing visible
			return r, nil
		}
	}
	if text == "" && !atAnchor && op.Region != nil && a.occluded(ctx, doc, op, anchor) {
		// already deleted; occluding it again changes nothing visible
		return *op.Region, nil
	}
	return extract.TextRegion{}, failure(op, ErrInvalidRegion, errors.New("region does not render in the document"))
}

// occluded reports whether the page still draws the operation's region at
// the anchor underneath an opaque fill.
func (a *Applier) occluded(ctx context.Context, doc *reader.Document, op EditOperation, anchor coords.Point) bool {
	page, err := doc.Page(op.PageIndex)
	if err != nil {
		return false
	}
	hidden, err := page.HiddenTextItems(ctx)
	if err != nil {
		return false
	}
	want := norm.NFC.String(op.Region.OriginalText)
	for _, it := range hidden {
		origin := coords.Point{X: it.Transform[4], Y: it.Transform[5]}
		if origin.Dist(anchor) <= a.opts.AnchorTolerance && norm.NFC.String(it.Str) == want {
			return true
		}
	}
	return false
}

// materialise copies the page dictionary with its effective resources made
// direct, registering the chosen font under a fresh key when it is new.
func (a *Applier) materialise(page *reader.Page, choice *fontChoice) (*raw.DictObj, string) {
	doc := page.Document().Raw()
	newPage := page.Dict.Clone()
	res := page.Resources.Clone()
	newPage.SetKey("Resources", res)
	if choice == nil {
		return newPage, ""
	}
	if choice.object == nil {
		return newPage, choice.resource
	}
	fontsDict := raw.Dict()
	if d, ok := doc.Dict(res.Lookup("Font")); ok {
		fontsDict = d.Clone()
	}
	key := freeKey(fontsDict)
	fontsDict.SetKey(key, choice.object)
	res.SetKey("Font", fontsDict)
	return newPage, key
}

func freeKey(d *raw.DictObj) string {
	for i := 1; ; i++ {
		key := "RE" + strconv.Itoa(i)
		if d.Lookup(key) == nil {
			return key
		}
	}
}

// overlay draws the background box over the old text and the new text at
// the anchor. It restores the state saved by the prefix stream first, so it
// starts from the page's default graphics state.
func (a *Applier) overlay(op EditOperation, region extract.TextRegion, box coords.Rect, fontKey string, choice *fontChoice) []byte {
	bg := a.opts.Background
	b := &contentstream.Builder{}
	b.Restore().Save()
	b.FillRGB(bg.R, bg.G, bg.B).Rect(box).Fill()
	if choice != nil {
		orient := region.Orientation
		if !orient.Finite() || orient.Det() == 0 {
			orient = coords.Identity()
		}
		size := op.Anchor.FontSizePt
		tm := coords.Scale(size, size).Multiply(orient).Multiply(coords.Translate(op.Anchor.X, op.Anchor.Y))
		b.FillRGB(0, 0, 0).BeginText().Font(fontKey, 1).TextMatrix(tm)
		choice.show(b)
		b.EndText()
	}
	b.Restore()
	return b.Bytes()
}

func (a *Applier) stream(content []byte) (*raw.StreamObj, error) {
	d := raw.Dict()
	if !a.opts.Compress {
		return raw.NewStream(d, content), nil
	}
	enc, err := filters.EncodeFlate(content)
	if err != nil {
		return nil, err
	}
	d.SetKey("Filter", raw.NameLiteral("FlateDecode"))
	return raw.NewStream(d, enc), nil
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
