package editor

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"

	"github.com/wudi/regionedit/contentstream"
	"github.com/wudi/regionedit/extract"
	"github.com/wudi/regionedit/filters"
	"github.com/wudi/regionedit/fonts"
	"github.com/wudi/regionedit/ir/raw"
	"github.com/wudi/regionedit/observability"
	"github.com/wudi/regionedit/reader"
	"github.com/wudi/regionedit/writer"
)

type fontKind string

const (
	fontPage     fontKind = "page"
	fontStandard fontKind = "standard"
	fontEmbedded fontKind = "embedded"
)

// fontChoice is how the replacement text gets drawn.
type fontChoice struct {
	kind fontKind
	// resource is the page resource key; empty for a new font that still
	// needs one.
	resource string
	// object is the font to register under a new key.
	object raw.Object
	show   func(b *contentstream.Builder)
}

var winAnsi = fonts.NewEncoding(fonts.EncodingWinAnsi, nil)

// chooseFont picks the font for text, which is already NFC-normalised:
// the region's own font when it can encode the text, a standard font when
// WinAnsi covers it, otherwise an embedded Unicode font.
func (a *Applier) chooseFont(ctx context.Context, page *reader.Page, u *writer.Update, region extract.TextRegion, text string) (fontChoice, error) {
	var flags int
	var weight float64
	if region.Origin == extract.OriginNative && region.FontResource != "" {
		if f, _, ok := page.FontFor(ctx, region.FontResource); ok && (region.FontName == "" || f.BaseFont == region.FontName) {
			flags, weight = f.Flags, f.Weight
			if enc := f.Encoding(); enc != nil && !enc.HasDifferences() {
				if codes, _, ok := f.Encode(text); ok {
					return fontChoice{kind: fontPage, resource: region.FontResource, show: showCodes(codes)}, nil
				}
			}
		}
	}
	if region.FontName != "" {
		a.opts.Logger.Warn("region font not reusable, substituting",
			observability.String("font", region.FontName),
			observability.String("kind", ErrUnsupportedFont.Error()),
			observability.Int("page", region.PageIndex))
	}

	if codes, ok := winAnsi.EncodeString(text); ok {
		name := region.FontName
		if name == "" {
			name = a.opts.FallbackFont
		}
		family := fonts.StandardFamily(name, flags, weight)
		d := raw.Dict()
		d.SetKey("Type", raw.NameLiteral("Font"))
		d.SetKey("Subtype", raw.NameLiteral("Type1"))
		d.SetKey("BaseFont", raw.NameLiteral(family))
		d.SetKey("Encoding", raw.NameLiteral(fonts.EncodingWinAnsi))
		return fontChoice{kind: fontStandard, object: u.Add(d), show: showCodes(codes)}, nil
	}
	if a.unicode == nil {
		return fontChoice{}, fmt.Errorf("no unicode font for %q: %w", text, a.unicodeErr)
	}
	return a.embedUnicode(u, text), nil
}

func showCodes(codes []byte) func(b *contentstream.Builder) {
	return func(b *contentstream.Builder) { b.ShowText(codes, false) }
}

// embedUnicode writes a Type0 Identity-H font over a subset of the Unicode
// font and shows the shaped glyphs, correcting each advance with a TJ
// adjustment where the shaper and the /W width disagree.
func (a *Applier) embedUnicode(u *writer.Update, text string) fontChoice {
	tt := a.unicode
	if !tt.Covers(text) {
		a.opts.Logger.Warn("replacement text has glyphs missing from the fallback font",
			observability.String("font", tt.Name),
			observability.String("kind", ErrUnsupportedFont.Error()))
	}
	glyphs, err := fonts.ShapeText(text, tt)
	if err != nil || len(glyphs) == 0 {
		glyphs = unshaped(tt, text)
	}

	gids := map[int]bool{0: true}
	toUnicode := make(map[uint16]string)
	for _, g := range glyphs {
		gids[g.ID] = true
		if len(g.Runes) > 0 {
			if _, dup := toUnicode[uint16(g.ID)]; !dup {
				toUnicode[uint16(g.ID)] = string(g.Runes)
			}
		}
	}
	sorted := make([]int, 0, len(gids))
	for gid := range gids {
		sorted = append(sorted, gid)
	}
	sort.Ints(sorted)
	baseFont := subsetTag(sorted) + "+" + tt.Name

	program, err := tt.Subset(gids)
	if err != nil {
		a.opts.Logger.Debug("font subsetting failed, embedding whole font", observability.Error("err", err))
		program = tt.Data
	}
	file := raw.Dict()
	if tt.CFF {
		file.SetKey("Subtype", raw.NameLiteral("OpenType"))
	} else {
		file.SetKey("Length1", raw.NumberInt(int64(len(program))))
	}
	if enc, err := filters.EncodeFlate(program); err == nil {
		file.SetKey("Filter", raw.NameLiteral("FlateDecode"))
		program = enc
	}
	fileRef := u.Add(raw.NewStream(file, program))

	fd := raw.Dict()
	fd.SetKey("Type", raw.NameLiteral("FontDescriptor"))
	fd.SetKey("FontName", raw.NameLiteral(baseFont))
	fd.SetKey("Flags", raw.NumberInt(fonts.FlagSymbolic))
	fd.SetKey("FontBBox", raw.Numbers(tt.BBox[:]...))
	fd.SetKey("ItalicAngle", raw.NumberFloat(tt.ItalicAngle))
	fd.SetKey("Ascent", raw.NumberFloat(tt.Ascent))
	fd.SetKey("Descent", raw.NumberFloat(tt.Descent))
	fd.SetKey("CapHeight", raw.NumberFloat(tt.CapHeight))
	fd.SetKey("StemV", raw.NumberInt(80))
	if tt.CFF {
		fd.SetKey("FontFile3", fileRef)
	} else {
		fd.SetKey("FontFile2", fileRef)
	}

	widths := make(map[int]float64, len(sorted))
	w := raw.NewArray()
	for _, gid := range sorted {
		widths[gid] = tt.Advance(gid)
		w.Append(raw.NumberInt(int64(gid)))
		w.Append(raw.Numbers(widths[gid]))
	}

	sysInfo := raw.Dict()
	sysInfo.SetKey("Registry", raw.Str([]byte("Adobe")))
	sysInfo.SetKey("Ordering", raw.Str([]byte("Identity")))
	sysInfo.SetKey("Supplement", raw.NumberInt(0))
	cid := raw.Dict()
	cid.SetKey("Type", raw.NameLiteral("Font"))
	cid.SetKey("BaseFont", raw.NameLiteral(baseFont))
	cid.SetKey("CIDSystemInfo", sysInfo)
	cid.SetKey("FontDescriptor", u.Add(fd))
	cid.SetKey("W", w)
	if tt.CFF {
		cid.SetKey("Subtype", raw.NameLiteral("CIDFontType0"))
	} else {
		cid.SetKey("Subtype", raw.NameLiteral("CIDFontType2"))
		cid.SetKey("CIDToGIDMap", raw.NameLiteral("Identity"))
	}

	cmap := raw.NewStream(raw.Dict(), fonts.BuildToUnicode(toUnicode))
	type0 := raw.Dict()
	type0.SetKey("Type", raw.NameLiteral("Font"))
	type0.SetKey("Subtype", raw.NameLiteral("Type0"))
	type0.SetKey("BaseFont", raw.NameLiteral(baseFont))
	type0.SetKey("Encoding", raw.NameLiteral("Identity-H"))
	type0.SetKey("DescendantFonts", raw.NewArray(u.Add(cid)))
	type0.SetKey("ToUnicode", u.Add(cmap))

	var items []raw.Object
	adjusted := false
	for _, g := range glyphs {
		code := make([]byte, 2)
		binary.BigEndian.PutUint16(code, uint16(g.ID))
		items = append(items, raw.HexStr(code))
		// TJ subtracts the adjustment from the advance
		if diff := widths[g.ID] - g.XAdvance; math.Abs(diff) > 0.5 {
			items = append(items, raw.NumberFloat(math.Round(diff*100)/100))
			adjusted = true
		}
	}
	show := func(b *contentstream.Builder) { b.ShowPositioned(items) }
	if !adjusted {
		codes := make([]byte, 0, 2*len(glyphs))
		for _, g := range glyphs {
			codes = binary.BigEndian.AppendUint16(codes, uint16(g.ID))
		}
		show = func(b *contentstream.Builder) { b.ShowText(codes, true) }
	}
	return fontChoice{kind: fontEmbedded, object: u.Add(type0), show: show}
}

// unshaped maps runes straight to glyphs when shaping is unavailable.
func unshaped(tt *fonts.TrueType, text string) []fonts.ShapedGlyph {
	var out []fonts.ShapedGlyph
	for i, r := range []rune(text) {
		gid, _ := tt.GlyphIndex(r)
		out = append(out, fonts.ShapedGlyph{ID: gid, Runes: []rune{r}, Cluster: i, XAdvance: tt.Advance(gid)})
	}
	return out
}

var subsetSpace = uuid.MustParse("2d7e4c1a-90b3-5f6e-a1d8-3c5b7e9f0a24")

// subsetTag derives the six-letter prefix of a subset font name from the
// glyphs it keeps.
func subsetTag(gids []int) string {
	buf := make([]byte, 0, 2*len(gids))
	for _, gid := range gids {
		buf = binary.BigEndian.AppendUint16(buf, uint16(gid))
	}
	sum := uuid.NewSHA1(subsetSpace, buf)
	tag := make([]byte, 6)
	for i := range tag {
		tag[i] = 'A' + sum[i]%26
	}
	return string(tag)
}
