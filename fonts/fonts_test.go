package fonts

import (
	"context"
	"testing"

	"golang.org/x/image/font/sfnt"

	"github.com/wudi/regionedit/filters"
	"github.com/wudi/regionedit/ir/raw"
)

func TestParseCMap(t *testing.T) {
	src := `/CIDInit /ProcSet findresource begin
12 dict begin
begincmap
1 begincodespacerange <0000> <FFFF> endcodespacerange
2 beginbfchar
<0003> <0020> <0011> <00480065>
endbfchar
2 beginbfrange
<0024> <0026> <0041>
<0030> <0031> [<00E9> <D83DDE00>]
endbfrange
endcmap`
	cm, err := ParseCMap([]byte(src))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	cases := map[string]string{
		"\x00\x03": " ",
		"\x00\x11": "He",
		"\x00\x24": "A",
		"\x00\x26": "C",
		"\x00\x30": "é",
		"\x00\x31": "\U0001F600",
	}
	for code, want := range cases {
		if got, ok := cm.Lookup([]byte(code)); !ok || got != want {
			t.Fatalf("code %x: got %q want %q", code, got, want)
		}
	}
	if l := cm.CodeLengths(); len(l) != 1 || l[0] != 2 {
		t.Fatalf("code lengths = %v", l)
	}
}

func TestBuildToUnicodeRoundTrip(t *testing.T) {
	mapping := map[uint16]string{3: "H", 70: "ﬁ", 500: "€"}
	cm, err := ParseCMap(BuildToUnicode(mapping))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	for code, want := range mapping {
		if got, _ := cm.Lookup([]byte{byte(code >> 8), byte(code)}); got != want {
			t.Fatalf("code %d: got %q want %q", code, got, want)
		}
	}
}

func TestEncodingDifferences(t *testing.T) {
	enc := NewEncoding(EncodingWinAnsi, map[byte]string{0x41: "eacute", 0x42: "uni20AC", 0x43: "g123"})
	if r := enc.Decode(0x41); r != 'é' {
		t.Fatalf("differences not applied: %q", r)
	}
	if r := enc.Decode(0x42); r != '€' {
		t.Fatalf("uni name not resolved: %q", r)
	}
	if r := enc.Decode(0x43); r != 0 {
		t.Fatalf("unknown glyph should be unmapped: %q", r)
	}
	// é now has two codes; the lowest wins
	if c, _ := enc.Encode('é'); c != 0x41 {
		t.Fatalf("encode é = %x", c)
	}
	if _, ok := enc.Encode('A'); ok {
		t.Fatalf("A was remapped and must not encode")
	}
}

func TestWinAnsiEncodable(t *testing.T) {
	if !WinAnsiEncodable("Invoice #2 – 5€") {
		t.Fatalf("expected WinAnsi text")
	}
	// decomposed e + combining acute normalizes to é
	if !WinAnsiEncodable("Cafe\u0301") {
		t.Fatalf("expected NFC normalization")
	}
	if WinAnsiEncodable("Привет") {
		t.Fatalf("cyrillic is not WinAnsi")
	}
}

func TestStandardMetrics(t *testing.T) {
	m, ok := StandardMetrics("ArialMT")
	if !ok || m.Name != "Helvetica" {
		t.Fatalf("alias not resolved: %+v", m)
	}
	if w := m.StringWidth("Hello"); w != 722+556+222+222+556 {
		t.Fatalf("Hello width = %v", w)
	}
	if m.Width('é') != m.Width('e') {
		t.Fatalf("accented width should follow base letter")
	}
	c, _ := Standard("Courier-Bold")
	if c.StringWidth("abc") != 1800 {
		t.Fatalf("courier is monospaced")
	}
}

func TestStandardFamily(t *testing.T) {
	cases := []struct {
		base   string
		flags  int
		weight float64
		want   string
	}{
		{"ABCDEF+Calibri-Bold", 0, 0, "Helvetica-Bold"},
		{"TimesNewRomanPS-ItalicMT", 0, 0, "Times-Italic"},
		{"Georgia", 0, 700, "Times-Bold"},
		{"Consolas", 0, 0, "Courier"},
		{"Unknown", FlagSerif | FlagItalic, 0, "Times-Italic"},
		{"Helvetica-Oblique", 0, 0, "Helvetica-Oblique"},
		{"NotoSans-BoldItalic", 0, 0, "Helvetica-BoldOblique"},
	}
	for _, tc := range cases {
		if got := StandardFamily(tc.base, tc.flags, tc.weight); got != tc.want {
			t.Fatalf("%s: got %s want %s", tc.base, got, tc.want)
		}
	}
}

func TestSubsetKeepsRequestedGlyphs(t *testing.T) {
	font, err := DefaultUnicodeFont()
	if err != nil {
		t.Fatalf("default font: %v", err)
	}
	gidH, _ := font.GlyphIndex('H')
	gidE, _ := font.GlyphIndex('é')
	data, err := font.Subset(map[int]bool{gidH: true, gidE: true})
	if err != nil {
		t.Fatalf("subset: %v", err)
	}
	if len(data) >= len(font.Data) {
		t.Fatalf("subset (%d) not smaller than font (%d)", len(data), len(font.Data))
	}
	sub, err := LoadTrueType("", data)
	if err != nil {
		t.Fatalf("subset does not parse: %v", err)
	}
	if sub.Advance(gidH) != font.Advance(gidH) {
		t.Fatalf("advance changed: %v vs %v", sub.Advance(gidH), font.Advance(gidH))
	}
	if got, err := sub.font.GlyphIndex(&sfnt.Buffer{}, 'H'); err != nil || int(got) != gidH {
		t.Fatalf("glyph ids must be preserved, got %v (%v)", got, err)
	}
}

func TestFontDecodeSimple(t *testing.T) {
	doc := &raw.Document{Objects: map[raw.ObjectRef]raw.Object{}}
	dict := raw.Dict()
	dict.SetKey("Subtype", raw.NameLiteral("TrueType"))
	dict.SetKey("BaseFont", raw.NameLiteral("Arial"))
	dict.SetKey("Encoding", raw.NameLiteral(EncodingWinAnsi))
	dict.SetKey("FirstChar", raw.NumberInt(32))
	widths := make([]float64, 95)
	for i := range widths {
		widths[i] = 500
	}
	dict.SetKey("Widths", raw.Numbers(widths...))

	f := Load(context.Background(), doc, dict, filters.DefaultPipeline(filters.Limits{}))
	glyphs := f.Decode([]byte("Hi \x80"))
	if len(glyphs) != 4 {
		t.Fatalf("expected 4 glyphs, got %d", len(glyphs))
	}
	if glyphs[0].Text != "H" || glyphs[0].Width != 500 || !glyphs[2].Space {
		t.Fatalf("unexpected glyphs %+v", glyphs)
	}
	if glyphs[3].Text != "€" {
		t.Fatalf("WinAnsi 0x80 = %q", glyphs[3].Text)
	}
	if f.Ascent != 718 || f.Descent != -207 {
		t.Fatalf("standard metrics not applied: %v %v", f.Ascent, f.Descent)
	}

	codes, ws, ok := f.Encode("Hey")
	if !ok || string(codes) != "Hey" || ws[0] != 500 {
		t.Fatalf("encode failed: %q %v %v", codes, ws, ok)
	}
	if _, _, ok := f.Encode("Привет"); ok {
		t.Fatalf("cyrillic must not encode")
	}
}

func TestFontDecodeType0(t *testing.T) {
	doc := &raw.Document{Objects: map[raw.ObjectRef]raw.Object{}}
	cmap := BuildToUnicode(map[uint16]string{7: "a", 8: "b"})
	doc.Objects[raw.ObjectRef{Num: 5}] = raw.NewStream(raw.Dict(), cmap)

	desc := raw.Dict()
	desc.SetKey("Subtype", raw.NameLiteral("CIDFontType2"))
	desc.SetKey("DW", raw.NumberInt(1000))
	desc.SetKey("W", raw.NewArray(raw.NumberInt(7), raw.Numbers(610), raw.NumberInt(8), raw.NumberInt(9), raw.NumberInt(420)))
	fd := raw.Dict()
	fd.SetKey("Ascent", raw.NumberInt(900))
	fd.SetKey("Descent", raw.NumberInt(-300))
	fd.SetKey("FontFile2", raw.Ref(6, 0))
	desc.SetKey("FontDescriptor", fd)

	dict := raw.Dict()
	dict.SetKey("Subtype", raw.NameLiteral("Type0"))
	dict.SetKey("BaseFont", raw.NameLiteral("ABCDEF+Noto"))
	dict.SetKey("Encoding", raw.NameLiteral("Identity-H"))
	dict.SetKey("DescendantFonts", raw.NewArray(desc))
	dict.SetKey("ToUnicode", raw.Ref(5, 0))

	f := Load(context.Background(), doc, dict, filters.DefaultPipeline(filters.Limits{}))
	glyphs := f.Decode([]byte{0, 7, 0, 8, 0, 9})
	if len(glyphs) != 3 {
		t.Fatalf("expected 3 glyphs, got %d", len(glyphs))
	}
	if glyphs[0].Text != "a" || glyphs[0].Width != 610 || glyphs[1].Width != 420 {
		t.Fatalf("unexpected glyphs %+v", glyphs)
	}
	if f.Ascent != 900 || !f.Embedded || !f.Subset() {
		t.Fatalf("descriptor not read: %+v", f)
	}
	if _, _, ok := f.Encode("ab"); ok {
		t.Fatalf("CID fonts are never reused for new text")
	}
}
