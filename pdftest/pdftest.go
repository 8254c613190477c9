// Package pdftest builds small PDF files for tests, examples and the CLI's
// sample command.
package pdftest

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"
	"strings"

	"github.com/wudi/regionedit/filters"
	"github.com/wudi/regionedit/fonts"
	"github.com/wudi/regionedit/ir/raw"
	"github.com/wudi/regionedit/writer"
)

// Font describes a page font resource.
type Font struct {
	// BaseFont of a simple Type1 font, e.g. "Helvetica".
	BaseFont string
	// Encoding of a simple font; empty means WinAnsiEncoding.
	Encoding string
	// Unicode builds a Type0 Identity-H font over the bundled Go Regular
	// font. Text is written with Glyphs.
	Unicode bool
}

// Form is a Form XObject resource.
type Form struct {
	Content string
	Matrix  *[6]float64
	Fonts   map[string]Font
}

// Page describes one page.
type Page struct {
	Width, Height float64
	Rotate        int
	Content       string
	Fonts         map[string]Font
	// ExtGState maps resource keys to a fill alpha (/ca).
	ExtGState map[string]float64
	Forms     map[string]Form
}

// Options control the file layout.
type Options struct {
	// Compress Flate-encodes content streams.
	Compress bool
	// InheritResources stores page resources on the page tree root; only
	// the first page's resources are used.
	InheritResources bool
	// ObjectStreams stores dictionaries in an object stream indexed by a
	// cross-reference stream.
	ObjectStreams bool
	// SplitContent splits each page content into two streams at the first
	// newline.
	SplitContent bool
	// Encrypt adds a dummy /Encrypt entry to the trailer.
	Encrypt bool
}

type file struct {
	objects map[int]raw.Object
	next    int
}

func (f *file) add(obj raw.Object) raw.RefObj {
	f.next++
	f.objects[f.next] = obj
	return raw.Ref(f.next, 0)
}

func (f *file) reserve() int {
	f.next++
	return f.next
}

// Build renders pages into a complete PDF.
func Build(pages []Page, opts Options) []byte {
	f := &file{objects: make(map[int]raw.Object)}
	catalogNum := f.reserve()
	treeNum := f.reserve()

	kids := raw.NewArray()
	tree := raw.Dict()
	tree.SetKey("Type", raw.NameLiteral("Pages"))
	for i, p := range pages {
		res := f.resources(p.Fonts, p.ExtGState, p.Forms, opts)
		page := raw.Dict()
		page.SetKey("Type", raw.NameLiteral("Page"))
		page.SetKey("Parent", raw.Ref(treeNum, 0))
		w, h := p.Width, p.Height
		if w == 0 || h == 0 {
			w, h = 612, 792
		}
		page.SetKey("MediaBox", raw.Numbers(0, 0, w, h))
		if p.Rotate != 0 {
			page.SetKey("Rotate", raw.NumberInt(int64(p.Rotate)))
		}
		if opts.InheritResources {
			if i == 0 {
				tree.SetKey("Resources", res)
			}
		} else {
			page.SetKey("Resources", res)
		}
		page.SetKey("Contents", f.contents(p.Content, opts))
		kids.Append(f.add(page))
	}
	tree.SetKey("Kids", kids)
	tree.SetKey("Count", raw.NumberInt(int64(len(pages))))
	f.objects[treeNum] = tree

	catalog := raw.Dict()
	catalog.SetKey("Type", raw.NameLiteral("Catalog"))
	catalog.SetKey("Pages", raw.Ref(treeNum, 0))
	f.objects[catalogNum] = catalog

	info := raw.Dict()
	info.SetKey("Producer", raw.Str([]byte("pdftest")))
	infoRef := f.add(info)

	if opts.ObjectStreams {
		return f.writeCompressed(catalogNum, infoRef, opts)
	}
	return f.writeClassic(catalogNum, infoRef, opts)
}

func (f *file) contents(content string, opts Options) raw.Object {
	parts := []string{content}
	if opts.SplitContent {
		if i := strings.IndexByte(content, '\n'); i > 0 {
			parts = []string{content[:i], content[i+1:]}
		}
	}
	refs := raw.NewArray()
	for _, part := range parts {
		refs.Append(f.add(stream([]byte(part), opts.Compress)))
	}
	if len(refs.Items) == 1 {
		return refs.Items[0]
	}
	return refs
}

func stream(data []byte, compress bool) *raw.StreamObj {
	dict := raw.Dict()
	if compress {
		if enc, err := filters.EncodeFlate(data); err == nil {
			data = enc
			dict.SetKey("Filter", raw.NameLiteral("FlateDecode"))
		}
	}
	return raw.NewStream(dict, data)
}

func (f *file) resources(fontSpecs map[string]Font, alphas map[string]float64, forms map[string]Form, opts Options) *raw.DictObj {
	res := raw.Dict()
	if len(fontSpecs) > 0 {
		fd := raw.Dict()
		for _, name := range sortedKeys(fontSpecs) {
			fd.SetKey(name, f.font(fontSpecs[name]))
		}
		res.SetKey("Font", fd)
	}
	if len(alphas) > 0 {
		gd := raw.Dict()
		for name, a := range alphas {
			gs := raw.Dict()
			gs.SetKey("Type", raw.NameLiteral("ExtGState"))
			gs.SetKey("ca", raw.NumberFloat(a))
			gd.SetKey(name, f.add(gs))
		}
		res.SetKey("ExtGState", gd)
	}
	if len(forms) > 0 {
		xd := raw.Dict()
		for name, form := range forms {
			st := stream([]byte(form.Content), opts.Compress)
			st.Dict.SetKey("Type", raw.NameLiteral("XObject"))
			st.Dict.SetKey("Subtype", raw.NameLiteral("Form"))
			st.Dict.SetKey("BBox", raw.Numbers(0, 0, 1000, 1000))
			if form.Matrix != nil {
				st.Dict.SetKey("Matrix", raw.Numbers(form.Matrix[:]...))
			}
			if len(form.Fonts) > 0 {
				st.Dict.SetKey("Resources", f.resources(form.Fonts, nil, nil, opts))
			}
			xd.SetKey(name, f.add(st))
		}
		res.SetKey("XObject", xd)
	}
	return res
}

func (f *file) font(fd Font) raw.RefObj {
	if fd.Unicode {
		return f.unicodeFont()
	}
	d := raw.Dict()
	d.SetKey("Type", raw.NameLiteral("Font"))
	d.SetKey("Subtype", raw.NameLiteral("Type1"))
	base := fd.BaseFont
	if base == "" {
		base = "Helvetica"
	}
	d.SetKey("BaseFont", raw.NameLiteral(base))
	enc := fd.Encoding
	if enc == "" {
		enc = fonts.EncodingWinAnsi
	}
	d.SetKey("Encoding", raw.NameLiteral(enc))
	return f.add(d)
}

// unicodeFont writes a Type0 font over Go Regular covering Latin-1 and
// Cyrillic, without the font program.
func (f *file) unicodeFont() raw.RefObj {
	tt, err := fonts.DefaultUnicodeFont()
	if err != nil {
		panic(err)
	}
	mapping := make(map[uint16]string)
	widths := raw.NewArray()
	for _, block := range [][2]rune{{0x20, 0x7e}, {0xa0, 0xff}, {0x410, 0x44f}} {
		for r := block[0]; r <= block[1]; r++ {
			gid, ok := tt.GlyphIndex(r)
			if !ok {
				continue
			}
			if _, dup := mapping[uint16(gid)]; dup {
				continue
			}
			mapping[uint16(gid)] = string(r)
			widths.Append(raw.NumberInt(int64(gid)))
			widths.Append(raw.Numbers(tt.Advance(gid)))
		}
	}

	fd := raw.Dict()
	fd.SetKey("Type", raw.NameLiteral("FontDescriptor"))
	fd.SetKey("FontName", raw.NameLiteral(tt.Name))
	fd.SetKey("Flags", raw.NumberInt(fonts.FlagNonSymbolic))
	fd.SetKey("Ascent", raw.NumberFloat(tt.Ascent))
	fd.SetKey("Descent", raw.NumberFloat(tt.Descent))
	fd.SetKey("CapHeight", raw.NumberFloat(tt.CapHeight))
	fd.SetKey("ItalicAngle", raw.NumberFloat(tt.ItalicAngle))
	fd.SetKey("StemV", raw.NumberInt(80))
	fd.SetKey("FontBBox", raw.Numbers(tt.BBox[:]...))

	cid := raw.Dict()
	cid.SetKey("Type", raw.NameLiteral("Font"))
	cid.SetKey("Subtype", raw.NameLiteral("CIDFontType2"))
	cid.SetKey("BaseFont", raw.NameLiteral(tt.Name))
	sysInfo := raw.Dict()
	sysInfo.SetKey("Registry", raw.Str([]byte("Adobe")))
	sysInfo.SetKey("Ordering", raw.Str([]byte("Identity")))
	sysInfo.SetKey("Supplement", raw.NumberInt(0))
	cid.SetKey("CIDSystemInfo", sysInfo)
	cid.SetKey("FontDescriptor", f.add(fd))
	cid.SetKey("W", widths)
	cid.SetKey("CIDToGIDMap", raw.NameLiteral("Identity"))

	d := raw.Dict()
	d.SetKey("Type", raw.NameLiteral("Font"))
	d.SetKey("Subtype", raw.NameLiteral("Type0"))
	d.SetKey("BaseFont", raw.NameLiteral(tt.Name))
	d.SetKey("Encoding", raw.NameLiteral("Identity-H"))
	d.SetKey("DescendantFonts", raw.NewArray(f.add(cid)))
	d.SetKey("ToUnicode", f.add(raw.NewStream(raw.Dict(), fonts.BuildToUnicode(mapping))))
	return f.add(d)
}

// Glyphs returns s as a hex string of Go Regular glyph ids, for text shown
// with a Unicode font.
func Glyphs(s string) string {
	tt, err := fonts.DefaultUnicodeFont()
	if err != nil {
		panic(err)
	}
	var b strings.Builder
	b.WriteByte('<')
	for _, r := range s {
		gid, _ := tt.GlyphIndex(r)
		fmt.Fprintf(&b, "%04X", gid)
	}
	b.WriteByte('>')
	return b.String()
}

func (f *file) trailer(size int, catalogNum int, info raw.RefObj, opts Options) *raw.DictObj {
	t := raw.Dict()
	t.SetKey("Size", raw.NumberInt(int64(size)))
	t.SetKey("Root", raw.Ref(catalogNum, 0))
	t.SetKey("Info", info)
	id := raw.HexStr([]byte("pdftest-fixture!"))
	t.SetKey("ID", raw.NewArray(id, id))
	if opts.Encrypt {
		enc := raw.Dict()
		enc.SetKey("Filter", raw.NameLiteral("Standard"))
		enc.SetKey("V", raw.NumberInt(2))
		t.SetKey("Encrypt", enc)
	}
	return t
}

func (f *file) writeClassic(catalogNum int, info raw.RefObj, opts Options) []byte {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.7\n%\xE2\xE3\xCF\xD3\n")
	offsets := make(map[int]int64, len(f.objects))
	for _, num := range f.sortedNums() {
		offsets[num] = int64(buf.Len())
		buf.Write(writer.SerializeObject(raw.ObjectRef{Num: num}, f.objects[num]))
	}
	xrefOffset := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", f.next+1)
	buf.WriteString("0000000000 65535 f \n")
	for i := 1; i <= f.next; i++ {
		fmt.Fprintf(&buf, "%010d 00000 n \n", offsets[i])
	}
	buf.WriteString("trailer\n")
	buf.Write(writer.Serialize(f.trailer(f.next+1, catalogNum, info, opts)))
	fmt.Fprintf(&buf, "\nstartxref\n%d\n%%%%EOF\n", xrefOffset)
	return buf.Bytes()
}

// writeCompressed stores every dictionary in one object stream and indexes
// the file with a cross-reference stream.
func (f *file) writeCompressed(catalogNum int, info raw.RefObj, opts Options) []byte {
	var packed, direct []int
	for _, num := range f.sortedNums() {
		if _, isStream := f.objects[num].(*raw.StreamObj); isStream {
			direct = append(direct, num)
		} else {
			packed = append(packed, num)
		}
	}
	var header, body bytes.Buffer
	for _, num := range packed {
		fmt.Fprintf(&header, "%d %d ", num, body.Len())
		body.Write(writer.Serialize(f.objects[num]))
		body.WriteByte('\n')
	}
	objStmNum := f.reserve()
	xrefNum := f.reserve()
	stmDict := raw.Dict()
	stmDict.SetKey("Type", raw.NameLiteral("ObjStm"))
	stmDict.SetKey("N", raw.NumberInt(int64(len(packed))))
	stmDict.SetKey("First", raw.NumberInt(int64(header.Len())))
	data := append(header.Bytes(), body.Bytes()...)
	if enc, err := filters.EncodeFlate(data); err == nil {
		data = enc
		stmDict.SetKey("Filter", raw.NameLiteral("FlateDecode"))
	}
	f.objects[objStmNum] = raw.NewStream(stmDict, data)
	direct = append(direct, objStmNum)

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.7\n%\xE2\xE3\xCF\xD3\n")
	offsets := make(map[int]int64)
	for _, num := range direct {
		offsets[num] = int64(buf.Len())
		buf.Write(writer.SerializeObject(raw.ObjectRef{Num: num}, f.objects[num]))
	}
	index := make(map[int]int, len(packed))
	for i, num := range packed {
		index[num] = i
	}
	xrefOffset := int64(buf.Len())
	offsets[xrefNum] = xrefOffset
	size := xrefNum + 1
	rows := make([]byte, 0, 7*size)
	for num := 0; num < size; num++ {
		row := make([]byte, 7)
		switch {
		case num == 0:
			binary.BigEndian.PutUint16(row[5:], 0xFFFF)
		case offsets[num] > 0:
			row[0] = 1
			binary.BigEndian.PutUint32(row[1:], uint32(offsets[num]))
		default:
			row[0] = 2
			binary.BigEndian.PutUint32(row[1:], uint32(objStmNum))
			binary.BigEndian.PutUint16(row[5:], uint16(index[num]))
		}
		rows = append(rows, row...)
	}
	xd := f.trailer(size, catalogNum, info, opts)
	xd.SetKey("Type", raw.NameLiteral("XRef"))
	xd.SetKey("W", raw.Numbers(1, 4, 2))
	buf.Write(writer.SerializeObject(raw.ObjectRef{Num: xrefNum}, raw.NewStream(xd, rows)))
	fmt.Fprintf(&buf, "startxref\n%d\n%%%%EOF\n", xrefOffset)
	return buf.Bytes()
}

func (f *file) sortedNums() []int {
	nums := make([]int, 0, len(f.objects))
	for n := range f.objects {
		nums = append(nums, n)
	}
	sort.Ints(nums)
	return nums
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Text returns a one-page document showing text with Helvetica at the
// given text matrix.
func Text(text string, tm [6]float64) []byte {
	content := fmt.Sprintf("BT /F1 1 Tf %s %s %s %s %s %s Tm (%s) Tj ET",
		num(tm[0]), num(tm[1]), num(tm[2]), num(tm[3]), num(tm[4]), num(tm[5]), escape(text))
	return Build([]Page{{Content: content, Fonts: map[string]Font{"F1": {BaseFont: "Helvetica"}}}}, Options{})
}

// Invoice is a letter page showing "Invoice #1" at [12 0 0 12 100 700].
func Invoice() []byte {
	return Text("Invoice #1", [6]float64{12, 0, 0, 12, 100, 700})
}

// Hello is a letter page showing "Hello" in 24pt Helvetica at (72, 720).
func Hello() []byte {
	return Text("Hello", [6]float64{24, 0, 0, 24, 72, 720})
}

func num(v float64) string { return writer.FormatNumber(v) }

func escape(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `(`, `\(`, `)`, `\)`)
	return r.Replace(s)
}
