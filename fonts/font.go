package fonts

import (
	"context"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/wudi/regionedit/filters"
	"github.com/wudi/regionedit/ir/raw"
)

// Default vertical metrics for fonts that declare none, in 1/1000 em.
const (
	DefaultAscent  = 750
	DefaultDescent = -250
)

// Descriptor flag bits.
const (
	FlagFixedPitch  = 1
	FlagSerif       = 1 << 1
	FlagSymbolic    = 1 << 2
	FlagNonSymbolic = 1 << 5
	FlagItalic      = 1 << 6
	FlagForceBold   = 1 << 18
)

// Font is the decoding view of a page font resource.
type Font struct {
	Subtype  string
	BaseFont string
	Flags    int
	Weight   float64
	// Ascent and Descent are in 1/1000 em; Descent is negative.
	Ascent   float64
	Descent  float64
	Embedded bool

	encoding  *Encoding
	toUnicode *CMap
	cid       bool
	codeLen   int

	firstChar    int
	widths       []float64
	missingWidth float64
	dw           float64
	w            map[int]float64
	// scale converts glyph-space widths to 1/1000 em (Type3 only).
	scale    float64
	standard *Metrics
}

// Glyph is one decoded character code.
type Glyph struct {
	Code  int
	Bytes []byte
	Text  string
	// Width is the horizontal advance in 1/1000 em.
	Width float64
	// Space marks the single-byte code 32, which receives word spacing.
	Space bool
}

// Load builds a Font from a font dictionary. Missing or malformed entries
// degrade to defaults rather than failing.
func Load(ctx context.Context, doc *raw.Document, obj raw.Object, pipeline *filters.Pipeline) *Font {
	f := &Font{
		Ascent:  DefaultAscent,
		Descent: DefaultDescent,
		codeLen: 1,
		scale:   1,
		dw:      1000,
	}
	dict, ok := doc.Dict(obj)
	if !ok {
		f.encoding = NewEncoding(EncodingStandard, nil)
		f.standard, _ = Standard("Helvetica")
		return f
	}
	f.Subtype, _ = doc.Name(dict.Lookup("Subtype"))
	f.BaseFont, _ = doc.Name(dict.Lookup("BaseFont"))

	if st, ok := doc.Stream(dict.Lookup("ToUnicode")); ok {
		if data, err := pipeline.DecodeStream(ctx, st); err == nil {
			if cm, err := ParseCMap(data); err == nil && cm.Len() > 0 {
				f.toUnicode = cm
			}
		}
	}

	descriptorHolder := dict
	if f.Subtype == "Type0" {
		f.cid = true
		f.codeLen = 2
		if arr, ok := doc.Array(dict.Lookup("DescendantFonts")); ok && len(arr.Items) > 0 {
			if desc, ok := doc.Dict(arr.Items[0]); ok {
				descriptorHolder = desc
				f.loadCIDWidths(doc, desc)
			}
		}
		if enc, ok := doc.Name(dict.Lookup("Encoding")); ok && !strings.HasPrefix(enc, "Identity") {
			// predefined CMaps mix code lengths; the ToUnicode codespace is
			// the best hint available
			if lens := f.toUnicode.CodeLengths(); len(lens) > 0 {
				f.codeLen = lens[len(lens)-1]
			}
		}
	} else {
		f.loadSimpleWidths(doc, dict)
		f.encoding = loadEncoding(doc, dict.Lookup("Encoding"))
		if f.Subtype == "Type3" {
			if m, ok := doc.Array(dict.Lookup("FontMatrix")); ok && len(m.Items) > 0 {
				if a, ok := doc.Number(m.Items[0]); ok {
					f.scale = a * 1000
				}
			}
		}
	}

	if fd, ok := doc.Dict(descriptorHolder.Lookup("FontDescriptor")); ok {
		if v, ok := doc.Number(fd.Lookup("Flags")); ok {
			f.Flags = int(v)
		}
		if v, ok := doc.Number(fd.Lookup("FontWeight")); ok {
			f.Weight = v
		}
		if v, ok := doc.Number(fd.Lookup("Ascent")); ok && v > 0 {
			f.Ascent = v
		}
		if v, ok := doc.Number(fd.Lookup("Descent")); ok && v < 0 {
			f.Descent = v
		}
		if v, ok := doc.Number(fd.Lookup("MissingWidth")); ok {
			f.missingWidth = v
		}
		for _, key := range []string{"FontFile", "FontFile2", "FontFile3"} {
			if fd.Lookup(key) != nil {
				f.Embedded = true
			}
		}
	}

	if m, ok := StandardMetrics(f.BaseFont); ok && !f.cid {
		f.standard = m
		if dict.Lookup("FontDescriptor") == nil {
			f.Ascent, f.Descent = m.Ascent, m.Descent
		}
	}
	return f
}

func (f *Font) loadSimpleWidths(doc *raw.Document, dict *raw.DictObj) {
	if v, ok := doc.Number(dict.Lookup("FirstChar")); ok {
		f.firstChar = int(v)
	}
	arr, ok := doc.Array(dict.Lookup("Widths"))
	if !ok {
		return
	}
	f.widths = make([]float64, len(arr.Items))
	for i, item := range arr.Items {
		f.widths[i], _ = doc.Number(item)
	}
}

func (f *Font) loadCIDWidths(doc *raw.Document, desc *raw.DictObj) {
	if v, ok := doc.Number(desc.Lookup("DW")); ok {
		f.dw = v
	}
	arr, ok := doc.Array(desc.Lookup("W"))
	if !ok {
		return
	}
	f.w = make(map[int]float64)
	items := arr.Items
	for i := 0; i < len(items); {
		first, ok := doc.Number(items[i])
		if !ok || i+1 >= len(items) {
			return
		}
		if list, ok := doc.Array(items[i+1]); ok {
			for k, item := range list.Items {
				f.w[int(first)+k], _ = doc.Number(item)
			}
			i += 2
			continue
		}
		if i+2 >= len(items) {
			return
		}
		last, _ := doc.Number(items[i+1])
		width, _ := doc.Number(items[i+2])
		if last-first > 0xFFFF {
			return
		}
		for c := int(first); c <= int(last); c++ {
			f.w[c] = width
		}
		i += 3
	}
}

func loadEncoding(doc *raw.Document, obj raw.Object) *Encoding {
	if name, ok := doc.Name(obj); ok {
		return NewEncoding(name, nil)
	}
	dict, ok := doc.Dict(obj)
	if !ok {
		return NewEncoding(EncodingStandard, nil)
	}
	base, _ := doc.Name(dict.Lookup("BaseEncoding"))
	var diffs map[byte]string
	if arr, ok := doc.Array(dict.Lookup("Differences")); ok {
		diffs = make(map[byte]string)
		code := 0
		for _, item := range arr.Items {
			switch v := doc.Resolve(item).(type) {
			case raw.Number:
				code = int(v.Int())
			case raw.Name:
				if code >= 0 && code < 256 {
					diffs[byte(code)] = v.Value()
				}
				code++
			}
		}
	}
	return NewEncoding(base, diffs)
}

// IsCID reports whether the font uses multi-byte codes.
func (f *Font) IsCID() bool { return f.cid }

// Symbolic reports whether the font declares a symbolic character set.
func (f *Font) Symbolic() bool {
	return f.Flags&FlagSymbolic != 0 && f.Flags&FlagNonSymbolic == 0
}

// Subset reports whether the font program is a subset.
func (f *Font) Subset() bool { return IsSubsetName(f.BaseFont) }

// Decode splits a string operand into glyphs.
func (f *Font) Decode(data []byte) []Glyph {
	var out []Glyph
	for len(data) > 0 {
		n := f.codeLength(data)
		code := bytesToInt(data[:n])
		g := Glyph{Code: code, Bytes: data[:n], Space: n == 1 && code == 32}
		g.Text = f.text(data[:n], code)
		g.Width = f.width(code, g.Text)
		out = append(out, g)
		data = data[n:]
	}
	return out
}

func (f *Font) codeLength(data []byte) int {
	if !f.cid {
		return 1
	}
	if f.toUnicode != nil && f.codeLen != 2 {
		for _, l := range f.toUnicode.CodeLengths() {
			if l <= len(data) {
				if _, ok := f.toUnicode.Lookup(data[:l]); ok {
					return l
				}
			}
		}
	}
	if f.codeLen > len(data) {
		return len(data)
	}
	return f.codeLen
}

func (f *Font) text(b []byte, code int) string {
	if s, ok := f.toUnicode.Lookup(b); ok {
		return s
	}
	if f.cid {
		return "\ufffd"
	}
	if r := f.encoding.Decode(byte(code)); r != 0 {
		return string(r)
	}
	if code >= 32 && code < 127 {
		return string(rune(code))
	}
	return "\ufffd"
}

func (f *Font) width(code int, text string) float64 {
	if f.cid {
		if w, ok := f.w[code]; ok {
			return w
		}
		return f.dw
	}
	if i := code - f.firstChar; i >= 0 && i < len(f.widths) {
		return f.widths[i] * f.scale
	}
	if f.standard != nil {
		var w float64
		for _, r := range text {
			w += f.standard.Width(r)
		}
		return w
	}
	return f.missingWidth
}

// Encode encodes s with the font's own encoding so that new text can be
// written with it. It succeeds only for unsubsetted, non-symbolic simple
// fonts whose widths cover every code used; the widths are returned in
// 1/1000 em.
func (f *Font) Encode(s string) ([]byte, []float64, bool) {
	if f.cid || f.encoding == nil || f.Subset() || f.Subtype == "Type3" {
		return nil, nil, false
	}
	if f.Symbolic() && f.standard == nil {
		return nil, nil, false
	}
	codes, ok := f.encoding.EncodeString(s)
	if !ok {
		return nil, nil, false
	}
	widths := make([]float64, len(codes))
	for i, c := range codes {
		idx := int(c) - f.firstChar
		switch {
		case idx >= 0 && idx < len(f.widths) && f.widths[idx] > 0:
			widths[i] = f.widths[idx]
		case len(f.widths) == 0 && f.standard != nil:
			widths[i] = f.standard.Width(f.encoding.Decode(c))
		default:
			return nil, nil, false
		}
	}
	return codes, widths, true
}

// Encoding returns the simple-font encoding, or nil for CID fonts.
func (f *Font) Encoding() *Encoding { return f.encoding }

// WinAnsiEncodable reports whether s can be written with WinAnsiEncoding.
func WinAnsiEncodable(s string) bool {
	_, ok := winAnsi.EncodeString(norm.NFC.String(s))
	return ok
}

var winAnsi = NewEncoding(EncodingWinAnsi, nil)
