package fonts

import (
	"strconv"
	"strings"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/unicode/norm"
)

// Encoding maps the single-byte codes of a simple font to Unicode.
type Encoding struct {
	name     string
	toRune   [256]rune
	fromRune map[rune]byte
	// differences marks codes remapped by a /Differences array.
	differences map[byte]string
}

const (
	EncodingWinAnsi  = "WinAnsiEncoding"
	EncodingMacRoman = "MacRomanEncoding"
	EncodingStandard = "StandardEncoding"
)

// NewEncoding builds an encoding from a base encoding name and an optional
// /Differences remapping. Unknown base names fall back to StandardEncoding,
// which is what an unembedded Latin font uses.
func NewEncoding(base string, differences map[byte]string) *Encoding {
	e := &Encoding{name: base, differences: differences}
	switch base {
	case EncodingWinAnsi:
		fillFromCharmap(&e.toRune, charmap.Windows1252)
	case EncodingMacRoman:
		fillFromCharmap(&e.toRune, charmap.Macintosh)
	default:
		e.name = EncodingStandard
		fillStandard(&e.toRune)
	}
	for code, glyph := range differences {
		if r, ok := GlyphRune(glyph); ok {
			e.toRune[code] = r
		} else {
			e.toRune[code] = 0
		}
	}
	e.fromRune = make(map[rune]byte, 256)
	for code := 255; code >= 0; code-- {
		if r := e.toRune[code]; r != 0 {
			e.fromRune[r] = byte(code)
		}
	}
	return e
}

func (e *Encoding) Name() string { return e.name }

// HasDifferences reports whether a /Differences array changed the base.
func (e *Encoding) HasDifferences() bool { return len(e.differences) > 0 }

// Decode returns the rune for code, or 0 when the code is unmapped.
func (e *Encoding) Decode(code byte) rune { return e.toRune[code] }

// Encode returns the code for r.
func (e *Encoding) Encode(r rune) (byte, bool) {
	c, ok := e.fromRune[r]
	return c, ok
}

// EncodeString encodes s after NFC normalization. It fails if any rune has
// no code.
func (e *Encoding) EncodeString(s string) ([]byte, bool) {
	s = norm.NFC.String(s)
	out := make([]byte, 0, len(s))
	for _, r := range s {
		c, ok := e.Encode(r)
		if !ok {
			return nil, false
		}
		out = append(out, c)
	}
	return out, true
}

func fillFromCharmap(dst *[256]rune, cm *charmap.Charmap) {
	for i := 0; i < 256; i++ {
		r := cm.DecodeByte(byte(i))
		if r == '\ufffd' || r < 0x20 || (r >= 0x7f && r <= 0x9f) {
			continue
		}
		dst[i] = r
	}
}

// fillStandard builds Adobe StandardEncoding. It matches ASCII except for
// the curly quotes at 0x27 and 0x60; the upper half carries punctuation and
// a few ligatures.
func fillStandard(dst *[256]rune) {
	for i := 32; i < 127; i++ {
		dst[i] = rune(i)
	}
	dst[0x27] = '’'
	dst[0x60] = '‘'
	upper := map[byte]rune{
		0xA1: '¡', 0xA2: '¢', 0xA3: '£', 0xA4: '⁄', 0xA5: '¥', 0xA6: 'ƒ', 0xA7: '§',
		0xA8: '¤', 0xA9: '\'', 0xAA: '“', 0xAB: '«', 0xAC: '‹', 0xAD: '›', 0xAE: 'ﬁ',
		0xAF: 'ﬂ', 0xB1: '–', 0xB2: '†', 0xB3: '‡', 0xB4: '·', 0xB6: '¶', 0xB7: '•',
		0xB8: '‚', 0xB9: '„', 0xBA: '”', 0xBB: '»', 0xBC: '…', 0xBD: '‰', 0xBF: '¿',
		0xC1: '`', 0xC2: '´', 0xC3: 'ˆ', 0xC4: '˜', 0xC5: '¯', 0xC6: '˘', 0xC7: '˙',
		0xC8: '¨', 0xCA: '˚', 0xCB: '¸', 0xCD: '˝', 0xCE: '˛', 0xCF: 'ˇ', 0xD0: '—',
		0xE1: 'Æ', 0xE3: 'ª', 0xE8: 'Ł', 0xE9: 'Ø', 0xEA: 'Œ', 0xEB: 'º', 0xF1: 'æ',
		0xF5: 'ı', 0xF8: 'ł', 0xF9: 'ø', 0xFA: 'œ', 0xFB: 'ß',
	}
	for c, r := range upper {
		dst[c] = r
	}
}

// glyphNames is the part of the Adobe Glyph List that Latin text fonts use
// in /Differences arrays. Single ASCII letters and digits are handled in
// GlyphRune.
var glyphNames = map[string]rune{
	"space": ' ', "exclam": '!', "quotedbl": '"', "numbersign": '#', "dollar": '$',
	"percent": '%', "ampersand": '&', "quotesingle": '\'', "quoteright": '’',
	"parenleft": '(', "parenright": ')', "asterisk": '*', "plus": '+', "comma": ',',
	"hyphen": '-', "minus": '−', "period": '.', "slash": '/', "colon": ':',
	"semicolon": ';', "less": '<', "equal": '=', "greater": '>', "question": '?',
	"at": '@', "bracketleft": '[', "backslash": '\\', "bracketright": ']',
	"asciicircum": '^', "underscore": '_', "grave": '`', "quoteleft": '‘',
	"braceleft": '{', "bar": '|', "braceright": '}', "asciitilde": '~',
	"zero": '0', "one": '1', "two": '2', "three": '3', "four": '4', "five": '5',
	"six": '6', "seven": '7', "eight": '8', "nine": '9',
	"bullet": '•', "endash": '–', "emdash": '—', "ellipsis": '…', "dagger": '†',
	"daggerdbl": '‡', "perthousand": '‰', "quotedblleft": '“', "quotedblright": '”',
	"quotesinglbase": '‚', "quotedblbase": '„', "guilsinglleft": '‹',
	"guilsinglright": '›', "guillemotleft": '«', "guillemotright": '»',
	"trademark": '™', "copyright": '©', "registered": '®', "degree": '°',
	"section": '§', "paragraph": '¶', "periodcentered": '·', "Euro": '€',
	"cent": '¢', "sterling": '£', "yen": '¥', "currency": '¤', "florin": 'ƒ',
	"fi": 'ﬁ', "fl": 'ﬂ', "ff": 'ﬀ', "ffi": 'ﬃ', "ffl": 'ﬄ',
	"germandbls": 'ß', "ae": 'æ', "AE": 'Æ', "oe": 'œ', "OE": 'Œ', "oslash": 'ø',
	"Oslash": 'Ø', "lslash": 'ł', "Lslash": 'Ł', "dotlessi": 'ı', "eth": 'ð',
	"Eth": 'Ð', "thorn": 'þ', "Thorn": 'Þ', "mu": 'µ', "multiply": '×',
	"divide": '÷', "plusminus": '±', "onehalf": '½', "onequarter": '¼',
	"threequarters": '¾', "exclamdown": '¡', "questiondown": '¿',
	"nbspace": '\u00a0', "uni00A0": '\u00a0', "sfthyphen": '\u00ad',
	"ordfeminine": 'ª', "ordmasculine": 'º', "logicalnot": '¬', "macron": '¯',
	"acute": '´', "cedilla": '¸', "dieresis": '¨', "circumflex": 'ˆ', "tilde": '˜',
	"ring": '˚', "caron": 'ˇ', "breve": '˘', "dotaccent": '˙', "ogonek": '˛',
	"hungarumlaut": '˝', "fraction": '⁄', "brokenbar": '¦',
	"onesuperior": '¹', "twosuperior": '²', "threesuperior": '³',
}

// accents pairs glyph-name suffixes with combining marks so names such as
// "eacute" or "Udieresis" can be composed.
var accents = []struct {
	suffix string
	mark   rune
}{
	{"acute", '\u0301'}, {"grave", '\u0300'}, {"circumflex", '\u0302'},
	{"dieresis", '\u0308'}, {"tilde", '\u0303'}, {"ring", '\u030A'},
	{"cedilla", '\u0327'}, {"caron", '\u030C'}, {"breve", '\u0306'},
	{"macron", '\u0304'}, {"ogonek", '\u0328'}, {"dotaccent", '\u0307'},
	{"hungarumlaut", '\u030B'},
}

// GlyphRune resolves a glyph name to a rune using the built-in glyph list,
// composed accented letters and the uniXXXX / uXXXX naming conventions.
func GlyphRune(name string) (rune, bool) {
	if i := strings.IndexByte(name, '.'); i > 0 {
		name = name[:i]
	}
	if r, ok := glyphNames[name]; ok {
		return r, true
	}
	if len(name) == 1 {
		c := name[0]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') {
			return rune(c), true
		}
	}
	if strings.HasPrefix(name, "uni") && len(name) == 7 {
		if v, err := strconv.ParseUint(name[3:], 16, 32); err == nil {
			return rune(v), true
		}
	}
	if strings.HasPrefix(name, "u") && len(name) >= 5 && len(name) <= 7 {
		if v, err := strconv.ParseUint(name[1:], 16, 32); err == nil {
			return rune(v), true
		}
	}
	for _, a := range accents {
		if base := strings.TrimSuffix(name, a.suffix); base != name && len(base) == 1 {
			composed := norm.NFC.String(base + string(a.mark))
			if r := []rune(composed); len(r) == 1 {
				return r[0], true
			}
		}
	}
	return 0, false
}
