package fonts

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Metrics holds the horizontal metrics of a standard font in 1/1000 em.
type Metrics struct {
	Name    string
	Ascent  float64
	Descent float64
	// ascii holds the widths of codes 32..126.
	ascii   [95]float64
	extra   map[rune]float64
	average float64
}

// Width returns the advance of r. Accented letters use the width of their
// base letter.
func (m *Metrics) Width(r rune) float64 {
	if r >= 32 && r < 127 {
		return m.ascii[r-32]
	}
	if w, ok := m.extra[r]; ok {
		return w
	}
	if d := []rune(norm.NFD.String(string(r))); len(d) > 1 && d[0] >= 32 && d[0] < 127 {
		return m.ascii[d[0]-32]
	}
	return m.average
}

// StringWidth sums Width over s.
func (m *Metrics) StringWidth(s string) float64 {
	var w float64
	for _, r := range s {
		w += m.Width(r)
	}
	return w
}

var helveticaASCII = [95]float64{
	278, 278, 355, 556, 556, 889, 667, 191, 333, 333, 389, 584, 278, 333, 278, 278,
	556, 556, 556, 556, 556, 556, 556, 556, 556, 556, 278, 278, 584, 584, 584, 556,
	1015, 667, 667, 722, 722, 667, 611, 778, 722, 278, 500, 667, 556, 833, 722, 778,
	667, 778, 722, 667, 611, 722, 667, 944, 667, 667, 611, 278, 278, 278, 469, 556,
	333, 556, 556, 500, 556, 556, 278, 556, 556, 222, 222, 500, 222, 833, 556, 556,
	556, 556, 333, 500, 278, 556, 500, 722, 500, 500, 500, 334, 260, 334, 584,
}

var helveticaBoldASCII = [95]float64{
	278, 333, 474, 556, 556, 889, 722, 238, 333, 333, 389, 584, 278, 333, 278, 278,
	556, 556, 556, 556, 556, 556, 556, 556, 556, 556, 333, 333, 584, 584, 584, 611,
	975, 722, 722, 722, 722, 667, 611, 778, 722, 278, 556, 722, 611, 833, 722, 778,
	667, 778, 722, 667, 611, 722, 667, 944, 667, 667, 611, 333, 278, 333, 584, 556,
	333, 556, 611, 556, 611, 556, 333, 611, 611, 278, 278, 556, 278, 889, 611, 611,
	611, 611, 389, 556, 333, 611, 556, 778, 556, 556, 500, 389, 280, 389, 584,
}

var timesASCII = [95]float64{
	250, 333, 408, 500, 500, 833, 778, 180, 333, 333, 500, 564, 250, 333, 250, 278,
	500, 500, 500, 500, 500, 500, 500, 500, 500, 500, 278, 278, 564, 564, 564, 444,
	921, 722, 667, 667, 722, 611, 556, 722, 722, 333, 389, 722, 611, 889, 722, 722,
	556, 722, 667, 556, 611, 722, 722, 944, 722, 722, 611, 333, 278, 333, 469, 500,
	333, 444, 500, 444, 500, 444, 333, 500, 500, 278, 278, 500, 278, 778, 500, 500,
	500, 500, 333, 389, 278, 500, 500, 722, 500, 500, 444, 480, 200, 480, 541,
}

var timesBoldASCII = [95]float64{
	250, 333, 555, 500, 500, 1000, 833, 278, 333, 333, 500, 570, 250, 333, 250, 278,
	500, 500, 500, 500, 500, 500, 500, 500, 500, 500, 333, 333, 570, 570, 570, 500,
	930, 722, 667, 722, 722, 667, 611, 778, 778, 389, 500, 778, 667, 944, 722, 778,
	611, 778, 722, 556, 667, 722, 722, 1000, 722, 722, 667, 333, 278, 333, 581, 500,
	333, 500, 556, 444, 556, 444, 333, 500, 556, 278, 333, 556, 278, 833, 556, 500,
	556, 556, 444, 389, 333, 556, 500, 722, 500, 500, 444, 394, 220, 394, 520,
}

func fixedASCII(w float64) [95]float64 {
	var out [95]float64
	for i := range out {
		out[i] = w
	}
	return out
}

func sansExtras(space float64) map[rune]float64 {
	return map[rune]float64{
		' ': space, '•': 350, '–': 556, '—': 1000, '…': 1000, '‘': 222, '’': 222,
		'“': 333, '”': 333, '€': 556, '©': 737, '®': 737, '°': 400, '§': 556, '¶': 537,
		'±': 584, '×': 584, '÷': 584, 'ß': 611, 'æ': 889, 'Æ': 1000, 'œ': 944, 'Œ': 1000,
		'™': 1000, '¢': 556, '£': 556, '¥': 556,
	}
}

func serifExtras(space float64) map[rune]float64 {
	return map[rune]float64{
		' ': space, '•': 350, '–': 500, '—': 1000, '…': 1000, '‘': 333, '’': 333,
		'“': 444, '”': 444, '€': 500, '©': 760, '®': 760, '°': 400, '§': 500, '¶': 453,
		'±': 564, '×': 564, '÷': 564, 'ß': 500, 'æ': 667, 'Æ': 889, 'œ': 722, 'Œ': 889,
		'™': 980, '¢': 500, '£': 500, '¥': 500,
	}
}

// The italic faces reuse their upright widths; the difference is small for
// Latin text and stays within the rectangle padding.
var standard14 = map[string]*Metrics{
	"Helvetica":             {Name: "Helvetica", Ascent: 718, Descent: -207, ascii: helveticaASCII, extra: sansExtras(278), average: 556},
	"Helvetica-Oblique":     {Name: "Helvetica-Oblique", Ascent: 718, Descent: -207, ascii: helveticaASCII, extra: sansExtras(278), average: 556},
	"Helvetica-Bold":        {Name: "Helvetica-Bold", Ascent: 718, Descent: -207, ascii: helveticaBoldASCII, extra: sansExtras(278), average: 611},
	"Helvetica-BoldOblique": {Name: "Helvetica-BoldOblique", Ascent: 718, Descent: -207, ascii: helveticaBoldASCII, extra: sansExtras(278), average: 611},
	"Times-Roman":           {Name: "Times-Roman", Ascent: 683, Descent: -217, ascii: timesASCII, extra: serifExtras(250), average: 500},
	"Times-Italic":          {Name: "Times-Italic", Ascent: 683, Descent: -217, ascii: timesASCII, extra: serifExtras(250), average: 500},
	"Times-Bold":            {Name: "Times-Bold", Ascent: 676, Descent: -205, ascii: timesBoldASCII, extra: serifExtras(250), average: 500},
	"Times-BoldItalic":      {Name: "Times-BoldItalic", Ascent: 683, Descent: -217, ascii: timesBoldASCII, extra: serifExtras(250), average: 500},
	"Courier":               {Name: "Courier", Ascent: 629, Descent: -157, ascii: fixedASCII(600), average: 600},
	"Courier-Oblique":       {Name: "Courier-Oblique", Ascent: 629, Descent: -157, ascii: fixedASCII(600), average: 600},
	"Courier-Bold":          {Name: "Courier-Bold", Ascent: 629, Descent: -157, ascii: fixedASCII(600), average: 600},
	"Courier-BoldOblique":   {Name: "Courier-BoldOblique", Ascent: 629, Descent: -157, ascii: fixedASCII(600), average: 600},
	"Symbol":                {Name: "Symbol", Ascent: 1010, Descent: -293, ascii: fixedASCII(600), average: 600},
	"ZapfDingbats":          {Name: "ZapfDingbats", Ascent: 820, Descent: -143, ascii: fixedASCII(788), average: 788},
}

// Standard returns the metrics for one of the 14 standard fonts.
func Standard(name string) (*Metrics, bool) {
	m, ok := standard14[name]
	return m, ok
}

// StandardFamily maps an arbitrary base font name onto the closest
// standard font. Serif and monospaced families are recognised by name;
// everything else maps to Helvetica. Bold and italic come from the name or
// from the descriptor flags (bit 7 italic, bit 19 force bold) and the
// weight when known.
func StandardFamily(baseFont string, flags int, weight float64) string {
	name := strings.ToLower(StripSubsetTag(baseFont))
	if m, ok := standard14[StripSubsetTag(baseFont)]; ok {
		return m.Name
	}

	family := "Helvetica"
	switch {
	case strings.Contains(name, "courier") || strings.Contains(name, "mono") || strings.Contains(name, "consol") || flags&1 != 0:
		family = "Courier"
	case strings.Contains(name, "times") || strings.Contains(name, "serif") && !strings.Contains(name, "sans") ||
		strings.Contains(name, "georgia") || strings.Contains(name, "garamond") || strings.Contains(name, "roman") ||
		strings.Contains(name, "minion") || strings.Contains(name, "cambria") || flags&2 != 0 && !strings.Contains(name, "sans"):
		family = "Times"
	}
	bold := strings.Contains(name, "bold") || strings.Contains(name, "black") || strings.Contains(name, "heavy") ||
		strings.Contains(name, "semibold") || flags&(1<<18) != 0 || weight >= 600
	italic := strings.Contains(name, "italic") || strings.Contains(name, "oblique") || flags&(1<<6) != 0

	switch family {
	case "Times":
		switch {
		case bold && italic:
			return "Times-BoldItalic"
		case bold:
			return "Times-Bold"
		case italic:
			return "Times-Italic"
		}
		return "Times-Roman"
	default:
		suffix := ""
		switch {
		case bold && italic:
			suffix = "-BoldOblique"
		case bold:
			suffix = "-Bold"
		case italic:
			suffix = "-Oblique"
		}
		return family + suffix
	}
}

// StripSubsetTag removes a six-letter subset prefix such as "ABCDEF+".
func StripSubsetTag(name string) string {
	if IsSubsetName(name) {
		return name[7:]
	}
	return name
}

// IsSubsetName reports whether name carries a subset tag.
func IsSubsetName(name string) bool {
	if len(name) < 8 || name[6] != '+' {
		return false
	}
	for i := 0; i < 6; i++ {
		if name[i] < 'A' || name[i] > 'Z' {
			return false
		}
	}
	return true
}

// standardAliases maps the common Windows names to their standard
// equivalents, as viewers do for unembedded fonts.
var standardAliases = map[string]string{
	"Arial":                  "Helvetica",
	"Arial,Bold":             "Helvetica-Bold",
	"Arial,Italic":           "Helvetica-Oblique",
	"Arial,BoldItalic":       "Helvetica-BoldOblique",
	"ArialMT":                "Helvetica",
	"Arial-BoldMT":           "Helvetica-Bold",
	"Arial-ItalicMT":         "Helvetica-Oblique",
	"Arial-BoldItalicMT":     "Helvetica-BoldOblique",
	"TimesNewRoman":          "Times-Roman",
	"TimesNewRoman,Bold":     "Times-Bold",
	"TimesNewRoman,Italic":   "Times-Italic",
	"TimesNewRomanPSMT":      "Times-Roman",
	"TimesNewRomanPS-BoldMT": "Times-Bold",
	"CourierNew":             "Courier",
	"CourierNewPSMT":         "Courier",
	"CourierNew,Bold":        "Courier-Bold",
}

// StandardMetrics returns metrics for a base font that is a standard font
// or one of its aliases.
func StandardMetrics(baseFont string) (*Metrics, bool) {
	name := StripSubsetTag(baseFont)
	if alias, ok := standardAliases[name]; ok {
		name = alias
	}
	return Standard(name)
}
