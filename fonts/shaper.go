package fonts

import (
	"github.com/go-text/typesetting/di"
	"github.com/go-text/typesetting/language"
	"github.com/go-text/typesetting/shaping"
	"golang.org/x/image/math/fixed"
)

// ShapedGlyph is one positioned glyph of shaped text. Advances and offsets
// are in 1/1000 em, the unit of /W widths and TJ adjustments.
type ShapedGlyph struct {
	ID int
	// Runes is the source text this glyph renders. A ligature carries the
	// whole cluster; the following glyphs of a split cluster carry none.
	Runes    []rune
	Cluster  int
	XAdvance float64
	YAdvance float64
	XOffset  float64
	YOffset  float64
}

// shapingSize is one em as 1000 units in 26.6 fixed point.
const shapingSize = fixed.Int26_6(1000 << 6)

// ShapeText runs the HarfBuzz shaper over text in its dominant script.
func ShapeText(text string, font *TrueType) ([]ShapedGlyph, error) {
	runes := []rune(text)
	if font == nil || len(runes) == 0 {
		return nil, nil
	}
	face, err := font.Face()
	if err != nil {
		return nil, err
	}

	script := DetectScript(runes)
	out := (&shaping.HarfbuzzShaper{}).Shape(shaping.Input{
		Text:      runes,
		RunEnd:    len(runes),
		Direction: direction(script),
		Face:      face,
		Size:      shapingSize,
		Script:    script,
		Language:  language.DefaultLanguage(),
	})

	glyphs := make([]ShapedGlyph, len(out.Glyphs))
	claimed := make(map[int]bool, len(out.Glyphs))
	for i, g := range out.Glyphs {
		glyphs[i] = ShapedGlyph{
			ID:       int(g.GlyphID),
			Cluster:  g.ClusterIndex,
			XAdvance: fromFixed(g.XAdvance),
			YAdvance: fromFixed(g.YAdvance),
			XOffset:  fromFixed(g.XOffset),
			YOffset:  fromFixed(g.YOffset),
		}
		start := g.ClusterIndex
		if claimed[start] || start < 0 || start >= len(runes) {
			continue
		}
		claimed[start] = true
		end := start + max(g.RuneCount, 1)
		glyphs[i].Runes = runes[start:min(end, len(runes))]
	}
	return glyphs, nil
}

func fromFixed(v fixed.Int26_6) float64 { return float64(v) / 64 }

func direction(script language.Script) di.Direction {
	switch script {
	case language.Arabic, language.Hebrew, language.Syriac, language.Thaana, language.Nko:
		return di.DirectionRTL
	}
	return di.DirectionLTR
}

// DetectScript returns the script most runes belong to, ignoring common and
// inherited characters. Latin is the default; ties go to the script that
// reached the count first.
func DetectScript(runes []rune) language.Script {
	best, bestCount := language.Latin, 0
	counts := make(map[language.Script]int)
	for _, r := range runes {
		s := language.LookupScript(r)
		if s == language.Unknown || !s.Strong() {
			continue
		}
		counts[s]++
		if counts[s] > bestCount {
			best, bestCount = s, counts[s]
		}
	}
	return best
}
