package fonts_test

import (
	"math"
	"testing"

	"github.com/go-text/typesetting/language"
	"github.com/wudi/regionedit/fonts"
)

func TestDetectScript(t *testing.T) {
	cases := map[string]language.Script{
		"Invoice #1":           language.Latin,
		"12.50 €":              language.Latin,
		"Счёт №1":              language.Cyrillic,
		"Τιμολόγιο":            language.Greek,
		"فاتورة ١":             language.Arabic,
		"חשבונית":              language.Hebrew,
		"请款单":                  language.Han,
		"せいきゅうしょ":              language.Hiragana,
		"インボイス":                language.Katakana,
		"송장":                   language.Hangul,
		"Total فاتورة":         language.Arabic,
		"Invoice total فاتورة": language.Latin,
	}
	for text, want := range cases {
		if got := fonts.DetectScript([]rune(text)); got != want {
			t.Fatalf("DetectScript(%q) = %v, want %v", text, got, want)
		}
	}
}

func TestShapeTextNilFont(t *testing.T) {
	glyphs, err := fonts.ShapeText("x", nil)
	if err != nil || glyphs != nil {
		t.Fatalf("nil font = %v %v", glyphs, err)
	}
}

func TestShapeTextDefaultFont(t *testing.T) {
	font, err := fonts.DefaultUnicodeFont()
	if err != nil {
		t.Fatalf("default font: %v", err)
	}
	glyphs, err := fonts.ShapeText("Grüße", font)
	if err != nil {
		t.Fatalf("shape: %v", err)
	}
	if len(glyphs) != 5 {
		t.Fatalf("expected 5 glyphs, got %d", len(glyphs))
	}
	var text []rune
	for _, g := range glyphs {
		if g.ID == 0 {
			t.Fatalf("missing glyph in %+v", g)
		}
		if g.XAdvance <= 0 {
			t.Fatalf("non-positive advance %+v", g)
		}
		text = append(text, g.Runes...)
	}
	if string(text) != "Grüße" {
		t.Fatalf("cluster runes = %q", string(text))
	}
	if want := font.Advance(glyphs[0].ID); math.Abs(want-glyphs[0].XAdvance) > 1 {
		t.Fatalf("shaped advance %v disagrees with hmtx %v", glyphs[0].XAdvance, want)
	}
}
