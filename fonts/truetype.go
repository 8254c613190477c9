package fonts

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"sync"

	gofont "github.com/go-text/typesetting/font"
	xfont "golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/sfnt"
	"golang.org/x/image/math/fixed"
)

// TrueType is a parsed sfnt font program ready for embedding as a
// CIDFontType2 (glyf outlines) or CIDFontType0 (CFF outlines) descendant.
type TrueType struct {
	Name        string
	Data        []byte
	UnitsPerEm  int
	Ascent      float64
	Descent     float64
	CapHeight   float64
	ItalicAngle float64
	BBox        [4]float64
	// CFF is set for OpenType fonts with PostScript outlines. They cannot be
	// subset and are embedded whole as FontFile3.
	CFF bool

	font     *sfnt.Font
	faceOnce sync.Once
	face     *gofont.Face
	faceErr  error
}

// LoadTrueType parses a TrueType/OpenType font and extracts the metrics a
// font descriptor needs.
func LoadTrueType(name string, data []byte) (*TrueType, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("truetype font data is empty")
	}
	font, err := sfnt.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse truetype: %w", err)
	}
	unitsPerEm := font.UnitsPerEm()
	if unitsPerEm == 0 {
		return nil, fmt.Errorf("invalid unitsPerEm")
	}
	buf := &sfnt.Buffer{}
	ppem := fixed.Int26_6(unitsPerEm << 6)

	baseName := strings.TrimSpace(name)
	if ps, _ := font.Name(buf, sfnt.NameIDPostScript); len(ps) > 0 {
		baseName = ps
	}
	if baseName == "" {
		baseName = "CustomTT"
	}
	baseName = strings.Map(func(r rune) rune {
		if r <= ' ' || r > '~' || strings.ContainsRune("()<>[]{}/%#", r) {
			return -1
		}
		return r
	}, baseName)

	metrics, _ := font.Metrics(buf, ppem, xfont.HintingNone)
	bounds, _ := font.Bounds(buf, ppem, xfont.HintingNone)
	t := &TrueType{
		Name:        baseName,
		Data:        data,
		UnitsPerEm:  int(unitsPerEm),
		Ascent:      scaleFixed(metrics.Ascent, unitsPerEm),
		Descent:     -scaleFixed(metrics.Descent, unitsPerEm),
		CapHeight:   scaleFixed(metrics.CapHeight, unitsPerEm),
		ItalicAngle: italicAngle(font),
		// sfnt bounds grow downwards; PDF boxes grow upwards
		BBox: [4]float64{
			scaleFixed(bounds.Min.X, unitsPerEm),
			-scaleFixed(bounds.Max.Y, unitsPerEm),
			scaleFixed(bounds.Max.X, unitsPerEm),
			-scaleFixed(bounds.Min.Y, unitsPerEm),
		},
		font: font,
	}
	if t.CapHeight == 0 {
		t.CapHeight = t.Ascent
	}
	if len(data) >= 4 && binary.BigEndian.Uint32(data) == 0x4F54544F { // 'OTTO'
		t.CFF = true
	}
	return t, nil
}

var (
	defaultOnce sync.Once
	defaultFont *TrueType
	defaultErr  error
)

// DefaultUnicodeFont returns the bundled Go Regular font.
func DefaultUnicodeFont() (*TrueType, error) {
	defaultOnce.Do(func() {
		defaultFont, defaultErr = LoadTrueType("GoRegular", goregular.TTF)
	})
	return defaultFont, defaultErr
}

// GlyphIndex returns the glyph for r, or false when the font lacks it.
func (t *TrueType) GlyphIndex(r rune) (int, bool) {
	gid, err := t.font.GlyphIndex(&sfnt.Buffer{}, r)
	if err != nil || gid == 0 {
		return 0, false
	}
	return int(gid), true
}

// Covers reports whether every non-space rune of s has a glyph.
func (t *TrueType) Covers(s string) bool {
	for _, r := range s {
		if r == ' ' {
			continue
		}
		if _, ok := t.GlyphIndex(r); !ok {
			return false
		}
	}
	return true
}

// Advance returns the advance of gid in 1/1000 em.
func (t *TrueType) Advance(gid int) float64 {
	unitsPerEm := sfnt.Units(t.UnitsPerEm)
	adv, err := t.font.GlyphAdvance(&sfnt.Buffer{}, sfnt.GlyphIndex(gid), fixed.Int26_6(t.UnitsPerEm<<6), xfont.HintingNone)
	if err != nil {
		return 0
	}
	return math.Round(scaleFixed(adv, unitsPerEm))
}

// NumGlyphs returns the glyph count of the font program.
func (t *TrueType) NumGlyphs() int { return t.font.NumGlyphs() }

// Face returns the shaping face, parsed on first use.
func (t *TrueType) Face() (*gofont.Face, error) {
	t.faceOnce.Do(func() {
		t.face, t.faceErr = gofont.ParseTTF(bytes.NewReader(t.Data))
	})
	return t.face, t.faceErr
}

func italicAngle(font *sfnt.Font) float64 {
	post := font.PostTable()
	if post == nil {
		return 0
	}
	return post.ItalicAngle
}

func scaleFixed(val fixed.Int26_6, unitsPerEm sfnt.Units) float64 {
	return float64(val) * 1000.0 / (64.0 * float64(unitsPerEm))
}
