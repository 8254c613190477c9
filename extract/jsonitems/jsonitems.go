// Package jsonitems reads the text content a pdf.js viewer reports for a page
// (the JSON form of getTextContent) into extractor records.
//
// pdf.js reports width in page units and height as the font size; both are
// converted to the transform units RawTextItem expects. Style ascent and
// descent are used when present.
package jsonitems

import (
	"errors"
	"math"

	"github.com/tidwall/gjson"

	"github.com/wudi/regionedit/extract"
)

// ErrInvalid is returned for input that is not JSON or has no item list.
var ErrInvalid = errors.New("invalid text content json")

// Parse converts a textContent object ({"items": [...], "styles": {...}})
// or a bare item array. Entries without a string, such as marked-content
// markers, are skipped; so are entries without a six-number transform.
func Parse(data []byte) ([]extract.RawTextItem, error) {
	if !gjson.ValidBytes(data) {
		return nil, ErrInvalid
	}
	doc := gjson.ParseBytes(data)
	items := doc
	styles := gjson.Result{}
	if doc.IsObject() {
		items = doc.Get("items")
		styles = doc.Get("styles")
	}
	if !items.IsArray() {
		return nil, ErrInvalid
	}

	var out []extract.RawTextItem
	items.ForEach(func(_, it gjson.Result) bool {
		str := it.Get("str")
		if str.Type != gjson.String {
			return true
		}
		tr := it.Get("transform").Array()
		if len(tr) != 6 {
			return true
		}
		var m [6]float64
		for i, v := range tr {
			m[i] = v.Float()
		}
		sx := math.Hypot(m[0], m[1])
		sy := math.Hypot(m[2], m[3])
		if sx == 0 || sy == 0 {
			return true
		}
		font := it.Get("fontName").String()
		height := 1.0
		if h := it.Get("height"); h.Exists() && h.Float() > 0 {
			height = h.Float() / sy
		}
		descent := 0.0
		if st := styles.Get(gjson.Escape(font)); st.Exists() {
			if a := st.Get("ascent"); a.Exists() && a.Float() > 0 {
				height = a.Float()
			}
			if d := st.Get("descent"); d.Exists() && d.Float() < 0 {
				descent = d.Float()
			}
		}
		out = append(out, extract.RawTextItem{
			Text:      str.String(),
			Transform: m,
			Width:     it.Get("width").Float() / sx,
			Height:    height,
			Descent:   descent,
			FontName:  fontFamily(styles, font),
		})
		return true
	})
	return out, nil
}

func fontFamily(styles gjson.Result, font string) string {
	if fam := styles.Get(gjson.Escape(font) + ".fontFamily"); fam.Type == gjson.String {
		return fam.String()
	}
	return font
}
