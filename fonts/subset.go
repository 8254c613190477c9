package fonts

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
)

// Subset returns a copy of the font program that keeps only the outlines
// of gids and the composites they reference. Glyph ids are preserved so
// Identity-H codes keep working. CFF fonts are returned whole.
func (t *TrueType) Subset(gids map[int]bool) ([]byte, error) {
	if t.CFF {
		return t.Data, nil
	}
	return subsetGlyf(t.Data, gids)
}

// sfntTables indexes the table directory of an sfnt file.
type sfntTables struct {
	data   []byte
	tables map[string][]byte
}

var errNotGlyf = errors.New("font has no glyf outlines")

func readTables(data []byte) (*sfntTables, error) {
	if len(data) < 12 {
		return nil, fmt.Errorf("invalid font header")
	}
	n := int(binary.BigEndian.Uint16(data[4:6]))
	st := &sfntTables{data: data, tables: make(map[string][]byte, n)}
	for i := 0; i < n; i++ {
		rec := 12 + 16*i
		if rec+16 > len(data) {
			return nil, fmt.Errorf("table directory truncated")
		}
		tag := string(data[rec : rec+4])
		off := binary.BigEndian.Uint32(data[rec+8:])
		length := binary.BigEndian.Uint32(data[rec+12:])
		if uint64(off)+uint64(length) > uint64(len(data)) {
			return nil, fmt.Errorf("table %q out of bounds", tag)
		}
		st.tables[tag] = data[off : off+length]
	}
	return st, nil
}

func (st *sfntTables) get(tag string, minLen int) ([]byte, error) {
	b, ok := st.tables[tag]
	if !ok {
		return nil, fmt.Errorf("table %q missing", tag)
	}
	if len(b) < minLen {
		return nil, fmt.Errorf("table %q truncated", tag)
	}
	return b, nil
}

// loca returns the glyph offsets of the glyf table, numGlyphs+1 entries.
func (st *sfntTables) loca(numGlyphs int, longFormat bool) ([]uint32, error) {
	raw, ok := st.tables["loca"]
	if !ok {
		return nil, errNotGlyf
	}
	out := make([]uint32, numGlyphs+1)
	for i := range out {
		if longFormat {
			if 4*i+4 > len(raw) {
				return nil, fmt.Errorf("loca truncated")
			}
			out[i] = binary.BigEndian.Uint32(raw[4*i:])
		} else {
			if 2*i+2 > len(raw) {
				return nil, fmt.Errorf("loca truncated")
			}
			out[i] = uint32(binary.BigEndian.Uint16(raw[2*i:])) * 2
		}
	}
	return out, nil
}

// Composite glyph component flags.
const (
	argsAreWords   = 0x0001
	haveScale      = 0x0008
	moreComponents = 0x0020
	haveXYScale    = 0x0040
	haveTwoByTwo   = 0x0080
)

// components lists the glyphs referenced by a composite glyph.
func components(glyph []byte) []int {
	if len(glyph) < 10 || int16(binary.BigEndian.Uint16(glyph)) >= 0 {
		return nil
	}
	var out []int
	for p := 10; p+4 <= len(glyph); {
		flags := binary.BigEndian.Uint16(glyph[p:])
		out = append(out, int(binary.BigEndian.Uint16(glyph[p+2:])))
		p += 4
		if flags&argsAreWords != 0 {
			p += 4
		} else {
			p += 2
		}
		switch {
		case flags&haveScale != 0:
			p += 2
		case flags&haveXYScale != 0:
			p += 4
		case flags&haveTwoByTwo != 0:
			p += 8
		}
		if flags&moreComponents == 0 {
			break
		}
	}
	return out
}

// keptTables are copied from the source font. Layout tables are dropped:
// the content stream positions every glyph explicitly.
var keptTables = []string{"cmap", "cvt ", "fpgm", "head", "hhea", "name", "OS/2", "post", "prep"}

func subsetGlyf(data []byte, gids map[int]bool) ([]byte, error) {
	st, err := readTables(data)
	if err != nil {
		return nil, err
	}
	head, err := st.get("head", 54)
	if err != nil {
		return nil, err
	}
	maxp, err := st.get("maxp", 6)
	if err != nil {
		return nil, err
	}
	hhea, err := st.get("hhea", 36)
	if err != nil {
		return nil, err
	}
	hmtx, err := st.get("hmtx", 4)
	if err != nil {
		return nil, err
	}
	glyf, ok := st.tables["glyf"]
	if !ok {
		return nil, errNotGlyf
	}
	numGlyphs := int(binary.BigEndian.Uint16(maxp[4:]))
	offsets, err := st.loca(numGlyphs, int16(binary.BigEndian.Uint16(head[50:])) != 0)
	if err != nil {
		return nil, err
	}
	glyph := func(gid int) []byte {
		a, b := offsets[gid], offsets[gid+1]
		if a >= b || b > uint32(len(glyf)) {
			return nil
		}
		return glyf[a:b]
	}

	keep := map[int]bool{0: true}
	queue := make([]int, 0, len(gids))
	for gid := range gids {
		if gid >= 0 && gid < numGlyphs && !keep[gid] {
			keep[gid] = true
		}
	}
	for gid := range keep {
		queue = append(queue, gid)
	}
	for len(queue) > 0 {
		gid := queue[len(queue)-1]
		queue = queue[:len(queue)-1]
		for _, c := range components(glyph(gid)) {
			if c < numGlyphs && !keep[c] {
				keep[c] = true
				queue = append(queue, c)
			}
		}
	}

	last := 0
	for gid := range keep {
		if gid > last {
			last = gid
		}
	}
	count := last + 1

	var newGlyf bytes.Buffer
	newLoca := make([]byte, 4*(count+1))
	for gid := 0; gid < count; gid++ {
		binary.BigEndian.PutUint32(newLoca[4*gid:], uint32(newGlyf.Len()))
		if keep[gid] {
			g := glyph(gid)
			newGlyf.Write(g)
			// glyph records stay 4-byte aligned for the long loca format
			for newGlyf.Len()%4 != 0 {
				newGlyf.WriteByte(0)
			}
		}
	}
	binary.BigEndian.PutUint32(newLoca[4*count:], uint32(newGlyf.Len()))

	numHMetrics := int(binary.BigEndian.Uint16(hhea[34:]))
	if numHMetrics == 0 || 4*numHMetrics > len(hmtx) {
		return nil, fmt.Errorf("hmtx truncated")
	}
	newHmtx := make([]byte, 4*count)
	for gid := 0; gid < count; gid++ {
		var adv, lsb uint16
		if gid < numHMetrics {
			adv = binary.BigEndian.Uint16(hmtx[4*gid:])
			lsb = binary.BigEndian.Uint16(hmtx[4*gid+2:])
		} else {
			adv = binary.BigEndian.Uint16(hmtx[4*(numHMetrics-1):])
			if p := 4*numHMetrics + 2*(gid-numHMetrics); p+2 <= len(hmtx) {
				lsb = binary.BigEndian.Uint16(hmtx[p:])
			}
		}
		binary.BigEndian.PutUint16(newHmtx[4*gid:], adv)
		binary.BigEndian.PutUint16(newHmtx[4*gid+2:], lsb)
	}

	out := map[string][]byte{
		"glyf": newGlyf.Bytes(),
		"loca": newLoca,
		"hmtx": newHmtx,
		"maxp": patch16(maxp, 4, uint16(count)),
	}
	for _, tag := range keptTables {
		if b, ok := st.tables[tag]; ok {
			out[tag] = b
		}
	}
	out["head"] = patch16(head, 50, 1) // long loca offsets
	out["hhea"] = patch16(hhea, 34, uint16(count))
	return writeSfnt(out), nil
}

func patch16(b []byte, at int, v uint16) []byte {
	out := append([]byte(nil), b...)
	binary.BigEndian.PutUint16(out[at:], v)
	return out
}

// writeSfnt assembles a TrueType file from tables and fixes the head
// checksum adjustment.
func writeSfnt(tables map[string][]byte) []byte {
	tags := make([]string, 0, len(tables))
	for tag := range tables {
		tags = append(tags, tag)
	}
	sort.Strings(tags)

	n := len(tags)
	selector := 0
	for 1<<(selector+1) <= n {
		selector++
	}
	searchRange := (1 << selector) * 16

	var buf bytes.Buffer
	header := make([]byte, 12)
	binary.BigEndian.PutUint32(header[0:], 0x00010000)
	binary.BigEndian.PutUint16(header[4:], uint16(n))
	binary.BigEndian.PutUint16(header[6:], uint16(searchRange))
	binary.BigEndian.PutUint16(header[8:], uint16(selector))
	binary.BigEndian.PutUint16(header[10:], uint16(n*16-searchRange))
	buf.Write(header)

	offset := 12 + 16*n
	headAt := -1
	for _, tag := range tags {
		data := tables[tag]
		if tag == "head" {
			data = patch32(data, 8, 0)
			tables[tag] = data
			headAt = offset
		}
		rec := make([]byte, 16)
		copy(rec, tag)
		binary.BigEndian.PutUint32(rec[4:], checksum(data))
		binary.BigEndian.PutUint32(rec[8:], uint32(offset))
		binary.BigEndian.PutUint32(rec[12:], uint32(len(data)))
		buf.Write(rec)
		offset += (len(data) + 3) &^ 3
	}
	for _, tag := range tags {
		data := tables[tag]
		buf.Write(data)
		for pad := (4 - len(data)%4) % 4; pad > 0; pad-- {
			buf.WriteByte(0)
		}
	}
	out := buf.Bytes()
	if headAt >= 0 {
		binary.BigEndian.PutUint32(out[headAt+8:], 0xB1B0AFBA-checksum(out))
	}
	return out
}

func patch32(b []byte, at int, v uint32) []byte {
	out := append([]byte(nil), b...)
	binary.BigEndian.PutUint32(out[at:], v)
	return out
}

func checksum(data []byte) uint32 {
	var sum uint32
	for i := 0; i < len(data); i += 4 {
		var word [4]byte
		copy(word[:], data[i:])
		sum += binary.BigEndian.Uint32(word[:])
	}
	return sum
}
