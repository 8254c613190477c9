package fonts

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"strings"

	"golang.org/x/text/encoding/unicode"

	"github.com/wudi/regionedit/scanner"
)

// CMap maps character codes to Unicode text. It covers the subset of the
// CMap language used by ToUnicode streams: codespace ranges, bfchar and
// bfrange.
type CMap struct {
	entries map[string]string
	// lengths holds the code byte lengths seen, longest first.
	lengths []int
}

// ParseCMap parses a ToUnicode CMap program.
func ParseCMap(data []byte) (*CMap, error) {
	sc := scanner.New(data, scanner.Config{})
	m := &CMap{entries: make(map[string]string)}
	lengthSet := make(map[int]struct{})
	state := ""
	var operands []scanner.Token

	for {
		tok, err := sc.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("cmap: %w", err)
		}
		if tok.Type != scanner.TokenKeyword {
			if tok.Type == scanner.TokenArray {
				arr, err := readHexArray(sc)
				if err != nil {
					return nil, fmt.Errorf("cmap: %w", err)
				}
				tok = scanner.Token{Type: scanner.TokenArray, Value: arr}
			}
			operands = append(operands, tok)
			continue
		}
		kw, _ := tok.Value.(string)
		switch kw {
		case "begincodespacerange", "beginbfchar", "beginbfrange":
			state = strings.TrimPrefix(kw, "begin")
			operands = operands[:0]
			continue
		case "endcodespacerange", "endbfchar", "endbfrange":
			m.apply(state, operands, lengthSet)
			state = ""
			operands = operands[:0]
			continue
		}
		if state == "" {
			operands = operands[:0]
		}
	}
	if len(lengthSet) == 0 {
		for k := range m.entries {
			lengthSet[len(k)] = struct{}{}
		}
	}
	for l := range lengthSet {
		m.lengths = append(m.lengths, l)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(m.lengths)))
	return m, nil
}

func (m *CMap) apply(state string, ops []scanner.Token, lengthSet map[int]struct{}) {
	switch state {
	case "codespacerange":
		for i := 0; i+1 < len(ops); i += 2 {
			if b, ok := ops[i].Value.([]byte); ok && len(b) > 0 {
				lengthSet[len(b)] = struct{}{}
			}
		}
	case "bfchar":
		for i := 0; i+1 < len(ops); i += 2 {
			src, ok1 := ops[i].Value.([]byte)
			dst, ok2 := ops[i+1].Value.([]byte)
			if !ok1 || !ok2 || len(src) == 0 {
				continue
			}
			m.entries[string(src)] = DecodeUTF16BE(dst)
			lengthSet[len(src)] = struct{}{}
		}
	case "bfrange":
		for i := 0; i+2 < len(ops); i += 3 {
			lo, ok1 := ops[i].Value.([]byte)
			hi, ok2 := ops[i+1].Value.([]byte)
			if !ok1 || !ok2 || len(lo) == 0 {
				continue
			}
			length := len(lo)
			lengthSet[length] = struct{}{}
			start, end := bytesToInt(lo), bytesToInt(hi)
			if end < start || end-start > 0xFFFF {
				continue
			}
			switch dst := ops[i+2].Value.(type) {
			case [][]byte:
				for k := 0; k <= end-start && k < len(dst); k++ {
					m.entries[string(intToBytes(start+k, length))] = DecodeUTF16BE(dst[k])
				}
			case []byte:
				if len(dst) == 0 {
					continue
				}
				base := append([]byte(nil), dst...)
				for k := 0; k <= end-start; k++ {
					m.entries[string(intToBytes(start+k, length))] = DecodeUTF16BE(base)
					incrementLast(base)
				}
			}
		}
	}
}

func readHexArray(sc *scanner.Scanner) ([][]byte, error) {
	var out [][]byte
	for {
		tok, err := sc.Next()
		if err != nil {
			return nil, err
		}
		if tok.Type == scanner.TokenKeyword && tok.Value == "]" {
			return out, nil
		}
		if b, ok := tok.Value.([]byte); ok {
			out = append(out, b)
		}
	}
}

// incrementLast bumps the final UTF-16 unit of a bfrange destination.
func incrementLast(b []byte) {
	for i := len(b) - 1; i >= 0; i-- {
		b[i]++
		if b[i] != 0 {
			return
		}
	}
}

// Lookup returns the text for one complete code.
func (m *CMap) Lookup(code []byte) (string, bool) {
	if m == nil {
		return "", false
	}
	s, ok := m.entries[string(code)]
	return s, ok
}

// CodeLengths returns the code lengths used by the map, longest first.
func (m *CMap) CodeLengths() []int {
	if m == nil {
		return nil
	}
	return m.lengths
}

// Len returns the number of mapped codes.
func (m *CMap) Len() int {
	if m == nil {
		return 0
	}
	return len(m.entries)
}

// BuildToUnicode writes a ToUnicode CMap for two-byte codes.
func BuildToUnicode(mapping map[uint16]string) []byte {
	codes := make([]int, 0, len(mapping))
	for c := range mapping {
		codes = append(codes, int(c))
	}
	sort.Ints(codes)

	var b bytes.Buffer
	b.WriteString("/CIDInit /ProcSet findresource begin\n12 dict begin\nbegincmap\n")
	b.WriteString("/CIDSystemInfo << /Registry (Adobe) /Ordering (UCS) /Supplement 0 >> def\n")
	b.WriteString("/CMapName /Adobe-Identity-UCS def\n/CMapType 2 def\n")
	b.WriteString("1 begincodespacerange\n<0000> <FFFF>\nendcodespacerange\n")
	for len(codes) > 0 {
		n := len(codes)
		if n > 100 {
			n = 100
		}
		fmt.Fprintf(&b, "%d beginbfchar\n", n)
		for _, c := range codes[:n] {
			fmt.Fprintf(&b, "<%04X> <%s>\n", c, utf16Hex(mapping[uint16(c)]))
		}
		b.WriteString("endbfchar\n")
		codes = codes[n:]
	}
	b.WriteString("endcmap\nCMapName currentdict /CMap defineresource pop\nend\nend\n")
	return b.Bytes()
}

var utf16BE = unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM)

// DecodeUTF16BE decodes UTF-16BE text. A leading byte order mark is
// dropped.
func DecodeUTF16BE(data []byte) string {
	if len(data)%2 != 0 {
		data = data[:len(data)-1]
	}
	if len(data) == 0 {
		return ""
	}
	out, err := utf16BE.NewDecoder().Bytes(data)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(string(out), "\ufeff")
}

func utf16Hex(s string) string {
	enc, err := utf16BE.NewEncoder().Bytes([]byte(s))
	if err != nil || len(enc) == 0 {
		return "FFFD"
	}
	return fmt.Sprintf("%X", enc)
}

func bytesToInt(b []byte) int {
	val := 0
	for _, by := range b {
		val = (val << 8) | int(by)
	}
	return val
}

func intToBytes(value int, length int) []byte {
	buf := make([]byte, length)
	for i := length - 1; i >= 0; i-- {
		buf[i] = byte(value & 0xFF)
		value >>= 8
	}
	return buf
}
