package writer

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/wudi/regionedit/ir/raw"
)

// SerializeObject renders an indirect object definition.
func SerializeObject(ref raw.ObjectRef, obj raw.Object) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%d %d obj\n", ref.Num, ref.Gen)
	if obj == nil {
		buf.WriteString("null")
	} else {
		buf.Write(Serialize(obj))
	}
	buf.WriteString("\nendobj\n")
	return buf.Bytes()
}

// Serialize renders a direct object. Dictionary keys are written in sorted
// order so output is deterministic. Stream /Length is rewritten to match
// the payload.
func Serialize(o raw.Object) []byte {
	var b bytes.Buffer
	writeObject(&b, o)
	return b.Bytes()
}

func writeObject(b *bytes.Buffer, o raw.Object) {
	switch v := o.(type) {
	case raw.NameObj:
		b.WriteString(EscapeName(v.Value()))
	case raw.NumberObj:
		if v.IsInteger() {
			b.WriteString(strconv.FormatInt(v.Int(), 10))
		} else {
			b.WriteString(FormatNumber(v.Float()))
		}
	case raw.BoolObj:
		if v.Value() {
			b.WriteString("true")
		} else {
			b.WriteString("false")
		}
	case raw.NullObj:
		b.WriteString("null")
	case raw.StringObj:
		if v.IsHex() {
			b.WriteByte('<')
			fmt.Fprintf(b, "%X", v.Value())
			b.WriteByte('>')
			return
		}
		b.Write(escapeLiteralString(v.Value()))
	case *raw.ArrayObj:
		b.WriteByte('[')
		for i, it := range v.Items {
			if i > 0 {
				b.WriteByte(' ')
			}
			writeObject(b, it)
		}
		b.WriteByte(']')
	case *raw.DictObj:
		writeDict(b, v)
	case *raw.StreamObj:
		dict := raw.Dict()
		if v.Dict != nil {
			dict = v.Dict.Clone()
		}
		dict.SetKey("Length", raw.NumberInt(int64(len(v.Data))))
		writeDict(b, dict)
		b.WriteString("\nstream\n")
		b.Write(v.Data)
		b.WriteString("\nendstream")
	case raw.RefObj:
		fmt.Fprintf(b, "%d %d R", v.Ref().Num, v.Ref().Gen)
	default:
		b.WriteString("null")
	}
}

func writeDict(b *bytes.Buffer, d *raw.DictObj) {
	b.WriteString("<<")
	for _, k := range d.SortedKeys() {
		b.WriteString(EscapeName(k))
		b.WriteByte(' ')
		writeObject(b, d.KV[k])
	}
	b.WriteString(">>")
}

// FormatNumber writes a real with at most six decimals and no exponent.
func FormatNumber(f float64) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "0"
	}
	s := strconv.FormatFloat(f, 'f', 6, 64)
	s = strings.TrimRight(s, "0")
	s = strings.TrimSuffix(s, ".")
	if s == "-0" || s == "" {
		return "0"
	}
	return s
}

// EscapeName renders a name with #xx escapes for delimiters and bytes
// outside the printable range.
func EscapeName(name string) string {
	var b strings.Builder
	b.WriteByte('/')
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c < '!' || c > '~' || strings.IndexByte("#()<>[]{}/%", c) >= 0 {
			fmt.Fprintf(&b, "#%02X", c)
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

func escapeLiteralString(rawBytes []byte) []byte {
	var b bytes.Buffer
	b.WriteByte('(')
	for _, ch := range rawBytes {
		switch ch {
		case '\\', '(', ')':
			b.WriteByte('\\')
			b.WriteByte(ch)
		case '\n':
			b.WriteString("\\n")
		case '\r':
			b.WriteString("\\r")
		case '\t':
			b.WriteString("\\t")
		case '\b':
			b.WriteString("\\b")
		case '\f':
			b.WriteString("\\f")
		default:
			if ch < 0x20 || ch >= 0x80 {
				fmt.Fprintf(&b, "\\%03o", ch)
			} else {
				b.WriteByte(ch)
			}
		}
	}
	b.WriteByte(')')
	return b.Bytes()
}
