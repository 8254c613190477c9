package contentstream

import (
	"github.com/wudi/regionedit/coords"
	"github.com/wudi/regionedit/ir/raw"
)

// Builder accumulates operations for a new content stream.
type Builder struct {
	ops []Operation
}

// Op appends an arbitrary operation.
func (b *Builder) Op(operator string, operands ...raw.Object) *Builder {
	b.ops = append(b.ops, Operation{Operator: operator, Operands: operands})
	return b
}

func (b *Builder) Save() *Builder    { return b.Op("q") }
func (b *Builder) Restore() *Builder { return b.Op("Q") }

// FillRGB sets the non-stroking colour; components are in [0, 1].
func (b *Builder) FillRGB(r, g, bl float64) *Builder {
	return b.Op("rg", num(r), num(g), num(bl))
}

// Rect appends a rectangle to the current path.
func (b *Builder) Rect(r coords.Rect) *Builder {
	return b.Op("re", num(r.X), num(r.Y), num(r.Width), num(r.Height))
}

func (b *Builder) Fill() *Builder      { return b.Op("f") }
func (b *Builder) BeginText() *Builder { return b.Op("BT") }
func (b *Builder) EndText() *Builder   { return b.Op("ET") }

// Font selects a font resource and size.
func (b *Builder) Font(resource string, size float64) *Builder {
	return b.Op("Tf", raw.NameLiteral(resource), num(size))
}

// TextMatrix sets Tm and Tlm.
func (b *Builder) TextMatrix(m coords.Matrix) *Builder {
	return b.Op("Tm", num(m[0]), num(m[1]), num(m[2]), num(m[3]), num(m[4]), num(m[5]))
}

// ShowText shows one encoded string.
func (b *Builder) ShowText(codes []byte, hex bool) *Builder {
	s := raw.Str(codes)
	if hex {
		s = raw.HexStr(codes)
	}
	return b.Op("Tj", s)
}

// ShowPositioned shows strings interleaved with displacements in 1/1000 em.
func (b *Builder) ShowPositioned(items []raw.Object) *Builder {
	return b.Op("TJ", raw.NewArray(items...))
}

// Operations returns the accumulated operations.
func (b *Builder) Operations() []Operation { return b.ops }

// Bytes serializes the accumulated operations.
func (b *Builder) Bytes() []byte { return Serialize(b.ops) }

func num(v float64) raw.Object {
	if v == float64(int64(v)) && v > -1e15 && v < 1e15 {
		return raw.NumberInt(int64(v))
	}
	return raw.NumberFloat(v)
}
