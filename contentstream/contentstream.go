// Package contentstream parses page content streams into operations,
// traces their text and fill geometry, and builds new streams.
package contentstream

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/wudi/regionedit/ir/raw"
	"github.com/wudi/regionedit/recovery"
	"github.com/wudi/regionedit/scanner"
	"github.com/wudi/regionedit/writer"
)

// Operation is one operator with its operands. Inline images keep their
// parameter dictionary as the single operand of "BI" and the image bytes in
// InlineData.
type Operation struct {
	Operator   string
	Operands   []raw.Object
	InlineData []byte
}

// ErrUnbalanced is reported for a dangling array or dictionary operand.
var ErrUnbalanced = errors.New("unbalanced content stream operand")

// Parse splits a content stream into operations. Malformed tokens are
// skipped; operands left over at the end of the stream are dropped.
func Parse(data []byte) ([]Operation, error) {
	return ParseWithConfig(data, scanner.Config{Recovery: &recovery.LenientStrategy{}})
}

// ParseWithConfig is Parse with explicit scanner limits and recovery.
func ParseWithConfig(data []byte, cfg scanner.Config) ([]Operation, error) {
	s := scanner.New(data, cfg)
	var (
		ops      []Operation
		operands []raw.Object
		stack    []raw.Object // open arrays and dicts
		keys     []string     // pending dict key per open dict, "" when none
	)
	push := func(obj raw.Object) error {
		if len(stack) == 0 {
			operands = append(operands, obj)
			return nil
		}
		switch c := stack[len(stack)-1].(type) {
		case *raw.ArrayObj:
			c.Append(obj)
		case *raw.DictObj:
			k := keys[len(keys)-1]
			if k == "" {
				name, ok := obj.(raw.NameObj)
				if !ok {
					return fmt.Errorf("dictionary key is %s, not a name", obj.Type())
				}
				keys[len(keys)-1] = name.Value()
				return nil
			}
			if _, null := obj.(raw.NullObj); !null {
				c.SetKey(k, obj)
			}
			keys[len(keys)-1] = ""
		}
		return nil
	}

	for {
		tok, err := s.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return ops, err
		}
		switch tok.Type {
		case scanner.TokenArray:
			stack = append(stack, raw.NewArray())
			keys = append(keys, "")
			continue
		case scanner.TokenDict:
			stack = append(stack, raw.Dict())
			keys = append(keys, "")
			continue
		case scanner.TokenInlineImage:
			dict := raw.Dict()
			for i := 0; i+1 < len(operands); i += 2 {
				if k, ok := operands[i].(raw.NameObj); ok {
					dict.SetKey(k.Value(), operands[i+1])
				}
			}
			payload, _ := tok.Value.([]byte)
			ops = append(ops, Operation{Operator: "BI", Operands: []raw.Object{dict}, InlineData: append([]byte(nil), payload...)})
			operands = nil
			continue
		case scanner.TokenKeyword:
			kw, _ := tok.Value.(string)
			switch kw {
			case "]", ">>":
				if len(stack) == 0 {
					continue
				}
				top := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				keys = keys[:len(keys)-1]
				if err := push(top); err != nil {
					return ops, err
				}
				continue
			case "BI":
				operands = nil
				continue
			}
			if len(stack) > 0 {
				// operators never appear inside arrays; treat the keyword as
				// a stray token and close what is open
				stack, keys = stack[:0], keys[:0]
			}
			ops = append(ops, Operation{Operator: kw, Operands: operands})
			operands = nil
			continue
		}
		obj, ok := raw.ObjectFromToken(tok)
		if !ok {
			continue
		}
		if err := push(obj); err != nil {
			return ops, err
		}
	}
	if len(stack) > 0 {
		return ops, ErrUnbalanced
	}
	return ops, nil
}

// Serialize renders operations back into content stream syntax, one
// operation per line.
func Serialize(ops []Operation) []byte {
	var buf bytes.Buffer
	for _, op := range ops {
		if op.Operator == "BI" {
			buf.WriteString("BI")
			if len(op.Operands) == 1 {
				if d, ok := op.Operands[0].(*raw.DictObj); ok {
					for _, k := range d.SortedKeys() {
						buf.WriteByte(' ')
						buf.WriteString(writer.EscapeName(k))
						buf.WriteByte(' ')
						buf.Write(writer.Serialize(d.KV[k]))
					}
				}
			}
			buf.WriteString(" ID ")
			buf.Write(op.InlineData)
			buf.WriteString("\nEI\n")
			continue
		}
		for _, o := range op.Operands {
			buf.Write(writer.Serialize(o))
			buf.WriteByte(' ')
		}
		buf.WriteString(op.Operator)
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}
