package raw

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/wudi/regionedit/recovery"
	"github.com/wudi/regionedit/scanner"
)

// ParserConfig controls raw parsing behavior.
type ParserConfig struct {
	Scanner scanner.Config
}

// NewParser constructs a raw.Parser that scans the whole file linearly.
// Cross-reference tables are not consulted; every "n g obj" definition is
// collected and a later definition replaces an earlier one, which is how an
// incremental update supersedes the objects it rewrites.
func NewParser(cfg ParserConfig) Parser {
	return &parserImpl{cfg: cfg}
}

// Parse is a convenience wrapper around NewParser(cfg).Parse.
func Parse(ctx context.Context, data []byte, cfg ParserConfig) (*Document, error) {
	return NewParser(cfg).Parse(ctx, data)
}

type parserImpl struct {
	cfg ParserConfig
}

// ErrNoObjects is returned when the input holds no indirect objects.
var ErrNoObjects = errors.New("no pdf objects found")

func (p *parserImpl) Parse(ctx context.Context, data []byte) (*Document, error) {
	s := scanner.New(data, p.cfg.Scanner)
	tr := &tokenReader{s: s}
	s.SetRecoveryLocation(recovery.Location{})

	doc := &Document{
		Objects:   make(map[ObjectRef]Object),
		Offsets:   make(map[ObjectRef]int64),
		Version:   headerVersion(data),
		StartXRef: -1,
	}
	var trailers []*DictObj

	for n := 0; ; n++ {
		if n%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		tok, err := tr.next()
		if err == io.EOF {
			break
		}
		if err != nil {
			if p.tolerate(err, tok.Pos) {
				continue
			}
			return nil, err
		}
		if tok.Type == scanner.TokenKeyword {
			switch tok.Value {
			case "trailer":
				if d, err := p.parseTrailer(tr); err == nil {
					trailers = append(trailers, d)
				}
			case "startxref":
				if nt, err := tr.next(); err == nil {
					if off, ok := toInt(nt.Value); ok && nt.Type == scanner.TokenNumber {
						doc.StartXRef = off
					} else {
						tr.unread(nt)
					}
				}
			}
			continue
		}
		if tok.Type != scanner.TokenNumber {
			continue
		}
		objNum64, ok := toInt(tok.Value)
		if !ok {
			continue
		}
		objNum := int(objNum64)

		genTok, err := tr.next()
		if err != nil {
			if err == io.EOF {
				break
			}
			continue
		}
		if genTok.Type != scanner.TokenNumber {
			tr.unread(genTok)
			continue
		}
		gen64, ok := toInt(genTok.Value)
		if !ok {
			continue
		}
		gen := int(gen64)

		kwTok, err := tr.next()
		if err != nil {
			if err == io.EOF {
				break
			}
			continue
		}
		if kwTok.Type != scanner.TokenKeyword || kwTok.Value != "obj" {
			tr.unread(kwTok)
			tr.unread(genTok)
			continue
		}

		s.SetRecoveryLocation(recovery.Location{ObjectNum: objNum, ObjectGen: gen})

		obj, err := parseObject(tr)
		if err != nil {
			werr := fmt.Errorf("parse object %d %d: %w", objNum, gen, err)
			if p.tolerate(werr, tok.Pos) {
				continue
			}
			return nil, werr
		}

		// Streams: if the next token is a stream payload, wrap the dictionary.
		if dict, ok := obj.(*DictObj); ok {
			if n, ok := dict.Lookup("Length").(Number); ok && n.IsInteger() && len(tr.buf) == 0 {
				s.SetNextStreamLength(n.Int())
			}
			if streamTok, err := tr.next(); err == nil {
				if streamTok.Type == scanner.TokenStream {
					obj = NewStream(dict, copyBytes(streamTok.Value))
				} else {
					tr.unread(streamTok)
				}
			}
			s.SetNextStreamLength(-1)
		}

		// Consume optional endobj
		if t, err := tr.next(); err == nil {
			if t.Type != scanner.TokenKeyword || t.Value != "endobj" {
				tr.unread(t)
			}
		}

		ref := ObjectRef{Num: objNum, Gen: gen}
		doc.Objects[ref] = obj
		doc.Offsets[ref] = tok.Pos
		if st, ok := obj.(*StreamObj); ok && isXRefStream(st) {
			trailers = append(trailers, st.Dict)
		}
	}

	if len(doc.Objects) == 0 {
		return nil, ErrNoObjects
	}
	doc.Trailer = mergeTrailers(trailers)
	if doc.Trailer.Lookup("Root") == nil {
		if root, ok := findCatalog(doc); ok {
			doc.Trailer.SetKey("Root", RefObj{R: root})
		}
	}
	doc.Encrypted = doc.Trailer.Lookup("Encrypt") != nil
	return doc, nil
}

// tolerate consults the recovery strategy for errors outside the scanner.
func (p *parserImpl) tolerate(err error, pos int64) bool {
	if p.cfg.Scanner.Recovery == nil {
		return false
	}
	act := p.cfg.Scanner.Recovery.OnError(err, recovery.Location{ByteOffset: pos, Component: "parser"})
	return act != recovery.ActionFail
}

func (p *parserImpl) parseTrailer(tr *tokenReader) (*DictObj, error) {
	tok, err := tr.next()
	if err != nil {
		return nil, err
	}
	if tok.Type != scanner.TokenDict {
		tr.unread(tok)
		return nil, errors.New("trailer without dictionary")
	}
	obj, err := parseDict(tr)
	if err != nil {
		return nil, err
	}
	return obj.(*DictObj), nil
}

// mergeTrailers folds trailers in file order so that keys from later
// sections override earlier ones while keys they omit survive.
func mergeTrailers(trailers []*DictObj) *DictObj {
	out := Dict()
	for _, t := range trailers {
		for k, v := range t.KV {
			switch k {
			case "Type", "W", "Index", "Length", "Filter", "DecodeParms":
				// xref stream plumbing, not trailer data
				continue
			}
			out.KV[k] = v
		}
	}
	return out
}

func isXRefStream(st *StreamObj) bool {
	n, ok := st.Dict.Lookup("Type").(Name)
	return ok && n.Value() == "XRef"
}

func findCatalog(doc *Document) (ObjectRef, bool) {
	var best ObjectRef
	var bestOff int64 = -1
	for ref, obj := range doc.Objects {
		d, ok := obj.(*DictObj)
		if !ok {
			continue
		}
		if n, ok := d.Lookup("Type").(Name); ok && n.Value() == "Catalog" {
			if off := doc.Offsets[ref]; off > bestOff {
				best, bestOff = ref, off
			}
		}
	}
	return best, bestOff >= 0
}

func headerVersion(data []byte) string {
	limit := len(data)
	if limit > 1024 {
		limit = 1024
	}
	i := bytes.Index(data[:limit], []byte("%PDF-"))
	if i < 0 {
		return ""
	}
	v := data[i+5:]
	end := 0
	for end < len(v) && end < 4 && (v[end] == '.' || (v[end] >= '0' && v[end] <= '9')) {
		end++
	}
	return string(v[:end])
}

// ParseObjects parses a sequence of direct objects, as found in object
// streams and content stream operands.
func ParseObjects(data []byte, cfg scanner.Config) ([]Object, error) {
	tr := &tokenReader{s: scanner.New(data, cfg)}
	var out []Object
	for {
		tok, err := tr.next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		tr.unread(tok)
		obj, err := parseObject(tr)
		if err != nil {
			return out, err
		}
		out = append(out, obj)
	}
}

// ObjectFromToken converts a single scalar token into an object.
func ObjectFromToken(tok scanner.Token) (Object, bool) {
	switch tok.Type {
	case scanner.TokenName:
		if v, ok := tok.Value.(string); ok {
			return NameObj{Val: v}, true
		}
	case scanner.TokenNumber:
		switch v := tok.Value.(type) {
		case int64:
			return NumberObj{I: v, IsInt: true}, true
		case float64:
			return NumberObj{F: v}, true
		}
	case scanner.TokenBoolean:
		if v, ok := tok.Value.(bool); ok {
			return BoolObj{V: v}, true
		}
	case scanner.TokenNull:
		return NullObj{}, true
	case scanner.TokenString:
		if b, ok := tok.Value.([]byte); ok {
			return StringObj{Bytes: b, Hex: tok.Hex}, true
		}
	case scanner.TokenRef:
		if v, ok := tok.Value.(scanner.Ref); ok {
			return RefObj{R: ObjectRef{Num: v.Num, Gen: v.Gen}}, true
		}
	}
	return nil, false
}

func parseObject(tr *tokenReader) (Object, error) {
	tok, err := tr.next()
	if err != nil {
		return nil, err
	}
	switch tok.Type {
	case scanner.TokenArray:
		return parseArray(tr)
	case scanner.TokenDict:
		return parseDict(tr)
	}
	if obj, ok := ObjectFromToken(tok); ok {
		return obj, nil
	}
	return nil, fmt.Errorf("unexpected token %v at offset %d", tok.Value, tok.Pos)
}

func parseArray(tr *tokenReader) (Object, error) {
	arr := &ArrayObj{}
	for {
		tok, err := tr.next()
		if err != nil {
			return nil, err
		}
		if tok.Type == scanner.TokenKeyword && tok.Value == "]" {
			break
		}
		tr.unread(tok)
		item, err := parseObject(tr)
		if err != nil {
			return nil, err
		}
		arr.Append(item)
	}
	return arr, nil
}

func parseDict(tr *tokenReader) (Object, error) {
	d := Dict()
	for {
		tok, err := tr.next()
		if err != nil {
			return nil, err
		}
		if tok.Type == scanner.TokenKeyword && tok.Value == ">>" {
			break
		}
		if tok.Type != scanner.TokenName {
			return nil, fmt.Errorf("expected name in dict, got %v at offset %d", tok.Value, tok.Pos)
		}
		key, _ := tok.Value.(string)
		val, err := parseObject(tr)
		if err != nil {
			return nil, err
		}
		// a null value is equivalent to an absent key
		if _, isNull := val.(NullObj); isNull {
			continue
		}
		d.Set(NameObj{Val: key}, val)
	}
	return d, nil
}

type tokenReader struct {
	s   *scanner.Scanner
	buf []scanner.Token
}

func (r *tokenReader) next() (scanner.Token, error) {
	if l := len(r.buf); l > 0 {
		t := r.buf[l-1]
		r.buf = r.buf[:l-1]
		return t, nil
	}
	return r.s.Next()
}

func (r *tokenReader) unread(tok scanner.Token) {
	r.buf = append(r.buf, tok)
}

func toInt(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	default:
		return 0, false
	}
}

func copyBytes(v interface{}) []byte {
	b, ok := v.([]byte)
	if !ok {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
