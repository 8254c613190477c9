// Package scanner tokenizes PDF file bodies and content streams held in
// memory.
package scanner

import (
	"bytes"
	"errors"
	"io"
	"strconv"

	"github.com/wudi/regionedit/recovery"
)

type TokenType int

const (
	TokenDict        TokenType = iota // '<<'
	TokenArray                        // '['
	TokenName                         // '/Name'
	TokenString                       // literal or hex string
	TokenNumber                       // numeric value
	TokenBoolean                      // true/false
	TokenNull                         // null
	TokenRef                          // indirect ref '5 0 R'
	TokenStream                       // stream payload following 'stream'
	TokenInlineImage                  // inline image data between ID and EI
	TokenKeyword                      // other keywords (obj, endobj, >>, ], operators)
)

// Token is a single lexical element. Value holds string for names and
// keywords, []byte for strings and streams, int64 or float64 for numbers,
// bool for booleans and Ref for references.
type Token struct {
	Type  TokenType
	Value interface{}
	Pos   int64
	Hex   bool
}

// Ref is the value of a TokenRef.
type Ref struct{ Num, Gen int }

// Config bounds resource usage while scanning untrusted input.
type Config struct {
	MaxStringLength int64
	MaxArrayDepth   int
	MaxDictDepth    int
	MaxInlineImage  int64
	Recovery        recovery.Strategy
}

// Scanner produces tokens from a byte slice.
type Scanner struct {
	data          []byte
	pos           int64
	cfg           Config
	nextStreamLen int64
	arrayDepth    int
	dictDepth     int
	recLoc        recovery.Location
	lastAction    recovery.Action
}

// New returns a scanner over data. The slice is not copied and must not be
// modified while scanning.
func New(data []byte, cfg Config) *Scanner {
	return &Scanner{data: data, cfg: cfg, nextStreamLen: -1}
}

func (s *Scanner) Position() int64 { return s.pos }

// SetNextStreamLength hints the declared /Length of the next stream. The
// hint is only trusted when the data at that length is followed by
// endstream.
func (s *Scanner) SetNextStreamLength(n int64) { s.nextStreamLen = n }

// SetRecoveryLocation annotates subsequent recovery callbacks.
func (s *Scanner) SetRecoveryLocation(loc recovery.Location) { s.recLoc = loc }

// Next returns the next token or io.EOF.
func (s *Scanner) Next() (Token, error) {
	s.skipWSAndComments()
	if s.pos >= int64(len(s.data)) {
		return Token{}, io.EOF
	}
	start := s.pos
	c := s.data[s.pos]
	switch c {
	case '<':
		if s.peek(1) == '<' {
			s.pos += 2
			return s.emit(Token{Type: TokenDict, Value: "<<", Pos: start})
		}
		return s.scanHexString()
	case '>':
		if s.peek(1) == '>' {
			s.pos += 2
			return s.emit(Token{Type: TokenKeyword, Value: ">>", Pos: start})
		}
		s.pos++
		return s.emit(Token{Type: TokenKeyword, Value: ">", Pos: start})
	case '[':
		s.pos++
		return s.emit(Token{Type: TokenArray, Value: "[", Pos: start})
	case ']':
		s.pos++
		return s.emit(Token{Type: TokenKeyword, Value: "]", Pos: start})
	case '{', '}':
		s.pos++
		return Token{Type: TokenKeyword, Value: string(c), Pos: start}, nil
	case '(':
		return s.scanLiteralString()
	case '/':
		return s.scanName()
	}
	if isDigitStart(c) {
		return s.scanNumberOrRef()
	}
	if !isDelimiter(c) {
		return s.scanKeyword()
	}
	s.pos++
	return Token{Type: TokenKeyword, Value: string(c), Pos: start}, nil
}

func (s *Scanner) skipWSAndComments() {
	for s.pos < int64(len(s.data)) {
		c := s.data[s.pos]
		if isWhitespace(c) {
			s.pos++
			continue
		}
		if c == '%' {
			for s.pos < int64(len(s.data)) && !isEOL(s.data[s.pos]) {
				s.pos++
			}
			continue
		}
		return
	}
}

func (s *Scanner) peek(n int64) byte {
	if s.pos+n >= int64(len(s.data)) {
		return 0
	}
	return s.data[s.pos+n]
}

func (s *Scanner) scanName() (Token, error) {
	start := s.pos
	s.pos++ // '/'
	var out bytes.Buffer
	for s.pos < int64(len(s.data)) {
		c := s.data[s.pos]
		if isDelimiter(c) {
			break
		}
		if c == '#' && s.pos+2 < int64(len(s.data)) && isHex(s.data[s.pos+1]) && isHex(s.data[s.pos+2]) {
			out.WriteByte(fromHex(s.data[s.pos+1])<<4 | fromHex(s.data[s.pos+2]))
			s.pos += 3
			continue
		}
		out.WriteByte(c)
		s.pos++
	}
	return Token{Type: TokenName, Value: out.String(), Pos: start}, nil
}

func (s *Scanner) scanLiteralString() (Token, error) {
	start := s.pos
	s.pos++ // '('
	var buf bytes.Buffer
	depth := 1
	for s.pos < int64(len(s.data)) && depth > 0 {
		c := s.data[s.pos]
		switch c {
		case '\\':
			s.pos++
			if s.pos >= int64(len(s.data)) {
				continue
			}
			esc := s.data[s.pos]
			switch {
			case esc == '\r':
				s.pos++
				if s.pos < int64(len(s.data)) && s.data[s.pos] == '\n' {
					s.pos++
				}
			case esc == '\n':
				s.pos++
			case esc >= '0' && esc <= '7':
				val := 0
				for k := 0; k < 3 && s.pos < int64(len(s.data)); k++ {
					d := s.data[s.pos]
					if d < '0' || d > '7' {
						break
					}
					val = val<<3 + int(d-'0')
					s.pos++
				}
				buf.WriteByte(byte(val))
			default:
				buf.WriteByte(translateEscape(esc))
				s.pos++
			}
			continue
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				s.pos++
				continue
			}
		}
		buf.WriteByte(c)
		s.pos++
		if s.cfg.MaxStringLength > 0 && int64(buf.Len()) > s.cfg.MaxStringLength {
			return Token{}, s.recover(errors.New("literal string too long"), "literal")
		}
	}
	if depth != 0 {
		if err := s.recover(errors.New("unterminated literal string"), "literal"); err != nil && s.lastAction != recovery.ActionFix {
			return Token{}, err
		}
	}
	return Token{Type: TokenString, Value: buf.Bytes(), Pos: start}, nil
}

func (s *Scanner) scanHexString() (Token, error) {
	start := s.pos
	s.pos++ // '<'
	var nibbles []byte
	closed := false
	for s.pos < int64(len(s.data)) {
		c := s.data[s.pos]
		s.pos++
		if c == '>' {
			closed = true
			break
		}
		if isHex(c) {
			nibbles = append(nibbles, c)
		}
	}
	if !closed {
		if err := s.recover(errors.New("unterminated hex string"), "hex"); err != nil && s.lastAction != recovery.ActionFix {
			return Token{}, err
		}
	}
	if len(nibbles)%2 == 1 {
		nibbles = append(nibbles, '0')
	}
	out := make([]byte, 0, len(nibbles)/2)
	for i := 0; i < len(nibbles); i += 2 {
		out = append(out, fromHex(nibbles[i])<<4|fromHex(nibbles[i+1]))
	}
	if s.cfg.MaxStringLength > 0 && int64(len(out)) > s.cfg.MaxStringLength {
		return Token{}, s.recover(errors.New("hex string too long"), "hex")
	}
	return Token{Type: TokenString, Value: out, Pos: start, Hex: true}, nil
}

func (s *Scanner) scanKeyword() (Token, error) {
	start := s.pos
	for s.pos < int64(len(s.data)) && !isDelimiter(s.data[s.pos]) {
		s.pos++
	}
	kw := string(s.data[start:s.pos])
	switch kw {
	case "true", "false":
		return Token{Type: TokenBoolean, Value: kw == "true", Pos: start}, nil
	case "null":
		return Token{Type: TokenNull, Pos: start}, nil
	case "stream":
		return s.scanStream(start)
	case "ID":
		return s.scanInlineImage(start)
	}
	return Token{Type: TokenKeyword, Value: kw, Pos: start}, nil
}

// scanStream reads the payload that follows the 'stream' keyword.
func (s *Scanner) scanStream(start int64) (Token, error) {
	declared := s.nextStreamLen
	s.nextStreamLen = -1
	if s.pos < int64(len(s.data)) && s.data[s.pos] == '\r' {
		s.pos++
	}
	if s.pos < int64(len(s.data)) && s.data[s.pos] == '\n' {
		s.pos++
	}
	dataStart := s.pos
	needle := []byte("endstream")

	if declared >= 0 && dataStart+declared <= int64(len(s.data)) {
		end := dataStart + declared
		p := end
		for p < int64(len(s.data)) && isWhitespace(s.data[p]) {
			p++
		}
		if bytes.HasPrefix(s.data[p:], needle) {
			s.pos = p + int64(len(needle))
			return Token{Type: TokenStream, Value: s.data[dataStart:end:end], Pos: start}, nil
		}
	}

	idx := -1
	for off := dataStart; off+int64(len(needle)) <= int64(len(s.data)); {
		rel := bytes.Index(s.data[off:], needle)
		if rel < 0 {
			break
		}
		i := off + int64(rel)
		after := i + int64(len(needle))
		if (i == dataStart || isWhitespace(s.data[i-1])) && (after >= int64(len(s.data)) || isDelimiter(s.data[after])) {
			idx = int(i)
			break
		}
		off = i + 1
	}
	if idx < 0 {
		if err := s.recover(errors.New("endstream not found"), "stream"); err != nil && s.lastAction != recovery.ActionFix {
			return Token{}, err
		}
		payload := s.data[dataStart:]
		s.pos = int64(len(s.data))
		return Token{Type: TokenStream, Value: payload, Pos: start}, nil
	}
	end := idx
	if end > int(dataStart) && s.data[end-1] == '\n' {
		end--
	}
	if end > int(dataStart) && s.data[end-1] == '\r' {
		end--
	}
	s.pos = int64(idx + len(needle))
	return Token{Type: TokenStream, Value: s.data[dataStart:end:end], Pos: start}, nil
}

// scanInlineImage skips inline image data up to the EI operator.
func (s *Scanner) scanInlineImage(start int64) (Token, error) {
	if s.pos < int64(len(s.data)) && isWhitespace(s.data[s.pos]) {
		s.pos++
	}
	dataStart := s.pos
	for s.pos+1 < int64(len(s.data)) {
		if s.data[s.pos] == 'E' && s.data[s.pos+1] == 'I' &&
			s.pos > dataStart && isWhitespace(s.data[s.pos-1]) &&
			(s.pos+2 >= int64(len(s.data)) || isDelimiter(s.data[s.pos+2])) {
			payload := s.data[dataStart : s.pos-1]
			s.pos += 2
			return Token{Type: TokenInlineImage, Value: payload, Pos: start}, nil
		}
		s.pos++
		if s.cfg.MaxInlineImage > 0 && s.pos-dataStart > s.cfg.MaxInlineImage {
			return Token{}, s.recover(errors.New("inline image too long"), "inline_image")
		}
	}
	s.pos = int64(len(s.data))
	return Token{}, s.recover(errors.New("unterminated inline image"), "inline_image")
}

func (s *Scanner) scanNumberOrRef() (Token, error) {
	start := s.pos
	first := s.scanNumberString()
	if first == "" {
		s.pos++
		return Token{Type: TokenKeyword, Value: string(s.data[start]), Pos: start}, nil
	}
	// "n g R" is a reference only for two unsigned integers.
	if isUnsignedInt(first) {
		save := s.pos
		s.skipWSAndComments()
		second := s.scanNumberString()
		if isUnsignedInt(second) {
			s.skipWSAndComments()
			if s.pos < int64(len(s.data)) && s.data[s.pos] == 'R' &&
				(s.pos+1 >= int64(len(s.data)) || isDelimiter(s.data[s.pos+1])) {
				s.pos++
				n1, _ := strconv.Atoi(first)
				n2, _ := strconv.Atoi(second)
				return Token{Type: TokenRef, Value: Ref{Num: n1, Gen: n2}, Pos: start}, nil
			}
		}
		s.pos = save
	}
	if i, err := strconv.ParseInt(first, 10, 64); err == nil {
		return Token{Type: TokenNumber, Value: i, Pos: start}, nil
	}
	f, err := strconv.ParseFloat(normalizeReal(first), 64)
	if err != nil {
		return Token{}, s.recover(errors.New("malformed number "+first), "number")
	}
	return Token{Type: TokenNumber, Value: f, Pos: start}, nil
}

func (s *Scanner) scanNumberString() string {
	start := s.pos
	seenDigit := false
	for s.pos < int64(len(s.data)) {
		c := s.data[s.pos]
		if c >= '0' && c <= '9' {
			seenDigit = true
		} else if c != '+' && c != '-' && c != '.' {
			break
		}
		s.pos++
	}
	if !seenDigit {
		s.pos = start
		return ""
	}
	return string(s.data[start:s.pos])
}

// normalizeReal repairs producer quirks such as "--5" or "1.2.3".
func normalizeReal(v string) string {
	neg := false
	for len(v) > 0 && (v[0] == '-' || v[0] == '+') {
		neg = neg || v[0] == '-'
		v = v[1:]
	}
	if i := bytes.IndexByte([]byte(v), '.'); i >= 0 {
		if j := bytes.IndexByte([]byte(v[i+1:]), '.'); j >= 0 {
			v = v[:i+1+j]
		}
	}
	if neg {
		return "-" + v
	}
	return v
}

func (s *Scanner) recover(err error, loc string) error {
	if s.cfg.Recovery == nil {
		s.lastAction = recovery.ActionFail
		return err
	}
	location := s.recLoc
	location.ByteOffset = s.pos
	if location.Component != "" {
		location.Component += "->"
	}
	location.Component += "scanner:" + loc
	s.lastAction = s.cfg.Recovery.OnError(err, location)
	switch s.lastAction {
	case recovery.ActionSkip, recovery.ActionFix:
		return nil
	default:
		return err
	}
}

func (s *Scanner) emit(tok Token) (Token, error) {
	switch tok.Type {
	case TokenArray:
		s.arrayDepth++
		if s.cfg.MaxArrayDepth > 0 && s.arrayDepth > s.cfg.MaxArrayDepth {
			return Token{}, s.recover(errors.New("array depth exceeded"), "array")
		}
	case TokenDict:
		s.dictDepth++
		if s.cfg.MaxDictDepth > 0 && s.dictDepth > s.cfg.MaxDictDepth {
			return Token{}, s.recover(errors.New("dict depth exceeded"), "dict")
		}
	case TokenKeyword:
		switch tok.Value {
		case "]":
			if s.arrayDepth > 0 {
				s.arrayDepth--
			}
		case ">>":
			if s.dictDepth > 0 {
				s.dictDepth--
			}
		}
	}
	return tok, nil
}

func isUnsignedInt(v string) bool {
	if v == "" {
		return false
	}
	for i := 0; i < len(v); i++ {
		if v[i] < '0' || v[i] > '9' {
			return false
		}
	}
	return true
}

func isDigitStart(c byte) bool { return c == '+' || c == '-' || c == '.' || (c >= '0' && c <= '9') }

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func fromHex(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	}
	return 0
}

func isWhitespace(c byte) bool {
	return c == 0x00 || c == 0x09 || c == 0x0A || c == 0x0C || c == 0x0D || c == 0x20
}

func isEOL(c byte) bool { return c == '\r' || c == '\n' }

func isDelimiter(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return isWhitespace(c)
}

func translateEscape(c byte) byte {
	switch c {
	case 'n':
		return '\n'
	case 'r':
		return '\r'
	case 't':
		return '\t'
	case 'b':
		return '\b'
	case 'f':
		return '\f'
	}
	return c
}
