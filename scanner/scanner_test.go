package scanner

import (
	"errors"
	"io"
	"testing"

	"github.com/wudi/regionedit/recovery"
)

func collect(t *testing.T, src string, cfg Config) []Token {
	t.Helper()
	s := New([]byte(src), cfg)
	var out []Token
	for {
		tok, err := s.Next()
		if errors.Is(err, io.EOF) {
			return out
		}
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		out = append(out, tok)
	}
}

func TestScanner_BasicTokens(t *testing.T) {
	toks := collect(t, "%PDF-1.7\n1 0 obj\n<< /Name /Va#6Cue /Nums [1 -2.5 3] /Flag true /Ref 4 0 R /N null >>\nendobj", Config{})
	want := []TokenType{
		TokenNumber, TokenNumber, TokenKeyword, TokenDict,
		TokenName, TokenName,
		TokenName, TokenArray, TokenNumber, TokenNumber, TokenNumber, TokenKeyword,
		TokenName, TokenBoolean,
		TokenName, TokenRef,
		TokenName, TokenNull,
		TokenKeyword, TokenKeyword,
	}
	if len(toks) != len(want) {
		t.Fatalf("got %d tokens, want %d: %+v", len(toks), len(want), toks)
	}
	for i, typ := range want {
		if toks[i].Type != typ {
			t.Fatalf("token %d: got %v want %v (%+v)", i, toks[i].Type, typ, toks[i])
		}
	}
	if toks[5].Value != "Value" {
		t.Fatalf("name escape not decoded: %v", toks[5].Value)
	}
	if toks[9].Value != -2.5 {
		t.Fatalf("real not parsed: %v", toks[9].Value)
	}
	if ref := toks[15].Value.(Ref); ref.Num != 4 || ref.Gen != 0 {
		t.Fatalf("unexpected ref %+v", ref)
	}
}

func TestScanner_Strings(t *testing.T) {
	toks := collect(t, `(a\(b\)c \101\n) <48 65 6C6C6F> (nested (paren))`, Config{})
	if got := string(toks[0].Value.([]byte)); got != "a(b)c A\n" {
		t.Fatalf("literal = %q", got)
	}
	if !toks[1].Hex || string(toks[1].Value.([]byte)) != "Hello" {
		t.Fatalf("hex = %+v", toks[1])
	}
	if got := string(toks[2].Value.([]byte)); got != "nested (paren)" {
		t.Fatalf("nested = %q", got)
	}
}

func TestScanner_StreamDeclaredLength(t *testing.T) {
	// payload contains the word endstream; the declared length wins
	src := "stream\nab endstream cd\nendstream\nendobj"
	s := New([]byte(src), Config{})
	s.SetNextStreamLength(int64(len("ab endstream cd")))
	tok, err := s.Next()
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if tok.Type != TokenStream || string(tok.Value.([]byte)) != "ab endstream cd" {
		t.Fatalf("unexpected stream %+v", tok)
	}
	if tok, _ = s.Next(); tok.Value != "endobj" {
		t.Fatalf("expected endobj after stream, got %+v", tok)
	}
}

func TestScanner_StreamWrongLengthFallsBack(t *testing.T) {
	s := New([]byte("stream\r\nBT ET\r\nendstream"), Config{})
	s.SetNextStreamLength(100)
	tok, err := s.Next()
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if string(tok.Value.([]byte)) != "BT ET" {
		t.Fatalf("payload = %q", tok.Value)
	}
}

func TestScanner_ContentOperators(t *testing.T) {
	toks := collect(t, "0 0 1 RG 1 0 0 1 100 700 Tm T* '", Config{})
	var ops []string
	for _, tok := range toks {
		if tok.Type == TokenKeyword {
			ops = append(ops, tok.Value.(string))
		}
		if tok.Type == TokenRef {
			t.Fatalf("operator RG mistaken for a reference")
		}
	}
	if len(ops) != 4 || ops[0] != "RG" || ops[1] != "Tm" || ops[2] != "T*" || ops[3] != "'" {
		t.Fatalf("unexpected operators %v", ops)
	}
}

func TestScanner_InlineImage(t *testing.T) {
	toks := collect(t, "BI /W 1 /H 1 ID \x00\xff\x10 EI Q", Config{})
	var sawImage bool
	for _, tok := range toks {
		if tok.Type == TokenInlineImage {
			sawImage = true
		}
	}
	if !sawImage || toks[len(toks)-1].Value != "Q" {
		t.Fatalf("inline image not skipped: %+v", toks)
	}
}

func TestScanner_RecoveryFixesUnterminatedString(t *testing.T) {
	if _, err := New([]byte("(abc"), Config{}).Next(); err == nil {
		t.Fatalf("expected error without recovery")
	}
	lenient := &recovery.LenientStrategy{}
	tok, err := New([]byte("(abc"), Config{Recovery: lenient}).Next()
	if err != nil {
		t.Fatalf("lenient scan failed: %v", err)
	}
	if string(tok.Value.([]byte)) != "abc" {
		t.Fatalf("value = %q", tok.Value)
	}
	if len(lenient.Issues()) != 1 {
		t.Fatalf("expected one recorded issue, got %d", len(lenient.Issues()))
	}
}
