package scanner

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

func newScanner(t *testing.T, data string, cfg Config) Scanner {
	t.Helper()
	return New([]byte(data), cfg)
}

func nextToken(t *testing.T, s Scanner) Token {
	t.Helper()
	tok, err := s.Next()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return tok
}

func TestScanner_BasicTokens(t *testing.T) {
	s := newScanner(t, "%PDF-1.7\n1 0 obj\n<< /Name /Value /Nums [1 2.5 -3] /Flag true /Null null /Ref 4 0 R >>\nendobj", Config{})

	want := []struct {
		typ TokenType
		val interface{}
	}{
		{TokenNumber, int64(1)},
		{TokenNumber, int64(0)},
		{TokenKeyword, "obj"},
		{TokenDict, "<<"},
		{TokenName, "Name"},
		{TokenName, "Value"},
		{TokenName, "Nums"},
		{TokenArray, "["},
		{TokenNumber, int64(1)},
		{TokenNumber, 2.5},
		{TokenNumber, int64(-3)},
		{TokenKeyword, "]"},
		{TokenName, "Flag"},
		{TokenBoolean, true},
		{TokenName, "Null"},
		{TokenNull, nil},
		{TokenName, "Ref"},
		{TokenRef, Ref{Num: 4, Gen: 0}},
		{TokenKeyword, ">>"},
		{TokenKeyword, "endobj"},
	}
	for i, w := range want {
		tok := nextToken(t, s)
		if tok.Type != w.typ || tok.Value != w.val {
			t.Fatalf("token %d: expected %v %v, got %v %v", i, w.typ, w.val, tok.Type, tok.Value)
		}
	}
	if _, err := s.Next(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF, got %v", err)
	}
}

func TestScanner_Strings(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []byte
		hex  bool
	}{
		{"escapes", `(Hi\n\050\051\t)`, []byte("Hi\n()\t"), false},
		{"nested parens", "(a(b)c)", []byte("a(b)c"), false},
		{"line continuation", "(Line\\\r\ncontinued)", []byte("Linecontinued"), false},
		{"octal", `(\101\1012)`, []byte("AA2"), false},
		{"hex", "<48 65 6c6c 6f>", []byte("Hello"), true},
		{"hex odd length", "<48656c6c6f3>", []byte("Hello0"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok := nextToken(t, newScanner(t, tt.in, Config{}))
			if tok.Type != TokenString {
				t.Fatalf("expected string, got %v", tok.Type)
			}
			if got, _ := tok.Value.([]byte); !bytes.Equal(got, tt.want) {
				t.Fatalf("unexpected string: %q", got)
			}
			if tok.Hex != tt.hex {
				t.Fatalf("unexpected hex flag: %v", tok.Hex)
			}
		})
	}
}

func TestScanner_NameHexEscapes(t *testing.T) {
	tok := nextToken(t, newScanner(t, "/Name#20With#23Hash", Config{}))
	if tok.Type != TokenName || tok.Value != "Name With#Hash" {
		t.Fatalf("unexpected name decode: %v", tok.Value)
	}
}

func TestScanner_StreamUsesDeclaredLength(t *testing.T) {
	s := newScanner(t, "stream\nab endstream\nxx\nendstream", Config{})
	s.SetNextStreamLength(2)
	tok := nextToken(t, s)
	if tok.Type != TokenStream {
		t.Fatalf("expected stream, got %v", tok.Type)
	}
	if got := tok.Value.([]byte); string(got) != "ab" {
		t.Fatalf("unexpected payload %q", got)
	}
}

func TestScanner_StreamWithoutLengthScansForEndstream(t *testing.T) {
	s := newScanner(t, "stream\r\nBT (x) Tj ET\r\nendstream", Config{})
	tok := nextToken(t, s)
	if got := tok.Value.([]byte); string(got) != "BT (x) Tj ET" {
		t.Fatalf("unexpected payload %q", got)
	}
}

func TestScanner_StreamTooLong(t *testing.T) {
	s := newScanner(t, "stream\n0123456789\nendstream", Config{MaxStreamLength: 4})
	if _, err := s.Next(); !errors.Is(err, ErrStreamTooLong) {
		t.Fatalf("expected ErrStreamTooLong, got %v", err)
	}
}

func TestScanner_InlineImage(t *testing.T) {
	s := newScanner(t, "BI /W 1 /H 1 ID \x00\xff\x10\nEI Q", Config{})
	var payload []byte
	for {
		tok, err := s.Next()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if tok.Type == TokenInlineImage {
			payload = tok.Value.([]byte)
			break
		}
	}
	if !bytes.Equal(payload, []byte{0x00, 0xff, 0x10}) {
		t.Fatalf("unexpected inline payload %v", payload)
	}
	if tok := nextToken(t, s); tok.Value != "Q" {
		t.Fatalf("expected Q after inline image, got %v", tok.Value)
	}
}

func TestScanner_DepthLimit(t *testing.T) {
	s := newScanner(t, "[[[1]]]", Config{MaxArrayDepth: 2})
	var err error
	for i := 0; i < 3 && err == nil; i++ {
		_, err = s.Next()
	}
	if !errors.Is(err, ErrDepthExceeded) {
		t.Fatalf("expected ErrDepthExceeded, got %v", err)
	}
}

func TestScanner_ContentOperators(t *testing.T) {
	s := newScanner(t, "q 1 0 0 1 72 720 cm T* ' \" Q", Config{})
	var ops []string
	for {
		tok, err := s.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if tok.Type == TokenKeyword {
			ops = append(ops, tok.Value.(string))
		}
	}
	want := []string{"q", "cm", "T*", "'", "\"", "Q"}
	if len(ops) != len(want) {
		t.Fatalf("unexpected operators %v", ops)
	}
	for i := range want {
		if ops[i] != want[i] {
			t.Fatalf("unexpected operators %v", ops)
		}
	}
}
