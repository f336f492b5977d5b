package raw

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/wudi/docseal/scanner"
)

var (
	ErrNotPDF     = errors.New("missing %PDF- header")
	ErrNoCatalog  = errors.New("document catalog not found")
	ErrEmptyInput = errors.New("empty input")
)

// ParserConfig controls raw parsing behavior.
type ParserConfig struct {
	Scanner scanner.Config
}

// NewParser constructs a parser that recovers objects by scanning for
// "N G obj" headers instead of trusting the cross-reference table. Objects
// defined later in the file replace earlier ones, which matches the effect
// of incremental updates.
func NewParser(cfg ParserConfig) Parser {
	return &parserImpl{cfg: cfg}
}

type parserImpl struct {
	cfg ParserConfig
}

func (p *parserImpl) Parse(ctx context.Context, data []byte) (*Document, error) {
	if len(data) == 0 {
		return nil, ErrEmptyInput
	}
	version, err := headerVersion(data)
	if err != nil {
		return nil, err
	}
	s := scanner.New(data, p.cfg.Scanner)
	tr := &tokenReader{s: s}

	doc := &Document{
		Objects: make(map[ObjectRef]Object),
		Version: version,
	}
	var trailers []*DictObj

	for n := 0; ; n++ {
		if n%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		tok, err := tr.next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// Junk between objects is tolerated; the scanner has advanced.
			continue
		}
		if tok.Type == scanner.TokenKeyword && tok.Value == "trailer" {
			if obj, err := parseObject(tr); err == nil {
				if d, ok := obj.(*DictObj); ok {
					trailers = append(trailers, d)
				}
			}
			continue
		}
		if tok.Type != scanner.TokenNumber {
			continue
		}
		objNum, ok := toInt(tok.Value)
		if !ok || objNum <= 0 {
			continue
		}
		genTok, err := tr.next()
		if err != nil {
			continue
		}
		if genTok.Type != scanner.TokenNumber {
			tr.unread(genTok)
			continue
		}
		gen, _ := toInt(genTok.Value)
		kwTok, err := tr.next()
		if err != nil {
			continue
		}
		if kwTok.Type != scanner.TokenKeyword || kwTok.Value != "obj" {
			tr.unread(kwTok)
			tr.unread(genTok)
			continue
		}

		obj, err := parseObject(tr)
		if err != nil {
			continue
		}
		if dict, ok := obj.(*DictObj); ok {
			if l, ok := dict.Get("Length").(NumberObj); ok && l.IsInt {
				s.SetNextStreamLength(l.I)
			}
			if streamTok, err := tr.next(); err == nil {
				if streamTok.Type == scanner.TokenStream {
					obj = NewStream(dict, streamTok.Value.([]byte))
				} else {
					tr.unread(streamTok)
				}
			}
			s.SetNextStreamLength(-1)
			if name, _ := dict.Get("Type").(NameObj); name.Val == "XRef" {
				trailers = append(trailers, dict)
			}
		}
		if t, err := tr.next(); err == nil {
			if t.Type != scanner.TokenKeyword || t.Value != "endobj" {
				tr.unread(t)
			}
		}
		doc.Objects[ObjectRef{Num: int(objNum), Gen: int(gen)}] = obj
	}

	doc.Trailer = mergeTrailers(trailers)
	// a Root that does not resolve yet may live in an object stream
	if doc.Trailer.Get("Root") == nil {
		ref, ok := findCatalog(doc)
		if !ok {
			return nil, ErrNoCatalog
		}
		if doc.Trailer == nil {
			doc.Trailer = Dict()
		}
		doc.Trailer.Set("Root", RefObj{R: ref})
	}
	doc.Encrypted = doc.Trailer.Get("Encrypt") != nil
	return doc, nil
}

func headerVersion(data []byte) (string, error) {
	head := data
	if len(head) > 1024 {
		head = head[:1024]
	}
	idx := bytes.Index(head, []byte("%PDF-"))
	if idx < 0 {
		return "", ErrNotPDF
	}
	rest := head[idx+5:]
	end := 0
	for end < len(rest) && end < 4 && (rest[end] == '.' || (rest[end] >= '0' && rest[end] <= '9')) {
		end++
	}
	return string(rest[:end]), nil
}

// mergeTrailers returns the last trailer with keys missing from it filled
// from earlier sections.
func mergeTrailers(trailers []*DictObj) *DictObj {
	if len(trailers) == 0 {
		return nil
	}
	out := Dict()
	for _, t := range trailers {
		for k, v := range t.KV {
			out.Set(k, v)
		}
	}
	return out
}

func findCatalog(doc *Document) (ObjectRef, bool) {
	var best ObjectRef
	found := false
	for ref, obj := range doc.Objects {
		dict, ok := obj.(*DictObj)
		if !ok {
			continue
		}
		if name, _ := dict.Get("Type").(NameObj); name.Val != "Catalog" {
			continue
		}
		// highest object number wins so the choice does not depend on map order
		if !found || ref.Num > best.Num {
			best, found = ref, true
		}
	}
	return best, found
}

// ParseObject reads a single object from data. Used for object streams and
// content stream operands.
func ParseObject(data []byte) (Object, error) {
	tr := &tokenReader{s: scanner.New(data, scanner.Config{})}
	return parseObject(tr)
}

// ObjectReader reads consecutive objects from a token stream.
type ObjectReader struct {
	tr *tokenReader
}

// NewObjectReader wraps a scanner so callers can interleave raw tokens with
// parsed objects.
func NewObjectReader(s scanner.Scanner) *ObjectReader {
	return &ObjectReader{tr: &tokenReader{s: s}}
}

// Next returns the next raw token.
func (r *ObjectReader) Next() (scanner.Token, error) { return r.tr.next() }

// Unread pushes tok back so the next call returns it again.
func (r *ObjectReader) Unread(tok scanner.Token) { r.tr.unread(tok) }

// Object parses the next complete object.
func (r *ObjectReader) Object() (Object, error) { return parseObject(r.tr) }

func parseObject(tr *tokenReader) (Object, error) {
	tok, err := tr.next()
	if err != nil {
		return nil, err
	}
	return objectFromToken(tr, tok)
}

func objectFromToken(tr *tokenReader, tok scanner.Token) (Object, error) {
	switch tok.Type {
	case scanner.TokenName:
		if v, ok := tok.Value.(string); ok {
			return NameObj{Val: v}, nil
		}
	case scanner.TokenNumber:
		switch v := tok.Value.(type) {
		case int64:
			return NumberObj{I: v, IsInt: true}, nil
		case float64:
			return NumberObj{F: v}, nil
		}
	case scanner.TokenBoolean:
		if v, ok := tok.Value.(bool); ok {
			return BoolObj{V: v}, nil
		}
	case scanner.TokenNull:
		return NullObj{}, nil
	case scanner.TokenString:
		if b, ok := tok.Value.([]byte); ok {
			return StringObj{Bytes: b, Hex: tok.Hex}, nil
		}
	case scanner.TokenArray:
		return parseArray(tr)
	case scanner.TokenDict:
		return parseDict(tr)
	case scanner.TokenRef:
		if v, ok := tok.Value.(scanner.Ref); ok {
			return RefObj{R: ObjectRef{Num: v.Num, Gen: v.Gen}}, nil
		}
	}
	return nil, fmt.Errorf("unexpected token %v at %d", tok.Type, tok.Pos)
}

func parseArray(tr *tokenReader) (Object, error) {
	arr := &ArrayObj{}
	for {
		tok, err := tr.next()
		if err != nil {
			return nil, err
		}
		if tok.Type == scanner.TokenKeyword && tok.Value == "]" {
			return arr, nil
		}
		item, err := objectFromToken(tr, tok)
		if err != nil {
			return nil, err
		}
		arr.Append(item)
	}
}

func parseDict(tr *tokenReader) (Object, error) {
	d := Dict()
	for {
		tok, err := tr.next()
		if err != nil {
			return nil, err
		}
		if tok.Type == scanner.TokenKeyword && tok.Value == ">>" {
			return d, nil
		}
		if tok.Type != scanner.TokenName {
			return nil, fmt.Errorf("expected name in dict, got %v", tok.Type)
		}
		key, _ := tok.Value.(string)
		val, err := parseObject(tr)
		if err != nil {
			return nil, err
		}
		d.Set(key, val)
	}
}

type tokenReader struct {
	s   scanner.Scanner
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
	case int64:
		return n, true
	case float64:
		return int64(n), n == float64(int64(n))
	default:
		return 0, false
	}
}
