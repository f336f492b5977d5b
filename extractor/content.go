package extractor

import (
	"errors"
	"fmt"
	"io"

	"github.com/wudi/docseal/ir/raw"
	"github.com/wudi/docseal/scanner"
)

// Op is one content stream operator with the operands that preceded it.
type Op struct {
	Name     string
	Operands []raw.Object
	Inline   *InlineImage
}

// InlineImage carries the BI ... ID ... EI construct.
type InlineImage struct {
	Dict *raw.DictObj
	Data []byte
}

// Float returns operand i as a number, zero when missing.
func (o Op) Float(i int) float64 {
	if i < 0 || i >= len(o.Operands) {
		return 0
	}
	if n, ok := o.Operands[i].(raw.NumberObj); ok {
		return n.Float()
	}
	return 0
}

// Floats returns every operand as a number.
func (o Op) Floats() []float64 {
	out := make([]float64, len(o.Operands))
	for i := range o.Operands {
		out[i] = o.Float(i)
	}
	return out
}

// NameOperand returns operand i as a name.
func (o Op) NameOperand(i int) string {
	if i < 0 || i >= len(o.Operands) {
		return ""
	}
	n, _ := o.Operands[i].(raw.NameObj)
	return n.Val
}

// ParseContent tokenizes a content stream into operators. Malformed
// operands are dropped; the scan continues with the next token.
func ParseContent(data []byte) ([]Op, error) {
	s := scanner.New(data, scanner.Config{MaxArrayDepth: 64, MaxDictDepth: 64})
	r := raw.NewObjectReader(s)
	var ops []Op
	var operands []raw.Object
	for {
		before := s.Position()
		tok, err := r.Next()
		if errors.Is(err, io.EOF) {
			return ops, nil
		}
		if err != nil {
			if errors.Is(err, scanner.ErrInlineImageSize) || errors.Is(err, scanner.ErrDepthExceeded) {
				return ops, err
			}
			if s.Position() == before {
				return ops, fmt.Errorf("content stream stuck at %d: %w", before, err)
			}
			continue
		}
		if tok.Type != scanner.TokenKeyword {
			r.Unread(tok)
			obj, err := r.Object()
			if err != nil {
				continue
			}
			operands = append(operands, obj)
			continue
		}
		name, _ := tok.Value.(string)
		if name == "BI" {
			img, err := readInlineImage(r)
			if err != nil {
				return ops, err
			}
			ops = append(ops, Op{Name: "BI", Inline: img})
			operands = nil
			continue
		}
		ops = append(ops, Op{Name: name, Operands: operands})
		operands = nil
	}
}

func readInlineImage(r *raw.ObjectReader) (*InlineImage, error) {
	dict := raw.Dict()
	for {
		tok, err := r.Next()
		if err != nil {
			return nil, fmt.Errorf("inline image: %w", err)
		}
		switch tok.Type {
		case scanner.TokenInlineImage:
			data, _ := tok.Value.([]byte)
			return &InlineImage{Dict: dict, Data: data}, nil
		case scanner.TokenName:
			key, _ := tok.Value.(string)
			val, err := r.Object()
			if err != nil {
				return nil, fmt.Errorf("inline image entry %s: %w", key, err)
			}
			dict.Set(key, val)
		default:
			return nil, fmt.Errorf("inline image: unexpected %v", tok.Type)
		}
	}
}

// PageContent concatenates the page's content streams.
func (e *Extractor) PageContent(page Page) ([]byte, error) {
	return e.contentBytes(page.Dict.Get("Contents"))
}

func (e *Extractor) contentBytes(obj raw.Object) ([]byte, error) {
	if obj == nil {
		return nil, nil
	}
	if arr := e.raw.Array(obj); arr != nil {
		var out []byte
		for i := 0; i < arr.Len(); i++ {
			data, _, err := e.StreamData(arr.Get(i))
			if err != nil {
				return nil, fmt.Errorf("content stream %d: %w", i, err)
			}
			out = append(out, data...)
			out = append(out, '\n')
		}
		return out, nil
	}
	data, _, err := e.StreamData(obj)
	if err != nil {
		return nil, fmt.Errorf("content stream: %w", err)
	}
	return data, nil
}

// XObject describes a named entry of a resource dictionary's /XObject map.
type XObject struct {
	Ref       raw.Object
	Subtype   string
	Dict      *raw.DictObj
	Resources *raw.DictObj
}

// LookupXObject finds name in res, returning false when absent.
func (e *Extractor) LookupXObject(res *raw.DictObj, name string) (XObject, bool) {
	xobjs := e.raw.Dict(res.Get("XObject"))
	ref := xobjs.Get(name)
	if ref == nil {
		return XObject{}, false
	}
	dict := e.raw.Dict(ref)
	if dict == nil {
		return XObject{}, false
	}
	subtype, _ := e.raw.Name(dict.Get("Subtype"))
	return XObject{
		Ref:       ref,
		Subtype:   subtype,
		Dict:      dict,
		Resources: e.raw.Dict(dict.Get("Resources")),
	}, true
}

// Resource resolves res/<category>/<name>.
func (e *Extractor) Resource(res *raw.DictObj, category, name string) raw.Object {
	return e.raw.Resolve(e.raw.Dict(res.Get(category)).Get(name))
}
