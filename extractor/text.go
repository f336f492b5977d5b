package extractor

import (
	"context"
	"fmt"
	"strings"

	"github.com/wudi/docseal/ir/raw"
)

// maxFormDepth limits nested form XObjects.
const maxFormDepth = 12

// tjSpaceThreshold is the TJ adjustment, in thousandths of an em, that
// reads as a word gap.
const tjSpaceThreshold = 200

// PageText captures the text runs of one page in content order.
type PageText struct {
	Page int
	Runs []string
}

// Content joins the runs with single spaces.
func (p PageText) Content() string { return strings.Join(p.Runs, " ") }

// ExtractText returns the text runs of every page. Each show operator
// (Tj, TJ, ', ") yields one run; form XObjects are followed.
func (e *Extractor) ExtractText(ctx context.Context) ([]PageText, error) {
	out := make([]PageText, 0, len(e.pages))
	fonts := e.NewFontCache()
	for _, page := range e.pages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := e.PageContent(page)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", page.Index+1, err)
		}
		w := &textWalker{e: e, fonts: fonts, seen: make(map[*raw.DictObj]bool)}
		if err := w.walk(data, page.Resources, 0); err != nil {
			return nil, fmt.Errorf("page %d: %w", page.Index+1, err)
		}
		out = append(out, PageText{Page: page.Index, Runs: w.runs})
	}
	return out, nil
}

// Text returns the whole document text: runs joined by spaces, pages by
// newlines.
func (e *Extractor) Text(ctx context.Context) (string, error) {
	pages, err := e.ExtractText(ctx)
	if err != nil {
		return "", err
	}
	parts := make([]string, len(pages))
	for i, p := range pages {
		parts[i] = p.Content()
	}
	return strings.Join(parts, "\n"), nil
}

type textWalker struct {
	e     *Extractor
	fonts *FontCache
	runs  []string
	seen  map[*raw.DictObj]bool
}

func (w *textWalker) walk(data []byte, res *raw.DictObj, depth int) error {
	ops, err := ParseContent(data)
	if err != nil {
		return err
	}
	font := defaultFont()
	var stack []*Font
	for _, op := range ops {
		switch op.Name {
		case "q":
			stack = append(stack, font)
		case "Q":
			if n := len(stack); n > 0 {
				font = stack[n-1]
				stack = stack[:n-1]
			}
		case "Tf":
			font = w.fonts.Get(res, op.NameOperand(0))
		case "Tj", "'", "\"":
			w.runs = append(w.runs, font.Text(lastString(op.Operands)))
		case "TJ":
			w.runs = append(w.runs, w.arrayText(font, op.Operands))
		case "Do":
			if err := w.form(res, op.NameOperand(0), depth); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *textWalker) arrayText(font *Font, operands []raw.Object) string {
	if len(operands) == 0 {
		return ""
	}
	arr, _ := operands[len(operands)-1].(*raw.ArrayObj)
	if arr == nil {
		return ""
	}
	var b strings.Builder
	for _, item := range arr.Items {
		switch v := item.(type) {
		case raw.StringObj:
			b.WriteString(font.Text(v.Bytes))
		case raw.NumberObj:
			if v.Float() <= -tjSpaceThreshold && b.Len() > 0 && !strings.HasSuffix(b.String(), " ") {
				b.WriteByte(' ')
			}
		}
	}
	return b.String()
}

func (w *textWalker) form(res *raw.DictObj, name string, depth int) error {
	xo, ok := w.e.LookupXObject(res, name)
	if !ok || xo.Subtype != "Form" || depth >= maxFormDepth || w.seen[xo.Dict] {
		return nil
	}
	data, _, err := w.e.StreamData(xo.Ref)
	if err != nil {
		return fmt.Errorf("form %s: %w", name, err)
	}
	formRes := xo.Resources
	if formRes == nil {
		formRes = res
	}
	w.seen[xo.Dict] = true
	defer delete(w.seen, xo.Dict)
	return w.walk(data, formRes, depth+1)
}

func lastString(operands []raw.Object) []byte {
	if len(operands) == 0 {
		return nil
	}
	s, _ := operands[len(operands)-1].(raw.StringObj)
	return s.Bytes
}

// FontCache memoizes fonts per dictionary. It is not safe for concurrent
// use; each walk owns one.
type FontCache struct {
	e     *Extractor
	fonts map[*raw.DictObj]*Font
}

// NewFontCache returns an empty cache bound to e.
func (e *Extractor) NewFontCache() *FontCache {
	return &FontCache{e: e, fonts: make(map[*raw.DictObj]*Font)}
}

// Get resolves the font resource name against res.
func (c *FontCache) Get(res *raw.DictObj, name string) *Font {
	dict := c.e.raw.Dict(c.e.raw.Dict(res.Get("Font")).Get(name))
	if dict == nil {
		return defaultFont()
	}
	if f, ok := c.fonts[dict]; ok {
		return f
	}
	f := c.e.LoadFont(dict)
	c.fonts[dict] = f
	return f
}
