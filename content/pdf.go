package content

import (
	"context"
	"fmt"
	"sync"

	"github.com/wudi/docseal/extractor"
	"github.com/wudi/docseal/filters"
	"github.com/wudi/docseal/ir/decoded"
	"github.com/wudi/docseal/ir/raw"
	"github.com/wudi/docseal/observability"
	"github.com/wudi/docseal/render"
	"github.com/wudi/docseal/security"
)

// PDF is a portable document. Parsing happens on first use and is shared
// by the text and image leaves.
type PDF struct {
	data []byte

	mu  sync.Mutex
	doc *extractor.Extractor
}

// NewPDF wraps data without parsing it.
func NewPDF(data []byte) *PDF { return &PDF{data: data} }

func (p *PDF) Variant() Variant       { return VariantPDF }
func (p *PDF) MIME() string           { return "application/pdf" }
func (p *PDF) Len() int               { return len(p.data) }
func (p *PDF) RegionsSupported() bool { return true }

// Open parses the document. Failures are decode-failure errors and are
// not cached, so a cancelled first call does not poison later ones.
func (p *PDF) Open(ctx context.Context, env *Env) (*extractor.Extractor, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.doc != nil {
		return p.doc, nil
	}
	var (
		limits   filters.Limits
		password string
	)
	if env != nil {
		limits, password = env.Limits, env.Password
	}
	doc, err := parsePDF(ctx, p.data, limits, password)
	if err != nil {
		return nil, fail(KindDecodeFailure, "open pdf", err)
	}
	env.logger().Debug("pdf parsed",
		observability.Int("bytes", len(p.data)),
		observability.Int("pages", len(doc.Pages())),
	)
	p.doc = doc
	return doc, nil
}

func parsePDF(ctx context.Context, data []byte, limits filters.Limits, password string) (*extractor.Extractor, error) {
	rawDoc, err := raw.NewParser(raw.ParserConfig{}).Parse(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	if rawDoc.Encrypted {
		if err := security.Decrypt(ctx, rawDoc, password); err != nil {
			return nil, fmt.Errorf("decrypt: %w", err)
		}
	}
	dec, err := decoded.NewDecoder(filters.NewDefaultPipeline(limits)).Decode(ctx, rawDoc)
	if err != nil {
		return nil, fmt.Errorf("decode streams: %w", err)
	}
	return extractor.New(dec)
}

// Text reads every page's text runs: runs joined by a space, pages by a
// newline.
func (p *PDF) Text(ctx context.Context, env *Env) (string, error) {
	doc, err := p.Open(ctx, env)
	if err != nil {
		return "", err
	}
	text, err := doc.Text(ctx)
	if err != nil {
		return "", fail(KindDecodeFailure, "pdf text", err)
	}
	return text, nil
}

// Page renders the first page at the canonical scale.
func (p *PDF) Page(ctx context.Context, env *Env) (*render.Page, error) {
	doc, err := p.Open(ctx, env)
	if err != nil {
		return nil, err
	}
	var r render.Renderer
	if env != nil {
		r = env.Renderer
	}
	if r == nil {
		return nil, &Error{Kind: KindRenderFailure, Op: "pdf page", Err: fmt.Errorf("no renderer configured")}
	}
	page, err := r.Render(ctx, doc, 0, env.scale())
	if err != nil {
		return nil, fail(KindRenderFailure, "pdf page", err)
	}
	return page, nil
}
