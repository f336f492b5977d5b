// Package pipeline sequences extraction: base leaves, optional region
// leaves, then the Merkle combination.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wudi/docseal/config"
	"github.com/wudi/docseal/content"
	"github.com/wudi/docseal/filters"
	"github.com/wudi/docseal/observability"
	"github.com/wudi/docseal/ocr"
	"github.com/wudi/docseal/region"
	"github.com/wudi/docseal/render"
)

// ErrTooLarge is returned for documents above the configured size limit.
var ErrTooLarge = errors.New("document exceeds size limit")

// Pipeline extracts HashBundles. Its collaborators are fixed at
// construction and it holds no per-call state, so one Pipeline may serve
// concurrent calls.
type Pipeline struct {
	renderer     render.Renderer
	engine       ocr.Engine
	ocrOpts      []ocr.InputOption
	logger       observability.Logger
	tracer       observability.Tracer
	scale        float64
	imageRegions bool
	limits       filters.Limits
	maxFileSize  int64
	password     string

	defaultRenderer bool
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithRenderer sets the PDF renderer.
func WithRenderer(r render.Renderer) Option {
	return func(p *Pipeline) {
		if r != nil {
			p.renderer = r
		}
	}
}

// WithOCR sets the engine used for the text leaf of raster input.
func WithOCR(e ocr.Engine) Option {
	return func(p *Pipeline) {
		if e != nil {
			p.engine = e
		}
	}
}

// WithOCRLanguages sets the languages passed to the engine.
func WithOCRLanguages(langs ...string) Option {
	return func(p *Pipeline) {
		if len(langs) > 0 {
			p.ocrOpts = append(p.ocrOpts, ocr.WithLanguages(langs...))
		}
	}
}

// WithOCROptions appends engine hints such as page segmentation mode.
func WithOCROptions(opts ...ocr.InputOption) Option {
	return func(p *Pipeline) { p.ocrOpts = append(p.ocrOpts, opts...) }
}

// WithLogger sets the logger.
func WithLogger(l observability.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithTracer sets the tracer.
func WithTracer(t observability.Tracer) Option {
	return func(p *Pipeline) {
		if t != nil {
			p.tracer = t
		}
	}
}

// WithScale sets device pixels per PDF point for the canonical page.
func WithScale(s float64) Option {
	return func(p *Pipeline) {
		if s > 0 {
			p.scale = s
		}
	}
}

// WithDPI sets the canonical page resolution.
func WithDPI(dpi float64) Option { return WithScale(dpi / 72) }

// WithImageRegions allows signature and stamp regions on raster input.
// Off by default: region selection is offered for PDF pages only.
func WithImageRegions(allow bool) Option {
	return func(p *Pipeline) { p.imageRegions = allow }
}

// WithLimits bounds stream decoding.
func WithLimits(l filters.Limits) Option {
	return func(p *Pipeline) { p.limits = l }
}

// WithMaxFileSize rejects documents larger than n bytes. Zero disables the
// check.
func WithMaxFileSize(n int64) Option {
	return func(p *Pipeline) { p.maxFileSize = n }
}

// WithPassword sets the password tried on encrypted PDFs, as user
// password first and then as owner password.
func WithPassword(pw string) Option {
	return func(p *Pipeline) { p.password = pw }
}

// New builds a Pipeline. Without options it renders PDFs with the built-in
// rasterizer at 300 DPI and has OCR disabled, so raster input fails with
// an ocr-failure until an engine is supplied.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		engine: ocr.Disabled{},
		logger: observability.NopLogger{},
		tracer: observability.NopTracer(),
		scale:  content.DefaultScale,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.renderer == nil {
		p.renderer = render.NewRaster(render.WithLogger(p.logger))
		p.defaultRenderer = true
	}
	return p
}

// NewFromConfig builds a Pipeline from cfg. The OCR engine is passed in
// because it may need native libraries; opts are applied last.
func NewFromConfig(cfg *config.Config, engine ocr.Engine, opts ...Option) *Pipeline {
	if cfg == nil {
		cfg = config.Default()
	}
	limits := filters.Limits{
		MaxDecompressedSize: cfg.Limits.MaxDecompressedSize,
		MaxDecodeTime:       cfg.Limits.MaxDecodeTime,
	}
	base := []Option{
		WithDPI(cfg.Render.DPI),
		WithOCR(engine),
		WithOCRLanguages(cfg.OCR.Languages...),
		WithOCROptions(ocr.WithTesseractWhitelist(cfg.OCR.Whitelist)),
		WithImageRegions(cfg.Pipeline.AllowImageRegions),
		WithLimits(limits),
		WithMaxFileSize(cfg.Limits.MaxFileSize),
	}
	if cfg.OCR.PSM > 0 {
		base = append(base, WithOCROptions(ocr.WithTesseractPSM(cfg.OCR.PSM)))
	}
	p := New(append(base, opts...)...)
	if p.defaultRenderer {
		p.renderer = render.NewRaster(
			render.WithMaxPixels(cfg.Render.MaxPixels),
			render.WithPipeline(filters.NewDefaultPipeline(limits)),
			render.WithLogger(p.logger),
		)
	}
	return p
}

func (p *Pipeline) env() *content.Env {
	return &content.Env{
		Renderer:   p.renderer,
		OCR:        p.engine,
		OCROptions: p.ocrOpts,
		Scale:      p.scale,
		Limits:     p.limits,
		Logger:     p.logger,
		Password:   p.password,
	}
}

// ExtractBytes classifies data by mimeType (sniffed when empty) and
// extracts it.
func (p *Pipeline) ExtractBytes(ctx context.Context, data []byte, mimeType string, sig, stamp *region.Region) (Result, error) {
	if err := p.checkSize(len(data)); err != nil {
		return Result{}, err
	}
	doc, err := content.Classify(data, mimeType)
	if err != nil {
		return Result{}, err
	}
	return p.Extract(ctx, doc, sig, stamp)
}

// Extract computes the HashBundle of doc. Base leaf failures abort the
// call with no bundle. A region failure keeps the base leaves: the result
// carries them with RegionErr set and the same error is returned.
func (p *Pipeline) Extract(ctx context.Context, doc content.Document, sig, stamp *region.Region) (Result, error) {
	if doc == nil {
		return Result{}, &content.Error{Kind: content.KindUnsupportedType, Op: "extract", Err: errors.New("no document")}
	}
	ctx, span := p.tracer.StartSpan(ctx, observability.SpanExtract)
	defer span.Finish()
	span.SetTag("variant", string(doc.Variant()))

	log := p.logger.With(observability.String("variant", string(doc.Variant())))
	start := time.Now()

	if err := p.checkSize(doc.Len()); err != nil {
		span.SetError(err)
		return Result{}, err
	}
	sig, stamp = slotted(sig, region.Signature), slotted(stamp, region.Stamp)
	ignored := p.ignoreRegions(doc, sig, stamp, log)
	if ignored {
		sig, stamp = nil, nil
	}
	if err := precheck(sig, stamp); err != nil {
		span.SetError(err)
		return Result{}, err
	}

	env := p.env()
	res, err := p.base(ctx, doc, env)
	if err != nil {
		span.SetError(err)
		log.Error("extraction failed", observability.Error("error", err))
		return Result{}, err
	}
	res.RegionsIgnored = ignored
	log.Debug("base leaves extracted",
		observability.String("text_hash", res.Bundle.TextHash),
		observability.String("image_hash", res.Bundle.ImageHash),
	)

	sigHash, stampHash, err := p.regions(ctx, doc, env, res.Page, sig, stamp)
	if err != nil {
		span.SetError(err)
		if isCanceled(err) {
			return Result{}, err
		}
		log.Warn("region leaves unavailable", observability.Error("error", err))
		res.Bundle = Recombine(res.Bundle, "", "")
		res.RegionErr = err
		return res, err
	}
	res.Bundle = Recombine(res.Bundle, sigHash, stampHash)
	log.Debug("bundle combined",
		observability.String("root", res.Bundle.MerkleRoot),
		observability.Duration("elapsed", time.Since(start)),
	)
	return res, nil
}

// AddRegions computes region leaves for a document whose base leaves are
// already in prior and recombines. The text and image leaves are not
// extracted again, and prior.Page is reused when present. A nil region
// keeps the leaf prior already holds for that slot; use Recombine to drop
// a leaf. On failure the prior bundle is returned unchanged with RegionErr
// set.
func (p *Pipeline) AddRegions(ctx context.Context, prior Result, doc content.Document, sig, stamp *region.Region) (Result, error) {
	ctx, span := p.tracer.StartSpan(ctx, observability.SpanAddRegions)
	defer span.Finish()

	out := prior
	out.RegionErr = nil
	log := p.logger
	if doc != nil {
		log = log.With(observability.String("variant", string(doc.Variant())))
	}
	sig, stamp = slotted(sig, region.Signature), slotted(stamp, region.Stamp)
	if doc != nil && p.ignoreRegions(doc, sig, stamp, log) {
		out.RegionsIgnored = true
		return out, nil
	}

	fail := func(err error) (Result, error) {
		span.SetError(err)
		if isCanceled(err) {
			return prior, err
		}
		log.Warn("region leaves unavailable", observability.Error("error", err))
		out.Bundle = prior.Bundle
		out.RegionErr = err
		return out, err
	}
	if err := precheck(sig, stamp); err != nil {
		return fail(err)
	}
	if doc == nil && out.Page == nil {
		return fail(&content.Error{Kind: content.KindRenderFailure, Op: "add regions", Err: errors.New("no canonical page")})
	}
	sigHash, stampHash, err := p.regions(ctx, doc, p.env(), out.Page, sig, stamp)
	if err != nil {
		return fail(err)
	}
	if sig == nil {
		sigHash = prior.Bundle.SignatureHash
	}
	if stamp == nil {
		stampHash = prior.Bundle.StampHash
	}
	out.Bundle = Recombine(prior.Bundle, sigHash, stampHash)
	return out, nil
}

// base extracts the text and image leaves concurrently. The first failure
// cancels the other leaf.
func (p *Pipeline) base(ctx context.Context, doc content.Document, env *content.Env) (Result, error) {
	_, textOK := doc.(content.TextLeaf)
	_, imageOK := doc.(content.ImageLeaf)
	if !textOK && !imageOK {
		return Result{}, &content.Error{Kind: content.KindUnsupportedType, Op: "extract", Err: fmt.Errorf("%s has no leaves", doc.Variant())}
	}

	var res Result
	g, gctx := errgroup.WithContext(ctx)
	if textOK {
		g.Go(func() error {
			ctx, span := p.tracer.StartSpan(gctx, observability.SpanTextLeaf)
			defer span.Finish()
			h, err := content.TextHash(ctx, doc, env)
			if err != nil {
				span.SetError(err)
				return err
			}
			res.Bundle.TextHash = h
			return nil
		})
	}
	if imageOK {
		g.Go(func() error {
			ctx, span := p.tracer.StartSpan(gctx, observability.SpanImageLeaf)
			defer span.Finish()
			page, err := content.CanonicalPage(ctx, doc, env)
			if err != nil {
				span.SetError(err)
				return err
			}
			res.Page = page
			res.Bundle.ImageHash = content.ImageHash(page)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}
	return res, nil
}

// regions hashes the supplied regions against page, producing the page
// first when it is nil. Both regions share one page.
func (p *Pipeline) regions(ctx context.Context, doc content.Document, env *content.Env, page *render.Page, sig, stamp *region.Region) (string, string, error) {
	if sig == nil && stamp == nil {
		return "", "", nil
	}
	ctx, span := p.tracer.StartSpan(ctx, observability.SpanRegions)
	defer span.Finish()

	if page == nil {
		var err error
		page, err = content.CanonicalPage(ctx, doc, env)
		if err != nil {
			if isCanceled(err) {
				return "", "", err
			}
			return "", "", &content.Error{Kind: content.KindRenderFailure, Op: "regions", Err: err}
		}
	}
	var sigHash, stampHash string
	var err error
	if sig != nil {
		if sigHash, err = region.Hash(page, *sig); err != nil {
			return "", "", err
		}
	}
	if stamp != nil {
		if stampHash, err = region.Hash(page, *stamp); err != nil {
			return "", "", err
		}
	}
	return sigHash, stampHash, nil
}

// ignoreRegions reports whether regions were supplied for a document that
// does not take them, logging the ones dropped.
func (p *Pipeline) ignoreRegions(doc content.Document, sig, stamp *region.Region, log observability.Logger) bool {
	if (sig == nil && stamp == nil) || p.regionsAllowed(doc) {
		return false
	}
	log.Warn("regions ignored", observability.Bool("signature", sig != nil), observability.Bool("stamp", stamp != nil))
	return true
}

func (p *Pipeline) regionsAllowed(doc content.Document) bool {
	ps, ok := doc.(content.PageSource)
	if !ok {
		return false
	}
	return ps.RegionsSupported() || p.imageRegions
}

func (p *Pipeline) checkSize(n int) error {
	if p.maxFileSize > 0 && int64(n) > p.maxFileSize {
		return fmt.Errorf("%w: %d bytes, limit %d", ErrTooLarge, n, p.maxFileSize)
	}
	return nil
}

// slotted returns a copy of r tagged with slot when r carries none.
func slotted(r *region.Region, slot region.Slot) *region.Region {
	if r == nil {
		return nil
	}
	c := *r
	if c.Slot == "" {
		c.Slot = slot
	}
	return &c
}

// precheck rejects empty regions before any extraction work.
func precheck(regions ...*region.Region) error {
	for _, r := range regions {
		if r == nil {
			continue
		}
		if _, err := region.Validate(*r, region.Round(*r)); err != nil {
			return err
		}
	}
	return nil
}

func isCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
