package render

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/wudi/docseal/coords"
	"github.com/wudi/docseal/extractor"
	"github.com/wudi/docseal/filters"
	"github.com/wudi/docseal/ir/raw"
	"github.com/wudi/docseal/observability"
)

const (
	maxFormDepth = 12
	// ctxCheckEvery is how many operators run between cancellation checks.
	ctxCheckEvery = 512
)

// Raster is the built-in Renderer. It paints fills, strokes, clips, images,
// forms, annotation appearances and text (Type3 glyph procedures, or a
// bundled sans-serif face for everything else). Shadings and pattern
// paints are skipped.
type Raster struct {
	maxPixels int64
	pipeline  *filters.Pipeline
	logger    observability.Logger
}

// Option configures a Raster.
type Option func(*Raster)

// WithMaxPixels bounds width*height of a canvas.
func WithMaxPixels(n int64) Option {
	return func(r *Raster) {
		if n > 0 {
			r.maxPixels = n
		}
	}
}

// WithPipeline sets the filter pipeline used for inline images.
func WithPipeline(p *filters.Pipeline) Option {
	return func(r *Raster) {
		if p != nil {
			r.pipeline = p
		}
	}
}

func WithLogger(l observability.Logger) Option {
	return func(r *Raster) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRaster returns a Raster with default limits.
func NewRaster(opts ...Option) *Raster {
	r := &Raster{
		maxPixels: DefaultMaxPixels,
		pipeline:  filters.NewDefaultPipeline(filters.Limits{}),
		logger:    observability.NopLogger{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Render paints page index of doc. The canvas is trunc(width*scale) by
// trunc(height*scale) pixels of the rotated crop box on opaque white.
func (r *Raster) Render(ctx context.Context, doc *extractor.Extractor, index int, scale float64) (*Page, error) {
	if !(scale > 0) || math.IsInf(scale, 0) {
		return nil, fmt.Errorf("render: invalid scale %v", scale)
	}
	page, err := doc.Page(index)
	if err != nil {
		return nil, err
	}
	w, h := page.Size()
	cw, ch := int(w*scale), int(h*scale)
	if cw <= 0 || ch <= 0 {
		return nil, ErrEmptyCanvas
	}
	if int64(cw)*int64(ch) > r.maxPixels {
		return nil, fmt.Errorf("%w: %dx%d", ErrCanvasTooLarge, cw, ch)
	}
	bounds := image.Rect(0, 0, cw, ch)
	canvas := image.NewRGBA(bounds)
	draw.Draw(canvas, bounds, image.White, image.Point{}, draw.Src)

	st := &raster{
		ctx:    ctx,
		e:      doc,
		canvas: canvas,
		cfg:    r,
		fonts:  doc.NewFontCache(),
		glyphs: newGlyphCache(),
		seen:   map[*raw.DictObj]bool{},
	}
	base := baseMatrix(page.Box(), page.Rotate, scale)
	data, err := doc.PageContent(page)
	if err != nil {
		return nil, fmt.Errorf("page %d content: %w", index, err)
	}
	if err := st.run(data, page.Resources, newGraphicsState(base, bounds), 0); err != nil {
		return nil, err
	}
	for _, ap := range doc.Appearances(page) {
		gs := newGraphicsState(ap.Matrix.Multiply(base), bounds)
		if err := st.form(&gs, ap.Form, page.Resources, 0); err != nil {
			return nil, err
		}
	}
	out := image.NewNRGBA(bounds)
	draw.Draw(out, bounds, canvas, image.Point{}, draw.Src)
	r.logger.Debug("page rendered",
		observability.Int("page", index),
		observability.Int("width", cw),
		observability.Int("height", ch),
	)
	return &Page{Image: out}, nil
}

// baseMatrix maps default user space onto the canvas: crop box origin to
// the top-left corner, y flipped, then the page rotation applied clockwise.
func baseMatrix(box coords.Rect, rotate int, s float64) coords.Matrix {
	switch rotate {
	case 90:
		return coords.Matrix{0, s, s, 0, -box.LLY * s, -box.LLX * s}
	case 180:
		return coords.Matrix{-s, 0, 0, s, box.URX * s, -box.LLY * s}
	case 270:
		return coords.Matrix{0, -s, -s, 0, box.URY * s, box.URX * s}
	default:
		return coords.Matrix{s, 0, 0, -s, -box.LLX * s, box.URY * s}
	}
}

// raster is the state of one Render call.
type raster struct {
	ctx    context.Context
	e      *extractor.Extractor
	canvas *image.RGBA
	cfg    *Raster
	fonts  *extractor.FontCache
	glyphs *glyphCache
	seen   map[*raw.DictObj]bool
	ops    int
}

func (r *raster) run(data []byte, res *raw.DictObj, gs graphicsState, depth int) error {
	ops, err := extractor.ParseContent(data)
	if err != nil {
		return err
	}
	var (
		stack []graphicsState
		p     path
		clip  bool
	)
	finish := func(fill, stroke, closeFirst bool) {
		if closeFirst {
			p.closePath()
		}
		if fill {
			if col, ok := gs.fillPaint(); ok {
				r.fill(&gs, p.polygons(), col)
			}
		}
		if stroke {
			if col, ok := gs.strokePaint(); ok {
				width := math.Max(gs.LineWidth*gs.CTM.ScaleFactor(), 1)
				r.fill(&gs, p.strokePolygons(width), col)
			}
		}
		if clip {
			r.clip(&gs, &p)
			clip = false
		}
		p.reset()
	}
	pt := func(x, y float64) coords.Point { return gs.CTM.Transform(coords.Point{X: x, Y: y}) }

	for _, op := range ops {
		r.ops++
		if r.ops%ctxCheckEvery == 0 {
			if err := r.ctx.Err(); err != nil {
				return err
			}
		}
		switch op.Name {
		case "q":
			stack = append(stack, gs)
		case "Q":
			if n := len(stack); n > 0 {
				gs = stack[n-1]
				stack = stack[:n-1]
			}
		case "cm":
			if v := op.Floats(); len(v) == 6 {
				gs.CTM = coords.Matrix{v[0], v[1], v[2], v[3], v[4], v[5]}.Multiply(gs.CTM)
			}
		case "w":
			gs.LineWidth = op.Float(0)
		case "gs":
			r.extGState(&gs, res, op.NameOperand(0))

		case "m":
			p.moveTo(pt(op.Float(0), op.Float(1)))
		case "l":
			p.lineTo(pt(op.Float(0), op.Float(1)))
		case "c":
			p.curveTo(pt(op.Float(0), op.Float(1)), pt(op.Float(2), op.Float(3)), pt(op.Float(4), op.Float(5)))
		case "v":
			end := pt(op.Float(2), op.Float(3))
			p.curveTo(p.cur, pt(op.Float(0), op.Float(1)), end)
		case "y":
			end := pt(op.Float(2), op.Float(3))
			p.curveTo(pt(op.Float(0), op.Float(1)), end, end)
		case "h":
			p.closePath()
		case "re":
			x, y, w, h := op.Float(0), op.Float(1), op.Float(2), op.Float(3)
			p.moveTo(pt(x, y))
			p.lineTo(pt(x+w, y))
			p.lineTo(pt(x+w, y+h))
			p.lineTo(pt(x, y+h))
			p.closePath()
		case "W", "W*":
			clip = true
		case "n":
			finish(false, false, false)
		case "f", "F", "f*":
			finish(true, false, true)
		case "S":
			finish(false, true, false)
		case "s":
			finish(false, true, true)
		case "B", "B*":
			finish(true, true, false)
		case "b", "b*":
			finish(true, true, true)

		case "g", "rg", "k":
			gs.FillSpace, gs.FillColor = deviceColor(op.Name), op.Floats()
		case "G", "RG", "K":
			gs.StrokeSpace, gs.StrokeColor = deviceColor(op.Name), op.Floats()
		case "cs":
			gs.FillSpace, gs.FillColor = r.colorSpace(res, op.NameOperand(0))
		case "CS":
			gs.StrokeSpace, gs.StrokeColor = r.colorSpace(res, op.NameOperand(0))
		case "sc", "scn":
			gs.FillColor = op.Floats()
		case "SC", "SCN":
			gs.StrokeColor = op.Floats()

		case "BT":
			gs.Text.Matrix = coords.Identity()
			gs.Text.LineMatrix = coords.Identity()
		case "Tf":
			gs.Text.Font = r.fonts.Get(res, op.NameOperand(0))
			gs.Text.Size = op.Float(1)
		case "Tc":
			gs.Text.CharSpace = op.Float(0)
		case "Tw":
			gs.Text.WordSpace = op.Float(0)
		case "Tz":
			gs.Text.HScale = op.Float(0) / 100
		case "TL":
			gs.Text.Leading = op.Float(0)
		case "Ts":
			gs.Text.Rise = op.Float(0)
		case "Tr":
			gs.Text.RenderMode = int(op.Float(0))
		case "Td":
			gs.Text.nextLine(op.Float(0), op.Float(1))
		case "TD":
			gs.Text.Leading = -op.Float(1)
			gs.Text.nextLine(op.Float(0), op.Float(1))
		case "Tm":
			if v := op.Floats(); len(v) == 6 {
				gs.Text.LineMatrix = coords.Matrix{v[0], v[1], v[2], v[3], v[4], v[5]}
				gs.Text.Matrix = gs.Text.LineMatrix
			}
		case "T*":
			gs.Text.nextLine(0, -gs.Text.Leading)
		case "Tj":
			if err := r.show(&gs, res, stringOperand(op.Operands), depth); err != nil {
				return err
			}
		case "'":
			gs.Text.nextLine(0, -gs.Text.Leading)
			if err := r.show(&gs, res, stringOperand(op.Operands), depth); err != nil {
				return err
			}
		case "\"":
			gs.Text.WordSpace = op.Float(0)
			gs.Text.CharSpace = op.Float(1)
			gs.Text.nextLine(0, -gs.Text.Leading)
			if err := r.show(&gs, res, stringOperand(op.Operands), depth); err != nil {
				return err
			}
		case "TJ":
			if err := r.showArray(&gs, res, op.Operands, depth); err != nil {
				return err
			}

		case "Do":
			if err := r.xobject(&gs, res, op.NameOperand(0), depth); err != nil {
				return err
			}
		case "BI":
			if op.Inline == nil {
				continue
			}
			asset, err := r.e.InlineImage(r.ctx, op.Inline, res, r.cfg.pipeline)
			if err != nil {
				if cerr := r.ctx.Err(); cerr != nil {
					return cerr
				}
				r.cfg.logger.Debug("inline image skipped", observability.Error("error", err))
				continue
			}
			r.drawImage(&gs, asset)
		}
	}
	return nil
}

func (ts *textState) nextLine(tx, ty float64) {
	ts.LineMatrix = coords.Translate(tx, ty).Multiply(ts.LineMatrix)
	ts.Matrix = ts.LineMatrix
}

func stringOperand(operands []raw.Object) []byte {
	if len(operands) == 0 {
		return nil
	}
	s, _ := operands[len(operands)-1].(raw.StringObj)
	return s.Bytes
}

func deviceColor(op string) *extractor.ColorSpace {
	switch op {
	case "rg", "RG":
		return extractor.DeviceRGB
	case "k", "K":
		return extractor.DeviceCMYK
	default:
		return extractor.DeviceGray
	}
}

func (r *raster) colorSpace(res *raw.DictObj, name string) (*extractor.ColorSpace, []float64) {
	cs, err := r.e.ColorSpace(raw.NameLiteral(name), res)
	if err != nil {
		r.cfg.logger.Debug("colour space fallback", observability.String("name", name), observability.Error("error", err))
		cs = extractor.DeviceGray
	}
	return cs, cs.InitialColor()
}

func (r *raster) extGState(gs *graphicsState, res *raw.DictObj, name string) {
	doc := r.e.Raw()
	dict := doc.Dict(r.e.Resource(res, "ExtGState", name))
	if dict == nil {
		return
	}
	if v, ok := doc.Number(dict.Get("LW")); ok {
		gs.LineWidth = v
	}
	if v, ok := doc.Number(dict.Get("ca")); ok {
		gs.FillAlpha = v
	}
	if v, ok := doc.Number(dict.Get("CA")); ok {
		gs.StrokeAlpha = v
	}
}

func (r *raster) fill(gs *graphicsState, polys [][]coords.Point, col color.NRGBA) {
	if len(polys) == 0 {
		return
	}
	area := pixelBounds(polys).Intersect(gs.ClipRect)
	if area.Empty() {
		return
	}
	mask := rasterize(polys, area)
	intersectMask(mask, gs.ClipMask)
	draw.DrawMask(r.canvas, area, image.NewUniform(col), image.Point{}, mask, area.Min, draw.Over)
}

// clip narrows the clip region to p. Rectangles stay exact; anything else
// becomes a coverage mask over the current clip bounds.
func (r *raster) clip(gs *graphicsState, p *path) {
	if rect, ok := p.axisRect(); ok {
		gs.ClipRect = gs.ClipRect.Intersect(rect)
		return
	}
	polys := p.polygons()
	area := gs.ClipRect.Intersect(pixelBounds(polys))
	mask := rasterize(polys, area)
	intersectMask(mask, gs.ClipMask)
	gs.ClipRect = area
	gs.ClipMask = mask
}

func (r *raster) xobject(gs *graphicsState, res *raw.DictObj, name string, depth int) error {
	xo, ok := r.e.LookupXObject(res, name)
	if !ok {
		return nil
	}
	switch xo.Subtype {
	case "Image":
		asset, err := r.e.ImageXObject(xo.Ref, res)
		if err != nil {
			r.cfg.logger.Debug("image skipped", observability.String("name", name), observability.Error("error", err))
			return nil
		}
		r.drawImage(gs, asset)
	case "Form":
		child := *gs
		child.CTM = extractor.MatrixFromObject(r.e.Raw(), xo.Dict.Get("Matrix")).Multiply(gs.CTM)
		return r.form(&child, xo, res, depth)
	}
	return nil
}

// form runs a form XObject with gs already mapping form space to device
// space. The form's BBox clips its output.
func (r *raster) form(gs *graphicsState, xo extractor.XObject, res *raw.DictObj, depth int) error {
	if depth >= maxFormDepth || r.seen[xo.Dict] {
		return nil
	}
	data, _, err := r.e.StreamData(xo.Ref)
	if err != nil {
		r.cfg.logger.Debug("form skipped", observability.Error("error", err))
		return nil
	}
	if bbox, ok := extractor.RectFromObject(r.e.Raw(), xo.Dict.Get("BBox")); ok {
		var p path
		p.moveTo(gs.CTM.Transform(coords.Point{X: bbox.LLX, Y: bbox.LLY}))
		p.lineTo(gs.CTM.Transform(coords.Point{X: bbox.URX, Y: bbox.LLY}))
		p.lineTo(gs.CTM.Transform(coords.Point{X: bbox.URX, Y: bbox.URY}))
		p.lineTo(gs.CTM.Transform(coords.Point{X: bbox.LLX, Y: bbox.URY}))
		p.closePath()
		r.clip(gs, &p)
	}
	formRes := xo.Resources
	if formRes == nil {
		formRes = res
	}
	r.seen[xo.Dict] = true
	defer delete(r.seen, xo.Dict)
	return r.run(data, formRes, *gs, depth+1)
}
