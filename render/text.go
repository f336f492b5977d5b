package render

import (
	"github.com/wudi/docseal/coords"
	"github.com/wudi/docseal/extractor"
	"github.com/wudi/docseal/ir/raw"
	"github.com/wudi/docseal/observability"
)

// Text render modes that paint nothing.
const (
	modeInvisible     = 3
	modeInvisibleClip = 7
)

// renderMatrix is Trm: text space to device space.
func (gs *graphicsState) renderMatrix() coords.Matrix {
	ts := &gs.Text
	return coords.Matrix{ts.Size * ts.HScale, 0, 0, ts.Size, 0, ts.Rise}.Multiply(ts.Matrix).Multiply(gs.CTM)
}

func (r *raster) show(gs *graphicsState, res *raw.DictObj, data []byte, depth int) error {
	ts := &gs.Text
	if ts.Font == nil {
		ts.Font = r.fonts.Get(res, "")
	}
	f := ts.Font
	visible := ts.RenderMode != modeInvisible && ts.RenderMode != modeInvisibleClip
	for _, g := range f.Glyphs(data) {
		trm := gs.renderMatrix()
		width := g.Width
		if f.Type3() {
			if visible {
				if err := r.type3Glyph(gs, f, g, trm, res, depth); err != nil {
					return err
				}
			}
		} else if out := r.glyphs.outline(g.Text); out != nil {
			if width == 0 {
				width = out.advance
			}
			if visible {
				r.paintGlyph(gs, out, trm)
			}
		}
		adv := width*ts.Size + ts.CharSpace
		if g.Space {
			adv += ts.WordSpace
		}
		ts.Matrix = coords.Translate(adv*ts.HScale, 0).Multiply(ts.Matrix)
	}
	return nil
}

func (r *raster) showArray(gs *graphicsState, res *raw.DictObj, operands []raw.Object, depth int) error {
	if len(operands) == 0 {
		return nil
	}
	arr, _ := operands[len(operands)-1].(*raw.ArrayObj)
	for i := 0; i < arr.Len(); i++ {
		switch v := arr.Get(i).(type) {
		case raw.StringObj:
			if err := r.show(gs, res, v.Bytes, depth); err != nil {
				return err
			}
		case raw.NumberObj:
			ts := &gs.Text
			tx := -v.Float() / 1000 * ts.Size * ts.HScale
			ts.Matrix = coords.Translate(tx, 0).Multiply(ts.Matrix)
		}
	}
	return nil
}

func (r *raster) paintGlyph(gs *graphicsState, g *glyphOutline, trm coords.Matrix) {
	if len(g.polys) == 0 {
		return
	}
	polys := make([][]coords.Point, len(g.polys))
	for i, poly := range g.polys {
		out := make([]coords.Point, len(poly))
		for j, p := range poly {
			out[j] = trm.Transform(p)
		}
		polys[i] = out
	}
	col, ok := gs.fillPaint()
	// stroke-only text is approximated by a fill in the stroke colour
	if gs.Text.RenderMode == 1 || gs.Text.RenderMode == 5 {
		col, ok = gs.strokePaint()
	}
	if ok {
		r.fill(gs, polys, col)
	}
}

// type3Glyph runs the glyph procedure named by g under FontMatrix x Trm.
func (r *raster) type3Glyph(gs *graphicsState, f *extractor.Font, g extractor.Glyph, trm coords.Matrix, res *raw.DictObj, depth int) error {
	if g.Name == "" || depth >= maxFormDepth {
		return nil
	}
	doc := r.e.Raw()
	proc := doc.Dict(f.Dict.Get("CharProcs")).Get(g.Name)
	if proc == nil {
		return nil
	}
	data, _, err := r.e.StreamData(proc)
	if err != nil {
		r.cfg.logger.Debug("glyph procedure skipped", observability.String("glyph", g.Name), observability.Error("error", err))
		return nil
	}
	glyphRes := doc.Dict(f.Dict.Get("Resources"))
	if glyphRes == nil {
		glyphRes = res
	}
	child := *gs
	child.CTM = f.Matrix().Multiply(trm)
	child.Text = textState{HScale: 1, Matrix: coords.Identity()}
	return r.run(data, glyphRes, child, depth+1)
}
