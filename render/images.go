package render

import (
	"image"
	"image/color"
	"math"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/math/f64"

	"github.com/wudi/docseal/coords"
	"github.com/wudi/docseal/extractor"
)

// drawImage maps the unit square of asset through the CTM onto the canvas.
func (r *raster) drawImage(gs *graphicsState, asset *extractor.ImageAsset) {
	var src image.Image
	switch {
	case asset.Stencil != nil:
		col, ok := gs.fillPaint()
		if !ok {
			return
		}
		src = stencilImage(asset.Stencil, col)
	case asset.Image != nil:
		src = asset.Image
	default:
		return
	}
	b := src.Bounds()
	if b.Empty() {
		return
	}
	w, h := float64(b.Dx()), float64(b.Dy())
	m := coords.Matrix{1 / w, 0, 0, -1 / h, 0, 1}.Multiply(gs.CTM)
	if math.Abs(m[0]*m[3]-m[1]*m[2]) < 1e-12 {
		return
	}
	target := pixelBounds([][]coords.Point{{
		m.Transform(coords.Point{}), m.Transform(coords.Point{X: w}),
		m.Transform(coords.Point{Y: h}), m.Transform(coords.Point{X: w, Y: h}),
	}}).Intersect(gs.ClipRect)
	if target.Empty() {
		return
	}
	s2d := f64.Aff3{m[0], m[2], m[4] - m[0]*float64(b.Min.X) - m[2]*float64(b.Min.Y), m[1], m[3], m[5] - m[1]*float64(b.Min.X) - m[3]*float64(b.Min.Y)}
	opts := &xdraw.Options{}
	if gs.ClipMask != nil {
		opts.DstMask = gs.ClipMask
	}
	if asset.Stencil == nil && gs.FillAlpha < 1 {
		opts.SrcMask = image.NewUniform(color.Alpha{A: uint8(math.Max(0, gs.FillAlpha)*255 + 0.5)})
	}
	dst := r.canvas.SubImage(target).(*image.RGBA)
	xdraw.BiLinear.Transform(dst, s2d, src, b, xdraw.Over, opts)
}

// stencilImage paints col through the stencil's coverage.
func stencilImage(mask *image.Alpha, col color.NRGBA) *image.NRGBA {
	out := image.NewNRGBA(mask.Rect)
	r := mask.Rect
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			a := mask.AlphaAt(x, y).A
			if a == 0 {
				continue
			}
			out.SetNRGBA(x, y, color.NRGBA{R: col.R, G: col.G, B: col.B, A: uint8((uint16(a)*uint16(col.A) + 127) / 255)})
		}
	}
	return out
}
