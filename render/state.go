package render

import (
	"image"
	"image/color"

	"github.com/wudi/docseal/coords"
	"github.com/wudi/docseal/extractor"
)

// graphicsState holds the subset of the PDF graphics state that affects
// pixels.
type graphicsState struct {
	CTM coords.Matrix

	FillSpace   *extractor.ColorSpace
	FillColor   []float64
	StrokeSpace *extractor.ColorSpace
	StrokeColor []float64
	FillAlpha   float64
	StrokeAlpha float64
	LineWidth   float64

	// ClipRect always applies; ClipMask refines it for non-rectangular
	// clips. Both are immutable once set so states can share them.
	ClipRect image.Rectangle
	ClipMask *image.Alpha

	Text textState
}

type textState struct {
	Font       *extractor.Font
	Size       float64
	CharSpace  float64
	WordSpace  float64
	HScale     float64
	Leading    float64
	Rise       float64
	RenderMode int
	Matrix     coords.Matrix
	LineMatrix coords.Matrix
}

func newGraphicsState(base coords.Matrix, bounds image.Rectangle) graphicsState {
	return graphicsState{
		CTM:         base,
		FillSpace:   extractor.DeviceGray,
		FillColor:   []float64{0},
		StrokeSpace: extractor.DeviceGray,
		StrokeColor: []float64{0},
		FillAlpha:   1,
		StrokeAlpha: 1,
		LineWidth:   1,
		ClipRect:    bounds,
		Text: textState{
			HScale: 1,
			Matrix: coords.Identity(),
		},
	}
}

// fillPaint returns the colour for fills, false when the fill is a
// pattern we do not paint.
func (gs *graphicsState) fillPaint() (color.NRGBA, bool) {
	return paint(gs.FillSpace, gs.FillColor, gs.FillAlpha)
}

func (gs *graphicsState) strokePaint() (color.NRGBA, bool) {
	return paint(gs.StrokeSpace, gs.StrokeColor, gs.StrokeAlpha)
}

func paint(cs *extractor.ColorSpace, comps []float64, alpha float64) (color.NRGBA, bool) {
	if cs == nil || cs.N == 0 || alpha <= 0 {
		return color.NRGBA{}, false
	}
	r, g, b := cs.RGB(comps)
	a := alpha
	if a > 1 {
		a = 1
	}
	return color.NRGBA{R: r, G: g, B: b, A: uint8(a*255 + 0.5)}, true
}
