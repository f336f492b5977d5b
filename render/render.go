// Package render rasterizes PDF pages onto RGBA canvases.
package render

import (
	"context"
	"errors"
	"image"
	"image/draw"

	"github.com/wudi/docseal/extractor"
)

var (
	ErrCanvasTooLarge = errors.New("canvas exceeds pixel limit")
	ErrEmptyCanvas    = errors.New("canvas has no pixels")
)

// DefaultMaxPixels bounds a canvas to roughly an A3 page at 300 DPI.
const DefaultMaxPixels int64 = 5000 * 7000

// Page is a rendered canvas. The image is non-premultiplied RGBA with its
// origin at (0, 0) and no row padding.
type Page struct {
	Image *image.NRGBA
}

// Width returns the canvas width in pixels.
func (p *Page) Width() int { return p.Image.Rect.Dx() }

// Height returns the canvas height in pixels.
func (p *Page) Height() int { return p.Image.Rect.Dy() }

// Pix returns the row-major RGBA bytes, four per pixel.
func (p *Page) Pix() []byte { return p.Image.Pix }

// FromImage draws img onto a fresh canvas at its native pixel grid.
func FromImage(img image.Image) *Page {
	b := img.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)
	return &Page{Image: out}
}

// Renderer turns one page of a parsed document into a canvas. scale is
// device pixels per PDF point.
type Renderer interface {
	Render(ctx context.Context, doc *extractor.Extractor, index int, scale float64) (*Page, error)
}
