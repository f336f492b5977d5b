package render

import (
	"image"
	"image/draw"
	"math"

	"golang.org/x/image/vector"

	"github.com/wudi/docseal/coords"
)

// path accumulates subpaths in device space.
type path struct {
	subpaths []subpath
	cur      coords.Point
}

type subpath struct {
	pts    []coords.Point
	closed bool
}

func (p *path) empty() bool { return len(p.subpaths) == 0 }

func (p *path) reset() { p.subpaths = p.subpaths[:0] }

func (p *path) moveTo(pt coords.Point) {
	p.subpaths = append(p.subpaths, subpath{pts: []coords.Point{pt}})
	p.cur = pt
}

func (p *path) lineTo(pt coords.Point) {
	if p.empty() {
		p.moveTo(pt)
		return
	}
	last := &p.subpaths[len(p.subpaths)-1]
	last.pts = append(last.pts, pt)
	p.cur = pt
}

func (p *path) curveTo(c1, c2, end coords.Point) {
	if p.empty() {
		p.moveTo(c1)
	}
	start := p.cur
	n := curveSteps(start, c1, c2, end)
	for i := 1; i <= n; i++ {
		t := float64(i) / float64(n)
		p.lineTo(cubicAt(start, c1, c2, end, t))
	}
}

func (p *path) closePath() {
	if p.empty() {
		return
	}
	last := &p.subpaths[len(p.subpaths)-1]
	last.closed = true
	p.cur = last.pts[0]
}

// polygons returns every subpath as an implicitly closed polygon.
func (p *path) polygons() [][]coords.Point {
	out := make([][]coords.Point, 0, len(p.subpaths))
	for _, sp := range p.subpaths {
		if len(sp.pts) >= 3 {
			out = append(out, sp.pts)
		}
	}
	return out
}

// axisRect reports whether the path is a single axis-aligned rectangle
// and returns it snapped to the pixel grid.
func (p *path) axisRect() (image.Rectangle, bool) {
	if len(p.subpaths) != 1 {
		return image.Rectangle{}, false
	}
	pts := p.subpaths[0].pts
	if len(pts) == 5 && pts[4] == pts[0] {
		pts = pts[:4]
	}
	if len(pts) != 4 {
		return image.Rectangle{}, false
	}
	for i := 0; i < 4; i++ {
		a, b := pts[i], pts[(i+1)%4]
		if a.X != b.X && a.Y != b.Y {
			return image.Rectangle{}, false
		}
	}
	minX, minY, maxX, maxY := bounds([][]coords.Point{pts})
	return image.Rect(
		int(math.Round(minX)), int(math.Round(minY)),
		int(math.Round(maxX)), int(math.Round(maxY)),
	), true
}

// strokePolygons outlines every segment as a quad of the given device
// width, with square pads at vertices to cover joins.
func (p *path) strokePolygons(width float64) [][]coords.Point {
	hw := width / 2
	var out [][]coords.Point
	for _, sp := range p.subpaths {
		pts := sp.pts
		if sp.closed && len(pts) > 1 {
			pts = append(append([]coords.Point(nil), pts...), pts[0])
		}
		if len(pts) == 1 {
			// zero-length subpath still marks a dot
			out = append(out, square(pts[0], hw))
			continue
		}
		for i := 0; i+1 < len(pts); i++ {
			a, b := pts[i], pts[i+1]
			dx, dy := b.X-a.X, b.Y-a.Y
			l := math.Hypot(dx, dy)
			if l == 0 {
				continue
			}
			nx, ny := -dy/l*hw, dx/l*hw
			out = append(out, orient([]coords.Point{
				{X: a.X + nx, Y: a.Y + ny},
				{X: b.X + nx, Y: b.Y + ny},
				{X: b.X - nx, Y: b.Y - ny},
				{X: a.X - nx, Y: a.Y - ny},
			}))
			if i > 0 {
				out = append(out, square(a, hw))
			}
		}
	}
	return out
}

func square(c coords.Point, hw float64) []coords.Point {
	return orient([]coords.Point{
		{X: c.X - hw, Y: c.Y - hw}, {X: c.X + hw, Y: c.Y - hw},
		{X: c.X + hw, Y: c.Y + hw}, {X: c.X - hw, Y: c.Y + hw},
	})
}

// orient makes the signed area positive so overlapping stroke pieces add
// up instead of cancelling.
func orient(poly []coords.Point) []coords.Point {
	var area float64
	for i := range poly {
		a, b := poly[i], poly[(i+1)%len(poly)]
		area += a.X*b.Y - b.X*a.Y
	}
	if area < 0 {
		for i, j := 0, len(poly)-1; i < j; i, j = i+1, j-1 {
			poly[i], poly[j] = poly[j], poly[i]
		}
	}
	return poly
}

func curveSteps(p0, p1, p2, p3 coords.Point) int {
	l := math.Hypot(p1.X-p0.X, p1.Y-p0.Y) + math.Hypot(p2.X-p1.X, p2.Y-p1.Y) + math.Hypot(p3.X-p2.X, p3.Y-p2.Y)
	n := int(math.Ceil(math.Sqrt(l) * 2))
	return min(max(n, 4), 128)
}

func cubicAt(p0, p1, p2, p3 coords.Point, t float64) coords.Point {
	mt := 1 - t
	a, b, c, d := mt*mt*mt, 3*mt*mt*t, 3*mt*t*t, t*t*t
	return coords.Point{
		X: a*p0.X + b*p1.X + c*p2.X + d*p3.X,
		Y: a*p0.Y + b*p1.Y + c*p2.Y + d*p3.Y,
	}
}

func quadAt(p0, p1, p2 coords.Point, t float64) coords.Point {
	mt := 1 - t
	return coords.Point{
		X: mt*mt*p0.X + 2*mt*t*p1.X + t*t*p2.X,
		Y: mt*mt*p0.Y + 2*mt*t*p1.Y + t*t*p2.Y,
	}
}

func bounds(polys [][]coords.Point) (minX, minY, maxX, maxY float64) {
	minX, minY = math.Inf(1), math.Inf(1)
	maxX, maxY = math.Inf(-1), math.Inf(-1)
	for _, poly := range polys {
		for _, p := range poly {
			minX, maxX = math.Min(minX, p.X), math.Max(maxX, p.X)
			minY, maxY = math.Min(minY, p.Y), math.Max(maxY, p.Y)
		}
	}
	return
}

// pixelBounds is the integer rectangle touched by polys.
func pixelBounds(polys [][]coords.Point) image.Rectangle {
	minX, minY, maxX, maxY := bounds(polys)
	if math.IsInf(minX, 0) || math.IsNaN(minX) || math.IsNaN(maxX) || math.IsNaN(minY) || math.IsNaN(maxY) {
		return image.Rectangle{}
	}
	const limit = 1 << 24
	clampf := func(v float64) int { return int(math.Max(-limit, math.Min(limit, v))) }
	return image.Rect(clampf(math.Floor(minX)), clampf(math.Floor(minY)), clampf(math.Ceil(maxX)), clampf(math.Ceil(maxY)))
}

// rasterize computes coverage of polys over r. Polygons are clipped to r
// first so the rasterizer only sees in-bounds edges.
func rasterize(polys [][]coords.Point, r image.Rectangle) *image.Alpha {
	mask := image.NewAlpha(r)
	if r.Empty() {
		return mask
	}
	z := vector.NewRasterizer(r.Dx(), r.Dy())
	ox, oy := float64(r.Min.X), float64(r.Min.Y)
	for _, poly := range polys {
		poly = clipPolygon(poly, r)
		if len(poly) < 3 {
			continue
		}
		z.MoveTo(float32(poly[0].X-ox), float32(poly[0].Y-oy))
		for _, p := range poly[1:] {
			z.LineTo(float32(p.X-ox), float32(p.Y-oy))
		}
		z.ClosePath()
	}
	z.DrawOp = draw.Src
	z.Draw(mask, r, image.Opaque, image.Point{})
	return mask
}

// clipPolygon is Sutherland-Hodgman against r.
func clipPolygon(poly []coords.Point, r image.Rectangle) []coords.Point {
	x0, y0, x1, y1 := float64(r.Min.X), float64(r.Min.Y), float64(r.Max.X), float64(r.Max.Y)
	edges := []struct {
		inside func(coords.Point) bool
		cross  func(a, b coords.Point) coords.Point
	}{
		{func(p coords.Point) bool { return p.X >= x0 }, func(a, b coords.Point) coords.Point { return atX(a, b, x0) }},
		{func(p coords.Point) bool { return p.X <= x1 }, func(a, b coords.Point) coords.Point { return atX(a, b, x1) }},
		{func(p coords.Point) bool { return p.Y >= y0 }, func(a, b coords.Point) coords.Point { return atY(a, b, y0) }},
		{func(p coords.Point) bool { return p.Y <= y1 }, func(a, b coords.Point) coords.Point { return atY(a, b, y1) }},
	}
	out := poly
	for _, e := range edges {
		if len(out) == 0 {
			return nil
		}
		in := out
		out = make([]coords.Point, 0, len(in)+4)
		prev := in[len(in)-1]
		for _, cur := range in {
			switch {
			case e.inside(cur) && e.inside(prev):
				out = append(out, cur)
			case e.inside(cur):
				out = append(out, e.cross(prev, cur), cur)
			case e.inside(prev):
				out = append(out, e.cross(prev, cur))
			}
			prev = cur
		}
	}
	return out
}

func atX(a, b coords.Point, x float64) coords.Point {
	t := (x - a.X) / (b.X - a.X)
	return coords.Point{X: x, Y: a.Y + t*(b.Y-a.Y)}
}

func atY(a, b coords.Point, y float64) coords.Point {
	t := (y - a.Y) / (b.Y - a.Y)
	return coords.Point{X: a.X + t*(b.X-a.X), Y: y}
}

// intersectMask multiplies coverage by the clip mask in place.
func intersectMask(mask, clip *image.Alpha) {
	if clip == nil {
		return
	}
	r := mask.Rect
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			i := mask.PixOffset(x, y)
			if mask.Pix[i] == 0 {
				continue
			}
			c := clip.AlphaAt(x, y).A
			mask.Pix[i] = uint8((uint16(mask.Pix[i])*uint16(c) + 127) / 255)
		}
	}
}
