package render

import (
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/sfnt"
	"golang.org/x/image/math/fixed"

	"github.com/wudi/docseal/coords"
)

// Non-Type3 fonts are drawn with a single bundled face. Embedded font
// programs are not interpreted, so glyph shapes approximate the document
// while positions follow its own metrics.
var fallbackFace = sync.OnceValues(func() (*sfnt.Font, error) {
	return sfnt.Parse(goregular.TTF)
})

// glyphOutline is a glyph in text space for a font size of 1, y up.
type glyphOutline struct {
	polys   [][]coords.Point
	advance float64
}

// glyphCache is owned by one render call.
type glyphCache struct {
	face  *sfnt.Font
	buf   sfnt.Buffer
	upem  float64
	cache map[rune]*glyphOutline
}

func newGlyphCache() *glyphCache {
	face, err := fallbackFace()
	if err != nil {
		return &glyphCache{cache: map[rune]*glyphOutline{}}
	}
	return &glyphCache{
		face:  face,
		upem:  float64(face.UnitsPerEm()),
		cache: map[rune]*glyphOutline{},
	}
}

// outline returns the glyph for the first rune of text; nil when nothing
// can be drawn.
func (c *glyphCache) outline(text string) *glyphOutline {
	if c.face == nil || text == "" {
		return nil
	}
	r := []rune(text)[0]
	if g, ok := c.cache[r]; ok {
		return g
	}
	g := c.load(r)
	c.cache[r] = g
	return g
}

func (c *glyphCache) load(r rune) *glyphOutline {
	idx, err := c.face.GlyphIndex(&c.buf, r)
	if err != nil || idx == 0 {
		return nil
	}
	ppem := fixed.I(int(c.upem))
	g := &glyphOutline{}
	if adv, err := c.face.GlyphAdvance(&c.buf, idx, ppem, font.HintingNone); err == nil {
		g.advance = float64(adv) / 64 / c.upem
	}
	segs, err := c.face.LoadGlyph(&c.buf, idx, ppem, nil)
	if err != nil {
		return g
	}
	// sfnt segments are y-down in pixels of ppem == upem
	pt := func(p fixed.Point26_6) coords.Point {
		return coords.Point{X: float64(p.X) / 64 / c.upem, Y: -float64(p.Y) / 64 / c.upem}
	}
	var cur []coords.Point
	flush := func() {
		if len(cur) >= 3 {
			g.polys = append(g.polys, cur)
		}
		cur = nil
	}
	for _, s := range segs {
		switch s.Op {
		case sfnt.SegmentOpMoveTo:
			flush()
			cur = []coords.Point{pt(s.Args[0])}
		case sfnt.SegmentOpLineTo:
			cur = append(cur, pt(s.Args[0]))
		case sfnt.SegmentOpQuadTo:
			if len(cur) == 0 {
				continue
			}
			p0, p1, p2 := cur[len(cur)-1], pt(s.Args[0]), pt(s.Args[1])
			for i := 1; i <= 8; i++ {
				cur = append(cur, quadAt(p0, p1, p2, float64(i)/8))
			}
		case sfnt.SegmentOpCubeTo:
			if len(cur) == 0 {
				continue
			}
			p0 := cur[len(cur)-1]
			p1, p2, p3 := pt(s.Args[0]), pt(s.Args[1]), pt(s.Args[2])
			for i := 1; i <= 12; i++ {
				cur = append(cur, cubicAt(p0, p1, p2, p3, float64(i)/12))
			}
		}
	}
	flush()
	return g
}
