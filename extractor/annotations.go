package extractor

import (
	"math"

	"github.com/wudi/docseal/coords"
	"github.com/wudi/docseal/ir/raw"
)

const (
	annotHidden = 1 << 1
	annotNoView = 1 << 5
)

// Appearance is an annotation's normal appearance stream placed on the
// page. Signature widgets and rubber stamps usually arrive this way.
type Appearance struct {
	Subtype string
	Form    XObject
	// Matrix maps form space to default user space.
	Matrix coords.Matrix
}

// Appearances returns the visible annotation appearances of page in
// /Annots order.
func (e *Extractor) Appearances(page Page) []Appearance {
	doc := e.raw
	arr := doc.Array(page.Dict.Get("Annots"))
	var out []Appearance
	for i := 0; i < arr.Len(); i++ {
		dict := doc.Dict(arr.Get(i))
		if dict == nil {
			continue
		}
		subtype, _ := doc.Name(dict.Get("Subtype"))
		if subtype == "Popup" {
			continue
		}
		if flags, _ := doc.Int(dict.Get("F")); flags&(annotHidden|annotNoView) != 0 {
			continue
		}
		rect, ok := rectFromObject(doc, dict.Get("Rect"))
		if !ok {
			continue
		}
		ref := normalAppearance(doc, dict)
		if ref == nil {
			continue
		}
		formDict := doc.Dict(ref)
		if formDict == nil {
			continue
		}
		bbox, ok := rectFromObject(doc, formDict.Get("BBox"))
		if !ok {
			continue
		}
		m := MatrixFromObject(doc, formDict.Get("Matrix"))
		fit, ok := fitMatrix(bbox, m, rect)
		if !ok {
			continue
		}
		out = append(out, Appearance{
			Subtype: subtype,
			Form: XObject{
				Ref:       ref,
				Subtype:   "Form",
				Dict:      formDict,
				Resources: doc.Dict(formDict.Get("Resources")),
			},
			Matrix: m.Multiply(fit),
		})
	}
	return out
}

func normalAppearance(doc *raw.Document, annot *raw.DictObj) raw.Object {
	ap := doc.Dict(annot.Get("AP"))
	n := ap.Get("N")
	if n == nil {
		return nil
	}
	if _, ok := doc.Resolve(n).(*raw.StreamObj); ok {
		return n
	}
	states := doc.Dict(n)
	state, _ := doc.Name(annot.Get("AS"))
	if state == "" {
		return nil
	}
	return states.Get(state)
}

// fitMatrix maps the transformed bounding box onto rect.
func fitMatrix(bbox coords.Rect, m coords.Matrix, rect coords.Rect) (coords.Matrix, bool) {
	corners := []coords.Point{
		{X: bbox.LLX, Y: bbox.LLY}, {X: bbox.URX, Y: bbox.LLY},
		{X: bbox.LLX, Y: bbox.URY}, {X: bbox.URX, Y: bbox.URY},
	}
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, c := range corners {
		p := m.Transform(c)
		minX, maxX = math.Min(minX, p.X), math.Max(maxX, p.X)
		minY, maxY = math.Min(minY, p.Y), math.Max(maxY, p.Y)
	}
	w, h := maxX-minX, maxY-minY
	if w <= 0 || h <= 0 {
		return coords.Matrix{}, false
	}
	fit := coords.Translate(-minX, -minY).
		Multiply(coords.Scale(rect.Width()/w, rect.Height()/h)).
		Multiply(coords.Translate(rect.LLX, rect.LLY))
	return fit, true
}
