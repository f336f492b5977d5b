package extractor

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"

	"github.com/wudi/docseal/coords"
	"github.com/wudi/docseal/ir/decoded"
	"github.com/wudi/docseal/ir/raw"
)

var (
	ErrNoCatalog = errors.New("pdf catalog not found in trailer")
	ErrNoPages   = errors.New("pdf has no pages")
	ErrEncrypted = errors.New("encrypted pdf")
)

// maxPageTreeDepth bounds recursion through malformed /Kids cycles.
const maxPageTreeDepth = 64

// US Letter, used when neither the page nor its ancestors carry a MediaBox.
var defaultMediaBox = coords.Rect{URX: 612, URY: 792}

// Extractor exposes helper routines for pulling structured data out of a
// decoded PDF. It is read-only after New and safe for concurrent use.
type Extractor struct {
	dec     *decoded.DecodedDocument
	raw     *raw.Document
	catalog *raw.DictObj
	pages   []Page
}

// Page is a leaf of the page tree with inheritable attributes resolved.
type Page struct {
	Index     int
	Dict      *raw.DictObj
	Resources *raw.DictObj
	MediaBox  coords.Rect
	CropBox   coords.Rect
	Rotate    int
}

// Box returns the visible region of the page: the CropBox clipped to the
// MediaBox.
func (p Page) Box() coords.Rect {
	box := p.CropBox
	if box.Empty() {
		return p.MediaBox
	}
	clipped := coords.Rect{
		LLX: max(box.LLX, p.MediaBox.LLX),
		LLY: max(box.LLY, p.MediaBox.LLY),
		URX: min(box.URX, p.MediaBox.URX),
		URY: min(box.URY, p.MediaBox.URY),
	}
	if clipped.Empty() {
		return p.MediaBox
	}
	return clipped
}

// Size returns the displayed width and height in points, after rotation.
func (p Page) Size() (float64, float64) {
	box := p.Box()
	if p.Rotate == 90 || p.Rotate == 270 {
		return box.Height(), box.Width()
	}
	return box.Width(), box.Height()
}

// New creates an extractor backed by the provided decoded document.
func New(dec *decoded.DecodedDocument) (*Extractor, error) {
	if dec == nil {
		return nil, errors.New("decoded document is required")
	}
	if dec.Raw == nil {
		return nil, errors.New("decoded document missing raw representation")
	}
	if dec.Encrypted {
		return nil, ErrEncrypted
	}
	e := &Extractor{dec: dec, raw: dec.Raw}
	e.inflateObjectStreams()
	e.catalog = e.raw.Catalog()
	if e.catalog == nil {
		return nil, ErrNoCatalog
	}
	e.pages = collectPages(e.raw, e.catalog)
	if len(e.pages) == 0 {
		return nil, ErrNoPages
	}
	return e, nil
}

// Pages returns the page list in document order.
func (e *Extractor) Pages() []Page { return e.pages }

// Page returns the page at index.
func (e *Extractor) Page(index int) (Page, error) {
	if index < 0 || index >= len(e.pages) {
		return Page{}, fmt.Errorf("page %d out of range (document has %d)", index, len(e.pages))
	}
	return e.pages[index], nil
}

// Raw exposes the underlying object graph for callers that walk resources.
func (e *Extractor) Raw() *raw.Document { return e.raw }

// StreamData returns the decoded bytes of the stream behind obj.
func (e *Extractor) StreamData(obj raw.Object) ([]byte, *raw.DictObj, error) {
	s, err := e.dec.Stream(obj)
	if err != nil {
		return nil, nil, err
	}
	return s.Data(), s.Dictionary(), nil
}

// Stream returns the decoded stream behind obj.
func (e *Extractor) Stream(obj raw.Object) (decoded.Stream, error) {
	return e.dec.Stream(obj)
}

func (e *Extractor) inflateObjectStreams() {
	newObjects := make(map[raw.ObjectRef]raw.Object)
	for ref, obj := range e.raw.Objects {
		stream, ok := obj.(*raw.StreamObj)
		if !ok {
			continue
		}
		if typ, _ := e.raw.Name(stream.Dict.Get("Type")); typ != "ObjStm" {
			continue
		}
		objects, err := e.decodeObjectStream(raw.RefObj{R: ref})
		if err != nil {
			continue
		}
		for num, embedded := range objects {
			key := raw.ObjectRef{Num: num, Gen: 0}
			if _, exists := e.raw.Objects[key]; !exists {
				newObjects[key] = embedded
			}
		}
	}
	for ref, obj := range newObjects {
		e.raw.Objects[ref] = obj
	}
}

func (e *Extractor) decodeObjectStream(ref raw.RefObj) (map[int]raw.Object, error) {
	data, dict, err := e.StreamData(ref)
	if err != nil {
		return nil, err
	}
	count, ok := e.raw.Int(dict.Get("N"))
	if !ok || count <= 0 {
		return nil, fmt.Errorf("invalid object stream count")
	}
	first, ok := e.raw.Int(dict.Get("First"))
	if !ok || first < 0 || first > len(data) {
		return nil, fmt.Errorf("invalid object stream First")
	}
	header := data[:first]
	body := data[first:]
	type entry struct {
		num int
		off int
	}
	entries := make([]entry, 0, count)
	reader := bufio.NewReader(bytes.NewReader(header))
	for i := 0; i < count; i++ {
		var objNum, offset int
		if _, err := fmt.Fscan(reader, &objNum, &offset); err != nil {
			return nil, fmt.Errorf("parse objstm header: %w", err)
		}
		entries = append(entries, entry{num: objNum, off: offset})
	}
	objects := make(map[int]raw.Object, len(entries))
	for idx, ent := range entries {
		start := ent.off
		if start < 0 || start > len(body) {
			continue
		}
		end := len(body)
		if idx+1 < len(entries) {
			if next := entries[idx+1].off; next >= start && next <= len(body) {
				end = next
			}
		}
		segment := bytes.TrimSpace(body[start:end])
		if len(segment) == 0 {
			continue
		}
		obj, err := raw.ParseObject(segment)
		if err != nil {
			continue
		}
		objects[ent.num] = obj
	}
	return objects, nil
}

type inherited struct {
	resources *raw.DictObj
	mediaBox  raw.Object
	cropBox   raw.Object
	rotate    raw.Object
}

func collectPages(doc *raw.Document, catalog *raw.DictObj) []Page {
	var pages []Page
	seen := make(map[*raw.DictObj]bool)
	var walk func(obj raw.Object, attrs inherited, depth int)
	walk = func(obj raw.Object, attrs inherited, depth int) {
		dict := doc.Dict(obj)
		if dict == nil || seen[dict] || depth > maxPageTreeDepth {
			return
		}
		seen[dict] = true
		if res := doc.Dict(dict.Get("Resources")); res != nil {
			attrs.resources = res
		}
		if v := dict.Get("MediaBox"); v != nil {
			attrs.mediaBox = v
		}
		if v := dict.Get("CropBox"); v != nil {
			attrs.cropBox = v
		}
		if v := dict.Get("Rotate"); v != nil {
			attrs.rotate = v
		}
		typ, _ := doc.Name(dict.Get("Type"))
		if kids := doc.Array(dict.Get("Kids")); kids != nil && typ != "Page" {
			for _, kid := range kids.Items {
				walk(kid, attrs, depth+1)
			}
			return
		}
		if typ != "Page" && dict.Get("Contents") == nil {
			return
		}
		media, ok := rectFromObject(doc, attrs.mediaBox)
		if !ok {
			media = defaultMediaBox
		}
		crop, _ := rectFromObject(doc, attrs.cropBox)
		rotate, _ := doc.Int(attrs.rotate)
		pages = append(pages, Page{
			Index:     len(pages),
			Dict:      dict,
			Resources: attrs.resources,
			MediaBox:  media,
			CropBox:   crop,
			Rotate:    normalizeRotation(rotate),
		})
	}
	walk(catalog.Get("Pages"), inherited{}, 0)
	return pages
}

func normalizeRotation(r int) int {
	r %= 360
	if r < 0 {
		r += 360
	}
	// non-multiples of 90 are invalid; round down like viewers do
	return r - r%90
}

func rectFromObject(doc *raw.Document, obj raw.Object) (coords.Rect, bool) {
	arr := doc.Array(obj)
	if arr.Len() < 4 {
		return coords.Rect{}, false
	}
	var v [4]float64
	for i := 0; i < 4; i++ {
		f, ok := doc.Number(arr.Get(i))
		if !ok {
			return coords.Rect{}, false
		}
		v[i] = f
	}
	r := coords.NormRect(v[0], v[1], v[2], v[3])
	return r, !r.Empty()
}

// floats resolves every numeric entry of an array.
func floats(doc *raw.Document, obj raw.Object) []float64 {
	arr := doc.Array(obj)
	out := make([]float64, 0, arr.Len())
	for i := 0; i < arr.Len(); i++ {
		if f, ok := doc.Number(arr.Get(i)); ok {
			out = append(out, f)
		}
	}
	return out
}

// MatrixFromObject reads a six-number matrix array, defaulting to identity.
func MatrixFromObject(doc *raw.Document, obj raw.Object) coords.Matrix {
	v := floats(doc, obj)
	if len(v) != 6 {
		return coords.Identity()
	}
	return coords.Matrix{v[0], v[1], v[2], v[3], v[4], v[5]}
}

// RectFromObject reads a four-number rectangle array.
func RectFromObject(doc *raw.Document, obj raw.Object) (coords.Rect, bool) {
	return rectFromObject(doc, obj)
}
