package extractor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"

	"github.com/wudi/docseal/filters"
	"github.com/wudi/docseal/ir/raw"
)

var ErrImageFormat = errors.New("unsupported image encoding")

// ImageAsset is a decoded image XObject or inline image. Exactly one of
// Image and Stencil is set; a stencil is painted with the current fill
// colour where its alpha is non-zero.
type ImageAsset struct {
	Width   int
	Height  int
	Image   *image.NRGBA
	Stencil *image.Alpha
}

// imageParams gathers the entries shared by XObjects and inline images.
type imageParams struct {
	width, height int
	bpc           int
	mask          bool
	colorSpace    raw.Object
	decode        []float64
	smask         raw.Object
}

// inline image abbreviations
var inlineKeys = map[string]string{
	"W": "Width", "H": "Height", "BPC": "BitsPerComponent", "CS": "ColorSpace",
	"IM": "ImageMask", "D": "Decode", "F": "Filter", "DP": "DecodeParms",
	"I": "Interpolate",
}

func (e *Extractor) readImageParams(dict *raw.DictObj) imageParams {
	doc := e.raw
	p := imageParams{bpc: 8}
	p.width, _ = doc.Int(dict.Get("Width"))
	p.height, _ = doc.Int(dict.Get("Height"))
	if bpc, ok := doc.Int(dict.Get("BitsPerComponent")); ok {
		p.bpc = bpc
	}
	if b, ok := doc.Resolve(dict.Get("ImageMask")).(raw.BoolObj); ok && b.V {
		p.mask = true
		p.bpc = 1
	}
	p.colorSpace = dict.Get("ColorSpace")
	p.decode = floats(doc, dict.Get("Decode"))
	p.smask = dict.Get("SMask")
	return p
}

// ImageXObject decodes the image stream referenced by obj.
func (e *Extractor) ImageXObject(obj raw.Object, res *raw.DictObj) (*ImageAsset, error) {
	s, err := e.Stream(obj)
	if err != nil {
		return nil, err
	}
	p := e.readImageParams(s.Dictionary())
	var asset *ImageAsset
	if s.Encoded() {
		asset, err = e.decodeJPEG(s.Data(), p, res)
	} else {
		asset, err = e.decodeSamples(s.Data(), p, res)
	}
	if err != nil {
		return nil, err
	}
	if asset.Image != nil && p.smask != nil {
		if err := e.applySoftMask(asset, p.smask); err != nil {
			return nil, fmt.Errorf("smask: %w", err)
		}
	}
	return asset, nil
}

// InlineImage decodes a BI ... EI image using pipeline for its filters.
func (e *Extractor) InlineImage(ctx context.Context, img *InlineImage, res *raw.DictObj, pipeline *filters.Pipeline) (*ImageAsset, error) {
	dict := raw.Dict()
	for _, k := range img.Dict.Keys() {
		key := k
		if full, ok := inlineKeys[k]; ok {
			key = full
		}
		dict.Set(key, img.Dict.Get(k))
	}
	p := e.readImageParams(dict)
	data := img.Data
	names, params := filters.ExtractFilters(e.raw, dict)
	if len(names) > 0 {
		out, err := pipeline.Decode(ctx, data, names, params)
		if err != nil {
			return nil, err
		}
		data = out
		if filters.IsPassThrough(names[len(names)-1]) {
			return e.decodeJPEG(data, p, res)
		}
	}
	return e.decodeSamples(data, p, res)
}

func (e *Extractor) decodeJPEG(data []byte, p imageParams, res *raw.DictObj) (*ImageAsset, error) {
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("jpeg: %w", err)
	}
	b := img.Bounds()
	if err := filters.ValidateImageBounds(b.Dx(), b.Dy()); err != nil {
		return nil, err
	}
	out := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)
	return &ImageAsset{Width: b.Dx(), Height: b.Dy(), Image: out}, nil
}

func (e *Extractor) decodeSamples(data []byte, p imageParams, res *raw.DictObj) (*ImageAsset, error) {
	if err := filters.ValidateImageBounds(p.width, p.height); err != nil {
		return nil, err
	}
	switch p.bpc {
	case 1, 2, 4, 8, 16:
	default:
		return nil, fmt.Errorf("%w: %d bits per component", ErrImageFormat, p.bpc)
	}
	if p.mask {
		return decodeStencil(data, p)
	}

	cs := DeviceGray
	if p.colorSpace != nil {
		var err error
		cs, err = e.ColorSpace(p.colorSpace, res)
		if err != nil {
			return nil, err
		}
	}
	if cs.N == 0 {
		return nil, fmt.Errorf("%w: pattern colour space on image", ErrImageFormat)
	}
	decode := p.decode
	if len(decode) < 2*cs.N {
		decode = cs.DefaultDecode(p.bpc)
	}

	rowBits := p.width * cs.N * p.bpc
	rowBytes := (rowBits + 7) / 8
	// short streams are padded with zero samples
	if need := rowBytes * p.height; len(data) < need {
		data = append(data, make([]byte, need-len(data))...)
	}
	maxVal := float64(int(1)<<p.bpc - 1)
	out := image.NewNRGBA(image.Rect(0, 0, p.width, p.height))
	comps := make([]float64, cs.N)
	for y := 0; y < p.height; y++ {
		row := data[y*rowBytes : (y+1)*rowBytes]
		for x := 0; x < p.width; x++ {
			for c := 0; c < cs.N; c++ {
				v := float64(sample(row, x*cs.N+c, p.bpc))
				lo, hi := decode[2*c], decode[2*c+1]
				comps[c] = lo + v*(hi-lo)/maxVal
			}
			r, g, b := cs.RGB(comps)
			i := out.PixOffset(x, y)
			out.Pix[i], out.Pix[i+1], out.Pix[i+2], out.Pix[i+3] = r, g, b, 0xff
		}
	}
	return &ImageAsset{Width: p.width, Height: p.height, Image: out}, nil
}

func decodeStencil(data []byte, p imageParams) (*ImageAsset, error) {
	rowBytes := (p.width + 7) / 8
	if need := rowBytes * p.height; len(data) < need {
		data = append(data, make([]byte, need-len(data))...)
	}
	// Decode [0 1]: a 0 sample paints
	paint := uint16(0)
	if len(p.decode) >= 2 && p.decode[0] > p.decode[1] {
		paint = 1
	}
	out := image.NewAlpha(image.Rect(0, 0, p.width, p.height))
	for y := 0; y < p.height; y++ {
		row := data[y*rowBytes : (y+1)*rowBytes]
		for x := 0; x < p.width; x++ {
			if sample(row, x, 1) == paint {
				out.Pix[out.PixOffset(x, y)] = 0xff
			}
		}
	}
	return &ImageAsset{Width: p.width, Height: p.height, Stencil: out}, nil
}

func (e *Extractor) applySoftMask(asset *ImageAsset, obj raw.Object) error {
	s, err := e.Stream(obj)
	if err != nil {
		return err
	}
	p := e.readImageParams(s.Dictionary())
	p.colorSpace = raw.NameLiteral("DeviceGray")
	p.mask = false
	var mask *ImageAsset
	if s.Encoded() {
		mask, err = e.decodeJPEG(s.Data(), p, nil)
	} else {
		mask, err = e.decodeSamples(s.Data(), p, nil)
	}
	if err != nil {
		return err
	}
	dst := asset.Image
	for y := 0; y < asset.Height; y++ {
		my := y * mask.Height / asset.Height
		for x := 0; x < asset.Width; x++ {
			mx := x * mask.Width / asset.Width
			a := mask.Image.Pix[mask.Image.PixOffset(mx, my)]
			dst.Pix[dst.PixOffset(x, y)+3] = a
		}
	}
	return nil
}

// sample reads component index idx from a packed row.
func sample(row []byte, idx, bpc int) uint16 {
	switch bpc {
	case 8:
		return uint16(row[idx])
	case 16:
		return uint16(row[2*idx])<<8 | uint16(row[2*idx+1])
	}
	bit := idx * bpc
	b := row[bit/8]
	shift := 8 - bpc - bit%8
	return uint16(b>>shift) & (1<<bpc - 1)
}
