package extractor

import (
	"fmt"
	"math"

	"github.com/wudi/docseal/ir/raw"
)

// ColorSpace is a resolved PDF colour space reduced to what rendering
// needs: component count and a conversion to sRGB.
type ColorSpace struct {
	Family string
	N      int
	// Indexed
	Base   *ColorSpace
	Hival  int
	Lookup []byte
}

var (
	DeviceGray = &ColorSpace{Family: "DeviceGray", N: 1}
	DeviceRGB  = &ColorSpace{Family: "DeviceRGB", N: 3}
	DeviceCMYK = &ColorSpace{Family: "DeviceCMYK", N: 4}
	Pattern    = &ColorSpace{Family: "Pattern", N: 0}
)

// ColorSpace resolves a colour space operand or dictionary entry. Names not
// built in are looked up in res /ColorSpace.
func (e *Extractor) ColorSpace(obj raw.Object, res *raw.DictObj) (*ColorSpace, error) {
	return e.colorSpace(obj, res, 0)
}

func (e *Extractor) colorSpace(obj raw.Object, res *raw.DictObj, depth int) (*ColorSpace, error) {
	if depth > 8 {
		return nil, fmt.Errorf("colour space nesting too deep")
	}
	doc := e.raw
	switch v := doc.Resolve(obj).(type) {
	case raw.NameObj:
		switch v.Val {
		case "DeviceGray", "G", "CalGray":
			return DeviceGray, nil
		case "DeviceRGB", "RGB", "CalRGB":
			return DeviceRGB, nil
		case "DeviceCMYK", "CMYK":
			return DeviceCMYK, nil
		case "Pattern":
			return Pattern, nil
		}
		named := e.Resource(res, "ColorSpace", v.Val)
		if named == nil {
			return nil, fmt.Errorf("unknown colour space %q", v.Val)
		}
		return e.colorSpace(named, res, depth+1)
	case *raw.ArrayObj:
		family, _ := doc.Name(v.Get(0))
		switch family {
		case "CalGray":
			return DeviceGray, nil
		case "CalRGB":
			return DeviceRGB, nil
		case "Lab":
			return &ColorSpace{Family: "Lab", N: 3}, nil
		case "ICCBased":
			dict := doc.Dict(v.Get(1))
			if alt := dict.Get("Alternate"); alt != nil {
				if cs, err := e.colorSpace(alt, res, depth+1); err == nil {
					return cs, nil
				}
			}
			n, _ := doc.Int(dict.Get("N"))
			switch n {
			case 1:
				return DeviceGray, nil
			case 4:
				return DeviceCMYK, nil
			default:
				return DeviceRGB, nil
			}
		case "Indexed", "I":
			base, err := e.colorSpace(v.Get(1), res, depth+1)
			if err != nil {
				return nil, err
			}
			hival, _ := doc.Int(v.Get(2))
			lookup, err := e.lookupBytes(v.Get(3))
			if err != nil {
				return nil, err
			}
			return &ColorSpace{Family: "Indexed", N: 1, Base: base, Hival: hival, Lookup: lookup}, nil
		case "Separation":
			return &ColorSpace{Family: "Separation", N: 1}, nil
		case "DeviceN":
			return &ColorSpace{Family: "DeviceN", N: max(doc.Array(v.Get(1)).Len(), 1)}, nil
		case "Pattern":
			return Pattern, nil
		case "":
			return nil, fmt.Errorf("empty colour space array")
		}
		return e.colorSpace(v.Get(0), res, depth+1)
	}
	return nil, fmt.Errorf("unsupported colour space %T", obj)
}

func (e *Extractor) lookupBytes(obj raw.Object) ([]byte, error) {
	switch v := e.raw.Resolve(obj).(type) {
	case raw.StringObj:
		return v.Bytes, nil
	case *raw.StreamObj:
		data, _, err := e.StreamData(obj)
		return data, err
	}
	return nil, fmt.Errorf("indexed lookup missing")
}

// DefaultDecode returns the identity Decode array for bpc.
func (cs *ColorSpace) DefaultDecode(bpc int) []float64 {
	if cs.Family == "Indexed" {
		return []float64{0, float64(int(1)<<bpc - 1)}
	}
	out := make([]float64, 0, 2*cs.N)
	for i := 0; i < cs.N; i++ {
		if cs.Family == "Lab" && i > 0 {
			out = append(out, -100, 100)
			continue
		}
		if cs.Family == "Lab" {
			out = append(out, 0, 100)
			continue
		}
		out = append(out, 0, 1)
	}
	return out
}

// InitialColor is the colour selected by cs/CS.
func (cs *ColorSpace) InitialColor() []float64 {
	if cs.Family == "DeviceCMYK" {
		return []float64{0, 0, 0, 1}
	}
	if cs.Family == "Separation" || cs.Family == "DeviceN" {
		out := make([]float64, cs.N)
		for i := range out {
			out[i] = 1
		}
		return out
	}
	return make([]float64, cs.N)
}

// RGB converts components to 8-bit sRGB.
func (cs *ColorSpace) RGB(c []float64) (uint8, uint8, uint8) {
	at := func(i int) float64 {
		if i < len(c) {
			return clamp01(c[i])
		}
		return 0
	}
	switch cs.Family {
	case "DeviceGray":
		g := to8(at(0))
		return g, g, g
	case "DeviceRGB":
		return to8(at(0)), to8(at(1)), to8(at(2))
	case "DeviceCMYK":
		return cmykToRGB(at(0), at(1), at(2), at(3))
	case "Indexed":
		idx := 0
		if len(c) > 0 {
			idx = int(math.Round(c[0]))
		}
		idx = min(max(idx, 0), cs.Hival)
		n := cs.Base.N
		off := idx * n
		if off+n > len(cs.Lookup) {
			return 0, 0, 0
		}
		comps := make([]float64, n)
		for i := 0; i < n; i++ {
			comps[i] = float64(cs.Lookup[off+i]) / 255
		}
		return cs.Base.RGB(comps)
	case "Lab":
		var l float64
		if len(c) > 0 {
			l = c[0]
		}
		g := to8(clamp01(l / 100))
		return g, g, g
	case "Separation":
		// tint transforms are not evaluated; a full tint prints black
		g := to8(1 - at(0))
		return g, g, g
	case "DeviceN":
		if cs.N == 4 {
			return cmykToRGB(at(0), at(1), at(2), at(3))
		}
		var sum float64
		for i := 0; i < cs.N; i++ {
			sum += at(i)
		}
		g := to8(1 - sum/float64(cs.N))
		return g, g, g
	}
	return 0, 0, 0
}

func cmykToRGB(c, m, y, k float64) (uint8, uint8, uint8) {
	return to8((1 - c) * (1 - k)), to8((1 - m) * (1 - k)), to8((1 - y) * (1 - k))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func to8(v float64) uint8 { return uint8(math.Round(clamp01(v) * 255)) }
