// Package region cuts signature and stamp areas out of a canonical page.
package region

import (
	"errors"
	"fmt"
	"image"
	"math"
	"strconv"
	"strings"

	"github.com/wudi/docseal/digest"
	"github.com/wudi/docseal/render"
)

// Slot names which attestation mark a region captures.
type Slot string

const (
	Signature Slot = "signature"
	Stamp     Slot = "stamp"
)

// ErrInvalid matches every *InvalidError.
var ErrInvalid = errors.New("invalid region")

// Region is a rectangle in canonical-page pixel space with the origin at
// the top-left corner.
type Region struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Slot   Slot    `json:"slot,omitempty"`
}

// InvalidError rejects a region before any pixel is read.
type InvalidError struct {
	Slot   Slot
	Rect   image.Rectangle
	Reason string
}

func (e *InvalidError) Error() string {
	slot := e.Slot
	if slot == "" {
		slot = "unnamed"
	}
	return fmt.Sprintf("invalid %s region %v: %s", slot, e.Rect, e.Reason)
}

func (e *InvalidError) Is(target error) bool { return target == ErrInvalid }

// Round snaps each coordinate to the nearest pixel, halves away from zero.
// The result is not canonicalized, so a negative size stays empty.
func Round(r Region) image.Rectangle {
	x, y := int(math.Round(r.X)), int(math.Round(r.Y))
	w, h := int(math.Round(r.Width)), int(math.Round(r.Height))
	return image.Rectangle{Min: image.Pt(x, y), Max: image.Pt(x+w, y+h)}
}

// Validate checks r against a page of the given bounds.
func Validate(r Region, bounds image.Rectangle) (image.Rectangle, error) {
	for _, v := range []float64{r.X, r.Y, r.Width, r.Height} {
		if math.IsNaN(v) || math.IsInf(v, 0) || math.Abs(v) > 1<<30 {
			return image.Rectangle{}, &InvalidError{Slot: r.Slot, Reason: "coordinate out of range"}
		}
	}
	rect := Round(r)
	if rect.Dx() <= 0 || rect.Dy() <= 0 {
		return rect, &InvalidError{Slot: r.Slot, Rect: rect, Reason: "width and height must be positive"}
	}
	if !rect.In(bounds) {
		return rect, &InvalidError{Slot: r.Slot, Rect: rect, Reason: fmt.Sprintf("not inside page %v", bounds)}
	}
	return rect, nil
}

// Extract copies the region's RGBA bytes, row-major, w*h*4 long. Colour is
// kept as rendered.
func Extract(page *render.Page, r Region) ([]byte, error) {
	if page == nil || page.Image == nil {
		return nil, &InvalidError{Slot: r.Slot, Reason: "no canonical page"}
	}
	img := page.Image
	rect, err := Validate(r, img.Rect)
	if err != nil {
		return nil, err
	}
	rowLen := rect.Dx() * 4
	out := make([]byte, 0, rowLen*rect.Dy())
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		off := img.PixOffset(rect.Min.X, y)
		out = append(out, img.Pix[off:off+rowLen]...)
	}
	return out, nil
}

// Hash is the digest of Extract.
func Hash(page *render.Page, r Region) (string, error) {
	pix, err := Extract(page, r)
	if err != nil {
		return "", err
	}
	return digest.Hex(pix), nil
}

// Parse reads "x,y,w,h".
func Parse(s string, slot Slot) (*Region, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return nil, fmt.Errorf("%s region %q: want x,y,width,height", slot, s)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("%s region %q: %w", slot, s, err)
		}
		v[i] = f
	}
	return &Region{X: v[0], Y: v[1], Width: v[2], Height: v[3], Slot: slot}, nil
}
