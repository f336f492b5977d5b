package content

import (
	"context"
	"fmt"
	"math"

	"github.com/wudi/docseal/digest"
	"github.com/wudi/docseal/render"
)

// TextHash is the digest of the document's normalized text.
func TextHash(ctx context.Context, doc Document, env *Env) (string, error) {
	leaf, ok := doc.(TextLeaf)
	if !ok {
		return "", &Error{Kind: KindUnsupportedType, Op: "text", Err: fmt.Errorf("%s has no text leaf", doc.Variant())}
	}
	text, err := leaf.Text(ctx, env)
	if err != nil {
		return "", err
	}
	return digest.String(NormalizeText(text)), nil
}

// CanonicalPage produces the document's canonical page.
func CanonicalPage(ctx context.Context, doc Document, env *Env) (*render.Page, error) {
	leaf, ok := doc.(ImageLeaf)
	if !ok {
		return nil, &Error{Kind: KindUnsupportedType, Op: "page", Err: fmt.Errorf("%s has no image leaf", doc.Variant())}
	}
	return leaf.Page(ctx, env)
}

// ImageHash is the digest of the grayscale copy of page.
func ImageHash(page *render.Page) string {
	return digest.Hex(Grayscale(page.Pix()))
}

// Grayscale returns a copy of RGBA pixels with R, G and B replaced by
// luminance. Alpha is left as is.
func Grayscale(pix []byte) []byte {
	out := make([]byte, len(pix))
	copy(out, pix)
	for i := 0; i+3 < len(out); i += 4 {
		g := clampByte(float64(out[i])*0.299 + float64(out[i+1])*0.587 + float64(out[i+2])*0.114)
		out[i], out[i+1], out[i+2] = g, g, g
	}
	return out
}

// clampByte stores v the way a clamped byte array does: round half to
// even, then clamp to [0, 255].
func clampByte(v float64) uint8 {
	if math.IsNaN(v) {
		return 0
	}
	v = math.RoundToEven(v)
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
