// Package content turns source documents into the text and image leaves.
//
// A Document is one of three variants: *PDF, *Image or *Text. Extraction
// strategy is chosen through the capability interfaces TextLeaf, ImageLeaf
// and PageSource rather than by inspecting the variant.
package content

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/wudi/docseal/filters"
	"github.com/wudi/docseal/observability"
	"github.com/wudi/docseal/ocr"
	"github.com/wudi/docseal/render"
)

// DefaultScale renders PDF pages at 300 DPI.
const DefaultScale = 300.0 / 72.0

// Variant names the document kinds.
type Variant string

const (
	VariantPDF   Variant = "pdf"
	VariantImage Variant = "image"
	VariantText  Variant = "text"
)

// Document is a classified source. Implementations are immutable once
// built and safe for concurrent extraction.
type Document interface {
	Variant() Variant
	MIME() string
	Len() int
}

// TextLeaf yields the raw, unnormalized text of a document.
type TextLeaf interface {
	Text(ctx context.Context, env *Env) (string, error)
}

// ImageLeaf yields the canonical page whose grayscale pixels are hashed.
type ImageLeaf interface {
	Page(ctx context.Context, env *Env) (*render.Page, error)
}

// PageSource is an ImageLeaf whose canonical page may carry signature and
// stamp regions. RegionsSupported is false for raster input, where region
// selection is off unless the caller opts in.
type PageSource interface {
	ImageLeaf
	RegionsSupported() bool
}

// Env carries the collaborators extraction needs. Nothing in it is
// mutated by extraction.
type Env struct {
	Renderer render.Renderer
	OCR      ocr.Engine
	// OCROptions are applied to every recognition input.
	OCROptions []ocr.InputOption
	// Scale is device pixels per PDF point for the canonical page.
	Scale  float64
	Limits filters.Limits
	Logger observability.Logger
	// Password opens encrypted PDFs. Most carry an empty user password.
	Password string
}

// DefaultEnv renders with the built-in rasterizer and has OCR disabled.
func DefaultEnv() *Env {
	return &Env{
		Renderer: render.NewRaster(),
		OCR:      ocr.Disabled{},
		Scale:    DefaultScale,
		Logger:   observability.NopLogger{},
	}
}

func (e *Env) logger() observability.Logger {
	if e == nil || e.Logger == nil {
		return observability.NopLogger{}
	}
	return e.Logger
}

func (e *Env) scale() float64 {
	if e == nil || e.Scale <= 0 {
		return DefaultScale
	}
	return e.Scale
}

// Classify picks the variant for mimeType. An empty mimeType is sniffed
// from the bytes.
func Classify(data []byte, mimeType string) (Document, error) {
	if strings.TrimSpace(mimeType) == "" {
		mimeType = http.DetectContentType(data)
	}
	mt := mediaType(mimeType)
	switch {
	case mt == "application/pdf":
		return NewPDF(data), nil
	case strings.HasPrefix(mt, "image/"):
		return NewImage(data, mt), nil
	case strings.HasPrefix(mt, "text/"):
		return NewText(data, mt), nil
	}
	return nil, &Error{Kind: KindUnsupportedType, Op: "classify", Err: fmt.Errorf("mime type %q", mimeType)}
}

// Sniff guesses a MIME type from the file name, falling back to content
// sniffing.
func Sniff(name string, data []byte) string {
	if ext := filepath.Ext(name); ext != "" {
		if mt := mime.TypeByExtension(strings.ToLower(ext)); mt != "" {
			return mediaType(mt)
		}
	}
	return mediaType(http.DetectContentType(data))
}

func mediaType(s string) string {
	mt, _, err := mime.ParseMediaType(s)
	if err != nil {
		mt = strings.TrimSpace(strings.SplitN(s, ";", 2)[0])
	}
	return strings.ToLower(mt)
}
