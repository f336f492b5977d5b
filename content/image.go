package content

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"sync"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/wudi/docseal/filters"
	"github.com/wudi/docseal/ocr"
	"github.com/wudi/docseal/render"
)

// Image is raster input. Its canonical page is the decoded image at its
// native pixel grid.
type Image struct {
	data []byte
	mime string

	decode func() (*render.Page, error)
}

// NewImage wraps data without decoding it.
func NewImage(data []byte, mimeType string) *Image {
	img := &Image{data: data, mime: mimeType}
	img.decode = sync.OnceValues(func() (*render.Page, error) {
		cfg, _, err := image.DecodeConfig(bytes.NewReader(img.data))
		if err != nil {
			return nil, err
		}
		// the header is checked before any pixel buffer is allocated
		if err := filters.ValidateImageBounds(cfg.Width, cfg.Height); err != nil {
			return nil, err
		}
		src, _, err := image.Decode(bytes.NewReader(img.data))
		if err != nil {
			return nil, err
		}
		if b := src.Bounds(); b.Empty() {
			return nil, fmt.Errorf("image has no pixels")
		}
		return render.FromImage(src), nil
	})
	return img
}

func (i *Image) Variant() Variant       { return VariantImage }
func (i *Image) MIME() string           { return i.mime }
func (i *Image) Len() int               { return len(i.data) }
func (i *Image) RegionsSupported() bool { return false }

// Page decodes the image once; later calls share the canvas, which
// callers must treat as read-only.
func (i *Image) Page(ctx context.Context, _ *Env) (*render.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	page, err := i.decode()
	if err != nil {
		return nil, fail(KindDecodeFailure, "decode image", err)
	}
	return page, nil
}

// Text runs OCR over the whole image.
func (i *Image) Text(ctx context.Context, env *Env) (string, error) {
	page, err := i.Page(ctx, env)
	if err != nil {
		return "", err
	}
	var (
		engine ocr.Engine
		opts   []ocr.InputOption
	)
	if env != nil {
		engine, opts = env.OCR, env.OCROptions
	}
	res, err := ocr.RecognizePage(ctx, engine, page, opts...)
	if err != nil {
		return "", fail(KindOCRFailure, "image text", err)
	}
	return res.PlainText, nil
}
