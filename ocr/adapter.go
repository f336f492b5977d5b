package ocr

import (
	"bytes"
	"fmt"
	"image/png"

	"github.com/wudi/docseal/render"
)

// InputOption mutates an OCR input generated from a rendered page.
type InputOption func(*Input)

// WithID sets the identifier echoed back in the Result.
func WithID(id string) InputOption {
	return func(in *Input) { in.ID = id }
}

// WithLanguages sets language hints on the OCR input.
func WithLanguages(langs ...string) InputOption {
	return func(in *Input) { in.Languages = append([]string(nil), langs...) }
}

// WithRegion sets the recognition region on the OCR input.
func WithRegion(region Region) InputOption {
	return func(in *Input) {
		if region.IsEmpty() {
			in.Region = nil
			return
		}
		in.Region = &region
	}
}

// WithDPI overrides the DPI value on the OCR input.
func WithDPI(dpi int) InputOption {
	return func(in *Input) { in.DPI = dpi }
}

// WithMetadata sets provider-specific metadata for the input.
func WithMetadata(metadata map[string]string) InputOption {
	return func(in *Input) {
		if len(metadata) == 0 {
			in.Metadata = nil
			return
		}
		in.Metadata = make(map[string]string, len(metadata))
		for k, v := range metadata {
			in.Metadata[k] = v
		}
	}
}

// InputFromPage encodes a canvas as PNG for recognition.
func InputFromPage(page *render.Page, opts ...InputOption) (Input, error) {
	if page == nil || page.Image == nil {
		return Input{}, fmt.Errorf("encode page: no image")
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, page.Image); err != nil {
		return Input{}, fmt.Errorf("encode page: %w", err)
	}
	in := Input{
		Image:  buf.Bytes(),
		Format: ImageFormatPNG,
	}
	for _, opt := range opts {
		opt(&in)
	}
	return in, nil
}
