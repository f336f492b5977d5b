package ocr

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"reflect"
	"testing"

	"github.com/wudi/docseal/render"
)

func testPage() *render.Page {
	return &render.Page{Image: image.NewNRGBA(image.Rect(0, 0, 3, 2))}
}

func TestInputFromPage(t *testing.T) {
	region := Region{X: 0, Y: 0, Width: 1, Height: 1}
	meta := map[string]string{"psm": "6"}

	in, err := InputFromPage(
		testPage(),
		WithID("page-0"),
		WithLanguages("eng", "spa"),
		WithRegion(region),
		WithDPI(300),
		WithMetadata(meta),
	)
	if err != nil {
		t.Fatalf("InputFromPage() error = %v", err)
	}
	if in.Format != ImageFormatPNG {
		t.Fatalf("unexpected format: %v", in.Format)
	}
	if in.ID != "page-0" {
		t.Fatalf("unexpected id: %s", in.ID)
	}
	img, err := png.Decode(bytes.NewReader(in.Image))
	if err != nil {
		t.Fatalf("unexpected png error: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 3 || b.Dy() != 2 {
		t.Fatalf("unexpected encoded bounds %v", b)
	}
	if !reflect.DeepEqual(in.Languages, []string{"eng", "spa"}) {
		t.Fatalf("unexpected languages: %+v", in.Languages)
	}
	if in.Region == nil || *in.Region != region {
		t.Fatalf("unexpected region: %#v", in.Region)
	}
	if in.DPI != 300 {
		t.Fatalf("unexpected dpi: %d", in.DPI)
	}
	meta["psm"] = "7"
	if in.Metadata["psm"] != "6" {
		t.Fatalf("metadata was not copied: %+v", in.Metadata)
	}
}

func TestInputFromPageNil(t *testing.T) {
	if _, err := InputFromPage(nil); err == nil {
		t.Fatalf("expected error for nil page")
	}
}

func TestWithRegionClearsEmpty(t *testing.T) {
	in := Input{Region: &Region{X: 1, Y: 1, Width: 2, Height: 2}}
	WithRegion(Region{})(&in)
	if in.Region != nil {
		t.Fatalf("expected nil region for empty input, got %#v", in.Region)
	}
}

func TestRecognizePage(t *testing.T) {
	ctx := context.Background()
	res, err := RecognizePage(ctx, Static{Text: "hello"}, testPage(), WithID("x"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.PlainText != "hello" || res.InputID != "x" {
		t.Fatalf("unexpected result %+v", res)
	}
	if _, err := RecognizePage(ctx, Disabled{}, testPage()); !errors.Is(err, ErrDisabled) {
		t.Fatalf("expected ErrDisabled, got %v", err)
	}
	if _, err := RecognizePage(ctx, nil, testPage()); !errors.Is(err, ErrDisabled) {
		t.Fatalf("expected ErrDisabled for nil engine, got %v", err)
	}
	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := RecognizePage(cancelled, Static{}, testPage()); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

type countingEngine struct{ calls int }

func (c *countingEngine) Name() string { return "counting" }

func (c *countingEngine) Recognize(_ context.Context, in Input) (Result, error) {
	c.calls++
	return Result{InputID: in.ID}, nil
}

func TestRecognizeAllSequential(t *testing.T) {
	eng := &countingEngine{}
	res, err := RecognizeAll(context.Background(), eng, []Input{{ID: "a"}, {ID: "b"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if eng.calls != 2 || len(res) != 2 || res[1].InputID != "b" {
		t.Fatalf("unexpected results %+v after %d calls", res, eng.calls)
	}
}
