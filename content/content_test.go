package content

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"github.com/wudi/docseal/digest"
	"github.com/wudi/docseal/extractor"
	"github.com/wudi/docseal/internal/pdftest"
	"github.com/wudi/docseal/ocr"
	"github.com/wudi/docseal/render"
	"github.com/wudi/docseal/security"
)

func pngBytes(t *testing.T, w, h int, c color.NRGBA) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"only space", " \t\n\r ", ""},
		{"collapse", "CERTIFICATE   OF\n\nCOMPLETION", "CERTIFICATE OF COMPLETION"},
		{"trim", "\n  hello\t", "hello"},
		{"vertical tab and form feed", "a\v\fb", "a b"},
		{"nbsp", "a\u00a0 b", "a b"},
		{"unicode spaces", "a\u2003b\u3000c\u2028d\u205fe", "a b c d e"},
		{"bom", "\ufeffhello", "hello"},
		{"nel is not space", "a\u0085b", "a\u0085b"},
		{"zero width space kept", "a\u200bb", "a\u200bb"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeText(tt.in); got != tt.want {
				t.Fatalf("unexpected text %q", got)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		mime string
		want Variant
	}{
		{"pdf", []byte("%PDF-1.7"), "application/pdf", VariantPDF},
		{"png", nil, "image/png", VariantImage},
		{"jpeg with params", nil, "Image/JPEG; q=1", VariantImage},
		{"text", []byte("x"), "text/plain; charset=utf-8", VariantText},
		{"sniffed pdf", []byte("%PDF-1.4\n"), "", VariantPDF},
		{"sniffed text", []byte("hello"), "", VariantText},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := Classify(tt.data, tt.mime)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if doc.Variant() != tt.want {
				t.Fatalf("unexpected variant %s", doc.Variant())
			}
		})
	}
}

func TestClassifyUnsupported(t *testing.T) {
	for _, mt := range []string{"application/zip", "video/mp4", "application/octet-stream"} {
		_, err := Classify([]byte{1, 2, 3}, mt)
		if !IsKind(err, KindUnsupportedType) {
			t.Fatalf("%s: expected unsupported-type, got %v", mt, err)
		}
	}
}

func TestSniff(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"doc.pdf", nil, "application/pdf"},
		{"scan.PNG", nil, "image/png"},
		{"notes.txt", nil, "text/plain"},
		{"noext", []byte("%PDF-1.7\n"), "application/pdf"},
	}
	for _, tt := range tests {
		if got := Sniff(tt.name, tt.data); got != tt.want {
			t.Fatalf("Sniff(%q) = %q", tt.name, got)
		}
	}
}

func TestGrayscale(t *testing.T) {
	in := []byte{
		255, 0, 0, 255,
		0, 255, 0, 128,
		0, 0, 255, 0,
		128, 128, 128, 7,
	}
	got := Grayscale(in)
	want := []byte{
		76, 76, 76, 255,
		150, 150, 150, 128,
		29, 29, 29, 0,
		128, 128, 128, 7,
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("unexpected pixels %v", got)
	}
	if in[0] != 255 || in[1] != 0 {
		t.Fatalf("input was modified")
	}
}

func TestClampByte(t *testing.T) {
	tests := []struct {
		in   float64
		want uint8
	}{
		{2.5, 2},
		{3.5, 4},
		{76.245, 76},
		{-3, 0},
		{300, 255},
		{254.5, 254},
	}
	for _, tt := range tests {
		if got := clampByte(tt.in); got != tt.want {
			t.Fatalf("clampByte(%v) = %d", tt.in, got)
		}
	}
}

func TestPDFLeaves(t *testing.T) {
	data := pdftest.SinglePage(72, 36, "BT /F1 10 Tf 2 20 Td (CERTIFICATE   OF) Tj 0 -12 Td (COMPLETION) Tj ET")
	doc, err := Classify(data, "application/pdf")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	env := DefaultEnv()
	ctx := context.Background()
	textHash, err := TextHash(ctx, doc, env)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if textHash != digest.String("CERTIFICATE OF COMPLETION") {
		t.Fatalf("unexpected text hash %s", textHash)
	}
	page, err := CanonicalPage(ctx, doc, env)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if page.Width() != 300 || page.Height() != 150 {
		t.Fatalf("unexpected canonical size %dx%d", page.Width(), page.Height())
	}
	again, err := CanonicalPage(ctx, doc, env)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ImageHash(page) != ImageHash(again) {
		t.Fatalf("render is not deterministic")
	}
	if ps, ok := doc.(PageSource); !ok || !ps.RegionsSupported() {
		t.Fatalf("pdf should accept regions")
	}
}

func TestPDFDecodeFailure(t *testing.T) {
	doc := NewPDF([]byte("not a pdf at all"))
	_, err := TextHash(context.Background(), doc, DefaultEnv())
	if !IsKind(err, KindDecodeFailure) {
		t.Fatalf("expected decode-failure, got %v", err)
	}
}

func TestPDFEncryptedUnsupported(t *testing.T) {
	data := append(pdftest.SinglePage(10, 10, ""),
		"99 0 obj\n<< /Filter /Adobe.PubSec /V 4 >>\nendobj\ntrailer\n<< /Encrypt 99 0 R >>\n"...)
	_, err := TextHash(context.Background(), NewPDF(data), DefaultEnv())
	if !IsKind(err, KindDecodeFailure) || !errors.Is(err, security.ErrUnsupported) {
		t.Fatalf("expected unsupported decode-failure, got %v", err)
	}
}

type failingRenderer struct{}

func (failingRenderer) Render(context.Context, *extractor.Extractor, int, float64) (*render.Page, error) {
	return nil, errors.New("boom")
}

func TestPDFRenderFailure(t *testing.T) {
	env := DefaultEnv()
	env.Renderer = failingRenderer{}
	doc := NewPDF(pdftest.SinglePage(10, 10, ""))
	_, err := CanonicalPage(context.Background(), doc, env)
	if !IsKind(err, KindRenderFailure) {
		t.Fatalf("expected render-failure, got %v", err)
	}
	env.Renderer = nil
	if _, err := CanonicalPage(context.Background(), doc, env); !IsKind(err, KindRenderFailure) {
		t.Fatalf("expected render-failure without renderer, got %v", err)
	}
}

func TestImageLeaves(t *testing.T) {
	data := pngBytes(t, 4, 3, color.NRGBA{R: 255, A: 255})
	doc, err := Classify(data, "image/png")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	env := DefaultEnv()
	env.OCR = ocr.Static{Text: "  SCANNED\n text "}
	ctx := context.Background()
	page, err := CanonicalPage(ctx, doc, env)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if page.Width() != 4 || page.Height() != 3 {
		t.Fatalf("unexpected size %dx%d", page.Width(), page.Height())
	}
	want := bytes.Repeat([]byte{76, 76, 76, 255}, 12)
	if ImageHash(page) != digest.Hex(want) {
		t.Fatalf("unexpected image hash")
	}
	textHash, err := TextHash(ctx, doc, env)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if textHash != digest.String("SCANNED text") {
		t.Fatalf("unexpected text hash %s", textHash)
	}
	if ps, ok := doc.(PageSource); !ok || ps.RegionsSupported() {
		t.Fatalf("image should not accept regions by default")
	}
}

func TestImageFailures(t *testing.T) {
	ctx := context.Background()
	env := DefaultEnv()
	bad := NewImage([]byte("garbage"), "image/png")
	if _, err := CanonicalPage(ctx, bad, env); !IsKind(err, KindDecodeFailure) {
		t.Fatalf("expected decode-failure, got %v", err)
	}
	good := NewImage(pngBytes(t, 2, 2, color.NRGBA{A: 255}), "image/png")
	if _, err := TextHash(ctx, good, env); !IsKind(err, KindOCRFailure) {
		t.Fatalf("expected ocr-failure with OCR disabled, got %v", err)
	}
}

func TestTextDocument(t *testing.T) {
	doc, err := Classify([]byte("  hello\n\nworld \xff"), "text/plain")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := TextHash(context.Background(), doc, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != digest.String("hello world \uFFFD") {
		t.Fatalf("unexpected text hash %s", got)
	}
	if _, err := CanonicalPage(context.Background(), doc, nil); !IsKind(err, KindUnsupportedType) {
		t.Fatalf("expected unsupported-type for text page, got %v", err)
	}
}

func TestCancellationPassesThrough(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	doc := NewPDF(pdftest.SinglePage(10, 10, ""))
	_, err := TextHash(ctx, doc, DefaultEnv())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if IsKind(err, KindDecodeFailure) {
		t.Fatalf("cancellation reported as decode failure")
	}
	// a cancelled first attempt does not stick
	if _, err := TextHash(context.Background(), doc, DefaultEnv()); err != nil {
		t.Fatalf("unexpected error after retry: %v", err)
	}
}

func TestImageRejectsOversizedHeader(t *testing.T) {
	data := pngBytes(t, 1, 1, color.NRGBA{A: 255})
	// IHDR width and height follow the 8-byte signature and chunk header
	binary.BigEndian.PutUint32(data[16:20], 60000)
	binary.BigEndian.PutUint32(data[20:24], 60000)
	binary.BigEndian.PutUint32(data[29:33], crc32.ChecksumIEEE(data[12:29]))

	_, err := NewImage(data, "image/png").Page(context.Background(), DefaultEnv())
	if !IsKind(err, KindDecodeFailure) {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(err.Error(), "exceeds limit") {
		t.Fatalf("expected bounds error, got %v", err)
	}
}
