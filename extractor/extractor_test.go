package extractor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/wudi/docseal/filters"
	"github.com/wudi/docseal/internal/pdftest"
	"github.com/wudi/docseal/ir/decoded"
	"github.com/wudi/docseal/ir/raw"
)

func open(t *testing.T, data []byte) *Extractor {
	t.Helper()
	rawDoc, err := raw.NewParser(raw.ParserConfig{}).Parse(context.Background(), data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	dec, err := decoded.NewDecoder(filters.NewDefaultPipeline(filters.Limits{})).Decode(context.Background(), rawDoc)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	e, err := New(dec)
	if err != nil {
		t.Fatalf("extractor: %v", err)
	}
	return e
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestExtractTextRunsAndPages(t *testing.T) {
	data := pdftest.Document(
		pdftest.Page{Width: 200, Height: 200, Content: "BT /F1 12 Tf 10 180 Td (Hello) Tj 0 -14 Td (World) Tj ET"},
		pdftest.Page{Width: 200, Height: 200, Content: "BT /F1 12 Tf [(Sec) -20 (ond)] TJ T* (line) ' ET"},
	)
	text, err := open(t, data).Text(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "Hello World\nSecond line" {
		t.Fatalf("unexpected text %q", text)
	}
}

func TestExtractTextTJWordGap(t *testing.T) {
	data := pdftest.SinglePage(100, 100, "BT /F1 10 Tf [(one) -400 (two)] TJ ET")
	text, err := open(t, data).Text(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "one two" {
		t.Fatalf("unexpected text %q", text)
	}
}

func TestExtractTextWinAnsiAndDifferences(t *testing.T) {
	b := pdftest.New()
	font := b.Add("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding << /BaseEncoding /WinAnsiEncoding /Differences [65 /Euro /uni0416] >> >>")
	content := b.AddStream("", []byte("BT /X 9 Tf (AB\x80\xe9) Tj ET"))
	tree := b.Reserve()
	page := b.Add(fmt.Sprintf("<< /Type /Page /Parent %d 0 R /Resources << /Font << /X %d 0 R >> >> /Contents %d 0 R >>", tree, font, content))
	b.Set(tree, fmt.Sprintf("<< /Type /Pages /Kids [%d 0 R] /Count 1 >>", page))
	root := b.Add(fmt.Sprintf("<< /Type /Catalog /Pages %d 0 R >>", tree))

	text, err := open(t, b.Bytes(root)).Text(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "€Ж€é" {
		t.Fatalf("unexpected text %q", text)
	}
}

func TestExtractTextToUnicodeType0(t *testing.T) {
	cmap := "/CIDInit /ProcSet findresource begin 12 dict begin begincmap\n" +
		"1 begincodespacerange <0000> <FFFF> endcodespacerange\n" +
		"2 beginbfchar <0001> <0048> <0002> <0069> endbfchar\n" +
		"1 beginbfrange <0010> <0012> <0061> endbfrange\n" +
		"1 beginbfrange <0020> <0021> [<00DF> <D83DDE00>] endbfrange\n" +
		"endcmap CMapName currentdict /CMap defineresource pop end end"
	b := pdftest.New()
	tu := b.AddFlateStream("", []byte(cmap))
	cid := b.Add("<< /Type /Font /Subtype /CIDFontType2 /BaseFont /X /DW 500 /W [1 [600 700]] >>")
	font := b.Add(fmt.Sprintf("<< /Type /Font /Subtype /Type0 /BaseFont /X /Encoding /Identity-H /DescendantFonts [%d 0 R] /ToUnicode %d 0 R >>", cid, tu))
	content := b.AddStream("", []byte("BT /T0 10 Tf <000100020010001100120020 0021> Tj ET"))
	tree := b.Reserve()
	page := b.Add(fmt.Sprintf("<< /Type /Page /Parent %d 0 R /Resources << /Font << /T0 %d 0 R >> >> /Contents %d 0 R >>", tree, font, content))
	b.Set(tree, fmt.Sprintf("<< /Type /Pages /Kids [%d 0 R] /Count 1 >>", page))
	root := b.Add(fmt.Sprintf("<< /Type /Catalog /Pages %d 0 R >>", tree))

	e := open(t, b.Bytes(root))
	text, err := e.Text(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "Hiabcß😀" {
		t.Fatalf("unexpected text %q", text)
	}

	f := e.NewFontCache().Get(e.Pages()[0].Resources, "T0")
	glyphs := f.Glyphs([]byte{0, 1, 0, 2, 0, 9})
	if len(glyphs) != 3 || !near(glyphs[0].Width, 0.6) || !near(glyphs[1].Width, 0.7) || !near(glyphs[2].Width, 0.5) {
		t.Fatalf("unexpected glyph widths %+v", glyphs)
	}
}

func TestExtractTextFollowsForms(t *testing.T) {
	b := pdftest.New()
	font := b.Add("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>")
	form := b.AddStream(fmt.Sprintf("/Type /XObject /Subtype /Form /BBox [0 0 100 100] /Resources << /Font << /F1 %d 0 R >> >>", font),
		[]byte("BT /F1 10 Tf (inside) Tj ET /Fm0 Do"))
	content := b.AddStream("", []byte("BT /F1 10 Tf (before) Tj ET /Fm0 Do"))
	tree := b.Reserve()
	page := b.Add(fmt.Sprintf("<< /Type /Page /Parent %d 0 R /Resources << /Font << /F1 %d 0 R >> /XObject << /Fm0 %d 0 R >> >> /Contents %d 0 R >>", tree, font, form, content))
	b.Set(tree, fmt.Sprintf("<< /Type /Pages /Kids [%d 0 R] /Count 1 >>", page))
	root := b.Add(fmt.Sprintf("<< /Type /Catalog /Pages %d 0 R >>", tree))

	text, err := open(t, b.Bytes(root)).Text(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// the form's own resources do not name Fm0, so the nested Do is a no-op
	if text != "before inside" {
		t.Fatalf("unexpected text %q", text)
	}
}

func TestPageInheritance(t *testing.T) {
	b := pdftest.New()
	tree := b.Reserve()
	mid := b.Reserve()
	content := b.AddStream("", nil)
	p1 := b.Add(fmt.Sprintf("<< /Type /Page /Parent %d 0 R /Contents %d 0 R >>", mid, content))
	p2 := b.Add(fmt.Sprintf("<< /Type /Page /Parent %d 0 R /Contents %d 0 R /CropBox [10 10 110 60] /Rotate -90 >>", tree, content))
	b.Set(mid, fmt.Sprintf("<< /Type /Pages /Parent %d 0 R /Kids [%d 0 R] /Count 1 /Rotate 90 >>", tree, p1))
	b.Set(tree, fmt.Sprintf("<< /Type /Pages /Kids [%d 0 R %d 0 R] /Count 2 /MediaBox [0 0 300 400] >>", mid, p2))
	root := b.Add(fmt.Sprintf("<< /Type /Catalog /Pages %d 0 R >>", tree))

	pages := open(t, b.Bytes(root)).Pages()
	if len(pages) != 2 {
		t.Fatalf("expected 2 pages, got %d", len(pages))
	}
	if w, h := pages[0].Size(); w != 400 || h != 300 || pages[0].Rotate != 90 {
		t.Fatalf("unexpected first page geometry %vx%v rotate %d", w, h, pages[0].Rotate)
	}
	if w, h := pages[1].Size(); w != 50 || h != 100 || pages[1].Rotate != 270 {
		t.Fatalf("unexpected second page geometry %vx%v rotate %d", w, h, pages[1].Rotate)
	}
}

func TestObjectStreamInflation(t *testing.T) {
	// catalog and page tree live inside an object stream
	b := pdftest.New()
	content := b.AddStream("", []byte("BT /F1 1 Tf (packed) Tj ET"))
	bodies := []string{
		"<< /Type /Catalog /Pages 11 0 R >>",
		"<< /Type /Pages /Kids [12 0 R] /Count 1 >>",
		fmt.Sprintf("<< /Type /Page /Parent 11 0 R /Contents %d 0 R >>", content),
	}
	var header, body string
	for i, obj := range bodies {
		header += fmt.Sprintf("%d %d ", 10+i, len(body))
		body += obj + " "
	}
	b.AddFlateStream(fmt.Sprintf("/Type /ObjStm /N 3 /First %d", len(header)), []byte(header+body))
	data := b.Bytes(10)

	text, err := open(t, data).Text(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "packed" {
		t.Fatalf("unexpected text %q", text)
	}
}

func TestNewErrors(t *testing.T) {
	_, err := New(&decoded.DecodedDocument{Raw: &raw.Document{}, Encrypted: true})
	if !errors.Is(err, ErrEncrypted) {
		t.Fatalf("expected ErrEncrypted, got %v", err)
	}
	_, err = New(&decoded.DecodedDocument{Raw: &raw.Document{Objects: map[raw.ObjectRef]raw.Object{}}})
	if !errors.Is(err, ErrNoCatalog) {
		t.Fatalf("expected ErrNoCatalog, got %v", err)
	}
}

func TestParseContentInlineImage(t *testing.T) {
	ops, err := ParseContent([]byte("q 2 0 0 2 0 0 cm BI /W 2 /H 1 /CS /G /BPC 8 ID \x00\xff EI Q"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var names []string
	for _, op := range ops {
		names = append(names, op.Name)
	}
	if strings.Join(names, " ") != "q cm BI Q" {
		t.Fatalf("unexpected ops %v", names)
	}
	img := ops[2].Inline
	if img == nil || len(img.Data) != 2 || img.Dict.Get("W") == nil {
		t.Fatalf("unexpected inline image %+v", img)
	}
	if ops[1].Float(5) != 0 || ops[1].Float(0) != 2 {
		t.Fatalf("unexpected cm operands %v", ops[1].Floats())
	}
}
