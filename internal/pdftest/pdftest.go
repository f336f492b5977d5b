// Package pdftest assembles small PDF files for tests.
package pdftest

import (
	"bytes"
	"compress/zlib"
	"fmt"
)

// Builder collects indirect objects and serializes them with a classic
// cross-reference table.
type Builder struct {
	objects [][]byte
}

// New returns an empty builder.
func New() *Builder { return &Builder{} }

// Add appends an object body such as "<< /Type /Catalog >>" and returns its
// object number.
func (b *Builder) Add(body string) int {
	b.objects = append(b.objects, []byte(body))
	return len(b.objects)
}

// Reserve allocates an object number to be filled by Set.
func (b *Builder) Reserve() int { return b.Add("null") }

// Set replaces the body of object num.
func (b *Builder) Set(num int, body string) { b.objects[num-1] = []byte(body) }

// AddStream appends a stream object. extra is spliced into the stream
// dictionary; /Length is filled in.
func (b *Builder) AddStream(extra string, data []byte) int {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "<< %s /Length %d >>\nstream\n", extra, len(data))
	buf.Write(data)
	buf.WriteString("\nendstream")
	b.objects = append(b.objects, buf.Bytes())
	return len(b.objects)
}

// AddFlateStream compresses data and appends it with /Filter /FlateDecode.
func (b *Builder) AddFlateStream(extra string, data []byte) int {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	w.Write(data)
	w.Close()
	return b.AddStream(extra+" /Filter /FlateDecode", buf.Bytes())
}

// Bytes serializes the document with root as the catalog.
func (b *Builder) Bytes(root int) []byte {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.7\n%\xe2\xe3\xcf\xd3\n")
	offsets := make([]int, len(b.objects))
	for i, body := range b.objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n", i+1)
		buf.Write(body)
		buf.WriteString("\nendobj\n")
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(b.objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root %d 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(b.objects)+1, root, xref)
	return buf.Bytes()
}

// Page describes one page for Document.
type Page struct {
	Width, Height float64
	Content       string
	// Resources is spliced into the page /Resources dictionary next to
	// the standard /F1 Helvetica font.
	Resources string
	// Extra is spliced into the page dictionary, e.g. "/Rotate 90".
	Extra string
}

// Document builds a PDF with the given pages. Every page can use /F1.
func Document(pages ...Page) []byte {
	b := New()
	catalog := b.Reserve()
	tree := b.Reserve()
	font := b.Add("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>")
	kids := ""
	for _, p := range pages {
		content := b.AddStream("", []byte(p.Content))
		page := b.Add(fmt.Sprintf(
			"<< /Type /Page /Parent %d 0 R /MediaBox [0 0 %g %g] /Resources << /Font << /F1 %d 0 R >> %s >> /Contents %d 0 R %s >>",
			tree, p.Width, p.Height, font, p.Resources, content, p.Extra))
		kids += fmt.Sprintf("%d 0 R ", page)
	}
	b.Set(tree, fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", kids, len(pages)))
	b.Set(catalog, fmt.Sprintf("<< /Type /Catalog /Pages %d 0 R >>", tree))
	return b.Bytes(catalog)
}

// SinglePage is Document with one page.
func SinglePage(width, height float64, content string) []byte {
	return Document(Page{Width: width, Height: height, Content: content})
}
