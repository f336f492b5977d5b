package content

import (
	"context"
	"strings"
)

// Text is a plain text file. It has no image leaf.
type Text struct {
	data []byte
	mime string
}

// NewText wraps data.
func NewText(data []byte, mimeType string) *Text { return &Text{data: data, mime: mimeType} }

func (t *Text) Variant() Variant { return VariantText }
func (t *Text) MIME() string     { return t.mime }
func (t *Text) Len() int         { return len(t.data) }

// Text decodes the bytes as UTF-8, replacing invalid sequences with U+FFFD.
func (t *Text) Text(ctx context.Context, _ *Env) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return strings.ToValidUTF8(string(t.data), "\uFFFD"), nil
}
