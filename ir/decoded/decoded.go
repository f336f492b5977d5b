package decoded

import (
	"context"

	"github.com/wudi/docseal/ir/raw"
)

// Object wraps a raw object after decoding.
type Object interface {
	Raw() raw.Object
	Type() string
}

// Stream represents a decoded PDF stream (decompressed).
type Stream interface {
	Object
	Dictionary() *raw.DictObj
	Data() []byte
	Filters() []string
	// Encoded reports that Data still holds an image codec payload such
	// as JPEG.
	Encoded() bool
}

// DecodedDocument contains decoded objects plus a back-reference to the raw doc.
type DecodedDocument struct {
	Raw       *raw.Document
	Streams   map[raw.ObjectRef]Stream
	Failures  map[raw.ObjectRef]error
	Encrypted bool
}

// Stream returns the decoded stream behind obj, following references.
func (d *DecodedDocument) Stream(obj raw.Object) (Stream, error) {
	if ref, ok := obj.(raw.RefObj); ok {
		if err, failed := d.Failures[ref.R]; failed {
			return nil, err
		}
		if s, ok := d.Streams[ref.R]; ok {
			return s, nil
		}
	}
	target, ok := d.Raw.Resolve(obj).(*raw.StreamObj)
	if !ok {
		return nil, ErrMissingStream
	}
	// ref chains and generation mismatches end up here
	for _, s := range d.Streams {
		if s.Raw() == raw.Object(target) {
			return s, nil
		}
	}
	for ref, err := range d.Failures {
		if d.Raw.Objects[ref] == raw.Object(target) {
			return nil, err
		}
	}
	return nil, ErrMissingStream
}

// Decoder transforms Raw IR into Decoded IR (applies filters).
type Decoder interface {
	Decode(ctx context.Context, rawDoc *raw.Document) (*DecodedDocument, error)
}
