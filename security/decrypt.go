package security

import (
	"context"
	"fmt"

	"github.com/wudi/docseal/ir/raw"
)

// Decrypt replaces the strings and stream payloads of an encrypted doc
// with plaintext and clears doc.Encrypted. Objects are decrypted in place;
// filter decoding is left to the caller.
func Decrypt(ctx context.Context, doc *raw.Document, password string) error {
	if doc == nil || !doc.Encrypted {
		return nil
	}
	h, err := NewHandler(doc)
	if err != nil {
		return err
	}
	if err := h.Authenticate(password); err != nil {
		return err
	}
	var skip raw.ObjectRef
	if ref, ok := doc.Trailer.Get("Encrypt").(raw.RefObj); ok {
		skip = ref.R
	}

	n := 0
	for ref, obj := range doc.Objects {
		if n++; n%256 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		if ref == skip {
			continue
		}
		stream, ok := obj.(*raw.StreamObj)
		if !ok {
			doc.Objects[ref] = h.value(ref, obj)
			continue
		}
		typ, _ := doc.Name(stream.Dict.Get("Type"))
		if typ == "XRef" {
			continue
		}
		dict, _ := h.value(ref, stream.Dict).(*raw.DictObj)
		if typ == "Metadata" && !h.encryptMeta {
			doc.Objects[ref] = raw.NewStream(dict, stream.Data)
			continue
		}
		data, err := h.stream(doc, ref, dict, stream.Data)
		if err != nil {
			return fmt.Errorf("decrypt object %v: %w", ref, err)
		}
		doc.Objects[ref] = raw.NewStream(dict, data)
	}
	doc.Encrypted = false
	return nil
}

// stream decrypts a stream payload. A leading /Crypt filter selects the
// crypt filter and is removed from dict so filter decoding skips it.
func (h *Handler) stream(doc *raw.Document, ref raw.ObjectRef, dict *raw.DictObj, data []byte) ([]byte, error) {
	filter, ok := cryptFilter(doc, dict)
	if !ok {
		return h.Decrypt(ref, data, DataClassStream)
	}
	return h.DecryptWithFilter(ref, data, filter)
}

func cryptFilter(doc *raw.Document, dict *raw.DictObj) (string, bool) {
	var first raw.Object
	var rest *raw.ArrayObj
	switch f := doc.Resolve(dict.Get("Filter")).(type) {
	case raw.NameObj:
		first = f
	case *raw.ArrayObj:
		first = f.Get(0)
		rest = raw.NewArray(f.Items[min(1, len(f.Items)):]...)
	}
	if name, _ := doc.Name(first); name != "Crypt" {
		return "", false
	}
	var params *raw.DictObj
	switch p := doc.Resolve(dict.Get("DecodeParms")).(type) {
	case *raw.DictObj:
		params = p
		delete(dict.KV, "DecodeParms")
	case *raw.ArrayObj:
		params = doc.Dict(p.Get(0))
		if p.Len() > 0 {
			dict.Set("DecodeParms", raw.NewArray(p.Items[1:]...))
		}
	}
	if rest != nil && rest.Len() > 0 {
		dict.Set("Filter", rest)
	} else {
		delete(dict.KV, "Filter")
	}
	name, _ := doc.Name(params.Get("Name"))
	return name, true
}

// value returns obj with every string decrypted. Containers are copied.
func (h *Handler) value(ref raw.ObjectRef, obj raw.Object) raw.Object {
	switch v := obj.(type) {
	case raw.StringObj:
		plain, err := h.Decrypt(ref, v.Bytes, DataClassString)
		if err != nil {
			return v
		}
		return raw.StringObj{Bytes: plain, Hex: v.Hex}
	case *raw.ArrayObj:
		out := raw.NewArray()
		for _, item := range v.Items {
			out.Append(h.value(ref, item))
		}
		return out
	case *raw.DictObj:
		out := raw.Dict()
		for k, item := range v.KV {
			out.Set(k, h.value(ref, item))
		}
		return out
	}
	return obj
}
