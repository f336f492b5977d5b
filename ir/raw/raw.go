package raw

import (
	"context"
	"fmt"
)

// ObjectRef uniquely identifies an indirect PDF object.
type ObjectRef struct {
	Num int
	Gen int
}

func (r ObjectRef) String() string { return fmt.Sprintf("%d %d R", r.Num, r.Gen) }

// Object is the base interface for all raw PDF objects.
type Object interface {
	Type() string
}

// Document is the root container for raw PDF objects.
type Document struct {
	Objects   map[ObjectRef]Object
	Trailer   *DictObj
	Version   string // e.g., "1.7"
	Encrypted bool
}

// Parser converts bytes into a raw.Document.
type Parser interface {
	Parse(ctx context.Context, data []byte) (*Document, error)
}

// Resolve follows indirect references until a direct object is reached.
// Cycles and dangling references resolve to nil.
func (d *Document) Resolve(obj Object) Object {
	for depth := 0; depth < 32; depth++ {
		ref, ok := obj.(RefObj)
		if !ok {
			return obj
		}
		if d == nil {
			return nil
		}
		next, found := d.Objects[ref.R]
		if !found {
			// generation mismatches are common in repaired files
			next, found = d.lookupAnyGen(ref.R.Num)
			if !found {
				return nil
			}
		}
		obj = next
	}
	return nil
}

func (d *Document) lookupAnyGen(num int) (Object, bool) {
	for ref, obj := range d.Objects {
		if ref.Num == num {
			return obj, true
		}
	}
	return nil, false
}

// Dict resolves obj and returns it as a dictionary. Streams yield their
// dictionary.
func (d *Document) Dict(obj Object) *DictObj {
	switch v := d.Resolve(obj).(type) {
	case *DictObj:
		return v
	case *StreamObj:
		return v.Dict
	}
	return nil
}

// Array resolves obj and returns it as an array.
func (d *Document) Array(obj Object) *ArrayObj {
	if arr, ok := d.Resolve(obj).(*ArrayObj); ok {
		return arr
	}
	return nil
}

// Stream resolves obj and returns it as a stream.
func (d *Document) Stream(obj Object) *StreamObj {
	if s, ok := d.Resolve(obj).(*StreamObj); ok {
		return s
	}
	return nil
}

// Number resolves obj and returns its numeric value.
func (d *Document) Number(obj Object) (float64, bool) {
	if n, ok := d.Resolve(obj).(NumberObj); ok {
		return n.Float(), true
	}
	return 0, false
}

// Int resolves obj and returns its integer value.
func (d *Document) Int(obj Object) (int, bool) {
	if n, ok := d.Resolve(obj).(NumberObj); ok {
		return int(n.Int()), true
	}
	return 0, false
}

// Name resolves obj and returns the name value.
func (d *Document) Name(obj Object) (string, bool) {
	if n, ok := d.Resolve(obj).(NameObj); ok {
		return n.Val, true
	}
	return "", false
}

// Catalog returns the document catalog referenced by the trailer.
func (d *Document) Catalog() *DictObj {
	if d == nil || d.Trailer == nil {
		return nil
	}
	return d.Dict(d.Trailer.Get("Root"))
}
