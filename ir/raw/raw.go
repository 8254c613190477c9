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
	IsIndirect() bool
}

// Dictionary represents a PDF dictionary object.
type Dictionary interface {
	Object
	Get(key Name) (Object, bool)
	Set(key Name, value Object)
	Keys() []Name
	Len() int
}

// Array represents a PDF array object.
type Array interface {
	Object
	Get(index int) (Object, bool)
	Len() int
	Append(obj Object)
}

// Stream represents a raw (undecoded) PDF stream.
type Stream interface {
	Object
	Dictionary() Dictionary
	RawData() []byte
	Length() int64
}

// Name represents a PDF name object.
type Name interface {
	Object
	Value() string
}

// String represents a PDF string (literal or hex).
type String interface {
	Object
	Value() []byte
	IsHex() bool
}

// Number represents a PDF numeric value.
type Number interface {
	Object
	Int() int64
	Float() float64
	IsInteger() bool
}

// Boolean represents a PDF boolean.
type Boolean interface {
	Object
	Value() bool
}

// Null represents the PDF null object.
type Null interface{ Object }

// Reference represents an indirect object reference.
type Reference interface {
	Object
	Ref() ObjectRef
}

// Document is the root container for raw PDF objects. When a file carries
// incremental updates, the definition that appears last in the file wins.
type Document struct {
	Objects map[ObjectRef]Object
	// Offsets records the byte offset of the winning definition of each
	// object. Objects recovered from object streams are recorded at the
	// offset of their container.
	Offsets   map[ObjectRef]int64
	Trailer   *DictObj
	Version   string // e.g., "1.7"
	StartXRef int64  // offset named by the last startxref keyword, or -1
	Encrypted bool
}

// Parser converts bytes into a raw.Document.
type Parser interface {
	Parse(ctx context.Context, data []byte) (*Document, error)
}

const maxResolveDepth = 32

// Resolve follows indirect references until it reaches a direct object.
// Dangling references resolve to nil.
func (d *Document) Resolve(obj Object) Object {
	for i := 0; i < maxResolveDepth; i++ {
		ref, ok := obj.(Reference)
		if !ok {
			return obj
		}
		next, ok := d.Objects[ref.Ref()]
		if !ok {
			return nil
		}
		obj = next
	}
	return nil
}

// Dict resolves obj to a dictionary. Streams yield their dictionary.
func (d *Document) Dict(obj Object) (*DictObj, bool) {
	switch v := d.Resolve(obj).(type) {
	case *DictObj:
		return v, true
	case *StreamObj:
		return v.Dict, true
	}
	return nil, false
}

// Array resolves obj to an array.
func (d *Document) Array(obj Object) (*ArrayObj, bool) {
	a, ok := d.Resolve(obj).(*ArrayObj)
	return a, ok
}

// Stream resolves obj to a stream.
func (d *Document) Stream(obj Object) (*StreamObj, bool) {
	s, ok := d.Resolve(obj).(*StreamObj)
	return s, ok
}

// Number resolves obj to a float.
func (d *Document) Number(obj Object) (float64, bool) {
	if n, ok := d.Resolve(obj).(Number); ok {
		return n.Float(), true
	}
	return 0, false
}

// Name resolves obj to a name value.
func (d *Document) Name(obj Object) (string, bool) {
	if n, ok := d.Resolve(obj).(Name); ok {
		return n.Value(), true
	}
	return "", false
}

// MaxObjectNum returns the highest object number defined or referenced by
// the trailer /Size, whichever is larger.
func (d *Document) MaxObjectNum() int {
	max := 0
	for ref := range d.Objects {
		if ref.Num > max {
			max = ref.Num
		}
	}
	if d.Trailer != nil {
		if size, ok := d.Number(d.Trailer.Lookup("Size")); ok && int(size)-1 > max {
			max = int(size) - 1
		}
	}
	return max
}
