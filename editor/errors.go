package editor

import (
	"errors"
	"fmt"
)

// Failure kinds. Every error returned by the applier is an *Error whose Kind
// is one of these, so errors.Is works against them.
var (
	// ErrInvalidRegion means the target region does not render in the
	// current document, typically a stale id.
	ErrInvalidRegion = errors.New("invalid region")
	// ErrInvalidGeometry covers non-finite coordinates, a bad font size, a
	// page index out of range and boxes entirely off the page.
	ErrInvalidGeometry = errors.New("invalid geometry")
	// ErrUnsupportedFont is never returned; it is logged when the region's
	// own font cannot be reused and a substitute is drawn instead.
	ErrUnsupportedFont = errors.New("unsupported font")
	// ErrSerialization means the updated document could not be written.
	ErrSerialization = errors.New("serialization failure")
)

// Error describes a failed edit.
type Error struct {
	Op        string
	Kind      error
	RegionID  string
	PageIndex int
	Err       error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s page %d", e.Op, e.PageIndex)
	if e.RegionID != "" {
		msg += " region " + e.RegionID
	}
	msg += ": " + e.Kind.Error()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the failure kind.
func (e *Error) Is(target error) bool { return target == e.Kind }

func failure(op EditOperation, kind error, err error) *Error {
	return &Error{Op: "apply edit", Kind: kind, RegionID: op.TargetRegionID, PageIndex: op.PageIndex, Err: err}
}
