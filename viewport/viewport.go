// Package viewport converts between page user space (bottom-left origin, y up,
// points) and device space (top-left origin, y down, pixels) for a rendered
// page. Rotation is restricted to quarter turns, matching the /Rotate entry
// of a page.
package viewport

import (
	"errors"
	"fmt"
	"math"

	"github.com/wudi/regionedit/coords"
)

// ErrInvalid is returned by Validate for unusable view parameters.
var ErrInvalid = errors.New("invalid viewport")

// Viewport captures the view parameters of one rendered page.
type Viewport struct {
	// Zoom is device pixels per point (1 means 72 dpi).
	Zoom float64
	// Rotation is the clockwise display rotation in degrees: 0, 90, 180 or 270.
	Rotation int
	// PageWidth and PageHeight are the unrotated page size in points.
	PageWidth  float64
	PageHeight float64
	// Origin is the device position of the rendered page's top-left corner.
	Origin coords.Point
	// PageOrigin is the lower-left corner of the page box in user space,
	// usually (0, 0).
	PageOrigin coords.Point
}

// ForPage returns a viewport at the given zoom for a page box, with no
// rotation and no device offset.
func ForPage(box coords.Rect, zoom float64) Viewport {
	return Viewport{
		Zoom:       zoom,
		PageWidth:  box.Width,
		PageHeight: box.Height,
		PageOrigin: coords.Point{X: box.X, Y: box.Y},
	}
}

// Validate reports whether the viewport can be used for conversion.
func (v Viewport) Validate() error {
	switch {
	case !finite(v.Zoom) || v.Zoom <= 0:
		return fmt.Errorf("%w: zoom %v", ErrInvalid, v.Zoom)
	case !finite(v.PageWidth) || !finite(v.PageHeight) || v.PageWidth <= 0 || v.PageHeight <= 0:
		return fmt.Errorf("%w: page size %vx%v", ErrInvalid, v.PageWidth, v.PageHeight)
	case !v.Origin.Finite() || !v.PageOrigin.Finite():
		return fmt.Errorf("%w: non-finite origin", ErrInvalid)
	}
	if _, ok := normalizeRotation(v.Rotation); !ok {
		return fmt.Errorf("%w: rotation %d", ErrInvalid, v.Rotation)
	}
	return nil
}

// DeviceSize returns the rendered page extent in device pixels.
func (v Viewport) DeviceSize() (width, height float64) {
	rot, _ := normalizeRotation(v.Rotation)
	if rot == 90 || rot == 270 {
		return v.PageHeight * v.Zoom, v.PageWidth * v.Zoom
	}
	return v.PageWidth * v.Zoom, v.PageHeight * v.Zoom
}

// ToDeviceSpace maps a page-space point into device pixels.
func ToDeviceSpace(p coords.Point, v Viewport) coords.Point {
	w, h := v.PageWidth, v.PageHeight
	// page-relative, flipped to a top-left origin
	x := p.X - v.PageOrigin.X
	y := h - (p.Y - v.PageOrigin.Y)

	rot, _ := normalizeRotation(v.Rotation)
	switch rot {
	case 90:
		x, y = h-y, x
	case 180:
		x, y = w-x, h-y
	case 270:
		x, y = y, w-x
	}
	return coords.Point{
		X: x*v.Zoom + v.Origin.X,
		Y: y*v.Zoom + v.Origin.Y,
	}
}

// ToPageSpace maps a device pixel back into page space. It is the exact
// inverse of ToDeviceSpace.
func ToPageSpace(d coords.Point, v Viewport) coords.Point {
	w, h := v.PageWidth, v.PageHeight
	x := (d.X - v.Origin.X) / v.Zoom
	y := (d.Y - v.Origin.Y) / v.Zoom

	rot, _ := normalizeRotation(v.Rotation)
	switch rot {
	case 90:
		x, y = y, h-x
	case 180:
		x, y = w-x, h-y
	case 270:
		x, y = w-y, x
	}
	return coords.Point{
		X: x + v.PageOrigin.X,
		Y: (h - y) + v.PageOrigin.Y,
	}
}

// Matrix returns the page-to-device transform as an affine matrix.
func (v Viewport) Matrix() coords.Matrix {
	o := ToDeviceSpace(coords.Point{}, v)
	ex := ToDeviceSpace(coords.Point{X: 1}, v)
	ey := ToDeviceSpace(coords.Point{Y: 1}, v)
	return coords.Matrix{ex.X - o.X, ex.Y - o.Y, ey.X - o.X, ey.Y - o.Y, o.X, o.Y}
}

// RectToDevice maps a page-space rectangle to its device-space bounds
// (top-left corner in X/Y).
func RectToDevice(r coords.Rect, v Viewport) coords.Rect {
	return coords.TransformRect(v.Matrix(), r)
}

func normalizeRotation(rot int) (int, bool) {
	rot %= 360
	if rot < 0 {
		rot += 360
	}
	if rot%90 != 0 {
		return 0, false
	}
	return rot, true
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
