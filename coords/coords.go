// Package coords holds the affine matrix, point and rectangle types shared by
// the reader, extractor, hit tester and editor. All values are in PDF user
// space unless stated otherwise.
package coords

import (
	"errors"
	"math"
)

// ErrSingular is returned when a matrix has no inverse.
var ErrSingular = errors.New("matrix singular")

// Matrix is a PDF affine matrix [a b c d e f], mapping (x, y) to
// (a*x + c*y + e, b*x + d*y + f).
type Matrix [6]float64

// Identity returns the identity matrix.
func Identity() Matrix { return Matrix{1, 0, 0, 1, 0, 0} }

// Translate returns a translation matrix.
func Translate(tx, ty float64) Matrix { return Matrix{1, 0, 0, 1, tx, ty} }

// Scale returns a scaling matrix.
func Scale(sx, sy float64) Matrix { return Matrix{sx, 0, 0, sy, 0, 0} }

// Rotate returns a counter-clockwise rotation by angle radians.
func Rotate(angle float64) Matrix {
	c, s := math.Cos(angle), math.Sin(angle)
	return Matrix{c, s, -s, c, 0, 0}
}

// Multiply returns m × o, i.e. m applied first, then o.
func (m Matrix) Multiply(o Matrix) Matrix {
	return Matrix{
		m[0]*o[0] + m[1]*o[2],
		m[0]*o[1] + m[1]*o[3],
		m[2]*o[0] + m[3]*o[2],
		m[2]*o[1] + m[3]*o[3],
		m[4]*o[0] + m[5]*o[2] + o[4],
		m[4]*o[1] + m[5]*o[3] + o[5],
	}
}

// Transform applies m to p.
func (m Matrix) Transform(p Point) Point {
	return Point{
		X: m[0]*p.X + m[2]*p.Y + m[4],
		Y: m[1]*p.X + m[3]*p.Y + m[5],
	}
}

// Inverse returns the inverse of m.
func (m Matrix) Inverse() (Matrix, error) {
	det := m.Det()
	if math.Abs(det) < 1e-12 || !isFinite(det) {
		return Matrix{}, ErrSingular
	}
	return Matrix{
		m[3] / det,
		-m[1] / det,
		-m[2] / det,
		m[0] / det,
		(m[2]*m[5] - m[3]*m[4]) / det,
		(m[1]*m[4] - m[0]*m[5]) / det,
	}, nil
}

// Det returns the determinant of the linear part.
func (m Matrix) Det() float64 { return m[0]*m[3] - m[1]*m[2] }

// Finite reports whether every component is a finite number.
func (m Matrix) Finite() bool {
	for _, v := range m {
		if !isFinite(v) {
			return false
		}
	}
	return true
}

// XScale is the length of the transformed x unit vector.
func (m Matrix) XScale() float64 { return math.Hypot(m[0], m[1]) }

// YScale is the length of the transformed y unit vector.
func (m Matrix) YScale() float64 { return math.Hypot(m[2], m[3]) }

// AxisAligned reports whether m maps axis-aligned rectangles onto
// axis-aligned rectangles (no rotation other than quarter turns, no skew).
func (m Matrix) AxisAligned() bool {
	const eps = 1e-9
	return (math.Abs(m[1]) < eps && math.Abs(m[2]) < eps) ||
		(math.Abs(m[0]) < eps && math.Abs(m[3]) < eps)
}

// Point is a 2D position.
type Point struct{ X, Y float64 }

// Finite reports whether both coordinates are finite.
func (p Point) Finite() bool { return isFinite(p.X) && isFinite(p.Y) }

// Dist returns the euclidean distance between p and o.
func (p Point) Dist(o Point) float64 { return math.Hypot(p.X-o.X, p.Y-o.Y) }

// Rect is an axis-aligned rectangle anchored at its lower-left corner.
type Rect struct {
	X, Y          float64
	Width, Height float64
}

// RectFromCorners builds a rectangle from two opposite corners.
func RectFromCorners(llx, lly, urx, ury float64) Rect {
	if llx > urx {
		llx, urx = urx, llx
	}
	if lly > ury {
		lly, ury = ury, lly
	}
	return Rect{X: llx, Y: lly, Width: urx - llx, Height: ury - lly}
}

// Bounds returns the smallest rectangle containing every point.
func Bounds(points ...Point) Rect {
	if len(points) == 0 {
		return Rect{}
	}
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, p := range points {
		minX = math.Min(minX, p.X)
		minY = math.Min(minY, p.Y)
		maxX = math.Max(maxX, p.X)
		maxY = math.Max(maxY, p.Y)
	}
	return Rect{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}
}

// TransformRect maps the four corners of r through m and returns their
// axis-aligned bounds. Rotated and skewed runs are bounded correctly.
func TransformRect(m Matrix, r Rect) Rect {
	return Bounds(m.Corners(r)...)
}

// Corners returns the four corners of r mapped through m.
func (m Matrix) Corners(r Rect) []Point {
	return []Point{
		m.Transform(Point{X: r.X, Y: r.Y}),
		m.Transform(Point{X: r.X + r.Width, Y: r.Y}),
		m.Transform(Point{X: r.X, Y: r.Y + r.Height}),
		m.Transform(Point{X: r.X + r.Width, Y: r.Y + r.Height}),
	}
}

// MaxX is the right edge.
func (r Rect) MaxX() float64 { return r.X + r.Width }

// MaxY is the top edge.
func (r Rect) MaxY() float64 { return r.Y + r.Height }

// Area returns Width*Height.
func (r Rect) Area() float64 { return r.Width * r.Height }

// Empty reports whether the rectangle has no positive area.
func (r Rect) Empty() bool { return !(r.Width > 0 && r.Height > 0) }

// Finite reports whether every field is finite.
func (r Rect) Finite() bool {
	return isFinite(r.X) && isFinite(r.Y) && isFinite(r.Width) && isFinite(r.Height)
}

// Contains reports whether p lies inside r, edges included.
func (r Rect) Contains(p Point) bool {
	return p.X >= r.X && p.X <= r.MaxX() && p.Y >= r.Y && p.Y <= r.MaxY()
}

// ContainsRect reports whether o lies entirely inside r.
func (r Rect) ContainsRect(o Rect) bool {
	return o.X >= r.X && o.MaxX() <= r.MaxX() && o.Y >= r.Y && o.MaxY() <= r.MaxY()
}

// Intersects reports whether r and o overlap or touch.
func (r Rect) Intersects(o Rect) bool {
	return !(o.X > r.MaxX() || o.MaxX() < r.X || o.Y > r.MaxY() || o.MaxY() < r.Y)
}

// Intersect returns the overlap of r and o; the result is empty when they
// do not overlap.
func (r Rect) Intersect(o Rect) Rect {
	llx := math.Max(r.X, o.X)
	lly := math.Max(r.Y, o.Y)
	urx := math.Min(r.MaxX(), o.MaxX())
	ury := math.Min(r.MaxY(), o.MaxY())
	if urx <= llx || ury <= lly {
		return Rect{X: llx, Y: lly}
	}
	return Rect{X: llx, Y: lly, Width: urx - llx, Height: ury - lly}
}

// Center returns the midpoint of r.
func (r Rect) Center() Point { return Point{X: r.X + r.Width/2, Y: r.Y + r.Height/2} }

func isFinite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
