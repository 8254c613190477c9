package hittest

import "github.com/wudi/regionedit/coords"

// quadTree indexes rectangles by position. A rectangle lives in the deepest
// node whose bounds contain it; rectangles straddling a split stay in the
// parent.
type quadTree struct {
	bounds   coords.Rect
	capacity int
	depth    int
	entries  []entry
	nodes    []*quadTree
}

type entry struct {
	rect  coords.Rect
	index int
}

// maxTreeDepth stops subdivision for dense clusters of tiny rectangles.
const maxTreeDepth = 12

func newQuadTree(bounds coords.Rect, capacity, depth int) *quadTree {
	return &quadTree{
		bounds:   bounds,
		capacity: capacity,
		depth:    depth,
		entries:  make([]entry, 0, capacity),
	}
}

func (qt *quadTree) insert(rect coords.Rect, index int) bool {
	if !qt.bounds.Intersects(rect) {
		return false
	}
	if qt.nodes != nil {
		for _, node := range qt.nodes {
			if node.bounds.ContainsRect(rect) && node.insert(rect, index) {
				return true
			}
		}
		qt.entries = append(qt.entries, entry{rect: rect, index: index})
		return true
	}
	if len(qt.entries) < qt.capacity || qt.depth >= maxTreeDepth {
		qt.entries = append(qt.entries, entry{rect: rect, index: index})
		return true
	}
	qt.subdivide()
	old := qt.entries
	qt.entries = make([]entry, 0, qt.capacity)
	for _, e := range old {
		qt.insert(e.rect, e.index)
	}
	return qt.insert(rect, index)
}

func (qt *quadTree) subdivide() {
	b := qt.bounds
	w, h := b.Width/2, b.Height/2
	d := qt.depth + 1
	qt.nodes = []*quadTree{
		newQuadTree(coords.Rect{X: b.X, Y: b.Y + h, Width: w, Height: h}, qt.capacity, d),     // top-left
		newQuadTree(coords.Rect{X: b.X + w, Y: b.Y + h, Width: w, Height: h}, qt.capacity, d), // top-right
		newQuadTree(coords.Rect{X: b.X, Y: b.Y, Width: w, Height: h}, qt.capacity, d),         // bottom-left
		newQuadTree(coords.Rect{X: b.X + w, Y: b.Y, Width: w, Height: h}, qt.capacity, d),     // bottom-right
	}
}

// containing appends the indexes of every rectangle that contains p.
func (qt *quadTree) containing(p coords.Point, found []int) []int {
	if !qt.bounds.Contains(p) {
		return found
	}
	for _, e := range qt.entries {
		if e.rect.Contains(p) {
			found = append(found, e.index)
		}
	}
	for _, node := range qt.nodes {
		found = node.containing(p, found)
	}
	return found
}
