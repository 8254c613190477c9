// Package hittest resolves a pointer position to the text region under it.
package hittest

import (
	"github.com/wudi/regionedit/coords"
	"github.com/wudi/regionedit/extract"
	"github.com/wudi/regionedit/viewport"
)

// IndexThreshold is the region count above which a page is worth indexing.
const IndexThreshold = 256

// HitTest maps a device point into page space and returns the region that
// contains it. Overlaps resolve to the smallest region, then to the one
// later in extraction order. A miss is not an error.
func HitTest(device coords.Point, regions []extract.TextRegion, vp viewport.Viewport) (extract.TextRegion, bool) {
	p, ok := toPage(device, vp)
	if !ok {
		return extract.TextRegion{}, false
	}
	return At(p, regions)
}

// At is HitTest for a point already in page space.
func At(p coords.Point, regions []extract.TextRegion) (extract.TextRegion, bool) {
	best := -1
	for i := range regions {
		if regions[i].Contains(p) && (best < 0 || better(regions, i, best)) {
			best = i
		}
	}
	if best < 0 {
		return extract.TextRegion{}, false
	}
	return regions[best], true
}

func toPage(device coords.Point, vp viewport.Viewport) (coords.Point, bool) {
	if !device.Finite() || vp.Validate() != nil {
		return coords.Point{}, false
	}
	return viewport.ToPageSpace(device, vp), true
}

// better reports whether regions[i] should win over regions[j].
func better(regions []extract.TextRegion, i, j int) bool {
	ai, aj := regions[i].BoundingBox.Area(), regions[j].BoundingBox.Area()
	if ai != aj {
		return ai < aj
	}
	if regions[i].Order != regions[j].Order {
		return regions[i].Order > regions[j].Order
	}
	return i > j
}

// Index answers hit tests over a fixed region set in logarithmic time.
// Regions reaching outside the page bounds are kept in a linear overflow
// list.
type Index struct {
	regions  []extract.TextRegion
	tree     *quadTree
	overflow []int
}

const leafCapacity = 16

// NewIndex builds an index over regions within page bounds.
func NewIndex(regions []extract.TextRegion, bounds coords.Rect) *Index {
	ix := &Index{
		regions: append([]extract.TextRegion(nil), regions...),
		tree:    newQuadTree(bounds, leafCapacity, 0),
	}
	for i, r := range ix.regions {
		if !bounds.ContainsRect(r.BoundingBox) || !ix.tree.insert(r.BoundingBox, i) {
			ix.overflow = append(ix.overflow, i)
		}
	}
	return ix
}

// Len returns the number of indexed regions.
func (ix *Index) Len() int { return len(ix.regions) }

// Regions returns the indexed regions in extraction order.
func (ix *Index) Regions() []extract.TextRegion { return ix.regions }

// HitTest is the indexed form of the package-level HitTest.
func (ix *Index) HitTest(device coords.Point, vp viewport.Viewport) (extract.TextRegion, bool) {
	p, ok := toPage(device, vp)
	if !ok {
		return extract.TextRegion{}, false
	}
	return ix.At(p)
}

// At returns the winning region containing a page-space point.
func (ix *Index) At(p coords.Point) (extract.TextRegion, bool) {
	candidates := ix.tree.containing(p, nil)
	for _, i := range ix.overflow {
		if ix.regions[i].Contains(p) {
			candidates = append(candidates, i)
		}
	}
	best := -1
	for _, i := range candidates {
		if best < 0 || better(ix.regions, i, best) {
			best = i
		}
	}
	if best < 0 {
		return extract.TextRegion{}, false
	}
	return ix.regions[best], true
}
