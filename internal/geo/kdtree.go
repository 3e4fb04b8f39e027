package geo

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/spatial/kdtree"
)

// unitPoint is a point on the unit sphere tagged with the caller's index.
type unitPoint struct {
	v   [3]float64
	idx int
}

func (p unitPoint) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(unitPoint)
	return p.v[d] - q.v[d]
}

func (p unitPoint) Dims() int { return 3 }

func (p unitPoint) Distance(c kdtree.Comparable) float64 {
	q := c.(unitPoint)
	var sum float64
	for i := range p.v {
		d := p.v[i] - q.v[i]
		sum += d * d
	}
	return sum
}

type unitPoints []unitPoint

func (p unitPoints) Index(i int) kdtree.Comparable         { return p[i] }
func (p unitPoints) Len() int                              { return len(p) }
func (p unitPoints) Pivot(d kdtree.Dim) int                { return unitPlane{unitPoints: p, Dim: d}.Pivot() }
func (p unitPoints) Slice(start, end int) kdtree.Interface { return p[start:end] }

type unitPlane struct {
	kdtree.Dim
	unitPoints
}

func (p unitPlane) Less(i, j int) bool {
	return p.unitPoints[i].v[p.Dim] < p.unitPoints[j].v[p.Dim]
}
func (p unitPlane) Pivot() int { return kdtree.Partition(p, kdtree.MedianOfMedians(p)) }
func (p unitPlane) Slice(start, end int) kdtree.SortSlicer {
	p.unitPoints = p.unitPoints[start:end]
	return p
}
func (p unitPlane) Swap(i, j int) {
	p.unitPoints[i], p.unitPoints[j] = p.unitPoints[j], p.unitPoints[i]
}

// PointIndex is a k-d tree over earth-centred unit vectors. Queries return
// the caller's index of the nearest point; equidistant points resolve to the
// lowest index.
type PointIndex struct {
	tree *kdtree.Tree
	n    int
}

// NewPointIndex indexes the given coordinates. lats and lons must have the
// same length.
func NewPointIndex(lats, lons []float64) (*PointIndex, error) {
	if len(lats) != len(lons) {
		return nil, fmt.Errorf("point index: %d latitudes but %d longitudes", len(lats), len(lons))
	}
	if len(lats) == 0 {
		return nil, fmt.Errorf("point index: no points")
	}
	pts := make(unitPoints, len(lats))
	for i := range lats {
		pts[i] = unitPoint{v: UnitVector(lats[i], lons[i]), idx: i}
	}
	return &PointIndex{tree: kdtree.New(pts, false), n: len(pts)}, nil
}

func (ix *PointIndex) Len() int { return ix.n }

// Nearest returns the index of the point closest to (lat, lon).
func (ix *PointIndex) Nearest(lat, lon float64) int {
	q := unitPoint{v: UnitVector(lat, lon), idx: -1}
	got, dist := ix.tree.Nearest(q)
	best := got.(unitPoint).idx

	keep := kdtree.NewDistKeeper(dist + 1e-15*math.Max(dist, 1))
	ix.tree.NearestSet(keep, q)
	for _, c := range keep.Heap {
		if c.Comparable == nil {
			continue
		}
		if i := c.Comparable.(unitPoint).idx; i < best {
			best = i
		}
	}
	return best
}

// NearestK returns up to k indices ordered by distance, ties by index.
func (ix *PointIndex) NearestK(lat, lon float64, k int) []int {
	if k <= 0 {
		return nil
	}
	q := unitPoint{v: UnitVector(lat, lon), idx: -1}
	keep := kdtree.NewNKeeper(k)
	ix.tree.NearestSet(keep, q)
	type hit struct {
		idx  int
		dist float64
	}
	hits := make([]hit, 0, k)
	for _, c := range keep.Heap {
		if c.Comparable == nil {
			continue
		}
		hits = append(hits, hit{c.Comparable.(unitPoint).idx, c.Dist})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].dist != hits[j].dist {
			return hits[i].dist < hits[j].dist
		}
		return hits[i].idx < hits[j].idx
	})
	out := make([]int, len(hits))
	for i, h := range hits {
		out[i] = h.idx
	}
	return out
}
