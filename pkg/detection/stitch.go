package detection

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/spatial/kdtree"

	"vesseldots/internal/models"
)

// centroid is an instance centre that satisfies kdtree.Comparable
type centroid struct {
	X, Y float64
	idx  int
}

// Compare implements the kdtree.Comparable interface
func (p centroid) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(centroid)
	switch d {
	case 0:
		return p.X - q.X
	case 1:
		return p.Y - q.Y
	default:
		panic("illegal dimension")
	}
}

// Dims returns the number of dimensions for the KD-tree
func (p centroid) Dims() int { return 2 }

// Distance returns the squared Euclidean distance between two centroids
func (p centroid) Distance(c kdtree.Comparable) float64 {
	q := c.(centroid)
	dx, dy := p.X-q.X, p.Y-q.Y
	return dx*dx + dy*dy
}

// centroids is a collection of centroid that satisfies kdtree.Interface
type centroids []centroid

func (p centroids) Index(i int) kdtree.Comparable         { return p[i] }
func (p centroids) Len() int                              { return len(p) }
func (p centroids) Slice(start, end int) kdtree.Interface { return p[start:end] }

// Pivot implements the kdtree.Interface method
func (p centroids) Pivot(d kdtree.Dim) int {
	return kdtree.Partition(centroidPlane{centroids: p, Dim: d}, kdtree.MedianOfRandoms(centroidPlane{centroids: p, Dim: d}, 100))
}

// centroidPlane implements sort.Interface and kdtree.SortSlicer for centroids
type centroidPlane struct {
	centroids
	kdtree.Dim
}

func (p centroidPlane) Less(i, j int) bool {
	switch p.Dim {
	case 0:
		return p.centroids[i].X < p.centroids[j].X
	case 1:
		return p.centroids[i].Y < p.centroids[j].Y
	default:
		panic("illegal dimension")
	}
}

func (p centroidPlane) Slice(start, end int) kdtree.SortSlicer {
	return centroidPlane{centroids: p.centroids[start:end], Dim: p.Dim}
}

func (p centroidPlane) Swap(i, j int) {
	p.centroids[i], p.centroids[j] = p.centroids[j], p.centroids[i]
}

// instance is one labeled region of a LabelSlice
type instance struct {
	label  int32
	pixels []int
	centre centroid
	diag   float64
	id     int32 // 3D label once assigned
}

func collectInstances(ls *LabelSlice) []*instance {
	byLabel := map[int32]*instance{}
	var order []*instance
	minX, minY := map[int32]int{}, map[int32]int{}
	maxX, maxY := map[int32]int{}, map[int32]int{}
	for i, l := range ls.Labels {
		if l == 0 {
			continue
		}
		x, y := i%ls.Width, i/ls.Width
		in, ok := byLabel[l]
		if !ok {
			in = &instance{label: l}
			byLabel[l] = in
			order = append(order, in)
			minX[l], minY[l], maxX[l], maxY[l] = x, y, x, y
		}
		in.pixels = append(in.pixels, i)
		in.centre.X += float64(x)
		in.centre.Y += float64(y)
		minX[l] = min(minX[l], x)
		minY[l] = min(minY[l], y)
		maxX[l] = max(maxX[l], x)
		maxY[l] = max(maxY[l], y)
	}
	sort.Slice(order, func(i, j int) bool { return order[i].label < order[j].label })
	for i, in := range order {
		n := float64(len(in.pixels))
		in.centre.X /= n
		in.centre.Y /= n
		in.centre.idx = i
		dx := float64(maxX[in.label] - minX[in.label] + 1)
		dy := float64(maxY[in.label] - minY[in.label] + 1)
		in.diag = math.Hypot(dx, dy)
	}
	return order
}

type match struct {
	cur, prev *instance
	iou       float64
}

// Stitch merges the 2D instances of consecutive planes into 3D objects and
// returns a w×h×d label volume. An instance continues an instance of the
// previous plane when their pixel intersection over union is at least
// threshold (and nonzero); each instance continues at most one other, best
// overlaps first. Labels are numbered from 1 as objects first appear, plane
// by plane and by 2D label within a plane.
func Stitch(slices []*LabelSlice, threshold float64) ([]int32, error) {
	if len(slices) == 0 {
		return nil, nil
	}
	if math.IsNaN(threshold) || threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("stitch threshold %g outside [0, 1]: %w", threshold, models.ErrInvalidInput)
	}
	w, h := slices[0].Width, slices[0].Height
	for z, s := range slices {
		if s == nil || s.Width != w || s.Height != h || len(s.Labels) != w*h {
			return nil, fmt.Errorf("plane %d does not match %dx%d: %w", z, w, h, models.ErrInvalidInput)
		}
	}

	plane := w * h
	out := make([]int32, plane*len(slices))
	var next int32
	var prev []*instance
	var prevLabels []int32
	var tree *kdtree.Tree
	prevDiag := 0.0

	for z, s := range slices {
		cur := collectInstances(s)

		var matches []match
		if tree != nil {
			for _, c := range cur {
				r := c.diag + prevDiag
				keeper := kdtree.NewDistKeeper(r * r)
				tree.NearestSet(keeper, c.centre)
				for _, item := range keeper.Heap {
					if item.Comparable == nil {
						continue
					}
					p := prev[item.Comparable.(centroid).idx]
					inter := 0
					for _, i := range c.pixels {
						if prevLabels[i] == p.label {
							inter++
						}
					}
					if inter == 0 {
						continue
					}
					iou := float64(inter) / float64(len(c.pixels)+len(p.pixels)-inter)
					if iou >= threshold {
						matches = append(matches, match{cur: c, prev: p, iou: iou})
					}
				}
			}
		}
		sort.SliceStable(matches, func(i, j int) bool {
			if matches[i].iou != matches[j].iou {
				return matches[i].iou > matches[j].iou
			}
			if matches[i].cur.label != matches[j].cur.label {
				return matches[i].cur.label < matches[j].cur.label
			}
			return matches[i].prev.label < matches[j].prev.label
		})
		used := map[*instance]bool{}
		for _, m := range matches {
			if m.cur.id != 0 || used[m.prev] {
				continue
			}
			m.cur.id = m.prev.id
			used[m.prev] = true
		}

		prevDiag = 0
		pts := make(centroids, len(cur))
		for i, c := range cur {
			if c.id == 0 {
				next++
				c.id = next
			}
			for _, p := range c.pixels {
				out[z*plane+p] = c.id
			}
			pts[i] = c.centre
			prevDiag = math.Max(prevDiag, c.diag)
		}

		prev, prevLabels = cur, s.Labels
		tree = nil
		if len(pts) > 0 {
			tree = kdtree.New(pts, false)
		}
	}
	return out, nil
}
