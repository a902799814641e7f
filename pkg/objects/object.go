// Package objects models labeled 3D objects as sparse voxel sets and implements
// the population-level operations: connected-component labeling, size
// filtering and morphological dilation.
package objects

import (
	"sort"

	"vesseldots/internal/models"
)

// Object is a connected set of voxels stored as x-runs ordered by (z, y, x).
// The runs are never modified once the object is built.
type Object struct {
	// Label is unique within the owning population; 0 is never used
	Label int

	runs      RLEs
	numVoxels int
	minPt     Point3d
	maxPt     Point3d
}

// NewObject builds an object from runs. Runs are sorted and must not overlap.
func NewObject(label int, runs RLEs) *Object {
	sorted := make(RLEs, len(runs))
	copy(sorted, runs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start.less(sorted[j].Start) })

	obj := &Object{Label: label, runs: sorted}
	for i, r := range sorted {
		obj.numVoxels += int(r.Length)
		if i == 0 {
			obj.minPt = r.Start
			obj.maxPt = r.End()
			continue
		}
		obj.minPt.SetMinimum(r.Start)
		obj.maxPt.SetMaximum(r.End())
	}
	return obj
}

// NewObjectFromVoxels builds an object from individual voxel coordinates.
// Duplicate coordinates are merged.
func NewObjectFromVoxels(label int, voxels []Point3d) *Object {
	pts := make([]Point3d, len(voxels))
	copy(pts, voxels)
	sort.Slice(pts, func(i, j int) bool { return pts[i].less(pts[j]) })

	var runs RLEs
	for _, p := range pts {
		if n := len(runs); n > 0 {
			last := &runs[n-1]
			end := last.End()
			if end[1] == p[1] && end[2] == p[2] {
				if p[0] <= end[0] {
					continue
				}
				if p[0] == end[0]+1 {
					last.Length++
					continue
				}
			}
		}
		runs = append(runs, RLE{Start: p, Length: 1})
	}
	return NewObject(label, runs)
}

// withLabel returns a shallow copy sharing the immutable runs
func (o *Object) withLabel(label int) *Object {
	c := *o
	c.Label = label
	return &c
}

// NumVoxels returns the voxel count
func (o *Object) NumVoxels() int {
	return o.numVoxels
}

// Volume returns the physical volume: voxel count × voxel volume
func (o *Object) Volume(cal models.Calibration) float64 {
	return float64(o.numVoxels) * cal.VoxelVolume()
}

// Bounds returns the inclusive bounding box
func (o *Object) Bounds() (min, max Point3d) {
	return o.minPt, o.maxPt
}

// RLEs returns the runs of the object; callers must not modify them
func (o *Object) RLEs() RLEs {
	return o.runs
}

// ForEachVoxel calls fn for every voxel in (z, y, x) order
func (o *Object) ForEachVoxel(fn func(x, y, z int)) {
	for _, r := range o.runs {
		y, z := int(r.Start[1]), int(r.Start[2])
		for x := int(r.Start[0]); x < int(r.Start[0]+r.Length); x++ {
			fn(x, y, z)
		}
	}
}

// Voxels returns every voxel coordinate
func (o *Object) Voxels() []Point3d {
	pts := make([]Point3d, 0, o.numVoxels)
	o.ForEachVoxel(func(x, y, z int) {
		pts = append(pts, Point3d{int32(x), int32(y), int32(z)})
	})
	return pts
}

// Contains reports whether (x, y, z) belongs to the object
func (o *Object) Contains(x, y, z int) bool {
	p := Point3d{int32(x), int32(y), int32(z)}
	i := sort.Search(len(o.runs), func(i int) bool { return p.less(o.runs[i].Start) })
	if i == 0 {
		return false
	}
	r := o.runs[i-1]
	return r.Start[1] == p[1] && r.Start[2] == p[2] && p[0] >= r.Start[0] && p[0] < r.Start[0]+r.Length
}

// Centroid returns the mean voxel coordinate
func (o *Object) Centroid() (x, y, z float64) {
	if o.numVoxels == 0 {
		return 0, 0, 0
	}
	var sx, sy, sz float64
	for _, r := range o.runs {
		n := float64(r.Length)
		sx += n*float64(r.Start[0]) + n*(n-1)/2
		sy += n * float64(r.Start[1])
		sz += n * float64(r.Start[2])
	}
	total := float64(o.numVoxels)
	return sx / total, sy / total, sz / total
}
