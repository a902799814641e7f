package objects

import (
	"sort"

	"vesseldots/internal/models"
)

// Population is an ordered set of disjoint objects extracted from one volume
type Population struct {
	Objects []*Object

	// Width, Height and Depth are the dimensions of the source volume
	Width, Height, Depth int

	Calibration models.Calibration
}

// NewPopulation returns an empty population sized like a w×h×d volume
func NewPopulation(w, h, d int, cal models.Calibration) *Population {
	return &Population{Width: w, Height: h, Depth: d, Calibration: cal}
}

// Len returns the number of objects
func (p *Population) Len() int {
	if p == nil {
		return 0
	}
	return len(p.Objects)
}

// NumVoxels returns the total voxel count over all objects
func (p *Population) NumVoxels() int {
	n := 0
	for _, o := range p.Objects {
		n += o.NumVoxels()
	}
	return n
}

// Volume returns the summed physical volume of all objects
func (p *Population) Volume() float64 {
	return float64(p.NumVoxels()) * p.Calibration.VoxelVolume()
}

// Labels returns the object labels in population order
func (p *Population) Labels() []int {
	labels := make([]int, len(p.Objects))
	for i, o := range p.Objects {
		labels[i] = o.Label
	}
	return labels
}

// Rasterize draws every object with its own label into a fresh label volume
func (p *Population) Rasterize() []int32 {
	labels := make([]int32, p.Width*p.Height*p.Depth)
	for _, o := range p.Objects {
		p.paint(labels, o, int32(o.Label))
	}
	return labels
}

// Paint writes value at every voxel of every object into labels
func (p *Population) Paint(labels []int32, value int32) {
	for _, o := range p.Objects {
		p.paint(labels, o, value)
	}
}

func (p *Population) paint(labels []int32, o *Object, value int32) {
	plane := p.Width * p.Height
	for _, r := range o.runs {
		base := int(r.Start[2])*plane + int(r.Start[1])*p.Width
		for x := r.Start[0]; x < r.Start[0]+r.Length; x++ {
			labels[base+int(x)] = value
		}
	}
}

// FromLabelImage groups the voxels of a label volume by value. Every distinct
// nonzero value becomes one object keeping that value as its label; objects are
// ordered by label. Connectivity is not checked.
func FromLabelImage(labels []int32, w, h, d int, cal models.Calibration) *Population {
	byLabel := map[int32]RLEs{}
	scanRuns(labels, w, h, d, func(label int32, run RLE) {
		byLabel[label] = append(byLabel[label], run)
	})

	keys := make([]int, 0, len(byLabel))
	for k := range byLabel {
		keys = append(keys, int(k))
	}
	sort.Ints(keys)

	pop := NewPopulation(w, h, d, cal)
	for _, k := range keys {
		pop.Objects = append(pop.Objects, NewObject(k, byLabel[int32(k)]))
	}
	return pop
}

// scanRuns reports every maximal x-run of identical nonzero labels in (z, y, x) order
func scanRuns(labels []int32, w, h, d int, fn func(label int32, run RLE)) {
	for z := 0; z < d; z++ {
		for y := 0; y < h; y++ {
			row := labels[(z*h+y)*w : (z*h+y+1)*w]
			for x := 0; x < w; {
				l := row[x]
				if l == 0 {
					x++
					continue
				}
				start := x
				for x < w && row[x] == l {
					x++
				}
				fn(l, RLE{Start: Point3d{int32(start), int32(y), int32(z)}, Length: int32(x - start)})
			}
		}
	}
}
