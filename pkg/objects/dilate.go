package objects

import (
	"fmt"
	"math"

	"vesseldots/internal/models"
)

const (
	infinity = 1e20

	// radiusEpsilon is the smallest voxel radius along an axis that still
	// takes part in the distance transform
	radiusEpsilon = 1e-9
)

// Radii converts a physical dilation distance to voxel radii (x, y, z)
func Radii(cal models.Calibration, dist float64) [3]float64 {
	return [3]float64{dist / cal.PixelWidth, dist / cal.PixelHeight, dist / cal.PixelDepth}
}

// Dilate grows obj by the ellipsoid with the given voxel radii. A voxel p is in
// the result when some voxel q of obj satisfies Σ((p_a - q_a)/r_a)² <= 1.
// Voxels that would fall outside [0, w)×[0, h)×[0, d) are dropped.
func Dilate(obj *Object, w, h, d int, radii [3]float64) (*Object, error) {
	for _, r := range radii {
		if math.IsNaN(r) || math.IsInf(r, 0) || r < 0 {
			return nil, fmt.Errorf("invalid dilation radii %v: %w", radii, models.ErrInvalidInput)
		}
	}
	if obj.NumVoxels() == 0 {
		return NewObject(obj.Label, nil), nil
	}

	dims := [3]int{w, h, d}
	lo, hi := obj.Bounds()
	var origin, size [3]int
	for a := 0; a < 3; a++ {
		reach := int(math.Floor(radii[a] + radiusEpsilon))
		start := int(lo[a]) - reach
		end := int(hi[a]) + reach
		if start < 0 {
			start = 0
		}
		if end > dims[a]-1 {
			end = dims[a] - 1
		}
		origin[a] = start
		size[a] = end - start + 1
	}

	sx, sy := size[0], size[1]
	dist := make([]float64, sx*sy*size[2])
	for i := range dist {
		dist[i] = infinity
	}
	obj.ForEachVoxel(func(x, y, z int) {
		if x < origin[0] || y < origin[1] || z < origin[2] ||
			x >= origin[0]+sx || y >= origin[1]+sy || z >= origin[2]+size[2] {
			return
		}
		dist[((z-origin[2])*sy+(y-origin[1]))*sx+(x-origin[0])] = 0
	})

	strides := [3]int{1, sx, sx * sy}
	for a := 0; a < 3; a++ {
		if radii[a] < radiusEpsilon || size[a] < 2 {
			continue
		}
		transformAxis(dist, size, strides, a, 1/(radii[a]*radii[a]))
	}

	var runs RLEs
	for z := 0; z < size[2]; z++ {
		for y := 0; y < sy; y++ {
			row := dist[(z*sy+y)*sx : (z*sy+y+1)*sx]
			for x := 0; x < sx; {
				if row[x] > 1+radiusEpsilon {
					x++
					continue
				}
				start := x
				for x < sx && row[x] <= 1+radiusEpsilon {
					x++
				}
				runs = append(runs, RLE{
					Start:  Point3d{int32(origin[0] + start), int32(origin[1] + y), int32(origin[2] + z)},
					Length: int32(x - start),
				})
			}
		}
	}
	return NewObject(obj.Label, runs), nil
}

// DilatePopulation dilates every object of pop by the physical distance dist,
// keeping labels. Dilated objects may overlap each other.
func DilatePopulation(pop *Population, dist float64) (*Population, error) {
	if math.IsNaN(dist) || dist < 0 {
		return nil, fmt.Errorf("invalid dilation distance %g: %w", dist, models.ErrInvalidInput)
	}
	radii := Radii(pop.Calibration, dist)
	out := NewPopulation(pop.Width, pop.Height, pop.Depth, pop.Calibration)
	out.Objects = make([]*Object, len(pop.Objects))
	for i, o := range pop.Objects {
		dilated, err := Dilate(o, pop.Width, pop.Height, pop.Depth, radii)
		if err != nil {
			return nil, err
		}
		out.Objects[i] = dilated
	}
	return out, nil
}

// transformAxis runs the 1D squared distance transform along axis a over every
// line of the box, with each unit step costing scale.
func transformAxis(dist []float64, size, strides [3]int, a int, scale float64) {
	n := size[a]
	f := make([]float64, n)
	out := make([]float64, n)
	v := make([]int, n)
	z := make([]float64, n+1)

	// the two axes other than a
	b, c := (a+1)%3, (a+2)%3
	for i := 0; i < size[b]; i++ {
		for j := 0; j < size[c]; j++ {
			base := i*strides[b] + j*strides[c]
			for k := 0; k < n; k++ {
				f[k] = dist[base+k*strides[a]]
			}
			distanceTransform1D(f, out, v, z, scale)
			for k := 0; k < n; k++ {
				dist[base+k*strides[a]] = out[k]
			}
		}
	}
}

// distanceTransform1D computes out[p] = min_q scale·(p-q)² + f[q] using the
// lower envelope of parabolas (Felzenszwalb and Huttenlocher).
func distanceTransform1D(f, out []float64, v []int, z []float64, scale float64) {
	n := len(f)
	k := 0
	v[0] = 0
	z[0] = math.Inf(-1)
	z[1] = math.Inf(1)
	for q := 1; q < n; q++ {
		s := intersect(f, scale, q, v[k])
		for s <= z[k] {
			k--
			s = intersect(f, scale, q, v[k])
		}
		k++
		v[k] = q
		z[k] = s
		z[k+1] = math.Inf(1)
	}
	k = 0
	for q := 0; q < n; q++ {
		for z[k+1] < float64(q) {
			k++
		}
		dq := float64(q - v[k])
		out[q] = scale*dq*dq + f[v[k]]
	}
}

func intersect(f []float64, scale float64, q, p int) float64 {
	fq, fp := float64(q), float64(p)
	return ((f[q] + scale*fq*fq) - (f[p] + scale*fp*fp)) / (2 * scale * (fq - fp))
}
