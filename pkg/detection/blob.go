package detection

import (
	"fmt"
	"image"
	"sort"

	"gonum.org/v1/gonum/stat"

	"vesseldots/internal/models"
)

// BlobModel is the registry name of the built-in BlobDetector
const BlobModel = "blob"

// BlobDetector is a CPU instance detector for small bright spots. Intensities
// are mapped to [0, 1] between two percentiles and read as object
// probabilities; 8-connected regions above the probability threshold are
// instances, and overlapping candidates are suppressed by score.
type BlobDetector struct {
	LowPercentile  float64
	HighPercentile float64
}

// NewBlobDetector returns a detector normalising between the 1st and 99.8th
// percentiles
func NewBlobDetector() *BlobDetector {
	return &BlobDetector{LowPercentile: 0.01, HighPercentile: 0.998}
}

type blob struct {
	pixels []int
	bounds image.Rectangle
	score  float64
}

func (b *BlobDetector) DetectInstances2D(plane []float32, width, height int, params InstanceParams) (*LabelSlice, error) {
	if width <= 0 || height <= 0 || len(plane) != width*height {
		return nil, fmt.Errorf("plane of %d values is not %dx%d: %w", len(plane), width, height, models.ErrInvalidInput)
	}
	if params.ProbThreshold < 0 || params.ProbThreshold > 1 || params.OverlapThreshold < 0 || params.OverlapThreshold > 1 {
		return nil, fmt.Errorf("thresholds must lie in [0, 1], got prob %g overlap %g: %w",
			params.ProbThreshold, params.OverlapThreshold, models.ErrInvalidInput)
	}

	prob := b.normalize(plane)
	blobs := components(prob, width, height, params.ProbThreshold)
	kept := suppress(blobs, params.OverlapThreshold)

	out := NewLabelSlice(width, height)
	for i, bl := range kept {
		for _, p := range bl.pixels {
			out.Labels[p] = int32(i + 1)
		}
	}
	return out, nil
}

// normalize maps plane to [0, 1] between the configured percentiles
func (b *BlobDetector) normalize(plane []float32) []float64 {
	sorted := make([]float64, len(plane))
	for i, v := range plane {
		sorted[i] = float64(v)
	}
	sort.Float64s(sorted)
	lo := stat.Quantile(b.LowPercentile, stat.Empirical, sorted, nil)
	hi := stat.Quantile(b.HighPercentile, stat.Empirical, sorted, nil)

	prob := make([]float64, len(plane))
	if hi <= lo {
		return prob
	}
	for i, v := range plane {
		p := (float64(v) - lo) / (hi - lo)
		if p < 0 {
			p = 0
		} else if p > 1 {
			p = 1
		}
		prob[i] = p
	}
	return prob
}

// components returns the 8-connected regions with prob > threshold, in scan
// order of their first pixel
func components(prob []float64, w, h int, threshold float64) []*blob {
	seen := make([]bool, len(prob))
	var blobs []*blob
	var stack []int
	for start := range prob {
		if seen[start] || prob[start] <= threshold {
			continue
		}
		bl := &blob{bounds: image.Rect(start%w, start/w, start%w+1, start/w+1)}
		seen[start] = true
		stack = append(stack[:0], start)
		for len(stack) > 0 {
			i := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			x, y := i%w, i/w
			bl.pixels = append(bl.pixels, i)
			bl.bounds = bl.bounds.Union(image.Rect(x, y, x+1, y+1))
			if prob[i] > bl.score {
				bl.score = prob[i]
			}
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					nx, ny := x+dx, y+dy
					if nx < 0 || nx >= w || ny < 0 || ny >= h {
						continue
					}
					j := ny*w + nx
					if !seen[j] && prob[j] > threshold {
						seen[j] = true
						stack = append(stack, j)
					}
				}
			}
		}
		blobs = append(blobs, bl)
	}
	return blobs
}

// suppress keeps candidates by decreasing score, dropping any whose bounding
// box overlaps an already kept one by more than threshold (intersection over
// union). Ties keep scan order.
func suppress(blobs []*blob, threshold float64) []*blob {
	order := make([]*blob, len(blobs))
	copy(order, blobs)
	sort.SliceStable(order, func(i, j int) bool { return order[i].score > order[j].score })

	var kept []*blob
	for _, c := range order {
		ok := true
		for _, k := range kept {
			if boxIoU(c.bounds, k.bounds) > threshold {
				ok = false
				break
			}
		}
		if ok {
			kept = append(kept, c)
		}
	}
	return kept
}

func boxIoU(a, b image.Rectangle) float64 {
	inter := a.Intersect(b)
	if inter.Empty() {
		return 0
	}
	ia := float64(inter.Dx() * inter.Dy())
	union := float64(a.Dx()*a.Dy()+b.Dx()*b.Dy()) - ia
	return ia / union
}
