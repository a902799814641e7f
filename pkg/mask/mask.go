// Package mask binarizes intensity volumes with a global automatic threshold,
// optionally filling holes plane by plane and blanking artifact regions.
package mask

import (
	"fmt"

	"vesseldots/internal/models"
	"vesseldots/pkg/roi"
	"vesseldots/pkg/threshold"
)

// Options controls how a mask is built
type Options struct {
	// Method is the automatic threshold method name (see threshold.Methods)
	Method string

	// FillHoles fills background regions enclosed by foreground, per z-plane
	FillHoles bool

	// ROIs are zeroed on every plane after thresholding
	ROIs roi.Set
}

// Build thresholds vol with opts.Method and post-processes the result
func Build(vol *models.Volume, opts Options) (*models.Mask, error) {
	if vol.Empty() {
		return nil, fmt.Errorf("mask: empty volume: %w", models.ErrInvalidInput)
	}
	level, err := threshold.Level(vol, opts.Method)
	if err != nil {
		return nil, err
	}
	return BuildAtLevel(vol, level, opts)
}

// BuildAtLevel marks voxels >= level as foreground, ignoring opts.Method
func BuildAtLevel(vol *models.Volume, level float64, opts Options) (*models.Mask, error) {
	if vol.Empty() {
		return nil, fmt.Errorf("mask: empty volume: %w", models.ErrInvalidInput)
	}
	m := models.NewMask(vol.Width, vol.Height, vol.Depth, vol.Calibration)
	for i, v := range vol.Data {
		if float64(v) >= level {
			m.Data[i] = models.Foreground
		}
	}
	if opts.FillHoles {
		FillHoles(m)
	}
	if !opts.ROIs.Empty() {
		ClearROIs(m, opts.ROIs)
	}
	return m, nil
}

// FillHoles fills, on each z-plane independently, every background region that
// is not 4-connected to the plane border.
func FillHoles(m *models.Mask) {
	w, h := m.Width, m.Height
	n := w * h
	reached := make([]bool, n)
	stack := make([]int, 0, 2*(w+h))

	for z := 0; z < m.Depth; z++ {
		plane := m.Data[z*n : (z+1)*n]
		for i := range reached {
			reached[i] = false
		}
		stack = stack[:0]

		push := func(i int) {
			if !reached[i] && plane[i] == 0 {
				reached[i] = true
				stack = append(stack, i)
			}
		}
		for x := 0; x < w; x++ {
			push(x)
			push((h-1)*w + x)
		}
		for y := 0; y < h; y++ {
			push(y * w)
			push(y*w + w - 1)
		}

		for len(stack) > 0 {
			i := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			x, y := i%w, i/w
			if x > 0 {
				push(i - 1)
			}
			if x < w-1 {
				push(i + 1)
			}
			if y > 0 {
				push(i - w)
			}
			if y < h-1 {
				push(i + w)
			}
		}

		for i := range plane {
			if plane[i] == 0 && !reached[i] {
				plane[i] = models.Foreground
			}
		}
	}
}

// ClearROIs sets every voxel covered by rois to background on all planes
func ClearROIs(m *models.Mask, rois roi.Set) {
	covered := rois.Rasterize(m.Width, m.Height)
	n := m.Width * m.Height
	for z := 0; z < m.Depth; z++ {
		plane := m.Data[z*n : (z+1)*n]
		for i, c := range covered {
			if c {
				plane[i] = 0
			}
		}
	}
}
