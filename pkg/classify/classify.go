// Package classify splits a dot population by whether its voxels fall inside
// a reference population, typically the dilated vessels.
//
// Classification works voxel by voxel, not object by object: a dot that
// straddles a reference boundary contributes its overlapping part to the
// inside result and its remainder to the outside result, each re-labeled as
// its own connected components. The two results never share a voxel and
// together hold exactly the voxels of the input dots.
package classify

import (
	"fmt"

	"vesseldots/internal/models"
	"vesseldots/pkg/objects"
)

// Membership selects which side of the reference a result keeps
type Membership int

const (
	Outside Membership = iota
	Inside
)

func (m Membership) String() string {
	switch m {
	case Inside:
		return "inside"
	case Outside:
		return "outside"
	default:
		return fmt.Sprintf("Membership(%d)", int(m))
	}
}

// Classify returns the part of dots lying inside or outside reference
func Classify(dots, reference *objects.Population, membership Membership) (*objects.Population, error) {
	in, out, err := Partition(dots, reference)
	if err != nil {
		return nil, err
	}
	switch membership {
	case Inside:
		return in, nil
	case Outside:
		return out, nil
	default:
		return nil, fmt.Errorf("unknown membership %v: %w", membership, models.ErrInvalidInput)
	}
}

// Partition computes both sides with a single rasterization of dots
func Partition(dots, reference *objects.Population) (inside, outside *objects.Population, err error) {
	if dots.Width != reference.Width || dots.Height != reference.Height || dots.Depth != reference.Depth {
		return nil, nil, fmt.Errorf("dots %dx%dx%d and reference %dx%dx%d differ in size: %w",
			dots.Width, dots.Height, dots.Depth, reference.Width, reference.Height, reference.Depth, models.ErrInvalidInput)
	}
	w, h, d, cal := dots.Width, dots.Height, dots.Depth, dots.Calibration

	remaining := dots.Rasterize()
	original := make([]int32, len(remaining))
	copy(original, remaining)
	reference.Paint(remaining, 0)

	// original - remaining, clamped at zero, is what the reference erased
	erased := original
	for i, v := range remaining {
		if v != 0 {
			erased[i] = 0
		}
	}

	outside = objects.LabelNonZero(w, h, d, cal, remaining)
	inside = objects.LabelNonZero(w, h, d, cal, erased)
	return inside, outside, nil
}
