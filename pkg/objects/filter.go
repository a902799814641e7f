package objects

import (
	"fmt"
	"math"

	"vesseldots/internal/models"
)

// FilterSize keeps the objects whose physical volume v satisfies min <= v <= max
// and renumbers the survivors 1..N in their original order. max may be +Inf.
// The input population is not modified.
func FilterSize(pop *Population, min, max float64) (*Population, error) {
	if math.IsNaN(min) || math.IsNaN(max) || min < 0 || max < min {
		return nil, fmt.Errorf("invalid size range [%g, %g]: %w", min, max, models.ErrInvalidInput)
	}
	out := NewPopulation(pop.Width, pop.Height, pop.Depth, pop.Calibration)
	for _, o := range pop.Objects {
		v := o.Volume(pop.Calibration)
		if v < min || v > max {
			continue
		}
		out.Objects = append(out.Objects, o.withLabel(len(out.Objects)+1))
	}
	return out, nil
}
