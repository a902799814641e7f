// Package quantify measures populations against the intensity channel they
// were detected in: volumes, summed intensities and background correction.
package quantify

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/stat"

	"vesseldots/internal/models"
	"vesseldots/pkg/filter"
	"vesseldots/pkg/objects"
	"vesseldots/pkg/roi"
)

// Background returns the median of the minimum intensity projection of vol
func Background(vol *models.Volume) (float64, error) {
	if vol.Empty() {
		return 0, fmt.Errorf("background: empty volume: %w", models.ErrInvalidInput)
	}
	proj := filter.MinProjection(vol)
	values := make([]float64, len(proj))
	for i, v := range proj {
		values[i] = float64(v)
	}
	sort.Float64s(values)
	return stat.Quantile(0.5, stat.Empirical, values, nil), nil
}

// PopulationVolume returns the summed physical volume of pop
func PopulationVolume(pop *objects.Population) float64 {
	return pop.Volume()
}

// PopulationIntensity sums the raw intensities of vol over every voxel of pop
func PopulationIntensity(pop *objects.Population, vol *models.Volume) (float64, error) {
	if pop.Width != vol.Width || pop.Height != vol.Height || pop.Depth != vol.Depth {
		return 0, fmt.Errorf("population %dx%dx%d does not match volume %dx%dx%d: %w",
			pop.Width, pop.Height, pop.Depth, vol.Width, vol.Height, vol.Depth, models.ErrInvalidInput)
	}
	sum := 0.0
	for _, o := range pop.Objects {
		o.ForEachVoxel(func(x, y, z int) {
			sum += float64(vol.At(x, y, z))
		})
	}
	return sum, nil
}

// CorrectedIntensity subtracts the background once per voxel:
// raw - background × voxelCount
func CorrectedIntensity(raw, background float64, voxelCount int) float64 {
	return raw - background*float64(voxelCount)
}

// ImageVolume returns the physical volume of the whole stack
func ImageVolume(vol *models.Volume) float64 {
	return vol.PhysicalVolume()
}

// ROICorrectedVolume returns the stack volume minus the volume covered by rois
// on every plane
func ROICorrectedVolume(vol *models.Volume, rois roi.Set) float64 {
	total := ImageVolume(vol)
	if rois.Empty() {
		return total
	}
	return total - rois.Area(vol.Width, vol.Height, vol.Calibration)*float64(vol.Depth)*vol.Calibration.PixelDepth
}

// Class holds the measurements of one dot class
type Class struct {
	Count              int
	Volume             float64
	Intensity          float64
	CorrectedIntensity float64
}

// Record is the full measurement of one image
type Record struct {
	Image        string
	ImageVolume  float64
	ROIVolume    float64
	Background   float64
	VesselVolume float64
	DotsInside   Class
	DotsOutside  Class
}

func measureClass(pop *objects.Population, vol *models.Volume, bg float64) (Class, error) {
	raw, err := PopulationIntensity(pop, vol)
	if err != nil {
		return Class{}, err
	}
	return Class{
		Count:              pop.Len(),
		Volume:             PopulationVolume(pop),
		Intensity:          raw,
		CorrectedIntensity: CorrectedIntensity(raw, bg, pop.NumVoxels()),
	}, nil
}

// Measure builds the record of one image from its populations and the dot
// channel the intensities are read from
func Measure(name string, dotsVol *models.Volume, rois roi.Set, vessels, inside, outside *objects.Population) (Record, error) {
	bg, err := Background(dotsVol)
	if err != nil {
		return Record{}, err
	}
	rec := Record{
		Image:        name,
		ImageVolume:  ImageVolume(dotsVol),
		ROIVolume:    ROICorrectedVolume(dotsVol, rois),
		Background:   bg,
		VesselVolume: PopulationVolume(vessels),
	}
	if rec.DotsInside, err = measureClass(inside, dotsVol, bg); err != nil {
		return Record{}, err
	}
	if rec.DotsOutside, err = measureClass(outside, dotsVol, bg); err != nil {
		return Record{}, err
	}
	return rec, nil
}
