// Package detection turns raw channels into labeled object populations: the
// vessel network through a Laplacian of Gaussian enhancement, and dots either
// through a difference of Gaussians or a slice-wise instance detector.
package detection

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"vesseldots/internal/models"
	"vesseldots/pkg/filter"
	"vesseldots/pkg/mask"
	"vesseldots/pkg/objects"
	"vesseldots/pkg/roi"
)

// VesselConfig holds the vessel segmentation parameters
type VesselConfig struct {
	// Method is the automatic threshold method applied to the LoG response
	Method string

	// MinVolume and MaxVolume bound object volumes in calibrated units³;
	// MaxVolume may be +Inf
	MinVolume float64
	MaxVolume float64

	// Sigma is the LoG deviation in calibrated units
	Sigma float64

	// FillHoles fills enclosed background per plane after thresholding
	FillHoles bool
}

// VesselDetector segments the vessel channel
type VesselDetector struct {
	Backend filter.Backend
	Config  VesselConfig
	Log     logrus.FieldLogger
}

// NewVesselDetector returns a detector running on backend
func NewVesselDetector(backend filter.Backend, cfg VesselConfig, log logrus.FieldLogger) *VesselDetector {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &VesselDetector{Backend: backend, Config: cfg, Log: log}
}

// Detect enhances vol with a scale-normalised negated LoG, thresholds it,
// blanks rois, labels the foreground and filters by volume
func (d *VesselDetector) Detect(vol *models.Volume, rois roi.Set) (*objects.Population, error) {
	if vol.Empty() {
		return nil, fmt.Errorf("vessel detection: empty volume: %w", models.ErrInvalidInput)
	}
	enhanced, err := d.Backend.LaplacianOfGaussian(vol, d.Config.Sigma, filter.LoGOptions{Normalize: true, Negate: true})
	if err != nil {
		return nil, fmt.Errorf("vessel enhancement: %w", err)
	}
	m, err := d.Backend.Threshold(enhanced, d.Config.Method)
	if err != nil {
		return nil, fmt.Errorf("vessel threshold: %w", err)
	}
	if d.Config.FillHoles {
		mask.FillHoles(m)
	}
	if !rois.Empty() {
		mask.ClearROIs(m, rois)
	}

	pop := objects.Label(m)
	filtered, err := objects.FilterSize(pop, d.Config.MinVolume, d.Config.MaxVolume)
	if err != nil {
		return nil, err
	}
	d.Log.WithFields(logrus.Fields{
		"foreground": m.Count(),
		"labeled":    pop.Len(),
		"kept":       filtered.Len(),
	}).Debug("vessels detected")
	return filtered, nil
}
