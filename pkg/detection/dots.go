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

// DotStrategy selects how dots are found; it is either Classical or ModelBased
type DotStrategy interface {
	dotStrategy()
}

// Classical finds dots with a difference of Gaussians band-pass between
// Sigma1 and Sigma2 (calibrated units) followed by thresholding
type Classical struct {
	Sigma1 float64
	Sigma2 float64
}

// ModelBased runs a registered 2D instance detector on every plane and
// stitches the instances across planes
type ModelBased struct {
	Model            string
	ProbThreshold    float64
	OverlapThreshold float64

	// StitchThreshold is the minimum intersection over union for two
	// instances on adjacent planes to be one object
	StitchThreshold float64
}

func (Classical) dotStrategy()  {}
func (ModelBased) dotStrategy() {}

// DotConfig holds the dot segmentation parameters
type DotConfig struct {
	Strategy DotStrategy

	// Method is the threshold method of the classical strategy
	Method string

	MinVolume float64
	MaxVolume float64
}

// DotDetector produces the dot population of one channel
type DotDetector interface {
	Detect(vol *models.Volume, rois roi.Set) (*objects.Population, error)
}

// NewDotDetector builds the detector for cfg.Strategy. The model-based
// strategy resolves its model in registry once, here.
func NewDotDetector(cfg DotConfig, backend filter.Backend, registry *Registry, log logrus.FieldLogger) (DotDetector, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	switch s := cfg.Strategy.(type) {
	case Classical:
		return &classicalDots{backend: backend, strategy: s, cfg: cfg, log: log}, nil
	case ModelBased:
		if registry == nil {
			return nil, fmt.Errorf("model %q requested without a model registry: %w", s.Model, models.ErrConfiguration)
		}
		det, err := registry.Get(s.Model)
		if err != nil {
			return nil, err
		}
		return &modelDots{detector: det, strategy: s, cfg: cfg, log: log}, nil
	default:
		return nil, fmt.Errorf("unknown dot strategy %T: %w", cfg.Strategy, models.ErrConfiguration)
	}
}

type classicalDots struct {
	backend  filter.Backend
	strategy Classical
	cfg      DotConfig
	log      logrus.FieldLogger
}

func (d *classicalDots) Detect(vol *models.Volume, rois roi.Set) (*objects.Population, error) {
	if vol.Empty() {
		return nil, fmt.Errorf("dot detection: empty volume: %w", models.ErrInvalidInput)
	}
	dog, err := d.backend.GaussianBandpass(vol, d.strategy.Sigma1, d.strategy.Sigma2)
	if err != nil {
		return nil, fmt.Errorf("dot enhancement: %w", err)
	}
	m, err := d.backend.Threshold(dog, d.cfg.Method)
	if err != nil {
		return nil, fmt.Errorf("dot threshold: %w", err)
	}
	if !rois.Empty() {
		mask.ClearROIs(m, rois)
	}
	pop := objects.Label(m)
	filtered, err := objects.FilterSize(pop, d.cfg.MinVolume, d.cfg.MaxVolume)
	if err != nil {
		return nil, err
	}
	d.log.WithFields(logrus.Fields{
		"strategy": "classical",
		"labeled":  pop.Len(),
		"kept":     filtered.Len(),
	}).Debug("dots detected")
	return filtered, nil
}

type modelDots struct {
	detector InstanceDetector
	strategy ModelBased
	cfg      DotConfig
	log      logrus.FieldLogger
}

func (d *modelDots) Detect(vol *models.Volume, rois roi.Set) (*objects.Population, error) {
	if vol.Empty() {
		return nil, fmt.Errorf("dot detection: empty volume: %w", models.ErrInvalidInput)
	}
	params := InstanceParams{
		ProbThreshold:    d.strategy.ProbThreshold,
		OverlapThreshold: d.strategy.OverlapThreshold,
	}
	var excluded []bool
	if !rois.Empty() {
		excluded = rois.Rasterize(vol.Width, vol.Height)
	}

	slices := make([]*LabelSlice, vol.Depth)
	for z := 0; z < vol.Depth; z++ {
		ls, err := d.detector.DetectInstances2D(vol.Plane(z), vol.Width, vol.Height, params)
		if err != nil {
			return nil, fmt.Errorf("instance detection on plane %d: %w", z, err)
		}
		if excluded != nil {
			for i, ex := range excluded {
				if ex {
					ls.Labels[i] = 0
				}
			}
		}
		slices[z] = ls
	}

	labels, err := Stitch(slices, d.strategy.StitchThreshold)
	if err != nil {
		return nil, err
	}
	pop := objects.FromLabelImage(labels, vol.Width, vol.Height, vol.Depth, vol.Calibration)
	filtered, err := objects.FilterSize(pop, d.cfg.MinVolume, d.cfg.MaxVolume)
	if err != nil {
		return nil, err
	}
	d.log.WithFields(logrus.Fields{
		"strategy": "model",
		"model":    d.strategy.Model,
		"stitched": pop.Len(),
		"kept":     filtered.Len(),
	}).Debug("dots detected")
	return filtered, nil
}
