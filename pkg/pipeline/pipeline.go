// Package pipeline runs the per-image analysis: load both channels, segment
// vessels and dots, split the dots by the dilated vessels, measure and write
// the results.
package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/DmitriyVTitov/size"
	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"

	"vesseldots/internal/models"
	"vesseldots/pkg/classify"
	"vesseldots/pkg/config"
	"vesseldots/pkg/detection"
	"vesseldots/pkg/filter"
	"vesseldots/pkg/imageio"
	"vesseldots/pkg/objects"
	"vesseldots/pkg/quantify"
	"vesseldots/pkg/results"
	"vesseldots/pkg/roi"
)

// TableFile is the name of the results table inside the output directory
const TableFile = "results.xls"

// Params holds the run parameters. They are fixed once the pipeline is built.
type Params struct {
	// InputDir holds one directory per image, each with one subdirectory per channel
	InputDir string

	// OutputDir receives the table, overlays and archives. Empty means
	// Config.Output.Dir, resolved against InputDir when relative.
	OutputDir string

	Config *config.Config

	// Backend runs the filters and thresholds; nil selects the CPU backend
	Backend filter.Backend

	// Registry resolves the dot model; nil selects the built-in registry
	Registry *detection.Registry
}

// Pipeline processes the images of one input directory in order
type Pipeline struct {
	params    Params
	outputDir string
	images    []string
	log       logrus.FieldLogger

	vessels *detection.VesselDetector
	dots    detection.DotDetector

	records []quantify.Record
}

// New validates the configuration, finds the images and builds the
// detectors. Every setup failure is reported here, before any file is written.
func New(params Params, log logrus.FieldLogger) (*Pipeline, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if params.Config == nil {
		params.Config = config.DefaultConfig()
	}
	cfg := params.Config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	outputDir := params.OutputDir
	if outputDir == "" {
		outputDir = cfg.Output.Dir
		if !filepath.IsAbs(outputDir) {
			outputDir = filepath.Join(params.InputDir, outputDir)
		}
	}

	images, err := imageio.FindImages(params.InputDir, filepath.Base(outputDir))
	if err != nil {
		return nil, err
	}
	for _, name := range images {
		channels, err := imageio.Channels(filepath.Join(params.InputDir, name))
		if err != nil {
			return nil, err
		}
		for _, ch := range []string{cfg.Channels.Vessel, cfg.Channels.Dots} {
			if !slices.Contains(channels, ch) {
				return nil, fmt.Errorf("channel %q not found in image %s (has %v): %w", ch, name, channels, models.ErrConfiguration)
			}
		}
	}

	if params.Backend == nil {
		params.Backend = filter.NewCPU(cfg.Processing.Workers)
	}
	if params.Registry == nil {
		params.Registry = detection.NewRegistry()
	}
	dots, err := detection.NewDotDetector(cfg.DotConfig(), params.Backend, params.Registry, log)
	if err != nil {
		return nil, err
	}

	return &Pipeline{
		params:    params,
		outputDir: outputDir,
		images:    images,
		log:       log,
		vessels:   detection.NewVesselDetector(params.Backend, cfg.VesselConfig(), log),
		dots:      dots,
	}, nil
}

// Images returns the image names in processing order
func (p *Pipeline) Images() []string {
	return p.images
}

// OutputDir returns the resolved output directory
func (p *Pipeline) OutputDir() string {
	return p.outputDir
}

// Records returns the measurements of the images processed so far
func (p *Pipeline) Records() []quantify.Record {
	return p.records
}

// Process runs every image and appends its row to the results table. The
// first failing image aborts the run; rows already written stay on disk.
func (p *Pipeline) Process() error {
	if err := os.MkdirAll(p.outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %v: %w", err, models.ErrIO)
	}
	table, err := results.NewTable(filepath.Join(p.outputDir, TableFile))
	if err != nil {
		return err
	}
	defer table.Close()

	start := time.Now()
	for i, name := range p.images {
		log := p.log.WithFields(logrus.Fields{"image": name, "index": i + 1, "total": len(p.images)})
		log.Info("Processing image")

		rec, err := p.processImage(name, log)
		if err != nil {
			return fmt.Errorf("image %s: %w", name, err)
		}
		if err := table.Write(rec); err != nil {
			return err
		}
		p.records = append(p.records, rec)
	}

	p.log.WithFields(logrus.Fields{
		"images":   len(p.images),
		"duration": time.Since(start).Round(time.Millisecond).String(),
		"table":    filepath.Join(p.outputDir, TableFile),
	}).Info("Processing done")
	return nil
}

func (p *Pipeline) loadCalibration(imageDir string) (models.Calibration, error) {
	cal, err := imageio.LoadCalibration(imageDir)
	if err != nil {
		return cal, err
	}
	cal = p.params.Config.ApplyCalibration(cal)
	if !cal.Valid() {
		return cal, fmt.Errorf("invalid calibration %+v: %w", cal, models.ErrInput)
	}
	return cal, nil
}

// detectVessels loads the vessel channel and keeps only its population
func (p *Pipeline) detectVessels(imageDir string, cal models.Calibration, rois roi.Set, log logrus.FieldLogger) (*objects.Population, error) {
	vol, err := imageio.LoadChannel(imageDir, p.params.Config.Channels.Vessel, cal)
	if err != nil {
		return nil, err
	}
	log.WithFields(logrus.Fields{
		"size":   fmt.Sprintf("%dx%dx%d", vol.Width, vol.Height, vol.Depth),
		"memory": humanize.Bytes(uint64(size.Of(vol))),
	}).Debug("Vessel channel loaded")

	return p.vessels.Detect(vol, rois)
}

func (p *Pipeline) processImage(name string, log logrus.FieldLogger) (quantify.Record, error) {
	cfg := p.params.Config
	imageDir := filepath.Join(p.params.InputDir, name)

	cal, err := p.loadCalibration(imageDir)
	if err != nil {
		return quantify.Record{}, err
	}
	rois, err := roi.Load(p.params.InputDir, name)
	if err != nil {
		return quantify.Record{}, err
	}
	if !rois.Empty() {
		log.WithField("rois", len(rois)).Debug("Regions loaded")
	}

	// Step 1: vessels
	vessels, err := p.detectVessels(imageDir, cal, rois, log)
	if err != nil {
		return quantify.Record{}, fmt.Errorf("vessel detection: %w", err)
	}
	log.WithFields(logrus.Fields{
		"vessels": vessels.Len(),
		"volume":  humanize.FormatFloat("#,###.##", vessels.Volume()),
	}).Info("Vessels detected")

	// Step 2: dots
	dotsVol, err := imageio.LoadChannel(imageDir, cfg.Channels.Dots, cal)
	if err != nil {
		return quantify.Record{}, err
	}
	dots, err := p.dots.Detect(dotsVol, rois)
	if err != nil {
		return quantify.Record{}, fmt.Errorf("dot detection: %w", err)
	}
	log.WithField("dots", dots.Len()).Info("Dots detected")

	// Step 3: split the dots by the dilated vessels
	dilated, err := objects.DilatePopulation(vessels, cfg.Vessel.Dilation)
	if err != nil {
		return quantify.Record{}, err
	}
	inside, outside, err := classify.Partition(dots, dilated)
	if err != nil {
		return quantify.Record{}, err
	}

	// Step 4: measure
	rec, err := quantify.Measure(name, dotsVol, rois, vessels, inside, outside)
	if err != nil {
		return quantify.Record{}, err
	}
	log.WithFields(logrus.Fields{
		"inside":     rec.DotsInside.Count,
		"outside":    rec.DotsOutside.Count,
		"background": rec.Background,
	}).Info("Dots classified")

	// Step 5: outputs
	if cfg.Output.Overlay {
		dir, err := results.WriteOverlay(p.outputDir, name, vessels, inside, outside)
		if err != nil {
			return quantify.Record{}, err
		}
		log.WithField("dir", dir).Debug("Overlay saved")
	}
	if cfg.Output.Archive {
		path := filepath.Join(p.outputDir, name+".vdob")
		err := results.WriteArchive(path, []results.NamedPopulation{
			{Name: "vessels", Population: vessels},
			{Name: "dilated", Population: dilated},
			{Name: "dotsInside", Population: inside},
			{Name: "dotsOutside", Population: outside},
		})
		if err != nil {
			return quantify.Record{}, err
		}
		log.WithField("file", path).Debug("Archive saved")
	}
	return rec, nil
}
