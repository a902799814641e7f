package detection

import (
	"fmt"
	"sort"
	"sync"

	"vesseldots/internal/models"
)

// LabelSlice is a 2D instance mask: every detected instance has its own
// nonzero label, 0 is background
type LabelSlice struct {
	Width, Height int
	Labels        []int32
}

// NewLabelSlice returns an empty w×h instance mask
func NewLabelSlice(w, h int) *LabelSlice {
	return &LabelSlice{Width: w, Height: h, Labels: make([]int32, w*h)}
}

// InstanceParams are the per-call detector thresholds
type InstanceParams struct {
	// ProbThreshold is the object probability in [0, 1] a pixel must exceed
	ProbThreshold float64

	// OverlapThreshold is the largest intersection over union two kept
	// instances may share
	OverlapThreshold float64
}

// InstanceDetector finds object instances in one grayscale plane
type InstanceDetector interface {
	DetectInstances2D(plane []float32, width, height int, params InstanceParams) (*LabelSlice, error)
}

// ModelFactory creates a detector; it is called at most once per registry
type ModelFactory func() (InstanceDetector, error)

// Registry resolves model names to detectors. Detectors are created lazily on
// first use and then reused for every image.
type Registry struct {
	mu        sync.Mutex
	factories map[string]ModelFactory
	loaded    map[string]InstanceDetector
}

// NewRegistry returns a registry holding the built-in models
func NewRegistry() *Registry {
	r := &Registry{
		factories: map[string]ModelFactory{},
		loaded:    map[string]InstanceDetector{},
	}
	r.Register(BlobModel, func() (InstanceDetector, error) { return NewBlobDetector(), nil })
	return r
}

// Register adds or replaces a model factory
func (r *Registry) Register(name string, f ModelFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
	delete(r.loaded, name)
}

// Get returns the detector for name, creating it on first use
func (r *Registry) Get(name string) (InstanceDetector, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if det, ok := r.loaded[name]; ok {
		return det, nil
	}
	f, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("unknown detection model %q: %w", name, models.ErrConfiguration)
	}
	det, err := f()
	if err != nil {
		return nil, fmt.Errorf("loading model %q: %w", name, err)
	}
	r.loaded[name] = det
	return det, nil
}

// Models lists the registered model names
func (r *Registry) Models() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
