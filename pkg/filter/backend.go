package filter

import (
	"runtime"

	"vesseldots/internal/models"
	"vesseldots/pkg/mask"
)

// Backend executes the enhancement and binarization primitives. A backend is
// created once per run and reused for every image; implementations need not
// be safe for concurrent use by more than one pipeline.
type Backend interface {
	// GaussianBandpass returns the difference of Gaussians G(sigma1) - G(sigma2)
	GaussianBandpass(vol *models.Volume, sigma1, sigma2 float64) (*models.Volume, error)

	// LaplacianOfGaussian returns the slice-wise LoG response
	LaplacianOfGaussian(vol *models.Volume, sigma float64, opts LoGOptions) (*models.Volume, error)

	// Threshold binarizes vol with a named automatic method
	Threshold(vol *models.Volume, method string) (*models.Mask, error)
}

// CPU is the native Backend, spreading slices over Workers goroutines
type CPU struct {
	Workers int
}

// NewCPU returns a CPU backend; workers <= 0 uses every available CPU
func NewCPU(workers int) *CPU {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &CPU{Workers: workers}
}

func (c *CPU) GaussianBandpass(vol *models.Volume, sigma1, sigma2 float64) (*models.Volume, error) {
	return DifferenceOfGaussians(vol, sigma1, sigma2, c.Workers)
}

func (c *CPU) LaplacianOfGaussian(vol *models.Volume, sigma float64, opts LoGOptions) (*models.Volume, error) {
	return LaplacianOfGaussian(vol, sigma, opts, c.Workers)
}

func (c *CPU) Threshold(vol *models.Volume, method string) (*models.Mask, error) {
	return mask.Build(vol, mask.Options{Method: method})
}
