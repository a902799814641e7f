// Package filter implements the intensity enhancement primitives used before
// thresholding: separable Gaussian smoothing, difference of Gaussians,
// slice-wise Laplacian of Gaussian and z projections.
//
// All sigmas are given in calibrated units and converted to pixels per axis
// with the volume calibration. Borders are handled by reflection. Results
// are pure functions of the input, whatever the number of workers.
package filter

import (
	"fmt"
	"math"

	"vesseldots/internal/models"
)

// LoGOptions controls the Laplacian of Gaussian response
type LoGOptions struct {
	// Normalize multiplies the response by sigma² (in pixels) so responses
	// are comparable across scales
	Normalize bool

	// Negate flips the sign so bright structures give positive responses
	Negate bool
}

func checkSigma(sigma float64) error {
	if math.IsNaN(sigma) || math.IsInf(sigma, 0) || sigma < 0 {
		return fmt.Errorf("invalid sigma %g: %w", sigma, models.ErrInvalidInput)
	}
	return nil
}

func dims(vol *models.Volume) [3]int {
	return [3]int{vol.Width, vol.Height, vol.Depth}
}

// pixelSigmas converts a physical sigma to pixels along x, y and z
func pixelSigmas(cal models.Calibration, sigma float64) [3]float64 {
	return [3]float64{sigma / cal.PixelWidth, sigma / cal.PixelHeight, sigma / cal.PixelDepth}
}

// GaussianBlur smooths vol in 3D with a Gaussian of deviation sigma in
// calibrated units
func GaussianBlur(vol *models.Volume, sigma float64, workers int) (*models.Volume, error) {
	if vol.Empty() {
		return nil, fmt.Errorf("gaussian blur: empty volume: %w", models.ErrInvalidInput)
	}
	if err := checkSigma(sigma); err != nil {
		return nil, err
	}
	s := pixelSigmas(vol.Calibration, sigma)

	out := models.NewVolume(vol.Width, vol.Height, vol.Depth, vol.Calibration)
	tmp := make([]float32, len(vol.Data))
	if err := convolveAxis(tmp, vol.Data, dims(vol), 0, GaussianKernel(s[0]), workers); err != nil {
		return nil, err
	}
	if err := convolveAxis(out.Data, tmp, dims(vol), 1, GaussianKernel(s[1]), workers); err != nil {
		return nil, err
	}
	if err := convolveAxis(tmp, out.Data, dims(vol), 2, GaussianKernel(s[2]), workers); err != nil {
		return nil, err
	}
	out.Data = tmp
	return out, nil
}

// DifferenceOfGaussians returns G(sigma1) - G(sigma2), a band-pass keeping
// structures between the two scales
func DifferenceOfGaussians(vol *models.Volume, sigma1, sigma2 float64, workers int) (*models.Volume, error) {
	small, err := GaussianBlur(vol, sigma1, workers)
	if err != nil {
		return nil, err
	}
	large, err := GaussianBlur(vol, sigma2, workers)
	if err != nil {
		return nil, err
	}
	for i, v := range large.Data {
		small.Data[i] -= v
	}
	return small, nil
}

// LaplacianOfGaussian filters every z-plane independently with the 2D
// Laplacian of a Gaussian of deviation sigma in calibrated units
func LaplacianOfGaussian(vol *models.Volume, sigma float64, opts LoGOptions, workers int) (*models.Volume, error) {
	if vol.Empty() {
		return nil, fmt.Errorf("laplacian of gaussian: empty volume: %w", models.ErrInvalidInput)
	}
	if err := checkSigma(sigma); err != nil {
		return nil, err
	}
	s := pixelSigmas(vol.Calibration, sigma)
	d := dims(vol)

	// ∂²/∂x² then ∂²/∂y², each smoothed along the other axis
	xx := make([]float32, len(vol.Data))
	yy := make([]float32, len(vol.Data))
	tmp := make([]float32, len(vol.Data))
	if err := convolveAxis(tmp, vol.Data, d, 0, SecondDerivativeKernel(s[0]), workers); err != nil {
		return nil, err
	}
	if err := convolveAxis(xx, tmp, d, 1, sampledGaussian(s[1]), workers); err != nil {
		return nil, err
	}
	if err := convolveAxis(tmp, vol.Data, d, 0, sampledGaussian(s[0]), workers); err != nil {
		return nil, err
	}
	if err := convolveAxis(yy, tmp, d, 1, SecondDerivativeKernel(s[1]), workers); err != nil {
		return nil, err
	}

	scale := 1.0
	if opts.Normalize {
		scale = s[0] * s[1]
	}
	if opts.Negate {
		scale = -scale
	}
	out := models.NewVolume(vol.Width, vol.Height, vol.Depth, vol.Calibration)
	for i := range out.Data {
		out.Data[i] = float32(scale * (float64(xx[i]) + float64(yy[i])))
	}
	return out, nil
}

// MinProjection returns the per-pixel minimum over all z-planes
func MinProjection(vol *models.Volume) []float32 {
	if vol.Empty() {
		return nil
	}
	proj := make([]float32, vol.Width*vol.Height)
	copy(proj, vol.Plane(0))
	for z := 1; z < vol.Depth; z++ {
		for i, v := range vol.Plane(z) {
			if v < proj[i] {
				proj[i] = v
			}
		}
	}
	return proj
}
