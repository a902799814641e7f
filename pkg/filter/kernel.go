package filter

import (
	"math"
)

// kernelTail is the Gaussian mass allowed outside a truncated kernel
const kernelTail = 1e-3

// reflect maps an out-of-range coordinate back into [0, size) by mirroring
// about the borders, repeating as often as needed for long kernels.
func reflect(size, x int) int {
	if size == 1 {
		return 0
	}
	period := 2 * size
	x %= period
	if x < 0 {
		x += period
	}
	if x >= size {
		x = period - x - 1
	}
	return x
}

// gaussianIntegral is the cumulative Gaussian with mean 0 and deviation sigma at x
func gaussianIntegral(sigma, x float64) float64 {
	return 0.5 * (1 + math.Erf(x/(math.Sqrt2*sigma)))
}

// kernelRadius returns the smallest radius whose two tails together hold less
// than kernelTail of the Gaussian mass
func kernelRadius(sigma float64) int {
	r := 0
	for 2*gaussianIntegral(sigma, -0.5-float64(r)) >= kernelTail {
		r++
	}
	return r
}

// GaussianKernel returns a normalised 1D Gaussian kernel for sigma in pixels.
// Each tap integrates the Gaussian over its pixel. sigma <= 0 yields the identity.
func GaussianKernel(sigma float64) []float64 {
	if sigma <= 0 {
		return []float64{1}
	}
	r := kernelRadius(sigma)
	k := make([]float64, 2*r+1)
	sum := 0.0
	lower := gaussianIntegral(sigma, -0.5-float64(r))
	for i := 0; i <= r; i++ {
		upper := gaussianIntegral(sigma, -0.5-float64(r)+float64(i+1))
		k[i] = upper - lower
		lower = upper
	}
	for i := 1; i <= r; i++ {
		k[r+i] = k[r-i]
	}
	for _, v := range k {
		sum += v
	}
	for i := range k {
		k[i] /= sum
	}
	return k
}

// SecondDerivativeKernel returns the sampled second derivative of a Gaussian
// with deviation sigma in pixels, corrected to zero sum so constant regions
// give no response. The radius is 4 sigma.
func SecondDerivativeKernel(sigma float64) []float64 {
	if sigma <= 0 {
		return []float64{0}
	}
	r := int(math.Ceil(4 * sigma))
	k := make([]float64, 2*r+1)
	s2 := sigma * sigma
	norm := 1 / (math.Sqrt(2*math.Pi) * sigma)
	mean := 0.0
	for i := -r; i <= r; i++ {
		x := float64(i)
		k[i+r] = (x*x - s2) / (s2 * s2) * norm * math.Exp(-x*x/(2*s2))
		mean += k[i+r]
	}
	mean /= float64(len(k))
	for i := range k {
		k[i] -= mean
	}
	return k
}

// sampledGaussian returns the point-sampled Gaussian used alongside
// SecondDerivativeKernel so both share the same support
func sampledGaussian(sigma float64) []float64 {
	if sigma <= 0 {
		return []float64{1}
	}
	r := int(math.Ceil(4 * sigma))
	k := make([]float64, 2*r+1)
	sum := 0.0
	for i := -r; i <= r; i++ {
		x := float64(i)
		k[i+r] = math.Exp(-x * x / (2 * sigma * sigma))
		sum += k[i+r]
	}
	for i := range k {
		k[i] /= sum
	}
	return k
}
