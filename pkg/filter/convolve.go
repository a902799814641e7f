package filter

import (
	"gonum.org/v1/gonum/dsp/fourier"
	"golang.org/x/sync/errgroup"
)

// fftKernelLength is the kernel length above which lines are convolved in
// the frequency domain
const fftKernelLength = 65

// lineConvolver convolves one line with a fixed symmetric kernel using
// reflected borders. Implementations keep scratch buffers and are not safe
// for concurrent use.
type lineConvolver interface {
	convolve(dst, src []float64)
}

func newLineConvolver(kernel []float64) lineConvolver {
	if len(kernel) > fftKernelLength {
		return &fftConvolver{kernel: kernel}
	}
	return directConvolver(kernel)
}

type directConvolver []float64

func (k directConvolver) convolve(dst, src []float64) {
	n := len(src)
	r := len(k) / 2
	for x := 0; x < n; x++ {
		sum := 0.0
		if x-r >= 0 && x+r < n {
			for i, w := range k {
				sum += src[x-r+i] * w
			}
		} else {
			for i, w := range k {
				sum += src[reflect(n, x-r+i)] * w
			}
		}
		dst[x] = sum
	}
}

// fftConvolver multiplies spectra with gonum's real FFT. The line is padded by
// the kernel radius with reflected samples and zero-extended so the circular
// convolution never wraps.
type fftConvolver struct {
	kernel []float64

	n        int
	fft      *fourier.FFT
	spectrum []complex128
	padded   []float64
	coeffs   []complex128
	out      []float64
}

func (c *fftConvolver) prepare(n int) {
	if c.n == n {
		return
	}
	r := len(c.kernel) / 2
	size := n + 4*r
	c.n = n
	c.fft = fourier.NewFFT(size)
	k := make([]float64, size)
	copy(k, c.kernel)
	c.spectrum = c.fft.Coefficients(nil, k)
	c.padded = make([]float64, size)
	c.coeffs = make([]complex128, size/2+1)
	c.out = make([]float64, size)
}

func (c *fftConvolver) convolve(dst, src []float64) {
	n := len(src)
	c.prepare(n)
	r := len(c.kernel) / 2

	for i := range c.padded {
		c.padded[i] = 0
	}
	for p := 0; p < n+2*r; p++ {
		c.padded[p] = src[reflect(n, p-r)]
	}
	c.fft.Coefficients(c.coeffs, c.padded)
	for i := range c.coeffs {
		c.coeffs[i] *= c.spectrum[i]
	}
	c.fft.Sequence(c.out, c.coeffs)

	scale := 1 / float64(len(c.out))
	for i := 0; i < n; i++ {
		dst[i] = c.out[i+2*r] * scale
	}
}

// convolveAxis convolves every line of a w×h×d volume along axis (0 = x,
// 1 = y, 2 = z) with kernel, writing into dst. Work is split by plane for the
// lateral axes and by row for z, running at most workers tasks at once.
func convolveAxis(dst, src []float32, dims [3]int, axis int, kernel []float64, workers int) error {
	w, h := dims[0], dims[1]
	if len(kernel) == 1 && kernel[0] == 1 {
		copy(dst, src)
		return nil
	}
	if dims[axis] == 0 {
		return nil
	}

	strides := [3]int{1, w, w * h}
	// outer is the axis a task iterates over, inner the remaining one
	var outer, inner int
	switch axis {
	case 0:
		outer, inner = 2, 1
	case 1:
		outer, inner = 2, 0
	default:
		outer, inner = 1, 0
	}

	var g errgroup.Group
	if workers > 0 {
		g.SetLimit(workers)
	}
	for o := 0; o < dims[outer]; o++ {
		o := o
		g.Go(func() error {
			conv := newLineConvolver(kernel)
			n := dims[axis]
			in := make([]float64, n)
			out := make([]float64, n)
			for i := 0; i < dims[inner]; i++ {
				base := o*strides[outer] + i*strides[inner]
				for k := 0; k < n; k++ {
					in[k] = float64(src[base+k*strides[axis]])
				}
				conv.convolve(out, in)
				for k := 0; k < n; k++ {
					dst[base+k*strides[axis]] = float32(out[k])
				}
			}
			return nil
		})
	}
	return g.Wait()
}
