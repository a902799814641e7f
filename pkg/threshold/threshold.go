// Package threshold computes global automatic thresholds from a 256-bin intensity
// histogram. Method names follow the ImageJ AutoThresholder naming so existing
// parameter sets can be reused unchanged.
package threshold

import (
	"fmt"
	"math"
	"sort"

	"vesseldots/internal/models"
)

// Bins is the number of histogram bins used by every method
const Bins = 256

// Method maps a histogram to the index of the last background bin.
// A negative index means every voxel is foreground.
type Method func(histogram []int) int

var methods = map[string]Method{
	"Default":    ijDefault,
	"Huang":      huang,
	"Intermodes": intermodes,
	"IsoData":    isoData,
	"Li":         li,
	"MaxEntropy": maxEntropy,
	"Mean":       mean,
	"Minimum":    minimum,
	"Moments":    moments,
	"Otsu":       otsu,
	"Percentile": percentile,
	"Triangle":   triangle,
	"Yen":        yen,
}

// Register adds or replaces a named method
func Register(name string, m Method) {
	methods[name] = m
}

// Get returns the method registered under name
func Get(name string) (Method, bool) {
	m, ok := methods[name]
	return m, ok
}

// IsValid reports whether name is a known method
func IsValid(name string) bool {
	_, ok := methods[name]
	return ok
}

// Methods returns the registered method names in sorted order
func Methods() []string {
	names := make([]string, 0, len(methods))
	for name := range methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Histogram holds a 256-bin histogram spanning [Min, Max]
type Histogram struct {
	Counts []int
	Min    float64
	Max    float64
}

// BinWidth returns the intensity range covered by one bin
func (h *Histogram) BinWidth() float64 {
	return (h.Max - h.Min) / Bins
}

// Bin returns the bin index of value v, clamped to [0, Bins)
func (h *Histogram) Bin(v float64) int {
	w := h.BinWidth()
	if w == 0 {
		return 0
	}
	b := int((v - h.Min) / w)
	if b < 0 {
		return 0
	}
	if b >= Bins {
		return Bins - 1
	}
	return b
}

// NewHistogram builds the histogram of data over its own [min, max] range
func NewHistogram(data []float32) *Histogram {
	h := &Histogram{Counts: make([]int, Bins)}
	if len(data) == 0 {
		return h
	}
	lo, hi := float64(data[0]), float64(data[0])
	for _, v := range data {
		f := float64(v)
		if f < lo {
			lo = f
		}
		if f > hi {
			hi = f
		}
	}
	h.Min, h.Max = lo, hi
	for _, v := range data {
		h.Counts[h.Bin(float64(v))]++
	}
	return h
}

// Level returns the intensity level for the named method: voxels with
// value >= level are foreground.
func Level(vol *models.Volume, method string) (float64, error) {
	if vol.Empty() {
		return 0, fmt.Errorf("threshold: empty volume: %w", models.ErrInvalidInput)
	}
	m, ok := methods[method]
	if !ok {
		return 0, fmt.Errorf("threshold: unknown method %q: %w", method, models.ErrInvalidInput)
	}
	h := NewHistogram(vol.Data)
	if h.Max == h.Min {
		return h.Min, nil
	}
	counts := make([]int, len(h.Counts))
	copy(counts, h.Counts)
	return LevelForBin(h, m(counts)), nil
}

// LevelForBin converts a bin index into an intensity level for h
func LevelForBin(h *Histogram, bin int) float64 {
	if bin >= Bins-1 {
		return h.Max
	}
	return h.Min + float64(bin+1)*h.BinWidth()
}

func total(data []int) float64 {
	var sum float64
	for _, c := range data {
		sum += float64(c)
	}
	return sum
}

func ijDefault(data []int) int {
	maxValue := len(data) - 1
	count0 := data[0]
	data[0] = 0
	countMax := data[maxValue]
	data[maxValue] = 0
	defer func() {
		data[0] = count0
		data[maxValue] = countMax
	}()

	lo := 0
	for data[lo] == 0 && lo < maxValue {
		lo++
	}
	hi := maxValue
	for data[hi] == 0 && hi > 0 {
		hi--
	}
	if lo >= hi {
		return len(data) / 2
	}

	moving := lo
	var result float64
	for {
		var sum1, sum2, sum3, sum4 float64
		for i := lo; i <= moving; i++ {
			sum1 += float64(i) * float64(data[i])
			sum2 += float64(data[i])
		}
		for i := moving + 1; i <= hi; i++ {
			sum3 += float64(i) * float64(data[i])
			sum4 += float64(data[i])
		}
		result = (sum1/sum2 + sum3/sum4) / 2.0
		moving++
		if !(float64(moving+1) <= result && moving < hi-1) {
			break
		}
	}
	return int(math.Round(result))
}

func huang(data []int) int {
	first := 0
	for i := range data {
		if data[i] != 0 {
			first = i
			break
		}
	}
	last := len(data) - 1
	for i := len(data) - 1; i >= first; i-- {
		if data[i] != 0 {
			last = i
			break
		}
	}
	if first == last {
		return first
	}
	term := 1.0 / float64(last-first)

	mu0 := make([]float64, len(data))
	var sumPix, numPix float64
	for i := first; i < len(data); i++ {
		sumPix += float64(i) * float64(data[i])
		numPix += float64(data[i])
		mu0[i] = sumPix / numPix
	}
	mu1 := make([]float64, len(data))
	sumPix, numPix = 0, 0
	for i := last; i > 0; i-- {
		sumPix += float64(i) * float64(data[i])
		numPix += float64(data[i])
		mu1[i-1] = sumPix / numPix
	}

	membership := func(i int, mu float64) float64 {
		return 1.0 / (1.0 + term*math.Abs(float64(i)-mu))
	}
	entropy := func(mu float64) float64 {
		if mu < 1e-06 || mu > 0.999999 {
			return 0
		}
		return -mu*math.Log(mu) - (1.0-mu)*math.Log(1.0-mu)
	}

	threshold := -1
	minEnt := math.MaxFloat64
	for it := range data {
		var ent float64
		for i := 0; i <= it; i++ {
			ent += float64(data[i]) * entropy(membership(i, mu0[it]))
		}
		for i := it + 1; i < len(data); i++ {
			ent += float64(data[i]) * entropy(membership(i, mu1[it]))
		}
		if ent < minEnt {
			minEnt = ent
			threshold = it
		}
	}
	return threshold
}

// bimodal reports whether y has exactly two local maxima
func bimodal(y []float64) bool {
	modes := 0
	for k := 1; k < len(y)-1; k++ {
		if y[k-1] < y[k] && y[k+1] < y[k] {
			modes++
			if modes > 2 {
				return false
			}
		}
	}
	return modes == 2
}

// smoothUntilBimodal applies a 3-point running mean until the histogram is bimodal
func smoothUntilBimodal(data []int) ([]float64, bool) {
	h := make([]float64, len(data))
	for i, c := range data {
		h[i] = float64(c)
	}
	for iter := 0; !bimodal(h); iter++ {
		if iter > 10000 {
			return nil, false
		}
		var previous, current float64
		next := h[0]
		for i := 0; i < len(h)-1; i++ {
			previous = current
			current = next
			next = h[i+1]
			h[i] = (previous + current + next) / 3
		}
		h[len(h)-1] = (current + next) / 3
	}
	return h, true
}

func intermodes(data []int) int {
	h, ok := smoothUntilBimodal(data)
	if !ok {
		return -1
	}
	tt := 0
	for i := 1; i < len(h)-1; i++ {
		if h[i-1] < h[i] && h[i+1] < h[i] {
			tt += i
		}
	}
	return int(math.Floor(float64(tt) / 2.0))
}

func minimum(data []int) int {
	h, ok := smoothUntilBimodal(data)
	if !ok {
		return -1
	}
	for i := 1; i < len(h)-1; i++ {
		if h[i-1] > h[i] && h[i+1] >= h[i] {
			return i
		}
	}
	return -1
}

func isoData(data []int) int {
	g := 0
	for i := 1; i < len(data); i++ {
		if data[i] > 0 {
			g = i + 1
			break
		}
	}
	for {
		var l, totl, h, toth int
		for i := 0; i < g+1 && i < len(data); i++ {
			totl += data[i]
			l += data[i] * i
		}
		for i := g + 1; i < len(data); i++ {
			toth += data[i]
			h += data[i] * i
		}
		if totl > 0 && toth > 0 {
			l /= totl
			h /= toth
			if g == int(math.Round(float64(l+h)/2.0)) {
				return g
			}
		}
		g++
		if g > len(data)-2 {
			return -1
		}
	}
}

func li(data []int) int {
	const tolerance = 0.5
	numPixels := total(data)
	if numPixels == 0 {
		return -1
	}
	var sum float64
	for i, c := range data {
		sum += float64(i) * float64(c)
	}
	newThresh := sum / numPixels

	threshold := 0
	for iter := 0; iter < 1000; iter++ {
		oldThresh := newThresh
		threshold = int(oldThresh + 0.5)

		var sumBack, numBack float64
		for i := 0; i <= threshold && i < len(data); i++ {
			sumBack += float64(i) * float64(data[i])
			numBack += float64(data[i])
		}
		meanBack := 0.0
		if numBack != 0 {
			meanBack = sumBack / numBack
		}
		var sumObj, numObj float64
		for i := threshold + 1; i < len(data); i++ {
			sumObj += float64(i) * float64(data[i])
			numObj += float64(data[i])
		}
		meanObj := 0.0
		if numObj != 0 {
			meanObj = sumObj / numObj
		}

		temp := (meanBack - meanObj) / (math.Log(meanBack) - math.Log(meanObj))
		if math.IsNaN(temp) {
			break
		}
		if temp < -2.220446049250313e-16 {
			newThresh = float64(int(temp - 0.5))
		} else {
			newThresh = float64(int(temp + 0.5))
		}
		if math.Abs(newThresh-oldThresh) <= tolerance {
			break
		}
	}
	return threshold
}

func normalized(data []int) []float64 {
	t := total(data)
	norm := make([]float64, len(data))
	if t == 0 {
		return norm
	}
	for i, c := range data {
		norm[i] = float64(c) / t
	}
	return norm
}

func maxEntropy(data []int) int {
	const eps = 2.220446049250313e-16
	norm := normalized(data)
	p1 := make([]float64, len(data))
	p2 := make([]float64, len(data))
	p1[0] = norm[0]
	p2[0] = 1.0 - p1[0]
	for i := 1; i < len(data); i++ {
		p1[i] = p1[i-1] + norm[i]
		p2[i] = 1.0 - p1[i]
	}

	first := 0
	for i := range data {
		if math.Abs(p1[i]) >= eps {
			first = i
			break
		}
	}
	last := len(data) - 1
	for i := len(data) - 1; i >= first; i-- {
		if math.Abs(p2[i]) >= eps {
			last = i
			break
		}
	}

	threshold := -1
	maxEnt := math.SmallestNonzeroFloat64
	for it := first; it <= last; it++ {
		var entBack float64
		for i := 0; i <= it; i++ {
			if data[i] != 0 {
				r := norm[i] / p1[it]
				entBack -= r * math.Log(r)
			}
		}
		var entObj float64
		for i := it + 1; i < len(data); i++ {
			if data[i] != 0 {
				r := norm[i] / p2[it]
				entObj -= r * math.Log(r)
			}
		}
		if tot := entBack + entObj; maxEnt < tot {
			maxEnt = tot
			threshold = it
		}
	}
	return threshold
}

func mean(data []int) int {
	t := total(data)
	if t == 0 {
		return -1
	}
	var sum float64
	for i, c := range data {
		sum += float64(i) * float64(c)
	}
	return int(math.Floor(sum / t))
}

func moments(data []int) int {
	histo := normalized(data)
	m0 := 1.0
	var m1, m2, m3 float64
	for i, p := range histo {
		di := float64(i)
		m1 += di * p
		m2 += di * di * p
		m3 += di * di * di * p
	}
	cd := m0*m2 - m1*m1
	c0 := (-m2*m2 + m1*m3) / cd
	c1 := (m0*-m3 + m2*m1) / cd
	z0 := 0.5 * (-c1 - math.Sqrt(c1*c1-4.0*c0))
	z1 := 0.5 * (-c1 + math.Sqrt(c1*c1-4.0*c0))
	p0 := (z1 - m1) / (z1 - z0)

	var sum float64
	for i, p := range histo {
		sum += p
		if sum > p0 {
			return i
		}
	}
	return -1
}

func otsu(data []int) int {
	t := total(data)
	var sumAll float64
	for i, c := range data {
		sumAll += float64(i) * float64(c)
	}

	var wB, sumB, best float64
	threshold := -1
	for i, c := range data {
		wB += float64(c)
		if wB == 0 {
			continue
		}
		wF := t - wB
		if wF == 0 {
			break
		}
		sumB += float64(i) * float64(c)
		mB := sumB / wB
		mF := (sumAll - sumB) / wF
		between := wB * wF * (mB - mF) * (mB - mF)
		if between > best {
			best = between
			threshold = i
		}
	}
	return threshold
}

func percentile(data []int) int {
	const ptile = 0.5
	t := total(data)
	if t == 0 {
		return -1
	}
	threshold := -1
	best := 1.0
	var partial float64
	for i, c := range data {
		partial += float64(c)
		if d := math.Abs(partial/t - ptile); d < best {
			best = d
			threshold = i
		}
	}
	return threshold
}

func triangle(in []int) int {
	data := make([]int, len(in))
	copy(data, in)
	n := len(data)

	lo := 0
	for i := 0; i < n; i++ {
		if data[i] > 0 {
			lo = i
			break
		}
	}
	if lo > 0 {
		lo--
	}
	hi := 0
	for i := n - 1; i > 0; i-- {
		if data[i] > 0 {
			hi = i
			break
		}
	}
	if hi < n-1 {
		hi++
	}
	peak, dmax := 0, 0
	for i := 0; i < n; i++ {
		if data[i] > dmax {
			peak = i
			dmax = data[i]
		}
	}

	inverted := false
	if peak-lo < hi-peak {
		inverted = true
		for l, r := 0, n-1; l < r; l, r = l+1, r-1 {
			data[l], data[r] = data[r], data[l]
		}
		lo = n - 1 - hi
		peak = n - 1 - peak
	}
	if lo == peak {
		return lo
	}

	nx := float64(data[peak])
	ny := float64(lo - peak)
	d := math.Sqrt(nx*nx + ny*ny)
	nx /= d
	ny /= d
	d = nx*float64(lo) + ny*float64(data[lo])

	split := lo
	splitDistance := 0.0
	for i := lo + 1; i <= peak; i++ {
		dist := nx*float64(i) + ny*float64(data[i]) - d
		if dist > splitDistance {
			split = i
			splitDistance = dist
		}
	}
	split--

	if inverted {
		return n - 1 - split
	}
	return split
}

func yen(data []int) int {
	norm := normalized(data)
	n := len(data)
	p1 := make([]float64, n)
	p1sq := make([]float64, n)
	p2sq := make([]float64, n)
	p1[0] = norm[0]
	p1sq[0] = norm[0] * norm[0]
	for i := 1; i < n; i++ {
		p1[i] = p1[i-1] + norm[i]
		p1sq[i] = p1sq[i-1] + norm[i]*norm[i]
	}
	p2sq[n-1] = 0
	for i := n - 2; i >= 0; i-- {
		p2sq[i] = p2sq[i+1] + norm[i+1]*norm[i+1]
	}

	threshold := -1
	maxCrit := math.SmallestNonzeroFloat64
	for it := 0; it < n; it++ {
		a, b := 0.0, 0.0
		if v := p1sq[it] * p2sq[it]; v > 0 {
			a = math.Log(v)
		}
		if v := p1[it] * (1.0 - p1[it]); v > 0 {
			b = math.Log(v)
		}
		if crit := -a + 2*b; crit > maxCrit {
			maxCrit = crit
			threshold = it
		}
	}
	return threshold
}
