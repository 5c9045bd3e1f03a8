package bearoff

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"
)

// Buckets is the number of entries in a Histogram. The last bucket collects
// everything from 31 rolls on.
const Buckets = 32

// Histogram is a distribution over the number of rolls needed.
type Histogram [Buckets]float32

var rolls, rollsSquared = func() ([]float64, []float64) {
	r, r2 := make([]float64, Buckets), make([]float64, Buckets)
	for i := range r {
		r[i] = float64(i)
		r2[i] = float64(i * i)
	}
	return r, r2
}()

func (h Histogram) float64s() []float64 {
	s := make([]float64, Buckets)
	for i, v := range h {
		s[i] = float64(v)
	}
	return s
}

// Sum returns the total probability mass.
func (h Histogram) Sum() float64 {
	return floats.Sum(h.float64s())
}

// AverageRolls returns the mean and standard deviation of the number of rolls.
func (h Histogram) AverageRolls() (mean, stddev float32) {
	p := h.float64s()
	sx := floats.Dot(rolls, p)
	sx2 := floats.Dot(rollsSquared, p)
	return float32(sx), float32(math.Sqrt(math.Max(0, sx2-sx*sx)))
}

// normalHistogram samples a Gaussian density at every bucket. A degenerate
// distribution puts all its mass on the nearest bucket.
func normalHistogram(mean, stddev float32) Histogram {
	var h Histogram
	if stddev < ndEpsilon {
		if k := int(math.Round(float64(mean))); k >= 0 && k < Buckets {
			h[k] = 1
		}
		return h
	}
	n := distuv.Normal{Mu: float64(mean), Sigma: float64(stddev)}
	for i := range h {
		h[i] = float32(n.Prob(float64(i)))
	}
	return h
}
