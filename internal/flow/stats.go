package flow

import "math"

// Stats is an online summary of a stream of samples, updated in O(1) with
// Welford's algorithm. The zero value is an empty summary, and every accessor
// of an empty summary returns 0.
type Stats struct {
	n    int64
	sum  float64
	min  float64
	max  float64
	mean float64
	m2   float64
}

// Add folds one sample into the summary.
func (s *Stats) Add(v float64) {
	s.n++
	s.sum += v
	if s.n == 1 {
		s.min, s.max = v, v
		s.mean = v
		s.m2 = 0
		return
	}
	if v < s.min {
		s.min = v
	}
	if v > s.max {
		s.max = v
	}
	delta := v - s.mean
	s.mean += delta / float64(s.n)
	s.m2 += delta * (v - s.mean)
}

// N returns the number of samples.
func (s *Stats) N() int64 { return s.n }

// Sum returns the sum of the samples.
func (s *Stats) Sum() float64 { return s.sum }

// Min returns the smallest sample.
func (s *Stats) Min() float64 {
	if s.n == 0 {
		return 0
	}
	return s.min
}

// Max returns the largest sample.
func (s *Stats) Max() float64 {
	if s.n == 0 {
		return 0
	}
	return s.max
}

// Mean returns the arithmetic mean.
func (s *Stats) Mean() float64 {
	if s.n == 0 {
		return 0
	}
	return s.mean
}

// Variance returns the sample variance (n-1 denominator).
func (s *Stats) Variance() float64 {
	if s.n < 2 {
		return 0
	}
	v := s.m2 / float64(s.n-1)
	if v < 0 {
		// rounding on near-constant streams
		return 0
	}
	return v
}

// Std returns the sample standard deviation.
func (s *Stats) Std() float64 {
	return math.Sqrt(s.Variance())
}
