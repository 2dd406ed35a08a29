package features

import (
	"math"
	"sort"
)

// Rolling helpers over NaN-bearing series. A window spans the last `window`
// positions; minPeriods counts non-NaN observations, and aggregates are
// computed over the non-NaN values only.

func rollingMean(xs []float64, window, minPeriods int) []float64 {
	out := nanSlice(len(xs))
	for i := range xs {
		lo := i - window + 1
		if lo < 0 {
			lo = 0
		}
		var sum float64
		n := 0
		for j := lo; j <= i; j++ {
			if !math.IsNaN(xs[j]) {
				sum += xs[j]
				n++
			}
		}
		if n >= minPeriods {
			out[i] = sum / float64(n)
		}
	}
	return out
}

// rollingStd is the sample standard deviation (ddof=1)
func rollingStd(xs []float64, window, minPeriods int) []float64 {
	out := nanSlice(len(xs))
	for i := range xs {
		lo := i - window + 1
		if lo < 0 {
			lo = 0
		}
		var sum float64
		n := 0
		for j := lo; j <= i; j++ {
			if !math.IsNaN(xs[j]) {
				sum += xs[j]
				n++
			}
		}
		if n < minPeriods || n < 2 {
			continue
		}
		mu := sum / float64(n)
		var ss float64
		for j := lo; j <= i; j++ {
			if !math.IsNaN(xs[j]) {
				d := xs[j] - mu
				ss += d * d
			}
		}
		out[i] = math.Sqrt(ss / float64(n-1))
	}
	return out
}

// rollingMaxShifted is max over the window ending at the previous position,
// excluding the current day.
func rollingMaxShifted(xs []float64, window, minPeriods int) []float64 {
	out := nanSlice(len(xs))
	for i := 1; i < len(xs); i++ {
		lo := i - window
		if lo < 0 {
			lo = 0
		}
		best := math.Inf(-1)
		n := 0
		for j := lo; j < i; j++ {
			if !math.IsNaN(xs[j]) {
				n++
				if xs[j] > best {
					best = xs[j]
				}
			}
		}
		if n >= minPeriods {
			out[i] = best
		}
	}
	return out
}

// pctChange is the k-period fractional change, NaN where either endpoint is
// missing.
func pctChange(xs []float64, k int) []float64 {
	out := nanSlice(len(xs))
	for i := k; i < len(xs); i++ {
		prev := xs[i-k]
		if math.IsNaN(prev) || math.IsNaN(xs[i]) || prev == 0 {
			continue
		}
		out[i] = (xs[i] - prev) / prev
	}
	return out
}

// Cross-sectional helpers, applied to one date's slice of values.

// csRank is the percentile rank in (0, 1]: average rank of each non-NaN
// value divided by the non-NaN count. NaN inputs stay NaN.
func csRank(xs []float64) []float64 {
	out := nanSlice(len(xs))
	var idx []int
	for i, x := range xs {
		if !math.IsNaN(x) {
			idx = append(idx, i)
		}
	}
	if len(idx) == 0 {
		return out
	}
	sort.SliceStable(idx, func(a, b int) bool { return xs[idx[a]] < xs[idx[b]] })

	n := float64(len(idx))
	i := 0
	for i < len(idx) {
		j := i
		for j+1 < len(idx) && xs[idx[j+1]] == xs[idx[i]] {
			j++
		}
		avgRank := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			out[idx[k]] = avgRank / n
		}
		i = j + 1
	}
	return out
}

// csZScore standardises within the cross-section; all zeros when the
// standard deviation is zero or undefined. NaN inputs stay NaN.
func csZScore(xs []float64) []float64 {
	mu, n := nanMeanCount(xs)
	if n < 1 {
		return zeroWhereFinite(xs)
	}
	var ss float64
	for _, x := range xs {
		if !math.IsNaN(x) {
			d := x - mu
			ss += d * d
		}
	}
	if n < 2 {
		return zeroWhereFinite(xs)
	}
	sigma := math.Sqrt(ss / float64(n-1))
	if sigma == 0 || math.IsNaN(sigma) {
		return zeroWhereFinite(xs)
	}

	out := nanSlice(len(xs))
	for i, x := range xs {
		if !math.IsNaN(x) {
			out[i] = (x - mu) / sigma
		}
	}
	return out
}

func nanMean(xs []float64) float64 {
	mu, n := nanMeanCount(xs)
	if n == 0 {
		return math.NaN()
	}
	return mu
}

func nanMeanCount(xs []float64) (float64, int) {
	var sum float64
	n := 0
	for _, x := range xs {
		if !math.IsNaN(x) {
			sum += x
			n++
		}
	}
	if n == 0 {
		return 0, 0
	}
	return sum / float64(n), n
}

func nanMedian(xs []float64) float64 {
	var vals []float64
	for _, x := range xs {
		if !math.IsNaN(x) {
			vals = append(vals, x)
		}
	}
	if len(vals) == 0 {
		return math.NaN()
	}
	sort.Float64s(vals)
	n := len(vals)
	if n%2 == 1 {
		return vals[n/2]
	}
	return (vals[n/2-1] + vals[n/2]) / 2
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// zeroWhereFinite maps every non-NaN position to 0, keeping NaN holes
func zeroWhereFinite(xs []float64) []float64 {
	out := nanSlice(len(xs))
	for i, x := range xs {
		if !math.IsNaN(x) {
			out[i] = 0
		}
	}
	return out
}
