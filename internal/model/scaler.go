package model

import "math"

// Scaler standardises features to zero mean / unit variance using statistics
// computed strictly from the training fold. The fitted scaler is reused
// unmodified at prediction time — refitting on prediction data would leak
// future information through the standardisation step.
type Scaler struct {
	Mean []float64
	Std  []float64
}

// FitScaler computes per-column mean and population standard deviation
// over the training matrix.
func FitScaler(X [][]float64) *Scaler {
	if len(X) == 0 {
		return &Scaler{}
	}

	p := len(X[0])
	n := float64(len(X))
	mean := make([]float64, p)
	std := make([]float64, p)

	for j := 0; j < p; j++ {
		var sum float64
		for i := range X {
			sum += X[i][j]
		}
		mean[j] = sum / n
	}

	for j := 0; j < p; j++ {
		var ss float64
		for i := range X {
			d := X[i][j] - mean[j]
			ss += d * d
		}
		std[j] = math.Sqrt(ss / n)
	}

	return &Scaler{Mean: mean, Std: std}
}

// Transform returns a standardised copy of X. Zero-variance columns divide
// by 1 so a constant feature maps to 0 rather than NaN.
func (s *Scaler) Transform(X [][]float64) [][]float64 {
	out := make([][]float64, len(X))
	for i := range X {
		row := make([]float64, len(X[i]))
		for j := range X[i] {
			sd := 1.0
			if j < len(s.Std) && s.Std[j] > 0 && !math.IsNaN(s.Std[j]) {
				sd = s.Std[j]
			}
			mu := 0.0
			if j < len(s.Mean) {
				mu = s.Mean[j]
			}
			row[j] = (X[i][j] - mu) / sd
		}
		out[i] = row
	}
	return out
}
