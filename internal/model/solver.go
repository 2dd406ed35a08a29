package model

import (
	"fmt"
	"math"
)

const (
	coordDescentMaxIter = 1000
	coordDescentTol     = 1e-7
)

// solveRidge fits an L2-penalised least squares on standardised features by
// solving the normal equations (XᵀX + αI)β = Xᵀy with Gaussian elimination.
func solveRidge(X [][]float64, y []float64, alpha float64) ([]float64, error) {
	n := len(X)
	if n == 0 {
		return nil, fmt.Errorf("ridge: empty design matrix")
	}
	p := len(X[0])

	// A = XᵀX + αI, b = Xᵀy
	A := make([][]float64, p)
	b := make([]float64, p)
	for j := 0; j < p; j++ {
		A[j] = make([]float64, p)
		for k := 0; k < p; k++ {
			var s float64
			for i := 0; i < n; i++ {
				s += X[i][j] * X[i][k]
			}
			A[j][k] = s
		}
		A[j][j] += alpha
		var s float64
		for i := 0; i < n; i++ {
			s += X[i][j] * y[i]
		}
		b[j] = s
	}

	return solveLinearSystem(A, b)
}

// solveLinearSystem solves Ax = b by Gaussian elimination with partial
// pivoting. A and b are modified in place.
func solveLinearSystem(A [][]float64, b []float64) ([]float64, error) {
	p := len(A)

	for col := 0; col < p; col++ {
		// Pivot: largest absolute value in this column
		pivot := col
		for r := col + 1; r < p; r++ {
			if math.Abs(A[r][col]) > math.Abs(A[pivot][col]) {
				pivot = r
			}
		}
		if math.Abs(A[pivot][col]) < 1e-12 {
			return nil, fmt.Errorf("singular system at column %d", col)
		}
		A[col], A[pivot] = A[pivot], A[col]
		b[col], b[pivot] = b[pivot], b[col]

		for r := col + 1; r < p; r++ {
			factor := A[r][col] / A[col][col]
			for c := col; c < p; c++ {
				A[r][c] -= factor * A[col][c]
			}
			b[r] -= factor * b[col]
		}
	}

	// Back substitution
	x := make([]float64, p)
	for r := p - 1; r >= 0; r-- {
		s := b[r]
		for c := r + 1; c < p; c++ {
			s -= A[r][c] * x[c]
		}
		x[r] = s / A[r][r]
	}
	return x, nil
}

// solveElasticNet fits a combined L1/L2 penalty by cyclic coordinate descent:
//
//	(1/2n)·||y − Xβ||² + α·l1·||β||₁ + (α·(1−l1)/2)·||β||²
func solveElasticNet(X [][]float64, y []float64, alpha, l1Ratio float64) ([]float64, error) {
	n := len(X)
	if n == 0 {
		return nil, fmt.Errorf("elastic net: empty design matrix")
	}
	p := len(X[0])

	beta := make([]float64, p)
	resid := make([]float64, n)
	copy(resid, y)

	// Column squared norms, fixed across iterations
	colSq := make([]float64, p)
	for j := 0; j < p; j++ {
		for i := 0; i < n; i++ {
			colSq[j] += X[i][j] * X[i][j]
		}
	}

	l1Pen := alpha * l1Ratio
	l2Pen := alpha * (1 - l1Ratio)
	nf := float64(n)

	for iter := 0; iter < coordDescentMaxIter; iter++ {
		maxDelta := 0.0

		for j := 0; j < p; j++ {
			if colSq[j] == 0 {
				continue
			}

			// Partial residual correlation with column j
			var rho float64
			for i := 0; i < n; i++ {
				rho += X[i][j] * (resid[i] + X[i][j]*beta[j])
			}
			rho /= nf

			newBeta := softThreshold(rho, l1Pen) / (colSq[j]/nf + l2Pen)
			delta := newBeta - beta[j]
			if delta != 0 {
				for i := 0; i < n; i++ {
					resid[i] -= X[i][j] * delta
				}
				beta[j] = newBeta
			}
			if math.Abs(delta) > maxDelta {
				maxDelta = math.Abs(delta)
			}
		}

		if maxDelta < coordDescentTol {
			break
		}
	}

	return beta, nil
}

// softThreshold is the soft-thresholding operator for the L1 penalty
func softThreshold(z, gamma float64) float64 {
	switch {
	case z > gamma:
		return z - gamma
	case z < -gamma:
		return z + gamma
	default:
		return 0
	}
}
