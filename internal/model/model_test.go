package model

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sora-lab/inga-quant/internal/dataset"
	"github.com/sora-lab/inga-quant/pkg/logger"
)

func day(offset int) time.Time {
	return time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC).AddDate(0, 0, offset)
}

// linearFrame builds a frame whose target is 2*f1 - 1*f2 plus small noise
func linearFrame(t *testing.T, n int, seed int64) *dataset.Frame {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	f := dataset.New()
	for i := 0; i < n; i++ {
		f1 := rng.NormFloat64()
		f2 := rng.NormFloat64()
		target := 2*f1 - f2 + 0.01*rng.NormFloat64()
		require.NoError(t, f.Append(dataset.Row{
			AsOf:     day(i / 10),
			Ticker:   string(rune('A' + i%10)),
			Features: map[string]float64{"f1": f1, "f2": f2},
			Target:   dataset.Float64Ptr(target),
		}))
	}
	return f
}

func TestTrain_PanicsOnWrongTarget(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Target = "forward_return_1d"

	assert.Panics(t, func() {
		_, _ = Train(dataset.New(), []string{"f1"}, cfg, logger.Nop())
	})
}

func TestTrain_InsufficientData(t *testing.T) {
	f := dataset.New()
	require.NoError(t, f.Append(dataset.Row{
		AsOf: day(0), Ticker: "7203",
		Features: map[string]float64{"f1": 0.1},
	}))

	_, err := Train(f, []string{"f1"}, DefaultConfig(), logger.Nop())
	require.ErrorIs(t, err, ErrInsufficientData)
}

func TestTrain_RecoversLinearSignal(t *testing.T) {
	f := linearFrame(t, 400, 7)

	res, err := Train(f, []string{"f1", "f2"}, DefaultConfig(), logger.Nop())
	require.NoError(t, err)

	assert.Equal(t, []string{"f1", "f2"}, res.FeatureNames)
	assert.Equal(t, 400, res.TrainRows)
	// Standardised coefficients keep the sign and relative magnitude
	assert.Greater(t, res.Coef["f1"], 0.0)
	assert.Less(t, res.Coef["f2"], 0.0)
	assert.Greater(t, math.Abs(res.Coef["f1"]), math.Abs(res.Coef["f2"]))
	assert.Greater(t, res.TrainIC, 0.9)
}

func TestTrain_ElasticNet(t *testing.T) {
	f := linearFrame(t, 400, 11)
	cfg := DefaultConfig()
	cfg.ModelType = TypeElasticNet
	cfg.Alpha = 0.01

	res, err := Train(f, []string{"f1", "f2"}, cfg, logger.Nop())
	require.NoError(t, err)
	assert.Greater(t, res.Coef["f1"], 0.0)
	assert.Less(t, res.Coef["f2"], 0.0)
	assert.Greater(t, res.TrainIC, 0.9)
}

func TestTrain_DropsMissingColumnsWithWarning(t *testing.T) {
	f := linearFrame(t, 100, 3)

	res, err := Train(f, []string{"f1", "nonexistent", "f2"}, DefaultConfig(), logger.Nop())
	require.NoError(t, err)
	assert.Equal(t, []string{"f1", "f2"}, res.FeatureNames)
	assert.NotContains(t, res.Coef, "nonexistent")
}

func TestTrain_MeanImputation(t *testing.T) {
	f := dataset.New()
	// f2 missing on every other row; imputation must not shift its mean
	for i := 0; i < 40; i++ {
		feats := map[string]float64{"f1": float64(i % 7)}
		if i%2 == 0 {
			feats["f2"] = float64(i % 5)
		}
		require.NoError(t, f.Append(dataset.Row{
			AsOf: day(i), Ticker: "7203",
			Features: feats,
			Target:   dataset.Float64Ptr(float64(i%7) * 0.01),
		}))
	}

	res, err := Train(f, []string{"f1", "f2"}, DefaultConfig(), logger.Nop())
	require.NoError(t, err)
	assert.InDelta(t, 2.0, res.FeatureMeans["f2"], 1e-9) // mean of 0,2,4,1,3 pattern
}

func TestPredict_AlignedToInput(t *testing.T) {
	f := linearFrame(t, 300, 5)
	res, err := Train(f, []string{"f1", "f2"}, DefaultConfig(), logger.Nop())
	require.NoError(t, err)

	rows := []dataset.Row{
		{Ticker: "X", Features: map[string]float64{"f1": 3.0, "f2": 0.0}},
		{Ticker: "Y", Features: map[string]float64{"f1": -3.0, "f2": 0.0}},
	}
	preds := Predict(res, rows)
	require.Len(t, preds, 2)
	assert.Greater(t, preds[0], preds[1])
}

func TestPredict_MissingValueUsesTrainingMean(t *testing.T) {
	f := linearFrame(t, 300, 9)
	res, err := Train(f, []string{"f1", "f2"}, DefaultConfig(), logger.Nop())
	require.NoError(t, err)

	withMean := []dataset.Row{{Ticker: "A", Features: map[string]float64{
		"f1": 1.0, "f2": res.FeatureMeans["f2"],
	}}}
	missing := []dataset.Row{
		{Ticker: "A", Features: map[string]float64{"f1": 1.0}},
		{Ticker: "B", Features: map[string]float64{"f1": 1.0, "f2": 5.0}},
	}

	want := Predict(res, withMean)[0]
	got := Predict(res, missing)[0]
	assert.InDelta(t, want, got, 1e-9)
}

func TestPredict_AbsentColumnFilledWithZero(t *testing.T) {
	f := linearFrame(t, 300, 13)
	res, err := Train(f, []string{"f1", "f2"}, DefaultConfig(), logger.Nop())
	require.NoError(t, err)

	// No row in the prediction slice carries f2 at all
	rows := []dataset.Row{
		{Ticker: "A", Features: map[string]float64{"f1": 1.0}},
		{Ticker: "B", Features: map[string]float64{"f1": 2.0}},
	}
	explicit := []dataset.Row{
		{Ticker: "A", Features: map[string]float64{"f1": 1.0, "f2": 0.0}},
		{Ticker: "B", Features: map[string]float64{"f1": 2.0, "f2": 0.0}},
	}

	got := Predict(res, rows)
	want := Predict(res, explicit)
	assert.InDelta(t, want[0], got[0], 1e-9)
	assert.InDelta(t, want[1], got[1], 1e-9)
}

func TestPredict_EmptyRows(t *testing.T) {
	f := linearFrame(t, 100, 1)
	res, err := Train(f, []string{"f1", "f2"}, DefaultConfig(), logger.Nop())
	require.NoError(t, err)

	assert.Nil(t, Predict(res, nil))
}

func TestSpearmanIC_EdgeCases(t *testing.T) {
	tests := []struct {
		name   string
		pred   []float64
		actual []float64
		want   float64
	}{
		{"fewer than 3 rows", []float64{1, 2}, []float64{1, 2}, 0.0},
		{"constant predictions", []float64{5, 5, 5, 5}, []float64{1, 2, 3, 4}, 0.0},
		{"constant actuals", []float64{1, 2, 3, 4}, []float64{7, 7, 7, 7}, 0.0},
		{"perfect monotone", []float64{0.1, 0.2, 0.3, 0.4}, []float64{1, 2, 3, 4}, 1.0},
		{"perfect inverse", []float64{0.4, 0.3, 0.2, 0.1}, []float64{1, 2, 3, 4}, -1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SpearmanIC(tt.pred, tt.actual)
			assert.InDelta(t, tt.want, got, 1e-9)
			assert.False(t, math.IsNaN(got))
		})
	}
}

func TestSpearmanIC_TiesAverageRanks(t *testing.T) {
	// Monotone apart from a tie pair; still strongly positive
	got := SpearmanIC([]float64{1, 2, 2, 4, 5}, []float64{10, 20, 30, 40, 50})
	assert.Greater(t, got, 0.9)
}

func TestQuantile_LinearInterpolation(t *testing.T) {
	xs := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	assert.InDelta(t, 9.1, Quantile(xs, 0.9), 1e-9)
	assert.InDelta(t, 5.5, Quantile(xs, 0.5), 1e-9)
	assert.InDelta(t, 1.0, Quantile(xs, 0.0), 1e-9)
	assert.InDelta(t, 10.0, Quantile(xs, 1.0), 1e-9)
}

func TestScaler_TrainOnlyStatistics(t *testing.T) {
	X := [][]float64{{1, 10}, {2, 10}, {3, 10}}
	s := FitScaler(X)

	assert.InDelta(t, 2.0, s.Mean[0], 1e-9)
	// Zero-variance column transforms to 0, not NaN
	out := s.Transform([][]float64{{2, 10}, {5, 10}})
	assert.InDelta(t, 0.0, out[0][0], 1e-9)
	assert.InDelta(t, 0.0, out[0][1], 1e-9)
	assert.False(t, math.IsNaN(out[1][1]))
}

func TestSolveRidge_ShrinksTowardZero(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	X := make([][]float64, 200)
	y := make([]float64, 200)
	for i := range X {
		v := rng.NormFloat64()
		X[i] = []float64{v}
		y[i] = 3 * v
	}

	loose, err := solveRidge(X, y, 0.001)
	require.NoError(t, err)
	tight, err := solveRidge(X, y, 1000.0)
	require.NoError(t, err)

	assert.InDelta(t, 3.0, loose[0], 0.05)
	assert.Less(t, math.Abs(tight[0]), math.Abs(loose[0]))
}

func TestSolveElasticNet_SparsifiesWeakFeatures(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	X := make([][]float64, 300)
	y := make([]float64, 300)
	for i := range X {
		strong := rng.NormFloat64()
		noise := rng.NormFloat64()
		X[i] = []float64{strong, noise}
		y[i] = 2 * strong
	}

	beta, err := solveElasticNet(X, y, 0.5, 1.0) // pure lasso
	require.NoError(t, err)
	assert.Greater(t, beta[0], 0.5)
	assert.InDelta(t, 0.0, beta[1], 0.05)
}
