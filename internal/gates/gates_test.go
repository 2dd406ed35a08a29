package gates

import (
	"fmt"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sora-lab/inga-quant/internal/dataset"
	"github.com/sora-lab/inga-quant/internal/model"
	"github.com/sora-lab/inga-quant/pkg/logger"
)

var (
	testFeatures = []string{"ret_1d", "ret_20d", "liq_score"}
	testModelCfg = model.Config{ModelType: model.TypeRidge, Alpha: 0.1, L1Ratio: 0.5, Target: model.TargetColumn}
)

// cleanStart is the first date of the synthetic datasets
var cleanStart = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

// makeCleanFrame builds a synthetic dataset where a linear signal actually
// predicts forward returns: target = 0.3*ret_1d + small noise. The last 5
// days per ticker carry no target (forward return unobservable).
func makeCleanFrame(t *testing.T, nTickers, nDays int, seed int64) *dataset.Frame {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	f := dataset.New()

	for ti := 0; ti < nTickers; ti++ {
		ticker := fmt.Sprintf("T%02d", ti)
		for d := 0; d < nDays+5; d++ {
			ret1d := rng.NormFloat64() * 0.01
			row := dataset.Row{
				AsOf:   cleanStart.AddDate(0, 0, d),
				Ticker: ticker,
				Features: map[string]float64{
					"ret_1d":    ret1d,
					"ret_20d":   rng.NormFloat64() * 0.05,
					"liq_score": rng.Float64(),
				},
			}
			if d < nDays {
				row.Target = dataset.Float64Ptr(0.3*ret1d + rng.NormFloat64()*0.01)
			}
			require.NoError(t, f.Append(row))
		}
	}
	return f
}

// makeNoiseFrame replaces the target with pure noise, unrelated to any feature
func makeNoiseFrame(t *testing.T, seed int64) *dataset.Frame {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	f := dataset.New()

	for ti := 0; ti < 10; ti++ {
		ticker := fmt.Sprintf("T%02d", ti)
		for d := 0; d < 125; d++ {
			row := dataset.Row{
				AsOf:   cleanStart.AddDate(0, 0, d),
				Ticker: ticker,
				Features: map[string]float64{
					"ret_1d":    rng.NormFloat64() * 0.01,
					"ret_20d":   rng.NormFloat64() * 0.05,
					"liq_score": rng.Float64(),
				},
				Target: dataset.Float64Ptr(rng.NormFloat64()),
			}
			require.NoError(t, f.Append(row))
		}
	}
	return f
}

// cleanAsOf is the last date of a makeCleanFrame(nDays=120) dataset
var cleanAsOf = cleanStart.AddDate(0, 0, 124)

func TestWalkForward_PassesOnCleanData(t *testing.T) {
	f := makeCleanFrame(t, 10, 120, 0)

	result := WalkForward(f, testFeatures, testModelCfg, 0.0, 3, logger.Nop())
	assert.True(t, result.Passed)
	assert.NotNil(t, result.Details["ic"])
	assert.Empty(t, result.Reason)
}

func TestWalkForward_FailsOnImpossibleThreshold(t *testing.T) {
	f := makeNoiseFrame(t, 1)

	result := WalkForward(f, testFeatures, testModelCfg, 10.0, 3, logger.Nop())
	assert.False(t, result.Passed)
	assert.NotEmpty(t, result.Reason)
}

func TestWalkForward_FailsWithInsufficientData(t *testing.T) {
	// 4 target dates < 2 * n_splits
	f := makeCleanFrame(t, 10, 4, 0)

	result := WalkForward(f, testFeatures, testModelCfg, 0.01, 3, logger.Nop())
	assert.False(t, result.Passed)
	assert.Nil(t, result.Details["ic"])
	assert.Equal(t, "insufficient data for walk-forward splits", result.Reason)
}

func TestWalkForward_PositiveICOnMonotonicData(t *testing.T) {
	// Each ticker's constant signal perfectly ranks its forward return
	rng := rand.New(rand.NewSource(0))
	f := dataset.New()
	for ti := 0; ti < 10; ti++ {
		signal := float64(ti+1) / 10.0
		ticker := fmt.Sprintf("T%02d", ti)
		for d := 0; d < 125; d++ {
			row := dataset.Row{
				AsOf:   cleanStart.AddDate(0, 0, d),
				Ticker: ticker,
				Features: map[string]float64{
					"ret_1d": signal, "ret_20d": signal, "liq_score": signal,
				},
			}
			if d < 120 {
				row.Target = dataset.Float64Ptr(signal + rng.NormFloat64()*1e-4)
			}
			require.NoError(t, f.Append(row))
		}
	}

	result := WalkForward(f, testFeatures, testModelCfg, 0.0, 3, logger.Nop())
	require.NotNil(t, result.Details["ic"])
	assert.Greater(t, result.Details["ic"].(float64), 0.0)
}

func TestWalkForward_ThresholdMonotonicity(t *testing.T) {
	f := makeCleanFrame(t, 10, 120, 0)

	loose := WalkForward(f, testFeatures, testModelCfg, 0.0, 3, logger.Nop())
	strict := WalkForward(f, testFeatures, testModelCfg, 999.0, 3, logger.Nop())

	// Raising the threshold can only turn pass into fail, never the reverse
	require.True(t, loose.Passed)
	assert.False(t, strict.Passed)
}

func TestTickerSplitCV_PassesOnCleanData(t *testing.T) {
	f := makeCleanFrame(t, 15, 120, 0)

	result := TickerSplitCV(f, testFeatures, testModelCfg, -999.0, 0.2, logger.Nop())
	assert.True(t, result.Passed)
	assert.NotNil(t, result.Details["ic"])
	assert.Equal(t, 3, result.Details["n_test_tickers"])
}

func TestTickerSplitCV_FailsWithTooFewTickers(t *testing.T) {
	f := makeCleanFrame(t, 2, 120, 0)

	result := TickerSplitCV(f, testFeatures, testModelCfg, 0.0, 0.2, logger.Nop())
	assert.False(t, result.Passed)
	assert.Contains(t, result.Reason, "too few tickers")
	assert.Nil(t, result.Details["ic"])
}

func TestTickerSplitCV_Deterministic(t *testing.T) {
	f := makeCleanFrame(t, 15, 120, 0)

	a := TickerSplitCV(f, testFeatures, testModelCfg, 0.0, 0.2, logger.Nop())
	b := TickerSplitCV(f, testFeatures, testModelCfg, 0.0, 0.2, logger.Nop())
	assert.Equal(t, a, b)
}

func TestCostTest_ReturnsEveryCostLevel(t *testing.T) {
	f := makeCleanFrame(t, 10, 120, 0)

	results := CostTest(f, testFeatures, testModelCfg, []int{5, 15}, logger.Nop())
	require.Len(t, results, 2)
	assert.Equal(t, "cost_5bps", results[0].Name)
	assert.Equal(t, "cost_15bps", results[1].Name)
	for _, r := range results {
		assert.Contains(t, r.Details, "net_return")
		assert.Contains(t, r.Details, "n_days")
	}
}

func TestCostTest_TrainFailureFailsEverySubGate(t *testing.T) {
	// No targets at all: training raises, every sub-gate shares the reason
	f := dataset.New()
	for i := 0; i < 10; i++ {
		require.NoError(t, f.Append(dataset.Row{
			AsOf: cleanStart, Ticker: fmt.Sprintf("T%02d", i),
			Features: map[string]float64{"ret_1d": 0.01},
		}))
	}

	results := CostTest(f, testFeatures, testModelCfg, []int{5, 15}, logger.Nop())
	require.Len(t, results, 2)
	for _, r := range results {
		assert.False(t, r.Passed)
		assert.Contains(t, r.Reason, "model train failed for cost test")
	}
}

func TestParamStability_PassesOnTrivialThreshold(t *testing.T) {
	f := makeCleanFrame(t, 10, 180, 0)

	result := ParamStability(f, testFeatures, testModelCfg, -1.0, 3, 10, logger.Nop())
	assert.True(t, result.Passed)
	assert.Contains(t, result.Details, "cosine_sim")
}

func TestParamStability_FailsWithInsufficientData(t *testing.T) {
	f := makeCleanFrame(t, 10, 5, 0)

	result := ParamStability(f, testFeatures, testModelCfg, 0.70, 3, 10, logger.Nop())
	assert.False(t, result.Passed)
	assert.Nil(t, result.Details["cosine_sim"])
	assert.Equal(t, "insufficient data for parameter stability test", result.Reason)
}

func TestLeakDetection_PassesOnCleanData(t *testing.T) {
	f := makeCleanFrame(t, 10, 120, 0)

	result := LeakDetection(f, testFeatures, cleanAsOf)
	assert.True(t, result.Passed)
	assert.Empty(t, result.Details["issues"])
	assert.Empty(t, result.Reason)
}

func TestLeakDetection_DetectsFutureRows(t *testing.T) {
	f := makeCleanFrame(t, 10, 120, 0)
	require.NoError(t, f.Append(dataset.Row{
		AsOf: time.Date(2099, 1, 1, 0, 0, 0, 0, time.UTC), Ticker: "T00",
		Features: map[string]float64{"ret_1d": 0.01},
	}))

	result := LeakDetection(f, testFeatures, cleanAsOf)
	assert.False(t, result.Passed)
	issues := result.Details["issues"].([]string)
	require.NotEmpty(t, issues)
	assert.Contains(t, issues[0], "1 rows have as_of > cutoff")
}

func TestLeakDetection_DetectsNearPerfectCorrelation(t *testing.T) {
	rng := rand.New(rand.NewSource(0))
	f := dataset.New()
	for ti := 0; ti < 10; ti++ {
		ticker := fmt.Sprintf("T%02d", ti)
		for d := 0; d < 125; d++ {
			ret1d := rng.NormFloat64() * 0.01
			target := 0.3*ret1d + rng.NormFloat64()*0.01
			row := dataset.Row{
				AsOf:   cleanStart.AddDate(0, 0, d),
				Ticker: ticker,
				Features: map[string]float64{
					"ret_1d": ret1d,
					"leaky":  target + rng.NormFloat64()*1e-10,
				},
				Target: dataset.Float64Ptr(target),
			}
			require.NoError(t, f.Append(row))
		}
	}

	result := LeakDetection(f, []string{"ret_1d", "leaky"}, cleanAsOf)
	assert.False(t, result.Passed)
	issues := result.Details["issues"].([]string)
	require.NotEmpty(t, issues)
	found := false
	for _, iss := range issues {
		if strings.Contains(iss, "leaky") {
			found = true
		}
	}
	assert.True(t, found, "issues must name the leaky feature: %v", issues)
}

func TestRunAll_ContainsEveryGateInOrder(t *testing.T) {
	f := makeCleanFrame(t, 10, 120, 0)
	cfg := DefaultConfig()
	cfg.WFICThreshold = 0.0
	cfg.TickerCVThreshold = -999.0
	cfg.StabilityThreshold = 0.0
	cfg.ConfidenceThreshold = 0.0

	result := RunAll(f, testFeatures, cleanAsOf, testModelCfg, cfg, logger.Nop())

	names := make([]string, len(result.Gates))
	for i, g := range result.Gates {
		names[i] = g.Name
	}
	assert.Equal(t, []string{
		"walk_forward", "ticker_split_cv", "cost_5bps", "cost_15bps",
		"param_stability", "leak_detection",
	}, names)

	_, ok := result.Gate("walk_forward")
	assert.True(t, ok)
	_, ok = result.Gate("no_such_gate")
	assert.False(t, ok)
}

func TestRunAll_NoTradeWhenGateFails(t *testing.T) {
	f := makeCleanFrame(t, 10, 120, 0)
	cfg := DefaultConfig()
	cfg.WFICThreshold = 999.0

	result := RunAll(f, testFeatures, cleanAsOf, testModelCfg, cfg, logger.Nop())
	assert.False(t, result.AllPassed)
	require.NotEmpty(t, result.RejectionReasons)

	found := false
	for _, r := range result.RejectionReasons {
		if strings.Contains(r, "walk_forward") {
			found = true
		}
	}
	assert.True(t, found, "rejection reasons must mention walk_forward: %v", result.RejectionReasons)
}

func TestRunAll_PreflightEligibility(t *testing.T) {
	// Only 3 rows on the decision date
	f := makeCleanFrame(t, 3, 120, 0)
	cfg := DefaultConfig()

	result := RunAll(f, testFeatures, cleanAsOf, testModelCfg, cfg, logger.Nop())
	assert.False(t, result.AllPassed)
	assert.Equal(t, 3, result.NEligible)
	assert.Contains(t, result.RejectionReasons[0], "n_eligible=3 < 5")
}

func TestRunAll_MissingRateOnEmptyDay(t *testing.T) {
	f := makeCleanFrame(t, 10, 120, 0)
	emptyDay := cleanStart.AddDate(0, 0, 500)

	result := RunAll(f, testFeatures, emptyDay, testModelCfg, DefaultConfig(), logger.Nop())
	assert.Equal(t, 0, result.NEligible)
	assert.Equal(t, 1.0, result.MissingRate)
	assert.False(t, result.AllPassed)
}

func TestRunAll_Deterministic(t *testing.T) {
	cfg := DefaultConfig()

	a := RunAll(makeCleanFrame(t, 10, 120, 0), testFeatures, cleanAsOf, testModelCfg, cfg, logger.Nop())
	b := RunAll(makeCleanFrame(t, 10, 120, 0), testFeatures, cleanAsOf, testModelCfg, cfg, logger.Nop())
	assert.Equal(t, a, b)
}

func TestRunAll_RejectionReasonsDeduplicated(t *testing.T) {
	f := makeCleanFrame(t, 10, 120, 0)
	cfg := DefaultConfig()
	cfg.WFICThreshold = 999.0

	result := RunAll(f, testFeatures, cleanAsOf, testModelCfg, cfg, logger.Nop())
	seen := make(map[string]int)
	for _, r := range result.RejectionReasons {
		seen[r]++
	}
	for reason, n := range seen {
		assert.Equal(t, 1, n, "duplicated reason: %s", reason)
	}
}

func TestDedupe_PreservesFirstSeenOrder(t *testing.T) {
	out := dedupe([]string{"b", "a", "b", "c", "a"})
	assert.Equal(t, []string{"b", "a", "c"}, out)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, cosineSimilarity([]float64{1, 2}, []float64{2, 4}), 1e-9)
	assert.InDelta(t, -1.0, cosineSimilarity([]float64{1, 0}, []float64{-1, 0}), 1e-9)
	assert.InDelta(t, 0.0, cosineSimilarity([]float64{0, 0}, []float64{1, 2}), 1e-9)
}
