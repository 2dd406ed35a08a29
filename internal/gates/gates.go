package gates

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/sora-lab/inga-quant/internal/dataset"
	"github.com/sora-lab/inga-quant/internal/model"
	"github.com/sora-lab/inga-quant/pkg/logger"
)

// Result is one named statistical test's outcome. Immutable once produced.
type Result struct {
	Name    string
	Passed  bool
	Details map[string]any
	Reason  string // empty when passed
}

// AllResult aggregates every gate plus the pre-flight checks for one run.
// Gates preserves evaluation order.
type AllResult struct {
	AllPassed        bool
	Gates            []Result
	RejectionReasons []string
	MissingRate      float64
	NEligible        int
}

// Gate looks up a gate result by name
func (a *AllResult) Gate(name string) (Result, bool) {
	for _, g := range a.Gates {
		if g.Name == name {
			return g, true
		}
	}
	return Result{}, false
}

// Config holds every gate threshold. Thresholds are strict inequalities:
// a statistic exactly at its threshold fails.
type Config struct {
	WFICThreshold        float64
	WFSplits             int
	TickerCVThreshold    float64
	TickerCVTestFrac     float64
	CostBps              []int
	StabilityThreshold   float64
	StabilityWindows     int
	StabilityMinDates    int
	MissingRateThreshold float64
	MinEligible          int
	ConfidenceThreshold  float64
}

// DefaultConfig returns the production thresholds
func DefaultConfig() Config {
	return Config{
		WFICThreshold:        0.01,
		WFSplits:             3,
		TickerCVThreshold:    0.00,
		TickerCVTestFrac:     0.2,
		CostBps:              []int{5, 15},
		StabilityThreshold:   0.70,
		StabilityWindows:     3,
		StabilityMinDates:    10,
		MissingRateThreshold: 0.20,
		MinEligible:          5,
		ConfidenceThreshold:  0.005,
	}
}

const tickerCVSeed = 42

// WalkForward trains on an expanding chronological window and validates on
// the next block. Distinct target-row dates are split into nSplits+1 equal
// blocks; fold k trains on blocks[0..k] and tests on block k+1. The gate
// passes if the median fold Spearman IC exceeds the threshold. A fold whose
// training errors contributes IC 0.0 rather than aborting.
func WalkForward(frame *dataset.Frame, featureNames []string, modelCfg model.Config, threshold float64, nSplits int, log *logger.Logger) Result {
	rows := frame.WithTarget()
	dates := dataset.DistinctDates(rows)
	if len(dates) < nSplits*2 {
		return Result{
			Name:    "walk_forward",
			Passed:  false,
			Details: map[string]any{"ic": nil, "threshold": threshold, "n_splits_available": len(dates)},
			Reason:  "insufficient data for walk-forward splits",
		}
	}

	foldSize := len(dates) / (nSplits + 1)
	var ics []float64

	for k := 0; k < nSplits; k++ {
		trainEnd := (k + 1) * foldSize
		testEnd := (k + 2) * foldSize
		if testEnd > len(dates) {
			testEnd = len(dates)
		}
		trainDates := dates[:trainEnd]
		testDates := dates[trainEnd:testEnd]
		if len(testDates) == 0 {
			continue
		}

		trainRows := dataset.FilterDates(rows, trainDates)
		testRows := dataset.FilterDates(rows, testDates)

		ic, err := trainAndScore(trainRows, testRows, featureNames, modelCfg, log)
		if err != nil {
			log.Warnf("WF fold %d failed: %v", k, err)
			ics = append(ics, 0.0)
			continue
		}
		ics = append(ics, ic)
	}

	medianIC := 0.0
	if len(ics) > 0 {
		medianIC = model.Median(ics)
	}
	passed := medianIC > threshold
	return Result{
		Name:   "walk_forward",
		Passed: passed,
		Details: map[string]any{
			"ic":        round6(medianIC),
			"threshold": threshold,
			"fold_ics":  round6Slice(ics),
		},
		Reason: failReason(passed, fmt.Sprintf("WF IC %.4f <= threshold %g", medianIC, threshold)),
	}
}

// TickerSplitCV holds out a deterministically seeded sample of tickers
// entirely and scores the model on their rows. Passing requires held-out IC
// above the threshold; fewer than 5 distinct tickers fails immediately.
func TickerSplitCV(frame *dataset.Frame, featureNames []string, modelCfg model.Config, threshold, testFrac float64, log *logger.Logger) Result {
	rows := frame.WithTarget()
	tickers := dataset.DistinctTickers(rows)
	if len(tickers) < 5 {
		return Result{
			Name:    "ticker_split_cv",
			Passed:  false,
			Details: map[string]any{"ic": nil, "threshold": threshold},
			Reason:  fmt.Sprintf("too few tickers (%d) for ticker-split CV", len(tickers)),
		}
	}

	sort.Strings(tickers)
	rng := rand.New(rand.NewSource(tickerCVSeed))
	nTest := int(float64(len(tickers)) * testFrac)
	if nTest < 1 {
		nTest = 1
	}
	perm := rng.Perm(len(tickers))
	testSet := make(map[string]struct{}, nTest)
	for _, idx := range perm[:nTest] {
		testSet[tickers[idx]] = struct{}{}
	}
	trainSet := make(map[string]struct{}, len(tickers)-nTest)
	for _, t := range tickers {
		if _, held := testSet[t]; !held {
			trainSet[t] = struct{}{}
		}
	}

	trainRows := dataset.FilterTickers(rows, trainSet)
	testRows := dataset.FilterTickers(rows, testSet)

	ic, err := trainAndScore(trainRows, testRows, featureNames, modelCfg, log)
	if err != nil {
		return Result{
			Name:    "ticker_split_cv",
			Passed:  false,
			Details: map[string]any{"ic": nil},
			Reason:  fmt.Sprintf("ticker CV failed: %v", err),
		}
	}

	passed := ic > threshold
	return Result{
		Name:   "ticker_split_cv",
		Passed: passed,
		Details: map[string]any{
			"ic":             round6(ic),
			"threshold":      threshold,
			"n_test_tickers": nTest,
		},
		Reason: failReason(passed, fmt.Sprintf("ticker CV IC %.4f <= threshold %g", ic, threshold)),
	}
}

// CostTest simulates a long-top-decile strategy net of trading costs, one
// sub-gate per cost level. The model is trained once on the full target set;
// per date with at least 5 rows the mean realised return of the top-decile
// predictions, minus the cost, is summed. Each sub-gate passes when the
// cumulative net return is strictly positive.
func CostTest(frame *dataset.Frame, featureNames []string, modelCfg model.Config, costBps []int, log *logger.Logger) []Result {
	rows := frame.WithTarget()

	res, err := trainOnRows(rows, featureNames, modelCfg, log)
	if err != nil {
		reason := fmt.Sprintf("model train failed for cost test: %v", err)
		out := make([]Result, 0, len(costBps))
		for _, bps := range costBps {
			name := fmt.Sprintf("cost_%dbps", bps)
			out = append(out, Result{Name: name, Passed: false, Details: map[string]any{}, Reason: reason})
		}
		return out
	}
	preds := model.Predict(res, rows)

	groups := groupPredsByDate(rows, preds)

	out := make([]Result, 0, len(costBps))
	for _, bps := range costBps {
		cost := float64(bps) / 10000.0
		var dailyReturns []float64

		for _, g := range groups {
			if len(g.preds) < 5 {
				continue
			}
			q90 := model.Quantile(g.preds, 0.90)
			var topTargets []float64
			for i, p := range g.preds {
				if p >= q90 {
					topTargets = append(topTargets, g.targets[i])
				}
			}
			if len(topTargets) == 0 {
				continue
			}
			dailyReturns = append(dailyReturns, model.Mean(topTargets)-cost)
		}

		var cumRet float64
		for _, r := range dailyReturns {
			cumRet += r
		}
		passed := cumRet > 0
		name := fmt.Sprintf("cost_%dbps", bps)
		out = append(out, Result{
			Name:   name,
			Passed: passed,
			Details: map[string]any{
				"net_return": round6(cumRet),
				"cost_bps":   bps,
				"n_days":     len(dailyReturns),
			},
			Reason: failReason(passed, fmt.Sprintf("net return %.4f <= 0 at %dbps cost", cumRet, bps)),
		})
	}
	return out
}

// ParamStability trains one model per contiguous date window and compares
// coefficient vectors by pairwise cosine similarity. Chunks below the
// minimum date count fail immediately; fewer than 2 trained windows fail;
// otherwise the mean pairwise similarity must exceed the threshold.
func ParamStability(frame *dataset.Frame, featureNames []string, modelCfg model.Config, threshold float64, nWindows, minDates int, log *logger.Logger) Result {
	rows := frame.WithTarget()
	dates := dataset.DistinctDates(rows)
	window := len(dates) / nWindows
	if window < minDates {
		return Result{
			Name:    "param_stability",
			Passed:  false,
			Details: map[string]any{"cosine_sim": nil, "threshold": threshold},
			Reason:  "insufficient data for parameter stability test",
		}
	}

	var coefVectors [][]float64
	for i := 0; i < nWindows; i++ {
		windowDates := dates[i*window : (i+1)*window]
		subRows := dataset.FilterDates(rows, windowDates)

		res, err := trainOnRows(subRows, featureNames, modelCfg, log)
		if err != nil {
			log.Warnf("Stability window %d failed: %v", i, err)
			continue
		}
		vec := make([]float64, len(featureNames))
		for j, name := range featureNames {
			vec[j] = res.Coef[name] // absent feature defaults to 0
		}
		coefVectors = append(coefVectors, vec)
	}

	if len(coefVectors) < 2 {
		return Result{
			Name:    "param_stability",
			Passed:  false,
			Details: map[string]any{"cosine_sim": nil},
			Reason:  "not enough windows trained successfully",
		}
	}

	var sims []float64
	for i := 0; i < len(coefVectors); i++ {
		for j := i + 1; j < len(coefVectors); j++ {
			sims = append(sims, cosineSimilarity(coefVectors[i], coefVectors[j]))
		}
	}

	meanSim := model.Mean(sims)
	passed := meanSim > threshold
	return Result{
		Name:   "param_stability",
		Passed: passed,
		Details: map[string]any{
			"cosine_sim": round6(meanSim),
			"threshold":  threshold,
			"n_windows":  len(coefVectors),
		},
		Reason: failReason(passed, fmt.Sprintf("param stability %.4f <= threshold %g", meanSim, threshold)),
	}
}

// LeakDetection flags rows dated after the decision date and features whose
// absolute Pearson correlation with the target exceeds 0.99. The reason is
// the semicolon-joined issue list.
func LeakDetection(frame *dataset.Frame, featureNames []string, asOf time.Time) Result {
	cutoff := dataset.Day(asOf)
	var issues []string

	futureRows := 0
	for _, r := range frame.Rows() {
		if r.AsOf.After(cutoff) {
			futureRows++
		}
	}
	if futureRows > 0 {
		issues = append(issues, fmt.Sprintf("%d rows have as_of > cutoff (%s)", futureRows, cutoff.Format("2006-01-02")))
	}

	targetRows := frame.WithTarget()
	for _, feat := range featureNames {
		if !frame.HasColumn(feat) {
			continue
		}
		x := make([]float64, len(targetRows))
		y := make([]float64, len(targetRows))
		for i, r := range targetRows {
			if v, ok := r.Value(feat); ok {
				x[i] = v
			}
			y[i] = *r.Target
		}
		corr, ok := model.PearsonCorr(x, y)
		if ok && math.Abs(corr) > 0.99 {
			issues = append(issues, fmt.Sprintf("feature '%s' has suspicious corr=%.4f with target", feat, corr))
		}
	}

	passed := len(issues) == 0
	reason := ""
	if !passed {
		reason = joinIssues(issues)
	}
	return Result{
		Name:    "leak_detection",
		Passed:  passed,
		Details: map[string]any{"issues": issues},
		Reason:  reason,
	}
}

// RunAll evaluates the pre-flight checks, every gate in fixed order, and the
// confidence check on the walk-forward IC. The overall verdict passes only
// when no rejection reason was produced; reasons are deduplicated preserving
// first-seen order.
func RunAll(frame *dataset.Frame, featureNames []string, asOf time.Time, modelCfg model.Config, cfg Config, log *logger.Logger) *AllResult {
	var gateResults []Result
	var reasons []string

	dayRows := frame.SliceDate(asOf)
	nEligible := len(dayRows)
	missingRate := 1.0
	if nEligible > 0 {
		nMissing := 0
		for _, r := range dayRows {
			for _, feat := range featureNames {
				if _, ok := r.Value(feat); !ok {
					nMissing++
					break
				}
			}
		}
		missingRate = float64(nMissing) / float64(nEligible)
	}

	if nEligible < cfg.MinEligible {
		reasons = append(reasons, fmt.Sprintf("n_eligible=%d < %d", nEligible, cfg.MinEligible))
	}
	if missingRate > cfg.MissingRateThreshold {
		reasons = append(reasons, fmt.Sprintf("missing_rate=%.2f%% > %.0f%%", missingRate*100, cfg.MissingRateThreshold*100))
	}

	wf := WalkForward(frame, featureNames, modelCfg, cfg.WFICThreshold, cfg.WFSplits, log)
	gateResults = append(gateResults, wf)
	if !wf.Passed {
		reasons = append(reasons, "gate:walk_forward — "+wf.Reason)
	}

	cv := TickerSplitCV(frame, featureNames, modelCfg, cfg.TickerCVThreshold, cfg.TickerCVTestFrac, log)
	gateResults = append(gateResults, cv)
	if !cv.Passed {
		reasons = append(reasons, "gate:ticker_split_cv — "+cv.Reason)
	}

	for _, cr := range CostTest(frame, featureNames, modelCfg, cfg.CostBps, log) {
		gateResults = append(gateResults, cr)
		if !cr.Passed {
			reasons = append(reasons, "gate:"+cr.Name+" — "+cr.Reason)
		}
	}

	stab := ParamStability(frame, featureNames, modelCfg, cfg.StabilityThreshold, cfg.StabilityWindows, cfg.StabilityMinDates, log)
	gateResults = append(gateResults, stab)
	if !stab.Passed {
		reasons = append(reasons, "gate:param_stability — "+stab.Reason)
	}

	leak := LeakDetection(frame, featureNames, asOf)
	gateResults = append(gateResults, leak)
	if !leak.Passed {
		reasons = append(reasons, "gate:leak_detection — "+leak.Reason)
	}

	// Confidence check: a stricter secondary bar on the walk-forward IC,
	// evaluated even when the gate itself passed. A nil IC counts as 0.
	wfIC := 0.0
	if v, ok := wf.Details["ic"].(float64); ok {
		wfIC = v
	}
	if wfIC < cfg.ConfidenceThreshold {
		reasons = append(reasons, fmt.Sprintf("confidence=%.4f < threshold %g", wfIC, cfg.ConfidenceThreshold))
	}

	deduped := dedupe(reasons)
	return &AllResult{
		AllPassed:        len(deduped) == 0,
		Gates:            gateResults,
		RejectionReasons: deduped,
		MissingRate:      missingRate,
		NEligible:        nEligible,
	}
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// subframe rebuilds a frame from a row subset so the model trainer can see
// column presence for exactly those rows.
func subframe(rows []dataset.Row) (*dataset.Frame, error) {
	f := dataset.New()
	for _, r := range rows {
		if err := f.Append(r); err != nil {
			return nil, err
		}
	}
	return f, nil
}

func trainOnRows(rows []dataset.Row, featureNames []string, modelCfg model.Config, log *logger.Logger) (*model.TrainResult, error) {
	sub, err := subframe(rows)
	if err != nil {
		return nil, err
	}
	return model.Train(sub, featureNames, modelCfg, log)
}

func trainAndScore(trainRows, testRows []dataset.Row, featureNames []string, modelCfg model.Config, log *logger.Logger) (float64, error) {
	res, err := trainOnRows(trainRows, featureNames, modelCfg, log)
	if err != nil {
		return 0, err
	}
	preds := model.Predict(res, testRows)
	actuals := make([]float64, len(testRows))
	for i, r := range testRows {
		actuals[i] = *r.Target
	}
	return model.SpearmanIC(preds, actuals), nil
}

type dateGroup struct {
	preds   []float64
	targets []float64
}

func groupPredsByDate(rows []dataset.Row, preds []float64) []dateGroup {
	byDate := make(map[time.Time]*dateGroup)
	var order []time.Time
	for i, r := range rows {
		g, ok := byDate[r.AsOf]
		if !ok {
			g = &dateGroup{}
			byDate[r.AsOf] = g
			order = append(order, r.AsOf)
		}
		g.preds = append(g.preds, preds[i])
		g.targets = append(g.targets, *r.Target)
	}
	sort.Slice(order, func(i, j int) bool { return order[i].Before(order[j]) })

	out := make([]dateGroup, 0, len(order))
	for _, d := range order {
		out = append(out, *byDate[d])
	}
	return out
}

func cosineSimilarity(a, b []float64) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0.0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func dedupe(reasons []string) []string {
	seen := make(map[string]struct{}, len(reasons))
	out := make([]string, 0, len(reasons))
	for _, r := range reasons {
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out
}

func failReason(passed bool, reason string) string {
	if passed {
		return ""
	}
	return reason
}

func joinIssues(issues []string) string {
	out := ""
	for i, iss := range issues {
		if i > 0 {
			out += "; "
		}
		out += iss
	}
	return out
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

func round6Slice(xs []float64) []float64 {
	out := make([]float64, len(xs))
	for i, x := range xs {
		out[i] = round6(x)
	}
	return out
}
