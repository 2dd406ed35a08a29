// Package features builds the daily feature table from OHLCV bars and
// optional corporate events: per-ticker rolling indicators, cross-sectional
// ranks and z-scores, the market regime column, per-row quality flags, and
// the forward-return target.
package features

import (
	"math"
	"sort"
	"time"

	"github.com/sora-lab/inga-quant/internal/dataset"
	"github.com/sora-lab/inga-quant/internal/ingest"
)

// TargetPeriods is the forward-return horizon in trading days
const TargetPeriods = 5

// SignalFeatures is the default ordered feature set used for model training
// and watchlist scoring.
var SignalFeatures = []string{"ret_1d", "ret_20d", "liq_score"}

// columns computed per ticker before the cross-sectional pass
var tickerColumns = []string{
	"avg_traded_value_20d",
	"ret_1d", "ret_3d", "ret_5d", "ret_20d", "ret_60d", "absret_1d",
	"hh_20d",
	"volume_z_20d",
	"vol_20", "vol_60",
	"prev_close", "gap_1d", "range", "close_to_high_1d", "close_pos_in_range_1d",
	"trend_20d", "trend_60d",
	"up_streak_3",
	"earnings_react_1d", "earnings_drift_5d",
	"event_bullish_count_60d",
}

// columns added by the cross-sectional pass
var crossColumns = []string{
	"liq_score", "vol_z_20d", "vol_z_60d",
	"market_ret_20d", "market_ret_60d", "rs_20d", "rs_60d",
	"earnings_quality_z",
	"data_stale_flag", "guidance_up_flag",
}

// table is the column-oriented working set during a build
type table struct {
	asOf      []time.Time
	ticker    []string
	cols      map[string][]float64
	flags     [][]string
	target    []float64
	regime    []string
	hasEvents bool
}

// Build computes the feature table. Events may be nil; rows then carry the
// no_events flag and NaN earnings features. The forward-return target over
// TargetPeriods trading days is non-NaN only where the future price was
// observable.
func Build(bars []ingest.Bar, events []ingest.Event) []dataset.Row {
	if len(bars) == 0 {
		return nil
	}

	sorted := make([]ingest.Bar, len(bars))
	copy(sorted, bars)
	ingest.SortBars(sorted)

	// adj_close wins over close when the dataset carries it at all
	useAdj := false
	for _, b := range sorted {
		if b.HasAdjClose() {
			useAdj = true
			break
		}
	}

	eventsByTicker := make(map[string][]ingest.Event)
	for _, ev := range events {
		eventsByTicker[ev.Ticker] = append(eventsByTicker[ev.Ticker], ev)
	}

	tbl := &table{cols: make(map[string][]float64), hasEvents: events != nil}

	for lo := 0; lo < len(sorted); {
		hi := lo
		for hi < len(sorted) && sorted[hi].Ticker == sorted[lo].Ticker {
			hi++
		}
		buildTicker(tbl, sorted[lo:hi], eventsByTicker[sorted[lo].Ticker], useAdj)
		lo = hi
	}

	crossSectional(tbl)

	return tbl.rows()
}

// buildTicker appends one ticker's per-row features to the table.
// g is this ticker's bars, ascending by as_of.
func buildTicker(tbl *table, g []ingest.Bar, events []ingest.Event, useAdj bool) {
	n := len(g)
	price := make([]float64, n)
	open := make([]float64, n)
	high := make([]float64, n)
	low := make([]float64, n)
	closeArr := make([]float64, n)
	volume := make([]float64, n)
	for i, b := range g {
		if useAdj {
			price[i] = b.AdjClose
		} else {
			price[i] = b.Close
		}
		open[i], high[i], low[i] = b.Open, b.High, b.Low
		closeArr[i], volume[i] = b.Close, b.Volume
	}

	flags := make([][]string, n)
	for i := 0; i < n; i++ {
		if math.IsNaN(price[i]) {
			flags[i] = append(flags[i], "missing_price")
		}
		if math.IsNaN(volume[i]) {
			flags[i] = append(flags[i], "missing_volume")
		}
		if math.IsNaN(closeArr[i]) || math.IsNaN(open[i]) || math.IsNaN(high[i]) || math.IsNaN(low[i]) {
			flags[i] = append(flags[i], "missing_ohlc")
		}
		if rng := high[i] - low[i]; !math.IsNaN(rng) && rng == 0 {
			flags[i] = append(flags[i], "zero_range")
		}
		if i+1 < 20 {
			flags[i] = append(flags[i], "insufficient_history_20")
		} else if i+1 < 60 {
			flags[i] = append(flags[i], "insufficient_history_60")
		}
	}

	out := make(map[string][]float64, len(tickerColumns))

	// Liquidity
	tradedValue := make([]float64, n)
	for i := range tradedValue {
		tradedValue[i] = closeArr[i] * volume[i] // NaN propagates
	}
	out["avg_traded_value_20d"] = rollingMean(tradedValue, 20, 1)

	// Returns
	ret1d := pctChange(price, 1)
	out["ret_1d"] = ret1d
	out["ret_3d"] = pctChange(price, 3)
	out["ret_5d"] = pctChange(price, 5)
	out["ret_20d"] = pctChange(price, 20)
	out["ret_60d"] = pctChange(price, 60)
	abs1d := nanSlice(n)
	for i, r := range ret1d {
		if !math.IsNaN(r) {
			abs1d[i] = math.Abs(r)
		}
	}
	out["absret_1d"] = abs1d

	// High watermark, excluding the current day
	out["hh_20d"] = rollingMaxShifted(price, 20, 1)

	// Volume z-score: zero std collapses to 0 with a flag
	volMean20 := rollingMean(volume, 20, 1)
	volStd20 := rollingStd(volume, 20, 2)
	vz := nanSlice(n)
	for i := 0; i < n; i++ {
		switch {
		case math.IsNaN(volStd20[i]):
		case volStd20[i] == 0:
			vz[i] = 0.0
			flags[i] = append(flags[i], "volume_std_zero")
		case !math.IsNaN(volume[i]):
			vz[i] = (volume[i] - volMean20[i]) / volStd20[i]
		}
	}
	out["volume_z_20d"] = vz

	// Volatility (time-series part; cross-sectional z-scores added later)
	out["vol_20"] = rollingStd(ret1d, 20, 2)
	out["vol_60"] = rollingStd(ret1d, 60, 2)

	// Gap & candle shape
	prevClose := nanSlice(n)
	for i := 1; i < n; i++ {
		prevClose[i] = price[i-1]
	}
	out["prev_close"] = prevClose

	gap := nanSlice(n)
	for i := 0; i < n; i++ {
		pc := prevClose[i]
		if math.IsNaN(pc) {
			continue
		}
		if pc <= 0 {
			flags[i] = append(flags[i], "nonpositive_prev_close")
			continue
		}
		if !math.IsNaN(open[i]) {
			gap[i] = (open[i] - pc) / pc
		}
	}
	out["gap_1d"] = gap

	rng := nanSlice(n)
	cth := nanSlice(n)
	cpr := nanSlice(n)
	for i := 0; i < n; i++ {
		r := high[i] - low[i]
		rng[i] = r
		if !math.IsNaN(r) && r > 0 {
			cth[i] = (closeArr[i] - high[i]) / r
			cpr[i] = (closeArr[i] - low[i]) / r
		}
	}
	out["range"] = rng
	out["close_to_high_1d"] = cth
	out["close_pos_in_range_1d"] = cpr

	// Trend aliases
	out["trend_20d"] = out["ret_20d"]
	out["trend_60d"] = out["ret_60d"]

	// Up streak: 3 consecutive higher closes including today
	streak := nanSlice(n)
	for i := 3; i < n; i++ {
		if math.IsNaN(price[i]) || math.IsNaN(price[i-1]) || math.IsNaN(price[i-2]) || math.IsNaN(price[i-3]) {
			continue
		}
		if price[i] > price[i-1] && price[i-1] > price[i-2] && price[i-2] > price[i-3] {
			streak[i] = 1.0
		} else {
			streak[i] = 0.0
		}
	}
	out["up_streak_3"] = streak

	buildEventFeatures(out, flags, g, events, price, ret1d, tbl.hasEvents)

	// Forward-return target
	target := nanSlice(n)
	for i := 0; i+TargetPeriods < n; i++ {
		p0, pk := price[i], price[i+TargetPeriods]
		if p0 > 0 && !math.IsNaN(p0) && !math.IsNaN(pk) {
			target[i] = (pk - p0) / p0
		}
	}

	for i, b := range g {
		tbl.asOf = append(tbl.asOf, dataset.Day(b.AsOf))
		tbl.ticker = append(tbl.ticker, b.Ticker)
		tbl.flags = append(tbl.flags, flags[i])
		tbl.target = append(tbl.target, target[i])
	}
	for _, col := range tickerColumns {
		tbl.cols[col] = append(tbl.cols[col], out[col]...)
	}
}

// buildEventFeatures adds earnings reaction/drift and the 60-day bullish
// event count for one ticker.
func buildEventFeatures(out map[string][]float64, flags [][]string, g []ingest.Bar, events []ingest.Event, price, ret1d []float64, hasEvents bool) {
	n := len(g)
	react := nanSlice(n)
	drift := nanSlice(n)
	bullish := make([]float64, n)

	if !hasEvents {
		for i := range flags {
			flags[i] = append(flags[i], "no_events")
		}
		out["earnings_react_1d"] = react
		out["earnings_drift_5d"] = drift
		out["event_bullish_count_60d"] = bullish
		return
	}

	dateToIdx := make(map[time.Time]int, n)
	for i, b := range g {
		dateToIdx[dataset.Day(b.AsOf)] = i
	}

	sawEarnings := false
	var bullishDates []time.Time
	for _, ev := range events {
		switch ev.EventType {
		case "earnings", "Earnings", "EARNINGS":
			sawEarnings = true
			idx, ok := dateToIdx[dataset.Day(ev.AsOf)]
			if !ok {
				continue
			}
			react[idx] = ret1d[idx]
			if idx+5 < n {
				p0, p5 := price[idx], price[idx+5]
				if p0 > 0 && !math.IsNaN(p0) && !math.IsNaN(p5) {
					drift[idx] = (p5 - p0) / p0
				}
			}
		case "bullish", "Bullish", "BULLISH":
			bullishDates = append(bullishDates, dataset.Day(ev.AsOf))
		}
	}

	// Forward-fill the reaction so it persists until the next event
	last := math.NaN()
	for i := range react {
		if !math.IsNaN(react[i]) {
			last = react[i]
		} else {
			react[i] = last
		}
	}

	for i, b := range g {
		day := dataset.Day(b.AsOf)
		windowStart := day.AddDate(0, 0, -60)
		cnt := 0
		for _, ev := range bullishDates {
			if !ev.Before(windowStart) && !ev.After(day) {
				cnt++
			}
		}
		bullish[i] = float64(cnt)
	}

	if !sawEarnings {
		for i := range flags {
			flags[i] = append(flags[i], "no_events")
		}
	}

	out["earnings_react_1d"] = react
	out["earnings_drift_5d"] = drift
	out["event_bullish_count_60d"] = bullish
}

// crossSectional computes the per-date columns: liquidity rank, volatility
// z-scores, market returns, relative strength, regime, earnings quality.
func crossSectional(tbl *table) {
	n := len(tbl.asOf)

	byDate := make(map[time.Time][]int)
	for i, d := range tbl.asOf {
		byDate[d] = append(byDate[d], i)
	}
	dates := make([]time.Time, 0, len(byDate))
	for d := range byDate {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	for _, col := range crossColumns {
		tbl.cols[col] = nanSlice(n)
	}
	tbl.regime = make([]string, n)

	marketVol := nanSlice(n)
	perDateVol := make([]float64, 0, len(dates))

	for _, d := range dates {
		idx := byDate[d]

		gather := func(col string) []float64 {
			vals := make([]float64, len(idx))
			for k, i := range idx {
				vals[k] = tbl.cols[col][i]
			}
			return vals
		}
		scatter := func(col string, vals []float64) {
			for k, i := range idx {
				tbl.cols[col][i] = vals[k]
			}
		}

		scatter("liq_score", csRank(gather("avg_traded_value_20d")))
		scatter("vol_z_20d", csZScore(gather("vol_20")))
		scatter("vol_z_60d", csZScore(gather("vol_60")))

		ret20 := gather("ret_20d")
		ret60 := gather("ret_60d")
		m20 := nanMean(ret20)
		m60 := nanMean(ret60)
		for k, i := range idx {
			if !math.IsNaN(m20) {
				tbl.cols["market_ret_20d"][i] = m20
				if !math.IsNaN(ret20[k]) {
					tbl.cols["rs_20d"][i] = ret20[k] - m20
				}
			}
			if !math.IsNaN(m60) {
				tbl.cols["market_ret_60d"][i] = m60
				if !math.IsNaN(ret60[k]) {
					tbl.cols["rs_60d"][i] = ret60[k] - m60
				}
			}
		}

		mv := nanMedian(gather("vol_20"))
		for _, i := range idx {
			marketVol[i] = mv
		}
		perDateVol = append(perDateVol, mv)

		// Earnings quality z-score
		react := gather("earnings_react_1d")
		drifts := gather("earnings_drift_5d")
		raw := make([]float64, len(idx))
		for k := range idx {
			raw[k] = 0.6*react[k] + 0.4*drifts[k] // NaN propagates
		}
		scatter("earnings_quality_z", csZScore(raw))

		// Dummies held for schema compatibility
		for _, i := range idx {
			tbl.cols["data_stale_flag"][i] = 0
			tbl.cols["guidance_up_flag"][i] = 0
		}
	}

	// Regime: risk_on when the market is up and calm relative to the
	// full-sample median volatility.
	globalMedianVol := nanMedian(perDateVol)
	for i := 0; i < n; i++ {
		mret := tbl.cols["market_ret_20d"][i]
		mvol := marketVol[i]
		if !math.IsNaN(mret) && !math.IsNaN(mvol) && mret >= 0 && mvol <= globalMedianVol {
			tbl.regime[i] = "risk_on"
		} else {
			tbl.regime[i] = "risk_off"
		}
	}
}

// rows converts the column-oriented table into dataset rows, dropping NaN
// values from the feature maps and deduplicating flags.
func (tbl *table) rows() []dataset.Row {
	n := len(tbl.asOf)
	allCols := make([]string, 0, len(tickerColumns)+len(crossColumns))
	allCols = append(allCols, tickerColumns...)
	allCols = append(allCols, crossColumns...)

	rows := make([]dataset.Row, 0, n)
	for i := 0; i < n; i++ {
		feats := make(map[string]float64, len(allCols))
		for _, col := range allCols {
			if v := tbl.cols[col][i]; !math.IsNaN(v) {
				feats[col] = v
			}
		}

		var target *float64
		if !math.IsNaN(tbl.target[i]) {
			target = dataset.Float64Ptr(tbl.target[i])
		}

		rows = append(rows, dataset.Row{
			AsOf:     tbl.asOf[i],
			Ticker:   tbl.ticker[i],
			Regime:   tbl.regime[i],
			Features: feats,
			Target:   target,
			Flags:    uniqueSorted(tbl.flags[i]),
		})
	}
	return rows
}

// ToFrame assembles built rows into a frame, attaching company names from
// the equities master (ticker code when absent).
func ToFrame(rows []dataset.Row, master map[string]string) (*dataset.Frame, error) {
	f := dataset.New()
	for _, r := range rows {
		if name, ok := master[r.Ticker]; ok && name != "" {
			r.Name = name
		} else {
			r.Name = r.Ticker
		}
		if err := f.Append(r); err != nil {
			return nil, err
		}
	}
	return f, nil
}

func uniqueSorted(xs []string) []string {
	if len(xs) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(xs))
	out := make([]string, 0, len(xs))
	for _, x := range xs {
		if _, ok := seen[x]; !ok {
			seen[x] = struct{}{}
			out = append(out, x)
		}
	}
	sort.Strings(out)
	return out
}
