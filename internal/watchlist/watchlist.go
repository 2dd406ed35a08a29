package watchlist

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/sora-lab/inga-quant/internal/dataset"
	"github.com/sora-lab/inga-quant/pkg/logger"
)

// Config bounds the watchlist size and daily rotation
type Config struct {
	Size              int
	MaxNew            int
	MinRetained       int
	TurnoverPenalty   float64
	RegimeMultipliers map[string]float64
}

// DefaultConfig returns the production rotation constraints
func DefaultConfig() Config {
	return Config{
		Size:            50,
		MaxNew:          20,
		MinRetained:     30,
		TurnoverPenalty: 0.01,
		RegimeMultipliers: map[string]float64{
			"risk_on":  1.0,
			"risk_off": 0.5,
		},
	}
}

// Entry is one selected ticker, ranked by adjusted score. Score is the
// adjusted value (raw minus turnover penalty); the raw score is not retained.
type Entry struct {
	Ticker          string
	Name            string
	Score           float64
	ReasonShort     string
	IsNew           bool
	TurnoverPenalty float64
}

type candidate struct {
	row      dataset.Row
	adjScore float64
	isNew    bool
	penalty  float64
}

// Build selects the watchlist for one decision date.
//
// Rows on the decision date are scored as Σ coef[feature]*value, dampened by
// the day's market-regime multiplier. New tickers (absent from the previous
// watchlist) pay a turnover penalty. When the previous watchlist has at
// least MinRetained tickers, the rotation constraint takes the top
// MinRetained retained plus the top MaxNew new candidates before truncating
// to Size; otherwise the top Size rows are taken outright.
func Build(
	frame *dataset.Frame,
	asOf time.Time,
	modelCoef map[string]float64,
	signalFeatures []string,
	prevWatchlist []string,
	cfg Config,
	log *logger.Logger,
) []Entry {
	dayRows := frame.SliceDate(asOf)
	if len(dayRows) == 0 {
		log.Warnf("No features for as_of=%s", dataset.Day(asOf).Format("2006-01-02"))
		return []Entry{}
	}

	regime := "risk_on"
	if dayRows[0].Regime != "" {
		regime = dayRows[0].Regime
	}
	multiplier := 1.0
	if m, ok := cfg.RegimeMultipliers[regime]; ok {
		multiplier = m
	}

	prevSet := make(map[string]struct{}, len(prevWatchlist))
	for _, t := range prevWatchlist {
		prevSet[t] = struct{}{}
	}

	var candidates []candidate
	for _, row := range dayRows {
		score, ok := compositeScore(row, signalFeatures, modelCoef)
		if !ok {
			// Every contributing feature missing: no score, drop the row
			continue
		}
		score *= multiplier

		_, retained := prevSet[row.Ticker]
		penalty := 0.0
		if !retained {
			penalty = cfg.TurnoverPenalty
		}
		candidates = append(candidates, candidate{
			row:      row,
			adjScore: score - penalty,
			isNew:    !retained,
			penalty:  penalty,
		})
	}

	sortByScore(candidates)

	var selected []candidate
	if len(prevSet) > 0 && len(prevSet) >= cfg.MinRetained {
		var retained, fresh []candidate
		for _, c := range candidates {
			if c.isNew {
				fresh = append(fresh, c)
			} else {
				retained = append(retained, c)
			}
		}
		pool := append(head(retained, cfg.MinRetained), head(fresh, cfg.MaxNew)...)
		sortByScore(pool)
		selected = head(pool, cfg.Size)
	} else {
		selected = head(candidates, cfg.Size)
	}

	entries := make([]Entry, 0, len(selected))
	nNew := 0
	for _, c := range selected {
		name := c.row.Name
		if name == "" {
			name = c.row.Ticker
		}
		if c.isNew {
			nNew++
		}
		entries = append(entries, Entry{
			Ticker:          c.row.Ticker,
			Name:            name,
			Score:           c.adjScore,
			ReasonShort:     reasonShort(c.row, signalFeatures),
			IsNew:           c.isNew,
			TurnoverPenalty: c.penalty,
		})
	}

	log.Infof("Watchlist built: %d entries (%d new, %d retained) for %s",
		len(entries), nNew, len(entries)-nNew, dataset.Day(asOf).Format("2006-01-02"))
	return entries
}

// compositeScore sums coef*value over the signal features, treating a
// missing value as 0. Returns ok=false when no contributing feature is
// present in the row at all.
func compositeScore(row dataset.Row, signalFeatures []string, coef map[string]float64) (float64, bool) {
	var score float64
	contributors := 0
	for _, feat := range signalFeatures {
		c, hasCoef := coef[feat]
		if !hasCoef {
			continue
		}
		if v, ok := row.Value(feat); ok {
			score += c * v
			contributors++
		}
	}
	if contributors == 0 {
		return 0, false
	}
	return score, true
}

// reasonShort names the signal feature with the largest absolute value in
// the row; ties resolve to the first in configured order. "composite" when
// every feature is missing.
func reasonShort(row dataset.Row, signalFeatures []string) string {
	bestFeat := ""
	bestVal := math.Inf(-1)
	for _, feat := range signalFeatures {
		if v, ok := row.Value(feat); ok {
			if math.Abs(v) > bestVal {
				bestVal = math.Abs(v)
				bestFeat = feat
			}
		}
	}
	if bestFeat == "" {
		return "composite"
	}
	return strings.ReplaceAll(bestFeat, "_", " ")
}

func sortByScore(cs []candidate) {
	sort.SliceStable(cs, func(i, j int) bool { return cs[i].adjScore > cs[j].adjScore })
}

func head(cs []candidate, n int) []candidate {
	if len(cs) <= n {
		return cs
	}
	return cs[:n]
}
