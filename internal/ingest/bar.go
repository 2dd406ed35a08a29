package ingest

import (
	"math"
	"sort"
	"time"
)

// Bar is one daily OHLCV observation. Missing numeric values are NaN.
type Bar struct {
	AsOf     time.Time
	Ticker   string
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
	AdjClose float64
}

// HasAdjClose reports whether the adjusted close is present
func (b Bar) HasAdjClose() bool {
	return !math.IsNaN(b.AdjClose)
}

// Event is one corporate event (earnings, bullish signal) for a ticker
type Event struct {
	AsOf      time.Time
	Ticker    string
	EventType string
}

// SortBars orders bars by (ticker, as_of) ascending, in place
func SortBars(bars []Bar) {
	sort.SliceStable(bars, func(i, j int) bool {
		if bars[i].Ticker != bars[j].Ticker {
			return bars[i].Ticker < bars[j].Ticker
		}
		return bars[i].AsOf.Before(bars[j].AsOf)
	})
}
