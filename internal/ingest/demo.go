package ingest

import (
	"context"
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"strconv"
	"time"

	"github.com/sora-lab/inga-quant/internal/dataset"
)

// DemoLoader serves bars from a CSV fixture. No network calls; used by the
// demo profile and the end-to-end tests.
type DemoLoader struct {
	barsPath string
}

// NewDemoLoader creates a loader over a bars CSV with header
// as_of,ticker,open,high,low,close,volume[,adj_close].
func NewDemoLoader(barsPath string) *DemoLoader {
	return &DemoLoader{barsPath: barsPath}
}

// FetchDaily reads the fixture and filters to the requested range
func (l *DemoLoader) FetchDaily(_ context.Context, start, end time.Time, tickers []string) ([]Bar, error) {
	f, err := os.Open(l.barsPath)
	if err != nil {
		return nil, fmt.Errorf("open bars fixture: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read bars fixture: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("bars fixture %s is empty", l.barsPath)
	}

	col := make(map[string]int, len(records[0]))
	for i, name := range records[0] {
		col[name] = i
	}
	for _, required := range []string{"as_of", "ticker", "close"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("bars fixture missing column %q", required)
		}
	}

	tickerSet := make(map[string]struct{}, len(tickers))
	for _, t := range tickers {
		tickerSet[t] = struct{}{}
	}

	startDay, endDay := dataset.Day(start), dataset.Day(end)
	var bars []Bar
	for _, rec := range records[1:] {
		asOf, err := time.ParseInLocation("2006-01-02", rec[col["as_of"]], time.UTC)
		if err != nil {
			return nil, fmt.Errorf("bad as_of %q in fixture: %w", rec[col["as_of"]], err)
		}
		if asOf.Before(startDay) || asOf.After(endDay) {
			continue
		}
		ticker := rec[col["ticker"]]
		if len(tickerSet) > 0 {
			if _, ok := tickerSet[ticker]; !ok {
				continue
			}
		}

		bars = append(bars, Bar{
			AsOf:     asOf,
			Ticker:   ticker,
			Open:     fieldFloat(rec, col, "open"),
			High:     fieldFloat(rec, col, "high"),
			Low:      fieldFloat(rec, col, "low"),
			Close:    fieldFloat(rec, col, "close"),
			Volume:   fieldFloat(rec, col, "volume"),
			AdjClose: fieldFloat(rec, col, "adj_close"),
		})
	}
	SortBars(bars)
	return bars, nil
}

// FetchMaster has no master source in demo mode
func (l *DemoLoader) FetchMaster(_ context.Context) map[string]string {
	return map[string]string{}
}

// fieldFloat parses a numeric field, NaN for absent columns or empty cells
func fieldFloat(rec []string, col map[string]int, name string) float64 {
	idx, ok := col[name]
	if !ok || idx >= len(rec) || rec[idx] == "" {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(rec[idx], 64)
	if err != nil {
		return math.NaN()
	}
	return v
}
