package dataset

import (
	"fmt"
	"sort"
	"time"
)

// Row is one (as_of, ticker) observation in the feature table.
// A feature absent from Features is a missing value; Target is nil where the
// forward return was not observable.
type Row struct {
	AsOf     time.Time
	Ticker   string
	Name     string
	Regime   string // market_regime value, "" when not computed
	Features map[string]float64
	Target   *float64
	Flags    []string // sorted quality flags, nil when none recorded
}

// Value returns a feature value and whether it is present
func (r *Row) Value(feature string) (float64, bool) {
	v, ok := r.Features[feature]
	return v, ok
}

// Frame is the feature table: rows keyed by (as_of, ticker), uniqueness on
// the key mandatory, insertion order preserved.
type Frame struct {
	rows    []Row
	index   map[string]int
	columns map[string]struct{}
}

// New creates an empty frame
func New() *Frame {
	return &Frame{
		index:   make(map[string]int),
		columns: make(map[string]struct{}),
	}
}

// Day truncates a timestamp to a UTC calendar date.
// All as_of comparisons in the pipeline go through this normal form.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func key(asOf time.Time, ticker string) string {
	return asOf.Format("2006-01-02") + "|" + ticker
}

// Append adds a row, rejecting duplicate (as_of, ticker) keys
func (f *Frame) Append(row Row) error {
	row.AsOf = Day(row.AsOf)
	k := key(row.AsOf, row.Ticker)
	if _, exists := f.index[k]; exists {
		return fmt.Errorf("duplicate row for (%s, %s)", row.AsOf.Format("2006-01-02"), row.Ticker)
	}

	f.index[k] = len(f.rows)
	f.rows = append(f.rows, row)
	for name := range row.Features {
		f.columns[name] = struct{}{}
	}
	return nil
}

// Len returns the number of rows
func (f *Frame) Len() int {
	return len(f.rows)
}

// Rows returns the backing row slice. Callers must treat it as read-only.
func (f *Frame) Rows() []Row {
	return f.rows
}

// HasColumn reports whether any row carries the feature
func (f *Frame) HasColumn(name string) bool {
	_, ok := f.columns[name]
	return ok
}

// PresentColumns splits requested feature names into present and missing,
// preserving the requested order.
func (f *Frame) PresentColumns(requested []string) (present, missing []string) {
	for _, name := range requested {
		if f.HasColumn(name) {
			present = append(present, name)
		} else {
			missing = append(missing, name)
		}
	}
	return present, missing
}

// WithTarget returns the rows with a non-null target, in frame order
func (f *Frame) WithTarget() []Row {
	out := make([]Row, 0, len(f.rows))
	for _, r := range f.rows {
		if r.Target != nil {
			out = append(out, r)
		}
	}
	return out
}

// SliceDate returns the rows whose as_of equals the given date
func (f *Frame) SliceDate(asOf time.Time) []Row {
	day := Day(asOf)
	var out []Row
	for _, r := range f.rows {
		if r.AsOf.Equal(day) {
			out = append(out, r)
		}
	}
	return out
}

// DistinctDates returns the sorted distinct as_of dates of the given rows
func DistinctDates(rows []Row) []time.Time {
	seen := make(map[time.Time]struct{})
	var dates []time.Time
	for _, r := range rows {
		if _, ok := seen[r.AsOf]; !ok {
			seen[r.AsOf] = struct{}{}
			dates = append(dates, r.AsOf)
		}
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates
}

// DistinctTickers returns the distinct tickers of the given rows in
// first-seen order.
func DistinctTickers(rows []Row) []string {
	seen := make(map[string]struct{})
	var tickers []string
	for _, r := range rows {
		if _, ok := seen[r.Ticker]; !ok {
			seen[r.Ticker] = struct{}{}
			tickers = append(tickers, r.Ticker)
		}
	}
	return tickers
}

// FilterDates returns the rows whose as_of is in the given date set
func FilterDates(rows []Row, dates []time.Time) []Row {
	set := make(map[time.Time]struct{}, len(dates))
	for _, d := range dates {
		set[d] = struct{}{}
	}
	var out []Row
	for _, r := range rows {
		if _, ok := set[r.AsOf]; ok {
			out = append(out, r)
		}
	}
	return out
}

// FilterTickers returns the rows whose ticker is in the given set
func FilterTickers(rows []Row, tickers map[string]struct{}) []Row {
	var out []Row
	for _, r := range rows {
		if _, ok := tickers[r.Ticker]; ok {
			out = append(out, r)
		}
	}
	return out
}

// GroupByDate partitions rows by as_of, returning groups in sorted date order
func GroupByDate(rows []Row) []DateGroup {
	byDate := make(map[time.Time][]Row)
	for _, r := range rows {
		byDate[r.AsOf] = append(byDate[r.AsOf], r)
	}

	dates := make([]time.Time, 0, len(byDate))
	for d := range byDate {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	groups := make([]DateGroup, 0, len(dates))
	for _, d := range dates {
		groups = append(groups, DateGroup{Date: d, Rows: byDate[d]})
	}
	return groups
}

// DateGroup is one date's cross-section of rows
type DateGroup struct {
	Date time.Time
	Rows []Row
}

// Float64Ptr is a convenience for building rows with a known target
func Float64Ptr(v float64) *float64 {
	return &v
}
