package dataset

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestAppend_RejectsDuplicateKey(t *testing.T) {
	f := New()
	require.NoError(t, f.Append(Row{AsOf: date(2026, 2, 10), Ticker: "7203"}))

	err := f.Append(Row{AsOf: date(2026, 2, 10), Ticker: "7203"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
	assert.Equal(t, 1, f.Len())
}

func TestAppend_NormalizesTimestampToDay(t *testing.T) {
	f := New()
	noon := time.Date(2026, 2, 10, 12, 30, 0, 0, time.UTC)
	require.NoError(t, f.Append(Row{AsOf: noon, Ticker: "7203"}))

	// Same calendar day at another time is still a duplicate
	err := f.Append(Row{AsOf: date(2026, 2, 10), Ticker: "7203"})
	require.Error(t, err)
}

func TestWithTarget(t *testing.T) {
	f := New()
	require.NoError(t, f.Append(Row{AsOf: date(2026, 2, 9), Ticker: "7203", Target: Float64Ptr(0.01)}))
	require.NoError(t, f.Append(Row{AsOf: date(2026, 2, 10), Ticker: "7203"}))

	rows := f.WithTarget()
	require.Len(t, rows, 1)
	assert.Equal(t, "7203", rows[0].Ticker)
	assert.Equal(t, date(2026, 2, 9), rows[0].AsOf)
}

func TestSliceDate(t *testing.T) {
	f := New()
	for _, tk := range []string{"7203", "6758", "9984"} {
		require.NoError(t, f.Append(Row{AsOf: date(2026, 2, 10), Ticker: tk}))
	}
	require.NoError(t, f.Append(Row{AsOf: date(2026, 2, 9), Ticker: "7203"}))

	assert.Len(t, f.SliceDate(date(2026, 2, 10)), 3)
	assert.Len(t, f.SliceDate(date(2026, 2, 9)), 1)
	assert.Empty(t, f.SliceDate(date(2026, 2, 11)))
}

func TestPresentColumns(t *testing.T) {
	f := New()
	require.NoError(t, f.Append(Row{
		AsOf:     date(2026, 2, 10),
		Ticker:   "7203",
		Features: map[string]float64{"ret_1d": 0.01, "liq_score": 0.5},
	}))

	present, missing := f.PresentColumns([]string{"ret_1d", "ret_20d", "liq_score"})
	assert.Equal(t, []string{"ret_1d", "liq_score"}, present)
	assert.Equal(t, []string{"ret_20d"}, missing)
}

func TestDistinctDates_Sorted(t *testing.T) {
	f := New()
	require.NoError(t, f.Append(Row{AsOf: date(2026, 2, 12), Ticker: "A"}))
	require.NoError(t, f.Append(Row{AsOf: date(2026, 2, 10), Ticker: "A"}))
	require.NoError(t, f.Append(Row{AsOf: date(2026, 2, 11), Ticker: "B"}))
	require.NoError(t, f.Append(Row{AsOf: date(2026, 2, 10), Ticker: "B"}))

	dates := DistinctDates(f.Rows())
	require.Len(t, dates, 3)
	assert.Equal(t, date(2026, 2, 10), dates[0])
	assert.Equal(t, date(2026, 2, 12), dates[2])
}

func TestGroupByDate(t *testing.T) {
	f := New()
	require.NoError(t, f.Append(Row{AsOf: date(2026, 2, 11), Ticker: "A"}))
	require.NoError(t, f.Append(Row{AsOf: date(2026, 2, 10), Ticker: "A"}))
	require.NoError(t, f.Append(Row{AsOf: date(2026, 2, 10), Ticker: "B"}))

	groups := GroupByDate(f.Rows())
	require.Len(t, groups, 2)
	assert.Equal(t, date(2026, 2, 10), groups[0].Date)
	assert.Len(t, groups[0].Rows, 2)
	assert.Len(t, groups[1].Rows, 1)
}
