package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sora-lab/inga-quant/pkg/httputil"
	"github.com/sora-lab/inga-quant/pkg/logger"
)

func writeFixture(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bars.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const demoCSV = `as_of,ticker,open,high,low,close,volume,adj_close
2026-02-09,7203,100,105,99,104,1000,104
2026-02-10,7203,104,106,103,105,1100,105
2026-02-09,6758,200,210,198,205,2000,
2026-02-11,9984,300,301,,300,500,300
`

func TestDemoLoader_FetchDaily(t *testing.T) {
	l := NewDemoLoader(writeFixture(t, demoCSV))

	bars, err := l.FetchDaily(context.Background(),
		time.Date(2026, 2, 9, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC), nil)
	require.NoError(t, err)
	require.Len(t, bars, 3) // 9984 row is out of range

	// Sorted by (ticker, as_of)
	assert.Equal(t, "6758", bars[0].Ticker)
	assert.Equal(t, "7203", bars[1].Ticker)
	assert.Equal(t, "7203", bars[2].Ticker)
	assert.Equal(t, 104.0, bars[1].Close)
	assert.True(t, math.IsNaN(bars[0].AdjClose), "empty adj_close cell must parse as NaN")
}

func TestDemoLoader_TickerFilter(t *testing.T) {
	l := NewDemoLoader(writeFixture(t, demoCSV))

	bars, err := l.FetchDaily(context.Background(),
		time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC),
		[]string{"7203"})
	require.NoError(t, err)
	require.Len(t, bars, 2)
	for _, b := range bars {
		assert.Equal(t, "7203", b.Ticker)
	}
}

func TestDemoLoader_MissingRequiredColumn(t *testing.T) {
	l := NewDemoLoader(writeFixture(t, "as_of,ticker\n2026-02-09,7203\n"))

	_, err := l.FetchDaily(context.Background(), time.Now(), time.Now(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "close")
}

func TestNewJQuantsLoader_EmptyKeyIsAuthError(t *testing.T) {
	_, err := NewJQuantsLoader("", "https://api.example.com", nil, nil, logger.Nop())
	require.Error(t, err)
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Contains(t, authErr.Message, "JQUANTS_API_KEY")
}

func newTestLoader(t *testing.T, baseURL string) *JQuantsLoader {
	t.Helper()
	client := httputil.New(logger.Nop()).DisableRetry()
	l, err := NewJQuantsLoader("test-key", baseURL, client, nil, logger.Nop())
	require.NoError(t, err)
	return l
}

func TestJQuantsLoader_FetchDailyPerTickerWithPagination(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, "/v2/equities/bars/daily", r.URL.Path)
		assert.Equal(t, "7203", r.URL.Query().Get("code"))

		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("pagination_key") == "" {
			fmt.Fprint(w, `{"data":[{"Date":"2026-02-09","Code":"7203","O":100,"H":105,"L":99,"C":104,"Vo":1000,"AdjC":104}],"pagination_key":"next"}`)
		} else {
			fmt.Fprint(w, `{"data":[{"Date":"2026-02-10","Code":"7203","O":104,"H":106,"L":103,"C":105,"Vo":1100,"AdjC":105}]}`)
		}
	}))
	defer srv.Close()

	l := newTestLoader(t, srv.URL)
	bars, err := l.FetchDaily(context.Background(),
		time.Date(2026, 2, 9, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC),
		[]string{"7203"})
	require.NoError(t, err)
	assert.Equal(t, 2, calls, "must follow pagination_key")
	require.Len(t, bars, 2)
	assert.Equal(t, 104.0, bars[0].Close)
	assert.Equal(t, 105.0, bars[1].Close)
}

func TestJQuantsLoader_AllMarketIteratesBusinessDays(t *testing.T) {
	var dates []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		dates = append(dates, r.URL.Query().Get("date"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"data":[]}`)
	}))
	defer srv.Close()

	l := newTestLoader(t, srv.URL)
	// Fri 2026-02-13 .. Mon 2026-02-16: weekend must be skipped
	_, err := l.FetchDaily(context.Background(),
		time.Date(2026, 2, 13, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 2, 16, 0, 0, 0, 0, time.UTC), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"2026-02-13", "2026-02-16"}, dates)
}

func TestJQuantsLoader_403IsAuthError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		json.NewEncoder(w).Encode(map[string]string{"message": "The incoming token is invalid"})
	}))
	defer srv.Close()

	l := newTestLoader(t, srv.URL)
	_, err := l.FetchDaily(context.Background(),
		time.Date(2026, 2, 9, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 2, 9, 0, 0, 0, 0, time.UTC),
		[]string{"7203"})
	require.Error(t, err)

	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Contains(t, authErr.Message, "The incoming token is invalid")
	assert.Contains(t, authErr.Message, "APIキー")
}

func TestJQuantsLoader_FetchMasterBuildsNameMap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/equities/master", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"data":[{"Code":"7203","CompanyName":"トヨタ自動車"},{"Code":"6758","CompanyName":"ソニーグループ"}]}`)
	}))
	defer srv.Close()

	l := newTestLoader(t, srv.URL)
	master := l.FetchMaster(context.Background())
	assert.Equal(t, map[string]string{
		"7203": "トヨタ自動車",
		"6758": "ソニーグループ",
	}, master)
}

func TestJQuantsLoader_FetchMasterFailureReturnsEmptyMap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	l := newTestLoader(t, srv.URL)
	master := l.FetchMaster(context.Background())
	assert.Empty(t, master)
	assert.NotNil(t, master)
}

func TestJQuantsLoader_DeduplicatesRecords(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"data":[
			{"Date":"2026-02-09","Code":"7203","C":104},
			{"Date":"2026-02-09","Code":"7203","C":104}
		]}`)
	}))
	defer srv.Close()

	l := newTestLoader(t, srv.URL)
	bars, err := l.FetchDaily(context.Background(),
		time.Date(2026, 2, 9, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 2, 9, 0, 0, 0, 0, time.UTC),
		[]string{"7203"})
	require.NoError(t, err)
	assert.Len(t, bars, 1)
	assert.True(t, math.IsNaN(bars[0].Open), "absent O field must be NaN")
}

func TestSortBars(t *testing.T) {
	bars := []Bar{
		{Ticker: "B", AsOf: time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)},
		{Ticker: "A", AsOf: time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)},
		{Ticker: "A", AsOf: time.Date(2026, 2, 9, 0, 0, 0, 0, time.UTC)},
	}
	SortBars(bars)
	assert.Equal(t, "A", bars[0].Ticker)
	assert.Equal(t, 9, bars[0].AsOf.Day())
	assert.Equal(t, "A", bars[1].Ticker)
	assert.Equal(t, "B", bars[2].Ticker)
}
