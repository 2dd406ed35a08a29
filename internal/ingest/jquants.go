// J-Quants V2 API client.
//
// /v2/equities/bars/daily requires either `code` or `date` in every request.
// There is no date-range-for-all-tickers mode, so all-market fetches iterate
// by business day, one request per day. Rate limits are handled by the
// shared HTTP client: 429 honours Retry-After, 5xx backs off exponentially,
// and a pacing interval separates consecutive calls. 403 is an auth failure
// and is never retried.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"time"

	"github.com/sora-lab/inga-quant/internal/dataset"
	"github.com/sora-lab/inga-quant/internal/tradedate"
	"github.com/sora-lab/inga-quant/pkg/httputil"
	"github.com/sora-lab/inga-quant/pkg/logger"
	"github.com/sora-lab/inga-quant/pkg/redis"
)

const (
	barsPath   = "/v2/equities/bars/daily"
	masterPath = "/v2/equities/master"

	masterCacheKey = "equities_master"
	masterCacheTTL = 24 * time.Hour
)

// JQuantsLoader fetches bars and the equities master from the J-Quants V2
// API. The master is cached in Redis for 24 hours when a cache is wired.
type JQuantsLoader struct {
	apiKey  string
	baseURL string
	http    *httputil.Client
	cache   *redis.Cache
	logger  *logger.Logger
}

// NewJQuantsLoader builds a loader. Returns an AuthError when the API key
// is empty so the caller fails before any network call.
func NewJQuantsLoader(apiKey, baseURL string, httpClient *httputil.Client, cache *redis.Cache, log *logger.Logger) (*JQuantsLoader, error) {
	if apiKey == "" {
		return nil, &AuthError{
			Message: "J-Quants APIキーが未設定です。.env に JQUANTS_API_KEY=<key> を設定してください。",
		}
	}
	return &JQuantsLoader{
		apiKey:  apiKey,
		baseURL: baseURL,
		http:    httpClient,
		cache:   cache,
		logger:  log,
	}, nil
}

type barRecord struct {
	Date      string   `json:"Date"`
	Code      string   `json:"Code"`
	Open      *float64 `json:"O"`
	High      *float64 `json:"H"`
	Low       *float64 `json:"L"`
	Close     *float64 `json:"C"`
	Volume    *float64 `json:"Vo"`
	AdjClose  *float64 `json:"AdjC"`
	AdjFactor *float64 `json:"AdjFactor"`
}

type masterRecord struct {
	Code        string `json:"Code"`
	CompanyName string `json:"CompanyName"`
}

type pagedResponse struct {
	Data          json.RawMessage `json:"data"`
	PaginationKey string          `json:"pagination_key"`
	Message       string          `json:"message"`
}

// FetchDaily fetches OHLCV bars. With tickers, one code+from+to query per
// ticker; without, one date query per Japanese business day in the range.
func (l *JQuantsLoader) FetchDaily(ctx context.Context, start, end time.Time, tickers []string) ([]Bar, error) {
	var records []barRecord

	if len(tickers) > 0 {
		for _, ticker := range tickers {
			params := url.Values{
				"code": {ticker},
				"from": {dataset.Day(start).Format("2006-01-02")},
				"to":   {dataset.Day(end).Format("2006-01-02")},
			}
			page, err := fetchAllPages[barRecord](ctx, l, barsPath, params)
			if err != nil {
				return nil, err
			}
			records = append(records, page...)
		}
	} else {
		nDays := 0
		for d := dataset.Day(start); !d.After(dataset.Day(end)); d = d.AddDate(0, 0, 1) {
			if !tradedate.IsBusinessDay(d) {
				continue
			}
			page, err := fetchAllPages[barRecord](ctx, l, barsPath, url.Values{"date": {d.Format("2006-01-02")}})
			if err != nil {
				return nil, err
			}
			records = append(records, page...)
			nDays++
		}
		l.logger.Infof("J-Quants: %d営業日分リクエスト完了 (%s–%s)",
			nDays, dataset.Day(start).Format("2006-01-02"), dataset.Day(end).Format("2006-01-02"))
	}

	if len(records) == 0 {
		l.logger.Infof("J-Quants: 取得レコード 0件 (%s–%s)",
			dataset.Day(start).Format("2006-01-02"), dataset.Day(end).Format("2006-01-02"))
		return []Bar{}, nil
	}

	bars := make([]Bar, 0, len(records))
	seen := make(map[string]struct{}, len(records))
	for _, r := range records {
		asOf, err := time.ParseInLocation("2006-01-02", r.Date, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("J-Quants: bad Date %q: %w", r.Date, err)
		}
		key := r.Date + "|" + r.Code
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		bars = append(bars, Bar{
			AsOf:     asOf,
			Ticker:   r.Code,
			Open:     floatOrNaN(r.Open),
			High:     floatOrNaN(r.High),
			Low:      floatOrNaN(r.Low),
			Close:    floatOrNaN(r.Close),
			Volume:   floatOrNaN(r.Volume),
			AdjClose: floatOrNaN(r.AdjClose),
		})
	}
	SortBars(bars)

	l.logger.Infof("J-Quants: %d件取得 (%d銘柄)", len(bars), countTickers(bars))
	return bars, nil
}

// FetchMaster fetches the equities master as ticker → company name, cached
// for 24 hours. Any failure logs a warning and returns an empty map so the
// pipeline continues without company names.
func (l *JQuantsLoader) FetchMaster(ctx context.Context) map[string]string {
	if l.cache != nil {
		var cached map[string]string
		if hit, err := l.cache.Get(ctx, masterCacheKey, &cached); err == nil && hit && len(cached) > 0 {
			l.logger.Infof("マスターキャッシュ使用 (%d銘柄)", len(cached))
			return cached
		}
	}

	records, err := fetchAllPages[masterRecord](ctx, l, masterPath, url.Values{})
	if err != nil {
		if _, isAuth := err.(*AuthError); isAuth {
			l.logger.WithError(err).Warn("マスター取得失敗 (認証) — 社名なしで続行")
		} else {
			l.logger.WithError(err).Warn("マスター取得失敗 — 社名なしで続行")
		}
		return map[string]string{}
	}
	if len(records) == 0 {
		l.logger.Warn("マスター: 取得レコード 0件")
		return map[string]string{}
	}

	master := make(map[string]string, len(records))
	for _, r := range records {
		if _, dup := master[r.Code]; !dup {
			master[r.Code] = r.CompanyName
		}
	}

	if l.cache != nil {
		if err := l.cache.Set(ctx, masterCacheKey, master, masterCacheTTL); err != nil {
			l.logger.WithError(err).Warn("マスターキャッシュ保存失敗")
		} else {
			l.logger.Infof("マスター保存: %d銘柄", len(master))
		}
	}
	return master
}

// CheckConnectivity is the smoke test: one master call for a single ticker
func (l *JQuantsLoader) CheckConnectivity(ctx context.Context) error {
	_, err := l.getPage(ctx, masterPath, url.Values{"code": {"72030"}})
	if err != nil {
		return err
	}
	l.logger.Info("J-Quants API: 接続OK")
	return nil
}

// fetchAllPages follows pagination_key until exhausted
func fetchAllPages[T any](ctx context.Context, l *JQuantsLoader, path string, params url.Values) ([]T, error) {
	var all []T
	p := url.Values{}
	for k, vs := range params {
		p[k] = vs
	}

	for {
		page, err := l.getPage(ctx, path, p)
		if err != nil {
			return nil, err
		}
		if len(page.Data) > 0 {
			var batch []T
			if err := json.Unmarshal(page.Data, &batch); err != nil {
				return nil, fmt.Errorf("J-Quants: decode %s data: %w", path, err)
			}
			all = append(all, batch...)
		}
		if page.PaginationKey == "" {
			return all, nil
		}
		p.Set("pagination_key", page.PaginationKey)
	}
}

// getPage performs one GET. The HTTP client has already applied pacing and
// retried 429/5xx; what arrives here is terminal.
func (l *JQuantsLoader) getPage(ctx context.Context, path string, params url.Values) (*pagedResponse, error) {
	u := l.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	resp, err := l.http.Get(ctx, u, map[string]string{"x-api-key": l.apiKey})
	if err != nil {
		return nil, fmt.Errorf("J-Quants: request %s: %w", path, err)
	}

	if resp.StatusCode == http.StatusForbidden {
		msg := extractMessage(resp)
		return nil, &AuthError{
			Message: fmt.Sprintf("J-Quants 403: %s — APIキーが無効か期限切れです。ダッシュボードで再発行して .env を更新してください。", msg),
		}
	}
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("J-Quants: %s returned status %d", path, resp.StatusCode)
	}

	var page pagedResponse
	if err := httputil.ReadJSON(resp, &page); err != nil {
		return nil, fmt.Errorf("J-Quants: %s: %w", path, err)
	}
	return &page, nil
}

// extractMessage pulls "message" from a JSON error body, falling back to
// the HTTP status. Never fails.
func extractMessage(resp *http.Response) string {
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err == nil {
		var parsed struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(body, &parsed) == nil && parsed.Message != "" {
			return parsed.Message
		}
	}
	return resp.Status
}

func floatOrNaN(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}

func countTickers(bars []Bar) int {
	seen := make(map[string]struct{})
	for _, b := range bars {
		seen[b.Ticker] = struct{}{}
	}
	return len(seen)
}
