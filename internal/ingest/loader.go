package ingest

import (
	"context"
	"time"
)

// Loader is the bar data source abstraction. Implementations must return
// bars within [start, end], optionally restricted to the given tickers.
type Loader interface {
	// FetchDaily returns daily OHLCV bars for the date range. An empty or
	// nil tickers slice means the whole market.
	FetchDaily(ctx context.Context, start, end time.Time, tickers []string) ([]Bar, error)

	// FetchMaster returns the equities master as ticker → company name.
	// A failed or unsupported fetch returns an empty map, never an error
	// that would stop the pipeline: company names are display-only.
	FetchMaster(ctx context.Context) map[string]string
}

// AuthError means the API key is missing, invalid or expired. It is never
// retried.
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string {
	return e.Message
}
