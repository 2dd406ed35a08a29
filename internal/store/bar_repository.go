package store

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sora-lab/inga-quant/internal/ingest"
)

// BarRepository stores daily OHLCV bars keyed by (as_of, ticker)
// ⭐ SSOT: 시세 데이터 저장소는 여기서만
type BarRepository struct {
	pool *pgxpool.Pool
}

// NewBarRepository creates a new bar repository
func NewBarRepository(pool *pgxpool.Pool) *BarRepository {
	return &BarRepository{pool: pool}
}

// Save upserts a single bar
func (r *BarRepository) Save(ctx context.Context, bar ingest.Bar) error {
	query := `
		INSERT INTO bars_daily (as_of, ticker, open, high, low, close, volume, adj_close)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (as_of, ticker) DO UPDATE SET
			open      = EXCLUDED.open,
			high      = EXCLUDED.high,
			low       = EXCLUDED.low,
			close     = EXCLUDED.close,
			volume    = EXCLUDED.volume,
			adj_close = EXCLUDED.adj_close
	`

	_, err := r.pool.Exec(ctx, query,
		bar.AsOf, bar.Ticker,
		nullable(bar.Open), nullable(bar.High), nullable(bar.Low),
		nullable(bar.Close), nullable(bar.Volume), nullable(bar.AdjClose),
	)
	return err
}

// SaveBatch upserts multiple bars
func (r *BarRepository) SaveBatch(ctx context.Context, bars []ingest.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	// Use simple loop for now (batch optimization can be added later)
	for _, bar := range bars {
		if err := r.Save(ctx, bar); err != nil {
			return err
		}
	}
	return nil
}

// GetRange retrieves all bars within [from, to], ordered by ticker and date
func (r *BarRepository) GetRange(ctx context.Context, from, to time.Time) ([]ingest.Bar, error) {
	query := `
		SELECT as_of, ticker, open, high, low, close, volume, adj_close
		FROM bars_daily
		WHERE as_of BETWEEN $1 AND $2
		ORDER BY ticker ASC, as_of ASC
	`

	rows, err := r.pool.Query(ctx, query, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bars []ingest.Bar
	for rows.Next() {
		var b ingest.Bar
		var open, high, low, closePx, volume, adjClose *float64
		if err := rows.Scan(&b.AsOf, &b.Ticker, &open, &high, &low, &closePx, &volume, &adjClose); err != nil {
			return nil, err
		}
		b.AsOf = b.AsOf.UTC()
		b.Open = deref(open)
		b.High = deref(high)
		b.Low = deref(low)
		b.Close = deref(closePx)
		b.Volume = deref(volume)
		b.AdjClose = deref(adjClose)
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

// LatestDate returns the most recent stored as_of, or ok=false when the
// table is empty. Drives the incremental fetch.
func (r *BarRepository) LatestDate(ctx context.Context) (time.Time, bool, error) {
	var latest *time.Time
	err := r.pool.QueryRow(ctx, `SELECT max(as_of) FROM bars_daily`).Scan(&latest)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, err
	}
	if latest == nil {
		return time.Time{}, false, nil
	}
	return latest.UTC(), true, nil
}

// nullable maps NaN to SQL NULL
func nullable(v float64) *float64 {
	if math.IsNaN(v) {
		return nil
	}
	return &v
}

// deref maps SQL NULL back to NaN
func deref(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}
