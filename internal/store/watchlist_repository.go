package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sora-lab/inga-quant/internal/watchlist"
)

// WatchlistRepository stores ranked watchlist entries per run
// ⭐ SSOT: 워치리스트 저장소는 여기서만
type WatchlistRepository struct {
	pool *pgxpool.Pool
}

// NewWatchlistRepository creates a new watchlist repository
func NewWatchlistRepository(pool *pgxpool.Pool) *WatchlistRepository {
	return &WatchlistRepository{pool: pool}
}

// Save persists the ordered entries of one run
func (r *WatchlistRepository) Save(ctx context.Context, runID string, tradeDate time.Time, entries []watchlist.Entry) error {
	query := `
		INSERT INTO watchlist_entries
			(run_id, trade_date, rank, ticker, name, score, reason_short, is_new, turnover_penalty)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (run_id, ticker) DO UPDATE SET
			rank             = EXCLUDED.rank,
			score            = EXCLUDED.score,
			reason_short     = EXCLUDED.reason_short,
			is_new           = EXCLUDED.is_new,
			turnover_penalty = EXCLUDED.turnover_penalty
	`

	for i, e := range entries {
		_, err := r.pool.Exec(ctx, query,
			runID, tradeDate, i+1, e.Ticker, e.Name, e.Score,
			e.ReasonShort, e.IsNew, e.TurnoverPenalty,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

// PrevTickers returns the ticker list of the latest watchlist strictly
// before the given trade date, in rank order. Feeds the rotation
// constraint of the next build.
func (r *WatchlistRepository) PrevTickers(ctx context.Context, before time.Time) ([]string, error) {
	query := `
		SELECT ticker
		FROM watchlist_entries
		WHERE trade_date = (
			SELECT max(trade_date) FROM watchlist_entries WHERE trade_date < $1
		)
		ORDER BY rank ASC
	`

	rows, err := r.pool.Query(ctx, query, before)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tickers []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		tickers = append(tickers, t)
	}
	return tickers, rows.Err()
}

// Latest returns the most recent trade date's entries in rank order
func (r *WatchlistRepository) Latest(ctx context.Context) ([]watchlist.Entry, time.Time, error) {
	query := `
		SELECT trade_date, ticker, name, score, reason_short, is_new, turnover_penalty
		FROM watchlist_entries
		WHERE trade_date = (SELECT max(trade_date) FROM watchlist_entries)
		ORDER BY rank ASC
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, time.Time{}, err
	}
	defer rows.Close()

	var entries []watchlist.Entry
	var tradeDate time.Time
	for rows.Next() {
		var e watchlist.Entry
		if err := rows.Scan(&tradeDate, &e.Ticker, &e.Name, &e.Score, &e.ReasonShort, &e.IsNew, &e.TurnoverPenalty); err != nil {
			return nil, time.Time{}, err
		}
		entries = append(entries, e)
	}
	return entries, tradeDate.UTC(), rows.Err()
}
