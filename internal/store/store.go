// Package store persists bars, pipeline runs and watchlists in Postgres.
// The bars table doubles as the incremental fetch cache: a daily run only
// requests business days newer than the latest stored date.
package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// EnsureSchema creates the pipeline tables when they do not exist yet
// ⭐ SSOT: 스키마 정의는 여기서만
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS bars_daily (
			as_of      date        NOT NULL,
			ticker     text        NOT NULL,
			open       double precision,
			high       double precision,
			low        double precision,
			close      double precision,
			volume     double precision,
			adj_close  double precision,
			PRIMARY KEY (as_of, ticker)
		)`,
		`CREATE TABLE IF NOT EXISTS pipeline_runs (
			run_id            text        PRIMARY KEY,
			trade_date        date        NOT NULL,
			action            text        NOT NULL,
			wf_ic             double precision,
			n_eligible        integer     NOT NULL,
			missing_rate      double precision NOT NULL,
			rejection_reasons text[]      NOT NULL DEFAULT '{}',
			created_at        timestamptz NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS watchlist_entries (
			run_id           text             NOT NULL,
			trade_date       date             NOT NULL,
			rank             integer          NOT NULL,
			ticker           text             NOT NULL,
			name             text             NOT NULL,
			score            double precision NOT NULL,
			reason_short     text             NOT NULL,
			is_new           boolean          NOT NULL,
			turnover_penalty double precision NOT NULL,
			PRIMARY KEY (run_id, ticker)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_watchlist_trade_date
			ON watchlist_entries (trade_date, rank)`,
	}

	for _, stmt := range ddl {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
