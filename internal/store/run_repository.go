package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RunRecord is one pipeline run's persisted outcome
type RunRecord struct {
	RunID            string
	TradeDate        time.Time
	Action           string
	WFIC             *float64
	NEligible        int
	MissingRate      float64
	RejectionReasons []string
	CreatedAt        time.Time
}

// RunRepository stores pipeline run outcomes
// ⭐ SSOT: 파이프라인 실행 이력은 여기서만
type RunRepository struct {
	pool *pgxpool.Pool
}

// NewRunRepository creates a new run repository
func NewRunRepository(pool *pgxpool.Pool) *RunRepository {
	return &RunRepository{pool: pool}
}

// Save inserts a run record; a replayed run_id overwrites the previous row
func (r *RunRepository) Save(ctx context.Context, rec RunRecord) error {
	query := `
		INSERT INTO pipeline_runs (run_id, trade_date, action, wf_ic, n_eligible, missing_rate, rejection_reasons)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (run_id) DO UPDATE SET
			trade_date        = EXCLUDED.trade_date,
			action            = EXCLUDED.action,
			wf_ic             = EXCLUDED.wf_ic,
			n_eligible        = EXCLUDED.n_eligible,
			missing_rate      = EXCLUDED.missing_rate,
			rejection_reasons = EXCLUDED.rejection_reasons
	`

	_, err := r.pool.Exec(ctx, query,
		rec.RunID, rec.TradeDate, rec.Action, rec.WFIC,
		rec.NEligible, rec.MissingRate, rec.RejectionReasons,
	)
	return err
}

// Latest returns the most recent run by creation time
func (r *RunRepository) Latest(ctx context.Context) (*RunRecord, error) {
	query := `
		SELECT run_id, trade_date, action, wf_ic, n_eligible, missing_rate, rejection_reasons, created_at
		FROM pipeline_runs
		ORDER BY created_at DESC
		LIMIT 1
	`

	var rec RunRecord
	err := r.pool.QueryRow(ctx, query).Scan(
		&rec.RunID, &rec.TradeDate, &rec.Action, &rec.WFIC,
		&rec.NEligible, &rec.MissingRate, &rec.RejectionReasons, &rec.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	rec.TradeDate = rec.TradeDate.UTC()
	return &rec, nil
}
