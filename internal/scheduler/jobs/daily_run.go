package jobs

import (
	"context"
	"time"

	"github.com/sora-lab/inga-quant/internal/runner"
	"github.com/sora-lab/inga-quant/pkg/logger"
)

// DailyRunJob executes the full pipeline every evening after the TSE
// close, so the watchlist is ready before the next session opens.
// ⭐ SSOT: 일일 파이프라인 작업은 여기서만
type DailyRunJob struct {
	runner  *runner.Runner
	lockDir string
	logger  *logger.Logger
}

// NewDailyRunJob creates a new daily pipeline job
func NewDailyRunJob(r *runner.Runner, lockDir string, log *logger.Logger) *DailyRunJob {
	return &DailyRunJob{
		runner:  r,
		lockDir: lockDir,
		logger:  log,
	}
}

// Name returns the job name
func (j *DailyRunJob) Name() string {
	return "daily_run"
}

// Schedule runs at 18:05 JST on weekdays (after the daily bar data for
// the session becomes available).
func (j *DailyRunJob) Schedule() string {
	return "0 5 18 * * MON-FRI"
}

// Run executes the pipeline for today's date
func (j *DailyRunJob) Run(ctx context.Context) error {
	lock, err := runner.AcquireLock(j.lockDir, "daily_run")
	if err != nil {
		return err
	}
	defer lock.Release()

	res, err := j.runner.Run(ctx, runner.Options{AsOf: today()})
	if err != nil {
		return err
	}

	j.logger.WithFields(map[string]interface{}{
		"run_id":     res.RunID,
		"trade_date": res.TradeDate.Format("2006-01-02"),
		"action":     res.Action,
	}).Info("Daily pipeline run finished")
	return nil
}

func today() time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}
