package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sora-lab/inga-quant/internal/runner"
	"github.com/sora-lab/inga-quant/internal/scheduler"
	"github.com/sora-lab/inga-quant/internal/scheduler/jobs"
	"github.com/sora-lab/inga-quant/pkg/httputil"
)

// scheduleCmd represents the schedule command
var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "スケジューラー起動",
	Long: `日次パイプラインを定期実行するスケジューラーデーモンを起動します。

ジョブ:
  daily_run - 平日 18:05 にフルパイプライン実行

Example:
  go run ./cmd/inga schedule`,
	RunE: runSchedule,
}

func init() {
	rootCmd.AddCommand(scheduleCmd)
}

func runSchedule(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}

	loader, redisClient, err := newJQuantsLoader(cfg, log)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	ctx := context.Background()
	repos, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}

	r := runner.New(cfg, loader, httputil.New(log), log)
	if repos != nil {
		defer repos.db.Close()
		r = r.WithStore(repos.bars, repos.runs, repos.watchlists)
	}

	sched := scheduler.New(log)
	if err := sched.AddJob(jobs.NewDailyRunJob(r, cfg.Pipeline.LockDir, log)); err != nil {
		return err
	}

	sched.Start()
	fmt.Println("✅ Scheduler running (daily_run @ 18:05 JST, MON-FRI)")
	fmt.Println("Press Ctrl+C to stop")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	sched.Stop()

	for name, stats := range sched.GetJobStats() {
		log.WithFields(map[string]interface{}{
			"job":       name,
			"runs":      stats.TotalRuns,
			"successes": stats.SuccessCount,
			"failures":  stats.FailureCount,
		}).Info("Job summary")
	}
	return nil
}
