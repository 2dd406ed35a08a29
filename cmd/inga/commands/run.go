package commands

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/sora-lab/inga-quant/internal/ingest"
	"github.com/sora-lab/inga-quant/internal/runner"
	"github.com/sora-lab/inga-quant/pkg/httputil"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "日次パイプライン実行",
	Long: `フルパイプラインを実行し、日次レポートを生成します。

このコマンドは:
- 日足バーの取得（J-Quants またはデモ CSV）
- 特徴量構築・品質ゲート・モデル検証
- ウォッチリスト構築と各種レポート出力
- Slack 通知（Webhook 設定時）

Example:
  go run ./cmd/inga run --as-of 2026-02-13
  go run ./cmd/inga run --demo --demo-bars testdata/bars_small.csv
  go run ./cmd/inga run --out /tmp/inga-out`,
	RunE: runPipeline,
}

var (
	runAsOf     string
	runDemo     bool
	runDemoBars string
	runOut      string
	runLang     string
	runPrev     string
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runAsOf, "as-of", "", "as-of date YYYY-MM-DD (default: today)")
	runCmd.Flags().BoolVar(&runDemo, "demo", false, "Use a local CSV fixture (no API calls)")
	runCmd.Flags().StringVar(&runDemoBars, "demo-bars", "testdata/bars_small.csv", "Demo bars CSV path")
	runCmd.Flags().StringVar(&runOut, "out", "", "Output base directory (overrides INGA_OUTPUT_DIR)")
	runCmd.Flags().StringVar(&runLang, "lang", "", "Report language ja|en (overrides INGA_LANG)")
	runCmd.Flags().StringVar(&runPrev, "prev", "", "Previous watchlist CSV (overrides the stored one)")
}

func runPipeline(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	if runOut != "" {
		cfg.Pipeline.OutputDir = runOut
	}
	if runLang != "" {
		if runLang != "ja" && runLang != "en" {
			return fmt.Errorf("--lang must be ja or en, got %q", runLang)
		}
		cfg.Pipeline.Lang = runLang
	}

	asOf := time.Now().UTC().Truncate(24 * time.Hour)
	if runAsOf != "" {
		asOf, err = time.ParseInLocation("2006-01-02", runAsOf, time.UTC)
		if err != nil {
			return fmt.Errorf("invalid --as-of date %q: %w", runAsOf, err)
		}
	}

	// Single-instance guard against overlapping cron runs
	lock, err := runner.AcquireLock(cfg.Pipeline.LockDir, "inga-run")
	if err != nil {
		fmt.Fprintln(os.Stderr, "ERROR: 多重起動を検出しました。前の run が終了するまで待ってください。")
		return err
	}
	defer lock.Release()

	ctx := context.Background()

	var loader ingest.Loader
	barsPath := ""
	if runDemo {
		if _, err := os.Stat(runDemoBars); err != nil {
			return fmt.Errorf("demo fixture not found: %s", runDemoBars)
		}
		loader = ingest.NewDemoLoader(runDemoBars)
		barsPath = runDemoBars
	} else {
		jq, redisClient, err := newJQuantsLoader(cfg, log)
		if err != nil {
			fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
			return err
		}
		if redisClient != nil {
			defer redisClient.Close()
		}
		loader = jq
	}

	repos, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}

	r := runner.New(cfg, loader, httputil.New(log), log)
	if repos != nil {
		defer repos.db.Close()
		r = r.WithStore(repos.bars, repos.runs, repos.watchlists)
	}

	opts := runner.Options{AsOf: asOf, BarsPath: barsPath}
	if runPrev != "" {
		opts.PrevWatchlist, err = readPrevWatchlist(runPrev)
		if err != nil {
			return fmt.Errorf("read --prev watchlist: %w", err)
		}
	}

	res, err := r.Run(ctx, opts)
	if err != nil {
		return err
	}

	fmt.Printf("Action: %s\n", res.Action)
	fmt.Printf("Output: %s\n", res.OutDir)
	return nil
}

// readPrevWatchlist reads the ticker codes of a watchlist CSV produced
// by a previous run (first column, "code" header).
func readPrevWatchlist(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, err
	}

	var tickers []string
	for i, rec := range records {
		if len(rec) == 0 {
			continue
		}
		if i == 0 && rec[0] == "code" {
			continue
		}
		tickers = append(tickers, rec[0])
	}
	return tickers, nil
}
