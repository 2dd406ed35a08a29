// Package runner orchestrates one daily pipeline run end to end:
// ingest, feature build, quality gates, model, watchlist, outputs and
// notification.
package runner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sora-lab/inga-quant/internal/features"
	"github.com/sora-lab/inga-quant/internal/gates"
	"github.com/sora-lab/inga-quant/internal/ingest"
	"github.com/sora-lab/inga-quant/internal/model"
	"github.com/sora-lab/inga-quant/internal/notify"
	"github.com/sora-lab/inga-quant/internal/output"
	"github.com/sora-lab/inga-quant/internal/store"
	"github.com/sora-lab/inga-quant/internal/tradedate"
	"github.com/sora-lab/inga-quant/internal/watchlist"
	"github.com/sora-lab/inga-quant/pkg/config"
	"github.com/sora-lab/inga-quant/pkg/httputil"
	"github.com/sora-lab/inga-quant/pkg/logger"
)

// Runner wires the pipeline stages together. Store repositories are
// optional: demo mode runs without a database.
type Runner struct {
	cfg        *config.Config
	loader     ingest.Loader
	httpClient *httputil.Client
	log        *logger.Logger

	bars       *store.BarRepository
	runs       *store.RunRepository
	watchlists *store.WatchlistRepository
}

// Options parameterizes one run
type Options struct {
	AsOf time.Time
	// BarsPath feeds the manifest's inputs digest (demo CSV runs only)
	BarsPath string
	// PrevWatchlist overrides the stored previous watchlist when set
	PrevWatchlist []string
}

// Result summarizes a completed run
type Result struct {
	RunID     string
	TradeDate time.Time
	Action    string
	OutDir    string
	Entries   []watchlist.Entry
	Gates     *gates.AllResult
}

// New creates a Runner without persistence
func New(cfg *config.Config, loader ingest.Loader, httpClient *httputil.Client, log *logger.Logger) *Runner {
	return &Runner{cfg: cfg, loader: loader, httpClient: httpClient, log: log}
}

// WithStore attaches the Postgres repositories
func (r *Runner) WithStore(bars *store.BarRepository, runs *store.RunRepository, watchlists *store.WatchlistRepository) *Runner {
	r.bars = bars
	r.runs = runs
	r.watchlists = watchlists
	return r
}

// Run executes the full pipeline for one as-of date
func (r *Runner) Run(ctx context.Context, opts Options) (*Result, error) {
	runID := makeRunID()
	tradeDate := tradedate.NextTradeDate(opts.AsOf)
	td := tradeDate.Format("2006-01-02")
	asOfStr := opts.AsOf.Format("2006-01-02")

	outDir := filepath.Join(r.cfg.Pipeline.OutputDir, td)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	r.log.Infof("=== inga-quant run start: run_id=%s as_of=%s trade_date=%s ===", runID, asOfStr, td)

	// Ingest
	start := opts.AsOf.AddDate(0, 0, -r.cfg.Pipeline.TrainDays)
	bars, err := r.loadBars(ctx, start, opts.AsOf)
	if err != nil {
		return nil, fmt.Errorf("load bars: %w", err)
	}
	r.log.Infof("Loaded %d rows of bars (%d tickers)", len(bars), countTickers(bars))

	// Equities master (company names) — non-fatal if unavailable
	master := r.loader.FetchMaster(ctx)

	// Feature building
	rows := features.Build(bars, nil)
	frame, err := features.ToFrame(rows, master)
	if err != nil {
		return nil, fmt.Errorf("build features: %w", err)
	}

	signalFeatures := features.SignalFeatures
	modelCfg := model.DefaultConfig()

	// Quality gates
	gateResult := gates.RunAll(frame, signalFeatures, opts.AsOf, modelCfg, gates.DefaultConfig(), r.log)
	r.log.Infof("Gates: all_passed=%t rejections=%v", gateResult.AllPassed, gateResult.RejectionReasons)

	// Model training for scoring. Kept even when gates failed so the
	// report can still show scores; a training failure degrades to an
	// empty watchlist.
	var coef map[string]float64
	if trained, err := model.Train(frame, signalFeatures, modelCfg, r.log); err != nil {
		r.log.Warnf("Model training failed: %v", err)
	} else {
		coef = trained.Coef
	}

	wfIC, wfICKnown := walkForwardIC(gateResult)

	// Watchlist
	prev := opts.PrevWatchlist
	if prev == nil && r.watchlists != nil {
		if stored, err := r.watchlists.PrevTickers(ctx, tradeDate); err != nil {
			r.log.Warnf("Previous watchlist lookup failed: %v", err)
		} else {
			prev = stored
		}
	}
	entries := []watchlist.Entry{}
	if len(coef) > 0 {
		entries = watchlist.Build(frame, opts.AsOf, coef, signalFeatures, prev, watchlist.DefaultConfig(), r.log)
	}

	// Outputs
	manifest := output.Manifest{
		RunID:          runID,
		CodeHash:       CodeHash(),
		InputsDigest:   digestOf(opts.BarsPath),
		AsOf:           asOfStr,
		DataAsOf:       asOfStr,
		TradeDate:      td,
		GeneratedAtJST: time.Now().In(jst()).Format("2006-01-02T15:04:05-07:00"),
		Params: map[string]any{
			"model":      modelCfg.ModelType,
			"alpha":      modelCfg.Alpha,
			"target":     modelCfg.Target,
			"train_days": r.cfg.Pipeline.TrainDays,
		},
	}
	lang := r.cfg.Pipeline.Lang
	if _, err := output.WriteAll(outDir, tradeDate, runID, gateResult, entries, manifest, wfIC, lang, r.log); err != nil {
		return nil, fmt.Errorf("write outputs: %w", err)
	}

	action := "NO_TRADE"
	if gateResult.AllPassed {
		action = "TRADE"
	}

	// Slack / fallback — best effort, never fails the run
	payload := notify.BuildPayload(td, action, wfIC, gateResult.NEligible, gateResult.RejectionReasons, entries, lang)
	notify.Send(ctx, r.httpClient, r.cfg.Slack.WebhookURL, payload, filepath.Join(outDir, "slack_payload.json"), r.log)

	if err := r.persist(ctx, runID, tradeDate, action, wfIC, wfICKnown, gateResult, entries); err != nil {
		return nil, fmt.Errorf("persist run: %w", err)
	}

	r.log.Infof("=== run complete: %s ===", outDir)
	return &Result{
		RunID:     runID,
		TradeDate: tradeDate,
		Action:    action,
		OutDir:    outDir,
		Entries:   entries,
		Gates:     gateResult,
	}, nil
}

// loadBars fetches daily bars, using the database as an incremental
// cache when available.
func (r *Runner) loadBars(ctx context.Context, start, end time.Time) ([]ingest.Bar, error) {
	if r.bars == nil {
		return r.loader.FetchDaily(ctx, start, end, nil)
	}

	fetchFrom := start
	if latest, ok, err := r.bars.LatestDate(ctx); err != nil {
		return nil, err
	} else if ok && latest.AddDate(0, 0, 1).After(start) {
		fetchFrom = latest.AddDate(0, 0, 1)
	}

	if !fetchFrom.After(end) {
		fresh, err := r.loader.FetchDaily(ctx, fetchFrom, end, nil)
		if err != nil {
			return nil, err
		}
		if err := r.bars.SaveBatch(ctx, fresh); err != nil {
			return nil, err
		}
		r.log.Infof("Cached %d fresh bars from %s", len(fresh), fetchFrom.Format("2006-01-02"))
	}

	return r.bars.GetRange(ctx, start, end)
}

func (r *Runner) persist(
	ctx context.Context,
	runID string,
	tradeDate time.Time,
	action string,
	wfIC float64,
	wfICKnown bool,
	gateResult *gates.AllResult,
	entries []watchlist.Entry,
) error {
	if r.runs != nil {
		rec := store.RunRecord{
			RunID:            runID,
			TradeDate:        tradeDate,
			Action:           action,
			NEligible:        gateResult.NEligible,
			MissingRate:      gateResult.MissingRate,
			RejectionReasons: gateResult.RejectionReasons,
		}
		if wfICKnown {
			rec.WFIC = &wfIC
		}
		if err := r.runs.Save(ctx, rec); err != nil {
			return err
		}
	}
	if r.watchlists != nil && len(entries) > 0 {
		if err := r.watchlists.Save(ctx, runID, tradeDate, entries); err != nil {
			return err
		}
	}
	return nil
}

// walkForwardIC extracts the walk-forward gate's IC. Undefined ICs
// (too little data) report as 0.0 with known=false.
func walkForwardIC(res *gates.AllResult) (ic float64, known bool) {
	g, ok := res.Gate("walk_forward")
	if !ok {
		return 0, false
	}
	v, ok := g.Details["ic"].(float64)
	if !ok {
		return 0, false
	}
	return v, true
}

func makeRunID() string {
	ts := time.Now().UTC().Format("20060102T150405")
	short := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return ts + "-" + short
}

func digestOf(barsPath string) string {
	if barsPath == "" {
		return "n/a"
	}
	if _, err := os.Stat(barsPath); err != nil {
		return "n/a"
	}
	return InputsDigest(barsPath)
}

func jst() *time.Location {
	loc, err := time.LoadLocation("Asia/Tokyo")
	if err != nil {
		return time.FixedZone("JST", 9*60*60)
	}
	return loc
}

func countTickers(bars []ingest.Bar) int {
	seen := make(map[string]struct{}, 64)
	for _, b := range bars {
		seen[b.Ticker] = struct{}{}
	}
	return len(seen)
}
