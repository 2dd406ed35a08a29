// Package output renders the daily run artifacts: decision card,
// watchlist CSV, quality report, manifest and report.md.
package output

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sora-lab/inga-quant/internal/gates"
	"github.com/sora-lab/inga-quant/internal/i18n"
	"github.com/sora-lab/inga-quant/internal/watchlist"
	"github.com/sora-lab/inga-quant/pkg/logger"
)

// SchemaVersion tags the decision card layout
const SchemaVersion = "2"

// Manifest records run provenance for reproducibility audits
type Manifest struct {
	RunID          string         `json:"run_id"`
	CodeHash       string         `json:"code_hash"`
	InputsDigest   string         `json:"inputs_digest"`
	AsOf           string         `json:"as_of"`
	DataAsOf       string         `json:"data_asof"`
	TradeDate      string         `json:"trade_date"`
	GeneratedAtJST string         `json:"generated_at_jst"`
	Params         map[string]any `json:"params"`
}

// Paths lists where each artifact was written
type Paths struct {
	DecisionCard  string
	Watchlist     string
	QualityReport string
	Manifest      string
	Report        string
}

type cardEntry struct {
	Rank        int     `json:"rank"`
	Ticker      string  `json:"ticker"`
	Score       float64 `json:"score"`
	ReasonShort string  `json:"reason_short"`
}

type keyMetrics struct {
	Confidence  float64 `json:"confidence"`
	WFIC        float64 `json:"wf_ic"`
	NEligible   int     `json:"n_eligible"`
	MissingRate float64 `json:"missing_rate"`
}

type decisionCard struct {
	SchemaVersion  string      `json:"schema_version"`
	TradeDate      string      `json:"trade_date"`
	RunID          string      `json:"run_id"`
	Action         string      `json:"action"`
	NoTradeReasons []string    `json:"no_trade_reasons"`
	Top3           []cardEntry `json:"top3"`
	KeyMetrics     keyMetrics  `json:"key_metrics"`
}

type qualityReport struct {
	TradeDate        string                    `json:"trade_date"`
	RunID            string                    `json:"run_id"`
	AllPassed        bool                      `json:"all_passed"`
	MissingRate      float64                   `json:"missing_rate"`
	NEligible        int                       `json:"n_eligible"`
	Gates            map[string]map[string]any `json:"gates"`
	RejectionReasons []string                  `json:"rejection_reasons"`
}

// WriteAll writes every artifact for one run into dir. Returns the
// written paths.
func WriteAll(
	dir string,
	tradeDate time.Time,
	runID string,
	gateResult *gates.AllResult,
	entries []watchlist.Entry,
	manifest Manifest,
	wfIC float64,
	lang string,
	log *logger.Logger,
) (Paths, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Paths{}, fmt.Errorf("create output dir: %w", err)
	}
	td := tradeDate.Format("2006-01-02")

	var p Paths
	var err error

	if p.DecisionCard, err = writeDecisionCard(dir, td, runID, gateResult, entries, wfIC, log); err != nil {
		return p, err
	}
	if p.Watchlist, err = writeWatchlistCSV(dir, td, entries, log); err != nil {
		return p, err
	}
	if p.QualityReport, err = writeQualityReport(dir, td, runID, gateResult, log); err != nil {
		return p, err
	}
	if p.Manifest, err = writeManifest(dir, runID, manifest, log); err != nil {
		return p, err
	}
	if p.Report, err = writeReportMD(dir, td, runID, gateResult, entries, wfIC, lang, log); err != nil {
		return p, err
	}
	return p, nil
}

// writeDecisionCard emits the one-screen trade/no-trade summary.
// confidence is clipped at zero for display; wf_ic keeps the raw,
// possibly negative statistic.
func writeDecisionCard(
	dir, td, runID string,
	gateResult *gates.AllResult,
	entries []watchlist.Entry,
	wfIC float64,
	log *logger.Logger,
) (string, error) {
	action := actionOf(gateResult)

	top3 := make([]cardEntry, 0, 3)
	for i, e := range entries {
		if i >= 3 {
			break
		}
		top3 = append(top3, cardEntry{
			Rank:        i + 1,
			Ticker:      e.Ticker,
			Score:       round6(e.Score),
			ReasonShort: e.ReasonShort,
		})
	}

	card := decisionCard{
		SchemaVersion:  SchemaVersion,
		TradeDate:      td,
		RunID:          runID,
		Action:         action,
		NoTradeReasons: notNil(gateResult.RejectionReasons),
		Top3:           top3,
		KeyMetrics: keyMetrics{
			Confidence:  round6(math.Max(wfIC, 0)),
			WFIC:        round6(wfIC),
			NEligible:   gateResult.NEligible,
			MissingRate: round4(gateResult.MissingRate),
		},
	}

	path := filepath.Join(dir, fmt.Sprintf("decision_card_%s.json", td))
	if err := writeJSON(path, card); err != nil {
		return "", err
	}
	log.Infof("Written decision_card: %s (action=%s)", path, action)
	return path, nil
}

func writeWatchlistCSV(dir, td string, entries []watchlist.Entry, log *logger.Logger) (string, error) {
	path := filepath.Join(dir, fmt.Sprintf("watchlist_50_%s.csv", td))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create watchlist csv: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"code", "name", "score", "reason_short", "is_new", "turnover_penalty"}); err != nil {
		return "", err
	}
	for _, e := range entries {
		isNew := "0"
		if e.IsNew {
			isNew = "1"
		}
		rec := []string{
			e.Ticker,
			e.Name,
			formatFloat(round6(e.Score)),
			e.ReasonShort,
			isNew,
			formatFloat(round6(e.TurnoverPenalty)),
		}
		if err := w.Write(rec); err != nil {
			return "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("write watchlist csv: %w", err)
	}
	log.Infof("Written watchlist_50: %s (%d entries)", path, len(entries))
	return path, nil
}

func writeQualityReport(dir, td, runID string, gateResult *gates.AllResult, log *logger.Logger) (string, error) {
	gateMap := make(map[string]map[string]any, len(gateResult.Gates))
	for _, g := range gateResult.Gates {
		entry := map[string]any{
			"passed": g.Passed,
			"reason": g.Reason,
		}
		for k, v := range g.Details {
			entry[k] = v
		}
		gateMap[g.Name] = entry
	}

	report := qualityReport{
		TradeDate:        td,
		RunID:            runID,
		AllPassed:        gateResult.AllPassed,
		MissingRate:      round4(gateResult.MissingRate),
		NEligible:        gateResult.NEligible,
		Gates:            gateMap,
		RejectionReasons: notNil(gateResult.RejectionReasons),
	}

	path := filepath.Join(dir, fmt.Sprintf("quality_report_%s.json", td))
	if err := writeJSON(path, report); err != nil {
		return "", err
	}
	log.Infof("Written quality_report: %s (all_passed=%t)", path, gateResult.AllPassed)
	return path, nil
}

func writeManifest(dir, runID string, manifest Manifest, log *logger.Logger) (string, error) {
	path := filepath.Join(dir, fmt.Sprintf("manifest_%s.json", runID))
	if err := writeJSON(path, manifest); err != nil {
		return "", err
	}
	log.Infof("Written manifest: %s", path)
	return path, nil
}

func writeReportMD(
	dir, td, runID string,
	gateResult *gates.AllResult,
	entries []watchlist.Entry,
	wfIC float64,
	lang string,
	log *logger.Logger,
) (string, error) {
	action := actionOf(gateResult)

	var b strings.Builder
	line := func(format string, args ...any) {
		fmt.Fprintf(&b, format+"\n", args...)
	}

	line(i18n.T("report_title", lang), td)
	line("")
	line("**run_id**: `%s`", runID)
	line("**action**: **%s**", action)
	line("")

	if len(gateResult.RejectionReasons) > 0 {
		line(i18n.T("no_trade_reasons_hd", lang))
		line("")
		for _, r := range gateResult.RejectionReasons {
			line("- %s", r)
		}
		line("")
	}

	line(i18n.T("key_metrics_hd", lang))
	line("")
	line("| %s | %s |", i18n.T("col_metric", lang), i18n.T("col_value", lang))
	line("|--------|-------|")
	line("| %s | %.4f |", i18n.T("lbl_wf_ic", lang), wfIC)
	line("| %s | %d |", i18n.T("lbl_eligible", lang), gateResult.NEligible)
	line("| %s | %.1f%% |", i18n.T("lbl_missing", lang), gateResult.MissingRate*100)
	line("")
	line(i18n.T("quality_gates_hd", lang))
	line("")
	line("| %s | %s |", i18n.T("col_gate", lang), i18n.T("col_result", lang))
	line("|------|--------|")
	for _, g := range gateResult.Gates {
		status := i18n.T("fail", lang)
		if g.Passed {
			status = i18n.T("pass", lang)
		}
		line("| %s | %s |", g.Name, status)
	}

	line("")
	line(i18n.T("watchlist_hd", lang))
	line("")
	if len(entries) > 0 {
		line("| %s | %s | %s | %s | %s |",
			i18n.T("col_rank", lang), i18n.T("col_ticker", lang),
			i18n.T("col_score", lang), i18n.T("col_new", lang), i18n.T("col_reason", lang))
		line("|------|--------|-------|------|--------|")
		for i, e := range entries {
			if i >= 10 {
				break
			}
			newMarker := ""
			if e.IsNew {
				newMarker = "★"
			}
			line("| %d | %s | %.4f | %s | %s |", i+1, e.Ticker, e.Score, newMarker, e.ReasonShort)
		}
	} else {
		line(i18n.T("no_entries", lang))
	}

	path := filepath.Join(dir, fmt.Sprintf("report_%s.md", td))
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	log.Infof("Written report: %s", path)
	return path, nil
}

func actionOf(gateResult *gates.AllResult) string {
	if gateResult.AllPassed {
		return "TRADE"
	}
	return "NO_TRADE"
}

// writeJSON writes pretty-printed UTF-8 JSON without HTML escaping so
// Japanese text stays readable.
func writeJSON(path string, data any) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func notNil(xs []string) []string {
	if xs == nil {
		return []string{}
	}
	return xs
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
