package commands

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sora-lab/inga-quant/internal/features"
	"github.com/sora-lab/inga-quant/internal/ingest"
)

// featuresCmd represents the features command
var featuresCmd = &cobra.Command{
	Use:   "features",
	Short: "特徴量 CSV 構築",
	Long: `日足バー CSV から特徴量テーブルを構築し、CSV として出力します。

Example:
  go run ./cmd/inga features --bars data/bars.csv --as-of 2026-02-13 --out output`,
	RunE: runBuildFeatures,
}

var (
	featuresBars string
	featuresAsOf string
	featuresOut  string
)

func init() {
	rootCmd.AddCommand(featuresCmd)

	featuresCmd.Flags().StringVar(&featuresBars, "bars", "", "Path to bars CSV (required)")
	featuresCmd.Flags().StringVar(&featuresAsOf, "as-of", "", "Cutoff date YYYY-MM-DD (required)")
	featuresCmd.Flags().StringVar(&featuresOut, "out", "output", "Output directory")
	featuresCmd.MarkFlagRequired("bars")
	featuresCmd.MarkFlagRequired("as-of")
}

func runBuildFeatures(cmd *cobra.Command, args []string) error {
	asOf, err := time.ParseInLocation("2006-01-02", featuresAsOf, time.UTC)
	if err != nil {
		return fmt.Errorf("invalid --as-of date %q: %w", featuresAsOf, err)
	}

	loader := ingest.NewDemoLoader(featuresBars)
	bars, err := loader.FetchDaily(context.Background(), asOf.AddDate(-10, 0, 0), asOf, nil)
	if err != nil {
		return err
	}

	rows := features.Build(bars, nil)
	if len(rows) == 0 {
		return fmt.Errorf("no feature rows built from %s", featuresBars)
	}

	// Stable column order: union of feature names, sorted
	colSet := make(map[string]struct{})
	for _, r := range rows {
		for name := range r.Features {
			colSet[name] = struct{}{}
		}
	}
	cols := make([]string, 0, len(colSet))
	for name := range colSet {
		cols = append(cols, name)
	}
	sort.Strings(cols)

	if err := os.MkdirAll(featuresOut, 0o755); err != nil {
		return err
	}
	outPath := filepath.Join(featuresOut, "features_daily.csv")
	f, err := os.Create(outPath)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := append([]string{"as_of", "ticker", "market_regime", "quality_flags"}, cols...)
	header = append(header, "forward_return_5d")
	if err := w.Write(header); err != nil {
		return err
	}
	for _, r := range rows {
		rec := []string{
			r.AsOf.Format("2006-01-02"),
			r.Ticker,
			r.Regime,
			strings.Join(r.Flags, ";"),
		}
		for _, name := range cols {
			if v, ok := r.Features[name]; ok {
				rec = append(rec, strconv.FormatFloat(v, 'g', -1, 64))
			} else {
				rec = append(rec, "")
			}
		}
		if r.Target != nil {
			rec = append(rec, strconv.FormatFloat(*r.Target, 'g', -1, 64))
		} else {
			rec = append(rec, "")
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}

	fmt.Printf("Written %d rows → %s\n", len(rows), outPath)
	return nil
}
