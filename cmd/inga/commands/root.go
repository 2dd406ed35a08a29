package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "inga",
	Short: "inga-quant - 日本株の日次トレード判定パイプライン",
	Long: `inga-quant Unified CLI

J-Quants のデータから品質ゲート・モデル検証・ウォッチリスト構築を行い、
日次の TRADE / NO_TRADE 判定レポートを生成します。

Usage:
  go run ./cmd/inga [command]

Examples:
  go run ./cmd/inga run --demo --demo-bars tests/bars.csv
  go run ./cmd/inga run --as-of 2026-02-13
  go run ./cmd/inga smoketest
  go run ./cmd/inga serve`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
