package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/sora-lab/inga-quant/internal/ingest"
)

// smokeCheckCmd represents the smoke-check command
var smokeCheckCmd = &cobra.Command{
	Use:   "smoketest",
	Short: "J-Quants V2 API 接続確認",
	Long: `J-Quants V2 API キーの疎通確認を行います（3行以内の出力）。

Example:
  go run ./cmd/inga smoketest`,
	RunE: runSmokeCheck,
}

func init() {
	rootCmd.AddCommand(smokeCheckCmd)
}

func runSmokeCheck(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}

	loader, redisClient, err := newJQuantsLoader(cfg, log)
	if err != nil {
		var authErr *ingest.AuthError
		if errors.As(err, &authErr) {
			fmt.Fprintf(os.Stderr, "J-Quants API: 認証エラー — %s\n", authErr.Message)
			return err
		}
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := loader.CheckConnectivity(ctx); err != nil {
		var authErr *ingest.AuthError
		if errors.As(err, &authErr) {
			fmt.Fprintf(os.Stderr, "J-Quants API: 認証エラー — %s\n", authErr.Message)
		} else {
			fmt.Println("J-Quants API: 接続失敗（ネットワークまたはサーバーエラー）")
		}
		return err
	}

	fmt.Println("J-Quants API: OK")
	return nil
}
