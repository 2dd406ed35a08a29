package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sora-lab/inga-quant/internal/api"
	"github.com/sora-lab/inga-quant/internal/api/handlers"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "API サーバー起動",
	Long: `判定結果を提供する REST API サーバーを起動します。

Endpoints:
  GET  /health                 - Health check
  GET  /api/decision/latest    - 最新の TRADE / NO_TRADE 判定
  GET  /api/watchlist/latest   - 最新のウォッチリスト

Example:
  go run ./cmd/inga serve
  go run ./cmd/inga serve --port 8091`,
	RunE: runServe,
}

var servePort string

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&servePort, "port", "", "API サーバーポート (default: PORT env)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	if servePort != "" {
		cfg.Port = servePort
	}

	ctx := context.Background()
	repos, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	if repos == nil {
		return fmt.Errorf("serve requires DATABASE_URL to be configured")
	}
	defer repos.db.Close()

	decisionHandler := handlers.NewDecisionHandler(repos.runs, repos.watchlists, log)
	router := api.NewRouter(decisionHandler, log)
	server := api.New(cfg, log, router)

	go func() {
		if err := server.Start(); err != nil {
			log.WithError(err).Fatal("Failed to start server")
		}
	}()

	fmt.Printf("✅ Server running on http://localhost:%s\n", cfg.Port)
	fmt.Println("Press Ctrl+C to stop")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info("Server stopped")
	return nil
}
