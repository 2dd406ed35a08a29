package commands

import (
	"context"
	"fmt"

	"github.com/sora-lab/inga-quant/internal/ingest"
	"github.com/sora-lab/inga-quant/internal/store"
	"github.com/sora-lab/inga-quant/pkg/config"
	"github.com/sora-lab/inga-quant/pkg/database"
	"github.com/sora-lab/inga-quant/pkg/httputil"
	"github.com/sora-lab/inga-quant/pkg/logger"
	"github.com/sora-lab/inga-quant/pkg/redis"
)

// loadConfig loads configuration and builds the logger
func loadConfig() (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	return cfg, logger.New(cfg), nil
}

// newJQuantsLoader builds the production loader with request pacing and
// an optional Redis master cache.
func newJQuantsLoader(cfg *config.Config, log *logger.Logger) (*ingest.JQuantsLoader, *redis.Client, error) {
	httpClient := httputil.New(log).WithPacing(cfg.JQuants.RequestInterval)

	var cache *redis.Cache
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = redis.New(cfg, log)
		cache = redis.NewCache(redisClient, "inga")
	}

	loader, err := ingest.NewJQuantsLoader(cfg.JQuants.APIKey, cfg.JQuants.BaseURL, httpClient, cache, log)
	if err != nil {
		if redisClient != nil {
			redisClient.Close()
		}
		return nil, nil, err
	}
	return loader, redisClient, nil
}

// repositories bundles the Postgres-backed stores
type repositories struct {
	db         *database.DB
	bars       *store.BarRepository
	runs       *store.RunRepository
	watchlists *store.WatchlistRepository
}

// openStore connects to Postgres and ensures the schema. Returns nil
// when no DATABASE_URL is configured — demo mode runs without it.
func openStore(ctx context.Context, cfg *config.Config, log *logger.Logger) (*repositories, error) {
	if !cfg.HasDatabase() {
		log.Info("No DATABASE_URL configured — running without persistence")
		return nil, nil
	}

	db, err := database.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := store.EnsureSchema(ctx, db.Pool); err != nil {
		db.Close()
		return nil, err
	}
	log.Info("Connected to database")

	return &repositories{
		db:         db,
		bars:       store.NewBarRepository(db.Pool),
		runs:       store.NewRunRepository(db.Pool),
		watchlists: store.NewWatchlistRepository(db.Pool),
	}, nil
}
