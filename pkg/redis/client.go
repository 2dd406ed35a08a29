package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/sora-lab/inga-quant/pkg/config"
	"github.com/sora-lab/inga-quant/pkg/logger"
)

// Client wraps go-redis with an enabled flag so callers can treat a missing
// Redis as a cache miss rather than an error
// ⭐ SSOT: Redis 연결은 이 패키지에서만 생성
type Client struct {
	rdb     *goredis.Client
	enabled bool
	logger  *logger.Logger
}

// New creates a new Redis client from config.
// When Redis is disabled in config, the returned client is a no-op.
func New(cfg *config.Config, log *logger.Logger) *Client {
	if !cfg.Redis.Enabled {
		log.Debug("Redis disabled — caching is a no-op")
		return &Client{enabled: false, logger: log}
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Redis.Host, cfg.Redis.Port),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		log.WithError(err).Warn("Redis ping failed — continuing without cache")
		return &Client{enabled: false, logger: log}
	}

	log.WithFields(map[string]interface{}{
		"host": cfg.Redis.Host,
		"port": cfg.Redis.Port,
	}).Info("Redis connected")

	return &Client{rdb: rdb, enabled: true, logger: log}
}

// Enabled reports whether Redis is available
func (c *Client) Enabled() bool {
	return c != nil && c.enabled
}

// Redis returns the underlying go-redis client
func (c *Client) Redis() *goredis.Client {
	return c.rdb
}

// Close closes the connection
func (c *Client) Close() error {
	if !c.Enabled() {
		return nil
	}
	return c.rdb.Close()
}
