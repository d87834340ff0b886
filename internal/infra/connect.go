package infra

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/chatpay/chatpay/internal/config"
)

// Conns holds the optional backend connections. Either field is nil when its
// URL is not configured.
type Conns struct {
	DB    *pgxpool.Pool
	Cache *redis.Client

	logger *slog.Logger
}

// Connect opens whichever of Postgres and Redis cfg names. Outside development a
// missing URL has already been rejected by config validation.
func Connect(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Conns, error) {
	c := &Conns{logger: logger}
	if cfg.DatabaseURL != "" {
		db, err := NewPostgresPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		c.DB = db
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory repositories")
	}
	if cfg.RedisURL != "" {
		cache, err := NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			c.Close()
			return nil, err
		}
		c.Cache = cache
	} else {
		logger.Warn("REDIS_URL not set, webhook dedupe disabled")
	}
	return c, nil
}

// Close releases both connections.
func (c *Conns) Close() {
	if c.DB != nil {
		c.DB.Close()
	}
	if c.Cache != nil {
		if err := c.Cache.Close(); err != nil {
			c.logger.Warn("close redis", "error", err)
		}
	}
}
