package bootstrap

import (
	"context"
	"crypto/tls"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	appconfig "github.com/shliew97/frappe-whatsapp/internal/config"
	"github.com/shliew97/frappe-whatsapp/pkg/logging"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// BuildPostgresPool connects to DATABASE_URL. It returns nil when no URL is
// configured or the database cannot be reached.
func BuildPostgresPool(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) *pgxpool.Pool {
	if cfg == nil || strings.TrimSpace(cfg.DatabaseURL) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	pool, err := pgxpool.New(connectCtx, cfg.DatabaseURL)
	if err != nil {
		logger.Warn("postgres pool init failed", "error", err)
		return nil
	}
	if err := pool.Ping(connectCtx); err != nil {
		logger.Warn("postgres not available", "error", err)
		pool.Close()
		return nil
	}
	return pool
}

// BusinessLocation resolves BUSINESS_TIMEZONE, falling back to UTC+8.
func BusinessLocation(cfg *appconfig.Config, logger *logging.Logger) *time.Location {
	name := "Asia/Kuala_Lumpur"
	if cfg != nil && strings.TrimSpace(cfg.BusinessTimezone) != "" {
		name = strings.TrimSpace(cfg.BusinessTimezone)
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		if logger != nil {
			logger.Warn("unknown business timezone, using UTC+8", "timezone", name, "error", err)
		}
		return time.FixedZone("UTC+8", 8*60*60)
	}
	return loc
}
