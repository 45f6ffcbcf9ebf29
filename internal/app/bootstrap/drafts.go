package bootstrap

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	appconfig "github.com/shliew97/frappe-whatsapp/internal/config"
	"github.com/shliew97/frappe-whatsapp/internal/drafts"
	"github.com/shliew97/frappe-whatsapp/pkg/logging"
)

// StoreDeps are the clients a draft store may be built on. Any may be nil.
type StoreDeps struct {
	Redis    *redis.Client
	Postgres *pgxpool.Pool
	AWS      *aws.Config
}

// BuildDraftStore selects the conversation state store named by DRAFT_STORE.
// Durable stores get the Redis store as a read-through cache when Redis is up.
func BuildDraftStore(cfg *appconfig.Config, deps StoreDeps, logger *logging.Logger) (drafts.Store, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	var primary drafts.Store
	switch cfg.DraftStore {
	case "memory":
		logger.Warn("using in-memory draft store; drafts are lost on restart")
		return drafts.NewMemoryStore(), nil
	case "redis", "":
		if deps.Redis == nil {
			return nil, fmt.Errorf("bootstrap: draft store redis requires REDIS_ADDR")
		}
		logger.Info("draft store configured", "backend", "redis")
		return drafts.NewRedisStore(deps.Redis), nil
	case "postgres":
		if deps.Postgres == nil {
			return nil, fmt.Errorf("bootstrap: draft store postgres requires a reachable DATABASE_URL")
		}
		primary = drafts.NewPostgresStore(deps.Postgres)
	case "dynamodb":
		if deps.AWS == nil {
			return nil, fmt.Errorf("bootstrap: draft store dynamodb requires AWS config")
		}
		primary = drafts.NewDynamoStore(dynamodb.NewFromConfig(*deps.AWS), cfg.DraftsTable)
	default:
		return nil, fmt.Errorf("bootstrap: unknown draft store %q", cfg.DraftStore)
	}

	if deps.Redis == nil {
		logger.Info("draft store configured", "backend", cfg.DraftStore, "cache", false)
		return primary, nil
	}
	logger.Info("draft store configured", "backend", cfg.DraftStore, "cache", true, "cache_ttl", cfg.DraftCacheTTL.String())
	return drafts.NewFallbackStore(primary, drafts.NewRedisStore(deps.Redis), cfg.DraftCacheTTL, logger), nil
}
