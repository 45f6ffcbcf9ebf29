package drafts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/shliew97/frappe-whatsapp/internal/booking"
)

const redisKeyPrefix = "pending_booking:"

// RedisStore keeps drafts as JSON strings with a TTL.
type RedisStore struct {
	client *redis.Client
	tracer trace.Tracer
}

// NewRedisStore builds a Redis-backed store.
func NewRedisStore(client *redis.Client) *RedisStore {
	if client == nil {
		panic("drafts: redis client cannot be nil")
	}
	return &RedisStore{client: client, tracer: otel.Tracer("gateway.internal.drafts.redis")}
}

func (s *RedisStore) Get(ctx context.Context, sender string) (*booking.Draft, error) {
	ctx, span := s.tracer.Start(ctx, "drafts.redis.get", trace.WithAttributes(attribute.String("sender", sender)))
	defer span.End()

	data, err := s.client.Get(ctx, redisKey(sender)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("drafts: redis get: %w", err)
	}
	return decodeDraft(data)
}

func (s *RedisStore) Set(ctx context.Context, sender string, draft *booking.Draft, ttl time.Duration) error {
	ctx, span := s.tracer.Start(ctx, "drafts.redis.set", trace.WithAttributes(attribute.String("sender", sender)))
	defer span.End()

	data, err := encodeDraft(draft)
	if err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if err := s.client.Set(ctx, redisKey(sender), data, ttl).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("drafts: redis set: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, sender string) error {
	if err := s.client.Del(ctx, redisKey(sender)).Err(); err != nil {
		return fmt.Errorf("drafts: redis delete: %w", err)
	}
	return nil
}

func redisKey(sender string) string {
	return redisKeyPrefix + sender
}
