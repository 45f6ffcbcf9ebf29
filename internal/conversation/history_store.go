package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const (
	historyTTL      = 24 * time.Hour
	historyMaxTurns = 40
)

// HistoryStore keeps a short rolling transcript per sender in Redis.
type HistoryStore struct {
	redis  *redis.Client
	tracer trace.Tracer
	ttl    time.Duration
	limit  int64
}

// NewHistoryStore builds a store; a nil tracer uses the global provider.
func NewHistoryStore(client *redis.Client, tracer trace.Tracer) *HistoryStore {
	if client == nil {
		panic("conversation: redis client cannot be nil")
	}
	if tracer == nil {
		tracer = otel.Tracer("gateway.internal.conversation.history")
	}
	return &HistoryStore{
		redis:  client,
		tracer: tracer,
		ttl:    historyTTL,
		limit:  historyMaxTurns,
	}
}

// Append records one message and trims the transcript to the newest entries.
func (s *HistoryStore) Append(ctx context.Context, sender string, msg ChatMessage) error {
	ctx, span := s.tracer.Start(ctx, "conversation.append_history")
	defer span.End()

	data, err := json.Marshal(msg)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: failed to marshal history entry: %w", err)
	}
	key := historyKey(sender)
	pipe := s.redis.TxPipeline()
	pipe.RPush(ctx, key, data)
	pipe.LTrim(ctx, key, -s.limit, -1)
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: failed to persist history: %w", err)
	}
	return nil
}

// Recent returns up to n of the newest messages, oldest first.
// A sender without history yields an empty slice.
func (s *HistoryStore) Recent(ctx context.Context, sender string, n int) ([]ChatMessage, error) {
	ctx, span := s.tracer.Start(ctx, "conversation.load_history")
	defer span.End()

	if n <= 0 {
		n = int(s.limit)
	}
	raw, err := s.redis.LRange(ctx, historyKey(sender), int64(-n), -1).Result()
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("conversation: failed to load history: %w", err)
	}
	history := make([]ChatMessage, 0, len(raw))
	for _, item := range raw {
		var msg ChatMessage
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			span.RecordError(err)
			continue
		}
		history = append(history, msg)
	}
	return history, nil
}

// Clear drops the transcript for sender.
func (s *HistoryStore) Clear(ctx context.Context, sender string) error {
	if err := s.redis.Del(ctx, historyKey(sender)).Err(); err != nil {
		return fmt.Errorf("conversation: failed to clear history: %w", err)
	}
	return nil
}

func historyKey(sender string) string {
	return fmt.Sprintf("whatsapp_history:%s", sender)
}
