package debounce

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/shliew97/frappe-whatsapp/internal/conversation"
	"github.com/shliew97/frappe-whatsapp/pkg/logging"
)

const (
	queueKeyPrefix = "whatsapp_message_queue:"
	guardKeyPrefix = "whatsapp_processing_scheduled:"
	idsKeyPrefix   = "whatsapp_message_ids:"
)

// appendScript pushes a message unless its id is already in the batch.
// KEYS: queue, ids. ARGV: id, entry, ttl in ms.
var appendScript = redis.NewScript(`
if ARGV[1] ~= "" and redis.call("SADD", KEYS[2], ARGV[1]) == 0 then
	return 0
end
redis.call("RPUSH", KEYS[1], ARGV[2])
redis.call("PEXPIRE", KEYS[1], ARGV[3])
if ARGV[1] ~= "" then
	redis.call("PEXPIRE", KEYS[2], ARGV[3])
end
return 1
`)

// RedisBuffer keeps batches in Redis lists so every process shares them.
type RedisBuffer struct {
	client *redis.Client
	logger *logging.Logger
}

// NewRedisBuffer builds a Redis-backed buffer.
func NewRedisBuffer(client *redis.Client, logger *logging.Logger) *RedisBuffer {
	if client == nil {
		panic("debounce: redis client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &RedisBuffer{client: client, logger: logger}
}

func (b *RedisBuffer) Append(ctx context.Context, sender string, msg conversation.InboundMessage, ttl time.Duration) error {
	data, err := encodeEntry(msg)
	if err != nil {
		return err
	}
	added, err := appendScript.Run(ctx, b.client,
		[]string{queueKey(sender), idsKey(sender)},
		msg.ID, data, ttl.Milliseconds(),
	).Int()
	if err != nil {
		return fmt.Errorf("debounce: append: %w", err)
	}
	if added == 0 {
		b.logger.Debug("message already buffered", "sender", sender, "message_id", msg.ID)
	}
	return nil
}

func (b *RedisBuffer) AcquireGuard(ctx context.Context, sender string, ttl time.Duration) (bool, error) {
	ok, err := b.client.SetNX(ctx, guardKey(sender), "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("debounce: acquire guard: %w", err)
	}
	return ok, nil
}

func (b *RedisBuffer) ReleaseGuard(ctx context.Context, sender string) error {
	if err := b.client.Del(ctx, guardKey(sender)).Err(); err != nil {
		return fmt.Errorf("debounce: release guard: %w", err)
	}
	return nil
}

func (b *RedisBuffer) Drain(ctx context.Context, sender string) ([]conversation.InboundMessage, error) {
	key := queueKey(sender)
	var entries *redis.StringSliceCmd
	_, err := b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		entries = pipe.LRange(ctx, key, 0, -1)
		pipe.Del(ctx, key, idsKey(sender))
		pipe.Del(ctx, guardKey(sender))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("debounce: drain: %w", err)
	}

	raw := entries.Val()
	out := make([]conversation.InboundMessage, 0, len(raw))
	for _, entry := range raw {
		var msg conversation.InboundMessage
		if err := json.Unmarshal([]byte(entry), &msg); err != nil {
			b.logger.Warn("dropping malformed buffered message", "sender", sender, "error", err)
			continue
		}
		out = append(out, msg)
	}
	return out, nil
}

func queueKey(sender string) string { return queueKeyPrefix + sender }
func guardKey(sender string) string { return guardKeyPrefix + sender }
func idsKey(sender string) string   { return idsKeyPrefix + sender }
