package conversation

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"
)

const knowledgeKeyPrefix = "rag:docs:"

// GlobalTopic holds knowledge shared by every outlet.
const GlobalTopic = "global"

// KnowledgeRepository persists answer snippets grouped by topic (an outlet name or GlobalTopic).
type KnowledgeRepository interface {
	AppendDocuments(ctx context.Context, topic string, docs []string) error
	ReplaceDocuments(ctx context.Context, topic string, docs []string) error
	GetDocuments(ctx context.Context, topic string) ([]string, error)
}

// RedisKnowledgeRepository stores raw documents in Redis lists.
type RedisKnowledgeRepository struct {
	client *redis.Client
}

// NewRedisKnowledgeRepository creates a Redis-backed knowledge repo.
func NewRedisKnowledgeRepository(client *redis.Client) *RedisKnowledgeRepository {
	if client == nil {
		panic("conversation: redis client cannot be nil")
	}
	return &RedisKnowledgeRepository{client: client}
}

// AppendDocuments pushes new snippets onto the topic's list.
func (r *RedisKnowledgeRepository) AppendDocuments(ctx context.Context, topic string, docs []string) error {
	if len(docs) == 0 {
		return nil
	}
	if err := r.client.RPush(ctx, knowledgeKey(topic), toArgs(docs)...).Err(); err != nil {
		return fmt.Errorf("conversation: failed to push knowledge: %w", err)
	}
	return nil
}

// ReplaceDocuments overwrites all snippets for the topic.
func (r *RedisKnowledgeRepository) ReplaceDocuments(ctx context.Context, topic string, docs []string) error {
	key := knowledgeKey(topic)
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, key)
	if len(docs) > 0 {
		pipe.RPush(ctx, key, toArgs(docs)...)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("conversation: failed to replace knowledge: %w", err)
	}
	return nil
}

// GetDocuments retrieves all snippets for the topic.
func (r *RedisKnowledgeRepository) GetDocuments(ctx context.Context, topic string) ([]string, error) {
	docs, err := r.client.LRange(ctx, knowledgeKey(topic), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("conversation: failed to load knowledge: %w", err)
	}
	return docs, nil
}

// RankDocuments orders docs by word overlap with query and keeps the best limit.
// Docs with no overlap are dropped unless nothing matches at all.
func RankDocuments(docs []string, query string, limit int) []string {
	terms := tokenize(query)
	type scored struct {
		doc   string
		score int
		idx   int
	}
	ranked := make([]scored, 0, len(docs))
	for i, doc := range docs {
		words := tokenize(doc)
		score := 0
		for term := range terms {
			if _, ok := words[term]; ok {
				score++
			}
		}
		ranked = append(ranked, scored{doc: doc, score: score, idx: i})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	out := make([]string, 0, limit)
	for _, r := range ranked {
		if len(out) == limit {
			break
		}
		if r.score == 0 && len(out) > 0 {
			break
		}
		out = append(out, r.doc)
	}
	return out
}

var stopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "is": {}, "are": {}, "what": {}, "your": {}, "you": {},
	"do": {}, "does": {}, "i": {}, "to": {}, "of": {}, "and": {}, "for": {}, "in": {}, "at": {},
}

func tokenize(text string) map[string]struct{} {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	out := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if _, stop := stopWords[f]; stop || len(f) < 2 {
			continue
		}
		out[f] = struct{}{}
	}
	return out
}

func toArgs(docs []string) []interface{} {
	args := make([]interface{}, len(docs))
	for i, d := range docs {
		args[i] = d
	}
	return args
}

func knowledgeKey(topic string) string {
	if strings.TrimSpace(topic) == "" {
		topic = GlobalTopic
	}
	return knowledgeKeyPrefix + strings.ToLower(topic)
}
