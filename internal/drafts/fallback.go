package drafts

import (
	"context"
	"errors"
	"time"

	"github.com/shliew97/frappe-whatsapp/internal/booking"
	"github.com/shliew97/frappe-whatsapp/pkg/logging"
)

// FallbackStore writes through to a durable primary and a TTL-bounded cache.
// Reads go to the primary and only fall back to the cache when the primary
// errors, so a draft survives a primary outage for up to cacheTTL.
type FallbackStore struct {
	primary  Store
	cache    Store
	cacheTTL time.Duration
	logger   *logging.Logger
}

// NewFallbackStore composes primary and cache. A non-positive cacheTTL uses DefaultTTL.
func NewFallbackStore(primary, cache Store, cacheTTL time.Duration, logger *logging.Logger) *FallbackStore {
	if primary == nil || cache == nil {
		panic("drafts: primary and cache stores are required")
	}
	if cacheTTL <= 0 {
		cacheTTL = DefaultTTL
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &FallbackStore{primary: primary, cache: cache, cacheTTL: cacheTTL, logger: logger}
}

func (s *FallbackStore) Get(ctx context.Context, sender string) (*booking.Draft, error) {
	draft, err := s.primary.Get(ctx, sender)
	if err == nil {
		return draft, nil
	}
	s.logger.Warn("primary draft store unavailable, reading cache", "error", err, "sender", sender)
	cached, cacheErr := s.cache.Get(ctx, sender)
	if cacheErr != nil {
		return nil, errors.Join(err, cacheErr)
	}
	return cached, nil
}

func (s *FallbackStore) Set(ctx context.Context, sender string, draft *booking.Draft, ttl time.Duration) error {
	primaryErr := s.primary.Set(ctx, sender, draft, ttl)
	cacheTTL := s.cacheTTL
	if ttl > 0 && ttl < cacheTTL {
		cacheTTL = ttl
	}
	cacheErr := s.cache.Set(ctx, sender, draft, cacheTTL)

	switch {
	case primaryErr != nil && cacheErr != nil:
		return errors.Join(primaryErr, cacheErr)
	case primaryErr != nil:
		s.logger.Warn("primary draft store unavailable, draft kept in cache only", "error", primaryErr, "sender", sender)
	case cacheErr != nil:
		// The cache must never serve an older draft than the primary holds.
		if delErr := s.cache.Delete(ctx, sender); delErr != nil {
			s.logger.Error("draft cache write failed and stale entry could not be removed", "error", errors.Join(cacheErr, delErr), "sender", sender)
		} else {
			s.logger.Warn("draft cache write failed, cached entry removed", "error", cacheErr, "sender", sender)
		}
	}
	return nil
}

func (s *FallbackStore) Delete(ctx context.Context, sender string) error {
	primaryErr := s.primary.Delete(ctx, sender)
	cacheErr := s.cache.Delete(ctx, sender)
	if cacheErr != nil {
		s.logger.Error("draft cache delete failed", "error", cacheErr, "sender", sender)
	}
	return primaryErr
}
