package requirements

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"casebook/internal/platform/metrics"
	"casebook/internal/platform/redis"
)

// CachedStore decorates a Store with a Redis read-through cache. Cache
// failures degrade to the underlying store; they never fail the lookup.
type CachedStore struct {
	inner   Store
	redis   *redis.Client
	ttl     time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewCachedStore wraps inner with caching. client may be nil, in which case
// every lookup goes straight through.
func NewCachedStore(inner Store, client *redis.Client, ttl time.Duration, logger *slog.Logger, m *metrics.Metrics) *CachedStore {
	return &CachedStore{inner: inner, redis: client, ttl: ttl, logger: logger, metrics: m}
}

func cacheKey(entityType string) string {
	return "requirements:" + entityType
}

func (s *CachedStore) ForEntityType(ctx context.Context, entityType string) (*Template, error) {
	if s.redis == nil {
		return s.inner.ForEntityType(ctx, entityType)
	}

	raw, err := s.redis.Get(ctx, cacheKey(entityType)).Bytes()
	if err == nil {
		var tmpl Template
		if err := json.Unmarshal(raw, &tmpl); err == nil {
			if s.metrics != nil {
				s.metrics.RecordRequirementsHit()
			}
			return &tmpl, nil
		}
		s.logger.WarnContext(ctx, "stale requirements cache entry", "entity_type", entityType)
	} else if !errors.Is(err, goredis.Nil) {
		s.logger.WarnContext(ctx, "requirements cache read failed", "error", err)
	}
	if s.metrics != nil {
		s.metrics.RecordRequirementsMiss()
	}

	tmpl, err := s.inner.ForEntityType(ctx, entityType)
	if err != nil {
		return nil, err
	}
	if encoded, err := json.Marshal(tmpl); err == nil {
		if err := s.redis.Set(ctx, cacheKey(entityType), encoded, s.ttl).Err(); err != nil {
			s.logger.WarnContext(ctx, "requirements cache write failed", "error", err)
		}
	}
	return tmpl, nil
}

func (s *CachedStore) EntityTypes(ctx context.Context) ([]string, error) {
	return s.inner.EntityTypes(ctx)
}
