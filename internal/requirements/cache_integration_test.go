//go:build integration

package requirements_test

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"casebook/internal/platform/config"
	"casebook/internal/platform/redis"
	"casebook/internal/requirements"
	"casebook/pkg/testutil/containers"
)

// countingStore wraps a Store and counts how often lookups reach it, so the
// tests can tell cache hits from read-through misses.
type countingStore struct {
	inner requirements.Store
	reads atomic.Int32
}

func (s *countingStore) ForEntityType(ctx context.Context, entityType string) (*requirements.Template, error) {
	s.reads.Add(1)
	return s.inner.ForEntityType(ctx, entityType)
}

func (s *countingStore) EntityTypes(ctx context.Context) ([]string, error) {
	return s.inner.EntityTypes(ctx)
}

type CachedStoreSuite struct {
	suite.Suite
	redis  *containers.RedisContainer
	client *redis.Client
	inner  *countingStore
}

func TestCachedStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(CachedStoreSuite))
}

func (s *CachedStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.redis = mgr.GetRedis(s.T())

	client, err := redis.New(config.RedisConfig{URL: s.redis.URL})
	s.Require().NoError(err)
	s.client = client
}

func (s *CachedStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))

	mem := requirements.NewMemoryStore()
	mem.Put("Private Limited", []requirements.TemplateDoc{
		{Name: "Certificate of Incorporation", Required: true},
		{Name: "Board Resolution", Required: true},
	})
	s.inner = &countingStore{inner: mem}
}

func (s *CachedStoreSuite) newCached(ttl time.Duration) *requirements.CachedStore {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return requirements.NewCachedStore(s.inner, s.client, ttl, logger, nil)
}

func (s *CachedStoreSuite) TestReadThrough() {
	ctx := context.Background()
	cached := s.newCached(time.Minute)

	tmpl, err := cached.ForEntityType(ctx, "Private Limited")
	s.Require().NoError(err)
	s.Len(tmpl.Documents, 2)
	s.Equal(int32(1), s.inner.reads.Load())

	// Second lookup is served from the cache.
	tmpl, err = cached.ForEntityType(ctx, "Private Limited")
	s.Require().NoError(err)
	s.Len(tmpl.Documents, 2)
	s.Equal(int32(1), s.inner.reads.Load(), "cached lookup must not reach the store")
}

func (s *CachedStoreSuite) TestEntryExpires() {
	ctx := context.Background()
	cached := s.newCached(100 * time.Millisecond)

	_, err := cached.ForEntityType(ctx, "Private Limited")
	s.Require().NoError(err)

	time.Sleep(200 * time.Millisecond)

	_, err = cached.ForEntityType(ctx, "Private Limited")
	s.Require().NoError(err)
	s.Equal(int32(2), s.inner.reads.Load(), "expired entry should fall through to the store")
}

func (s *CachedStoreSuite) TestCorruptEntryFallsThrough() {
	ctx := context.Background()
	cached := s.newCached(time.Minute)

	err := s.redis.Client.Set(ctx, "requirements:Private Limited", "not json", time.Minute).Err()
	s.Require().NoError(err)

	tmpl, err := cached.ForEntityType(ctx, "Private Limited")
	s.Require().NoError(err)
	s.Len(tmpl.Documents, 2)
	s.Equal(int32(1), s.inner.reads.Load())

	// The bad entry was overwritten with a good one.
	_, err = cached.ForEntityType(ctx, "Private Limited")
	s.Require().NoError(err)
	s.Equal(int32(1), s.inner.reads.Load())
}

func (s *CachedStoreSuite) TestMissPropagatesNotFound() {
	ctx := context.Background()
	cached := s.newCached(time.Minute)

	_, err := cached.ForEntityType(ctx, "Partnership")
	s.Error(err)
}
