package redis

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/learnpro/kt-hub/internal/domain/learning"
)

// Backend is the subset of Cache used by PathCache.
type Backend interface {
	Get(ctx context.Context, key string, dest any) error
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// PathCache decorates a learning.Store with a read-through cache of the
// latest path per owner. Every write invalidates the owner's key; cache
// failures are logged and the call falls through to the store.
type PathCache struct {
	inner  learning.Store
	cache  Backend
	ttl    time.Duration
	logger *slog.Logger
}

var _ learning.Store = (*PathCache)(nil)

// NewPathCache creates a new PathCache.
func NewPathCache(inner learning.Store, cache Backend, ttl time.Duration, logger *slog.Logger) *PathCache {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &PathCache{inner: inner, cache: cache, ttl: ttl, logger: logger}
}

// Create stores a new version and drops the cached latest path.
func (c *PathCache) Create(ctx context.Context, p *learning.LearningPath) error {
	if err := c.inner.Create(ctx, p); err != nil {
		return err
	}
	c.invalidate(ctx, p.OwnerID)
	return nil
}

// Latest serves the owner's latest path from cache when present.
func (c *PathCache) Latest(ctx context.Context, ownerID string) (*learning.LearningPath, error) {
	var cached learning.LearningPath
	err := c.cache.Get(ctx, LatestPathKey(ownerID), &cached)
	if err == nil {
		return &cached, nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		c.logger.Warn("path cache read failed", slog.String("owner_id", ownerID), slog.Any("error", err))
	}

	p, err := c.inner.Latest(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if err := c.cache.Set(ctx, LatestPathKey(ownerID), p, c.ttl); err != nil {
		c.logger.Warn("path cache write failed", slog.String("owner_id", ownerID), slog.Any("error", err))
	}
	return p, nil
}

// Save stores progress and drops the cached latest path.
func (c *PathCache) Save(ctx context.Context, p *learning.LearningPath) error {
	if err := c.inner.Save(ctx, p); err != nil {
		return err
	}
	c.invalidate(ctx, p.OwnerID)
	return nil
}

// ListByOwner is never cached.
func (c *PathCache) ListByOwner(ctx context.Context, ownerID string) ([]*learning.LearningPath, error) {
	return c.inner.ListByOwner(ctx, ownerID)
}

// WithinTx delegates to the store and invalidates every owner written in
// the transaction once it commits. Reads inside the transaction bypass the cache.
func (c *PathCache) WithinTx(ctx context.Context, fn func(ctx context.Context, repo learning.Repository) error) error {
	var touched []string
	err := c.inner.WithinTx(ctx, func(ctx context.Context, repo learning.Repository) error {
		return fn(ctx, &trackingRepo{Repository: repo, touched: &touched})
	})
	if err != nil {
		return err
	}
	c.invalidate(ctx, touched...)
	return nil
}

func (c *PathCache) invalidate(ctx context.Context, ownerIDs ...string) {
	if len(ownerIDs) == 0 {
		return
	}
	keys := make([]string, 0, len(ownerIDs))
	for _, id := range ownerIDs {
		keys = append(keys, LatestPathKey(id))
	}
	if err := c.cache.Delete(ctx, keys...); err != nil {
		c.logger.Error("path cache invalidation failed", slog.Any("owners", ownerIDs), slog.Any("error", err))
	}
}

type trackingRepo struct {
	learning.Repository
	touched *[]string
}

func (r *trackingRepo) Create(ctx context.Context, p *learning.LearningPath) error {
	if err := r.Repository.Create(ctx, p); err != nil {
		return err
	}
	*r.touched = append(*r.touched, p.OwnerID)
	return nil
}

func (r *trackingRepo) Save(ctx context.Context, p *learning.LearningPath) error {
	if err := r.Repository.Save(ctx, p); err != nil {
		return err
	}
	*r.touched = append(*r.touched, p.OwnerID)
	return nil
}
