package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shipstream/tagkeeper/common/cache"
	"github.com/shipstream/tagkeeper/common/logger"
	"github.com/shipstream/tagkeeper/common/models"
)

// CachedResolver is a read-through cache over a CommitResolver. Commit
// details are immutable once written, so cached entries never go stale.
// Resolve is not cached: branch refs move.
type CachedResolver struct {
	inner CommitResolver
	cache cache.Cache
	ttl   time.Duration
	log   *logger.Logger
}

// NewCachedResolver wraps inner with a describe cache.
func NewCachedResolver(inner CommitResolver, c cache.Cache, ttl time.Duration, log *logger.Logger) *CachedResolver {
	return &CachedResolver{inner: inner, cache: c, ttl: ttl, log: log}
}

func (r *CachedResolver) Resolve(ctx context.Context, ref string) (models.CommitHash, error) {
	return r.inner.Resolve(ctx, ref)
}

func (r *CachedResolver) Describe(ctx context.Context, hash models.CommitHash) (*models.Commit, error) {
	key := "commit:" + string(hash)

	if data, ok, err := r.cache.Get(ctx, key); err == nil && ok {
		var commit models.Commit
		if err := json.Unmarshal(data, &commit); err == nil {
			return &commit, nil
		}
		// Corrupt entry, fall through to the source.
		_ = r.cache.Delete(ctx, key)
	}

	commit, err := r.inner.Describe(ctx, hash)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(commit); err == nil {
		if err := r.cache.Set(ctx, key, data, r.ttl); err != nil {
			r.log.Warn("commit cache set failed", "commit", hash, "error", err)
		}
	}
	return commit, nil
}

func (r *CachedResolver) CreateRevert(ctx context.Context, hash models.CommitHash, message string) (models.CommitHash, error) {
	return r.inner.CreateRevert(ctx, hash, message)
}
