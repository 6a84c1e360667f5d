package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"taskcal/internal/domain"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// FailoverLivenessCache prefers the primary cache and switches to the fallback
// once the primary errors, retrying the primary after recoveryInterval.
type FailoverLivenessCache struct {
	primary   domain.LivenessCache
	fallback  domain.LivenessCache
	logger    *zerolog.Logger
	isDown    atomic.Bool
	mu        sync.Mutex
	lastCheck time.Time
}

func NewFailoverLivenessCache(primary, fallback domain.LivenessCache, logger *zerolog.Logger) *FailoverLivenessCache {
	return &FailoverLivenessCache{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (r *FailoverLivenessCache) usePrimary() bool {
	if !r.isDown.Load() {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return time.Since(r.lastCheck) > recoveryInterval
}

func (r *FailoverLivenessCache) markDown(err error) {
	if !r.isDown.Swap(true) {
		r.logger.Error().Err(err).Msg("primary liveness cache failed, falling back to memory")
	}
	r.mu.Lock()
	r.lastCheck = time.Now()
	r.mu.Unlock()
}

func (r *FailoverLivenessCache) IsLive(ctx context.Context, key string) (bool, error) {
	if r.usePrimary() {
		live, err := r.primary.IsLive(ctx, key)
		if err == nil {
			r.isDown.Store(false)
			return live, nil
		}
		r.markDown(err)
	}

	return r.fallback.IsLive(ctx, key)
}

func (r *FailoverLivenessCache) MarkLive(ctx context.Context, key string, ttl time.Duration) error {
	if r.usePrimary() {
		err := r.primary.MarkLive(ctx, key, ttl)
		if err == nil {
			r.isDown.Store(false)
			return nil
		}
		r.markDown(err)
	}

	return r.fallback.MarkLive(ctx, key, ttl)
}
