package repository

import (
	"context"
	"sync"
	"time"
)

const memorySweepInterval = time.Minute

// MemoryLivenessCache keeps liveness marks in process memory. Expired entries
// are dropped on lookup and by a sweep that runs at most once per
// memorySweepInterval from MarkLive.
type MemoryLivenessCache struct {
	entries sync.Map // key -> time.Time (expiry)
	now     func() time.Time

	mu        sync.Mutex
	lastSweep time.Time
}

func NewMemoryLivenessCache() *MemoryLivenessCache {
	return &MemoryLivenessCache{now: time.Now}
}

func (r *MemoryLivenessCache) IsLive(_ context.Context, key string) (bool, error) {
	val, ok := r.entries.Load(key)
	if !ok {
		return false, nil
	}
	expiresAt := val.(time.Time)
	if r.now().After(expiresAt) {
		r.entries.CompareAndDelete(key, val)
		return false, nil
	}
	return true, nil
}

func (r *MemoryLivenessCache) MarkLive(_ context.Context, key string, ttl time.Duration) error {
	now := r.now()
	r.entries.Store(key, now.Add(ttl))
	if r.sweepDue(now) {
		r.Sweep()
	}
	return nil
}

func (r *MemoryLivenessCache) sweepDue(now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if now.Sub(r.lastSweep) < memorySweepInterval {
		return false
	}
	r.lastSweep = now
	return true
}

// Sweep removes every expired entry and returns how many were dropped.
func (r *MemoryLivenessCache) Sweep() int {
	now := r.now()
	removed := 0
	r.entries.Range(func(key, val any) bool {
		if expiresAt, ok := val.(time.Time); ok && now.After(expiresAt) {
			if r.entries.CompareAndDelete(key, val) {
				removed++
			}
		}
		return true
	})
	return removed
}
