package redis

import (
	"context"
	"errors"
	"time"

	"github.com/alem-hub/attendance-hub/internal/domain/stats"
)

// StatsCache implements query.StatsCache on top of Cache.
type StatsCache struct {
	cache *Cache
	ttl   time.Duration
}

// NewStatsCache creates a StatsCache. A non-positive ttl uses TTLStatsCache.
func NewStatsCache(cache *Cache, ttl time.Duration) *StatsCache {
	if ttl <= 0 {
		ttl = TTLStatsCache
	}
	return &StatsCache{cache: cache, ttl: ttl}
}

// Get returns cached stats. A miss is (nil, false, nil).
func (s *StatsCache) Get(ctx context.Context, studentID string) ([]stats.HybridAttendanceStats, bool, error) {
	var out []stats.HybridAttendanceStats
	err := s.cache.Get(ctx, StatsKey(studentID), &out)
	if errors.Is(err, ErrCacheMiss) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return out, true, nil
}

// Set stores stats for the configured TTL, or for maxAge when it is shorter.
func (s *StatsCache) Set(ctx context.Context, studentID string, value []stats.HybridAttendanceStats, maxAge time.Duration) error {
	if value == nil {
		value = []stats.HybridAttendanceStats{}
	}
	return s.cache.Set(ctx, StatsKey(studentID), value, s.expiry(maxAge))
}

func (s *StatsCache) expiry(maxAge time.Duration) time.Duration {
	if maxAge > 0 && maxAge < s.ttl {
		return maxAge
	}
	return s.ttl
}

// Invalidate drops the student's cached stats.
func (s *StatsCache) Invalidate(ctx context.Context, studentID string) error {
	return s.cache.Delete(ctx, StatsKey(studentID))
}
