package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

type bucket struct {
	limiter    *rate.Limiter
	limit      int
	lastAccess time.Time
}

// MemoryLimiter keeps one token bucket per key in process memory. Buckets idle
// for longer than the configured TTL are dropped by Sweep.
type MemoryLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	idleTTL time.Duration
	now     func() time.Time
}

func NewMemoryLimiter(idleTTL time.Duration) *MemoryLimiter {
	if idleTTL <= 0 {
		idleTTL = 10 * time.Minute
	}
	return &MemoryLimiter{
		buckets: make(map[string]*bucket),
		idleTTL: idleTTL,
		now:     time.Now,
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string, limit int) (bool, error) {
	if limit <= 0 {
		return true, nil
	}

	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok || b.limit != limit {
		b = &bucket{
			limiter: rate.NewLimiter(rate.Limit(float64(limit)/60.0), limit),
			limit:   limit,
		}
		l.buckets[key] = b
	}
	b.lastAccess = now

	return b.limiter.AllowN(now, 1), nil
}

// Sweep drops buckets idle since before now minus the TTL and returns how many
// were removed.
func (l *MemoryLimiter) Sweep(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, b := range l.buckets {
		if now.Sub(b.lastAccess) > l.idleTTL {
			delete(l.buckets, key)
			removed++
		}
	}
	return removed
}

func (l *MemoryLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// Run sweeps every interval until ctx is done.
func (l *MemoryLimiter) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = l.idleTTL
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := l.Sweep(l.now()); n > 0 {
				log.Debug().Int("evicted", n).Msg("Rate limit buckets swept")
			}
		}
	}
}
