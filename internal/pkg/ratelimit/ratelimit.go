package ratelimit

import "context"

// Limiter decides whether one more request under key fits in limit requests
// per minute.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int) (bool, error)
}
