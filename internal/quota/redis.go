package quota

import (
	"context"
	"fmt"
	"time"
)

const keyPrefix = "visionaid:quota:"

// Counter is the part of the redis client the limiter needs.
type Counter interface {
	IncrWindow(ctx context.Context, key string, window time.Duration) (int64, error)
}

// Redis is a fixed-window limiter shared by every process using the same redis.
type Redis struct {
	counter Counter
	limit   int
	window  time.Duration
	now     func() time.Time
}

// NewRedis allows limit calls per key in each window.
func NewRedis(counter Counter, limit int, window time.Duration) *Redis {
	return &Redis{counter: counter, limit: limit, window: window, now: time.Now}
}

func (l *Redis) Allow(ctx context.Context, key string) (bool, error) {
	bucket := l.now().UnixNano() / int64(l.window)
	n, err := l.counter.IncrWindow(ctx, fmt.Sprintf("%s%s:%d", keyPrefix, key, bucket), l.window)
	if err != nil {
		return false, fmt.Errorf("quota counter: %w", err)
	}
	return n <= int64(l.limit), nil
}
