package security

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ReportLimiter is a fixed-window per-IP rate limiter backed by redis, so
// the limit holds across instances.
type ReportLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
}

// NewReportLimiter constructs a limiter allowing limit reports per window
// per client IP.
func NewReportLimiter(client *redis.Client, limit int, window time.Duration) *ReportLimiter {
	return &ReportLimiter{client: client, limit: limit, window: window}
}

// Allow reports whether the client may submit another report. The limiter
// fails open when redis is unreachable; dropping security reports over an
// infrastructure blip is worse than briefly losing the limit.
func (l *ReportLimiter) Allow(ctx context.Context, clientIP string) bool {
	if l == nil || l.client == nil {
		return true
	}
	window := time.Now().Unix() / int64(l.window.Seconds())
	key := fmt.Sprintf("dce:csplimit:%s:%d", clientIP, window)

	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return true
	}
	if count == 1 {
		l.client.Expire(ctx, key, l.window+time.Second)
	}
	return count <= int64(l.limit)
}
