package middleware

import (
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/time/rate"

	"github.com/chatpay/chatpay/internal/metrics"
)

const limiterIdleTTL = 10 * time.Minute

type phoneLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// InboundLimiter hands out one token bucket per sender.
type InboundLimiter struct {
	mu       sync.Mutex
	limiters map[string]*phoneLimiter
	limit    rate.Limit
	burst    int
	now      func() time.Time
	lastGC   time.Time
}

// NewInboundLimiter allows perMinute messages per sender with a burst of the same size.
func NewInboundLimiter(perMinute int) *InboundLimiter {
	if perMinute <= 0 {
		perMinute = 30
	}
	return &InboundLimiter{
		limiters: make(map[string]*phoneLimiter),
		limit:    rate.Every(time.Minute / time.Duration(perMinute)),
		burst:    perMinute,
		now:      time.Now,
	}
}

// Allow reports whether key may send another message now.
func (l *InboundLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if now.Sub(l.lastGC) > limiterIdleTTL {
		for k, pl := range l.limiters {
			if now.Sub(pl.lastSeen) > limiterIdleTTL {
				delete(l.limiters, k)
			}
		}
		l.lastGC = now
	}
	pl, ok := l.limiters[key]
	if !ok {
		pl = &phoneLimiter{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[key] = pl
	}
	pl.lastSeen = now
	return pl.limiter.AllowN(now, 1)
}

// InboundRateLimit rejects senders that exceed their message budget. Requests
// without a sender are limited by client IP.
func InboundRateLimit(l *InboundLimiter) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := inboundOf(c).From
		if key == "" {
			key = c.IP()
		}
		if !l.Allow(key) {
			metrics.WebhookRateLimitedTotal.Inc()
			return fiber.NewError(fiber.StatusTooManyRequests, "too many messages, slow down")
		}
		return c.Next()
	}
}
