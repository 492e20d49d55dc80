package middleware

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"fruitapp-be/internal/logger"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Ops endpoints are scraped by monitoring; anything above this is a misbehaving client.
const (
	DefaultLimit = rate.Limit(10)
	DefaultBurst = 20

	visitorIdleTTL  = 3 * time.Minute
	cleanupInterval = time.Minute
)

// visitor holds the rate limiter and the last time it was seen.
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per client IP.
type RateLimiter struct {
	limit rate.Limit
	burst int

	mu       sync.Mutex
	visitors map[string]*visitor
	now      func() time.Time
}

func NewRateLimiter(limit rate.Limit, burst int) *RateLimiter {
	return &RateLimiter{
		limit:    limit,
		burst:    burst,
		visitors: make(map[string]*visitor),
		now:      time.Now,
	}
}

func (l *RateLimiter) visitor(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	v, ok := l.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[key] = v
	}
	v.lastSeen = l.now()
	return v.limiter
}

// Sweep drops visitors idle for longer than ttl and returns how many were removed.
func (l *RateLimiter) Sweep(ttl time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, v := range l.visitors {
		if l.now().Sub(v.lastSeen) > ttl {
			delete(l.visitors, key)
			removed++
		}
	}
	return removed
}

// Run sweeps idle visitors until ctx is cancelled.
func (l *RateLimiter) Run(ctx context.Context) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Sweep(visitorIdleTTL)
		}
	}
}

// Handler rejects requests over the per-IP rate with 429.
func (l *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			ip = r.RemoteAddr
		}

		if !l.visitor(ip).Allow() {
			logger.FromCtx(r.Context()).Warn("rate limited",
				zap.String("ip", ip),
				zap.String("path", r.URL.Path),
			)
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}
