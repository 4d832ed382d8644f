package http

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// RateLimiter is a fixed-window limiter keyed by client IP.
type RateLimiter struct {
	requests map[string]*requestCount
	mu       sync.Mutex
	rate     int
	per      time.Duration
	now      func() time.Time
}

type requestCount struct {
	count    int
	lastTime time.Time
}

func NewRateLimiter(rate int, per time.Duration) *RateLimiter {
	return &RateLimiter{
		requests: make(map[string]*requestCount),
		rate:     rate,
		per:      per,
		now:      time.Now,
	}
}

func (rl *RateLimiter) Allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if req, exists := rl.requests[ip]; exists {
		if now.Sub(req.lastTime) > rl.per {
			req.count = 1
			req.lastTime = now
			return true
		}
		if req.count < rl.rate {
			req.count++
			return true
		}
		return false
	}

	if len(rl.requests) >= 10000 {
		rl.sweep(now)
	}
	rl.requests[ip] = &requestCount{1, now}
	return true
}

// sweep drops windows that have ended. Callers hold mu.
func (rl *RateLimiter) sweep(now time.Time) {
	for ip, req := range rl.requests {
		if now.Sub(req.lastTime) > rl.per {
			delete(rl.requests, ip)
		}
	}
}

func RateLimiterMiddleware(limiter *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow(clientIP(r)) {
				w.Header().Set("Retry-After", strconv.Itoa(int(limiter.per.Seconds())))
				http.Error(w, "Too many requests", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
