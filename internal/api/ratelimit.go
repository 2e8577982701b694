package api

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig tunes the per-IP request limiter.
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
	CleanupInterval   time.Duration // prune interval for idle IPs
}

// DefaultRateLimitConfig is the production default.
var DefaultRateLimitConfig = RateLimitConfig{
	RequestsPerSecond: 10,
	Burst:             20,
	CleanupInterval:   5 * time.Minute,
}

type ipLimiter struct {
	*rate.Limiter
	lastSeen time.Time
}

// IPRateLimiter applies a token bucket per client IP across the whole HTTP
// surface. IPs idle for two prune intervals are forgotten so the map cannot
// grow without bound.
type IPRateLimiter struct {
	cfg RateLimitConfig

	mu    sync.Mutex
	perIP map[string]*ipLimiter

	stop     chan struct{}
	stopOnce sync.Once
}

// NewIPRateLimiter builds the limiter and starts its prune goroutine.
func NewIPRateLimiter(cfg RateLimitConfig) *IPRateLimiter {
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = DefaultRateLimitConfig.CleanupInterval
	}
	rl := &IPRateLimiter{
		cfg:   cfg,
		perIP: make(map[string]*ipLimiter),
		stop:  make(chan struct{}),
	}
	go rl.prune()
	return rl
}

// Stop ends the prune goroutine. Idempotent.
func (rl *IPRateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

// Allow reports whether one more request from ip fits its bucket.
func (rl *IPRateLimiter) Allow(ip string) bool {
	rl.mu.Lock()
	l, ok := rl.perIP[ip]
	if !ok {
		l = &ipLimiter{
			Limiter: rate.NewLimiter(rate.Limit(rl.cfg.RequestsPerSecond), rl.cfg.Burst),
		}
		rl.perIP[ip] = l
	}
	l.lastSeen = time.Now()
	rl.mu.Unlock()
	return l.Allow()
}

func (rl *IPRateLimiter) prune() {
	ticker := time.NewTicker(rl.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-2 * rl.cfg.CleanupInterval)
			rl.mu.Lock()
			for ip, l := range rl.perIP {
				if l.lastSeen.Before(cutoff) {
					delete(rl.perIP, ip)
				}
			}
			rl.mu.Unlock()
		}
	}
}

// Middleware rejects over-limit requests with 429 before any routing work.
func (rl *IPRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow(GetClientIP(r)) {
			RecordConnectionRejected("rate_limit")
			w.Header().Set("Retry-After", "1")
			http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetClientIP resolves the client address, preferring proxy headers. The
// headers are spoofable when the hub is not behind a trusted proxy.
func GetClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
