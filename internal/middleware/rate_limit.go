package middleware

import (
	"math"
	"net"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// Maximum number of limiters to keep in memory
	maxLimiters = 10000
	// Time after which an inactive limiter is removed
	cleanupInterval = 5 * time.Minute
	// Limiter is considered inactive if not used for this duration
	limiterTTL = 15 * time.Minute
)

type limiterEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiter throttles sign-in and sign-up attempts per client IP.
type RateLimiter struct {
	limiters map[string]*limiterEntry
	mu       sync.Mutex
	rate     rate.Limit
	burst    int
	stopCh   chan struct{}
	stopOnce sync.Once
	now      func() time.Time
}

// NewRateLimiter allows requestsPerSecond on average per IP with bursts of
// burst. Call Stop to end the cleanup goroutine.
func NewRateLimiter(requestsPerSecond float64, burst int) *RateLimiter {
	rl := &RateLimiter{
		limiters: make(map[string]*limiterEntry),
		rate:     rate.Limit(requestsPerSecond),
		burst:    burst,
		stopCh:   make(chan struct{}),
		now:      time.Now,
	}

	go rl.cleanupLoop()

	return rl
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stopCh:
			return
		case <-ticker.C:
			rl.cleanup()
		}
	}
}

// cleanup drops idle limiters, then the least recently used ones while
// the map is over capacity.
func (rl *RateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for key, entry := range rl.limiters {
		if now.Sub(entry.lastAccess) > limiterTTL {
			delete(rl.limiters, key)
		}
	}

	if len(rl.limiters) <= maxLimiters {
		return
	}

	keys := make([]string, 0, len(rl.limiters))
	for k := range rl.limiters {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return rl.limiters[keys[i]].lastAccess.Before(rl.limiters[keys[j]].lastAccess)
	})
	for _, k := range keys[:len(keys)-maxLimiters/2] {
		delete(rl.limiters, k)
	}
}

func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

func (rl *RateLimiter) getLimiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	entry, exists := rl.limiters[key]
	if !exists {
		entry = &limiterEntry{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.limiters[key] = entry
	}
	entry.lastAccess = rl.now()
	return entry.limiter
}

// Middleware rejects requests over the limit with 429 and a Retry-After
// hint.
func (rl *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			limiter := rl.getLimiter(clientIP(r))

			if !limiter.Allow() {
				retry := 1.0
				if rl.rate > 0 {
					retry = math.Ceil(1 / float64(rl.rate))
				}
				w.Header().Set("Retry-After", strconv.Itoa(int(retry)))
				writeError(w, r, http.StatusTooManyRequests, "Trop de tentatives, réessayez dans un instant")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// clientIP strips the port so every connection from one host shares a
// limiter. chi's RealIP middleware has already applied proxy headers.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
