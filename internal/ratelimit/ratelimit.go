// ratelimit.go - Per-client token bucket limiting for proof requests.

package ratelimit

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ClientLimiter keeps one token bucket per client key.
type ClientLimiter struct {
	mu       sync.Mutex
	limiters map[string]*entry
	limit    rate.Limit
	burst    int
	idle     time.Duration
	now      func() time.Time
}

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewClientLimiter allows perSecond sustained requests with the given burst per client.
// Buckets unused for longer than idle are dropped by Prune.
func NewClientLimiter(perSecond float64, burst int, idle time.Duration) *ClientLimiter {
	return &ClientLimiter{
		limiters: make(map[string]*entry),
		limit:    rate.Limit(perSecond),
		burst:    burst,
		idle:     idle,
		now:      time.Now,
	}
}

func (cl *ClientLimiter) get(key string) *rate.Limiter {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	e, ok := cl.limiters[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(cl.limit, cl.burst)}
		cl.limiters[key] = e
	}
	e.lastSeen = cl.now()
	return e.limiter
}

// Allow reports whether key may make a request now.
func (cl *ClientLimiter) Allow(key string) bool {
	return cl.get(key).AllowN(cl.now(), 1)
}

// Tokens returns the tokens currently available to key.
func (cl *ClientLimiter) Tokens(key string) float64 {
	return cl.get(key).TokensAt(cl.now())
}

// Reset forgets the bucket for key.
func (cl *ClientLimiter) Reset(key string) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	delete(cl.limiters, key)
}

// ResetAll forgets every bucket.
func (cl *ClientLimiter) ResetAll() {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	cl.limiters = make(map[string]*entry)
}

// Prune drops buckets idle for longer than the configured idle period and returns how many
// were removed.
func (cl *ClientLimiter) Prune() int {
	if cl.idle <= 0 {
		return 0
	}
	cl.mu.Lock()
	defer cl.mu.Unlock()

	cutoff := cl.now().Add(-cl.idle)
	removed := 0
	for key, e := range cl.limiters {
		if e.lastSeen.Before(cutoff) {
			delete(cl.limiters, key)
			removed++
		}
	}
	return removed
}

// ClientKey identifies a client by its remote host.
func ClientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Middleware rejects requests over the limit by calling reject instead of next.
func (cl *ClientLimiter) Middleware(reject http.HandlerFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cl.Allow(ClientKey(r)) {
				w.Header().Set("Retry-After", "1")
				reject(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
