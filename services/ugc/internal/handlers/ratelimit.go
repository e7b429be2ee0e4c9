package handlers

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/example/blog-ugc/internal/platform/api"
	"github.com/example/blog-ugc/internal/platform/httpserver"
	"github.com/example/blog-ugc/services/ugc/internal/identity"
)

// idleTTL is how long an unused client bucket is kept.
const idleTTL = 10 * time.Minute

// RateLimiter is a per-client-IP token bucket for the submit routes.
// Clients are keyed on the connection address unless TrustProxyHeaders
// is set.
type RateLimiter struct {
	TrustProxyHeaders bool


	mu      sync.Mutex
	clients map[string]*client
	limit   rate.Limit
	burst   int
	now     func() time.Time
}

type client struct {
	lim  *rate.Limiter
	seen time.Time
}

// NewRateLimiter allows ratePerSec requests per second with the given burst.
func NewRateLimiter(ratePerSec float64, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		clients: make(map[string]*client),
		limit:   rate.Limit(ratePerSec),
		burst:   burst,
		now:     time.Now,
	}
}

func (rl *RateLimiter) allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	c, ok := rl.clients[key]
	if !ok {
		rl.sweep(now)
		c = &client{lim: rate.NewLimiter(rl.limit, rl.burst)}
		rl.clients[key] = c
	}
	c.seen = now
	return c.lim.AllowN(now, 1)
}

// sweep drops idle buckets. Caller holds rl.mu.
func (rl *RateLimiter) sweep(now time.Time) {
	for k, c := range rl.clients {
		if now.Sub(c.seen) > idleTTL {
			delete(rl.clients, k)
		}
	}
}

func (rl *RateLimiter) key(r *http.Request) string {
	if rl.TrustProxyHeaders {
		return identity.ClientIP(r)
	}
	return identity.RemoteIP(r)
}

// Middleware rejects requests over the limit with 429.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.allow(rl.key(r)) {
			rid := httpserver.RequestIDFromContext(r.Context())
			api.RateLimited(w, "RATE_LIMITED", "Too many requests", rid, 1)
			return
		}
		next.ServeHTTP(w, r)
	})
}
