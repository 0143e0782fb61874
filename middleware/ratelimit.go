package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/iaconlabs/owinbridge/owin"
)

// RateLimit returns a middleware sharing lim between every request. Denied
// requests get a 429 Too Many Requests with a Retry-After header.
func RateLimit(lim *rate.Limiter) owin.Middleware {
	return func(next owin.AppFunc) owin.AppFunc {
		return func(env owin.Environment) error {
			if !lim.Allow() {
				return tooManyRequests(env, lim.Limit())
			}
			return next(env)
		}
	}
}

// RateLimitByClient limits each remote address separately. Non-positive
// values fall back to 5 requests per second with a burst of 10.
func RateLimitByClient(rps float64, burst int) owin.Middleware {
	pool := &limiterPool{rps: rps, burst: burst}
	return func(next owin.AppFunc) owin.AppFunc {
		return func(env owin.Environment) error {
			lim := pool.get(env.RemoteIPAddress())
			if !lim.Allow() {
				return tooManyRequests(env, lim.Limit())
			}
			return next(env)
		}
	}
}

// clientIdleTTL is how long a client limiter survives without requests.
const clientIdleTTL = 3 * time.Minute

type clientLimiter struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// limiterPool holds one limiter per client. Idle entries are swept on access
// at most once per TTL.
type limiterPool struct {
	mu        sync.Mutex
	m         map[string]*clientLimiter
	rps       float64
	burst     int
	ttl       time.Duration
	lastSweep time.Time
	now       func() time.Time
}

func (p *limiterPool) get(key string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.m == nil {
		p.m = make(map[string]*clientLimiter)
	}
	if p.now == nil {
		p.now = time.Now
	}
	if p.ttl <= 0 {
		p.ttl = clientIdleTTL
	}
	now := p.now()
	if now.Sub(p.lastSweep) >= p.ttl {
		p.sweep(now)
	}
	if cl, ok := p.m[key]; ok {
		cl.lastSeen = now
		return cl.lim
	}
	rps := p.rps
	if rps <= 0 {
		rps = 5
	}
	burst := p.burst
	if burst <= 0 {
		burst = 10
	}
	l := rate.NewLimiter(rate.Limit(rps), burst)
	p.m[key] = &clientLimiter{lim: l, lastSeen: now}
	return l
}

func (p *limiterPool) sweep(now time.Time) {
	for k, cl := range p.m {
		if now.Sub(cl.lastSeen) >= p.ttl {
			delete(p.m, k)
		}
	}
	p.lastSweep = now
}

func (p *limiterPool) size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.m)
}

// retryAfter is the number of whole seconds until one token is available.
func retryAfter(limit rate.Limit) int {
	if limit <= 0 || limit == rate.Inf {
		return 1
	}
	return max(1, int(math.Ceil(1/float64(limit))))
}

func tooManyRequests(env owin.Environment, limit rate.Limit) error {
	env.ResponseHeaders().Set("Retry-After", strconv.Itoa(retryAfter(limit)))
	return sendJSONError(env, "rate limit exceeded", http.StatusTooManyRequests)
}
