package middleware

import (
	"sync"

	"golang.org/x/time/rate"

	"iot-proto/frame"
)

// RateLimit throttles inbound SIGNAL/REQUEST/STREAMING frames with a
// token-bucket limiter per path, adapted from the teacher's
// RateLimitMiddleware (there keyed per RPC method, here per device path).
// A frame that arrives with no tokens available does not call next, so
// the chain silently drops it rather than queuing — spec.md gives no
// backpressure mechanism for inbound frames.
type RateLimit struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

// NewRateLimit builds a RateLimit middleware allowing rps frames per
// second per path, with the given burst size.
func NewRateLimit(rps float64, burst int) *RateLimit {
	return &RateLimit{
		limiters: make(map[string]*rate.Limiter),
		rps:      rate.Limit(rps),
		burst:    burst,
	}
}

func (r *RateLimit) limiterFor(path string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.limiters[path]
	if !ok {
		l = rate.NewLimiter(r.rps, r.burst)
		r.limiters[path] = l
	}
	return l
}

// Middleware returns the chain-ready middleware function.
func (r *RateLimit) Middleware() Middleware {
	return func(req *frame.Request, next Next) {
		if r.limiterFor(req.Path).Allow() {
			next()
		}
	}
}
