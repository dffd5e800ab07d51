package server

import (
	"sync"

	"golang.org/x/time/rate"
)

// identityLimiter throttles ingestion per client identity. The anonymous
// write endpoint otherwise invites trivial report flooding.
type identityLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

func newIdentityLimiter(rps float64, burst int) *identityLimiter {
	if burst <= 0 {
		burst = 20
	}
	return &identityLimiter{
		limiters: make(map[string]*rate.Limiter),
		rps:      rate.Limit(rps),
		burst:    burst,
	}
}

func (l *identityLimiter) allow(identity string) bool {
	l.mu.Lock()
	lim, ok := l.limiters[identity]
	if !ok {
		lim = rate.NewLimiter(l.rps, l.burst)
		l.limiters[identity] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}
