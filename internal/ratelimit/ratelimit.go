// Package ratelimit keeps one token bucket per caller.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Pool hands out a token bucket per key (user id, or remote address for
// anonymous callers). Idle keys are evicted by Sweep.
type Pool struct {
	mu    sync.Mutex
	rps   rate.Limit
	burst int
	ttl   time.Duration
	m     map[string]*entry
	now   func() time.Time
}

func NewPool(rps float64, burst int) *Pool {
	if rps <= 0 {
		rps = 5
	}
	if burst <= 0 {
		burst = 10
	}
	return &Pool{
		rps:   rate.Limit(rps),
		burst: burst,
		ttl:   10 * time.Minute,
		m:     map[string]*entry{},
		now:   time.Now,
	}
}

// Allow consumes a token for key and reports whether one was available.
func (p *Pool) Allow(key string) bool {
	p.mu.Lock()
	now := p.now()
	e, ok := p.m[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(p.rps, p.burst)}
		p.m[key] = e
	}
	e.lastSeen = now
	p.mu.Unlock()
	return e.limiter.AllowN(now, 1)
}

// Sweep drops keys that have been idle longer than the pool TTL.
func (p *Pool) Sweep() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	cutoff := p.now().Add(-p.ttl)
	removed := 0
	for key, e := range p.m {
		if e.lastSeen.Before(cutoff) {
			delete(p.m, key)
			removed++
		}
	}
	return removed
}

// Len is the number of tracked keys.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.m)
}

// SweepEvery runs Sweep on an interval until stop is closed.
func (p *Pool) SweepEvery(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.Sweep()
		case <-stop:
			return
		}
	}
}
