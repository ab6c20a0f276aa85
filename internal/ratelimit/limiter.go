// Package ratelimit limits request rate per caller.
package ratelimit

import (
	"sync"
	"time"

	"github.com/nspcc-dev/neo-go/pkg/util"
	"golang.org/x/time/rate"
)

const evictEvery = 512

// Limiter applies a token bucket per caller and periodically evicts idle
// callers. Nil Limiter allows everything.
type Limiter struct {
	limit   rate.Limit
	burst   int
	idleTTL time.Duration

	mu    sync.Mutex
	hits  uint64
	byKey map[util.Uint160]*entry
}

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// New creates per-caller limiter allowing rps requests per second with the
// given burst. It returns nil if rps or burst is not positive.
func New(rps float64, burst int, idleTTL time.Duration) *Limiter {
	if rps <= 0 || burst <= 0 {
		return nil
	}
	if idleTTL <= 0 {
		idleTTL = 10 * time.Minute
	}
	return &Limiter{
		limit:   rate.Limit(rps),
		burst:   burst,
		idleTTL: idleTTL,
		byKey:   make(map[util.Uint160]*entry),
	}
}

// Allow reports whether the caller may make one more request at now.
func (l *Limiter) Allow(caller util.Uint160, now time.Time) bool {
	if l == nil {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.byKey[caller]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.byKey[caller] = e
	}
	e.lastSeen = now
	allowed := e.limiter.AllowN(now, 1)

	l.hits++
	if l.hits%evictEvery == 0 {
		cutoff := now.Add(-l.idleTTL)
		for k, v := range l.byKey {
			if v.lastSeen.Before(cutoff) {
				delete(l.byKey, k)
			}
		}
	}

	return allowed
}
