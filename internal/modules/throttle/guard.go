// Package throttle provides a keyed rate limiter that also enforces mutual
// exclusion for in-flight calls, so overlapping polls for the same resource
// cannot apply stale data after fresher data already landed.
package throttle

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

type entry struct {
	lastCall time.Time
	inFlight bool
}

// Guard is a keyed throttle. The first call for a key always proceeds; while
// a key is in flight every call is rejected regardless of elapsed time; once
// completed, a call proceeds only after the minimum interval.
//
// Callers MUST call Complete when the operation finishes, success or failure.
// A forgotten Complete permanently starves that key; that is the contract,
// not something the guard papers over.
type Guard struct {
	mu    sync.Mutex
	clock clockwork.Clock
	keys  map[string]*entry
}

// NewGuard creates a guard using the real clock
func NewGuard() *Guard {
	return NewGuardWithClock(clockwork.NewRealClock())
}

// NewGuardWithClock creates a guard with an injected clock (for tests)
func NewGuardWithClock(clock clockwork.Clock) *Guard {
	return &Guard{
		clock: clock,
		keys:  make(map[string]*entry),
	}
}

// ShouldProceed reports whether the caller may run the operation for key,
// marking it in flight when it may.
func (g *Guard) ShouldProceed(key string, minInterval time.Duration) bool {
	return g.proceed(key, minInterval, false)
}

// Force bypasses the interval check for a caller-initiated refresh. The
// in-flight mutual exclusion still applies.
func (g *Guard) Force(key string) bool {
	return g.proceed(key, 0, true)
}

func (g *Guard) proceed(key string, minInterval time.Duration, force bool) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	e, ok := g.keys[key]
	if !ok {
		g.keys[key] = &entry{lastCall: g.clock.Now(), inFlight: true}
		return true
	}
	if e.inFlight {
		return false
	}
	if !force && g.clock.Now().Sub(e.lastCall) < minInterval {
		return false
	}
	e.lastCall = g.clock.Now()
	e.inFlight = true
	return true
}

// Complete clears the in-flight flag for key
func (g *Guard) Complete(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if e, ok := g.keys[key]; ok {
		e.inFlight = false
	}
}

// InFlight reports whether key is currently marked in flight
func (g *Guard) InFlight(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, ok := g.keys[key]
	return ok && e.inFlight
}
