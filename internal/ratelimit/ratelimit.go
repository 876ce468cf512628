// file: internal/ratelimit/ratelimit.go
// version: 1.0.0
// guid: 1f6d3b8e-4a2c-4f7d-9b5e-8c1a6d0f3e7b

package ratelimit

import (
	"log"
	"sync"
	"time"

	"github.com/jdfalk/coverfetch/internal/database"
)

// Limiter enforces per-API sliding request windows persisted in the store.
// An API with no configured state is allowed unconditionally (fail-open), so a
// missing or unreadable row never disables a healthy API. The read-modify-write
// is guarded per API name in-process; cross-process races may overshoot the
// quota slightly, which the upstream API enforces anyway.
type Limiter struct {
	store database.Store

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	// now is swappable for tests
	now func() time.Time
}

// New creates a limiter backed by the given store.
func New(store database.Store) *Limiter {
	return &Limiter{
		store: store,
		locks: make(map[string]*sync.Mutex),
		now:   time.Now,
	}
}

func (l *Limiter) lockFor(apiName string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.locks[apiName]
	if !ok {
		m = &sync.Mutex{}
		l.locks[apiName] = m
	}
	return m
}

// TryAcquire reports whether one request to apiName is allowed right now,
// incrementing the window counter if so.
func (l *Limiter) TryAcquire(apiName string) bool {
	lock := l.lockFor(apiName)
	lock.Lock()
	defer lock.Unlock()

	state, err := l.store.GetRateLimit(apiName)
	if err != nil {
		log.Printf("[WARN] ratelimit: failed to read state for %s: %v", apiName, err)
		return true
	}
	if state == nil {
		// No limit configured
		return true
	}

	now := l.now()

	// Backoff overrides window accounting entirely
	if state.BackoffUntil != nil && state.BackoffUntil.After(now) {
		return false
	}

	windowEnd := state.WindowStart.Add(time.Duration(state.WindowDurationSeconds) * time.Second)
	if now.After(windowEnd) {
		// Window expired, start a fresh one with this request counted
		state.WindowStart = now
		state.RequestsCount = 1
		state.LastRequestAt = &now
		if err := l.store.PutRateLimit(state); err != nil {
			log.Printf("[WARN] ratelimit: failed to reset window for %s: %v", apiName, err)
		}
		return true
	}

	if state.RequestsCount >= state.MaxRequests {
		return false
	}

	state.RequestsCount++
	state.LastRequestAt = &now
	if err := l.store.PutRateLimit(state); err != nil {
		log.Printf("[WARN] ratelimit: failed to increment counter for %s: %v", apiName, err)
	}
	return true
}

// SetBackoff suppresses all requests to apiName for the given number of
// seconds, regardless of window state. Called when the upstream API signals
// a rate-limit rejection.
func (l *Limiter) SetBackoff(apiName string, seconds int) {
	lock := l.lockFor(apiName)
	lock.Lock()
	defer lock.Unlock()

	state, err := l.store.GetRateLimit(apiName)
	if err != nil {
		log.Printf("[WARN] ratelimit: failed to read state for %s: %v", apiName, err)
		return
	}

	until := l.now().Add(time.Duration(seconds) * time.Second)
	if state == nil {
		// Record the backoff even for an unconfigured API; the zero-valued
		// window stays permanently expired so only the backoff applies.
		state = &database.RateLimitState{
			APIName:               apiName,
			WindowStart:           l.now(),
			WindowDurationSeconds: 0,
			MaxRequests:           0,
		}
	}
	state.BackoffUntil = &until

	if err := l.store.PutRateLimit(state); err != nil {
		log.Printf("[ERROR] ratelimit: failed to persist backoff for %s: %v", apiName, err)
	}
}
