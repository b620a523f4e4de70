// Package ratelimit provides token-bucket limiting for websocket
// clients. One bucket per user id, shared across that user's
// connections, so opening extra tabs does not multiply the budget.
package ratelimit

import (
	"sync"
	"time"

	"github.com/coder/quartz"
)

// Limiter is a token bucket refilled continuously at rate tokens per
// second, capped at burst.
type Limiter struct {
	clock quartz.Clock

	mu         sync.Mutex
	rate       float64
	burst      int
	tokens     float64
	lastUpdate time.Time
}

func NewLimiter(rate float64, burst int) *Limiter {
	return newLimiter(rate, burst, quartz.NewReal())
}

func newLimiter(rate float64, burst int, clock quartz.Clock) *Limiter {
	return &Limiter{
		clock:      clock,
		rate:       rate,
		burst:      burst,
		tokens:     float64(burst),
		lastUpdate: clock.Now(),
	}
}

// Allow consumes one token if available.
func (l *Limiter) Allow() bool {
	return l.AllowN(1)
}

// AllowN consumes n tokens if all are available, none otherwise.
func (l *Limiter) AllowN(n int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	elapsed := now.Sub(l.lastUpdate).Seconds()
	l.lastUpdate = now

	l.tokens += elapsed * l.rate
	if l.tokens > float64(l.burst) {
		l.tokens = float64(l.burst)
	}

	if l.tokens >= float64(n) {
		l.tokens -= float64(n)
		return true
	}
	return false
}

const (
	cleanupInterval = 5 * time.Minute
	maxTrackedUsers = 10000
)

// ClientLimiters hands out one Limiter per user id and periodically
// resets the table if it grows past maxTrackedUsers.
type ClientLimiters struct {
	clock quartz.Clock
	rate  float64
	burst int

	mu       sync.RWMutex
	limiters map[string]*Limiter

	stop     chan struct{}
	stopOnce sync.Once
}

func NewClientLimiters(rate float64, burst int) *ClientLimiters {
	return newClientLimiters(rate, burst, quartz.NewReal())
}

func newClientLimiters(rate float64, burst int, clock quartz.Clock) *ClientLimiters {
	cl := &ClientLimiters{
		clock:    clock,
		rate:     rate,
		burst:    burst,
		limiters: make(map[string]*Limiter),
		stop:     make(chan struct{}),
	}
	go cl.cleanup()
	return cl
}

// Get returns the user's limiter, creating it on first sight.
func (cl *ClientLimiters) Get(userID string) *Limiter {
	cl.mu.RLock()
	limiter, ok := cl.limiters[userID]
	cl.mu.RUnlock()
	if ok {
		return limiter
	}

	cl.mu.Lock()
	defer cl.mu.Unlock()
	if limiter, ok := cl.limiters[userID]; ok {
		return limiter
	}
	limiter = newLimiter(cl.rate, cl.burst, cl.clock)
	cl.limiters[userID] = limiter
	return limiter
}

// Remove forgets a user's bucket, typically on disconnect.
func (cl *ClientLimiters) Remove(userID string) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	delete(cl.limiters, userID)
}

// Len reports how many users currently hold a bucket.
func (cl *ClientLimiters) Len() int {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return len(cl.limiters)
}

func (cl *ClientLimiters) Stop() {
	cl.stopOnce.Do(func() { close(cl.stop) })
}

func (cl *ClientLimiters) cleanup() {
	ticker := cl.clock.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-cl.stop:
			return
		case <-ticker.C:
			cl.mu.Lock()
			if len(cl.limiters) > maxTrackedUsers {
				cl.limiters = make(map[string]*Limiter)
			}
			cl.mu.Unlock()
		}
	}
}
