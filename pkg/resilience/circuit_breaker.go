package resilience

import (
	"sync"
	"time"
)

// CircuitBreaker short-circuits calls to a speech backend after repeated
// failures, giving it a cooldown window to recover.
type CircuitBreaker struct {
	mu        sync.Mutex
	failures  int
	threshold int
	openUntil time.Time
	cooldown  time.Duration
}

func NewCircuitBreaker(threshold int, cooldown time.Duration) *CircuitBreaker {
	if threshold <= 0 {
		threshold = 3
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &CircuitBreaker{threshold: threshold, cooldown: cooldown}
}

// Allow reports whether a call may proceed. Once the cooldown window
// has elapsed the breaker is half-open: probe calls may proceed and the
// breaker only closes on the first success.
func (c *CircuitBreaker) Allow() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.openUntil.IsZero() {
		return true
	}
	return !time.Now().Before(c.openUntil)
}

// OnSuccess records a successful call and returns true when it closed
// a tripped breaker.
func (c *CircuitBreaker) OnSuccess() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	closed := !c.openUntil.IsZero()
	c.failures = 0
	c.openUntil = time.Time{}
	return closed
}

// OnError records a backend failure. Crossing the threshold opens the
// breaker for one cooldown window and returns true on the transition.
// A failed half-open probe re-arms the window without a new transition.
func (c *CircuitBreaker) OnError(err error) bool {
	if err == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures++
	if c.failures < c.threshold {
		return false
	}
	now := time.Now()
	if c.openUntil.IsZero() {
		c.openUntil = now.Add(c.cooldown)
		return true
	}
	if !now.Before(c.openUntil) {
		c.openUntil = now.Add(c.cooldown)
	}
	return false
}

// Open reports whether the breaker is currently rejecting calls.
func (c *CircuitBreaker) Open() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.openUntil.IsZero() && time.Now().Before(c.openUntil)
}
