package nodeexec

import (
	"fmt"
	"sync"
	"time"
)

type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

type breaker struct {
	mu              sync.Mutex
	state           breakerState
	consecutiveFail int
	openedAt        time.Time
}

// CircuitBreakers wraps each registered agent/action-handler id with a
// per-id circuit breaker: after failureThreshold consecutive failures it
// opens and fails fast without attempting the call, until cooldown elapses
// and one trial call is let through (half-open). This supplements §4.4's
// failure semantics without changing any documented disposition — it only
// changes how fast an already-documented Failure is produced when a
// downstream dependency is persistently down.
type CircuitBreakers struct {
	mu               sync.Mutex
	breakers         map[string]*breaker
	failureThreshold int
	cooldown         time.Duration
}

func NewCircuitBreakers(failureThreshold int, cooldown time.Duration) *CircuitBreakers {
	if failureThreshold <= 0 {
		failureThreshold = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &CircuitBreakers{
		breakers:         make(map[string]*breaker),
		failureThreshold: failureThreshold,
		cooldown:         cooldown,
	}
}

func (c *CircuitBreakers) get(id string) *breaker {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.breakers[id]
	if !ok {
		b = &breaker{}
		c.breakers[id] = b
	}
	return b
}

// Allow reports whether a call to id may proceed, transitioning an expired
// open breaker to half-open.
func (c *CircuitBreakers) Allow(id string) bool {
	b := c.get(id)
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case breakerOpen:
		if time.Since(b.openedAt) >= c.cooldown {
			b.state = breakerHalfOpen
			return true
		}
		return false
	default:
		return true
	}
}

// RecordSuccess closes the breaker and resets its failure count.
func (c *CircuitBreakers) RecordSuccess(id string) {
	b := c.get(id)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = breakerClosed
	b.consecutiveFail = 0
}

// RecordFailure increments the failure count and opens the breaker once the
// threshold is reached (or immediately, if the trial half-open call failed).
func (c *CircuitBreakers) RecordFailure(id string) {
	b := c.get(id)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == breakerHalfOpen {
		b.state = breakerOpen
		b.openedAt = time.Now()
		return
	}
	b.consecutiveFail++
	if b.consecutiveFail >= c.failureThreshold {
		b.state = breakerOpen
		b.openedAt = time.Now()
	}
}

// ErrBreakerOpen is returned by Guard when id's breaker is currently open.
type ErrBreakerOpen struct{ ID string }

func (e *ErrBreakerOpen) Error() string {
	return fmt.Sprintf("circuit breaker open for %s", e.ID)
}

// Guard runs call(), recording the outcome against id's breaker, unless the
// breaker is currently open, in which case call() is never invoked.
func Guard[T any](c *CircuitBreakers, id string, call func() (T, error)) (T, error) {
	var zero T
	if c == nil {
		return call()
	}
	if !c.Allow(id) {
		return zero, &ErrBreakerOpen{ID: id}
	}
	result, err := call()
	if err != nil {
		c.RecordFailure(id)
		return zero, err
	}
	c.RecordSuccess(id)
	return result, nil
}
