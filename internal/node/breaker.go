package node

import (
	"errors"
	"sync"
	"time"
)

var errBreakerOpen = errors.New("node status circuit open")

type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

func (s breakerState) String() string {
	switch s {
	case breakerClosed:
		return "closed"
	case breakerOpen:
		return "open"
	case breakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// breaker short-circuits status reads while the node service keeps failing.
type breaker struct {
	mu               sync.Mutex
	state            breakerState
	failures         int
	failureThreshold int
	openFor          time.Duration
	openedAt         time.Time
	now              func() time.Time
	onChange         func(from, to breakerState)
}

func newBreaker(failureThreshold int, openFor time.Duration, onChange func(from, to breakerState)) *breaker {
	if failureThreshold <= 0 {
		failureThreshold = 5
	}
	if openFor <= 0 {
		openFor = 30 * time.Second
	}
	return &breaker{
		failureThreshold: failureThreshold,
		openFor:          openFor,
		now:              time.Now,
		onChange:         onChange,
	}
}

func (b *breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == breakerOpen {
		if b.now().Sub(b.openedAt) < b.openFor {
			return errBreakerOpen
		}
		b.transition(breakerHalfOpen)
	}
	return nil
}

func (b *breaker) success() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.transition(breakerClosed)
}

func (b *breaker) failure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	if b.state == breakerHalfOpen || b.failures >= b.failureThreshold {
		b.openedAt = b.now()
		b.transition(breakerOpen)
	}
}

func (b *breaker) current() breakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *breaker) transition(to breakerState) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	if b.onChange != nil {
		b.onChange(from, to)
	}
}
