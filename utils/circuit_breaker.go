package utils

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	ErrBreakerOpen            = errors.New("circuit breaker is open")
	ErrBreakerTooManyRequests = errors.New("too many requests when circuit breaker is half open")
)

// CircuitBreaker stops calling a failing backend for a cool-down period.
// Callers that must fail closed treat ErrBreakerOpen like any storage error.
type CircuitBreaker struct {
	name         string
	minRequests  uint32
	maxRequests  uint32
	interval     time.Duration
	timeout      time.Duration
	failureRatio float64
	isSuccessful func(err error) bool

	mutex      sync.Mutex
	state      State
	generation uint64
	counts     Counts
	expiry     time.Time
}

type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

type Counts struct {
	Requests             uint32
	TotalSuccesses       uint32
	TotalFailures        uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

type BreakerOption func(cb *CircuitBreaker)

// WithSuccessFilter decides which errors do not count as backend failures,
// e.g. a not-found answer from a healthy store.
func WithSuccessFilter(fn func(err error) bool) BreakerOption {
	return func(cb *CircuitBreaker) { cb.isSuccessful = fn }
}

func WithTripThreshold(minRequests uint32, failureRatio float64) BreakerOption {
	return func(cb *CircuitBreaker) {
		cb.minRequests = minRequests
		cb.failureRatio = failureRatio
	}
}

func WithCoolDown(timeout time.Duration) BreakerOption {
	return func(cb *CircuitBreaker) { cb.timeout = timeout }
}

func NewCircuitBreaker(name string, opts ...BreakerOption) *CircuitBreaker {
	cb := &CircuitBreaker{
		name:         name,
		minRequests:  20,
		maxRequests:  1,
		interval:     60 * time.Second,
		timeout:      30 * time.Second,
		failureRatio: 0.6,
		isSuccessful: func(err error) bool { return err == nil },
		state:        StateClosed,
	}
	for _, opt := range opts {
		opt(cb)
	}
	cb.toNewGeneration(time.Now())
	return cb
}

func (cb *CircuitBreaker) Name() string {
	return cb.name
}

func (cb *CircuitBreaker) State() State {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	state, _ := cb.currentState(time.Now())
	return state
}

// Execute runs req unless the breaker is open. Panics are counted as
// failures and re-raised.
func (cb *CircuitBreaker) Execute(ctx context.Context, req func(ctx context.Context) error) error {
	generation, err := cb.beforeRequest()
	if err != nil {
		return err
	}

	defer func() {
		if e := recover(); e != nil {
			cb.afterRequest(generation, false)
			panic(e)
		}
	}()

	err = req(ctx)
	cb.afterRequest(generation, cb.isSuccessful(err))
	return err
}

func (cb *CircuitBreaker) beforeRequest() (uint64, error) {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	state, generation := cb.currentState(time.Now())

	if state == StateOpen {
		return generation, ErrBreakerOpen
	} else if state == StateHalfOpen && cb.counts.Requests >= cb.maxRequests {
		return generation, ErrBreakerTooManyRequests
	}

	cb.counts.Requests++
	return generation, nil
}

func (cb *CircuitBreaker) afterRequest(before uint64, success bool) {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	now := time.Now()
	state, generation := cb.currentState(now)
	if generation != before {
		return
	}

	if success {
		cb.onSuccess(state, now)
	} else {
		cb.onFailure(state, now)
	}
}

func (cb *CircuitBreaker) onSuccess(state State, now time.Time) {
	cb.counts.TotalSuccesses++
	cb.counts.ConsecutiveSuccesses++
	cb.counts.ConsecutiveFailures = 0

	if state == StateHalfOpen {
		cb.setState(StateClosed, now)
	}
}

func (cb *CircuitBreaker) onFailure(state State, now time.Time) {
	cb.counts.TotalFailures++
	cb.counts.ConsecutiveFailures++
	cb.counts.ConsecutiveSuccesses = 0

	switch state {
	case StateHalfOpen:
		cb.setState(StateOpen, now)
	case StateClosed:
		if cb.readyToTrip() {
			cb.setState(StateOpen, now)
		}
	}
}

func (cb *CircuitBreaker) readyToTrip() bool {
	return cb.counts.Requests >= cb.minRequests &&
		float64(cb.counts.TotalFailures)/float64(cb.counts.Requests) >= cb.failureRatio
}

func (cb *CircuitBreaker) currentState(now time.Time) (State, uint64) {
	switch cb.state {
	case StateClosed:
		if !cb.expiry.IsZero() && cb.expiry.Before(now) {
			cb.toNewGeneration(now)
		}
	case StateOpen:
		if cb.expiry.Before(now) {
			cb.setState(StateHalfOpen, now)
		}
	}
	return cb.state, cb.generation
}

func (cb *CircuitBreaker) setState(state State, now time.Time) {
	if cb.state == state {
		return
	}
	cb.state = state
	cb.toNewGeneration(now)
}

func (cb *CircuitBreaker) toNewGeneration(now time.Time) {
	cb.generation++
	cb.counts = Counts{}

	switch cb.state {
	case StateClosed:
		cb.expiry = now.Add(cb.interval)
	case StateOpen:
		cb.expiry = now.Add(cb.timeout)
	default:
		cb.expiry = time.Time{}
	}
}
