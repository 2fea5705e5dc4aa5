// Package resilience guards the rehearsal server's provider calls.
//
// A [CircuitBreaker] stops hammering a backend that keeps failing. A
// [Group] chains several providers of the same kind, each behind its own
// breaker, and records per-provider request metrics. [LLM], [TTS] and [STT]
// adapt a Group to the provider interfaces so it can be used wherever a
// single provider is expected.
//
// All types are safe for concurrent use.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [CircuitBreaker.Do] while the breaker rejects
// calls.
var ErrCircuitOpen = errors.New("resilience: circuit breaker is open")

// State is the operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects calls with [ErrCircuitOpen] until the cool-down has
	// elapsed.
	StateOpen

	// StateHalfOpen lets a bounded number of trials through. One failed
	// trial re-opens the breaker; enough successful trials close it.
	StateHalfOpen
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig holds tuning knobs for a [CircuitBreaker].
type BreakerConfig struct {
	// Name labels log lines and state change callbacks.
	Name string

	// MaxFailures is the number of consecutive failures that opens the
	// breaker. Default: 5.
	MaxFailures int

	// Cooldown is how long the breaker stays open before admitting trial
	// calls. Default: 30s.
	Cooldown time.Duration

	// Trials is the number of successful half-open calls needed to close the
	// breaker again. Default: 2.
	Trials int

	// OnStateChange, when set, is called after every transition. It runs
	// with the breaker unlocked.
	OnStateChange func(name string, from, to State)

	// now replaces time.Now in tests.
	now func() time.Time
}

// CircuitBreaker implements the closed/open/half-open pattern.
//
// Failures caused by the caller's own context ending are not counted: an
// interview that is abandoned mid-request says nothing about the backend.
type CircuitBreaker struct {
	cfg BreakerConfig

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	inflight int // half-open trials currently running
	passed   int // half-open trials that succeeded
}

// NewCircuitBreaker returns a closed breaker. Zero config fields take their
// defaults.
func NewCircuitBreaker(cfg BreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.Trials <= 0 {
		cfg.Trials = 2
	}
	if cfg.now == nil {
		cfg.now = time.Now
	}
	return &CircuitBreaker{cfg: cfg}
}

// Name returns the label the breaker was created with.
func (cb *CircuitBreaker) Name() string { return cb.cfg.Name }

// State returns the current state, promoting open to half-open when the
// cool-down has elapsed.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	from, to := cb.refreshLocked()
	s := cb.state
	cb.mu.Unlock()
	cb.notify(from, to)
	return s
}

// Reset forces the breaker closed and clears its counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	from := cb.state
	cb.state = StateClosed
	cb.failures, cb.inflight, cb.passed = 0, 0, 0
	cb.mu.Unlock()
	cb.notify(from, StateClosed)
}

// Do runs fn when the breaker admits the call and records its outcome. The
// error from fn is returned unchanged.
func (cb *CircuitBreaker) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	trial, err := cb.admit()
	if err != nil {
		return err
	}
	err = fn(ctx)
	if err != nil && ctx.Err() != nil {
		cb.release(trial)
		return err
	}
	cb.record(trial, err)
	return err
}

// ---- state machine ----

// refreshLocked moves an expired open breaker to half-open. It returns the
// transition made, if any.
func (cb *CircuitBreaker) refreshLocked() (State, State) {
	if cb.state == StateOpen && cb.cfg.now().Sub(cb.openedAt) >= cb.cfg.Cooldown {
		cb.state = StateHalfOpen
		cb.inflight, cb.passed = 0, 0
		return StateOpen, StateHalfOpen
	}
	return cb.state, cb.state
}

func (cb *CircuitBreaker) admit() (trial bool, err error) {
	cb.mu.Lock()
	from, to := cb.refreshLocked()
	switch cb.state {
	case StateOpen:
		err = ErrCircuitOpen
	case StateHalfOpen:
		if cb.inflight+cb.passed >= cb.cfg.Trials {
			err = ErrCircuitOpen
		} else {
			cb.inflight++
			trial = true
		}
	}
	cb.mu.Unlock()
	cb.notify(from, to)
	return trial, err
}

func (cb *CircuitBreaker) release(trial bool) {
	if !trial {
		return
	}
	cb.mu.Lock()
	if cb.state == StateHalfOpen && cb.inflight > 0 {
		cb.inflight--
	}
	cb.mu.Unlock()
}

func (cb *CircuitBreaker) record(trial bool, err error) {
	cb.mu.Lock()
	from := cb.state
	if trial && cb.state == StateHalfOpen {
		cb.inflight--
	}
	switch {
	case err != nil && (trial || cb.state == StateHalfOpen):
		cb.openLocked()
	case err != nil:
		cb.failures++
		if cb.state == StateClosed && cb.failures >= cb.cfg.MaxFailures {
			cb.openLocked()
		}
	case cb.state == StateHalfOpen:
		cb.passed++
		if cb.passed >= cb.cfg.Trials {
			cb.state = StateClosed
			cb.failures, cb.inflight, cb.passed = 0, 0, 0
		}
	default:
		cb.failures = 0
	}
	to := cb.state
	failures := cb.failures
	cb.mu.Unlock()

	if from != to {
		if to == StateOpen {
			slog.Warn("resilience: breaker opened", "name", cb.cfg.Name, "from", from.String(), "failures", failures, "err", err)
		} else {
			slog.Info("resilience: breaker state changed", "name", cb.cfg.Name, "from", from.String(), "to", to.String())
		}
	}
	cb.notify(from, to)
}

func (cb *CircuitBreaker) openLocked() {
	cb.state = StateOpen
	cb.openedAt = cb.cfg.now()
	cb.inflight, cb.passed = 0, 0
}

func (cb *CircuitBreaker) notify(from, to State) {
	if from != to && cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(cb.cfg.Name, from, to)
	}
}
