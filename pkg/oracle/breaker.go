package oracle

import (
	"sync"
	"time"

	"github.com/Galaxy-KJ/galaxy-oracle/pkg/logging"
	"github.com/Galaxy-KJ/galaxy-oracle/pkg/metrics"
)

// callOutcome is the result of a single source call as seen by the breaker.
type callOutcome int

const (
	outcomeSuccess callOutcome = iota
	outcomeFailure
)

type breakerConfig struct {
	failureThreshold int
	resetTimeout     time.Duration
	halfOpenMaxCalls int
}

// breakerState holds the mutable state of one breaker as a plain value so
// that transitions are pure functions of (state, outcome, now) and can be
// tested without clocks or locks.
type breakerState struct {
	circuit       CircuitState
	failures      int
	halfOpenCalls int
	openedAt      time.Time
}

// recordOutcome returns the state after observing one call outcome at now.
// A success closes the breaker and zeroes the failure count from any state.
// A failure during a half-open trial reopens immediately and restarts the
// reset timer; a failure while closed opens the breaker once the
// consecutive-failure count reaches the threshold.
func recordOutcome(state breakerState, cfg breakerConfig, outcome callOutcome, now time.Time) breakerState {
	if outcome == outcomeSuccess {
		return breakerState{circuit: CircuitClosed}
	}
	state.failures++
	switch state.circuit {
	case CircuitHalfOpen:
		return breakerState{circuit: CircuitOpen, failures: state.failures, openedAt: now}
	case CircuitClosed:
		if state.failures >= cfg.failureThreshold {
			return breakerState{circuit: CircuitOpen, failures: state.failures, openedAt: now}
		}
	}
	return state
}

// admit decides whether a call may proceed at now. An open breaker whose
// reset timeout has elapsed moves to half-open here, on the eligibility
// check itself rather than on a background timer. Admissions in half-open
// consume trial slots up to halfOpenMaxCalls.
func admit(state breakerState, cfg breakerConfig, now time.Time) (breakerState, bool) {
	if state.circuit == CircuitOpen && now.Sub(state.openedAt) >= cfg.resetTimeout {
		state.circuit = CircuitHalfOpen
		state.halfOpenCalls = 0
	}
	switch state.circuit {
	case CircuitClosed:
		return state, true
	case CircuitHalfOpen:
		if state.halfOpenCalls >= cfg.halfOpenMaxCalls {
			return state, false
		}
		state.halfOpenCalls++
		return state, true
	default:
		return state, false
	}
}

// circuitBreaker guards calls to a single source. All methods are safe for
// concurrent use.
type circuitBreaker struct {
	mu     sync.Mutex
	source string
	cfg    breakerConfig
	state  breakerState
	logger *logging.Logger
	now    func() time.Time
}

func newCircuitBreaker(source string, cfg Config, logger *logging.Logger) *circuitBreaker {
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	return &circuitBreaker{
		source: source,
		cfg: breakerConfig{
			failureThreshold: cfg.FailureThreshold,
			resetTimeout:     cfg.ResetTimeout,
			halfOpenMaxCalls: cfg.HalfOpenMaxCalls,
		},
		logger: logger,
		now:    time.Now,
	}
}

// Allow reports whether a call to the source may proceed. Every admitted
// call must be followed by exactly one Record.
func (b *circuitBreaker) Allow() bool {
	b.mu.Lock()
	from := b.state.circuit
	next, ok := admit(b.state, b.cfg, b.now())
	b.state = next
	to := next.circuit
	b.mu.Unlock()

	if from != to {
		b.onTransition(from, to)
	}
	return ok
}

// Eligible reports whether a call could currently be admitted, without
// consuming a half-open trial slot or promoting the state.
func (b *circuitBreaker) Eligible() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state.circuit {
	case CircuitOpen:
		return b.now().Sub(b.state.openedAt) >= b.cfg.resetTimeout
	case CircuitHalfOpen:
		return b.state.halfOpenCalls < b.cfg.halfOpenMaxCalls
	default:
		return true
	}
}

// Record feeds one call outcome into the breaker.
func (b *circuitBreaker) Record(success bool) {
	outcome := outcomeFailure
	if success {
		outcome = outcomeSuccess
	}

	b.mu.Lock()
	from := b.state.circuit
	b.state = recordOutcome(b.state, b.cfg, outcome, b.now())
	to := b.state.circuit
	b.mu.Unlock()

	if from != to {
		b.onTransition(from, to)
	}
}

// State returns the current circuit state without mutating it. An open
// breaker past its reset timeout still reports open until the next Allow.
func (b *circuitBreaker) State() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state.circuit
}

// Failures returns the consecutive failure count.
func (b *circuitBreaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state.failures
}

func (b *circuitBreaker) onTransition(from, to CircuitState) {
	b.logger.Info("circuit breaker state changed",
		"source", b.source,
		"from", from.String(),
		"to", to.String())
	metrics.RecordCircuitState(b.source, to.String(), float64(to))
}
