package health

import (
	"sync"
	"time"
)

// BreakerState is the circuit breaker state.
type BreakerState string

const (
	// BreakerClosed permits calls; failures are counted.
	BreakerClosed BreakerState = "closed"

	// BreakerOpen rejects calls until the retry deadline passes.
	BreakerOpen BreakerState = "open"

	// BreakerHalfOpen permits a single trial call to probe recovery.
	BreakerHalfOpen BreakerState = "half-open"
)

// BreakerConfig configures circuit breaker thresholds and timeouts.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures before the
	// circuit opens. Default: 3.
	FailureThreshold int

	// ResetTimeout is how long an open circuit rejects calls before a
	// half-open trial is permitted. Default: 60s.
	ResetTimeout time.Duration

	// HalfOpenCooldown is the retry deadline applied when a half-open
	// trial fails. Shorter than ResetTimeout so recovery is detected
	// promptly once the initial outage window has passed. Default: 30s.
	HalfOpenCooldown time.Duration
}

// DefaultBreakerConfig returns the default breaker configuration.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 3,
		ResetTimeout:     60 * time.Second,
		HalfOpenCooldown: 30 * time.Second,
	}
}

func sanitizeBreakerConfig(cfg BreakerConfig) BreakerConfig {
	defaults := DefaultBreakerConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = defaults.FailureThreshold
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = defaults.ResetTimeout
	}
	if cfg.HalfOpenCooldown <= 0 {
		cfg.HalfOpenCooldown = defaults.HalfOpenCooldown
	}
	return cfg
}

// TransitionFunc observes breaker state changes. Used for metrics; it must
// not block.
type TransitionFunc func(dependency string, state BreakerState)

// Breaker is a three-state circuit guard for one external dependency.
//
// Transitions only move forward through closed -> open -> half-open ->
// closed, or half-open -> open on a renewed failure; an open circuit never
// closes without passing through half-open.
//
// Allow is advisory: it reports availability without consuming the trial.
// The half-open trial is consumed when its outcome is recorded, so repeated
// availability checks between a trial and its outcome return the same
// answer. Callers must check Allow before the dependent call and record the
// outcome afterward.
type Breaker struct {
	mu           sync.Mutex
	name         string
	state        BreakerState
	failures     int
	lastFailure  time.Time
	nextRetry    time.Time
	cfg          BreakerConfig
	now          func() time.Time
	onTransition TransitionFunc
}

// NewBreaker creates a closed breaker for the named dependency.
func NewBreaker(name string, cfg BreakerConfig) *Breaker {
	return &Breaker{
		name:  name,
		state: BreakerClosed,
		cfg:   sanitizeBreakerConfig(cfg),
		now:   time.Now,
	}
}

// Allow reports whether a call to the dependency is currently permitted.
// An open circuit whose retry deadline has passed moves to half-open and
// permits the trial.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		return true
	case BreakerOpen:
		if b.now().Before(b.nextRetry) {
			return false
		}
		b.transition(BreakerHalfOpen)
		return true
	case BreakerHalfOpen:
		return true
	default:
		return false
	}
}

// RecordSuccess resets the breaker to closed and clears the failure count.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	if b.state != BreakerClosed {
		b.transition(BreakerClosed)
	}
}

// RecordFailure increments the failure count and opens the circuit when the
// threshold is reached. A failed half-open trial reopens with the shorter
// cooldown deadline.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.lastFailure = b.now()

	switch b.state {
	case BreakerHalfOpen:
		b.nextRetry = b.now().Add(b.cfg.HalfOpenCooldown)
		b.transition(BreakerOpen)
	case BreakerClosed:
		if b.failures >= b.cfg.FailureThreshold {
			b.nextRetry = b.now().Add(b.cfg.ResetTimeout)
			b.transition(BreakerOpen)
		}
	case BreakerOpen:
		// Already open; the deadline stands.
	}
}

// State returns the current breaker state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Snapshot returns the breaker's observable state for diagnostics.
func (b *Breaker) Snapshot() BreakerSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BreakerSnapshot{
		Name:        b.name,
		State:       b.state,
		Failures:    b.failures,
		LastFailure: b.lastFailure,
		NextRetry:   b.nextRetry,
	}
}

// BreakerSnapshot is a point-in-time copy of breaker state.
type BreakerSnapshot struct {
	Name        string       `json:"name"`
	State       BreakerState `json:"state"`
	Failures    int          `json:"failures"`
	LastFailure time.Time    `json:"last_failure,omitempty"`
	NextRetry   time.Time    `json:"next_retry,omitempty"`
}

// transition changes state while the lock is held.
func (b *Breaker) transition(next BreakerState) {
	b.state = next
	if b.onTransition != nil {
		b.onTransition(b.name, next)
	}
}

// BreakerSet holds one breaker per external dependency, created lazily on
// first use. It is safe for concurrent use across requests.
type BreakerSet struct {
	mu           sync.Mutex
	breakers     map[string]*Breaker
	cfg          BreakerConfig
	now          func() time.Time
	onTransition TransitionFunc
}

// NewBreakerSet creates an empty breaker set sharing one configuration.
func NewBreakerSet(cfg BreakerConfig) *BreakerSet {
	return &BreakerSet{
		breakers: make(map[string]*Breaker),
		cfg:      sanitizeBreakerConfig(cfg),
		now:      time.Now,
	}
}

// OnTransition registers an observer for state changes on all breakers in
// the set, including those created later.
func (s *BreakerSet) OnTransition(fn TransitionFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onTransition = fn
	for _, b := range s.breakers {
		b.mu.Lock()
		b.onTransition = fn
		b.mu.Unlock()
	}
}

// Get returns the breaker for the named dependency, creating it if needed.
func (s *BreakerSet) Get(name string) *Breaker {
	s.mu.Lock()
	defer s.mu.Unlock()

	if b, ok := s.breakers[name]; ok {
		return b
	}
	b := NewBreaker(name, s.cfg)
	b.now = s.now
	b.onTransition = s.onTransition
	s.breakers[name] = b
	return b
}

// Snapshots returns diagnostics for every breaker in the set.
func (s *BreakerSet) Snapshots() []BreakerSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]BreakerSnapshot, 0, len(s.breakers))
	for _, b := range s.breakers {
		out = append(out, b.Snapshot())
	}
	return out
}
