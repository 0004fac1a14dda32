// Package resilience guards calls to a remote dependency with a circuit
// breaker.
//
// A [Breaker] counts consecutive failures. After MaxFailures it opens and
// rejects calls with [ErrOpen] until ResetTimeout has passed; it then admits
// up to HalfOpenProbes trial calls. The breaker closes once that many probes
// have succeeded and re-opens on the first failed probe.
//
// All methods are safe for concurrent use.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrOpen is returned by [Breaker.Do] while calls are being rejected.
var ErrOpen = errors.New("resilience: circuit open")

// Defaults applied by [NewBreaker] to zero config fields.
const (
	DefaultMaxFailures    = 5
	DefaultResetTimeout   = 30 * time.Second
	DefaultHalfOpenProbes = 1
)

// State is the operating mode of a [Breaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects calls until the reset timeout elapses.
	StateOpen

	// StateHalfOpen admits a limited number of probe calls.
	StateHalfOpen
)

// String returns the lowercase name of s.
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

// BreakerConfig tunes a [Breaker].
type BreakerConfig struct {
	// Name labels log lines and state change callbacks.
	Name string

	MaxFailures    int
	ResetTimeout   time.Duration
	HalfOpenProbes int

	// OnStateChange, when set, is called after every transition. It runs with
	// the breaker unlocked.
	OnStateChange func(name string, from, to State)

	// Now overrides the clock. Defaults to [time.Now].
	Now func() time.Time
}

// Breaker is a three-state circuit breaker.
type Breaker struct {
	cfg BreakerConfig

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	inFlight int // probes admitted in half-open
	probesOK int
}

// NewBreaker returns a closed Breaker.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = DefaultMaxFailures
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = DefaultResetTimeout
	}
	if cfg.HalfOpenProbes <= 0 {
		cfg.HalfOpenProbes = DefaultHalfOpenProbes
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Breaker{cfg: cfg}
}

// Do runs fn unless the breaker is rejecting calls, in which case it returns
// [ErrOpen] without calling fn. A non-nil error from fn counts as a failure
// and is returned unchanged.
func (b *Breaker) Do(fn func() error) error {
	probe, err := b.admit()
	if err != nil {
		return err
	}
	err = fn()
	b.record(probe, err == nil)
	return err
}

// State reports the current state. An open breaker whose reset timeout has
// passed reports [StateHalfOpen].
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.cooledDown() {
		return StateHalfOpen
	}
	return b.state
}

// Reset closes the breaker and clears its counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	from := b.state
	b.setLocked(StateClosed)
	b.mu.Unlock()
	if from != StateClosed {
		b.notify(from, StateClosed)
	}
}

func (b *Breaker) admit() (probe bool, err error) {
	b.mu.Lock()
	from := b.state
	if b.state == StateOpen {
		if !b.cooledDown() {
			b.mu.Unlock()
			return false, ErrOpen
		}
		b.setLocked(StateHalfOpen)
	}
	if b.state == StateHalfOpen {
		if b.inFlight+b.probesOK >= b.cfg.HalfOpenProbes {
			b.mu.Unlock()
			return false, ErrOpen
		}
		b.inFlight++
		probe = true
	}
	to := b.state
	b.mu.Unlock()
	if from != to {
		b.notify(from, to)
	}
	return probe, nil
}

func (b *Breaker) record(probe, ok bool) {
	b.mu.Lock()
	from := b.state
	switch {
	case probe && b.state == StateHalfOpen:
		b.inFlight = max(b.inFlight-1, 0)
		if !ok {
			b.setLocked(StateOpen)
			break
		}
		b.probesOK++
		if b.probesOK >= b.cfg.HalfOpenProbes {
			b.setLocked(StateClosed)
		}
	case probe:
		// A concurrent probe already decided the outcome.
	case ok:
		b.failures = 0
	default:
		b.failures++
		if b.state == StateClosed && b.failures >= b.cfg.MaxFailures {
			b.setLocked(StateOpen)
		}
	}
	to := b.state
	b.mu.Unlock()
	if from != to {
		b.notify(from, to)
	}
}

// setLocked moves to s and resets the counters for it. b.mu must be held.
func (b *Breaker) setLocked(s State) {
	b.state = s
	b.inFlight, b.probesOK = 0, 0
	switch s {
	case StateOpen:
		b.openedAt = b.cfg.Now()
	case StateClosed:
		b.failures = 0
	}
}

func (b *Breaker) cooledDown() bool {
	return b.cfg.Now().Sub(b.openedAt) >= b.cfg.ResetTimeout
}

func (b *Breaker) notify(from, to State) {
	level := slog.LevelInfo
	if to == StateOpen {
		level = slog.LevelWarn
	}
	slog.Log(context.Background(), level, "circuit breaker state changed",
		"name", b.cfg.Name, "from", from.String(), "to", to.String())
	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(b.cfg.Name, from, to)
	}
}
