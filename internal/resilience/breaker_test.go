package resilience

import (
	"errors"
	"sync"
	"testing"
	"time"
)

var errDown = errors.New("connection refused")

// clock is a manually advanced time source.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestBreaker(t *testing.T, cfg BreakerConfig) (*Breaker, *clock, *[]string) {
	t.Helper()
	c := &clock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	var transitions []string
	cfg.Now = c.Now
	cfg.OnStateChange = func(_ string, from, to State) {
		transitions = append(transitions, from.String()+"->"+to.String())
	}
	return NewBreaker(cfg), c, &transitions
}

func fail() error    { return errDown }
func succeed() error { return nil }

func TestNewBreaker_Defaults(t *testing.T) {
	t.Parallel()
	b := NewBreaker(BreakerConfig{Name: "toolserver"})
	if b.cfg.MaxFailures != DefaultMaxFailures || b.cfg.ResetTimeout != DefaultResetTimeout || b.cfg.HalfOpenProbes != DefaultHalfOpenProbes {
		t.Errorf("cfg = %+v", b.cfg)
	}
	if b.State() != StateClosed {
		t.Errorf("initial state = %v", b.State())
	}
}

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	t.Parallel()
	b, _, transitions := newTestBreaker(t, BreakerConfig{MaxFailures: 3, ResetTimeout: time.Minute})

	for range 2 {
		if err := b.Do(fail); !errors.Is(err, errDown) {
			t.Fatalf("Do = %v, want the call's own error", err)
		}
	}
	_ = b.Do(succeed) // resets the streak
	for range 2 {
		_ = b.Do(fail)
	}
	if b.State() != StateClosed {
		t.Fatalf("state = %v after broken streak, want closed", b.State())
	}

	_ = b.Do(fail)
	if b.State() != StateOpen {
		t.Fatalf("state = %v, want open", b.State())
	}

	called := false
	err := b.Do(func() error { called = true; return nil })
	if !errors.Is(err, ErrOpen) || called {
		t.Errorf("Do while open = %v (called=%v), want ErrOpen without calling", err, called)
	}
	if got := *transitions; len(got) != 1 || got[0] != "closed->open" {
		t.Errorf("transitions = %v", got)
	}
}

func TestBreaker_HalfOpen(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		probes    int
		outcomes  []func() error
		wantState State
	}{
		{name: "single probe succeeds", probes: 1, outcomes: []func() error{succeed}, wantState: StateClosed},
		{name: "single probe fails", probes: 1, outcomes: []func() error{fail}, wantState: StateOpen},
		{name: "needs every probe", probes: 2, outcomes: []func() error{succeed}, wantState: StateHalfOpen},
		{name: "two probes succeed", probes: 2, outcomes: []func() error{succeed, succeed}, wantState: StateClosed},
		{name: "second probe fails", probes: 2, outcomes: []func() error{succeed, fail}, wantState: StateOpen},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			b, c, _ := newTestBreaker(t, BreakerConfig{MaxFailures: 1, ResetTimeout: time.Minute, HalfOpenProbes: tc.probes})
			_ = b.Do(fail)

			c.Advance(59 * time.Second)
			if err := b.Do(succeed); !errors.Is(err, ErrOpen) {
				t.Fatalf("Do before reset timeout = %v, want ErrOpen", err)
			}
			c.Advance(time.Second)
			if b.State() != StateHalfOpen {
				t.Fatalf("state after timeout = %v, want half-open", b.State())
			}

			for _, fn := range tc.outcomes {
				_ = b.Do(fn)
			}
			if got := b.State(); got != tc.wantState {
				t.Errorf("state = %v, want %v", got, tc.wantState)
			}
		})
	}
}

func TestBreaker_HalfOpenLimitsConcurrentProbes(t *testing.T) {
	t.Parallel()
	b, c, _ := newTestBreaker(t, BreakerConfig{MaxFailures: 1, ResetTimeout: time.Second})
	_ = b.Do(fail)
	c.Advance(time.Second)

	release := make(chan struct{})
	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- b.Do(func() error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	if err := b.Do(succeed); !errors.Is(err, ErrOpen) {
		t.Errorf("second probe = %v, want ErrOpen", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Errorf("probe = %v", err)
	}
	if b.State() != StateClosed {
		t.Errorf("state = %v, want closed", b.State())
	}
}

func TestBreaker_Reset(t *testing.T) {
	t.Parallel()
	b, _, transitions := newTestBreaker(t, BreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour})
	b.Reset() // no-op on a closed breaker
	_ = b.Do(fail)
	b.Reset()

	if b.State() != StateClosed {
		t.Errorf("state = %v, want closed", b.State())
	}
	if err := b.Do(succeed); err != nil {
		t.Errorf("Do after reset = %v", err)
	}
	want := []string{"closed->open", "open->closed"}
	if got := *transitions; len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("transitions = %v, want %v", got, want)
	}
}

func TestState_String(t *testing.T) {
	t.Parallel()
	for s, want := range map[State]string{StateClosed: "closed", StateOpen: "open", StateHalfOpen: "half-open", State(9): "unknown"} {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", s, got, want)
		}
	}
}
