package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"
)

var errTest = errors.New("test error")

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{t: time.Unix(1_700_000_000, 0)} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestBreaker(clock *fakeClock, maxFailures int) *Breaker {
	return NewBreaker(BreakerConfig{
		Name:         "test",
		MaxFailures:  maxFailures,
		ResetTimeout: time.Minute,
		Logger:       slog.New(slog.DiscardHandler),
		Now:          clock.Now,
	})
}

func trip(b *Breaker, n int) {
	for range n {
		_ = b.Do(func() error { return errTest })
	}
}

func TestNewBreaker_Defaults(t *testing.T) {
	b := NewBreaker(BreakerConfig{Name: "test"})
	if b.maxFailures != 5 {
		t.Errorf("maxFailures = %d, want 5", b.maxFailures)
	}
	if b.resetTimeout != 30*time.Second {
		t.Errorf("resetTimeout = %v, want 30s", b.resetTimeout)
	}
	if b.State() != StateClosed {
		t.Errorf("initial state = %v, want closed", b.State())
	}
}

func TestBreaker_ClosedToOpen(t *testing.T) {
	b := newTestBreaker(newFakeClock(), 3)

	trip(b, 2)
	if b.State() != StateClosed {
		t.Fatalf("state = %v, want closed below the failure limit", b.State())
	}
	trip(b, 1)
	if b.State() != StateOpen {
		t.Fatalf("state = %v, want open after 3 failures", b.State())
	}

	called := false
	err := b.Do(func() error { called = true; return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("err = %v, want ErrCircuitOpen", err)
	}
	if called {
		t.Error("fn must not run while open")
	}
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b := newTestBreaker(newFakeClock(), 3)

	trip(b, 2)
	_ = b.Do(func() error { return nil })
	trip(b, 2)
	if b.State() != StateClosed {
		t.Fatalf("state = %v, want closed; a success resets the count", b.State())
	}
}

func TestBreaker_HalfOpenProbe(t *testing.T) {
	tests := []struct {
		name  string
		probe error
		want  State
	}{
		{"success closes", nil, StateClosed},
		{"failure reopens", errTest, StateOpen},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := newFakeClock()
			b := newTestBreaker(clock, 1)
			trip(b, 1)

			clock.Advance(59 * time.Second)
			if b.State() != StateOpen {
				t.Fatalf("state = %v, want open before the reset timeout", b.State())
			}
			clock.Advance(time.Second)
			if b.State() != StateHalfOpen {
				t.Fatalf("state = %v, want half-open after the reset timeout", b.State())
			}

			err := b.Do(func() error { return tt.probe })
			if !errors.Is(err, tt.probe) {
				t.Fatalf("probe err = %v, want %v", err, tt.probe)
			}
			if got := b.State(); got != tt.want {
				t.Errorf("state = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBreaker_HalfOpenAdmitsOneProbe(t *testing.T) {
	clock := newFakeClock()
	b := newTestBreaker(clock, 1)
	trip(b, 1)
	clock.Advance(time.Minute)

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

	if err := b.Do(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("concurrent call during probe: err = %v, want ErrCircuitOpen", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("probe: %v", err)
	}
	if b.State() != StateClosed {
		t.Errorf("state = %v, want closed", b.State())
	}
}

func TestBreaker_Reset(t *testing.T) {
	b := newTestBreaker(newFakeClock(), 1)
	trip(b, 1)
	b.Reset()
	if b.State() != StateClosed {
		t.Fatalf("state = %v, want closed after reset", b.State())
	}
	if err := b.Do(func() error { return nil }); err != nil {
		t.Fatalf("unexpected error after reset: %v", err)
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half-open"},
		{State(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
