package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errStore = errors.New("consent store unreachable")

// clock is a manually advanced time source.
type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(maxFailures int) (*Breaker, *clock) {
	c := &clock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	b := NewBreaker(maxFailures, 30*time.Second)
	b.now = c.now
	return b, c
}

func fail() error { return errStore }
func ok() error   { return nil }

func TestBreakerStateWalk(t *testing.T) {
	tests := []struct {
		name  string
		steps []func() error
		wait  time.Duration
		then  func() error
		want  State
		err   error
	}{
		{name: "closed passes calls", then: ok, want: StateClosed},
		{name: "trips at threshold", steps: []func() error{fail, fail, fail}, then: ok, want: StateOpen, err: ErrCircuitOpen},
		{name: "below threshold stays closed", steps: []func() error{fail, fail}, then: ok, want: StateClosed},
		{name: "success resets run", steps: []func() error{fail, fail, ok, fail, fail}, then: ok, want: StateClosed},
		{name: "trial success closes", steps: []func() error{fail, fail, fail}, wait: time.Minute, then: ok, want: StateClosed},
		{name: "trial failure reopens", steps: []func() error{fail, fail, fail}, wait: time.Minute, then: fail, want: StateOpen, err: errStore},
		{name: "open before timeout rejects", steps: []func() error{fail, fail, fail}, wait: 10 * time.Second, then: ok, want: StateOpen, err: ErrCircuitOpen},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, c := newTestBreaker(3)
			for _, step := range tt.steps {
				_ = b.Execute(step)
			}
			c.advance(tt.wait)

			err := b.Execute(tt.then)
			if !errors.Is(err, tt.err) {
				t.Fatalf("Execute() error = %v, want %v", err, tt.err)
			}
			if got := b.State(); got != tt.want {
				t.Fatalf("State() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestReopenedBreakerRejectsUntilNextTimeout(t *testing.T) {
	b, c := newTestBreaker(1)
	_ = b.Execute(fail)
	c.advance(time.Minute)
	_ = b.Execute(fail)

	if err := b.Execute(ok); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	c.advance(time.Minute)
	if b.State() != StateHalfOpen {
		t.Fatalf("expected half-open, got %s", b.State())
	}
}

func TestNonFailureErrorsDoNotTrip(t *testing.T) {
	errMiss := errors.New("row missing")
	b := NewBreaker(1, time.Second, WithFailureFilter(func(err error) bool {
		return !errors.Is(err, errMiss)
	}))

	for range 3 {
		if err := b.Execute(func() error { return errMiss }); !errors.Is(err, errMiss) {
			t.Fatalf("expected errMiss passthrough, got %v", err)
		}
	}
	if b.State() != StateClosed {
		t.Fatalf("expected closed, got %s", b.State())
	}
}

func TestCallerCancellationDoesNotTrip(t *testing.T) {
	b := NewBreaker(1, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_ = b.Do(ctx, func(ctx context.Context) error { return ctx.Err() })
	if b.State() != StateClosed {
		t.Fatalf("expected closed, got %s", b.State())
	}
}

func TestHalfOpenAllowsSingleTrialCall(t *testing.T) {
	b, c := newTestBreaker(1)
	_ = b.Execute(fail)
	c.advance(time.Minute)

	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- b.Execute(func() error {
			<-release
			return nil
		})
	}()

	// Wait until the trial call holds the half-open slot.
	deadline := time.Now().Add(time.Second)
	for {
		b.mu.Lock()
		probing := b.probing
		b.mu.Unlock()
		if probing || time.Now().After(deadline) {
			break
		}
		time.Sleep(time.Millisecond)
	}

	if err := b.Execute(ok); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected concurrent trial rejected, got %v", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("trial call failed: %v", err)
	}
	if b.State() != StateClosed {
		t.Fatalf("expected closed after trial, got %s", b.State())
	}
}

func TestStateChangeCallback(t *testing.T) {
	var transitions []string
	b := NewBreaker(1, time.Second, WithName("consent"), WithStateChange(func(name string, from, to State) {
		transitions = append(transitions, name+":"+from.String()+"->"+to.String())
	}))
	_ = b.Execute(fail)

	if len(transitions) != 1 || transitions[0] != "consent:closed->open" {
		t.Fatalf("transitions = %v", transitions)
	}
}
