package cache

import (
	"errors"
	"testing"
	"time"
)

var errBackendDown = errors.New("backend down")

func TestBreaker_OpensAtThreshold(t *testing.T) {
	b := NewBreaker(3, time.Minute)

	for i := 0; i < 2; i++ {
		if err := b.Do(func() error { return errBackendDown }); !errors.Is(err, errBackendDown) {
			t.Fatalf("Do returned %v, want operation error", err)
		}
		if got := b.State(); got != BreakerClosed {
			t.Fatalf("state = %v after %d failures, want closed", got, i+1)
		}
	}

	if err := b.Do(func() error { return errBackendDown }); !errors.Is(err, errBackendDown) {
		t.Fatalf("Do returned %v, want operation error", err)
	}
	if got := b.State(); got != BreakerOpen {
		t.Fatalf("state = %v after threshold failures, want open", got)
	}

	// While open, the operation is not invoked at all.
	ran := false
	err := b.Do(func() error { ran = true; return nil })
	if !errors.Is(err, ErrBreakerOpen) {
		t.Errorf("Do while open returned %v, want ErrBreakerOpen", err)
	}
	if ran {
		t.Error("operation ran while the circuit was open")
	}
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b := NewBreaker(3, time.Minute)

	b.Do(func() error { return errBackendDown })
	b.Do(func() error { return errBackendDown })
	b.Do(func() error { return nil })
	b.Do(func() error { return errBackendDown })
	b.Do(func() error { return errBackendDown })

	if got := b.State(); got != BreakerClosed {
		t.Errorf("state = %v, want closed; a success should reset the streak", got)
	}
}

func TestBreaker_HalfOpenProbeCloses(t *testing.T) {
	b := NewBreaker(1, 20*time.Millisecond)

	b.Do(func() error { return errBackendDown })
	if got := b.State(); got != BreakerOpen {
		t.Fatalf("state = %v, want open", got)
	}

	time.Sleep(40 * time.Millisecond)
	if got := b.State(); got != BreakerHalfOpen {
		t.Fatalf("state = %v after cooldown, want half-open", got)
	}

	if err := b.Do(func() error { return nil }); err != nil {
		t.Fatalf("probe failed: %v", err)
	}
	if got := b.State(); got != BreakerClosed {
		t.Errorf("state = %v after successful probe, want closed", got)
	}
}

func TestBreaker_FailedProbeReopens(t *testing.T) {
	b := NewBreaker(1, 20*time.Millisecond)

	b.Do(func() error { return errBackendDown })
	time.Sleep(40 * time.Millisecond)

	if err := b.Do(func() error { return errBackendDown }); !errors.Is(err, errBackendDown) {
		t.Fatalf("probe returned %v, want operation error", err)
	}
	if got := b.State(); got != BreakerOpen {
		t.Errorf("state = %v after failed probe, want open", got)
	}
}

func TestBreaker_SingleProbe(t *testing.T) {
	b := NewBreaker(1, 20*time.Millisecond)

	b.Do(func() error { return errBackendDown })
	time.Sleep(40 * time.Millisecond)

	// First caller takes the probe slot; a second concurrent caller
	// must be rejected until the probe resolves.
	release := make(chan struct{})
	probeStarted := make(chan struct{})
	go b.Do(func() error {
		close(probeStarted)
		<-release
		return nil
	})
	<-probeStarted

	if err := b.Do(func() error { return nil }); !errors.Is(err, ErrBreakerOpen) {
		t.Errorf("second caller during probe returned %v, want ErrBreakerOpen", err)
	}
	close(release)
}

func TestBreaker_Reset(t *testing.T) {
	b := NewBreaker(1, time.Hour)

	b.Do(func() error { return errBackendDown })
	if got := b.State(); got != BreakerOpen {
		t.Fatalf("state = %v, want open", got)
	}

	b.Reset()
	if got := b.State(); got != BreakerClosed {
		t.Errorf("state = %v after Reset, want closed", got)
	}
	if err := b.Do(func() error { return nil }); err != nil {
		t.Errorf("Do after Reset failed: %v", err)
	}
}

func TestBreakerState_String(t *testing.T) {
	cases := map[BreakerState]string{
		BreakerClosed:   "closed",
		BreakerOpen:     "open",
		BreakerHalfOpen: "half-open",
		BreakerState(9): "unknown",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Errorf("String(%d) = %q, want %q", int(state), got, want)
		}
	}
}
