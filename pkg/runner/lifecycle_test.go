package runner

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeDrainer struct {
	called bool
	delay  time.Duration
}

func (d *fakeDrainer) Drain() error {
	d.called = true
	time.Sleep(d.delay)
	return nil
}

func TestLifecycleRunsHooksAndDrains(t *testing.T) {
	d := &fakeDrainer{}
	started := false
	stopped := false
	r := NewLifecycleRunner(d, Hooks{
		OnStart: func() { started = true },
		OnStop:  func() { stopped = true },
	}, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	waitForState(t, r, StateRunning)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run returned error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("run did not return after cancel")
	}
	if !started || !stopped {
		t.Fatalf("hooks not invoked: start=%v stop=%v", started, stopped)
	}
	if !d.called {
		t.Fatalf("drainer not invoked")
	}
	if r.State() != StateStopped {
		t.Fatalf("expected StateStopped, got %v", r.State())
	}
}

func TestLifecycleDrainTimeout(t *testing.T) {
	d := &fakeDrainer{delay: 200 * time.Millisecond}
	r := NewLifecycleRunner(d, Hooks{}, 10*time.Millisecond)
	go func() { _ = r.Run(context.Background()) }()
	waitForState(t, r, StateRunning)
	err := r.Stop()
	if err == nil || err.Error() != "drain timeout" {
		t.Fatalf("expected drain timeout, got %v", err)
	}
}

func TestLifecycleStopIsIdempotent(t *testing.T) {
	r := NewLifecycleRunner(nil, Hooks{}, time.Second)
	go func() { _ = r.Run(context.Background()) }()
	waitForState(t, r, StateRunning)
	if err := r.Stop(); err != nil {
		t.Fatalf("first stop: %v", err)
	}
	if err := r.Stop(); err != nil {
		t.Fatalf("second stop: %v", err)
	}
	if r.State() != StateStopped {
		t.Fatalf("expected StateStopped, got %v", r.State())
	}
}

func TestLifecycleRejectsDoubleRun(t *testing.T) {
	r := NewLifecycleRunner(nil, Hooks{}, time.Second)
	go func() { _ = r.Run(context.Background()) }()
	waitForState(t, r, StateRunning)
	if err := r.Run(context.Background()); err == nil {
		t.Fatalf("expected invalid state transition")
	}
	_ = r.Stop()
}

func waitForState(t *testing.T, r *LifecycleRunner, want State) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if r.State() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("state %v never reached (at %v): %v", want, r.State(), errors.New("timeout"))
}
