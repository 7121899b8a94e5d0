package reconnect

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// TestBackoffTrajectoryNoJitter reproduces spec §8 scenario 3 literally:
// initialDelayMs=100, backoffMultiplier=2, maxDelayMs=1000,
// useRandomization=false, maxAttempts=6 yields delays
// [100, 200, 400, 800, 1000, 1000].
func TestBackoffTrajectoryNoJitter(t *testing.T) {
	cfg := Config{
		MaxAttempts:       6,
		InitialDelay:      100 * time.Millisecond,
		BackoffMultiplier: 2,
		MaxDelay:          1000 * time.Millisecond,
		UseRandomization:  false,
	}
	c := New(cfg)

	var mu sync.Mutex
	var delays []time.Duration
	c.RegisterAttemptCallback(func(attempt int, delay time.Duration) {
		mu.Lock()
		delays = append(delays, delay)
		mu.Unlock()
	})

	done := make(chan struct{})
	c.RegisterResultCallback(func(success bool, attempts int) { close(done) })

	err := c.StartReconnection(func(ctx context.Context, attempt int) error {
		return errors.New("always fails")
	})
	if err != nil {
		t.Fatalf("StartReconnection: %v", err)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("cycle did not complete")
	}

	mu.Lock()
	defer mu.Unlock()
	want := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		1000 * time.Millisecond,
		1000 * time.Millisecond,
	}
	if len(delays) != len(want) {
		t.Fatalf("got %d delays, want %d: %v", len(delays), len(want), delays)
	}
	for i, d := range delays {
		if d != want[i] {
			t.Errorf("delay[%d] = %v, want %v", i, d, want[i])
		}
	}
}

// TestMaxAttemptsProducesExactlyNAttemptingThenFailed reproduces spec
// §8's "starting a reconnection with maxAttempts=3 ... always fails"
// property.
func TestMaxAttemptsProducesExactlyNAttemptingThenFailed(t *testing.T) {
	cfg := Config{
		MaxAttempts:       3,
		InitialDelay:      time.Millisecond,
		BackoffMultiplier: 1,
		MaxDelay:          time.Millisecond,
		UseRandomization:  false,
	}
	c := New(cfg)

	var attemptCount int
	var mu sync.Mutex
	c.RegisterAttemptCallback(func(attempt int, delay time.Duration) {
		mu.Lock()
		attemptCount++
		mu.Unlock()
	})

	resultCh := make(chan struct {
		success  bool
		attempts int
	}, 1)
	c.RegisterResultCallback(func(success bool, attempts int) {
		resultCh <- struct {
			success  bool
			attempts int
		}{success, attempts}
	})

	err := c.StartReconnection(func(ctx context.Context, attempt int) error {
		return errors.New("fail")
	})
	if err != nil {
		t.Fatalf("StartReconnection: %v", err)
	}

	select {
	case res := <-resultCh:
		if res.success {
			t.Fatal("expected failure result")
		}
		if res.attempts != 3 {
			t.Fatalf("expected 3 attempts, got %d", res.attempts)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("cycle did not complete")
	}

	if c.State() != StateFailed {
		t.Fatalf("expected terminal state Failed, got %v", c.State())
	}

	mu.Lock()
	defer mu.Unlock()
	if attemptCount != 3 {
		t.Fatalf("expected exactly 3 Attempting transitions, got %d", attemptCount)
	}
}

func TestSuccessTransitionsToSucceeded(t *testing.T) {
	cfg := Config{
		MaxAttempts:       5,
		InitialDelay:      time.Millisecond,
		BackoffMultiplier: 1,
	}
	c := New(cfg)

	done := make(chan bool, 1)
	c.RegisterResultCallback(func(success bool, attempts int) { done <- success })

	err := c.StartReconnection(func(ctx context.Context, attempt int) error {
		return nil
	})
	if err != nil {
		t.Fatalf("StartReconnection: %v", err)
	}

	select {
	case success := <-done:
		if !success {
			t.Fatal("expected success")
		}
	case <-time.After(time.Second):
		t.Fatal("cycle did not complete")
	}
	if c.State() != StateSucceeded {
		t.Fatalf("expected Succeeded, got %v", c.State())
	}
}

func TestCancelReconnectionReturnsToInactive(t *testing.T) {
	cfg := Config{
		MaxAttempts:       5,
		InitialDelay:      time.Hour,
		BackoffMultiplier: 1,
	}
	c := New(cfg)

	err := c.StartReconnection(func(ctx context.Context, attempt int) error {
		return errors.New("fail")
	})
	if err != nil {
		t.Fatalf("StartReconnection: %v", err)
	}
	if c.State() != StateWaiting {
		t.Fatalf("expected Waiting, got %v", c.State())
	}

	c.CancelReconnection()
	if c.State() != StateInactive {
		t.Fatalf("expected Inactive after cancel, got %v", c.State())
	}
}

func TestUnregisterStopsFutureCallbacks(t *testing.T) {
	c := New(DefaultConfig())
	var calls int
	id := c.RegisterQualityCallback(func(q float64) { calls++ })

	c.invokeQuality(0.5)
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}

	if !c.Unregister(id) {
		t.Fatal("expected Unregister to report removal")
	}
	c.invokeQuality(0.5)
	if calls != 1 {
		t.Fatalf("expected no additional calls after unregister, got %d", calls)
	}
}
