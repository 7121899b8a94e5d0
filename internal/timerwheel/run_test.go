package timerwheel

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestRunFiresOneShotAcrossRealClock is an integration-style test over
// the wheel's own Run loop rather than calling tick directly, the way
// bus_test.go's unit tests do for the event bus.
func TestRunFiresOneShotAcrossRealClock(t *testing.T) {
	w := New()
	fired := make(chan struct{}, 1)

	w.CreateOneShot(func() { fired <- struct{}{} }, 20*time.Millisecond, "")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)
	defer w.Stop()

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("timer did not fire within timeout")
	}
}

func TestRunFiresPeriodicRepeatedly(t *testing.T) {
	w := New()
	fired := make(chan struct{}, 8)

	w.CreatePeriodic(func() { fired <- struct{}{} }, 15*time.Millisecond, 0, 0, "")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)
	defer w.Stop()

	require.Eventually(t, func() bool {
		return len(fired) >= 3
	}, time.Second, 10*time.Millisecond)
}
