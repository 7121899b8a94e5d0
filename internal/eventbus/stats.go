package eventbus

import (
	"sync/atomic"
	"time"

	"github.com/wydcore/wyd-server/internal/corerr"
)

// Stats accumulates bus-wide counters, including backpressure hits.
// All fields are updated with atomic ops so Stats can be read
// concurrently with Publish/dispatch.
type Stats struct {
	HandlerFailures uint64
	BackpressureHit uint64
}

// Snapshot returns a point-in-time copy of the bus's stats.
func (b *Bus) Snapshot() Stats {
	return Stats{
		HandlerFailures: atomic.LoadUint64(&b.stats.HandlerFailures),
		BackpressureHit: atomic.LoadUint64(&b.stats.BackpressureHit),
	}
}

// ClearStats resets all counters to zero.
func (b *Bus) ClearStats() {
	atomic.StoreUint64(&b.stats.HandlerFailures, 0)
	atomic.StoreUint64(&b.stats.BackpressureHit, 0)
}

// PublishDelayed enqueues event for dispatch at now+delay. Fails with
// corerr.CodeBackpressure if the delayed/periodic queue is at capacity.
func (b *Bus) PublishDelayed(event Event, delay time.Duration) error {
	if err := b.schedule.publishDelayed(event, delay); err != nil {
		if corerr.Is(err, corerr.CodeBackpressure) {
			atomic.AddUint64(&b.stats.BackpressureHit, 1)
		}
		return err
	}
	return nil
}

// PublishPeriodic schedules event every interval starting at
// now+initialDelay, repeatCount times (0 = unbounded), returning a
// cancelable id.
func (b *Bus) PublishPeriodic(event Event, interval, initialDelay time.Duration, repeatCount int) (string, error) {
	id, err := b.schedule.publishPeriodic(event, interval, initialDelay, repeatCount)
	if err != nil {
		if corerr.Is(err, corerr.CodeBackpressure) {
			atomic.AddUint64(&b.stats.BackpressureHit, 1)
		}
		return "", err
	}
	return id, nil
}

// CancelPeriodic stops a periodic schedule from rearming. Returns false
// if id is unknown or already canceled.
func (b *Bus) CancelPeriodic(id string) bool {
	return b.schedule.cancelPeriodic(id)
}

// QueueSize reports the number of pending delayed/periodic events.
func (b *Bus) QueueSize() int {
	return b.schedule.size()
}
