// Package timerwheel implements the core's one-shot/periodic timer
// scheduler: a real-time priority queue of active timers plus a
// pausable, scaled GameClock for gameplay systems layered on top.
package timerwheel

import (
	"container/heap"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Callback is invoked when a timer fires. A panicking callback is
// isolated and counted, never crashing the wheel's dispatch loop.
type Callback func()

// missedDeadlineThreshold is how late (past its scheduled time) a
// dispatch must be before it counts as a missed deadline.
const missedDeadlineThreshold = 100 * time.Millisecond

type timerEntry struct {
	id       uint64
	callback Callback

	nextFire time.Time
	interval time.Duration // zero for one-shot

	oneShot     bool
	repeatCount int // 0 = unbounded (periodic only)
	firedCount  int

	description string

	paused          bool
	pausedRemaining time.Duration

	canceled bool

	heapIndex int // maintained by timerHeap; -1 when not in the heap
}

type timerHeap []*timerEntry

func (h timerHeap) Len() int { return len(h) }
func (h timerHeap) Less(i, j int) bool {
	if !h[i].nextFire.Equal(h[j].nextFire) {
		return h[i].nextFire.Before(h[j].nextFire)
	}
	return h[i].id < h[j].id
}
func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapIndex, h[j].heapIndex = i, j
}
func (h *timerHeap) Push(x any) {
	e := x.(*timerEntry)
	e.heapIndex = len(*h)
	*h = append(*h, e)
}
func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.heapIndex = -1
	*h = old[:n-1]
	return e
}

// Stats accumulates wheel-wide counters.
type Stats struct {
	MissedDeadlines  uint64
	CallbackFailures uint64
}

// Wheel schedules and dispatches one-shot and periodic timers. All
// public methods are safe for concurrent use.
type Wheel struct {
	mu      sync.Mutex
	active  timerHeap
	byID    map[uint64]*timerEntry
	nextID  uint64
	stats   Stats
	stopCh  chan struct{}
	stopped bool
}

// New builds an empty Wheel.
func New() *Wheel {
	return &Wheel{
		byID:   make(map[uint64]*timerEntry),
		stopCh: make(chan struct{}),
	}
}

// CreateOneShot schedules callback to run once after delay, returning
// its id.
func (w *Wheel) CreateOneShot(callback Callback, delay time.Duration, description string) uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.nextID++
	e := &timerEntry{
		id:          w.nextID,
		callback:    callback,
		nextFire:    time.Now().Add(delay),
		oneShot:     true,
		description: description,
	}
	w.byID[e.id] = e
	heap.Push(&w.active, e)
	return e.id
}

// CreatePeriodic schedules callback to run every interval, starting
// after initialDelay, for repeatCount occurrences (0 = unbounded).
func (w *Wheel) CreatePeriodic(callback Callback, interval, initialDelay time.Duration, repeatCount int, description string) uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.nextID++
	e := &timerEntry{
		id:          w.nextID,
		callback:    callback,
		nextFire:    time.Now().Add(initialDelay),
		interval:    interval,
		repeatCount: repeatCount,
		description: description,
	}
	w.byID[e.id] = e
	heap.Push(&w.active, e)
	return e.id
}

// Cancel removes a timer permanently. Returns false if id is unknown.
func (w *Wheel) Cancel(id uint64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	e, ok := w.byID[id]
	if !ok {
		return false
	}
	e.canceled = true
	if e.heapIndex >= 0 {
		heap.Remove(&w.active, e.heapIndex)
	}
	delete(w.byID, id)
	return true
}

// Pause freezes a timer, banking its remaining time until Resume.
// Returns false if id is unknown, already paused, or canceled.
func (w *Wheel) Pause(id uint64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	e, ok := w.byID[id]
	if !ok || e.canceled || e.paused {
		return false
	}
	e.pausedRemaining = time.Until(e.nextFire)
	e.paused = true
	if e.heapIndex >= 0 {
		heap.Remove(&w.active, e.heapIndex)
	}
	return true
}

// Resume unfreezes a paused timer, continuing from its banked
// remaining time. Returns false if id is unknown, canceled, or not
// paused.
func (w *Wheel) Resume(id uint64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	e, ok := w.byID[id]
	if !ok || e.canceled || !e.paused {
		return false
	}
	e.paused = false
	e.nextFire = time.Now().Add(e.pausedRemaining)
	heap.Push(&w.active, e)
	return true
}

// ResetInterval changes a periodic timer's interval, taking effect on
// its next fire. Returns false if id is unknown, canceled, or one-shot.
func (w *Wheel) ResetInterval(id uint64, interval time.Duration) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	e, ok := w.byID[id]
	if !ok || e.canceled || e.oneShot {
		return false
	}
	e.interval = interval
	return true
}

// IsActive reports whether id refers to a timer that is neither
// canceled nor exhausted.
func (w *Wheel) IsActive(id uint64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	e, ok := w.byID[id]
	return ok && !e.canceled
}

// RemainingTime returns the duration until id's next fire. Returns
// false if id is unknown or canceled.
func (w *Wheel) RemainingTime(id uint64) (time.Duration, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	e, ok := w.byID[id]
	if !ok || e.canceled {
		return 0, false
	}
	if e.paused {
		return e.pausedRemaining, true
	}
	return time.Until(e.nextFire), true
}

// Description returns the human-readable label a timer was created
// with. Returns false if id is unknown.
func (w *Wheel) Description(id uint64) (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	e, ok := w.byID[id]
	if !ok {
		return "", false
	}
	return e.description, true
}

// Snapshot returns a point-in-time copy of the wheel's stats.
func (w *Wheel) Snapshot() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

// Run drains due timers until ctx is canceled or Stop is called. It is
// meant to run on its own goroutine, mirroring the ticker+stopCh
// cooperative shutdown idiom used by the rest of the core (and by the
// teacher's RespawnTaskManager/TickManager).
func (w *Wheel) Run(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case now := <-ticker.C:
			w.tick(now)
		}
	}
}

// Stop halts a running Run loop.
func (w *Wheel) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.stopped {
		w.stopped = true
		close(w.stopCh)
	}
}

func (w *Wheel) tick(now time.Time) {
	due := w.popDue(now)
	for _, e := range due {
		w.fire(e, now)
	}
}

func (w *Wheel) popDue(now time.Time) []*timerEntry {
	w.mu.Lock()
	defer w.mu.Unlock()

	var due []*timerEntry
	for w.active.Len() > 0 && !w.active[0].nextFire.After(now) {
		e := heap.Pop(&w.active).(*timerEntry)
		due = append(due, e)
	}
	return due
}

func (w *Wheel) fire(e *timerEntry, now time.Time) {
	if now.Sub(e.nextFire) > missedDeadlineThreshold {
		w.mu.Lock()
		w.stats.MissedDeadlines++
		w.mu.Unlock()
	}

	w.invoke(e)

	w.mu.Lock()
	defer w.mu.Unlock()

	if e.canceled {
		return
	}

	if e.oneShot {
		delete(w.byID, e.id)
		return
	}

	e.firedCount++
	if e.repeatCount != 0 && e.firedCount >= e.repeatCount {
		delete(w.byID, e.id)
		return
	}

	next := e.nextFire.Add(e.interval)
	// Resync rather than replay a backlog: if the wheel's own tick loop
	// or a slow callback let this periodic timer fall more than one
	// interval behind, jump to now+interval instead of scheduling every
	// missed occurrence back to back.
	if e.interval > 0 && now.Sub(next) > e.interval {
		next = now.Add(e.interval)
	}
	e.nextFire = next
	heap.Push(&w.active, e)
}

func (w *Wheel) invoke(e *timerEntry) {
	defer func() {
		if r := recover(); r != nil {
			w.mu.Lock()
			w.stats.CallbackFailures++
			w.mu.Unlock()
			slog.Error("timerwheel: callback panicked", "timer", e.id, "description", e.description, "panic", r)
		}
	}()
	e.callback()
}

// IDString renders a timer id for logging.
func IDString(id uint64) string {
	return fmt.Sprintf("timer-%d", id)
}
