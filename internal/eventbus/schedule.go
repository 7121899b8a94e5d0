package eventbus

import (
	"container/heap"
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wydcore/wyd-server/internal/corerr"
)

// scheduledItem is one entry in the delayed/periodic priority queue,
// ordered by dispatchAt then by seq: ready timers drain in time order,
// and ties break by insertion order.
type scheduledItem struct {
	event      Event
	dispatchAt time.Time
	seq        uint64

	periodic *periodicSpec
	index    int // heap.Interface bookkeeping
}

type periodicSpec struct {
	id          string
	intervalMs  int64
	repeatCount int // 0 = unbounded
	fired       int
	canceled    atomic.Bool
}

type itemHeap []*scheduledItem

func (h itemHeap) Len() int { return len(h) }
func (h itemHeap) Less(i, j int) bool {
	if !h[i].dispatchAt.Equal(h[j].dispatchAt) {
		return h[i].dispatchAt.Before(h[j].dispatchAt)
	}
	return h[i].seq < h[j].seq
}
func (h itemHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index, h[j].index = i, j
}
func (h *itemHeap) Push(x any) {
	item := x.(*scheduledItem)
	item.index = len(*h)
	*h = append(*h, item)
}
func (h *itemHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[:n-1]
	return item
}

// scheduleQueue holds the bus's delayed/periodic events. It is bounded
// at maxSize; Publish beyond that fails with CodeBackpressure.
type scheduleQueue struct {
	mu      sync.Mutex
	heap    itemHeap
	maxSize int
	nextSeq uint64

	periodics map[string]*periodicSpec

	stopCh  chan struct{}
	stopped atomic.Bool
}

func newScheduleQueue(maxSize int) *scheduleQueue {
	if maxSize <= 0 {
		maxSize = DefaultConfig().MaxQueueSize
	}
	return &scheduleQueue{
		maxSize:   maxSize,
		periodics: make(map[string]*periodicSpec),
		stopCh:    make(chan struct{}),
	}
}

// size reports the number of pending items, for Stats/tests.
func (q *scheduleQueue) size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.heap.Len()
}

func (q *scheduleQueue) pushLocked(item *scheduledItem) error {
	if q.heap.Len() >= q.maxSize {
		return corerr.New(corerr.CodeBackpressure, "eventbus: delayed/periodic queue is full")
	}
	heap.Push(&q.heap, item)
	return nil
}

// publishDelayed enqueues event for dispatch at now+delay.
func (q *scheduleQueue) publishDelayed(event Event, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.nextSeq++
	item := &scheduledItem{event: event, dispatchAt: time.Now().Add(delay), seq: q.nextSeq}
	return q.pushLocked(item)
}

// publishPeriodic schedules event every interval, starting at
// now+initialDelay, for repeatCount occurrences (0 = unbounded).
// Returns an id usable with cancelPeriodic.
func (q *scheduleQueue) publishPeriodic(event Event, interval, initialDelay time.Duration, repeatCount int) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.nextSeq++
	id := formatScheduleID(q.nextSeq)
	spec := &periodicSpec{id: id, intervalMs: interval.Milliseconds(), repeatCount: repeatCount}
	q.periodics[id] = spec

	item := &scheduledItem{
		event:      event,
		dispatchAt: time.Now().Add(initialDelay),
		seq:        q.nextSeq,
		periodic:   spec,
	}
	if err := q.pushLocked(item); err != nil {
		delete(q.periodics, id)
		return "", err
	}
	return id, nil
}

// cancelPeriodic stops a periodic schedule from rearming after its next
// already-queued occurrence (if any) fires. Returns false if id is
// unknown.
func (q *scheduleQueue) cancelPeriodic(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	spec, ok := q.periodics[id]
	if !ok {
		return false
	}
	spec.canceled.Store(true)
	delete(q.periodics, id)
	return true
}

// drainDue pops every item whose dispatchAt has arrived and rearms
// periodic items that have not been canceled or exhausted. It returns
// the due events in dispatch order.
func (q *scheduleQueue) drainDue(now time.Time) []Event {
	q.mu.Lock()
	defer q.mu.Unlock()

	var due []Event
	for q.heap.Len() > 0 && !q.heap[0].dispatchAt.After(now) {
		item := heap.Pop(&q.heap).(*scheduledItem)
		due = append(due, item.event)

		if item.periodic == nil || item.periodic.canceled.Load() {
			continue
		}
		item.periodic.fired++
		if item.periodic.repeatCount != 0 && item.periodic.fired >= item.periodic.repeatCount {
			delete(q.periodics, item.periodic.id)
			continue
		}

		interval := time.Duration(item.periodic.intervalMs) * time.Millisecond
		next := item.dispatchAt.Add(interval)
		// Resync rather than replay backlog: a periodic schedule whose
		// handler or scheduler tick lagged by
		// more than one interval jumps to now+interval instead of
		// catching up every missed tick.
		if now.Sub(next) > interval {
			next = now.Add(interval)
		}
		q.nextSeq++
		_ = q.pushLocked(&scheduledItem{
			event:      item.event,
			dispatchAt: next,
			seq:        q.nextSeq,
			periodic:   item.periodic,
		})
	}
	return due
}

// run drains due events every tick until ctx is canceled or stop is
// called, feeding each to submit. Mirrors the ticker+stopCh cooperative
// shutdown idiom used throughout the rest of the core.
func (q *scheduleQueue) run(ctx context.Context, submit func(Event)) {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.stopCh:
			return
		case now := <-ticker.C:
			for _, ev := range q.drainDue(now) {
				submit(ev)
			}
		}
	}
}

func (q *scheduleQueue) stop() {
	if q.stopped.CompareAndSwap(false, true) {
		close(q.stopCh)
	}
}

func formatScheduleID(seq uint64) string {
	return fmt.Sprintf("periodic-%d", seq)
}
