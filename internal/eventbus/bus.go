package eventbus

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
)

// subscription is one registered handler. seq breaks priority ties in
// subscription order. handler is the type-erased form Subscribe[T]
// builds via wrapHandler; everything above that call site stays typed.
type subscription struct {
	id       string
	priority int
	seq      uint64
	handler  func(Event) error
}

// Bus is the core's synchronous/async publish-subscribe hub. The zero
// value is not usable; build one with New.
type Bus struct {
	mu   sync.RWMutex
	subs map[EventType][]subscription

	nextSubID uint64

	stats Stats

	schedule *scheduleQueue
	workers  *workerPool
}

// Config controls the bus's async worker pool and delayed/periodic
// scheduling behavior.
type Config struct {
	// WorkerCount is the number of goroutines draining ready delayed/
	// periodic events when async dispatch is enabled. Zero disables the
	// async worker pool entirely (delayed/periodic events are still
	// dispatched, but synchronously from the scheduler's own loop).
	WorkerCount int
	// MaxQueueSize bounds the delayed/periodic priority queue. A publish
	// beyond this size fails with corerr.CodeBackpressure.
	MaxQueueSize int
}

// DefaultConfig is a reasonable starting point for an embedder that
// hasn't measured its own load yet.
func DefaultConfig() Config {
	return Config{WorkerCount: 4, MaxQueueSize: 1024}
}

// New builds a Bus. Call Start to begin draining the delayed/periodic
// schedule; Publish (sync) works immediately without Start.
func New(cfg Config) *Bus {
	b := &Bus{
		subs:     make(map[EventType][]subscription),
		schedule: newScheduleQueue(cfg.MaxQueueSize),
	}
	b.workers = newWorkerPool(cfg.WorkerCount, b.dispatch)
	return b
}

// Subscribe registers handler for every event of payload type T, at the
// given priority. Handlers run in strictly decreasing priority order;
// equal priorities run in subscription order. Returns a subscriber id
// for Unsubscribe. T's EventType() return value is the tag Publish
// routes on — callers never pass a tag string by hand.
func Subscribe[T Event](b *Bus, priority int, handler Handler[T]) string {
	var zero T
	tag := zero.EventType()
	return b.subscribe(tag, priority, wrapHandler(tag, handler))
}

func (b *Bus) subscribe(tag EventType, priority int, handler func(Event) error) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextSubID++
	id := fmt.Sprintf("sub-%d", b.nextSubID)

	entry := subscription{id: id, priority: priority, seq: b.nextSubID, handler: handler}
	list := append(b.subs[tag], entry)
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].priority != list[j].priority {
			return list[i].priority > list[j].priority
		}
		return list[i].seq < list[j].seq
	})
	b.subs[tag] = list

	return id
}

// Unsubscribe removes subscriber id. An unsubscribe during dispatch
// never affects the in-flight dispatch's already-taken snapshot — it
// only applies to subsequent Publish calls.
func (b *Bus) Unsubscribe(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for eventType, list := range b.subs {
		for i, s := range list {
			if s.id == id {
				b.subs[eventType] = append(list[:i:i], list[i+1:]...)
				return true
			}
		}
	}
	return false
}

// Publish dispatches event synchronously to every current subscriber of
// event.EventType(), in priority order, returning only once every
// handler has run.
func (b *Bus) Publish(event Event) {
	b.dispatch(event)
}

// snapshot returns the ordered handler list for tag under RLock,
// matching the collect-then-invoke-outside-lock pattern so a handler
// calling back into Subscribe/Unsubscribe never deadlocks.
func (b *Bus) snapshot(tag EventType) []subscription {
	b.mu.RLock()
	defer b.mu.RUnlock()

	list := b.subs[tag]
	if len(list) == 0 {
		return nil
	}
	out := make([]subscription, len(list))
	copy(out, list)
	return out
}

func (b *Bus) dispatch(event Event) {
	subs := b.snapshot(event.EventType())
	for _, s := range subs {
		b.invoke(s, event)
	}
}

func (b *Bus) invoke(s subscription, event Event) {
	defer func() {
		if r := recover(); r != nil {
			atomic.AddUint64(&b.stats.HandlerFailures, 1)
			slog.Error("eventbus: handler panicked", "subscriber", s.id, "type", event.EventType(), "panic", r)
		}
	}()

	if err := s.handler(event); err != nil {
		atomic.AddUint64(&b.stats.HandlerFailures, 1)
		slog.Error("eventbus: handler returned error", "subscriber", s.id, "type", event.EventType(), "error", err)
	}
}

// Start begins the background scheduler that drains due delayed/
// periodic events. It blocks until ctx is canceled or Stop is called.
func (b *Bus) Start(ctx context.Context) {
	b.workers.start()
	b.schedule.run(ctx, b.dispatchScheduled)
}

// dispatchScheduled is the sink the scheduler feeds with due events: if
// an async worker pool is configured, the event is submitted there;
// otherwise it dispatches inline on the scheduler's own goroutine.
func (b *Bus) dispatchScheduled(event Event) {
	if b.workers.enabled() {
		b.workers.submit(event)
		return
	}
	b.dispatch(event)
}

// Stop halts the scheduler loop and worker pool started by Start.
func (b *Bus) Stop() {
	b.schedule.stop()
	b.workers.stop()
}
