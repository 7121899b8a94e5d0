package eventbus

import (
	"testing"
	"time"
)

func BenchmarkPublishSingleSubscriber(b *testing.B) {
	b.ReportAllocs()
	bus := New(DefaultConfig())
	Subscribe(bus, 0, Handler[xEvent](func(xEvent) error { return nil }))

	b.ResetTimer()
	for range b.N {
		bus.Publish(xEvent{})
	}
}

func BenchmarkPublishManySubscribers(b *testing.B) {
	b.ReportAllocs()
	bus := New(DefaultConfig())
	for range 20 {
		Subscribe(bus, 0, Handler[xEvent](func(xEvent) error { return nil }))
	}

	b.ResetTimer()
	for range b.N {
		bus.Publish(xEvent{})
	}
}

func BenchmarkPublishDelayedEnqueue(b *testing.B) {
	b.ReportAllocs()
	bus := New(Config{WorkerCount: 0, MaxQueueSize: b.N + 1})

	b.ResetTimer()
	for range b.N {
		_ = bus.PublishDelayed(xEvent{}, time.Hour)
	}
}
