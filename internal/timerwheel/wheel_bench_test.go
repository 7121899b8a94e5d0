package timerwheel

import (
	"testing"
	"time"
)

func BenchmarkCreateOneShot(b *testing.B) {
	b.ReportAllocs()
	w := New()

	b.ResetTimer()
	for range b.N {
		w.CreateOneShot(func() {}, time.Hour, "")
	}
}

func BenchmarkTickManyTimers(b *testing.B) {
	b.ReportAllocs()
	w := New()
	for range 1000 {
		w.CreateOneShot(func() {}, time.Hour, "")
	}

	b.ResetTimer()
	for range b.N {
		w.tick(time.Now().Add(-time.Hour))
	}
}

func BenchmarkCancel(b *testing.B) {
	w := New()
	ids := make([]uint64, b.N)
	for i := range ids {
		ids[i] = w.CreateOneShot(func() {}, time.Hour, "")
	}

	b.ReportAllocs()
	b.ResetTimer()
	for _, id := range ids {
		w.Cancel(id)
	}
}
