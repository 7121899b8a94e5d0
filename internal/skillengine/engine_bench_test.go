package skillengine

import (
	"testing"
	"time"
)

func BenchmarkExecuteInstantSkill(b *testing.B) {
	e := New([]byte("k"), nil)
	e.Register(&SkillDef{ID: "jab", MaxCharges: 1000000, CooldownMs: 0})

	t0 := time.Unix(9000, 0)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		id := idForBench(i)
		e.execute(ctxFor(e, "bench-actor", id, "jab", t0), "jab", t0)
	}
}

func idForBench(i int) string {
	buf := make([]byte, 0, 12)
	buf = append(buf, "exec-"...)
	for i > 0 || len(buf) == 5 {
		buf = append(buf, byte('0'+i%10))
		i /= 10
	}
	return string(buf)
}

func BenchmarkExecuteAcrossManyActors(b *testing.B) {
	e := New([]byte("k"), nil)
	e.Register(&SkillDef{ID: "jab", MaxCharges: 1000000})
	t0 := time.Unix(9000, 0)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		actorID := idForBench(i % 64)
		e.execute(ctxFor(e, actorID, idForBench(i), "jab", t0), "jab", t0)
	}
}
