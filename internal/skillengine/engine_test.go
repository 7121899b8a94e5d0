package skillengine

import (
	"sync"
	"testing"
	"time"
)

type stubSink struct {
	mu      sync.Mutex
	reports []ViolationReport
}

func (s *stubSink) Report(r ViolationReport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = append(s.reports, r)
}

func (s *stubSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.reports)
}

func ctxFor(e *Engine, actorID, execID, skillID string, ts time.Time) ExecutionContext {
	return ExecutionContext{
		Actor:           ActorSnapshot{ActorID: actorID},
		ExecutionID:     execID,
		ClientTimestamp: ts,
		SecurityToken:   e.attest.Token(actorID, execID, skillID, ts),
	}
}

// TestCooldownRejectsThenAcceptsAtExactBoundary reproduces spec §8's
// literal cooldown property: cooldownMs=1000, succeed at T, reject at
// T+500, accept at T+1001.
func TestCooldownRejectsThenAcceptsAtExactBoundary(t *testing.T) {
	e := New([]byte("k"), nil)
	e.Register(&SkillDef{ID: "fireball", CooldownMs: time.Second, MaxCharges: 1})

	t0 := time.Unix(1000, 0)
	res, err := e.execute(ctxFor(e, "actor1", "exec-1", "fireball", t0), "fireball", t0)
	if err != nil || res.Outcome != OutcomeSuccess {
		t.Fatalf("expected Success at t0, got %+v err=%v", res, err)
	}

	res, _ = e.execute(ctxFor(e, "actor1", "exec-2", "fireball", t0.Add(500*time.Millisecond)), "fireball", t0.Add(500*time.Millisecond))
	if res.Outcome != OutcomeFailedCooldown {
		t.Fatalf("expected FailedCooldown at T+500, got %v", res.Outcome)
	}

	res, _ = e.execute(ctxFor(e, "actor1", "exec-3", "fireball", t0.Add(1001*time.Millisecond)), "fireball", t0.Add(1001*time.Millisecond))
	if res.Outcome != OutcomeSuccess {
		t.Fatalf("expected Success at T+1001, got %v", res.Outcome)
	}
}

// TestMaxChargesRejectsFourthUntilRegeneration reproduces spec §8's
// maxCharges=3 property.
func TestMaxChargesRejectsFourthUntilRegeneration(t *testing.T) {
	e := New([]byte("k"), nil)
	e.Register(&SkillDef{ID: "volley", MaxCharges: 3, ChargeRestoreMs: 200 * time.Millisecond})

	t0 := time.Unix(2000, 0)
	for i := 0; i < 3; i++ {
		res, _ := e.execute(ctxFor(e, "actor2", idFor(i), "volley", t0), "volley", t0)
		if res.Outcome != OutcomeSuccess {
			t.Fatalf("expected Success on execute %d, got %v", i, res.Outcome)
		}
	}
	res, _ := e.execute(ctxFor(e, "actor2", "exec-4th", "volley", t0), "volley", t0)
	if res.Outcome != OutcomeFailedNoCharges {
		t.Fatalf("expected FailedNoCharges on 4th, got %v", res.Outcome)
	}

	after := t0.Add(250 * time.Millisecond)
	res, _ = e.execute(ctxFor(e, "actor2", "exec-regen", "volley", after), "volley", after)
	if res.Outcome != OutcomeSuccess {
		t.Fatalf("expected Success after a charge regenerates, got %v", res.Outcome)
	}
}

func idFor(i int) string {
	return "exec-" + string(rune('a'+i))
}

// TestComboWindowAppliesMultiplierOnlyInsideWindow reproduces spec §8
// scenario 4 literally.
func TestComboWindowAppliesMultiplierOnlyInsideWindow(t *testing.T) {
	e := New([]byte("k"), nil)
	e.Register(&SkillDef{ID: "A", CooldownMs: 200 * time.Millisecond, MaxCharges: 1})
	e.Register(&SkillDef{ID: "B", CooldownMs: 200 * time.Millisecond, MaxCharges: 1})
	if err := e.RegisterCombo("B", "A", ComboStep{
		WindowStart:      50 * time.Millisecond,
		WindowDuration:   250 * time.Millisecond,
		DamageMultiplier: 1.5,
	}); err != nil {
		t.Fatalf("RegisterCombo: %v", err)
	}

	t0 := time.Unix(3000, 0)
	res, _ := e.execute(ctxFor(e, "actor3", "a-1", "A", t0), "A", t0)
	if res.Outcome != OutcomeSuccess {
		t.Fatalf("expected A to succeed, got %v", res.Outcome)
	}

	withinWindow := t0.Add(300 * time.Millisecond)
	res, _ = e.execute(ctxFor(e, "actor3", "b-1", "B", withinWindow), "B", withinWindow)
	if res.Outcome != OutcomeSuccess || res.DamageMultiplier != 1.5 {
		t.Fatalf("expected Success with 1.5x multiplier at +300ms, got %+v", res)
	}

	// Reset the actor for the off-combo execution of A, B again.
	e2 := New([]byte("k"), nil)
	e2.Register(&SkillDef{ID: "A", CooldownMs: 200 * time.Millisecond, MaxCharges: 1})
	e2.Register(&SkillDef{ID: "B", CooldownMs: 200 * time.Millisecond, MaxCharges: 1})
	e2.RegisterCombo("B", "A", ComboStep{
		WindowStart:      50 * time.Millisecond,
		WindowDuration:   250 * time.Millisecond,
		DamageMultiplier: 1.5,
	})
	e2.execute(ctxFor(e2, "actor4", "a-2", "A", t0), "A", t0)
	outsideWindow := t0.Add(600 * time.Millisecond)
	res, _ = e2.execute(ctxFor(e2, "actor4", "b-2", "B", outsideWindow), "B", outsideWindow)
	if res.Outcome != OutcomeSuccess || res.DamageMultiplier != 1.0 {
		t.Fatalf("expected Success without bonus at +600ms, got %+v", res)
	}
}

// TestInterruptPriorityGatesSuccess reproduces spec §8 scenario 6.
func TestInterruptPriorityGatesSuccess(t *testing.T) {
	e := New([]byte("k"), nil)
	e.Register(&SkillDef{ID: "channel-low", Interruptible: true, MinInterruptPriority: 0, PreparationMs: time.Second})
	e.Register(&SkillDef{ID: "channel-high", Interruptible: true, MinInterruptPriority: 5, PreparationMs: time.Second})

	t0 := time.Unix(4000, 0)
	e.execute(ctxFor(e, "actor5", "low-exec", "channel-low", t0), "channel-low", t0)
	ir, err := e.interrupt("actor5", "channel-low", "low-exec", 1, t0.Add(500*time.Millisecond))
	if err != nil || ir.Outcome != InterruptSuccess {
		t.Fatalf("expected InterruptSuccess, got %+v err=%v", ir, err)
	}

	t1 := time.Unix(4002, 0)
	e.execute(ctxFor(e, "actor5", "high-exec", "channel-high", t1), "channel-high", t1)
	ir, _ = e.interrupt("actor5", "channel-high", "high-exec", 1, t1.Add(500*time.Millisecond))
	if ir.Outcome != InterruptFailedPriority {
		t.Fatalf("expected InterruptFailedPriority, got %v", ir.Outcome)
	}
	// Execution should still be mid-flight (Preparation), not reset.
	actorAny, _ := e.actors.Load("actor5")
	actor := actorAny.(*actorState)
	actor.mu.Lock()
	rt := actor.skills["channel-high"]
	phase := rt.phase
	actor.mu.Unlock()
	if phase != PhasePreparation {
		t.Fatalf("expected execution to continue in Preparation, got %v", phase)
	}
}

// TestConcurrentExecuteConsumesExactlyOneCharge reproduces spec §8's
// concurrency property for a single-charge skill.
func TestConcurrentExecuteConsumesExactlyOneCharge(t *testing.T) {
	e := New([]byte("k"), nil)
	e.Register(&SkillDef{ID: "burst", MaxCharges: 1, CooldownMs: time.Hour})

	t0 := time.Unix(5000, 0)
	var wg sync.WaitGroup
	results := make([]Outcome, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, _ := e.execute(ctxFor(e, "actor6", idFor(i), "burst", t0), "burst", t0)
			results[i] = res.Outcome
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, r := range results {
		if r == OutcomeSuccess {
			successes++
		}
	}
	if successes != 1 {
		t.Fatalf("expected exactly one Success, got %d: %v", successes, results)
	}
}

// TestExecutionIDReuseReportsTokenMismatch reproduces spec §8's
// anti-cheat replay property.
func TestExecutionIDReuseReportsTokenMismatch(t *testing.T) {
	sink := &stubSink{}
	e := New([]byte("k"), sink)
	e.Register(&SkillDef{ID: "snipe", MaxCharges: 5})

	t0 := time.Unix(6000, 0)
	ctx := ctxFor(e, "actor7", "dup-exec", "snipe", t0)
	res, _ := e.execute(ctx, "snipe", t0)
	if res.Outcome != OutcomeSuccess {
		t.Fatalf("expected first call to succeed, got %v", res.Outcome)
	}

	res, _ = e.execute(ctx, "snipe", t0.Add(time.Millisecond))
	if res.Outcome != OutcomeFailedSecurity {
		t.Fatalf("expected FailedSecurity on reuse, got %v", res.Outcome)
	}
	if sink.count() != 1 || sink.reports[0].Type != "TokenMismatch" {
		t.Fatalf("expected a TokenMismatch report, got %+v", sink.reports)
	}
}

func TestRequirementsGateExecution(t *testing.T) {
	e := New([]byte("k"), nil)
	e.Register(&SkillDef{ID: "holy-strike", MaxCharges: 1, RequiredFlags: []string{"buff:blessed"}})

	t0 := time.Unix(7000, 0)
	ctx := ctxFor(e, "actor8", "req-exec", "holy-strike", t0)
	res, _ := e.execute(ctx, "holy-strike", t0)
	if res.Outcome != OutcomeFailedRequirements {
		t.Fatalf("expected FailedRequirements, got %v", res.Outcome)
	}

	ctx2 := ctxFor(e, "actor8", "req-exec-2", "holy-strike", t0)
	ctx2.Actor.Flags = map[string]bool{"buff:blessed": true}
	res, _ = e.execute(ctx2, "holy-strike", t0)
	if res.Outcome != OutcomeSuccess {
		t.Fatalf("expected Success once requirement is met, got %v", res.Outcome)
	}
}

func TestBufferedDuringPreparationThenDrainsOnIdle(t *testing.T) {
	e := New([]byte("k"), nil)
	e.Register(&SkillDef{ID: "slow-cast", MaxCharges: 2, PreparationMs: 100 * time.Millisecond})

	t0 := time.Unix(8000, 0)
	res, _ := e.execute(ctxFor(e, "actor9", "first", "slow-cast", t0), "slow-cast", t0)
	if res.Outcome != OutcomeSuccess {
		t.Fatalf("expected first execute to succeed (enter Preparation), got %v", res.Outcome)
	}

	mid := t0.Add(10 * time.Millisecond)
	res, _ = e.execute(ctxFor(e, "actor9", "second", "slow-cast", mid), "slow-cast", mid)
	if res.Outcome != OutcomeBuffered {
		t.Fatalf("expected second execute to buffer while busy, got %v", res.Outcome)
	}

	late := t0.Add(200 * time.Millisecond)
	e.Update(late)

	actorAny, _ := e.actors.Load("actor9")
	actor := actorAny.(*actorState)
	actor.mu.Lock()
	rt := actor.skills["slow-cast"]
	remaining := rt.buffer.len()
	actor.mu.Unlock()
	if remaining != 0 {
		t.Fatalf("expected buffered request to drain, got %d remaining", remaining)
	}
}
