package skillengine

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"
)

// Stats counts the engine's bounded-queue overflows and anti-cheat
// outcomes.
type Stats struct {
	TotalExecutions    uint64
	Successes          uint64
	Buffered           uint64
	BufferOverflows    uint64
	SecurityViolations uint64
	Interrupts         uint64
}

type regCallback struct {
	id string
	cb Callback
}

// Engine is the core's per-actor skill execution engine. Actor state is
// sharded via a sync.Map so executions against distinct
// actors never contend; within one actor, execute/interrupt are
// serialized by that actor's mutex.
type Engine struct {
	defMu sync.RWMutex
	defs  map[string]*SkillDef
	cats  map[string][]string

	actors sync.Map // actorID -> *actorState

	cbMu      sync.Mutex
	nextCBID  uint64
	callbacks map[string][]regCallback // skillID -> callbacks

	attest *attestor
	sink   ViolationSink

	totalExecutions    atomic.Uint64
	successes          atomic.Uint64
	buffered           atomic.Uint64
	bufferOverflows    atomic.Uint64
	securityViolations atomic.Uint64
	interrupts         atomic.Uint64
}

// New creates an Engine. attestKey is the HMAC key used to verify each
// execution's securityToken; sink receives anti-cheat violation reports.
func New(attestKey []byte, sink ViolationSink) *Engine {
	return &Engine{
		defs:      make(map[string]*SkillDef),
		cats:      make(map[string][]string),
		callbacks: make(map[string][]regCallback),
		attest:    newAttestor(attestKey),
		sink:      sink,
	}
}

// Register adds or replaces a skill definition.
func (e *Engine) Register(def *SkillDef) {
	e.defMu.Lock()
	defer e.defMu.Unlock()
	e.defs[def.ID] = def
}

// Unregister removes a skill definition; in-flight executions are
// unaffected since they hold their own def pointer via closures only at
// call time (the runtime itself only exists per-actor).
func (e *Engine) Unregister(skillID string) {
	e.defMu.Lock()
	defer e.defMu.Unlock()
	delete(e.defs, skillID)
}

// GetSkill returns the registered definition for skillID.
func (e *Engine) GetSkill(skillID string) (*SkillDef, bool) {
	e.defMu.RLock()
	defer e.defMu.RUnlock()
	d, ok := e.defs[skillID]
	return d, ok
}

// RegisterCombo appends a combo step unlocked by having just executed
// previousSkillID.
func (e *Engine) RegisterCombo(skillID, previousSkillID string, step ComboStep) error {
	e.defMu.Lock()
	defer e.defMu.Unlock()
	def, ok := e.defs[skillID]
	if !ok {
		return fmt.Errorf("skillengine: unknown skill %q", skillID)
	}
	if def.Combos == nil {
		def.Combos = make(map[string][]ComboStep)
	}
	def.Combos[previousSkillID] = append(def.Combos[previousSkillID], step)
	return nil
}

// RegisterCategory tags a set of skill ids under a named category.
func (e *Engine) RegisterCategory(category string, skillIDs []string) {
	e.defMu.Lock()
	defer e.defMu.Unlock()
	e.cats[category] = append([]string(nil), skillIDs...)
}

// RegisterCallback subscribes cb to every state-change event fired for
// skillID, returning a stable id for RemoveCallback.
func (e *Engine) RegisterCallback(skillID string, cb Callback) string {
	e.cbMu.Lock()
	defer e.cbMu.Unlock()
	e.nextCBID++
	id := fmt.Sprintf("cb-%d", e.nextCBID)
	e.callbacks[skillID] = append(e.callbacks[skillID], regCallback{id: id, cb: cb})
	return id
}

// RemoveCallback unregisters a callback previously returned by
// RegisterCallback.
func (e *Engine) RemoveCallback(skillID, id string) bool {
	e.cbMu.Lock()
	defer e.cbMu.Unlock()
	cbs := e.callbacks[skillID]
	for i, rc := range cbs {
		if rc.id == id {
			e.callbacks[skillID] = append(cbs[:i], cbs[i+1:]...)
			return true
		}
	}
	return false
}

func (e *Engine) fire(skillID, execID string, event Event, data any) {
	e.cbMu.Lock()
	cbs := append([]regCallback(nil), e.callbacks[skillID]...)
	e.cbMu.Unlock()

	for _, rc := range cbs {
		e.safeCallback(rc.cb, execID, event, data)
	}
}

func (e *Engine) safeCallback(cb Callback, execID string, event Event, data any) {
	defer func() {
		if r := recover(); r != nil {
			e.fireErrorRecovered(execID, r)
		}
	}()
	cb(execID, event, data)
}

func (e *Engine) fireErrorRecovered(execID string, r any) {
	// Deliberately does not recurse into fire(): a callback panicking
	// while handling EventError would otherwise loop.
	_ = execID
	_ = r
}

// GetStats returns a snapshot of the engine's counters.
func (e *Engine) GetStats() Stats {
	return Stats{
		TotalExecutions:    e.totalExecutions.Load(),
		Successes:          e.successes.Load(),
		Buffered:           e.buffered.Load(),
		BufferOverflows:    e.bufferOverflows.Load(),
		SecurityViolations: e.securityViolations.Load(),
		Interrupts:         e.interrupts.Load(),
	}
}

func (e *Engine) reportViolation(kind string, ctx ExecutionContext, skillID string) {
	e.securityViolations.Add(1)
	if e.sink == nil {
		return
	}
	e.sink.Report(ViolationReport{
		Type:     kind,
		Severity: "high",
		Method:   "execute",
		ClientID: ctx.Actor.ActorID,
		Context: map[string]any{
			"skillId":     skillID,
			"executionId": ctx.ExecutionID,
		},
	})
}

// Execute attempts to run skillID for the actor described in ctx.
func (e *Engine) Execute(ctx ExecutionContext, skillID string) (ExecutionResult, error) {
	return e.execute(ctx, skillID, time.Now())
}

func (e *Engine) execute(ctx ExecutionContext, skillID string, now time.Time) (ExecutionResult, error) {
	def, ok := e.GetSkill(skillID)
	if !ok {
		return ExecutionResult{}, fmt.Errorf("skillengine: unknown skill %q", skillID)
	}

	if !driftOK(ctx.ClientTimestamp, now) {
		e.reportViolation("TimingAnomaly", ctx, skillID)
		return ExecutionResult{Outcome: OutcomeFailedSecurity, ExecutionID: ctx.ExecutionID}, nil
	}
	if e.attest.checkReplay(ctx.ExecutionID, now) {
		e.reportViolation("TokenMismatch", ctx, skillID)
		return ExecutionResult{Outcome: OutcomeFailedSecurity, ExecutionID: ctx.ExecutionID}, nil
	}
	if ctx.SecurityToken != "" && !e.attest.verify(ctx.Actor.ActorID, ctx.ExecutionID, skillID, ctx.SecurityToken, ctx.ClientTimestamp) {
		e.reportViolation("StateManipulation", ctx, skillID)
		return ExecutionResult{Outcome: OutcomeFailedSecurity, ExecutionID: ctx.ExecutionID}, nil
	}

	actorAny, _ := e.actors.LoadOrStore(ctx.Actor.ActorID, newActorState())
	actor := actorAny.(*actorState)

	actor.mu.Lock()
	defer actor.mu.Unlock()

	rt := actor.runtime(def)
	e.settle(actor, rt, def, now)

	e.totalExecutions.Add(1)
	return e.executeLocked(actor, rt, def, ctx, now), nil
}

// executeLocked assumes actor.mu is already held and rt has already been
// settled against now.
func (e *Engine) executeLocked(actor *actorState, rt *skillRuntime, def *SkillDef, ctx ExecutionContext, now time.Time) ExecutionResult {
	if rt.phase != PhaseIdle {
		if rt.buffer.push(bufferedRequest{ctx: ctx}) {
			e.bufferOverflows.Add(1)
		}
		e.buffered.Add(1)
		return ExecutionResult{Outcome: OutcomeBuffered, ExecutionID: ctx.ExecutionID}
	}

	if now.Before(rt.cooldownUntil) {
		return ExecutionResult{Outcome: OutcomeFailedCooldown, ExecutionID: ctx.ExecutionID}
	}

	regenerateCharges(rt, def, now)
	if def.MaxCharges > 0 && rt.charges <= 0 {
		return ExecutionResult{Outcome: OutcomeFailedNoCharges, ExecutionID: ctx.ExecutionID}
	}

	if !ctx.Actor.HasAll(def.RequiredFlags) {
		return ExecutionResult{Outcome: OutcomeFailedRequirements, ExecutionID: ctx.ExecutionID}
	}

	if def.MaxCharges > 0 {
		if rt.charges == def.MaxCharges && def.ChargeRestoreMs > 0 {
			rt.nextChargeAt = now.Add(def.ChargeRestoreMs)
		}
		rt.charges--
	}

	multiplier := comboMultiplier(actor, def, now)

	u := rand.Float64()*2 - 1
	rt.activeExecID = ctx.ExecutionID
	rt.damageMultiplier = multiplier
	rt.prepEnd = now.Add(def.jittered(def.PreparationMs, u))
	castDur := def.CastMs
	if def.Channeled {
		castDur = def.ChannelDurationMs
	}
	rt.castEnd = rt.prepEnd.Add(def.jittered(castDur, u))
	rt.recoveryEnd = rt.castEnd.Add(def.jittered(def.RecoveryMs, u))
	rt.phase = PhasePreparation

	e.fire(def.ID, rt.activeExecID, EventExecute, nil)
	e.settle(actor, rt, def, now)

	actor.lastSkillID = def.ID
	if rt.phase == PhaseIdle {
		actor.lastSkillEnd = rt.lastCompletionAt
		actor.lastSucceeded = true
	}

	e.successes.Add(1)
	return ExecutionResult{Outcome: OutcomeSuccess, ExecutionID: ctx.ExecutionID, DamageMultiplier: multiplier}
}

// comboMultiplier consults def's combo table against the actor's last
// completed skill.
func comboMultiplier(actor *actorState, def *SkillDef, now time.Time) float64 {
	steps, ok := def.Combos[actor.lastSkillID]
	if !ok || actor.lastSkillEnd.IsZero() {
		return 1.0
	}
	elapsed := now.Sub(actor.lastSkillEnd)
	for _, step := range steps {
		if step.RequiresSuccess && !actor.lastSucceeded {
			continue
		}
		if elapsed >= step.WindowStart && elapsed <= step.WindowStart+step.WindowDuration {
			return step.DamageMultiplier
		}
	}
	return 1.0
}

func regenerateCharges(rt *skillRuntime, def *SkillDef, now time.Time) {
	if def.MaxCharges <= 0 {
		return
	}
	if def.ChargeRestoreMs <= 0 {
		// No restore interval: a spent charge is back immediately, and
		// only the cooldown gates the next execution.
		rt.charges = def.MaxCharges
		rt.nextChargeAt = time.Time{}
		return
	}
	for rt.charges < def.MaxCharges && !rt.nextChargeAt.IsZero() && !now.Before(rt.nextChargeAt) {
		rt.charges++
		if rt.charges < def.MaxCharges {
			rt.nextChargeAt = rt.nextChargeAt.Add(def.ChargeRestoreMs)
		} else {
			rt.nextChargeAt = time.Time{}
		}
	}
}

// GetCharges returns an actor's current charge count for skillID.
func (e *Engine) GetCharges(actorID, skillID string) int {
	def, ok := e.GetSkill(skillID)
	if !ok {
		return 0
	}
	actorAny, ok := e.actors.Load(actorID)
	if !ok {
		return def.MaxCharges
	}
	actor := actorAny.(*actorState)
	actor.mu.Lock()
	defer actor.mu.Unlock()
	rt := actor.runtime(def)
	regenerateCharges(rt, def, time.Now())
	return rt.charges
}

// GetTimeToNextCharge returns the duration until the actor's next charge
// regenerates, or zero if already at max.
func (e *Engine) GetTimeToNextCharge(actorID, skillID string) time.Duration {
	def, ok := e.GetSkill(skillID)
	if !ok {
		return 0
	}
	actorAny, ok := e.actors.Load(actorID)
	if !ok {
		return 0
	}
	actor := actorAny.(*actorState)
	actor.mu.Lock()
	defer actor.mu.Unlock()
	rt := actor.runtime(def)
	if rt.nextChargeAt.IsZero() {
		return 0
	}
	if d := time.Until(rt.nextChargeAt); d > 0 {
		return d
	}
	return 0
}

// settle advances rt through any stages whose end time has already
// passed, given the actor's mutex is held by the caller. It fires the
// corresponding callback for every transition and, on reaching Idle,
// drains any buffered requests.
func (e *Engine) settle(actor *actorState, rt *skillRuntime, def *SkillDef, now time.Time) {
	for {
		switch rt.phase {
		case PhasePreparation:
			if now.Before(rt.prepEnd) {
				return
			}
			if def.Channeled {
				rt.phase = PhaseChanneling
			} else {
				rt.phase = PhaseCasting
			}
			e.fire(def.ID, rt.activeExecID, EventFinishPrep, nil)
		case PhaseCasting, PhaseChanneling:
			if now.Before(rt.castEnd) {
				return
			}
			rt.phase = PhaseRecovery
			e.fire(def.ID, rt.activeExecID, EventFinishCast, nil)
		case PhaseRecovery:
			if now.Before(rt.recoveryEnd) {
				return
			}
			rt.phase = PhaseIdle
			rt.cooldownUntil = rt.recoveryEnd.Add(def.CooldownMs)
			rt.lastCompletionAt = rt.recoveryEnd
			e.fire(def.ID, rt.activeExecID, EventFinishRecovery, nil)
			e.drainBuffer(actor, rt, def, now)
			return
		default:
			return
		}
	}
}

// drainBuffer replays buffered requests in FIFO order now that rt is
// Idle. Replays happen inline under the already-held actor mutex.
func (e *Engine) drainBuffer(actor *actorState, rt *skillRuntime, def *SkillDef, now time.Time) {
	for _, req := range rt.buffer.popAll() {
		e.settle(actor, rt, def, now)
		e.executeLocked(actor, rt, def, req.ctx, now)
	}
}

// Interrupt attempts to interrupt actorID's active execution of
// skillID.
func (e *Engine) Interrupt(actorID, skillID, executionID string, priority int) (InterruptResult, error) {
	return e.interrupt(actorID, skillID, executionID, priority, time.Now())
}

func (e *Engine) interrupt(actorID, skillID, executionID string, priority int, now time.Time) (InterruptResult, error) {
	def, ok := e.GetSkill(skillID)
	if !ok {
		return InterruptResult{}, fmt.Errorf("skillengine: unknown skill %q", skillID)
	}

	actorAny, ok := e.actors.Load(actorID)
	if !ok {
		return InterruptResult{Outcome: InterruptNone}, nil
	}
	actor := actorAny.(*actorState)
	actor.mu.Lock()
	defer actor.mu.Unlock()

	rt := actor.runtime(def)
	e.settle(actor, rt, def, now)

	if rt.activeExecID != executionID {
		return InterruptResult{Outcome: InterruptNone}, nil
	}
	switch rt.phase {
	case PhasePreparation, PhaseCasting, PhaseChanneling:
	default:
		return InterruptResult{Outcome: InterruptFailedState}, nil
	}
	if !def.Interruptible {
		return InterruptResult{Outcome: InterruptFailedUninterruptible}, nil
	}
	if priority < def.MinInterruptPriority {
		return InterruptResult{Outcome: InterruptFailedPriority}, nil
	}

	rt.phase = PhaseInterrupted
	e.interrupts.Add(1)
	e.fire(def.ID, rt.activeExecID, EventInterrupt, nil)
	rt.phase = PhaseIdle
	rt.activeExecID = ""
	return InterruptResult{Outcome: InterruptSuccess}, nil
}

// Update advances every actor's skill runtimes to reflect now, firing
// any stage-completion callbacks whose time has come. Callers drive
// this from their own game loop; execute() and interrupt() also settle
// lazily so correctness does not depend on Update cadence.
func (e *Engine) Update(now time.Time) {
	e.actors.Range(func(_, value any) bool {
		actor := value.(*actorState)
		actor.mu.Lock()
		e.defMu.RLock()
		for id, rt := range actor.skills {
			if def, ok := e.defs[id]; ok {
				e.settle(actor, rt, def, now)
			}
		}
		e.defMu.RUnlock()
		actor.mu.Unlock()
		return true
	})
}
