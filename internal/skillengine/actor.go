package skillengine

import (
	"sync"
	"time"
)

// skillRuntime is one actor's live state for one skill: phase, charges,
// cooldown, the active execution (if any), and its buffered backlog.
type skillRuntime struct {
	phase Phase

	charges      int
	nextChargeAt time.Time

	cooldownUntil time.Time

	activeExecID    string
	prepEnd         time.Time
	castEnd         time.Time
	recoveryEnd     time.Time
	damageMultiplier float64

	lastCompletionAt time.Time
	lastCooldownMs   time.Duration

	buffer *executionBuffer
}

// actorState shards all of one actor's skill runtimes behind a single
// mutex: the actor's mutex guards its per-skill state machines, and no
// global skill lock exists. Concurrent execute() calls against the same
// actor are serialized by this mutex; across actors, executions run
// fully in parallel since each actor gets its own actorState via
// sync.Map.
type actorState struct {
	mu sync.Mutex

	skills map[string]*skillRuntime

	lastSkillID  string
	lastSkillEnd time.Time
	lastSucceeded bool
}

func newActorState() *actorState {
	return &actorState{skills: make(map[string]*skillRuntime)}
}

func (a *actorState) runtime(def *SkillDef) *skillRuntime {
	rt, ok := a.skills[def.ID]
	if !ok {
		rt = &skillRuntime{
			phase:   PhaseIdle,
			charges: def.MaxCharges,
			buffer:  newExecutionBuffer(def.bufferSize()),
		}
		a.skills[def.ID] = rt
	}
	return rt
}
