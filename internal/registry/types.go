// Package registry implements the core's data registry: immutable,
// hot-reloadable tables of items, mobs, skills, drops, events, and
// quests keyed by integer id. A Reload parses a
// fresh snapshot and atomically swaps it in; readers already holding a
// prior snapshot keep reading it until they drop the reference — Go's
// GC retires it once the last reader releases it, so no explicit
// refcounting is needed (see DESIGN.md).
package registry

// ItemDef is one row of the item table, collapsing the teacher's
// per-table struct-plus-accessor pattern into exported fields since the
// registry's tables are read-only snapshots, not mutable globals guarded
// by accessor methods.
type ItemDef struct {
	ID        int32  `yaml:"id"`
	Name      string `yaml:"name"`
	Type      string `yaml:"type"`
	Weight    int32  `yaml:"weight"`
	Price     int64  `yaml:"price"`
	Stackable bool   `yaml:"stackable"`
	Tradeable bool   `yaml:"tradeable"`
	Droppable bool   `yaml:"droppable"`
	PAtk      int32  `yaml:"p_atk"`
	MAtk      int32  `yaml:"m_atk"`
	PDef      int32  `yaml:"p_def"`
	MDef      int32  `yaml:"m_def"`
	CritRate  int32  `yaml:"crit_rate"`
}

// MobDef is one row of the mob/NPC template table.
type MobDef struct {
	ID        int32   `yaml:"id"`
	Name      string  `yaml:"name"`
	Level     int32   `yaml:"level"`
	HP        int32   `yaml:"hp"`
	MP        int32   `yaml:"mp"`
	PAtk      int32   `yaml:"p_atk"`
	PDef      int32   `yaml:"p_def"`
	Aggro     bool    `yaml:"aggro"`
	DropTable []int32 `yaml:"drop_table"` // DropDef ids this mob rolls against
}

// SkillDef is one row of the skill table — the registry's fixture form
// of what the skill engine loads into a skillengine.SkillDef at process
// start (the registry owns the data, skillengine owns the runtime
// state machine; they are deliberately separate types).
type SkillDef struct {
	ID                   int32   `yaml:"id"`
	Name                 string  `yaml:"name"`
	Category             string  `yaml:"category"`
	Interruptible        bool    `yaml:"interruptible"`
	MinInterruptPriority int     `yaml:"min_interrupt_priority"`
	MaxCharges           int     `yaml:"max_charges"`
	ChargeRestoreMs      int64   `yaml:"charge_restore_ms"`
	PreparationMs        int64   `yaml:"preparation_ms"`
	CastMs               int64   `yaml:"cast_ms"`
	RecoveryMs           int64   `yaml:"recovery_ms"`
	CooldownMs           int64   `yaml:"cooldown_ms"`
	Variability          float64 `yaml:"variability"`
}

// DropDef is one row of the drop table: an item id, weight, and
// quantity range a mob's loot roll consults.
type DropDef struct {
	ID       int32 `yaml:"id"`
	ItemID   int32 `yaml:"item_id"`
	Weight   int32 `yaml:"weight"`
	MinCount int32 `yaml:"min_count"`
	MaxCount int32 `yaml:"max_count"`
}

// EventDef is one row of the world-event table (timed spawns, double-
// drop windows, and similar schedule-driven content).
type EventDef struct {
	ID         int32   `yaml:"id"`
	Name       string  `yaml:"name"`
	Type       string  `yaml:"type"`
	DurationMs int64   `yaml:"duration_ms"`
	Multiplier float64 `yaml:"multiplier"`
}

// QuestDef is one row of the quest table.
type QuestDef struct {
	ID           int32  `yaml:"id"`
	Name         string `yaml:"name"`
	MinLevel     int32  `yaml:"min_level"`
	RewardItemID int32  `yaml:"reward_item_id"`
	RewardCount  int32  `yaml:"reward_count"`
}
