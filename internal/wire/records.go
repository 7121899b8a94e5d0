// Package wire implements the bit-exact codec for the fixed-layout game
// records: Position, Item, Affect, and Mob. Layout is little-endian
// throughout; every fixed-size record's encoded size is a compile-time
// constant so encode/decode never partially commits a write — on
// failure the cursor rolls back to its entry position.
package wire

import "github.com/wydcore/wyd-server/internal/corerr"

// Array capacities fixed by the wire layout.
const (
	MaxItemOption = 4  // ItemEffect pairs per Item
	MaxEquip      = 12 // equipped item slots per Mob
	MaxCarry      = 40 // inventory slots per Mob
	MaxSkill      = 32 // skill-bar slots per Mob
	MaxAffect     = 20 // active-affect slots per Mob
	NameLen       = 16 // fixed name slot size in bytes

	// DefaultMaxLevel is the MAX_LEVEL bound callers pass to ValidateMob;
	// no registry snapshot carries its own level cap, so it is process-wide.
	DefaultMaxLevel = 85

	// MaxAffectKind bounds Affect.Kind (Type must stay below this).
	MaxAffectKind = 64
)

// Record is implemented by every wire-codec type. All methods take
// pointer receivers so a single Record value works for both directions:
// ReadFrom must mutate the receiver, and WriteTo matches it so callers
// never have to know which concrete type they're holding.
type Record interface {
	// TypeName identifies the record for validator registration.
	TypeName() string
	// Size returns the record's fixed encoded size in bytes.
	Size() int
	// WriteTo serializes the record at the cursor's current position.
	WriteTo(c *Cursor) error
	// ReadFrom deserializes the record from the cursor's current
	// position into the receiver.
	ReadFrom(c *Cursor) error
}

// Position is a point on the map grid: int16 X; int16 Y.
type Position struct {
	X int16
	Y int16
}

func (*Position) TypeName() string { return "Position" }
func (*Position) Size() int        { return 4 }

func (p *Position) WriteTo(c *Cursor) error {
	if err := c.WriteInt16(p.X); err != nil {
		return err
	}
	return c.WriteInt16(p.Y)
}

func (p *Position) ReadFrom(c *Cursor) error {
	x, err := c.ReadInt16()
	if err != nil {
		return err
	}
	y, err := c.ReadInt16()
	if err != nil {
		return err
	}
	p.X, p.Y = x, y
	return nil
}

// ItemEffect is one (kind, value) pair attached to an Item.
type ItemEffect struct {
	Kind  uint8
	Value uint8
}

func (*ItemEffect) TypeName() string { return "ItemEffect" }
func (*ItemEffect) Size() int        { return 2 }

func (e *ItemEffect) WriteTo(c *Cursor) error {
	if err := c.WriteUint8(e.Kind); err != nil {
		return err
	}
	return c.WriteUint8(e.Value)
}

func (e *ItemEffect) ReadFrom(c *Cursor) error {
	k, err := c.ReadUint8()
	if err != nil {
		return err
	}
	v, err := c.ReadUint8()
	if err != nil {
		return err
	}
	e.Kind, e.Value = k, v
	return nil
}

// Item is a small fixed record: an item index plus MaxItemOption effect
// pairs.
type Item struct {
	SIndex  int16
	Effects [MaxItemOption]ItemEffect
}

func (*Item) TypeName() string { return "Item" }
func (*Item) Size() int        { return 2 + MaxItemOption*2 }

func (it *Item) WriteTo(c *Cursor) error {
	if err := c.WriteInt16(it.SIndex); err != nil {
		return err
	}
	for i := range it.Effects {
		if err := it.Effects[i].WriteTo(c); err != nil {
			return err
		}
	}
	return nil
}

func (it *Item) ReadFrom(c *Cursor) error {
	sIndex, err := c.ReadInt16()
	if err != nil {
		return err
	}
	it.SIndex = sIndex
	for i := range it.Effects {
		if err := it.Effects[i].ReadFrom(c); err != nil {
			return err
		}
	}
	return nil
}

// Affect is a timed status on a Mob.
type Affect struct {
	Kind  uint8
	Value uint8
	Level uint8
	Time  int16
}

func (*Affect) TypeName() string { return "Affect" }
func (*Affect) Size() int        { return 5 }

func (a *Affect) WriteTo(c *Cursor) error {
	if err := c.WriteUint8(a.Kind); err != nil {
		return err
	}
	if err := c.WriteUint8(a.Value); err != nil {
		return err
	}
	if err := c.WriteUint8(a.Level); err != nil {
		return err
	}
	return c.WriteInt16(a.Time)
}

func (a *Affect) ReadFrom(c *Cursor) error {
	kind, err := c.ReadUint8()
	if err != nil {
		return err
	}
	value, err := c.ReadUint8()
	if err != nil {
		return err
	}
	level, err := c.ReadUint8()
	if err != nil {
		return err
	}
	tm, err := c.ReadInt16()
	if err != nil {
		return err
	}
	a.Kind, a.Value, a.Level, a.Time = kind, value, level, tm
	return nil
}

// Mob is the denormalized actor record.
type Mob struct {
	Name string

	Level  uint8
	Str    uint16
	Int    uint16
	Dex    uint16
	Con    uint16
	AC     int16
	Damage uint16

	Hp    uint32
	MaxHp uint32
	Mp    uint32
	MaxMp uint32
	Xp    uint64

	Equipment [MaxEquip]Item
	Inventory [MaxCarry]Item
	SkillBar  [MaxSkill]uint16
	Affects   [MaxAffect]Affect
	Pos       Position
}

func (*Mob) TypeName() string { return "Mob" }

func (*Mob) Size() int {
	scalars := NameLen + 1 /*Level*/ + 2*4 /*Str,Int,Dex,Con*/ + 2 /*AC*/ + 2 /*Damage*/ +
		4 + 4 /*Hp,MaxHp*/ + 4 + 4 /*Mp,MaxMp*/ + 8 /*Xp*/
	var item Item
	var affect Affect
	var pos Position
	equip := MaxEquip * item.Size()
	carry := MaxCarry * item.Size()
	skills := MaxSkill * 2
	affects := MaxAffect * affect.Size()
	return scalars + equip + carry + skills + affects + pos.Size()
}

func (m *Mob) WriteTo(c *Cursor) error {
	if err := c.WriteFixedString(m.Name, NameLen); err != nil {
		return err
	}
	if err := c.WriteUint8(m.Level); err != nil {
		return err
	}
	for _, v := range []uint16{m.Str, m.Int, m.Dex, m.Con} {
		if err := c.WriteUint16(v); err != nil {
			return err
		}
	}
	if err := c.WriteInt16(m.AC); err != nil {
		return err
	}
	if err := c.WriteUint16(m.Damage); err != nil {
		return err
	}
	for _, v := range []uint32{m.Hp, m.MaxHp, m.Mp, m.MaxMp} {
		if err := c.WriteUint32(v); err != nil {
			return err
		}
	}
	if err := c.WriteUint64(m.Xp); err != nil {
		return err
	}
	for i := range m.Equipment {
		if err := m.Equipment[i].WriteTo(c); err != nil {
			return err
		}
	}
	for i := range m.Inventory {
		if err := m.Inventory[i].WriteTo(c); err != nil {
			return err
		}
	}
	for _, sk := range m.SkillBar {
		if err := c.WriteUint16(sk); err != nil {
			return err
		}
	}
	for i := range m.Affects {
		if err := m.Affects[i].WriteTo(c); err != nil {
			return err
		}
	}
	return m.Pos.WriteTo(c)
}

func (m *Mob) ReadFrom(c *Cursor) error {
	name, err := c.ReadFixedString(NameLen)
	if err != nil {
		return err
	}
	level, err := c.ReadUint8()
	if err != nil {
		return err
	}
	var stats [4]uint16
	for i := range stats {
		v, err := c.ReadUint16()
		if err != nil {
			return err
		}
		stats[i] = v
	}
	ac, err := c.ReadInt16()
	if err != nil {
		return err
	}
	dmg, err := c.ReadUint16()
	if err != nil {
		return err
	}
	var pools [4]uint32
	for i := range pools {
		v, err := c.ReadUint32()
		if err != nil {
			return err
		}
		pools[i] = v
	}
	xp, err := c.ReadUint64()
	if err != nil {
		return err
	}

	var equipment [MaxEquip]Item
	for i := range equipment {
		if err := equipment[i].ReadFrom(c); err != nil {
			return err
		}
	}
	var inventory [MaxCarry]Item
	for i := range inventory {
		if err := inventory[i].ReadFrom(c); err != nil {
			return err
		}
	}
	var skillBar [MaxSkill]uint16
	for i := range skillBar {
		v, err := c.ReadUint16()
		if err != nil {
			return err
		}
		skillBar[i] = v
	}
	var affects [MaxAffect]Affect
	for i := range affects {
		if err := affects[i].ReadFrom(c); err != nil {
			return err
		}
	}
	var pos Position
	if err := pos.ReadFrom(c); err != nil {
		return err
	}

	m.Name = name
	m.Level = level
	m.Str, m.Int, m.Dex, m.Con = stats[0], stats[1], stats[2], stats[3]
	m.AC = ac
	m.Damage = dmg
	m.Hp, m.MaxHp, m.Mp, m.MaxMp = pools[0], pools[1], pools[2], pools[3]
	m.Xp = xp
	m.Equipment = equipment
	m.Inventory = inventory
	m.SkillBar = skillBar
	m.Affects = affects
	m.Pos = pos
	return nil
}

// ValidateMob is the default strict-mode validator for Mob, checking
// level and position range invariants against maxLevel (a registry-owned
// constant the caller supplies; DefaultMaxLevel if none is configured).
func ValidateMob(m Mob, maxLevel uint8, mapWidth, mapHeight int16) error {
	if m.Level > maxLevel {
		return corerr.New(corerr.CodeValidation, "mob: level exceeds MAX_LEVEL")
	}
	if m.Pos.X < 0 || m.Pos.X >= mapWidth || m.Pos.Y < 0 || m.Pos.Y >= mapHeight {
		return corerr.New(corerr.CodeValidation, "mob: position out of map bounds")
	}
	for _, af := range m.Affects {
		if af.Kind != 0 && af.Kind >= MaxAffectKind {
			return corerr.New(corerr.CodeValidation, "mob: affect kind exceeds MAX_AFFECT_KIND")
		}
	}
	return nil
}
