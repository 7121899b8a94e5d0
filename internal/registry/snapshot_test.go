package registry

import (
	"testing"
	"testing/fstest"
)

func fixtureFS() fstest.MapFS {
	return fstest.MapFS{
		"items.yaml": &fstest.MapFile{Data: []byte(`
- id: 1
  name: Short Sword
  type: weapon
  p_atk: 10
- id: 2
  name: Wooden Shield
  type: shield
  p_def: 5
`)},
		"mobs.yaml": &fstest.MapFile{Data: []byte(`
- id: 100
  name: Keltir
  level: 3
  hp: 50
  drop_table: [1]
`)},
		"skills.yaml": &fstest.MapFile{Data: []byte(`
- id: 10
  name: Power Strike
  max_charges: 3
  cooldown_ms: 1000
`)},
		"drops.yaml": &fstest.MapFile{Data: []byte(`
- id: 1
  item_id: 1
  weight: 100
  min_count: 1
  max_count: 1
`)},
	}
}

func TestLoadSnapshotParsesAllTables(t *testing.T) {
	snap, err := LoadSnapshot(fixtureFS())
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}

	item, ok := snap.Item(1)
	if !ok || item.Name != "Short Sword" {
		t.Fatalf("expected item 1 = Short Sword, got %+v ok=%v", item, ok)
	}
	mob, ok := snap.Mob(100)
	if !ok || mob.Level != 3 {
		t.Fatalf("expected mob 100 level 3, got %+v", mob)
	}
	skill, ok := snap.Skill(10)
	if !ok || skill.MaxCharges != 3 {
		t.Fatalf("expected skill 10 maxCharges 3, got %+v", skill)
	}
	if _, ok := snap.Event(999); ok {
		t.Fatal("expected no event 999")
	}
	// events.yaml/quests.yaml are absent from the fixture — missing
	// tables must load as empty, not error.
	if len(snap.Events) != 0 || len(snap.Quests) != 0 {
		t.Fatalf("expected empty Events/Quests for missing files, got %d/%d", len(snap.Events), len(snap.Quests))
	}
}

func TestLoadSnapshotRejectsMalformedYAML(t *testing.T) {
	bad := fstest.MapFS{"items.yaml": &fstest.MapFile{Data: []byte("not: [valid, yaml for a list of structs\n  - broken")}}
	if _, err := LoadSnapshot(bad); err == nil {
		t.Fatal("expected error for malformed fixture, got nil")
	}
}

func TestRegistryReloadSwapsWithoutAffectingPriorReaders(t *testing.T) {
	snap1 := &Snapshot{Items: map[int32]*ItemDef{1: {ID: 1, Name: "v1"}}}
	r := NewFromSnapshot(snap1)

	held := r.Current()
	if held.Items[1].Name != "v1" {
		t.Fatalf("expected v1, got %+v", held.Items[1])
	}

	snap2 := &Snapshot{Items: map[int32]*ItemDef{1: {ID: 1, Name: "v2"}}}
	r.source = func() (*Snapshot, error) { return snap2, nil }
	if err := r.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	if held.Items[1].Name != "v1" {
		t.Fatal("prior snapshot reference was mutated by the swap")
	}
	if r.Current().Items[1].Name != "v2" {
		t.Fatal("expected Current() to observe the swapped snapshot")
	}
}

func TestRegistryReloadIncrementsVersion(t *testing.T) {
	r, err := New(fixtureFS())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	v1 := r.Current().Version
	if err := r.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if r.Current().Version != v1+1 {
		t.Fatalf("expected version %d, got %d", v1+1, r.Current().Version)
	}
}

func TestReloadWithoutSourceReturnsError(t *testing.T) {
	r := NewFromSnapshot(&Snapshot{})
	if err := r.Reload(); err == nil {
		t.Fatal("expected error reloading a snapshot-only registry")
	}
}
