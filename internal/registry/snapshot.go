package registry

import (
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wydcore/wyd-server/internal/corerr"
	"github.com/wydcore/wyd-server/internal/wire"
)

// Snapshot is one immutable, fully-loaded generation of every table.
// Once built it is never mutated — Reload builds a new Snapshot and
// swaps the registry's pointer to it.
type Snapshot struct {
	Items  map[int32]*ItemDef
	Mobs   map[int32]*MobDef
	Skills map[int32]*SkillDef
	Drops  map[int32]*DropDef
	Events map[int32]*EventDef
	Quests map[int32]*QuestDef

	// Version is bumped once per successful load, for diagnostics and
	// for callers that want to notice a Reload happened.
	Version uint64
}

// Item looks up an item by id, or returns (nil, false).
func (s *Snapshot) Item(id int32) (*ItemDef, bool) { v, ok := s.Items[id]; return v, ok }

// Mob looks up a mob template by id, or returns (nil, false).
func (s *Snapshot) Mob(id int32) (*MobDef, bool) { v, ok := s.Mobs[id]; return v, ok }

// Skill looks up a skill definition by id, or returns (nil, false).
func (s *Snapshot) Skill(id int32) (*SkillDef, bool) { v, ok := s.Skills[id]; return v, ok }

// Drop looks up a drop table row by id, or returns (nil, false).
func (s *Snapshot) Drop(id int32) (*DropDef, bool) { v, ok := s.Drops[id]; return v, ok }

// Event looks up a world-event definition by id, or returns (nil, false).
func (s *Snapshot) Event(id int32) (*EventDef, bool) { v, ok := s.Events[id]; return v, ok }

// Quest looks up a quest definition by id, or returns (nil, false).
func (s *Snapshot) Quest(id int32) (*QuestDef, bool) { v, ok := s.Quests[id]; return v, ok }

// tableFiles names the fixed fixture files LoadSnapshot expects inside
// dir. Any file not present is treated as an empty table, so a minimal
// fixture directory (e.g. just items.yaml + skills.yaml) loads fine.
var tableFiles = map[string]string{
	"items":  "items.yaml",
	"mobs":   "mobs.yaml",
	"skills": "skills.yaml",
	"drops":  "drops.yaml",
	"events": "events.yaml",
	"quests": "quests.yaml",
}

// LoadSnapshot parses every fixture table under dir into one Snapshot.
// It is the registry's single loader, collapsing what the teacher
// spreads across one Load*() function per table into one pass, since
// here every table shares the same YAML-array-of-rows shape.
func LoadSnapshot(dir fs.FS) (*Snapshot, error) {
	snap := &Snapshot{
		Items:  make(map[int32]*ItemDef),
		Mobs:   make(map[int32]*MobDef),
		Skills: make(map[int32]*SkillDef),
		Drops:  make(map[int32]*DropDef),
		Events: make(map[int32]*EventDef),
		Quests: make(map[int32]*QuestDef),
	}

	if err := loadTable(dir, tableFiles["items"], &snap.Items, func(d *ItemDef) int32 { return d.ID }); err != nil {
		return nil, err
	}
	if err := loadTable(dir, tableFiles["mobs"], &snap.Mobs, func(d *MobDef) int32 { return d.ID }); err != nil {
		return nil, err
	}
	if err := loadTable(dir, tableFiles["skills"], &snap.Skills, func(d *SkillDef) int32 { return d.ID }); err != nil {
		return nil, err
	}
	if err := loadTable(dir, tableFiles["drops"], &snap.Drops, func(d *DropDef) int32 { return d.ID }); err != nil {
		return nil, err
	}
	if err := loadTable(dir, tableFiles["events"], &snap.Events, func(d *EventDef) int32 { return d.ID }); err != nil {
		return nil, err
	}
	if err := loadTable(dir, tableFiles["quests"], &snap.Quests, func(d *QuestDef) int32 { return d.ID }); err != nil {
		return nil, err
	}

	slog.Info("registry: loaded snapshot",
		"items", len(snap.Items), "mobs", len(snap.Mobs), "skills", len(snap.Skills),
		"drops", len(snap.Drops), "events", len(snap.Events), "quests", len(snap.Quests))

	return snap, nil
}

// LoadSnapshotDir is a convenience wrapper over LoadSnapshot for a plain
// OS directory, the common case outside of tests that embed fixtures.
func LoadSnapshotDir(dir string) (*Snapshot, error) {
	return LoadSnapshot(os.DirFS(dir))
}

func loadTable[T any](dir fs.FS, name string, out *map[int32]*T, idOf func(*T) int32) error {
	data, err := fs.ReadFile(dir, name)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return corerr.Wrap(corerr.CodeIO, fmt.Sprintf("registry: read %s", name), err)
	}

	var rows []T
	if err := yaml.Unmarshal(data, &rows); err != nil {
		return corerr.Wrap(corerr.CodeValidation, fmt.Sprintf("registry: parse %s", name), err)
	}

	m := make(map[int32]*T, len(rows))
	for i := range rows {
		m[idOf(&rows[i])] = &rows[i]
	}
	*out = m
	return nil
}

// LoadSnapshotFromPak resolves every fixture table through a PAK
// container's index instead of a plain directory. The registry is the
// only reader of the PAK index in this process. Entries are matched
// by base name so the container's internal path prefix doesn't matter.
func LoadSnapshotFromPak(pakPath string) (*Snapshot, error) {
	idx, err := wire.ReadPakIndex(pakPath)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(pakPath)
	if err != nil {
		return nil, corerr.Wrap(corerr.CodeIO, "registry: open pak", err)
	}
	defer f.Close()

	byName := make(map[string]wire.PakEntry, len(idx.Entries))
	for _, e := range idx.Entries {
		byName[filepath.Base(e.Path)] = e
	}

	return LoadSnapshot(&pakFS{f: f, entries: byName})
}

// pakFS adapts a PAK container's index to fs.FS so LoadSnapshot's
// single fs.ReadFile-based loader works unchanged against either a
// plain directory or a PAK container.
type pakFS struct {
	f       *os.File
	entries map[string]wire.PakEntry
}

func (p *pakFS) Open(name string) (fs.File, error) {
	e, ok := p.entries[name]
	if !ok {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}
	buf := make([]byte, e.Size)
	if _, err := p.f.ReadAt(buf, int64(e.Offset)); err != nil {
		return nil, corerr.Wrap(corerr.CodeIO, "registry: read pak entry "+name, err)
	}
	return &pakFileHandle{data: buf, name: name}, nil
}

// pakFileHandle is an in-memory fs.File backing one PAK entry's bytes,
// already read out of the container by pakFS.Open.
type pakFileHandle struct {
	data []byte
	name string
	pos  int
}

func (h *pakFileHandle) Stat() (fs.FileInfo, error) { return pakFileInfo{h.name, len(h.data)}, nil }

func (h *pakFileHandle) Read(p []byte) (int, error) {
	if h.pos >= len(h.data) {
		return 0, io.EOF
	}
	n := copy(p, h.data[h.pos:])
	h.pos += n
	return n, nil
}

func (h *pakFileHandle) Close() error { return nil }

type pakFileInfo struct {
	name string
	size int
}

func (i pakFileInfo) Name() string       { return i.name }
func (i pakFileInfo) Size() int64        { return int64(i.size) }
func (i pakFileInfo) Mode() fs.FileMode  { return 0o444 }
func (i pakFileInfo) ModTime() time.Time { return time.Time{} }
func (i pakFileInfo) IsDir() bool        { return false }
func (i pakFileInfo) Sys() any           { return nil }
