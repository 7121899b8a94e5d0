package registry

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

const pakHeaderSize = 32
const pakEntrySize = 276
const pakPathLen = 256

func writeTestPak(t *testing.T, files map[string][]byte) string {
	t.Helper()

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}

	indexOffset := uint32(pakHeaderSize)
	indexSize := uint32(len(names) * pakEntrySize)
	dataOffset := indexOffset + indexSize

	header := make([]byte, pakHeaderSize)
	copy(header[:4], "PAK\x00")
	binary.LittleEndian.PutUint32(header[4:8], 1)
	binary.LittleEndian.PutUint32(header[8:12], uint32(len(names)))
	binary.LittleEndian.PutUint32(header[12:16], indexOffset)
	binary.LittleEndian.PutUint32(header[16:20], indexSize)
	binary.LittleEndian.PutUint32(header[24:28], dataOffset)

	index := make([]byte, 0, indexSize)
	data := make([]byte, 0, 1024)
	offset := dataOffset
	for _, name := range names {
		content := files[name]
		rec := make([]byte, pakEntrySize)
		copy(rec[:pakPathLen], name)
		off := pakPathLen
		binary.LittleEndian.PutUint32(rec[off:], offset)
		binary.LittleEndian.PutUint32(rec[off+4:], uint32(len(content)))
		index = append(index, rec...)
		data = append(data, content...)
		offset += uint32(len(content))
	}

	buf := append(append(header, index...), data...)
	path := filepath.Join(t.TempDir(), "assets.pak")
	if err := os.WriteFile(path, buf, 0o600); err != nil {
		t.Fatalf("write test pak: %v", err)
	}
	return path
}

func TestLoadSnapshotFromPakReadsTablesByBaseName(t *testing.T) {
	path := writeTestPak(t, map[string][]byte{
		"tables/items.yaml": []byte("- id: 1\n  name: Dagger\n"),
		"tables/mobs.yaml":  []byte("- id: 50\n  name: Wolf\n"),
	})

	snap, err := LoadSnapshotFromPak(path)
	if err != nil {
		t.Fatalf("LoadSnapshotFromPak: %v", err)
	}
	if item, ok := snap.Item(1); !ok || item.Name != "Dagger" {
		t.Fatalf("expected item 1 = Dagger, got %+v ok=%v", item, ok)
	}
	if mob, ok := snap.Mob(50); !ok || mob.Name != "Wolf" {
		t.Fatalf("expected mob 50 = Wolf, got %+v ok=%v", mob, ok)
	}
}
