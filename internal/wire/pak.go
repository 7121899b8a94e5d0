package wire

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/wydcore/wyd-server/internal/corerr"
)

// PakMagic is the fixed ASCII tag at the start of every PAK container.
const PakMagic = "PAK\x00"

// pakHeaderSize is the fixed header: tag(4) + 7 uint32 fields(28).
const pakHeaderSize = 32

// pakEntrySize is one fixed-length index entry: path(256) + 5 uint32
// fields(20).
const pakEntrySize = 276

const pakPathLen = 256

// PakHeader is the fixed 32-byte header every PAK container starts with.
type PakHeader struct {
	Version     uint32
	FileCount   uint32
	IndexOffset uint32
	IndexSize   uint32
	Flags       uint32
	DataOffset  uint32
	DataSize    uint32
}

// PakEntry is one file's index record inside a PAK container.
type PakEntry struct {
	Path           string
	Offset         uint32
	Size           uint32
	CompressedSize uint32
	Flags          uint32
	Checksum       uint32
	Timestamp      uint32
}

// PakIndex is the parsed header plus every entry, read once and held
// immutable — registry reload re-reads the file rather than mutating an
// existing index in place.
type PakIndex struct {
	Header  PakHeader
	Entries []PakEntry
}

// ReadPakIndex opens path and parses its header and index table. It does
// not read file data — callers needing content seek to Entry.Offset
// themselves; this reader only resolves the directory for the registry,
// which is the only consumer of the PAK index in this process.
func ReadPakIndex(path string) (*PakIndex, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, corerr.Wrap(corerr.CodeIO, "wire: open pak", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	header, err := readPakHeader(r)
	if err != nil {
		return nil, err
	}

	if _, err := f.Seek(int64(header.IndexOffset), io.SeekStart); err != nil {
		return nil, corerr.Wrap(corerr.CodeIO, "wire: seek pak index", err)
	}
	r.Reset(f)

	entries, err := readPakEntries(r, header)
	if err != nil {
		return nil, err
	}

	return &PakIndex{Header: header, Entries: entries}, nil
}

func readPakHeader(r io.Reader) (PakHeader, error) {
	raw := make([]byte, pakHeaderSize)
	if _, err := io.ReadFull(r, raw); err != nil {
		return PakHeader{}, corerr.Wrap(corerr.CodeIO, "wire: read pak header", err)
	}
	if string(raw[:4]) != PakMagic {
		return PakHeader{}, corerr.New(corerr.CodeValidation, fmt.Sprintf("wire: bad pak magic %q", raw[:4]))
	}

	var h PakHeader
	h.Version = binary.LittleEndian.Uint32(raw[4:8])
	h.FileCount = binary.LittleEndian.Uint32(raw[8:12])
	h.IndexOffset = binary.LittleEndian.Uint32(raw[12:16])
	h.IndexSize = binary.LittleEndian.Uint32(raw[16:20])
	h.Flags = binary.LittleEndian.Uint32(raw[20:24])
	h.DataOffset = binary.LittleEndian.Uint32(raw[24:28])
	h.DataSize = binary.LittleEndian.Uint32(raw[28:32])
	return h, nil
}

func readPakEntries(r io.Reader, h PakHeader) ([]PakEntry, error) {
	entries := make([]PakEntry, 0, h.FileCount)
	raw := make([]byte, pakEntrySize)
	for i := uint32(0); i < h.FileCount; i++ {
		if _, err := io.ReadFull(r, raw); err != nil {
			return nil, corerr.Wrap(corerr.CodeIO, "wire: read pak entry", err)
		}

		end := 0
		for end < pakPathLen && raw[end] != 0 {
			end++
		}
		e := PakEntry{Path: string(raw[:end])}
		off := pakPathLen
		e.Offset = binary.LittleEndian.Uint32(raw[off:])
		e.Size = binary.LittleEndian.Uint32(raw[off+4:])
		e.CompressedSize = binary.LittleEndian.Uint32(raw[off+8:])
		e.Flags = binary.LittleEndian.Uint32(raw[off+12:])
		e.Checksum = binary.LittleEndian.Uint32(raw[off+16:])
		entries = append(entries, e)
	}
	return entries, nil
}
