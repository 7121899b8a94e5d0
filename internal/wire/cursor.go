package wire

import (
	"encoding/binary"
	"fmt"
	"unicode/utf8"

	"github.com/wydcore/wyd-server/internal/corerr"
)

// MaxStringLength bounds a variable string's declared byte length on
// decode.
const MaxStringLength = 1 << 16

// MaxElements bounds a variable array's declared element count on
// decode.
const MaxElements = 1000

// Cursor is a position inside a fixed-capacity byte buffer. It never
// grows the buffer: every Write* call first checks that the remaining
// capacity can hold the value and fails with corerr.CodeInsufficientSpace
// otherwise, leaving the buffer's already-written bytes as the only
// effect (the caller's bookkeeping of "how far encoding got" is the
// cursor position it holds before the call, which it does not advance
// on error).
type Cursor struct {
	buf []byte
	pos int
}

// NewCursor wraps buf with a cursor starting at pos.
func NewCursor(buf []byte, pos int) *Cursor {
	return &Cursor{buf: buf, pos: pos}
}

// Pos returns the current cursor offset.
func (c *Cursor) Pos() int { return c.pos }

// SetPos repositions the cursor.
func (c *Cursor) SetPos(p int) { c.pos = p }

// Remaining returns the number of unused bytes in the buffer.
func (c *Cursor) Remaining() int { return len(c.buf) - c.pos }

func (c *Cursor) require(n int) error {
	if c.Remaining() < n {
		return corerr.Wrap(corerr.CodeInsufficientSpace, "wire: buffer too small",
			fmt.Errorf("need %d bytes, have %d", n, c.Remaining()))
	}
	return nil
}

// WriteUint8 writes a single byte.
func (c *Cursor) WriteUint8(v uint8) error {
	if err := c.require(1); err != nil {
		return err
	}
	c.buf[c.pos] = v
	c.pos++
	return nil
}

// WriteInt16 writes a little-endian int16.
func (c *Cursor) WriteInt16(v int16) error { return c.WriteUint16(uint16(v)) }

// WriteUint16 writes a little-endian uint16.
func (c *Cursor) WriteUint16(v uint16) error {
	if err := c.require(2); err != nil {
		return err
	}
	binary.LittleEndian.PutUint16(c.buf[c.pos:], v)
	c.pos += 2
	return nil
}

// WriteInt32 writes a little-endian int32.
func (c *Cursor) WriteInt32(v int32) error { return c.WriteUint32(uint32(v)) }

// WriteUint32 writes a little-endian uint32.
func (c *Cursor) WriteUint32(v uint32) error {
	if err := c.require(4); err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(c.buf[c.pos:], v)
	c.pos += 4
	return nil
}

// WriteInt64 writes a little-endian int64.
func (c *Cursor) WriteInt64(v int64) error { return c.WriteUint64(uint64(v)) }

// WriteUint64 writes a little-endian uint64.
func (c *Cursor) WriteUint64(v uint64) error {
	if err := c.require(8); err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(c.buf[c.pos:], v)
	c.pos += 8
	return nil
}

// WriteFixedString writes s into exactly n bytes: truncated to n-1 bytes
// if longer, always NUL-terminated, remainder zero-filled.
func (c *Cursor) WriteFixedString(s string, n int) error {
	if err := c.require(n); err != nil {
		return err
	}
	b := []byte(s)
	if len(b) > n-1 {
		b = b[:n-1]
	}
	copy(c.buf[c.pos:c.pos+n], b)
	for i := len(b); i < n; i++ {
		c.buf[c.pos+i] = 0
	}
	c.pos += n
	return nil
}

// WriteVarString writes a 32-bit length prefix, the string bytes, then a
// terminating NUL byte, with the NUL accounted for in the prefixed count.
func (c *Cursor) WriteVarString(s string) error {
	b := []byte(s)
	total := len(b) + 1
	if err := c.WriteUint32(uint32(total)); err != nil {
		return err
	}
	if err := c.require(total); err != nil {
		return err
	}
	copy(c.buf[c.pos:], b)
	c.buf[c.pos+len(b)] = 0
	c.pos += total
	return nil
}

// WriteBytes copies raw bytes verbatim.
func (c *Cursor) WriteBytes(b []byte) error {
	if err := c.require(len(b)); err != nil {
		return err
	}
	copy(c.buf[c.pos:], b)
	c.pos += len(b)
	return nil
}

// ReadUint8 reads a single byte.
func (c *Cursor) ReadUint8() (uint8, error) {
	if err := c.require(1); err != nil {
		return 0, err
	}
	v := c.buf[c.pos]
	c.pos++
	return v, nil
}

// ReadInt16 reads a little-endian int16.
func (c *Cursor) ReadInt16() (int16, error) {
	v, err := c.ReadUint16()
	return int16(v), err
}

// ReadUint16 reads a little-endian uint16.
func (c *Cursor) ReadUint16() (uint16, error) {
	if err := c.require(2); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(c.buf[c.pos:])
	c.pos += 2
	return v, nil
}

// ReadInt32 reads a little-endian int32.
func (c *Cursor) ReadInt32() (int32, error) {
	v, err := c.ReadUint32()
	return int32(v), err
}

// ReadUint32 reads a little-endian uint32.
func (c *Cursor) ReadUint32() (uint32, error) {
	if err := c.require(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(c.buf[c.pos:])
	c.pos += 4
	return v, nil
}

// ReadInt64 reads a little-endian int64.
func (c *Cursor) ReadInt64() (int64, error) {
	v, err := c.ReadUint64()
	return int64(v), err
}

// ReadUint64 reads a little-endian uint64.
func (c *Cursor) ReadUint64() (uint64, error) {
	if err := c.require(8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(c.buf[c.pos:])
	c.pos += 8
	return v, nil
}

// ReadFixedString reads exactly n bytes and returns the string up to the
// first NUL byte.
func (c *Cursor) ReadFixedString(n int) (string, error) {
	if err := c.require(n); err != nil {
		return "", err
	}
	raw := c.buf[c.pos : c.pos+n]
	c.pos += n
	end := 0
	for end < len(raw) && raw[end] != 0 {
		end++
	}
	return string(raw[:end]), nil
}

// ReadVarString reads a 32-bit length prefix (including its trailing
// NUL), then the string bytes, rejecting lengths beyond MaxStringLength.
func (c *Cursor) ReadVarString() (string, error) {
	total, err := c.ReadUint32()
	if err != nil {
		return "", err
	}
	if total == 0 || int(total) > MaxStringLength {
		return "", corerr.New(corerr.CodeValidation, "wire: string length out of range")
	}
	if err := c.require(int(total)); err != nil {
		return "", err
	}
	raw := c.buf[c.pos : c.pos+int(total)-1]
	if !utf8.Valid(raw) {
		c.pos += int(total)
		return "", corerr.New(corerr.CodeValidation, "wire: string is not valid utf-8")
	}
	s := string(raw)
	c.pos += int(total)
	return s, nil
}

// ReadBytes reads n raw bytes as a fresh copy.
func (c *Cursor) ReadBytes(n int) ([]byte, error) {
	if err := c.require(n); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, c.buf[c.pos:c.pos+n])
	c.pos += n
	return out, nil
}

// ReadElementCount reads a 32-bit array-length prefix, rejecting counts
// beyond MaxElements.
func (c *Cursor) ReadElementCount() (int, error) {
	n, err := c.ReadUint32()
	if err != nil {
		return 0, err
	}
	if int(n) > MaxElements {
		return 0, corerr.New(corerr.CodeValidation, "wire: element count exceeds MaxElements")
	}
	return int(n), nil
}
