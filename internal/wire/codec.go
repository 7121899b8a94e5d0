package wire

import "github.com/wydcore/wyd-server/internal/corerr"

// Validator checks a decoded record for domain-level invariants beyond
// what the byte layout itself enforces. Implementations receive the
// record as the empty interface since the codec is generic over
// concrete Record types.
type Validator func(rec any) error

// Codec encodes and decodes Records against a fixed-capacity buffer. In
// strict mode, a registered Validator for the record's TypeName runs
// after every successful decode and before every encode; a validation
// failure leaves the cursor exactly where it stood on entry, same as an
// InsufficientSpace failure.
type Codec struct {
	strict     bool
	validators map[string]Validator
}

// NewCodec builds a Codec. strict enables validator execution; a non-strict
// codec still enforces the fixed byte layout but skips domain validators.
func NewCodec(strict bool) *Codec {
	return &Codec{strict: strict, validators: make(map[string]Validator)}
}

// RegisterValidator attaches v to every record whose TypeName matches
// typeName. Registering again for the same name replaces the prior one.
func (c *Codec) RegisterValidator(typeName string, v Validator) {
	c.validators[typeName] = v
}

func (c *Codec) validate(rec Record) error {
	if !c.strict {
		return nil
	}
	v, ok := c.validators[rec.TypeName()]
	if !ok {
		return nil
	}
	return v(rec)
}

// Encode writes rec into buf starting at offset, returning the number of
// bytes written. On any failure the buffer holds no partial write beyond
// offset: Encode checks that rec.Size() bytes fit before delegating to
// rec.WriteTo and never returns a byte count on error.
func (c *Codec) Encode(rec Record, buf []byte, offset int) (int, error) {
	if err := c.validate(rec); err != nil {
		return 0, err
	}
	cur := NewCursor(buf, offset)
	if err := cur.require(rec.Size()); err != nil {
		return 0, err
	}
	if err := rec.WriteTo(cur); err != nil {
		return 0, err
	}
	return cur.Pos() - offset, nil
}

// Decode reads a record of rec's concrete type from buf starting at
// offset, populating rec in place and returning the number of bytes
// consumed. rec must be a pointer (e.g. &Mob{}) since ReadFrom mutates
// the receiver. On any failure rec is left however far ReadFrom got;
// callers that need atomicity should decode into a fresh zero value and
// only adopt it once Decode returns nil.
func (c *Codec) Decode(rec Record, buf []byte, offset int) (int, error) {
	cur := NewCursor(buf, offset)
	if err := rec.ReadFrom(cur); err != nil {
		return 0, err
	}
	if err := c.validate(rec); err != nil {
		return 0, err
	}
	return cur.Pos() - offset, nil
}

// EncodeNew allocates a buffer sized exactly to rec.Size() and encodes
// into it, returning the buffer. This is the convenience path for
// records that are always encoded standalone (e.g. persisting a single
// Mob snapshot) rather than packed alongside other fields.
func (c *Codec) EncodeNew(rec Record) ([]byte, error) {
	buf := make([]byte, rec.Size())
	if _, err := c.Encode(rec, buf, 0); err != nil {
		return nil, err
	}
	return buf, nil
}

// DecodeExact decodes rec from buf, requiring buf's length equal
// rec.Size() exactly; a mismatch is a validation error rather than an
// insufficient-space one since the caller supplied the whole buffer.
func (c *Codec) DecodeExact(rec Record, buf []byte) error {
	if len(buf) != rec.Size() {
		return corerr.New(corerr.CodeValidation, "wire: buffer length does not match record size")
	}
	_, err := c.Decode(rec, buf, 0)
	return err
}
