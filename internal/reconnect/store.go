package reconnect

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/wydcore/wyd-server/internal/crypto"
)

// SessionCipher encrypts/decrypts a session's opaque byte material before
// it touches a store. Implementations operate in place on a
// block-aligned buffer.
type SessionCipher interface {
	Encrypt(data []byte) error
	Decrypt(data []byte) error
}

// blowfishSessionCipher adapts crypto.BlowfishCipher to SessionCipher,
// padding to the cipher's block size with a length-prefixed envelope so
// arbitrary-length session blobs round-trip exactly.
type blowfishSessionCipher struct {
	cipher *crypto.BlowfishCipher
}

// NewSessionCipher builds the default SessionCipher from a raw key.
func NewSessionCipher(key []byte) (SessionCipher, error) {
	c, err := crypto.NewBlowfishCipher(key)
	if err != nil {
		return nil, fmt.Errorf("reconnect: building session cipher: %w", err)
	}
	return &blowfishSessionCipher{cipher: c}, nil
}

// Encrypt and Decrypt work in place on a buffer already padded to the
// block size; encodeEncrypted and decodeEncrypted below add and strip
// the length prefix and padding around them.
func (b *blowfishSessionCipher) Encrypt(data []byte) error { return b.cipher.Encrypt(data) }
func (b *blowfishSessionCipher) Decrypt(data []byte) error { return b.cipher.Decrypt(data) }

// encodeEncrypted lays out a uint32 length prefix followed by the
// plaintext padded with zero bytes to a block boundary, then encrypts
// the whole thing. The length prefix lets decodeEncrypted discard the
// padding exactly, independent of content.
func encodeEncrypted(cipher SessionCipher, plaintext []byte) ([]byte, error) {
	header := make([]byte, 4)
	binary.LittleEndian.PutUint32(header, uint32(len(plaintext)))
	buf := append(header, plaintext...)

	if pad := len(buf) % crypto.BlockSize; pad != 0 {
		buf = append(buf, make([]byte, crypto.BlockSize-pad)...)
	}
	if err := cipher.Encrypt(buf); err != nil {
		return nil, fmt.Errorf("reconnect: encrypting session blob: %w", err)
	}
	return buf, nil
}

func decodeEncrypted(cipher SessionCipher, ciphertext []byte) ([]byte, error) {
	buf := append([]byte(nil), ciphertext...)
	if err := cipher.Decrypt(buf); err != nil {
		return nil, fmt.Errorf("reconnect: decrypting session blob: %w", err)
	}
	if len(buf) < 4 {
		return nil, fmt.Errorf("reconnect: session blob too short")
	}
	n := binary.LittleEndian.Uint32(buf[:4])
	if int(n) > len(buf)-4 {
		return nil, fmt.Errorf("reconnect: session blob length prefix out of range")
	}
	return buf[4 : 4+n], nil
}

// SessionStore persists and restores a Session's encoded form to an
// external byte sink. Implementations must round-trip SessionID,
// AuthToken, ServerAddress,
// Port, SessionBlob and ClientStateBlob exactly.
type SessionStore interface {
	Save(ctx context.Context, s *Session) error
	Load(ctx context.Context, sessionID string) (*Session, error)
	Delete(ctx context.Context, sessionID string) error
}

// encodeSession serializes a Session's fields into a flat buffer;
// SessionBlob and ClientStateBlob are length-prefixed since they are
// arbitrary-length opaque data.
func encodeSession(s *Session) []byte {
	var buf bytes.Buffer
	writeString(&buf, s.SessionID)
	writeString(&buf, s.AuthToken)
	writeString(&buf, s.ServerAddress)
	binary.Write(&buf, binary.LittleEndian, s.Port)
	writeBytes(&buf, s.SessionBlob)
	writeBytes(&buf, s.ClientStateBlob)
	binary.Write(&buf, binary.LittleEndian, s.LastUpdateTime.Unix())
	return buf.Bytes()
}

func decodeSession(data []byte) (*Session, error) {
	r := bytes.NewReader(data)
	s := &Session{}
	var err error
	if s.SessionID, err = readString(r); err != nil {
		return nil, err
	}
	if s.AuthToken, err = readString(r); err != nil {
		return nil, err
	}
	if s.ServerAddress, err = readString(r); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.LittleEndian, &s.Port); err != nil {
		return nil, fmt.Errorf("reconnect: decoding port: %w", err)
	}
	if s.SessionBlob, err = readBytes(r); err != nil {
		return nil, err
	}
	if s.ClientStateBlob, err = readBytes(r); err != nil {
		return nil, err
	}
	var unixSec int64
	if err := binary.Read(r, binary.LittleEndian, &unixSec); err != nil {
		return nil, fmt.Errorf("reconnect: decoding last update time: %w", err)
	}
	s.LastUpdateTime = time.Unix(unixSec, 0)
	return s, nil
}

func writeString(buf *bytes.Buffer, s string) {
	writeBytes(buf, []byte(s))
}

func readString(r *bytes.Reader) (string, error) {
	b, err := readBytes(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func writeBytes(buf *bytes.Buffer, b []byte) {
	binary.Write(buf, binary.LittleEndian, uint32(len(b)))
	buf.Write(b)
}

func readBytes(r *bytes.Reader) ([]byte, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, fmt.Errorf("reconnect: decoding length prefix: %w", err)
	}
	b := make([]byte, n)
	if _, err := r.Read(b); err != nil && n > 0 {
		return nil, fmt.Errorf("reconnect: decoding bytes: %w", err)
	}
	return b, nil
}

// FileSessionStore persists one encrypted file per session under a root
// directory, named by sessionID.
type FileSessionStore struct {
	dir    string
	cipher SessionCipher
}

// NewFileSessionStore creates a store rooted at dir, creating it if
// necessary.
func NewFileSessionStore(dir string, cipher SessionCipher) (*FileSessionStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("reconnect: creating session dir: %w", err)
	}
	return &FileSessionStore{dir: dir, cipher: cipher}, nil
}

func (f *FileSessionStore) path(sessionID string) string {
	return filepath.Join(f.dir, sessionID+".session")
}

func (f *FileSessionStore) Save(_ context.Context, s *Session) error {
	plain := encodeSession(s)
	cipherText, err := encodeEncrypted(f.cipher, plain)
	if err != nil {
		return err
	}
	if err := os.WriteFile(f.path(s.SessionID), cipherText, 0o600); err != nil {
		return fmt.Errorf("reconnect: writing session file: %w", err)
	}
	return nil
}

func (f *FileSessionStore) Load(_ context.Context, sessionID string) (*Session, error) {
	cipherText, err := os.ReadFile(f.path(sessionID))
	if err != nil {
		return nil, fmt.Errorf("reconnect: reading session file: %w", err)
	}
	plain, err := decodeEncrypted(f.cipher, cipherText)
	if err != nil {
		return nil, err
	}
	return decodeSession(plain)
}

func (f *FileSessionStore) Delete(_ context.Context, sessionID string) error {
	if err := os.Remove(f.path(sessionID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("reconnect: deleting session file: %w", err)
	}
	return nil
}
