// Package crypto provides the block cipher primitives the core uses to
// protect opaque byte blobs it persists on behalf of other components.
package crypto

import (
	"fmt"

	"golang.org/x/crypto/blowfish"
)

// BlockSize is the Blowfish block size in bytes; Encrypt/Decrypt require
// len(data) to be a multiple of this.
const BlockSize = 8

// BlowfishCipher wraps Blowfish ECB encryption/decryption.
//
// ECB mode is adequate here because the sole caller (internal/reconnect)
// encrypts a single opaque blob per session and never reuses the cipher
// across values an attacker can correlate the way repeated protocol
// frames could be; this mirrors how the teacher used the same cipher for
// fixed-format wire frames.
type BlowfishCipher struct {
	cipher *blowfish.Cipher
}

// NewBlowfishCipher creates a new Blowfish ECB cipher from the given key.
func NewBlowfishCipher(key []byte) (*BlowfishCipher, error) {
	c, err := blowfish.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating blowfish cipher: %w", err)
	}
	return &BlowfishCipher{cipher: c}, nil
}

// Encrypt encrypts data in-place using Blowfish ECB mode.
// len(data) must be a multiple of BlockSize.
func (b *BlowfishCipher) Encrypt(data []byte) error {
	if len(data)%BlockSize != 0 {
		return fmt.Errorf("blowfish encrypt: length %d is not a multiple of %d", len(data), BlockSize)
	}
	for i := 0; i < len(data); i += BlockSize {
		b.cipher.Encrypt(data[i:i+BlockSize], data[i:i+BlockSize])
	}
	return nil
}

// Decrypt decrypts data in-place using Blowfish ECB mode.
// len(data) must be a multiple of BlockSize.
func (b *BlowfishCipher) Decrypt(data []byte) error {
	if len(data)%BlockSize != 0 {
		return fmt.Errorf("blowfish decrypt: length %d is not a multiple of %d", len(data), BlockSize)
	}
	for i := 0; i < len(data); i += BlockSize {
		b.cipher.Decrypt(data[i:i+BlockSize], data[i:i+BlockSize])
	}
	return nil
}
