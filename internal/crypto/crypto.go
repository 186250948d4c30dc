// Package crypto implements the AES-256-GCM credential encryption from
// spec §6: exchange API keys/secrets are stored encrypted at rest, never
// in plaintext.
//
// No library in the example corpus wraps AES-GCM (see DESIGN.md's
// standard-library justification) so this is built directly on
// crypto/aes, crypto/cipher, crypto/sha256, and crypto/rand.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"io"

	"github.com/tradsys-core/engine/internal/errors"
)

// Box encrypts and decrypts credential material with a single key
// derived from a configured secret.
type Box struct {
	gcm cipher.AEAD
}

// NewBox derives a 256-bit key as SHA-256(secret) and builds an AES-GCM
// AEAD from it.
func NewBox(secret string) (*Box, error) {
	key := sha256.Sum256([]byte(secret))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, errors.Wrap(errors.KindInvariant, "crypto: building AES cipher", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.Wrap(errors.KindInvariant, "crypto: building GCM mode", err)
	}
	return &Box{gcm: gcm}, nil
}

// Encrypt returns base64( nonce || ciphertext || tag ).
func (b *Box) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, b.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", errors.Wrap(errors.KindInvariant, "crypto: generating nonce", err)
	}
	sealed := b.gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. A decryption failure (wrong key, corrupted
// ciphertext, tampering) is reported as an explicit KindCredential error —
// it never silently returns the ciphertext or an empty string in its
// place.
func (b *Box) Decrypt(encoded string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", errors.Wrap(errors.KindCredential, "crypto: malformed credential encoding", err)
	}
	nonceSize := b.gcm.NonceSize()
	if len(raw) < nonceSize {
		return "", errors.New(errors.KindCredential, "crypto: credential too short to contain a nonce")
	}
	nonce, ciphertext := raw[:nonceSize], raw[nonceSize:]
	plaintext, err := b.gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", errors.Wrap(errors.KindCredential, "crypto: credential unusable, decryption failed", err)
	}
	return string(plaintext), nil
}
