// Package cryptox protects sync payloads with authenticated encryption.
//
// Payloads are sealed with AES-256-GCM into a versioned, self-describing
// EncryptedData envelope; keys are derived from the account password with
// PBKDF2. Decryption fails closed: an unknown envelope version or any
// authentication failure surfaces as a single opaque error, never partial
// plaintext.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nimbusbrowser/nimbus/internal/common"
	"github.com/nimbusbrowser/nimbus/internal/syncerr"
)

const (
	// EnvelopeVersion identifies the current scheme:
	// AES-256-GCM with a 96-bit random nonce.
	EnvelopeVersion = 1

	// NonceSize is the AES-GCM nonce length in bytes.
	NonceSize = 12
)

// ErrDecryptionFailed is the single opaque failure for wrong key, corrupted
// ciphertext or truncated data. Deliberately carries no detail: GCM failure
// modes must not be distinguishable to a caller.
var ErrDecryptionFailed = errors.New("decryption failed")

// EncryptedData is the wire/persisted envelope for a sealed payload.
// Ciphertext (including the GCM tag) and Nonce are standard base64.
type EncryptedData struct {
	Ciphertext string `json:"ciphertext"`
	Nonce      string `json:"nonce"`
	Version    uint8  `json:"version"`
}

// Cipher seals and opens payloads under one derived key.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher builds a Cipher for key. The AEAD is constructed once and
// reused for every call.
func NewCipher(key Key) (*Cipher, error) {
	block, err := aes.NewCipher(key.b[:])
	if err != nil {
		return nil, syncerr.New(syncerr.KindEncryption, "init", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, syncerr.New(syncerr.KindEncryption, "init", err)
	}
	return &Cipher{aead: aead}, nil
}

// Encrypt seals plaintext with a fresh random 96-bit nonce. Nonces are never
// reused for a given key; reuse would break GCM's authentication guarantee.
func (c *Cipher) Encrypt(plaintext []byte) (EncryptedData, error) {
	nonce := common.GenerateRandByteArray(NonceSize)
	sealed := c.aead.Seal(nil, nonce, plaintext, nil)
	return EncryptedData{
		Ciphertext: base64.StdEncoding.EncodeToString(sealed),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Version:    EnvelopeVersion,
	}, nil
}

// Decrypt opens an envelope. Unknown envelope versions are rejected before
// any decoding is attempted; authentication failures collapse into
// ErrDecryptionFailed.
func (c *Cipher) Decrypt(ed EncryptedData) ([]byte, error) {
	if ed.Version != EnvelopeVersion {
		return nil, syncerr.New(syncerr.KindEncryption, "decrypt",
			fmt.Errorf("unsupported envelope version %d", ed.Version))
	}

	sealed, err := base64.StdEncoding.DecodeString(ed.Ciphertext)
	if err != nil {
		return nil, syncerr.New(syncerr.KindEncryption, "decrypt", ErrDecryptionFailed)
	}
	nonce, err := base64.StdEncoding.DecodeString(ed.Nonce)
	if err != nil {
		return nil, syncerr.New(syncerr.KindEncryption, "decrypt", ErrDecryptionFailed)
	}
	if len(nonce) != NonceSize {
		return nil, syncerr.New(syncerr.KindEncryption, "decrypt", ErrDecryptionFailed)
	}

	plaintext, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, syncerr.New(syncerr.KindEncryption, "decrypt", ErrDecryptionFailed)
	}
	return plaintext, nil
}

// EncryptJSON serializes v and seals the result. Serialization failures are
// classified distinctly from cryptographic ones.
func (c *Cipher) EncryptJSON(v any) (EncryptedData, error) {
	plaintext, err := json.Marshal(v)
	if err != nil {
		return EncryptedData{}, syncerr.New(syncerr.KindSerialization, "encrypt", err)
	}
	return c.Encrypt(plaintext)
}

// DecryptJSON opens an envelope and unmarshals the plaintext into v.
func (c *Cipher) DecryptJSON(ed EncryptedData, v any) error {
	plaintext, err := c.Decrypt(ed)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(plaintext, v); err != nil {
		return syncerr.New(syncerr.KindSerialization, "decrypt", err)
	}
	return nil
}
