package cryptox

import (
	"crypto/sha256"
	"crypto/subtle"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// KeySize is the symmetric key length in bytes (AES-256).
	KeySize = 32

	// kdfIterations is the PBKDF2-HMAC-SHA256 iteration count. Changing it
	// changes every derived key, so it is part of the scheme, not tuning.
	kdfIterations = 100_000
)

// Key is a 256-bit symmetric key. The bytes are unexported and every
// formatting hook is redacted so the key can never leak through logs,
// debug output or error strings.
type Key struct {
	b [KeySize]byte
}

// DeriveKey derives the account key from the user's password and email.
// The email's UTF-8 bytes are the salt, so the derivation is deterministic:
// equal (password, email) pairs always yield equal keys, and changing either
// input changes the key.
func DeriveKey(password, email string) Key {
	raw := pbkdf2.Key([]byte(password), []byte(email), kdfIterations, KeySize, sha256.New)
	var k Key
	copy(k.b[:], raw)
	return k
}

// KeyFromBytes builds a Key from exactly KeySize raw bytes.
func KeyFromBytes(raw []byte) (Key, bool) {
	var k Key
	if len(raw) != KeySize {
		return k, false
	}
	copy(k.b[:], raw)
	return k, true
}

// Equal compares keys in constant time.
func (k Key) Equal(other Key) bool {
	return subtle.ConstantTimeCompare(k.b[:], other.b[:]) == 1
}

// Verifier returns the SHA-256 hash of the key, safe to store server-side
// for login verification without revealing the key itself.
func (k Key) Verifier() []byte {
	h := sha256.Sum256(k.b[:])
	return h[:]
}

func (k Key) String() string { return "cryptox.Key(redacted)" }

func (k Key) GoString() string { return "cryptox.Key(redacted)" }
