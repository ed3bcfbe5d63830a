package common

import "crypto/rand"

// GenerateRandByteArray returns n cryptographically-random bytes.
// crypto/rand.Read never returns an error on supported platforms; a failure
// here means the platform RNG is broken, which is not recoverable.
func GenerateRandByteArray(n int) []byte {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return b
}
