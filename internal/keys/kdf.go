package keys

import (
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/pbkdf2"
	"crypto/sha256"
)

// PassphraseKDF is the out-of-scope "concrete passphrase KDF" trait from
// the spec: callers may substitute their own, but ciphervault ships two
// adapters grounded in the pack.
type PassphraseKDF interface {
	// Derive produces a 32-byte key-encryption key from passphrase and
	// salt.
	Derive(passphrase, salt []byte) []byte
}

const (
	argonTime    uint32 = 1
	argonMemory  uint32 = 64 * 1024
	argonThreads uint8  = 4
)

// Argon2KDF derives a KEK with Argon2id, the same parameters
// R4cc-ModSentinel's internal/secrets package uses for its node-key KEK.
type Argon2KDF struct{}

func (Argon2KDF) Derive(passphrase, salt []byte) []byte {
	return argon2.IDKey(passphrase, salt, argonTime, argonMemory, argonThreads, 32)
}

// PBKDF2KDF derives a KEK with PBKDF2-HMAC-SHA256, offered as an alternate
// profile for wrap keys migrated from a legacy passphrase scheme that
// predates the Argon2id default.
type PBKDF2KDF struct {
	Iterations int
}

func (k PBKDF2KDF) Derive(passphrase, salt []byte) []byte {
	iters := k.Iterations
	if iters <= 0 {
		iters = 600_000
	}
	return pbkdf2.Key(passphrase, salt, iters, 32, sha256.New)
}
