package keys

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
)

// AEAD is the blob cipher primitive the storage engine treats as an
// external trait per the spec's out-of-scope list: StoreKey and WrapKey
// both drive it, but nothing here hardcodes a single algorithm choice.
type AEAD interface {
	NonceSize() int
	Seal(nonce, plaintext, aad []byte) []byte
	Open(nonce, ciphertext, aad []byte) ([]byte, error)
}

// ChaCha20Poly1305AEAD wraps XChaCha20-Poly1305, used for entry-value and
// tag-value randomized encryption (24-byte nonces large enough to draw at
// random per call without collision risk).
type ChaCha20Poly1305AEAD struct {
	aead cipher.AEAD
}

// NewChaCha20Poly1305 builds a ChaCha20Poly1305AEAD from a 32-byte key.
func NewChaCha20Poly1305(key []byte) (*ChaCha20Poly1305AEAD, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("keys: new xchacha20poly1305: %w", err)
	}
	return &ChaCha20Poly1305AEAD{aead: aead}, nil
}

func (c *ChaCha20Poly1305AEAD) NonceSize() int { return c.aead.NonceSize() }

func (c *ChaCha20Poly1305AEAD) Seal(nonce, plaintext, aad []byte) []byte {
	return c.aead.Seal(nil, nonce, plaintext, aad)
}

func (c *ChaCha20Poly1305AEAD) Open(nonce, ciphertext, aad []byte) ([]byte, error) {
	return c.aead.Open(nil, nonce, ciphertext, aad)
}

// AESGCMAEAD wraps AES-256-GCM, used for the wrap-key envelope layer to
// mirror the KEK/DEK pattern the teacher's secrets package uses.
type AESGCMAEAD struct {
	aead cipher.AEAD
}

// NewAESGCM builds an AESGCMAEAD from a 32-byte key.
func NewAESGCM(key []byte) (*AESGCMAEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("keys: new aes cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("keys: new gcm: %w", err)
	}
	return &AESGCMAEAD{aead: aead}, nil
}

func (a *AESGCMAEAD) NonceSize() int { return a.aead.NonceSize() }

func (a *AESGCMAEAD) Seal(nonce, plaintext, aad []byte) []byte {
	return a.aead.Seal(nil, nonce, plaintext, aad)
}

func (a *AESGCMAEAD) Open(nonce, ciphertext, aad []byte) ([]byte, error) {
	return a.aead.Open(nil, nonce, ciphertext, aad)
}

// RandomNonce draws a fresh random nonce sized for aead.
func RandomNonce(aead AEAD) ([]byte, error) {
	n := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, n); err != nil {
		return nil, fmt.Errorf("keys: generate nonce: %w", err)
	}
	return n, nil
}
