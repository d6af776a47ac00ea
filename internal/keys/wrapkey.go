package keys

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"

	"ciphervault/internal/offload"
	"ciphervault/internal/verrors"
)

// WrapKey is the process-level key that wraps StoreKey blobs at rest.
type WrapKey struct {
	aead AEAD
}

// WrapKeyRef renders to the stable URI persisted in config.wrap_key.
type WrapKeyRef struct {
	uri string
}

func (r WrapKeyRef) String() string { return r.uri }

// Wrap seals a StoreKey's plaintext blob under this WrapKey.
func (w *WrapKey) Wrap(plaintext []byte) ([]byte, error) {
	nonce, err := RandomNonce(w.aead)
	if err != nil {
		return nil, verrors.Wrap(verrors.Encryption, "wrap store key", err)
	}
	ct := w.aead.Seal(nonce, plaintext, nil)
	return append(nonce, ct...), nil
}

// Unwrap opens a blob previously produced by Wrap.
func (w *WrapKey) Unwrap(wrapped []byte) ([]byte, error) {
	if len(wrapped) < w.aead.NonceSize() {
		return nil, verrors.New(verrors.Encryption, "wrapped blob shorter than nonce")
	}
	nonce, ct := wrapped[:w.aead.NonceSize()], wrapped[w.aead.NonceSize():]
	pt, err := w.aead.Open(nonce, ct, nil)
	if err != nil {
		return nil, verrors.Wrap(verrors.Encryption, "unwrap store key", err)
	}
	return pt, nil
}

// EncodeStoreKey wraps a StoreKey's serialized blob under w.
func EncodeStoreKey(sk *StoreKey, w *WrapKey) ([]byte, error) {
	raw, err := sk.ToBytes()
	if err != nil {
		return nil, err
	}
	return w.Wrap(raw)
}

// DecodeStoreKey unwraps and parses a StoreKey blob.
func DecodeStoreKey(wrapped []byte, w *WrapKey) (*StoreKey, error) {
	raw, err := w.Unwrap(wrapped)
	if err != nil {
		return nil, err
	}
	return StoreKeyFromBytes(raw)
}

// PassKey is arbitrary secret material a WrapKeyMethod consumes to
// resolve a WrapKey — a raw key, a passphrase, or (for KMS) unused.
type PassKey []byte

// WrapKeyMethod resolves to a (WrapKey, WrapKeyRef) pair. The CPU-bound
// parts of resolution (the KDF, key generation, cipher construction) run
// through internal/offload; the KMS method's Encrypt/Decrypt calls run on
// the caller's goroutine, bounded by ctx.
type WrapKeyMethod interface {
	// Resolve derives or fetches the WrapKey material. ctx bounds any
	// network round trip (KMS); passKey supplies local secret material
	// (raw key bytes or a passphrase) where applicable.
	Resolve(ctx context.Context, pool *offload.Pool, passKey PassKey) (*WrapKey, WrapKeyRef, error)
}

// RawWrapKeyMethod uses passKey directly as wrap-key material — the
// "raw://" scheme.
type RawWrapKeyMethod struct{}

func (RawWrapKeyMethod) Resolve(ctx context.Context, pool *offload.Pool, passKey PassKey) (*WrapKey, WrapKeyRef, error) {
	wk, err := offload.Do(ctx, pool, func() (*WrapKey, error) {
		if len(passKey) != subKeyLen {
			return nil, verrors.New(verrors.Input, fmt.Sprintf("raw wrap key must be %d bytes", subKeyLen))
		}
		aead, err := NewAESGCM(passKey)
		if err != nil {
			return nil, verrors.Wrap(verrors.Encryption, "build raw wrap key", err)
		}
		return &WrapKey{aead: aead}, nil
	})
	if err != nil {
		return nil, WrapKeyRef{}, err
	}
	return wk, WrapKeyRef{uri: "raw://"}, nil
}

// PassphraseWrapKeyMethod derives the WrapKey from a passphrase and a
// persisted salt via a PassphraseKDF (Argon2id by default), the same shape
// R4cc-ModSentinel/internal/secrets.Load uses for its node-key KEK.
type PassphraseWrapKeyMethod struct {
	KDF  PassphraseKDF
	Salt []byte
}

func (m PassphraseWrapKeyMethod) Resolve(ctx context.Context, pool *offload.Pool, passKey PassKey) (*WrapKey, WrapKeyRef, error) {
	kdf := m.KDF
	if kdf == nil {
		kdf = Argon2KDF{}
	}
	salt := m.Salt
	if len(salt) == 0 {
		s := make([]byte, 16)
		if _, err := io.ReadFull(rand.Reader, s); err != nil {
			return nil, WrapKeyRef{}, verrors.Wrap(verrors.Encryption, "generate wrap key salt", err)
		}
		salt = s
	}
	wk, err := offload.Do(ctx, pool, func() (*WrapKey, error) {
		if len(passKey) == 0 {
			return nil, verrors.New(verrors.Input, "passphrase wrap key requires a non-empty passphrase")
		}
		kek := kdf.Derive(passKey, salt)
		aead, err := NewAESGCM(kek)
		if err != nil {
			return nil, verrors.Wrap(verrors.Encryption, "build passphrase wrap key", err)
		}
		return &WrapKey{aead: aead}, nil
	})
	if err != nil {
		return nil, WrapKeyRef{}, err
	}
	return wk, WrapKeyRef{uri: fmt.Sprintf("kdf://argon2id?salt=%s", hex.EncodeToString(salt))}, nil
}
