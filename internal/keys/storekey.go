// Package keys implements the per-profile StoreKey bundle, the
// process-level WrapKeyMethod that protects it at rest, and the KeyCache
// that lazily resolves (ProfileId, StoreKey) pairs for the storage engine.
package keys

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"io"

	"golang.org/x/crypto/hkdf"

	"ciphervault/internal/verrors"
)

const subKeyLen = 32

// EncEntryTag is a tag after StoreKey encryption: name is always
// deterministically encrypted; value is deterministically encrypted when
// Plaintext is false and kept as the plaintext bytes when Plaintext is true.
type EncEntryTag struct {
	Name      []byte
	Value     []byte
	Plaintext bool
}

// StoreKey is the per-profile symmetric key bundle: deterministic
// encryption for category/name/tag-name and for the values of encrypted
// tags, randomized encryption for entry values. Plaintext tag values are
// not encrypted.
//
// Sub-keys are immutable once constructed and safe to share by reference
// across concurrent sessions; Zeroize must be called exactly once, by
// whichever holder is last to let go (the KeyCache on rekey or
// Backend.Close, or a session that loaded its own transient copy).
type StoreKey struct {
	categoryKey [subKeyLen]byte
	nameKey     [subKeyLen]byte
	valueKey    [subKeyLen]byte
	tagNameKey  [subKeyLen]byte
	tagValueKey [subKeyLen]byte
	hmacKey     [subKeyLen]byte

	categoryAEAD AEAD
	nameAEAD     AEAD
	valueAEAD    AEAD
	tagNameAEAD  AEAD
	tagValueAEAD AEAD

	zeroized bool
}

// storeKeyBlob is the wire shape persisted (wrapped) in profiles.store_key.
type storeKeyBlob struct {
	Category []byte `json:"c"`
	Name     []byte `json:"n"`
	Value    []byte `json:"v"`
	TagName  []byte `json:"tn"`
	TagValue []byte `json:"tv"`
	HMAC     []byte `json:"h"`
}

// NewStoreKey generates a fresh StoreKey from a random 32-byte seed,
// expanding it into six independent sub-keys via HKDF-SHA256 so a single
// seed's compromise doesn't directly hand over every sub-key bit for bit.
func NewStoreKey() (*StoreKey, error) {
	seed := make([]byte, subKeyLen)
	if _, err := io.ReadFull(rand.Reader, seed); err != nil {
		return nil, verrors.Wrap(verrors.Encryption, "generate store key seed", err)
	}
	return storeKeyFromSeed(seed)
}

func storeKeyFromSeed(seed []byte) (*StoreKey, error) {
	h := hkdf.New(sha256.New, seed, nil, []byte("ciphervault-store-key-v1"))
	sk := &StoreKey{}
	subKeys := [][]byte{
		sk.categoryKey[:], sk.nameKey[:], sk.valueKey[:],
		sk.tagNameKey[:], sk.tagValueKey[:], sk.hmacKey[:],
	}
	for _, k := range subKeys {
		if _, err := io.ReadFull(h, k); err != nil {
			return nil, verrors.Wrap(verrors.Encryption, "expand store key", err)
		}
	}
	if err := sk.initAEADs(); err != nil {
		return nil, err
	}
	return sk, nil
}

func (k *StoreKey) initAEADs() error {
	var err error
	if k.categoryAEAD, err = NewChaCha20Poly1305(k.categoryKey[:]); err != nil {
		return err
	}
	if k.nameAEAD, err = NewChaCha20Poly1305(k.nameKey[:]); err != nil {
		return err
	}
	if k.valueAEAD, err = NewChaCha20Poly1305(k.valueKey[:]); err != nil {
		return err
	}
	if k.tagNameAEAD, err = NewChaCha20Poly1305(k.tagNameKey[:]); err != nil {
		return err
	}
	if k.tagValueAEAD, err = NewChaCha20Poly1305(k.tagValueKey[:]); err != nil {
		return err
	}
	return nil
}

// deterministicNonce derives a nonce from an HMAC over the plaintext and a
// domain tag, so equal plaintext always yields equal ciphertext under a
// given sub-key (enabling `WHERE category = ?` equality search) without a
// fixed, reused nonce.
func (k *StoreKey) deterministicNonce(domain string, plaintext []byte, nonceSize int) []byte {
	mac := hmac.New(sha256.New, k.hmacKey[:])
	mac.Write([]byte(domain))
	mac.Write([]byte{0})
	mac.Write(plaintext)
	sum := mac.Sum(nil)
	if nonceSize > len(sum) {
		nonceSize = len(sum)
	}
	return sum[:nonceSize]
}

// EncryptEntryCategory deterministically encrypts category so the database
// can equality-match without decrypting every row.
func (k *StoreKey) EncryptEntryCategory(category string) ([]byte, error) {
	return k.encryptDeterministic(k.categoryAEAD, "category", []byte(category))
}

// DecryptEntryCategory inverts EncryptEntryCategory.
func (k *StoreKey) DecryptEntryCategory(enc []byte) (string, error) {
	b, err := k.decrypt(k.categoryAEAD, enc)
	return string(b), err
}

// EncryptEntryName deterministically encrypts name.
func (k *StoreKey) EncryptEntryName(name string) ([]byte, error) {
	return k.encryptDeterministic(k.nameAEAD, "name", []byte(name))
}

// DecryptEntryName inverts EncryptEntryName.
func (k *StoreKey) DecryptEntryName(enc []byte) (string, error) {
	b, err := k.decrypt(k.nameAEAD, enc)
	return string(b), err
}

// EncryptEntryValue randomly encrypts value; a fresh nonce is drawn on
// every call, so equal values produce different ciphertexts.
func (k *StoreKey) EncryptEntryValue(value []byte) ([]byte, error) {
	nonce, err := RandomNonce(k.valueAEAD)
	if err != nil {
		return nil, verrors.Wrap(verrors.Encryption, "encrypt entry value", err)
	}
	ct := k.valueAEAD.Seal(nonce, value, nil)
	return append(nonce, ct...), nil
}

// DecryptEntryValue inverts EncryptEntryValue.
func (k *StoreKey) DecryptEntryValue(enc []byte) ([]byte, error) {
	return k.decrypt(k.valueAEAD, enc)
}

// EncryptEntryTags encrypts a slice of plaintext tags: names are always
// deterministic (tag-name sub-key); values are deterministic (tag-value
// sub-key) when Plaintext is false, so equality filters can match them,
// and are passed through unencrypted when Plaintext is true, so ordering
// and Like filters can compare them.
func (k *StoreKey) EncryptEntryTags(tags []EntryTag) ([]EncEntryTag, error) {
	out := make([]EncEntryTag, 0, len(tags))
	for _, t := range tags {
		encName, err := k.encryptDeterministic(k.tagNameAEAD, "tag-name", []byte(t.Name))
		if err != nil {
			return nil, err
		}
		var encValue []byte
		if t.Plaintext {
			encValue = []byte(t.Value)
		} else {
			encValue, err = k.encryptDeterministic(k.tagValueAEAD, "tag-value", []byte(t.Value))
			if err != nil {
				return nil, err
			}
		}
		out = append(out, EncEntryTag{Name: encName, Value: encValue, Plaintext: t.Plaintext})
	}
	return out, nil
}

// DecryptEntryTags inverts EncryptEntryTags.
func (k *StoreKey) DecryptEntryTags(tags []EncEntryTag) ([]EntryTag, error) {
	out := make([]EntryTag, 0, len(tags))
	for _, t := range tags {
		name, err := k.decrypt(k.tagNameAEAD, t.Name)
		if err != nil {
			return nil, err
		}
		var value []byte
		if t.Plaintext {
			value = t.Value
		} else {
			value, err = k.decrypt(k.tagValueAEAD, t.Value)
			if err != nil {
				return nil, err
			}
		}
		out = append(out, EntryTag{Name: string(name), Value: string(value), Plaintext: t.Plaintext})
	}
	return out, nil
}

// EncryptTagName deterministically encrypts a bare tag name, used by the
// tag-filter compiler to translate a filter leaf's name reference.
func (k *StoreKey) EncryptTagName(name string) ([]byte, error) {
	return k.encryptDeterministic(k.tagNameAEAD, "tag-name", []byte(name))
}

// EncryptTagValue deterministically encrypts a bare tag value comparand,
// used by the tag-filter compiler for equality/IN comparisons.
func (k *StoreKey) EncryptTagValue(value string) ([]byte, error) {
	return k.encryptDeterministic(k.tagValueAEAD, "tag-value", []byte(value))
}

func (k *StoreKey) encryptDeterministic(aead AEAD, domain string, plaintext []byte) ([]byte, error) {
	nonce := k.deterministicNonce(domain, plaintext, aead.NonceSize())
	ct := aead.Seal(nonce, plaintext, nil)
	return append(append([]byte{}, nonce...), ct...), nil
}

func (k *StoreKey) decrypt(aead AEAD, enc []byte) ([]byte, error) {
	if len(enc) < aead.NonceSize() {
		return nil, verrors.New(verrors.Encryption, "ciphertext shorter than nonce")
	}
	nonce, ct := enc[:aead.NonceSize()], enc[aead.NonceSize():]
	pt, err := aead.Open(nonce, ct, nil)
	if err != nil {
		return nil, verrors.Wrap(verrors.Encryption, "mac mismatch", err)
	}
	return pt, nil
}

// ToBytes serializes the StoreKey to an opaque blob. Used only in wrapped
// form (see WrapKeyMethod) — the plaintext blob must never be persisted.
func (k *StoreKey) ToBytes() ([]byte, error) {
	blob := storeKeyBlob{
		Category: k.categoryKey[:],
		Name:     k.nameKey[:],
		Value:    k.valueKey[:],
		TagName:  k.tagNameKey[:],
		TagValue: k.tagValueKey[:],
		HMAC:     k.hmacKey[:],
	}
	raw, err := json.Marshal(blob)
	if err != nil {
		return nil, verrors.Wrap(verrors.Encryption, "serialize store key", err)
	}
	return raw, nil
}

// StoreKeyFromBytes parses a blob produced by ToBytes.
func StoreKeyFromBytes(raw []byte) (*StoreKey, error) {
	var blob storeKeyBlob
	if err := json.Unmarshal(raw, &blob); err != nil {
		return nil, verrors.Wrap(verrors.Unexpected, "parse store key blob", err)
	}
	sk := &StoreKey{}
	if len(blob.Category) != subKeyLen || len(blob.Name) != subKeyLen || len(blob.Value) != subKeyLen ||
		len(blob.TagName) != subKeyLen || len(blob.TagValue) != subKeyLen || len(blob.HMAC) != subKeyLen {
		return nil, verrors.New(verrors.Unexpected, "store key blob has malformed sub-key length")
	}
	copy(sk.categoryKey[:], blob.Category)
	copy(sk.nameKey[:], blob.Name)
	copy(sk.valueKey[:], blob.Value)
	copy(sk.tagNameKey[:], blob.TagName)
	copy(sk.tagValueKey[:], blob.TagValue)
	copy(sk.hmacKey[:], blob.HMAC)
	if err := sk.initAEADs(); err != nil {
		return nil, err
	}
	return sk, nil
}

// Zeroize overwrites all six sub-keys in place. Safe to call more than
// once; subsequent calls are no-ops.
func (k *StoreKey) Zeroize() {
	if k.zeroized {
		return
	}
	zero := func(b []byte) {
		for i := range b {
			b[i] = 0
		}
	}
	zero(k.categoryKey[:])
	zero(k.nameKey[:])
	zero(k.valueKey[:])
	zero(k.tagNameKey[:])
	zero(k.tagValueKey[:])
	zero(k.hmacKey[:])
	k.zeroized = true
}

// Zeroized reports whether Zeroize has run — exposed only for the
// zeroization test hook (§8 property 8), not used by production code.
func (k *StoreKey) Zeroized() bool { return k.zeroized }

// EntryTag is the plaintext tag form accepted by EncryptEntryTags.
type EntryTag struct {
	Name      string
	Value     string
	Plaintext bool
}
