package keys

import (
	"testing"
)

func TestCategoryEncryptionIsDeterministic(t *testing.T) {
	sk, err := NewStoreKey()
	if err != nil {
		t.Fatalf("NewStoreKey: %v", err)
	}
	a, err := sk.EncryptEntryCategory("contacts")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	b, err := sk.EncryptEntryCategory("contacts")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if string(a) != string(b) {
		t.Fatalf("expected deterministic ciphertext, got %x != %x", a, b)
	}
	dec, err := sk.DecryptEntryCategory(a)
	if err != nil || dec != "contacts" {
		t.Fatalf("round trip failed: %q, %v", dec, err)
	}
}

func TestValueEncryptionIsRandomized(t *testing.T) {
	sk, _ := NewStoreKey()
	a, err := sk.EncryptEntryValue([]byte("secret"))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	b, err := sk.EncryptEntryValue([]byte("secret"))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if string(a) == string(b) {
		t.Fatalf("expected randomized ciphertext to differ")
	}
	dec, err := sk.DecryptEntryValue(a)
	if err != nil || string(dec) != "secret" {
		t.Fatalf("round trip failed: %q, %v", dec, err)
	}
}

func TestTagEncryptionRoundTrip(t *testing.T) {
	sk, _ := NewStoreKey()
	tags := []EntryTag{
		{Name: "n", Value: "42", Plaintext: false},
		{Name: "city", Value: "nyc", Plaintext: true},
	}
	enc, err := sk.EncryptEntryTags(tags)
	if err != nil {
		t.Fatalf("encrypt tags: %v", err)
	}
	if string(enc[1].Value) != "nyc" {
		t.Fatalf("expected plaintext tag value to pass through, got %q", enc[1].Value)
	}
	dec, err := sk.DecryptEntryTags(enc)
	if err != nil {
		t.Fatalf("decrypt tags: %v", err)
	}
	if len(dec) != 2 || dec[0].Value != "42" || dec[1].Value != "nyc" {
		t.Fatalf("unexpected round trip: %+v", dec)
	}
}

func TestDecryptFailsOnTamperedCiphertext(t *testing.T) {
	sk, _ := NewStoreKey()
	enc, _ := sk.EncryptEntryValue([]byte("secret"))
	enc[len(enc)-1] ^= 0xFF
	if _, err := sk.DecryptEntryValue(enc); err == nil {
		t.Fatalf("expected decryption to fail on tampered ciphertext")
	}
}

func TestToBytesFromBytesRoundTrip(t *testing.T) {
	sk, _ := NewStoreKey()
	enc, err := sk.EncryptEntryCategory("contacts")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	blob, err := sk.ToBytes()
	if err != nil {
		t.Fatalf("to bytes: %v", err)
	}
	sk2, err := StoreKeyFromBytes(blob)
	if err != nil {
		t.Fatalf("from bytes: %v", err)
	}
	dec, err := sk2.DecryptEntryCategory(enc)
	if err != nil || dec != "contacts" {
		t.Fatalf("cross-instance decrypt failed: %q, %v", dec, err)
	}
}

func TestZeroizeOverwritesSubKeys(t *testing.T) {
	sk, _ := NewStoreKey()
	if sk.Zeroized() {
		t.Fatalf("should not start zeroized")
	}
	sk.Zeroize()
	if !sk.Zeroized() {
		t.Fatalf("expected zeroized after Zeroize")
	}
	allZero := true
	for _, b := range sk.categoryKey {
		if b != 0 {
			allZero = false
		}
	}
	if !allZero {
		t.Fatalf("expected category key bytes to be zero")
	}
	sk.Zeroize() // idempotent
}
