package keys

import (
	"bytes"
	"context"
	"encoding/hex"
	"testing"

	kmspb "cloud.google.com/go/kms/apiv1/kmspb"
	gax "github.com/googleapis/gax-go/v2"

	"ciphervault/internal/offload"
)

// fakeKMSClient simulates Cloud KMS's envelope-encrypt/decrypt contract
// with a fixed XOR transform, enough to exercise KMSWrapKeyMethod's
// control flow without a live KMS endpoint.
type fakeKMSClient struct {
	xorKey       byte
	lastEncrypts int
	lastDecrypts int
}

func (f *fakeKMSClient) Encrypt(ctx context.Context, req *kmspb.EncryptRequest, opts ...gax.CallOption) (*kmspb.EncryptResponse, error) {
	f.lastEncrypts++
	out := make([]byte, len(req.Plaintext))
	for i, b := range req.Plaintext {
		out[i] = b ^ f.xorKey
	}
	return &kmspb.EncryptResponse{Ciphertext: out}, nil
}

func (f *fakeKMSClient) Decrypt(ctx context.Context, req *kmspb.DecryptRequest, opts ...gax.CallOption) (*kmspb.DecryptResponse, error) {
	f.lastDecrypts++
	out := make([]byte, len(req.Ciphertext))
	for i, b := range req.Ciphertext {
		out[i] = b ^ f.xorKey
	}
	return &kmspb.DecryptResponse{Plaintext: out}, nil
}

func TestKMSWrapKeyMethodFirstResolveGeneratesDEK(t *testing.T) {
	pool := offload.NewPool(2)
	defer pool.Close()
	client := &fakeKMSClient{xorKey: 0x5A}
	method := KMSWrapKeyMethod{
		Client:  client,
		KeyName: "projects/p/locations/l/keyRings/r/cryptoKeys/k",
	}
	wk, ref, err := method.Resolve(context.Background(), pool, nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if wk == nil {
		t.Fatalf("expected a wrap key")
	}
	if !bytes.HasPrefix([]byte(ref.String()), []byte("kms://")) {
		t.Fatalf("expected kms:// ref, got %s", ref.String())
	}
	if client.lastEncrypts != 1 || client.lastDecrypts != 0 {
		t.Fatalf("expected one encrypt and no decrypts on first resolve, got encrypts=%d decrypts=%d", client.lastEncrypts, client.lastDecrypts)
	}
}

func TestKMSWrapKeyMethodReusesPersistedDEK(t *testing.T) {
	pool := offload.NewPool(2)
	defer pool.Close()
	client := &fakeKMSClient{xorKey: 0x5A}

	first := KMSWrapKeyMethod{Client: client, KeyName: "k"}
	wk1, ref1, err := first.Resolve(context.Background(), pool, nil)
	if err != nil {
		t.Fatalf("first resolve: %v", err)
	}

	encDEK := ref1.String()[len("kms://k?dek="):]
	hexDEK, err := hex.DecodeString(encDEK)
	if err != nil {
		t.Fatalf("decode dek ref: %v", err)
	}

	second := KMSWrapKeyMethod{Client: client, KeyName: "k", EncryptedDEK: hexDEK}
	wk2, _, err := second.Resolve(context.Background(), pool, nil)
	if err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if client.lastDecrypts != 1 {
		t.Fatalf("expected second resolve to decrypt the persisted DEK, got %d decrypts", client.lastDecrypts)
	}

	plaintext := []byte("round-trip-check")
	nonce, err := RandomNonce(wk1.aead)
	if err != nil {
		t.Fatalf("nonce: %v", err)
	}
	ct := wk1.aead.Seal(nonce, plaintext, nil)
	got, err := wk2.aead.Open(nonce, ct, nil)
	if err != nil || string(got) != string(plaintext) {
		t.Fatalf("expected wk2 to decrypt what wk1 sealed (same DEK), got %q, %v", got, err)
	}
}
