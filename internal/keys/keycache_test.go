package keys

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"ciphervault/internal/offload"
)

func testWrapKey(t *testing.T) *WrapKey {
	t.Helper()
	pool := offload.NewPool(2)
	defer pool.Close()
	wk, _, err := (RawWrapKeyMethod{}).Resolve(context.Background(), pool, make([]byte, subKeyLen))
	if err != nil {
		t.Fatalf("resolve wrap key: %v", err)
	}
	return wk
}

func TestKeyCacheAddAndGet(t *testing.T) {
	pool := offload.NewPool(2)
	defer pool.Close()
	cache := NewKeyCache(testWrapKey(t), pool)
	sk, _ := NewStoreKey()
	cache.AddProfile("alice", ProfileId(1), sk)

	pid, key, ok := cache.GetProfile("alice")
	if !ok || pid != 1 || key != sk {
		t.Fatalf("expected cached entry, got pid=%d ok=%v", pid, ok)
	}
	if _, _, ok := cache.GetProfile("bob"); ok {
		t.Fatalf("expected miss for uncached profile")
	}
}

func TestKeyCacheAddProfileIsIdempotent(t *testing.T) {
	pool := offload.NewPool(2)
	defer pool.Close()
	cache := NewKeyCache(testWrapKey(t), pool)
	sk1, _ := NewStoreKey()
	sk2, _ := NewStoreKey()
	cache.AddProfile("alice", 1, sk1)
	cache.AddProfile("alice", 2, sk2)

	pid, key, _ := cache.GetProfile("alice")
	if pid != 1 || key != sk1 {
		t.Fatalf("expected first insertion to win")
	}
}

func TestResolveProfileSerializesConcurrentMisses(t *testing.T) {
	pool := offload.NewPool(4)
	defer pool.Close()
	wk := testWrapKey(t)
	cache := NewKeyCache(wk, pool)

	sk, _ := NewStoreKey()
	blob, err := EncodeStoreKey(sk, wk)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	var loads int32
	load := func() (ProfileId, []byte, error) {
		atomic.AddInt32(&loads, 1)
		return ProfileId(7), blob, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pid, key, err := cache.ResolveProfile(context.Background(), "alice", load)
			if err != nil {
				t.Errorf("ResolveProfile: %v", err)
				return
			}
			if pid != 7 || key == nil {
				t.Errorf("unexpected resolve result pid=%d key=%v", pid, key)
			}
		}()
	}
	wg.Wait()

	if loads != 1 {
		t.Fatalf("expected exactly one load for concurrent misses, got %d", loads)
	}
}

func TestKeyCacheZeroizeClearsEntries(t *testing.T) {
	pool := offload.NewPool(2)
	defer pool.Close()
	cache := NewKeyCache(testWrapKey(t), pool)
	sk, _ := NewStoreKey()
	cache.AddProfile("alice", 1, sk)

	cache.Zeroize()

	if !sk.Zeroized() {
		t.Fatalf("expected cached store key to be zeroized")
	}
	if _, _, ok := cache.GetProfile("alice"); ok {
		t.Fatalf("expected cache to be empty after zeroize")
	}
}
