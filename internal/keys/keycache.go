package keys

import (
	"context"
	"sync"

	"ciphervault/internal/offload"
)

// ProfileId mirrors the database-assigned profile identifier. Defined here
// (rather than in internal/store) so KeyCache doesn't import the storage
// package just to name its key type.
type ProfileId int64

type cacheEntry struct {
	pid ProfileId
	key *StoreKey
}

// KeyCache is the async mapping from profile name to (ProfileId,
// StoreKey): non-blocking reads under a RWMutex, with per-profile load
// locks so two concurrent misses on the same profile unwrap the blob only
// once — the std-library-only shape of golang.org/x/sync/singleflight
// (see DESIGN.md for why a hand-rolled lock was used instead of that
// package).
type KeyCache struct {
	wrapKey *WrapKey
	pool    *offload.Pool

	mu      sync.RWMutex
	entries map[string]cacheEntry

	loadMu   sync.Mutex
	loadLock map[string]*sync.Mutex
}

// NewKeyCache builds an empty cache bound to wrapKey.
func NewKeyCache(wrapKey *WrapKey, pool *offload.Pool) *KeyCache {
	return &KeyCache{
		wrapKey:  wrapKey,
		pool:     pool,
		entries:  make(map[string]cacheEntry),
		loadLock: make(map[string]*sync.Mutex),
	}
}

// GetProfile is a non-blocking lookup.
func (c *KeyCache) GetProfile(name string) (ProfileId, *StoreKey, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[name]
	if !ok {
		return 0, nil, false
	}
	return e.pid, e.key, true
}

// AddProfile is an idempotent insertion: if name is already cached, the
// existing entry wins and key is left untouched by the caller's
// responsibility to decide whether to zeroize its own copy.
func (c *KeyCache) AddProfile(name string, pid ProfileId, key *StoreKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[name]; ok {
		return
	}
	c.entries[name] = cacheEntry{pid: pid, key: key}
}

// lockFor returns the per-profile load lock, creating it if absent.
func (c *KeyCache) lockFor(name string) *sync.Mutex {
	c.loadMu.Lock()
	defer c.loadMu.Unlock()
	l, ok := c.loadLock[name]
	if !ok {
		l = &sync.Mutex{}
		c.loadLock[name] = l
	}
	return l
}

// LoadKey unwraps wrapped under the cache's WrapKey and parses it into a
// StoreKey. CPU-bound, so it always runs through internal/offload rather
// than inline on the caller's goroutine.
func (c *KeyCache) LoadKey(ctx context.Context, wrapped []byte) (*StoreKey, error) {
	return offload.DoScoped(ctx, c.pool, func() (*StoreKey, error) {
		return DecodeStoreKey(wrapped, c.wrapKey)
	})
}

// ResolveProfile serializes concurrent misses on the same profile name
// through a single loader, so two goroutines racing to resolve "alice"
// unwrap her StoreKey blob exactly once.
func (c *KeyCache) ResolveProfile(ctx context.Context, name string, load func() (ProfileId, []byte, error)) (ProfileId, *StoreKey, error) {
	if pid, key, ok := c.GetProfile(name); ok {
		return pid, key, nil
	}
	lock := c.lockFor(name)
	lock.Lock()
	defer lock.Unlock()
	if pid, key, ok := c.GetProfile(name); ok {
		return pid, key, nil
	}
	pid, wrapped, err := load()
	if err != nil {
		return 0, nil, err
	}
	key, err := c.LoadKey(ctx, wrapped)
	if err != nil {
		return 0, nil, err
	}
	c.AddProfile(name, pid, key)
	return pid, key, nil
}

// Zeroize walks every cached StoreKey and erases its sub-keys. Called when
// this cache instance is discarded (rekey constructs a fresh cache and
// retires this one).
func (c *KeyCache) Zeroize() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.entries {
		e.key.Zeroize()
	}
	c.entries = make(map[string]cacheEntry)
}

// WrapKey exposes the cache's current WrapKey, needed by rekey to wrap
// freshly-loaded StoreKeys under the new key before replacing the cache.
func (c *KeyCache) WrapKey() *WrapKey { return c.wrapKey }
