package coldcache

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// cacheState is the Cache lifecycle: UNINITIALISED -> ALIVE -> DISPOSED.
type cacheState int32

const (
	cacheUninitialised cacheState = iota
	cacheAlive
	cacheDisposed
)

// CacheConfig configures a Cache. It is the per-cache slice of the
// Configuration record described in spec.md §6, with the disk root already
// resolved to an absolute directory by the caller (typically a
// CacheManager).
type CacheConfig struct {
	Name string

	MaxElementsInMemory int
	Eternal             bool
	TimeToLive          time.Duration
	TimeToIdle          time.Duration

	OverflowToDisk                bool
	DiskPersistent                bool
	DiskExpiryThreadInterval      time.Duration
	DiskDir                       string
}

// withDefaults fills in the zero-value defaults spec.md §6 calls for.
func (c CacheConfig) withDefaults() CacheConfig {
	if c.DiskExpiryThreadInterval == 0 {
		c.DiskExpiryThreadInterval = 120 * time.Second
	}
	return c
}

// Cache composes a MemoryStore with an optional DiskStore, applying lookup
// promotion, lazy expiry and cache-level statistics on top of both.
type Cache struct {
	cfg CacheConfig

	state int32 // cacheState, accessed atomically

	mem  *MemoryStore
	disk *DiskStore

	stats cacheStats
	log   *logrus.Entry

	disposeMu sync.Mutex
}

// NewCache builds and initializes a Cache from cfg. The returned Cache is
// ALIVE.
func NewCache(cfg CacheConfig) (*Cache, error) {
	cfg = cfg.withDefaults()

	c := &Cache{
		cfg:   cfg,
		log:   cacheLog(cfg.Name),
		state: int32(cacheUninitialised),
	}

	if cfg.MaxElementsInMemory == 0 {
		c.log.Warn("max elements in memory is 0, every put will be evicted immediately")
	}

	c.mem = NewMemoryStore(cfg.MaxElementsInMemory, c.evictToDisk)

	if cfg.OverflowToDisk {
		disk, err := OpenDiskStore(DiskStoreConfig{
			Name:           cfg.Name,
			Dir:            cfg.DiskDir,
			Persistent:     cfg.DiskPersistent,
			Eternal:        cfg.Eternal,
			TTL:            cfg.TimeToLive,
			TTI:            cfg.TimeToIdle,
			ExpiryInterval: cfg.DiskExpiryThreadInterval,
			IsExpired:      c.IsExpired,
		})
		if err != nil {
			return nil, err
		}
		c.disk = disk
	}

	atomic.StoreInt32(&c.state, int32(cacheAlive))
	return c, nil
}

func (c *Cache) currentState() cacheState {
	return cacheState(atomic.LoadInt32(&c.state))
}

func (c *Cache) requireAlive() error {
	if c.currentState() != cacheAlive {
		return ErrNotAlive
	}
	return nil
}

// evictToDisk is the MemoryStore eviction hook (spec.md §4.2): drop an
// expired candidate silently, spool a live one to disk if overflow is
// enabled, or drop it if there is nowhere else for it to go.
func (c *Cache) evictToDisk(e Element) {
	if c.IsExpired(e, time.Now()) {
		return
	}

	if c.disk == nil {
		return
	}

	if err := c.disk.Put(e); err != nil {
		c.log.WithError(err).WithField("key", e.key).Error("failed to spool evicted element")
	}
}

// IsExpired is the Cache-level expiry predicate (spec.md §4.3). The use of
// nextToLastAccessTime instead of lastAccessTime is load-bearing: it keeps
// the very read that is probing for expiry from resetting the idle clock
// and masking staleness.
func (c *Cache) IsExpired(e Element, now time.Time) bool {
	if e.isTombstone() {
		return true
	}
	if c.cfg.Eternal {
		return false
	}

	ageLived := now.Sub(e.creationTime)

	idleSince := e.creationTime
	if e.nextToLastAccessTime.After(idleSince) {
		idleSince = e.nextToLastAccessTime
	}
	ageIdled := now.Sub(idleSince)

	if c.cfg.TimeToLive > 0 && ageLived > c.cfg.TimeToLive {
		return true
	}
	if c.cfg.TimeToIdle > 0 && ageIdled > c.cfg.TimeToIdle {
		return true
	}
	return false
}

// Put stores e, resetting its access statistics as if it were a fresh
// insert. A nil e is a caller error.
func (c *Cache) Put(e *Element) error {
	if err := c.requireAlive(); err != nil {
		return err
	}
	if e == nil {
		return ErrNilElement
	}

	c.mem.Put(e.resetAccessStatistics(time.Now()))
	return nil
}

// PutQuiet stores e without resetting its access statistics.
func (c *Cache) PutQuiet(e *Element) error {
	if err := c.requireAlive(); err != nil {
		return err
	}
	if e == nil {
		return ErrNilElement
	}

	c.mem.Put(*e)
	return nil
}

// Get looks up key, checking the MemoryStore first and, on a miss, the
// DiskStore if overflow is enabled. A disk hit is promoted back into the
// MemoryStore. An expired hit on either tier is removed from both tiers
// and reported as a miss.
func (c *Cache) Get(key Key) (Element, bool, error) {
	return c.get(key, true)
}

// GetQuiet is like Get but does not update the returned element's access
// statistics; cache-level hit/miss counters are still updated.
func (c *Cache) GetQuiet(key Key) (Element, bool, error) {
	return c.get(key, false)
}

func (c *Cache) get(key Key, touch bool) (Element, bool, error) {
	if err := c.requireAlive(); err != nil {
		return Element{}, false, err
	}

	now := time.Now()

	memGet := c.mem.GetQuiet
	if touch {
		memGet = c.mem.Get
	}

	if e, ok := memGet(key); ok {
		if c.IsExpired(e, now) {
			c.mem.Remove(key)
			if c.disk != nil {
				c.disk.Remove(key)
			}
			c.stats.recordMissExpired()
			return Element{}, false, nil
		}

		c.stats.recordMemoryHit()
		return e, true, nil
	}

	if c.disk != nil {
		diskGet := c.disk.GetQuiet
		if touch {
			diskGet = c.disk.Get
		}

		if e, ok := diskGet(key); ok {
			if c.IsExpired(e, now) {
				c.disk.Remove(key)
				c.stats.recordMissExpired()
				return Element{}, false, nil
			}

			c.mem.Put(e)
			c.stats.recordDiskHit()
			return e, true, nil
		}
	}

	c.stats.recordMissNotFound()
	return Element{}, false, nil
}

// Remove deletes key from both tiers, reporting whether either held it.
func (c *Cache) Remove(key Key) (bool, error) {
	if err := c.requireAlive(); err != nil {
		return false, err
	}

	removed := c.mem.Remove(key)
	if c.disk != nil {
		if c.disk.Remove(key) {
			removed = true
		}
	}
	return removed, nil
}

// RemoveAll clears both tiers.
func (c *Cache) RemoveAll() error {
	if err := c.requireAlive(); err != nil {
		return err
	}

	c.mem.RemoveAll()
	if c.disk != nil {
		c.disk.RemoveAll()
	}
	return nil
}

// Keys returns the deduplicated union of memory and disk keys. O(n) in the
// total key count.
func (c *Cache) Keys() ([]Key, error) {
	if err := c.requireAlive(); err != nil {
		return nil, err
	}

	memKeys := c.mem.Keys()
	if c.disk == nil {
		return memKeys, nil
	}

	seen := make(map[Key]struct{}, len(memKeys))
	out := make([]Key, 0, len(memKeys))
	for _, k := range memKeys {
		seen[k] = struct{}{}
		out = append(out, k)
	}

	for _, k := range c.disk.Keys() {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}

	return out, nil
}

// KeysNoDuplicateCheck concatenates memory and disk keys without
// deduplicating. Cheaper than Keys, but the result may contain duplicates
// for keys held in both tiers, such as a key promoted back into memory
// after a disk hit, which stays in the disk index as well.
func (c *Cache) KeysNoDuplicateCheck() ([]Key, error) {
	if err := c.requireAlive(); err != nil {
		return nil, err
	}

	memKeys := c.mem.Keys()
	if c.disk == nil {
		return memKeys, nil
	}

	return append(memKeys, c.disk.Keys()...), nil
}

// KeysWithExpiryCheck returns Keys filtered by a quiet, per-key expiry
// probe: entries are not promoted or otherwise perturbed just by checking,
// except that an on-disk entry already past its disk expiry time is
// dropped from the disk index when probed.
func (c *Cache) KeysWithExpiryCheck() ([]Key, error) {
	keys, err := c.Keys()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	out := make([]Key, 0, len(keys))
	for _, k := range keys {
		if e, ok := c.mem.GetQuiet(k); ok {
			if !c.IsExpired(e, now) {
				out = append(out, k)
			}
			continue
		}
		if c.disk != nil {
			if e, ok := c.disk.GetQuiet(k); ok && !c.IsExpired(e, now) {
				out = append(out, k)
			}
		}
	}
	return out, nil
}

// Size returns the number of unique keys currently held, which may include
// expired-but-not-yet-swept entries.
func (c *Cache) Size() (int, error) {
	keys, err := c.Keys()
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}

// Statistics returns a snapshot of the cache's monotonic counters.
func (c *Cache) Statistics() Statistics {
	return c.stats.snapshot()
}

// Name returns the cache's configured name.
func (c *Cache) Name() string { return c.cfg.Name }

// Dispose transitions the cache to DISPOSED. It disposes the MemoryStore,
// which spools every held element to the DiskStore first if the cache is
// disk-persistent, then disposes the DiskStore. Dispose is idempotent: a
// second call is a silent no-op with no further I/O.
func (c *Cache) Dispose() error {
	c.disposeMu.Lock()
	defer c.disposeMu.Unlock()

	if !atomic.CompareAndSwapInt32(&c.state, int32(cacheAlive), int32(cacheDisposed)) {
		return nil
	}

	persistent := c.disk != nil && c.cfg.DiskPersistent
	c.mem.Dispose(persistent, func(e Element) {
		if err := c.disk.Put(e); err != nil {
			c.log.WithError(err).WithField("key", e.key).Error("failed to spool element on dispose")
		}
	})

	if c.disk != nil {
		c.disk.Dispose()
	}

	return nil
}
