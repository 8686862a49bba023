package coldcache

import "sync/atomic"

// Statistics is a stable snapshot of a Cache's monotonic counters, bundled
// into one comparable value rather than requiring five separate accessor
// calls, the way the teacher bundles related counters into a single
// *Status/*CacheStatus struct instead of exposing raw fields.
type Statistics struct {
	HitCount            uint64
	MemoryStoreHitCount uint64
	DiskStoreHitCount   uint64
	MissCountNotFound   uint64
	MissCountExpired    uint64
}

// cacheStats holds the live, atomically-updated counters backing
// Statistics. All fields are in-memory only; they do not survive a
// restart, and are never persisted alongside the DiskStore's index.
type cacheStats struct {
	hitCount            uint64
	memoryStoreHitCount uint64
	diskStoreHitCount   uint64
	missCountNotFound   uint64
	missCountExpired    uint64
}

func (s *cacheStats) recordMemoryHit() {
	atomic.AddUint64(&s.hitCount, 1)
	atomic.AddUint64(&s.memoryStoreHitCount, 1)
}

func (s *cacheStats) recordDiskHit() {
	atomic.AddUint64(&s.hitCount, 1)
	atomic.AddUint64(&s.diskStoreHitCount, 1)
}

func (s *cacheStats) recordMissNotFound() {
	atomic.AddUint64(&s.missCountNotFound, 1)
}

// recordMissExpired records a miss caused by an expired element. Per
// spec.md §4.3, a disk hit that turns out to be expired counts here, not
// as a hit of any kind.
func (s *cacheStats) recordMissExpired() {
	atomic.AddUint64(&s.missCountExpired, 1)
}

func (s *cacheStats) snapshot() Statistics {
	return Statistics{
		HitCount:            atomic.LoadUint64(&s.hitCount),
		MemoryStoreHitCount: atomic.LoadUint64(&s.memoryStoreHitCount),
		DiskStoreHitCount:   atomic.LoadUint64(&s.diskStoreHitCount),
		MissCountNotFound:   atomic.LoadUint64(&s.missCountNotFound),
		MissCountExpired:    atomic.LoadUint64(&s.missCountExpired),
	}
}
