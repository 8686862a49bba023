package coldcache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCacheStatsSnapshot(t *testing.T) {
	var s cacheStats
	s.recordMemoryHit()
	s.recordMemoryHit()
	s.recordDiskHit()
	s.recordMissNotFound()
	s.recordMissExpired()

	snap := s.snapshot()
	assert.Equal(t, uint64(3), snap.HitCount)
	assert.Equal(t, uint64(2), snap.MemoryStoreHitCount)
	assert.Equal(t, uint64(1), snap.DiskStoreHitCount)
	assert.Equal(t, uint64(1), snap.MissCountNotFound)
	assert.Equal(t, uint64(1), snap.MissCountExpired)
}
