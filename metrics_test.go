package coldcache

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestCollectorExposesMemoryOnlyMetrics(t *testing.T) {
	c, err := NewCache(CacheConfig{Name: "metrics1", MaxElementsInMemory: 10})
	require.NoError(t, err)
	defer c.Dispose()

	e := NewElement("a", Value("1"))
	require.NoError(t, c.Put(&e))
	_, _, err = c.Get("a")
	require.NoError(t, err)
	_, _, err = c.Get("missing")
	require.NoError(t, err)

	collector := NewCollector(c)

	count := testutil.CollectAndCount(collector)
	require.Equal(t, 5, count, "2 hit-tier samples + 2 miss-reason samples + 1 memory gauge, no disk metrics")
}

func TestCollectorExposesDiskMetricsWhenOverflowEnabled(t *testing.T) {
	c, err := NewCache(CacheConfig{
		Name:                "metrics2",
		MaxElementsInMemory: 10,
		OverflowToDisk:      true,
		DiskDir:             t.TempDir(),
	})
	require.NoError(t, err)
	defer c.Dispose()

	collector := NewCollector(c)
	count := testutil.CollectAndCount(collector)
	require.Equal(t, 7, count, "the memory-only 5 samples plus the disk element count and sparseness gauges")
}
