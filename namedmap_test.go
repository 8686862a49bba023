package coldcache

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateNamedMapNameSanitizesPunctuation(t *testing.T) {
	got, err := validateNamedMapName("user sessions/v2")
	require.NoError(t, err)
	assert.Equal(t, "user_sessions_v2", got)
}

func TestValidateNamedMapNameRejectsEmpty(t *testing.T) {
	_, err := validateNamedMapName("")
	assert.ErrorIs(t, err, ErrInvalidName)
}

func TestValidateNamedMapNameRejectsTooLong(t *testing.T) {
	_, err := validateNamedMapName(strings.Repeat("a", maxNamedMapNameLength+1))
	assert.ErrorIs(t, err, ErrInvalidName)
}

func newTestNamedMap(t *testing.T) *NamedMap {
	t.Helper()
	c, err := NewCache(CacheConfig{Name: "nm-" + t.Name(), MaxElementsInMemory: 10})
	require.NoError(t, err)

	nm, err := NewNamedMap(t.Name(), c, 10)
	require.NoError(t, err)
	return nm
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	for i := 0; i < 1000; i++ {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition never became true")
}

func TestNamedMapPutIsVisibleThroughValuesImmediately(t *testing.T) {
	nm := newTestNamedMap(t)
	defer nm.Shutdown()

	nm.Put("a", Value("1"))

	assert.True(t, nm.HasKey("a"))
	v, ok, err := nm.Get("a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, Value("1"), v)
}

func TestNamedMapPutReachesUnderlyingCacheEventually(t *testing.T) {
	nm := newTestNamedMap(t)
	defer nm.Shutdown()

	nm.Put("a", Value("1"))

	waitUntil(t, func() bool {
		_, ok, _ := nm.cache.Get("a")
		return ok
	})
}

func TestNamedMapRemoveClearsKeyAndValueImmediately(t *testing.T) {
	nm := newTestNamedMap(t)
	defer nm.Shutdown()

	nm.Put("a", Value("1"))
	nm.Remove("a")

	assert.False(t, nm.HasKey("a"))
	_, ok, err := nm.Get("a")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNamedMapKeys(t *testing.T) {
	nm := newTestNamedMap(t)
	defer nm.Shutdown()

	nm.Put("a", Value("1"))
	nm.Put("b", Value("2"))

	assert.ElementsMatch(t, []Key{"a", "b"}, nm.Keys())
}

func TestNamedMapShutdownDrainsQueueBeforeExiting(t *testing.T) {
	cfg := CacheConfig{
		Name:                "nm-" + t.Name(),
		MaxElementsInMemory: 10,
		OverflowToDisk:      true,
		DiskPersistent:      true,
		DiskDir:             t.TempDir(),
	}
	c, err := NewCache(cfg)
	require.NoError(t, err)

	nm, err := NewNamedMap(t.Name(), c, 10)
	require.NoError(t, err)

	for i := 0; i < 50; i++ {
		nm.Put(Key(strings.Repeat("k", i+1)), Value("v"))
	}

	require.NoError(t, nm.Shutdown())

	// Shutdown disposes the underlying Cache, so reopen its persisted
	// files to see what the writer applied before it exited.
	reopened, err := NewCache(cfg)
	require.NoError(t, err)
	defer reopened.Dispose()

	for i := 0; i < 50; i++ {
		_, ok, err := reopened.GetQuiet(Key(strings.Repeat("k", i+1)))
		require.NoError(t, err)
		assert.True(t, ok, "every queued put must be applied before the writer exits")
	}
}

func TestNamedMapShutdownIsIdempotent(t *testing.T) {
	nm := newTestNamedMap(t)

	require.NoError(t, nm.Shutdown())
	require.NoError(t, nm.Shutdown())
}
