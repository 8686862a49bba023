package coldcache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStorePutAndGet(t *testing.T) {
	ms := NewMemoryStore(10, nil)
	ms.Put(NewElement("a", Value("1")))

	e, ok := ms.Get("a")
	require.True(t, ok)
	assert.Equal(t, Value("1"), e.Value())
	assert.Equal(t, uint64(1), e.HitCount(), "Get must touch the element")
}

func TestMemoryStoreGetQuietDoesNotTouch(t *testing.T) {
	ms := NewMemoryStore(10, nil)
	ms.Put(NewElement("a", Value("1")))

	e, ok := ms.GetQuiet("a")
	require.True(t, ok)
	assert.Equal(t, uint64(0), e.HitCount())
}

func TestMemoryStoreMissing(t *testing.T) {
	ms := NewMemoryStore(10, nil)
	_, ok := ms.Get("missing")
	assert.False(t, ok)
}

func TestMemoryStoreEvictsLeastRecentlyUsed(t *testing.T) {
	var evicted []Key
	ms := NewMemoryStore(2, func(e Element) { evicted = append(evicted, e.Key()) })

	ms.Put(NewElement("a", Value("1")))
	ms.Put(NewElement("b", Value("2")))
	ms.Put(NewElement("c", Value("3")))

	require.Len(t, evicted, 1)
	assert.Equal(t, Key("a"), evicted[0])
	assert.Equal(t, 2, ms.Size())
}

func TestMemoryStoreGetPromotesAwayFromEviction(t *testing.T) {
	var evicted []Key
	ms := NewMemoryStore(2, func(e Element) { evicted = append(evicted, e.Key()) })

	ms.Put(NewElement("a", Value("1")))
	ms.Put(NewElement("b", Value("2")))

	_, ok := ms.Get("a")
	require.True(t, ok)

	ms.Put(NewElement("c", Value("3")))

	require.Len(t, evicted, 1)
	assert.Equal(t, Key("b"), evicted[0], "b was least-recently-used after a's promotion")
}

func TestMemoryStorePutOverwriteDoesNotDuplicate(t *testing.T) {
	ms := NewMemoryStore(10, nil)
	ms.Put(NewElement("a", Value("1")))
	ms.Put(NewElement("a", Value("2")))

	assert.Equal(t, 1, ms.Size())
	e, ok := ms.GetQuiet("a")
	require.True(t, ok)
	assert.Equal(t, Value("2"), e.Value())
}

func TestMemoryStoreRemove(t *testing.T) {
	ms := NewMemoryStore(10, nil)
	ms.Put(NewElement("a", Value("1")))

	assert.True(t, ms.Remove("a"))
	assert.False(t, ms.Remove("a"))
	_, ok := ms.GetQuiet("a")
	assert.False(t, ok)
}

func TestMemoryStoreRemoveAll(t *testing.T) {
	ms := NewMemoryStore(10, nil)
	ms.Put(NewElement("a", Value("1")))
	ms.Put(NewElement("b", Value("2")))

	ms.RemoveAll()
	assert.Equal(t, 0, ms.Size())
	assert.Empty(t, ms.Keys())
}

func TestMemoryStoreDisposePersistentSpoolsInLRUOrder(t *testing.T) {
	ms := NewMemoryStore(10, nil)
	ms.Put(NewElement("a", Value("1")))
	ms.Put(NewElement("b", Value("2")))

	var spooled []Key
	ms.Dispose(true, func(e Element) { spooled = append(spooled, e.Key()) })

	assert.Equal(t, []Key{"a", "b"}, spooled)
	assert.Equal(t, 0, ms.Size())
}

func TestMemoryStoreDisposeNonPersistentDropsWithoutSpooling(t *testing.T) {
	ms := NewMemoryStore(10, nil)
	ms.Put(NewElement("a", Value("1")))

	called := false
	ms.Dispose(false, func(Element) { called = true })

	assert.False(t, called)
	assert.Equal(t, 0, ms.Size())
}

func TestMemoryStoreZeroCapacityEvictsImmediately(t *testing.T) {
	var evicted []Key
	ms := NewMemoryStore(0, func(e Element) { evicted = append(evicted, e.Key()) })

	ms.Put(NewElement("a", Value("1")))

	assert.Equal(t, 0, ms.Size())
	require.Len(t, evicted, 1)
	assert.Equal(t, Key("a"), evicted[0])
}
