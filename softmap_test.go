package coldcache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSoftMapPutAndGet(t *testing.T) {
	s := newSoftMap(2)
	s.Put("a", Value("1"))

	v, ok := s.Get("a")
	require.True(t, ok)
	assert.Equal(t, Value("1"), v)
}

func TestSoftMapEvictsLeastRecentlyUsed(t *testing.T) {
	s := newSoftMap(2)
	s.Put("a", Value("1"))
	s.Put("b", Value("2"))
	s.Put("c", Value("3"))

	_, ok := s.Get("a")
	assert.False(t, ok, "a should have been evicted to keep the map within capacity")

	_, ok = s.Get("b")
	assert.True(t, ok)
	_, ok = s.Get("c")
	assert.True(t, ok)
}

func TestSoftMapGetPromotes(t *testing.T) {
	s := newSoftMap(2)
	s.Put("a", Value("1"))
	s.Put("b", Value("2"))

	s.Get("a")
	s.Put("c", Value("3"))

	_, ok := s.Get("b")
	assert.False(t, ok, "b was least-recently-used after a's promotion")
}

func TestSoftMapRemoveAndClear(t *testing.T) {
	s := newSoftMap(2)
	s.Put("a", Value("1"))
	s.Remove("a")

	_, ok := s.Get("a")
	assert.False(t, ok)

	s.Put("b", Value("2"))
	s.Clear()
	_, ok = s.Get("b")
	assert.False(t, ok)
}

func TestSoftMapZeroCapacityDisablesCaching(t *testing.T) {
	s := newSoftMap(0)
	s.Put("a", Value("1"))

	_, ok := s.Get("a")
	assert.False(t, ok)
}
