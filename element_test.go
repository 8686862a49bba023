package coldcache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewElementInitializesClocks(t *testing.T) {
	e := NewElement("k", Value("v"))

	require.Equal(t, Key("k"), e.Key())
	require.Equal(t, Value("v"), e.Value())
	assert.Equal(t, uint64(0), e.HitCount())
	assert.Equal(t, e.creationTime, e.lastAccessTime)
	assert.Equal(t, e.creationTime, e.nextToLastAccessTime)
}

func TestElementTouchAdvancesNextToLastFromPreviousLast(t *testing.T) {
	e := NewElement("k", Value("v"))
	firstAccess := e.creationTime.Add(time.Second)
	e = e.touch(firstAccess)

	assert.Equal(t, e.creationTime, e.nextToLastAccessTime, "first touch: next-to-last is still the creation time")
	assert.Equal(t, firstAccess, e.lastAccessTime)
	assert.Equal(t, uint64(1), e.HitCount())

	secondAccess := firstAccess.Add(time.Second)
	e = e.touch(secondAccess)

	assert.Equal(t, firstAccess, e.nextToLastAccessTime, "second touch: next-to-last becomes the prior last-access")
	assert.Equal(t, secondAccess, e.lastAccessTime)
	assert.Equal(t, uint64(2), e.HitCount())
}

func TestElementTouchDoesNotMutateReceiver(t *testing.T) {
	e := NewElement("k", Value("v"))
	original := e
	_ = e.touch(time.Now().Add(time.Hour))

	assert.Equal(t, original, e, "touch must not mutate the receiver")
}

func TestElementResetAccessStatistics(t *testing.T) {
	e := NewElement("k", Value("v"))
	e = e.touch(e.creationTime.Add(time.Minute))
	require.Equal(t, uint64(1), e.HitCount())

	now := e.creationTime.Add(time.Hour)
	e = e.resetAccessStatistics(now)

	assert.Equal(t, uint64(0), e.HitCount())
	assert.Equal(t, now, e.creationTime)
	assert.Equal(t, now, e.lastAccessTime)
	assert.Equal(t, now, e.nextToLastAccessTime)
}

func TestElementIsTombstone(t *testing.T) {
	present := NewElement("k", Value("v"))
	assert.False(t, present.isTombstone())

	absent := NewElement("k", nil)
	assert.True(t, absent.isTombstone())
}
