package coldcache

import "time"

// Key identifies a cached Element. The spec calls for an opaque,
// equality- and hash-comparable identifier; a string satisfies that while
// keeping the on-disk format and the map-based stores simple, the way the
// teacher package keys everything by string.
type Key = string

// Value is the opaque payload associated with a Key. A nil Value denotes a
// tombstone-on-read: an Element carrying it is always treated as expired.
type Value = []byte

// Element is the unit of storage. It is immutable after creation: every
// operation that would otherwise "touch" an element (record an access,
// bump the hit count) returns a new Element value rather than mutating the
// receiver in place, so any code holding a copy never observes another
// goroutine's read.
type Element struct {
	key   Key
	value Value

	creationTime         time.Time
	lastAccessTime       time.Time
	nextToLastAccessTime time.Time

	hitCount uint64
}

// NewElement constructs a fresh Element with its clock fields all set to
// now and a zero hit count.
func NewElement(key Key, value Value) Element {
	now := time.Now()
	return Element{
		key:                   key,
		value:                 value,
		creationTime:          now,
		lastAccessTime:        now,
		nextToLastAccessTime:  now,
		hitCount:              0,
	}
}

// Key returns the element's key.
func (e Element) Key() Key { return e.key }

// Value returns the element's payload. A nil result means the element is a
// tombstone.
func (e Element) Value() Value { return e.value }

// HitCount returns the number of non-quiet reads this element has served.
func (e Element) HitCount() uint64 { return e.hitCount }

// CreationTime returns the wall-clock time the element was constructed.
func (e Element) CreationTime() time.Time { return e.creationTime }

// LastAccessTime returns the time of the most recent non-quiet read.
func (e Element) LastAccessTime() time.Time { return e.lastAccessTime }

// isTombstone reports whether the element denotes an absent value.
func (e Element) isTombstone() bool { return e.value == nil }

// touch returns a copy of e with its access-time fields advanced to now and
// its hit count incremented. The next-to-last access time is set to the
// previous last access time, not to now: this is what lets an idle-expiry
// probe on the *current* read see how idle the element was BEFORE this
// read, instead of the read itself resetting the idle clock and masking
// staleness.
func (e Element) touch(now time.Time) Element {
	e.nextToLastAccessTime = e.lastAccessTime
	e.lastAccessTime = now
	e.hitCount++
	return e
}

// resetAccessStatistics returns a copy of e as if freshly created at now:
// creation, last-access and next-to-last-access all reset, hit count
// zeroed. Cache.Put uses this to treat an overwrite as a fresh insert.
func (e Element) resetAccessStatistics(now time.Time) Element {
	e.creationTime = now
	e.lastAccessTime = now
	e.nextToLastAccessTime = now
	e.hitCount = 0
	return e
}
