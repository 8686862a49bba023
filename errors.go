package coldcache

import (
	"errors"

	"golang.org/x/xerrors"
)

// Sentinel errors returned by cache, store and manager operations. Callers
// should compare with errors.Is rather than pointer equality on the wrapped
// forms returned by disk and index operations.
var (
	// ErrNotAlive is returned by any user-facing operation on a Cache that
	// is not in the ALIVE state, and by DiskStore.Put on a disposed store.
	ErrNotAlive = errors.New("coldcache: not alive")

	// ErrAlreadyExists is returned when adding a cache under a name already
	// present in the CacheManager. NewNamedMap does not check its name
	// against the registry and never returns it.
	ErrAlreadyExists = errors.New("coldcache: already exists")

	// ErrInvalidName is returned by the NamedMap facade when a name is
	// empty or exceeds the 200 character limit.
	ErrInvalidName = errors.New("coldcache: invalid name")

	// ErrNilElement is returned by Cache.Put and Cache.PutQuiet when
	// called with a nil element.
	ErrNilElement = errors.New("coldcache: nil element")

	// ErrConfigurationMissing is returned when no default cache
	// configuration is available where one is required.
	ErrConfigurationMissing = errors.New("coldcache: no default cache configured")
)

// wrapIoFailure wraps an underlying file I/O error so callers can still
// errors.Is/As through it while the log line carries the operation that
// failed.
func wrapIoFailure(op string, err error) error {
	if err == nil {
		return nil
	}
	return xerrors.Errorf("coldcache: io failure during %s: %w", op, err)
}

// wrapSerialization wraps an encode/decode failure for an Element or an
// Index. Per the propagation policy, serialization failures are logged and
// treated as a miss on read, or logged and dropped on write; they are never
// surfaced as a distinct error type to foreground callers.
func wrapSerialization(op string, err error) error {
	if err == nil {
		return nil
	}
	return xerrors.Errorf("coldcache: serialization failure during %s: %w", op, err)
}
