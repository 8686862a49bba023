package coldcache

import (
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
)

const maxNamedMapNameLength = 200

// validateNamedMapName enforces spec.md §6's facade name rule: up to 200
// characters, with every non-alphanumeric character replaced by an
// underscore to produce the name actually used as the file prefix.
func validateNamedMapName(name string) (string, error) {
	if name == "" || utf8.RuneCountInString(name) > maxNamedMapNameLength {
		return "", ErrInvalidName
	}

	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String(), nil
}

type namedMapActionType int

const (
	namedMapPut namedMapActionType = iota
	namedMapRemove
)

type namedMapAction struct {
	typ   namedMapActionType
	key   Key
	value Value
}

// NamedMap wraps a Cache with a stricter map-like interface: a
// softly-held in-memory value cache in front of the same two-tier store,
// a strongly-held key set, and a dedicated background writer draining an
// unbounded FIFO action queue so Put and Remove never block on the
// underlying Cache's own I/O.
type NamedMap struct {
	name  string
	cache *Cache

	values *softMap

	keysMu sync.Mutex
	keys   map[Key]struct{}

	queueMu   sync.Mutex
	queueCond *sync.Cond
	queue     []namedMapAction
	closed    bool

	workerDone chan struct{}
	log        *logrus.Entry
}

// NewNamedMap validates name and builds a facade over cache. softCapacity
// bounds how many values the facade keeps warm in memory beyond what the
// underlying Cache's own MemoryStore already holds; the Cache remains the
// sole source of truth.
func NewNamedMap(name string, cache *Cache, softCapacity int) (*NamedMap, error) {
	validated, err := validateNamedMapName(name)
	if err != nil {
		return nil, err
	}

	nm := &NamedMap{
		name:       validated,
		cache:      cache,
		values:     newSoftMap(softCapacity),
		keys:       make(map[Key]struct{}),
		workerDone: make(chan struct{}),
		log:        namedMapLog(validated),
	}
	nm.queueCond = sync.NewCond(&nm.queueMu)

	go nm.runWriter()
	return nm, nil
}

// Name returns the facade's validated name.
func (nm *NamedMap) Name() string { return nm.name }

// Put records value under key in the value map and the key set
// immediately, then enqueues a PUT action for the background writer to
// apply to the underlying Cache.
func (nm *NamedMap) Put(key Key, value Value) {
	nm.keysMu.Lock()
	nm.keys[key] = struct{}{}
	nm.keysMu.Unlock()

	nm.values.Put(key, value)
	nm.enqueue(namedMapAction{typ: namedMapPut, key: key, value: value})
}

// Get returns the value for key. It first probes the soft value map; on a
// miss it falls through to the underlying Cache, which may load from
// disk, and warms the value map on a hit.
func (nm *NamedMap) Get(key Key) (Value, bool, error) {
	if v, ok := nm.values.Get(key); ok {
		return v, true, nil
	}

	e, ok, err := nm.cache.Get(key)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}

	nm.values.Put(key, e.Value())
	return e.Value(), true, nil
}

// HasKey reports whether key is in the key set. It never consults the
// Cache and so never touches disk.
func (nm *NamedMap) HasKey(key Key) bool {
	nm.keysMu.Lock()
	defer nm.keysMu.Unlock()
	_, ok := nm.keys[key]
	return ok
}

// Remove drops key from the key set and the value map immediately, then
// enqueues a REMOVE action for the background writer.
func (nm *NamedMap) Remove(key Key) {
	nm.keysMu.Lock()
	delete(nm.keys, key)
	nm.keysMu.Unlock()

	nm.values.Remove(key)
	nm.enqueue(namedMapAction{typ: namedMapRemove, key: key})
}

// Keys returns every key currently in the key set.
func (nm *NamedMap) Keys() []Key {
	nm.keysMu.Lock()
	defer nm.keysMu.Unlock()

	keys := make([]Key, 0, len(nm.keys))
	for k := range nm.keys {
		keys = append(keys, k)
	}
	return keys
}

func (nm *NamedMap) enqueue(a namedMapAction) {
	nm.queueMu.Lock()
	nm.queue = append(nm.queue, a)
	nm.queueCond.Signal()
	nm.queueMu.Unlock()
}

// runWriter drains the action queue in FIFO order, applying each action to
// the underlying Cache. It keeps draining after Shutdown is called until
// the queue is empty, then exits.
func (nm *NamedMap) runWriter() {
	defer close(nm.workerDone)

	for {
		nm.queueMu.Lock()
		for len(nm.queue) == 0 && !nm.closed {
			nm.queueCond.Wait()
		}
		if len(nm.queue) == 0 {
			nm.queueMu.Unlock()
			return
		}

		a := nm.queue[0]
		nm.queue = nm.queue[1:]
		nm.queueMu.Unlock()

		nm.apply(a)
	}
}

func (nm *NamedMap) apply(a namedMapAction) {
	switch a.typ {
	case namedMapPut:
		e := NewElement(a.key, a.value)
		if err := nm.cache.Put(&e); err != nil {
			nm.log.WithError(err).WithField("key", a.key).Error("failed to apply queued put")
		}
	case namedMapRemove:
		if _, err := nm.cache.Remove(a.key); err != nil {
			nm.log.WithError(err).WithField("key", a.key).Error("failed to apply queued remove")
		}
	}
}

// Shutdown signals the background writer to stop once it has drained the
// action queue, waits for it to exit, then disposes the underlying Cache.
// Calling Shutdown twice is safe: the second call finds the worker already
// exited and Cache.Dispose already a no-op.
func (nm *NamedMap) Shutdown() error {
	nm.queueMu.Lock()
	nm.closed = true
	nm.queueCond.Broadcast()
	nm.queueMu.Unlock()

	<-nm.workerDone

	return nm.cache.Dispose()
}
