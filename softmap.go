package coldcache

import "sync"

// softNode links a cached value into the softMap's recency list.
type softNode struct {
	key   Key
	value Value

	prevNode, nextNode node
}

func (n *softNode) prev() node     { return n.prevNode }
func (n *softNode) next() node     { return n.nextNode }
func (n *softNode) setPrev(p node) { n.prevNode = p }
func (n *softNode) setNext(p node) { n.nextNode = p }

// softMap is a bounded, count-limited LRU value cache standing in for the
// source's soft references (spec.md §9): a runtime without a tracing
// collector cannot let the GC reclaim individual map values under memory
// pressure, so entries are instead evicted deterministically once the
// value count exceeds capacity. The NamedMap facade's key set is kept
// separately and is always authoritative; softMap only ever holds a cache
// of values that can be silently dropped and re-fetched from the Cache
// underneath.
type softMap struct {
	mu       sync.Mutex
	capacity int
	lookup   map[Key]*softNode
	order    *list
}

// newSoftMap creates a softMap holding at most capacity values. A
// non-positive capacity disables the value cache entirely: every Get
// misses and every Put is evicted immediately, which is a valid, if
// wasteful, configuration.
func newSoftMap(capacity int) *softMap {
	return &softMap{
		capacity: capacity,
		lookup:   make(map[Key]*softNode),
		order:    &list{},
	}
}

// Get returns the cached value for key, promoting it to
// most-recently-used.
func (s *softMap) Get(key Key) (Value, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.lookup[key]
	if !ok {
		return nil, false
	}
	s.order.move(n, nil)
	return n.value, true
}

// Put caches value under key, evicting the least-recently-used entry if
// the capacity would otherwise be exceeded.
func (s *softMap) Put(key Key, value Value) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n, ok := s.lookup[key]; ok {
		n.value = value
		s.order.move(n, nil)
	} else {
		n := &softNode{key: key, value: value}
		s.lookup[key] = n
		s.order.append(n)
	}

	for len(s.lookup) > s.capacity {
		first := s.order.first
		if first == nil {
			break
		}
		n := first.(*softNode)
		s.order.remove(n)
		delete(s.lookup, n.key)
	}
}

// Remove drops key from the value cache, if present.
func (s *softMap) Remove(key Key) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n, ok := s.lookup[key]; ok {
		s.order.remove(n)
		delete(s.lookup, key)
	}
}

// Clear empties the value cache.
func (s *softMap) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lookup = make(map[Key]*softNode)
	s.order = &list{}
}
