package coldcache

import (
	"bytes"
	"math"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DiskStoreConfig configures a single DiskStore instance. It is the
// per-cache slice of the Configuration record described in spec.md §6.
type DiskStoreConfig struct {
	// Name is the file prefix; the store owns "{Name}.data" and
	// "{Name}.index" inside Dir.
	Name string
	Dir  string

	// Persistent controls whether the store keeps its files across a
	// clean shutdown, or deletes its data file on Dispose.
	Persistent bool

	// Eternal disables all time-based expiry for elements this store
	// commits.
	Eternal bool
	TTL     time.Duration
	TTI     time.Duration

	// ExpiryInterval is how often the background expirer sweeps the
	// spool and the on-disk index. Ignored when Eternal is true.
	ExpiryInterval time.Duration

	// IsExpired is the Cache-level expiry predicate (spec.md §4.3),
	// supplied by the owning Cache so the spool sweep in the expirer
	// applies the exact same rule reads do.
	IsExpired func(Element, time.Time) bool
}

// DiskStore is a single-file, block-allocated, random-access store with a
// persisted index, a background spool writer and a background expirer.
// Every public method takes the store's single exclusive lock for its
// entire duration, including the background spool flush: this serializes
// all disk access at the cost of blocking reads during a flush, a
// documented trade-off carried over unchanged from the source design
// (spec.md §9).
type DiskStore struct {
	mu   sync.Mutex
	cond *sync.Cond

	cfg  DiskStoreConfig
	file *os.File

	idx        *diskIndex
	spool      map[Key]Element
	totalSize  int64
	fileLength int64

	active      bool
	expirerStop chan struct{}
	expirerDone chan struct{}
	spoolDone   chan struct{}

	log *logrus.Entry
}

// OpenDiskStore opens or creates the on-disk files for cfg and starts its
// background workers. See spec.md §4.1's persistence protocol for the
// startup sequence this follows.
func OpenDiskStore(cfg DiskStoreConfig) (*DiskStore, error) {
	if cfg.IsExpired == nil {
		cfg.IsExpired = func(Element, time.Time) bool { return false }
	}

	ds := &DiskStore{
		cfg:         cfg,
		spool:       make(map[Key]Element),
		expirerStop: make(chan struct{}),
		expirerDone: make(chan struct{}),
		spoolDone:   make(chan struct{}),
		log:         diskStoreLog(cfg.Name),
	}
	ds.cond = sync.NewCond(&ds.mu)

	dp := dataPath(cfg.Dir, cfg.Name)
	ip := indexPath(cfg.Dir, cfg.Name)

	if cfg.Persistent {
		idx, err := readIndexFile(ip)
		if err != nil {
			// Missing, corrupt, or otherwise untrustworthy: a dirty
			// restart is always treated as an empty cache.
			ds.log.WithError(err).Info("index unreadable, starting empty and discarding data file")
			idx = newDiskIndex()
			os.Remove(dp)
		}
		ds.idx = idx
	} else {
		ds.idx = newDiskIndex()
		os.Remove(dp)
	}

	// Whether or not the previous index loaded, an empty index is
	// written back out immediately. If the process crashes after this
	// point but before Dispose, the next startup finds an empty index
	// and safely discards whatever the data file contains.
	if cfg.Persistent {
		if err := createEmptyIndexFile(ip); err != nil {
			return nil, wrapIoFailure("create empty index file", err)
		}
	}

	for _, d := range ds.idx.elements {
		ds.totalSize += d.payloadSize
		if end := d.position + d.blockSize; end > ds.fileLength {
			ds.fileLength = end
		}
	}
	for n := ds.idx.freeList.first; n != nil; n = n.next() {
		d := n.(*diskElement)
		if end := d.position + d.blockSize; end > ds.fileLength {
			ds.fileLength = end
		}
	}

	f, err := os.OpenFile(dp, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, wrapIoFailure("open data file", err)
	}
	ds.file = f
	ds.active = true

	go ds.runSpool()
	if !cfg.Eternal {
		go ds.runExpirer()
	} else {
		close(ds.expirerDone)
	}

	return ds, nil
}

// Put enqueues e into the spool and wakes the spool worker. It does not
// block on the write itself: a put followed immediately by a get for the
// same key is satisfied from the spool (spec.md §5's ordering guarantee).
func (ds *DiskStore) Put(e Element) error {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	if !ds.active {
		return ErrNotAlive
	}

	ds.spool[e.key] = e
	ds.cond.Signal()
	return nil
}

// Get looks up key, first in the spool, then in the on-disk index. A spool
// hit is removed from the spool and returned directly: the caller (the
// Cache, promoting it back into the MemoryStore) becomes its new home. An
// expired disk hit is removed from the index and reported as a miss.
func (ds *DiskStore) Get(key Key) (Element, bool) {
	return ds.get(key, true)
}

// GetQuiet is like Get but does not update the element's access
// statistics, used by expiry probes and size queries that must not
// perturb recency. Unlike Get, it leaves a spool hit in the spool.
func (ds *DiskStore) GetQuiet(key Key) (Element, bool) {
	return ds.get(key, false)
}

func (ds *DiskStore) get(key Key, touch bool) (Element, bool) {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	if !ds.active {
		return Element{}, false
	}

	if e, ok := ds.spool[key]; ok {
		if touch {
			delete(ds.spool, key)
			e = e.touch(time.Now())
		}
		return e, true
	}

	de, ok := ds.idx.elements[key]
	if !ok {
		return Element{}, false
	}

	now := time.Now()
	if de.expired(now) {
		ds.removeElementLocked(key)
		return Element{}, false
	}

	e, err := ds.readAt(de)
	if err != nil {
		ds.log.WithError(wrapIoFailure("read", err)).WithField("key", key).Error("failed to read element")
		return Element{}, false
	}

	if touch {
		e = e.touch(now)
	}
	return e, true
}

func (ds *DiskStore) readAt(de *diskElement) (Element, error) {
	buf := make([]byte, de.payloadSize)
	if _, err := ds.file.ReadAt(buf, de.position); err != nil {
		return Element{}, err
	}

	e, err := readElement(bytes.NewReader(buf))
	if err != nil {
		return Element{}, wrapSerialization("decode element", err)
	}
	return e, nil
}

// Remove deletes key from the spool and the on-disk index. It reports
// true if either tier held it.
func (ds *DiskStore) Remove(key Key) bool {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	if !ds.active {
		return false
	}

	_, inSpool := ds.spool[key]
	delete(ds.spool, key)

	_, inIndex := ds.idx.elements[key]
	if inIndex {
		ds.removeElementLocked(key)
	}

	return inSpool || inIndex
}

// removeElementLocked removes key's diskElement from the index and returns
// its block to the free list. Callers must hold ds.mu.
func (ds *DiskStore) removeElementLocked(key Key) {
	de, ok := ds.idx.elements[key]
	if !ok {
		return
	}

	delete(ds.idx.elements, key)
	ds.totalSize -= de.payloadSize

	de.payloadSize = 0
	de.prevNode, de.nextNode = nil, nil
	ds.idx.freeList.append(de)
}

// RemoveAll clears the spool and the on-disk index. Freed blocks are
// returned to the free list rather than the file being truncated, so
// subsequent writes can still reuse the space.
func (ds *DiskStore) RemoveAll() {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	if !ds.active {
		return
	}

	ds.spool = make(map[Key]Element)

	for _, de := range ds.idx.elements {
		de.payloadSize = 0
		de.prevNode, de.nextNode = nil, nil
		ds.idx.freeList.append(de)
	}
	ds.idx.elements = make(map[Key]*diskElement)
	ds.totalSize = 0
}

// Keys returns the union of spooled and indexed keys, deduplicated.
func (ds *DiskStore) Keys() []Key {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	seen := make(map[Key]struct{}, len(ds.spool)+len(ds.idx.elements))
	keys := make([]Key, 0, len(ds.spool)+len(ds.idx.elements))
	for k := range ds.spool {
		if _, ok := seen[k]; !ok {
			seen[k] = struct{}{}
			keys = append(keys, k)
		}
	}
	for k := range ds.idx.elements {
		if _, ok := seen[k]; !ok {
			seen[k] = struct{}{}
			keys = append(keys, k)
		}
	}
	return keys
}

// Size returns the number of unique keys the store currently holds.
func (ds *DiskStore) Size() int {
	return len(ds.Keys())
}

// Sparseness reports the fraction of the data file that is not live
// payload: allocated block space minus currently valid bytes, divided by
// the file length. It is the "sparseness metric" spec.md §4.1 calls for as
// the visible symptom of the allocator's internal fragmentation leak.
func (ds *DiskStore) Sparseness() float64 {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	if ds.fileLength == 0 {
		return 0
	}
	return 1 - float64(ds.totalSize)/float64(ds.fileLength)
}

// allocate finds space for a payload of length L: first-fit reuse from the
// free list, or a fresh append to the end of the file. Callers must hold
// ds.mu. The returned diskElement's key and payloadSize are not yet set.
func (ds *DiskStore) allocate(l int64) *diskElement {
	for n := ds.idx.freeList.first; n != nil; n = n.next() {
		d := n.(*diskElement)
		if d.blockSize >= l {
			ds.idx.freeList.remove(d)
			d.prevNode, d.nextNode = nil, nil
			return d
		}
	}

	d := &diskElement{position: ds.fileLength, blockSize: l}
	ds.fileLength += l
	return d
}

// commit writes e's serialized bytes into an allocated block and installs
// its diskElement into the index, returning any element it replaced to the
// free list. Callers must hold ds.mu.
func (ds *DiskStore) commit(e Element) error {
	payload := encodedElement(e)
	l := int64(len(payload))

	de := ds.allocate(l)
	if _, err := ds.file.WriteAt(payload, de.position); err != nil {
		// The allocated block is now orphaned; it is simplest and
		// safest to let it leak as unreachable space rather than
		// return it to the free list in an inconsistent state.
		return wrapIoFailure("write element", err)
	}

	de.key = e.key
	de.payloadSize = l
	de.eternal = ds.cfg.Eternal
	if !ds.cfg.Eternal {
		de.expiryTime = expiryTimeFor(e, ds.cfg.TTL, ds.cfg.TTI)
	}

	ds.totalSize += l

	if old, ok := ds.idx.elements[e.key]; ok {
		delete(ds.idx.elements, e.key)
		ds.totalSize -= old.payloadSize
		old.payloadSize = 0
		old.prevNode, old.nextNode = nil, nil
		ds.idx.freeList.append(old)
	}

	ds.idx.elements[e.key] = de
	return nil
}

// farFuture stands in for +∞ as the expiry time of an element whose TTL
// and TTI are both zero. It is the latest instant whose UnixNano fits in
// an int64, so it survives the index file's nanosecond encoding unchanged.
var farFuture = time.Unix(0, math.MaxInt64)

// expiryTimeFor computes the absolute disk-index expiry time for e:
// max(creation+ttl, lastAccess+tti), with a zero duration for either bound
// read as "disabled" (left out of the max) rather than "expire
// immediately". With both bounds disabled the element never expires.
func expiryTimeFor(e Element, ttl, tti time.Duration) time.Time {
	switch {
	case ttl > 0 && tti > 0:
		ttlAt, ttiAt := e.creationTime.Add(ttl), e.lastAccessTime.Add(tti)
		if ttlAt.After(ttiAt) {
			return ttlAt
		}
		return ttiAt
	case ttl > 0:
		return e.creationTime.Add(ttl)
	case tti > 0:
		return e.lastAccessTime.Add(tti)
	default:
		return farFuture
	}
}

// runSpool is the background spool worker: it waits for the spool to be
// non-empty while the store is active, then flushes it, holding the store
// lock for the entire flush.
func (ds *DiskStore) runSpool() {
	defer close(ds.spoolDone)

	ds.mu.Lock()
	defer ds.mu.Unlock()

	for {
		for ds.active && len(ds.spool) == 0 {
			ds.cond.Wait()
		}
		if !ds.active {
			return
		}
		ds.flushSpoolLocked()
	}
}

// flushSpoolLocked commits every spooled element and clears the spool
// unconditionally, whether or not every commit succeeded: a failed write
// is logged and its element is dropped, matching the preserved behavior
// noted in spec.md §9 (data loss is possible on I/O error).
func (ds *DiskStore) flushSpoolLocked() {
	for key, e := range ds.spool {
		if err := ds.commit(e); err != nil {
			ds.log.WithError(err).WithField("key", key).Error("spool flush dropped element")
		}
	}
	ds.spool = make(map[Key]Element)
}

// runExpirer is the background expiry worker. It sleeps ExpiryInterval,
// then sweeps the spool and the on-disk index under the store lock.
func (ds *DiskStore) runExpirer() {
	defer close(ds.expirerDone)

	interval := ds.cfg.ExpiryInterval
	if interval <= 0 {
		interval = 120 * time.Second
	}

	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ds.expirerStop:
			return
		case <-t.C:
			ds.expireOnce()
		}
	}
}

func (ds *DiskStore) expireOnce() {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	if !ds.active {
		return
	}

	now := time.Now()

	for key, e := range ds.spool {
		if ds.cfg.IsExpired(e, now) {
			delete(ds.spool, key)
		}
	}

	for key, de := range ds.idx.elements {
		if de.expired(now) {
			delete(ds.idx.elements, key)
			ds.totalSize -= de.payloadSize
			de.payloadSize = 0
			de.prevNode, de.nextNode = nil, nil
			ds.idx.freeList.append(de)
		}
	}
}

// Dispose shuts the store down. A persistent store flushes its spool one
// more time and persists its index; a non-persistent store discards its
// data file. Dispose is best-effort: I/O failures are logged, not
// returned, so the state transition always completes.
func (ds *DiskStore) Dispose() {
	ds.mu.Lock()
	if !ds.active {
		ds.mu.Unlock()
		return
	}
	ds.active = false
	ds.cond.Broadcast()
	ds.mu.Unlock()

	close(ds.expirerStop)
	<-ds.expirerDone
	<-ds.spoolDone

	ds.mu.Lock()
	defer ds.mu.Unlock()

	dp := dataPath(ds.cfg.Dir, ds.cfg.Name)

	if ds.cfg.Persistent {
		ds.flushSpoolLocked()
		if err := writeIndexFile(indexPath(ds.cfg.Dir, ds.cfg.Name), ds.idx); err != nil {
			ds.log.WithError(err).Error("failed to persist index on dispose")
		}
	}

	if ds.file != nil {
		if err := ds.file.Close(); err != nil {
			ds.log.WithError(err).Error("failed to close data file")
		}
	}

	if !ds.cfg.Persistent {
		os.Remove(dp)
	}
}
