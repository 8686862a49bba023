package coldcache

import (
	"os"
	"path/filepath"

	"github.com/rs/xid"
)

// diskIndex is the two persisted structures the spec calls the Index: the
// key-to-diskElement mapping and the free list of reusable blocks, kept
// together because they are always loaded, mutated and persisted as a
// unit.
type diskIndex struct {
	elements map[Key]*diskElement
	freeList *list
}

func newDiskIndex() *diskIndex {
	return &diskIndex{
		elements: make(map[Key]*diskElement),
		freeList: &list{},
	}
}

// snapshot flattens the index into the wire form encodeIndex expects. The
// free list is walked in its current order, first-fit-scan order, which is
// exactly the order the allocator will replay it in after a reload.
func (idx *diskIndex) snapshot() indexSnapshot {
	snap := indexSnapshot{
		elements: make([]diskElementRecord, 0, len(idx.elements)),
	}

	for _, d := range idx.elements {
		snap.elements = append(snap.elements, toRecord(d))
	}

	for n := idx.freeList.first; n != nil; n = n.next() {
		snap.freeList = append(snap.freeList, toRecord(n.(*diskElement)))
	}

	return snap
}

func toRecord(d *diskElement) diskElementRecord {
	return diskElementRecord{
		key:         d.key,
		position:    d.position,
		blockSize:   d.blockSize,
		payloadSize: d.payloadSize,
		eternal:     d.eternal,
		expiryTime:  d.expiryTime,
	}
}

func fromRecord(rec diskElementRecord) *diskElement {
	return &diskElement{
		key:         rec.key,
		position:    rec.position,
		blockSize:   rec.blockSize,
		payloadSize: rec.payloadSize,
		eternal:     rec.eternal,
		expiryTime:  rec.expiryTime,
	}
}

// loadDiskIndex rebuilds a diskIndex from a decoded snapshot, relinking the
// free list entries into the shared intrusive list in their persisted
// order.
func loadDiskIndex(snap indexSnapshot) *diskIndex {
	idx := newDiskIndex()

	for _, rec := range snap.elements {
		idx.elements[rec.key] = fromRecord(rec)
	}

	for _, rec := range snap.freeList {
		idx.freeList.append(fromRecord(rec))
	}

	return idx
}

// indexPath and dataPath compute the two file names a DiskStore owns for a
// given cache name, per spec.md §4.1.
func indexPath(dir, name string) string { return filepath.Join(dir, name+".index") }
func dataPath(dir, name string) string  { return filepath.Join(dir, name+".data") }

// readIndexFile loads and validates the index file at path. Any failure
// to read or decode it, including a checksum mismatch, is reported so the
// caller can fall back to an empty index and discard the data file: a
// dirty restart is always treated as an empty cache.
func readIndexFile(path string) (*diskIndex, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	snap, err := decodeIndex(data)
	if err != nil {
		return nil, err
	}

	return loadDiskIndex(snap), nil
}

// writeIndexFile persists idx to path atomically: it is encoded into a
// sibling temp file carrying an xid suffix so concurrent or repeated
// rewrites never collide, then renamed into place. A crash between the
// temp write and the rename leaves the previous index file (or none)
// intact instead of a half-written one that a naive in-place write could
// produce.
func writeIndexFile(path string, idx *diskIndex) error {
	tmp := path + "." + xid.New().String() + ".tmp"

	data := encodeIndex(idx.snapshot())
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		os.Remove(tmp)
		return err
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}

	return nil
}

// createEmptyIndexFile recreates an empty index file at path. Called
// unconditionally at startup, whether or not the previous index could be
// read, so that a crash after this point but before shutdown leaves an
// empty index behind for the next startup to find, and the data file it
// describes (empty) is always safe to discard.
func createEmptyIndexFile(path string) error {
	return writeIndexFile(path, newDiskIndex())
}
