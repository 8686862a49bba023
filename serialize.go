package coldcache

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/cespare/xxhash/v2"
)

// elementFormatVersion is the version byte written ahead of every encoded
// Element. Bumping it lets a future reader refuse to trust bytes written by
// an older or newer build instead of misinterpreting them.
const elementFormatVersion byte = 1

// indexFormatVersion is the version byte written ahead of every encoded
// Index. See elementFormatVersion.
const indexFormatVersion byte = 1

const (
	valueAbsent  byte = 0
	valuePresent byte = 1
)

// writeElement encodes e as: version byte, length-prefixed key, a presence
// byte and length-prefixed value, then the three clock fields and the hit
// count, all fixed-width. The format is self-contained: a reader never
// needs external context to know how many bytes to consume.
func writeElement(w io.Writer, e Element) error {
	var buf bytes.Buffer
	buf.WriteByte(elementFormatVersion)
	writeLenPrefixed(&buf, []byte(e.key))

	if e.value == nil {
		buf.WriteByte(valueAbsent)
	} else {
		buf.WriteByte(valuePresent)
		writeLenPrefixed(&buf, e.value)
	}

	writeTime(&buf, e.creationTime)
	writeTime(&buf, e.lastAccessTime)
	writeTime(&buf, e.nextToLastAccessTime)
	writeUint64(&buf, e.hitCount)

	_, err := w.Write(buf.Bytes())
	return err
}

// readElement decodes an Element written by writeElement.
func readElement(r io.Reader) (Element, error) {
	var version [1]byte
	if _, err := io.ReadFull(r, version[:]); err != nil {
		return Element{}, err
	}
	if version[0] != elementFormatVersion {
		return Element{}, fmt.Errorf("coldcache: unsupported element format version %d", version[0])
	}

	key, err := readLenPrefixed(r)
	if err != nil {
		return Element{}, err
	}

	var presence [1]byte
	if _, err := io.ReadFull(r, presence[:]); err != nil {
		return Element{}, err
	}

	var value []byte
	if presence[0] == valuePresent {
		value, err = readLenPrefixed(r)
		if err != nil {
			return Element{}, err
		}
	} else if presence[0] != valueAbsent {
		return Element{}, fmt.Errorf("coldcache: corrupt element value presence byte %d", presence[0])
	}

	creation, err := readTime(r)
	if err != nil {
		return Element{}, err
	}
	last, err := readTime(r)
	if err != nil {
		return Element{}, err
	}
	nextToLast, err := readTime(r)
	if err != nil {
		return Element{}, err
	}
	hitCount, err := readUint64(r)
	if err != nil {
		return Element{}, err
	}

	return Element{
		key:                  string(key),
		value:                value,
		creationTime:         creation,
		lastAccessTime:       last,
		nextToLastAccessTime: nextToLast,
		hitCount:             hitCount,
	}, nil
}

// encodedElement returns the bytes writeElement would produce for e, used
// by the allocator to size and fill a block in one pass.
func encodedElement(e Element) []byte {
	var buf bytes.Buffer
	// writeElement never fails against a bytes.Buffer.
	_ = writeElement(&buf, e)
	return buf.Bytes()
}

func writeLenPrefixed(buf *bytes.Buffer, p []byte) {
	var length [4]byte
	binary.LittleEndian.PutUint32(length[:], uint32(len(p)))
	buf.Write(length[:])
	buf.Write(p)
}

func readLenPrefixed(r io.Reader) ([]byte, error) {
	var length [4]byte
	if _, err := io.ReadFull(r, length[:]); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint32(length[:])
	p := make([]byte, n)
	if _, err := io.ReadFull(r, p); err != nil {
		return nil, err
	}
	return p, nil
}

func writeTime(buf *bytes.Buffer, t time.Time) {
	writeInt64(buf, t.UnixNano())
}

func readTime(r io.Reader) (time.Time, error) {
	n, err := readInt64(r)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(0, n), nil
}

func writeInt64(buf *bytes.Buffer, v int64) {
	writeUint64Buf(buf, uint64(v))
}

func readInt64(r io.Reader) (int64, error) {
	v, err := readUint64(r)
	return int64(v), err
}

func writeUint64(buf *bytes.Buffer, v uint64) {
	writeUint64Buf(buf, v)
}

func writeUint64Buf(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

func readUint64(r io.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}

// indexSnapshot is the persisted pair of structures the spec calls the
// Index: the key-to-diskElement mapping, and the free list in insertion
// order. It is the wire form of (*diskIndex).elements / .freeList.
type indexSnapshot struct {
	elements []diskElementRecord
	freeList []diskElementRecord
}

// diskElementRecord is the flat, serializable projection of a diskElement.
type diskElementRecord struct {
	key         Key
	position    int64
	blockSize   int64
	payloadSize int64
	eternal     bool
	expiryTime  time.Time
}

// encodeIndex serializes snap into the versioned, checksummed on-disk
// format: version byte, elements count and records, free-list count and
// records, then an 8-byte xxhash64 checksum trailer over everything that
// precedes it. The checksum is what lets a reader tell a truncated or
// bit-rotted index file apart from a well-formed empty one, satisfying the
// "self-describing enough to detect corruption" requirement.
func encodeIndex(snap indexSnapshot) []byte {
	var buf bytes.Buffer
	buf.WriteByte(indexFormatVersion)

	writeUint64Buf(&buf, uint64(len(snap.elements)))
	for _, rec := range snap.elements {
		writeRecord(&buf, rec)
	}

	writeUint64Buf(&buf, uint64(len(snap.freeList)))
	for _, rec := range snap.freeList {
		writeRecord(&buf, rec)
	}

	sum := xxhash.Sum64(buf.Bytes())
	var trailer [8]byte
	binary.LittleEndian.PutUint64(trailer[:], sum)
	buf.Write(trailer[:])

	return buf.Bytes()
}

// decodeIndex is the inverse of encodeIndex. Any structural problem,
// including a checksum mismatch, is reported as an error; the caller (the
// DiskStore's startup path) treats every such error identically: reset to
// an empty index and delete the data file.
func decodeIndex(data []byte) (indexSnapshot, error) {
	if len(data) < 1+8 {
		return indexSnapshot{}, fmt.Errorf("coldcache: index file too short")
	}

	body, trailer := data[:len(data)-8], data[len(data)-8:]
	want := binary.LittleEndian.Uint64(trailer)
	got := xxhash.Sum64(body)
	if want != got {
		return indexSnapshot{}, fmt.Errorf("coldcache: index checksum mismatch")
	}

	r := bytes.NewReader(body)
	var version [1]byte
	if _, err := io.ReadFull(r, version[:]); err != nil {
		return indexSnapshot{}, err
	}
	if version[0] != indexFormatVersion {
		return indexSnapshot{}, fmt.Errorf("coldcache: unsupported index format version %d", version[0])
	}

	elements, err := readRecords(r)
	if err != nil {
		return indexSnapshot{}, err
	}

	freeList, err := readRecords(r)
	if err != nil {
		return indexSnapshot{}, err
	}

	if r.Len() != 0 {
		return indexSnapshot{}, fmt.Errorf("coldcache: trailing garbage in index file")
	}

	return indexSnapshot{elements: elements, freeList: freeList}, nil
}

func writeRecord(buf *bytes.Buffer, rec diskElementRecord) {
	writeLenPrefixed(buf, []byte(rec.key))
	writeInt64(buf, rec.position)
	writeInt64(buf, rec.blockSize)
	writeInt64(buf, rec.payloadSize)
	if rec.eternal {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
	writeTime(buf, rec.expiryTime)
}

func readRecords(r *bytes.Reader) ([]diskElementRecord, error) {
	count, err := readUint64(r)
	if err != nil {
		return nil, err
	}

	records := make([]diskElementRecord, 0, count)
	for i := uint64(0); i < count; i++ {
		key, err := readLenPrefixed(r)
		if err != nil {
			return nil, err
		}
		position, err := readInt64(r)
		if err != nil {
			return nil, err
		}
		blockSize, err := readInt64(r)
		if err != nil {
			return nil, err
		}
		payloadSize, err := readInt64(r)
		if err != nil {
			return nil, err
		}
		var eternalByte [1]byte
		if _, err := io.ReadFull(r, eternalByte[:]); err != nil {
			return nil, err
		}
		expiry, err := readTime(r)
		if err != nil {
			return nil, err
		}

		records = append(records, diskElementRecord{
			key:         string(key),
			position:    position,
			blockSize:   blockSize,
			payloadSize: payloadSize,
			eternal:     eternalByte[0] == 1,
			expiryTime:  expiry,
		})
	}

	return records, nil
}
