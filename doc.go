/*
Package coldcache provides an embeddable, unbounded key/value cache with a
two-tier storage hierarchy: a bounded in-memory tier that overflows to a
persistent on-disk tier.

Tiers

A Cache composes a MemoryStore, bounded by a maximum element count, and an
optional DiskStore. Puts always land in the MemoryStore first. When the
MemoryStore would exceed its capacity, its eviction hook hands the evicted
element to the DiskStore, which spools it for a background writer to
serialize into its single data file. Gets check the MemoryStore first; on a
miss, and if overflow to disk is enabled, the DiskStore is consulted, first
its spool of not-yet-committed writes, then its on-disk index. A disk hit is
re-inserted into the MemoryStore so that recency is preserved across tiers.

Expiry

Elements can be eternal, or bounded by a time-to-live since creation, a
time-to-idle since last access, or both. Expiry is checked lazily, on read,
against wall-clock time. The DiskStore of a non-eternal cache additionally
runs a background expirer that sweeps its spool and its on-disk index on its own
schedule, independent of reads.

Persistence

A persistent DiskStore keeps its index (the key-to-position mapping and the
free block list) in a sibling ".index" file next to its ".data" file. A
clean shutdown flushes and persists both. An unclean shutdown is handled by
never trusting a leftover index at startup unless it can be read back
whole: any corruption, or a mismatch in the trailing checksum, resets the
store to empty and discards the data file, rather than risk serving a
mapping that no longer matches what is on disk.

Facade

NamedMap wraps a Cache with a stricter map-like interface: a softly-held
in-memory value cache in front of the same two-tier store, and a dedicated
background writer draining an unbounded action queue so that Put and Remove
never block on the underlying Cache's own I/O.
*/
package coldcache
