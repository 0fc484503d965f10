package nodaldb

// VolatilePagePointer identifies an in-memory page owned by the buffer
// pool. Only the NUMA node and pool offset carry identity; any other
// bits are free for tagging by the buffer pool and are ignored here.
type VolatilePagePointer struct {
	NumaNode   uint8
	PoolOffset uint64
}

// Word packs the pointer into the 64-bit form stored in PageHeader.PageId.
// The NUMA node occupies the top byte; the remaining 56 bits hold the
// pool offset (more than enough for any buffer pool this engine will
// ever address).
func (p VolatilePagePointer) Word() uint64 {
	return uint64(p.NumaNode)<<56 | (p.PoolOffset & 0x00FFFFFFFFFFFFFF)
}

// VolatilePagePointerFromWord unpacks a 64-bit word back into its
// (NumaNode, PoolOffset) parts.
func VolatilePagePointerFromWord(word uint64) VolatilePagePointer {
	return VolatilePagePointer{
		NumaNode:   uint8(word >> 56),
		PoolOffset: word & 0x00FFFFFFFFFFFFFF,
	}
}

// SnapshotPagePointer is an opaque 64-bit disk-page id for an immutable,
// on-disk snapshot page.
type SnapshotPagePointer uint64

// IsNull reports whether this points at no page at all -- the sentinel
// value used before a storage has ever been snapshotted.
func (p SnapshotPagePointer) IsNull() bool { return p == 0 }
