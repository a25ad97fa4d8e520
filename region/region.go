// Package region provides the single adapter between byte offsets stored on
// a regionfs filesystem and Go slices of the backing memory. Every
// cross-reference in a regionfs filesystem is a Block or an Offset, never a
// pointer; this package is the only place those are turned into []byte views,
// so that nothing computed here can outlive the region it was sliced from.
package region

import "fmt"

// BlockSize is the fixed size in bytes of a block. regionfs does not support
// variable block sizes.
const BlockSize = 1024

// Block is a block index relative to the region base. The value 0 is the
// NULL sentinel and is never a valid reference to data.
type Block uint64

// Null is the sentinel value for "no block".
const Null Block = 0

// Offset is a byte index relative to the region base.
type Offset uint64

// Region is a contiguous byte slice supplied by the host, addressed only
// through Block and Offset values. It never stores or returns a bare
// pointer that could be invalidated by a remap.
type Region struct {
	bytes []byte
}

// New wraps an existing byte slice as a Region. The slice is not copied;
// callers own its lifetime (typically a memory-mapped file or anonymous
// mapping obtained via MapFile or MapAnon).
func New(b []byte) *Region {
	return &Region{bytes: b}
}

// Len returns the size of the region in bytes.
func (r *Region) Len() int64 {
	return int64(len(r.bytes))
}

// Blocks returns the size of the region in whole blocks, truncating any
// partial trailing block.
func (r *Region) Blocks() uint64 {
	return uint64(len(r.bytes)) / BlockSize
}

// Bytes returns the entire backing slice. Used only by the mmap acquisition
// layer and tests; filesystem code should prefer At/Slice/BlockBytes.
func (r *Region) Bytes() []byte {
	return r.bytes
}

// At returns a view of the region starting at off. It panics if off is out
// of range, the same way a slice index out of range would; callers are
// expected to have validated offsets against header/inode bounds already.
func (r *Region) At(off Offset) []byte {
	if int64(off) > int64(len(r.bytes)) {
		panic(fmt.Sprintf("region: offset %d out of range (region size %d)", off, len(r.bytes)))
	}
	return r.bytes[off:]
}

// Slice returns an n-byte view of the region starting at off.
func (r *Region) Slice(off Offset, n int) []byte {
	end := int64(off) + int64(n)
	if end > int64(len(r.bytes)) {
		panic(fmt.Sprintf("region: slice [%d:%d] out of range (region size %d)", off, end, len(r.bytes)))
	}
	return r.bytes[off:end]
}

// BlockBytes returns the BlockSize-byte view of the given block. Block 0 (Null)
// may never be dereferenced: doing so is a programming error in the caller,
// since every on-region structure treats 0 as "absent".
func (r *Region) BlockBytes(b Block) []byte {
	if b == Null {
		panic("region: attempt to dereference the null block")
	}
	return r.Slice(Offset(b)*BlockSize, BlockSize)
}

// Zero overwrites an n-byte range with zero bytes.
func (r *Region) Zero(off Offset, n int) {
	clear(r.Slice(off, n))
}
