package memfs

import (
	"encoding/binary"
	"time"

	"github.com/flatregion/regionfs/region"
)

// On-region layout. Every structure below is a fixed-width binary record
// addressed only by region.Block/region.Offset; none of it is ever turned
// into a native Go pointer that would survive a remap.

const (
	// inodeSize is the on-region size of a single inode record.
	inodeSize = 96

	// direntrySize is the on-region size of a single directory entry.
	direntrySize = 256

	// nameLen is the maximum length of a path component, including the
	// trailing zero byte that terminates it.
	nameLen = direntrySize - 8

	// indirectHeaderSize is the size of the "next" field at the head of
	// an indirect block, before its array of block pointers.
	indirectHeaderSize = 8

	// directNodeBlocks is the number of data blocks addressed directly
	// from an inode before an indirect block is needed.
	directNodeBlocks = 5

	// blocksFile is the init-time sizing constant relating node-table size
	// to total region size; it is deliberately distinct from
	// directNodeBlocks even though both equal small integers in this
	// layout, since the two are sized for unrelated reasons.
	blocksFile = 4

	// indirectBlockFanout is the number of data block pointers held in a
	// single indirect block.
	indirectBlockFanout = (region.BlockSize - indirectHeaderSize) / 8

	// nodesPerBlock is the number of inode records counted per block
	// when sizing the node table. Records are packed back to back from
	// nodeTableOffset, so a record can straddle a block boundary.
	nodesPerBlock = region.BlockSize / inodeSize

	// directEntriesPerBlock is the number of directory entries packed
	// into one directory data block.
	directEntriesPerBlock = region.BlockSize / direntrySize

	// headerSize is the size of the filesystem header at block 0.
	headerSize = 40

	// freeRegionSize is the size of the free-list node stored at the
	// front of every free block run.
	freeRegionSize = 16
)

// nodeID identifies a slot in the inode table. noNode marks "no file".
type nodeID int64

const noNode nodeID = -1

// modeRegular and modeDirectory are the only two inode kinds regionfs
// supports; there are no symlinks, devices, or sockets in this filesystem.
const (
	modeRegular   uint32 = 0o100000 | 0o755
	modeDirectory uint32 = 0o040000 | 0o755
)

// header is the filesystem superblock. It lives at byte 0 of the region;
// the region needs formatting unless its totalBlocks equals the region's
// size in blocks.
type header struct {
	totalBlocks     uint64
	freeBlocks      uint64
	freeListHead    region.Block
	nodeTableBlocks uint64
	nodeTableOffset region.Offset
}

func readHeader(r *region.Region) header {
	b := r.Slice(0, headerSize)
	return header{
		totalBlocks:     binary.LittleEndian.Uint64(b[0:8]),
		freeBlocks:      binary.LittleEndian.Uint64(b[8:16]),
		freeListHead:    region.Block(binary.LittleEndian.Uint64(b[16:24])),
		nodeTableBlocks: binary.LittleEndian.Uint64(b[24:32]),
		nodeTableOffset: region.Offset(binary.LittleEndian.Uint64(b[32:40])),
	}
}

func writeHeader(r *region.Region, h header) {
	b := r.Slice(0, headerSize)
	binary.LittleEndian.PutUint64(b[0:8], h.totalBlocks)
	binary.LittleEndian.PutUint64(b[8:16], h.freeBlocks)
	binary.LittleEndian.PutUint64(b[16:24], uint64(h.freeListHead))
	binary.LittleEndian.PutUint64(b[24:32], h.nodeTableBlocks)
	binary.LittleEndian.PutUint64(b[32:40], uint64(h.nodeTableOffset))
}

// inode holds a file or directory's metadata plus the location of its data:
// up to directNodeBlocks blocks directly, then a chain of indirect blocks.
type inode struct {
	mode      uint32
	nlinks    uint32
	size      uint64
	nblocks   uint64
	atime     time.Time
	mtime     time.Time
	ctime     time.Time
	blocks    [directNodeBlocks]region.Block
	blockList region.Block
}

func (in inode) isDir() bool  { return in.mode&0o170000 == modeDirectory&0o170000 }
func (in inode) linked() bool { return in.nlinks > 0 }

func nodeOffset(h header, n nodeID) region.Offset {
	return h.nodeTableOffset + region.Offset(n)*inodeSize
}

func readInode(r *region.Region, h header, n nodeID) inode {
	b := r.Slice(nodeOffset(h, n), inodeSize)
	var in inode
	in.mode = binary.LittleEndian.Uint32(b[0:4])
	in.nlinks = binary.LittleEndian.Uint32(b[4:8])
	in.size = binary.LittleEndian.Uint64(b[8:16])
	in.nblocks = binary.LittleEndian.Uint64(b[16:24])
	in.atime = time.Unix(0, int64(binary.LittleEndian.Uint64(b[24:32])))
	in.mtime = time.Unix(0, int64(binary.LittleEndian.Uint64(b[32:40])))
	in.ctime = time.Unix(0, int64(binary.LittleEndian.Uint64(b[40:48])))
	for i := 0; i < directNodeBlocks; i++ {
		off := 48 + i*8
		in.blocks[i] = region.Block(binary.LittleEndian.Uint64(b[off : off+8]))
	}
	in.blockList = region.Block(binary.LittleEndian.Uint64(b[48+directNodeBlocks*8 : 48+directNodeBlocks*8+8]))
	return in
}

func writeInode(r *region.Region, h header, n nodeID, in inode) {
	b := r.Slice(nodeOffset(h, n), inodeSize)
	binary.LittleEndian.PutUint32(b[0:4], in.mode)
	binary.LittleEndian.PutUint32(b[4:8], in.nlinks)
	binary.LittleEndian.PutUint64(b[8:16], in.size)
	binary.LittleEndian.PutUint64(b[16:24], in.nblocks)
	binary.LittleEndian.PutUint64(b[24:32], uint64(in.atime.UnixNano()))
	binary.LittleEndian.PutUint64(b[32:40], uint64(in.mtime.UnixNano()))
	binary.LittleEndian.PutUint64(b[40:48], uint64(in.ctime.UnixNano()))
	for i := 0; i < directNodeBlocks; i++ {
		off := 48 + i*8
		binary.LittleEndian.PutUint64(b[off:off+8], uint64(in.blocks[i]))
	}
	binary.LittleEndian.PutUint64(b[48+directNodeBlocks*8:48+directNodeBlocks*8+8], uint64(in.blockList))
}

// indirectBlock chains data block pointers past the directNodeBlocks held
// directly in an inode.
type indirectBlock struct {
	next   region.Block
	blocks [indirectBlockFanout]region.Block
}

func readIndirect(r *region.Region, blk region.Block) indirectBlock {
	b := r.BlockBytes(blk)
	var ib indirectBlock
	ib.next = region.Block(binary.LittleEndian.Uint64(b[0:8]))
	for i := 0; i < indirectBlockFanout; i++ {
		off := indirectHeaderSize + i*8
		ib.blocks[i] = region.Block(binary.LittleEndian.Uint64(b[off : off+8]))
	}
	return ib
}

func writeIndirect(r *region.Region, blk region.Block, ib indirectBlock) {
	b := r.BlockBytes(blk)
	binary.LittleEndian.PutUint64(b[0:8], uint64(ib.next))
	for i := 0; i < indirectBlockFanout; i++ {
		off := indirectHeaderSize + i*8
		binary.LittleEndian.PutUint64(b[off:off+8], uint64(ib.blocks[i]))
	}
}

// direntry is one slot in a directory's data blocks. An entry with node ==
// noNode is either unused or (only at the very end of the directory's
// entries) the sentinel past the last live entry.
type direntry struct {
	node nodeID
	name string
}

func direntryOffset(dirBlock region.Block, slot int) region.Offset {
	return region.Offset(dirBlock)*region.BlockSize + region.Offset(slot)*direntrySize
}

func readDirentry(r *region.Region, dirBlock region.Block, slot int) direntry {
	b := r.Slice(direntryOffset(dirBlock, slot), direntrySize)
	node := nodeID(int64(binary.LittleEndian.Uint64(b[0:8])))
	name := cString(b[8:])
	return direntry{node: node, name: name}
}

func writeDirentry(r *region.Region, dirBlock region.Block, slot int, e direntry) {
	b := r.Slice(direntryOffset(dirBlock, slot), direntrySize)
	binary.LittleEndian.PutUint64(b[0:8], uint64(e.node))
	clear(b[8:])
	setCString(b[8:], e.name)
}

// freeRegion is the free-list node written at the front of every run of
// free blocks the allocator knows about.
type freeRegion struct {
	size uint64 // blocks in this run
	next region.Block
}

func readFreeRegion(r *region.Region, blk region.Block) freeRegion {
	b := r.BlockBytes(blk)
	return freeRegion{
		size: binary.LittleEndian.Uint64(b[0:8]),
		next: region.Block(binary.LittleEndian.Uint64(b[8:16])),
	}
}

func writeFreeRegion(r *region.Region, blk region.Block, fr freeRegion) {
	b := r.BlockBytes(blk)
	binary.LittleEndian.PutUint64(b[0:8], fr.size)
	binary.LittleEndian.PutUint64(b[8:16], uint64(fr.next))
}

// cString reads a NUL-terminated (or length-exhausted) name out of b.
func cString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

// setCString copies name into b, truncating at len(b)-1 so a trailing NUL
// always fits. regionfs silently truncates overlong names rather than
// rejecting them, matching the behavior of the filesystem this one is
// modeled on.
func setCString(b []byte, name string) {
	n := len(name)
	if n > len(b)-1 {
		n = len(b) - 1
	}
	copy(b, name[:n])
	b[n] = 0
}
