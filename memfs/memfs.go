// Package memfs implements a complete filesystem inside a single
// memory-mapped byte region: a fixed-size inode table, a direct/indirect
// block map per file, a sorted coalescing free-list allocator, and a
// packed directory-entry format, all addressed by region.Block/region.Offset
// rather than native pointers so the region can be remapped to a new
// virtual address without invalidating anything stored on it.
package memfs

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/flatregion/regionfs/region"
	"github.com/flatregion/regionfs/util/timestamp"
)

const rootNode nodeID = 0

// FileSystem is a mounted regionfs filesystem. All of its exported
// operations are safe for concurrent use; memfs serializes them behind a
// single mutex rather than attempting finer-grained locking, since every
// operation eventually touches the shared header and free list.
type FileSystem struct {
	mu  sync.Mutex
	r   *region.Region
	log *logrus.Entry
}

// New wraps an already-initialized region, logging through log — typically
// a region-tagged *logrus.Entry from regionfs.Open/Create/CreateAnon, so
// every warning this filesystem emits carries that region's correlation ID.
func New(r *region.Region, log *logrus.Entry) *FileSystem {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &FileSystem{r: r, log: log}
}

// Format checks whether the region already holds a regionfs filesystem
// and, if not, lays down a fresh one using the host's current time as the
// root directory's birth time. Formatting an already-formatted region is a
// no-op, mirroring the idempotent check the on-disk format has always used.
func Format(r *region.Region) error {
	_, err := FormatAt(r, timestamp.GetTime())
	return err
}

// FormatAt is Format with an explicit root timestamp, used by regionfs.Open
// to seed the root directory's ctime/mtime/atime from a backing file's real
// birth time (via gopkg.in/djherbis/times.v1) rather than the moment the
// region happened to be mapped. It reports whether it actually laid down a
// fresh filesystem, so a caller only applies that timestamp once.
func FormatAt(r *region.Region, rootTime time.Time) (bool, error) {
	totalBlocks := r.Blocks()
	if totalBlocks < 2 {
		return false, ErrFault
	}

	existing := readHeader(r)
	if existing.totalBlocks == totalBlocks {
		return false, nil
	}

	ntBlocks := ceilDiv(blocksFile*(1+nodesPerBlock)+totalBlocks, 1+blocksFile*nodesPerBlock)
	if ntBlocks < 1 {
		ntBlocks = 1
	}

	h := header{
		totalBlocks:     totalBlocks,
		nodeTableBlocks: ntBlocks,
		nodeTableOffset: region.Offset(inodeSize),
		freeListHead:    region.Block(ntBlocks),
		freeBlocks:      totalBlocks - ntBlocks,
	}

	r.Zero(0, int(region.Offset(ntBlocks)*region.BlockSize))
	writeFreeRegion(r, h.freeListHead, freeRegion{size: h.freeBlocks, next: region.Null})

	writeInode(r, h, rootNode, inode{
		mode:   modeDirectory,
		nlinks: 1,
		ctime:  rootTime,
		mtime:  rootTime,
		atime:  rootTime,
	})

	writeHeader(r, h)
	return true, nil
}

func (fs *FileSystem) header() header { return readHeader(fs.r) }

// now returns the current time, honoring SOURCE_DATE_EPOCH the same way the
// rest of this module's ambient timestamp handling does, so a filesystem
// built under a pinned epoch gets reproducible atime/mtime/ctime values.
func (fs *FileSystem) now() time.Time { return timestamp.GetTime() }

// maxNode returns the highest valid node index for the currently sized
// node table; node 0 is reserved for the filesystem root.
func (fs *FileSystem) maxNode(h header) nodeID {
	return nodeID(h.nodeTableBlocks*nodesPerBlock - 1)
}

// nodeState mirrors the three-way validity classification the original
// allocator used: bad (out of range), good (in range but unlinked or
// unreadable), and linked (a live regular file or directory).
type nodeState int

const (
	nodeBad nodeState = iota
	nodeGood
	nodeLinked
)

func (fs *FileSystem) nodeValid(h header, n nodeID) nodeState {
	if n < 0 || n > fs.maxNode(h) {
		return nodeBad
	}
	in := readInode(fs.r, h, n)
	if in.nlinks == 0 || (in.mode&0o170000 != modeDirectory&0o170000 && in.mode&0o170000 != modeRegular&0o170000) {
		return nodeGood
	}
	return nodeLinked
}

// newNode scans the node table for the first unlinked slot and resets its
// data pointers so the caller gets a clean, empty file.
func (fs *FileSystem) newNode(h header) (nodeID, bool) {
	max := fs.maxNode(h)
	for n := nodeID(1); n <= max; n++ {
		in := readInode(fs.r, h, n)
		if in.nlinks == 0 {
			in.size = 0
			in.nblocks = 0
			in.blocks = [directNodeBlocks]region.Block{}
			in.blockList = region.Null
			writeInode(fs.r, h, n, in)
			return n, true
		}
	}
	return noNode, false
}
