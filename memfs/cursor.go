package memfs

import "github.com/flatregion/regionfs/region"

// cursor is the byte-granular file traversal state: a view
// over a single inode's resolved block chain that file reads and writes
// drive by absolute offset, rather than re-walking direct slots and
// indirect blocks at every call site. Directory traversal uses
// fileBlockChain/dirEntrySlot directly at entry granularity instead of a
// cursor, since a directory's unit of iteration is a whole direntry rather
// than a byte run that can split across a block boundary.
type cursor struct {
	fs   *FileSystem
	data []region.Block
}

// newCursor resolves in's direct/indirect block map once; the caller is
// expected to build a fresh cursor after any operation that can change the
// map (growFile, shrinkFile).
func (fs *FileSystem) newCursor(in inode) *cursor {
	data, _ := fs.fileBlockChain(in)
	return &cursor{fs: fs, data: data}
}

// readAt copies into b starting at byte pos, stopping early if pos+len(b)
// runs past the end of the resolved block chain. The caller is responsible
// for not reading past the inode's declared size.
func (c *cursor) readAt(pos uint64, b []byte) int {
	n := 0
	for n < len(b) {
		blkIdx := pos / region.BlockSize
		if blkIdx >= uint64(len(c.data)) {
			break
		}
		within := pos % region.BlockSize
		chunk := region.BlockSize - within
		if remaining := uint64(len(b) - n); chunk > remaining {
			chunk = remaining
		}
		src := c.fs.r.Slice(region.Offset(c.data[blkIdx])*region.BlockSize+region.Offset(within), int(chunk))
		copy(b[n:], src)
		n += int(chunk)
		pos += chunk
	}
	return n
}

// writeAt copies b into the block chain starting at byte pos. The caller
// must have already grown the chain to cover pos+len(b) before calling
// this; writeAt never allocates.
func (c *cursor) writeAt(pos uint64, b []byte) int {
	n := 0
	for n < len(b) {
		blkIdx := pos / region.BlockSize
		if blkIdx >= uint64(len(c.data)) {
			break
		}
		within := pos % region.BlockSize
		chunk := region.BlockSize - within
		if remaining := uint64(len(b) - n); chunk > remaining {
			chunk = remaining
		}
		dst := c.fs.r.Slice(region.Offset(c.data[blkIdx])*region.BlockSize+region.Offset(within), int(chunk))
		copy(dst, b[n:n+int(chunk)])
		n += int(chunk)
		pos += chunk
	}
	return n
}
