package memfs

import "github.com/flatregion/regionfs/region"

// dirEntrySlot returns the data block and in-block slot holding logical
// entry idx of a directory, assuming idx falls within an allocated block
// (idx == in.size is used to reach the sentinel slot after the last entry).
func (fs *FileSystem) dirEntrySlot(in inode, idx uint64) (region.Block, int) {
	data, _ := fs.fileBlockChain(in)
	blkIdx := idx / directEntriesPerBlock
	slot := int(idx % directEntriesPerBlock)
	return data[blkIdx], slot
}

// dirLookup scans a directory's packed entries for name, returning the
// node it refers to and its logical entry index.
func (fs *FileSystem) dirLookup(h header, dir nodeID, name string) (nodeID, uint64, bool) {
	in := readInode(fs.r, h, dir)
	for i := uint64(0); i < in.size; i++ {
		blk, slot := fs.dirEntrySlot(in, i)
		e := readDirentry(fs.r, blk, slot)
		if e.name == name {
			return e.node, i, true
		}
	}
	return noNode, 0, false
}

// dirReadAll returns every entry currently stored in dir, in on-region
// order: insertion order, except that each removal moves the directory's
// last entry into the removed slot.
func (fs *FileSystem) dirReadAll(h header, dir nodeID) []direntry {
	in := readInode(fs.r, h, dir)
	out := make([]direntry, 0, in.size)
	for i := uint64(0); i < in.size; i++ {
		blk, slot := fs.dirEntrySlot(in, i)
		out = append(out, readDirentry(fs.r, blk, slot))
	}
	return out
}

// dirInsert appends a new entry, growing the directory's block map first
// if the next entry doesn't fit in an already-allocated block.
func (fs *FileSystem) dirInsert(h header, dir nodeID, name string, node nodeID) error {
	in := readInode(fs.r, h, dir)
	neededBlocks := ceilDiv(in.size+1, directEntriesPerBlock)
	if neededBlocks > in.nblocks {
		grown, err := fs.growFile(in, neededBlocks)
		if err != nil {
			return err
		}
		in = grown
	}
	blk, slot := fs.dirEntrySlot(in, in.size)
	writeDirentry(fs.r, blk, slot, direntry{node: node, name: name})
	in.size++
	// A freshly allocated block reads as zero, which is node 0, not the
	// end-of-listing sentinel; keep a noNode entry right after the last
	// live one whenever the tail block has room for it.
	if in.size%directEntriesPerBlock != 0 {
		sblk, sslot := fs.dirEntrySlot(in, in.size)
		writeDirentry(fs.r, sblk, sslot, direntry{node: noNode})
	}
	in.mtime = fs.now()
	writeInode(fs.r, h, dir, in)

	child := readInode(fs.r, h, node)
	child.nlinks++
	writeInode(fs.r, h, node, child)
	return nil
}

// dirRemoveAt deletes the entry at logical index idx by swapping the
// directory's last entry into its place, then shrinks the block map if
// the trailing block it vacated is no longer needed.
func (fs *FileSystem) dirRemoveAt(h header, dir nodeID, idx uint64) direntry {
	in := readInode(fs.r, h, dir)
	lastIdx := in.size - 1

	blk, slot := fs.dirEntrySlot(in, idx)
	removed := readDirentry(fs.r, blk, slot)

	if idx != lastIdx {
		lastBlk, lastSlot := fs.dirEntrySlot(in, lastIdx)
		last := readDirentry(fs.r, lastBlk, lastSlot)
		writeDirentry(fs.r, blk, slot, last)
	}
	lastBlk, lastSlot := fs.dirEntrySlot(in, lastIdx)
	writeDirentry(fs.r, lastBlk, lastSlot, direntry{node: noNode})

	in.size--
	neededBlocks := ceilDiv(in.size, directEntriesPerBlock)
	if neededBlocks < in.nblocks {
		in = fs.shrinkFile(in, neededBlocks)
	}
	in.mtime = fs.now()
	writeInode(fs.r, h, dir, in)

	child := readInode(fs.r, h, removed.node)
	if child.nlinks > 0 {
		child.nlinks--
		writeInode(fs.r, h, removed.node, child)
	}
	return removed
}

// dirRename changes the name stored in an existing entry in place,
// refusing if an entry already holds the destination name.
func (fs *FileSystem) dirRename(h header, dir nodeID, oldName, newName string) (nodeID, error) {
	if _, _, exists := fs.dirLookup(h, dir, newName); exists {
		return noNode, ErrExist
	}
	node, idx, ok := fs.dirLookup(h, dir, oldName)
	if !ok {
		return noNode, ErrNotExist
	}
	in := readInode(fs.r, h, dir)
	blk, slot := fs.dirEntrySlot(in, idx)
	writeDirentry(fs.r, blk, slot, direntry{node: node, name: newName})
	in.mtime = fs.now()
	writeInode(fs.r, h, dir, in)
	return node, nil
}

func ceilDiv(a, b uint64) uint64 {
	if b == 0 {
		return 0
	}
	return (a + b - 1) / b
}
