package memfs

import "github.com/flatregion/regionfs/region"

func ceilDivBlocks(n uint64) uint64 {
	return ceilDiv(n, region.BlockSize)
}

func indirectsFor(nblocks uint64) uint64 {
	if nblocks <= directNodeBlocks {
		return 0
	}
	return ceilDiv(nblocks-directNodeBlocks, indirectBlockFanout)
}

// fileBlockChain walks an inode's direct blocks then its indirect chain,
// returning every allocated data block in file order plus every indirect
// block that chains them together. A nil/zero entry anywhere in the
// direct array or an indirect block's array marks the end of the file;
// regionfs never leaves a hole before it.
func (fs *FileSystem) fileBlockChain(in inode) (data []region.Block, indirects []region.Block) {
	for _, b := range in.blocks {
		if b == region.Null {
			return data, indirects
		}
		data = append(data, b)
	}
	cur := in.blockList
	for cur != region.Null {
		indirects = append(indirects, cur)
		ib := readIndirect(fs.r, cur)
		for _, b := range ib.blocks {
			if b == region.Null {
				break
			}
			data = append(data, b)
		}
		cur = ib.next
	}
	return data, indirects
}

// shrinkFile frees every data and indirect block beyond newBlocks and
// truncates the chain so the last kept indirect block (if any) no longer
// points past it.
func (fs *FileSystem) shrinkFile(in inode, newBlocks uint64) inode {
	if newBlocks >= in.nblocks {
		return in
	}
	data, indirects := fs.fileBlockChain(in)
	fs.free(data[newBlocks:])

	neededIndirects := indirectsFor(newBlocks)
	fs.free(indirects[neededIndirects:])

	for i := newBlocks; i < directNodeBlocks; i++ {
		in.blocks[i] = region.Null
	}
	if neededIndirects == 0 {
		in.blockList = region.Null
	} else {
		lastBlk := indirects[neededIndirects-1]
		ib := readIndirect(fs.r, lastBlk)
		ib.next = region.Null
		used := newBlocks - directNodeBlocks - (neededIndirects-1)*indirectBlockFanout
		for i := used; i < indirectBlockFanout; i++ {
			ib.blocks[i] = region.Null
		}
		writeIndirect(fs.r, lastBlk, ib)
	}
	in.nblocks = newBlocks
	return in
}

// growFile extends an inode's block map to newBlocks, allocating however
// many new indirect blocks the extra fanout requires along with the new
// data blocks themselves, and links everything into the existing chain.
func (fs *FileSystem) growFile(in inode, newBlocks uint64) (inode, error) {
	if newBlocks <= in.nblocks {
		return in, nil
	}
	_, existingIndirects := fs.fileBlockChain(in)
	curIndirects := uint64(len(existingIndirects))
	neededIndirects := indirectsFor(newBlocks)
	addIndirects := neededIndirects - curIndirects
	addBlocks := newBlocks - in.nblocks

	got := fs.alloc(int(addBlocks + addIndirects))
	if uint64(len(got)) < addBlocks+addIndirects {
		fs.free(got)
		return in, ErrNoSpace
	}
	newIndirects := got[:addIndirects]
	newData := got[addIndirects:]

	allIndirects := make([]region.Block, 0, neededIndirects)
	allIndirects = append(allIndirects, existingIndirects...)
	allIndirects = append(allIndirects, newIndirects...)

	for i := curIndirects; i < neededIndirects; i++ {
		blk := allIndirects[i]
		writeIndirect(fs.r, blk, indirectBlock{})
		if i == 0 {
			in.blockList = blk
		} else {
			prev := readIndirect(fs.r, allIndirects[i-1])
			prev.next = blk
			writeIndirect(fs.r, allIndirects[i-1], prev)
		}
	}

	idx := in.nblocks
	for _, blk := range newData {
		if idx < directNodeBlocks {
			in.blocks[idx] = blk
		} else {
			pos := idx - directNodeBlocks
			ibBlk := allIndirects[pos/indirectBlockFanout]
			ib := readIndirect(fs.r, ibBlk)
			ib.blocks[pos%indirectBlockFanout] = blk
			writeIndirect(fs.r, ibBlk, ib)
		}
		idx++
	}
	in.nblocks = newBlocks
	return in, nil
}

// zeroGrowth clears the gap a truncate-to-larger-size opens up between
// the previous end of file and the new one. Freshly allocated blocks
// already come back zeroed from alloc, so this only ever has real work to
// do within whatever block used to be the last one in the file.
func (fs *FileSystem) zeroGrowth(in inode, oldSize, newSize uint64) {
	data, _ := fs.fileBlockChain(in)
	pos := oldSize
	for pos < newSize {
		blkIdx := pos / region.BlockSize
		if blkIdx >= uint64(len(data)) {
			break
		}
		within := pos % region.BlockSize
		chunk := region.BlockSize - within
		if remaining := newSize - pos; chunk > remaining {
			chunk = remaining
		}
		fs.r.Zero(region.Offset(data[blkIdx])*region.BlockSize+region.Offset(within), int(chunk))
		pos += chunk
	}
}

// truncate is frealloc: it changes a regular file's size to exactly size
// bytes, growing or shrinking its block map as needed. It does not check
// link count, since it is also used to release an unlinked node's blocks
// after its last directory entry is removed.
func (fs *FileSystem) truncate(n nodeID, size uint64) error {
	h := fs.header()
	in := readInode(fs.r, h, n)
	if in.isDir() {
		return ErrIsDir
	}

	oldSize := in.size
	newBlocks := ceilDivBlocks(size)

	switch {
	case newBlocks < in.nblocks:
		in = fs.shrinkFile(in, newBlocks)
	case newBlocks > in.nblocks:
		grown, err := fs.growFile(in, newBlocks)
		if err != nil {
			return err
		}
		in = grown
	}
	if size > oldSize {
		fs.zeroGrowth(in, oldSize, size)
	}
	in.size = size
	in.mtime = fs.now()
	writeInode(fs.r, h, n, in)
	return nil
}
