package memfs

import (
	"github.com/sirupsen/logrus"

	"github.com/flatregion/regionfs/region"
)

// alloc removes up to count blocks from the free list, peeling them off the
// front of whichever free run is first in the list, and returns however
// many it actually found. Every returned block is zero-filled before being
// handed back, since a freshly allocated block must never leak the
// previous tenant's bytes.
func (fs *FileSystem) alloc(count int) []region.Block {
	h := readHeader(fs.r)
	out := make([]region.Block, 0, count)

	var prev region.Block
	cur := h.freeListHead
	for len(out) < count && cur != region.Null {
		fr := readFreeRegion(fs.r, cur)
		took := uint64(0)
		for took < fr.size && uint64(len(out)) < uint64(count) {
			blk := cur + region.Block(took)
			fs.r.Zero(region.Offset(blk)*region.BlockSize, region.BlockSize)
			out = append(out, blk)
			took++
		}
		if took == fr.size {
			next := fr.next
			if prev != region.Null {
				pr := readFreeRegion(fs.r, prev)
				pr.next = next
				writeFreeRegion(fs.r, prev, pr)
			} else {
				h.freeListHead = next
			}
			cur = next
		} else {
			remaining := cur + region.Block(took)
			writeFreeRegion(fs.r, remaining, freeRegion{size: fr.size - took, next: fr.next})
			if prev != region.Null {
				pr := readFreeRegion(fs.r, prev)
				pr.next = remaining
				writeFreeRegion(fs.r, prev, pr)
			} else {
				h.freeListHead = remaining
			}
			prev = remaining
			cur = fr.next
		}
	}
	h.freeBlocks -= uint64(len(out))
	writeHeader(fs.r, h)
	if len(out) < count {
		fs.log.WithFields(logrus.Fields{"wanted": count, "got": len(out)}).Warn("memfs: short allocation, free list exhausted")
	}
	return out
}

// free returns blocks to the free list, merging each into any adjacent
// free run so the list never accumulates needless fragmentation. buf is
// sorted ascending in place (heap sort, no auxiliary buffer) and then
// merged into the already-sorted list in a single forward pass: the walk
// resumes from the previous block's insertion point rather than from the
// head, so freeing n blocks costs one traversal of the list total, not one
// per block.
func (fs *FileSystem) free(buf []region.Block) {
	if len(buf) == 0 {
		return
	}
	heapSortBlocks(buf)

	h := readHeader(fs.r)
	var at region.Block
	for _, blk := range buf {
		if blk == region.Null || blk < region.Block(h.nodeTableBlocks) || blk >= region.Block(h.totalBlocks) {
			continue
		}
		var freed bool
		at, freed = fs.freeOne(&h, at, blk)
		if freed {
			h.freeBlocks++
		}
	}
	writeHeader(fs.r, h)
}

// heapSortBlocks sorts a in ascending order in place using a binary max-heap,
// matching the allocator's heap-sort-on-free design: O(n log n) with no
// auxiliary allocation, unlike a sort needing extra buffers.
func heapSortBlocks(a []region.Block) {
	n := len(a)
	for root := n/2 - 1; root >= 0; root-- {
		siftDown(a, root, n)
	}
	for end := n - 1; end > 0; end-- {
		a[0], a[end] = a[end], a[0]
		siftDown(a, 0, end)
	}
}

func siftDown(a []region.Block, root, n int) {
	for {
		child := 2*root + 1
		if child >= n {
			return
		}
		if child+1 < n && a[child+1] > a[child] {
			child++
		}
		if a[root] >= a[child] {
			return
		}
		a[root], a[child] = a[child], a[root]
		root = child
	}
}

// freeOne inserts a single block into the free list, merging it with the
// predecessor and/or successor run if they are contiguous with it. at is
// the run the previous (smaller) block landed in, or Null to start at the
// list head; since the caller frees blocks in ascending order, resuming
// there keeps the whole batch a single pass. freeOne returns the run now
// holding blk for the next call to resume from, and whether blk was
// actually freed (false when it was already on the list).
func (fs *FileSystem) freeOne(h *header, at, blk region.Block) (region.Block, bool) {
	cur := at
	if cur == region.Null {
		cur = h.freeListHead
		if cur == region.Null || blk < cur {
			writeFreeRegion(fs.r, blk, freeRegion{size: 1, next: cur})
			h.freeListHead = blk
			fs.mergeForward(blk)
			return blk, true
		}
	}

	for {
		fr := readFreeRegion(fs.r, cur)
		end := cur + region.Block(fr.size)
		if fr.next != region.Null && blk >= fr.next {
			cur = fr.next
			continue
		}
		if blk < end {
			// Already free; nothing to do.
			return cur, false
		}
		if blk == end {
			fr.size++
			writeFreeRegion(fs.r, cur, fr)
			fs.mergeForward(cur)
			return cur, true
		}
		writeFreeRegion(fs.r, blk, freeRegion{size: 1, next: fr.next})
		fr.next = blk
		writeFreeRegion(fs.r, cur, fr)
		fs.mergeForward(blk)
		return blk, true
	}
}

// mergeForward folds the free run starting at cur into its immediate
// successor if they are contiguous, and returns cur.
func (fs *FileSystem) mergeForward(cur region.Block) region.Block {
	fr := readFreeRegion(fs.r, cur)
	if fr.next != region.Null && cur+region.Block(fr.size) == fr.next {
		next := readFreeRegion(fs.r, fr.next)
		fr.size += next.size
		fr.next = next.next
		writeFreeRegion(fs.r, cur, fr)
	}
	return cur
}
