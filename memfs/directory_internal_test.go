package memfs

import (
	"testing"

	"github.com/flatregion/regionfs/region"
	"github.com/flatregion/regionfs/util"
)

func newInternalFS(t *testing.T, blocks int) *FileSystem {
	t.Helper()
	r := region.New(make([]byte, blocks*region.BlockSize))
	if err := Format(r); err != nil {
		t.Fatalf("Format: %v", err)
	}
	return New(r, nil)
}

// TestDirInsertKeepsSentinel checks the on-region listing terminator: the
// slot right after the last live entry must hold noNode whenever the tail
// block has room for it, since a freshly allocated block reads as zero and
// zero is node 0, not "end of listing".
func TestDirInsertKeepsSentinel(t *testing.T) {
	fs := newInternalFS(t, 64)
	for _, p := range []string{"/a", "/b", "/c"} {
		if err := fs.Mknod(p, 0, 0); err != nil {
			t.Fatalf("Mknod(%s): %v", p, err)
		}
	}
	h := fs.header()
	in := readInode(fs.r, h, rootNode)
	if in.size != 3 {
		t.Fatalf("root size = %d, want 3", in.size)
	}
	blk, slot := fs.dirEntrySlot(in, in.size)
	if e := readDirentry(fs.r, blk, slot); e.node != noNode {
		t.Fatalf("slot after last entry holds node %d, want the noNode sentinel", e.node)
	}
}

// TestDirRemoveCompactsBySwappingLastEntry checks removal's compaction: the
// directory's last entry must move byte-for-byte into the vacated slot, and
// the old last slot must become the sentinel.
func TestDirRemoveCompactsBySwappingLastEntry(t *testing.T) {
	fs := newInternalFS(t, 64)
	for _, p := range []string{"/a", "/b", "/c"} {
		if err := fs.Mknod(p, 0, 0); err != nil {
			t.Fatalf("Mknod(%s): %v", p, err)
		}
	}
	h := fs.header()
	in := readInode(fs.r, h, rootNode)
	lastBlk, lastSlot := fs.dirEntrySlot(in, in.size-1)
	want := append([]byte(nil), fs.r.Slice(direntryOffset(lastBlk, lastSlot), direntrySize)...)

	_, idx, ok := fs.dirLookup(h, rootNode, "b")
	if !ok {
		t.Fatal("dirLookup(b) found nothing")
	}
	fs.dirRemoveAt(h, rootNode, idx)

	in = readInode(fs.r, h, rootNode)
	if in.size != 2 {
		t.Fatalf("root size = %d after removal, want 2", in.size)
	}
	blk, slot := fs.dirEntrySlot(in, idx)
	got := fs.r.Slice(direntryOffset(blk, slot), direntrySize)
	if diff, diffString := util.DumpByteSlicesWithDiffs(want, got, 16, true, true, true); diff {
		t.Fatalf("swapped-in entry differs from the old last entry\n%s", diffString)
	}
	eblk, eslot := fs.dirEntrySlot(in, in.size)
	if e := readDirentry(fs.r, eblk, eslot); e.node != noNode {
		t.Fatalf("vacated last slot holds node %d, want the noNode sentinel", e.node)
	}
}
