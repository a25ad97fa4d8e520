package memfs

import (
	"testing"
	"time"

	"github.com/flatregion/regionfs/region"
	"github.com/flatregion/regionfs/util"
)

// TestInodeEncodingRoundTrip writes two inodes with known, distinct
// fields, checks that their raw on-region encodings are not identical
// (using the same byte-slice diff helper as directory_internal_test.go),
// then reads both back and checks mode, nlinks, size and ctime field by
// field.
func TestInodeEncodingRoundTrip(t *testing.T) {
	r := region.New(make([]byte, 8*region.BlockSize))
	if _, err := FormatAt(r, time.Unix(1000, 0)); err != nil {
		t.Fatalf("FormatAt: %v", err)
	}
	h := readHeader(r)

	a := inode{mode: modeRegular, nlinks: 1, size: 5, ctime: time.Unix(1000, 0)}
	b := inode{mode: modeDirectory, nlinks: 2, size: 7, ctime: time.Unix(2000, 0)}
	writeInode(r, h, nodeID(1), a)
	writeInode(r, h, nodeID(2), b)

	aBytes := r.Slice(nodeOffset(h, nodeID(1)), inodeSize)
	bBytes := r.Slice(nodeOffset(h, nodeID(2)), inodeSize)

	if diff, diffString := util.DumpByteSlicesWithDiffs(aBytes, bBytes, 16, true, true, true); !diff {
		t.Fatalf("two inodes with different mode/nlinks/size/ctime encoded identically\n%s", diffString)
	}

	gotA := readInode(r, h, nodeID(1))
	gotB := readInode(r, h, nodeID(2))
	if gotA.mode != modeRegular || gotA.nlinks != 1 || gotA.size != 5 {
		t.Fatalf("readInode(1) = %+v, want mode=regular nlinks=1 size=5", gotA)
	}
	if gotB.mode != modeDirectory || gotB.nlinks != 2 || gotB.size != 7 {
		t.Fatalf("readInode(2) = %+v, want mode=directory nlinks=2 size=7", gotB)
	}
	if !gotA.ctime.Equal(a.ctime) || !gotB.ctime.Equal(b.ctime) {
		t.Fatalf("ctime round trip: got %v/%v, want %v/%v", gotA.ctime, gotB.ctime, a.ctime, b.ctime)
	}
}
