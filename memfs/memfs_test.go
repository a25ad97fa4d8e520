package memfs_test

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"testing"

	"github.com/flatregion/regionfs/memfs"
	"github.com/flatregion/regionfs/region"
)

// newFS formats a freshly zeroed region of the given size in blocks and
// mounts it, the way regionfs.CreateAnon does but without going through an
// actual mmap, so tests stay host-independent.
func newFS(t *testing.T, blocks int) (*memfs.FileSystem, *region.Region) {
	t.Helper()
	r := region.New(make([]byte, blocks*region.BlockSize))
	if err := memfs.Format(r); err != nil {
		t.Fatalf("Format: %v", err)
	}
	return memfs.New(r, nil), r
}

func writeFile(t *testing.T, fs *memfs.FileSystem, path string, data []byte) {
	t.Helper()
	f, err := fs.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC)
	if err != nil {
		t.Fatalf("OpenFile(%s): %v", path, err)
	}
	if _, err := f.Write(data); err != nil {
		t.Fatalf("Write(%s): %v", path, err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close(%s): %v", path, err)
	}
}

func readFile(t *testing.T, fs *memfs.FileSystem, path string) []byte {
	t.Helper()
	f, err := fs.OpenFile(path, os.O_RDONLY)
	if err != nil {
		t.Fatalf("OpenFile(%s): %v", path, err)
	}
	defer func() { _ = f.Close() }()
	data, err := io.ReadAll(f)
	if err != nil && err != io.EOF {
		t.Fatalf("ReadAll(%s): %v", path, err)
	}
	return data
}

// TestFormatIdempotent mirrors spec scenario 1 and the round-trip law
// init(init(R)) == init(R): formatting an already-formatted region must
// leave its accounting untouched.
func TestFormatIdempotent(t *testing.T) {
	fs, r := newFS(t, 8)
	before := fs.Statfs()

	if err := memfs.Format(r); err != nil {
		t.Fatalf("second Format: %v", err)
	}
	after := fs.Statfs()
	if before != after {
		t.Fatalf("Format is not idempotent: before=%+v after=%+v", before, after)
	}
}

// TestStatfsAfterInit mirrors spec scenario 1: an 8-block region reports
// bsize=1024, blocks=8, and free=8-NT once formatted.
func TestStatfsAfterInit(t *testing.T) {
	fs, _ := newFS(t, 8)
	sf := fs.Statfs()
	if sf.BlockSize != 1024 {
		t.Errorf("BlockSize = %d, want 1024", sf.BlockSize)
	}
	if sf.Blocks != 8 {
		t.Errorf("Blocks = %d, want 8", sf.Blocks)
	}
	if sf.FreeBlocks == 0 || sf.FreeBlocks >= 8 {
		t.Errorf("FreeBlocks = %d, want in (0,8) reflecting the node table's blocks", sf.FreeBlocks)
	}
}

// TestMkdirReadDir mirrors spec scenario 2.
func TestMkdirReadDir(t *testing.T) {
	fs, _ := newFS(t, 8)
	if err := fs.Mkdir("/d"); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	root, err := fs.ReadDir("/")
	if err != nil {
		t.Fatalf("ReadDir(/): %v", err)
	}
	if len(root) != 1 || root[0].Name() != "d" {
		t.Fatalf("ReadDir(/) = %v, want [\"d\"]", root)
	}
	if !root[0].IsDir() {
		t.Fatalf("entry %q should be a directory", root[0].Name())
	}
	sub, err := fs.ReadDir("/d")
	if err != nil {
		t.Fatalf("ReadDir(/d): %v", err)
	}
	if len(sub) != 0 {
		t.Fatalf("ReadDir(/d) = %v, want empty", sub)
	}
}

// TestMknodWriteRead mirrors spec scenario 3.
func TestMknodWriteRead(t *testing.T) {
	fs, _ := newFS(t, 8)
	if err := fs.Mknod("/f", 0, 0); err != nil {
		t.Fatalf("Mknod: %v", err)
	}
	writeFile(t, fs, "/f", []byte("Hello"))
	got := readFile(t, fs, "/f")
	if !bytes.Equal(got, []byte("Hello")) {
		t.Fatalf("read back %q, want %q", got, "Hello")
	}
}

// TestWritePastEOFZeroFills mirrors spec scenario 4: a write that starts
// past the current end of file must zero-fill the gap.
func TestWritePastEOFZeroFills(t *testing.T) {
	fs, _ := newFS(t, 64)
	if err := fs.Mknod("/f", 0, 0); err != nil {
		t.Fatalf("Mknod: %v", err)
	}
	writeFile(t, fs, "/f", []byte("Hello"))

	f, err := fs.OpenFile("/f", os.O_WRONLY)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	if _, err := f.Seek(1030, io.SeekStart); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	if _, err := f.Write([]byte("X")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	got := readFile(t, fs, "/f")
	if len(got) < 1031 {
		t.Fatalf("file grew to %d bytes, want >= 1031", len(got))
	}
	if !bytes.Equal(got[:5], []byte("Hello")) {
		t.Fatalf("first 5 bytes = %q, want Hello", got[:5])
	}
	for i := 5; i < 1030; i++ {
		if got[i] != 0 {
			t.Fatalf("byte %d = %d, want 0 (write hole not zero-filled)", i, got[i])
		}
	}
	if got[1030] != 'X' {
		t.Fatalf("byte 1030 = %q, want X", got[1030])
	}
}

// TestDirectoryFillRenameCompact mirrors spec scenario 5: a directory
// filled with many entries, a rename, and a removal must leave readdir
// returning every surviving entry contiguously with no holes.
func TestDirectoryFillRenameCompact(t *testing.T) {
	fs, _ := newFS(t, 64)
	names := make([]string, 0, 22)
	for c := 'a'; c <= 'v'; c++ {
		name := fmt.Sprintf("/%c", c)
		if err := fs.Mknod(name, 0, 0); err != nil {
			t.Fatalf("Mknod(%s): %v", name, err)
		}
		names = append(names, string(c))
	}

	if err := fs.Rename("/f", "/g"); err != nil {
		t.Fatalf("Rename: %v", err)
	}
	entries := mustReadDirNames(t, fs, "/")
	if contains(entries, "f") {
		t.Fatalf("readdir still contains renamed-away name %q: %v", "f", entries)
	}
	if !contains(entries, "g") {
		t.Fatalf("readdir missing renamed-to name %q: %v", "g", entries)
	}
	if count := countOccurrences(entries, "g"); count != 1 {
		t.Fatalf("entry %q appears %d times, want exactly 1", "g", count)
	}

	if err := fs.Unlink("/m"); err != nil {
		t.Fatalf("Unlink(/m): %v", err)
	}
	entries = mustReadDirNames(t, fs, "/")
	if contains(entries, "m") {
		t.Fatalf("readdir still contains unlinked name %q: %v", "m", entries)
	}
	if len(entries) != len(names)-1 {
		t.Fatalf("readdir has %d entries, want %d", len(entries), len(names)-1)
	}
}

// TestTruncateUnlinkRestoresFreeBlocks mirrors spec scenario 6: truncating
// a file to zero and unlinking it must restore the free-block count from
// before it was created.
func TestTruncateUnlinkRestoresFreeBlocks(t *testing.T) {
	fs, _ := newFS(t, 64)
	before := fs.Statfs().FreeBlocks

	if err := fs.Mkdir("/d"); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	if err := fs.Mknod("/d/f", 0, 0); err != nil {
		t.Fatalf("Mknod: %v", err)
	}
	writeFile(t, fs, "/d/f", bytes.Repeat([]byte{'z'}, 5000))

	if err := fs.Truncate("/d/f", 0); err != nil {
		t.Fatalf("Truncate: %v", err)
	}
	if err := fs.Unlink("/d/f"); err != nil {
		t.Fatalf("Unlink: %v", err)
	}
	if err := fs.Rmdir("/d"); err != nil {
		t.Fatalf("Rmdir: %v", err)
	}

	after := fs.Statfs().FreeBlocks
	if after != before {
		t.Fatalf("FreeBlocks = %d after cleanup, want %d (the value before creation)", after, before)
	}
}

// TestRmdirNonEmptyFails checks the dirmod-level guard: removing a
// directory entry that refers to a non-empty directory must fail with
// ErrNotEmpty and leave the directory untouched.
func TestRmdirNonEmptyFails(t *testing.T) {
	fs, _ := newFS(t, 16)
	if err := fs.Mkdir("/d"); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	if err := fs.Mknod("/d/f", 0, 0); err != nil {
		t.Fatalf("Mknod: %v", err)
	}
	err := fs.Rmdir("/d")
	if !errors.Is(err, memfs.ErrNotEmpty) {
		t.Fatalf("Rmdir(non-empty) = %v, want ErrNotEmpty", err)
	}
	entries, err := fs.ReadDir("/d")
	if err != nil {
		t.Fatalf("ReadDir(/d): %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("ReadDir(/d) after failed Rmdir = %v, want 1 entry still present", entries)
	}
}

// TestUnlinkOnDirectoryFails checks Unlink refuses a directory path the
// way ENOTDIR/EISDIR dispatch requires.
func TestUnlinkOnDirectoryFails(t *testing.T) {
	fs, _ := newFS(t, 16)
	if err := fs.Mkdir("/d"); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	if err := fs.Unlink("/d"); !errors.Is(err, memfs.ErrIsDir) {
		t.Fatalf("Unlink(dir) = %v, want ErrIsDir", err)
	}
}

// TestRenameExistingNonEmptyDirFails exercises the Open Question decision
// recorded in DESIGN.md: renaming onto an existing non-empty directory
// must fail ENOTEMPTY rather than silently clobbering it.
func TestRenameExistingNonEmptyDirFails(t *testing.T) {
	fs, _ := newFS(t, 16)
	if err := fs.Mkdir("/a"); err != nil {
		t.Fatalf("Mkdir(/a): %v", err)
	}
	if err := fs.Mkdir("/b"); err != nil {
		t.Fatalf("Mkdir(/b): %v", err)
	}
	if err := fs.Mknod("/b/child", 0, 0); err != nil {
		t.Fatalf("Mknod: %v", err)
	}
	if err := fs.Rename("/a", "/b"); !errors.Is(err, memfs.ErrNotEmpty) {
		t.Fatalf("Rename(empty dir onto non-empty dir) = %v, want ErrNotEmpty", err)
	}
}

// TestCrossParentRenameRoundTrip mirrors the round-trip law
// rename(a,b); rename(b,a) restores directory contents byte-for-byte: the
// file's content and its parent's listing must end up identical to where
// they started.
func TestCrossParentRenameRoundTrip(t *testing.T) {
	fs, _ := newFS(t, 32)
	if err := fs.Mkdir("/a"); err != nil {
		t.Fatalf("Mkdir(/a): %v", err)
	}
	if err := fs.Mkdir("/b"); err != nil {
		t.Fatalf("Mkdir(/b): %v", err)
	}
	if err := fs.Mknod("/a/f", 0, 0); err != nil {
		t.Fatalf("Mknod: %v", err)
	}
	writeFile(t, fs, "/a/f", []byte("payload"))

	if err := fs.Rename("/a/f", "/b/f"); err != nil {
		t.Fatalf("Rename a->b: %v", err)
	}
	if err := fs.Rename("/b/f", "/a/f"); err != nil {
		t.Fatalf("Rename b->a: %v", err)
	}

	aEntries := mustReadDirNames(t, fs, "/a")
	bEntries := mustReadDirNames(t, fs, "/b")
	if !contains(aEntries, "f") || contains(bEntries, "f") {
		t.Fatalf("after round-trip rename, /a has %v and /b has %v", aEntries, bEntries)
	}
	if got := readFile(t, fs, "/a/f"); !bytes.Equal(got, []byte("payload")) {
		t.Fatalf("content after round trip = %q, want %q", got, "payload")
	}
}

// TestInsertAcrossIndirectBoundary grows a directory past its direct
// block slots so dirInsert must allocate an indirect-offset block as
// well as a data block, as spec.md's boundary behaviors require.
func TestInsertAcrossIndirectBoundary(t *testing.T) {
	fs, _ := newFS(t, 256)
	const entriesPerBlock = 1024 / 256 // direntrySize
	const wanted = 5*entriesPerBlock + 1
	for i := 0; i < wanted; i++ {
		name := fmt.Sprintf("/n%d", i)
		if err := fs.Mknod(name, 0, 0); err != nil {
			t.Fatalf("Mknod(%s): %v", name, err)
		}
	}
	entries, err := fs.ReadDir("/")
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != wanted {
		t.Fatalf("ReadDir returned %d entries, want %d", len(entries), wanted)
	}
}

// TestOpenSatisfiesIOFS exercises the io/fs.FS adapter added for sync
// round-trip verification: Open must accept io/fs-style paths ("." for
// root, no leading slash) and reject invalid ones.
func TestOpenSatisfiesIOFS(t *testing.T) {
	fs, _ := newFS(t, 16)
	if err := fs.Mknod("/f", 0, 0); err != nil {
		t.Fatalf("Mknod: %v", err)
	}
	writeFile(t, fs, "/f", []byte("abc"))

	f, err := fs.Open("f")
	if err != nil {
		t.Fatalf("Open(f): %v", err)
	}
	defer func() { _ = f.Close() }()
	data, err := io.ReadAll(f)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !bytes.Equal(data, []byte("abc")) {
		t.Fatalf("content = %q, want %q", data, "abc")
	}

	if _, err := fs.Open("/f"); err == nil {
		t.Fatalf("Open(/f) with leading slash should be rejected by io/fs.ValidPath")
	}
}

func mustReadDirNames(t *testing.T, fs *memfs.FileSystem, path string) []string {
	t.Helper()
	entries, err := fs.ReadDir(path)
	if err != nil {
		t.Fatalf("ReadDir(%s): %v", path, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func contains(haystack []string, want string) bool {
	for _, s := range haystack {
		if s == want {
			return true
		}
	}
	return false
}

func countOccurrences(haystack []string, want string) int {
	n := 0
	for _, s := range haystack {
		if s == want {
			n++
		}
	}
	return n
}
