package memfs

import (
	"io"
	"io/fs"
	"os"

	"github.com/flatregion/regionfs/filesystem"
)

// file is a single open handle returned by FileSystem.OpenFile. It owns no
// region state beyond the node it names; the byte offset and the
// directory-listing position are per-handle, so two handles on the same
// node read independently.
type file struct {
	fs     *FileSystem
	node   nodeID
	name   string
	offset int64
	dirPos int
}

var _ filesystem.File = (*file)(nil)

// Read is the byte-copy half of reading a file: seek to the
// handle's offset, then copy through a cursor so block-boundary crossings
// are handled uniformly regardless of how many direct/indirect blocks the
// read spans.
func (f *file) Read(b []byte) (int, error) {
	f.fs.mu.Lock()
	defer f.fs.mu.Unlock()
	h := f.fs.header()
	in := readInode(f.fs.r, h, f.node)
	if in.isDir() {
		return 0, ErrIsDir
	}
	if f.offset < 0 || uint64(f.offset) >= in.size {
		return 0, io.EOF
	}
	toRead := int64(len(b))
	if f.offset+toRead > int64(in.size) {
		toRead = int64(in.size) - f.offset
	}
	c := f.fs.newCursor(in)
	n := c.readAt(uint64(f.offset), b[:toRead])
	f.offset += int64(n)

	var err error
	if uint64(f.offset) >= in.size {
		err = io.EOF
	}
	return n, err
}

// Write is the byte-copy half of writing a file. A write that reaches past the
// current size grows the file first via truncate (frealloc) so the cursor
// never has to allocate mid-copy; this generalizes the original's
// grow-one-block-then-copy loop into a single grow followed by one
// whole-range copy.
func (f *file) Write(b []byte) (int, error) {
	f.fs.mu.Lock()
	defer f.fs.mu.Unlock()
	if f.offset < 0 {
		return 0, ErrInvalid
	}
	h := f.fs.header()
	in := readInode(f.fs.r, h, f.node)
	if in.isDir() {
		return 0, ErrIsDir
	}

	end := uint64(f.offset) + uint64(len(b))
	if end > in.size {
		if err := f.fs.truncate(f.node, end); err != nil {
			return 0, err
		}
		h = f.fs.header()
		in = readInode(f.fs.r, h, f.node)
	}

	c := f.fs.newCursor(in)
	n := c.writeAt(uint64(f.offset), b)
	f.offset += int64(n)

	in.mtime = f.fs.now()
	writeInode(f.fs.r, h, f.node, in)
	return n, nil
}

// Seek implements io.Seeker: whence selects the reference point, and a
// negative result is rejected. Seeking past EOF is allowed; the file only
// grows when a write lands there.
func (f *file) Seek(offset int64, whence int) (int64, error) {
	f.fs.mu.Lock()
	defer f.fs.mu.Unlock()
	h := f.fs.header()
	in := readInode(f.fs.r, h, f.node)

	var newOffset int64
	switch whence {
	case io.SeekStart:
		newOffset = offset
	case io.SeekCurrent:
		newOffset = f.offset + offset
	case io.SeekEnd:
		newOffset = int64(in.size) + offset
	default:
		return f.offset, ErrInvalid
	}
	if newOffset < 0 {
		return f.offset, ErrInvalid
	}
	f.offset = newOffset
	return f.offset, nil
}

// Stat satisfies fs.File.
func (f *file) Stat() (os.FileInfo, error) {
	f.fs.mu.Lock()
	defer f.fs.mu.Unlock()
	h := f.fs.header()
	in := readInode(f.fs.r, h, f.node)
	return fileInfo{name: f.name, in: in, node: f.node}, nil
}

// ReadDir satisfies fs.ReadDirFile: it lists n more entries (or all
// remaining when n <= 0) starting from wherever the last ReadDir call left
// off, the io/fs streaming-readdir contract.
func (f *file) ReadDir(n int) ([]fs.DirEntry, error) {
	f.fs.mu.Lock()
	defer f.fs.mu.Unlock()
	h := f.fs.header()
	in := readInode(f.fs.r, h, f.node)
	if !in.isDir() {
		return nil, ErrNotDir
	}

	entries := f.fs.dirReadAll(h, f.node)
	if f.dirPos >= len(entries) {
		if n <= 0 {
			return nil, nil
		}
		return nil, io.EOF
	}
	remaining := entries[f.dirPos:]
	if n > 0 && n < len(remaining) {
		remaining = remaining[:n]
	}
	out := make([]fs.DirEntry, 0, len(remaining))
	for _, e := range remaining {
		child := readInode(f.fs.r, h, e.node)
		out = append(out, dirEntry{fi: fileInfo{name: e.name, in: child, node: e.node}})
	}
	f.dirPos += len(remaining)
	return out, nil
}

// Close satisfies fs.File/io.Closer. regionfs holds no OS resources per
// handle, so there is nothing to release.
func (f *file) Close() error { return nil }
