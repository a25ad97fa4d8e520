// Package testhelper provides stand-ins used by other packages' tests so
// they don't need a real file or device to exercise backend.Storage
// consumers against.
package testhelper

import (
	"errors"
	"io"
	"io/fs"
	"os"

	"github.com/flatregion/regionfs/backend"
)

// Region is a backend.Storage backed by a plain in-memory []byte, used in
// place of a real file or device by tests that mount through
// backend.Storage (the root package's MountStorage tests). It has no
// *os.File for region.MapFile to map, so Sys returns
// backend.ErrNotSuitable, the same answer rawBackend gives for a
// non-*os.File fs.File.
type Region struct {
	buf []byte
	pos int64
}

// NewRegion returns a zero-filled Region of the given size in bytes.
func NewRegion(size int) *Region {
	return &Region{buf: make([]byte, size)}
}

// Bytes exposes the backing buffer directly, for tests that construct a
// region.Region straight from memory rather than through backend.Storage.
func (r *Region) Bytes() []byte { return r.buf }

func (r *Region) Stat() (fs.FileInfo, error) {
	return nil, errors.New("testhelper: Region has no FileInfo")
}

func (r *Region) Read(b []byte) (int, error) {
	n, err := r.ReadAt(b, r.pos)
	r.pos += int64(n)
	return n, err
}

func (r *Region) ReadAt(b []byte, off int64) (int, error) {
	if off < 0 || off > int64(len(r.buf)) {
		return 0, errors.New("testhelper: Region read out of range")
	}
	n := copy(b, r.buf[off:])
	var err error
	if n < len(b) {
		err = io.EOF
	}
	return n, err
}

func (r *Region) WriteAt(b []byte, off int64) (int, error) {
	if off < 0 || off+int64(len(b)) > int64(len(r.buf)) {
		return 0, errors.New("testhelper: Region write out of range")
	}
	return copy(r.buf[off:], b), nil
}

func (r *Region) Seek(offset int64, whence int) (int64, error) {
	var newPos int64
	switch whence {
	case io.SeekStart:
		newPos = offset
	case io.SeekCurrent:
		newPos = r.pos + offset
	case io.SeekEnd:
		newPos = int64(len(r.buf)) + offset
	default:
		return r.pos, errors.New("testhelper: Region seek: invalid whence")
	}
	if newPos < 0 {
		return r.pos, errors.New("testhelper: Region seek before start")
	}
	r.pos = newPos
	return r.pos, nil
}

func (r *Region) Close() error { return nil }

// Sys has no *os.File to offer; a Region lives entirely in memory.
func (r *Region) Sys() (*os.File, error) { return nil, backend.ErrNotSuitable }

func (r *Region) Writable() (backend.WritableFile, error) { return r, nil }

var _ backend.Storage = (*Region)(nil)
