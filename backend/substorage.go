package backend

import (
	"io"
	"io/fs"
	"os"
)

// SubStorage exposes a fixed window of a larger Storage as a Storage of its
// own: byte 0 of the window is byte offset of the underlying storage.
// regionfs mounts one when the host's region is a slice of a bigger image
// rather than a whole file or device.
type SubStorage struct {
	underlying Storage
	offset     int64
	size       int64
}

// Sub returns the window of u starting at offset and running for size bytes.
func Sub(u Storage, offset, size int64) Storage {
	return SubStorage{
		underlying: u,
		offset:     offset,
		size:       size,
	}
}

func (s SubStorage) Stat() (fs.FileInfo, error) {
	return s.underlying.Stat()
}

func (s SubStorage) Read(b []byte) (int, error) {
	return s.underlying.Read(b)
}

func (s SubStorage) Close() error {
	return s.underlying.Close()
}

func (s SubStorage) ReadAt(p []byte, off int64) (n int, err error) {
	return s.underlying.ReadAt(p, s.offset+off)
}

func (s SubStorage) Seek(offset int64, whence int) (int64, error) {
	return seekWindow(s.underlying, s.offset, s.size, offset, whence)
}

func (s SubStorage) Sys() (*os.File, error) {
	return s.underlying.Sys()
}

func (s SubStorage) Writable() (WritableFile, error) {
	uw, err := s.underlying.Writable()
	if err != nil {
		return nil, err
	}
	return subWritable{
		underlying: uw,
		offset:     s.offset,
		size:       s.size,
	}, nil
}

// subWritable is the writable view of a SubStorage window, with the same
// offset translation applied to writes.
type subWritable struct {
	underlying WritableFile
	offset     int64
	size       int64
}

func (sw subWritable) Stat() (fs.FileInfo, error) {
	return sw.underlying.Stat()
}

func (sw subWritable) Read(b []byte) (int, error) {
	return sw.underlying.Read(b)
}

func (sw subWritable) Close() error {
	return sw.underlying.Close()
}

func (sw subWritable) ReadAt(p []byte, off int64) (n int, err error) {
	return sw.underlying.ReadAt(p, sw.offset+off)
}

func (sw subWritable) Seek(offset int64, whence int) (int64, error) {
	return seekWindow(sw.underlying, sw.offset, sw.size, offset, whence)
}

func (sw subWritable) WriteAt(p []byte, off int64) (n int, err error) {
	return sw.underlying.WriteAt(p, sw.offset+off)
}

// seekWindow seeks the underlying storage in window-relative terms: the
// window's start and end stand in for the storage's own, and the position
// handed back is window-relative again.
func seekWindow(u io.Seeker, base, size, offset int64, whence int) (int64, error) {
	var (
		pos int64
		err error
	)

	switch whence {
	case io.SeekStart:
		pos, err = u.Seek(base+offset, io.SeekStart)
	case io.SeekCurrent:
		pos, err = u.Seek(offset, io.SeekCurrent)
	case io.SeekEnd:
		pos, err = u.Seek(base+size+offset, io.SeekStart)
	default:
		return -1, ErrNotSuitable
	}

	if err != nil {
		return -1, err
	}

	return pos - base, nil
}
