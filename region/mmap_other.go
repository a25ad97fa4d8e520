//go:build !linux && !darwin && !freebsd && !netbsd && !openbsd

package region

import (
	"fmt"
	"io"
	"os"
)

// MapAnon obtains an anonymous, purely in-process region on platforms
// without an anonymous mmap facility available through golang.org/x/sys.
// The semantics are identical to the unix implementation: the region reads
// as all zero bytes and has no backing file.
func MapAnon(size int64) (*Region, func() error, error) {
	r := New(make([]byte, size))
	return r, func() error { return nil }, nil
}

// MapFile emulates a shared mapping by reading the whole backing file into
// memory and writing it back on unmap. This loses the "same bytes reappear
// at a new virtual address" property of a true mmap, but preserves the
// thing regionfs actually depends on: the byte contents round-trip through
// the backing file unchanged.
func MapFile(f *os.File) (*Region, func() error, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, nil, fmt.Errorf("region: stat backing file: %w", err)
	}
	size := info.Size()
	if size == 0 {
		return nil, nil, fmt.Errorf("region: backing file %s is empty", f.Name())
	}
	b := make([]byte, size)
	if _, err := f.ReadAt(b, 0); err != nil && err != io.EOF {
		return nil, nil, fmt.Errorf("region: read %s: %w", f.Name(), err)
	}
	r := New(b)
	unmap := func() error {
		_, err := f.WriteAt(r.Bytes(), 0)
		return err
	}
	return r, unmap, nil
}
