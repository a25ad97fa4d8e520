//go:build linux || darwin || freebsd || netbsd || openbsd

package region

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// mapped wraps a memory-mapped Region together with however it needs to be
// torn down: anonymous mappings are simply unmapped, file-backed mappings
// are also flushed to the backing file first so the host sees every write
// regionfs made.
type mapped struct {
	*Region
	file *os.File
}

// MapAnon obtains an anonymous memory mapping of the given size. The
// region reads as all zero bytes, the way a freshly acquired mapping should read for a fresh
// filesystem.
func MapAnon(size int64) (*Region, func() error, error) {
	b, err := unix.Mmap(-1, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, nil, fmt.Errorf("region: anonymous mmap of %d bytes: %w", size, err)
	}
	r := New(b)
	unmap := func() error {
		return unix.Munmap(b)
	}
	return r, unmap, nil
}

// MapFile obtains a shared memory mapping of an already-sized backing
// file. When the host later unmaps and remaps the same file, the same
// bytes reappear at whatever virtual address the new mapping lands on,
// which is exactly why regionfs never stores a native pointer.
func MapFile(f *os.File) (*Region, func() error, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, nil, fmt.Errorf("region: stat backing file: %w", err)
	}
	size := info.Size()
	if size == 0 {
		return nil, nil, fmt.Errorf("region: backing file %s is empty", f.Name())
	}
	b, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, nil, fmt.Errorf("region: mmap of %s: %w", f.Name(), err)
	}
	r := New(b)
	unmap := func() error {
		if err := unix.Msync(b, unix.MS_SYNC); err != nil {
			_ = unix.Munmap(b)
			return fmt.Errorf("region: msync %s: %w", f.Name(), err)
		}
		return unix.Munmap(b)
	}
	return r, unmap, nil
}
