// Package regionfs mounts the filesystem implemented in package memfs onto
// a byte region obtained either from an anonymous memory mapping or from a
// backing file: acquire the bytes, then hand them to the one filesystem
// implementation that addresses them. There is no partition table step in
// between; the region the host gives us is the filesystem, which is the
// point of keeping every cross-reference region-relative.
package regionfs

import (
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	times "gopkg.in/djherbis/times.v1"

	"github.com/flatregion/regionfs/backend"
	"github.com/flatregion/regionfs/backend/file"
	"github.com/flatregion/regionfs/memfs"
	"github.com/flatregion/regionfs/region"
	"github.com/flatregion/regionfs/util/timestamp"
)

// Log is the package-level logger every region mount/init, short-allocation
// warning, and rename-rollback note goes through. Embedders that route logs
// elsewhere can swap it before mounting anything.
var Log = logrus.StandardLogger()

// mountLog tags every log line for one mounted region with a random
// correlation ID, so interleaved log output from several mounted regions in
// the same process can be told apart, the way a request ID tags a trace.
func mountLog() *logrus.Entry {
	return Log.WithField("region", uuid.New().String())
}

// Unmount tears down a mounted region: for a file-backed region this
// flushes pending writes to the backing file before releasing the mapping;
// for an anonymous region it simply releases the mapping.
type Unmount func() error

// CreateAnon allocates a fresh anonymous region of size bytes, formats it
// as a regionfs filesystem, and returns the mounted filesystem. Closing the
// returned Unmount discards the region; there is no backing file to flush
// it to.
func CreateAnon(size int64) (*memfs.FileSystem, Unmount, error) {
	r, unmap, err := region.MapAnon(size)
	if err != nil {
		return nil, nil, fmt.Errorf("regionfs: create anonymous region: %w", err)
	}
	log := mountLog()
	if err := memfs.Format(r); err != nil {
		_ = unmap()
		return nil, nil, fmt.Errorf("regionfs: format anonymous region: %w", err)
	}
	log.WithField("bytes", size).Info("regionfs: formatted anonymous region")
	return memfs.New(r, log), Unmount(unmap), nil
}

// Create makes a new backing file of size bytes at path, maps it, and
// formats it as a regionfs filesystem. path must not already exist, the
// same precondition backend/file.CreateFromPath enforces for disk images.
func Create(path string, size int64) (*memfs.FileSystem, Unmount, error) {
	storage, err := file.CreateFromPath(path, size)
	if err != nil {
		return nil, nil, fmt.Errorf("regionfs: create backing file %s: %w", path, err)
	}
	osFile, err := storage.Sys()
	if err != nil {
		return nil, nil, fmt.Errorf("regionfs: backing file %s has no os.File handle: %w", path, err)
	}
	r, unmap, err := region.MapFile(osFile)
	if err != nil {
		return nil, nil, fmt.Errorf("regionfs: map backing file %s: %w", path, err)
	}
	log := mountLog()
	if err := memfs.Format(r); err != nil {
		_ = unmap()
		return nil, nil, fmt.Errorf("regionfs: format backing file %s: %w", path, err)
	}
	log.WithFields(logrus.Fields{"path": path, "bytes": size}).Info("regionfs: formatted backing file")
	return memfs.New(r, log), Unmount(unmap), nil
}

// MountStorage mounts a regionfs filesystem held in any backend.Storage —
// including a slice of a larger image via backend.Sub — by staging the
// storage's bytes into an anonymous region. size is the storage window's
// length in bytes. The returned Unmount writes the whole region back through
// storage.Writable before releasing it, so mutations survive to the next
// mount the same way a shared file mapping's do.
func MountStorage(storage backend.Storage, size int64) (*memfs.FileSystem, Unmount, error) {
	r, unmap, err := region.MapAnon(size)
	if err != nil {
		return nil, nil, fmt.Errorf("regionfs: stage region of %d bytes: %w", size, err)
	}
	if _, err := storage.ReadAt(r.Bytes(), 0); err != nil && !errors.Is(err, io.EOF) {
		_ = unmap()
		return nil, nil, fmt.Errorf("regionfs: read storage into region: %w", err)
	}
	log := mountLog()
	if err := memfs.Format(r); err != nil {
		_ = unmap()
		return nil, nil, fmt.Errorf("regionfs: format staged region: %w", err)
	}
	log.WithField("bytes", size).Info("regionfs: mounted staged storage")
	unmount := func() error {
		w, werr := storage.Writable()
		if werr != nil {
			_ = unmap()
			return fmt.Errorf("regionfs: storage not writable on unmount: %w", werr)
		}
		if _, werr := w.WriteAt(r.Bytes(), 0); werr != nil {
			_ = unmap()
			return fmt.Errorf("regionfs: flush region to storage: %w", werr)
		}
		return unmap()
	}
	return memfs.New(r, log), unmount, nil
}

// Open maps an existing backing file at path and mounts the regionfs
// filesystem already stored in it. Since memfs.FormatAt is idempotent on an
// already-initialized region, a pre-sized but blank (all-zero) backing file
// is formatted in place rather than rejected — seeded with the file's own
// birth time where the host platform exposes one, instead of the moment it
// happened to be mapped. A zero-length file is rejected by the mapping
// layer: the region's size is the file's size, and a zero-length file has
// no room for even a header.
func Open(path string) (*memfs.FileSystem, Unmount, error) {
	storage, err := file.OpenFromPath(path, false)
	if err != nil {
		return nil, nil, fmt.Errorf("regionfs: open backing file %s: %w", path, err)
	}
	osFile, err := storage.Sys()
	if err != nil {
		return nil, nil, fmt.Errorf("regionfs: backing file %s has no os.File handle: %w", path, err)
	}
	r, unmap, err := region.MapFile(osFile)
	if err != nil {
		return nil, nil, fmt.Errorf("regionfs: map backing file %s: %w", path, err)
	}
	log := mountLog()
	rootTime := timestamp.GetTime()
	if ts, terr := times.Stat(path); terr == nil && ts.HasBirthTime() {
		rootTime = ts.BirthTime()
	}
	formatted, err := memfs.FormatAt(r, rootTime)
	if err != nil {
		_ = unmap()
		return nil, nil, fmt.Errorf("regionfs: format backing file %s: %w", path, err)
	}
	if formatted {
		log.WithField("path", path).Info("regionfs: formatted previously-empty backing file")
	}
	log.WithField("path", path).Info("regionfs: mounted backing file")
	return memfs.New(r, log), Unmount(unmap), nil
}
