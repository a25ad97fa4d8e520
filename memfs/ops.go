package memfs

import (
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/flatregion/regionfs/filesystem"
	"github.com/flatregion/regionfs/region"
)

// filesystem.FileSystem interface guard, the same pattern backend/file/file.go
// uses for backend.Storage.
var _ filesystem.FileSystem = (*FileSystem)(nil)

// Statfs is the "statfs" result: block size, total and
// free block counts, and the longest name component this filesystem can
// store.
type Statfs struct {
	BlockSize  uint64
	Blocks     uint64
	FreeBlocks uint64
	MaxName    int
}

// Statfs reports the region's block accounting, the way a mounted device reports its own geometry.
func (fs *FileSystem) Statfs() Statfs {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	h := fs.header()
	return Statfs{
		BlockSize:  region.BlockSize,
		Blocks:     h.totalBlocks,
		FreeBlocks: h.freeBlocks,
		MaxName:    nameLen - 1,
	}
}

// Type satisfies filesystem.FileSystem.
func (fs *FileSystem) Type() filesystem.Type { return filesystem.TypeMemFS }

// Label and SetLabel satisfy filesystem.FileSystem. regionfs has no spare
// header field for a volume label, so it carries none.
func (fs *FileSystem) Label() string { return "" }

func (fs *FileSystem) SetLabel(string) error { return filesystem.ErrNotSupported }

// Link, Symlink, Chmod and Chown satisfy filesystem.FileSystem but surface
// filesystem.ErrNotSupported: regionfs stores no symlinks, no hard links
// beyond the single parent link, and no permission bits beyond the fixed
// 0755/type split.

//nolint:revive // parameters unused, kept named to document the call shape
func (fs *FileSystem) Link(oldpath, newpath string) error { return filesystem.ErrNotSupported }

//nolint:revive // parameters unused, kept named to document the call shape
func (fs *FileSystem) Symlink(oldpath, newpath string) error { return filesystem.ErrNotSupported }

//nolint:revive // parameters unused, kept named to document the call shape
func (fs *FileSystem) Chmod(name string, mode os.FileMode) error { return filesystem.ErrNotSupported }

//nolint:revive // parameters unused, kept named to document the call shape
func (fs *FileSystem) Chown(name string, uid, gid int) error { return filesystem.ErrNotSupported }

// Chtimes is the utimens-style timestamp update. Only atime/mtime are
// updatable; ctime tracks structural changes the filesystem makes itself
// and is not settable from outside.
//
//nolint:revive // ctime kept named to document the signature even though utimens never writes it
func (fs *FileSystem) Chtimes(path string, ctime, atime, mtime time.Time) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	h := fs.header()
	n, err := fs.resolve(h, path)
	if err != nil {
		return wrapErr("utimens", path, err)
	}
	in := readInode(fs.r, h, n)
	in.atime = atime
	in.mtime = mtime
	writeInode(fs.r, h, n, in)
	return nil
}

// Stat returns the named entry's metadata.
func (fs *FileSystem) Stat(path string) (os.FileInfo, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	h := fs.header()
	n, err := fs.resolve(h, path)
	if err != nil {
		return nil, wrapErr("stat", path, err)
	}
	in := readInode(fs.r, h, n)
	return fileInfo{name: baseName(path), in: in, node: n}, nil
}

func baseName(path string) string {
	trimmed := strings.TrimRight(path, "/")
	if idx := strings.LastIndexByte(trimmed, '/'); idx >= 0 {
		return trimmed[idx+1:]
	}
	return trimmed
}

// ReadDir lists the entries of a directory.
func (fs *FileSystem) ReadDir(pathname string) ([]os.FileInfo, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	h := fs.header()
	n, err := fs.resolve(h, pathname)
	if err != nil {
		return nil, wrapErr("readdir", pathname, err)
	}
	in := readInode(fs.r, h, n)
	if !in.isDir() {
		return nil, wrapErr("readdir", pathname, ErrNotDir)
	}
	entries := fs.dirReadAll(h, n)
	out := make([]os.FileInfo, 0, len(entries))
	for _, e := range entries {
		child := readInode(fs.r, h, e.node)
		out = append(out, fileInfo{name: e.name, in: child, node: e.node})
	}
	return out, nil
}

// createLocked implements the shared body of mknod/mkdir: fail if name
// already exists under parent, allocate a node, set its mode and
// timestamps, then link it into parent via dirInsert (which is what
// actually sets nlinks to 1).
func (fs *FileSystem) createLocked(h header, parent nodeID, name string, isDir bool) (nodeID, error) {
	if _, _, exists := fs.dirLookup(h, parent, name); exists {
		return noNode, ErrExist
	}
	n, ok := fs.newNode(h)
	if !ok {
		return noNode, ErrNoSpace
	}
	now := fs.now()
	in := readInode(fs.r, h, n)
	if isDir {
		in.mode = modeDirectory
	} else {
		in.mode = modeRegular
	}
	in.atime = now
	in.mtime = now
	in.ctime = now
	writeInode(fs.r, h, n, in)

	if err := fs.dirInsert(h, parent, name, n); err != nil {
		in.mode = 0
		writeInode(fs.r, h, n, in)
		return noNode, err
	}
	return n, nil
}

// Mkdir creates a new directory.
func (fs *FileSystem) Mkdir(pathname string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	h := fs.header()
	parent, name, err := fs.resolveParent(h, pathname)
	if err != nil {
		return wrapErr("mkdir", pathname, err)
	}
	_, err = fs.createLocked(h, parent, name, true)
	return wrapErr("mkdir", pathname, err)
}

// Mknod creates a new regular file node. regionfs has no device-file
// concept beyond plain regular files, so mode/dev are accepted for
// interface compliance and ignored: every mknod'd node is a regular file
// with the fixed 0755 bits.
//
//nolint:revive // mode/dev unused, kept named to document the call shape
func (fs *FileSystem) Mknod(pathname string, mode uint32, dev int) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	h := fs.header()
	parent, name, err := fs.resolveParent(h, pathname)
	if err != nil {
		return wrapErr("mknod", pathname, err)
	}
	_, err = fs.createLocked(h, parent, name, false)
	return wrapErr("mknod", pathname, err)
}

// removeEntry deletes name from dir, given that it is already known to
// refer to node. It refuses to remove a non-empty directory, then releases
// node's data once its link count reaches zero. Shared by Unlink, Rmdir,
// Remove, and Rename's target-overwrite step.
func (fs *FileSystem) removeEntry(h header, dir nodeID, name string, node nodeID, isDir bool) error {
	_, idx, ok := fs.dirLookup(h, dir, name)
	if !ok {
		return ErrNotExist
	}
	if isDir {
		in := readInode(fs.r, h, node)
		if in.size > 0 {
			return ErrNotEmpty
		}
	}
	fs.dirRemoveAt(h, dir, idx)
	h = fs.header()
	in := readInode(fs.r, h, node)
	if in.nlinks == 0 && !in.isDir() {
		// A directory only gets here empty, already shrunk to zero
		// blocks by entry removal; a file may still hold data.
		return fs.truncate(node, 0)
	}
	return nil
}

// Unlink removes a directory entry for a non-directory.
func (fs *FileSystem) Unlink(path string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	h := fs.header()
	parent, name, err := fs.resolveParent(h, path)
	if err != nil {
		return wrapErr("unlink", path, err)
	}
	node, _, ok := fs.dirLookup(h, parent, name)
	if !ok {
		return wrapErr("unlink", path, ErrNotExist)
	}
	if readInode(fs.r, h, node).isDir() {
		return wrapErr("unlink", path, ErrIsDir)
	}
	return wrapErr("unlink", path, fs.removeEntry(h, parent, name, node, false))
}

// Rmdir removes a directory entry for an empty directory, but only for empty
// directories.
func (fs *FileSystem) Rmdir(path string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	h := fs.header()
	parent, name, err := fs.resolveParent(h, path)
	if err != nil {
		return wrapErr("rmdir", path, err)
	}
	node, _, ok := fs.dirLookup(h, parent, name)
	if !ok {
		return wrapErr("rmdir", path, ErrNotExist)
	}
	if !readInode(fs.r, h, node).isDir() {
		return wrapErr("rmdir", path, ErrNotDir)
	}
	return wrapErr("rmdir", path, fs.removeEntry(h, parent, name, node, true))
}

// Remove satisfies filesystem.FileSystem by dispatching to Unlink or Rmdir
// based on what path currently names, mirroring os.Remove.
func (fs *FileSystem) Remove(path string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	h := fs.header()
	parent, name, err := fs.resolveParent(h, path)
	if err != nil {
		return wrapErr("remove", path, err)
	}
	node, _, ok := fs.dirLookup(h, parent, name)
	if !ok {
		return wrapErr("remove", path, ErrNotExist)
	}
	isDir := readInode(fs.r, h, node).isDir()
	return wrapErr("remove", path, fs.removeEntry(h, parent, name, node, isDir))
}

// Rename moves or renames an entry. Same-parent renames go through
// dirmod's rename mode directly; cross-parent renames insert at the
// destination and then remove the source, undoing the insert and failing
// EACCES if the remove step can no longer find the source entry. A target that already exists is removed first unless it
// is a non-empty directory, which fails ENOTEMPTY.
func (fs *FileSystem) Rename(oldpath, newpath string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	h := fs.header()
	oldParent, oldName, err := fs.resolveParent(h, oldpath)
	if err != nil {
		return wrapErr("rename", oldpath, err)
	}
	newParent, newName, err := fs.resolveParent(h, newpath)
	if err != nil {
		return wrapErr("rename", newpath, err)
	}
	node, _, ok := fs.dirLookup(h, oldParent, oldName)
	if !ok {
		return wrapErr("rename", oldpath, ErrNotExist)
	}
	if oldParent == newParent && oldName == newName {
		return nil
	}

	if target, _, exists := fs.dirLookup(h, newParent, newName); exists && target != node {
		isDir := readInode(fs.r, h, target).isDir()
		if err := fs.removeEntry(h, newParent, newName, target, isDir); err != nil {
			return wrapErr("rename", newpath, err)
		}
		h = fs.header()
	}

	if oldParent == newParent {
		_, err := fs.dirRename(h, oldParent, oldName, newName)
		return wrapErr("rename", oldpath, err)
	}

	if err := fs.dirInsert(h, newParent, newName, node); err != nil {
		return wrapErr("rename", newpath, err)
	}
	h = fs.header()
	_, idx, ok := fs.dirLookup(h, oldParent, oldName)
	if !ok {
		// Undo the insert so the entry does not end up duplicated; the
		// removal also gives back the link count the insert took.
		if _, dstIdx, found := fs.dirLookup(h, newParent, newName); found {
			fs.dirRemoveAt(h, newParent, dstIdx)
		}
		fs.log.WithFields(logrus.Fields{"old": oldpath, "new": newpath}).
			Warn("memfs: rename source vanished after cross-parent insert, undoing the insert")
		return wrapErr("rename", oldpath, ErrAccess)
	}
	fs.dirRemoveAt(h, oldParent, idx)
	return nil
}

// Truncate resizes a file, zero-filling any newly grown tail.
func (fs *FileSystem) Truncate(path string, size uint64) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	h := fs.header()
	n, err := fs.resolve(h, path)
	if err != nil {
		return wrapErr("truncate", path, err)
	}
	if fs.nodeValid(h, n) != nodeLinked {
		return wrapErr("truncate", path, ErrNotExist)
	}
	in := readInode(fs.r, h, n)
	if in.isDir() {
		return wrapErr("truncate", path, ErrPerm)
	}
	return wrapErr("truncate", path, fs.truncate(n, size))
}

// OpenFile opens or creates a file handle, plus the host-facing os.OpenFile
// flag handling (O_CREATE/O_EXCL/O_TRUNC/O_APPEND) that sync.CopyFileSystem
// and any other caller going through the filesystem.FileSystem interface
// relies on.
func (fs *FileSystem) OpenFile(pathname string, flag int) (filesystem.File, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	h := fs.header()
	if parts, err := splitPath(pathname); err == nil && len(parts) == 0 {
		// The root directory has no parent entry to resolve; hand out a
		// listing handle directly so Open(".") through the io/fs adapter
		// can walk the filesystem from its top.
		if flag&(os.O_WRONLY|os.O_RDWR) != 0 {
			return nil, wrapErr("open", pathname, ErrIsDir)
		}
		return &file{fs: fs, node: rootNode, name: "/"}, nil
	}
	parent, name, perr := fs.resolveParent(h, pathname)
	var (
		node   nodeID
		exists bool
	)
	if perr == nil {
		node, _, exists = fs.dirLookup(h, parent, name)
	}

	switch {
	case exists:
		if flag&os.O_CREATE != 0 && flag&os.O_EXCL != 0 {
			return nil, wrapErr("open", pathname, ErrExist)
		}
	case flag&os.O_CREATE != 0:
		if perr != nil {
			return nil, wrapErr("open", pathname, perr)
		}
		var err error
		node, err = fs.createLocked(h, parent, name, false)
		if err != nil {
			return nil, wrapErr("open", pathname, err)
		}
		h = fs.header()
	default:
		if perr != nil {
			return nil, wrapErr("open", pathname, perr)
		}
		return nil, wrapErr("open", pathname, ErrNotExist)
	}

	in := readInode(fs.r, h, node)
	if in.isDir() && flag&(os.O_WRONLY|os.O_RDWR) != 0 {
		return nil, wrapErr("open", pathname, ErrIsDir)
	}
	if flag&os.O_TRUNC != 0 && !in.isDir() {
		if err := fs.truncate(node, 0); err != nil {
			return nil, wrapErr("open", pathname, err)
		}
	}

	f := &file{fs: fs, node: node, name: name}
	if flag&os.O_APPEND != 0 {
		in = readInode(fs.r, fs.header(), node)
		f.offset = int64(in.size)
	}
	return f, nil
}
