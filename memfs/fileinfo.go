package memfs

import (
	"io/fs"
	"os"
	"time"
)

// fileInfo implements os.FileInfo (an alias of io/fs.FileInfo) for a single
// stat'd node. name is carried separately from the inode since the inode
// itself has no notion of its own name — only the directory entry pointing
// at it does.
type fileInfo struct {
	name string
	in   inode
	node nodeID
}

func (fi fileInfo) Name() string { return fi.name }

// Size reports bytes for a regular file and size·sizeof(direntry) for a
// directory, since a directory's inode size field counts entries.
func (fi fileInfo) Size() int64 {
	if fi.in.isDir() {
		return int64(fi.in.size) * direntrySize
	}
	return int64(fi.in.size)
}

func (fi fileInfo) Mode() os.FileMode {
	perm := os.FileMode(fi.in.mode & 0o777)
	if fi.in.isDir() {
		return perm | os.ModeDir
	}
	return perm
}

func (fi fileInfo) ModTime() time.Time { return fi.in.mtime }

func (fi fileInfo) IsDir() bool { return fi.in.isDir() }

func (fi fileInfo) Sys() any {
	return statInfo{Node: int64(fi.node), Nlink: fi.in.nlinks, Atime: fi.in.atime, Ctime: fi.in.ctime}
}

// statInfo is the extra metadata available through fileInfo.Sys() that
// os.FileInfo has no first-class field for.
type statInfo struct {
	Node  int64
	Nlink uint32
	Atime time.Time
	Ctime time.Time
}

// dirEntry implements fs.DirEntry, the type io/fs.ReadDirFile.ReadDir
// returns, by wrapping a fileInfo.
type dirEntry struct{ fi fileInfo }

func (d dirEntry) Name() string               { return d.fi.name }
func (d dirEntry) IsDir() bool                { return d.fi.IsDir() }
func (d dirEntry) Type() fs.FileMode          { return d.fi.Mode().Type() }
func (d dirEntry) Info() (fs.FileInfo, error) { return d.fi, nil }
