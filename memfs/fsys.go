package memfs

import (
	iofs "io/fs"
)

var _ iofs.FS = (*FileSystem)(nil)

// Open satisfies io/fs.FS so a mounted FileSystem can be walked with
// fs.WalkDir, read with fs.ReadFile, or handed to sync.CompareFS as one
// side of a round trip. io/fs paths never carry a leading slash and use
// "." for the root, so they are translated to regionfs's "/"-rooted paths
// before resolving.
func (fs *FileSystem) Open(name string) (iofs.File, error) {
	if !iofs.ValidPath(name) {
		return nil, &iofs.PathError{Op: "open", Path: name, Err: iofs.ErrInvalid}
	}
	f, err := fs.OpenFile(toRegionPath(name), 0)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// toRegionPath converts an io/fs-style relative path ("." for the root,
// no leading slash) into the "/"-rooted absolute path memfs resolves.
func toRegionPath(name string) string {
	if name == "." {
		return "/"
	}
	return "/" + name
}
