package memfs

import "strings"

// truncateName mirrors the original filesystem's silent-truncation
// behavior: a path component longer than nameLen-1 bytes is cut down
// rather than rejected, so two distinct overlong names can collide.
func truncateName(s string) string {
	if len(s) > nameLen-1 {
		return s[:nameLen-1]
	}
	return s
}

func splitPath(path string) ([]string, error) {
	if path == "" || path[0] != '/' {
		return nil, ErrInvalid
	}
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil, nil
	}
	parts := strings.Split(trimmed, "/")
	for i, p := range parts {
		parts[i] = truncateName(p)
	}
	return parts, nil
}

// resolve walks path from the root directory to the node it names.
func (fs *FileSystem) resolve(h header, path string) (nodeID, error) {
	parts, err := splitPath(path)
	if err != nil {
		return noNode, err
	}
	dir := rootNode
	for _, name := range parts {
		in := readInode(fs.r, h, dir)
		if !in.isDir() {
			return noNode, ErrNotDir
		}
		node, _, ok := fs.dirLookup(h, dir, name)
		if !ok {
			return noNode, ErrNotExist
		}
		dir = node
	}
	return dir, nil
}

// resolveParent walks path to its final component's parent directory,
// returning that directory's node and the (already-truncated) final
// component name, without requiring the component itself to exist.
func (fs *FileSystem) resolveParent(h header, path string) (nodeID, string, error) {
	parts, err := splitPath(path)
	if err != nil {
		return noNode, "", err
	}
	if len(parts) == 0 {
		return noNode, "", ErrInvalid
	}
	dir := rootNode
	for _, name := range parts[:len(parts)-1] {
		in := readInode(fs.r, h, dir)
		if !in.isDir() {
			return noNode, "", ErrNotDir
		}
		node, _, ok := fs.dirLookup(h, dir, name)
		if !ok {
			return noNode, "", ErrNotExist
		}
		dir = node
	}
	in := readInode(fs.r, h, dir)
	if !in.isDir() {
		return noNode, "", ErrNotDir
	}
	return dir, parts[len(parts)-1], nil
}
