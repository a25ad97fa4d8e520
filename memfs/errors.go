package memfs

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced by every regionfs operation. Callers should use
// errors.Is against these rather than comparing strings; each corresponds
// to a POSIX errno that a FUSE or 9P front end would translate back to the
// matching EXXX value.
var (
	ErrFault    = errors.New("memfs: bad address")
	ErrNotExist = errors.New("memfs: no such file or directory")
	ErrNotDir   = errors.New("memfs: not a directory")
	ErrIsDir    = errors.New("memfs: is a directory")
	ErrNoSpace  = errors.New("memfs: no space left on device")
	ErrExist    = errors.New("memfs: file exists")
	ErrNotEmpty = errors.New("memfs: directory not empty")
	ErrAccess   = errors.New("memfs: permission denied")
	ErrPerm     = errors.New("memfs: operation not permitted")
	ErrInvalid  = errors.New("memfs: invalid argument")
	ErrNoSys    = errors.New("memfs: function not implemented")
)

// wrapErr attaches the failing operation and path to one of the sentinels
// above. Callers elsewhere in the tree should still compare with errors.Is
// against the bare sentinel.
func wrapErr(op, path string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s %s: %w", op, path, err)
}
