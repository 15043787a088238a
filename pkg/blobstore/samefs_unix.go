//go:build !windows

package blobstore

import "syscall"

// SameFilesystem reports whether dir and the store's directory live on the
// same filesystem, which PutFromStaged's os.Rename requires. Ported from the
// teacher's posix_unix.go GetQuota, which uses the same syscall.Statfs call
// to inspect a mount from Go.
func (s *Store) SameFilesystem(dir string) (bool, error) {
	var a, b syscall.Statfs_t
	if err := syscall.Statfs(s.dir, &a); err != nil {
		return false, err
	}
	if err := syscall.Statfs(dir, &b); err != nil {
		return false, err
	}
	return a.Fsid == b.Fsid, nil
}
