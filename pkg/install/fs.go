package install

import (
	"os"

	"github.com/uniquestream/packagekit/pkg/storage"
)

// FS is the set of filesystem operations a transaction performs against the
// plugins directory. Tests substitute it to fail a specific step.
type FS interface {
	Exists(path string) bool
	Rename(oldpath, newpath string) error
	MkdirAll(path string, perm os.FileMode) error
	CopyFile(src, dst string) error
	RemoveAll(path string) error
}

// OSFS implements FS on the local disk.
type OSFS struct{}

func (OSFS) Exists(path string) bool {
	return storage.PathExists(path)
}

func (OSFS) Rename(oldpath, newpath string) error {
	return os.Rename(oldpath, newpath)
}

func (OSFS) MkdirAll(path string, perm os.FileMode) error {
	return storage.EnsureDir(path, perm)
}

func (OSFS) CopyFile(src, dst string) error {
	return storage.CopyFile(src, dst)
}

func (OSFS) RemoveAll(path string) error {
	return storage.SafeRemoveAll(path)
}
