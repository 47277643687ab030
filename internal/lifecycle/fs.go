package lifecycle

import (
	"io/fs"
	"os"
)

// FS is the filesystem surface used to reset profiles.
type FS interface {
	Stat(name string) (fs.FileInfo, error)
	RemoveAll(path string) error
	Rename(oldpath, newpath string) error
}

// OSFS implements FS with package os.
type OSFS struct{}

func (OSFS) Stat(name string) (fs.FileInfo, error) { return os.Stat(name) }
func (OSFS) RemoveAll(path string) error           { return os.RemoveAll(path) }
func (OSFS) Rename(oldpath, newpath string) error  { return os.Rename(oldpath, newpath) }
