// Package realfs puts disk drives and native opens on the host filesystem.
package realfs

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/acolita/basic-fileio/internal/ports"
)

// FS is the host filesystem. Names are host paths; relative ones resolve
// against the process working directory.
type FS struct{}

// New returns the host filesystem.
func New() *FS { return &FS{} }

func (FS) OpenFile(name string, flag int, perm fs.FileMode) (ports.File, error) {
	file, err := os.OpenFile(name, flag, perm)
	if err != nil {
		return nil, err
	}
	return file, nil
}

func (FS) ReadFile(name string) ([]byte, error) { return os.ReadFile(name) }

// WriteFile creates missing parent directories, like the in-memory
// filesystem, so that settings can be saved to a fresh config directory.
func (FS) WriteFile(name string, data []byte, perm fs.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(name), 0o755); err != nil {
		return err
	}
	return os.WriteFile(name, data, perm)
}

func (FS) Stat(name string) (fs.FileInfo, error) { return os.Stat(name) }

// ReadDir lists name in the host's directory order, which FILES shows
// unsorted as DOS does. Entries removed while listing are skipped.
func (FS) ReadDir(name string) ([]fs.FileInfo, error) {
	dir, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer dir.Close()
	entries, err := dir.ReadDir(-1)
	if err != nil {
		return nil, err
	}
	infos := make([]fs.FileInfo, 0, len(entries))
	for _, e := range entries {
		info, err := e.Info()
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	return infos, nil
}

func (FS) Mkdir(name string, perm fs.FileMode) error { return os.Mkdir(name, perm) }

func (FS) Remove(name string) error { return os.Remove(name) }

func (FS) Rename(oldpath, newpath string) error { return os.Rename(oldpath, newpath) }

// Join uses the host separator.
func (FS) Join(elem ...string) string { return filepath.Join(elem...) }

func (FS) UserHomeDir() (string, error) { return os.UserHomeDir() }

func (FS) Getenv(key string) string { return os.Getenv(key) }

var _ ports.FileSystem = (*FS)(nil)
