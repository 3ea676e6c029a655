// Package ports defines interfaces for external dependencies (Ports and Adapters pattern).
package ports

import (
	"io"
	"io/fs"
)

// File is an open host file. *os.File and *sftp.File both satisfy it.
type File interface {
	io.Reader
	io.Writer
	io.Seeker
	io.ReaderAt
	io.WriterAt
	io.Closer

	// Stat returns file info for the open file.
	Stat() (fs.FileInfo, error)
}

// FileSystem abstracts the host filesystem behind a disk drive.
type FileSystem interface {
	// OpenFile opens the named file with os.O_* flags.
	OpenFile(name string, flag int, perm fs.FileMode) (File, error)

	// ReadFile reads the named file and returns its contents.
	ReadFile(name string) ([]byte, error)

	// WriteFile writes data to the named file, creating it if necessary.
	WriteFile(name string, data []byte, perm fs.FileMode) error

	// Stat returns file info for the named file.
	Stat(name string) (fs.FileInfo, error)

	// ReadDir returns the entries of the named directory.
	ReadDir(name string) ([]fs.FileInfo, error)

	// Mkdir creates a single directory.
	Mkdir(name string, perm fs.FileMode) error

	// Remove removes the named file or empty directory.
	Remove(name string) error

	// Rename renames (moves) oldpath to newpath.
	Rename(oldpath, newpath string) error

	// Join joins path elements with the filesystem's separator.
	Join(elem ...string) string

	// UserHomeDir returns the current user's home directory.
	UserHomeDir() (string, error)

	// Getenv retrieves the value of the environment variable named by the key.
	Getenv(key string) string
}
