package filesystem

import (
	"io"
	"os"

	"github.com/buildbarn/bb-compiler-store/pkg/filesystem/path"
)

// CreationMode specifies whether and how Directory.Open*() should
// create new files.
type CreationMode struct {
	flags       int
	permissions os.FileMode
}

// DontCreate indicates that opening should fail in case the target
// file does not exist.
var DontCreate = CreationMode{}

// CreateExcl indicates that a new file should be created. If the target
// file already exists, opening shall fail.
func CreateExcl(perm os.FileMode) CreationMode {
	return CreationMode{flags: os.O_CREATE | os.O_EXCL, permissions: perm}
}

// Directory is an abstraction for accessing the base directory of a
// compiler store. Only the operations needed to write, read, discover
// and replace store files are provided.
//
// By placing this in a separate interface, it's easier to stub out file
// system handling as part of unit tests entirely.
type Directory interface {
	// Open a file contained within the directory for writing, only
	// allowing data to be appended to the end of the file.
	OpenAppend(name path.Component, creationMode CreationMode) (FileAppender, error)
	// Open a file contained within the directory for reading. The
	// CreationMode is assumed to be equal to DontCreate.
	OpenRead(name path.Component) (FileReader, error)

	// Lstat is the equivalent of os.Lstat().
	Lstat(name path.Component) (FileInfo, error)
	// ReadDir is the equivalent of os.ReadDir(). Entries are
	// sorted by name.
	ReadDir() ([]FileInfo, error)
	// Remove is the equivalent of os.Remove().
	Remove(name path.Component) error
	// Rename is the equivalent of os.Rename().
	Rename(oldName path.Component, newDirectory Directory, newName path.Component) error
	// Sync the contents of the directory (i.e., the list of names)
	// to disk.
	Sync() error

	// Function that base types may use to implement calls that
	// require double dispatching, such as renaming.
	Apply(arg interface{}) error
}

// DirectoryCloser is a Directory handle that can be released.
type DirectoryCloser interface {
	Directory
	io.Closer
}

type nopDirectoryCloser struct {
	Directory
}

// NopDirectoryCloser adds a no-op Close method to a Directory object,
// similar to how io.NopCloser() adds a Close method to a Reader.
func NopDirectoryCloser(d Directory) DirectoryCloser {
	return nopDirectoryCloser{
		Directory: d,
	}
}

func (d nopDirectoryCloser) Close() error {
	return nil
}
