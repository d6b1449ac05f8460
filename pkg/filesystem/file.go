package filesystem

import (
	"io"
	"math"

	"github.com/buildbarn/bb-compiler-store/pkg/filesystem/path"
)

// FileAppender is returned by Directory.OpenAppend(). It is a handle
// for a file that only permits new data to be written to the end.
type FileAppender interface {
	io.Closer
	io.Writer

	Sync() error
}

// FileReader is returned by Directory.OpenRead(). It is a handle
// for a file that permits data to be read from arbitrary locations.
type FileReader interface {
	io.Closer
	io.ReaderAt
}

// ReadFile opens a file contained in a directory and returns its full
// contents.
func ReadFile(d Directory, name path.Component) ([]byte, error) {
	f, err := d.OpenRead(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(io.NewSectionReader(f, 0, math.MaxInt64))
}
