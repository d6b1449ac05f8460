package compilerstore

import (
	"github.com/buildbarn/bb-compiler-store/pkg/filesystem/path"
)

// Location at which an object is stored. A location consists of the
// name of a data file, relative to the base directory of the store,
// and the region within that file that holds the object's record.
type Location struct {
	File        path.Component
	OffsetBytes int64
	SizeBytes   int64
}
