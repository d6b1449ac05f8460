package compilerstore

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/buildbarn/bb-compiler-store/pkg/filesystem"
	"github.com/buildbarn/bb-compiler-store/pkg/filesystem/path"
	"github.com/buildbarn/bb-compiler-store/pkg/util"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	// StoreFilePrefix is the prefix of the names of data and index
	// files.
	StoreFilePrefix = "STORE_"
	// DataFileExtension is the extension of data files, holding the
	// object records written by a single flush.
	DataFileExtension = ".dat"
	// IndexFileExtension is the extension of index files, holding
	// the directory of object records of the data file of the same
	// generation.
	IndexFileExtension = ".idx"
	// MapFilePrefix is the prefix of the names of map files.
	MapFilePrefix = "MAP_"
	// MapFileExtension is the extension of map files, holding a
	// snapshot of the compiler map.
	MapFileExtension = ".map"

	// temporaryFileSuffix is appended to the name of index files
	// while they are being rebuilt.
	temporaryFileSuffix = ".new"

	generationTokenLength = 16
)

// FileKind indicates which role a file plays in the base directory
// of a store.
type FileKind int

const (
	// FileKindData corresponds to STORE_*.dat.
	FileKindData FileKind = 1
	// FileKindIndex corresponds to STORE_*.idx.
	FileKindIndex FileKind = 2
	// FileKindMap corresponds to MAP_*.map.
	FileKindMap FileKind = 3
)

func (k FileKind) String() string {
	switch k {
	case FileKindData:
		return "data"
	case FileKindIndex:
		return "index"
	case FileKindMap:
		return "map"
	default:
		return "unknown"
	}
}

// FileName is the parsed form of the name of a file in the base
// directory of a store.
type FileName struct {
	Kind       FileKind
	Generation uint64
}

// Component returns the file name as it appears in the base
// directory.
func (fn FileName) Component() path.Component {
	token := fmt.Sprintf("%016x", fn.Generation)
	switch fn.Kind {
	case FileKindData:
		return path.MustNewComponent(StoreFilePrefix + token + DataFileExtension)
	case FileKindIndex:
		return path.MustNewComponent(StoreFilePrefix + token + IndexFileExtension)
	case FileKindMap:
		return path.MustNewComponent(MapFilePrefix + token + MapFileExtension)
	default:
		panic("Invalid file kind")
	}
}

func (fn FileName) String() string {
	return fn.Component().String()
}

func parseGenerationToken(token string) (uint64, bool) {
	if len(token) != generationTokenLength || strings.ToLower(token) != token {
		return 0, false
	}
	generation, err := strconv.ParseUint(token, 16, 64)
	if err != nil {
		return 0, false
	}
	return generation, true
}

// ParseFileName parses the name of a file in the base directory of a
// store. It returns false for files that are not data, index or map
// files, including temporary files.
func ParseFileName(name path.Component) (FileName, bool) {
	s := name.String()
	var kind FileKind
	var token string
	if rest, ok := strings.CutPrefix(s, StoreFilePrefix); ok {
		if t, ok := strings.CutSuffix(rest, DataFileExtension); ok {
			kind, token = FileKindData, t
		} else if t, ok := strings.CutSuffix(rest, IndexFileExtension); ok {
			kind, token = FileKindIndex, t
		} else {
			return FileName{}, false
		}
	} else if rest, ok := strings.CutPrefix(s, MapFilePrefix); ok {
		t, ok := strings.CutSuffix(rest, MapFileExtension)
		if !ok {
			return FileName{}, false
		}
		kind, token = FileKindMap, t
	} else {
		return FileName{}, false
	}
	generation, ok := parseGenerationToken(token)
	if !ok {
		return FileName{}, false
	}
	return FileName{Kind: kind, Generation: generation}, true
}

// IndexFileForDataFile returns the name of the index file that
// accompanies a data file.
func IndexFileForDataFile(dataFile path.Component) (path.Component, bool) {
	fn, ok := ParseFileName(dataFile)
	if !ok || fn.Kind != FileKindData {
		return path.Component{}, false
	}
	return FileName{Kind: FileKindIndex, Generation: fn.Generation}.Component(), true
}

// DataFileForIndexFile returns the name of the data file whose
// records are described by an index file.
func DataFileForIndexFile(indexFile path.Component) (path.Component, bool) {
	fn, ok := ParseFileName(indexFile)
	if !ok || fn.Kind != FileKindIndex {
		return path.Component{}, false
	}
	return FileName{Kind: FileKindData, Generation: fn.Generation}.Component(), true
}

func temporaryFileFor(name path.Component) path.Component {
	return name.WithSuffix(temporaryFileSuffix)
}

func isTemporaryFile(name path.Component) bool {
	s, ok := strings.CutSuffix(name.String(), temporaryFileSuffix)
	if !ok {
		return false
	}
	base, ok := path.NewComponent(s)
	if !ok {
		return false
	}
	_, ok = ParseFileName(base)
	return ok
}

// StoreFilePair is a data file and index file sharing the same
// generation, of which either may be absent on disk.
type StoreFilePair struct {
	Generation uint64
	HasData    bool
	HasIndex   bool
}

// DataFile returns the name of the pair's data file.
func (p StoreFilePair) DataFile() path.Component {
	return FileName{Kind: FileKindData, Generation: p.Generation}.Component()
}

// IndexFile returns the name of the pair's index file.
func (p StoreFilePair) IndexFile() path.Component {
	return FileName{Kind: FileKindIndex, Generation: p.Generation}.Component()
}

// StoreFilePairManager owns the naming of files in the base directory
// of a store. It discovers existing files once, when created, and
// subsequently hands out names that have not been observed before.
// Data, index and map files share a single generation counter, so
// that the generation of a map file also orders it relative to the
// store files written by the same flush.
type StoreFilePairManager struct {
	nextGeneration uint64
	pairs          map[uint64]*StoreFilePair
	mapFiles       []uint64
	temporaryFiles []path.Component
}

// NewStoreFilePairManager scans the base directory of a store and
// creates a StoreFilePairManager for it.
func NewStoreFilePairManager(directory filesystem.Directory) (*StoreFilePairManager, error) {
	entries, err := directory.ReadDir()
	if err != nil {
		return nil, util.StatusWrapWithCode(err, codes.FailedPrecondition, "Failed to read base directory")
	}
	m := &StoreFilePairManager{
		pairs: map[uint64]*StoreFilePair{},
	}
	highest, found := uint64(0), false
	for _, entry := range entries {
		if entry.Type() != filesystem.FileTypeRegularFile {
			continue
		}
		name := entry.Name()
		if isTemporaryFile(name) {
			m.temporaryFiles = append(m.temporaryFiles, name)
			continue
		}
		fn, ok := ParseFileName(name)
		if !ok {
			continue
		}
		if !found || fn.Generation > highest {
			highest, found = fn.Generation, true
		}
		switch fn.Kind {
		case FileKindData, FileKindIndex:
			p, ok := m.pairs[fn.Generation]
			if !ok {
				p = &StoreFilePair{Generation: fn.Generation}
				m.pairs[fn.Generation] = p
			}
			if fn.Kind == FileKindData {
				p.HasData = true
			} else {
				p.HasIndex = true
			}
		case FileKindMap:
			m.mapFiles = append(m.mapFiles, fn.Generation)
		}
	}
	if found {
		if highest == ^uint64(0) {
			return nil, status.Error(codes.FailedPrecondition, "Base directory contains a file with the highest possible generation")
		}
		m.nextGeneration = highest + 1
	}
	sort.Slice(m.mapFiles, func(i, j int) bool {
		return m.mapFiles[i] > m.mapFiles[j]
	})
	return m, nil
}

func (m *StoreFilePairManager) allocateGeneration() uint64 {
	g := m.nextGeneration
	m.nextGeneration++
	return g
}

// FreshStoreFilePair returns the names of a data file and index file
// that have never been used before.
func (m *StoreFilePairManager) FreshStoreFilePair() StoreFilePair {
	return StoreFilePair{Generation: m.allocateGeneration()}
}

// FreshMapFile returns the name of a map file that has never been
// used before.
func (m *StoreFilePairManager) FreshMapFile() path.Component {
	return FileName{Kind: FileKindMap, Generation: m.allocateGeneration()}.Component()
}

// DiscoverPairs returns all data and index files that were present
// in the base directory at the time the StoreFilePairManager was
// created, ordered by generation.
func (m *StoreFilePairManager) DiscoverPairs() []StoreFilePair {
	pairs := make([]StoreFilePair, 0, len(m.pairs))
	for _, p := range m.pairs {
		pairs = append(pairs, *p)
	}
	sort.Slice(pairs, func(i, j int) bool {
		return pairs[i].Generation < pairs[j].Generation
	})
	return pairs
}

// LookupPair returns the pair that a data file belongs to, if it
// was present at the time the StoreFilePairManager was created.
func (m *StoreFilePairManager) LookupPair(dataFile path.Component) (StoreFilePair, bool) {
	fn, ok := ParseFileName(dataFile)
	if !ok || fn.Kind != FileKindData {
		return StoreFilePair{}, false
	}
	p, ok := m.pairs[fn.Generation]
	if !ok || !p.HasData {
		return StoreFilePair{}, false
	}
	return *p, true
}

// DiscoverMapFiles returns the names of all map files that were
// present in the base directory at the time the StoreFilePairManager
// was created, newest first.
func (m *StoreFilePairManager) DiscoverMapFiles() []path.Component {
	names := make([]path.Component, 0, len(m.mapFiles))
	for _, g := range m.mapFiles {
		names = append(names, FileName{Kind: FileKindMap, Generation: g}.Component())
	}
	return names
}

// DiscoverTemporaryFiles returns the names of index files whose
// rebuild was interrupted.
func (m *StoreFilePairManager) DiscoverTemporaryFiles() []path.Component {
	return m.temporaryFiles
}
