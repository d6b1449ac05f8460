package compilerstore

import (
	"slices"

	"github.com/buildbarn/bb-compiler-store/pkg/compilerstore/block"
	"github.com/buildbarn/bb-compiler-store/pkg/filesystem"
	"github.com/buildbarn/bb-compiler-store/pkg/filesystem/path"
	"github.com/buildbarn/bb-compiler-store/pkg/util"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// compilerMap is the in-memory copy of the table mapping compiler
// input to the identifiers of the control flow graphs compiled from
// it. Any modification marks the map as dirty, causing it to be written
// to a new map file upon the next flush.
type compilerMap struct {
	entries map[CompilerMapKey]ObjectIdentifier
	dirty   bool
}

func newCompilerMap(entries map[CompilerMapKey]ObjectIdentifier) *compilerMap {
	return &compilerMap{entries: entries}
}

func (cm *compilerMap) get(key CompilerMapKey) (ObjectIdentifier, bool) {
	id, ok := cm.entries[key]
	return id, ok
}

func (cm *compilerMap) set(key CompilerMapKey, id ObjectIdentifier) {
	if existing, ok := cm.entries[key]; !ok || existing != id {
		cm.entries[key] = id
		cm.dirty = true
	}
}

func (cm *compilerMap) keys() []CompilerMapKey {
	keys := make([]CompilerMapKey, 0, len(cm.entries))
	for k := range cm.entries {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, CompilerMapKey.Compare)
	return keys
}

// writeMapFile writes the contents of the compiler map to a new map
// file. The returned size is used for accounting purposes.
func (cm *compilerMap) writeMapFile(directory filesystem.Directory, name path.Component) (int, error) {
	fn, ok := ParseFileName(name)
	if !ok || fn.Kind != FileKindMap {
		panic("Attempted to write compiler map to a file that is not a map file")
	}
	_, sizeBytes, err := serializeAndStoreMap(
		directory,
		name,
		fn,
		cm.entries,
		CompilerMapKey.Compare,
		singleBlock,
		block.KindCompilerMap,
		func(dst []byte, key CompilerMapKey, id ObjectIdentifier) ([]byte, error) {
			return appendCompilerMapEntry(dst, key, id), nil
		})
	return sizeBytes, err
}

// parseMapFile parses the contents of a map file, consisting of a
// header block followed by a single compiler map block.
func parseMapFile(data []byte, name FileName) (map[CompilerMapKey]ObjectIdentifier, error) {
	h, n, err := decodeFileHeaderBlock(data, name)
	if err != nil {
		return nil, err
	}
	payload, err := block.DecodeExactly(data[n:], block.KindCompilerMap)
	if err != nil {
		return nil, util.StatusWrap(err, "Failed to decode compiler map")
	}
	entries, err := decodeRepeatedEntries(payload, "compiler map", decodeCompilerMapEntry)
	if err != nil {
		return nil, err
	}
	if uint64(len(entries)) != h.recordCount {
		return nil, status.Errorf(codes.DataLoss, "Compiler map contains %d entries, while the file header announces %d", len(entries), h.recordCount)
	}
	m := make(map[CompilerMapKey]ObjectIdentifier, len(entries))
	for _, e := range entries {
		if _, ok := m[e.key]; ok {
			return nil, status.Errorf(codes.DataLoss, "Compiler map contains key %s multiple times", e.key)
		}
		m[e.key] = e.id
	}
	return m, nil
}

// readMapFile reads and parses a map file.
func readMapFile(directory filesystem.Directory, name path.Component) (map[CompilerMapKey]ObjectIdentifier, error) {
	fn, ok := ParseFileName(name)
	if !ok || fn.Kind != FileKindMap {
		return nil, status.Errorf(codes.InvalidArgument, "%#v is not a map file", name.String())
	}
	data, err := filesystem.ReadFile(directory, name)
	if err != nil {
		return nil, util.StatusWrapfFileError(err, "Failed to read map file %#v", name.String())
	}
	return parseMapFile(data, fn)
}
