package compilerstore

import (
	"io"
	"slices"

	"github.com/buildbarn/bb-compiler-store/pkg/compilerstore/block"
	"github.com/buildbarn/bb-compiler-store/pkg/compilerstore/object"
	"github.com/buildbarn/bb-compiler-store/pkg/filesystem"
	"github.com/buildbarn/bb-compiler-store/pkg/filesystem/path"
	"github.com/buildbarn/bb-compiler-store/pkg/util"
	"github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protowire"
)

// objectStore holds objects in one of two states:
//
//   - Unsaved objects have been stored, but not yet flushed. They are
//     only held in memory.
//   - Saved objects have been written to a data file, and can be
//     located through the LocationIndex. A bounded number of them is
//     kept in memory in decoded form.
type objectStore struct {
	directory filesystem.Directory
	codec     *recordCodec
	locations *LocationIndex
	unsaved   map[ObjectIdentifier]object.MemoizableObject
	saved     *lru.Cache[ObjectIdentifier, object.MemoizableObject]
	counters  *performanceCounters
	logger    logrus.FieldLogger
}

func newObjectStore(directory filesystem.Directory, codec *recordCodec, locations *LocationIndex, savedObjectCacheSize int, counters *performanceCounters, logger logrus.FieldLogger) (*objectStore, error) {
	saved, err := lru.New[ObjectIdentifier, object.MemoizableObject](savedObjectCacheSize)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "Invalid saved object cache size %d: %s", savedObjectCacheSize, err)
	}
	return &objectStore{
		directory: directory,
		codec:     codec,
		locations: locations,
		unsaved:   map[ObjectIdentifier]object.MemoizableObject{},
		saved:     saved,
		counters:  counters,
		logger:    logger,
	}, nil
}

// lookup an object, first in memory and then on disk. Objects read
// from disk are added to the saved object cache.
func (s *objectStore) lookup(id ObjectIdentifier) (object.MemoizableObject, bool) {
	if o, ok := s.lookupInMemory(id); ok {
		return o, true
	}
	location, ok := s.locations.Lookup(id)
	if !ok {
		s.counters.lookup(lookupTierMiss)
		return nil, false
	}
	o, err := s.readObject(id, location)
	if err != nil {
		// Data files are never rewritten, so there is no point
		// in retrying a read that failed. Forget about the
		// object, so that it can be stored again.
		s.logger.WithError(err).WithField("object", id.String()).Warn("Discarding object that could not be read from disk")
		s.locations.Remove(id)
		s.counters.diskReadFailures.Inc()
		s.counters.lookup(lookupTierMiss)
		return nil, false
	}
	s.saved.Add(id, o)
	s.counters.lookup(lookupTierDisk)
	return o, true
}

func (s *objectStore) lookupInMemory(id ObjectIdentifier) (object.MemoizableObject, bool) {
	if o, ok := s.unsaved[id]; ok {
		s.counters.lookup(lookupTierUnsaved)
		return o, true
	}
	if o, ok := s.saved.Get(id); ok {
		s.counters.lookup(lookupTierSaved)
		return o, true
	}
	return nil, false
}

// isSaved returns whether an object has been flushed to disk. It does
// not perform any I/O.
func (s *objectStore) isSaved(id ObjectIdentifier) bool {
	return s.saved.Contains(id) || s.locations.Contains(id)
}

// store an object, so that it is written to disk as part of the next
// flush. Storing an object under an identifier of an unsaved object
// replaces it. Storing an object under an identifier of an object that
// has already been saved is not permitted, as data files are
// immutable.
func (s *objectStore) store(id ObjectIdentifier, o object.MemoizableObject) error {
	if s.isSaved(id) {
		return newDuplicateObjectError(id)
	}
	s.unsaved[id] = o
	return nil
}

func (s *objectStore) containsOnDisk(id ObjectIdentifier) bool {
	return s.locations.Contains(id)
}

// readObject reads the record of an object from a data file, and
// decodes it.
func (s *objectStore) readObject(id ObjectIdentifier, location Location) (object.MemoizableObject, error) {
	f, err := s.directory.OpenRead(location.File)
	if err != nil {
		return nil, util.StatusWrapfFileError(err, "Failed to open data file %#v", location.File.String())
	}
	defer f.Close()

	data := make([]byte, location.SizeBytes)
	if n, err := f.ReadAt(data, location.OffsetBytes); n != len(data) {
		if err == io.EOF {
			return nil, status.Errorf(codes.OutOfRange, "Data file %#v ends within record at offset %d", location.File.String(), location.OffsetBytes)
		}
		return nil, util.StatusWrapfFileError(err, "Failed to read from data file %#v", location.File.String())
	}
	s.counters.bytesRead.Add(float64(len(data)))

	payload, err := block.DecodeExactly(data, block.KindObjectRecord)
	if err != nil {
		return nil, util.StatusWrapf(err, "Invalid record at offset %d in data file %#v", location.OffsetBytes, location.File.String())
	}
	o, err := s.codec.decodeObject(payload, id)
	if err != nil {
		return nil, util.StatusWrapf(err, "Invalid record at offset %d in data file %#v", location.OffsetBytes, location.File.String())
	}
	return o, nil
}

// appendRecord is used by serializeAndStoreMap() to write unsaved
// objects to a data file.
func (s *objectStore) appendRecord(dst []byte, id ObjectIdentifier, o object.MemoizableObject) ([]byte, error) {
	dst, _, err := s.codec.appendObject(dst, id, o)
	return dst, err
}

// promote marks objects written to a data file as saved.
func (s *objectStore) promote(locations map[ObjectIdentifier]Location) {
	for _, id := range sortedIdentifiers(locations) {
		if o, ok := s.unsaved[id]; ok {
			s.saved.Add(id, o)
			delete(s.unsaved, id)
		}
		s.locations.Insert(id, locations[id])
	}
}

// serializationMode controls how serializeAndStoreMap() converts the
// entries of a map to blocks.
type serializationMode int

const (
	// blockPerEntry writes every entry to a separate block. This
	// allows the entries to be located and recovered individually,
	// which is used to write object records to data files.
	blockPerEntry serializationMode = iota
	// singleBlock writes all entries to a single block. This is
	// used for index and map files, which only need to be readable
	// as a whole.
	singleBlock
)

// serializeAndStoreMap writes the entries of a map to a new file, in
// order of key. The file starts with a header block. For every entry,
// appendEntry is called to obtain its payload. The file is
// synchronized to disk before returning. In case of failure, the file
// is removed.
//
// In blockPerEntry mode, the locations of the entries' blocks are
// returned.
func serializeAndStoreMap[K comparable, V any](
	directory filesystem.Directory,
	name path.Component,
	header FileName,
	entries map[K]V,
	compare func(K, K) int,
	mode serializationMode,
	blockKind block.Kind,
	appendEntry func(dst []byte, key K, value V) ([]byte, error),
) (map[K]Location, int, error) {
	keys := make([]K, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compare)

	data := block.Encode(block.KindFileHeader, appendFileHeader(nil, fileHeader{
		kind:        header.Kind,
		generation:  header.Generation,
		recordCount: uint64(len(entries)),
	}))
	var locations map[K]Location
	switch mode {
	case blockPerEntry:
		locations = make(map[K]Location, len(entries))
		var payload []byte
		for _, k := range keys {
			var err error
			if payload, err = appendEntry(payload[:0], k, entries[k]); err != nil {
				return nil, 0, err
			}
			offset := len(data)
			data = block.AppendEncoded(data, blockKind, payload)
			locations[k] = Location{
				File:        name,
				OffsetBytes: int64(offset),
				SizeBytes:   int64(len(data) - offset),
			}
		}
	case singleBlock:
		var payload, entryPayload []byte
		for _, k := range keys {
			var err error
			if entryPayload, err = appendEntry(entryPayload[:0], k, entries[k]); err != nil {
				return nil, 0, err
			}
			payload = protowire.AppendTag(payload, repeatedFieldEntry, protowire.BytesType)
			payload = protowire.AppendBytes(payload, entryPayload)
		}
		data = block.AppendEncoded(data, blockKind, payload)
	default:
		panic("Invalid serialization mode")
	}

	if err := writeNewFile(directory, name, data); err != nil {
		return nil, 0, err
	}
	return locations, len(data), nil
}

// writeNewFile creates a file with the provided contents, and
// synchronizes it to disk. The file must not exist. If writing fails,
// the file is removed.
func writeNewFile(directory filesystem.Directory, name path.Component, data []byte) error {
	f, err := directory.OpenAppend(name, filesystem.CreateExcl(0o666))
	if err != nil {
		return util.StatusWrapfFileError(err, "Failed to create file %#v", name.String())
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		directory.Remove(name)
		return util.StatusWrapfFileError(err, "Failed to write to file %#v", name.String())
	}
	if err := f.Sync(); err != nil {
		f.Close()
		directory.Remove(name)
		return util.StatusWrapfFileError(err, "Failed to synchronize file %#v", name.String())
	}
	if err := f.Close(); err != nil {
		directory.Remove(name)
		return util.StatusWrapfFileError(err, "Failed to close file %#v", name.String())
	}
	return nil
}
