package compilerstore

import (
	"io"
	"maps"

	"github.com/buildbarn/bb-compiler-store/pkg/compilerstore/block"
	"github.com/buildbarn/bb-compiler-store/pkg/compilerstore/object"
	"github.com/buildbarn/bb-compiler-store/pkg/filesystem"
	"github.com/buildbarn/bb-compiler-store/pkg/filesystem/path"
	"github.com/buildbarn/bb-compiler-store/pkg/util"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// LockFileName is the name of the file in the base directory that is
// locked by an OnDiskCompilerStore for its lifetime.
var LockFileName = path.MustNewComponent("LOCK")

// OnDiskCompilerStore is a persistent cache of compiled control flow
// graphs and other compiler-internal objects. Objects are stored in
// memory until FlushToDisk() is called, which writes them to a new
// pair of data and index files. A table mapping compiler input to the
// resulting control flow graphs is written to separate map files.
//
// When created, the state of the store is recovered from the files in
// its base directory. Damaged files cause the objects stored in them to
// be lost, but never prevent the store from being created.
//
// OnDiskCompilerStore is not safe for concurrent use. Callers are
// expected to serialize access to it.
type OnDiskCompilerStore struct {
	basePath    string
	directory   filesystem.DirectoryCloser
	lock        io.Closer
	files       *StoreFilePairManager
	locations   *LocationIndex
	objects     *objectStore
	compilerMap *compilerMap
	codec       *recordCodec
	serializer  object.Serializer
	counters    *performanceCounters
	logger      logrus.FieldLogger
}

var _ prometheus.Collector = (*OnDiskCompilerStore)(nil)

// NewOnDiskCompilerStore opens the base directory of a store, locks it
// and recovers the state of the store from it. An error with code
// FailedPrecondition is returned if the base directory cannot be
// opened or is locked by another instance.
func NewOnDiskCompilerStore(basePath string, options ...Option) (*OnDiskCompilerStore, error) {
	directory, err := filesystem.NewLocalDirectory(basePath)
	if err != nil {
		return nil, util.StatusWrapfWithCode(err, codes.FailedPrecondition, "Failed to open base directory %#v", basePath)
	}
	instance := uuid.New()
	lock, err := filesystem.AcquireLockFile(directory, LockFileName, instance.String())
	if err != nil {
		directory.Close()
		return nil, util.StatusWrapfWithCode(err, codes.FailedPrecondition, "Failed to lock base directory %#v", basePath)
	}
	s, err := newOnDiskCompilerStore(basePath, directory, lock, instance, options)
	if err != nil {
		lock.Close()
		directory.Close()
		return nil, err
	}
	return s, nil
}

// NewOnDiskCompilerStoreInDirectory is identical to
// NewOnDiskCompilerStore(), except that it uses an already opened
// directory. No lock file is acquired, meaning that the caller is
// responsible for ensuring that no other instance uses the same
// directory. This is mainly useful for testing.
func NewOnDiskCompilerStoreInDirectory(directory filesystem.Directory, options ...Option) (*OnDiskCompilerStore, error) {
	return newOnDiskCompilerStore("", filesystem.NopDirectoryCloser(directory), nil, uuid.New(), options)
}

func newOnDiskCompilerStore(basePath string, directory filesystem.DirectoryCloser, lock io.Closer, instance uuid.UUID, optionList []Option) (*OnDiskCompilerStore, error) {
	o := defaultOptions()
	for _, option := range optionList {
		option(&o)
	}
	logger := o.logger.WithFields(logrus.Fields{
		"base_path": basePath,
		"instance":  instance.String(),
	})

	files, err := NewStoreFilePairManager(directory)
	if err != nil {
		return nil, err
	}
	codec, err := newRecordCodec(o.serializer, o.compression)
	if err != nil {
		return nil, err
	}
	counters := newPerformanceCounters(basePath)
	locations := NewLocationIndex()
	objects, err := newObjectStore(directory, codec, locations, o.savedObjectCacheSize, counters, logger)
	if err != nil {
		codec.close()
		return nil, err
	}

	r := recoveryEngine{
		directory:             directory,
		files:                 files,
		locations:             locations,
		counters:              counters,
		logger:                logger,
		persistRebuiltIndexes: o.persistRebuiltIndexes,
	}
	entries := r.run()
	logger.WithFields(logrus.Fields{
		"objects": locations.Len(),
		"keys":    len(entries),
	}).Info("Opened compiler store")

	return &OnDiskCompilerStore{
		basePath:    basePath,
		directory:   directory,
		lock:        lock,
		files:       files,
		locations:   locations,
		objects:     objects,
		compilerMap: newCompilerMap(entries),
		codec:       codec,
		serializer:  o.serializer,
		counters:    counters,
		logger:      logger,
	}, nil
}

// BasePath returns the path of the directory in which the store places
// its files.
func (s *OnDiskCompilerStore) BasePath() string {
	return s.basePath
}

// Get the control flow graph that was compiled from a given input.
func (s *OnDiskCompilerStore) Get(key CompilerMapKey) (*object.ControlFlowGraph, bool) {
	id, ok := s.compilerMap.get(key)
	if !ok {
		return nil, false
	}
	o, ok := s.objects.lookup(id)
	if !ok {
		return nil, false
	}
	cfg, ok := o.(*object.ControlFlowGraph)
	if !ok {
		s.logger.WithFields(logrus.Fields{
			"key":    key.String(),
			"object": id.String(),
			"type":   o.ObjectType().String(),
		}).Warn("Compiler map refers to an object that is not a control flow graph")
		return nil, false
	}
	return cfg, true
}

// Set the control flow graph that was compiled from a given input. The
// graph is identified by its contents, meaning that storing identical
// graphs for multiple inputs causes it to be stored only once.
func (s *OnDiskCompilerStore) Set(key CompilerMapKey, cfg *object.ControlFlowGraph) error {
	data, err := s.serializer.Serialize(cfg)
	if err != nil {
		return util.StatusWrapf(err, "Failed to serialize control flow graph for key %s", key)
	}
	id := NewObjectIdentifier(cfg.ObjectType(), data)
	if !s.objects.isSaved(id) {
		if err := s.objects.store(id, cfg); err != nil {
			return err
		}
	}
	s.compilerMap.set(key, id)
	return nil
}

// ContainsOnDisk returns whether an object has been written to a data
// file. No I/O is performed.
func (s *OnDiskCompilerStore) ContainsOnDisk(id ObjectIdentifier) bool {
	return s.objects.containsOnDisk(id)
}

// Keys returns all keys contained in the compiler map, in sorted order.
func (s *OnDiskCompilerStore) Keys() []CompilerMapKey {
	return s.compilerMap.keys()
}

// ResolveKey returns the identifier of the object that a key in the
// compiler map refers to.
func (s *OnDiskCompilerStore) ResolveKey(key CompilerMapKey) (ObjectIdentifier, bool) {
	return s.compilerMap.get(key)
}

// Location returns the location at which an object is stored on disk.
func (s *OnDiskCompilerStore) Location(id ObjectIdentifier) (Location, bool) {
	return s.locations.Lookup(id)
}

// UnsavedObjectCount returns the number of objects that will be written
// as part of the next flush.
func (s *OnDiskCompilerStore) UnsavedObjectCount() int {
	return len(s.objects.unsaved)
}

// FlushToDisk writes all unsaved objects to a new data file, followed
// by an index file describing it. If the compiler map was modified, it
// is written to a new map file afterwards. Every file is read back and
// validated after writing it.
//
// Only when all files have been written and the base directory has
// been synchronized, the objects are marked as saved. If any step
// fails, the files written by this call are removed, all objects remain
// unsaved and an error with code Unavailable is returned. The flush may
// then be retried.
func (s *OnDiskCompilerStore) FlushToDisk() error {
	if len(s.objects.unsaved) == 0 && !s.compilerMap.dirty {
		s.counters.flush(flushOutcomeSkipped)
		return nil
	}

	var writtenFiles []path.Component
	newLocations, err := s.writeFiles(&writtenFiles)
	if err == nil {
		if err = s.directory.Sync(); err != nil {
			err = util.StatusWrapFileError(err, "Failed to synchronize base directory")
		}
	}
	if err != nil {
		for i := len(writtenFiles) - 1; i >= 0; i-- {
			if errRemove := s.directory.Remove(writtenFiles[i]); errRemove != nil {
				s.logger.WithError(errRemove).WithField("file", writtenFiles[i].String()).Warn("Failed to remove file of failed flush")
			}
		}
		s.counters.flush(flushOutcomeFailed)
		s.logger.WithError(err).Warn("Failed to flush to disk")
		return util.StatusWrapWithCode(err, codes.Unavailable, "Failed to flush to disk")
	}

	objectCount := len(newLocations)
	s.objects.promote(newLocations)
	s.compilerMap.dirty = false
	s.counters.flush(flushOutcomeSucceeded)
	s.logger.WithFields(logrus.Fields{
		"files":   len(writtenFiles),
		"objects": objectCount,
	}).Debug("Flushed to disk")
	return nil
}

// writeFiles writes the data, index and map files of a flush, in that
// order. The names of all files that were created are appended to
// writtenFiles, so that they can be removed if a subsequent step
// fails.
func (s *OnDiskCompilerStore) writeFiles(writtenFiles *[]path.Component) (map[ObjectIdentifier]Location, error) {
	var newLocations map[ObjectIdentifier]Location
	if len(s.objects.unsaved) > 0 {
		pair := s.files.FreshStoreFilePair()

		// Write the data file and validate it by reading it back.
		dataFile := pair.DataFile()
		dataFileName := FileName{Kind: FileKindData, Generation: pair.Generation}
		locations, sizeBytes, err := serializeAndStoreMap(
			s.directory,
			dataFile,
			dataFileName,
			s.objects.unsaved,
			ObjectIdentifier.Compare,
			blockPerEntry,
			block.KindObjectRecord,
			s.objects.appendRecord)
		if err != nil {
			return nil, err
		}
		*writtenFiles = append(*writtenFiles, dataFile)
		s.counters.bytesWritten.Add(float64(sizeBytes))
		data, err := filesystem.ReadFile(s.directory, dataFile)
		if err != nil {
			return nil, util.StatusWrapfFileError(err, "Failed to read back data file %#v", dataFile.String())
		}
		parsedLocations, err := parseDataFile(data, dataFileName)
		if err != nil {
			return nil, util.StatusWrapf(err, "Failed to validate data file %#v", dataFile.String())
		}
		if !maps.Equal(locations, parsedLocations) {
			return nil, status.Errorf(codes.DataLoss, "Data file %#v does not contain the records that were written", dataFile.String())
		}

		// Write the index file.
		indexFile := pair.IndexFile()
		sizeBytes, err = writeIndexFile(s.directory, indexFile, FileName{Kind: FileKindIndex, Generation: pair.Generation}, locations)
		if err != nil {
			return nil, err
		}
		*writtenFiles = append(*writtenFiles, indexFile)
		s.counters.bytesWritten.Add(float64(sizeBytes))
		entries, err := readIndexFile(s.directory, pair)
		if err != nil {
			return nil, util.StatusWrap(err, "Failed to validate index file")
		}
		if len(entries) != len(locations) {
			return nil, status.Errorf(codes.DataLoss, "Index file %#v contains %d entries, while %d were written", indexFile.String(), len(entries), len(locations))
		}
		for _, e := range entries {
			if locations[e.id] != e.location {
				return nil, status.Errorf(codes.DataLoss, "Index file %#v contains an incorrect location for object %s", indexFile.String(), e.id)
			}
		}
		newLocations = locations
	}

	if s.compilerMap.dirty {
		mapFile := s.files.FreshMapFile()
		sizeBytes, err := s.compilerMap.writeMapFile(s.directory, mapFile)
		if err != nil {
			return nil, err
		}
		*writtenFiles = append(*writtenFiles, mapFile)
		s.counters.bytesWritten.Add(float64(sizeBytes))
		entries, err := readMapFile(s.directory, mapFile)
		if err != nil {
			return nil, util.StatusWrap(err, "Failed to validate map file")
		}
		if !maps.Equal(entries, s.compilerMap.entries) {
			return nil, status.Errorf(codes.DataLoss, "Map file %#v does not contain the entries that were written", mapFile.String())
		}
	}
	return newLocations, nil
}

// GetPerformanceStats returns a human readable summary of the
// performance counters of the store.
func (s *OnDiskCompilerStore) GetPerformanceStats() string {
	return s.counters.String()
}

// Describe is part of prometheus.Collector.
func (s *OnDiskCompilerStore) Describe(ch chan<- *prometheus.Desc) {
	s.counters.describe(ch)
}

// Collect is part of prometheus.Collector.
func (s *OnDiskCompilerStore) Collect(ch chan<- prometheus.Metric) {
	s.counters.collect(ch)
}

// Close the store, releasing the lock on the base directory. Unsaved
// objects are discarded.
func (s *OnDiskCompilerStore) Close() error {
	if n := len(s.objects.unsaved); n > 0 {
		s.logger.WithField("objects", n).Warn("Closing compiler store with unsaved objects")
	}
	s.codec.close()
	var err error
	if s.lock != nil {
		err = s.lock.Close()
	}
	if errClose := s.directory.Close(); err == nil {
		err = errClose
	}
	return err
}

// Lookup an object by identifier, reading it from disk if needed. An
// error with code NotFound is returned if the object does not exist.
// An error with code InvalidArgument is returned if the object is not
// of type T.
func Lookup[T object.MemoizableObject](s *OnDiskCompilerStore, id ObjectIdentifier) (T, error) {
	o, ok := s.objects.lookup(id)
	return checkObjectType[T](id, o, ok)
}

// LookupInMemory is identical to Lookup, except that it never performs
// any I/O. Objects that are only stored on disk are reported as not
// found.
func LookupInMemory[T object.MemoizableObject](s *OnDiskCompilerStore, id ObjectIdentifier) (T, error) {
	o, ok := s.objects.lookupInMemory(id)
	return checkObjectType[T](id, o, ok)
}

// Store an object under a given identifier. The object is written to
// disk as part of the next call to FlushToDisk(). Storing an object
// under the identifier of an object that has not been flushed yet
// replaces it. An error with code AlreadyExists is returned if an
// object with the same identifier has already been flushed.
func Store[T object.MemoizableObject](s *OnDiskCompilerStore, id ObjectIdentifier, value T) error {
	return s.objects.store(id, value)
}

func checkObjectType[T object.MemoizableObject](id ObjectIdentifier, o object.MemoizableObject, ok bool) (T, error) {
	var zero T
	if !ok {
		return zero, status.Errorf(codes.NotFound, "Object %s not found", id)
	}
	v, ok := o.(T)
	if !ok {
		return zero, newTypeMismatchError(id, zero.ObjectType().String(), o.ObjectType().String())
	}
	return v, nil
}
