package compilerstore

import (
	"github.com/buildbarn/bb-compiler-store/pkg/compilerstore/block"
	"github.com/buildbarn/bb-compiler-store/pkg/filesystem"
	"github.com/buildbarn/bb-compiler-store/pkg/filesystem/path"
	"github.com/buildbarn/bb-compiler-store/pkg/util"
	"github.com/sirupsen/logrus"

	mapset "github.com/deckarep/golang-set/v2"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// writeIndexFile writes the locations of the records in a data file
// to an index file. The index file may be written under a temporary
// name.
func writeIndexFile(directory filesystem.Directory, name path.Component, header FileName, locations map[ObjectIdentifier]Location) (int, error) {
	_, sizeBytes, err := serializeAndStoreMap(
		directory,
		name,
		header,
		locations,
		ObjectIdentifier.Compare,
		singleBlock,
		block.KindIndex,
		func(dst []byte, id ObjectIdentifier, location Location) ([]byte, error) {
			return appendIndexEntry(dst, id, location), nil
		})
	return sizeBytes, err
}

// parseIndexFile parses the contents of an index file, consisting of a
// header block followed by a single index block.
func parseIndexFile(data []byte, name FileName) ([]indexEntry, error) {
	h, n, err := decodeFileHeaderBlock(data, name)
	if err != nil {
		return nil, err
	}
	payload, err := block.DecodeExactly(data[n:], block.KindIndex)
	if err != nil {
		return nil, util.StatusWrap(err, "Failed to decode index")
	}
	entries, err := decodeRepeatedEntries(payload, "index", decodeIndexEntry)
	if err != nil {
		return nil, err
	}
	if uint64(len(entries)) != h.recordCount {
		return nil, status.Errorf(codes.DataLoss, "Index contains %d entries, while the file header announces %d", len(entries), h.recordCount)
	}
	return entries, nil
}

// readIndexFile reads and parses the index file of a pair.
func readIndexFile(directory filesystem.Directory, pair StoreFilePair) ([]indexEntry, error) {
	name := pair.IndexFile()
	data, err := filesystem.ReadFile(directory, name)
	if err != nil {
		return nil, util.StatusWrapfFileError(err, "Failed to read index file %#v", name.String())
	}
	entries, err := parseIndexFile(data, FileName{Kind: FileKindIndex, Generation: pair.Generation})
	if err != nil {
		return nil, util.StatusWrapf(err, "Invalid index file %#v", name.String())
	}
	return entries, nil
}

// parseDataFile parses the contents of a data file, requiring that
// every record in it is intact. It is used to validate data files
// right after they have been written.
func parseDataFile(data []byte, name FileName) (map[ObjectIdentifier]Location, error) {
	h, offset, err := decodeFileHeaderBlock(data, name)
	if err != nil {
		return nil, err
	}
	file := name.Component()
	locations := map[ObjectIdentifier]Location{}
	for offset < len(data) {
		b, n, err := block.Decode(data[offset:])
		if err != nil {
			return nil, util.StatusWrapf(err, "Failed to decode block at offset %d", offset)
		}
		if b.Kind != block.KindObjectRecord {
			return nil, status.Errorf(codes.DataLoss, "Block at offset %d has kind %s", offset, b.Kind)
		}
		r, err := decodeObjectRecord(b.Payload)
		if err != nil {
			return nil, util.StatusWrapf(err, "Failed to decode record at offset %d", offset)
		}
		if _, ok := locations[r.id]; ok {
			return nil, status.Errorf(codes.DataLoss, "Object %s is stored multiple times", r.id)
		}
		locations[r.id] = Location{
			File:        file,
			OffsetBytes: int64(offset),
			SizeBytes:   int64(n),
		}
		offset += n
	}
	if uint64(len(locations)) != h.recordCount {
		return nil, status.Errorf(codes.DataLoss, "Data file contains %d records, while the file header announces %d", len(locations), h.recordCount)
	}
	return locations, nil
}

// scanDataFile recovers the locations of all intact records in a data
// file, skipping over damaged regions. It returns the number of
// regions that had to be skipped.
func scanDataFile(data []byte, name FileName) (map[ObjectIdentifier]Location, int, error) {
	file := name.Component()
	locations := map[ObjectIdentifier]Location{}
	damagedRegions := 0
	s := block.NewScanner(data)
	for s.Next() {
		b := s.Block()
		switch b.Kind {
		case block.KindFileHeader:
			h, err := decodeFileHeader(b.Payload)
			if err != nil {
				damagedRegions++
			} else if h.kind != name.Kind || h.generation != name.Generation {
				// Records in this file may have been written
				// under another name. They cannot be trusted.
				return nil, 0, status.Errorf(codes.DataLoss, "File header describes %s file with generation %016x", h.kind, h.generation)
			}
		case block.KindObjectRecord:
			r, err := decodeObjectRecord(b.Payload)
			if err != nil {
				damagedRegions++
				continue
			}
			if _, ok := locations[r.id]; !ok {
				locations[r.id] = Location{
					File:        file,
					OffsetBytes: s.OffsetBytes(),
					SizeBytes:   s.SizeBytes(),
				}
			}
		default:
			damagedRegions++
		}
	}
	return locations, damagedRegions + len(s.Skipped()), nil
}

// recoveryContext tracks which data files have been loaded during a
// single run of the recovery engine. It is passed along explicitly, so
// that loading a data file whose index refers back to a file that is
// still being loaded can be detected.
type recoveryContext struct {
	inProgress mapset.Set[path.Component]
	loaded     mapset.Set[path.Component]
}

func newRecoveryContext() *recoveryContext {
	return &recoveryContext{
		inProgress: mapset.NewThreadUnsafeSet[path.Component](),
		loaded:     mapset.NewThreadUnsafeSet[path.Component](),
	}
}

// recoveryEngine restores the state of a store from the files in its
// base directory. Damaged files never cause recovery to fail. They
// merely cause the objects stored in them to become unavailable.
type recoveryEngine struct {
	directory             filesystem.Directory
	files                 *StoreFilePairManager
	locations             *LocationIndex
	counters              *performanceCounters
	logger                logrus.FieldLogger
	persistRebuiltIndexes bool
}

// run the recovery engine, filling the LocationIndex and returning
// the contents of the compiler map.
func (r *recoveryEngine) run() map[CompilerMapKey]ObjectIdentifier {
	r.removeTemporaryFiles()
	entries := r.loadNewestCompilerMap()

	rc := newRecoveryContext()
	for _, pair := range r.files.DiscoverPairs() {
		if !pair.HasData {
			r.logger.WithField("file", pair.IndexFile().String()).Warn("Ignoring index file without a data file")
			r.counters.recoveryAction(recoveryActionIndexFileOrphaned, 1)
			continue
		}
		if err := r.loadPair(rc, pair); err != nil {
			r.logger.WithError(err).WithField("file", pair.DataFile().String()).Warn("Failed to load data file")
		}
	}
	r.validateIndex()

	// Drop entries from the compiler map referring to objects that
	// are no longer present.
	dropped := 0
	for key, id := range entries {
		if !r.locations.Contains(id) {
			delete(entries, key)
			dropped++
		}
	}
	if dropped > 0 {
		r.logger.WithField("entries", dropped).Warn("Dropped compiler map entries referring to objects that are not present")
		r.counters.recoveryAction(recoveryActionMapEntryDropped, dropped)
	}
	return entries
}

func (r *recoveryEngine) removeTemporaryFiles() {
	for _, name := range r.files.DiscoverTemporaryFiles() {
		if err := r.directory.Remove(name); err != nil {
			r.logger.WithError(err).WithField("file", name.String()).Warn("Failed to remove temporary file")
			continue
		}
		r.counters.recoveryAction(recoveryActionTemporaryFileRemoved, 1)
	}
}

// loadNewestCompilerMap loads the most recent map file that can be
// read successfully.
func (r *recoveryEngine) loadNewestCompilerMap() map[CompilerMapKey]ObjectIdentifier {
	for _, name := range r.files.DiscoverMapFiles() {
		entries, err := readMapFile(r.directory, name)
		if err == nil {
			r.counters.recoveryAction(recoveryActionMapFileLoaded, 1)
			r.logger.WithFields(logrus.Fields{
				"file":    name.String(),
				"entries": len(entries),
			}).Debug("Loaded compiler map")
			return entries
		}
		r.logger.WithError(err).WithField("file", name.String()).Warn("Rejecting map file")
		r.counters.recoveryAction(recoveryActionMapFileRejected, 1)
	}
	return map[CompilerMapKey]ObjectIdentifier{}
}

// loadPair adds the records of a data file to the LocationIndex. The
// index file is used if it is valid. Otherwise the index is rebuilt
// from the data file. As index files may refer to records in other
// data files, those are loaded first.
func (r *recoveryEngine) loadPair(rc *recoveryContext, pair StoreFilePair) error {
	dataFile := pair.DataFile()
	if rc.loaded.Contains(dataFile) {
		return nil
	}
	if rc.inProgress.Contains(dataFile) {
		r.counters.recoveryAction(recoveryActionRecursiveLoad, 1)
		return newRecursiveLoadError(dataFile.String())
	}
	rc.inProgress.Add(dataFile)
	defer rc.inProgress.Remove(dataFile)
	defer rc.loaded.Add(dataFile)

	if pair.HasIndex {
		err := r.loadIndex(rc, pair)
		if err == nil {
			return nil
		}
		r.logger.WithError(err).WithField("file", pair.IndexFile().String()).Warn("Rebuilding index, as the index file could not be loaded")
		r.counters.recoveryAction(recoveryActionIndexFileRejected, 1)
	}
	return r.tryRebuildIndexFromData(pair)
}

func (r *recoveryEngine) loadIndex(rc *recoveryContext, pair StoreFilePair) error {
	entries, err := readIndexFile(r.directory, pair)
	if err != nil {
		return err
	}
	dataFile := pair.DataFile()
	for _, e := range entries {
		if e.location.File == dataFile {
			continue
		}
		other, ok := r.files.LookupPair(e.location.File)
		if !ok {
			return status.Errorf(codes.NotFound, "Index refers to data file %#v, which does not exist", e.location.File.String())
		}
		if err := r.loadPair(rc, other); err != nil {
			return util.StatusWrapf(err, "Failed to load data file %#v referenced by index", e.location.File.String())
		}
	}
	for _, e := range entries {
		r.locations.Insert(e.id, e.location)
	}
	r.counters.recoveryAction(recoveryActionIndexFileLoaded, 1)
	return nil
}

// tryRebuildIndexFromData recovers the locations of the records in a
// data file by scanning it. Damaged records are skipped.
func (r *recoveryEngine) tryRebuildIndexFromData(pair StoreFilePair) error {
	dataFile := pair.DataFile()
	data, err := filesystem.ReadFile(r.directory, dataFile)
	if err != nil {
		return util.StatusWrapfFileError(err, "Failed to read data file %#v", dataFile.String())
	}
	name := FileName{Kind: FileKindData, Generation: pair.Generation}
	locations, damagedRegions, err := scanDataFile(data, name)
	if err != nil {
		return util.StatusWrapf(err, "Failed to scan data file %#v", dataFile.String())
	}
	if damagedRegions > 0 {
		r.logger.WithFields(logrus.Fields{
			"file":    dataFile.String(),
			"regions": damagedRegions,
		}).Warn("Skipped damaged regions while rebuilding index")
		r.counters.recoveryAction(recoveryActionRegionSkipped, damagedRegions)
	}
	r.locations.RebuildFrom(dataFile, locations)
	r.counters.recoveryAction(recoveryActionIndexRebuilt, 1)
	r.logger.WithFields(logrus.Fields{
		"file":    dataFile.String(),
		"objects": len(locations),
	}).Warn("Rebuilt index from data file")

	if r.persistRebuiltIndexes {
		if err := r.persistIndex(pair, locations); err != nil {
			r.logger.WithError(err).WithField("file", pair.IndexFile().String()).Warn("Failed to persist rebuilt index")
		} else {
			r.counters.recoveryAction(recoveryActionIndexPersisted, 1)
		}
	}
	return nil
}

// persistIndex writes a rebuilt index to disk, replacing the index file
// that failed to load (if any). The index is first written to a
// temporary file, so that a crash never leaves a partially written
// index file behind.
func (r *recoveryEngine) persistIndex(pair StoreFilePair, locations map[ObjectIdentifier]Location) error {
	indexFile := pair.IndexFile()
	temporaryFile := temporaryFileFor(indexFile)
	sizeBytes, err := writeIndexFile(r.directory, temporaryFile, FileName{Kind: FileKindIndex, Generation: pair.Generation}, locations)
	if err != nil {
		return err
	}
	r.counters.bytesWritten.Add(float64(sizeBytes))
	if err := r.directory.Rename(temporaryFile, r.directory, indexFile); err != nil {
		r.directory.Remove(temporaryFile)
		return util.StatusWrapfFileError(err, "Failed to rename temporary file %#v", temporaryFile.String())
	}
	if err := r.directory.Sync(); err != nil {
		return util.StatusWrapFileError(err, "Failed to synchronize base directory")
	}
	return nil
}

// validateIndex checks that every entry in the LocationIndex refers to
// an intact record of the right object. Entries for which this is not
// the case are dropped.
func (r *recoveryEngine) validateIndex() {
	for _, file := range r.locations.Files() {
		data, err := filesystem.ReadFile(r.directory, file)
		if err != nil {
			dropped := r.locations.RemoveFile(file)
			r.logger.WithError(err).WithFields(logrus.Fields{
				"file":    file.String(),
				"objects": dropped,
			}).Warn("Dropping locations of objects in unreadable data file")
			r.counters.recoveryAction(recoveryActionLocationDropped, dropped)
			continue
		}
		for _, id := range r.locations.IdentifiersIn(file) {
			location, _ := r.locations.Lookup(id)
			if err := validateRecord(data, id, location); err != nil {
				r.logger.WithError(err).WithFields(logrus.Fields{
					"file":   file.String(),
					"object": id.String(),
				}).Warn("Dropping location of object")
				r.locations.Remove(id)
				r.counters.recoveryAction(recoveryActionLocationDropped, 1)
			}
		}
	}
}

// validateRecord checks that the contents of a data file contain an
// intact record of a given object at a given location. The object is
// not deserialized.
func validateRecord(data []byte, id ObjectIdentifier, location Location) error {
	end := location.OffsetBytes + location.SizeBytes
	if location.OffsetBytes < 0 || location.SizeBytes <= 0 || end > int64(len(data)) {
		return status.Errorf(codes.OutOfRange, "Record at offset %d with size %d exceeds data file size %d", location.OffsetBytes, location.SizeBytes, len(data))
	}
	payload, err := block.DecodeExactly(data[location.OffsetBytes:end], block.KindObjectRecord)
	if err != nil {
		return err
	}
	rec, err := decodeObjectRecord(payload)
	if err != nil {
		return err
	}
	if rec.id != id {
		return status.Errorf(codes.DataLoss, "Record contains object %s", rec.id)
	}
	return nil
}
