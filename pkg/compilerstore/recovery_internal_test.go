package compilerstore

import (
	"testing"

	"github.com/buildbarn/bb-compiler-store/pkg/compilerstore/block"
	"github.com/buildbarn/bb-compiler-store/pkg/compilerstore/object"
	"github.com/buildbarn/bb-compiler-store/pkg/filesystem"
	"github.com/buildbarn/bb-compiler-store/pkg/filesystem/path"
	"github.com/buildbarn/bb-compiler-store/pkg/testutil"
	"github.com/stretchr/testify/require"

	logrustest "github.com/sirupsen/logrus/hooks/test"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func newTestRecoveryEngine(t *testing.T, directory filesystem.Directory) *recoveryEngine {
	files, err := NewStoreFilePairManager(directory)
	require.NoError(t, err)
	logger, _ := logrustest.NewNullLogger()
	return &recoveryEngine{
		directory: directory,
		files:     files,
		locations: NewLocationIndex(),
		counters:  newPerformanceCounters(""),
		logger:    logger,
	}
}

// writeTestDataFile writes a data file containing a single opaque
// object, returning its identifier and location.
func writeTestDataFile(t *testing.T, directory filesystem.Directory, generation uint64, kind string) (ObjectIdentifier, Location) {
	codec, err := newRecordCodec(object.DefaultSerializer, CompressionNone)
	require.NoError(t, err)
	defer codec.close()

	o := &object.Opaque{Kind: kind}
	data, err := object.DefaultSerializer.Serialize(o)
	require.NoError(t, err)
	id := NewObjectIdentifier(object.TypeOpaque, data)

	fn := FileName{Kind: FileKindData, Generation: generation}
	locations, _, err := serializeAndStoreMap(
		directory,
		fn.Component(),
		fn,
		map[ObjectIdentifier]object.MemoizableObject{id: o},
		ObjectIdentifier.Compare,
		blockPerEntry,
		block.KindObjectRecord,
		func(dst []byte, id ObjectIdentifier, o object.MemoizableObject) ([]byte, error) {
			dst, _, err := codec.appendObject(dst, id, o)
			return dst, err
		})
	require.NoError(t, err)
	return id, locations[id]
}

func writeTestIndexFile(t *testing.T, directory filesystem.Directory, generation uint64, locations map[ObjectIdentifier]Location) {
	fn := FileName{Kind: FileKindIndex, Generation: generation}
	_, err := writeIndexFile(directory, fn.Component(), fn, locations)
	require.NoError(t, err)
}

func TestRecoveryEngineRecursiveLoad(t *testing.T) {
	t.Run("InProgress", func(t *testing.T) {
		directory, err := filesystem.NewLocalDirectory(t.TempDir())
		require.NoError(t, err)
		defer directory.Close()
		writeTestDataFile(t, directory, 0, "a")

		r := newTestRecoveryEngine(t, directory)
		pairs := r.files.DiscoverPairs()
		require.Len(t, pairs, 1)

		rc := newRecoveryContext()
		rc.inProgress.Add(pairs[0].DataFile())
		testutil.RequireEqualStatus(
			t,
			status.Error(codes.Aborted, "Recursive load of store file \"STORE_0000000000000000.dat\" detected"),
			r.loadPair(rc, pairs[0]))
		require.Equal(t, 0, r.locations.Len())
		require.Contains(t, r.counters.String(), " recursive_load=1 ")
	})

	t.Run("AlreadyLoaded", func(t *testing.T) {
		directory, err := filesystem.NewLocalDirectory(t.TempDir())
		require.NoError(t, err)
		defer directory.Close()
		writeTestDataFile(t, directory, 0, "a")

		r := newTestRecoveryEngine(t, directory)
		pairs := r.files.DiscoverPairs()
		rc := newRecoveryContext()
		require.NoError(t, r.loadPair(rc, pairs[0]))
		require.Equal(t, 1, r.locations.Len())
		require.True(t, rc.loaded.Contains(pairs[0].DataFile()))
		require.False(t, rc.inProgress.Contains(pairs[0].DataFile()))

		// Loading the same pair again is a no-op.
		require.NoError(t, r.loadPair(rc, pairs[0]))
		require.Contains(t, r.counters.String(), " index_rebuilt=1 ")
	})

	t.Run("CrossReferencingIndexes", func(t *testing.T) {
		// Two index files that refer to each other's data files.
		// The index file that is loaded second detects the
		// cycle, causing its data file to be scanned instead.
		directory, err := filesystem.NewLocalDirectory(t.TempDir())
		require.NoError(t, err)
		defer directory.Close()
		idA, locationA := writeTestDataFile(t, directory, 0, "a")
		idB, locationB := writeTestDataFile(t, directory, 1, "b")
		both := map[ObjectIdentifier]Location{idA: locationA, idB: locationB}
		writeTestIndexFile(t, directory, 0, both)
		writeTestIndexFile(t, directory, 1, both)

		r := newTestRecoveryEngine(t, directory)
		entries := r.run()
		require.Empty(t, entries)
		require.Equal(t, 2, r.locations.Len())
		location, ok := r.locations.Lookup(idA)
		require.True(t, ok)
		require.Equal(t, locationA, location)
		location, ok = r.locations.Lookup(idB)
		require.True(t, ok)
		require.Equal(t, locationB, location)

		stats := r.counters.String()
		require.Contains(t, stats, " index_file_loaded=1 ")
		require.Contains(t, stats, " index_file_rejected=1 ")
		require.Contains(t, stats, " index_rebuilt=1 ")
		require.Contains(t, stats, " recursive_load=1 ")
	})

	t.Run("IndexReferringToOtherDataFile", func(t *testing.T) {
		// An index file may describe records stored in another
		// data file. That data file is loaded first.
		directory, err := filesystem.NewLocalDirectory(t.TempDir())
		require.NoError(t, err)
		defer directory.Close()
		idA, locationA := writeTestDataFile(t, directory, 0, "a")
		idB, locationB := writeTestDataFile(t, directory, 1, "b")
		writeTestIndexFile(t, directory, 0, map[ObjectIdentifier]Location{idA: locationA, idB: locationB})
		writeTestIndexFile(t, directory, 1, map[ObjectIdentifier]Location{idB: locationB})

		r := newTestRecoveryEngine(t, directory)
		r.run()
		require.Equal(t, 2, r.locations.Len())
		stats := r.counters.String()
		require.Contains(t, stats, " index_file_loaded=2 ")
		require.Contains(t, stats, " recursive_load=0 ")
	})

	t.Run("IndexReferringToMissingDataFile", func(t *testing.T) {
		directory, err := filesystem.NewLocalDirectory(t.TempDir())
		require.NoError(t, err)
		defer directory.Close()
		idA, locationA := writeTestDataFile(t, directory, 0, "a")
		writeTestIndexFile(t, directory, 0, map[ObjectIdentifier]Location{
			idA: locationA,
			NewObjectIdentifier(object.TypeOpaque, []byte("missing")): {
				File:        path.MustNewComponent("STORE_0000000000000005.dat"),
				OffsetBytes: 20,
				SizeBytes:   30,
			},
		})

		r := newTestRecoveryEngine(t, directory)
		r.run()
		require.Equal(t, 1, r.locations.Len())
		require.True(t, r.locations.Contains(idA))
		require.Contains(t, r.counters.String(), " index_rebuilt=1 ")
	})
}
