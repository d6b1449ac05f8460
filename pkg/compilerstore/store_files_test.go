package compilerstore_test

import (
	"syscall"
	"testing"

	"github.com/buildbarn/bb-compiler-store/internal/mock"
	"github.com/buildbarn/bb-compiler-store/pkg/compilerstore"
	"github.com/buildbarn/bb-compiler-store/pkg/filesystem"
	"github.com/buildbarn/bb-compiler-store/pkg/filesystem/path"
	"github.com/buildbarn/bb-compiler-store/pkg/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestParseFileName(t *testing.T) {
	for name, expected := range map[string]compilerstore.FileName{
		"STORE_0000000000000000.dat": {Kind: compilerstore.FileKindData, Generation: 0},
		"STORE_00000000000000ff.idx": {Kind: compilerstore.FileKindIndex, Generation: 255},
		"MAP_ffffffffffffffff.map":   {Kind: compilerstore.FileKindMap, Generation: ^uint64(0)},
	} {
		t.Run(name, func(t *testing.T) {
			fn, ok := compilerstore.ParseFileName(path.MustNewComponent(name))
			require.True(t, ok)
			require.Equal(t, expected, fn)
			require.Equal(t, name, fn.Component().String())
		})
	}

	for _, name := range []string{
		"LOCK",
		"STORE_0000000000000000.map",
		"MAP_0000000000000000.dat",
		"STORE_000000000000000.dat",
		"STORE_00000000000000000.dat",
		"STORE_00000000000000FF.dat",
		"STORE_000000000000000g.dat",
		"STORE_0000000000000000.idx.new",
		"store_0000000000000000.dat",
	} {
		t.Run(name, func(t *testing.T) {
			_, ok := compilerstore.ParseFileName(path.MustNewComponent(name))
			require.False(t, ok)
		})
	}
}

func TestSiblingFiles(t *testing.T) {
	t.Run("IndexFileForDataFile", func(t *testing.T) {
		indexFile, ok := compilerstore.IndexFileForDataFile(path.MustNewComponent("STORE_000000000000002a.dat"))
		require.True(t, ok)
		require.Equal(t, path.MustNewComponent("STORE_000000000000002a.idx"), indexFile)

		_, ok = compilerstore.IndexFileForDataFile(path.MustNewComponent("STORE_000000000000002a.idx"))
		require.False(t, ok)
	})

	t.Run("DataFileForIndexFile", func(t *testing.T) {
		dataFile, ok := compilerstore.DataFileForIndexFile(path.MustNewComponent("STORE_000000000000002a.idx"))
		require.True(t, ok)
		require.Equal(t, path.MustNewComponent("STORE_000000000000002a.dat"), dataFile)

		_, ok = compilerstore.DataFileForIndexFile(path.MustNewComponent("MAP_000000000000002a.map"))
		require.False(t, ok)
	})
}

func regularFile(name string) filesystem.FileInfo {
	return filesystem.NewFileInfo(path.MustNewComponent(name), filesystem.FileTypeRegularFile, 0)
}

func TestStoreFilePairManager(t *testing.T) {
	ctrl := gomock.NewController(t)

	t.Run("ReadDirFailure", func(t *testing.T) {
		directory := mock.NewMockDirectory(ctrl)
		directory.EXPECT().ReadDir().Return(nil, syscall.EACCES)

		_, err := compilerstore.NewStoreFilePairManager(directory)
		testutil.RequireEqualStatus(t, status.Error(codes.FailedPrecondition, "Failed to read base directory: permission denied"), err)
	})

	t.Run("EmptyDirectory", func(t *testing.T) {
		directory := mock.NewMockDirectory(ctrl)
		directory.EXPECT().ReadDir().Return(nil, nil)

		m, err := compilerstore.NewStoreFilePairManager(directory)
		require.NoError(t, err)
		require.Empty(t, m.DiscoverPairs())
		require.Empty(t, m.DiscoverMapFiles())

		pair := m.FreshStoreFilePair()
		require.Equal(t, path.MustNewComponent("STORE_0000000000000000.dat"), pair.DataFile())
		require.Equal(t, path.MustNewComponent("STORE_0000000000000000.idx"), pair.IndexFile())
		require.Equal(t, path.MustNewComponent("MAP_0000000000000001.map"), m.FreshMapFile())
	})

	t.Run("Discovery", func(t *testing.T) {
		directory := mock.NewMockDirectory(ctrl)
		directory.EXPECT().ReadDir().Return([]filesystem.FileInfo{
			regularFile("LOCK"),
			regularFile("MAP_0000000000000002.map"),
			regularFile("MAP_0000000000000005.map"),
			regularFile("STORE_0000000000000000.dat"),
			regularFile("STORE_0000000000000000.idx"),
			regularFile("STORE_0000000000000003.dat"),
			regularFile("STORE_0000000000000003.idx.new"),
			regularFile("STORE_0000000000000007.idx"),
			filesystem.NewFileInfo(path.MustNewComponent("STORE_0000000000000009.dat"), filesystem.FileTypeDirectory, 0),
			regularFile("unrelated.txt"),
		}, nil)

		m, err := compilerstore.NewStoreFilePairManager(directory)
		require.NoError(t, err)
		require.Equal(t, []compilerstore.StoreFilePair{
			{Generation: 0, HasData: true, HasIndex: true},
			{Generation: 3, HasData: true},
			{Generation: 7, HasIndex: true},
		}, m.DiscoverPairs())
		require.Equal(t, []path.Component{
			path.MustNewComponent("MAP_0000000000000005.map"),
			path.MustNewComponent("MAP_0000000000000002.map"),
		}, m.DiscoverMapFiles())
		require.Equal(t, []path.Component{
			path.MustNewComponent("STORE_0000000000000003.idx.new"),
		}, m.DiscoverTemporaryFiles())

		pair, ok := m.LookupPair(path.MustNewComponent("STORE_0000000000000003.dat"))
		require.True(t, ok)
		require.Equal(t, compilerstore.StoreFilePair{Generation: 3, HasData: true}, pair)
		_, ok = m.LookupPair(path.MustNewComponent("STORE_0000000000000007.dat"))
		require.False(t, ok)

		// Fresh names must never collide with files that have
		// been observed.
		require.Equal(t, compilerstore.StoreFilePair{Generation: 8}, m.FreshStoreFilePair())
		require.Equal(t, path.MustNewComponent("MAP_0000000000000009.map"), m.FreshMapFile())
	})
}
