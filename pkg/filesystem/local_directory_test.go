package filesystem_test

import (
	"os"
	"syscall"
	"testing"

	"github.com/buildbarn/bb-compiler-store/pkg/filesystem"
	"github.com/buildbarn/bb-compiler-store/pkg/filesystem/path"
	"github.com/buildbarn/bb-compiler-store/pkg/testutil"
	"github.com/stretchr/testify/require"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func openTmpDir(t *testing.T) filesystem.DirectoryCloser {
	d, err := filesystem.NewLocalDirectory(t.TempDir())
	require.NoError(t, err)
	return d
}

func writeFile(t *testing.T, d filesystem.Directory, name string, data string) {
	f, err := d.OpenAppend(path.MustNewComponent(name), filesystem.CreateExcl(0o666))
	require.NoError(t, err)
	_, err = f.Write([]byte(data))
	require.NoError(t, err)
	require.NoError(t, f.Sync())
	require.NoError(t, f.Close())
}

func TestLocalDirectoryCreationFailure(t *testing.T) {
	_, err := filesystem.NewLocalDirectory("/nonexistent")
	require.True(t, os.IsNotExist(err))
}

func TestLocalDirectoryCreationSuccess(t *testing.T) {
	d := openTmpDir(t)
	require.NoError(t, d.Close())
}

func TestLocalDirectoryOpenAppendExistent(t *testing.T) {
	d := openTmpDir(t)
	writeFile(t, d, "file", "Hello")
	_, err := d.OpenAppend(path.MustNewComponent("file"), filesystem.CreateExcl(0o666))
	require.True(t, os.IsExist(err))
	require.NoError(t, d.Close())
}

func TestLocalDirectoryOpenReadNonExistent(t *testing.T) {
	d := openTmpDir(t)
	_, err := d.OpenRead(path.MustNewComponent("file"))
	require.True(t, os.IsNotExist(err))
	require.NoError(t, d.Close())
}

func TestLocalDirectoryReadFile(t *testing.T) {
	d := openTmpDir(t)
	writeFile(t, d, "file", "Hello")
	data, err := filesystem.ReadFile(d, path.MustNewComponent("file"))
	require.NoError(t, err)
	require.Equal(t, []byte("Hello"), data)
	require.NoError(t, d.Close())
}

func TestLocalDirectoryLstat(t *testing.T) {
	d := openTmpDir(t)

	t.Run("NonExistent", func(t *testing.T) {
		_, err := d.Lstat(path.MustNewComponent("hello"))
		require.True(t, os.IsNotExist(err))
	})

	t.Run("File", func(t *testing.T) {
		writeFile(t, d, "file", "Hello")
		fi, err := d.Lstat(path.MustNewComponent("file"))
		require.NoError(t, err)
		require.Equal(t, path.MustNewComponent("file"), fi.Name())
		require.Equal(t, filesystem.FileTypeRegularFile, fi.Type())
		require.Equal(t, int64(5), fi.SizeBytes())
	})

	require.NoError(t, d.Close())
}

func TestLocalDirectoryReadDir(t *testing.T) {
	d := openTmpDir(t)

	// Prepare file system.
	writeFile(t, d, "MAP_0000000000000002.map", "")
	writeFile(t, d, "STORE_0000000000000001.dat", "")
	writeFile(t, d, "STORE_0000000000000001.idx", "")

	// Validate directory listing.
	files, err := d.ReadDir()
	require.NoError(t, err)
	require.Len(t, files, 3)
	require.Equal(t, path.MustNewComponent("MAP_0000000000000002.map"), files[0].Name())
	require.Equal(t, path.MustNewComponent("STORE_0000000000000001.dat"), files[1].Name())
	require.Equal(t, path.MustNewComponent("STORE_0000000000000001.idx"), files[2].Name())

	require.NoError(t, d.Close())
}

func TestLocalDirectoryRemove(t *testing.T) {
	d := openTmpDir(t)

	t.Run("NonExistent", func(t *testing.T) {
		require.True(t, os.IsNotExist(d.Remove(path.MustNewComponent("file"))))
	})

	t.Run("File", func(t *testing.T) {
		writeFile(t, d, "file", "")
		require.NoError(t, d.Remove(path.MustNewComponent("file")))
		_, err := d.Lstat(path.MustNewComponent("file"))
		require.True(t, os.IsNotExist(err))
	})

	require.NoError(t, d.Close())
}

func TestLocalDirectoryRename(t *testing.T) {
	d := openTmpDir(t)

	t.Run("NotFound", func(t *testing.T) {
		require.Equal(t, syscall.ENOENT, d.Rename(path.MustNewComponent("source"), d, path.MustNewComponent("target")))
	})

	t.Run("Overwrite", func(t *testing.T) {
		writeFile(t, d, "source", "new")
		writeFile(t, d, "target", "old")
		require.NoError(t, d.Rename(path.MustNewComponent("source"), d, path.MustNewComponent("target")))
		data, err := filesystem.ReadFile(d, path.MustNewComponent("target"))
		require.NoError(t, err)
		require.Equal(t, []byte("new"), data)
	})

	require.NoError(t, d.Close())
}

func TestLocalDirectorySync(t *testing.T) {
	d := openTmpDir(t)
	require.NoError(t, d.Sync())
	require.NoError(t, d.Close())
}

func TestAcquireLockFile(t *testing.T) {
	d := openTmpDir(t)

	lock1, err := filesystem.AcquireLockFile(d, path.MustNewComponent("LOCK"), "owner-1")
	require.NoError(t, err)

	t.Run("HeldByOther", func(t *testing.T) {
		_, err := filesystem.AcquireLockFile(d, path.MustNewComponent("LOCK"), "owner-2")
		testutil.RequireEqualStatus(t, status.Error(codes.FailedPrecondition, "Lock file \"LOCK\" is held by another owner"), err)
	})

	t.Run("Contents", func(t *testing.T) {
		data, err := filesystem.ReadFile(d, path.MustNewComponent("LOCK"))
		require.NoError(t, err)
		require.Equal(t, []byte("owner-1\n"), data)
	})

	t.Run("Reacquire", func(t *testing.T) {
		require.NoError(t, lock1.Close())
		lock2, err := filesystem.AcquireLockFile(d, path.MustNewComponent("LOCK"), "owner-2")
		require.NoError(t, err)
		require.NoError(t, lock2.Close())
	})

	t.Run("NonLocalDirectory", func(t *testing.T) {
		_, err := filesystem.AcquireLockFile(filesystem.NopDirectoryCloser(d), path.MustNewComponent("LOCK"), "owner-3")
		require.Equal(t, codes.Unimplemented, status.Code(err))
	})

	require.NoError(t, d.Close())
}
