//go:build darwin || freebsd || linux
// +build darwin freebsd linux

package filesystem

import (
	"os"
	"runtime"
	"sort"
	"syscall"

	"github.com/buildbarn/bb-compiler-store/pkg/filesystem/path"

	"golang.org/x/sys/unix"
)

type localDirectory struct {
	fd int
}

func newLocalDirectoryFromFileDescriptor(fd int) (*localDirectory, error) {
	d := &localDirectory{
		fd: fd,
	}
	runtime.SetFinalizer(d, (*localDirectory).Close)
	return d, nil
}

// NewLocalDirectory creates a directory handle that corresponds to a
// local path on the system.
func NewLocalDirectory(path string) (DirectoryCloser, error) {
	fd, err := unix.Openat(unix.AT_FDCWD, path, unix.O_DIRECTORY|unix.O_NOFOLLOW|unix.O_RDONLY, 0)
	if err != nil {
		return nil, err
	}
	return newLocalDirectoryFromFileDescriptor(fd)
}

func (d *localDirectory) Close() error {
	fd := d.fd
	d.fd = -1
	runtime.SetFinalizer(d, nil)
	return unix.Close(fd)
}

func (d *localDirectory) open(name path.Component, creationMode CreationMode, flag int) (*os.File, error) {
	defer runtime.KeepAlive(d)

	fd, err := unix.Openat(d.fd, name.String(), flag|creationMode.flags|unix.O_NOFOLLOW|unix.O_CLOEXEC, uint32(creationMode.permissions))
	if err != nil {
		if runtime.GOOS == "freebsd" && err == syscall.EMLINK {
			// FreeBSD erroneously returns EMLINK.
			return nil, syscall.ELOOP
		}
		return nil, err
	}
	return os.NewFile(uintptr(fd), name.String()), nil
}

func (d *localDirectory) OpenAppend(name path.Component, creationMode CreationMode) (FileAppender, error) {
	return d.open(name, creationMode, os.O_APPEND|os.O_WRONLY)
}

func (d *localDirectory) OpenRead(name path.Component) (FileReader, error) {
	return d.open(name, DontCreate, os.O_RDONLY)
}

func (d *localDirectory) Lstat(name path.Component) (FileInfo, error) {
	defer runtime.KeepAlive(d)

	var stat unix.Stat_t
	if err := unix.Fstatat(d.fd, name.String(), &stat, unix.AT_SYMLINK_NOFOLLOW); err != nil {
		return FileInfo{}, err
	}
	fileType := FileTypeOther
	switch stat.Mode & syscall.S_IFMT {
	case syscall.S_IFDIR:
		fileType = FileTypeDirectory
	case syscall.S_IFLNK:
		fileType = FileTypeSymlink
	case syscall.S_IFREG:
		fileType = FileTypeRegularFile
	}
	return NewFileInfo(name, fileType, stat.Size), nil
}

func (d *localDirectory) readdirnames() ([]string, error) {
	defer runtime.KeepAlive(d)

	// Obtain filenames in current directory.
	fd, err := unix.Openat(d.fd, ".", unix.O_DIRECTORY|unix.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, err
	}
	f := os.NewFile(uintptr(fd), ".")
	names, err := f.Readdirnames(-1)
	f.Close()
	return names, err
}

func (d *localDirectory) ReadDir() ([]FileInfo, error) {
	names, err := d.readdirnames()
	if err != nil {
		return nil, err
	}
	sort.Strings(names)

	// Obtain file info.
	list := make([]FileInfo, 0, len(names))
	for _, name := range names {
		info, err := d.Lstat(path.MustNewComponent(name))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		list = append(list, info)
	}
	return list, nil
}

func (d *localDirectory) Remove(name path.Component) error {
	defer runtime.KeepAlive(d)

	return unix.Unlinkat(d.fd, name.String(), 0)
}

func (d *localDirectory) Rename(oldName path.Component, newDirectory Directory, newName path.Component) error {
	defer runtime.KeepAlive(d)
	return newDirectory.Apply(localDirectoryRename{
		oldFD:   d.fd,
		oldName: oldName,
		newName: newName,
	})
}

func (d *localDirectory) Sync() error {
	defer runtime.KeepAlive(d)

	return unix.Fsync(d.fd)
}

type localDirectoryRename struct {
	oldFD   int
	oldName path.Component
	newName path.Component
}

func (d *localDirectory) Apply(arg interface{}) error {
	switch a := arg.(type) {
	case localDirectoryRename:
		defer runtime.KeepAlive(d)
		return unix.Renameat(a.oldFD, a.oldName.String(), d.fd, a.newName.String())
	default:
		return syscall.EXDEV
	}
}
