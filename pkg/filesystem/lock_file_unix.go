//go:build darwin || freebsd || linux
// +build darwin freebsd linux

package filesystem

import (
	"io"
	"runtime"
	"syscall"

	"github.com/buildbarn/bb-compiler-store/pkg/filesystem/path"

	"golang.org/x/sys/unix"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type lockFile struct {
	fd int
}

// AcquireLockFile creates or opens a file inside a local directory and
// places an exclusive advisory lock on it. The lock is held until the
// returned io.Closer is closed. The file's contents are replaced by the
// provided owner string, which makes it possible to see which process
// holds the lock.
//
// Acquisition does not block. If another process or another handle in
// the current process already holds the lock, an error with code
// FailedPrecondition is returned.
func AcquireLockFile(d Directory, name path.Component, owner string) (io.Closer, error) {
	ld, ok := d.(*localDirectory)
	if !ok {
		return nil, status.Error(codes.Unimplemented, "Lock files can only be placed in local directories")
	}
	defer runtime.KeepAlive(ld)

	fd, err := unix.Openat(ld.fd, name.String(), unix.O_CREAT|unix.O_RDWR|unix.O_NOFOLLOW|unix.O_CLOEXEC, 0o666)
	if err != nil {
		return nil, err
	}
	if err := unix.Flock(fd, unix.LOCK_EX|unix.LOCK_NB); err != nil {
		unix.Close(fd)
		if err == syscall.EWOULDBLOCK {
			return nil, status.Errorf(codes.FailedPrecondition, "Lock file %#v is held by another owner", name.String())
		}
		return nil, err
	}
	if err := unix.Ftruncate(fd, 0); err != nil {
		unix.Close(fd)
		return nil, err
	}
	if _, err := unix.Pwrite(fd, []byte(owner+"\n"), 0); err != nil {
		unix.Close(fd)
		return nil, err
	}
	l := &lockFile{fd: fd}
	runtime.SetFinalizer(l, (*lockFile).Close)
	return l, nil
}

func (l *lockFile) Close() error {
	fd := l.fd
	if fd < 0 {
		return nil
	}
	l.fd = -1
	runtime.SetFinalizer(l, nil)
	// Closing the descriptor releases the flock().
	return unix.Close(fd)
}
