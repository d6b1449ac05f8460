package util

import (
	"fmt"
	"os"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// StatusWrap prepends a string to the message of an existing error.
func StatusWrap(err error, msg string) error {
	p := status.Convert(err).Proto()
	p.Message = fmt.Sprintf("%s: %s", msg, p.Message)
	return status.ErrorProto(p)
}

// StatusWrapf prepends a formatted string to the message of an existing error.
func StatusWrapf(err error, format string, args ...interface{}) error {
	return StatusWrap(err, fmt.Sprintf(format, args...))
}

// StatusWrapWithCode prepends a string to the message of an existing
// error, while replacing the error code.
func StatusWrapWithCode(err error, code codes.Code, msg string) error {
	p := status.Convert(err).Proto()
	p.Code = int32(code)
	p.Message = fmt.Sprintf("%s: %s", msg, p.Message)
	return status.ErrorProto(p)
}

// StatusWrapfWithCode prepends a formatted string to the message of an
// existing error, while replacing the error code.
func StatusWrapfWithCode(err error, code codes.Code, format string, args ...interface{}) error {
	return StatusWrapWithCode(err, code, fmt.Sprintf(format, args...))
}

// StatusWrapFileError prepends a string to the message of an error
// returned by a file system operation. Errors that do not carry a
// status code are given one that corresponds to the kind of failure:
// NotFound for missing files, PermissionDenied for access violations
// and Internal for everything else.
func StatusWrapFileError(err error, msg string) error {
	if _, ok := status.FromError(err); ok {
		return StatusWrap(err, msg)
	}
	code := codes.Internal
	if os.IsNotExist(err) {
		code = codes.NotFound
	} else if os.IsPermission(err) {
		code = codes.PermissionDenied
	}
	return StatusWrapWithCode(err, code, msg)
}

// StatusWrapfFileError prepends a formatted string to the message of
// an error returned by a file system operation.
func StatusWrapfFileError(err error, format string, args ...interface{}) error {
	return StatusWrapFileError(err, fmt.Sprintf(format, args...))
}
