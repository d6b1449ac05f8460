package compilerstore

import (
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Errors returned by OnDiskCompilerStore carry gRPC status codes. The
// following codes are used consistently:
//
//   - DataLoss: a block or record failed checksum validation.
//   - OutOfRange: a block or file ended prematurely.
//   - NotFound: a file that was expected to exist is absent.
//   - Aborted: a recursive load of a store file was detected.
//   - AlreadyExists: an object was stored under an identifier that is
//     already persisted.
//   - Unavailable: FlushToDisk() failed. Pending objects are retained,
//     so that flushing may be retried.
//   - FailedPrecondition: the base directory could not be opened or is
//     bound to another store instance.
//   - InvalidArgument: an object was requested as a type other than the
//     one it was stored as.

func newDuplicateObjectError(id ObjectIdentifier) error {
	return status.Errorf(codes.AlreadyExists, "Object %s has already been persisted", id)
}

func newRecursiveLoadError(file string) error {
	return status.Errorf(codes.Aborted, "Recursive load of store file %#v detected", file)
}

func newTypeMismatchError(id ObjectIdentifier, expected, actual string) error {
	return status.Errorf(codes.InvalidArgument, "Object %s has type %s, while %s was requested", id, actual, expected)
}
