package compilerstore

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"

	"github.com/buildbarn/bb-compiler-store/pkg/compilerstore/object"
	"github.com/zeebo/blake3"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ObjectIdentifier is a stable handle of an object stored in an
// OnDiskCompilerStore, independent of the location at which it is
// stored.
type ObjectIdentifier [32]byte

// NewObjectIdentifier derives the identifier of an object from its
// type tag and serialized form, using BLAKE3. Distinct objects are
// therefore given distinct identifiers, while storing the same object
// twice yields the same identifier.
func NewObjectIdentifier(objectType object.Type, serialized []byte) ObjectIdentifier {
	h := blake3.New()
	var tag [4]byte
	binary.LittleEndian.PutUint32(tag[:], uint32(objectType))
	h.Write(tag[:])
	h.Write(serialized)
	var id ObjectIdentifier
	h.Sum(id[:0])
	return id
}

// ParseObjectIdentifier parses the hexadecimal representation of an
// ObjectIdentifier, as returned by String().
func ParseObjectIdentifier(s string) (ObjectIdentifier, error) {
	var id ObjectIdentifier
	if err := parseHex(s, id[:]); err != nil {
		return ObjectIdentifier{}, err
	}
	return id, nil
}

// Compare two identifiers, returning -1, 0 or 1. Identifiers are
// totally ordered by their byte representation.
func (id ObjectIdentifier) Compare(other ObjectIdentifier) int {
	return bytes.Compare(id[:], other[:])
}

func (id ObjectIdentifier) String() string {
	return hex.EncodeToString(id[:])
}

// CompilerMapKey is a structural fingerprint of the input of the
// compiler. Compilations of identical input share the same key.
type CompilerMapKey [32]byte

// NewCompilerMapKey derives a CompilerMapKey from a canonical
// serialization of the compiler's input, using BLAKE3.
func NewCompilerMapKey(input []byte) CompilerMapKey {
	return blake3.Sum256(input)
}

// ParseCompilerMapKey parses the hexadecimal representation of a
// CompilerMapKey, as returned by String().
func ParseCompilerMapKey(s string) (CompilerMapKey, error) {
	var key CompilerMapKey
	if err := parseHex(s, key[:]); err != nil {
		return CompilerMapKey{}, err
	}
	return key, nil
}

// Compare two keys, returning -1, 0 or 1.
func (k CompilerMapKey) Compare(other CompilerMapKey) int {
	return bytes.Compare(k[:], other[:])
}

func (k CompilerMapKey) String() string {
	return hex.EncodeToString(k[:])
}

func parseHex(s string, out []byte) error {
	if len(s) != 2*len(out) {
		return status.Errorf(codes.InvalidArgument, "Expected %d hexadecimal characters, got %d", 2*len(out), len(s))
	}
	if _, err := hex.Decode(out, []byte(s)); err != nil {
		return status.Errorf(codes.InvalidArgument, "Invalid hexadecimal value: %s", err)
	}
	return nil
}
