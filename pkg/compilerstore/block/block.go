package block

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/minio/highwayhash"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protowire"
)

// Kind of the payload stored in a block. The kind is covered by the
// checksum, so a block can never be misinterpreted as a block of
// another kind without being detected.
type Kind uint8

const (
	// KindFileHeader blocks are placed at the start of every store
	// and map file. They describe the file's contents.
	KindFileHeader Kind = 1
	// KindObjectRecord blocks hold a single serialized object.
	KindObjectRecord Kind = 2
	// KindIndex blocks hold the directory of object records
	// contained in a data file.
	KindIndex Kind = 3
	// KindCompilerMap blocks hold a snapshot of the compiler map.
	KindCompilerMap Kind = 4
)

func (k Kind) String() string {
	switch k {
	case KindFileHeader:
		return "FileHeader"
	case KindObjectRecord:
		return "ObjectRecord"
	case KindIndex:
		return "Index"
	case KindCompilerMap:
		return "CompilerMap"
	default:
		return "Unknown"
	}
}

const (
	// ChecksumSizeBytes is the size of the checksum trailing every
	// block.
	ChecksumSizeBytes = 8

	// maximumPayloadSizeBytes bounds the payload length that may be
	// stored in a block header, so that a damaged length field
	// can't cause huge allocations. The size of the entire block
	// must also fit in an int on 32-bit platforms.
	maximumPayloadSizeBytes = math.MaxInt32 - (len(Magic) + 1 + binary.MaxVarintLen64) - ChecksumSizeBytes
)

// Magic is the sequence of bytes every block starts with. It allows the
// Scanner to find the start of the next block after damaged data.
var Magic = [4]byte{'C', 'S', 'B', '1'}

// checksumKey is the fixed HighwayHash key. Checksums only need to
// detect accidental corruption, so it does not need to be secret. It
// does need to remain stable to keep existing files readable.
var checksumKey = []byte("bb-compiler-store/block/checksum")

var (
	errTruncatedHeader   = status.Error(codes.OutOfRange, "Block header is truncated")
	errTruncatedPayload  = status.Error(codes.OutOfRange, "Block payload is truncated")
	errTruncatedChecksum = status.Error(codes.OutOfRange, "Block checksum is truncated")
	errBadMagic          = status.Error(codes.DataLoss, "Block does not start with the expected magic")
	errBadLength         = status.Error(codes.DataLoss, "Block header contains an invalid payload length")
	errChecksumMismatch  = status.Error(codes.DataLoss, "Block checksum mismatch")
)

// Block is a decoded, checksum-validated unit of data.
type Block struct {
	Kind    Kind
	Payload []byte
}

func computeChecksum(data []byte) uint64 {
	return highwayhash.Sum64(data, checksumKey)
}

// AppendEncoded appends a block containing the provided payload to a
// byte slice. Encoding is deterministic: the same kind and payload
// always yield the same bytes.
func AppendEncoded(dst []byte, kind Kind, payload []byte) []byte {
	start := len(dst)
	dst = append(dst, Magic[:]...)
	dst = append(dst, byte(kind))
	dst = protowire.AppendVarint(dst, uint64(len(payload)))
	dst = append(dst, payload...)
	return binary.LittleEndian.AppendUint64(dst, computeChecksum(dst[start:]))
}

// Encode a payload as a standalone block.
func Encode(kind Kind, payload []byte) []byte {
	return AppendEncoded(nil, kind, payload)
}

// EncodedSizeBytes returns the number of bytes AppendEncoded() emits
// for a payload of a given size.
func EncodedSizeBytes(payloadSizeBytes int) int {
	return len(Magic) + 1 + protowire.SizeVarint(uint64(payloadSizeBytes)) + payloadSizeBytes + ChecksumSizeBytes
}

// parseHeader extracts the kind and payload length of the block at
// the start of data, returning the size of the header.
func parseHeader(data []byte) (Kind, int, int, error) {
	if len(data) < len(Magic)+1 {
		return 0, 0, 0, errTruncatedHeader
	}
	if !bytes.Equal(data[:len(Magic)], Magic[:]) {
		return 0, 0, 0, errBadMagic
	}
	kind := Kind(data[len(Magic)])
	length, n := protowire.ConsumeVarint(data[len(Magic)+1:])
	if n < 0 {
		if len(data) < len(Magic)+1+binary.MaxVarintLen64 {
			return 0, 0, 0, errTruncatedHeader
		}
		return 0, 0, 0, errBadLength
	}
	if length > uint64(maximumPayloadSizeBytes) {
		return 0, 0, 0, errBadLength
	}
	return kind, int(length), len(Magic) + 1 + n, nil
}

// Decode the block stored at the start of a byte slice. Upon success,
// the block and the number of bytes it occupies are returned. The
// returned payload aliases the input.
//
// Errors with code OutOfRange are returned if the input ends before
// the block does. Errors with code DataLoss are returned if the block
// is damaged.
func Decode(data []byte) (Block, int, error) {
	kind, length, headerSize, err := parseHeader(data)
	if err != nil {
		return Block{}, 0, err
	}
	if len(data)-headerSize < length {
		return Block{}, 0, errTruncatedPayload
	}
	end := headerSize + length
	if len(data)-end < ChecksumSizeBytes {
		return Block{}, 0, errTruncatedChecksum
	}
	if computeChecksum(data[:end]) != binary.LittleEndian.Uint64(data[end:]) {
		return Block{}, 0, errChecksumMismatch
	}
	return Block{
		Kind:    kind,
		Payload: data[headerSize:end],
	}, end + ChecksumSizeBytes, nil
}

// DecodeExactly decodes a byte slice that is expected to contain
// exactly one block of a given kind.
func DecodeExactly(data []byte, expectedKind Kind) ([]byte, error) {
	b, n, err := Decode(data)
	if err != nil {
		return nil, err
	}
	if n != len(data) {
		return nil, status.Errorf(codes.DataLoss, "Block is followed by %d bytes of trailing data", len(data)-n)
	}
	if b.Kind != expectedKind {
		return nil, status.Errorf(codes.DataLoss, "Block has kind %s, while %s was expected", b.Kind, expectedKind)
	}
	return b.Payload, nil
}

// IsCorrupt returns true if an error returned by Decode() indicates
// that a block is damaged.
func IsCorrupt(err error) bool {
	return status.Code(err) == codes.DataLoss
}

// IsTruncated returns true if an error returned by Decode() indicates
// that the input ended before the block did.
func IsTruncated(err error) bool {
	return status.Code(err) == codes.OutOfRange
}
