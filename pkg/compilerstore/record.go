package compilerstore

import (
	"github.com/buildbarn/bb-compiler-store/pkg/compilerstore/block"
	"github.com/buildbarn/bb-compiler-store/pkg/compilerstore/object"
	"github.com/buildbarn/bb-compiler-store/pkg/filesystem/path"
	"github.com/buildbarn/bb-compiler-store/pkg/util"
	"github.com/klauspost/compress/zstd"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protowire"
)

// Compression algorithm applied to the serialized form of an object
// before it is written to a data file. Every record carries the
// algorithm used, so that changing the configured compression does not
// affect the readability of existing data files.
type Compression uint64

const (
	// CompressionNone stores the serialized form as is.
	CompressionNone Compression = 0
	// CompressionZstd compresses the serialized form using
	// Zstandard.
	CompressionZstd Compression = 1
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionZstd:
		return "zstd"
	default:
		return "unknown"
	}
}

// Field numbers of the payloads of blocks. Payloads are sequences of
// Protobuf wire format fields. Unknown fields are skipped when
// decoding.
const (
	fileHeaderFieldKind        protowire.Number = 1
	fileHeaderFieldGeneration  protowire.Number = 2
	fileHeaderFieldRecordCount protowire.Number = 3

	objectRecordFieldIdentifier  protowire.Number = 1
	objectRecordFieldType        protowire.Number = 2
	objectRecordFieldCompression protowire.Number = 3
	objectRecordFieldData        protowire.Number = 4

	indexEntryFieldIdentifier  protowire.Number = 1
	indexEntryFieldFile        protowire.Number = 2
	indexEntryFieldOffsetBytes protowire.Number = 3
	indexEntryFieldSizeBytes   protowire.Number = 4

	compilerMapEntryFieldKey        protowire.Number = 1
	compilerMapEntryFieldIdentifier protowire.Number = 2

	repeatedFieldEntry protowire.Number = 1
)

func newMalformedRecordError(what string, err error) error {
	return status.Errorf(codes.DataLoss, "Malformed %s: %s", what, err)
}

// consumeFields invokes a callback for every varint and length
// delimited field contained in a payload.
func consumeFields(payload []byte, what string, fn func(num protowire.Number, bytesValue []byte, varintValue uint64) error) error {
	for len(payload) > 0 {
		num, typ, n := protowire.ConsumeTag(payload)
		if n < 0 {
			return newMalformedRecordError(what, protowire.ParseError(n))
		}
		payload = payload[n:]
		switch typ {
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(payload)
			if n < 0 {
				return newMalformedRecordError(what, protowire.ParseError(n))
			}
			if err := fn(num, nil, v); err != nil {
				return err
			}
			payload = payload[n:]
		case protowire.BytesType:
			v, n := protowire.ConsumeBytes(payload)
			if n < 0 {
				return newMalformedRecordError(what, protowire.ParseError(n))
			}
			if err := fn(num, v, 0); err != nil {
				return err
			}
			payload = payload[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, payload)
			if n < 0 {
				return newMalformedRecordError(what, protowire.ParseError(n))
			}
			payload = payload[n:]
		}
	}
	return nil
}

func consumeFixedSize(dst []byte, value []byte, what string) error {
	if len(value) != len(dst) {
		return status.Errorf(codes.DataLoss, "Malformed %s: expected %d bytes, got %d", what, len(dst), len(value))
	}
	copy(dst, value)
	return nil
}

// fileHeader is stored in the first block of every data, index and
// map file. The kind and generation must match the name of the file,
// which prevents files from being used under a name other than the
// one they were written as.
type fileHeader struct {
	kind        FileKind
	generation  uint64
	recordCount uint64
}

func appendFileHeader(dst []byte, h fileHeader) []byte {
	dst = protowire.AppendTag(dst, fileHeaderFieldKind, protowire.VarintType)
	dst = protowire.AppendVarint(dst, uint64(h.kind))
	dst = protowire.AppendTag(dst, fileHeaderFieldGeneration, protowire.VarintType)
	dst = protowire.AppendVarint(dst, h.generation)
	dst = protowire.AppendTag(dst, fileHeaderFieldRecordCount, protowire.VarintType)
	return protowire.AppendVarint(dst, h.recordCount)
}

func decodeFileHeader(payload []byte) (fileHeader, error) {
	var h fileHeader
	err := consumeFields(payload, "file header", func(num protowire.Number, _ []byte, v uint64) error {
		switch num {
		case fileHeaderFieldKind:
			h.kind = FileKind(v)
		case fileHeaderFieldGeneration:
			h.generation = v
		case fileHeaderFieldRecordCount:
			h.recordCount = v
		}
		return nil
	})
	return h, err
}

// decodeFileHeaderBlock decodes the header block at the start of a
// file and checks it against the file's name. It returns the number of
// bytes occupied by the header block.
func decodeFileHeaderBlock(data []byte, name FileName) (fileHeader, int, error) {
	b, n, err := block.Decode(data)
	if err != nil {
		return fileHeader{}, 0, util.StatusWrap(err, "Failed to decode file header")
	}
	if b.Kind != block.KindFileHeader {
		return fileHeader{}, 0, status.Errorf(codes.DataLoss, "File starts with a block of kind %s", b.Kind)
	}
	h, err := decodeFileHeader(b.Payload)
	if err != nil {
		return fileHeader{}, 0, err
	}
	if h.kind != name.Kind || h.generation != name.Generation {
		return fileHeader{}, 0, status.Errorf(codes.DataLoss, "File header describes %s file with generation %016x", h.kind, h.generation)
	}
	return h, n, nil
}

// objectRecord is the payload of a block in a data file. The
// identifier is stored alongside the object, so that records can be
// recovered by scanning the data file without consulting its index.
type objectRecord struct {
	id          ObjectIdentifier
	objectType  object.Type
	compression Compression
	data        []byte
}

func appendObjectRecord(dst []byte, r objectRecord) []byte {
	dst = protowire.AppendTag(dst, objectRecordFieldIdentifier, protowire.BytesType)
	dst = protowire.AppendBytes(dst, r.id[:])
	dst = protowire.AppendTag(dst, objectRecordFieldType, protowire.VarintType)
	dst = protowire.AppendVarint(dst, uint64(r.objectType))
	dst = protowire.AppendTag(dst, objectRecordFieldCompression, protowire.VarintType)
	dst = protowire.AppendVarint(dst, uint64(r.compression))
	dst = protowire.AppendTag(dst, objectRecordFieldData, protowire.BytesType)
	return protowire.AppendBytes(dst, r.data)
}

func decodeObjectRecord(payload []byte) (objectRecord, error) {
	var r objectRecord
	hasIdentifier := false
	err := consumeFields(payload, "object record", func(num protowire.Number, b []byte, v uint64) error {
		switch num {
		case objectRecordFieldIdentifier:
			hasIdentifier = true
			return consumeFixedSize(r.id[:], b, "object record identifier")
		case objectRecordFieldType:
			r.objectType = object.Type(v)
		case objectRecordFieldCompression:
			r.compression = Compression(v)
		case objectRecordFieldData:
			r.data = b
		}
		return nil
	})
	if err != nil {
		return objectRecord{}, err
	}
	if !hasIdentifier {
		return objectRecord{}, status.Error(codes.DataLoss, "Object record does not contain an identifier")
	}
	return r, nil
}

type indexEntry struct {
	id       ObjectIdentifier
	location Location
}

func appendIndexEntry(dst []byte, id ObjectIdentifier, location Location) []byte {
	dst = protowire.AppendTag(dst, indexEntryFieldIdentifier, protowire.BytesType)
	dst = protowire.AppendBytes(dst, id[:])
	dst = protowire.AppendTag(dst, indexEntryFieldFile, protowire.BytesType)
	dst = protowire.AppendString(dst, location.File.String())
	dst = protowire.AppendTag(dst, indexEntryFieldOffsetBytes, protowire.VarintType)
	dst = protowire.AppendVarint(dst, uint64(location.OffsetBytes))
	dst = protowire.AppendTag(dst, indexEntryFieldSizeBytes, protowire.VarintType)
	return protowire.AppendVarint(dst, uint64(location.SizeBytes))
}

func decodeIndexEntry(payload []byte) (indexEntry, error) {
	var e indexEntry
	var file string
	err := consumeFields(payload, "index entry", func(num protowire.Number, b []byte, v uint64) error {
		switch num {
		case indexEntryFieldIdentifier:
			return consumeFixedSize(e.id[:], b, "index entry identifier")
		case indexEntryFieldFile:
			file = string(b)
		case indexEntryFieldOffsetBytes:
			e.location.OffsetBytes = int64(v)
		case indexEntryFieldSizeBytes:
			e.location.SizeBytes = int64(v)
		}
		return nil
	})
	if err != nil {
		return indexEntry{}, err
	}
	component, ok := path.NewComponent(file)
	if !ok {
		return indexEntry{}, status.Errorf(codes.DataLoss, "Index entry refers to invalid file name %#v", file)
	}
	if fn, ok := ParseFileName(component); !ok || fn.Kind != FileKindData {
		return indexEntry{}, status.Errorf(codes.DataLoss, "Index entry refers to %#v, which is not a data file", file)
	}
	if e.location.OffsetBytes < 0 || e.location.SizeBytes <= 0 {
		return indexEntry{}, status.Errorf(codes.DataLoss, "Index entry has invalid offset %d and size %d", e.location.OffsetBytes, e.location.SizeBytes)
	}
	e.location.File = component
	return e, nil
}

type compilerMapEntry struct {
	key CompilerMapKey
	id  ObjectIdentifier
}

func appendCompilerMapEntry(dst []byte, key CompilerMapKey, id ObjectIdentifier) []byte {
	dst = protowire.AppendTag(dst, compilerMapEntryFieldKey, protowire.BytesType)
	dst = protowire.AppendBytes(dst, key[:])
	dst = protowire.AppendTag(dst, compilerMapEntryFieldIdentifier, protowire.BytesType)
	return protowire.AppendBytes(dst, id[:])
}

func decodeCompilerMapEntry(payload []byte) (compilerMapEntry, error) {
	var e compilerMapEntry
	hasKey, hasIdentifier := false, false
	err := consumeFields(payload, "compiler map entry", func(num protowire.Number, b []byte, v uint64) error {
		switch num {
		case compilerMapEntryFieldKey:
			hasKey = true
			return consumeFixedSize(e.key[:], b, "compiler map key")
		case compilerMapEntryFieldIdentifier:
			hasIdentifier = true
			return consumeFixedSize(e.id[:], b, "compiler map identifier")
		}
		return nil
	})
	if err != nil {
		return compilerMapEntry{}, err
	}
	if !hasKey || !hasIdentifier {
		return compilerMapEntry{}, status.Error(codes.DataLoss, "Compiler map entry is incomplete")
	}
	return e, nil
}

// decodeRepeatedEntries decodes a payload that consists of a sequence
// of entries, as written for index and compiler map blocks.
func decodeRepeatedEntries[T any](payload []byte, what string, decodeEntry func([]byte) (T, error)) ([]T, error) {
	var entries []T
	err := consumeFields(payload, what, func(num protowire.Number, b []byte, v uint64) error {
		if num != repeatedFieldEntry {
			return nil
		}
		e, err := decodeEntry(b)
		if err != nil {
			return err
		}
		entries = append(entries, e)
		return nil
	})
	return entries, err
}

// recordCodec converts objects to the payloads of object record
// blocks and back.
type recordCodec struct {
	serializer  object.Serializer
	compression Compression
	encoder     *zstd.Encoder
	decoder     *zstd.Decoder
}

func newRecordCodec(serializer object.Serializer, compression Compression) (*recordCodec, error) {
	c := &recordCodec{
		serializer:  serializer,
		compression: compression,
	}
	var err error
	if compression == CompressionZstd {
		if c.encoder, err = zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1)); err != nil {
			return nil, util.StatusWrapWithCode(err, codes.Internal, "Failed to create Zstandard encoder")
		}
	}
	if c.decoder, err = zstd.NewReader(nil, zstd.WithDecoderConcurrency(1)); err != nil {
		return nil, util.StatusWrapWithCode(err, codes.Internal, "Failed to create Zstandard decoder")
	}
	return c, nil
}

// appendObject serializes an object and appends the resulting
// object record payload. The size of the serialized form is returned,
// so that it can be accounted for.
func (c *recordCodec) appendObject(dst []byte, id ObjectIdentifier, o object.MemoizableObject) ([]byte, int, error) {
	data, err := c.serializer.Serialize(o)
	if err != nil {
		return nil, 0, util.StatusWrapf(err, "Failed to serialize object %s", id)
	}
	serializedSizeBytes := len(data)
	if c.compression == CompressionZstd {
		data = c.encoder.EncodeAll(data, nil)
	}
	return appendObjectRecord(dst, objectRecord{
		id:          id,
		objectType:  o.ObjectType(),
		compression: c.compression,
		data:        data,
	}), serializedSizeBytes, nil
}

// decodeObject decodes the payload of an object record block and
// deserializes the object contained within.
func (c *recordCodec) decodeObject(payload []byte, expectedID ObjectIdentifier) (object.MemoizableObject, error) {
	r, err := decodeObjectRecord(payload)
	if err != nil {
		return nil, err
	}
	if r.id != expectedID {
		return nil, status.Errorf(codes.DataLoss, "Record contains object %s", r.id)
	}
	data := r.data
	switch r.compression {
	case CompressionNone:
	case CompressionZstd:
		if data, err = c.decoder.DecodeAll(data, nil); err != nil {
			return nil, util.StatusWrapWithCode(err, codes.DataLoss, "Failed to decompress record")
		}
	default:
		return nil, status.Errorf(codes.DataLoss, "Record uses unknown compression %d", r.compression)
	}
	return c.serializer.Deserialize(r.objectType, data)
}

func (c *recordCodec) close() {
	if c.encoder != nil {
		c.encoder.Close()
	}
	c.decoder.Close()
}
