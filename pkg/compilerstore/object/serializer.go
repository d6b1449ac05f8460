package object

import (
	"fmt"

	"github.com/viant/bintly"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Serializer converts MemoizableObjects to bytes and back. The compiler
// store treats the serialized form as opaque; integrity checking is
// performed by the store itself.
type Serializer interface {
	Serialize(o MemoizableObject) ([]byte, error)
	Deserialize(objectType Type, data []byte) (MemoizableObject, error)
}

// Factory creates an empty object of a given type, which
// Deserialize() subsequently decodes into.
type Factory func() MemoizableObject

type bintlySerializer struct {
	factories map[Type]Factory
}

// NewBintlySerializer creates a Serializer that uses the bintly binary
// codec. Only object types for which a factory is provided can be
// deserialized.
func NewBintlySerializer(factories map[Type]Factory) Serializer {
	return &bintlySerializer{
		factories: factories,
	}
}

// DefaultFactories contains factories for all object types declared
// by this package.
var DefaultFactories = map[Type]Factory{
	TypeControlFlowGraph: func() MemoizableObject { return &ControlFlowGraph{} },
	TypeOpaque:           func() MemoizableObject { return &Opaque{} },
}

// DefaultSerializer is a Serializer for all object types declared by
// this package.
var DefaultSerializer = NewBintlySerializer(DefaultFactories)

func (s *bintlySerializer) Serialize(o MemoizableObject) ([]byte, error) {
	if _, ok := s.factories[o.ObjectType()]; !ok {
		return nil, status.Errorf(codes.InvalidArgument, "Object type %d is not supported", o.ObjectType())
	}
	data, err := bintly.Encode(o)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "Failed to serialize %s: %s", o.ObjectType(), err)
	}
	return append([]byte(nil), data...), nil
}

func (s *bintlySerializer) Deserialize(objectType Type, data []byte) (o MemoizableObject, err error) {
	factory, ok := s.factories[objectType]
	if !ok {
		return nil, status.Errorf(codes.InvalidArgument, "Object type %d is not supported", objectType)
	}
	// The bintly reader does not bounds check its input. Malformed
	// input that made it past checksum validation must not crash
	// the process.
	defer func() {
		if r := recover(); r != nil {
			o, err = nil, status.Errorf(codes.DataLoss, "Failed to deserialize %s: %s", objectType, fmt.Sprint(r))
		}
	}()
	o = factory()
	if err := bintly.Decode(data, o); err != nil {
		return nil, status.Errorf(codes.DataLoss, "Failed to deserialize %s: %s", objectType, err)
	}
	return o, nil
}
