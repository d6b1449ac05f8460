package object

import (
	"github.com/viant/bintly"
)

// Type is the tag stored next to every serialized object. It is
// validated when objects are read back, so that an object is never
// decoded as a type other than the one it was written as.
type Type uint32

const (
	// TypeControlFlowGraph is the tag of *ControlFlowGraph.
	TypeControlFlowGraph Type = 1
	// TypeOpaque is the tag of *Opaque.
	TypeOpaque Type = 2
)

func (t Type) String() string {
	switch t {
	case TypeControlFlowGraph:
		return "ControlFlowGraph"
	case TypeOpaque:
		return "Opaque"
	default:
		return "Unknown"
	}
}

// MemoizableObject is a compiler-internal value that can be stored in
// a compiler store. Objects are immutable once created.
type MemoizableObject interface {
	bintly.Encoder
	bintly.Decoder

	// ObjectType returns the tag under which objects of this type
	// are stored.
	ObjectType() Type
}
