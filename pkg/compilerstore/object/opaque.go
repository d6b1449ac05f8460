package object

import (
	"github.com/viant/bintly"
)

// Opaque is an auxiliary compiler object whose structure is not known
// to the store, such as a serialized constant pool or type table
// emitted next to a ControlFlowGraph.
type Opaque struct {
	Kind string
	Data []byte
}

var _ MemoizableObject = (*Opaque)(nil)

// ObjectType returns TypeOpaque.
func (*Opaque) ObjectType() Type {
	return TypeOpaque
}

// EncodeBinary writes the object to a bintly stream.
func (o *Opaque) EncodeBinary(stream *bintly.Writer) error {
	stream.String(o.Kind)
	stream.String(string(o.Data))
	return nil
}

// DecodeBinary reads the object from a bintly stream.
func (o *Opaque) DecodeBinary(stream *bintly.Reader) error {
	stream.String(&o.Kind)
	var data string
	stream.String(&data)
	o.Data = nil
	if len(data) > 0 {
		o.Data = []byte(data)
	}
	return nil
}
