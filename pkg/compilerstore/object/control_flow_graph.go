package object

import (
	"github.com/viant/bintly"
)

// BasicBlock is a straight-line sequence of instructions within a
// ControlFlowGraph, followed by edges to its successors.
type BasicBlock struct {
	Label        string
	Instructions []string
	Successors   []string
}

// ControlFlowGraph is the compiled representation of a function's
// executable structure. It is the primary artifact held by the
// compiler store. The store treats its contents as opaque; only the
// serialized form matters.
type ControlFlowGraph struct {
	Name       string
	EntryLabel string
	Blocks     []BasicBlock
}

var _ MemoizableObject = (*ControlFlowGraph)(nil)

// ObjectType returns TypeControlFlowGraph.
func (*ControlFlowGraph) ObjectType() Type {
	return TypeControlFlowGraph
}

func encodeStrings(stream *bintly.Writer, values []string) {
	stream.Int(len(values))
	for _, v := range values {
		stream.String(v)
	}
}

func decodeStrings(stream *bintly.Reader) []string {
	var count int
	stream.Int(&count)
	if count == 0 {
		return nil
	}
	values := make([]string, count)
	for i := range values {
		stream.String(&values[i])
	}
	return values
}

// EncodeBinary writes the graph to a bintly stream.
func (g *ControlFlowGraph) EncodeBinary(stream *bintly.Writer) error {
	stream.String(g.Name)
	stream.String(g.EntryLabel)
	stream.Int(len(g.Blocks))
	for _, b := range g.Blocks {
		stream.String(b.Label)
		encodeStrings(stream, b.Instructions)
		encodeStrings(stream, b.Successors)
	}
	return nil
}

// DecodeBinary reads the graph from a bintly stream.
func (g *ControlFlowGraph) DecodeBinary(stream *bintly.Reader) error {
	stream.String(&g.Name)
	stream.String(&g.EntryLabel)
	var count int
	stream.Int(&count)
	g.Blocks = nil
	if count > 0 {
		g.Blocks = make([]BasicBlock, count)
		for i := range g.Blocks {
			b := &g.Blocks[i]
			stream.String(&b.Label)
			b.Instructions = decodeStrings(stream)
			b.Successors = decodeStrings(stream)
		}
	}
	return nil
}
