package block_test

import (
	"testing"

	"github.com/buildbarn/bb-compiler-store/pkg/compilerstore/block"
	"github.com/stretchr/testify/require"
)

type scannedBlock struct {
	offsetBytes int64
	payload     string
}

func scanAll(data []byte) ([]scannedBlock, []block.SkippedRegion) {
	var blocks []scannedBlock
	s := block.NewScanner(data)
	for s.Next() {
		blocks = append(blocks, scannedBlock{
			offsetBytes: s.OffsetBytes(),
			payload:     string(s.Block().Payload),
		})
	}
	return blocks, s.Skipped()
}

func TestScanner(t *testing.T) {
	first := block.Encode(block.KindObjectRecord, []byte("first"))
	second := block.Encode(block.KindObjectRecord, []byte("second"))
	third := block.Encode(block.KindObjectRecord, []byte("third"))

	concat := func(parts ...[]byte) []byte {
		var out []byte
		for _, p := range parts {
			out = append(out, p...)
		}
		return out
	}

	t.Run("Empty", func(t *testing.T) {
		blocks, skipped := scanAll(nil)
		require.Empty(t, blocks)
		require.Empty(t, skipped)
	})

	t.Run("Intact", func(t *testing.T) {
		blocks, skipped := scanAll(concat(first, second, third))
		require.Equal(t, []scannedBlock{
			{offsetBytes: 0, payload: "first"},
			{offsetBytes: int64(len(first)), payload: "second"},
			{offsetBytes: int64(len(first) + len(second)), payload: "third"},
		}, blocks)
		require.Empty(t, skipped)
	})

	t.Run("CorruptPayload", func(t *testing.T) {
		// A block whose header is intact is skipped by length.
		damaged := append([]byte(nil), second...)
		damaged[7] ^= 0xff
		blocks, skipped := scanAll(concat(first, damaged, third))
		require.Equal(t, []scannedBlock{
			{offsetBytes: 0, payload: "first"},
			{offsetBytes: int64(len(first) + len(second)), payload: "third"},
		}, blocks)
		require.Len(t, skipped, 1)
		require.Equal(t, int64(len(first)), skipped[0].OffsetBytes)
		require.Equal(t, int64(len(second)), skipped[0].SizeBytes)
		require.True(t, block.IsCorrupt(skipped[0].Err))
	})

	t.Run("CorruptHeader", func(t *testing.T) {
		// A block without a valid magic requires the scanner
		// to search for the next block.
		damaged := append([]byte(nil), second...)
		damaged[1] = 'X'
		blocks, skipped := scanAll(concat(first, damaged, third))
		require.Equal(t, []scannedBlock{
			{offsetBytes: 0, payload: "first"},
			{offsetBytes: int64(len(first) + len(second)), payload: "third"},
		}, blocks)
		require.Len(t, skipped, 1)
	})

	t.Run("CorruptLength", func(t *testing.T) {
		// A damaged length field must not cause the following
		// block to be skipped as well.
		damaged := append([]byte(nil), second...)
		damaged[5] = 1
		blocks, _ := scanAll(concat(first, damaged, third))
		require.Equal(t, []scannedBlock{
			{offsetBytes: 0, payload: "first"},
			{offsetBytes: int64(len(first) + len(second)), payload: "third"},
		}, blocks)
	})

	t.Run("TruncatedTail", func(t *testing.T) {
		blocks, skipped := scanAll(concat(first, second, third[:len(third)-3]))
		require.Equal(t, []scannedBlock{
			{offsetBytes: 0, payload: "first"},
			{offsetBytes: int64(len(first)), payload: "second"},
		}, blocks)
		require.Len(t, skipped, 1)
		require.True(t, block.IsTruncated(skipped[0].Err))
	})

	t.Run("LeadingGarbage", func(t *testing.T) {
		blocks, skipped := scanAll(concat([]byte("garbage"), first))
		require.Equal(t, []scannedBlock{
			{offsetBytes: 7, payload: "first"},
		}, blocks)
		require.Equal(t, []block.SkippedRegion{{
			OffsetBytes: 0,
			SizeBytes:   7,
			Err:         skipped[0].Err,
		}}, skipped)
	})
}
