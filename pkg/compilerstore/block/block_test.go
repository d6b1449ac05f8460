package block_test

import (
	"math"
	"testing"

	"github.com/buildbarn/bb-compiler-store/pkg/compilerstore/block"
	"github.com/buildbarn/bb-compiler-store/pkg/testutil"
	"github.com/stretchr/testify/require"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protowire"

	"pgregory.net/rapid"
)

func TestEncode(t *testing.T) {
	t.Run("Layout", func(t *testing.T) {
		data := block.Encode(block.KindObjectRecord, []byte("Hello"))
		require.Equal(t, block.EncodedSizeBytes(5), len(data))
		require.Equal(t, []byte("CSB1"), data[:4])
		require.Equal(t, byte(block.KindObjectRecord), data[4])
		require.Equal(t, byte(5), data[5])
		require.Equal(t, []byte("Hello"), data[6:11])
	})

	t.Run("Deterministic", func(t *testing.T) {
		require.Equal(
			t,
			block.Encode(block.KindIndex, []byte("payload")),
			block.Encode(block.KindIndex, []byte("payload")))
	})

	t.Run("Append", func(t *testing.T) {
		data := block.AppendEncoded([]byte("prefix"), block.KindIndex, nil)
		require.Equal(t, []byte("prefix"), data[:6])
		payload, err := block.DecodeExactly(data[6:], block.KindIndex)
		require.NoError(t, err)
		require.Empty(t, payload)
	})
}

func TestDecode(t *testing.T) {
	data := block.Encode(block.KindCompilerMap, []byte("Hello, world"))

	t.Run("Success", func(t *testing.T) {
		b, n, err := block.Decode(append(append([]byte(nil), data...), "trailing"...))
		require.NoError(t, err)
		require.Equal(t, len(data), n)
		require.Equal(t, block.Block{
			Kind:    block.KindCompilerMap,
			Payload: []byte("Hello, world"),
		}, b)
	})

	t.Run("Empty", func(t *testing.T) {
		_, _, err := block.Decode(nil)
		testutil.RequireEqualStatus(t, status.Error(codes.OutOfRange, "Block header is truncated"), err)
		require.True(t, block.IsTruncated(err))
	})

	t.Run("TruncatedPayload", func(t *testing.T) {
		_, _, err := block.Decode(data[:10])
		testutil.RequireEqualStatus(t, status.Error(codes.OutOfRange, "Block payload is truncated"), err)
	})

	t.Run("TruncatedChecksum", func(t *testing.T) {
		_, _, err := block.Decode(data[:len(data)-1])
		testutil.RequireEqualStatus(t, status.Error(codes.OutOfRange, "Block checksum is truncated"), err)
	})

	t.Run("BadMagic", func(t *testing.T) {
		corrupted := append([]byte(nil), data...)
		corrupted[0] = 'X'
		_, _, err := block.Decode(corrupted)
		testutil.RequireEqualStatus(t, status.Error(codes.DataLoss, "Block does not start with the expected magic"), err)
		require.True(t, block.IsCorrupt(err))
	})

	t.Run("BadKind", func(t *testing.T) {
		corrupted := append([]byte(nil), data...)
		corrupted[4] = byte(block.KindIndex)
		_, _, err := block.Decode(corrupted)
		testutil.RequireEqualStatus(t, status.Error(codes.DataLoss, "Block checksum mismatch"), err)
	})

	t.Run("BadChecksum", func(t *testing.T) {
		corrupted := append([]byte(nil), data...)
		corrupted[len(corrupted)-1] ^= 0x01
		_, _, err := block.Decode(corrupted)
		testutil.RequireEqualStatus(t, status.Error(codes.DataLoss, "Block checksum mismatch"), err)
	})

	t.Run("PayloadTooLarge", func(t *testing.T) {
		for _, length := range []uint64{1 << 31, 1 << 40, math.MaxUint64} {
			header := protowire.AppendVarint([]byte("CSB1\x02"), length)
			_, _, err := block.Decode(header)
			testutil.RequireEqualStatus(t, status.Error(codes.DataLoss, "Block header contains an invalid payload length"), err)
		}
	})
}

func TestDecodeExactly(t *testing.T) {
	data := block.Encode(block.KindIndex, []byte("index"))

	t.Run("WrongKind", func(t *testing.T) {
		_, err := block.DecodeExactly(data, block.KindCompilerMap)
		testutil.RequireEqualStatus(t, status.Error(codes.DataLoss, "Block has kind Index, while CompilerMap was expected"), err)
	})

	t.Run("TrailingData", func(t *testing.T) {
		_, err := block.DecodeExactly(append(append([]byte(nil), data...), 0), block.KindIndex)
		testutil.RequireEqualStatus(t, status.Error(codes.DataLoss, "Block is followed by 1 bytes of trailing data"), err)
	})
}

func TestBlockProperties(t *testing.T) {
	kinds := rapid.SampledFrom([]block.Kind{
		block.KindFileHeader,
		block.KindObjectRecord,
		block.KindIndex,
		block.KindCompilerMap,
	})

	t.Run("RoundTrip", func(t *testing.T) {
		rapid.Check(t, func(t *rapid.T) {
			kind := kinds.Draw(t, "kind")
			payload := rapid.SliceOfN(rapid.Byte(), 0, 4096).Draw(t, "payload")

			b, n, err := block.Decode(block.Encode(kind, payload))
			if err != nil {
				t.Fatalf("Failed to decode block: %s", err)
			}
			if n != block.EncodedSizeBytes(len(payload)) || b.Kind != kind || string(b.Payload) != string(payload) {
				t.Fatalf("Decoded block differs from encoded block")
			}
		})
	})

	t.Run("PayloadCorruptionIsDetected", func(t *testing.T) {
		rapid.Check(t, func(t *rapid.T) {
			kind := kinds.Draw(t, "kind")
			payload := rapid.SliceOfN(rapid.Byte(), 1, 4096).Draw(t, "payload")
			index := rapid.IntRange(0, len(payload)-1).Draw(t, "index")
			mask := rapid.ByteRange(1, 255).Draw(t, "mask")

			data := block.Encode(kind, payload)
			headerSize := block.EncodedSizeBytes(len(payload)) - len(payload) - block.ChecksumSizeBytes
			data[headerSize+index] ^= mask
			if _, _, err := block.Decode(data); !block.IsCorrupt(err) {
				t.Fatalf("Expected corruption to be detected, got %v", err)
			}
		})
	})

	t.Run("TruncationIsDetected", func(t *testing.T) {
		rapid.Check(t, func(t *rapid.T) {
			payload := rapid.SliceOfN(rapid.Byte(), 0, 4096).Draw(t, "payload")
			data := block.Encode(block.KindObjectRecord, payload)
			length := rapid.IntRange(0, len(data)-1).Draw(t, "length")
			if _, _, err := block.Decode(data[:length]); !block.IsTruncated(err) {
				t.Fatalf("Expected truncation to be detected, got %v", err)
			}
		})
	})
}
