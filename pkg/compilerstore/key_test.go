package compilerstore_test

import (
	"testing"

	"github.com/buildbarn/bb-compiler-store/pkg/compilerstore"
	"github.com/buildbarn/bb-compiler-store/pkg/compilerstore/object"
	"github.com/buildbarn/bb-compiler-store/pkg/testutil"
	"github.com/stretchr/testify/require"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestCompilerMapKey(t *testing.T) {
	t.Run("Deterministic", func(t *testing.T) {
		require.Equal(
			t,
			compilerstore.NewCompilerMapKey([]byte("def fib(n): return n")),
			compilerstore.NewCompilerMapKey([]byte("def fib(n): return n")))
		require.NotEqual(
			t,
			compilerstore.NewCompilerMapKey([]byte("def fib(n): return n")),
			compilerstore.NewCompilerMapKey([]byte("def fib(n): return 0")))
	})

	t.Run("String", func(t *testing.T) {
		// BLAKE3 of the empty string.
		require.Equal(
			t,
			"af1349b9f5f9a1a6a0404dea36dcc9499bcb25c9adc112b7cc9a93cae41f3262",
			compilerstore.NewCompilerMapKey(nil).String())
	})

	t.Run("Parse", func(t *testing.T) {
		key := compilerstore.NewCompilerMapKey([]byte("hello"))
		parsed, err := compilerstore.ParseCompilerMapKey(key.String())
		require.NoError(t, err)
		require.Equal(t, key, parsed)

		_, err = compilerstore.ParseCompilerMapKey("abc")
		testutil.RequireEqualStatus(t, status.Error(codes.InvalidArgument, "Expected 64 hexadecimal characters, got 3"), err)
	})

	t.Run("Compare", func(t *testing.T) {
		low, err := compilerstore.ParseCompilerMapKey("0000000000000000000000000000000000000000000000000000000000000001")
		require.NoError(t, err)
		high, err := compilerstore.ParseCompilerMapKey("1000000000000000000000000000000000000000000000000000000000000000")
		require.NoError(t, err)
		require.Equal(t, -1, low.Compare(high))
		require.Equal(t, 1, high.Compare(low))
		require.Equal(t, 0, low.Compare(low))
	})
}

func TestObjectIdentifier(t *testing.T) {
	t.Run("TypeIsPartOfIdentifier", func(t *testing.T) {
		data := []byte("serialized")
		require.NotEqual(
			t,
			compilerstore.NewObjectIdentifier(object.TypeControlFlowGraph, data),
			compilerstore.NewObjectIdentifier(object.TypeOpaque, data))
		require.Equal(
			t,
			compilerstore.NewObjectIdentifier(object.TypeOpaque, data),
			compilerstore.NewObjectIdentifier(object.TypeOpaque, data))
	})

	t.Run("Parse", func(t *testing.T) {
		id := compilerstore.NewObjectIdentifier(object.TypeOpaque, []byte("hello"))
		parsed, err := compilerstore.ParseObjectIdentifier(id.String())
		require.NoError(t, err)
		require.Equal(t, id, parsed)

		_, err = compilerstore.ParseObjectIdentifier("zz00000000000000000000000000000000000000000000000000000000000000")
		require.Equal(t, codes.InvalidArgument, status.Code(err))
	})
}
