package testutil

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

// RequireEqualProto asserts that two protocol buffer messages are
// equal. Upon mismatch, both messages are printed as JSON.
func RequireEqualProto(t *testing.T, want, got proto.Message) {
	t.Helper()
	if !proto.Equal(want, got) {
		t.Fatalf("Not equal:\nWant:\n\n%s\n\nGot:\n\n%s", mustMarshalToString(t, want), mustMarshalToString(t, got))
	}
}

// RequireEqualStatus asserts that two errors have the same gRPC status
// code, message and details. Errors that do not carry a status are
// compared as if they had code Unknown.
func RequireEqualStatus(t *testing.T, want, got error) {
	t.Helper()
	RequireEqualProto(t, status.Convert(want).Proto(), status.Convert(got).Proto())
}

// RequirePrefixedStatus is identical to RequireEqualStatus, except
// that the message of got may contain trailing characters. This is
// useful for errors that embed messages provided by the operating
// system.
func RequirePrefixedStatus(t *testing.T, want, got error) {
	t.Helper()
	wantProto := status.Convert(want).Proto()
	gotProto := status.Convert(got).Proto()
	require.Truef(
		t,
		strings.HasPrefix(gotProto.GetMessage(), wantProto.GetMessage()),
		"Want message %#v to have prefix %#v",
		gotProto.GetMessage(),
		wantProto.GetMessage())
	gotProto.Message = wantProto.GetMessage()
	RequireEqualProto(t, wantProto, gotProto)
}

func mustMarshalToString(t *testing.T, m proto.Message) string {
	s, err := protojson.MarshalOptions{Multiline: true}.Marshal(m)
	if err != nil {
		t.Fatal(err)
	}
	return string(s)
}
