package util_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/buildbarn/bb-compiler-store/pkg/util"
	"github.com/stretchr/testify/require"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type exampleConfiguration struct {
	BasePath  string `json:"basePath"`
	CacheSize int    `json:"cacheSize"`
}

func TestUnmarshalConfigurationFromJsonnet(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		var configuration exampleConfiguration
		require.NoError(t, util.UnmarshalConfigurationFromJsonnet(
			"example.jsonnet",
			`{ basePath: "/var/cache/" + "compiler", cacheSize: 16 * 1024 }`,
			&configuration))
		require.Equal(t, exampleConfiguration{
			BasePath:  "/var/cache/compiler",
			CacheSize: 16384,
		}, configuration)
	})

	t.Run("ExternalVariable", func(t *testing.T) {
		t.Setenv("COMPILER_STORE_TEST_PATH", "/tmp/store")
		var configuration exampleConfiguration
		require.NoError(t, util.UnmarshalConfigurationFromJsonnet(
			"example.jsonnet",
			`{ basePath: std.extVar("COMPILER_STORE_TEST_PATH") }`,
			&configuration))
		require.Equal(t, "/tmp/store", configuration.BasePath)
	})

	t.Run("SyntaxError", func(t *testing.T) {
		var configuration exampleConfiguration
		err := util.UnmarshalConfigurationFromJsonnet("example.jsonnet", `{ basePath: `, &configuration)
		require.Equal(t, codes.InvalidArgument, status.Code(err))
	})

	t.Run("UnknownField", func(t *testing.T) {
		var configuration exampleConfiguration
		err := util.UnmarshalConfigurationFromJsonnet("example.jsonnet", `{ basePth: "/tmp" }`, &configuration)
		require.Equal(t, codes.InvalidArgument, status.Code(err))
	})
}

func TestUnmarshalConfigurationFromFile(t *testing.T) {
	t.Run("NonExistent", func(t *testing.T) {
		var configuration exampleConfiguration
		require.Error(t, util.UnmarshalConfigurationFromFile(filepath.Join(t.TempDir(), "missing.jsonnet"), &configuration))
	})

	t.Run("Success", func(t *testing.T) {
		p := filepath.Join(t.TempDir(), "store.jsonnet")
		require.NoError(t, os.WriteFile(p, []byte(`{ basePath: "/data" }`), 0o666))
		var configuration exampleConfiguration
		require.NoError(t, util.UnmarshalConfigurationFromFile(p, &configuration))
		require.Equal(t, "/data", configuration.BasePath)
	})
}
