package compilerstore

import (
	"github.com/buildbarn/bb-compiler-store/pkg/compilerstore/object"
	"github.com/buildbarn/bb-compiler-store/pkg/util"
	"github.com/sirupsen/logrus"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// DefaultSavedObjectCacheSize is the number of saved objects that are
// kept in memory in decoded form, if not configured otherwise.
const DefaultSavedObjectCacheSize = 1024

// Configuration of an OnDiskCompilerStore, as it may be loaded from a
// Jsonnet file using util.UnmarshalConfigurationFromFile().
type Configuration struct {
	// BasePath is the directory in which the store places its
	// files. It must exist.
	BasePath string `json:"basePath"`
	// SavedObjectCacheSize is the number of saved objects kept in
	// memory. Zero selects DefaultSavedObjectCacheSize.
	SavedObjectCacheSize int `json:"savedObjectCacheSize"`
	// Compression is either "none" (the default) or "zstd".
	Compression string `json:"compression"`
	// PersistRebuiltIndexes causes index files that are rebuilt
	// during recovery to be written to disk.
	PersistRebuiltIndexes bool `json:"persistRebuiltIndexes"`
	// LogLevel is a level name accepted by logrus.ParseLevel().
	LogLevel string `json:"logLevel"`
}

type options struct {
	logger                logrus.FieldLogger
	serializer            object.Serializer
	savedObjectCacheSize  int
	compression           Compression
	persistRebuiltIndexes bool
}

func defaultOptions() options {
	return options{
		logger:               logrus.StandardLogger(),
		serializer:           object.DefaultSerializer,
		savedObjectCacheSize: DefaultSavedObjectCacheSize,
		compression:          CompressionNone,
	}
}

// Option alters the behavior of an OnDiskCompilerStore.
type Option func(o *options)

// WithLogger sets the logger to which recovery actions and flushes are
// reported.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithSerializer sets the Serializer used to convert objects to bytes
// and back.
func WithSerializer(serializer object.Serializer) Option {
	return func(o *options) {
		o.serializer = serializer
	}
}

// WithSavedObjectCacheSize sets the number of saved objects that are
// kept in memory in decoded form.
func WithSavedObjectCacheSize(size int) Option {
	return func(o *options) {
		o.savedObjectCacheSize = size
	}
}

// WithCompression sets the compression algorithm applied to objects
// written to new data files.
func WithCompression(compression Compression) Option {
	return func(o *options) {
		o.compression = compression
	}
}

// WithPersistRebuiltIndexes controls whether index files that are
// rebuilt during recovery are written back to disk.
func WithPersistRebuiltIndexes(persist bool) Option {
	return func(o *options) {
		o.persistRebuiltIndexes = persist
	}
}

// ParseCompression converts the name of a compression algorithm to a
// Compression value. The empty string corresponds to CompressionNone.
func ParseCompression(name string) (Compression, error) {
	switch name {
	case "", "none":
		return CompressionNone, nil
	case "zstd":
		return CompressionZstd, nil
	default:
		return 0, status.Errorf(codes.InvalidArgument, "Unknown compression algorithm %#v", name)
	}
}

// NewOptionsFromConfiguration converts a configuration to a list of
// options that can be provided to NewOnDiskCompilerStore().
func NewOptionsFromConfiguration(configuration *Configuration) ([]Option, error) {
	compression, err := ParseCompression(configuration.Compression)
	if err != nil {
		return nil, err
	}
	options := []Option{
		WithCompression(compression),
		WithPersistRebuiltIndexes(configuration.PersistRebuiltIndexes),
	}
	if configuration.SavedObjectCacheSize != 0 {
		options = append(options, WithSavedObjectCacheSize(configuration.SavedObjectCacheSize))
	}
	if configuration.LogLevel != "" {
		level, err := logrus.ParseLevel(configuration.LogLevel)
		if err != nil {
			return nil, util.StatusWrapWithCode(err, codes.InvalidArgument, "Invalid log level")
		}
		logger := logrus.New()
		logger.SetLevel(level)
		options = append(options, WithLogger(logger))
	}
	return options, nil
}

// NewOnDiskCompilerStoreFromConfiguration creates an OnDiskCompilerStore
// based on a configuration. Additional options take precedence over
// the ones derived from the configuration.
func NewOnDiskCompilerStoreFromConfiguration(configuration *Configuration, additionalOptions ...Option) (*OnDiskCompilerStore, error) {
	if configuration.BasePath == "" {
		return nil, status.Error(codes.InvalidArgument, "No base path provided")
	}
	options, err := NewOptionsFromConfiguration(configuration)
	if err != nil {
		return nil, err
	}
	return NewOnDiskCompilerStore(configuration.BasePath, append(options, additionalOptions...)...)
}
