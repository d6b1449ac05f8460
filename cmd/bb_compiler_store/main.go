package main

import (
	"fmt"
	"io"
	"os"

	"github.com/buildbarn/bb-compiler-store/pkg/compilerstore"
	"github.com/buildbarn/bb-compiler-store/pkg/util"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Administrative utility for on-disk compiler stores. It opens a store
// while the compiler is not running, which causes the store to be
// recovered, and reports on its contents.
//
// The store may either be described by a Jsonnet configuration file
// that is identical to the one used by the compiler, or by providing
// its base path on the command line.

type globalFlags struct {
	configurationPath string
	basePath          string
}

func (gf *globalFlags) getConfiguration() (*compilerstore.Configuration, error) {
	switch {
	case gf.configurationPath != "" && gf.basePath != "":
		return nil, status.Error(codes.InvalidArgument, "The --config and --base-path flags are mutually exclusive")
	case gf.configurationPath != "":
		var configuration compilerstore.Configuration
		if err := util.UnmarshalConfigurationFromFile(gf.configurationPath, &configuration); err != nil {
			return nil, util.StatusWrapf(err, "Failed to read configuration from %s", gf.configurationPath)
		}
		return &configuration, nil
	case gf.basePath != "":
		return &compilerstore.Configuration{BasePath: gf.basePath}, nil
	default:
		return nil, status.Error(codes.InvalidArgument, "Either --config or --base-path must be provided")
	}
}

func (gf *globalFlags) openStore(additionalOptions ...compilerstore.Option) (*compilerstore.OnDiskCompilerStore, error) {
	configuration, err := gf.getConfiguration()
	if err != nil {
		return nil, err
	}
	return compilerstore.NewOnDiskCompilerStoreFromConfiguration(configuration, additionalOptions...)
}

func newFsckCommand(gf *globalFlags) *cobra.Command {
	var repair bool
	cmd := &cobra.Command{
		Use:   "fsck",
		Short: "Recover the store and check that all control flow graphs can be read",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var options []compilerstore.Option
			if repair {
				options = append(options, compilerstore.WithPersistRebuiltIndexes(true))
			}
			s, err := gf.openStore(options...)
			if err != nil {
				return err
			}
			defer s.Close()
			return runFsck(cmd.OutOrStdout(), s)
		},
	}
	cmd.Flags().BoolVar(&repair, "repair", false, "Write index files that had to be rebuilt back to disk")
	return cmd
}

func runFsck(w io.Writer, s *compilerstore.OnDiskCompilerStore) error {
	keys := s.Keys()
	unreadable := 0
	for _, key := range keys {
		if _, ok := s.Get(key); !ok {
			fmt.Fprintf(w, "Unreadable: %s\n", key)
			unreadable++
		}
	}
	fmt.Fprintf(w, "Checked %d keys\n", len(keys))
	fmt.Fprint(w, s.GetPerformanceStats())
	if unreadable > 0 {
		return status.Errorf(codes.DataLoss, "%d of %d keys refer to control flow graphs that could not be read", unreadable, len(keys))
	}
	return nil
}

func newStatsCommand(gf *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print the performance counters collected while recovering the store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := gf.openStore()
			if err != nil {
				return err
			}
			defer s.Close()
			fmt.Fprint(cmd.OutOrStdout(), s.GetPerformanceStats())
			return nil
		},
	}
}

func newListCommand(gf *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the keys in the compiler map, and where their objects are stored",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := gf.openStore()
			if err != nil {
				return err
			}
			defer s.Close()
			runList(cmd.OutOrStdout(), s)
			return nil
		},
	}
}

func runList(w io.Writer, s *compilerstore.OnDiskCompilerStore) {
	for _, key := range s.Keys() {
		id, _ := s.ResolveKey(key)
		file := "-"
		if location, ok := s.Location(id); ok {
			file = location.File.String()
		}
		fmt.Fprintf(w, "%s %s %s\n", key, id, file)
	}
}

func newRootCommand() *cobra.Command {
	var gf globalFlags
	cmd := &cobra.Command{
		Use:           "bb_compiler_store",
		Short:         "Inspect and recover on-disk compiler stores",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&gf.configurationPath, "config", "", "Path of a Jsonnet configuration file describing the store")
	cmd.PersistentFlags().StringVar(&gf.basePath, "base-path", "", "Base directory of the store")
	cmd.AddCommand(
		newFsckCommand(&gf),
		newStatsCommand(&gf),
		newListCommand(&gf),
	)
	return cmd
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		logrus.WithError(err).Error("Fatal error")
		os.Exit(1)
	}
}
