package main

import (
	"github.com/spf13/cobra"

	"bslanalyzer/internal/version"
)

var (
	// configFlag is the configuration dump directory
	configFlag string
	// platformFlag overrides platform.defaultVersion
	platformFlag string
	formatFlag   string
	verboseFlag  int
	quietFlag    bool
)

var rootCmd = &cobra.Command{
	Use:   "bsl-index",
	Short: "bsl-index - unified type index for 1C:Enterprise configurations",
	Long: `bsl-index builds and maintains a type index over the platform's builtin
types and a configuration dump: inheritance, member lookup, assignability and
object references. Platform types are cached once per machine and version;
configuration entities are cached per project and refreshed incrementally.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.SetVersionTemplate("bsl-index version {{.Version}}\n")
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "Configuration dump directory (default: current directory)")
	rootCmd.PersistentFlags().StringVar(&platformFlag, "platform", "", "Platform version (default: platform.defaultVersion)")
	rootCmd.PersistentFlags().StringVar(&formatFlag, "format", "human", "Output format (json, human)")
	rootCmd.PersistentFlags().CountVarP(&verboseFlag, "verbose", "v", "Increase log verbosity (-v, -vv)")
	rootCmd.PersistentFlags().BoolVarP(&quietFlag, "quiet", "q", false, "Suppress log output")
}
