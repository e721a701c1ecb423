// Package cli wires the commands. Flag handling and process exit live
// here; everything else is delegated to the library packages.
package cli

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var rootCmd = &cobra.Command{
	Use:   "lockmender",
	Short: "Plan dependency overrides that remediate known vulnerabilities",
	Long: `lockmender reads a project's package.json and package-lock.json, matches
every installed package against an advisory database, and computes the
minimal set of version overrides that removes the vulnerable versions
without violating any range the manifest declares. Each plan is verified
by re-scanning a hypothetical graph with the overrides applied.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "log progress to stderr")

	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(graphCmd)
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func newLogger(cmd *cobra.Command) *zap.Logger {
	verbose, _ := cmd.Flags().GetBool("verbose")
	if !verbose {
		return zap.NewNop()
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.OutputPaths = []string{"stderr"}
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
