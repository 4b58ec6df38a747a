// Package cmd provides the codebase-analyzer command line.
package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// =============================================================================
// Global Flags
// =============================================================================

var (
	rootConfigFile string
	rootDataDir    string
	rootLogLevel   string
	rootJSON       bool
	rootNoColor    bool
)

var rootCmd = &cobra.Command{
	Use:   "codebase-analyzer",
	Short: "Index source trees into a queryable code graph",
	Long: `codebase-analyzer scans source trees, extracts symbols and their
relationships, stores them in a local graph database with embeddings, and
answers structural and semantic queries over the result.

Examples:
  codebase-analyzer index ./myproject
  codebase-analyzer query callers handleRequest -p myproject
  codebase-analyzer query search semantic "parse config file" -p myproject
  codebase-analyzer projects list`,
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		colorEnabled = detectColor(cmd)
	},
}

func init() {
	pflags := rootCmd.PersistentFlags()
	pflags.StringVar(&rootConfigFile, "config", "", "Explicit config file, read after the standard layers")
	pflags.StringVar(&rootDataDir, "data-dir", "", "Root all analyzer directories under this path")
	pflags.StringVar(&rootLogLevel, "log-level", "", "Log level: debug, info, warn, error")
	pflags.BoolVar(&rootJSON, "json", false, "Output as JSON")
	pflags.BoolVar(&rootNoColor, "no-color", false, "Disable coloured output")
}

func Execute() error {
	return rootCmd.Execute()
}

// detectColor enables ANSI colours only for an interactive stdout.
func detectColor(cmd *cobra.Command) bool {
	if rootNoColor || rootJSON || os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := cmd.OutOrStdout().(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
