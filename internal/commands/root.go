// Package commands wires the cratemap CLI.
package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Version is stamped by the build; "dev" otherwise.
var Version = "dev"

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "cratemap",
	Short: "cratemap indexes Rust codebases into layered reports",
	Long: `cratemap parses a Rust project's module tree and writes a layered index
under .codebase-index/: an overview with the module tree, the full API
surface, cross-module relationships, and a JSON lookup table, plus a
persistent annotation ledger for human or agent descriptions.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	},
}

// Execute runs the CLI.
func Execute() error {
	rootCmd.Version = Version
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "cratemap %s\n", Version)
		},
	})
}
