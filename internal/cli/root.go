// internal/cli/root.go
//
// Command line entry point.
//   numguess serve              run the HTTP game server
//   numguess score GUESS SECRET score a guess offline

package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "numguess",
	Short: "Two-player secret number guessing game server",
	Long: `numguess hosts two-player games in which each player picks a secret
4-digit number and both take turns guessing the other's.`,
	SilenceUsage: true,
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
