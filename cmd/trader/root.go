package main

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "trader",
	Short: "Phase-based trading bot",
	Long: `Trader runs a phase-based trading strategy against a venue bridge.

Each phase opens up to max_trades positions in the direction of the current
trend and closes them all once the open profit reaches the phase target. The
bot stops after max_phases phases or when told to.

Commands are accepted over HTTP, either as JSON on /api/* or as chat-style
text ("!configure 5 50 3", "!start", "!stop", "!status") on /command.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}
