// Package commands implements the kryten CLI using cobra.
package commands

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command with all subcommands registered.
func NewRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "kryten",
		Short: "Kryten - Telegram fitness tracking bot",
		Long: `Kryten is a Telegram bot that tracks exercises for a small group
of friends, powered by the Anthropic Messages API.

Examples:
  kryten serve
  kryten serve --config ./kryten.yaml
  kryten key set`,
		Version: version,
	}

	rootCmd.AddCommand(
		newServeCmd(),
		newKeyCmd(),
	)

	rootCmd.PersistentFlags().StringP("config", "c", "", "path to the configuration file")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")

	return rootCmd
}
