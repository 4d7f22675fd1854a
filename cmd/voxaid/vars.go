package cli

import (
	"github.com/spf13/cobra"

	"github.com/voxaid/voxaid/internal/config"
)

// Shared CLI flags
var (
	cfgFile string
	verbose bool
)

// ServerConfig holds the loaded configuration (set by main)
var ServerConfig *config.Config

// SetupRootCmd configures the root command with all subcommands and flags
func SetupRootCmd(c *config.Config) *cobra.Command {
	ServerConfig = c

	rootCmd := &cobra.Command{
		Use:   "voxaid",
		Short: "Voxaid - voice assistant session service",
		Long: `Voxaid runs the session service behind a voice assistant for visually
impaired users: it routes recognized utterances to capabilities, keeps the
conversation buffered locally, and syncs it to the history backend.

Just type 'voxaid' to start the service.`,
		Run: func(cmd *cobra.Command, args []string) {
			RunServe()
		},
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: <data_dir>/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(ServeCmd())
	rootCmd.AddCommand(ConfigCmd())

	return rootCmd
}
