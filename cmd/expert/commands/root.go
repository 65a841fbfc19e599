// Package commands provides the CLI commands for the expert client.
package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dominicdesy/intelia-expert-sub011/internal/config"
	"github.com/dominicdesy/intelia-expert-sub011/internal/logging"
)

var (
	// Version information set at build time
	Version   = "0.1.0"
	BuildTime = "dev"
)

// Global flags
var (
	logLevel   string
	backendURL string
)

// cfg is loaded once before any command runs.
var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "expert",
	Short: "Intelia Expert - agricultural AI assistant client",
	Long: `Expert is the command-line client for the Intelia agricultural
expertise assistant. It manages the authenticated session and the
conversation history against the expert backend.`,
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}
		if backendURL != "" {
			cfg.BackendURL = backendURL
		}
		level := cfg.LogLevel
		if logLevel != "" {
			level = logLevel
		}
		logging.Init(logging.Config{Level: logging.ParseLevel(level), Pretty: true})
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (DEBUG|INFO|WARN|ERROR)")
	rootCmd.PersistentFlags().StringVar(&backendURL, "backend-url", "", "Override the backend base URL")

	rootCmd.SetVersionTemplate(fmt.Sprintf("expert %s (%s)\n", Version, BuildTime))

	rootCmd.AddCommand(authCmd)
	rootCmd.AddCommand(historyCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
