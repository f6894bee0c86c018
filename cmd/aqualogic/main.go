// Aqualogic decodes the serial bus of Hayward AquaLogic / ProLogic pool
// controllers.
//
// It reads the controller's RS-485 byte stream from a network bridge, a
// local serial port or a capture file, decodes frames into a live pool state
// (temperatures, chlorinator output, panel indicators) and serves that state
// over HTTP, websockets, NATS and Redis.
//
// Usage:
//
//	aqualogic [command] [flags]
//
// See 'aqualogic --help' for available commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/muurk/aqualogic/internal/config"
	"github.com/muurk/aqualogic/internal/logging"
	"github.com/muurk/aqualogic/internal/ui"
	"github.com/muurk/aqualogic/internal/version"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		if tips := troubleshootingTips(err); tips != nil {
			ui.NewPrinter(os.Stderr).PrintFailure("Cannot open byte source", err, tips)
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		logging.Sync()
		os.Exit(1)
	}
	logging.Sync()
}

// Global flags
var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "aqualogic",
	Short: "AquaLogic pool controller bus decoder",
	Long: `Decode the serial bus of Hayward AquaLogic / ProLogic pool controllers.

aqualogic reads the controller's byte stream from a serial-to-network bridge,
a local RS-485 adapter or a capture file, and turns it into a live model of
the pool: water and air temperature, chlorinator output and the state of
every panel indicator.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: OS config dir, .toml for TOML)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); overrides config and "+logging.LogLevelEnvVar)

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		info := version.Get()
		fmt.Fprintf(cmd.OutOrStdout(), "aqualogic %s (commit: %s, %s, %s)\n",
			info.Version, info.Commit, info.GoVersion, info.Platform)
	},
}

// loadConfig reads --config, or the default file when the flag is empty
func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadFile(configPath)
	}
	return config.Load()
}

// initLogging picks the level from --log-level, then the environment, then
// the config file. fallback applies when all three are empty.
func initLogging(cfg *config.Config, fallback string) error {
	level := logLevel
	if level == "" {
		level = os.Getenv(logging.LogLevelEnvVar)
	}
	if level == "" && cfg != nil {
		level = cfg.LogLevel
	}
	if level == "" {
		level = fallback
	}
	return logging.Initialize(level)
}
