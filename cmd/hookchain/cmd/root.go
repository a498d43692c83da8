// Package cmd provides the CLI commands for hookchain.
package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Sentinel-Gate/hookchain/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "hookchain",
	Short: "hookchain - before/after/error hook chains for service calls",
	Long: `hookchain brackets service operations (find, get, create, update,
patch, remove) with ordered interceptor chains registered on the
application and on each service.

Configuration:
  Config is loaded from hookchain.yaml in the current directory,
  $HOME/.hookchain/, or /etc/hookchain/.

  Environment variables can override config values with the HOOKCHAIN_ prefix.
  Example: HOOKCHAIN_LOG_LEVEL=debug

Commands:
  dryrun      Dispatch one call through the configured hook plan
  version     Print version information`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./hookchain.yaml)")
}

func initConfig() {
	config.InitViper(cfgFile)
}

// parseLogLevel converts a string log level to slog.Level.
// Returns slog.LevelInfo for unrecognized values.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
