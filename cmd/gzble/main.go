package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"unicode"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// formatVersion adds 'v' prefix if version starts with a digit
func formatVersion(ver string) string {
	if len(ver) > 0 && unicode.IsDigit(rune(ver[0])) {
		return "v" + ver
	}
	return ver
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "gzble",
	Short: "Goal Zero BLE appliance driver",
	Long: `Driver and CLI for Goal Zero BLE appliances:

- Scan for supported devices (Alta 80 fridges, Yeti 500 power stations)
- Poll a device for a decoded status snapshot
- Watch a device, polling on an interval
- Send control commands (setpoints, eco mode, port switches, charge profile)

Device handles are never hardcoded: characteristics are matched by their
properties on every connection.`,
	Version: formatVersion(version),
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		// Ctrl+C is a normal exit, not an error - exit silently
		if errors.Is(err, context.Canceled) {
			return
		}
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(pollCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(sendCmd)

	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("config", "", "Path to YAML config file")

	rootCmd.Flags().BoolP("version", "v", false, "Show version information")
}
