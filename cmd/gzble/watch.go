package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mattxcnm/goalzero-ble/pkg/driver"
)

// watchCmd represents the watch command
var watchCmd = &cobra.Command{
	Use:   "watch <device-name>",
	Short: "Poll a device on an interval until interrupted",
	Long: `Poll the named device repeatedly, printing each snapshot and the
device availability. Power stations keep their connection open between
cycles; fridges reconnect each time. Ctrl+C stops the loop and
disconnects cleanly.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

var (
	watchInterval time.Duration
	watchJSON     bool
)

func init() {
	watchCmd.Flags().DurationVarP(&watchInterval, "interval", "i", 0, "Poll interval (default from config)")
	watchCmd.Flags().BoolVar(&watchJSON, "json", false, "Print snapshots as JSON")
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, logger, err := configureLogger(cmd)
	if err != nil {
		return err
	}
	interval := watchInterval
	if interval <= 0 {
		interval = cfg.PollInterval.Std()
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d := driver.New(cfg, logger)
	defer d.Close()

	dev, err := d.Device(args[0])
	if err != nil {
		return err
	}
	defer dev.Close()

	up := color.New(color.FgGreen).SprintFunc()
	down := color.New(color.FgRed).SprintFunc()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		status, err := dev.Poll(ctx)
		switch {
		case ctx.Err() != nil:
			fmt.Println("\nStopping")
			return nil
		case err != nil:
			fmt.Printf("[%s] %s: %v\n", time.Now().Format(time.TimeOnly), down("unavailable"), err)
		default:
			fmt.Printf("[%s] %s\n", time.Now().Format(time.TimeOnly), up("available"))
			if perr := printStatus(status, watchJSON); perr != nil {
				return perr
			}
		}

		select {
		case <-ctx.Done():
			fmt.Println("\nStopping")
			return nil
		case <-ticker.C:
		}
	}
}
