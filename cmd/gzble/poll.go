package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mattxcnm/goalzero-ble/internal/decode"
	"github.com/mattxcnm/goalzero-ble/pkg/driver"
)

// pollCmd represents the poll command
var pollCmd = &cobra.Command{
	Use:   "poll <device-name>",
	Short: "Run one status cycle against a device",
	Long: `Connect to the named device, read a full status snapshot, and print
it. The fridge families disconnect after the cycle; for power stations a
single cycle still opens and closes its own connection.`,
	Args: cobra.ExactArgs(1),
	RunE: runPoll,
}

var pollJSON bool

func init() {
	pollCmd.Flags().BoolVar(&pollJSON, "json", false, "Print the snapshot as JSON")
}

func runPoll(cmd *cobra.Command, args []string) error {
	cfg, logger, err := configureLogger(cmd)
	if err != nil {
		return err
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

	status, err := dev.Poll(ctx)
	if err != nil {
		return fmt.Errorf("poll failed: %w", err)
	}
	return printStatus(status, pollJSON)
}

func printStatus(status decode.Status, asJSON bool) error {
	if asJSON {
		out := make(map[string]string, len(status))
		for k, v := range status {
			out[k] = v.String()
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	keys := make([]string, 0, len(status))
	for k := range status {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "FIELD\tVALUE")
	for _, k := range keys {
		fmt.Fprintf(w, "%s\t%s\n", k, status[k].String())
	}
	return w.Flush()
}
