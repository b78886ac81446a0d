package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mattxcnm/goalzero-ble/internal/registry"
	"github.com/mattxcnm/goalzero-ble/internal/transport"
	"github.com/mattxcnm/goalzero-ble/internal/transport/goble"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for Goal Zero devices",
	Long: `Scan for nearby BLE devices and list the ones matching a supported
Goal Zero family. Use --all to include unrecognized devices.`,
	RunE: runScan,
}

var (
	scanDuration time.Duration
	scanAll      bool
)

func init() {
	scanCmd.Flags().DurationVarP(&scanDuration, "duration", "d", 10*time.Second, "Scan duration")
	scanCmd.Flags().BoolVarP(&scanAll, "all", "a", false, "Include devices that match no known family")
}

func runScan(cmd *cobra.Command, args []string) error {
	_, logger, err := configureLogger(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), scanDuration)
	defer cancel()
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	type hit struct {
		name    string
		address string
		family  string
	}
	seen := make(map[string]hit)

	dialer := goble.NewDialer(logger)
	err = dialer.Scan(ctx, func(adv transport.Advertisement) bool {
		if adv.Name == "" {
			return false
		}
		family := ""
		if desc, err := registry.Resolve(adv.Name, adv.Address); err == nil {
			family = desc.Family.String()
		} else if !scanAll {
			return false
		}
		seen[adv.Address] = hit{name: adv.Name, address: adv.Address, family: family}
		return false
	})
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	hits := make([]hit, 0, len(seen))
	for _, h := range seen {
		hits = append(hits, h)
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].name < hits[j].name })

	if len(hits) == 0 {
		fmt.Println("No devices found")
		return nil
	}

	supported := color.New(color.FgGreen)
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tADDRESS\tFAMILY")
	for _, h := range hits {
		family := h.family
		if family == "" {
			family = "-"
		} else {
			family = supported.Sprint(family)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", h.name, h.address, family)
	}
	return w.Flush()
}
