package main

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mattxcnm/goalzero-ble/pkg/driver"
)

// sendCmd represents the send command
var sendCmd = &cobra.Command{
	Use:   "send <device-name> <command> [param=value ...]",
	Short: "Send a control command to a device",
	Long: `Send one named control command with key=value parameters.

Fridge (Alta 80) commands:
  zone1_setpoint temperature=<F>     Zone 1 setpoint (-4..68)
  zone2_setpoint temperature=<F>     Zone 2 setpoint (-4..68)
  eco_mode on=<true|false>           Eco profile toggle
  battery_protection level=<low|med|high>
  power on=<true|false>

Power station (Yeti 500) commands:
  ac_out on=<true|false>             AC output port
  v12_out on=<true|false>            12V output port
  usb_out on=<true|false>            USB output port
  charge_profile min_soc=<n> max_soc=<n> recharge_soc=<n>

Examples:
  gzble send gzf1-80-A1B2C3 zone1_setpoint temperature=34
  gzble send gzy5c-0A1B2C3D4E5F ac_out on=true`,
	Args: cobra.MinimumNArgs(2),
	RunE: runSend,
}

func runSend(cmd *cobra.Command, args []string) error {
	cfg, logger, err := configureLogger(cmd)
	if err != nil {
		return err
	}

	params, err := parseParams(args[2:])
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

	if err := dev.Send(ctx, args[1], params); err != nil {
		return fmt.Errorf("send failed: %w", err)
	}
	fmt.Printf("%s %s\n", color.GreenString("OK"), args[1])
	return nil
}

// parseParams turns key=value arguments into typed parameters: bools
// and integers are recognized, everything else stays a string.
func parseParams(args []string) (map[string]interface{}, error) {
	params := make(map[string]interface{}, len(args))
	for _, arg := range args {
		key, value, found := strings.Cut(arg, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("invalid parameter %q, expected key=value", arg)
		}
		switch {
		case value == "true" || value == "false":
			params[key] = value == "true"
		default:
			if n, err := strconv.Atoi(value); err == nil {
				params[key] = n
			} else {
				params[key] = value
			}
		}
	}
	return params, nil
}
