package poll

import (
	"fmt"

	"github.com/mattxcnm/goalzero-ble/internal/protocol"
)

// Logical command names accepted by Send, per family.
const (
	CmdZone1Setpoint     = "zone1_setpoint"
	CmdZone2Setpoint     = "zone2_setpoint"
	CmdEcoMode           = "eco_mode"
	CmdBatteryProtection = "battery_protection"
	CmdPower             = "power"

	CmdACOut         = "ac_out"
	CmdV12Out        = "v12_out"
	CmdUSBOut        = "usb_out"
	CmdChargeProfile = "charge_profile"
)

func alta80Command(name string, params map[string]interface{}) (protocol.Command, error) {
	switch name {
	case CmdZone1Setpoint:
		temp, err := intParam(params, "temperature")
		if err != nil {
			return protocol.Command{}, err
		}
		return protocol.Alta80Setpoint(protocol.Zone1, temp), nil
	case CmdZone2Setpoint:
		temp, err := intParam(params, "temperature")
		if err != nil {
			return protocol.Command{}, err
		}
		return protocol.Alta80Setpoint(protocol.Zone2, temp), nil
	case CmdEcoMode:
		on, err := boolParam(params, "on")
		if err != nil {
			return protocol.Command{}, err
		}
		return protocol.Alta80EcoMode(on), nil
	case CmdBatteryProtection:
		name, err := stringParam(params, "level")
		if err != nil {
			return protocol.Command{}, err
		}
		level, err := protocol.ParseBatteryProtection(name)
		if err != nil {
			return protocol.Command{}, err
		}
		return protocol.Alta80BatteryProtection(level), nil
	case CmdPower:
		on, err := boolParam(params, "on")
		if err != nil {
			return protocol.Command{}, err
		}
		return protocol.Alta80Power(on), nil
	}
	return protocol.Command{}, fmt.Errorf("%w: unknown command %q", protocol.ErrCommandRejected, name)
}

func yeti500Patch(name string, params map[string]interface{}) (method string, body interface{}, err error) {
	switch name {
	case CmdACOut, CmdV12Out, CmdUSBOut:
		on, err := boolParam(params, "on")
		if err != nil {
			return "", nil, err
		}
		body, err := protocol.Yeti500PortPatch(name, on)
		if err != nil {
			return "", nil, err
		}
		return protocol.MethodStatus, body, nil
	case CmdChargeProfile:
		min, err := intParam(params, "min_soc")
		if err != nil {
			return "", nil, err
		}
		max, err := intParam(params, "max_soc")
		if err != nil {
			return "", nil, err
		}
		rchg, err := intParam(params, "recharge_soc")
		if err != nil {
			return "", nil, err
		}
		body, err := protocol.Yeti500ChargeProfilePatch(protocol.ChargeProfile{
			MinSOC:      min,
			MaxSOC:      max,
			RechargeSOC: rchg,
		})
		if err != nil {
			return "", nil, err
		}
		return protocol.MethodConfig, body, nil
	}
	return "", nil, fmt.Errorf("%w: unknown command %q", protocol.ErrCommandRejected, name)
}

func intParam(params map[string]interface{}, key string) (int, error) {
	v, ok := params[key]
	if !ok {
		return 0, fmt.Errorf("%w: missing parameter %q", protocol.ErrCommandRejected, key)
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	}
	return 0, fmt.Errorf("%w: parameter %q must be a number", protocol.ErrCommandRejected, key)
}

func boolParam(params map[string]interface{}, key string) (bool, error) {
	v, ok := params[key]
	if !ok {
		return false, fmt.Errorf("%w: missing parameter %q", protocol.ErrCommandRejected, key)
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("%w: parameter %q must be a boolean", protocol.ErrCommandRejected, key)
	}
	return b, nil
}

func stringParam(params map[string]interface{}, key string) (string, error) {
	v, ok := params[key]
	if !ok {
		return "", fmt.Errorf("%w: missing parameter %q", protocol.ErrCommandRejected, key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: parameter %q must be a string", protocol.ErrCommandRejected, key)
	}
	return s, nil
}
