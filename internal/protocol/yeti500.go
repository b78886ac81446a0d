package protocol

import (
	"fmt"
	"strings"
)

// RPC methods understood by the power station.
const (
	MethodDevice = "device"
	MethodConfig = "config"
	MethodStatus = "status"
)

// PatchParams is the params object for a state-changing call. The
// station treats a PATCH against "status" as a port control and a PATCH
// against "config" as a settings change.
type PatchParams struct {
	Action string      `json:"action"`
	Body   interface{} `json:"body"`
}

func NewPatch(body interface{}) PatchParams {
	return PatchParams{Action: "PATCH", Body: body}
}

// portWireNames maps user-facing port names to wire keys.
var portWireNames = map[string]string{
	"ac_out":  "acOut",
	"v12_out": "v12Out",
	"usb_out": "usbOut",
}

// Yeti500PortPatch builds the body for switching one output port. Only
// the output ports are switchable; the input ports report state but
// reject writes.
func Yeti500PortPatch(port string, on bool) (interface{}, error) {
	wire, ok := portWireNames[strings.ToLower(port)]
	if !ok {
		return nil, fmt.Errorf("%w: port %q is not switchable", ErrCommandRejected, port)
	}
	s := 0
	if on {
		s = 1
	}
	return map[string]interface{}{
		"ports": map[string]interface{}{
			wire: map[string]int{"s": s},
		},
	}, nil
}

// ChargeProfile is the battery charge window in percent of capacity.
type ChargeProfile struct {
	MinSOC      int
	MaxSOC      int
	RechargeSOC int
}

func (p ChargeProfile) validate() error {
	if p.MinSOC < 0 || p.MaxSOC > 100 || p.MinSOC >= p.MaxSOC {
		return fmt.Errorf("%w: charge profile bounds %d..%d", ErrCommandRejected, p.MinSOC, p.MaxSOC)
	}
	if p.RechargeSOC < p.MinSOC || p.RechargeSOC > p.MaxSOC {
		return fmt.Errorf("%w: recharge point %d outside %d..%d", ErrCommandRejected, p.RechargeSOC, p.MinSOC, p.MaxSOC)
	}
	return nil
}

// Yeti500ChargeProfilePatch builds the config body for the charge
// profile, using the station's abbreviated field names.
func Yeti500ChargeProfilePatch(p ChargeProfile) (interface{}, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"chgPrfl": map[string]int{
			"min":  p.MinSOC,
			"max":  p.MaxSOC,
			"rchg": p.RechargeSOC,
		},
	}, nil
}
