package protocol

import (
	"fmt"
	"strings"
)

// Zone selects one of the fridge compartments.
type Zone int

const (
	Zone1 Zone = iota
	Zone2
)

func (z Zone) selector() byte {
	if z == Zone2 {
		return 0x06
	}
	return 0x05
}

// BatteryProtection is the input cutoff level on the fridge controller.
type BatteryProtection byte

const (
	ProtectionLow  BatteryProtection = 0x00
	ProtectionMed  BatteryProtection = 0x01
	ProtectionHigh BatteryProtection = 0x02
)

// ParseBatteryProtection maps the user-facing level names onto the wire
// values.
func ParseBatteryProtection(level string) (BatteryProtection, error) {
	switch strings.ToLower(level) {
	case "low":
		return ProtectionLow, nil
	case "med", "medium":
		return ProtectionMed, nil
	case "high":
		return ProtectionHigh, nil
	}
	return 0, fmt.Errorf("%w: battery protection level %q", ErrCommandRejected, level)
}

const (
	// Setpoint bounds in Fahrenheit, enforced by the controller UI.
	MinSetpointF = -4
	MaxSetpointF = 68

	// statusChunks: the controller answers a status request with two
	// 18-byte notifications.
	statusChunks = 2
)

// Alta80Status is the status request. The primary encoding carries a
// trailing zero byte; some firmware revisions only answer the shorter or
// the padded variant, so retries rotate through all three.
func Alta80Status() Command {
	return Command{
		Name:           "status",
		Payload:        []byte{0xFE, 0xFE, 0x03, 0x01, 0x02, 0x00},
		Alternates:     [][]byte{{0xFE, 0xFE, 0x03, 0x01, 0x02}, {0xFE, 0xFE, 0x03, 0x01, 0x02, 0x00, 0x00}},
		ExpectedChunks: statusChunks,
	}
}

// Alta80Probe is the bare preamble. The controller tolerates it on any
// firmware, which makes it a cheap liveness check right after connect.
func Alta80Probe() Command {
	return Command{
		Name:    "probe",
		Payload: []byte{0xFE, 0xFE},
	}
}

// Alta80Setpoint builds a zone temperature command. The temperature is
// clamped to the controller's accepted range and encoded as a two's
// complement byte, with a simple additive checksum.
func Alta80Setpoint(zone Zone, tempF int) Command {
	if tempF < MinSetpointF {
		tempF = MinSetpointF
	}
	if tempF > MaxSetpointF {
		tempF = MaxSetpointF
	}
	sel := zone.selector()
	temp := byte(tempF)
	checksum := (0x04 + sel + temp + 0x02) & 0xFF
	return Command{
		Name:    fmt.Sprintf("setpoint_zone%d", zone+1),
		Payload: []byte{0xFE, 0xFE, 0x04, sel, temp, 0x02, checksum},
	}
}

// settingsFrame is the shared 20-byte settings command layout. Byte 3
// carries the eco flag, byte 7 the protection level or power flag, and
// byte 19 closes the frame.
func settingsFrame(b3, b6, b7, b19 byte) []byte {
	return []byte{
		0xFE, 0xFE, 0x21, b3, 0x00, 0x01, b6, b7, 0x00, 0x44,
		0xFC, 0x04, 0x00, 0x01, 0xFE, 0xFE, 0x02, 0x00, 0x03, b19,
	}
}

// Alta80EcoMode toggles the compressor's eco profile.
func Alta80EcoMode(enabled bool) Command {
	eco := byte(0x01)
	if enabled {
		eco = 0x02
	}
	return Command{
		Name:    "eco_mode",
		Payload: settingsFrame(eco, 0x00, 0x00, 0x64),
	}
}

// Alta80BatteryProtection sets the input voltage cutoff level.
func Alta80BatteryProtection(level BatteryProtection) Command {
	return Command{
		Name:    "battery_protection",
		Payload: settingsFrame(0x02, 0x01, byte(level), 0x64),
	}
}

// Alta80Power turns the unit on or off.
func Alta80Power(on bool) Command {
	if on {
		return Command{Name: "power", Payload: settingsFrame(0x01, 0x00, 0x01, 0x65)}
	}
	return Command{Name: "power", Payload: settingsFrame(0x01, 0x00, 0x00, 0x64)}
}
