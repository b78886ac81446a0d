// Package transport manages BLE connection lifecycle for appliance
// drivers: scanning, dialing with retry, characteristic role selection,
// and link-loss observation. Protocol logic lives one layer up.
package transport

import (
	"context"
	"strings"
)

// Property is a bit set of GATT characteristic properties relevant for
// role selection.
type Property uint8

const (
	PropWrite Property = 1 << iota
	PropWriteNoResponse
	PropNotify
	PropIndicate
)

func (p Property) Has(q Property) bool { return p&q != 0 }

func (p Property) String() string {
	var parts []string
	if p.Has(PropWrite) {
		parts = append(parts, "write")
	}
	if p.Has(PropWriteNoResponse) {
		parts = append(parts, "write-no-rsp")
	}
	if p.Has(PropNotify) {
		parts = append(parts, "notify")
	}
	if p.Has(PropIndicate) {
		parts = append(parts, "indicate")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// CharacteristicInfo describes one discovered characteristic. Handles
// are deliberately absent: they change between connections, so all
// selection is by UUID and properties.
type CharacteristicInfo struct {
	UUID       string
	Properties Property
}

// Advertisement is one observation from an active scan.
type Advertisement struct {
	Name    string
	Address string
}

// Peer is an established low-level GATT link. Implementations wrap a
// real BLE client (see the goble subpackage) or a test fake.
type Peer interface {
	// Characteristics returns every characteristic discovered on the
	// peer, across all services.
	Characteristics() []CharacteristicInfo

	// Subscribe registers fn for value updates on the given
	// characteristic. indicate selects indications over notifications.
	Subscribe(uuid string, indicate bool, fn func(data []byte)) error

	// Write sends data to the given characteristic.
	Write(uuid string, data []byte, noResponse bool) error

	// Disconnected is closed when the link drops for any reason.
	Disconnected() <-chan struct{}

	// Close tears the connection down.
	Close() error
}

// Dialer abstracts the radio so the manager can be exercised without
// hardware.
type Dialer interface {
	// Scan runs one active scan pass, invoking found for each
	// advertisement until found returns true, ctx expires, or the pass
	// completes. A true return from found stops the pass early.
	Scan(ctx context.Context, found func(adv Advertisement) bool) error

	// Dial connects to the peer at the given transport address and
	// performs service discovery.
	Dial(ctx context.Context, address string) (Peer, error)
}
