// Package goble adapts the go-ble stack to the transport interfaces.
package goble

import (
	"context"
	"fmt"
	"sync"

	blelib "github.com/go-ble/ble"
	"github.com/sirupsen/logrus"

	"github.com/mattxcnm/goalzero-ble/internal/transport"
)

// DeviceFactory creates ble.Device instances (can be overridden in tests)
var DeviceFactory = func() (blelib.Device, error) {
	return newDefaultDevice()
}

// Dialer implements transport.Dialer on top of the host HCI/CoreBluetooth
// device. The device is created lazily on first use and shared between
// scanning and dialing.
type Dialer struct {
	logger *logrus.Logger

	mu  sync.Mutex
	dev blelib.Device
}

func NewDialer(logger *logrus.Logger) *Dialer {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Dialer{logger: logger}
}

func (d *Dialer) device() (blelib.Device, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.dev != nil {
		return d.dev, nil
	}
	dev, err := DeviceFactory()
	if err != nil {
		return nil, fmt.Errorf("failed to create BLE device: %w", err)
	}
	blelib.SetDefaultDevice(dev)
	d.dev = dev
	return dev, nil
}

// Scan runs one active scan pass. The pass ends when found returns
// true, the context expires, or the radio reports an error.
func (d *Dialer) Scan(ctx context.Context, found func(adv transport.Advertisement) bool) error {
	dev, err := d.device()
	if err != nil {
		return err
	}

	scanCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	err = dev.Scan(scanCtx, true, func(a blelib.Advertisement) {
		hit := found(transport.Advertisement{
			Name:    a.LocalName(),
			Address: a.Addr().String(),
		})
		if hit {
			cancel()
		}
	})
	if err != nil && ctx.Err() == nil && scanCtx.Err() != nil {
		// Stopped ourselves after a match.
		return nil
	}
	return err
}

// Dial connects to the peer and discovers its full GATT profile.
func (d *Dialer) Dial(ctx context.Context, address string) (transport.Peer, error) {
	if _, err := d.device(); err != nil {
		return nil, err
	}

	client, err := blelib.Dial(ctx, blelib.NewAddr(address))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %q: %w", address, err)
	}

	profile, err := client.DiscoverProfile(true)
	if err != nil {
		client.CancelConnection()
		return nil, fmt.Errorf("failed to discover profile: %w", err)
	}

	return &peer{client: client, profile: profile, logger: d.logger}, nil
}

type peer struct {
	client  blelib.Client
	profile *blelib.Profile
	logger  *logrus.Logger
}

func (p *peer) Characteristics() []transport.CharacteristicInfo {
	var out []transport.CharacteristicInfo
	for _, svc := range p.profile.Services {
		for _, ch := range svc.Characteristics {
			out = append(out, transport.CharacteristicInfo{
				UUID:       ch.UUID.String(),
				Properties: mapProperties(ch.Property),
			})
		}
	}
	return out
}

func (p *peer) Subscribe(uuid string, indicate bool, fn func(data []byte)) error {
	ch := p.find(uuid)
	if ch == nil {
		return fmt.Errorf("characteristic %q not in profile", uuid)
	}
	return p.client.Subscribe(ch, indicate, func(data []byte) { fn(data) })
}

func (p *peer) Write(uuid string, data []byte, noResponse bool) error {
	ch := p.find(uuid)
	if ch == nil {
		return fmt.Errorf("characteristic %q not in profile", uuid)
	}
	return p.client.WriteCharacteristic(ch, data, noResponse)
}

func (p *peer) Disconnected() <-chan struct{} {
	return p.client.Disconnected()
}

func (p *peer) Close() error {
	return p.client.CancelConnection()
}

func (p *peer) find(uuid string) *blelib.Characteristic {
	target := blelib.MustParse(uuid)
	for _, svc := range p.profile.Services {
		for _, ch := range svc.Characteristics {
			if ch.UUID.Equal(target) {
				return ch
			}
		}
	}
	return nil
}

func mapProperties(p blelib.Property) transport.Property {
	var out transport.Property
	if p&blelib.CharWrite != 0 {
		out |= transport.PropWrite
	}
	if p&blelib.CharWriteNR != 0 {
		out |= transport.PropWriteNoResponse
	}
	if p&blelib.CharNotify != 0 {
		out |= transport.PropNotify
	}
	if p&blelib.CharIndicate != 0 {
		out |= transport.PropIndicate
	}
	return out
}
