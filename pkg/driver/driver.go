// Package driver is the public entry point: it resolves appliance
// names to device handles and runs status polls and control commands
// against them.
package driver

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/mattxcnm/goalzero-ble/internal/decode"
	"github.com/mattxcnm/goalzero-ble/internal/poll"
	"github.com/mattxcnm/goalzero-ble/internal/registry"
	"github.com/mattxcnm/goalzero-ble/internal/transport"
	"github.com/mattxcnm/goalzero-ble/internal/transport/goble"
	"github.com/mattxcnm/goalzero-ble/pkg/config"
)

// Driver owns the shared connection manager and hands out one Device
// per appliance name.
type Driver struct {
	cfg *config.Config
	log *logrus.Logger
	mgr *transport.Manager

	mu      sync.Mutex
	devices map[string]*Device
}

// New builds a driver on the host Bluetooth radio.
func New(cfg *config.Config, logger *logrus.Logger) *Driver {
	return NewWithDialer(cfg, logger, goble.NewDialer(logger))
}

// NewWithDialer builds a driver on a caller-supplied dialer, which is
// how tests run the full stack without hardware.
func NewWithDialer(cfg *config.Config, logger *logrus.Logger, dialer transport.Dialer) *Driver {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if logger == nil {
		logger = cfg.NewLogger()
	}
	return &Driver{
		cfg:     cfg,
		log:     logger,
		mgr:     transport.NewManager(dialer, logger, cfg.TransportOptions()),
		devices: make(map[string]*Device),
	}
}

// Resolve maps an advertised name onto its device family without
// touching the radio.
func (d *Driver) Resolve(name string) (*registry.Descriptor, error) {
	return registry.Resolve(name, "")
}

// Supported reports whether name matches a known family pattern.
func (d *Driver) Supported(name string) bool {
	return registry.Supported(name)
}

// Device returns the handle for one appliance, creating it on first
// use. Handles are cached so concurrent callers share the per-device
// cycle serialization.
func (d *Driver) Device(name string) (*Device, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if dev, ok := d.devices[name]; ok {
		return dev, nil
	}
	desc, err := registry.Resolve(name, "")
	if err != nil {
		return nil, err
	}

	coord := poll.NewCoordinator(desc, d.connect, d.log, poll.Options{
		Session:     d.cfg.SessionOptions(),
		Alta80Table: d.cfg.Alta80.Table,
	})
	dev := &Device{desc: desc, coord: coord}
	d.devices[name] = dev
	return dev, nil
}

func (d *Driver) connect(ctx context.Context, desc *registry.Descriptor) (poll.Conn, error) {
	return d.mgr.Connect(ctx, desc)
}

// Close releases every cached device handle.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, dev := range d.devices {
		_ = dev.Close()
	}
	d.devices = make(map[string]*Device)
	return nil
}

// Device is the handle for one appliance.
type Device struct {
	desc  *registry.Descriptor
	coord *poll.Coordinator
}

func (dev *Device) Name() string { return dev.desc.Name }

func (dev *Device) Family() registry.Family { return dev.desc.Family }

// Poll runs one status cycle and returns the decoded snapshot.
func (dev *Device) Poll(ctx context.Context) (decode.Status, error) {
	return dev.coord.Poll(ctx)
}

// Send executes one named control command.
func (dev *Device) Send(ctx context.Context, command string, params map[string]interface{}) error {
	return dev.coord.Send(ctx, command, params)
}

// Available reports whether the most recent poll succeeded.
func (dev *Device) Available() bool { return dev.coord.Available() }

// State reports the connection lifecycle position.
func (dev *Device) State() poll.State { return dev.coord.State() }

// Close releases any persistent connection held for the device.
func (dev *Device) Close() error { return dev.coord.Close() }
