package driver

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattxcnm/goalzero-ble/internal/registry"
	"github.com/mattxcnm/goalzero-ble/internal/transport"
	"github.com/mattxcnm/goalzero-ble/pkg/config"
)

// fakePeer emulates an appliance at the GATT level: a write and a
// notify characteristic, with responses generated by the behavior
// function.
type fakePeer struct {
	notify       func(data []byte)
	disconnected chan struct{}
	behavior     func(p *fakePeer, payload []byte)
	written      [][]byte
}

func (p *fakePeer) Characteristics() []transport.CharacteristicInfo {
	return []transport.CharacteristicInfo{
		{UUID: "1101", Properties: transport.PropWriteNoResponse},
		{UUID: "2101", Properties: transport.PropNotify},
	}
}

func (p *fakePeer) Subscribe(uuid string, indicate bool, fn func(data []byte)) error {
	p.notify = fn
	return nil
}

func (p *fakePeer) Write(uuid string, data []byte, noResponse bool) error {
	buf := make([]byte, len(data))
	copy(buf, data)
	p.written = append(p.written, buf)
	p.behavior(p, buf)
	return nil
}

func (p *fakePeer) Disconnected() <-chan struct{} { return p.disconnected }
func (p *fakePeer) Close() error                  { return nil }

type fakeDialer struct {
	name     string
	behavior func(p *fakePeer, payload []byte)
	dials    int
}

func (d *fakeDialer) Scan(ctx context.Context, found func(adv transport.Advertisement) bool) error {
	found(transport.Advertisement{Name: d.name, Address: "aa:bb:cc:dd:ee:ff"})
	return nil
}

func (d *fakeDialer) Dial(ctx context.Context, address string) (transport.Peer, error) {
	d.dials++
	return &fakePeer{disconnected: make(chan struct{}), behavior: d.behavior}, nil
}

// fridgeBehavior acks probes and answers status requests with two
// 18-byte chunks.
func fridgeBehavior(p *fakePeer, payload []byte) {
	if len(payload) == 2 {
		p.notify([]byte{0x01})
		return
	}
	if len(payload) >= 5 && payload[2] == 0x03 {
		frame := make([]byte, 36)
		frame[8] = 0xFB  // zone1 setpoint -5F
		frame[18] = 0xFE // zone1 temperature -2C
		frame[22] = 0x26 // zone2 setpoint 38F
		frame[35] = 0x04 // zone2 temperature 4C
		p.notify(frame[:18])
		p.notify(frame[18:])
	}
}

// stationBehavior answers device, config, and status RPC calls.
func stationBehavior(p *fakePeer, payload []byte) {
	if len(payload) < 4 {
		return
	}
	n := int(binary.BigEndian.Uint32(payload))
	var req struct {
		ID     int64  `json:"id"`
		Method string `json:"method"`
	}
	if json.Unmarshal(payload[4:4+n], &req) != nil {
		return
	}
	var body string
	switch req.Method {
	case "device":
		body = `{"fw":"1.3.6","identity":{"sn":"37000-02-24D01034"},"batt":{"whCap":499}}`
	case "config":
		body = `{"chgPrfl":{"min":0,"max":100,"rchg":95}}`
	case "status":
		body = `{"batt":{"soc":87,"whRem":434,"v":26.8},"ports":{"acOut":{"s":0,"w":0},"usbOut":{"s":0,"w":0},"v12Out":{"s":0,"w":0}},"wifiRssi":-55,"appOn":0}`
	default:
		return
	}
	reply := fmt.Sprintf(`{"id":%d,"src":"gzy5c-0A1B2C3D4E5F","result":{"body":%s,"status_msg":"200 OK","status_code":200}}`, req.ID, body)
	wire := make([]byte, 4+len(reply))
	binary.BigEndian.PutUint32(wire, uint32(len(reply)))
	copy(wire[4:], reply)
	p.notify(wire)
}

func fastConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.LogLevel = "panic"
	cfg.Scan.PassTimeout = config.Duration(50 * time.Millisecond)
	cfg.Scan.RetryDelay = config.Duration(time.Millisecond)
	cfg.Connect.SettleDelay = config.Duration(time.Millisecond)
	cfg.Connect.EstablishBackoff = config.Duration(time.Millisecond)
	cfg.Connect.TimeoutBackoff = config.Duration(time.Millisecond)
	cfg.Session.FirstChunkTimeout = config.Duration(50 * time.Millisecond)
	cfg.Session.CollectTimeout = config.Duration(100 * time.Millisecond)
	cfg.Session.RetryDelay = config.Duration(time.Millisecond)
	return cfg
}

func TestResolve(t *testing.T) {
	d := NewWithDialer(fastConfig(), nil, &fakeDialer{})

	desc, err := d.Resolve("gzf1-80-A1B2C3")
	require.NoError(t, err)
	assert.Equal(t, registry.FamilyAlta80, desc.Family)

	desc, err = d.Resolve("gzy5c-0A1B2C3D4E5F")
	require.NoError(t, err)
	assert.Equal(t, registry.FamilyYeti500, desc.Family)

	_, err = d.Resolve("kitchen-lamp")
	assert.Error(t, err)
	assert.False(t, d.Supported("kitchen-lamp"))
}

func TestFridgePollEndToEnd(t *testing.T) {
	dialer := &fakeDialer{name: "gzf1-80-A1B2C3", behavior: fridgeBehavior}
	d := NewWithDialer(fastConfig(), nil, dialer)

	dev, err := d.Device("gzf1-80-A1B2C3")
	require.NoError(t, err)
	assert.False(t, dev.Available())

	status, err := dev.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(-5), status["zone1_setpoint"].Int)
	assert.Equal(t, int64(-2), status["zone1_temperature"].Int)
	assert.Equal(t, int64(38), status["zone2_setpoint"].Int)
	assert.True(t, dev.Available())

	// Second poll dials again: the fridge link never persists.
	_, err = dev.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, dialer.dials)
}

func TestStationPollEndToEnd(t *testing.T) {
	dialer := &fakeDialer{name: "gzy5c-0A1B2C3D4E5F", behavior: stationBehavior}
	d := NewWithDialer(fastConfig(), nil, dialer)

	dev, err := d.Device("gzy5c-0A1B2C3D4E5F")
	require.NoError(t, err)

	status, err := dev.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 87.0, status["battery.soc"].Float)
	assert.Equal(t, "1.3.6", status["device.firmware"].Str)
	assert.Equal(t, 95.0, status["config.charge_profile.recharge_soc"].Float)

	// The station link persists across cycles.
	_, err = dev.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, dialer.dials)

	require.NoError(t, dev.Close())
}

func TestSendIdenticalRequestsProduceIdenticalBytes(t *testing.T) {
	dialer := &fakeDialer{name: "gzf1-80-A1B2C3", behavior: fridgeBehavior}
	d := NewWithDialer(fastConfig(), nil, dialer)

	dev, err := d.Device("gzf1-80-A1B2C3")
	require.NoError(t, err)

	params := map[string]interface{}{"temperature": 34}
	require.NoError(t, dev.Send(context.Background(), "zone1_setpoint", params))
	require.NoError(t, dev.Send(context.Background(), "zone1_setpoint", params))
	assert.Equal(t, 2, dialer.dials, "each send is acknowledged independently")
}

func TestDeviceHandleCached(t *testing.T) {
	d := NewWithDialer(fastConfig(), nil, &fakeDialer{name: "gzf1-80-A1B2C3", behavior: fridgeBehavior})

	a, err := d.Device("gzf1-80-A1B2C3")
	require.NoError(t, err)
	b, err := d.Device("gzf1-80-A1B2C3")
	require.NoError(t, err)
	assert.Same(t, a, b)

	_, err = d.Device("unknown-device")
	assert.Error(t, err)
}
