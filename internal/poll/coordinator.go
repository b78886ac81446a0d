// Package poll orchestrates status cycles and control sends per device,
// applying the family lifecycle: the fridge controllers get a fresh
// connection per cycle, the power stations hold one open across cycles.
package poll

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/mattxcnm/goalzero-ble/internal/decode"
	"github.com/mattxcnm/goalzero-ble/internal/protocol"
	"github.com/mattxcnm/goalzero-ble/internal/registry"
	"github.com/mattxcnm/goalzero-ble/internal/transport"
)

// State is the connection lifecycle position of one coordinator.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateReady
	StatePolling
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	case StatePolling:
		return "polling"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Conn is what a coordinator needs from an established connection.
// *transport.Conn satisfies it.
type Conn interface {
	protocol.Link
	Close() error
}

// ConnectFunc establishes a connection for desc.
type ConnectFunc func(ctx context.Context, desc *registry.Descriptor) (Conn, error)

// Options tunes one coordinator.
type Options struct {
	Session protocol.Options

	// Alta80Table overrides the built-in frame layout, nil keeps the
	// default.
	Alta80Table *decode.BinaryTable
}

// Coordinator serializes all radio work for one device. Poll and Send
// share a mutex so overlapping callers queue instead of interleaving
// writes on the link.
type Coordinator struct {
	desc    *registry.Descriptor
	connect ConnectFunc
	opts    Options
	log     *logrus.Entry

	mu        sync.Mutex
	state     atomic.Int32
	available atomic.Bool

	// Persistent session state, power station families only.
	conn       Conn
	rpc        *protocol.RPCSession
	deviceInfo json.RawMessage
	configInfo json.RawMessage
}

func NewCoordinator(desc *registry.Descriptor, connect ConnectFunc, logger *logrus.Logger, opts Options) *Coordinator {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Coordinator{
		desc:    desc,
		connect: connect,
		opts:    opts,
		log: logger.WithFields(logrus.Fields{
			"device": desc.Name,
			"family": desc.Family.String(),
		}),
	}
}

// State reports the current lifecycle position.
func (c *Coordinator) State() State {
	return State(c.state.Load())
}

// Available reports whether the most recent cycle succeeded. A device
// starts unavailable until its first successful poll.
func (c *Coordinator) Available() bool {
	return c.available.Load()
}

func (c *Coordinator) setState(s State) {
	old := State(c.state.Swap(int32(s)))
	if old != s {
		c.log.WithFields(logrus.Fields{"from": old.String(), "to": s.String()}).Debug("State change")
	}
}

// Poll runs one full status cycle and returns the decoded snapshot.
func (c *Coordinator) Poll(ctx context.Context) (decode.Status, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var (
		status decode.Status
		err    error
	)
	switch c.desc.Family {
	case registry.FamilyYeti500:
		status, err = c.pollPersistent(ctx)
	default:
		status, err = c.pollEphemeral(ctx)
	}

	c.available.Store(err == nil)
	if err != nil {
		return nil, wrap(err)
	}
	return status, nil
}

// pollEphemeral is the fridge cycle: connect, probe, exchange, decode,
// and always disconnect, even on failure.
func (c *Coordinator) pollEphemeral(ctx context.Context) (decode.Status, error) {
	c.setState(StateConnecting)
	conn, err := c.connect(ctx, c.desc)
	if err != nil {
		c.setState(StateDisconnected)
		return nil, err
	}
	defer func() {
		_ = conn.Close()
		c.setState(StateDisconnected)
	}()

	c.setState(StatePolling)
	sess := protocol.NewSession(conn, c.log, c.opts.Session)
	sess.Probe(ctx, protocol.Alta80Probe())

	frame, err := sess.Exchange(ctx, protocol.Alta80Status())
	if err != nil {
		return nil, err
	}
	return decode.DecodeAlta80(c.opts.Alta80Table, frame)
}

// pollPersistent is the power station cycle: reuse the session, fetch
// status, and rebuild the snapshot from the fresh status plus the
// session-scoped device and config replies.
func (c *Coordinator) pollPersistent(ctx context.Context) (decode.Status, error) {
	if err := c.ensureReady(ctx); err != nil {
		return nil, err
	}

	c.setState(StatePolling)
	res, err := c.rpc.Call(ctx, protocol.MethodStatus, nil)
	if err != nil {
		c.dropConn()
		return nil, err
	}
	c.setState(StateReady)

	replies := map[string]json.RawMessage{"status": res.Body}
	if c.deviceInfo != nil {
		replies["device"] = c.deviceInfo
	}
	if c.configInfo != nil {
		replies["config"] = c.configInfo
	}
	return decode.DecodeYeti500(replies)
}

// ensureReady connects if needed and primes the session with the
// device and config documents, fetched once per connection.
func (c *Coordinator) ensureReady(ctx context.Context) error {
	if c.conn != nil {
		select {
		case <-c.conn.Lost():
			c.log.Info("Link lost since last cycle, reconnecting")
			c.dropConn()
		default:
			return nil
		}
	}

	c.setState(StateConnecting)
	conn, err := c.connect(ctx, c.desc)
	if err != nil {
		c.setState(StateDisconnected)
		return err
	}

	rpc := protocol.NewRPCSession(conn, c.log, c.opts.Session)
	dev, err := rpc.Call(ctx, protocol.MethodDevice, nil)
	if err != nil {
		_ = conn.Close()
		c.setState(StateDisconnected)
		return err
	}
	cfg, err := rpc.Call(ctx, protocol.MethodConfig, nil)
	if err != nil {
		_ = conn.Close()
		c.setState(StateDisconnected)
		return err
	}

	c.conn = conn
	c.rpc = rpc
	c.deviceInfo = dev.Body
	c.configInfo = cfg.Body
	c.setState(StateReady)
	return nil
}

func (c *Coordinator) dropConn() {
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.conn = nil
	c.rpc = nil
	c.deviceInfo = nil
	c.configInfo = nil
	c.setState(StateDisconnected)
}

// Send executes one named control command. Parameters are validated
// before any radio work happens.
func (c *Coordinator) Send(ctx context.Context, command string, params map[string]interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var err error
	switch c.desc.Family {
	case registry.FamilyYeti500:
		err = c.sendPersistent(ctx, command, params)
	default:
		err = c.sendEphemeral(ctx, command, params)
	}
	if err != nil {
		return wrap(err)
	}
	return nil
}

func (c *Coordinator) sendEphemeral(ctx context.Context, command string, params map[string]interface{}) error {
	cmd, err := alta80Command(command, params)
	if err != nil {
		return err
	}

	c.setState(StateConnecting)
	conn, err := c.connect(ctx, c.desc)
	if err != nil {
		c.setState(StateDisconnected)
		return err
	}
	defer func() {
		_ = conn.Close()
		c.setState(StateDisconnected)
	}()

	c.setState(StatePolling)
	sess := protocol.NewSession(conn, c.log, c.opts.Session)
	_, err = sess.Exchange(ctx, cmd)
	return err
}

func (c *Coordinator) sendPersistent(ctx context.Context, command string, params map[string]interface{}) error {
	method, body, err := yeti500Patch(command, params)
	if err != nil {
		return err
	}
	if err := c.ensureReady(ctx); err != nil {
		return err
	}

	res, err := c.rpc.Call(ctx, method, protocol.NewPatch(body))
	if err != nil {
		if errors.Is(err, transport.ErrConnectionLost) {
			c.dropConn()
		}
		return err
	}

	// A config change invalidates the session's cached config document.
	if method == protocol.MethodConfig {
		if res.Body != nil {
			c.configInfo = res.Body
		} else {
			c.configInfo = nil
		}
	}
	return nil
}

// Close releases any persistent connection.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dropConn()
	c.available.Store(false)
	return nil
}
