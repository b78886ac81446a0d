package transport

import (
	"context"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

const (
	// notifyBuffer is the buffer size for the notification channel. The
	// fridge controller bursts two 18-byte chunks per status command and
	// the power station streams JSON fragments, so 128 leaves plenty of
	// headroom.
	notifyBuffer = 128
)

// Conn is an established connection with its write and notify roles
// already bound to concrete characteristics. The notify subscription is
// active from the moment Connect returns, so no notification can be
// missed between a write and the consumer starting to read.
type Conn struct {
	peer Peer
	log  *logrus.Entry

	writeUUID       string
	writeNoResponse bool
	notifyUUID      string

	notifications chan []byte
	closed        atomic.Bool
}

func newConn(peer Peer, log *logrus.Entry, write, notify CharacteristicInfo) (*Conn, error) {
	c := &Conn{
		peer:            peer,
		log:             log,
		writeUUID:       write.UUID,
		writeNoResponse: write.Properties.Has(PropWriteNoResponse),
		notifyUUID:      notify.UUID,
		notifications:   make(chan []byte, notifyBuffer),
	}

	indicate := !notify.Properties.Has(PropNotify)
	if err := peer.Subscribe(notify.UUID, indicate, c.enqueue); err != nil {
		return nil, &ConnError{Class: EstablishFailed, Msg: "subscribe: " + err.Error()}
	}
	return c, nil
}

// enqueue delivers one notification payload to the channel. Checking
// closed first prevents a send on a closed channel when BLE callbacks
// fire after shutdown.
func (c *Conn) enqueue(data []byte) {
	if c.closed.Load() {
		return
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	select {
	case c.notifications <- buf:
	default:
		c.log.WithField("len", len(buf)).Warn("Notification channel full, dropping chunk")
	}
}

// Write sends payload to the bound write characteristic, using
// write-without-response when the characteristic supports it.
func (c *Conn) Write(ctx context.Context, payload []byte) error {
	if c.closed.Load() {
		return ErrConnectionLost
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.peer.Disconnected():
		return ErrConnectionLost
	default:
	}
	if err := c.peer.Write(c.writeUUID, payload, c.writeNoResponse); err != nil {
		return &ConnError{Class: ConnectionLost, Msg: "write: " + err.Error()}
	}
	return nil
}

// Notifications returns the stream of raw notification payloads in
// arrival order.
func (c *Conn) Notifications() <-chan []byte {
	return c.notifications
}

// Lost is closed when the underlying link drops.
func (c *Conn) Lost() <-chan struct{} {
	return c.peer.Disconnected()
}

// Close tears the connection down. Safe to call more than once; teardown
// failures are logged, not returned, because by that point the caller
// has no use for the link either way.
func (c *Conn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	if err := c.peer.Close(); err != nil {
		c.log.WithError(err).Debug("Disconnect returned an error")
	}
	return nil
}
