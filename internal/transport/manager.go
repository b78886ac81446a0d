package transport

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"

	"github.com/mattxcnm/goalzero-ble/internal/registry"
)

// Options controls scan and connect behavior. Zero values are replaced
// by the defaults below.
type Options struct {
	ScanPasses       int
	ScanPassTimeout  time.Duration
	ScanRetryDelay   time.Duration
	DialTimeout      time.Duration
	ConnectAttempts  int
	EstablishBackoff time.Duration
	TimeoutBackoff   time.Duration
	SettleDelay      time.Duration
}

// DefaultOptions mirrors the timing the appliances are known to
// tolerate: the fridge controller in particular rejects connections
// that re-attempt too aggressively after an establish failure.
func DefaultOptions() Options {
	return Options{
		ScanPasses:       2,
		ScanPassTimeout:  20 * time.Second,
		ScanRetryDelay:   3 * time.Second,
		DialTimeout:      12 * time.Second,
		ConnectAttempts:  2,
		EstablishBackoff: 5 * time.Second,
		TimeoutBackoff:   3 * time.Second,
		SettleDelay:      time.Second,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.ScanPasses <= 0 {
		o.ScanPasses = d.ScanPasses
	}
	if o.ScanPassTimeout <= 0 {
		o.ScanPassTimeout = d.ScanPassTimeout
	}
	if o.ScanRetryDelay <= 0 {
		o.ScanRetryDelay = d.ScanRetryDelay
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = d.DialTimeout
	}
	if o.ConnectAttempts <= 0 {
		o.ConnectAttempts = d.ConnectAttempts
	}
	if o.EstablishBackoff <= 0 {
		o.EstablishBackoff = d.EstablishBackoff
	}
	if o.TimeoutBackoff <= 0 {
		o.TimeoutBackoff = d.TimeoutBackoff
	}
	if o.SettleDelay <= 0 {
		o.SettleDelay = d.SettleDelay
	}
	return o
}

// Manager owns scanning and connection establishment. It caches
// name-to-address mappings across polls so a device found once is
// dialed directly on subsequent cycles.
type Manager struct {
	dialer Dialer
	opts   Options
	log    *logrus.Logger

	// addresses caches name -> transport address observed during scans.
	// Concurrent polls for different devices may scan at the same time.
	addresses *hashmap.Map[string, string]

	// sleep is swapped out in tests for a recording fake.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewManager(dialer Dialer, logger *logrus.Logger, opts Options) *Manager {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Manager{
		dialer:    dialer,
		opts:      opts.withDefaults(),
		log:       logger,
		addresses: hashmap.New[string, string](),
		sleep:     sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Connect resolves the transport address for desc (scanning if
// needed), dials with retry, selects the write and notify
// characteristics, and returns a ready connection after the
// post-connect settle delay.
func (m *Manager) Connect(ctx context.Context, desc *registry.Descriptor) (*Conn, error) {
	log := m.log.WithFields(logrus.Fields{
		"device": desc.Name,
		"family": desc.Family.String(),
	})

	address, err := m.locate(ctx, desc, log)
	if err != nil {
		return nil, err
	}
	log = log.WithField("address", address)

	var lastErr error
	for attempt := 1; attempt <= m.opts.ConnectAttempts; attempt++ {
		conn, err := m.dialOnce(ctx, address, log.WithField("attempt", attempt))
		if err == nil {
			return conn, nil
		}
		if errors.Is(err, ErrNoMatchingCharacteristic) || ctx.Err() != nil {
			// Structural problem or caller gone, retrying cannot help.
			return nil, err
		}
		lastErr = err

		if attempt < m.opts.ConnectAttempts {
			backoff := m.opts.EstablishBackoff
			if errors.Is(err, ErrDialTimeout) {
				backoff = m.opts.TimeoutBackoff
			}
			log.WithError(err).WithFields(logrus.Fields{
				"attempt": attempt,
				"backoff": backoff,
			}).Warn("Connect attempt failed, backing off")
			if serr := m.sleep(ctx, backoff); serr != nil {
				return nil, serr
			}
		}
	}

	// Force a fresh scan next cycle in case the device changed address.
	m.addresses.Del(desc.Name)
	return nil, &ConnError{
		Class: Unavailable,
		Msg:   fmt.Sprintf("%d attempts exhausted, last: %v", m.opts.ConnectAttempts, lastErr),
	}
}

// locate returns the transport address for desc, preferring, in order:
// the address pinned on the descriptor, the cross-poll cache, and
// finally an active scan.
func (m *Manager) locate(ctx context.Context, desc *registry.Descriptor, log *logrus.Entry) (string, error) {
	if desc.Address != "" {
		return desc.Address, nil
	}
	if addr, ok := m.addresses.Get(desc.Name); ok {
		return addr, nil
	}
	return m.scanFor(ctx, desc.Name, log)
}

func (m *Manager) scanFor(ctx context.Context, name string, log *logrus.Entry) (string, error) {
	for pass := 1; pass <= m.opts.ScanPasses; pass++ {
		log.WithFields(logrus.Fields{
			"pass":    pass,
			"timeout": m.opts.ScanPassTimeout,
		}).Info("Scanning for device")

		found := ""
		passCtx, cancel := context.WithTimeout(ctx, m.opts.ScanPassTimeout)
		err := m.dialer.Scan(passCtx, func(adv Advertisement) bool {
			if adv.Name == "" {
				return false
			}
			m.addresses.Set(adv.Name, adv.Address)
			if strings.EqualFold(adv.Name, name) {
				found = adv.Address
				return true
			}
			return false
		})
		cancel()

		if found != "" {
			log.WithField("address", found).Info("Device located")
			return found, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
			log.WithError(err).Warn("Scan pass failed")
		}
		if pass < m.opts.ScanPasses {
			if serr := m.sleep(ctx, m.opts.ScanRetryDelay); serr != nil {
				return "", serr
			}
		}
	}
	return "", &ConnError{
		Class: ScanTimeout,
		Msg:   fmt.Sprintf("%q not seen in %d passes", name, m.opts.ScanPasses),
	}
}

func (m *Manager) dialOnce(ctx context.Context, address string, log *logrus.Entry) (*Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, m.opts.DialTimeout)
	defer cancel()

	peer, err := m.dialer.Dial(dialCtx, address)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &ConnError{Class: DialTimeout, Msg: err.Error()}
		}
		return nil, &ConnError{Class: EstablishFailed, Msg: err.Error()}
	}

	write, notify, err := pickCharacteristics(peer.Characteristics())
	if err != nil {
		_ = peer.Close()
		return nil, err
	}
	log.WithFields(logrus.Fields{
		"write_uuid":  write.UUID,
		"notify_uuid": notify.UUID,
		"write_props": write.Properties.String(),
	}).Debug("Characteristic roles bound")

	conn, err := newConn(peer, log, write, notify)
	if err != nil {
		_ = peer.Close()
		return nil, err
	}

	// Some firmware drops writes issued immediately after connect.
	if err := m.sleep(ctx, m.opts.SettleDelay); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return conn, nil
}

// pickCharacteristics binds the write and notify roles by property,
// never by handle. Write-without-response wins over write, notify wins
// over indicate, and within one preference tier the first discovered
// characteristic wins.
func pickCharacteristics(chars []CharacteristicInfo) (write, notify CharacteristicInfo, err error) {
	var haveWrite, haveNotify bool
	for _, ch := range chars {
		if ch.Properties.Has(PropWriteNoResponse) && (!haveWrite || !write.Properties.Has(PropWriteNoResponse)) {
			write = ch
			haveWrite = true
		} else if ch.Properties.Has(PropWrite) && !haveWrite {
			write = ch
			haveWrite = true
		}
		if ch.Properties.Has(PropNotify) && (!haveNotify || !notify.Properties.Has(PropNotify)) {
			notify = ch
			haveNotify = true
		} else if ch.Properties.Has(PropIndicate) && !haveNotify {
			notify = ch
			haveNotify = true
		}
	}
	if !haveWrite || !haveNotify {
		return CharacteristicInfo{}, CharacteristicInfo{}, &ConnError{
			Class: NoMatchingCharacteristic,
			Msg:   fmt.Sprintf("need writable and notifying characteristics, discovered %d", len(chars)),
		}
	}
	return write, notify, nil
}
