package protocol

import (
	"bytes"
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mattxcnm/goalzero-ble/internal/transport"
)

// Link is the transport surface a session needs. *transport.Conn
// satisfies it.
type Link interface {
	Write(ctx context.Context, payload []byte) error
	Notifications() <-chan []byte
	Lost() <-chan struct{}
}

// Options controls response timing for one session.
type Options struct {
	// FirstChunkTimeout bounds the wait for the first response chunk of
	// one attempt.
	FirstChunkTimeout time.Duration

	// CollectTimeout bounds the whole multi-chunk collection once the
	// first chunk has arrived.
	CollectTimeout time.Duration

	// Attempts is the total number of writes tried before giving up.
	Attempts int

	// RetryDelay separates consecutive attempts.
	RetryDelay time.Duration
}

func DefaultOptions() Options {
	return Options{
		FirstChunkTimeout: 8 * time.Second,
		CollectTimeout:    20 * time.Second,
		Attempts:          3,
		RetryDelay:        time.Second,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.FirstChunkTimeout <= 0 {
		o.FirstChunkTimeout = d.FirstChunkTimeout
	}
	if o.CollectTimeout <= 0 {
		o.CollectTimeout = d.CollectTimeout
	}
	if o.Attempts <= 0 {
		o.Attempts = d.Attempts
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = d.RetryDelay
	}
	return o
}

// Session runs binary command/response exchanges over one connection.
// Not safe for concurrent use; callers serialize per device.
type Session struct {
	link  Link
	opts  Options
	log   *logrus.Entry
	sleep func(ctx context.Context, d time.Duration) error
}

func NewSession(link Link, log *logrus.Entry, opts Options) *Session {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Session{
		link: link,
		opts: opts.withDefaults(),
		log:  log,
		sleep: func(ctx context.Context, d time.Duration) error {
			t := time.NewTimer(d)
			defer t.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-t.C:
				return nil
			}
		},
	}
}

// Exchange writes cmd and collects its response chunks, concatenated in
// arrival order. Attempts rotate through the command's alternate
// encodings. A command expecting zero chunks returns nil immediately
// after a successful write.
func (s *Session) Exchange(ctx context.Context, cmd Command) ([]byte, error) {
	payloads := cmd.payloads()
	log := s.log.WithField("command", cmd.Name)

	for attempt := 0; attempt < s.opts.Attempts; attempt++ {
		payload := payloads[attempt%len(payloads)]
		if attempt > 0 {
			log.WithFields(logrus.Fields{
				"attempt": attempt + 1,
				"variant": attempt % len(payloads),
			}).Debug("Retrying command")
		}

		s.drain()
		if err := s.link.Write(ctx, payload); err != nil {
			return nil, err
		}
		if cmd.ExpectedChunks == 0 {
			return nil, nil
		}

		frame, ok, err := s.collect(ctx, cmd.ExpectedChunks)
		if err != nil {
			return nil, err
		}
		if ok {
			return frame, nil
		}

		if attempt < s.opts.Attempts-1 {
			if err := s.sleep(ctx, s.opts.RetryDelay); err != nil {
				return nil, err
			}
		}
	}
	log.WithField("attempts", s.opts.Attempts).Warn("Device never responded")
	return nil, ErrNoResponse
}

// Probe writes the bare preamble and waits briefly for any reaction.
// The outcome is advisory, some firmware stays silent, so failures are
// logged and swallowed.
func (s *Session) Probe(ctx context.Context, cmd Command) {
	if err := s.link.Write(ctx, cmd.Payload); err != nil {
		s.log.WithError(err).Debug("Probe write failed")
		return
	}
	t := time.NewTimer(500 * time.Millisecond)
	defer t.Stop()
	select {
	case data := <-s.link.Notifications():
		s.log.WithField("len", len(data)).Debug("Probe answered")
	case <-t.C:
	case <-ctx.Done():
	}
}

// collect waits for the first chunk, then gathers the rest. The second
// return is false when the first chunk never arrived and the attempt
// should be retried.
func (s *Session) collect(ctx context.Context, expected int) ([]byte, bool, error) {
	first := time.NewTimer(s.opts.FirstChunkTimeout)
	defer first.Stop()

	var frame bytes.Buffer
	select {
	case data := <-s.link.Notifications():
		frame.Write(data)
	case <-first.C:
		return nil, false, nil
	case <-s.link.Lost():
		return nil, false, transport.ErrConnectionLost
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}

	overall := time.NewTimer(s.opts.CollectTimeout)
	defer overall.Stop()

	for got := 1; got < expected; got++ {
		select {
		case data := <-s.link.Notifications():
			frame.Write(data)
		case <-overall.C:
			s.log.WithFields(logrus.Fields{
				"got":      got,
				"expected": expected,
			}).Warn("Response stalled mid-frame")
			return nil, false, ErrIncompleteResponse
		case <-s.link.Lost():
			return nil, false, transport.ErrConnectionLost
		case <-ctx.Done():
			return nil, false, ctx.Err()
		}
	}
	return frame.Bytes(), true, nil
}

// drain discards notifications left over from a previous exchange so a
// late chunk cannot be mistaken for the next response.
func (s *Session) drain() {
	for {
		select {
		case <-s.link.Notifications():
		default:
			return
		}
	}
}
