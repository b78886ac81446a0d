package protocol

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mattxcnm/goalzero-ble/internal/transport"
)

const (
	// prefixLen is the size of the big-endian length header that
	// precedes every JSON message on the wire.
	prefixLen = 4

	// maxFrameLen rejects absurd length prefixes before allocating.
	maxFrameLen = 64 * 1024
)

// FrameAssembler reassembles length-prefixed JSON messages from a
// stream of notification chunks. The peer fragments messages at
// arbitrary boundaries, so the assembler treats input as a pure byte
// stream: a chunk may hold a partial prefix, prefix plus payload, or
// the middle of a payload.
type FrameAssembler struct {
	prefix  [prefixLen]byte
	havePfx int
	need    int
	buf     []byte
}

// Feed consumes one chunk and returns any completed frames, in order.
func (a *FrameAssembler) Feed(chunk []byte) ([][]byte, error) {
	var frames [][]byte
	for len(chunk) > 0 {
		if a.havePfx < prefixLen {
			n := copy(a.prefix[a.havePfx:], chunk)
			a.havePfx += n
			chunk = chunk[n:]
			if a.havePfx < prefixLen {
				return frames, nil
			}
			a.need = int(binary.BigEndian.Uint32(a.prefix[:]))
			if a.need <= 0 || a.need > maxFrameLen {
				length := a.need
				a.Reset()
				return frames, fmt.Errorf("%w: length prefix %d", ErrMalformedFrame, length)
			}
			a.buf = make([]byte, 0, a.need)
		}

		take := a.need - len(a.buf)
		if take > len(chunk) {
			take = len(chunk)
		}
		a.buf = append(a.buf, chunk[:take]...)
		chunk = chunk[take:]

		if len(a.buf) == a.need {
			frame := a.buf
			a.buf = nil
			a.havePfx = 0
			a.need = 0
			if !json.Valid(frame) {
				return frames, fmt.Errorf("%w: payload is not JSON", ErrMalformedFrame)
			}
			frames = append(frames, frame)
		}
	}
	return frames, nil
}

// Reset discards any partial frame, used after link loss or a framing
// error.
func (a *FrameAssembler) Reset() {
	a.havePfx = 0
	a.need = 0
	a.buf = nil
}

// EncodeFrame prepends the length header to one JSON payload.
func EncodeFrame(payload []byte) []byte {
	out := make([]byte, prefixLen+len(payload))
	binary.BigEndian.PutUint32(out, uint32(len(payload)))
	copy(out[prefixLen:], payload)
	return out
}

// rpcRequest is the outbound message shape.
type rpcRequest struct {
	ID     int64       `json:"id"`
	Method string      `json:"method"`
	Params interface{} `json:"params,omitempty"`
}

// RPCResult is the inner result object of a response.
type RPCResult struct {
	Body       json.RawMessage `json:"body"`
	StatusMsg  string          `json:"status_msg"`
	StatusCode int             `json:"status_code"`
}

type rpcResponse struct {
	ID     int64      `json:"id"`
	Src    string     `json:"src"`
	Result *RPCResult `json:"result"`
}

// RPCSession runs request/response calls over one persistent
// connection. Message IDs increment per request and responses are
// correlated by ID, so an unsolicited or stale message is skipped, not
// treated as an answer. Not safe for concurrent use.
type RPCSession struct {
	link   Link
	opts   Options
	log    *logrus.Entry
	asm    FrameAssembler
	nextID int64

	// pending holds correlated-but-unclaimed frames, such as a reply
	// that arrived after its call timed out.
	pending []json.RawMessage

	sleep func(ctx context.Context, d time.Duration) error
}

func NewRPCSession(link Link, log *logrus.Entry, opts Options) *RPCSession {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &RPCSession{
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

// Call sends one request and returns the matching result body. Attempts
// re-send with a fresh ID after silence; ID correlation makes the
// duplicate harmless if the first request was merely slow.
func (r *RPCSession) Call(ctx context.Context, method string, params interface{}) (*RPCResult, error) {
	log := r.log.WithField("method", method)

	for attempt := 0; attempt < r.opts.Attempts; attempt++ {
		r.nextID++
		id := r.nextID

		payload, err := json.Marshal(rpcRequest{ID: id, Method: method, Params: params})
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		if err := r.link.Write(ctx, EncodeFrame(payload)); err != nil {
			return nil, err
		}

		result, ok, err := r.await(ctx, id)
		if err != nil {
			return nil, err
		}
		if ok {
			if result.StatusCode != 0 && result.StatusCode != 200 {
				return nil, fmt.Errorf("%w: %s (%d)", ErrCommandRejected, result.StatusMsg, result.StatusCode)
			}
			return result, nil
		}

		log.WithField("attempt", attempt+1).Debug("Call timed out, retrying")
		if attempt < r.opts.Attempts-1 {
			if err := r.sleep(ctx, r.opts.RetryDelay); err != nil {
				return nil, err
			}
		}
	}
	return nil, ErrNoResponse
}

// await reads frames until the response with the wanted ID arrives or
// the first-chunk window closes. The second return is false on timeout.
func (r *RPCSession) await(ctx context.Context, id int64) (*RPCResult, bool, error) {
	deadline := time.NewTimer(r.opts.FirstChunkTimeout)
	defer deadline.Stop()

	for {
		if res, ok := r.claim(id); ok {
			return res, true, nil
		}
		select {
		case chunk := <-r.link.Notifications():
			frames, err := r.asm.Feed(chunk)
			if err != nil {
				return nil, false, err
			}
			r.pending = append(r.pending, toRaw(frames)...)
		case <-deadline.C:
			return nil, false, nil
		case <-r.link.Lost():
			r.asm.Reset()
			return nil, false, transport.ErrConnectionLost
		case <-ctx.Done():
			return nil, false, ctx.Err()
		}
	}
}

func toRaw(frames [][]byte) []json.RawMessage {
	out := make([]json.RawMessage, len(frames))
	for i, f := range frames {
		out[i] = json.RawMessage(f)
	}
	return out
}

// claim pops the pending frame matching id, if present. Frames that
// cannot be parsed or carry a different ID are dropped with a log line.
func (r *RPCSession) claim(id int64) (*RPCResult, bool) {
	for i, raw := range r.pending {
		var resp rpcResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			r.log.WithError(err).Warn("Discarding unparseable frame")
			r.pending = append(r.pending[:i], r.pending[i+1:]...)
			return nil, false
		}
		if resp.ID != id {
			continue
		}
		r.pending = append(r.pending[:i], r.pending[i+1:]...)
		if resp.Result == nil {
			r.log.WithField("id", id).Warn("Response carried no result")
			return nil, false
		}
		return resp.Result, true
	}
	return nil, false
}
