package poll

import (
	"context"
	"errors"

	"github.com/mattxcnm/goalzero-ble/internal/decode"
	"github.com/mattxcnm/goalzero-ble/internal/protocol"
	"github.com/mattxcnm/goalzero-ble/internal/transport"
)

// Kind classifies a cycle failure for callers that branch on outcome
// rather than on the underlying error chain.
type Kind string

const (
	KindConnection Kind = "connection"
	KindLost       Kind = "connection_lost"
	KindNoResponse Kind = "no_response"
	KindIncomplete Kind = "incomplete_response"
	KindMalformed  Kind = "malformed_frame"
	KindRejected   Kind = "command_rejected"
	KindDecode     Kind = "decode"
	KindCanceled   Kind = "canceled"
	KindInternal   Kind = "internal"
)

// Error wraps a cycle failure with its classification. The underlying
// error chain stays reachable through Unwrap for errors.Is checks.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return string(e.Kind) + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

func wrap(err error) error {
	return &Error{Kind: classify(err), Err: err}
}

func classify(err error) Kind {
	switch {
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	case errors.Is(err, transport.ErrConnectionLost):
		return KindLost
	case errors.Is(err, transport.ErrUnavailable),
		errors.Is(err, transport.ErrScanTimeout),
		errors.Is(err, transport.ErrNoMatchingCharacteristic),
		errors.Is(err, transport.ErrEstablishFailed),
		errors.Is(err, transport.ErrDialTimeout):
		return KindConnection
	case errors.Is(err, protocol.ErrNoResponse):
		return KindNoResponse
	case errors.Is(err, protocol.ErrIncompleteResponse):
		return KindIncomplete
	case errors.Is(err, protocol.ErrMalformedFrame):
		return KindMalformed
	case errors.Is(err, protocol.ErrCommandRejected):
		return KindRejected
	}
	var derr *decode.Error
	if errors.As(err, &derr) {
		return KindDecode
	}
	return KindInternal
}
