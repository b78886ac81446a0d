package protocol

import "errors"

var (
	// ErrNoResponse: the device acknowledged the link but never sent the
	// first response chunk within the retry limit.
	ErrNoResponse = errors.New("no response from device")

	// ErrIncompleteResponse: the response started but fewer chunks than
	// expected arrived before the collection window closed.
	ErrIncompleteResponse = errors.New("incomplete response")

	// ErrMalformedFrame: the received bytes violate the family framing
	// rules (bad length prefix, non-JSON payload, oversized frame).
	ErrMalformedFrame = errors.New("malformed frame")

	// ErrCommandRejected: the request names an unknown command or
	// carries parameters outside the accepted range.
	ErrCommandRejected = errors.New("command rejected")
)
