// Package protocol implements the two Goal Zero wire dialects: the
// fixed-offset binary frames of the fridge controllers and the
// length-prefixed JSON-RPC of the power stations. Both ride the same
// write/notify transport.
package protocol

// Command is one binary request with its response expectations.
type Command struct {
	// Payload is the exact bytes written to the device.
	Payload []byte

	// Alternates are equivalent encodings tried round-robin on retry.
	// Some firmware revisions only answer one of the known variants.
	Alternates [][]byte

	// ExpectedChunks is how many notification chunks make up the
	// response. Zero means fire-and-forget: a successful write is the
	// acknowledgement.
	ExpectedChunks int

	// Name identifies the command in logs.
	Name string
}

// payloads returns the payload followed by its alternates, so attempt
// N uses payloads[N % len].
func (c Command) payloads() [][]byte {
	return append([][]byte{c.Payload}, c.Alternates...)
}
