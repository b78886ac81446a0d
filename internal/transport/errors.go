package transport

import (
	"fmt"
)

// FailureClass identifies the kind of connection-level failure.
type FailureClass string

const (
	// ScanTimeout: the device never appeared in any scan pass.
	ScanTimeout FailureClass = "scan_timeout"
	// EstablishFailed: the link-layer connection could not be set up.
	EstablishFailed FailureClass = "establish_failed"
	// DialTimeout: the per-attempt connect timeout elapsed.
	DialTimeout FailureClass = "dial_timeout"
	// ConnectionLost: the peer dropped an established link.
	ConnectionLost FailureClass = "connection_lost"
	// NoMatchingCharacteristic: discovery found no usable Write/Notify pair.
	NoMatchingCharacteristic FailureClass = "no_matching_characteristic"
	// Unavailable: all connect attempts for one poll cycle were exhausted.
	Unavailable FailureClass = "connection_unavailable"
)

// ConnError is any connection-level problem, comparable by class via
// errors.Is against the predefined sentinels below.
type ConnError struct {
	Class FailureClass
	Msg   string
}

func (e *ConnError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.Class)
	}
	return fmt.Sprintf("%s: %s", e.Class, e.Msg)
}

// Is allows errors.Is to compare ConnError values by class.
func (e *ConnError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*ConnError)
	if !ok {
		return false
	}
	return e.Class == t.Class
}

// Predefined sentinel errors, one per failure class.
var (
	ErrScanTimeout              = &ConnError{Class: ScanTimeout}
	ErrEstablishFailed          = &ConnError{Class: EstablishFailed}
	ErrDialTimeout              = &ConnError{Class: DialTimeout}
	ErrConnectionLost           = &ConnError{Class: ConnectionLost}
	ErrNoMatchingCharacteristic = &ConnError{Class: NoMatchingCharacteristic}
	ErrUnavailable              = &ConnError{Class: Unavailable}
)
