package mavlink

import (
	"fmt"

	"github.com/juju/errors"
)

// Fault classifies DecodeError. Callers decide retry vs log-and-continue by Fault only.
type Fault uint8

const (
	FaultNone Fault = iota
	// no complete frame buffered, link had nothing to read
	FaultWouldBlock
	// link I/O failed: device disconnected, closed, read error
	FaultTransport
	// framing or checksum failure, protocol noise
	FaultMalformed
)

func (f Fault) String() string {
	switch f {
	case FaultNone:
		return "none"
	case FaultWouldBlock:
		return "would-block"
	case FaultTransport:
		return "transport"
	case FaultMalformed:
		return "malformed"
	}
	return fmt.Sprintf("fault(%d)", uint8(f))
}

type DecodeError struct {
	Fault Fault
	Err   error
}

func (e *DecodeError) Error() string {
	if e.Err == nil {
		return "mavlink " + e.Fault.String()
	}
	return fmt.Sprintf("mavlink %s: %v", e.Fault.String(), e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Timeout makes would-block recognizable by generic timeout checks.
func (e *DecodeError) Timeout() bool { return e.Fault == FaultWouldBlock }

var errWouldBlock = &DecodeError{Fault: FaultWouldBlock}

func newTransportError(err error) error {
	return &DecodeError{Fault: FaultTransport, Err: err}
}

func newMalformed(format string, args ...interface{}) error {
	return &DecodeError{Fault: FaultMalformed, Err: errors.NotValidf(format, args...)}
}

// FaultOf returns FaultNone for nil and errors not produced by Decoder.
func FaultOf(err error) Fault {
	if err == nil {
		return FaultNone
	}
	if de, ok := errors.Cause(err).(*DecodeError); ok {
		return de.Fault
	}
	return FaultNone
}

func IsWouldBlock(err error) bool { return FaultOf(err) == FaultWouldBlock }
func IsTransport(err error) bool  { return FaultOf(err) == FaultTransport }
func IsMalformed(err error) bool  { return FaultOf(err) == FaultMalformed }

type timeouter interface{ Timeout() bool }

func isTimeout(err error) bool {
	if errors.IsTimeout(err) {
		return true
	}
	t, ok := errors.Cause(err).(timeouter)
	return ok && t.Timeout()
}
