package legacy

import (
	"errors"
	"fmt"
)

// Reasons carried by ProtocolError. Match them with errors.Is.
var (
	ErrInvalidPacketID    = errors.New("invalid packet id")
	ErrInvalidLength      = errors.New("invalid length")
	ErrPrematureEOF       = errors.New("premature end of stream")
	ErrUnexpectedResponse = errors.New("unexpected response")
	ErrMalformedFields    = errors.New("malformed fields")
)

// Error kinds reported by Kind.
const (
	KindConnection = "connection"
	KindTimeout    = "timeout"
	KindProtocol   = "protocol"
	KindUnknown    = "unknown"
)

// ConnectionError is a transport failure: DNS, refused, unreachable, reset
// or a dial that did not finish before the deadline.
type ConnectionError struct {
	Err  error
	Addr string
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect %s: %v", e.Addr, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// Timeout reports whether the connection attempt ran out of time.
func (e *ConnectionError) Timeout() bool {
	return isTimeout(e.Err)
}

// TimeoutError means the shared deadline elapsed on an open connection.
type TimeoutError struct {
	Err  error
	Addr string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("query %s: timed out: %v", e.Addr, e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// Timeout always returns true; it satisfies net.Error style checks.
func (e *TimeoutError) Timeout() bool { return true }

// ProtocolError means the server answered with something that is not a
// legacy status response.
type ProtocolError struct {
	// Err is one of the Err* reasons above.
	Err error

	// Detail holds the observed value, e.g. the packet id.
	Detail string
}

func (e *ProtocolError) Error() string {
	if e.Detail == "" {
		return e.Err.Error()
	}
	return e.Err.Error() + ": " + e.Detail
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// Kind classifies err as one of the Kind* constants.
func Kind(err error) string {
	var (
		connErr  *ConnectionError
		timeErr  *TimeoutError
		protoErr *ProtocolError
	)

	switch {
	case errors.As(err, &protoErr):
		return KindProtocol
	case errors.As(err, &timeErr):
		return KindTimeout
	case errors.As(err, &connErr):
		return KindConnection
	default:
		return KindUnknown
	}
}

func protocolErr(reason error, format string, args ...any) *ProtocolError {
	return &ProtocolError{Err: reason, Detail: fmt.Sprintf(format, args...)}
}

func isTimeout(err error) bool {
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}
