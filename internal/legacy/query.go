// Package legacy implements the pre-1.7 Minecraft server list ping (0xFE 0x01).
//
// The exchange is a single request and response over TCP governed by one
// deadline. The package does no logging and keeps no state between calls.
package legacy

import (
	"bufio"
	"context"
	"errors"
	"net"
	"time"
)

// DefaultTimeout applies when Query is called with a non-positive timeout.
const DefaultTimeout = time.Second

// Query asks the server at addr for its status.
//
// timeout bounds the whole exchange, dial included. Cancelling ctx aborts
// the exchange as well. The connection is closed before Query returns.
func Query(ctx context.Context, addr Address, timeout time.Duration) (*Status, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	deadline := time.Now().Add(timeout)
	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	target := addr.String()

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", target)
	if err != nil {
		return nil, &ConnectionError{Addr: target, Err: err}
	}
	defer func() { _ = conn.Close() }()

	if err := conn.SetDeadline(deadline); err != nil {
		return nil, &ConnectionError{Addr: target, Err: err}
	}

	// Unblock pending I/O when ctx ends before the deadline does.
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Unix(1, 0))
	})
	defer stop()

	if _, err := conn.Write(Request); err != nil {
		return nil, classify(ctx, target, err)
	}

	status, err := Decode(bufio.NewReaderSize(conn, 512))
	if err != nil {
		return nil, classify(ctx, target, err)
	}

	return status, nil
}

// classify turns a raw I/O error into one of the typed errors.
// Protocol errors pass through untouched.
func classify(ctx context.Context, target string, err error) error {
	var protoErr *ProtocolError
	if errors.As(err, &protoErr) {
		return err
	}

	if errors.Is(ctx.Err(), context.Canceled) {
		return &ConnectionError{Addr: target, Err: context.Canceled}
	}
	if isTimeout(err) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &TimeoutError{Addr: target, Err: err}
	}

	return &ConnectionError{Addr: target, Err: err}
}
