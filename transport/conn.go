// Package transport provides the duplex byte streams a pipelined client runs
// on.
//
// A Conn pushes inbound bytes to a callback instead of being read from, so a
// single delivery context per connection feeds the response parsers while any
// number of goroutines write commands.
package transport

import (
	"context"
	"errors"
)

// ErrClosed is passed to the close callback when the connection was closed
// locally.
var ErrClosed = errors.New("transport: connection closed")

// ErrAlreadyStarted is returned by Start when called more than once.
var ErrAlreadyStarted = errors.New("transport: already started")

// Conn is a started-on-demand duplex byte stream.
type Conn interface {
	// Start begins delivering inbound bytes to onData. Calls to onData are
	// sequential and in stream order; the slice is only valid during the call.
	// onClose is called exactly once when the stream ends, with the cause.
	Start(onData func([]byte), onClose func(error)) error

	// Write sends p in full. It is safe for concurrent use, and each call is
	// written contiguously.
	Write(p []byte) error

	// Close releases the connection. It is idempotent.
	Close() error
}

// Dialer opens connections.
type Dialer interface {
	Dial(ctx context.Context, addr string) (Conn, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context, addr string) (Conn, error)

func (f DialerFunc) Dial(ctx context.Context, addr string) (Conn, error) {
	return f(ctx, addr)
}
