package testutils

import (
	"bytes"
	"context"
	"errors"
	"sync"

	"github.com/pior/mcpipe/transport"
)

// ConnectionMock is an in-memory transport.Conn. Writes are recorded, and
// inbound bytes are injected with Deliver on the caller's goroutine.
type ConnectionMock struct {
	mu       sync.Mutex
	writeBuf bytes.Buffer
	writeErr error
	onData   func([]byte)
	onClose  func(error)
	started  bool
	closed   bool
	closes   int

	// OnWrite, when set, is called after each successful write with the
	// bytes written. It may call Deliver to simulate a server reply.
	OnWrite func(p []byte)

	// OnClose, when set, is called once by the first Close, before the close
	// callback runs.
	OnClose func()
}

var _ transport.Conn = (*ConnectionMock)(nil)

// NewConnectionMock creates a new mock connection.
func NewConnectionMock() *ConnectionMock {
	return &ConnectionMock{}
}

func (m *ConnectionMock) Start(onData func([]byte), onClose func(error)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return transport.ErrAlreadyStarted
	}
	m.started = true
	m.onData = onData
	m.onClose = onClose
	return nil
}

func (m *ConnectionMock) Write(p []byte) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return transport.ErrClosed
	}
	if m.writeErr != nil {
		err := m.writeErr
		m.mu.Unlock()
		return err
	}
	m.writeBuf.Write(p)
	onWrite := m.OnWrite
	m.mu.Unlock()

	if onWrite != nil {
		onWrite(p)
	}
	return nil
}

func (m *ConnectionMock) Close() error {
	m.mu.Lock()
	m.closes++
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	onClose := m.onClose
	hook := m.OnClose
	m.mu.Unlock()

	if hook != nil {
		hook()
	}
	if onClose != nil {
		onClose(transport.ErrClosed)
	}
	return nil
}

// Deliver feeds inbound bytes to the data callback. Each string is delivered
// as a separate chunk.
func (m *ConnectionMock) Deliver(chunks ...string) {
	m.mu.Lock()
	onData := m.onData
	m.mu.Unlock()

	if onData == nil {
		panic("testutils: Deliver before Start")
	}
	for _, chunk := range chunks {
		onData([]byte(chunk))
	}
}

// Disconnect simulates the peer closing the stream with err.
func (m *ConnectionMock) Disconnect(err error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	onClose := m.onClose
	m.mu.Unlock()

	if onClose != nil {
		onClose(err)
	}
}

// FailWrites makes every subsequent Write return err.
func (m *ConnectionMock) FailWrites(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeErr = err
}

// GetWrittenRequest returns the raw bytes written to the mock connection.
func (m *ConnectionMock) GetWrittenRequest() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writeBuf.String()
}

// ResetWritten clears the recorded writes.
func (m *ConnectionMock) ResetWritten() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeBuf.Reset()
}

// IsClosed reports whether Close or Disconnect was called.
func (m *ConnectionMock) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// CloseCalls returns how many times Close was called.
func (m *ConnectionMock) CloseCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closes
}

// ErrDialRefused is returned by a DialerMock configured to fail.
var ErrDialRefused = errors.New("testutils: dial refused")

// DialerMock hands out ConnectionMocks and records them.
type DialerMock struct {
	mu    sync.Mutex
	conns []*ConnectionMock
	addrs []string

	// FailAt makes the n-th dial (1-based) fail with ErrDialRefused.
	// Zero disables failures.
	FailAt int

	// Setup, when set, is called on each new connection before it is returned.
	Setup func(*ConnectionMock)
}

var _ transport.Dialer = (*DialerMock)(nil)

func (d *DialerMock) Dial(ctx context.Context, addr string) (transport.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.addrs = append(d.addrs, addr)
	if d.FailAt > 0 && len(d.addrs) == d.FailAt {
		return nil, ErrDialRefused
	}

	conn := NewConnectionMock()
	if d.Setup != nil {
		d.Setup(conn)
	}
	d.conns = append(d.conns, conn)
	return conn, nil
}

// Conns returns the connections handed out so far, in dial order.
func (d *DialerMock) Conns() []*ConnectionMock {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*ConnectionMock(nil), d.conns...)
}

// Addrs returns every address dialed, including failed attempts.
func (d *DialerMock) Addrs() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.addrs...)
}
