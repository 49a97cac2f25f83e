package transport

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

const (
	DefaultDialTimeout = 5 * time.Second
	DefaultReadBuffer  = 16 * 1024
)

// NetDialer dials TCP connections with the standard library and reads each one
// from a dedicated goroutine.
type NetDialer struct {
	// Timeout bounds connection establishment. Zero means DefaultDialTimeout.
	Timeout time.Duration

	// ReadBufferSize is the size of the per-connection read buffer.
	// Zero means DefaultReadBuffer.
	ReadBufferSize int
}

func (d NetDialer) Dial(ctx context.Context, addr string) (Conn, error) {
	timeout := d.Timeout
	if timeout == 0 {
		timeout = DefaultDialTimeout
	}

	dialer := net.Dialer{Timeout: timeout}
	nc, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}

	c := NewConn(nc)
	if d.ReadBufferSize > 0 {
		c.readBufferSize = d.ReadBufferSize
	}
	return c, nil
}

// NetConn adapts a net.Conn to Conn.
type NetConn struct {
	conn           net.Conn
	readBufferSize int

	writeMu sync.Mutex

	started   atomic.Bool
	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

var _ Conn = (*NetConn)(nil)

// NewConn wraps an established connection. The caller must not read from nc
// after Start.
func NewConn(nc net.Conn) *NetConn {
	return &NetConn{
		conn:           nc,
		readBufferSize: DefaultReadBuffer,
	}
}

func (c *NetConn) Start(onData func([]byte), onClose func(error)) error {
	if !c.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	go c.readLoop(onData, onClose)
	return nil
}

func (c *NetConn) readLoop(onData func([]byte), onClose func(error)) {
	buf := make([]byte, c.readBufferSize)
	for {
		n, err := c.conn.Read(buf)
		if n > 0 {
			onData(buf[:n])
		}
		if err != nil {
			// Read fails with net.ErrClosed after a local Close.
			if c.closed.Load() {
				err = ErrClosed
			}
			_ = c.Close()
			onClose(err)
			return
		}
	}
}

func (c *NetConn) Write(p []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.closed.Load() {
		return ErrClosed
	}

	for len(p) > 0 {
		n, err := c.conn.Write(p)
		if err != nil {
			return err
		}
		p = p[n:]
	}
	return nil
}

func (c *NetConn) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

// RemoteAddr returns the address of the peer.
func (c *NetConn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}
