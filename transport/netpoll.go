//go:build !windows

package transport

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cloudwego/netpoll"
)

// NetpollDialer dials connections managed by the cloudwego/netpoll event loop.
// Inbound bytes are delivered from netpoll's poller goroutines instead of one
// reader goroutine per connection.
type NetpollDialer struct {
	// Timeout bounds connection establishment. Zero means DefaultDialTimeout.
	Timeout time.Duration
}

func (d NetpollDialer) Dial(ctx context.Context, addr string) (Conn, error) {
	timeout := d.Timeout
	if timeout == 0 {
		timeout = DefaultDialTimeout
	}
	if deadline, ok := ctx.Deadline(); ok {
		timeout = min(timeout, time.Until(deadline))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	conn, err := netpoll.DialConnection("tcp", addr, timeout)
	if err != nil {
		return nil, err
	}
	return &netpollConn{conn: conn}, nil
}

type netpollConn struct {
	conn netpoll.Connection

	writeMu sync.Mutex

	started   atomic.Bool
	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

var _ Conn = (*netpollConn)(nil)

func (c *netpollConn) Start(onData func([]byte), onClose func(error)) error {
	if !c.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	var closeOnce sync.Once
	notifyClose := func(err error) {
		closeOnce.Do(func() { onClose(err) })
	}

	// netpoll never runs two OnRequest callbacks for the same connection
	// concurrently, so onData calls stay sequential.
	err := c.conn.SetOnRequest(func(_ context.Context, conn netpoll.Connection) error {
		reader := conn.Reader()
		for n := reader.Len(); n > 0; n = reader.Len() {
			p, err := reader.Next(n)
			if err != nil {
				return err
			}
			onData(p)
			if err := reader.Release(); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	return c.conn.AddCloseCallback(func(netpoll.Connection) error {
		if c.closed.Load() {
			notifyClose(ErrClosed)
		} else {
			notifyClose(netpoll.ErrConnClosed)
		}
		return nil
	})
}

func (c *netpollConn) Write(p []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.closed.Load() {
		return ErrClosed
	}

	w := c.conn.Writer()
	if _, err := w.WriteBinary(p); err != nil {
		return err
	}
	return w.Flush()
}

func (c *netpollConn) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}
