// Package mcpipe is a memcached client for the text protocol that pipelines
// commands over a fixed pool of persistent connections.
//
// Every operation returns a Future. Commands are written immediately, so many
// of them can be in flight on the same connection; responses are matched to
// commands in submission order.
package mcpipe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/jackc/puddle/v2"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/sync/errgroup"

	"github.com/pior/mcpipe/ascii"
	"github.com/pior/mcpipe/transport"
)

const (
	DefaultPort            = 11211
	DefaultConnectionCount = 5
)

// SetOptions holds the optional arguments of a set.
type SetOptions struct {
	// Flags is an opaque value stored with the item and returned by gets.
	Flags uint32

	// Expiration defaults to never.
	Expiration ascii.Expiration
}

// Config holds the connection options of a Client.
type Config struct {
	// Port is the server port. Zero means DefaultPort.
	Port int

	// ConnectionCount is the number of connections opened to the server.
	// Zero means DefaultConnectionCount.
	ConnectionCount int

	// Logger receives diagnostic messages. If nil, messages are discarded.
	Logger Logger

	// Dialer opens the connections. If nil, transport.NetDialer is used.
	Dialer transport.Dialer

	// NewCircuitBreaker creates a circuit breaker for a connection.
	// Called once per connection, with the server address and the connection
	// index as name. If nil, no circuit breaker is used.
	NewCircuitBreaker func(name string) *gobreaker.TwoStepCircuitBreaker[struct{}]
}

func (c Config) withDefaults() Config {
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.ConnectionCount == 0 {
		c.ConnectionCount = DefaultConnectionCount
	}
	if c.Logger == nil {
		c.Logger = NopLogger{}
	}
	if c.Dialer == nil {
		c.Dialer = transport.NetDialer{}
	}
	return c
}

func (c Config) validate(host string) error {
	if host == "" {
		return &ConfigError{Field: "host", Message: "must be a non-empty string"}
	}
	if c.Port < 1 || c.Port > 65535 {
		return &ConfigError{Field: "port", Message: fmt.Sprintf("must be between 1 and 65535, got %d", c.Port)}
	}
	if c.ConnectionCount < 1 {
		return &ConfigError{Field: "connection count", Message: fmt.Sprintf("must be positive, got %d", c.ConnectionCount)}
	}
	return nil
}

// Client dispatches commands to a pool of pipelined connections in
// round-robin order. Connections that go bad are removed from the rotation
// and never replaced.
//
// The dispatch methods (Get, GetAsync, Set, SetAsync) share an unsynchronized
// rotation cursor and must not be called concurrently. Futures, Handlers,
// Stats and Close are safe for concurrent use.
type Client struct {
	addr   string
	logger Logger

	// handlers keeps every connection at its original index.
	handlers []*Handler
	// active is the rotation; bad handlers are removed as they are found.
	active []*Handler
	cursor int

	pool      *puddle.Pool[transport.Conn]
	resources []*puddle.Resource[transport.Conn]

	closeOnce sync.Once
	closed    atomic.Bool

	stats clientStatsCollector
}

// ConnectAsync validates config and starts opening the connections.
//
// The returned future is fulfilled once every connection is established. If
// any connection fails, the future is rejected with the first error and every
// connection opened so far is closed.
func ConnectAsync(ctx context.Context, host string, config Config) (*Future[*Client], error) {
	config = config.withDefaults()
	if err := config.validate(host); err != nil {
		return nil, err
	}

	addr := net.JoinHostPort(host, strconv.Itoa(config.Port))
	future := newFuture[*Client]()

	go func() {
		client, err := connect(ctx, addr, config)
		if err != nil {
			config.Logger.Logf("mcpipe: failed to connect to %s: %v", addr, err)
			future.reject(err)
			return
		}
		future.resolve(client)
	}()

	return future, nil
}

// Connect is the blocking form of ConnectAsync.
func Connect(ctx context.Context, host string, config Config) (*Client, error) {
	future, err := ConnectAsync(ctx, host, config)
	if err != nil {
		return nil, err
	}
	return future.Value()
}

func connect(ctx context.Context, addr string, config Config) (*Client, error) {
	pool, err := puddle.NewPool(&puddle.Config[transport.Conn]{
		Constructor: func(ctx context.Context) (transport.Conn, error) {
			return config.Dialer.Dial(ctx, addr)
		},
		Destructor: func(conn transport.Conn) {
			_ = conn.Close()
		},
		MaxSize: int32(config.ConnectionCount),
	})
	if err != nil {
		return nil, err
	}

	c := &Client{
		addr:      addr,
		logger:    config.Logger,
		pool:      pool,
		resources: make([]*puddle.Resource[transport.Conn], config.ConnectionCount),
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := range config.ConnectionCount {
		g.Go(func() error {
			res, err := pool.Acquire(gctx)
			if err != nil {
				return err
			}
			c.resources[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		c.releaseConnections()
		return nil, err
	}

	c.handlers = make([]*Handler, 0, len(c.resources))
	for i, res := range c.resources {
		var breaker *gobreaker.TwoStepCircuitBreaker[struct{}]
		if config.NewCircuitBreaker != nil {
			breaker = config.NewCircuitBreaker(fmt.Sprintf("%s#%d", addr, i))
		}
		c.handlers = append(c.handlers, newHandler(i, addr, res.Value(), config.Logger, breaker))
	}

	for _, h := range c.handlers {
		if err := h.start(); err != nil {
			c.releaseConnections()
			return nil, err
		}
	}

	c.active = slices.Clone(c.handlers)
	c.logger.Logf("mcpipe: connected to %s with %d connections", addr, len(c.handlers))
	return c, nil
}

// releaseConnections destroys every acquired connection and closes the pool.
func (c *Client) releaseConnections() {
	for _, res := range c.resources {
		if res != nil {
			res.Destroy()
		}
	}
	c.pool.Close()
}

// Close closes every connection. Pending futures fail with a connection
// error. Close is idempotent.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.releaseConnections()
		c.logger.Logf("mcpipe: closed %d connections to %s", len(c.handlers), c.addr)
	})
	return nil
}

// Addr returns the server address.
func (c *Client) Addr() string {
	return c.addr
}

// Handler returns the connection at index i of the original pool, whatever
// its health. It bypasses the rotation and is meant for tests and
// demonstrations.
//
// Returning a bad handler does not make it usable again: its SubmitGet and
// SubmitSet fail with ErrHandlerUnusable without writing anything, because
// its stream position is lost.
func (c *Client) Handler(i int) (*Handler, error) {
	if i < 0 || i >= len(c.handlers) {
		return nil, fmt.Errorf("handler index %d out of range [0, %d)", i, len(c.handlers))
	}
	return c.handlers[i], nil
}

// Usable returns the number of connections still in good health.
func (c *Client) Usable() int {
	n := 0
	for _, h := range c.handlers {
		if h.Health() == HealthGood {
			n++
		}
	}
	return n
}

// selectHandler returns the next good handler in round-robin order. Bad
// handlers met along the way are removed from the rotation.
func (c *Client) selectHandler() (*Handler, error) {
	for len(c.active) > 0 {
		c.cursor %= len(c.active)

		h := c.active[c.cursor]
		if h.Health() == HealthGood {
			c.cursor = (c.cursor + 1) % len(c.active)
			return h, nil
		}

		c.active = slices.Delete(c.active, c.cursor, c.cursor+1)
		c.stats.recordQuarantine()
		c.logger.Logf("mcpipe: connection %d removed from rotation, %d left", h.ID(), len(c.active))
	}
	return nil, ErrNoUsableConnections
}

// dispatch submits through the rotation. A handler that turns bad between
// selection and submission is skipped.
func dispatch[T any](c *Client, submit func(h *Handler) (*Future[T], error)) (*Future[T], error) {
	if c.closed.Load() {
		return nil, ErrClientClosed
	}

	for {
		h, err := c.selectHandler()
		if err != nil {
			return nil, err
		}

		future, err := submit(h)
		if errors.Is(err, ErrHandlerUnusable) {
			continue
		}
		return future, err
	}
}

// GetAsync retrieves keys. The result maps each key found to its item;
// missing keys are absent from the map.
func (c *Client) GetAsync(keys ...string) (*Future[map[string]ascii.Item], error) {
	future, err := dispatch(c, func(h *Handler) (*Future[map[string]ascii.Item], error) {
		return h.SubmitGet(keys...)
	})
	if err != nil {
		return nil, err
	}

	future.OnComplete(func(items map[string]ascii.Item, err error) {
		if err != nil {
			c.stats.recordError()
			return
		}
		c.stats.recordGet(len(keys), len(items))
	})
	return future, nil
}

// Get is the blocking form of GetAsync.
func (c *Client) Get(keys ...string) (map[string]ascii.Item, error) {
	future, err := c.GetAsync(keys...)
	if err != nil {
		return nil, err
	}
	return future.Value()
}

// SetAsync stores value under key.
func (c *Client) SetAsync(key string, value []byte, opts SetOptions) (*Future[struct{}], error) {
	future, err := dispatch(c, func(h *Handler) (*Future[struct{}], error) {
		return h.SubmitSet(key, value, opts)
	})
	if err != nil {
		return nil, err
	}

	future.OnComplete(func(_ struct{}, err error) {
		if err != nil {
			c.stats.recordError()
			return
		}
		c.stats.recordSet()
	})
	return future, nil
}

// Set is the blocking form of SetAsync.
func (c *Client) Set(key string, value []byte, opts SetOptions) error {
	future, err := c.SetAsync(key, value, opts)
	if err != nil {
		return err
	}
	_, err = future.Value()
	return err
}

// Stats returns a snapshot of the client's counters.
func (c *Client) Stats() ClientStats {
	return c.stats.snapshot()
}

// HandlerStats returns a snapshot of every connection, in original order.
func (c *Client) HandlerStats() []HandlerStats {
	stats := make([]HandlerStats, 0, len(c.handlers))
	for _, h := range c.handlers {
		stats = append(stats, h.Stats())
	}
	return stats
}
