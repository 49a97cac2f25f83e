package mcpipe

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/edwingeng/deque/v2"
	"github.com/sony/gobreaker/v2"
	"github.com/valyala/bytebufferpool"

	"github.com/pior/mcpipe/ascii"
	"github.com/pior/mcpipe/transport"
)

// Health is the state of a pipelined connection. A connection only ever goes
// from HealthGood to HealthBad.
type Health int32

const (
	HealthGood Health = iota
	HealthBad
)

func (h Health) String() string {
	if h == HealthBad {
		return "bad"
	}
	return "good"
}

// pending is a command written to the connection and awaiting its response.
type pending struct {
	verb     ascii.Verb
	parser   ascii.LineParser
	complete func(err error)

	// nil without a circuit breaker
	breakerDone func(success bool)
}

// Handler pipelines commands over a single connection.
//
// Commands are written as soon as they are submitted, without waiting for
// earlier responses. Responses arrive in submission order, so every inbound
// line belongs to the oldest command still pending.
//
// When a line cannot be interpreted, the stream position is lost for every
// queued command: the handler turns bad, the oldest command fails with the
// parse error and the others with ErrCascadedFailure. A bad handler rejects
// new submissions and is never reused.
//
// Handler methods are safe for concurrent use.
type Handler struct {
	id      int
	addr    string
	conn    transport.Conn
	logger  Logger
	breaker *gobreaker.TwoStepCircuitBreaker[struct{}]
	framer  *ascii.Framer
	stats   handlerStatsCollector
	health  atomic.Int32

	// writeMu makes enqueue and write one step, so queue order is wire order.
	writeMu sync.Mutex

	// mu guards queue. Front is the newest command, back the oldest.
	mu    sync.Mutex
	queue *deque.Deque[*pending]
}

func newHandler(id int, addr string, conn transport.Conn, logger Logger, breaker *gobreaker.TwoStepCircuitBreaker[struct{}]) *Handler {
	h := &Handler{
		id:      id,
		addr:    addr,
		conn:    conn,
		logger:  logger,
		breaker: breaker,
		queue:   deque.NewDeque[*pending](),
	}
	h.framer = ascii.NewFramer(h.onLine)
	return h
}

// start begins reading responses.
func (h *Handler) start() error {
	return h.conn.Start(h.framer.Feed, h.onTransportClose)
}

// ID returns the position of the handler in the client's original pool.
func (h *Handler) ID() int {
	return h.id
}

// Health returns the current health of the connection.
func (h *Handler) Health() Health {
	return Health(h.health.Load())
}

// Pending returns the number of commands awaiting a response.
func (h *Handler) Pending() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.queue.Len()
}

// Stats returns a snapshot of the handler's counters.
func (h *Handler) Stats() HandlerStats {
	s := h.stats.snapshot()
	s.ID = h.id
	s.Addr = h.addr
	s.Health = h.Health()
	s.Pending = h.Pending()
	if h.breaker != nil {
		s.CircuitBreakerState = h.breaker.State().String()
	}
	return s
}

// SubmitGet writes a retrieval for keys and returns its future. The result
// maps each key the server returned to its item; absent keys were misses.
//
// Keys are validated before anything is written.
func (h *Handler) SubmitGet(keys ...string) (*Future[map[string]ascii.Item], error) {
	if err := ascii.ValidateKeys(keys); err != nil {
		return nil, err
	}

	future := newFuture[map[string]ascii.Item]()
	parser := ascii.NewRetrievalParser()
	p := &pending{
		verb:   ascii.VerbGet,
		parser: parser,
		complete: func(err error) {
			if err != nil {
				future.reject(err)
				return
			}
			future.resolve(parser.Items())
		},
	}

	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	buf.B = ascii.AppendGet(buf.B, keys)

	if err := h.submit(p, buf.B); err != nil {
		return nil, err
	}
	return future, nil
}

// SubmitSet writes a storage command for key and returns its future.
//
// The key is validated before anything is written.
func (h *Handler) SubmitSet(key string, value []byte, opts SetOptions) (*Future[struct{}], error) {
	if err := ascii.ValidateKey(key); err != nil {
		return nil, err
	}

	future := newFuture[struct{}]()
	p := &pending{
		verb:   ascii.VerbSet,
		parser: ascii.NewStoreParser(key),
		complete: func(err error) {
			if err != nil {
				future.reject(err)
				return
			}
			future.resolve(struct{}{})
		},
	}

	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	buf.B = ascii.AppendSet(buf.B, key, opts.Flags, opts.Expiration.Seconds(), value)

	if err := h.submit(p, buf.B); err != nil {
		return nil, err
	}
	return future, nil
}

// submit enqueues p and writes cmd. A write failure is reported through the
// futures of every queued command, p included.
func (h *Handler) submit(p *pending, cmd []byte) error {
	h.writeMu.Lock()

	// Health is checked under mu so a cascade either drains p or sees it
	// rejected, never neither.
	h.mu.Lock()
	if h.Health() == HealthBad {
		h.mu.Unlock()
		h.writeMu.Unlock()
		h.stats.rejected.Add(1)
		return ErrHandlerUnusable
	}

	if h.breaker != nil {
		done, err := h.breaker.Allow()
		if err != nil {
			h.mu.Unlock()
			h.writeMu.Unlock()
			h.stats.rejected.Add(1)
			return err
		}
		p.breakerDone = done
	}

	h.queue.PushFront(p)
	h.mu.Unlock()

	h.stats.submitted.Add(1)
	h.logger.Logf("mcpipe: connection %d: %s submitted", h.id, p.verb)

	err := h.conn.Write(cmd)
	h.writeMu.Unlock()

	// Futures are completed without holding writeMu, their callbacks may submit.
	if err != nil {
		h.fail(&ascii.ConnectionError{Op: "write", Err: err})
	}
	return nil
}

// onLine routes a response line to the oldest pending command. It runs on the
// transport's delivery context only, so lines are handled one at a time.
func (h *Handler) onLine(line []byte) {
	if h.Health() == HealthBad {
		// The stream position is lost, nothing after a cascade can be matched.
		h.stats.unmatched.Add(1)
		return
	}

	h.mu.Lock()
	head, ok := h.queue.Back()
	h.mu.Unlock()

	if !ok {
		h.stats.unmatched.Add(1)
		if h.Health() == HealthGood {
			h.logger.Logf("mcpipe: connection %d: dropping line with no pending command: %q", h.id, line)
		}
		return
	}

	done, err := head.parser.ParseLine(line)
	switch {
	case err != nil && ascii.ShouldCloseConnection(err):
		h.logger.Logf("mcpipe: connection %d: %v", h.id, err)
		h.cascade(head, err)
	case err != nil || done:
		if h.popIfHead(head) {
			h.finish(head, err, false)
		}
	}
}

// popIfHead removes p if it is still the oldest command. It fails when a
// concurrent drain already took it.
func (h *Handler) popIfHead(p *pending) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if back, ok := h.queue.Back(); !ok || back != p {
		return false
	}
	h.queue.PopBack()
	return true
}

// drain marks the handler bad and empties the queue in one step, so no
// submission can land in between. It returns the commands oldest first and
// whether this call changed the health.
func (h *Handler) drain() ([]*pending, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	changed := h.markBad()
	drained := make([]*pending, 0, h.queue.Len())
	for h.queue.Len() > 0 {
		drained = append(drained, h.queue.PopBack())
	}
	return drained, changed
}

// cascade fails head with cause and every other queued command with
// ErrCascadedFailure, then abandons the connection.
func (h *Handler) cascade(head *pending, cause error) {
	drained, _ := h.drain()
	if len(drained) > 1 {
		h.logger.Logf("mcpipe: connection %d: cascading failure to %d queued commands", h.id, len(drained)-1)
	}
	for _, p := range drained {
		if p == head {
			h.finish(p, cause, false)
		} else {
			h.finish(p, ErrCascadedFailure, true)
		}
	}

	_ = h.conn.Close()
}

// fail marks the handler bad and fails every queued command with err.
func (h *Handler) fail(err error) {
	drained, changed := h.drain()
	if changed {
		h.logger.Logf("mcpipe: connection %d: %v", h.id, err)
	}

	for _, p := range drained {
		h.finish(p, err, false)
	}
}

func (h *Handler) onTransportClose(err error) {
	op := "read"
	if errors.Is(err, transport.ErrClosed) {
		op = "close"
	}
	h.fail(&ascii.ConnectionError{Op: op, Err: err})
}

// markBad reports whether this call changed the health.
func (h *Handler) markBad() bool {
	return h.health.CompareAndSwap(int32(HealthGood), int32(HealthBad))
}

func (h *Handler) finish(p *pending, err error, cascaded bool) {
	p.complete(err)
	if p.breakerDone != nil {
		p.breakerDone(err == nil)
	}
	h.stats.recordOutcome(err, cascaded)
}
