package mcpipe

import (
	"sync/atomic"
	"time"

	"github.com/pior/mcpipe/internal/coarsetime"
)

// ClientStats contains statistics about client operations.
//
// For Prometheus integration, expose these as:
//   - Counters: Gets, Sets, Errors
//   - Counters: GetHits, GetMisses (keys found or absent across all gets)
//   - Counter: Quarantined (connections removed from rotation)
type ClientStats struct {
	Gets        uint64 // Gets completed successfully
	Sets        uint64 // Sets completed successfully
	GetHits     uint64 // Keys returned by gets
	GetMisses   uint64 // Keys requested but not returned
	Errors      uint64 // Commands that completed with an error
	Quarantined uint64 // Connections removed from rotation after going bad
}

// HandlerStats contains statistics about a single pipelined connection.
type HandlerStats struct {
	ID      int
	Addr    string
	Health  Health
	Pending int // Commands awaiting a response

	Submitted uint64 // Commands written
	Completed uint64 // Commands completed successfully
	Failed    uint64 // Commands completed with their own error
	Cascaded  uint64 // Commands failed because another command corrupted the stream
	Rejected  uint64 // Submissions refused by the circuit breaker or a bad connection
	Unmatched uint64 // Lines received with no command waiting

	// LastCompletion is when a command last completed, within
	// coarsetime.Resolution. Zero until the first completion.
	LastCompletion time.Time

	// CircuitBreakerState is "closed", "half-open" or "open".
	// Empty when no circuit breaker is configured.
	CircuitBreakerState string
}

// clientStatsCollector provides internal methods for updating client stats.
// Not exported - client updates its own stats.
type clientStatsCollector struct {
	gets        atomic.Uint64
	sets        atomic.Uint64
	getHits     atomic.Uint64
	getMisses   atomic.Uint64
	errors      atomic.Uint64
	quarantined atomic.Uint64
}

func (c *clientStatsCollector) recordGet(requested, found int) {
	c.gets.Add(1)
	c.getHits.Add(uint64(found))
	if found < requested {
		c.getMisses.Add(uint64(requested - found))
	}
}

func (c *clientStatsCollector) recordSet() {
	c.sets.Add(1)
}

func (c *clientStatsCollector) recordError() {
	c.errors.Add(1)
}

func (c *clientStatsCollector) recordQuarantine() {
	c.quarantined.Add(1)
}

func (c *clientStatsCollector) snapshot() ClientStats {
	return ClientStats{
		Gets:        c.gets.Load(),
		Sets:        c.sets.Load(),
		GetHits:     c.getHits.Load(),
		GetMisses:   c.getMisses.Load(),
		Errors:      c.errors.Load(),
		Quarantined: c.quarantined.Load(),
	}
}

// handlerStatsCollector holds the per-connection counters.
type handlerStatsCollector struct {
	submitted atomic.Uint64
	completed atomic.Uint64
	failed    atomic.Uint64
	cascaded  atomic.Uint64
	rejected  atomic.Uint64
	unmatched atomic.Uint64

	lastCompletion atomic.Int64 // unix nanoseconds
}

func (c *handlerStatsCollector) recordOutcome(err error, cascaded bool) {
	c.lastCompletion.Store(coarsetime.Now().UnixNano())

	switch {
	case err == nil:
		c.completed.Add(1)
	case cascaded:
		c.cascaded.Add(1)
	default:
		c.failed.Add(1)
	}
}

func (c *handlerStatsCollector) snapshot() HandlerStats {
	s := HandlerStats{
		Submitted: c.submitted.Load(),
		Completed: c.completed.Load(),
		Failed:    c.failed.Load(),
		Cascaded:  c.cascaded.Load(),
		Rejected:  c.rejected.Load(),
		Unmatched: c.unmatched.Load(),
	}
	if ns := c.lastCompletion.Load(); ns != 0 {
		s.LastCompletion = time.Unix(0, ns)
	}
	return s
}
