package promexporter

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/pior/mcpipe"
)

// StatsSource is implemented by *mcpipe.Client.
type StatsSource interface {
	Stats() mcpipe.ClientStats
	HandlerStats() []mcpipe.HandlerStats
}

var _ StatsSource = (*mcpipe.Client)(nil)

// Collector exposes client and per-connection stats as Prometheus metrics.
// Values are read from the source on every scrape.
type Collector struct {
	source StatsSource

	operations    *prometheus.Desc
	keys          *prometheus.Desc
	errors        *prometheus.Desc
	quarantined   *prometheus.Desc
	connHealthy   *prometheus.Desc
	connPending   *prometheus.Desc
	connCommands  *prometheus.Desc
	connRejected  *prometheus.Desc
	connUnmatched *prometheus.Desc
	connLastDone  *prometheus.Desc
	circuitState  *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector creates a collector reading from source.
func NewCollector(source StatsSource) *Collector {
	return &Collector{
		source: source,
		operations: prometheus.NewDesc(
			"mcpipe_operations_total",
			"Total number of successful operations",
			[]string{"operation"}, nil, // get, set
		),
		keys: prometheus.NewDesc(
			"mcpipe_get_keys_total",
			"Total number of keys requested by gets",
			[]string{"result"}, nil, // hit, miss
		),
		errors: prometheus.NewDesc(
			"mcpipe_errors_total",
			"Total number of operations completed with an error",
			nil, nil,
		),
		quarantined: prometheus.NewDesc(
			"mcpipe_connections_quarantined_total",
			"Connections removed from rotation after going bad",
			nil, nil,
		),
		connHealthy: prometheus.NewDesc(
			"mcpipe_connection_healthy",
			"Whether the connection is usable (1) or bad (0)",
			[]string{"server", "connection"}, nil,
		),
		connPending: prometheus.NewDesc(
			"mcpipe_connection_pending_commands",
			"Commands awaiting a response",
			[]string{"server", "connection"}, nil,
		),
		connCommands: prometheus.NewDesc(
			"mcpipe_connection_commands_total",
			"Commands by outcome",
			[]string{"server", "connection", "outcome"}, nil, // submitted, completed, failed, cascaded
		),
		connRejected: prometheus.NewDesc(
			"mcpipe_connection_rejected_total",
			"Submissions refused before anything was written",
			[]string{"server", "connection"}, nil,
		),
		connUnmatched: prometheus.NewDesc(
			"mcpipe_connection_unmatched_lines_total",
			"Lines received with no command waiting",
			[]string{"server", "connection"}, nil,
		),
		connLastDone: prometheus.NewDesc(
			"mcpipe_connection_last_completion_timestamp_seconds",
			"Unix time a command last completed on the connection",
			[]string{"server", "connection"}, nil,
		),
		circuitState: prometheus.NewDesc(
			"mcpipe_circuit_breaker_state",
			"Circuit breaker state (0=closed, 1=half-open, 2=open)",
			[]string{"server", "connection"}, nil,
		),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.operations
	ch <- c.keys
	ch <- c.errors
	ch <- c.quarantined
	ch <- c.connHealthy
	ch <- c.connPending
	ch <- c.connCommands
	ch <- c.connRejected
	ch <- c.connUnmatched
	ch <- c.connLastDone
	ch <- c.circuitState
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	stats := c.source.Stats()

	ch <- prometheus.MustNewConstMetric(c.operations, prometheus.CounterValue, float64(stats.Gets), "get")
	ch <- prometheus.MustNewConstMetric(c.operations, prometheus.CounterValue, float64(stats.Sets), "set")
	ch <- prometheus.MustNewConstMetric(c.keys, prometheus.CounterValue, float64(stats.GetHits), "hit")
	ch <- prometheus.MustNewConstMetric(c.keys, prometheus.CounterValue, float64(stats.GetMisses), "miss")
	ch <- prometheus.MustNewConstMetric(c.errors, prometheus.CounterValue, float64(stats.Errors))
	ch <- prometheus.MustNewConstMetric(c.quarantined, prometheus.CounterValue, float64(stats.Quarantined))

	for _, h := range c.source.HandlerStats() {
		id := strconv.Itoa(h.ID)

		healthy := 0.0
		if h.Health == mcpipe.HealthGood {
			healthy = 1
		}
		ch <- prometheus.MustNewConstMetric(c.connHealthy, prometheus.GaugeValue, healthy, h.Addr, id)
		ch <- prometheus.MustNewConstMetric(c.connPending, prometheus.GaugeValue, float64(h.Pending), h.Addr, id)

		ch <- prometheus.MustNewConstMetric(c.connCommands, prometheus.CounterValue, float64(h.Submitted), h.Addr, id, "submitted")
		ch <- prometheus.MustNewConstMetric(c.connCommands, prometheus.CounterValue, float64(h.Completed), h.Addr, id, "completed")
		ch <- prometheus.MustNewConstMetric(c.connCommands, prometheus.CounterValue, float64(h.Failed), h.Addr, id, "failed")
		ch <- prometheus.MustNewConstMetric(c.connCommands, prometheus.CounterValue, float64(h.Cascaded), h.Addr, id, "cascaded")
		ch <- prometheus.MustNewConstMetric(c.connRejected, prometheus.CounterValue, float64(h.Rejected), h.Addr, id)
		ch <- prometheus.MustNewConstMetric(c.connUnmatched, prometheus.CounterValue, float64(h.Unmatched), h.Addr, id)

		if !h.LastCompletion.IsZero() {
			ch <- prometheus.MustNewConstMetric(c.connLastDone, prometheus.GaugeValue, float64(h.LastCompletion.Unix()), h.Addr, id)
		}
		if state, ok := circuitStateValue(h.CircuitBreakerState); ok {
			ch <- prometheus.MustNewConstMetric(c.circuitState, prometheus.GaugeValue, state, h.Addr, id)
		}
	}
}

func circuitStateValue(state string) (float64, bool) {
	switch state {
	case "closed":
		return 0, true
	case "half-open":
		return 1, true
	case "open":
		return 2, true
	}
	return 0, false
}
