package mcpipe

import (
	"time"

	"github.com/sony/gobreaker/v2"
)

// NewCircuitBreakerConfig returns a function that creates one circuit breaker
// per connection, for use as Config.NewCircuitBreaker.
//
// The breaker opens once at least 3 commands were observed in the interval and
// 60% of them failed. While open, submissions on that connection are rejected
// before anything is written.
func NewCircuitBreakerConfig(maxRequests uint32, interval, timeout time.Duration) func(string) *gobreaker.TwoStepCircuitBreaker[struct{}] {
	return func(name string) *gobreaker.TwoStepCircuitBreaker[struct{}] {
		settings := gobreaker.Settings{
			Name:        name,
			MaxRequests: maxRequests,
			Interval:    interval,
			Timeout:     timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
				return counts.Requests >= 3 && failureRatio >= 0.6
			},
		}
		return gobreaker.NewTwoStepCircuitBreaker[struct{}](settings)
	}
}
