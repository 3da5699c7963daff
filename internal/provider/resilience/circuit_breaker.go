// Package resilience wraps calls to the routing and ticket recognition
// providers with circuit breakers, timeouts and retries, and tracks their
// health for the ops endpoints.
package resilience

import (
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

// CircuitBreakerConfig holds configuration for the circuit breaker.
type CircuitBreakerConfig struct {
	// Name identifies the circuit breaker in logs and the registry.
	Name string

	// MaxRequests is the number of requests let through while half-open.
	MaxRequests uint32

	// Interval clears the closed-state counts periodically (0 never clears).
	Interval time.Duration

	// Timeout is how long the breaker stays open before probing again.
	Timeout time.Duration

	// ReadyToTrip decides when to open. Default: RoutingReadyToTrip.
	ReadyToTrip func(counts gobreaker.Counts) bool

	// OnStateChange is called on every transition, after it is logged.
	OnStateChange func(name string, from gobreaker.State, to gobreaker.State)

	// Logger receives state transitions.
	Logger zerolog.Logger
}

// RoutingBreakerConfig tunes a breaker for the routing provider. A reorder
// fires one lookup per segment at once, so the half-open state admits a few
// of them and a burst of failures from one edit does not trip the breaker on
// its own. Counts reset every two minutes so sporadic failures over a long
// editing session do not add up.
func RoutingBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:        name,
		MaxRequests: 3,
		Interval:    2 * time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: RoutingReadyToTrip,
	}
}

// RecognizerBreakerConfig tunes a breaker for the ticket recognizer: calls
// are slow and billed, so a few consecutive failures open it for a while.
func RecognizerBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:        name,
		MaxRequests: 1,
		Timeout:     2 * time.Minute,
		ReadyToTrip: RecognizerReadyToTrip,
	}
}

// RoutingReadyToTrip opens after 10 or more requests with at least half
// failing, or after 5 consecutive failures.
func RoutingReadyToTrip(counts gobreaker.Counts) bool {
	if counts.ConsecutiveFailures >= 5 {
		return true
	}
	if counts.Requests < 10 {
		return false
	}
	return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.5
}

// RecognizerReadyToTrip opens after 3 consecutive failures.
func RecognizerReadyToTrip(counts gobreaker.Counts) bool {
	return counts.ConsecutiveFailures >= 3
}

// NewCircuitBreaker creates a circuit breaker. Rate-limit responses are
// excluded from its counts: the provider is up, only busy.
func NewCircuitBreaker[T any](cfg CircuitBreakerConfig) *gobreaker.CircuitBreaker[T] {
	readyToTrip := cfg.ReadyToTrip
	if readyToTrip == nil {
		readyToTrip = RoutingReadyToTrip
	}
	logger := cfg.Logger
	onStateChange := cfg.OnStateChange

	return gobreaker.NewCircuitBreaker[T](gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: readyToTrip,
		IsExcluded: func(err error) bool {
			var rl *RateLimitError
			return errors.As(err, &rl)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			event := logger.Info()
			if to == gobreaker.StateOpen {
				event = logger.Warn()
			}
			event.Str("provider", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
			if onStateChange != nil {
				onStateChange(name, from, to)
			}
		},
	})
}
