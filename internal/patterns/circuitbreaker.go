package patterns

import (
	"errors"
	"fmt"
	"time"

	"github.com/ashendes/checkout-engine/internal/metrics"
	log "github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

// ErrCircuitOpen is returned by FormatError when the breaker rejected the call.
var ErrCircuitOpen = errors.New("circuit breaker open")

// BreakerSettings tunes when a circuit trips and how long it stays open.
type BreakerSettings struct {
	MaxRequests  uint32        // requests allowed through while half-open
	Interval     time.Duration // closed-state window for failure counts
	OpenTimeout  time.Duration // time spent open before trying half-open
	MinRequests  uint32
	FailureRatio float64
}

// DefaultBreakerSettings trips at a 60% failure ratio over at least 3 requests.
var DefaultBreakerSettings = BreakerSettings{
	MaxRequests:  3,
	Interval:     15 * time.Second,
	OpenTimeout:  30 * time.Second,
	MinRequests:  3,
	FailureRatio: 0.6,
}

// CircuitBreakerWrapper wraps gobreaker with metrics
type CircuitBreakerWrapper struct {
	*gobreaker.CircuitBreaker
	name    string
	service string
}

// NewCircuitBreaker creates a circuit breaker with the default settings.
func NewCircuitBreaker(name, service string) *CircuitBreakerWrapper {
	return NewCircuitBreakerWithSettings(name, service, DefaultBreakerSettings)
}

// NewCircuitBreakerWithSettings creates a circuit breaker with Prometheus metrics
func NewCircuitBreakerWithSettings(name, service string, s BreakerSettings) *CircuitBreakerWrapper {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: s.MaxRequests,
		Interval:    s.Interval,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < s.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= s.FailureRatio
		},
		OnStateChange: func(cbName string, from gobreaker.State, to gobreaker.State) {
			metrics.CircuitBreakerState.WithLabelValues(service, cbName).Set(float64(stateValue(to)))

			log.WithFields(log.Fields{
				"circuit": cbName,
				"from":    from.String(),
				"to":      to.String(),
			}).Info("Circuit breaker state changed")
		},
	})

	// closed by default
	metrics.CircuitBreakerState.WithLabelValues(service, name).Set(0)

	return &CircuitBreakerWrapper{
		CircuitBreaker: cb,
		name:           name,
		service:        service,
	}
}

// Execute runs a function through the circuit breaker with metrics
func (cb *CircuitBreakerWrapper) Execute(fn func() (interface{}, error)) (interface{}, error) {
	result, err := cb.CircuitBreaker.Execute(fn)

	if err != nil {
		metrics.CircuitBreakerFailures.WithLabelValues(cb.service, cb.name).Inc()
	}

	return result, err
}

// GetState returns the current state of the circuit breaker
func (cb *CircuitBreakerWrapper) GetState() string {
	return cb.State().String()
}

// GetStateValue returns numeric value for the state (0=closed, 1=open, 2=half-open)
func (cb *CircuitBreakerWrapper) GetStateValue() int {
	return stateValue(cb.State())
}

func stateValue(s gobreaker.State) int {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateOpen:
		return 1
	case gobreaker.StateHalfOpen:
		return 2
	default:
		return -1
	}
}

// FormatError maps breaker rejections onto ErrCircuitOpen, naming the circuit.
// Other errors are returned unchanged.
func FormatError(circuitName string, err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) {
		return fmt.Errorf("circuit breaker %s is open (service unavailable): %w", circuitName, ErrCircuitOpen)
	}
	if errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("circuit breaker %s: too many requests in half-open state: %w", circuitName, ErrCircuitOpen)
	}
	return err
}
