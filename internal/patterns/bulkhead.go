package patterns

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ashendes/checkout-engine/internal/metrics"
)

// ErrBulkheadFull is returned when no slot frees up within the acquire timeout.
var ErrBulkheadFull = errors.New("bulkhead full")

// DefaultAcquireTimeout is how long Execute waits for a free slot.
const DefaultAcquireTimeout = 1 * time.Second

// Bulkhead implements the bulkhead pattern for resource isolation
type Bulkhead struct {
	semaphore      chan struct{}
	name           string
	service        string
	acquireTimeout time.Duration
}

// NewBulkhead creates a new bulkhead with specified capacity
func NewBulkhead(size int, name, service string) *Bulkhead {
	return &Bulkhead{
		semaphore:      make(chan struct{}, size),
		name:           name,
		service:        service,
		acquireTimeout: DefaultAcquireTimeout,
	}
}

// WithAcquireTimeout returns the bulkhead with a different acquire timeout.
func (b *Bulkhead) WithAcquireTimeout(d time.Duration) *Bulkhead {
	b.acquireTimeout = d
	return b
}

// Execute runs fn within the bulkhead's resource limits. It gives up when
// ctx is done or no slot is free within the acquire timeout.
func (b *Bulkhead) Execute(ctx context.Context, fn func() error) error {
	timer := time.NewTimer(b.acquireTimeout)
	defer timer.Stop()

	select {
	case b.semaphore <- struct{}{}:
		metrics.BulkheadActiveRequests.WithLabelValues(b.service, b.name).Inc()

		defer func() {
			<-b.semaphore
			metrics.BulkheadActiveRequests.WithLabelValues(b.service, b.name).Dec()
		}()

		return fn()

	case <-timer.C:
		metrics.BulkheadRejectedRequests.WithLabelValues(b.service, b.name).Inc()
		return fmt.Errorf("bulkhead %s: %w", b.name, ErrBulkheadFull)

	case <-ctx.Done():
		metrics.BulkheadRejectedRequests.WithLabelValues(b.service, b.name).Inc()
		return fmt.Errorf("bulkhead %s: %w", b.name, ctx.Err())
	}
}

// GetName returns the bulkhead name
func (b *Bulkhead) GetName() string {
	return b.name
}
