package patterns

import (
	"context"
	"time"
)

// DefaultTimeout is the default timeout for outbound notification calls
const DefaultTimeout = 3 * time.Second

// SlowServiceTimeout is a longer timeout for collaborators that might be slow
const SlowServiceTimeout = 10 * time.Second

// WithTimeout derives a context bounded by duration for fail-fast behavior.
// A non-positive duration leaves the parent deadline unchanged.
func WithTimeout(parent context.Context, duration time.Duration) (context.Context, context.CancelFunc) {
	if duration <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, duration)
}
