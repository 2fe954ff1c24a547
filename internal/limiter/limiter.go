// Package limiter throttles calls made on behalf of an authorization by tracking
// the last call time of each UUID.
package limiter

import (
	"context"
	"time"
)

// Limiter enforces a minimum gap between calls for the same UUID.
type Limiter interface {
	// Allow reports whether a call is permitted now and, if not, how long to wait.
	Allow(ctx context.Context, uuid string, now time.Time) (bool, time.Duration, error)
	// Touch records a call made at now.
	Touch(ctx context.Context, uuid string, now time.Time) error
}
