package tools

import (
	"context"
	"time"
)

// maxSettle caps the wait after a power change.
const maxSettle = 5 * time.Minute

// settle waits for d, or until ctx is done.
func settle(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	if d > maxSettle {
		d = maxSettle
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
