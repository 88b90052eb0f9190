package concurrency

import (
	"context"
	"time"
)

// Every calls fn each interval until ctx is cancelled. The first call
// happens one interval after start. A non-positive interval disables the
// loop.
func Every(ctx context.Context, interval time.Duration, fn func(ctx context.Context)) {
	if interval <= 0 || fn == nil {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}
