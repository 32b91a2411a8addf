package sdmhttp

import (
	"context"
	"sync/atomic"
	"time"
)

// Throttle holds a bytes-per-second ceiling (0 = unlimited). It keeps no
// other state: callers pass the bytes moved and the time elapsed since the
// transfer started, so the cap applies to the running average.
type Throttle struct {
	limit atomic.Int64
}

func NewThrottle(bytesPerSecond int64) *Throttle {
	t := &Throttle{}
	t.SetLimit(bytesPerSecond)
	return t
}

func (t *Throttle) SetLimit(bytesPerSecond int64) {
	t.limit.Store(max(0, bytesPerSecond))
}

func (t *Throttle) Limit() int64 {
	return t.limit.Load()
}

// Delay returns how long to pause so that bytes/elapsed drops to the ceiling.
func (t *Throttle) Delay(bytes int64, elapsed time.Duration) time.Duration {
	limit := t.Limit()
	if limit <= 0 || bytes <= 0 {
		return 0
	}
	minElapsed := time.Duration(float64(bytes) / float64(limit) * float64(time.Second))
	if minElapsed <= elapsed {
		return 0
	}
	return minElapsed - elapsed
}

// Clip caps a measured speed at the ceiling.
func (t *Throttle) Clip(speed float64) float64 {
	if limit := t.Limit(); limit > 0 && speed > float64(limit) {
		return float64(limit)
	}
	return speed
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
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
