package services

import (
	"context"
	"time"
)

// Clock abstracts time so tests can drive monitor cycles without real
// waiting. Every suspension point in the loop goes through Sleep.
type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is cancelled. Returns false on
	// cancellation.
	Sleep(ctx context.Context, d time.Duration) bool
}

type systemClock struct{}

// SystemClock returns the real wall clock.
func SystemClock() Clock {
	return systemClock{}
}

func (systemClock) Now() time.Time {
	return time.Now()
}

func (systemClock) Sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
