package services

import (
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// BackoffController tracks consecutive block events and computes the
// retry delay: base·2^level, capped. The state is process-local and never
// persisted; a restart re-enters normal operation optimistically.
type BackoffController struct {
	mu    sync.Mutex
	exp   *backoff.ExponentialBackOff
	base  time.Duration
	max   time.Duration
	level int
	until time.Time
}

// NewBackoffController creates a controller in the Normal state.
func NewBackoffController(base, max time.Duration) *BackoffController {
	b := &BackoffController{base: base, max: max}
	b.exp = b.newExponential()
	return b
}

func (b *BackoffController) newExponential() *backoff.ExponentialBackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = b.base
	exp.MaxInterval = b.max
	exp.Multiplier = 2
	exp.RandomizationFactor = 0
	exp.MaxElapsedTime = 0
	exp.Reset()
	return exp
}

// OnBlocked records a blocked fetch and returns the delay before the next
// allowed attempt.
func (b *BackoffController) OnBlocked(now time.Time) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	delay := b.exp.NextBackOff()
	b.level++
	b.until = now.Add(delay)
	return delay
}

// OnSuccess resets the controller to Normal after a cycle completed
// without a block.
func (b *BackoffController) OnSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.level == 0 {
		return
	}
	b.level = 0
	b.until = time.Time{}
	b.exp = b.newExponential()
}

// Remaining returns how long fetching is still forbidden, zero when
// fetching is allowed.
func (b *BackoffController) Remaining(now time.Time) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.until.IsZero() || !now.Before(b.until) {
		return 0
	}
	return b.until.Sub(now)
}

// Level returns the number of consecutive blocks seen.
func (b *BackoffController) Level() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.level
}

// Until returns the next allowed attempt time, nil in the Normal state.
func (b *BackoffController) Until() *time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.until.IsZero() {
		return nil
	}
	t := b.until
	return &t
}
