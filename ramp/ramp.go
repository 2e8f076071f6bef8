package ramp

import (
	"time"
)

type (
	// Limiter limits how fast a value may change over time.
	Limiter struct {
		// MaxRate is the maximum change per second. Zero or negative disables limiting.
		MaxRate float64
	}
)

// NewLimiter creates a new Limiter
//
// Parameters:
//
// maxRate: The maximum change per second
//
// Returns:
//
// A Limiter with the given rate
func NewLimiter(maxRate float64) Limiter {
	return Limiter{MaxRate: maxRate}
}

// Step moves current toward target by at most MaxRate*dt, never overshooting the target.
//
// Parameters:
//
// current: The current value
// target: The desired value
// dt: The elapsed time since the previous step
//
// Returns:
//
// The next value
func (l Limiter) Step(current, target float64, dt time.Duration) float64 {
	if l.MaxRate <= 0 {
		return target
	}
	if dt <= 0 {
		return current
	}

	maxDelta := l.MaxRate * dt.Seconds()
	delta := target - current
	switch {
	case delta > maxDelta:
		return current + maxDelta
	case delta < -maxDelta:
		return current - maxDelta
	default:
		return target
	}
}

// Duration returns how long it takes to move from one value to another at MaxRate.
func (l Limiter) Duration(from, to float64) time.Duration {
	if l.MaxRate <= 0 {
		return 0
	}
	delta := to - from
	if delta < 0 {
		delta = -delta
	}
	return time.Duration(delta / l.MaxRate * float64(time.Second))
}
