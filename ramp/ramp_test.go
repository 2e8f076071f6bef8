package ramp

import (
	"math"
	"testing"
	"time"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestStepLimitsRate(t *testing.T) {
	l := NewLimiter(2)

	tests := []struct {
		name    string
		current float64
		target  float64
		dt      time.Duration
		want    float64
	}{
		{"rising", 0, 1, 100 * time.Millisecond, 0.2},
		{"falling", 0, -1, 100 * time.Millisecond, -0.2},
		{"reaches target", 0.9, 1, 100 * time.Millisecond, 1},
		{"crosses zero", 0.1, -1, 250 * time.Millisecond, -0.4},
		{"zero dt holds", 0.3, 1, 0, 0.3},
		{"already there", 0.5, 0.5, time.Second, 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := l.Step(tt.current, tt.target, tt.dt)
			if !almostEqual(got, tt.want) {
				t.Errorf("Step(%v, %v, %v) = %v, want %v", tt.current, tt.target, tt.dt, got, tt.want)
			}
		})
	}
}

func TestStepWithoutLimit(t *testing.T) {
	l := NewLimiter(0)
	if got := l.Step(-1, 1, time.Millisecond); got != 1 {
		t.Errorf("unlimited Step = %v, want 1", got)
	}
}

func TestDuration(t *testing.T) {
	l := NewLimiter(0.5)
	if got := l.Duration(1, -1); got != 4*time.Second {
		t.Errorf("Duration = %v, want 4s", got)
	}
	if got := NewLimiter(0).Duration(0, 1); got != 0 {
		t.Errorf("unlimited Duration = %v, want 0", got)
	}
}
