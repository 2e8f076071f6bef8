package pwm

import (
	"time"

	"periph.io/x/conn/v3/physic"
)

type (
	// PWM is the interface of a multi-channel pulse-width output used to drive ESCs and servos
	PWM interface {
		// Configure sets the output frequency shared by every channel
		Configure(frequency physic.Frequency) error

		// SetPulse sets the high time of the given channel within each period
		SetPulse(channel uint8, pulse time.Duration) error
	}
)

// Ticks converts a pulse width into counter ticks for a counter that spans one period
//
// Parameters:
//
// pulse: The pulse width
// period: The PWM period
// resolution: The number of ticks in one period
//
// Returns:
//
// The number of ticks, clamped to [0, resolution-1]
func Ticks(pulse, period time.Duration, resolution uint32) uint32 {
	if period <= 0 || pulse <= 0 || resolution == 0 {
		return 0
	}
	ticks := (int64(pulse)*int64(resolution) + int64(period)/2) / int64(period)
	if ticks >= int64(resolution) {
		return resolution - 1
	}
	return uint32(ticks)
}
