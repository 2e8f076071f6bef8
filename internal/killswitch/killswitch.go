// Package killswitch reads the movement enable switch of the robot from a GPIO pin.
//
// The switch closes the pin to ground, so with activeLow movement is enabled while the switch is
// closed. An open circuit or a cut wire reads high through the pull-up and disables movement.
package killswitch

import (
	"github.com/pkg/errors"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
)

type (
	// Switch reports whether movement is enabled
	Switch interface {
		Enabled() bool
	}

	// Always is a Switch that is always in the given position, used when no pin is wired
	Always bool

	// Pin is a Switch read from a GPIO input
	Pin struct {
		pin       gpio.PinIn
		activeLow bool
	}
)

// Enabled returns the position of the switch
func (a Always) Enabled() bool {
	return bool(a)
}

// New opens the GPIO pin of the switch. host.Init must have been called before
//
// Parameters:
//
// name: The pin name, e.g. "GPIO17"
// activeLow: Whether movement is enabled while the pin reads low
//
// Returns:
//
// The Switch and an error if the pin does not exist or could not be configured
func New(name string, activeLow bool) (*Pin, error) {
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, errors.Errorf("killswitch: unknown pin %q", name)
	}
	return NewFromPin(p, activeLow)
}

// NewFromPin configures an already opened pin as the switch input
func NewFromPin(p gpio.PinIn, activeLow bool) (*Pin, error) {
	pull := gpio.PullDown
	if activeLow {
		pull = gpio.PullUp
	}
	if err := p.In(pull, gpio.NoEdge); err != nil {
		return nil, errors.Wrapf(err, "killswitch: failed to configure %s", p)
	}
	return &Pin{pin: p, activeLow: activeLow}, nil
}

// Enabled reads the pin
func (s *Pin) Enabled() bool {
	level := s.pin.Read()
	if s.activeLow {
		return level == gpio.Low
	}
	return level == gpio.High
}
