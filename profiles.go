package rpi_escmotor

import (
	"sort"
	"time"

	tinygoerrors "github.com/ralvarezdev/tinygo-errors"
	"periph.io/x/conn/v3/physic"
)

type (
	// Phase is one timed pulse of a reverse initialization sequence
	Phase struct {
		Pulse    time.Duration
		Duration time.Duration
	}

	// Profile is the duty-cycle table of an ESC model.
	//
	// The forward band runs from ForwardMinPulse (slowest) to ForwardMaxPulse (full speed) above
	// IdlePulse, the reverse band from ReverseMinPulse (slowest) to ReverseMaxPulse (full speed) below it.
	// ReverseInit is the pulse sequence the ESC needs after forward drive before it honors reverse,
	// otherwise a reverse pulse only brakes.
	Profile struct {
		Name                  string
		Frequency             physic.Frequency
		IdlePulse             time.Duration
		ForwardMinPulse       time.Duration
		ForwardMaxPulse       time.Duration
		ReverseMinPulse       time.Duration
		ReverseMaxPulse       time.Duration
		ReverseInit           []Phase
		ReverseToForwardDelay time.Duration
	}
)

const (
	// DefaultFrequency is the usual RC servo/ESC frame rate
	DefaultFrequency = 50 * physic.Hertz
)

var (
	// ProfileGeneric is a bidirectional ESC that reverses without a brake sequence
	ProfileGeneric = Profile{
		Name:            "generic",
		Frequency:       DefaultFrequency,
		IdlePulse:       1500 * time.Microsecond,
		ForwardMinPulse: 1500 * time.Microsecond,
		ForwardMaxPulse: 2000 * time.Microsecond,
		ReverseMinPulse: 1500 * time.Microsecond,
		ReverseMaxPulse: 1000 * time.Microsecond,
	}

	// ProfileQuicRun is a Hobbywing QuicRun brushed ESC in forward/brake/reverse mode. A reverse
	// pulse right after forward drive only brakes, so the brake is applied and released before
	// reverse is commanded
	ProfileQuicRun = Profile{
		Name:            "quicrun",
		Frequency:       DefaultFrequency,
		IdlePulse:       1500 * time.Microsecond,
		ForwardMinPulse: 1540 * time.Microsecond,
		ForwardMaxPulse: 2000 * time.Microsecond,
		ReverseMinPulse: 1460 * time.Microsecond,
		ReverseMaxPulse: 1000 * time.Microsecond,
		ReverseInit: []Phase{
			{Pulse: 1300 * time.Microsecond, Duration: 100 * time.Millisecond},
			{Pulse: 1500 * time.Microsecond, Duration: 100 * time.Millisecond},
		},
		ReverseToForwardDelay: 50 * time.Millisecond,
	}

	// ProfileQuicRun10BL is a Hobbywing QuicRun brushless ESC, which wants the brake tapped twice
	ProfileQuicRun10BL = Profile{
		Name:            "quicrun-10bl",
		Frequency:       DefaultFrequency,
		IdlePulse:       1500 * time.Microsecond,
		ForwardMinPulse: 1560 * time.Microsecond,
		ForwardMaxPulse: 1900 * time.Microsecond,
		ReverseMinPulse: 1440 * time.Microsecond,
		ReverseMaxPulse: 1100 * time.Microsecond,
		ReverseInit: []Phase{
			{Pulse: 1200 * time.Microsecond, Duration: 60 * time.Millisecond},
			{Pulse: 1500 * time.Microsecond, Duration: 60 * time.Millisecond},
			{Pulse: 1200 * time.Microsecond, Duration: 60 * time.Millisecond},
			{Pulse: 1500 * time.Microsecond, Duration: 60 * time.Millisecond},
		},
		ReverseToForwardDelay: 100 * time.Millisecond,
	}

	profiles = map[string]Profile{
		ProfileGeneric.Name:     ProfileGeneric,
		ProfileQuicRun.Name:     ProfileQuicRun,
		ProfileQuicRun10BL.Name: ProfileQuicRun10BL,
	}
)

// ProfileByName returns a copy of a built-in profile
//
// Parameters:
//
// name: The profile name
//
// Returns:
//
// The profile and ErrorCodeESCMotorUnknownProfile if there is none with that name
func ProfileByName(name string) (*Profile, tinygoerrors.ErrorCode) {
	profile, ok := profiles[name]
	if !ok {
		return nil, ErrorCodeESCMotorUnknownProfile
	}
	profile.ReverseInit = append([]Phase(nil), profile.ReverseInit...)
	return &profile, tinygoerrors.ErrorCodeNil
}

// ProfileNames returns the sorted names of the built-in profiles
func ProfileNames() []string {
	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Period returns the PWM period of the profile
func (p *Profile) Period() time.Duration {
	if p.Frequency <= 0 {
		return 0
	}
	return p.Frequency.Period()
}

// Validate checks the pulse widths of the profile against each other and against the period
//
// Returns:
//
// An error code if the profile is not usable, otherwise ErrorCodeNil
func (p *Profile) Validate() tinygoerrors.ErrorCode {
	if p.Frequency <= 0 {
		return ErrorCodeESCMotorZeroFrequency
	}
	period := p.Period()

	// Check if the idle pulse width is valid
	if p.IdlePulse <= 0 || p.IdlePulse >= period {
		return ErrorCodeESCMotorInvalidNeutralPulseWidth
	}

	// Check if the reverse band is valid
	if p.ReverseMaxPulse <= 0 || p.ReverseMinPulse > p.IdlePulse || p.ReverseMaxPulse >= p.ReverseMinPulse {
		return ErrorCodeESCMotorInvalidMinPulseWidth
	}

	// Check if the forward band is valid
	if p.ForwardMinPulse < p.IdlePulse || p.ForwardMaxPulse <= p.ForwardMinPulse || p.ForwardMaxPulse >= period {
		return ErrorCodeESCMotorInvalidMaxPulseWidth
	}

	// Check the reverse initialization phases
	for _, phase := range p.ReverseInit {
		if phase.Duration <= 0 || phase.Pulse <= 0 || phase.Pulse >= period {
			return ErrorCodeESCMotorInvalidReverseInitPhase
		}
	}
	return tinygoerrors.ErrorCodeNil
}

// Pulse maps a speed in [-1, 1] to a pulse width. Values outside the range are clamped
//
// Parameters:
//
// speed: The speed, positive forward and negative reverse
//
// Returns:
//
// The pulse width for the speed
func (p *Profile) Pulse(speed float64) time.Duration {
	switch {
	case speed > 0:
		if speed > 1 {
			speed = 1
		}
		return p.ForwardMinPulse + time.Duration(float64(p.ForwardMaxPulse-p.ForwardMinPulse)*speed)
	case speed < 0:
		if speed < -1 {
			speed = -1
		}
		return p.ReverseMinPulse - time.Duration(float64(p.ReverseMinPulse-p.ReverseMaxPulse)*-speed)
	default:
		return p.IdlePulse
	}
}
