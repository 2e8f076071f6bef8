package rpi_escmotor

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	tinygoerrors "github.com/ralvarezdev/tinygo-errors"
	"github.com/ralvarezdev/rpi-escmotor/pwm"
	"github.com/ralvarezdev/rpi-escmotor/ramp"
	"github.com/sirupsen/logrus"
)

type (
	// DefaultHandler is the default implementation to handle ESC (Electronic Speed Controller) motor operations.
	//
	// The commanded speed is ramped toward the target on every Update and sequenced through the
	// states of the ESC: idle, forward, reverse initialization and reverse. All methods are safe for
	// concurrent use.
	DefaultHandler struct {
		mu                 sync.Mutex
		afterSetSpeedFunc  func(speed float64)
		isMovementEnabled  func() bool
		isPolarityInverted bool
		profile            Profile
		pwm                pwm.PWM
		channel            uint8
		maxForwardSpeed    float64
		maxBackwardSpeed   float64
		limiter            ramp.Limiter
		target             float64
		speed              float64
		state              State
		pulse              time.Duration
		pulseWritten       bool
		phase              int
		phaseEnd           time.Time
		reverseArmed       bool
		forwardAllowedAt   time.Time
		holdPending        bool
		lastUpdate         time.Time
		logger             logrus.FieldLogger
	}
)

// maxTransitionsPerUpdate bounds the state changes a single Update may go through
const maxTransitionsPerUpdate = 8

// NewDefaultHandler creates a new instance of DefaultHandler
//
// Parameters:
//
// pwm: The PWM used to generate the ESC signal
// channel: The PWM channel connected to the ESC
// afterSetSpeedFunc: Function to call after the commanded speed changed
// isMovementEnabled: Function to check if movement is enabled
// profile: The duty-cycle table of the ESC model
// isPolarityInverted: Whether the motor polarity is inverted
// maxForwardSpeed: The maximum forward percentage speed value for the motor
// maxBackwardSpeed: The maximum backward percentage speed value for the motor
// maxRate: The maximum change of the commanded speed per second, zero or negative for none
// logger: The logger to log messages, may be nil
//
// Returns:
//
// An instance of DefaultHandler and an error if any occurred during initialization
func NewDefaultHandler(
	pwm pwm.PWM,
	channel uint8,
	afterSetSpeedFunc func(speed float64),
	isMovementEnabled func() bool,
	profile *Profile,
	isPolarityInverted bool,
	maxForwardSpeed float64,
	maxBackwardSpeed float64,
	maxRate float64,
	logger logrus.FieldLogger,
) (*DefaultHandler, tinygoerrors.ErrorCode) {
	if pwm == nil {
		return nil, ErrorCodeESCMotorNilPWM
	}
	if profile == nil {
		return nil, ErrorCodeESCMotorNilProfile
	}
	if code := profile.Validate(); code != tinygoerrors.ErrorCodeNil {
		return nil, code
	}

	// Check if the max forward speed is valid
	if !(maxForwardSpeed > 0 && maxForwardSpeed <= 1) {
		return nil, ErrorCodeESCMotorInvalidMaxForwardSpeed
	}

	// Check if the max backward speed is valid
	if !(maxBackwardSpeed > 0 && maxBackwardSpeed <= 1) {
		return nil, ErrorCodeESCMotorInvalidMaxBackwardSpeed
	}

	if logger != nil {
		logger = logger.WithFields(logrus.Fields{
			"channel": channel,
			"profile": profile.Name,
		})
	}

	// Configure the PWM
	if err := pwm.Configure(profile.Frequency); err != nil {
		if logger != nil {
			logger.WithError(err).Error("Failed to configure ESC motor PWM")
		}
		return nil, ErrorCodeESCMotorFailedToConfigurePWM
	}

	handler := &DefaultHandler{
		afterSetSpeedFunc:  afterSetSpeedFunc,
		isMovementEnabled:  isMovementEnabled,
		isPolarityInverted: isPolarityInverted,
		profile:            *profile,
		pwm:                pwm,
		channel:            channel,
		maxForwardSpeed:    maxForwardSpeed,
		maxBackwardSpeed:   maxBackwardSpeed,
		limiter:            ramp.NewLimiter(maxRate),
		state:              StateIdle,
		reverseArmed:       len(profile.ReverseInit) == 0,
		logger:             logger,
	}
	handler.profile.ReverseInit = append([]Phase(nil), profile.ReverseInit...)

	if logger != nil {
		logger.WithField("period", profile.Period()).Debug("Set ESC motor PWM period")
	}

	// Start at neutral so the ESC can arm
	if code := handler.writePulse(profile.IdlePulse); code != tinygoerrors.ErrorCodeNil {
		return nil, code
	}
	return handler, tinygoerrors.ErrorCodeNil
}

// SetTarget sets the speed the ESC motor ramps toward.
//
// Parameters:
//
// speed: Speed value between -1 (full backward) and 1 (full forward).
//
// Returns:
//
// ErrorCodeESCMotorSpeedOutOfRange if the speed is out of range, otherwise ErrorCodeNil.
func (h *DefaultHandler) SetTarget(speed float64) tinygoerrors.ErrorCode {
	if !(speed >= -1 && speed <= 1) {
		return ErrorCodeESCMotorSpeedOutOfRange
	}

	// Limit the speed to the configured maximums
	if speed > h.maxForwardSpeed {
		speed = h.maxForwardSpeed
	}
	if speed < -h.maxBackwardSpeed {
		speed = -h.maxBackwardSpeed
	}

	h.mu.Lock()
	h.target = speed
	h.mu.Unlock()
	return tinygoerrors.ErrorCodeNil
}

// SetSpeed sets the ESC motor target speed.
//
// Parameters:
//
// speed: Speed value between 0 (stop) and 1 (full speed).
// direction: Direction of the motor.
//
// Returns:
//
// An error if the speed could not be set, otherwise nil.
func (h *DefaultHandler) SetSpeed(
	speed float64,
	direction Direction,
) tinygoerrors.ErrorCode {
	// Check if the speed is within the valid range
	if !(speed >= 0 && speed <= 1) {
		return ErrorCodeESCMotorSpeedOutOfRange
	}

	switch direction {
	case DirectionStop:
		return h.SetTarget(0)
	case DirectionForward:
		return h.SetTarget(speed)
	case DirectionBackward:
		return h.SetTarget(-speed)
	default:
		return ErrorCodeESCMotorUnknownDirection
	}
}

// SetSpeedForward sets the ESC motor target speed forward.
//
// Parameters:
//
// speed: Speed value between 0 (stop) and 1 (full forward), limited to maxForwardSpeed.
//
// Returns:
//
// An error if the speed could not be set, otherwise nil.
func (h *DefaultHandler) SetSpeedForward(speed float64) tinygoerrors.ErrorCode {
	return h.SetSpeed(speed, DirectionForward)
}

// SetSpeedBackward sets the ESC motor target speed backward.
//
// Parameters:
//
// speed: Speed value between 0 (stop) and 1 (full backward), limited to maxBackwardSpeed.
//
// Returns:
//
// An error if the speed could not be set, otherwise nil.
func (h *DefaultHandler) SetSpeedBackward(speed float64) tinygoerrors.ErrorCode {
	return h.SetSpeed(speed, DirectionBackward)
}

// Stop sets the ESC motor target speed to 0. The motor ramps down on the following updates.
//
// Returns:
//
// An error if the speed could not be set to 0, otherwise nil.
func (h *DefaultHandler) Stop() tinygoerrors.ErrorCode {
	return h.SetSpeed(0, DirectionStop)
}

// EmergencyStop drops the ESC motor to neutral immediately, without ramping.
//
// Returns:
//
// An error if the neutral pulse could not be written, otherwise nil.
func (h *DefaultHandler) EmergencyStop() tinygoerrors.ErrorCode {
	h.mu.Lock()
	previousSpeed := h.speed
	wasReverse := h.state == StateReverse
	h.target = 0
	h.speed = 0
	h.setState(StateIdle, time.Now())
	if wasReverse {
		// The reverse to forward hold is timed from the next tick
		h.holdPending = true
	}
	code := h.writePulse(h.profile.IdlePulse)
	h.mu.Unlock()

	if h.logger != nil {
		h.logger.Info("ESC motor emergency stop")
	}
	if previousSpeed != 0 && h.afterSetSpeedFunc != nil {
		h.afterSetSpeedFunc(0)
	}
	return code
}

// Update runs one control tick: the commanded speed is ramped toward the target, the state
// machine is advanced and the resulting pulse width is written if it changed.
//
// Parameters:
//
// now: The time of the tick
//
// Returns:
//
// An error if the pulse could not be written, otherwise nil.
func (h *DefaultHandler) Update(now time.Time) tinygoerrors.ErrorCode {
	h.mu.Lock()

	var dt time.Duration
	if !h.lastUpdate.IsZero() {
		dt = now.Sub(h.lastUpdate)
	}
	h.lastUpdate = now

	if h.holdPending {
		h.forwardAllowedAt = now.Add(h.profile.ReverseToForwardDelay)
		h.holdPending = false
	}

	previousSpeed := h.speed
	var pulse time.Duration
	if h.isMovementEnabled != nil && !h.isMovementEnabled() {
		// Movement disabled, force neutral without ramping
		h.speed = 0
		h.setState(StateIdle, now)
		pulse = h.profile.IdlePulse
	} else {
		target := h.physicalTarget()
		pulse = h.advance(target, h.limiter.Step(h.speed, target, dt), now)
	}

	code := h.writePulse(pulse)
	speed := h.logicalSpeed()
	changed := h.speed != previousSpeed
	h.mu.Unlock()

	// Call the after set speed function if provided
	if changed && h.afterSetSpeedFunc != nil {
		h.afterSetSpeedFunc(speed)
	}
	return code
}

// Run calls Update on every tick of the interval until the context is done, then stops the motor
// immediately.
//
// Parameters:
//
// ctx: The context that ends the loop
// interval: The time between updates
//
// Returns:
//
// The context error
func (h *DefaultHandler) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return errors.Errorf("invalid ESC motor update interval %v", interval)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if code := h.EmergencyStop(); code != tinygoerrors.ErrorCodeNil && h.logger != nil {
				h.logger.WithField("error", ErrorMessage(code)).Error("ESC motor failed to stop")
			}
			return ctx.Err()
		case now := <-ticker.C:
			if code := h.Update(now); code != tinygoerrors.ErrorCodeNil && h.logger != nil {
				h.logger.WithField("error", ErrorMessage(code)).Warn("ESC motor update failed")
			}
		}
	}
}

// GetSpeed returns the current commanded speed of the ESC motor.
//
// Returns:
//
// The current speed between -1 and 1, negative when moving backward.
func (h *DefaultHandler) GetSpeed() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.logicalSpeed()
}

// Target returns the speed the ESC motor is ramping toward
func (h *DefaultHandler) Target() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.target
}

// State returns the current state of the ESC sequencing
func (h *DefaultHandler) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Direction returns the direction the motor is being driven in
func (h *DefaultHandler) Direction() Direction {
	h.mu.Lock()
	defer h.mu.Unlock()
	direction := h.state.Direction()
	if h.isPolarityInverted {
		return direction.InvertedDirection()
	}
	return direction
}

// Pulse returns the last pulse width written to the ESC
func (h *DefaultHandler) Pulse() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pulse
}

// RampTime returns how long the commanded speed takes to reach the target at the ramp rate
func (h *DefaultHandler) RampTime() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.limiter.Duration(h.logicalSpeed(), h.target)
}

// Profile returns a copy of the ESC profile in use
func (h *DefaultHandler) Profile() Profile {
	h.mu.Lock()
	defer h.mu.Unlock()
	profile := h.profile
	profile.ReverseInit = append([]Phase(nil), h.profile.ReverseInit...)
	return profile
}

// physicalTarget returns the target with the polarity applied
func (h *DefaultHandler) physicalTarget() float64 {
	if h.isPolarityInverted {
		return -h.target
	}
	return h.target
}

// logicalSpeed returns the commanded speed with the polarity removed
func (h *DefaultHandler) logicalSpeed() float64 {
	if h.isPolarityInverted && h.speed != 0 {
		return -h.speed
	}
	return h.speed
}

// advance moves the state machine for the ramped speed and returns the pulse width to output
//
// Parameters:
//
// target: The physical target speed
// desired: The physical speed after ramping
// now: The time of the tick
//
// Returns:
//
// The pulse width for the resulting state
func (h *DefaultHandler) advance(target, desired float64, now time.Time) time.Duration {
	for i := 0; i < maxTransitionsPerUpdate; i++ {
		switch h.state {
		case StateIdle:
			switch {
			case desired > 0:
				// Hold neutral until the ESC accepts forward again
				if now.Before(h.forwardAllowedAt) {
					h.speed = 0
					return h.profile.IdlePulse
				}
				h.setState(StateForward, now)
			case desired < 0:
				if h.reverseArmed {
					h.setState(StateReverse, now)
				} else {
					h.setState(StateReverseInit, now)
				}
			default:
				h.speed = 0
				return h.profile.IdlePulse
			}

		case StateForward:
			if desired <= 0 {
				h.setState(StateIdle, now)
				continue
			}
			h.speed = desired
			return h.profile.Pulse(desired)

		case StateReverseInit:
			if target >= 0 {
				h.setState(StateIdle, now)
				continue
			}

			// The reverse ramp starts from zero once the sequence is done
			h.speed = 0
			phases := h.profile.ReverseInit
			for h.phase < len(phases) && !now.Before(h.phaseEnd) {
				h.phase++
				if h.phase < len(phases) {
					h.phaseEnd = h.phaseEnd.Add(phases[h.phase].Duration)
				}
			}
			if h.phase >= len(phases) {
				h.reverseArmed = true
				h.setState(StateReverse, now)
				continue
			}
			return phases[h.phase].Pulse

		case StateReverse:
			if desired >= 0 {
				h.setState(StateIdle, now)
				continue
			}
			h.speed = desired
			return h.profile.Pulse(desired)
		}
	}

	h.speed = 0
	return h.profile.IdlePulse
}

// setState changes the state of the ESC sequencing
//
// Parameters:
//
// state: The next state
// now: The time of the transition
func (h *DefaultHandler) setState(state State, now time.Time) {
	if h.state == state {
		return
	}
	previous := h.state

	switch state {
	case StateIdle:
		if previous == StateReverse {
			h.forwardAllowedAt = now.Add(h.profile.ReverseToForwardDelay)
		}
	case StateForward:
		// Forward drive makes the ESC treat the next reverse pulse as a brake
		if len(h.profile.ReverseInit) > 0 {
			h.reverseArmed = false
		}
	case StateReverseInit:
		h.phase = 0
		if len(h.profile.ReverseInit) > 0 {
			h.phaseEnd = now.Add(h.profile.ReverseInit[0].Duration)
		} else {
			h.phaseEnd = now
		}
	}
	h.state = state

	if h.logger != nil {
		h.logger.WithFields(logrus.Fields{
			"from": previous.String(),
			"to":   state.String(),
		}).Debug("ESC motor state changed")
	}
}

// writePulse writes the pulse width to the PWM if it differs from the last one
//
// Parameters:
//
// pulse: The pulse width to write
//
// Returns:
//
// ErrorCodeESCMotorFailedToSetPulse if the PWM write failed, otherwise ErrorCodeNil
func (h *DefaultHandler) writePulse(pulse time.Duration) tinygoerrors.ErrorCode {
	if h.pulseWritten && h.pulse == pulse {
		return tinygoerrors.ErrorCodeNil
	}

	if err := h.pwm.SetPulse(h.channel, pulse); err != nil {
		if h.logger != nil {
			h.logger.WithError(err).WithField("pulse", pulse).Error("Failed to set ESC motor pulse width")
		}
		return ErrorCodeESCMotorFailedToSetPulse
	}
	h.pulse = pulse
	h.pulseWritten = true

	if h.logger != nil {
		h.logger.WithFields(logrus.Fields{
			"pulse": pulse,
			"state": h.state.String(),
			"speed": h.logicalSpeed(),
		}).Debug("Set ESC motor pulse width")
	}
	return tinygoerrors.ErrorCodeNil
}
