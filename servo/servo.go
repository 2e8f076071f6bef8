package servo

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/ralvarezdev/rpi-escmotor/pwm"
	"github.com/ralvarezdev/rpi-escmotor/ramp"
	"github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/physic"
)

// SweepInterval is the time between pulse updates during a sweep
const SweepInterval = 20 * time.Millisecond

type (
	// Config describes the travel of a hobby servo
	Config struct {
		Frequency physic.Frequency
		MinPulse  time.Duration
		MaxPulse  time.Duration
		MinAngle  float64
		MaxAngle  float64
	}

	// Servo drives a hobby servo on one PWM channel
	Servo struct {
		mu      sync.Mutex
		pwm     pwm.PWM
		channel uint8
		config  Config
		angle   float64
		logger  logrus.FieldLogger
	}
)

// DefaultConfig is a standard 180 degree servo
var DefaultConfig = Config{
	Frequency: 50 * physic.Hertz,
	MinPulse:  500 * time.Microsecond,
	MaxPulse:  2500 * time.Microsecond,
	MinAngle:  0,
	MaxAngle:  180,
}

// New creates a new Servo and moves it to the middle of its travel
//
// Parameters:
//
// out: The PWM the servo is connected to
// channel: The PWM channel of the servo
// config: The travel of the servo
// logger: The logger to log messages, may be nil
//
// Returns:
//
// The Servo and an error if the config is invalid or the PWM failed
func New(out pwm.PWM, channel uint8, config Config, logger logrus.FieldLogger) (*Servo, error) {
	if out == nil {
		return nil, errors.New("servo: nil PWM")
	}
	if config.Frequency <= 0 {
		return nil, errors.New("servo: frequency must be positive")
	}
	if config.MinPulse <= 0 || config.MaxPulse <= config.MinPulse || config.MaxPulse >= config.Frequency.Period() {
		return nil, errors.Errorf("servo: invalid pulse range %v..%v", config.MinPulse, config.MaxPulse)
	}
	if config.MaxAngle <= config.MinAngle {
		return nil, errors.Errorf("servo: invalid angle range %v..%v", config.MinAngle, config.MaxAngle)
	}

	if err := out.Configure(config.Frequency); err != nil {
		return nil, errors.Wrap(err, "servo: failed to configure PWM")
	}

	if logger != nil {
		logger = logger.WithField("channel", channel)
	}
	s := &Servo{
		pwm:     out,
		channel: channel,
		config:  config,
		logger:  logger,
	}
	if err := s.SetAngle((config.MinAngle + config.MaxAngle) / 2); err != nil {
		return nil, err
	}
	return s, nil
}

// Pulse maps an angle to a pulse width. Angles outside the travel are clamped
func (c Config) Pulse(angle float64) time.Duration {
	angle = c.Clamp(angle)
	ratio := (angle - c.MinAngle) / (c.MaxAngle - c.MinAngle)
	return c.MinPulse + time.Duration(float64(c.MaxPulse-c.MinPulse)*ratio)
}

// Clamp limits an angle to the travel
func (c Config) Clamp(angle float64) float64 {
	if angle < c.MinAngle {
		return c.MinAngle
	}
	if angle > c.MaxAngle {
		return c.MaxAngle
	}
	return angle
}

// SetAngle moves the servo to the angle at once
func (s *Servo) SetAngle(angle float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setAngle(angle)
}

// Angle returns the last commanded angle
func (s *Servo) Angle() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.angle
}

// Sweep moves the servo toward the angle at the given rate in degrees per second
//
// Parameters:
//
// ctx: The context that interrupts the sweep
// angle: The final angle
// rate: The speed in degrees per second, zero or negative to move at once
//
// Returns:
//
// The context error if interrupted, or a PWM error
func (s *Servo) Sweep(ctx context.Context, angle float64, rate float64) error {
	if math.IsNaN(angle) {
		return errors.New("servo: angle is NaN")
	}
	angle = s.config.Clamp(angle)
	limiter := ramp.NewLimiter(rate)

	ticker := time.NewTicker(SweepInterval)
	defer ticker.Stop()

	last := time.Now()
	for {
		s.mu.Lock()
		current := s.angle
		s.mu.Unlock()
		if current == angle {
			return nil
		}

		now := time.Now()
		next := limiter.Step(current, angle, now.Sub(last))
		last = now

		if err := s.SetAngle(next); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Servo) setAngle(angle float64) error {
	if math.IsNaN(angle) {
		return errors.New("servo: angle is NaN")
	}
	angle = s.config.Clamp(angle)
	pulse := s.config.Pulse(angle)
	if err := s.pwm.SetPulse(s.channel, pulse); err != nil {
		return errors.Wrapf(err, "servo: failed to set channel %d", s.channel)
	}
	s.angle = angle

	if s.logger != nil {
		s.logger.WithFields(logrus.Fields{
			"angle": angle,
			"pulse": pulse,
		}).Debug("Set servo angle")
	}
	return nil
}
