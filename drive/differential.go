package drive

import (
	"context"
	"math"
	"time"

	"github.com/pkg/errors"
	tinygoerrors "github.com/ralvarezdev/tinygo-errors"
	rpiescmotor "github.com/ralvarezdev/rpi-escmotor"
	"github.com/sirupsen/logrus"
)

type (
	// Differential drives a tracked vehicle with one ESC per side
	Differential struct {
		left   rpiescmotor.Handler
		right  rpiescmotor.Handler
		logger logrus.FieldLogger
	}
)

// NewDifferential creates a new Differential drive
//
// Parameters:
//
// left: The handler of the left side ESC
// right: The handler of the right side ESC
// logger: The logger to log messages, may be nil
//
// Returns:
//
// The Differential drive and ErrorCodeESCMotorNilHandler if a handler is missing
func NewDifferential(left, right rpiescmotor.Handler, logger logrus.FieldLogger) (*Differential, tinygoerrors.ErrorCode) {
	if left == nil || right == nil {
		return nil, rpiescmotor.ErrorCodeESCMotorNilHandler
	}
	return &Differential{left: left, right: right, logger: logger}, tinygoerrors.ErrorCodeNil
}

// Mix converts a throttle and turn command in [-1, 1] into left and right track speeds. When a
// side would exceed full speed both sides are scaled down so the turn ratio is kept
func Mix(throttle, turn float64) (left, right float64) {
	left = throttle + turn
	right = throttle - turn

	if peak := math.Max(math.Abs(left), math.Abs(right)); peak > 1 {
		left /= peak
		right /= peak
	}
	return left, right
}

// SetArcade sets the track targets from a throttle and turn command
func (d *Differential) SetArcade(throttle, turn float64) tinygoerrors.ErrorCode {
	if !inRange(throttle) || !inRange(turn) {
		return rpiescmotor.ErrorCodeESCMotorSpeedOutOfRange
	}
	left, right := Mix(throttle, turn)
	return d.SetTank(left, right)
}

// SetTank sets the left and right track targets
func (d *Differential) SetTank(left, right float64) tinygoerrors.ErrorCode {
	if !inRange(left) || !inRange(right) {
		return rpiescmotor.ErrorCodeESCMotorSpeedOutOfRange
	}
	if code := d.left.SetTarget(left); code != tinygoerrors.ErrorCodeNil {
		return code
	}
	if code := d.right.SetTarget(right); code != tinygoerrors.ErrorCodeNil {
		return code
	}

	if d.logger != nil {
		d.logger.WithFields(logrus.Fields{
			"left":  left,
			"right": right,
		}).Debug("Set tracks target")
	}
	return tinygoerrors.ErrorCodeNil
}

// Stop sets both track targets to 0
func (d *Differential) Stop() tinygoerrors.ErrorCode {
	return d.SetTank(0, 0)
}

// EmergencyStop drops both tracks to neutral at once. Both sides are stopped even if one fails
func (d *Differential) EmergencyStop() tinygoerrors.ErrorCode {
	leftCode := d.left.EmergencyStop()
	rightCode := d.right.EmergencyStop()
	if leftCode != tinygoerrors.ErrorCodeNil {
		return leftCode
	}
	return rightCode
}

// Update runs one control tick on both sides
func (d *Differential) Update(now time.Time) tinygoerrors.ErrorCode {
	leftCode := d.left.Update(now)
	rightCode := d.right.Update(now)
	if leftCode != tinygoerrors.ErrorCodeNil {
		return leftCode
	}
	return rightCode
}

// Speeds returns the commanded speeds of the left and right tracks
func (d *Differential) Speeds() (left, right float64) {
	return d.left.GetSpeed(), d.right.GetSpeed()
}

// Run updates both sides on every tick of the interval until the context is done, then stops
// both tracks immediately
func (d *Differential) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return errors.Errorf("invalid drive update interval %v", interval)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if code := d.EmergencyStop(); code != tinygoerrors.ErrorCodeNil && d.logger != nil {
				d.logger.WithField("error", rpiescmotor.ErrorMessage(code)).Error("Drive failed to stop")
			}
			return ctx.Err()
		case now := <-ticker.C:
			if code := d.Update(now); code != tinygoerrors.ErrorCodeNil && d.logger != nil {
				d.logger.WithField("error", rpiescmotor.ErrorMessage(code)).Warn("Drive update failed")
			}
		}
	}
}

func inRange(v float64) bool {
	return v >= -1 && v <= 1
}
