package main

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	tinygoerrors "github.com/ralvarezdev/tinygo-errors"
	rpiescmotor "github.com/ralvarezdev/rpi-escmotor"
	"github.com/ralvarezdev/rpi-escmotor/drive"
	"github.com/ralvarezdev/rpi-escmotor/internal/command"
	"github.com/ralvarezdev/rpi-escmotor/servo"
)

// controller executes protocol commands against the motors of the configured mode. Exactly one of
// motor and tracks is set
type controller struct {
	motor  rpiescmotor.Handler
	tracks *drive.Differential
	servo  *servo.Servo
}

// Execute implements command.Executor
func (c *controller) Execute(cmd command.Command) (string, error) {
	switch cmd.Kind {
	case command.KindThrottle:
		if c.tracks != nil {
			return "", codeError(c.tracks.SetArcade(cmd.Args[0], 0))
		}
		return "", codeError(c.motor.SetTarget(cmd.Args[0]))

	case command.KindArcade:
		if c.tracks == nil {
			return "", errors.New("arcade drive needs tank mode")
		}
		return "", codeError(c.tracks.SetArcade(cmd.Args[0], cmd.Args[1]))

	case command.KindTank:
		if c.tracks == nil {
			return "", errors.New("track targets need tank mode")
		}
		return "", codeError(c.tracks.SetTank(cmd.Args[0], cmd.Args[1]))

	case command.KindServo:
		if c.servo == nil {
			return "", errors.New("no servo configured")
		}
		return "", c.servo.SetAngle(cmd.Args[0])

	case command.KindStop:
		return "", codeError(c.stop())

	case command.KindEmergencyStop:
		return "", codeError(c.emergencyStop())

	case command.KindStatus:
		return c.status(), nil

	case command.KindQuit:
		return "bye", codeError(c.stop())

	default:
		return "", errors.Errorf("unsupported command kind %d", cmd.Kind)
	}
}

func (c *controller) stop() tinygoerrors.ErrorCode {
	if c.tracks != nil {
		return c.tracks.Stop()
	}
	return c.motor.Stop()
}

func (c *controller) emergencyStop() tinygoerrors.ErrorCode {
	if c.tracks != nil {
		return c.tracks.EmergencyStop()
	}
	return c.motor.EmergencyStop()
}

func (c *controller) status() string {
	var b strings.Builder
	if c.tracks != nil {
		left, right := c.tracks.Speeds()
		fmt.Fprintf(&b, "left=%.2f right=%.2f", left, right)
	} else {
		fmt.Fprintf(&b, "profile=%s state=%s target=%.2f speed=%.2f ramp=%v",
			c.motor.Profile().Name,
			c.motor.State(),
			c.motor.Target(),
			c.motor.GetSpeed(),
			c.motor.RampTime(),
		)
	}
	if c.servo != nil {
		fmt.Fprintf(&b, " servo=%.1f", c.servo.Angle())
	}
	return b.String()
}

// codeError converts an ESC error code into an error, nil for ErrorCodeNil
func codeError(code tinygoerrors.ErrorCode) error {
	if code == tinygoerrors.ErrorCodeNil {
		return nil
	}
	return errors.Errorf("%s (code %d)", rpiescmotor.ErrorMessage(code), uint16(code))
}
