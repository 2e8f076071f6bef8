package rpi_escmotor

import (
	"context"
	"time"

	tinygoerrors "github.com/ralvarezdev/tinygo-errors"
)

type (
	// Handler is the interface to handle ESC (Electronic Speed Controller) motor operations
	Handler interface {
		GetSpeed() float64
		Target() float64
		State() State
		RampTime() time.Duration
		Profile() Profile
		SetTarget(speed float64) tinygoerrors.ErrorCode
		SetSpeed(speed float64, direction Direction) tinygoerrors.ErrorCode
		SetSpeedForward(speed float64) tinygoerrors.ErrorCode
		SetSpeedBackward(speed float64) tinygoerrors.ErrorCode
		Stop() tinygoerrors.ErrorCode
		EmergencyStop() tinygoerrors.ErrorCode
		Update(now time.Time) tinygoerrors.ErrorCode
		Run(ctx context.Context, interval time.Duration) error
	}
)
