package rpi_escmotor

import (
	tinygoerrors "github.com/ralvarezdev/tinygo-errors"
)

const (
	// ErrorCodeESCMotorStartNumber is the starting number for ESC motor-related error codes.
	ErrorCodeESCMotorStartNumber uint16 = 5210
)

const (
	ErrorCodeESCMotorFailedToConfigurePWM tinygoerrors.ErrorCode = tinygoerrors.ErrorCode(iota + ErrorCodeESCMotorStartNumber)
	ErrorCodeESCMotorZeroFrequency
	ErrorCodeESCMotorSpeedOutOfRange
	ErrorCodeESCMotorNilHandler
	ErrorCodeESCMotorInvalidNeutralPulseWidth
	ErrorCodeESCMotorInvalidMinPulseWidth
	ErrorCodeESCMotorInvalidMaxPulseWidth
	ErrorCodeESCMotorUnknownDirection
	ErrorCodeESCMotorInvalidMaxForwardSpeed
	ErrorCodeESCMotorInvalidMaxBackwardSpeed
	ErrorCodeESCMotorFailedToSetPulse
	ErrorCodeESCMotorNilPWM
	ErrorCodeESCMotorNilProfile
	ErrorCodeESCMotorInvalidReverseInitPhase
	ErrorCodeESCMotorUnknownProfile
)

var errorMessages = map[tinygoerrors.ErrorCode]string{
	tinygoerrors.ErrorCodeNil:                 "no error",
	ErrorCodeESCMotorFailedToConfigurePWM:     "failed to configure PWM",
	ErrorCodeESCMotorZeroFrequency:            "PWM frequency is zero",
	ErrorCodeESCMotorSpeedOutOfRange:          "speed out of range",
	ErrorCodeESCMotorNilHandler:               "nil ESC motor handler",
	ErrorCodeESCMotorInvalidNeutralPulseWidth: "invalid neutral pulse width",
	ErrorCodeESCMotorInvalidMinPulseWidth:     "invalid min pulse width",
	ErrorCodeESCMotorInvalidMaxPulseWidth:     "invalid max pulse width",
	ErrorCodeESCMotorUnknownDirection:         "unknown direction",
	ErrorCodeESCMotorInvalidMaxForwardSpeed:   "invalid max forward speed",
	ErrorCodeESCMotorInvalidMaxBackwardSpeed:  "invalid max backward speed",
	ErrorCodeESCMotorFailedToSetPulse:         "failed to set pulse width",
	ErrorCodeESCMotorNilPWM:                   "nil PWM",
	ErrorCodeESCMotorNilProfile:               "nil ESC profile",
	ErrorCodeESCMotorInvalidReverseInitPhase:  "invalid reverse initialization phase",
	ErrorCodeESCMotorUnknownProfile:           "unknown ESC profile",
}

// ErrorMessage returns a human-readable message for an ESC motor error code.
func ErrorMessage(code tinygoerrors.ErrorCode) string {
	if msg, ok := errorMessages[code]; ok {
		return msg
	}
	return "unknown error"
}
