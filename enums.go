package rpi_escmotor

type (
	// Direction is an enum to represent the different motor directions for the vehicle.
	Direction uint8

	// State is an enum to represent the states of the ESC sequencing state machine.
	State uint8
)

const (
	DirectionNil Direction = iota
	DirectionForward
	DirectionBackward
	DirectionStop
)

const (
	StateIdle State = iota
	StateForward
	StateReverseInit
	StateReverse
)

// InvertedDirection returns the inverted direction.
func (d Direction) InvertedDirection() Direction {
	switch d {
	case DirectionStop:
		return DirectionStop
	case DirectionForward:
		return DirectionBackward
	case DirectionBackward:
		return DirectionForward
	default:
		return DirectionNil
	}
}

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionForward:
		return "forward"
	case DirectionBackward:
		return "backward"
	case DirectionStop:
		return "stop"
	default:
		return "nil"
	}
}

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateForward:
		return "forward"
	case StateReverseInit:
		return "reverse-init"
	case StateReverse:
		return "reverse"
	default:
		return "unknown"
	}
}

// Direction returns the direction the ESC is driving the motor while in the state.
func (s State) Direction() Direction {
	switch s {
	case StateForward:
		return DirectionForward
	case StateReverse:
		return DirectionBackward
	case StateIdle, StateReverseInit:
		return DirectionStop
	default:
		return DirectionNil
	}
}
