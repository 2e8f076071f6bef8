package pwm

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stianeikeland/go-rpio/v4"
	"periph.io/x/conn/v3/physic"
)

// HardwarePWMTick is the resolution of the native PWM counter
const HardwarePWMTick = time.Microsecond

// hardwarePWMChannels maps the BCM pins with a PWM function to the PWM channel driving them. Pins
// on the same channel always carry the same signal
var hardwarePWMChannels = map[int]int{
	12: 0,
	18: 0,
	13: 1,
	19: 1,
}

// HardwarePWMChannel returns the PWM channel of the Raspberry Pi driving a BCM pin
//
// Parameters:
//
// pin: The BCM pin number
//
// Returns:
//
// The channel and false if the pin has no PWM function
func HardwarePWMChannel(pin int) (int, bool) {
	channel, ok := hardwarePWMChannels[pin]
	return channel, ok
}

// CheckHardwarePWMPins checks that every pin has a PWM function and no two pins share a PWM
// channel, so each pin carries its own signal
func CheckHardwarePWMPins(pins []int) error {
	if len(pins) == 0 {
		return errors.New("rpio: no PWM pins given")
	}

	used := make(map[int]int, len(pins))
	for _, pin := range pins {
		channel, ok := HardwarePWMChannel(pin)
		if !ok {
			return errors.Errorf("rpio: pin %d is not a hardware PWM pin", pin)
		}
		if other, ok := used[channel]; ok {
			return errors.Errorf("rpio: pins %d and %d share PWM channel %d", other, pin, channel)
		}
		used[channel] = pin
	}
	return nil
}

type (
	// HardwarePWM drives the native PWM pins of the Raspberry Pi through go-rpio
	HardwarePWM struct {
		mu       sync.Mutex
		pins     []rpio.Pin
		cycleLen uint32
		logger   logrus.FieldLogger
	}
)

// NewHardwarePWM creates a new HardwarePWM. Channel n addresses pins[n]
//
// Parameters:
//
// pins: The BCM numbers of the PWM pins to drive
// logger: The logger to log messages, may be nil
//
// Returns:
//
// The HardwarePWM and an error if the pins are invalid or /dev/gpiomem could not be opened
func NewHardwarePWM(pins []int, logger logrus.FieldLogger) (*HardwarePWM, error) {
	if err := CheckHardwarePWMPins(pins); err != nil {
		return nil, err
	}

	rpioPins := make([]rpio.Pin, 0, len(pins))
	for _, pin := range pins {
		rpioPins = append(rpioPins, rpio.Pin(pin))
	}

	if err := rpio.Open(); err != nil {
		return nil, errors.Wrap(err, "rpio: failed to open GPIO memory")
	}

	for _, pin := range rpioPins {
		pin.Mode(rpio.Pwm)
	}

	if logger != nil {
		logger.WithField("pins", pins).Info("Initialized hardware PWM")
	}
	return &HardwarePWM{pins: rpioPins, logger: logger}, nil
}

// Configure sets the PWM frequency of every pin
func (h *HardwarePWM) Configure(frequency physic.Frequency) error {
	if frequency <= 0 {
		return errors.New("rpio: frequency must be positive")
	}

	period := frequency.Period()
	cycleLen := uint32(period / HardwarePWMTick)
	if cycleLen == 0 {
		return errors.Errorf("rpio: frequency %s is too high", frequency)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for _, pin := range h.pins {
		pin.Freq(int(time.Second / HardwarePWMTick))
		pin.DutyCycle(0, cycleLen)
	}
	h.cycleLen = cycleLen

	if h.logger != nil {
		h.logger.WithFields(logrus.Fields{
			"frequency": frequency.String(),
			"cycle":     cycleLen,
		}).Debug("Set hardware PWM frequency")
	}
	return nil
}

// SetPulse sets the pulse width of the pin addressed by channel
func (h *HardwarePWM) SetPulse(channel uint8, pulse time.Duration) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if int(channel) >= len(h.pins) {
		return errors.Errorf("rpio: channel %d out of range", channel)
	}
	if h.cycleLen == 0 {
		return errors.New("rpio: frequency not configured")
	}

	duty := uint32(0)
	if pulse > 0 {
		duty = uint32(pulse / HardwarePWMTick)
	}
	if duty > h.cycleLen {
		duty = h.cycleLen
	}
	h.pins[channel].DutyCycle(duty, h.cycleLen)
	return nil
}

// Close stops the pulses and releases the GPIO memory mapping
func (h *HardwarePWM) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, pin := range h.pins {
		if h.cycleLen > 0 {
			pin.DutyCycle(0, h.cycleLen)
		}
	}
	return rpio.Close()
}
