package pwm

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/pca9685"
)

const (
	// PCA9685Resolution is the number of counter steps in one PCA9685 period
	PCA9685Resolution = 4096

	// PCA9685Channels is the number of PWM outputs of a PCA9685
	PCA9685Channels = 16

	// PCA9685DefaultAddress is the default I2C address of a PCA9685
	PCA9685DefaultAddress = pca9685.I2CAddr
)

type (
	// PCA9685 drives the 16 outputs of a PCA9685 I2C PWM controller
	PCA9685 struct {
		mu     sync.Mutex
		dev    *pca9685.Dev
		period time.Duration
		logger logrus.FieldLogger
	}
)

// NewPCA9685 creates a new PCA9685 PWM on the given I2C bus
//
// Parameters:
//
// bus: The I2C bus the controller is attached to
// address: The I2C address of the controller
// logger: The logger to log messages, may be nil
//
// Returns:
//
// The PCA9685 PWM and an error if the device could not be initialized
func NewPCA9685(bus i2c.Bus, address uint16, logger logrus.FieldLogger) (*PCA9685, error) {
	if bus == nil {
		return nil, errors.New("pca9685: nil I2C bus")
	}

	dev, err := pca9685.NewI2C(bus, address)
	if err != nil {
		return nil, errors.Wrapf(err, "pca9685: failed to initialize device at %#02x", address)
	}

	if logger != nil {
		logger.WithField("address", address).Info("Initialized PCA9685")
	}
	return &PCA9685{dev: dev, logger: logger}, nil
}

// Configure sets the PWM frequency of every output
func (p *PCA9685) Configure(frequency physic.Frequency) error {
	if frequency <= 0 {
		return errors.New("pca9685: frequency must be positive")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.dev.SetPwmFreq(frequency); err != nil {
		return errors.Wrapf(err, "pca9685: failed to set frequency to %s", frequency)
	}
	p.period = frequency.Period()

	if p.logger != nil {
		p.logger.WithField("frequency", frequency.String()).Debug("Set PCA9685 PWM frequency")
	}
	return nil
}

// SetPulse sets the pulse width of the given output
func (p *PCA9685) SetPulse(channel uint8, pulse time.Duration) error {
	if channel >= PCA9685Channels {
		return errors.Errorf("pca9685: channel %d out of range", channel)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.period == 0 {
		return errors.New("pca9685: frequency not configured")
	}

	if pulse <= 0 {
		if err := p.dev.SetFullOff(int(channel)); err != nil {
			return errors.Wrapf(err, "pca9685: failed to turn off channel %d", channel)
		}
		return nil
	}

	ticks := Ticks(pulse, p.period, PCA9685Resolution)
	if err := p.dev.SetPwm(int(channel), 0, gpio.Duty(ticks)); err != nil {
		return errors.Wrapf(err, "pca9685: failed to set channel %d", channel)
	}
	return nil
}
